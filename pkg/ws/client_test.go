package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSendAfterCloseReturnsFalse(t *testing.T) {
	c := NewClient(nil)
	c.Close()
	assert.False(t, c.Send([]byte("x")))
}

func TestSendBlocksInsteadOfDropping(t *testing.T) {
	c := NewClient(nil)
	for i := 0; i < 64; i++ {
		assert.True(t, c.Send([]byte("x")))
	}

	// 缓冲已满：Send 必须阻塞而不是丢帧，连接关闭后才返回 false
	done := make(chan bool, 1)
	go func() { done <- c.Send([]byte("y")) }()

	select {
	case <-done:
		t.Fatal("缓冲满时 Send 不应立即返回")
	case <-time.After(50 * time.Millisecond):
	}

	c.Close()
	assert.False(t, <-done)
}
