package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client 一条 WebSocket 连接的写端封装。
// 所有写操作都经过 send 通道并由 WritePump 串行下发，
// 避免多个 goroutine 并发写同一个连接。
type Client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}
}

// Send 投递一条消息。缓冲满时阻塞等待 WritePump 消化，
// 连接关闭后返回 false。回答流里的每一帧都不允许静默丢弃，
// 慢客户端通过这里的阻塞把背压传回生成端。
func (c *Client) Send(payload []byte) bool {
	if c == nil || len(payload) == 0 {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return false
	}
}

// Done 在连接关闭（主动 Close 或写失败）后被关闭
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *Client) WritePump() {
	if c.conn == nil {
		return
	}
	defer c.Close()
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
