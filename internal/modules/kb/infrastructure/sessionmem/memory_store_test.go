package sessionmem

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"DocTalk/internal/modules/kb/domain/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUnknownSessionReturnsEmpty(t *testing.T) {
	store := NewMemoryStore()
	turns, err := store.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestAppendPreservesOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := store.Append(ctx, "s1",
			session.Turn{Role: session.RoleUser, Content: fmt.Sprintf("问题%d", i)},
			session.Turn{Role: session.RoleAssistant, Content: fmt.Sprintf("回答%d", i)},
		)
		require.NoError(t, err)
	}

	turns, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 6)
	for i := 0; i < 3; i++ {
		assert.Equal(t, session.RoleUser, turns[2*i].Role)
		assert.Equal(t, fmt.Sprintf("问题%d", i), turns[2*i].Content)
		assert.Equal(t, session.RoleAssistant, turns[2*i+1].Role)
		assert.Equal(t, fmt.Sprintf("回答%d", i), turns[2*i+1].Content)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "a", session.Turn{Role: session.RoleUser, Content: "甲"}))
	require.NoError(t, store.Append(ctx, "b", session.Turn{Role: session.RoleUser, Content: "乙"}))

	a, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.Len(t, a, 1)
	assert.Equal(t, "甲", a[0].Content)

	b, err := store.Get(ctx, "b")
	require.NoError(t, err)
	require.Len(t, b, 1)
	assert.Equal(t, "乙", b[0].Content)
}

func TestClearReportsExistence(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	existed, err := store.Clear(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, existed)

	require.NoError(t, store.Append(ctx, "s1", session.Turn{Role: session.RoleUser, Content: "问"}))
	existed, err = store.Clear(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, existed)

	turns, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestConcurrentSessions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("session-%d", n)
			for j := 0; j < 20; j++ {
				assert.NoError(t, store.Append(ctx, id,
					session.Turn{Role: session.RoleUser, Content: fmt.Sprintf("q%d", j)},
					session.Turn{Role: session.RoleAssistant, Content: fmt.Sprintf("a%d", j)},
				))
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		turns, err := store.Get(ctx, fmt.Sprintf("session-%d", i))
		require.NoError(t, err)
		assert.Len(t, turns, 40)
	}
}
