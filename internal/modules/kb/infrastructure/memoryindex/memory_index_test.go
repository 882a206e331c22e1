package memoryindex

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"DocTalk/internal/modules/kb/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id, ns string, vec []float32) repository.VectorEntry {
	return repository.VectorEntry{ID: id, Namespace: ns, Vector: vec, Content: "content-" + id}
}

func TestEnsureReadyIdempotentUnderConcurrency(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, idx.EnsureReady(ctx))
		}()
	}
	wg.Wait()

	_, err := idx.Upsert(ctx, "ns", []repository.VectorEntry{entry("a", "ns", []float32{1, 0})})
	require.NoError(t, err)
}

func TestQueryOrderingAndTopK(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.EnsureReady(ctx))

	_, err := idx.Upsert(ctx, "docs", []repository.VectorEntry{
		entry("exact", "docs", []float32{1, 0}),
		entry("close", "docs", []float32{0.9, 0.1}),
		entry("far", "docs", []float32{0, 1}),
	})
	require.NoError(t, err)

	hits, err := idx.Query(ctx, []float32{1, 0}, 2, "")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "exact", hits[0].ID)
	assert.Equal(t, "close", hits[1].ID)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
}

func TestQueryNamespaceFilterAndGlobal(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.EnsureReady(ctx))

	_, err := idx.Upsert(ctx, "", []repository.VectorEntry{
		entry("a1", "doc-a", []float32{1, 0}),
		entry("b1", "doc-b", []float32{1, 0}),
	})
	require.NoError(t, err)

	scoped, err := idx.Query(ctx, []float32{1, 0}, 10, "doc-a")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "a1", scoped[0].ID)

	global, err := idx.Query(ctx, []float32{1, 0}, 10, "")
	require.NoError(t, err)
	assert.Len(t, global, 2)
}

func TestUpsertOverwritesByID(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.EnsureReady(ctx))

	_, err := idx.Upsert(ctx, "ns", []repository.VectorEntry{entry("a", "ns", []float32{1, 0})})
	require.NoError(t, err)
	updated := entry("a", "ns", []float32{0, 1})
	updated.Content = "updated"
	_, err = idx.Upsert(ctx, "ns", []repository.VectorEntry{updated})
	require.NoError(t, err)

	hits, err := idx.Query(ctx, []float32{0, 1}, 10, "ns")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "updated", hits[0].Content)
}

func TestDeleteNamespace(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.EnsureReady(ctx))

	var entries []repository.VectorEntry
	for i := 0; i < 5; i++ {
		entries = append(entries, entry(fmt.Sprintf("a%d", i), "doc-a", []float32{1, 0}))
	}
	_, err := idx.Upsert(ctx, "doc-a", entries)
	require.NoError(t, err)
	_, err = idx.Upsert(ctx, "doc-b", []repository.VectorEntry{entry("b0", "doc-b", []float32{1, 0})})
	require.NoError(t, err)

	require.NoError(t, idx.DeleteNamespace(ctx, "doc-a"))
	// 删除不存在的命名空间同样成功
	require.NoError(t, idx.DeleteNamespace(ctx, "doc-a"))

	hits, err := idx.Query(ctx, []float32{1, 0}, 10, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b0", hits[0].ID)
}
