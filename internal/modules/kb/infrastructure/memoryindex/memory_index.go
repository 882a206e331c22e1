package memoryindex

import (
	"context"
	"math"
	"sort"
	"sync"

	"DocTalk/internal/modules/kb/domain/repository"
)

type record struct {
	entry repository.VectorEntry
	seq   int64
}

// MemoryIndex 进程内向量仓库。
// 离线开发与测试时替代 Milvus，语义与 MilvusIndex 保持一致：
// EnsureReady 幂等、按 ID 覆盖写、命名空间删除对未知命名空间静默成功。
type MemoryIndex struct {
	mu      sync.RWMutex
	ready   bool
	records map[string]map[string]*record
	nextSeq int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

func (m *MemoryIndex) EnsureReady(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		m.records = make(map[string]map[string]*record)
		m.ready = true
	}
	return nil
}

func (m *MemoryIndex) Upsert(ctx context.Context, namespace string, entries []repository.VectorEntry) ([]string, error) {
	if len(entries) == 0 {
		return []string{}, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		m.records = make(map[string]map[string]*record)
		m.ready = true
	}
	for _, e := range entries {
		ns := e.Namespace
		if ns == "" {
			ns = namespace
		}
		e.Namespace = ns
		bucket := m.records[ns]
		if bucket == nil {
			bucket = make(map[string]*record)
			m.records[ns] = bucket
		}
		m.nextSeq++
		bucket[e.ID] = &record{entry: e, seq: m.nextSeq}
	}
	return []string{}, nil
}

func (m *MemoryIndex) Query(ctx context.Context, vector []float32, topK int, namespace string) ([]repository.SearchHit, error) {
	if topK <= 0 {
		topK = 5
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		rec   *record
		score float32
	}
	var candidates []scored
	for ns, bucket := range m.records {
		if namespace != "" && ns != namespace {
			continue
		}
		for _, r := range bucket {
			candidates = append(candidates, scored{rec: r, score: cosine(vector, r.entry.Vector)})
		}
	}

	// 相似度降序，同分时后写入的排前面
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].rec.seq > candidates[j].rec.seq
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	hits := make([]repository.SearchHit, 0, len(candidates))
	for _, c := range candidates {
		e := c.rec.entry
		hits = append(hits, repository.SearchHit{
			ID:           e.ID,
			Score:        c.score,
			Namespace:    e.Namespace,
			ChunkIndex:   e.ChunkIndex,
			Content:      e.Content,
			MetadataJSON: e.MetadataJSON,
		})
	}
	return hits, nil
}

func (m *MemoryIndex) DeleteNamespace(ctx context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, namespace)
	return nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

var _ repository.VectorStore = (*MemoryIndex)(nil)
