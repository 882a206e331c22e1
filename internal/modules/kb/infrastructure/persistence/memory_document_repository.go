package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"DocTalk/internal/modules/kb/domain/document"
	"DocTalk/internal/modules/kb/domain/repository"
)

// MemoryDocumentRepository 文档登记表的进程内实现。
// MySQL 未配置时使用，语义与 GormDocumentRepository 对齐。
type MemoryDocumentRepository struct {
	mu   sync.RWMutex
	docs map[string]*document.SourceDocument
	seq  int64
}

func NewMemoryDocumentRepository() *MemoryDocumentRepository {
	return &MemoryDocumentRepository{docs: make(map[string]*document.SourceDocument)}
}

func (r *MemoryDocumentRepository) Save(ctx context.Context, doc *document.SourceDocument) error {
	if doc == nil {
		return errors.New("nil document")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[doc.SourceId]; ok {
		return fmt.Errorf("duplicate source id: %s", doc.SourceId)
	}
	now := time.Now()
	r.seq++
	cp := *doc
	cp.Id = r.seq
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	r.docs[cp.SourceId] = &cp
	doc.Id = cp.Id
	return nil
}

func (r *MemoryDocumentRepository) UpdateStatus(ctx context.Context, sourceID, status, errorMsg string, chunkCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[sourceID]
	if !ok {
		return fmt.Errorf("document not found: %s", sourceID)
	}
	doc.Status = status
	doc.ErrorMsg = errorMsg
	if chunkCount >= 0 {
		doc.ChunkCount = chunkCount
	}
	doc.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryDocumentRepository) Get(ctx context.Context, sourceID string) (*document.SourceDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[sourceID]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (r *MemoryDocumentRepository) List(ctx context.Context) ([]document.SourceDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]document.SourceDocument, 0, len(r.docs))
	for _, doc := range r.docs {
		out = append(out, *doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func (r *MemoryDocumentRepository) Delete(ctx context.Context, sourceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, sourceID)
	return nil
}

var _ repository.DocumentRepository = (*MemoryDocumentRepository)(nil)
