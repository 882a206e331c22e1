package repository

import "context"

// VectorEntry 写入向量库的一条记录。
type VectorEntry struct {
	ID           string
	Vector       []float32
	Namespace    string
	ChunkIndex   int
	Content      string
	MetadataJSON string
}

// SearchHit 一条检索结果，Score 越大越相似。
type SearchHit struct {
	ID           string
	Score        float32
	Namespace    string
	ChunkIndex   int
	Content      string
	MetadataJSON string
}

// VectorStore 向量仓库。
// 实现必须保证 EnsureReady 幂等：底层集合已存在时视为成功。
type VectorStore interface {
	EnsureReady(ctx context.Context) error

	// Upsert 按 ID 覆盖写入。返回写入失败的条目 ID；
	// 只有在整个批次都无法提交时才返回 error。
	Upsert(ctx context.Context, namespace string, entries []VectorEntry) (failed []string, err error)

	// Query 返回与 vector 最相似的至多 topK 条记录，按相似度降序。
	// namespace 为空串时跨全部命名空间检索。
	Query(ctx context.Context, vector []float32, topK int, namespace string) ([]SearchHit, error)

	// DeleteNamespace 删除命名空间下的全部向量，命名空间不存在时视为成功。
	DeleteNamespace(ctx context.Context, namespace string) error
}
