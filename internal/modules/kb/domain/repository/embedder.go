package repository

import "context"

// EmbeddingClient 文本向量化客户端。
// 入库与查询走不同的方法，底层模型可以据此区分任务类型。
type EmbeddingClient interface {
	// EmbedDocuments 批量向量化入库文本，返回与输入等长且顺序一致的向量。
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery 向量化一条查询文本。
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
