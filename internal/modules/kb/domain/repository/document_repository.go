package repository

import (
	"context"

	"DocTalk/internal/modules/kb/domain/document"
)

// DocumentRepository 文档登记表。
type DocumentRepository interface {
	Save(ctx context.Context, doc *document.SourceDocument) error

	// UpdateStatus 更新摄取状态；chunkCount 小于 0 时保持原值不变。
	UpdateStatus(ctx context.Context, sourceID, status, errorMsg string, chunkCount int) error

	Get(ctx context.Context, sourceID string) (*document.SourceDocument, error)

	// List 返回全部文档，按创建时间升序。
	List(ctx context.Context) ([]document.SourceDocument, error)

	Delete(ctx context.Context, sourceID string) error
}
