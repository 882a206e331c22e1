package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"DocTalk/internal/modules/kb/domain/document"
	"DocTalk/internal/modules/kb/domain/repository"

	"gorm.io/gorm"
)

// GormDocumentRepository 文档登记表的 MySQL 实现。
type GormDocumentRepository struct {
	db *gorm.DB
}

func NewGormDocumentRepository(db *gorm.DB) (*GormDocumentRepository, error) {
	if db == nil {
		return nil, errors.New("gorm db is nil")
	}
	return &GormDocumentRepository{db: db}, nil
}

func (r *GormDocumentRepository) Save(ctx context.Context, doc *document.SourceDocument) error {
	if doc == nil {
		return errors.New("nil document")
	}
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *GormDocumentRepository) UpdateStatus(ctx context.Context, sourceID, status, errorMsg string, chunkCount int) error {
	updates := map[string]any{
		"status":     status,
		"error_msg":  errorMsg,
		"updated_at": time.Now(),
	}
	if chunkCount >= 0 {
		updates["chunk_count"] = chunkCount
	}
	res := r.db.WithContext(ctx).
		Model(&document.SourceDocument{}).
		Where("source_id = ?", sourceID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("document not found: %s", sourceID)
	}
	return nil
}

func (r *GormDocumentRepository) Get(ctx context.Context, sourceID string) (*document.SourceDocument, error) {
	var doc document.SourceDocument
	err := r.db.WithContext(ctx).
		Where("source_id = ?", sourceID).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *GormDocumentRepository) List(ctx context.Context) ([]document.SourceDocument, error) {
	var docs []document.SourceDocument
	err := r.db.WithContext(ctx).
		Order("created_at asc, id asc").
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *GormDocumentRepository) Delete(ctx context.Context, sourceID string) error {
	return r.db.WithContext(ctx).
		Where("source_id = ?", sourceID).
		Delete(&document.SourceDocument{}).Error
}

var _ repository.DocumentRepository = (*GormDocumentRepository)(nil)
