package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"DocTalk/internal/modules/kb/domain/document"
	"DocTalk/internal/modules/kb/domain/repository"
	"DocTalk/internal/modules/kb/infrastructure/chunking"
	"DocTalk/pkg/zlog"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// IngestService 文档摄取编排：提取 → 切分 → 向量化 → 入库。
// 任一环节失败都会清掉该文档已写入的向量并把状态置为 failed，
// 不会留下半索引的文档。
type IngestService interface {
	Ingest(ctx context.Context, sourceID string) error
	Remove(ctx context.Context, sourceID string) error
}

type ingestService struct {
	docRepo   repository.DocumentRepository
	fileStore repository.FileStore
	extractor repository.Extractor
	chunker   *chunking.Chunker
	embedder  repository.EmbeddingClient
	index     repository.VectorStore
}

func NewIngestService(
	docRepo repository.DocumentRepository,
	fileStore repository.FileStore,
	extractor repository.Extractor,
	chunker *chunking.Chunker,
	embedder repository.EmbeddingClient,
	index repository.VectorStore,
) IngestService {
	return &ingestService{
		docRepo:   docRepo,
		fileStore: fileStore,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
	}
}

func (s *ingestService) Ingest(ctx context.Context, sourceID string) error {
	doc, err := s.docRepo.Get(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("load document %s: %w", sourceID, err)
	}
	if doc == nil {
		return fmt.Errorf("document not found: %s", sourceID)
	}

	if err := s.ingest(ctx, doc); err != nil {
		s.rollback(ctx, sourceID, err)
		return err
	}
	return nil
}

func (s *ingestService) ingest(ctx context.Context, doc *document.SourceDocument) error {
	sourceID := doc.SourceId

	data, err := os.ReadFile(s.fileStore.Path(sourceID))
	if err != nil {
		return fmt.Errorf("read stored file: %w", err)
	}

	text, err := s.extractor.Extract(ctx, sourceID, data)
	if err != nil {
		return err
	}
	if err := s.docRepo.UpdateStatus(ctx, sourceID, document.StatusExtracted, "", -1); err != nil {
		return err
	}

	chunks, err := s.splitText(ctx, text)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return fmt.Errorf("document has no extractable text")
	}
	if err := s.docRepo.UpdateStatus(ctx, sourceID, document.StatusChunked, "", len(chunks)); err != nil {
		return err
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return err
	}

	if err := s.index.EnsureReady(ctx); err != nil {
		return err
	}

	meta, _ := json.Marshal(map[string]string{"filename": doc.OriginalName})
	entries := make([]repository.VectorEntry, 0, len(chunks))
	for i, content := range chunks {
		entries = append(entries, repository.VectorEntry{
			ID:           fmt.Sprintf("%s_%d", sourceID, i),
			Vector:       vectors[i],
			Namespace:    sourceID,
			ChunkIndex:   i,
			Content:      content,
			MetadataJSON: string(meta),
		})
	}

	failed, err := s.index.Upsert(ctx, sourceID, entries)
	if err != nil {
		return err
	}
	if len(failed) > 0 {
		return fmt.Errorf("upsert rejected %d of %d vectors", len(failed), len(entries))
	}

	if err := s.docRepo.UpdateStatus(ctx, sourceID, document.StatusIndexed, "", -1); err != nil {
		return err
	}

	if err := s.docRepo.UpdateStatus(ctx, sourceID, document.StatusReady, "", -1); err != nil {
		return err
	}
	zlog.Info("document ingested", zap.String("source_id", sourceID), zap.Int("chunks", len(chunks)))
	return nil
}

// splitText 走 ChunkDocuments 以便同时支持滑动窗口与递归切分两种变体
func (s *ingestService) splitText(ctx context.Context, text string) ([]string, error) {
	docs, err := s.chunker.ChunkDocuments(ctx, []*schema.Document{{Content: text}})
	if err != nil {
		return nil, fmt.Errorf("chunk document: %w", err)
	}
	chunks := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Content == "" {
			continue
		}
		chunks = append(chunks, d.Content)
	}
	return chunks, nil
}

// rollback 清掉已写入的向量，防止检索命中失败文档的残留片段
func (s *ingestService) rollback(ctx context.Context, sourceID string, cause error) {
	if err := s.index.DeleteNamespace(ctx, sourceID); err != nil {
		zlog.Error("ingest rollback failed", zap.String("source_id", sourceID), zap.Error(err))
	}
	if err := s.docRepo.UpdateStatus(ctx, sourceID, document.StatusFailed, cause.Error(), -1); err != nil {
		zlog.Error("mark document failed error", zap.String("source_id", sourceID), zap.Error(err))
	}
	zlog.Warn("document ingest failed", zap.String("source_id", sourceID), zap.Error(cause))
}

// Remove 删除文档：先清向量（失败则中止），再删文件与登记记录。
// 文件删除失败只记日志，磁盘残留不会再被检索到。
func (s *ingestService) Remove(ctx context.Context, sourceID string) error {
	if err := s.index.DeleteNamespace(ctx, sourceID); err != nil {
		return err
	}
	if err := s.fileStore.Remove(ctx, sourceID); err != nil {
		zlog.Warn("remove stored file failed", zap.String("source_id", sourceID), zap.Error(err))
	}
	if err := s.docRepo.Delete(ctx, sourceID); err != nil {
		return err
	}
	zlog.Info("document removed", zap.String("source_id", sourceID))
	return nil
}
