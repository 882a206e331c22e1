package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"DocTalk/internal/modules/kb/application/dto/respond"
	"DocTalk/internal/modules/kb/domain/document"
	"DocTalk/internal/modules/kb/domain/repository"
	"DocTalk/internal/modules/kb/infrastructure/mq"
	"DocTalk/pkg/util"
	"DocTalk/pkg/zlog"

	"go.uber.org/zap"
)

// UploadedFile 一个待摄取的上传文件
type UploadedFile struct {
	Name string
	Data []byte
}

// IngestJob 投递到消息队列的摄取任务
type IngestJob struct {
	SourceID string `json:"sourceId"`
}

// DocumentService 文档生命周期：上传、列表、删除。
// 配置了消息队列时上传只负责落盘登记，摄取由消费者异步完成；
// 否则在请求内同步摄取。
type DocumentService interface {
	Upload(ctx context.Context, files []UploadedFile) *respond.UploadRespond
	List(ctx context.Context) ([]respond.DocumentInfo, error)
	Delete(ctx context.Context, sourceID string) error
}

type documentService struct {
	docRepo     repository.DocumentRepository
	fileStore   repository.FileStore
	ingest      IngestService
	publisher   mq.Publisher
	ingestTopic string
}

func NewDocumentService(
	docRepo repository.DocumentRepository,
	fileStore repository.FileStore,
	ingest IngestService,
	publisher mq.Publisher,
	ingestTopic string,
) DocumentService {
	return &documentService{
		docRepo:     docRepo,
		fileStore:   fileStore,
		ingest:      ingest,
		publisher:   publisher,
		ingestTopic: ingestTopic,
	}
}

func (s *documentService) Upload(ctx context.Context, files []UploadedFile) *respond.UploadRespond {
	// batchID 仅用于把同一次上传的日志串起来
	batchID := util.GenerateUUID()
	out := &respond.UploadRespond{Files: make([]respond.UploadFileResult, 0, len(files))}
	for _, f := range files {
		r := s.uploadOne(ctx, f)
		zlog.Info("upload handled",
			zap.String("batch_id", batchID),
			zap.String("source_id", r.SourceID),
			zap.String("status", r.Status))
		out.Files = append(out.Files, r)
	}
	return out
}

// uploadOne 单个文件的上传流程，失败不影响同批其他文件
func (s *documentService) uploadOne(ctx context.Context, f UploadedFile) respond.UploadFileResult {
	result := respond.UploadFileResult{Name: f.Name}

	ext := strings.ToLower(filepath.Ext(f.Name))
	sourceID := util.GenerateShortUUID() + ext
	result.SourceID = sourceID

	if err := s.fileStore.Save(ctx, sourceID, f.Data); err != nil {
		result.Status = document.StatusFailed
		result.Error = err.Error()
		return result
	}

	doc := &document.SourceDocument{
		SourceId:     sourceID,
		OriginalName: f.Name,
		Ext:          ext,
		SizeBytes:    int64(len(f.Data)),
		Status:       document.StatusUploaded,
	}
	if err := s.docRepo.Save(ctx, doc); err != nil {
		_ = s.fileStore.Remove(ctx, sourceID)
		result.Status = document.StatusFailed
		result.Error = err.Error()
		return result
	}

	if s.publisher != nil && s.ingestTopic != "" {
		if err := s.publishJob(ctx, sourceID); err != nil {
			zlog.Warn("publish ingest job failed, falling back to sync ingest",
				zap.String("source_id", sourceID), zap.Error(err))
		} else {
			result.Status = "queued"
			return result
		}
	}

	if err := s.ingest.Ingest(ctx, sourceID); err != nil {
		result.Status = document.StatusFailed
		result.Error = err.Error()
		return result
	}

	fresh, err := s.docRepo.Get(ctx, sourceID)
	if err == nil && fresh != nil {
		result.ChunkCount = fresh.ChunkCount
	}
	result.Status = document.StatusReady
	return result
}

func (s *documentService) publishJob(ctx context.Context, sourceID string) error {
	payload, err := json.Marshal(IngestJob{SourceID: sourceID})
	if err != nil {
		return err
	}
	_, err = s.publisher.Publish(ctx, mq.Message{
		Topic: s.ingestTopic,
		Key:   []byte(sourceID),
		Value: payload,
	})
	return err
}

func (s *documentService) List(ctx context.Context) ([]respond.DocumentInfo, error) {
	docs, err := s.docRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]respond.DocumentInfo, 0, len(docs))
	for _, d := range docs {
		out = append(out, respond.DocumentInfo{
			SourceID:   d.SourceId,
			Name:       d.OriginalName,
			Ext:        d.Ext,
			SizeBytes:  d.SizeBytes,
			ChunkCount: d.ChunkCount,
			Status:     d.Status,
			Error:      d.ErrorMsg,
			UploadedAt: d.CreatedAt,
		})
	}
	return out, nil
}

func (s *documentService) Delete(ctx context.Context, sourceID string) error {
	doc, err := s.docRepo.Get(ctx, sourceID)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("document not found: %s", sourceID)
	}
	return s.ingest.Remove(ctx, sourceID)
}
