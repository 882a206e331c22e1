package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"DocTalk/internal/modules/kb/application/service"
	"DocTalk/internal/modules/kb/infrastructure/mq"
	"DocTalk/pkg/zlog"

	"go.uber.org/zap"
)

// IngestConsumerWorker 消费摄取任务并驱动 IngestService。
// 摄取本身有回滚兜底，处理失败不重投，避免坏文件反复打爆管线。
type IngestConsumerWorker struct {
	consumer mq.Consumer
	ingest   service.IngestService
}

func NewIngestConsumerWorker(consumer mq.Consumer, ingest service.IngestService) *IngestConsumerWorker {
	return &IngestConsumerWorker{consumer: consumer, ingest: ingest}
}

func (w *IngestConsumerWorker) Run(ctx context.Context) error {
	if w == nil || w.consumer == nil {
		return errors.New("consumer is nil")
	}
	if w.ingest == nil {
		return errors.New("ingest service is nil")
	}
	return w.consumer.Run(ctx, w)
}

func (w *IngestConsumerWorker) Handle(ctx context.Context, msg mq.Message) error {
	var job service.IngestJob
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		zlog.Warn("ingest consumer invalid payload", zap.String("topic", msg.Topic), zap.Error(err))
		return nil
	}
	sourceID := strings.TrimSpace(job.SourceID)
	if sourceID == "" {
		zlog.Warn("ingest consumer missing source id", zap.String("topic", msg.Topic))
		return nil
	}

	if err := w.ingest.Ingest(ctx, sourceID); err != nil {
		zlog.Warn("ingest consumer job failed", zap.String("source_id", sourceID), zap.Error(err))
	}
	return nil
}

func (w *IngestConsumerWorker) Close() error {
	if w == nil || w.consumer == nil {
		return nil
	}
	return w.consumer.Close()
}
