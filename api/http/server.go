package http

import (
	"context"
	"fmt"

	"DocTalk/internal/config"
	"DocTalk/internal/initial"
	"DocTalk/internal/modules/kb/application/service"
	"DocTalk/internal/modules/kb/domain/repository"
	"DocTalk/internal/modules/kb/infrastructure/chunking"
	"DocTalk/internal/modules/kb/infrastructure/embedding"
	"DocTalk/internal/modules/kb/infrastructure/extract"
	"DocTalk/internal/modules/kb/infrastructure/filestore"
	"DocTalk/internal/modules/kb/infrastructure/llm"
	"DocTalk/internal/modules/kb/infrastructure/memoryindex"
	"DocTalk/internal/modules/kb/infrastructure/mq"
	"DocTalk/internal/modules/kb/infrastructure/mq/kafka"
	"DocTalk/internal/modules/kb/infrastructure/persistence"
	"DocTalk/internal/modules/kb/infrastructure/queue"
	"DocTalk/internal/modules/kb/infrastructure/sessionmem"
	"DocTalk/internal/modules/kb/infrastructure/vectordb"
	kbHandler "DocTalk/internal/modules/kb/interface/http"
	"DocTalk/pkg/redis"
	"DocTalk/pkg/ssl"
	"DocTalk/pkg/zlog"

	cors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var GE *gin.Engine

func init() {
	conf := config.GetConfig()

	GE = gin.Default()
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	GE.Use(cors.New(corsConfig))
	if conf.MainConfig.EnableTLS {
		GE.Use(ssl.TlsHandler(conf.MainConfig.Host, conf.MainConfig.Port))
	}

	ctx := context.Background()

	fileStore, err := filestore.NewLocalStore(conf.StorageConfig.UploadDir)
	if err != nil {
		zlog.Fatal("file store init failed: " + err.Error())
	}

	em, emMeta, err := embedding.NewEmbedderFromConfig(ctx, conf)
	if err != nil {
		zlog.Fatal("embedding init failed: " + err.Error())
	}
	embedClient := embedding.NewClient(em)
	zlog.Info("embedding ready",
		zap.String("provider", emMeta.Provider),
		zap.String("model", emMeta.Model),
		zap.Int("dim", emMeta.Dim))

	chatModel, cmMeta, err := llm.NewChatModelFromConfig(ctx, conf)
	if err != nil {
		zlog.Fatal("chat model init failed: " + err.Error())
	}
	zlog.Info("chat model ready",
		zap.String("provider", cmMeta.Provider),
		zap.String("model", cmMeta.Model))

	var index repository.VectorStore
	if initial.MilvusClient != nil {
		index, err = vectordb.NewMilvusIndex(
			initial.MilvusClient,
			conf.MilvusConfig.CollectionName,
			conf.MilvusConfig.VectorDim,
			conf.MilvusConfig.MetricType,
		)
		if err != nil {
			zlog.Fatal("milvus index init failed: " + err.Error())
		}
	} else {
		zlog.Warn("Milvus 未配置，向量索引使用进程内实现")
		index = memoryindex.NewMemoryIndex()
	}

	var docRepo repository.DocumentRepository
	if initial.GormDB != nil {
		docRepo, err = persistence.NewGormDocumentRepository(initial.GormDB)
		if err != nil {
			zlog.Fatal("document repository init failed: " + err.Error())
		}
	} else {
		docRepo = persistence.NewMemoryDocumentRepository()
	}

	var sessions repository.SessionStore
	if redis.IsConnected() {
		sessions = sessionmem.NewRedisStore()
	} else {
		sessions = sessionmem.NewMemoryStore()
	}

	var chunker *chunking.Chunker
	if conf.RagConfig.UseRecursive {
		chunker = chunking.NewRecursiveChunker(conf.RagConfig.ChunkSize, conf.RagConfig.ChunkOverlap)
	} else {
		chunker = chunking.NewChunker(conf.RagConfig.ChunkSize, conf.RagConfig.ChunkOverlap)
	}

	ingestSvc := service.NewIngestService(docRepo, fileStore, extract.NewFileExtractor(), chunker, embedClient, index)

	// Kafka 配置了 broker 时走异步摄取，否则上传请求内同步摄取
	var publisher mq.Publisher
	if len(conf.KafkaConfig.Brokers) > 0 {
		publisher = setupAsyncIngest(conf, ingestSvc)
	}

	docSvc := service.NewDocumentService(docRepo, fileStore, ingestSvc, publisher, conf.KafkaConfig.IngestTopic)
	querySvc := service.NewQueryService(embedClient, index, sessions, chatModel,
		conf.RagConfig.TopK, conf.RagConfig.HistoryTurns, conf.RagConfig.SystemPrompt)

	docH := kbHandler.NewDocumentHandler(docSvc)
	askH := kbHandler.NewAskHandler(querySvc)
	wsH := kbHandler.NewWsHandler(querySvc)

	api := GE.Group("/api")
	api.POST("/upload", docH.Upload)
	api.GET("/files", docH.List)
	api.DELETE("/files/:id", docH.Delete)
	api.POST("/ask", askH.Ask)
	api.POST("/clear-history", askH.ClearHistory)

	GE.GET("/ws", wsH.Connect)
}

func setupAsyncIngest(conf *config.Config, ingestSvc service.IngestService) mq.Publisher {
	adminCfg := kafka.TopicAdminConfig{Brokers: conf.KafkaConfig.Brokers, ClientID: conf.KafkaConfig.ClientID}
	if err := kafka.EnsureTopic(adminCfg, conf.KafkaConfig.IngestTopic,
		conf.KafkaConfig.Partitions, conf.KafkaConfig.Replication); err != nil {
		zlog.Warn("ensure ingest topic failed", zap.Error(err))
	}

	publisher, err := kafka.NewSaramaPublisher(kafka.PublisherConfig{
		Brokers:  conf.KafkaConfig.Brokers,
		ClientID: conf.KafkaConfig.ClientID,
	})
	if err != nil {
		zlog.Warn("kafka publisher init failed, ingest stays synchronous", zap.Error(err))
		return nil
	}

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:  conf.KafkaConfig.Brokers,
		GroupID:  conf.KafkaConfig.ConsumerGroupID,
		Topics:   []string{conf.KafkaConfig.IngestTopic},
		ClientID: conf.KafkaConfig.ClientID,
	})
	if err != nil {
		zlog.Warn("kafka consumer init failed, ingest stays synchronous", zap.Error(err))
		_ = publisher.Close()
		return nil
	}

	worker := queue.NewIngestConsumerWorker(consumer, ingestSvc)
	go func() {
		if err := worker.Run(context.Background()); err != nil {
			zlog.Error(fmt.Sprintf("ingest consumer stopped: %v", err))
		}
	}()

	zlog.Info("async ingest enabled", zap.String("topic", conf.KafkaConfig.IngestTopic))
	return publisher
}
