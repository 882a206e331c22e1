package config

import (
	"log"
	"os"

	"github.com/BurntSushi/toml"
)

type MainConfig struct {
	AppName   string `toml:"appName"`
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	EnableTLS bool   `toml:"enableTLS"`
}

type LogConfig struct {
	LogPath string `toml:"logPath"`
}

type StorageConfig struct {
	UploadDir string `toml:"uploadDir"`
}

type MysqlConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	DatabaseName string `toml:"databaseName"`
}

type MilvusConfig struct {
	Address        string `toml:"address"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	DBName         string `toml:"dbName"`
	CollectionName string `toml:"collectionName"`
	VectorDim      int    `toml:"vectorDim"`
	MetricType     string `toml:"metricType"`
}

// RagConfig 检索增强问答的可调参数。
// 这些值在旧版本里散落在代码各处，现在统一收口为配置。
type RagConfig struct {
	ChunkSize    int    `toml:"chunkSize"`
	ChunkOverlap int    `toml:"chunkOverlap"`
	TopK         int    `toml:"topK"`
	HistoryTurns int    `toml:"historyTurns"`
	SystemPrompt string `toml:"systemPrompt"`
	UseRecursive bool   `toml:"useRecursive"`
}

type KafkaConfig struct {
	Brokers         []string `toml:"brokers"`
	ClientID        string   `toml:"clientID"`
	IngestTopic     string   `toml:"ingestTopic"`
	ConsumerGroupID string   `toml:"consumerGroupID"`
	Partitions      int32    `toml:"partitions"`
	Replication     int16    `toml:"replication"`
}

type RedisConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"poolSize"`
	MinIdleConns int    `toml:"minIdleConns"`
}

type AIEmbeddingConfig struct {
	Provider        string `toml:"provider"`
	APIKey          string `toml:"apiKey"`
	BaseURL         string `toml:"baseURL"`
	Model           string `toml:"model"`
	Dimensions      int    `toml:"dimensions"`
	TimeoutSeconds  int    `toml:"timeoutSeconds"`
	ByAzure         bool   `toml:"byAzure"`
	AzureAPIVersion string `toml:"azureApiVersion"`
}

type AIChatModelConfig struct {
	Provider        string `toml:"provider"`
	APIKey          string `toml:"apiKey"`
	AccessKey       string `toml:"accessKey"`
	SecretKey       string `toml:"secretKey"`
	BaseURL         string `toml:"baseURL"`
	Region          string `toml:"region"`
	Model           string `toml:"model"`
	TimeoutSeconds  int    `toml:"timeoutSeconds"`
	RetryTimes      int    `toml:"retryTimes"`
	ByAzure         bool   `toml:"byAzure"`
	AzureAPIVersion string `toml:"azureApiVersion"`
}

type AIConfig struct {
	Embedding AIEmbeddingConfig `toml:"embedding"`
	ChatModel AIChatModelConfig `toml:"chatModel"`
}

type Config struct {
	MainConfig    `toml:"mainConfig"`
	LogConfig     `toml:"logConfig"`
	StorageConfig `toml:"storageConfig"`
	MysqlConfig   `toml:"mysqlConfig"`
	MilvusConfig  `toml:"milvusConfig"`
	RagConfig     `toml:"ragConfig"`
	KafkaConfig   `toml:"kafkaConfig"`
	RedisConfig   `toml:"redisConfig"`
	AIConfig      `toml:"aiConfig"`
}

var config *Config

func LoadConfig() error {
	if config == nil {
		config = new(Config)
	}
	configPath := os.Getenv("DOCTALK_CONFIG")
	if configPath == "" {
		configPath = "configs/config_local.toml"
	}
	if _, err := toml.DecodeFile(configPath, config); err != nil {
		log.Printf("加载配置文件失败: %v, 尝试使用默认设置", err)
		return err
	}
	return nil
}

func GetConfig() *Config {
	if config == nil {
		config = new(Config)
		_ = LoadConfig()
		applyDefaults(config)
	}
	return config
}

func applyDefaults(c *Config) {
	if c.StorageConfig.UploadDir == "" {
		c.StorageConfig.UploadDir = "uploads"
	}
	if c.MilvusConfig.VectorDim <= 0 {
		c.MilvusConfig.VectorDim = 768
	}
	if c.MilvusConfig.MetricType == "" {
		c.MilvusConfig.MetricType = "COSINE"
	}
	if c.RagConfig.ChunkSize <= 0 {
		c.RagConfig.ChunkSize = 1000
	}
	if c.RagConfig.ChunkOverlap < 0 || c.RagConfig.ChunkOverlap >= c.RagConfig.ChunkSize {
		c.RagConfig.ChunkOverlap = 200
	}
	if c.RagConfig.TopK <= 0 {
		c.RagConfig.TopK = 5
	}
	if c.RagConfig.HistoryTurns <= 0 {
		c.RagConfig.HistoryTurns = 12
	}
}
