package document

import "time"

// 文档摄取状态机。状态反映摄取进度，片段向量在写入成功后即可被检索到；
// 失败的文档停在 StatusFailed 并记录原因，同时回滚命名空间，
// 不会在检索结果里留下片段。
const (
	StatusUploaded  = "uploaded"
	StatusExtracted = "extracted"
	StatusChunked   = "chunked"
	StatusIndexed   = "indexed"
	StatusReady     = "ready"
	StatusFailed    = "failed"
)

// SourceDocument 一份已上传文档的登记记录。
// SourceId 同时充当磁盘文件名与向量库中的命名空间。
type SourceDocument struct {
	Id           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	SourceId     string    `gorm:"column:source_id;type:varchar(64);not null;uniqueIndex:uniq_doc_source"`
	OriginalName string    `gorm:"column:original_name;type:varchar(255);not null"`
	Ext          string    `gorm:"column:ext;type:varchar(16);not null"`
	SizeBytes    int64     `gorm:"column:size_bytes;type:bigint;not null"`
	ChunkCount   int       `gorm:"column:chunk_count;type:int;not null;default:0"`
	Status       string    `gorm:"column:status;type:varchar(16);not null;index:idx_doc_status"`
	ErrorMsg     string    `gorm:"column:error_msg;type:varchar(255)"`
	CreatedAt    time.Time `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;type:datetime;not null"`
}

func (SourceDocument) TableName() string { return "kb_source_document" }

// Chunk 切分后的一个文本片段，Index 从 0 开始且连续。
type Chunk struct {
	Index   int
	Content string
}
