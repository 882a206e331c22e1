package respond

import "time"

// UploadFileResult 单个文件的上传结果，失败只影响该文件
type UploadFileResult struct {
	Name       string `json:"name"`             // 原始文件名
	SourceID   string `json:"sourceId"`         // 落盘文件名，同时是向量命名空间
	Status     string `json:"status"`           // ready / queued / failed
	ChunkCount int    `json:"chunkCount"`       // 切分出的片段数
	Error      string `json:"error,omitempty"`  // 失败原因
}

// UploadRespond 批量上传响应
type UploadRespond struct {
	Files []UploadFileResult `json:"files"`
}

// DocumentInfo 文档列表项
type DocumentInfo struct {
	SourceID   string    `json:"sourceId"`
	Name       string    `json:"name"`
	Ext        string    `json:"ext"`
	SizeBytes  int64     `json:"sizeBytes"`
	ChunkCount int       `json:"chunkCount"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// AskRespond 非流式问答响应
type AskRespond struct {
	Answer string `json:"answer"`
}

// ClearHistoryRespond 清空历史响应
type ClearHistoryRespond struct {
	Cleared bool `json:"cleared"`
}
