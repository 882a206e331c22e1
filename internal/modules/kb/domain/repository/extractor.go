package repository

import "context"

// Extractor 从原始文件字节中抽取纯文本。
type Extractor interface {
	// Extract 按文件扩展名选择解析方式。
	// 格式不支持或文件损坏时返回 xerr.ExtractionError。
	Extract(ctx context.Context, filename string, data []byte) (string, error)
}
