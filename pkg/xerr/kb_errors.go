package xerr

import "fmt"

// 知识库管线的领域错误分类。
// 与 CodeError 不同，这类错误用于编排层内部判断失败发生在哪个环节
// （提取 / 向量化 / 索引 / 生成），再由 HTTP 层统一转换为响应码。

// ExtractionError 文本提取失败（格式不支持或文件损坏），只影响当前文件
type ExtractionError struct {
	Format string
	Cause  error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("extraction failed (format=%s): %v", e.Format, e.Cause)
	}
	return fmt.Sprintf("unsupported file format: %s", e.Format)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

// NewExtractionError 提取失败（带上游原因）
func NewExtractionError(format string, cause error) *ExtractionError {
	return &ExtractionError{Format: format, Cause: cause}
}

// NewUnsupportedFormatError 不认识的扩展名
func NewUnsupportedFormatError(format string) *ExtractionError {
	return &ExtractionError{Format: format}
}

// EmbeddingError 上游 Embedding 服务失败（限流、鉴权、非法输入）。
// 调用方不得用零向量兜底，必须让当前摄取/查询失败。
type EmbeddingError struct {
	Cause error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed: %v", e.Cause)
}

func (e *EmbeddingError) Unwrap() error { return e.Cause }

func NewEmbeddingError(cause error) *EmbeddingError {
	return &EmbeddingError{Cause: cause}
}

// IndexError 向量库不可用或写入被拒绝。
// 摄取路径上是硬错误；查询路径上允许降级为"无上下文"继续作答。
type IndexError struct {
	Op    string
	Cause error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("vector index %s failed: %v", e.Op, e.Cause)
}

func (e *IndexError) Unwrap() error { return e.Cause }

func NewIndexError(op string, cause error) *IndexError {
	return &IndexError{Op: op, Cause: cause}
}

// GenerationError 模型生成/流式输出失败，必须以显式错误事件结束流
type GenerationError struct {
	Cause error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Cause)
}

func (e *GenerationError) Unwrap() error { return e.Cause }

func NewGenerationError(cause error) *GenerationError {
	return &GenerationError{Cause: cause}
}
