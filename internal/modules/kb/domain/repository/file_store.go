package repository

import "context"

// FileStore 上传文件的原始内容存储。
type FileStore interface {
	// Save 保存文件内容，storedName 为调用方生成的落盘文件名。
	Save(ctx context.Context, storedName string, data []byte) error

	// Remove 删除文件，文件不存在时视为成功。
	Remove(ctx context.Context, storedName string) error

	// Path 返回文件的本地路径。
	Path(storedName string) string
}
