package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"DocTalk/internal/modules/kb/domain/repository"
)

// LocalStore 把上传文件保存在本地目录。
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) Save(ctx context.Context, storedName string, data []byte) error {
	if err := validateName(storedName); err != nil {
		return err
	}
	return os.WriteFile(s.Path(storedName), data, 0o644)
}

func (s *LocalStore) Remove(ctx context.Context, storedName string) error {
	if err := validateName(storedName); err != nil {
		return err
	}
	err := os.Remove(s.Path(storedName))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *LocalStore) Path(storedName string) string {
	return filepath.Join(s.dir, filepath.Base(storedName))
}

// validateName 拒绝带路径分隔符的文件名，防止越出上传目录
func validateName(name string) error {
	if name == "" || name != filepath.Base(name) {
		return fmt.Errorf("invalid stored name: %q", name)
	}
	return nil
}

var _ repository.FileStore = (*LocalStore)(nil)
