package sessionmem

import (
	"context"
	"sync"

	"DocTalk/internal/modules/kb/domain/repository"
	"DocTalk/internal/modules/kb/domain/session"
)

// MemoryStore 进程内会话历史存储，服务重启后历史即丢失。
// Redis 未配置时作为默认实现。
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]session.Turn
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]session.Turn)}
}

func (s *MemoryStore) Get(ctx context.Context, sessionID string) ([]session.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.sessions[sessionID]
	out := make([]session.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *MemoryStore) Append(ctx context.Context, sessionID string, turns ...session.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], turns...)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	return existed, nil
}

var _ repository.SessionStore = (*MemoryStore)(nil)
