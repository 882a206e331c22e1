package sessionmem

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"DocTalk/internal/modules/kb/domain/repository"
	"DocTalk/internal/modules/kb/domain/session"
	"DocTalk/pkg/redis"
)

const sessionKeyPrefix = "doctalk:session:"

// 空闲会话保留一天，由 Redis 自动过期回收
const sessionTTL = 24 * time.Hour

// RedisStore 把会话历史放进 Redis list，多实例部署时共享。
type RedisStore struct{}

func NewRedisStore() *RedisStore {
	return &RedisStore{}
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) ([]session.Turn, error) {
	items, err := redis.LRange(ctx, sessionKey(sessionID), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	turns := make([]session.Turn, 0, len(items))
	for _, item := range items {
		var t session.Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("decode session turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (s *RedisStore) Append(ctx context.Context, sessionID string, turns ...session.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(turns))
	for _, t := range turns {
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode session turn: %w", err)
		}
		values = append(values, string(raw))
	}
	// 一问一答在同一条 RPUSH 里写入，读取方不会看到只有提问的中间态
	if _, err := redis.RPush(ctx, sessionKey(sessionID), values...); err != nil {
		return fmt.Errorf("append session %s: %w", sessionID, err)
	}
	_, _ = redis.Expire(ctx, sessionKey(sessionID), sessionTTL)
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) (bool, error) {
	n, err := redis.Del(ctx, sessionKey(sessionID))
	if err != nil {
		return false, fmt.Errorf("clear session %s: %w", sessionID, err)
	}
	return n > 0, nil
}

var _ repository.SessionStore = (*RedisStore)(nil)
