package repository

import (
	"context"

	"DocTalk/internal/modules/kb/domain/session"
)

// SessionStore 会话历史存储。
type SessionStore interface {
	// Get 返回会话的全部历史，按时间升序。未知会话返回空切片。
	Get(ctx context.Context, sessionID string) ([]session.Turn, error)

	// Append 追加若干条发言。一问一答应当在同一次调用里追加，
	// 保证读取方不会看到只有提问没有回答的中间态。
	Append(ctx context.Context, sessionID string, turns ...session.Turn) error

	// Clear 清空会话历史，返回该会话此前是否存在。
	Clear(ctx context.Context, sessionID string) (bool, error)
}
