package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"DocTalk/internal/modules/kb/domain/repository"
	"DocTalk/internal/modules/kb/domain/session"
	"DocTalk/pkg/xerr"
	"DocTalk/pkg/zlog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// 检索失败或没有命中时提示词里使用的占位上下文
const noContextPlaceholder = "No relevant context found."

// 拼接多个片段时的分隔符
const contextDelimiter = "\n---\n"

const (
	EventChunk    = "chunk"
	EventComplete = "complete"
	EventError    = "error"
)

// StreamEvent 流式回答的一帧。
// 一条流以恰好一个 complete 或一个 error 结束，两者互斥。
type StreamEvent struct {
	Event  string
	Chunk  string
	Answer string
	ErrMsg string
}

// QueryService 检索增强问答编排。
type QueryService interface {
	Ask(ctx context.Context, question, sessionID string) (string, error)
	AskStream(ctx context.Context, question, sessionID string) (<-chan StreamEvent, error)
	ClearHistory(ctx context.Context, sessionID string) (bool, error)
}

type queryService struct {
	embedder  repository.EmbeddingClient
	index     repository.VectorStore
	sessions  repository.SessionStore
	chatModel model.BaseChatModel

	topK         int
	historyTurns int
	systemPrompt string
}

func NewQueryService(
	embedder repository.EmbeddingClient,
	index repository.VectorStore,
	sessions repository.SessionStore,
	chatModel model.BaseChatModel,
	topK, historyTurns int,
	systemPrompt string,
) QueryService {
	if topK <= 0 {
		topK = 5
	}
	if historyTurns <= 0 {
		historyTurns = 12
	}
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = "你是一个文档问答助手。请严格依据提供的文档片段回答用户问题。"
	}
	return &queryService{
		embedder:     embedder,
		index:        index,
		sessions:     sessions,
		chatModel:    chatModel,
		topK:         topK,
		historyTurns: historyTurns,
		systemPrompt: systemPrompt,
	}
}

func (s *queryService) Ask(ctx context.Context, question, sessionID string) (string, error) {
	msgs, err := s.prepare(ctx, question, sessionID)
	if err != nil {
		return "", err
	}

	out, err := s.chatModel.Generate(ctx, msgs)
	if err != nil {
		return "", xerr.NewGenerationError(err)
	}
	answer := out.Content

	s.remember(ctx, sessionID, question, answer)
	return answer, nil
}

func (s *queryService) AskStream(ctx context.Context, question, sessionID string) (<-chan StreamEvent, error) {
	msgs, err := s.prepare(ctx, question, sessionID)
	if err != nil {
		return nil, err
	}

	reader, err := s.chatModel.Stream(ctx, msgs)
	if err != nil {
		return nil, xerr.NewGenerationError(err)
	}

	events := make(chan StreamEvent, 100)
	go func() {
		defer close(events)
		defer reader.Close()

		var b strings.Builder
		for {
			chunk, err := reader.Recv()
			if ctx.Err() != nil {
				// 调用方已断开：立即停止拉流，整轮回答作废，不写历史也不发终止事件
				return
			}
			if errors.Is(err, io.EOF) {
				answer := b.String()
				// 只有完整走到流末尾才写入会话历史
				s.remember(ctx, sessionID, question, answer)
				s.emit(ctx, events, StreamEvent{Event: EventComplete, Answer: answer})
				return
			}
			if err != nil {
				zlog.Error("stream generation failed", zap.String("session_id", sessionID), zap.Error(err))
				s.emit(ctx, events, StreamEvent{Event: EventError, ErrMsg: xerr.NewGenerationError(err).Error()})
				return
			}
			if chunk == nil || chunk.Content == "" {
				continue
			}
			b.WriteString(chunk.Content)
			if !s.emit(ctx, events, StreamEvent{Event: EventChunk, Chunk: chunk.Content}) {
				// 客户端已断开，丢弃本轮回答
				return
			}
		}
	}()

	return events, nil
}

func (s *queryService) ClearHistory(ctx context.Context, sessionID string) (bool, error) {
	if strings.TrimSpace(sessionID) == "" {
		return false, fmt.Errorf("session id is required")
	}
	return s.sessions.Clear(ctx, sessionID)
}

// prepare 检索上下文、装载历史并组装提示词
func (s *queryService) prepare(ctx context.Context, question, sessionID string) ([]*schema.Message, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}

	contextBlock, err := s.retrieveContext(ctx, question)
	if err != nil {
		return nil, err
	}

	var history []session.Turn
	if sessionID != "" {
		history, err = s.sessions.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
	}
	return s.buildMessages(question, contextBlock, history), nil
}

// retrieveContext 向量化问题并做全局检索。
// Embedding 失败是硬错误；向量库不可用降级为无上下文作答。
func (s *queryService) retrieveContext(ctx context.Context, question string) (string, error) {
	vec, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return "", err
	}

	hits, err := s.index.Query(ctx, vec, s.topK, "")
	if err != nil {
		var idxErr *xerr.IndexError
		if errors.As(err, &idxErr) {
			zlog.Warn("retrieval degraded, answering without context", zap.Error(err))
			return noContextPlaceholder, nil
		}
		return "", err
	}
	if len(hits) == 0 {
		return noContextPlaceholder, nil
	}

	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, h.Content)
	}
	return strings.Join(parts, contextDelimiter), nil
}

func (s *queryService) buildMessages(question, contextBlock string, history []session.Turn) []*schema.Message {
	// 历史只保留最近 historyTurns 条发言，防止提示词无限膨胀
	if len(history) > s.historyTurns {
		history = history[len(history)-s.historyTurns:]
	}

	msgs := make([]*schema.Message, 0, len(history)+2)
	msgs = append(msgs, &schema.Message{
		Role:    schema.System,
		Content: fmt.Sprintf("%s\n\n文档片段：\n%s", s.systemPrompt, contextBlock),
	})
	for _, t := range history {
		role := schema.User
		if t.Role == session.RoleAssistant {
			role = schema.Assistant
		}
		msgs = append(msgs, &schema.Message{Role: role, Content: t.Content})
	}
	msgs = append(msgs, &schema.Message{Role: schema.User, Content: question})
	return msgs
}

// remember 把一问一答作为整体追加进会话历史
func (s *queryService) remember(ctx context.Context, sessionID, question, answer string) {
	if sessionID == "" || ctx.Err() != nil {
		return
	}
	err := s.sessions.Append(ctx, sessionID,
		session.Turn{Role: session.RoleUser, Content: question},
		session.Turn{Role: session.RoleAssistant, Content: answer},
	)
	if err != nil {
		zlog.Error("persist session turns failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *queryService) emit(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
