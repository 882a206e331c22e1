package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"DocTalk/internal/modules/kb/domain/repository"
	"DocTalk/internal/modules/kb/domain/session"
	"DocTalk/internal/modules/kb/infrastructure/memoryindex"
	"DocTalk/internal/modules/kb/infrastructure/sessionmem"
	"DocTalk/pkg/xerr"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder 确定性假向量：同一文本恒定向量，可选整体失败
type fakeEmbedder struct {
	fail bool
}

func (f *fakeEmbedder) vector(text string) []float32 {
	var a, b float32
	for _, r := range text {
		a += float32(r % 7)
		b += float32(r % 13)
	}
	n := float32(len(text) + 1)
	return []float32{a/n + 1, b/n + 1}
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if f.fail {
		return nil, xerr.NewEmbeddingError(errors.New("quota exceeded"))
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, xerr.NewEmbeddingError(errors.New("quota exceeded"))
	}
	return f.vector(text), nil
}

// failingIndex 向量库整体不可用
type failingIndex struct{}

func (failingIndex) EnsureReady(ctx context.Context) error { return nil }
func (failingIndex) Upsert(ctx context.Context, ns string, entries []repository.VectorEntry) ([]string, error) {
	return nil, xerr.NewIndexError("upsert", errors.New("connection refused"))
}
func (failingIndex) Query(ctx context.Context, vec []float32, topK int, ns string) ([]repository.SearchHit, error) {
	return nil, xerr.NewIndexError("search", errors.New("connection refused"))
}
func (failingIndex) DeleteNamespace(ctx context.Context, ns string) error {
	return xerr.NewIndexError("delete", errors.New("connection refused"))
}

// fakeChatModel 脚本化生成模型。
// chunks 为流式输出的分片；failAfter >= 0 时在发出该数量的分片后报错。
type fakeChatModel struct {
	mu        sync.Mutex
	answer    string
	chunks    []string
	failAfter int

	lastPrompt []*schema.Message
}

func newFakeChatModel(answer string, chunks ...string) *fakeChatModel {
	return &fakeChatModel{answer: answer, chunks: chunks, failAfter: -1}
}

func (m *fakeChatModel) prompt() []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPrompt
}

func (m *fakeChatModel) record(in []*schema.Message) {
	m.mu.Lock()
	m.lastPrompt = in
	m.mu.Unlock()
}

func (m *fakeChatModel) Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.record(in)
	return &schema.Message{Role: schema.Assistant, Content: m.answer}, nil
}

func (m *fakeChatModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.record(in)
	reader, writer := schema.Pipe[*schema.Message](len(m.chunks) + 1)
	go func() {
		defer writer.Close()
		for i, c := range m.chunks {
			if m.failAfter >= 0 && i == m.failAfter {
				writer.Send(nil, errors.New("upstream closed"))
				return
			}
			writer.Send(&schema.Message{Role: schema.Assistant, Content: c}, nil)
		}
		if m.failAfter >= 0 && m.failAfter >= len(m.chunks) {
			writer.Send(nil, errors.New("upstream closed"))
		}
	}()
	return reader, nil
}

// gatedChatModel 发完 before 分片后阻塞，直到 gate 关闭才继续发 after 分片。
// 用来在流中间制造一个确定的暂停点。
type gatedChatModel struct {
	before []string
	after  []string
	gate   chan struct{}
}

func (m *gatedChatModel) Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return &schema.Message{Role: schema.Assistant, Content: strings.Join(append(m.before, m.after...), "")}, nil
}

func (m *gatedChatModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	reader, writer := schema.Pipe[*schema.Message](0)
	go func() {
		defer writer.Close()
		for _, c := range m.before {
			if writer.Send(&schema.Message{Role: schema.Assistant, Content: c}, nil) {
				return
			}
		}
		<-m.gate
		for _, c := range m.after {
			if writer.Send(&schema.Message{Role: schema.Assistant, Content: c}, nil) {
				return
			}
		}
	}()
	return reader, nil
}

func promptText(msgs []*schema.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func seedIndex(t *testing.T, idx *memoryindex.MemoryIndex, emb *fakeEmbedder, ns string, contents ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, idx.EnsureReady(ctx))
	entries := make([]repository.VectorEntry, 0, len(contents))
	for i, c := range contents {
		entries = append(entries, repository.VectorEntry{
			ID:         fmt.Sprintf("%s_%d", ns, i),
			Vector:     emb.vector(c),
			Namespace:  ns,
			ChunkIndex: i,
			Content:    c,
		})
	}
	_, err := idx.Upsert(ctx, ns, entries)
	require.NoError(t, err)
}

func TestAskUsesRetrievedContext(t *testing.T) {
	emb := &fakeEmbedder{}
	idx := memoryindex.NewMemoryIndex()
	sessions := sessionmem.NewMemoryStore()
	cm := newFakeChatModel("根据文档，答案是 42。")

	seedIndex(t, idx, emb, "doc-a", "生命、宇宙以及一切的答案是 42。", "另一段无关内容。")

	svc := NewQueryService(emb, idx, sessions, cm, 5, 12, "你是文档助手")
	answer, err := svc.Ask(context.Background(), "答案是什么？", "s1")
	require.NoError(t, err)
	assert.Equal(t, "根据文档，答案是 42。", answer)

	prompt := promptText(cm.prompt())
	assert.Contains(t, prompt, "生命、宇宙以及一切的答案是 42。")
	assert.Contains(t, prompt, "答案是什么？")

	turns, err := sessions.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, session.RoleUser, turns[0].Role)
	assert.Equal(t, "答案是什么？", turns[0].Content)
	assert.Equal(t, session.RoleAssistant, turns[1].Role)
	assert.Equal(t, "根据文档，答案是 42。", turns[1].Content)
}

func TestAskJoinsChunksWithDelimiter(t *testing.T) {
	emb := &fakeEmbedder{}
	idx := memoryindex.NewMemoryIndex()
	cm := newFakeChatModel("ok")

	seedIndex(t, idx, emb, "doc-a", "片段甲", "片段乙")

	svc := NewQueryService(emb, idx, sessionmem.NewMemoryStore(), cm, 5, 12, "")
	_, err := svc.Ask(context.Background(), "问", "")
	require.NoError(t, err)

	prompt := promptText(cm.prompt())
	assert.Contains(t, prompt, contextDelimiter)
}

func TestRetrievalDegradesToPlaceholder(t *testing.T) {
	emb := &fakeEmbedder{}
	cm := newFakeChatModel("没有找到相关内容。")

	svc := NewQueryService(emb, failingIndex{}, sessionmem.NewMemoryStore(), cm, 5, 12, "")
	answer, err := svc.Ask(context.Background(), "问题", "s1")
	require.NoError(t, err)
	assert.Equal(t, "没有找到相关内容。", answer)
	assert.Contains(t, promptText(cm.prompt()), noContextPlaceholder)
}

func TestEmptyIndexUsesPlaceholder(t *testing.T) {
	emb := &fakeEmbedder{}
	idx := memoryindex.NewMemoryIndex()
	cm := newFakeChatModel("ok")

	svc := NewQueryService(emb, idx, sessionmem.NewMemoryStore(), cm, 5, 12, "")
	_, err := svc.Ask(context.Background(), "问题", "")
	require.NoError(t, err)
	assert.Contains(t, promptText(cm.prompt()), noContextPlaceholder)
}

func TestEmbeddingFailureIsHardError(t *testing.T) {
	emb := &fakeEmbedder{fail: true}
	idx := memoryindex.NewMemoryIndex()
	cm := newFakeChatModel("不应被调用")

	svc := NewQueryService(emb, idx, sessionmem.NewMemoryStore(), cm, 5, 12, "")
	_, err := svc.Ask(context.Background(), "问题", "s1")
	require.Error(t, err)

	var embErr *xerr.EmbeddingError
	assert.True(t, errors.As(err, &embErr))
	assert.Nil(t, cm.prompt())
}

func TestHistoryTrimmedToRecentTurns(t *testing.T) {
	emb := &fakeEmbedder{}
	idx := memoryindex.NewMemoryIndex()
	sessions := sessionmem.NewMemoryStore()
	cm := newFakeChatModel("ok")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, sessions.Append(ctx, "s1",
			session.Turn{Role: session.RoleUser, Content: fmt.Sprintf("旧问题%d", i)},
			session.Turn{Role: session.RoleAssistant, Content: fmt.Sprintf("旧回答%d", i)},
		))
	}

	svc := NewQueryService(emb, idx, sessions, cm, 5, 2, "")
	_, err := svc.Ask(ctx, "新问题", "s1")
	require.NoError(t, err)

	// system + 最近 2 条历史 + 本次提问
	msgs := cm.prompt()
	require.Len(t, msgs, 4)
	assert.Equal(t, "旧问题2", msgs[1].Content)
	assert.Equal(t, "旧回答2", msgs[2].Content)
	assert.Equal(t, "新问题", msgs[3].Content)
}

func TestAskStreamDeliversChunksThenComplete(t *testing.T) {
	emb := &fakeEmbedder{}
	idx := memoryindex.NewMemoryIndex()
	sessions := sessionmem.NewMemoryStore()
	cm := newFakeChatModel("", "答案", "是", " 42")

	svc := NewQueryService(emb, idx, sessions, cm, 5, 12, "")
	events, err := svc.AskStream(context.Background(), "问题", "s1")
	require.NoError(t, err)

	var chunks []string
	var completes, errs int
	finalAnswer := ""
	for ev := range events {
		switch ev.Event {
		case EventChunk:
			chunks = append(chunks, ev.Chunk)
		case EventComplete:
			completes++
			finalAnswer = ev.Answer
		case EventError:
			errs++
		}
	}

	assert.Equal(t, []string{"答案", "是", " 42"}, chunks)
	assert.Equal(t, 1, completes)
	assert.Zero(t, errs)
	assert.Equal(t, "答案是 42", finalAnswer)

	turns, err := sessions.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "答案是 42", turns[1].Content)
}

func TestAskStreamErrorMidStream(t *testing.T) {
	emb := &fakeEmbedder{}
	idx := memoryindex.NewMemoryIndex()
	sessions := sessionmem.NewMemoryStore()
	cm := newFakeChatModel("", "一", "二", "三")
	cm.failAfter = 2

	svc := NewQueryService(emb, idx, sessions, cm, 5, 12, "")
	events, err := svc.AskStream(context.Background(), "问题", "s1")
	require.NoError(t, err)

	var chunks []string
	var completes, errs int
	for ev := range events {
		switch ev.Event {
		case EventChunk:
			chunks = append(chunks, ev.Chunk)
		case EventComplete:
			completes++
		case EventError:
			errs++
		}
	}

	assert.Equal(t, []string{"一", "二"}, chunks)
	assert.Zero(t, completes)
	assert.Equal(t, 1, errs)

	// 半截回答不入会话历史
	turns, err := sessions.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestAskStreamAbandonsAnswerAfterCancel(t *testing.T) {
	sessions := sessionmem.NewMemoryStore()
	gate := make(chan struct{})
	cm := &gatedChatModel{before: []string{"前", "半"}, after: []string{"后", "半"}, gate: gate}

	svc := NewQueryService(&fakeEmbedder{}, memoryindex.NewMemoryIndex(), sessions, cm, 5, 12, "")
	ctx, cancel := context.WithCancel(context.Background())
	events, err := svc.AskStream(ctx, "问题", "s1")
	require.NoError(t, err)

	ev := <-events
	assert.Equal(t, EventChunk, ev.Event)
	assert.Equal(t, "前", ev.Chunk)
	ev = <-events
	assert.Equal(t, "半", ev.Chunk)

	// 调用方断开：先取消，再放行生成端剩余分片
	cancel()
	close(gate)

	var rest []StreamEvent
	for ev := range events {
		rest = append(rest, ev)
	}
	assert.Empty(t, rest, "取消后不应再收到任何事件")

	turns, err := sessions.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, turns, "半截回答不应写入会话历史")
}

func TestAskStreamRejectsEmptyQuestion(t *testing.T) {
	svc := NewQueryService(&fakeEmbedder{}, memoryindex.NewMemoryIndex(),
		sessionmem.NewMemoryStore(), newFakeChatModel("ok"), 5, 12, "")
	_, err := svc.AskStream(context.Background(), "   ", "s1")
	require.Error(t, err)
}

func TestClearHistory(t *testing.T) {
	sessions := sessionmem.NewMemoryStore()
	svc := NewQueryService(&fakeEmbedder{}, memoryindex.NewMemoryIndex(),
		sessions, newFakeChatModel("ok"), 5, 12, "")
	ctx := context.Background()

	cleared, err := svc.ClearHistory(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, cleared)

	require.NoError(t, sessions.Append(ctx, "s1", session.Turn{Role: session.RoleUser, Content: "问"}))
	cleared, err = svc.ClearHistory(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, cleared)
}
