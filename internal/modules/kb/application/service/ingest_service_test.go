package service

import (
	"context"
	"strings"
	"testing"

	"DocTalk/internal/modules/kb/domain/document"
	"DocTalk/internal/modules/kb/domain/session"
	"DocTalk/internal/modules/kb/infrastructure/chunking"
	"DocTalk/internal/modules/kb/infrastructure/extract"
	"DocTalk/internal/modules/kb/infrastructure/filestore"
	"DocTalk/internal/modules/kb/infrastructure/memoryindex"
	"DocTalk/internal/modules/kb/infrastructure/persistence"
	"DocTalk/internal/modules/kb/infrastructure/sessionmem"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ingestFixture struct {
	svc     IngestService
	docRepo *persistence.MemoryDocumentRepository
	store   *filestore.LocalStore
	index   *memoryindex.MemoryIndex
	emb     *fakeEmbedder
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()
	store, err := filestore.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	f := &ingestFixture{
		docRepo: persistence.NewMemoryDocumentRepository(),
		store:   store,
		index:   memoryindex.NewMemoryIndex(),
		emb:     &fakeEmbedder{},
	}
	f.svc = NewIngestService(f.docRepo, f.store, extract.NewFileExtractor(),
		chunking.NewChunker(100, 20), f.emb, f.index)
	return f
}

func (f *ingestFixture) upload(t *testing.T, sourceID, name string, data []byte) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.Save(ctx, sourceID, data))
	require.NoError(t, f.docRepo.Save(ctx, &document.SourceDocument{
		SourceId:     sourceID,
		OriginalName: name,
		Status:       document.StatusUploaded,
	}))
}

func TestIngestEndToEnd(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	text := strings.Repeat("检索增强问答系统会先切分文档再做向量化。", 30)
	f.upload(t, "doc1.txt", "说明.txt", []byte(text))

	require.NoError(t, f.svc.Ingest(ctx, "doc1.txt"))

	doc, err := f.docRepo.Get(ctx, "doc1.txt")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, document.StatusReady, doc.Status)
	assert.Greater(t, doc.ChunkCount, 1)
	assert.Empty(t, doc.ErrorMsg)

	hits, err := f.index.Query(ctx, f.emb.vector("向量化"), 3, "doc1.txt")
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
	for _, h := range hits {
		assert.Equal(t, "doc1.txt", h.Namespace)
	}
}

func TestIngestUnsupportedFormatFails(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	f.upload(t, "doc1.bin", "dump.bin", []byte{0, 1, 2})

	require.Error(t, f.svc.Ingest(ctx, "doc1.bin"))

	doc, err := f.docRepo.Get(ctx, "doc1.bin")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, document.StatusFailed, doc.Status)
	assert.NotEmpty(t, doc.ErrorMsg)
}

func TestIngestEmbedFailureRollsBack(t *testing.T) {
	f := newIngestFixture(t)
	f.emb.fail = true
	ctx := context.Background()
	f.upload(t, "doc1.txt", "a.txt", []byte(strings.Repeat("内容。", 200)))

	require.Error(t, f.svc.Ingest(ctx, "doc1.txt"))

	doc, err := f.docRepo.Get(ctx, "doc1.txt")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, document.StatusFailed, doc.Status)

	// 失败文档在索引里不能留任何片段
	f.emb.fail = false
	hits, err := f.index.Query(ctx, f.emb.vector("内容"), 10, "doc1.txt")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIngestEmptyDocumentFails(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	f.upload(t, "empty.txt", "empty.txt", []byte(""))

	require.Error(t, f.svc.Ingest(ctx, "empty.txt"))
	doc, err := f.docRepo.Get(ctx, "empty.txt")
	require.NoError(t, err)
	assert.Equal(t, document.StatusFailed, doc.Status)
}

func TestIngestUnknownSource(t *testing.T) {
	f := newIngestFixture(t)
	require.Error(t, f.svc.Ingest(context.Background(), "nope.txt"))
}

// 摄取一份 2500 字的文档后流式提问，答案内容只出现在中间片段里
func TestIngestThenStreamedAskRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := filestore.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	docRepo := persistence.NewMemoryDocumentRepository()
	idx := memoryindex.NewMemoryIndex()
	emb := &fakeEmbedder{}
	ingest := NewIngestService(docRepo, store, extract.NewFileExtractor(),
		chunking.NewChunker(1000, 200), emb, idx)

	// 三段字符构成 2500 字；切成 3 片后「甲 200 + 乙 800」只出现在第二片
	text := strings.Repeat("甲", 1000) + strings.Repeat("乙", 1000) + strings.Repeat("丙", 500)
	require.NoError(t, store.Save(ctx, "long.txt", []byte(text)))
	require.NoError(t, docRepo.Save(ctx, &document.SourceDocument{
		SourceId:     "long.txt",
		OriginalName: "长文.txt",
		Status:       document.StatusUploaded,
	}))
	require.NoError(t, ingest.Ingest(ctx, "long.txt"))

	doc, err := docRepo.Get(ctx, "long.txt")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, document.StatusReady, doc.Status)
	assert.Equal(t, 3, doc.ChunkCount)

	// 问题的字符构成与中间片段一致，全局检索必须把它排在第一位
	question := strings.Repeat("甲", 2) + strings.Repeat("乙", 8)
	hits, err := idx.Query(ctx, emb.vector(question), 5, "")
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, 1, hits[0].ChunkIndex)
	assert.Equal(t, strings.Repeat("甲", 200)+strings.Repeat("乙", 800), hits[0].Content)

	sessions := sessionmem.NewMemoryStore()
	cm := newFakeChatModel("", "答案在", "第二个", "片段")
	svc := NewQueryService(emb, idx, sessions, cm, 5, 12, "")
	events, err := svc.AskStream(ctx, question, "s1")
	require.NoError(t, err)

	var fragments []string
	completes := 0
	finalAnswer := ""
	for ev := range events {
		switch ev.Event {
		case EventChunk:
			fragments = append(fragments, ev.Chunk)
		case EventComplete:
			completes++
			finalAnswer = ev.Answer
		case EventError:
			t.Fatalf("unexpected error event: %s", ev.ErrMsg)
		}
	}
	assert.Equal(t, 1, completes)
	assert.Equal(t, strings.Join(fragments, ""), finalAnswer)

	// 提示词必须带上中间片段的原文
	assert.Contains(t, promptText(cm.prompt()), hits[0].Content)

	// 会话里的最终回答等于全部分片的拼接
	turns, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, session.RoleUser, turns[0].Role)
	assert.Equal(t, question, turns[0].Content)
	assert.Equal(t, session.RoleAssistant, turns[1].Role)
	assert.Equal(t, finalAnswer, turns[1].Content)
}

func TestRemoveCascades(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	f.upload(t, "doc1.txt", "a.txt", []byte(strings.Repeat("第一篇文档的内容。", 50)))
	f.upload(t, "doc2.txt", "b.txt", []byte(strings.Repeat("第二篇文档的内容。", 50)))
	require.NoError(t, f.svc.Ingest(ctx, "doc1.txt"))
	require.NoError(t, f.svc.Ingest(ctx, "doc2.txt"))

	require.NoError(t, f.svc.Remove(ctx, "doc1.txt"))

	doc, err := f.docRepo.Get(ctx, "doc1.txt")
	require.NoError(t, err)
	assert.Nil(t, doc)

	hits, err := f.index.Query(ctx, f.emb.vector("文档"), 50, "")
	require.NoError(t, err)
	for _, h := range hits {
		assert.Equal(t, "doc2.txt", h.Namespace)
	}
	assert.NotEmpty(t, hits)
}
