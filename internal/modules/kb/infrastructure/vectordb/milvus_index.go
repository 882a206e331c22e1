package vectordb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"DocTalk/internal/modules/kb/domain/repository"
	"DocTalk/pkg/xerr"
	"DocTalk/pkg/zlog"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const upsertBatchSize = 64

// MilvusIndex 向量仓库的 Milvus 实现。
// 集合与索引在首次 EnsureReady 时惰性创建；
// 并发调用以及「集合已存在」都视为成功，保证幂等。
type MilvusIndex struct {
	cli         mclient.Client
	collection  string
	vectorDim   int
	metricType  entity.MetricType
	searchParam entity.SearchParam

	mu    sync.Mutex
	ready bool
}

func NewMilvusIndex(cli mclient.Client, collection string, vectorDim int, metric string) (*MilvusIndex, error) {
	if cli == nil {
		return nil, errors.New("milvus client is nil")
	}
	if strings.TrimSpace(collection) == "" {
		return nil, errors.New("collection is empty")
	}
	if vectorDim <= 0 {
		return nil, fmt.Errorf("invalid vectorDim: %d", vectorDim)
	}
	sp, err := entity.NewIndexAUTOINDEXSearchParam(1)
	if err != nil {
		return nil, err
	}
	return &MilvusIndex{
		cli:         cli,
		collection:  collection,
		vectorDim:   vectorDim,
		metricType:  parseMetric(metric),
		searchParam: sp,
	}, nil
}

func parseMetric(metric string) entity.MetricType {
	switch strings.ToUpper(strings.TrimSpace(metric)) {
	case "IP":
		return entity.IP
	case "L2":
		return entity.L2
	default:
		return entity.COSINE
	}
}

func (s *MilvusIndex) EnsureReady(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	has, err := s.cli.HasCollection(ctx, s.collection)
	if err != nil {
		return xerr.NewIndexError("describe", err)
	}

	if !has {
		schema := &entity.Schema{
			CollectionName: s.collection,
			Description:    "DocTalk document chunk vectors",
			Fields: []*entity.Field{
				{
					Name:       "id",
					DataType:   entity.FieldTypeVarChar,
					PrimaryKey: true,
					TypeParams: map[string]string{"max_length": "128"},
				},
				{
					Name:       "vector",
					DataType:   entity.FieldTypeFloatVector,
					TypeParams: map[string]string{entity.TypeParamDim: fmt.Sprintf("%d", s.vectorDim)},
				},
				{
					Name:       "namespace",
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "128"},
				},
				{
					Name:     "chunk_index",
					DataType: entity.FieldTypeInt64,
				},
				{
					Name:       "content",
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "8192"},
				},
				{
					Name:     "metadata",
					DataType: entity.FieldTypeJSON,
				},
			},
		}

		// 另一实例可能抢先建好了集合，already exist 视为成功
		if err := s.cli.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil && !isAlreadyExists(err) {
			return xerr.NewIndexError("create collection", err)
		}

		idx, err := entity.NewIndexAUTOINDEX(s.metricType)
		if err != nil {
			return xerr.NewIndexError("create index", err)
		}
		if err := s.cli.CreateIndex(ctx, s.collection, "vector", idx, false); err != nil && !isAlreadyExists(err) {
			return xerr.NewIndexError("create index", err)
		}
	}

	if err := s.cli.LoadCollection(ctx, s.collection, false); err != nil {
		return xerr.NewIndexError("load collection", err)
	}

	s.ready = true
	return nil
}

func isAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exist") || strings.Contains(msg, "duplicated")
}

// Upsert 分批写入。单批失败时记下这一批的 ID 并继续写后面的批次，
// 只有所有批次都失败才整体报错。
func (s *MilvusIndex) Upsert(ctx context.Context, namespace string, entries []repository.VectorEntry) ([]string, error) {
	if len(entries) == 0 {
		return []string{}, nil
	}

	var failed []string
	var lastErr error
	succeeded := 0

	for start := 0; start < len(entries); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(entries) {
			end = len(entries)
		}
		batch := entries[start:end]

		if err := s.upsertBatch(ctx, namespace, batch); err != nil {
			zlog.Error(fmt.Sprintf("milvus upsert batch failed: ns=%s offset=%d err=%v", namespace, start, err))
			for _, e := range batch {
				failed = append(failed, e.ID)
			}
			lastErr = err
			continue
		}
		succeeded += len(batch)
	}

	if succeeded == 0 && lastErr != nil {
		return nil, xerr.NewIndexError("upsert", lastErr)
	}
	return failed, nil
}

func (s *MilvusIndex) upsertBatch(ctx context.Context, namespace string, batch []repository.VectorEntry) error {
	ids := make([]string, 0, len(batch))
	vectors := make([][]float32, 0, len(batch))
	namespaces := make([]string, 0, len(batch))
	chunkIndexes := make([]int64, 0, len(batch))
	contents := make([]string, 0, len(batch))
	metas := make([][]byte, 0, len(batch))

	for _, e := range batch {
		if e.ID == "" {
			return errors.New("upsert entry missing ID")
		}
		if len(e.Vector) != s.vectorDim {
			return fmt.Errorf("vector dim mismatch for id=%s, got=%d want=%d", e.ID, len(e.Vector), s.vectorDim)
		}
		ns := e.Namespace
		if ns == "" {
			ns = namespace
		}
		meta := e.MetadataJSON
		if meta == "" {
			meta = "{}"
		}
		ids = append(ids, e.ID)
		vectors = append(vectors, e.Vector)
		namespaces = append(namespaces, ns)
		chunkIndexes = append(chunkIndexes, int64(e.ChunkIndex))
		contents = append(contents, e.Content)
		metas = append(metas, []byte(meta))
	}

	_, err := s.cli.Upsert(
		ctx,
		s.collection,
		"",
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnFloatVector("vector", s.vectorDim, vectors),
		entity.NewColumnVarChar("namespace", namespaces),
		entity.NewColumnInt64("chunk_index", chunkIndexes),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnJSONBytes("metadata", metas),
	)
	return err
}

func (s *MilvusIndex) Query(ctx context.Context, vector []float32, topK int, namespace string) ([]repository.SearchHit, error) {
	if len(vector) != s.vectorDim {
		return nil, xerr.NewIndexError("search",
			fmt.Errorf("vector dim mismatch, got=%d want=%d", len(vector), s.vectorDim))
	}
	if topK <= 0 {
		topK = 5
	}

	expr := ""
	if namespace != "" {
		expr = fmt.Sprintf(`namespace == "%s"`, escapeExpr(namespace))
	}

	res, err := s.cli.Search(
		ctx,
		s.collection,
		[]string{},
		expr,
		[]string{"namespace", "chunk_index", "content", "metadata"},
		[]entity.Vector{entity.FloatVector(vector)},
		"vector",
		s.metricType,
		topK,
		s.searchParam,
	)
	if err != nil {
		return nil, xerr.NewIndexError("search", err)
	}
	if len(res) == 0 {
		return []repository.SearchHit{}, nil
	}
	return parseSearchResult(res[0])
}

func (s *MilvusIndex) DeleteNamespace(ctx context.Context, namespace string) error {
	if namespace == "" {
		return xerr.NewIndexError("delete", errors.New("namespace is empty"))
	}
	expr := fmt.Sprintf(`namespace == "%s"`, escapeExpr(namespace))
	if err := s.cli.Delete(ctx, s.collection, "", expr); err != nil {
		return xerr.NewIndexError("delete", err)
	}
	return nil
}

func parseSearchResult(sr mclient.SearchResult) ([]repository.SearchHit, error) {
	if sr.Err != nil {
		return nil, xerr.NewIndexError("search", sr.Err)
	}
	hits := make([]repository.SearchHit, 0, sr.ResultCount)

	idCol := sr.IDs
	nsCol := columnByName(sr.Fields, "namespace")
	chunkIndexCol := columnByName(sr.Fields, "chunk_index")
	contentCol := columnByName(sr.Fields, "content")
	metaCol := columnByName(sr.Fields, "metadata")

	for i := 0; i < sr.ResultCount; i++ {
		id, _ := idCol.GetAsString(i)
		score := float32(0)
		if i < len(sr.Scores) {
			score = sr.Scores[i]
		}

		h := repository.SearchHit{ID: id, Score: score}
		if nsCol != nil {
			v, _ := nsCol.GetAsString(i)
			h.Namespace = v
		}
		if chunkIndexCol != nil {
			v, _ := chunkIndexCol.GetAsInt64(i)
			h.ChunkIndex = int(v)
		}
		if contentCol != nil {
			v, _ := contentCol.GetAsString(i)
			h.Content = v
		}
		if metaCol != nil {
			v, _ := metaCol.Get(i)
			if bs, ok := v.([]byte); ok {
				h.MetadataJSON = string(bs)
			}
		}
		hits = append(hits, h)
	}

	return hits, nil
}

func columnByName(cols mclient.ResultSet, name string) entity.Column {
	for _, c := range cols {
		if c != nil && c.Name() == name {
			return c
		}
	}
	return nil
}

func escapeExpr(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

var _ repository.VectorStore = (*MilvusIndex)(nil)
