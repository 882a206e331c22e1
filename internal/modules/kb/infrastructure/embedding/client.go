package embedding

import (
	"context"
	"fmt"

	"DocTalk/internal/modules/kb/domain/repository"
	"DocTalk/pkg/xerr"

	"github.com/cloudwego/eino/components/embedding"
)

// Client 把 eino 的 Embedder 适配成领域层的 EmbeddingClient。
// 入库与查询分开走，方便底层实现按任务类型优化。
type Client struct {
	embedder embedding.Embedder
}

func NewClient(embedder embedding.Embedder) *Client {
	return &Client{embedder: embedder}
}

func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	raw, err := c.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, xerr.NewEmbeddingError(err)
	}
	if len(raw) != len(texts) {
		return nil, xerr.NewEmbeddingError(
			fmt.Errorf("embedding count mismatch: want %d got %d", len(texts), len(raw)))
	}
	out := make([][]float32, len(raw))
	for i, v := range raw {
		out[i] = toFloat32(v)
	}
	return out, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	raw, err := c.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, xerr.NewEmbeddingError(err)
	}
	if len(raw) != 1 {
		return nil, xerr.NewEmbeddingError(
			fmt.Errorf("embedding count mismatch: want 1 got %d", len(raw)))
	}
	return toFloat32(raw[0]), nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

var _ repository.EmbeddingClient = (*Client)(nil)
