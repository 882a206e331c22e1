package chunking

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/recursive"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"
)

// Chunker 将文本切分为固定大小、带重叠的多个片段。
// 默认实现在窗口尾部就近回退到段落或句子边界，
// 并保证相邻片段之间的重叠长度恰好为 ChunkOverlap 个 rune，
// 因此按「去掉每个后续片段的前 ChunkOverlap 个 rune 再拼接」可以还原原文。
type Chunker struct {
	ChunkSize    int
	ChunkOverlap int
	useRecursive bool

	initOnce      sync.Once
	initErr       error
	recursiveImpl document.Transformer
}

// NewChunker 创建一个切片器，并设置切片大小与重叠长度
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 500
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Chunker{ChunkSize: size, ChunkOverlap: overlap}
}

// NewRecursiveChunker 创建按分隔符递归切分的变体。
// 该变体不保证精确重叠，只用于 ChunkDocuments 路径。
func NewRecursiveChunker(size, overlap int) *Chunker {
	c := NewChunker(size, overlap)
	c.useRecursive = true
	return c
}

// Chunk 基于 rune（字符）数量切分文本，确保中文等多字节字符不会被截断
func (c *Chunker) Chunk(text string) []string {
	if text == "" {
		return []string{}
	}

	runes := []rune(text)
	totalLen := len(runes)

	if totalLen <= c.ChunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for {
		end := start + c.ChunkSize
		if end >= totalLen {
			chunks = append(chunks, string(runes[start:totalLen]))
			break
		}

		cut := c.snapCut(runes, start, end)
		chunks = append(chunks, string(runes[start:cut]))

		// 下一片从 cut-overlap 开始，重叠区严格等于上一片的尾部
		start = cut - c.ChunkOverlap
	}

	return chunks
}

// snapCut 在 (minCut, end] 区间内从后往前寻找切分点。
// 优先空行，其次句末标点，再次空格；都找不到时在 end 处硬切。
// minCut 保证每一片至少推进一个 rune，切分不会原地打转。
func (c *Chunker) snapCut(runes []rune, start, end int) int {
	minCut := start + c.ChunkOverlap + 1
	if half := start + c.ChunkSize/2; half > minCut {
		minCut = half
	}
	if minCut >= end {
		return end
	}

	// 空行边界：切在第二个换行符之后
	for i := end - 1; i > minCut; i-- {
		if runes[i-1] == '\n' && runes[i] == '\n' {
			return i + 1
		}
	}
	for i := end - 1; i >= minCut; i-- {
		if isSentenceEnd(runes[i]) {
			return i + 1
		}
	}
	for i := end - 1; i >= minCut; i-- {
		if runes[i] == ' ' {
			return i + 1
		}
	}
	return end
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '。', '！', '？', '.', '!', '?', '\n':
		return true
	}
	return false
}

// ChunkDocuments 按文档切分并在元数据里写入 chunk_index
func (c *Chunker) ChunkDocuments(ctx context.Context, docs []*schema.Document) ([]*schema.Document, error) {
	if len(docs) == 0 {
		return []*schema.Document{}, nil
	}

	if !c.useRecursive {
		out := make([]*schema.Document, 0, len(docs))
		for _, d := range docs {
			if d == nil {
				continue
			}
			parts := c.Chunk(d.Content)
			for i, p := range parts {
				n := &schema.Document{Content: p, MetaData: map[string]any{}}
				for k, v := range d.MetaData {
					n.MetaData[k] = v
				}
				n.MetaData["chunk_index"] = i
				out = append(out, n)
			}
		}
		return out, nil
	}

	c.initOnce.Do(func() {
		impl, err := recursive.NewSplitter(ctx, &recursive.Config{
			ChunkSize:   c.ChunkSize,
			OverlapSize: c.ChunkOverlap,
			Separators:  []string{"\n\n", "\n", "。", "！", "？", "；", "，", " "},
			LenFunc: func(s string) int {
				return len([]rune(s))
			},
			KeepType: recursive.KeepTypeEnd,
		})
		if err != nil {
			c.initErr = err
			return
		}
		c.recursiveImpl = impl
	})
	if c.initErr != nil {
		return nil, c.initErr
	}
	if c.recursiveImpl == nil {
		return nil, fmt.Errorf("recursive splitter not initialized")
	}

	out := make([]*schema.Document, 0, len(docs))
	for _, d := range docs {
		if d == nil {
			continue
		}
		frags, err := c.recursiveImpl.Transform(ctx, []*schema.Document{{Content: d.Content}})
		if err != nil {
			return nil, err
		}
		for i, f := range frags {
			if f == nil {
				continue
			}
			n := &schema.Document{Content: f.Content, MetaData: map[string]any{}}
			for k, v := range d.MetaData {
				n.MetaData[k] = v
			}
			n.MetaData["chunk_index"] = i
			out = append(out, n)
		}
	}
	return out, nil
}
