package rag

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
)

const collectionName = "knowledge"

// Hit 是一次检索命中的片段与相似度（余弦）。
type Hit struct {
	Chunk Chunk
	Score float32
}

// Index 是构建完成后不再修改的向量索引。向量在外部算好后写入，
// 集合上的 EmbeddingFunc 永远不应被调用。
type Index struct {
	col *chromem.Collection
}

func precomputedOnly(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding function called but vectors should be pre-computed")
}

func newIndex(ctx context.Context, chunks []Chunk, vectors [][]float32) (*Index, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	db := chromem.NewDB()
	col, err := db.CreateCollection(collectionName, nil, precomputedOnly)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	if len(chunks) == 0 {
		return &Index{col: col}, nil
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:      c.ID,
			Content: c.Text,
			Metadata: map[string]string{
				"source": c.Source,
				"page":   strconv.Itoa(c.Page),
				"index":  strconv.Itoa(c.Index),
			},
			Embedding: vectors[i],
		}
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("add documents: %w", err)
	}
	return &Index{col: col}, nil
}

func (ix *Index) Count() int {
	if ix == nil || ix.col == nil {
		return 0
	}
	return ix.col.Count()
}

// Query 返回与 vec 最相似的至多 k 个片段，按相似度降序。
func (ix *Index) Query(ctx context.Context, vec []float32, k int) ([]Hit, error) {
	n := ix.Count()
	if n == 0 || k <= 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}
	res, err := ix.col.QueryEmbedding(ctx, vec, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	hits := make([]Hit, 0, len(res))
	for _, r := range res {
		page, _ := strconv.Atoi(r.Metadata["page"])
		idx, _ := strconv.Atoi(r.Metadata["index"])
		hits = append(hits, Hit{
			Chunk: Chunk{ID: r.ID, Source: r.Metadata["source"], Page: page, Index: idx, Text: r.Content},
			Score: r.Similarity,
		})
	}
	return hits, nil
}

func chunkID(n int) string {
	return "chunk-" + strconv.Itoa(n)
}

func citation(source string, page int) string {
	if page > 0 {
		return fmt.Sprintf("%s, %d페이지", source, page)
	}
	return source
}
