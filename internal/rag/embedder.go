package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/philippgille/chromem-go"
	"golang.org/x/sync/errgroup"
)

const defaultEmbedWorkers = 4

// chromemEmbedder 把 chromem 的单条 EmbeddingFunc 适配为 eino Embedder，批内并发请求。
type chromemEmbedder struct {
	fn      chromem.EmbeddingFunc
	workers int
}

// NewOpenAICompatEmbedder 通过 OpenAI 兼容接口（包括 Ark）生成向量。
func NewOpenAICompatEmbedder(cfg EmbeddingConfig) (embedding.Embedder, error) {
	if cfg.Model == "" {
		return nil, errors.New("embedding.model is required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("embedding.base_url is required")
	}
	return NewEmbedderFunc(chromem.NewEmbeddingFuncOpenAICompat(cfg.BaseURL, cfg.APIKey, cfg.Model, nil), cfg.Workers), nil
}

// NewEmbedderFunc 用任意 chromem.EmbeddingFunc 构造 Embedder。
func NewEmbedderFunc(fn chromem.EmbeddingFunc, workers int) embedding.Embedder {
	if workers <= 0 {
		workers = defaultEmbedWorkers
	}
	return &chromemEmbedder{fn: fn, workers: workers}
}

func (e *chromemEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.fn(gctx, text)
			if err != nil {
				return fmt.Errorf("embed text %d: %w", i, err)
			}
			out[i] = Float32ToFloat64(vec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func Float32ToFloat64(v []float32) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func Float64ToFloat32(v []float64) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
