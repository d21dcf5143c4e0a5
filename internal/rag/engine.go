// Package rag 实现基于本地文档的检索增强生成：抽取、切分、向量化、检索与有据回答。
package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/wwwzy/BizAgent/internal/llm"
	"go.uber.org/zap"
)

// Stats 描述当前索引。
type Stats struct {
	Built     bool
	Documents int
	Chunks    int
	BuiltAt   time.Time
	Duration  time.Duration
}

// Engine 持有向量索引。索引在首次使用时构建且只构建一次（构建失败不会被记住，下次调用重试），
// 之后只读共享，除非显式调用 Rebuild。
type Engine struct {
	cfg      Config
	source   Source
	embedder embedding.Embedder
	gen      llm.Generator
	splitter *Splitter
	logger   *zap.Logger

	mu    sync.Mutex
	index *Index
	stats Stats
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEngine(cfg Config, source Source, embedder embedding.Embedder, gen llm.Generator, opts ...Option) (*Engine, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, errors.New("rag: document source is required")
	}
	if embedder == nil {
		return nil, errors.New("rag: embedder is required")
	}
	if gen == nil {
		return nil, errors.New("rag: generator is required")
	}
	e := &Engine{
		cfg:      cfg,
		source:   source,
		embedder: embedder,
		gen:      gen,
		splitter: NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Build 预热索引；已构建时不做任何事。
func (e *Engine) Build(ctx context.Context) error {
	_, err := e.ensureIndex(ctx)
	return err
}

// Rebuild 重新抽取并索引全部文档。失败时保留旧索引。
func (e *Engine) Rebuild(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buildLocked(ctx)
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *Engine) ensureIndex(ctx context.Context) (*Index, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.index != nil {
		return e.index, nil
	}
	if err := e.buildLocked(ctx); err != nil {
		return nil, err
	}
	return e.index, nil
}

func (e *Engine) buildLocked(ctx context.Context) error {
	start := time.Now()
	e.logger.Info("building knowledge index")

	docs, err := e.source.Documents(ctx)
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}
	chunks, err := e.splitter.SplitDocuments(docs)
	if err != nil {
		return err
	}

	vectors, err := e.embedChunks(ctx, chunks)
	if err != nil {
		return err
	}
	index, err := newIndex(ctx, chunks, vectors)
	if err != nil {
		return err
	}

	e.index = index
	e.stats = Stats{
		Built:     true,
		Documents: len(docs),
		Chunks:    len(chunks),
		BuiltAt:   time.Now().UTC(),
		Duration:  time.Since(start),
	}
	e.logger.Info("knowledge index ready",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)),
		zap.Duration("took", e.stats.Duration))
	if len(chunks) == 0 {
		e.logger.Warn("knowledge index is empty, answers will not be grounded", zap.String("dir", e.cfg.DocsDir))
	}
	return nil
}

func (e *Engine) embedChunks(ctx context.Context, chunks []Chunk) ([][]float32, error) {
	out := make([][]float32, 0, len(chunks))
	batch := e.cfg.EmbedBatchSize
	for start := 0; start < len(chunks); start += batch {
		end := min(start+batch, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		vecs, err := e.embedder.EmbedStrings(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
		}
		for _, v := range vecs {
			out = append(out, Float64ToFloat32(v))
		}
	}
	return out, nil
}

// Retrieve 返回与查询最相关的 TopK 个片段，按相似度降序。索引为空时返回空结果。
func (e *Engine) Retrieve(ctx context.Context, query string) ([]Hit, error) {
	index, err := e.ensureIndex(ctx)
	if err != nil {
		return nil, err
	}
	if index.Count() == 0 {
		return nil, nil
	}
	vecs, err := e.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for query", len(vecs))
	}
	return index.Query(ctx, Float64ToFloat32(vecs[0]), e.cfg.TopK)
}

// Answer 检索上下文并让模型只依据上下文作答，原样返回模型输出。
// 引用是否真实出自上下文不做校验。
func (e *Engine) Answer(ctx context.Context, query string) (string, error) {
	hits, err := e.Retrieve(ctx, query)
	if err != nil {
		return "", err
	}
	e.logger.Debug("retrieved context", zap.String("query", query), zap.Int("hits", len(hits)))

	prompt, err := renderAnswerPrompt(ctx, query, FormatContext(hits))
	if err != nil {
		return "", err
	}
	answer, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return answer, nil
}
