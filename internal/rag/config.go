package rag

import (
	"errors"
	"fmt"
	"strings"
)

// Config 对应配置文件中的 rag 段。
type Config struct {
	// DocsDir 为知识库文档目录，递归扫描。
	DocsDir string `mapstructure:"docs_dir"`
	// Extensions 为参与索引的文件扩展名（含点号，大小写不敏感）。
	Extensions []string `mapstructure:"extensions"`

	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`

	// TopK 为每次检索返回的片段数。
	TopK int `mapstructure:"top_k"`
	// Temperature 为生成回答时的采样温度。
	Temperature float32 `mapstructure:"temperature"`

	EmbedBatchSize int `mapstructure:"embed_batch_size"`
	IngestWorkers  int `mapstructure:"ingest_workers"`
}

// EmbeddingConfig 对应配置文件中的 embedding 段（OpenAI 兼容接口）。
type EmbeddingConfig struct {
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	// Workers 为并发请求数。
	Workers int `mapstructure:"workers"`
}

func DefaultConfig() Config {
	return Config{
		DocsDir:        "marketing_docs",
		Extensions:     []string{".pdf", ".txt", ".md", ".docx", ".xlsx"},
		ChunkSize:      1000,
		ChunkOverlap:   200,
		TopK:           4,
		Temperature:    0.7,
		EmbedBatchSize: 64,
		IngestWorkers:  4,
	}
}

// SetDefaults 为零值字段填充默认值。
func (c *Config) SetDefaults() {
	d := DefaultConfig()
	if c.DocsDir == "" {
		c.DocsDir = d.DocsDir
	}
	if len(c.Extensions) == 0 {
		c.Extensions = d.Extensions
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 0
	}
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = d.EmbedBatchSize
	}
	if c.IngestWorkers <= 0 {
		c.IngestWorkers = d.IngestWorkers
	}
}

func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return errors.New("rag.chunk_size must be positive")
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap (%d) must be smaller than rag.chunk_size (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	for _, ext := range c.Extensions {
		if _, ok := extractors[normalizeExt(ext)]; !ok {
			return fmt.Errorf("rag.extensions: unsupported extension %q", ext)
		}
	}
	return nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
