package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wwwzy/BizAgent/internal/checkpoint"
	"github.com/wwwzy/BizAgent/internal/rag"
	"github.com/wwwzy/BizAgent/internal/storage"
	"github.com/wwwzy/BizAgent/internal/tools"
)

func TestLoad_Defaults(t *testing.T) {
	// 设置必填环境变量，绕过 Validate 检查
	t.Setenv("ARK_API_KEY", "dummy-key")
	t.Setenv("ARK_MODEL_ID", "dummy-model")
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	assert.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证默认值
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "bizagent.db", cfg.Storage.Path)
	assert.Equal(t, checkpoint.BackendSQLite, cfg.Checkpoint.Backend)
	assert.Equal(t, 4, cfg.RAG.TopK)
	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
	assert.Equal(t, rag.DefaultConfig().Extensions, cfg.RAG.Extensions)
	assert.Equal(t, 8, cfg.Agent.MaxPlanSteps)
	assert.True(t, cfg.Retention.Enabled)
	assert.Equal(t, 30*24*time.Hour, cfg.Retention.AuditKeepFor)

	// embedding 沿用 ark 的地址与密钥
	assert.Equal(t, defaultArkBaseURL, cfg.Embedding.BaseURL)
	assert.Equal(t, "dummy-key", cfg.Embedding.APIKey)
}

func TestLoad_ConfigFile(t *testing.T) {
	// 创建临时配置文件
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	content := []byte(`
log_level: "debug"
ark:
  api_key: "file-key"
  model_id: "file-model"
embedding:
  model: "embed-model"
  base_url: "http://embed.local/v1"
storage:
  path: "test.db"
  busy_timeout: "10s"
checkpoint:
  backend: redis
  redis:
    addr: "redis:6379"
    ttl: "1h"
rag:
  docs_dir: "docs"
  chunk_size: 500
  chunk_overlap: 50
tools:
  - name: web_searcher
    description: "웹 검색"
    url: "http://search.local/query"
    timeout: "30s"
  - name: data_analyzer
    url: "http://analyzer.local/run"
`)
	err := os.WriteFile(configFile, content, 0644)
	assert.NoError(t, err)

	// 从文件加载
	cfg, err := Load(configFile)
	assert.NoError(t, err)

	// 验证覆盖值
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "test.db", cfg.Storage.Path)
	assert.Equal(t, 10*time.Second, cfg.Storage.BusyTimeout)
	assert.Equal(t, "redis", cfg.Checkpoint.Backend)
	assert.Equal(t, "redis:6379", cfg.Checkpoint.Redis.Addr)
	assert.Equal(t, time.Hour, cfg.Checkpoint.Redis.TTL)
	assert.Equal(t, "docs", cfg.RAG.DocsDir)
	assert.Equal(t, 500, cfg.RAG.ChunkSize)
	assert.Equal(t, "http://embed.local/v1", cfg.Embedding.BaseURL)
	assert.Equal(t, "file-key", cfg.Embedding.APIKey)

	assert.Len(t, cfg.Tools, 2)
	assert.Equal(t, "web_searcher", cfg.Tools[0].Name)
	assert.Equal(t, 30*time.Second, cfg.Tools[0].Timeout)

	// 验证未覆盖的字段保持默认值
	assert.Equal(t, 4, cfg.RAG.TopK)
	assert.Equal(t, "bizagent:checkpoint:", cfg.Checkpoint.Redis.KeyPrefix)
}

func TestLoad_EnvOverride(t *testing.T) {
	// 设置环境变量
	t.Setenv("BIZAGENT_LOG_LEVEL", "warn")
	t.Setenv("BIZAGENT_STORAGE_PATH", "env.db")
	t.Setenv("BIZAGENT_RAG_TOP_K", "6")
	t.Setenv("BIZAGENT_AGENT_TOOL_TIMEOUT", "45s")
	// 必须设置必填项，否则 Validate 会失败
	t.Setenv("ARK_API_KEY", "test-key")
	t.Setenv("ARK_MODEL_ID", "test-model")
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	assert.NoError(t, err)

	// 验证环境变量覆盖
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "env.db", cfg.Storage.Path)
	assert.Equal(t, 6, cfg.RAG.TopK)
	assert.Equal(t, 45*time.Second, cfg.Agent.ToolTimeout)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// 验证几个关键默认值
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, storage.Config{Path: "bizagent.db", BusyTimeout: 5 * time.Second, EnableWAL: true}, cfg.Storage)
	assert.Equal(t, rag.DefaultConfig(), cfg.RAG)
}

func TestLoad_ValidateArk(t *testing.T) {
	// 确保没有环境变量干扰
	t.Setenv("ARK_API_KEY", "")
	t.Setenv("ARK_MODEL_ID", "")
	t.Chdir(t.TempDir())

	_, err := Load("")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ark.api_key is required")
}

func TestValidate(t *testing.T) {
	base := DefaultConfig()
	base.Ark.APIKey = "k"
	base.Ark.ModelID = "m"
	assert.NoError(t, base.Validate())

	cfg := base
	cfg.Checkpoint.Backend = "etcd"
	assert.Error(t, cfg.Validate())

	cfg = base
	cfg.RAG.ChunkOverlap = cfg.RAG.ChunkSize
	assert.Error(t, cfg.Validate())

	cfg = base
	cfg.Retention.AuditKeepLatest = -1
	assert.Error(t, cfg.Validate())

	cfg = base
	cfg.Tools = []tools.HTTPConfig{{Name: rag.ToolName, URL: "http://x"}}
	assert.ErrorContains(t, cfg.Validate(), "duplicate tool name")
}
