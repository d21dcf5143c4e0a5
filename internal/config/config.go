package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/wwwzy/BizAgent/internal/agent"
	"github.com/wwwzy/BizAgent/internal/checkpoint"
	"github.com/wwwzy/BizAgent/internal/llm"
	"github.com/wwwzy/BizAgent/internal/rag"
	"github.com/wwwzy/BizAgent/internal/retention"
	"github.com/wwwzy/BizAgent/internal/storage"
	"github.com/wwwzy/BizAgent/internal/tools"
)

const defaultArkBaseURL = "https://ark.cn-beijing.volces.com/api/v3"

type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	// LogFile 非空时日志写入该文件而不是 stderr（tui 模式下未配置时使用 bizagent.log）
	LogFile string `mapstructure:"log_file"`

	Storage    storage.Config      `mapstructure:"storage"`
	Checkpoint checkpoint.Config   `mapstructure:"checkpoint"`
	Ark        llm.ArkConfig       `mapstructure:"ark"`
	Embedding  rag.EmbeddingConfig `mapstructure:"embedding"`
	RAG        rag.Config          `mapstructure:"rag"`
	Agent      agent.Config        `mapstructure:"agent"`
	Retention  retention.Config    `mapstructure:"retention"`
	// Tools 为以 HTTP 接口接入的外部工具
	Tools []tools.HTTPConfig `mapstructure:"tools"`
}

func Load(cfgFile string) (*Config, error) {
	// 1. 初始化 Viper
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		// 默认搜索路径
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.bizagent")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("BIZAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Viper 只反序列化它“知道”的 key（来自配置文件、Defaults 或显式 Bind），
	// 所以每个可以用环境变量覆盖的 key 都要有默认值。
	setDefaults(v)

	// 2. 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件未找到，使用默认值
	}

	// 3. 反序列化 (文件/环境变量 覆盖 默认值)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.applyDerived()

	// 4. 验证关键配置
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyDerived 填充依赖其他段的值：embedding 未单独配置时沿用 ark 的地址与密钥。
func (c *Config) applyDerived() {
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = c.Ark.BaseURL
	}
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = c.Ark.APIKey
	}
}

func (c *Config) Validate() error {
	// Ark 配置验证：必须存在
	if c.Ark.APIKey == "" {
		return fmt.Errorf("ark.api_key is required (or set ARK_API_KEY env var)")
	}
	if c.Ark.ModelID == "" {
		return fmt.Errorf("ark.model_id is required (or set ARK_MODEL_ID env var)")
	}

	switch c.Checkpoint.Backend {
	case checkpoint.BackendSQLite, checkpoint.BackendMemory:
	case checkpoint.BackendRedis:
		if c.Checkpoint.Redis.Addr == "" {
			return fmt.Errorf("checkpoint.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("checkpoint.backend must be one of sqlite, redis, memory (got %q)", c.Checkpoint.Backend)
	}

	if err := c.RAG.Validate(); err != nil {
		return err
	}
	if c.Agent.MaxPlanSteps <= 0 {
		return fmt.Errorf("agent.max_plan_steps must be positive")
	}
	if err := c.Retention.Validate(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Tools))
	for i, t := range c.Tools {
		if t.Name == "" || t.URL == "" {
			return fmt.Errorf("tools[%d]: name and url are required", i)
		}
		if t.Name == rag.ToolName || seen[t.Name] {
			return fmt.Errorf("tools[%d]: duplicate tool name %q", i, t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	// -------------------------------------------------------------------------
	// Global Defaults (全局默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("log_file", "")

	// -------------------------------------------------------------------------
	// Storage Defaults (存储默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.busy_timeout", d.Storage.BusyTimeout)
	v.SetDefault("storage.enable_wal", d.Storage.EnableWAL)

	// -------------------------------------------------------------------------
	// Checkpoint Defaults (会话快照默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("checkpoint.backend", d.Checkpoint.Backend)
	v.SetDefault("checkpoint.redis.addr", d.Checkpoint.Redis.Addr)
	v.SetDefault("checkpoint.redis.password", "")
	v.SetDefault("checkpoint.redis.db", 0)
	v.SetDefault("checkpoint.redis.key_prefix", d.Checkpoint.Redis.KeyPrefix)
	v.SetDefault("checkpoint.redis.ttl", d.Checkpoint.Redis.TTL)

	// -------------------------------------------------------------------------
	// Ark AI Defaults (AI 模型默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("ark.api_key", "")
	v.SetDefault("ark.model_id", "")
	v.SetDefault("ark.base_url", defaultArkBaseURL)
	v.SetDefault("ark.temperature", d.Ark.Temperature)

	v.BindEnv("ark.api_key", "ARK_API_KEY")
	v.BindEnv("ark.model_id", "ARK_MODEL_ID")
	v.BindEnv("ark.base_url", "ARK_BASE_URL")

	// -------------------------------------------------------------------------
	// Embedding Defaults (向量模型默认值，地址与密钥缺省沿用 ark)
	// -------------------------------------------------------------------------
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.workers", d.Embedding.Workers)

	v.BindEnv("embedding.model", "BIZAGENT_EMBEDDING_MODEL", "ARK_EMBEDDING_MODEL")

	// -------------------------------------------------------------------------
	// RAG Defaults (知识库默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("rag.docs_dir", d.RAG.DocsDir)
	v.SetDefault("rag.extensions", d.RAG.Extensions)
	v.SetDefault("rag.chunk_size", d.RAG.ChunkSize)
	v.SetDefault("rag.chunk_overlap", d.RAG.ChunkOverlap)
	v.SetDefault("rag.top_k", d.RAG.TopK)
	v.SetDefault("rag.temperature", d.RAG.Temperature)
	v.SetDefault("rag.embed_batch_size", d.RAG.EmbedBatchSize)
	v.SetDefault("rag.ingest_workers", d.RAG.IngestWorkers)

	// -------------------------------------------------------------------------
	// Agent Defaults (代理循环默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("agent.max_plan_steps", d.Agent.MaxPlanSteps)
	v.SetDefault("agent.tool_timeout", d.Agent.ToolTimeout)

	// -------------------------------------------------------------------------
	// Retention Defaults (审计与会话清理默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("retention.enabled", d.Retention.Enabled)
	v.SetDefault("retention.interval", d.Retention.Interval)
	v.SetDefault("retention.audit_keep_for", d.Retention.AuditKeepFor)
	v.SetDefault("retention.audit_keep_latest", d.Retention.AuditKeepLatest)
	v.SetDefault("retention.session_keep_for", d.Retention.SessionKeepFor)
}

func DefaultConfig() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "console",
		Storage: storage.Config{
			Path:        "bizagent.db",
			BusyTimeout: 5 * time.Second,
			EnableWAL:   true,
		},
		Checkpoint: checkpoint.Config{
			Backend: checkpoint.BackendSQLite,
			Redis: checkpoint.RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "bizagent:checkpoint:",
				TTL:       7 * 24 * time.Hour,
			},
		},
		Ark: llm.ArkConfig{
			BaseURL: defaultArkBaseURL,
		},
		Embedding: rag.EmbeddingConfig{Workers: 4},
		RAG:       rag.DefaultConfig(),
		Agent: agent.Config{
			MaxPlanSteps: 8,
			ToolTimeout:  2 * time.Minute,
		},
		Retention: retention.DefaultConfig(),
	}
}
