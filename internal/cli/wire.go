package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/wwwzy/BizAgent/internal/agent"
	"github.com/wwwzy/BizAgent/internal/checkpoint"
	"github.com/wwwzy/BizAgent/internal/config"
	"github.com/wwwzy/BizAgent/internal/llm"
	"github.com/wwwzy/BizAgent/internal/rag"
	"github.com/wwwzy/BizAgent/internal/retention"
	"github.com/wwwzy/BizAgent/internal/storage"
	"github.com/wwwzy/BizAgent/internal/tools"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// stores 为不依赖模型的持久化部分，sessions/storage 命令只需要它。
type stores struct {
	db       *storage.Storage
	sessions checkpoint.Store
}

func openStores(ctx context.Context, c *config.Config) (*stores, error) {
	scfg := c.Storage
	if scfg.Logger == nil {
		scfg.Logger = gormlogger.Default.LogMode(gormlogger.Silent)
	}
	db, err := storage.Open(ctx, scfg)
	if err != nil {
		return nil, fmt.Errorf("打开存储失败: %w", err)
	}
	sessions, err := checkpoint.New(ctx, c.Checkpoint, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("初始化会话快照存储失败: %w", err)
	}
	return &stores{db: db, sessions: sessions}, nil
}

func (s *stores) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if c, ok := s.sessions.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

// app 为一次命令运行组装好的全部组件。
type app struct {
	*stores

	engine   *rag.Engine
	registry *tools.Registry
	agent    *agent.Agent
	metrics  *prometheus.Registry
	pruner   *retention.Pruner
}

func newApp(ctx context.Context, c *config.Config, log *zap.Logger) (*app, error) {
	st, err := openStores(ctx, c)
	if err != nil {
		return nil, err
	}
	a := &app{stores: st, metrics: prometheus.NewRegistry()}
	a.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := a.init(ctx, c, log); err != nil {
		_ = st.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, c *config.Config, log *zap.Logger) error {
	chatModel, err := llm.NewArkChatModel(ctx, c.Ark)
	if err != nil {
		return fmt.Errorf("初始化对话模型失败: %w", err)
	}

	a.engine, err = newEngine(ctx, c, log)
	if err != nil {
		return err
	}

	a.registry, err = newRegistry(c, a.engine, a.db, log)
	if err != nil {
		return err
	}

	a.agent, err = agent.New(ctx, c.Agent, llm.NewChatGenerator(chatModel), a.registry, a.sessions,
		agent.WithLogger(log.Named("agent")),
		agent.WithMetrics(a.metrics),
	)
	if err != nil {
		return fmt.Errorf("构建 Agent 失败: %w", err)
	}

	rcfg := c.Retention
	rlog := log.Named("retention")
	rcfg.OnError = func(err error) { rlog.Warn("retention pass failed", zap.Error(err)) }
	a.pruner, err = retention.NewPruner(rcfg, a.db, a.sessions, rlog)
	if err != nil {
		return err
	}
	return nil
}

// newEngine 构建知识库引擎。未配置 embedding.model 时返回 nil，marketing_expert 不可用。
func newEngine(ctx context.Context, c *config.Config, log *zap.Logger) (*rag.Engine, error) {
	if c.Embedding.Model == "" {
		log.Warn("embedding.model not set, marketing_expert tool is disabled")
		return nil, nil
	}
	embedder, err := rag.NewOpenAICompatEmbedder(c.Embedding)
	if err != nil {
		return nil, fmt.Errorf("初始化向量模型失败: %w", err)
	}
	answerModel, err := llm.NewArkChatModelWithTemperature(ctx, c.Ark, c.RAG.Temperature)
	if err != nil {
		return nil, fmt.Errorf("初始化知识库回答模型失败: %w", err)
	}

	ragLog := log.Named("rag")
	source := &rag.DirectorySource{
		Dir:        c.RAG.DocsDir,
		Extensions: c.RAG.Extensions,
		Workers:    c.RAG.IngestWorkers,
		Logger:     ragLog,
	}
	engine, err := rag.NewEngine(c.RAG, source, embedder, llm.NewChatGenerator(answerModel), rag.WithLogger(ragLog))
	if err != nil {
		return nil, fmt.Errorf("初始化知识库失败: %w", err)
	}
	return engine, nil
}

// newRegistry 注册内置知识库工具与配置中的 HTTP 工具，每个工具都套上超时与审计。
func newRegistry(c *config.Config, engine *rag.Engine, db *storage.Storage, log *zap.Logger) (*tools.Registry, error) {
	auditLog := log.Named("audit")
	wrap := func(t tools.Tool) tools.Tool {
		t = tools.WithTimeout(t, c.Agent.ToolTimeout)
		return tools.WithAudit(t, db, agent.SessionIDFrom, auditLog)
	}

	registry, err := tools.NewRegistry()
	if err != nil {
		return nil, err
	}
	if engine != nil {
		if err := registry.Register(wrap(rag.NewTool(engine))); err != nil {
			return nil, err
		}
	}
	for _, tc := range c.Tools {
		t, err := tools.NewHTTPTool(tc)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", tc.Name, err)
		}
		if err := registry.Register(wrap(t)); err != nil {
			return nil, err
		}
	}
	if len(registry.Names()) == 0 {
		log.Warn("no tools registered, every plan step will be recorded as an unknown tool")
	}
	return registry, nil
}
