// Package agent 实现 规划 -> 执行 -> 汇总 的咨询代理循环。
//
// 状态在每个节点之后写入快照（按会话 ID），进程重启后可以从中断处继续，
// 已执行的步骤不会重跑。
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/wwwzy/BizAgent/internal/checkpoint"
	"github.com/wwwzy/BizAgent/internal/llm"
	"github.com/wwwzy/BizAgent/internal/tools"
	"go.uber.org/zap"
)

const defaultMaxPlanSteps = 10

// Config 对应配置文件中的 agent 段。
type Config struct {
	MaxPlanSteps int `mapstructure:"max_plan_steps"`
	// ToolTimeout 为单次工具调用的超时，0 表示不限制（由组装方用 tools.WithTimeout 包装）。
	ToolTimeout time.Duration `mapstructure:"tool_timeout"`
}

// Agent 持有编译好的流程图与快照存储，可被多个会话并发使用；
// 每个会话的状态彼此独立。
type Agent struct {
	runnable compose.Runnable[AgentState, AgentState]
	store    checkpoint.Store
	logger   *zap.Logger
	metrics  *Metrics
}

type options struct {
	logger   *zap.Logger
	registry prometheus.Registerer
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics 在 reg 上注册运行指标。
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

func New(ctx context.Context, cfg Config, gen llm.Generator, registry *tools.Registry, store checkpoint.Store, opts ...Option) (*Agent, error) {
	if gen == nil {
		return nil, errors.New("agent: generator is required")
	}
	if registry == nil {
		return nil, errors.New("agent: tool registry is required")
	}
	if store == nil {
		store = checkpoint.NewMemoryStore()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if cfg.MaxPlanSteps <= 0 {
		cfg.MaxPlanSteps = defaultMaxPlanSteps
	}

	a := &Agent{
		store:   store,
		logger:  o.logger,
		metrics: NewMetrics(o.registry),
	}
	runnable, err := BuildGraph(ctx,
		NewPlanner(gen, registry, cfg.MaxPlanSteps, a.logger.Named(StagePlanner), a.metrics),
		NewExecutor(registry, a.logger.Named(StageExecutor), a.metrics),
		NewSynthesizer(gen, a.logger.Named(StageSynthesizer), a.metrics),
		cfg.MaxPlanSteps,
		a.saveHook,
	)
	if err != nil {
		return nil, err
	}
	a.runnable = runnable
	return a, nil
}

// Run 在会话上开启新一轮请求：追加用户消息，清空计划与证据后从规划开始。
func (a *Agent) Run(ctx context.Context, sessionID, request string) (AgentState, error) {
	if strings.TrimSpace(sessionID) == "" {
		return AgentState{}, errors.New("session id is required")
	}
	if strings.TrimSpace(request) == "" {
		return AgentState{}, errors.New("request is empty")
	}

	st, err := a.Load(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		st = AgentState{SessionID: sessionID}
	} else if err != nil {
		return AgentState{}, err
	}

	empty := []string{}
	noReport := ""
	st = st.Apply(Update{
		Plan:           &empty,
		ResetPastSteps: true,
		Messages:       []*schema.Message{schema.UserMessage(request)},
		Request:        request,
		Phase:          PhasePlanning,
		Report:         &noReport,
	})
	if err := a.save(ctx, st); err != nil {
		return AgentState{}, err
	}
	return a.invoke(ctx, st)
}

// Resume 从快照继续：执行中的计划从下一个未执行步骤开始，已完成的会话原样返回。
func (a *Agent) Resume(ctx context.Context, sessionID string) (AgentState, error) {
	st, err := a.Load(ctx, sessionID)
	if err != nil {
		return AgentState{}, err
	}
	if st.Phase == PhaseDone {
		return st, nil
	}
	a.logger.Info("resuming session",
		zap.String("session", sessionID),
		zap.String("phase", string(st.Phase)),
		zap.Int("remaining_steps", len(st.Plan)))
	return a.invoke(ctx, st)
}

// Load 读取会话快照。
func (a *Agent) Load(ctx context.Context, sessionID string) (AgentState, error) {
	data, err := a.store.Get(ctx, sessionID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return AgentState{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return AgentState{}, fmt.Errorf("load checkpoint: %w", err)
	}
	return DecodeState(data)
}

func (a *Agent) Sessions(ctx context.Context) ([]checkpoint.Entry, error) {
	return a.store.List(ctx)
}

func (a *Agent) DeleteSession(ctx context.Context, sessionID string) error {
	err := a.store.Delete(ctx, sessionID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return err
}

func (a *Agent) invoke(ctx context.Context, st AgentState) (AgentState, error) {
	ctx = WithSessionID(ctx, st.SessionID)
	out, err := a.runnable.Invoke(ctx, st)
	a.metrics.observeRun(err)
	if err != nil {
		a.logger.Error("agent run failed", zap.String("session", st.SessionID), zap.Error(err))
		return AgentState{}, fmt.Errorf("run session %s: %w", st.SessionID, err)
	}
	return out, nil
}

func (a *Agent) save(ctx context.Context, st AgentState) error {
	data, err := EncodeState(st)
	if err != nil {
		return err
	}
	if err := a.store.Put(ctx, st.SessionID, string(st.Phase), data); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// saveHook 在节点之后写快照。写入失败只记警告，不中断本次运行。
func (a *Agent) saveHook(ctx context.Context, node string, st AgentState) {
	if err := a.save(context.WithoutCancel(ctx), st); err != nil {
		a.logger.Warn("checkpoint save failed",
			zap.String("session", st.SessionID), zap.String("node", node), zap.Error(err))
	}
}

func EncodeState(st AgentState) ([]byte, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode agent state: %w", err)
	}
	return data, nil
}

func DecodeState(data []byte) (AgentState, error) {
	var st AgentState
	if err := json.Unmarshal(data, &st); err != nil {
		return AgentState{}, fmt.Errorf("decode agent state: %w", err)
	}
	return st, nil
}
