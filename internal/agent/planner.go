package agent

import (
	"context"
	"strconv"

	"github.com/wwwzy/BizAgent/internal/llm"
	"github.com/wwwzy/BizAgent/internal/tools"
	"go.uber.org/zap"
)

const StagePlanner = "planner"

// Planner 通过一次模型调用把用户请求拆成计划行。
type Planner struct {
	gen      llm.Generator
	registry *tools.Registry
	maxSteps int
	logger   *zap.Logger
	metrics  *Metrics
}

func NewPlanner(gen llm.Generator, registry *tools.Registry, maxSteps int, logger *zap.Logger, metrics *Metrics) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{gen: gen, registry: registry, maxSteps: maxSteps, logger: logger, metrics: metrics}
}

// Plan 返回计划行。模型输出中没有合法行时返回空计划（不是错误），随后直接进入汇总。
func (p *Planner) Plan(ctx context.Context, request string) ([]string, error) {
	prompt, err := llm.RenderPrompt(ctx, plannerTemplate, map[string]any{
		"tools":     p.registry.Describe(),
		"max_steps": strconv.Itoa(p.maxSteps),
		"request":   request,
	})
	if err != nil {
		return nil, err
	}

	out, err := p.gen.Generate(ctx, prompt)
	p.metrics.observeModelCall(StagePlanner, err)
	if err != nil {
		return nil, &ModelInvocationError{Stage: StagePlanner, Err: err}
	}

	plan := ParsePlan(out)
	if p.maxSteps > 0 && len(plan) > p.maxSteps {
		p.logger.Warn("plan exceeds max steps, extra steps dropped",
			zap.Int("steps", len(plan)), zap.Int("max", p.maxSteps))
		plan = plan[:p.maxSteps]
	}
	if len(plan) == 0 {
		p.logger.Warn("planner produced no valid steps, going straight to synthesis")
	}
	return plan, nil
}

// Run 是图节点使用的入口：生成计划并替换状态中的计划。
func (p *Planner) Run(ctx context.Context, st AgentState) (Update, error) {
	plan, err := p.Plan(ctx, st.Request)
	if err != nil {
		return Update{}, err
	}
	p.logger.Info("plan ready", zap.String("session", st.SessionID), zap.Strings("plan", plan))
	return Update{
		Plan:           &plan,
		ResetPastSteps: true,
		Phase:          phaseAfter(len(plan)),
	}, nil
}
