package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/wwwzy/BizAgent/internal/tools"
	"go.uber.org/zap"
)

const StageExecutor = "executor"

// Executor 每次只执行计划队首的一个步骤。无论成功与否，该步骤都会出队并留下一条证据，
// 工具的失败（包括 panic）不会中断循环。运行被取消时例外：步骤保留在队首，等待恢复后重新执行。
type Executor struct {
	registry *tools.Registry
	logger   *zap.Logger
	metrics  *Metrics
}

func NewExecutor(registry *tools.Registry, logger *zap.Logger, metrics *Metrics) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{registry: registry, logger: logger, metrics: metrics}
}

// Execute 执行一行计划并返回证据文本。
func (e *Executor) Execute(ctx context.Context, line string) string {
	step, err := ParseStep(line)
	if err != nil {
		e.logger.Warn("malformed plan step", zap.String("step", line), zap.Error(err))
		e.metrics.observeStep("", outcomeBadFormat, 0)
		return evidenceBadFormat
	}

	tool, ok := e.registry.Lookup(step.Tool)
	if !ok {
		e.logger.Warn("unknown tool in plan", zap.String("tool", step.Tool))
		e.metrics.observeStep(unknownToolLabel, outcomeUnknownTool, 0)
		return evidenceUnknownTool
	}

	e.logger.Info("executing step", zap.String("tool", step.Tool), zap.String("query", step.Query))
	start := time.Now()
	result, err := invokeTool(ctx, tool, step.Query)
	took := time.Since(start)
	if err != nil {
		e.logger.Warn("tool invocation failed", zap.String("tool", step.Tool), zap.Duration("took", took), zap.Error(err))
		e.metrics.observeStep(step.Tool, outcomeToolError, took)
		return fmt.Sprintf(evidenceToolError, err)
	}
	e.metrics.observeStep(step.Tool, outcomeSuccess, took)
	return result
}

// Run 消费计划队首并追加一条证据。计划为空时不做任何事，直接进入汇总。
func (e *Executor) Run(ctx context.Context, st AgentState) (Update, error) {
	if len(st.Plan) == 0 {
		return Update{Phase: PhaseSynthesizing}, nil
	}
	line := st.Plan[0]
	result := e.Execute(ctx, line)
	if err := ctx.Err(); err != nil {
		e.logger.Warn("step interrupted, keeping it for resume", zap.String("step", line), zap.Error(err))
		return Update{}, fmt.Errorf("step %q interrupted: %w", line, err)
	}
	return Update{
		DropSteps: 1,
		PastSteps: []PastStep{{Step: line, Result: result}},
		Phase:     phaseAfter(len(st.Plan) - 1),
	}, nil
}

func invokeTool(ctx context.Context, t tools.Tool, query string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Invoke(ctx, query)
}
