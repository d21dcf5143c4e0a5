package agent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
)

const (
	NodePlanner     = "planner_node"
	NodeExecutor    = "executor_node"
	NodeSynthesizer = "synthesizer_node"

	// 除执行器循环之外的节点与调度开销
	graphRunStepsOverhead = 10
)

// Stage 是图中的一个阶段：读状态，返回增量。
type Stage interface {
	Run(ctx context.Context, st AgentState) (Update, error)
}

// StateHook 在每个节点合并增量后调用，用于写快照。
type StateHook func(ctx context.Context, node string, st AgentState)

// BuildGraph 构建 规划 -> 执行（循环）-> 汇总 的流程图
//
// 入口根据 Phase 分支，使恢复的会话可以直接从执行器或汇总节点继续。
// 执行器每次消费一个步骤，因此最大运行步数只需覆盖计划上限加固定开销。
func BuildGraph(ctx context.Context, planner, executor, synthesizer Stage, maxPlanSteps int, hook StateHook) (compose.Runnable[AgentState, AgentState], error) {
	g := compose.NewGraph[AgentState, AgentState]()

	// 1. 添加节点
	nodes := []struct {
		key   string
		stage Stage
	}{
		{NodePlanner, planner},
		{NodeExecutor, executor},
		{NodeSynthesizer, synthesizer},
	}
	for _, n := range nodes {
		key, stage := n.key, n.stage
		err := g.AddLambdaNode(key, compose.InvokableLambda(func(ctx context.Context, st AgentState) (AgentState, error) {
			upd, err := stage.Run(ctx, st)
			if err != nil {
				return st, err
			}
			next := st.Apply(upd)
			if hook != nil {
				hook(ctx, key, next)
			}
			return next, nil
		}))
		if err != nil {
			return nil, fmt.Errorf("add node %s: %w", key, err)
		}
	}

	// 2. 入口分支：按阶段进入
	err := g.AddBranch(compose.START, compose.NewGraphBranch(entryRoute, map[string]bool{
		NodePlanner:     true,
		NodeExecutor:    true,
		NodeSynthesizer: true,
	}))
	if err != nil {
		return nil, fmt.Errorf("add entry branch: %w", err)
	}

	// 3. Planner / Executor -> Executor OR Synthesizer
	// 计划非空则继续执行，否则汇总
	for _, from := range []string{NodePlanner, NodeExecutor} {
		err := g.AddBranch(from, compose.NewGraphBranch(planRoute, map[string]bool{
			NodeExecutor:    true,
			NodeSynthesizer: true,
		}))
		if err != nil {
			return nil, fmt.Errorf("add branch from %s: %w", from, err)
		}
	}

	// 4. Synthesizer -> End
	if err := g.AddEdge(NodeSynthesizer, compose.END); err != nil {
		return nil, err
	}

	// 5. 编译 Graph
	runnable, err := g.Compile(ctx,
		compose.WithGraphName("bizagent"),
		compose.WithMaxRunSteps(maxPlanSteps+graphRunStepsOverhead),
	)
	if err != nil {
		return nil, fmt.Errorf("compile graph: %w", err)
	}
	return runnable, nil
}

func entryRoute(_ context.Context, st AgentState) (string, error) {
	switch st.Phase {
	case PhaseExecuting:
		if len(st.Plan) > 0 {
			return NodeExecutor, nil
		}
		return NodeSynthesizer, nil
	case PhaseSynthesizing:
		return NodeSynthesizer, nil
	case PhaseDone:
		return "", fmt.Errorf("session %s already finished", st.SessionID)
	default:
		return NodePlanner, nil
	}
}

func planRoute(_ context.Context, st AgentState) (string, error) {
	if len(st.Plan) > 0 {
		return NodeExecutor, nil
	}
	return NodeSynthesizer, nil
}
