package agent

import (
	"github.com/cloudwego/eino/schema"
)

// Phase 标记快照所处的阶段，决定恢复时从哪个节点进入。
type Phase string

const (
	PhasePlanning     Phase = "planning"
	PhaseExecuting    Phase = "executing"
	PhaseSynthesizing Phase = "synthesizing"
	PhaseDone         Phase = "done"
)

// PastStep 是一条证据：计划行与其执行结果（或错误文本）。
type PastStep struct {
	Step   string `json:"step"`
	Result string `json:"result"`
}

// AgentState 定义了在 Graph 中流转的状态
type AgentState struct {
	SessionID string `json:"session_id"`
	// Request 为开启当前计划的用户请求。
	Request string `json:"request"`

	// 对话消息，只追加；第一条是会话的首个用户请求
	Messages []*schema.Message `json:"messages"`
	// 剩余计划，从队首消费
	Plan []string `json:"plan"`
	// 已执行步骤及结果，只追加，顺序即执行顺序
	PastSteps []PastStep `json:"past_steps"`

	Phase  Phase  `json:"phase"`
	Report string `json:"report,omitempty"`
}

// Update 是各阶段返回的增量，由图节点合并进状态；阶段本身不修改状态。
type Update struct {
	// Plan 非 nil 时整体替换计划
	Plan *[]string
	// DropSteps 从计划队首移除的步骤数
	DropSteps int
	// 追加的证据与消息
	PastSteps []PastStep
	Messages  []*schema.Message
	// ResetPastSteps 在追加前清空证据（新一轮请求）
	ResetPastSteps bool

	Request string
	Phase   Phase
	Report  *string
}

// Apply 返回合并后的新状态。切片都会重新分配，不与旧状态共享底层数组。
func (s AgentState) Apply(u Update) AgentState {
	out := s

	plan := s.Plan
	if u.Plan != nil {
		plan = *u.Plan
	}
	drop := min(max(u.DropSteps, 0), len(plan))
	out.Plan = append([]string{}, plan[drop:]...)

	var past []PastStep
	if !u.ResetPastSteps {
		past = s.PastSteps
	}
	out.PastSteps = append(append([]PastStep{}, past...), u.PastSteps...)

	out.Messages = append(append([]*schema.Message{}, s.Messages...), u.Messages...)

	if u.Request != "" {
		out.Request = u.Request
	}
	if u.Phase != "" {
		out.Phase = u.Phase
	}
	if u.Report != nil {
		out.Report = *u.Report
	}
	return out
}

// Evidence 返回证据的副本。
func (s AgentState) Evidence() []PastStep {
	return append([]PastStep{}, s.PastSteps...)
}

// phaseAfter 根据剩余计划决定下一阶段。
func phaseAfter(remaining int) Phase {
	if remaining > 0 {
		return PhaseExecuting
	}
	return PhaseSynthesizing
}
