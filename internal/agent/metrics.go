package agent

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 步骤结果分类
const (
	outcomeSuccess     = "success"
	outcomeToolError   = "tool_error"
	outcomeUnknownTool = "unknown_tool"
	outcomeBadFormat   = "bad_format"
)

// 未注册的工具名来自模型输出，不作为标签值
const unknownToolLabel = "unknown"


// Metrics 收集循环的运行指标。nil *Metrics 可以安全调用，所有方法直接返回。
type Metrics struct {
	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	modelCalls   *prometheus.CounterVec
	runs         *prometheus.CounterVec
}

// NewMetrics 在 reg 上注册指标；reg 为 nil 时返回 nil（不采集）。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)
	return &Metrics{
		steps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bizagent",
			Name:      "plan_steps_total",
			Help:      "Executed plan steps by tool and outcome.",
		}, []string{"tool", "outcome"}),
		stepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bizagent",
			Name:      "plan_step_duration_seconds",
			Help:      "Tool invocation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"tool"}),
		modelCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bizagent",
			Name:      "model_calls_total",
			Help:      "Language model calls by stage and status.",
		}, []string{"stage", "status"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bizagent",
			Name:      "runs_total",
			Help:      "Agent runs by status.",
		}, []string{"status"}),
	}
}

func (m *Metrics) observeStep(tool, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	if tool == "" {
		tool = "none"
	}
	m.steps.WithLabelValues(tool, outcome).Inc()
	if outcome == outcomeSuccess || outcome == outcomeToolError {
		m.stepDuration.WithLabelValues(tool).Observe(d.Seconds())
	}
}

func (m *Metrics) observeModelCall(stage string, err error) {
	if m == nil {
		return
	}
	m.modelCalls.WithLabelValues(stage, status(err)).Inc()
}

func (m *Metrics) observeRun(err error) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
