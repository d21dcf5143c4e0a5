package agent

import (
	"context"

	"github.com/cloudwego/eino/schema"
	"github.com/wwwzy/BizAgent/internal/llm"
	"go.uber.org/zap"
)

const StageSynthesizer = "synthesizer"

// Synthesizer 根据全部证据一次性生成最终报告。输出原样透传，不做校验或重试。
type Synthesizer struct {
	gen     llm.Generator
	logger  *zap.Logger
	metrics *Metrics
}

func NewSynthesizer(gen llm.Generator, logger *zap.Logger, metrics *Metrics) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{gen: gen, logger: logger, metrics: metrics}
}

func (s *Synthesizer) Synthesize(ctx context.Context, request string, evidence []PastStep) (string, error) {
	prompt, err := llm.RenderPrompt(ctx, synthesizerTemplate, map[string]any{
		"request":  request,
		"evidence": FormatEvidence(evidence),
	})
	if err != nil {
		return "", err
	}
	report, err := s.gen.Generate(ctx, prompt)
	s.metrics.observeModelCall(StageSynthesizer, err)
	if err != nil {
		return "", &ModelInvocationError{Stage: StageSynthesizer, Err: err}
	}
	return report, nil
}

func (s *Synthesizer) Run(ctx context.Context, st AgentState) (Update, error) {
	s.logger.Info("synthesizing report", zap.String("session", st.SessionID), zap.Int("evidence", len(st.PastSteps)))
	report, err := s.Synthesize(ctx, st.Request, st.PastSteps)
	if err != nil {
		return Update{}, err
	}
	return Update{
		Messages: []*schema.Message{schema.AssistantMessage(report, nil)},
		Report:   &report,
		Phase:    PhaseDone,
	}, nil
}
