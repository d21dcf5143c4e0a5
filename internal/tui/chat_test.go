package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wwwzy/BizAgent/internal/agent"
	"github.com/wwwzy/BizAgent/internal/ui"
)

type stubBackend struct{}

func (stubBackend) Run(_ context.Context, sessionID, request string) (agent.AgentState, error) {
	return agent.AgentState{SessionID: sessionID, Request: request, Report: "보고서", Phase: agent.PhaseDone}, nil
}

func (stubBackend) Load(context.Context, string) (agent.AgentState, error) {
	return agent.AgentState{}, agent.ErrSessionNotFound
}

func TestStreamPreviewKeepsRuneBoundary(t *testing.T) {
	full := "가나다"
	// 每个韩文字符 3 字节，位置 4 落在第二个字符中间
	assert.Equal(t, "가", streamPreview(full, 4))
	assert.Equal(t, full, streamPreview(full, 100))
	assert.Equal(t, "…", streamPreview(full, 1))
}

func TestBackendResultAppendsEvidenceAndReport(t *testing.T) {
	m := newChatModel(context.Background(), stubBackend{}, "s1", agent.AgentState{SessionID: "s1"}, ui.ChatOptions{ShowEvidence: true})
	m.thinking = true

	st := agent.AgentState{
		SessionID: "s1",
		PastSteps: []agent.PastStep{{Step: "[Tool: marketing_expert] q", Result: "r"}},
		Report:    "최종 보고서",
	}
	next, cmd := m.Update(backendResultMsg{state: st})
	got := next.(chatModel)

	assert.False(t, got.thinking)
	require.Len(t, got.messages, 2)
	assert.Equal(t, schema.Tool, got.messages[0].Role)
	assert.Contains(t, got.messages[0].Content, "[Tool: marketing_expert] q")
	assert.Equal(t, schema.Assistant, got.messages[1].Role)
	assert.Equal(t, "최종 보고서", got.messages[1].Content)
	assert.True(t, got.streaming)
	assert.NotNil(t, cmd)
}

func TestBackendErrorShowsResumeHint(t *testing.T) {
	m := newChatModel(context.Background(), stubBackend{}, "s1", agent.AgentState{}, ui.ChatOptions{})
	next, _ := m.Update(backendResultMsg{err: errors.New("boom")})
	got := next.(chatModel)

	require.Len(t, got.messages, 1)
	assert.Contains(t, got.messages[0].Content, "boom")
	assert.Contains(t, got.messages[0].Content, "bizagent resume s1")
}

func TestEnterSendsRequest(t *testing.T) {
	m := newChatModel(context.Background(), stubBackend{}, "s1", agent.AgentState{}, ui.ChatOptions{})
	m.input.SetValue("매출 분석")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	got := next.(chatModel)

	assert.True(t, got.thinking)
	assert.Empty(t, got.input.Value())
	require.Len(t, got.messages, 1)
	assert.Equal(t, schema.User, got.messages[0].Role)
	assert.NotNil(t, cmd)

	// 上一轮未完成时忽略新的输入
	got.input.SetValue("또 다른 질문")
	again, _ := got.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Len(t, again.(chatModel).messages, 1)
}
