package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wwwzy/BizAgent/internal/agent"
)

type fakeBackend struct {
	states   map[string]agent.AgentState
	requests []string
	fail     bool
}

func (b *fakeBackend) Run(_ context.Context, sessionID, request string) (agent.AgentState, error) {
	b.requests = append(b.requests, sessionID+":"+request)
	if b.fail {
		return agent.AgentState{}, errors.New("model down")
	}
	st := b.states[sessionID]
	st.SessionID = sessionID
	st.Request = request
	st.Messages = append(st.Messages, schema.UserMessage(request), schema.AssistantMessage("보고서: "+request, nil))
	st.PastSteps = []agent.PastStep{{Step: "[Tool: marketing_expert] " + request, Result: "근거"}}
	st.Phase = agent.PhaseDone
	st.Report = "보고서: " + request
	if b.states == nil {
		b.states = map[string]agent.AgentState{}
	}
	b.states[sessionID] = st
	return st, nil
}

func (b *fakeBackend) Load(_ context.Context, sessionID string) (agent.AgentState, error) {
	st, ok := b.states[sessionID]
	if !ok {
		return agent.AgentState{}, agent.ErrSessionNotFound
	}
	return st, nil
}

func TestConsoleChatUI_Run(t *testing.T) {
	backend := &fakeBackend{}
	var out bytes.Buffer
	u := &ConsoleChatUI{In: strings.NewReader("주말 매출 분석\n\n/evidence\nexit\n"), Out: &out}

	err := u.Run(context.Background(), backend, ChatOptions{SessionID: "s1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"s1:주말 매출 분석"}, backend.requests)
	text := out.String()
	assert.Contains(t, text, "会话 s1")
	assert.Contains(t, text, "助手: 보고서: 주말 매출 분석")
	assert.Contains(t, text, "**실행 계획:** [Tool: marketing_expert] 주말 매출 분석")
	assert.Contains(t, text, "已退出。")
}

func TestConsoleChatUI_ErrorKeepsLoop(t *testing.T) {
	backend := &fakeBackend{fail: true}
	var out bytes.Buffer
	u := &ConsoleChatUI{In: strings.NewReader("a\nb\nquit\n"), Out: &out}

	require.NoError(t, u.Run(context.Background(), backend, ChatOptions{SessionID: "s"}))
	assert.Len(t, backend.requests, 2)
	assert.Equal(t, 2, strings.Count(out.String(), "发生错误：model down"))
}

func TestConsoleChatUI_ExistingSessionAndEOF(t *testing.T) {
	backend := &fakeBackend{states: map[string]agent.AgentState{
		"old": {SessionID: "old", Messages: []*schema.Message{schema.UserMessage("q"), schema.AssistantMessage("r", nil)}},
	}}
	var out bytes.Buffer
	// 最后一行没有换行符也要执行
	u := &ConsoleChatUI{In: strings.NewReader("다음 질문"), Out: &out}

	require.NoError(t, u.Run(context.Background(), backend, ChatOptions{SessionID: "old", ShowEvidence: true}))
	assert.Contains(t, out.String(), "已载入 2 条历史消息")
	assert.Contains(t, out.String(), "**수집된 근거:**")
	assert.Equal(t, []string{"old:다음 질문"}, backend.requests)
}

func TestConsoleChatUI_NilIO(t *testing.T) {
	assert.Error(t, (&ConsoleChatUI{Out: &bytes.Buffer{}}).Run(context.Background(), &fakeBackend{}, ChatOptions{}))
	assert.Error(t, (&ConsoleChatUI{In: strings.NewReader("")}).Run(context.Background(), &fakeBackend{}, ChatOptions{}))
}

func TestChatOptions_SessionIDOrNew(t *testing.T) {
	assert.Equal(t, "fixed", ChatOptions{SessionID: "fixed"}.SessionIDOrNew())
	a, b := ChatOptions{}.SessionIDOrNew(), ChatOptions{}.SessionIDOrNew()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
