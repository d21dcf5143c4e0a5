package ui

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wwwzy/BizAgent/internal/agent"
)

// ChatBackend 为交互界面所需的会话能力，*agent.Agent 满足该接口。
type ChatBackend interface {
	Run(ctx context.Context, sessionID, request string) (agent.AgentState, error)
	Load(ctx context.Context, sessionID string) (agent.AgentState, error)
}

type ChatUI interface {
	Run(ctx context.Context, backend ChatBackend, opts ChatOptions) error
}

type ChatOptions struct {
	// SessionID 为空时新建会话；指定已有会话时先展示其历史消息。
	SessionID string
	// ShowEvidence 在每轮报告前展示执行步骤与证据。
	ShowEvidence bool
}

// SessionIDOrNew 返回 opts 中的会话 ID，未指定时生成一个新的。
func (o ChatOptions) SessionIDOrNew() string {
	if o.SessionID != "" {
		return o.SessionID
	}
	return uuid.NewString()
}

// InitialState 读取会话已有的状态；会话不存在时返回只带 ID 的空状态。
func InitialState(ctx context.Context, backend ChatBackend, sessionID string) (agent.AgentState, error) {
	st, err := backend.Load(ctx, sessionID)
	if err == nil {
		return st, nil
	}
	if errors.Is(err, agent.ErrSessionNotFound) {
		return agent.AgentState{SessionID: sessionID}, nil
	}
	return agent.AgentState{}, err
}
