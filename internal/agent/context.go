package agent

import (
	"context"
)

type sessionIDKey struct{}

// WithSessionID 将会话 ID 注入 context，工具审计以它作为 TraceID。
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

// SessionIDFrom 从 context 获取会话 ID
func SessionIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey{}).(string); ok {
		return v
	}
	return ""
}
