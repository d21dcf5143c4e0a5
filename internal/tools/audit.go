package tools

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/wwwzy/BizAgent/internal/storage"
	"go.uber.org/zap"
)

const auditTruncateLimit = 2048

// AuditedTool 在工具执行前后写入审计记录。审计写入失败只记日志，不影响工具调用。
type AuditedTool struct {
	Tool
	store   *storage.Storage
	traceID func(context.Context) string
	logger  *zap.Logger
}

// WithAudit 包装工具；store 为 nil 时原样返回。traceID 从 ctx 中取会话 ID。
func WithAudit(t Tool, store *storage.Storage, traceID func(context.Context) string, logger *zap.Logger) Tool {
	if store == nil {
		return t
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditedTool{Tool: t, store: store, traceID: traceID, logger: logger}
}

func (t *AuditedTool) Description() string { return describe(t.Tool) }

func (t *AuditedTool) Invoke(ctx context.Context, query string) (string, error) {
	var trace string
	if t.traceID != nil {
		trace = t.traceID(ctx)
	}

	record := &storage.AuditRecord{
		TraceID:    trace,
		Action:     t.Name(),
		ParamsJSON: truncate(query, auditTruncateLimit),
		Status:     "running",
		StartedAt:  time.Now().UTC(),
	}
	if err := t.store.InsertAuditRecord(ctx, record); err != nil {
		t.logger.Warn("insert audit record failed", zap.String("tool", t.Name()), zap.Error(err))
	}

	result, runErr := t.Tool.Invoke(ctx, query)

	finishedAt := time.Now().UTC()
	status := "success"
	var errMsg, resultText *string
	if runErr != nil {
		status = "failed"
		e := truncate(runErr.Error(), auditTruncateLimit)
		errMsg = &e
	} else {
		r := truncate(result, auditTruncateLimit)
		resultText = &r
	}

	// 只有插入成功拿到 ID 后才能更新
	if record.ID != 0 {
		// 工具超时后 ctx 可能已取消，审计更新不能再用它
		updateCtx := context.WithoutCancel(ctx)
		if err := t.store.UpdateAuditRecord(updateCtx, record.ID, storage.AuditUpdate{
			Status:       &status,
			ResultJSON:   resultText,
			ErrorMessage: errMsg,
			FinishedAt:   &finishedAt,
		}); err != nil {
			t.logger.Warn("update audit record failed", zap.Uint64("id", record.ID), zap.Error(err))
		}
	}

	return result, runErr
}

// truncate 按字节截断，但不会切断多字节字符。
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...(truncated)"
}
