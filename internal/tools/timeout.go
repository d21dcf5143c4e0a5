package tools

import (
	"context"
	"fmt"
	"time"
)

type timeoutTool struct {
	Tool
	d time.Duration
}

// WithTimeout 为单次调用设置超时。d <= 0 时原样返回。
// 工具需要自行响应 ctx 取消；超时后返回的错误会被执行器记为证据。
func WithTimeout(t Tool, d time.Duration) Tool {
	if d <= 0 {
		return t
	}
	return &timeoutTool{Tool: t, d: d}
}

func (t *timeoutTool) Invoke(ctx context.Context, query string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	type result struct {
		out string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		// 调用在独立 goroutine 中执行，panic 需要在这里转成错误，否则会击穿整个进程
		defer func() {
			if p := recover(); p != nil {
				ch <- result{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		out, err := t.Tool.Invoke(ctx, query)
		ch <- result{out, err}
	}()

	select {
	case r := <-ch:
		return r.out, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (t *timeoutTool) Description() string { return describe(t.Tool) }
