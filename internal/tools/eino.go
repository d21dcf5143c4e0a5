package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
)

// einoTool 把 eino 的 InvokableTool 接入注册表，查询以 {"query": "..."} 传入。
type einoTool struct {
	name string
	desc string
	impl tool.InvokableTool
}

// FromEino 读取 eino 工具的 Info 并包装为 Tool。
func FromEino(ctx context.Context, t tool.InvokableTool) (Tool, error) {
	info, err := t.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("read tool info: %w", err)
	}
	if info == nil || info.Name == "" {
		return nil, fmt.Errorf("eino tool has no name")
	}
	return &einoTool{name: info.Name, desc: info.Desc, impl: t}, nil
}

func (t *einoTool) Name() string        { return t.name }
func (t *einoTool) Description() string { return t.desc }

func (t *einoTool) Invoke(ctx context.Context, query string) (string, error) {
	args, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return "", fmt.Errorf("encode arguments: %w", err)
	}
	return t.impl.InvokableRun(ctx, string(args))
}
