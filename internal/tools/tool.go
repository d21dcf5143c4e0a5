// Package tools 定义执行器调用的工具契约与注册表，以及几种适配器和包装器。
package tools

import "context"

// Tool 是执行器可调用的能力：输入自然语言查询，输出自由文本。
// 结果对调用方不透明，也不保证可信。
type Tool interface {
	Name() string
	Invoke(ctx context.Context, query string) (string, error)
}

// Describer 是可选接口，描述会出现在规划提示词的工具列表里。
type Describer interface {
	Description() string
}

// Func 把一个函数包装成 Tool。
type Func struct {
	ToolName string
	Desc     string
	Fn       func(ctx context.Context, query string) (string, error)
}

func (f Func) Name() string        { return f.ToolName }
func (f Func) Description() string { return f.Desc }

func (f Func) Invoke(ctx context.Context, query string) (string, error) {
	return f.Fn(ctx, query)
}

// describe 返回工具描述，未实现 Describer 时为空。
func describe(t Tool) string {
	if d, ok := t.(Describer); ok {
		return d.Description()
	}
	return ""
}
