package rag

import "context"

// ToolName 是知识库专家在工具注册表中的名字。
const ToolName = "marketing_expert"

// Tool 把 Engine 暴露为执行器可调用的工具。
type Tool struct {
	engine *Engine
}

func NewTool(engine *Engine) *Tool {
	return &Tool{engine: engine}
}

func (t *Tool) Name() string { return ToolName }

func (t *Tool) Description() string {
	return "내부 마케팅 문서(지식 창고)를 검색해 출처가 표시된 근거 기반 아이디어와 사례를 제시합니다."
}

func (t *Tool) Invoke(ctx context.Context, query string) (string, error) {
	return t.engine.Answer(ctx, query)
}
