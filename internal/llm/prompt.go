package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// NewPromptTemplate 创建单条用户消息的 FString 模板，变量写作 {name}。
// 模板正文里不能出现其他花括号。
func NewPromptTemplate(text string) prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString, schema.UserMessage(text))
}

// RenderPrompt 渲染模板并拼接为一段提示词文本。
func RenderPrompt(ctx context.Context, tpl prompt.ChatTemplate, vars map[string]any) (string, error) {
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("format prompt template failed: %w", err)
	}
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n\n"), nil
}
