package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/wwwzy/BizAgent/internal/llm"
)

const (
	contextSeparator = "\n\n---\n\n"
	emptyContext     = "(검색된 참고 자료가 없습니다.)"
)

// answerPrompt 使用 FString 变量：{query}、{context}。
const answerPrompt = `당신은 아래 [참고 자료]에 근거해서만 답변하는 마케팅 전문가입니다.
자료에 없는 내용은 추측하지 말고, 사전 지식으로 보충하지 마세요.

**[질문]**
{query}

**[참고 자료]**
{context}

**[작성 규칙]**
- 질문에 대한 답을 [참고 자료]의 내용만으로 구성하세요.
- 자료를 인용한 문장 끝에는 [근거: 출처] 형식으로 해당 자료의 출처를 표기하세요.
- 참고 자료가 부족하면 그 사실을 분명히 밝히세요.

**[답변]**
`

var answerTemplate = llm.NewPromptTemplate(answerPrompt)

// FormatContext 按检索排名拼接上下文块，每段带上来源标识。
func FormatContext(hits []Hit) string {
	if len(hits) == 0 {
		return emptyContext
	}
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, fmt.Sprintf("출처: %s\n\n내용: %s", h.Chunk.Citation(), h.Chunk.Text))
	}
	return strings.Join(parts, contextSeparator)
}

func renderAnswerPrompt(ctx context.Context, query, contextBlock string) (string, error) {
	return llm.RenderPrompt(ctx, answerTemplate, map[string]any{
		"query":   query,
		"context": contextBlock,
	})
}
