package agent

import (
	"fmt"
	"strings"

	"github.com/wwwzy/BizAgent/internal/llm"
)

// plannerPrompt 的变量：{tools}、{max_steps}、{request}
const plannerPrompt = `당신은 소상공인에게 데이터에 기반한 맞춤형 해법을 제시하는 AI 전략 컨설턴트입니다.
아래 세 단계의 사고 순서를 따라 실행 계획을 세우세요.

**[컨설팅 단계]**
1. 상권·맥락 분석: 가게가 속한 상권의 고객층, 유동인구, 주요 업종을 파악해 상권 유형을 정의합니다.
2. 내부 진단: 1단계의 상권 특성과 비교해 가게 내부 데이터(매출, 고객, 재방문율 등)의 문제점을 찾습니다.
3. 해법 탐색: 진단된 문제를 해결할 성공 사례와 아이디어를 조사합니다.

**[사용 가능한 도구]**
{tools}

**[출력 규칙]**
- 각 줄은 번호 뒤에 [Tool: 도구이름] 형식으로 시작하고, 이어서 해당 도구에 보낼 질문을 적습니다.
- 계획은 최대 {max_steps}단계입니다.
- 서론, 요약, 설명 등 계획 목록 이외의 내용은 절대 쓰지 마세요.

**[사용자 요청]**
{request}

**실행 계획 목록:**
`

// synthesizerPrompt 的变量：{request}、{evidence}
const synthesizerPrompt = `당신은 수집된 근거 자료를 종합해 소상공인을 위한 최종 컨설팅 보고서를 작성하는 시니어 컨설턴트입니다.

**[작성 규칙]**
- 모든 주장에는 [수집된 근거 자료]에 있는 구체적인 수치나 사실을 직접 인용하세요.
- 근거가 없는 주장은 하지 말고, 수집된 자료가 부족하거나 오류뿐이라면 그 사실을 보고서에 분명히 적으세요.
- 각 주장 끝에 [근거: 출처] 형식으로 출처를 표기하세요.

**[사용자 요청]**
{request}

**[수집된 근거 자료]**
{evidence}

**[보고서 형식]**
### 📝 문제점 진단
### 💡 해결 방안 제안
### 📚 핵심 근거 자료

**최종 보고서:**
`

const noEvidence = "(수집된 근거 자료가 없습니다.)"

var (
	plannerTemplate     = llm.NewPromptTemplate(plannerPrompt)
	synthesizerTemplate = llm.NewPromptTemplate(synthesizerPrompt)
)

// FormatEvidence 按执行顺序把证据渲染为带标签的文本块。
func FormatEvidence(evidence []PastStep) string {
	if len(evidence) == 0 {
		return noEvidence
	}
	blocks := make([]string, 0, len(evidence))
	for _, e := range evidence {
		blocks = append(blocks, fmt.Sprintf("**실행 계획:** %s\n**수집된 근거:**\n%s", e.Step, e.Result))
	}
	return strings.Join(blocks, "\n\n")
}
