package agent

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound 表示恢复的会话没有快照。
var ErrSessionNotFound = errors.New("session not found")

// 执行器写入证据的固定文本。
const (
	evidenceBadFormat   = "오류: 계획 형식이 잘못되었습니다."
	evidenceUnknownTool = "오류: 알 수 없는 도구입니다."
	evidenceToolError   = "도구 실행 중 오류 발생: %v"
)

// StepFormatError 表示计划行无法解析。执行器把它转换为证据，不向上传播。
type StepFormatError struct {
	Line   string
	Reason string
}

func (e *StepFormatError) Error() string {
	return fmt.Sprintf("malformed plan step %q: %s", e.Line, e.Reason)
}

// ModelInvocationError 表示规划或汇总阶段的模型调用失败，会终止本次运行。
// 快照保留失败前的状态，可以用 Resume 继续。
type ModelInvocationError struct {
	Stage string
	Err   error
}

func (e *ModelInvocationError) Error() string {
	return fmt.Sprintf("%s model invocation failed: %v", e.Stage, e.Err)
}

func (e *ModelInvocationError) Unwrap() error { return e.Err }
