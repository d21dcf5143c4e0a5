package agent

import (
	"fmt"
	"strings"
)

const stepTag = "[Tool:"

// Step 是解析后的计划步骤。计划在状态里以文本行保存，执行前才解析为 Step。
type Step struct {
	Tool  string
	Query string
}

// String 输出规范的计划行：[Tool: name] query。
func (s Step) String() string {
	if s.Query == "" {
		return fmt.Sprintf("%s %s]", stepTag, s.Tool)
	}
	return fmt.Sprintf("%s %s] %s", stepTag, s.Tool, s.Query)
}

// ParseStep 从一行文本中解析工具名与查询。标签前的内容（例如编号 "1. "）会被忽略，
// 工具名取标签到第一个 "]" 之间的内容，其余部分为查询。两者都去除首尾空白。
func ParseStep(line string) (Step, error) {
	i := strings.Index(line, stepTag)
	if i < 0 {
		return Step{}, &StepFormatError{Line: line, Reason: "missing [Tool: tag"}
	}
	rest := line[i+len(stepTag):]
	end := strings.Index(rest, "]")
	if end < 0 {
		return Step{}, &StepFormatError{Line: line, Reason: "missing closing ]"}
	}
	name := strings.TrimSpace(rest[:end])
	if name == "" {
		return Step{}, &StepFormatError{Line: line, Reason: "empty tool name"}
	}
	return Step{Tool: name, Query: strings.TrimSpace(rest[end+1:])}, nil
}

// ParsePlan 逐行筛选模型输出，只保留包含步骤标签的行（去除首尾空白）。
// 标签是否完整留给执行器判断。
func ParsePlan(text string) []string {
	var plan []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.Contains(line, stepTag) {
			plan = append(plan, line)
		}
	}
	return plan
}
