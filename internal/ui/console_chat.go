package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/wwwzy/BizAgent/internal/agent"
)

type ConsoleChatUI struct {
	In  io.Reader
	Out io.Writer
	// Markdown 为 true 时用 glamour 渲染报告。
	Markdown bool
}

func (u *ConsoleChatUI) Run(ctx context.Context, backend ChatBackend, opts ChatOptions) error {
	in := u.In
	if in == nil {
		return fmt.Errorf("console ui: In is nil")
	}
	out := u.Out
	if out == nil {
		return fmt.Errorf("console ui: Out is nil")
	}

	var renderer *glamour.TermRenderer
	if u.Markdown {
		if r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100)); err == nil {
			renderer = r
		}
	}

	sessionID := opts.SessionIDOrNew()
	state, err := InitialState(ctx, backend, sessionID)
	if err != nil {
		return err
	}

	reader := bufio.NewReader(in)
	fmt.Fprintf(out, "进入 BizAgent 对话模式（会话 %s）。输入 exit/quit 退出，/evidence 查看上一轮证据。\n", sessionID)
	if n := len(state.Messages); n > 0 {
		fmt.Fprintf(out, "已载入 %d 条历史消息。\n", n)
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "已退出。")
			return nil
		default:
		}

		fmt.Fprint(out, "你: ")
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("读取输入失败: %w", err)
		}
		eof := errors.Is(err, io.EOF)
		line = strings.TrimSpace(line)

		switch strings.ToLower(line) {
		case "":
			if eof {
				fmt.Fprintln(out, "已退出。")
				return nil
			}
			continue
		case "exit", "quit":
			fmt.Fprintln(out, "已退出。")
			return nil
		case "/evidence":
			fmt.Fprintln(out, agent.FormatEvidence(state.PastSteps))
			fmt.Fprintln(out)
			continue
		}

		next, runErr := backend.Run(ctx, sessionID, line)
		if runErr != nil {
			// 单轮失败不退出对话；快照保留在失败前的阶段
			fmt.Fprintf(out, "助手: 发生错误：%v\n\n", runErr)
		} else {
			state = next
			if opts.ShowEvidence {
				fmt.Fprintln(out, agent.FormatEvidence(state.PastSteps))
				fmt.Fprintln(out)
			}
			printReport(out, renderer, state.Report)
		}

		if eof {
			return nil
		}
	}
}

func printReport(w io.Writer, renderer *glamour.TermRenderer, report string) {
	content := strings.TrimSpace(report)
	if content == "" {
		fmt.Fprintln(w, "助手: (无最终回复)")
		fmt.Fprintln(w)
		return
	}
	if renderer != nil {
		if rendered, err := renderer.Render(content); err == nil {
			content = strings.TrimRight(rendered, "\n")
		}
	}
	fmt.Fprintf(w, "助手: %s\n\n", content)
}
