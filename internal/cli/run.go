package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/wwwzy/BizAgent/internal/agent"
)

var (
	runSessionID    string
	runShowEvidence bool
	runRender       bool
)

var runCmd = &cobra.Command{
	Use:   "run [request]",
	Short: "对一个请求执行一次完整的 规划-执行-汇总",
	Long: `执行一次完整的咨询流程并输出最终报告。
指定 --session 时在该会话上继续（追加新一轮请求）；否则新建会话。
每个步骤之后都会写快照，中断后可以用 resume 继续。`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		sessionID := runSessionID
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", sessionID)

		st, err := a.agent.Run(ctx, sessionID, strings.Join(args, " "))
		if err != nil {
			return fmt.Errorf("执行失败（可用 bizagent resume %s 继续）: %w", sessionID, err)
		}
		return printResult(cmd.OutOrStdout(), st, runShowEvidence, runRender)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "从快照继续一个中断的会话",
	Long: `读取会话最近一次快照并从中断的阶段继续，已执行的步骤不会重跑。
已完成的会话直接输出已有报告。`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.agent.Resume(ctx, args[0])
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), st, runShowEvidence, runRender)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)

	runCmd.Flags().StringVar(&runSessionID, "session", "", "会话 ID（默认新建）")
	for _, c := range []*cobra.Command{runCmd, resumeCmd} {
		c.Flags().BoolVar(&runShowEvidence, "evidence", false, "在报告前输出收集到的证据")
		c.Flags().BoolVar(&runRender, "render", false, "以终端 Markdown 渲染报告")
	}
}

// signalContext 返回在 SIGINT/SIGTERM 时取消的 context。
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func printResult(w io.Writer, st agent.AgentState, showEvidence, render bool) error {
	if showEvidence {
		fmt.Fprintln(w, agent.FormatEvidence(st.PastSteps))
		fmt.Fprintln(w)
	}
	report := st.Report
	if render {
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err == nil {
			if out, err := r.Render(report); err == nil {
				report = out
			}
		}
	}
	_, err := fmt.Fprintln(w, strings.TrimRight(report, "\n"))
	return err
}
