package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/wwwzy/BizAgent/internal/agent"
	"github.com/wwwzy/BizAgent/internal/checkpoint"
	"github.com/wwwzy/BizAgent/internal/storage"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "查看与管理会话快照",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出所有会话（最近更新在前）",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStores(cmd.Context(), func(ctx context.Context, s *stores) error {
			entries, err := s.sessions.List(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "Session\tPhase\tUpdated")
			fmt.Fprintln(w, "-------\t-----\t-------")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.SessionID, e.Phase, e.UpdatedAt.Local().Format(time.DateTime))
			}
			return w.Flush()
		})
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "显示会话的当前状态、证据与工具调用记录",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStores(cmd.Context(), func(ctx context.Context, s *stores) error {
			data, err := s.sessions.Get(ctx, args[0])
			if errors.Is(err, checkpoint.ErrNotFound) {
				return fmt.Errorf("%w: %s", agent.ErrSessionNotFound, args[0])
			}
			if err != nil {
				return err
			}
			st, err := agent.DecodeState(data)
			if err != nil {
				return err
			}
			audits, err := s.db.QueryAuditRecords(ctx, storage.AuditQuery{TraceID: st.SessionID})
			if err != nil {
				return err
			}
			return printSession(cmd.OutOrStdout(), st, audits)
		})
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "删除会话快照",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStores(cmd.Context(), func(ctx context.Context, s *stores) error {
			err := s.sessions.Delete(ctx, args[0])
			if errors.Is(err, checkpoint.ErrNotFound) {
				return fmt.Errorf("%w: %s", agent.ErrSessionNotFound, args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsDeleteCmd)
}

func withStores(ctx context.Context, fn func(context.Context, *stores) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

func printSession(w io.Writer, st agent.AgentState, audits []storage.AuditRecord) error {
	fmt.Fprintf(w, "Session:  %s\n", st.SessionID)
	fmt.Fprintf(w, "Phase:    %s\n", st.Phase)
	fmt.Fprintf(w, "Request:  %s\n", st.Request)
	fmt.Fprintf(w, "Messages: %d\n", len(st.Messages))

	if len(st.Plan) > 0 {
		fmt.Fprintln(w, "\nRemaining plan:")
		for i, step := range st.Plan {
			fmt.Fprintf(w, "  %d. %s\n", i+1, step)
		}
	}

	fmt.Fprintln(w, "\nEvidence:")
	fmt.Fprintln(w, agent.FormatEvidence(st.PastSteps))

	if len(audits) > 0 {
		fmt.Fprintln(w, "\nTool calls:")
		tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
		fmt.Fprintln(tw, "Tool\tStatus\tStarted\tDuration")
		for _, r := range audits {
			d := "-"
			if !r.FinishedAt.IsZero() {
				d = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Action, r.Status, r.StartedAt.Local().Format(time.DateTime), d)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if st.Report != "" {
		fmt.Fprintln(w, "\nReport:")
		fmt.Fprintln(w, st.Report)
	}
	return nil
}
