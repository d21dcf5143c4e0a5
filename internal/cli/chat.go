package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/wwwzy/BizAgent/internal/tui"
	"github.com/wwwzy/BizAgent/internal/ui"
	"go.uber.org/zap"
)

const tuiLogFile = "bizagent.log"

var (
	chatUI          string
	chatSessionID   string
	chatEvidence    bool
	chatMarkdown    bool
	chatMetricsAddr string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "进入交互式对话模式",
	Long: `进入交互式对话，每条输入都在同一会话上执行一次完整的 规划-执行-汇总。
--session 指定已有会话时会载入其历史并继续。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		var uiImpl ui.ChatUI
		switch chatUI {
		case "console", "":
			uiImpl = &ui.ConsoleChatUI{In: os.Stdin, Out: os.Stdout, Markdown: chatMarkdown}
		case "tui":
			uiImpl = &tui.ChatUI{}
			// 全屏界面下日志不能写终端
			if cfg.LogFile == "" {
				l, err := newLogger(tuiLogFile)
				if err != nil {
					return err
				}
				logger = l
			}
		default:
			return fmt.Errorf("未知 ui 类型: %s (支持: console, tui)", chatUI)
		}

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		opts := ui.ChatOptions{SessionID: chatSessionID, ShowEvidence: chatEvidence}
		opts.SessionID = opts.SessionIDOrNew()

		if cfg.Retention.Enabled {
			// 交互期间当前会话可能长时间空闲，不能被清理
			a.pruner.Protect(opts.SessionID)
			if err := a.pruner.Start(ctx); err != nil {
				return err
			}
			defer func() {
				a.pruner.Stop()
				if err := a.pruner.Wait(); err != nil {
					logger.Warn("retention stopped with error", zap.Error(err))
				}
			}()
		}

		if chatMetricsAddr != "" {
			stop := serveMetrics(chatMetricsAddr, a.metrics)
			defer stop()
		}

		return uiImpl.Run(ctx, a.agent, opts)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatUI, "ui", "console", "交互界面类型: console/tui")
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "会话 ID（默认新建）")
	chatCmd.Flags().BoolVar(&chatEvidence, "evidence", false, "在报告前展示执行步骤与证据")
	chatCmd.Flags().BoolVar(&chatMarkdown, "markdown", true, "console 模式下以终端 Markdown 渲染报告")
	chatCmd.Flags().StringVar(&chatMetricsAddr, "metrics-addr", "", "Prometheus 指标监听地址，例如 :9090（为空不开启）")
}

// serveMetrics 在后台暴露 /metrics，返回关闭函数。
func serveMetrics(addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
