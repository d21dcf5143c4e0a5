package cli

import (
	"fmt"
	"os"

	"github.com/wwwzy/BizAgent/internal/config"
	"github.com/wwwzy/BizAgent/internal/logging"
	"go.uber.org/zap"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
)

// rootCmd 是没有子命令时调用的基础命令
var rootCmd = &cobra.Command{
	Use:   "bizagent",
	Short: "BizAgent 是面向小商户的数据驱动咨询代理",
	Long: `BizAgent 先把请求拆成一组工具调用计划，逐步执行收集证据，
再由模型汇总成引用证据的咨询报告。内置 marketing_expert 知识库工具，
其余工具通过配置以 HTTP 接口接入。`,
	SilenceUsage: true,
}

// Execute 将所有子命令添加到根命令并适当设置标志。
// 这由 main.main() 调用。它只需要对 rootCmd 调用一次。
func Execute() error {
	defer func() {
		if logger != nil {
			_ = logger.Sync()
		}
	}()
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件（默认按 ./config.yaml、$HOME/.bizagent/config.yaml 搜索）")
}

// initConfig 读取配置文件和环境变量（如果已设置），并初始化日志。
func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err = newLogger(cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(path string) (*zap.Logger, error) {
	if path == "" {
		return logging.New(cfg.LogLevel, cfg.LogFormat)
	}
	return logging.New(cfg.LogLevel, cfg.LogFormat, path)
}
