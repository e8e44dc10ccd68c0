package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rewardwatch/internal/config"
	"rewardwatch/internal/logger"
)

var (
	configPath string
	logLevel   string

	cfg *config.Config
	log logger.Logger
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "rewardwatch",
	Short: "rewardwatch - 开发者激励数据观察工具",
	Long: `rewardwatch 附加到浏览器页面，捕获激励查询接口的响应，
计算各应用的考核阶段、截止天数与激励金额，并输出汇总。`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		log, err = logger.New(logger.Options{
			Level:   cfg.Log.Level,
			Writers: cfg.Log.Writer,
			File:    cfg.Log.File,
		})
		if err != nil {
			return fmt.Errorf("初始化日志: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML 配置文件路径")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (debug, info, warn, error)")

	rootCmd.AddCommand(watchCmd, targetsCmd, decodeCmd, sampleCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
