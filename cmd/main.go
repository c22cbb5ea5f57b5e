package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"mjml_stream/internal/logging"
)

var (
	logLevel   string
	logConsole bool
)

var rootCmd = &cobra.Command{
	Use:           "mjml-stream",
	Short:         "流式生成 MJML 邮件模板",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(logLevel, logConsole)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "日志级别")
	rootCmd.PersistentFlags().BoolVar(&logConsole, "log-console", true, "控制台格式日志")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newGenerateCommand())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("执行失败")
		os.Exit(1)
	}
}
