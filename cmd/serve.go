package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mjml_stream/internal/config"
	"mjml_stream/internal/logging"
	"mjml_stream/internal/servers"
)

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动生成中继服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return errors.Wrap(err, "加载配置失败")
			}
			// 命令行未显式指定时以配置文件为准
			if !cmd.Flags().Changed("log-level") && !cmd.Flags().Changed("log-console") {
				logging.Setup(cfg.Log.Level, cfg.Log.Console)
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "配置文件路径")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	server, err := servers.NewHTTPServer(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("收到退出信号，正在关闭服务")
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	log.Info().
		Str("addr", server.Addr()).
		Str("provider", cfg.LLM.Provider).
		Str("session_backend", cfg.Session.Backend).
		Msg("MJML 生成服务启动")
	return g.Wait()
}
