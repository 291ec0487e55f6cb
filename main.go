package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"shooterd/config"
	"shooterd/server"
)

var (
	envFile string
	port    int
)

// shooterd 入口：读取配置，启动 TCP 游戏服务与管理接口，Ctrl+C 优雅退出
func main() {
	root := &cobra.Command{
		Use:          "shooterd",
		Short:        "Authoritative fixed-tick arena server over TCP",
		SilenceUsage: true,
		RunE:         run,
	}
	root.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file with SHOOTER_* settings (optional)")
	root.Flags().IntVar(&port, "port", -1, "override SHOOTER_PORT")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = port
	}

	log, err := server.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	srv, err := server.New(cfg, log)
	if err != nil {
		log.Errorw("startup failed", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := srv.Run(ctx); err != nil {
		log.Errorw("server stopped", "error", err)
		return err
	}
	log.Info("bye")
	return nil
}
