package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/3Eeeecho/go-tgdisk/cmd/server"
	"github.com/3Eeeecho/go-tgdisk/internal/config"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tgdisk",
		Short: "Chunked file storage backed by a Telegram channel",
		Long: `tgdisk stores files as fixed-size chunks in a Telegram channel and keeps
the chunk manifest in MySQL.

Examples:
  # Run the HTTP API and background workers
  tgdisk serve

  # Rebuild lost manifests for owner 42 from channel history
  tgdisk reconcile --owner 42

  # Abort expired upload sessions once
  tgdisk sweep`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newReconcileCmd())
	rootCmd.AddCommand(newSweepCmd())
	return rootCmd
}

// bootstrap 加载配置并初始化日志系统
func bootstrap() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("加载配置出错: %w", err)
	}
	for _, p := range []string{cfg.Log.OutputPath, cfg.Log.ErrorPath} {
		if dir := filepath.Dir(p); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("初始化日志系统失败: %w", err)
			}
		}
	}
	logger.InitLogger(cfg.Log.OutputPath, cfg.Log.ErrorPath, cfg.Log.Level)
	return cfg, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()
			logger.Info("启动 tgdisk 服务...")

			srv, err := server.NewServer(cmd.Context(), cfg)
			if err != nil {
				logger.Error("无法启动应用程序", zap.Error(err))
				return err
			}

			stopChan := make(chan os.Signal, 1)
			signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)
			srv.Run(cmd.Context(), stopChan)

			logger.Info("tgdisk 服务已退出。")
			return nil
		},
	}
}

func newReconcileCmd() *cobra.Command {
	var ownerID uint64
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild missing chunk manifests from channel history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ownerID == 0 {
				return fmt.Errorf("--owner is required")
			}
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()

			app, err := server.NewApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.Reconcile.Reconcile(cmd.Context(), ownerID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned %d entries, restored %d files %v\n",
				result.ScannedEntries, result.RestoredFiles, result.RestoredFileIDs)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&ownerID, "owner", 0, "owner id to reconcile")
	return cmd
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Abort upload sessions past their expiry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()

			app, err := server.NewApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			n, err := app.Uploads.SweepExpired(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "aborted %d expired upload sessions\n", n)
			return nil
		},
	}
}
