package worker

import (
	"context"

	"github.com/3Eeeecho/go-tgdisk/internal/config"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/cache"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/logger"
)

// StartAllWorkers 启动应用中所有定义的后台 Worker，ctx 结束时全部退出
func StartAllWorkers(ctx context.Context, cfg *config.Config, uploads ExpiredSessionSweeper, locks cache.Cache) {
	// --- 启动过期上传会话清理 Worker ---
	sweeper := NewSweepWorker(uploads, locks, cfg.Upload.SweepInterval)
	go sweeper.Start(ctx)

	logger.Info("所有后台工作进程已启动。")
}
