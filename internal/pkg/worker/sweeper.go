package worker

import (
	"context"
	"time"

	"github.com/3Eeeecho/go-tgdisk/internal/pkg/cache"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/logger"
	"go.uber.org/zap"
)

// ExpiredSessionSweeper 由 explorer.UploadService 实现
type ExpiredSessionSweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// SweepWorker 定期中止过期的上传会话
// 多实例部署时通过缓存里的 SetNX 锁保证同一周期只有一个实例执行
type SweepWorker struct {
	uploads  ExpiredSessionSweeper
	locks    cache.Cache
	interval time.Duration
	now      func() time.Time
}

func NewSweepWorker(uploads ExpiredSessionSweeper, locks cache.Cache, interval time.Duration) *SweepWorker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &SweepWorker{
		uploads:  uploads,
		locks:    locks,
		interval: interval,
		now:      time.Now,
	}
}

// Start 阻塞运行直到 ctx 结束
func (w *SweepWorker) Start(ctx context.Context) {
	logger.Info("Sweep worker started...", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Sweep worker stopped.")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				logger.Error("SweepWorker: sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce 执行一次清理，未拿到锁时返回 0
func (w *SweepWorker) RunOnce(ctx context.Context) (int, error) {
	now := w.now()
	if w.locks != nil {
		// 锁在周期结束前自然过期，不需要显式释放
		ok, err := w.locks.SetNX(ctx, cache.GenerateSweepLockKey(), now.Unix(), w.interval/2)
		if err != nil {
			return 0, err
		}
		if !ok {
			logger.Debug("SweepWorker: another instance holds the sweep lock")
			return 0, nil
		}
	}

	n, err := w.uploads.SweepExpired(ctx, now)
	if err != nil {
		return n, err
	}
	if n > 0 {
		logger.Info("SweepWorker: expired upload sessions aborted", zap.Int("count", n))
	}
	return n, nil
}
