package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-tgdisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/telegram"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tgdisk_storage_retries_total",
	Help: "Retried chunk storage operations by reason.",
}, []string{"operation", "reason"})

// RetryPolicy 限流感知的重试策略
// 429 按服务端建议的时间等待，其他临时错误按 attempt*BaseDelay 退避
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 800 * time.Millisecond}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do 执行 fn 直到成功、遇到永久错误或次数用尽
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		lastErr = err

		var apiErr *telegram.APIError
		isAPI := errors.As(err, &apiErr)
		if isAPI && !apiErr.Temporary() {
			return fmt.Errorf("%w: %s: %v", xerr.ErrUpstreamRejected, op, err)
		}
		if attempt == attempts {
			break
		}

		delay := time.Duration(attempt) * p.BaseDelay
		reason := "transient"
		if isAPI && apiErr.RateLimited() {
			reason = "rate_limited"
			if apiErr.RetryAfter > 0 {
				delay = apiErr.RetryAfter
			}
		}
		retriesTotal.WithLabelValues(op, reason).Inc()
		logger.Warn("RetryPolicy: retrying remote call",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %v", xerr.ErrUpstreamExhausted, op, lastErr)
}
