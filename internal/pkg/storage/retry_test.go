package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/3Eeeecho/go-tgdisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/telegram"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	logger.SetLogger(zap.NewNop())
}

type recordedSleep struct {
	delays []time.Duration
}

func (r *recordedSleep) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func TestRetryHonorsRetryAfter(t *testing.T) {
	rec := &recordedSleep{}
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 800 * time.Millisecond, Sleep: rec.sleep}

	calls := 0
	err := p.Do(context.Background(), "sendDocument", func(context.Context) error {
		calls++
		if calls == 1 {
			return &telegram.APIError{Method: "sendDocument", Code: 429, RetryAfter: 7 * time.Second}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{7 * time.Second}, rec.delays)
}

func TestRetryLinearBackoffThenExhausted(t *testing.T) {
	rec := &recordedSleep{}
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 800 * time.Millisecond, Sleep: rec.sleep}

	calls := 0
	err := p.Do(context.Background(), "getFile", func(context.Context) error {
		calls++
		return errors.New("connection reset")
	})
	require.ErrorIs(t, err, xerr.ErrUpstreamExhausted)
	assert.Equal(t, 5, calls)
	assert.Equal(t, []time.Duration{
		800 * time.Millisecond,
		1600 * time.Millisecond,
		2400 * time.Millisecond,
		3200 * time.Millisecond,
	}, rec.delays)
}

func TestRetryRateLimitWithoutHintUsesBackoff(t *testing.T) {
	rec := &recordedSleep{}
	p := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second, Sleep: rec.sleep}

	err := p.Do(context.Background(), "getUpdates", func(context.Context) error {
		return &telegram.APIError{Code: 429}
	})
	require.ErrorIs(t, err, xerr.ErrUpstreamExhausted)
	assert.Equal(t, []time.Duration{time.Second}, rec.delays)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	rec := &recordedSleep{}
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, Sleep: rec.sleep}

	calls := 0
	err := p.Do(context.Background(), "deleteMessage", func(context.Context) error {
		calls++
		return &telegram.APIError{Code: 400, Description: "message to delete not found"}
	})
	require.ErrorIs(t, err, xerr.ErrUpstreamRejected)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
}

func TestRetryReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour}

	err := p.Do(ctx, "sendDocument", func(context.Context) error {
		cancel()
		return errors.New("boom")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
