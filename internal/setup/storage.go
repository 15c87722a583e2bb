package setup

import (
	"net/http"

	"github.com/3Eeeecho/go-tgdisk/internal/config"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/cache"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/storage"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/telegram"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// InitCache 有 Redis 时使用 Redis，否则使用进程内缓存
func InitCache(client *redis.Client) cache.Cache {
	if client == nil {
		return cache.NewMemoryCache()
	}
	return cache.NewRedisCache(client)
}

// InitStorage 构建基于 Telegram 频道的分片存储
func InitStorage(cfg *config.TelegramConfig, paths cache.Cache) *storage.TelegramStorage {
	pool := telegram.NewPool(cfg.ClientPoolSize, cfg.ClientIdleTTL, telegram.Options{
		BaseURL:           cfg.APIBaseURL,
		HTTPClient:        &http.Client{Timeout: cfg.RequestTimeout},
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	retry := storage.RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
	}
	logger.Info("Telegram chunk storage initialized",
		zap.String("apiBaseURL", cfg.APIBaseURL),
		zap.Int("maxAttempts", cfg.MaxAttempts),
		zap.Float64("requestsPerSecond", cfg.RequestsPerSecond))
	return storage.NewTelegramStorage(pool, retry, paths, cfg.FilePathTTL)
}

// FallbackCredentials 进程级默认凭证，未配置时为空
func FallbackCredentials(cfg *config.TelegramConfig) storage.Credentials {
	return storage.Credentials{Token: cfg.BotToken, ChannelID: cfg.StorageChatID}
}
