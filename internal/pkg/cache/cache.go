package cache

import (
	"context"
	"fmt"
	"time"
)

// 缓存通用接口
type Cache interface {
	// Set 写入一个可 JSON 序列化的值并设置过期时间
	Set(ctx context.Context, key string, value any, expiration time.Duration) error

	// Get 读取并反序列化到 target，未命中返回 ErrCacheMiss
	Get(ctx context.Context, key string, target any) error

	// SetNX 仅在 key 不存在时写入，用于轻量分布式锁
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) (bool, error)

	Del(ctx context.Context, keys ...string) error
}

// Telegram getFile 返回的下载路径，至少一小时有效
func GenerateFilePathKey(blobID string) string {
	return fmt.Sprintf("tg:file_path:%s", blobID)
}

// 过期上传会话清理任务的互斥锁
func GenerateSweepLockKey() string {
	return "tg:upload_sweep:lock"
}
