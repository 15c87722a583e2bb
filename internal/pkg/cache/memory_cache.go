package cache

import (
	"context"
	"encoding/json"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache 进程内实现，未配置 Redis 时和测试中使用
type MemoryCache struct {
	c *gocache.Cache
}

var _ Cache = (*MemoryCache)(nil)

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{c: gocache.New(gocache.NoExpiration, time.Minute)}
}

// ttl 与 Redis 保持一致：非正数表示永不过期
func ttl(expiration time.Duration) time.Duration {
	if expiration <= 0 {
		return gocache.NoExpiration
	}
	return expiration
}

func (m *MemoryCache) Set(_ context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.c.Set(key, data, ttl(expiration))
	return nil
}

func (m *MemoryCache) Get(_ context.Context, key string, target any) error {
	v, ok := m.c.Get(key)
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(v.([]byte), target)
}

func (m *MemoryCache) SetNX(_ context.Context, key string, value any, expiration time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	// Add 在 key 已存在且未过期时返回错误
	if err := m.c.Add(key, data, ttl(expiration)); err != nil {
		return false, nil
	}
	return true, nil
}

func (m *MemoryCache) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.c.Delete(k)
	}
	return nil
}
