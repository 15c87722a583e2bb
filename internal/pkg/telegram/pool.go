package telegram

import (
	"sync"
	"time"

	"github.com/3Eeeecho/go-tgdisk/internal/pkg/crypto"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Pool 按 token 指纹复用 Client，容量有限，空闲超过 ttl 的 Client 被淘汰
type Pool struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, *Client]
	opts  Options
}

func NewPool(size int, idleTTL time.Duration, opts Options) *Pool {
	if size <= 0 {
		size = 64
	}
	p := &Pool{opts: opts}
	p.cache = expirable.NewLRU[string, *Client](size, func(string, *Client) {
		poolClients.Dec()
	}, idleTTL)
	return p
}

// Get 返回 token 对应的 Client，命中时刷新空闲计时
func (p *Pool) Get(token string) *Client {
	key := crypto.Fingerprint(token)

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.cache.Get(key); ok {
		p.cache.Add(key, c)
		return c
	}
	c := NewClient(token, p.opts)
	p.cache.Add(key, c)
	poolClients.Inc()
	return c
}

func (p *Pool) Len() int {
	return p.cache.Len()
}
