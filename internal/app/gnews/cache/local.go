package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"

	"gnlink.local/internal/app/gnews"
)

// LocalCache 是 ResolutionCache 前面的进程内一层，直接存 Resolution 值，命中不再反序列化。
// TTL 比 Redis 短，多实例之间的不一致只持续几分钟。
type LocalCache struct {
	store       *ristretto.Cache
	ttl         time.Duration
	negativeTTL time.Duration
}

type localEntry struct {
	res      gnews.Resolution
	negative bool
}

// NewLocalCache: maxItems 用来估算计数器数量，maxBytes 是按 resolutionCost 累计的上限。
func NewLocalCache(maxItems int64, maxBytes int64) (*LocalCache, error) {
	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &LocalCache{store: store, ttl: 5 * time.Minute, negativeTTL: 10 * time.Second}, nil
}

func (l *LocalCache) lookup(key string) (*gnews.Resolution, State) {
	v, ok := l.store.Get(key)
	if !ok {
		return nil, Miss
	}
	e, ok := v.(localEntry)
	if !ok {
		l.store.Del(key)
		return nil, Miss
	}
	if e.negative {
		return nil, Negative
	}
	r := e.res
	return &r, Hit
}

func (l *LocalCache) put(key string, r *gnews.Resolution) {
	l.store.SetWithTTL(key, localEntry{res: *r}, resolutionCost(r), l.ttl)
}

func (l *LocalCache) putNegative(key string) {
	l.store.SetWithTTL(key, localEntry{negative: true}, 1, l.negativeTTL)
}

func (l *LocalCache) forget(key string) {
	l.store.Del(key)
}

// Wait 等缓冲里的写入落地（ristretto 的 Set 是异步的）。
func (l *LocalCache) Wait() {
	l.store.Wait()
}

func (l *LocalCache) Close() {
	l.store.Close()
}

// resolutionCost 粗略按字符串字节数计费。
func resolutionCost(r *gnews.Resolution) int64 {
	return int64(64 + len(r.SourceURL) + len(r.ResolvedURL) + len(r.ContentType) + len(r.ImageURL) + len(r.Method))
}
