package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gnlink.local/internal/app/gnews"
	"gnlink.local/internal/platform/metrics"
	"github.com/redis/go-redis/v9"
)

const notFoundSentinel = "__nil__"

// State 是一次缓存查询的结果。
type State int

const (
	Miss State = iota
	Hit
	// Negative：之前确认过拿不到原文链接，在 emptyTTL 内不要再去请求
	Negative
)

// ResolutionCache 两级缓存：L1 ristretto（可选）+ L2 Redis。
// key 是源链接的 sha1，源链接本身可能很长。
type ResolutionCache struct {
	client   *redis.Client
	local    *LocalCache
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewResolutionCache(client *redis.Client, local *LocalCache, ttl, emptyTTL time.Duration) *ResolutionCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if emptyTTL <= 0 {
		emptyTTL = 5 * time.Minute
	}
	// L1 不能比 L2 活得久
	if local != nil {
		local.ttl = min(local.ttl, ttl)
		local.negativeTTL = min(local.negativeTTL, emptyTTL)
	}
	return &ResolutionCache{
		client:   client,
		local:    local,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

func Key(sourceURL string) string {
	sum := sha1.Sum([]byte(sourceURL))
	return "gn:" + hex.EncodeToString(sum[:])
}

func (c *ResolutionCache) Get(ctx context.Context, sourceURL string) (*gnews.Resolution, State, error) {
	key := Key(sourceURL)

	// L1
	if c.local != nil {
		switch r, state := c.local.lookup(key); state {
		case Hit:
			metrics.CacheOperations.WithLabelValues("l1", "hit").Inc()
			return r, Hit, nil
		case Negative:
			metrics.CacheOperations.WithLabelValues("l1", "hit_negative").Inc()
			return nil, Negative, nil
		}
	}

	// L2
	raw, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		metrics.CacheOperations.WithLabelValues("l2", "miss").Inc()
		return nil, Miss, nil
	}
	if err != nil {
		return nil, Miss, err
	}

	if raw == notFoundSentinel {
		metrics.CacheOperations.WithLabelValues("l2", "hit_negative").Inc()
		if c.local != nil {
			c.local.putNegative(key)
		}
		return nil, Negative, nil
	}

	r, err := unmarshal(raw)
	if err != nil {
		// 脏数据当未命中处理，顺手删掉
		slog.Warn("drop corrupt cache entry", "key", key, "err", err)
		_ = c.client.Del(ctx, key).Err()
		metrics.CacheOperations.WithLabelValues("l2", "miss").Inc()
		return nil, Miss, nil
	}
	metrics.CacheOperations.WithLabelValues("l2", "hit").Inc()

	// 回填 L1
	if c.local != nil {
		c.local.put(key, r)
	}
	return r, Hit, nil
}

func (c *ResolutionCache) Set(ctx context.Context, r *gnews.Resolution) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal resolution: %w", err)
	}
	key := Key(r.SourceURL)
	if c.local != nil {
		c.local.put(key, r)
	}
	return c.client.Set(ctx, key, b, c.ttl).Err()
}

// SetNotFound 负缓存：用明确的哨兵值，不用空串，避免和"未命中"混淆。
func (c *ResolutionCache) SetNotFound(ctx context.Context, sourceURL string) error {
	key := Key(sourceURL)
	if c.local != nil {
		c.local.putNegative(key)
	}
	return c.client.Set(ctx, key, notFoundSentinel, c.emptyTTL).Err()
}

func (c *ResolutionCache) Delete(ctx context.Context, sourceURL string) error {
	key := Key(sourceURL)
	if c.local != nil {
		c.local.forget(key)
	}
	return c.client.Del(ctx, key).Err()
}

func (c *ResolutionCache) Close() {
	if c.local != nil {
		c.local.Close()
		slog.Info("本地缓存已关闭")
	}
}

func unmarshal(raw string) (*gnews.Resolution, error) {
	var r gnews.Resolution
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, err
	}
	return &r, nil
}
