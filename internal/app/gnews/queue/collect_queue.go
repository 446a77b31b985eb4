// Package queue 是基于 Redis Streams 的采集任务队列，消息体只有一个 feed_url。
package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type CollectQueue struct {
	rdb      *redis.Client
	stream   string
	group    string
	consumer string
}

type Config struct {
	Stream   string
	Group    string
	Consumer string
}

func NewCollectQueue(ctx context.Context, rdb *redis.Client, cfg Config) (*CollectQueue, error) {
	if rdb == nil {
		return nil, errors.New("nil redis client")
	}
	if cfg.Stream == "" {
		cfg.Stream = "gnlink:jobs:collect"
	}
	if cfg.Group == "" {
		cfg.Group = "gnlink:workers:collect"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "worker-1"
	}

	q := &CollectQueue{
		rdb:      rdb,
		stream:   cfg.Stream,
		group:    cfg.Group,
		consumer: cfg.Consumer,
	}

	// 建组是幂等的：已存在时 Redis 回 BUSYGROUP
	cctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := q.rdb.XGroupCreateMkStream(cctx, q.stream, q.group, "$").Err(); err != nil && !isBusyGroup(err) {
		return nil, err
	}
	return q, nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

// Enqueue 返回消息 ID。
func (q *CollectQueue) Enqueue(ctx context.Context, feedURL string) (string, error) {
	return q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{"feed_url": feedURL},
	}).Result()
}

type Job struct {
	MessageID string
	FeedURL   string
}

// Read 最多阻塞 block；超时没有消息时返回 (nil, nil)。
// 没有 feed_url 的消息直接 ack 掉，不交给调用方。
func (q *CollectQueue) Read(ctx context.Context, block time.Duration) ([]Job, error) {
	res, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    10,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var jobs []Job
	for _, s := range res {
		for _, msg := range s.Messages {
			feedURL, _ := msg.Values["feed_url"].(string)
			if strings.TrimSpace(feedURL) == "" {
				_ = q.Ack(ctx, msg.ID)
				continue
			}
			jobs = append(jobs, Job{MessageID: msg.ID, FeedURL: feedURL})
		}
	}
	return jobs, nil
}

func (q *CollectQueue) Ack(ctx context.Context, messageID string) error {
	return q.rdb.XAck(ctx, q.stream, q.group, messageID).Err()
}

// Pending 返回已投递但还没 ack 的消息数。
func (q *CollectQueue) Pending(ctx context.Context) (int64, error) {
	res, err := q.rdb.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}
