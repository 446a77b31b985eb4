package worker

import (
	"context"
	"log/slog"
	"time"

	"gnlink.local/internal/app/gnews/collect"
	"gnlink.local/internal/app/gnews/queue"
)

type JobSource interface {
	Read(ctx context.Context, block time.Duration) ([]queue.Job, error)
	Ack(ctx context.Context, messageID string) error
}

type FeedCollector interface {
	Run(ctx context.Context, feedURL string) (collect.Report, error)
}

// CollectWorker 从队列里取 feed 地址并跑采集。每个任务处理完都会 ack，失败也不重投。
type CollectWorker struct {
	q         JobSource
	collector FeedCollector
	block     time.Duration
	onReport  func(collect.Report)
}

func NewCollectWorker(q JobSource, collector FeedCollector) *CollectWorker {
	return &CollectWorker{q: q, collector: collector, block: 2 * time.Second}
}

// OnReport 注册一个回调，每个任务完成后调用（测试和统计用）。
func (w *CollectWorker) OnReport(fn func(collect.Report)) {
	w.onReport = fn
}

// Run 阻塞直到 ctx 结束。
func (w *CollectWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobs, err := w.q.Read(ctx, w.block)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("collect worker: read failed", "err", err)
			time.Sleep(200 * time.Millisecond)
			continue
		}

		for _, job := range jobs {
			rep, err := w.collector.Run(ctx, job.FeedURL)
			if err != nil {
				slog.Error("collect worker: job failed", "err", err, "feed_url", job.FeedURL, "message_id", job.MessageID)
			} else if w.onReport != nil {
				w.onReport(rep)
			}
			// ctx 可能已经结束，ack 用独立的超时
			ackCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			if err := w.q.Ack(ackCtx, job.MessageID); err != nil {
				slog.Error("collect worker: ack failed", "err", err, "message_id", job.MessageID)
			}
			cancel()
		}
	}
}
