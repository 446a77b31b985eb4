package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sink 批量落库的目标。
type Sink interface {
	Write(ctx context.Context, batch []ResolutionEvent) error
}

// PGSink 用 COPY 写 resolution_events。
type PGSink struct {
	db *pgxpool.Pool
}

func NewPGSink(db *pgxpool.Pool) *PGSink {
	return &PGSink{db: db}
}

func (s *PGSink) Write(ctx context.Context, batch []ResolutionEvent) error {
	_, err := s.db.CopyFrom(ctx,
		pgx.Identifier{"resolution_events"},
		[]string{"source_url", "method", "outcome", "latency_ms", "occurred_at"},
		pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
			e := batch[i]
			return []any{e.SourceURL, e.Method, e.Outcome, e.LatencyMS, e.At}, nil
		}),
	)
	return err
}

// runBatches 攒批：满 batchSize 或者每隔 interval 刷一次；in 关闭或 ctx 结束时把剩下的刷掉。
func runBatches(ctx context.Context, in <-chan ResolutionEvent, batchSize int, interval time.Duration, sink Sink, name string) {
	batch := make([]ResolutionEvent, 0, batchSize)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// ctx 可能已经取消，落库用独立的超时
		fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sink.Write(fctx, batch); err != nil {
			slog.Error(name+": flush failed", "err", err, "count", len(batch))
		} else {
			slog.Debug(name+": flushed", "count", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case event, ok := <-in:
			if !ok {
				flush()
				return
			}
			batch = append(batch, event)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
