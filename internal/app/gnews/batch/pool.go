// Package batch 并发解析一批链接：限制并发数、限制请求间隔、对网络错误做退避重试。
package batch

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"gnlink.local/internal/app/gnews"
	"gnlink.local/internal/app/gnews/resolver"
	"gnlink.local/internal/platform/metrics"
)

// Resolver 是单条解析的能力，*service.Service 实现了它。
type Resolver interface {
	Resolve(ctx context.Context, rawURL string, opts gnews.ResolveOptions) (gnews.Resolution, error)
}

// Outcome 和输入一一对应（同样的下标）。
type Outcome struct {
	URL        string            `json:"url"`
	Resolution *gnews.Resolution `json:"resolution,omitempty"`
	Err        error             `json:"-"`
	Attempts   int               `json:"attempts"`
}

type Options struct {
	Concurrency int           // 同时进行的解析数，<=0 时为 4
	MinInterval time.Duration // 两次开始之间的最小间隔，<=0 不限制
	Retries     int           // 网络错误的额外重试次数
	// InitialBackoff 第一次重试前的等待，<=0 时用 backoff 的默认值
	InitialBackoff time.Duration
}

type Pool struct {
	resolver Resolver
	opts     Options
	limiter  *rate.Limiter
}

func New(r Resolver, opts Options) *Pool {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}
	return &Pool{
		resolver: r,
		opts:     opts,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// ResolveAll 阻塞直到所有链接都有结果。单条失败记在 Outcome.Err 里，不会让整批失败；
// ctx 取消后尚未开始的条目直接以 ctx.Err() 结束。
func (p *Pool) ResolveAll(ctx context.Context, urls []string, opts gnews.ResolveOptions) []Outcome {
	out := make([]Outcome, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	for i, u := range urls {
		out[i].URL = u
		if err := gctx.Err(); err != nil {
			out[i].Err = err
			continue
		}
		g.Go(func() error {
			metrics.BatchInflight.Inc()
			defer metrics.BatchInflight.Dec()

			res, attempts, err := p.resolveOne(gctx, u, opts)
			out[i].Attempts = attempts
			if err != nil {
				out[i].Err = err
				return nil
			}
			out[i].Resolution = &res
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (p *Pool) resolveOne(ctx context.Context, u string, opts gnews.ResolveOptions) (gnews.Resolution, int, error) {
	attempts := 0
	op := func() (gnews.Resolution, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return gnews.Resolution{}, backoff.Permanent(err)
		}
		attempts++
		res, err := p.resolver.Resolve(ctx, u, opts)
		if err != nil && !retryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	eb := backoff.NewExponentialBackOff()
	if p.opts.InitialBackoff > 0 {
		eb.InitialInterval = p.opts.InitialBackoff
	}
	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(p.opts.Retries+1)),
	)
	return res, attempts, err
}

// retryable：只有网络层面的失败值得重试；"确认拿不到"和 4xx 重试也没用。
func retryable(err error) bool {
	if errors.Is(err, gnews.ErrUnresolvable) || errors.Is(err, gnews.ErrInvalidURL) || errors.Is(err, resolver.ErrForbiddenAddress) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *resolver.StatusError
	if errors.As(err, &se) && se.Status >= 400 && se.Status < 500 && se.Status != 429 {
		return false
	}
	return true
}
