// Package service 把离线解码、跳转解析、缓存、持久化串成一次完整的 Resolve。
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"gnlink.local/internal/app/gnews"
	"gnlink.local/internal/app/gnews/cache"
	"gnlink.local/internal/app/gnews/events"
	"gnlink.local/internal/app/gnews/resolver"
	"gnlink.local/internal/platform/metrics"
	"gnlink.local/internal/platform/trace"
)

// Redirector 是需要走网络的那一半，*resolver.Client 实现了它。
type Redirector interface {
	ResolveRedirect(ctx context.Context, rawURL string) (resolver.RedirectResult, error)
	ExtractOgImage(ctx context.Context, pageURL string) (string, error)
}

// Store 持久化解析结果，*repo.ResolutionsRepo 实现了它。
type Store interface {
	Upsert(ctx context.Context, r *gnews.Resolution) error
	FindBySource(ctx context.Context, sourceURL string) (*gnews.Resolution, error)
}

// Cache 是解析结果缓存，*cache.ResolutionCache 实现了它。
type Cache interface {
	Get(ctx context.Context, sourceURL string) (*gnews.Resolution, cache.State, error)
	Set(ctx context.Context, r *gnews.Resolution) error
	SetNotFound(ctx context.Context, sourceURL string) error
	Delete(ctx context.Context, sourceURL string) error
}

// Service 的 store / cache / events 都可以为 nil。
type Service struct {
	redirector Redirector
	store      Store
	cache      Cache
	events     events.Collector
	now        func() time.Time
}

type Option func(*Service)

func WithStore(s Store) Option            { return func(svc *Service) { svc.store = s } }
func WithCache(c Cache) Option            { return func(svc *Service) { svc.cache = c } }
func WithEvents(c events.Collector) Option { return func(svc *Service) { svc.events = c } }

func New(redirector Redirector, opts ...Option) *Service {
	s := &Service{
		redirector: redirector,
		events:     events.Discard{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve 先走便宜的路径：缓存 -> 数据库 -> 离线解码，都不行才发请求。
//
// 返回的 error：
// - gnews.ErrInvalidURL：输入不是 http(s) 链接
// - gnews.ErrUnresolvable：确认拿不到原文链接（会写负缓存）
// - 其它：网络错误等，调用方可以重试
func (s *Service) Resolve(ctx context.Context, rawURL string, opts gnews.ResolveOptions) (res gnews.Resolution, err error) {
	start := s.now()
	ctx, span := trace.Tracer().Start(ctx, "gnews.Resolve")
	span.SetAttributes(attribute.String(trace.AttrSourceURL, rawURL))
	outcome := events.OutcomeResolved
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if outcome == events.OutcomeResolved {
				outcome = events.OutcomeError
				if errors.Is(err, gnews.ErrUnresolvable) || errors.Is(err, gnews.ErrInvalidURL) {
					outcome = events.OutcomeUnresolved
				}
			}
			metrics.Resolutions.WithLabelValues("failed").Inc()
		} else {
			span.SetAttributes(
				attribute.String(trace.AttrResolvedURL, res.ResolvedURL),
				attribute.String(trace.AttrMethod, string(res.Method)),
			)
			metrics.Resolutions.WithLabelValues(string(res.Method)).Inc()
		}
		span.End()
		s.events.Collect(events.ResolutionEvent{
			SourceURL: rawURL,
			Method:    string(res.Method),
			Outcome:   outcome,
			LatencyMS: s.now().Sub(start).Milliseconds(),
			At:        start.UTC(),
		})
	}()

	if err := gnews.ValidateSourceURL(rawURL); err != nil {
		return gnews.Resolution{}, err
	}

	if cached, state := s.lookupCache(ctx, rawURL); state != cache.Miss {
		span.SetAttributes(attribute.String(trace.AttrCache, stateLabel(state)))
		if state == cache.Negative {
			outcome = events.OutcomeCacheNegHit
			return gnews.Resolution{}, gnews.ErrUnresolvable
		}
		// 需要的东西缓存里都有才能直接用
		if satisfies(cached, opts) {
			outcome = events.OutcomeCacheHit
			return *cached, nil
		}
	}

	if !opts.Verify && s.store != nil {
		if stored, err := s.store.FindBySource(ctx, rawURL); err == nil && satisfies(stored, opts) {
			s.fillCache(ctx, stored)
			outcome = events.OutcomeCacheHit
			return *stored, nil
		} else if err != nil && !errors.Is(err, gnews.ErrNotFound) {
			slog.Warn("find resolution failed", "err", err, "url", rawURL)
		}
	}

	res, err = s.resolve(ctx, rawURL, opts)
	if err != nil {
		if errors.Is(err, gnews.ErrUnresolvable) && s.cache != nil {
			if cerr := s.cache.SetNotFound(ctx, rawURL); cerr != nil {
				slog.Warn("set negative cache failed", "err", cerr, "url", rawURL)
			}
		}
		return gnews.Resolution{}, err
	}

	if s.store != nil {
		// 持久化失败不影响本次结果
		if err := s.store.Upsert(ctx, &res); err != nil {
			slog.Warn("persist resolution failed", "err", err, "url", rawURL)
		}
	}
	s.fillCache(ctx, &res)
	return res, nil
}

func (s *Service) resolve(ctx context.Context, rawURL string, opts gnews.ResolveOptions) (gnews.Resolution, error) {
	res := gnews.Resolution{SourceURL: rawURL, ResolvedAt: s.now().UTC()}

	decoded, decodeErr := gnews.Explain(rawURL)
	if decodeErr == nil {
		res.ResolvedURL = decoded
		res.Method = gnews.MethodDecoded
	}

	if decodeErr != nil || opts.Verify {
		if s.redirector == nil {
			if decodeErr != nil {
				return gnews.Resolution{}, fmt.Errorf("%w: %v", gnews.ErrUnresolvable, decodeErr)
			}
		} else {
			rr, err := s.redirect(ctx, rawURL)
			switch {
			case err == nil && !gnews.IsGoogleNewsURL(rr.FinalURL):
				res.ResolvedURL = rr.FinalURL
				res.Status = rr.Status
				res.ContentType = rr.ContentType
				if decodeErr == nil {
					res.Method = gnews.MethodVerified
				} else {
					res.Method = gnews.MethodRedirect
				}
			case decodeErr == nil:
				// 验证失败时保留离线解码结果
				slog.Debug("verify redirect did not confirm decoded url", "err", err, "url", rawURL)
			case err == nil:
				// 跳转后仍停在 Google News（同意页、JS 跳转页）
				return gnews.Resolution{}, fmt.Errorf("%w: redirect ended on %s", gnews.ErrUnresolvable, rr.FinalURL)
			default:
				var se *resolver.StatusError
				if errors.As(err, &se) && se.Status >= 400 && se.Status < 500 {
					return gnews.Resolution{}, fmt.Errorf("%w: %v", gnews.ErrUnresolvable, err)
				}
				return gnews.Resolution{}, fmt.Errorf("resolve redirect: %w", err)
			}
		}
	}

	if opts.FetchImage && s.redirector != nil {
		img, err := s.ogImage(ctx, res.ResolvedURL)
		if err != nil {
			slog.Warn("extract og:image failed", "err", err, "url", res.ResolvedURL)
		} else {
			res.ImageChecked = true
		}
		res.ImageURL = img
	}
	return res, nil
}

func (s *Service) redirect(ctx context.Context, rawURL string) (resolver.RedirectResult, error) {
	start := time.Now()
	rr, err := s.redirector.ResolveRedirect(ctx, rawURL)
	metrics.UpstreamRequestDurationSeconds.WithLabelValues("redirect", metrics.Outcome(err)).Observe(time.Since(start).Seconds())
	return rr, err
}

func (s *Service) ogImage(ctx context.Context, pageURL string) (string, error) {
	start := time.Now()
	img, err := s.redirector.ExtractOgImage(ctx, pageURL)
	metrics.UpstreamRequestDurationSeconds.WithLabelValues("og_image", metrics.Outcome(err)).Observe(time.Since(start).Seconds())
	return img, err
}

// Invalidate 清掉某个源链接的缓存（包括负缓存）。
func (s *Service) Invalidate(ctx context.Context, sourceURL string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, sourceURL)
}

func (s *Service) lookupCache(ctx context.Context, rawURL string) (*gnews.Resolution, cache.State) {
	if s.cache == nil {
		return nil, cache.Miss
	}
	r, state, err := s.cache.Get(ctx, rawURL)
	if err != nil {
		// Redis 挂了就当没命中，继续往下走
		slog.Warn("cache get failed", "err", err, "url", rawURL)
		return nil, cache.Miss
	}
	return r, state
}

func (s *Service) fillCache(ctx context.Context, r *gnews.Resolution) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, r); err != nil {
		slog.Warn("cache set failed", "err", err, "url", r.SourceURL)
	}
}

// satisfies 判断一条已有结果能不能满足本次请求的要求。
func satisfies(r *gnews.Resolution, opts gnews.ResolveOptions) bool {
	if r == nil {
		return false
	}
	if opts.Verify && r.Method == gnews.MethodDecoded {
		return false
	}
	if opts.FetchImage && r.ImageURL == "" && !r.ImageChecked {
		return false
	}
	return true
}

func stateLabel(s cache.State) string {
	switch s {
	case cache.Hit:
		return "hit"
	case cache.Negative:
		return "negative"
	default:
		return "miss"
	}
}
