// Package collect 把一个 feed 里的全部文章解析成原文链接。
package collect

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"gnlink.local/internal/app/gnews"
	"gnlink.local/internal/app/gnews/batch"
	"gnlink.local/internal/app/gnews/feed"
	"gnlink.local/internal/platform/trace"
)

type FeedSource interface {
	Fetch(ctx context.Context, feedURL string) ([]feed.Item, error)
}

type BatchResolver interface {
	ResolveAll(ctx context.Context, urls []string, opts gnews.ResolveOptions) []batch.Outcome
}

// Entry 是 feed 里一条文章的解析结果。
type Entry struct {
	Item        feed.Item    `json:"item"`
	ResolvedURL string       `json:"resolved_url,omitempty"`
	ImageURL    string       `json:"image_url,omitempty"`
	Method      gnews.Method `json:"method,omitempty"`
	Error       string       `json:"error,omitempty"`
}

type Report struct {
	FeedURL  string        `json:"feed_url"`
	Items    int           `json:"items"`
	Resolved int           `json:"resolved"`
	Decoded  int           `json:"decoded"`
	Redirect int           `json:"redirect"`
	Verified int           `json:"verified"`
	Failed   int           `json:"failed"`
	Elapsed  time.Duration `json:"elapsed"`
	Entries  []Entry       `json:"entries"`
}

type Collector struct {
	source FeedSource
	pool   BatchResolver
	opts   gnews.ResolveOptions
}

// New 默认会顺带抓 og:image。
func New(source FeedSource, pool BatchResolver) *Collector {
	return &Collector{source: source, pool: pool, opts: gnews.ResolveOptions{FetchImage: true}}
}

// WithOptions 返回使用指定解析选项的副本。
func (c *Collector) WithOptions(opts gnews.ResolveOptions) *Collector {
	cp := *c
	cp.opts = opts
	return &cp
}

// Run 只有 feed 本身拉取失败才返回 error；单条解析失败记在报告里。
func (c *Collector) Run(ctx context.Context, feedURL string) (Report, error) {
	start := time.Now()
	ctx, span := trace.Tracer().Start(ctx, "collect.Run")
	defer span.End()
	span.SetAttributes(attribute.String(trace.AttrFeedURL, feedURL))

	items, err := c.source.Fetch(ctx, feedURL)
	if err != nil {
		span.RecordError(err)
		return Report{FeedURL: feedURL}, fmt.Errorf("collect %s: %w", feedURL, err)
	}
	span.SetAttributes(attribute.Int(trace.AttrBatchSize, len(items)))

	urls := make([]string, len(items))
	for i, it := range items {
		urls[i] = it.Link
	}
	outcomes := c.pool.ResolveAll(ctx, urls, c.opts)

	rep := Report{FeedURL: feedURL, Items: len(items), Entries: make([]Entry, len(items))}
	for i, o := range outcomes {
		e := Entry{Item: items[i]}
		if o.Err != nil || o.Resolution == nil {
			rep.Failed++
			if o.Err != nil {
				e.Error = o.Err.Error()
			}
		} else {
			rep.Resolved++
			e.ResolvedURL = o.Resolution.ResolvedURL
			e.ImageURL = o.Resolution.ImageURL
			e.Method = o.Resolution.Method
			switch o.Resolution.Method {
			case gnews.MethodDecoded:
				rep.Decoded++
			case gnews.MethodRedirect:
				rep.Redirect++
			case gnews.MethodVerified:
				rep.Verified++
			}
		}
		rep.Entries[i] = e
	}
	rep.Elapsed = time.Since(start)

	slog.Info("feed collected",
		"feed_url", feedURL,
		"items", rep.Items,
		"resolved", rep.Resolved,
		"failed", rep.Failed,
		"elapsed", rep.Elapsed.String(),
	)
	return rep, nil
}
