// Package feed 拉取并解析 Google News 的 RSS，产出待解析的文章链接。
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"gnlink.local/internal/app/gnews/resolver"
)

// Item 是 feed 里的一条文章。Link 通常是 news.google.com/rss/articles/... 形式。
type Item struct {
	Link        string     `json:"link"`
	Title       string     `json:"title"`
	Source      string     `json:"source,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// ParseFeed 解析 RSS/Atom；没有可用链接的条目直接跳过，空 feed 返回非 nil 的空切片。
func ParseFeed(ctx context.Context, body string) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	parsed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		link := extractLink(entry)
		if link == "" {
			continue
		}
		title, source := splitTitle(entry.Title)
		items = append(items, Item{
			Link:        link,
			Title:       title,
			Source:      source,
			PublishedAt: entry.PublishedParsed,
		})
	}
	return items, nil
}

func extractLink(entry *gofeed.Item) string {
	if entry.Link != "" {
		return strings.TrimSpace(entry.Link)
	}
	if strings.HasPrefix(entry.GUID, "http") {
		return entry.GUID
	}
	return ""
}

// splitTitle：Google News 的标题形如 "标题 - 媒体名"，按最后一个 " - " 拆开。
func splitTitle(raw string) (title, source string) {
	raw = strings.TrimSpace(raw)
	i := strings.LastIndex(raw, " - ")
	if i <= 0 {
		return raw, ""
	}
	return strings.TrimSpace(raw[:i]), strings.TrimSpace(raw[i+3:])
}

// SearchURL 拼出 Google News RSS 搜索地址。lang/country 为空时用 en/US。
func SearchURL(query, lang, country string) string {
	if lang == "" {
		lang = "en"
	}
	if country == "" {
		country = "US"
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("hl", lang+"-"+country)
	q.Set("gl", country)
	q.Set("ceid", country+":"+lang)
	return "https://news.google.com/rss/search?" + q.Encode()
}

type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

// NewFetcher client 为 nil 时使用带 20s 超时的默认 client。
func NewFetcher(client *http.Client, userAgent string) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if userAgent == "" {
		userAgent = resolver.DefaultUserAgent
	}
	return &Fetcher{client: client, userAgent: userAgent, maxBytes: 8 << 20}
}

func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("new feed request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &resolver.StatusError{URL: feedURL, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	return ParseFeed(ctx, string(body))
}
