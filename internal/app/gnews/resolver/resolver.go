// Package resolver 负责需要走网络的那一半：跟随 Google News 的跳转拿到最终地址，
// 以及从原文页面里抽取 og:image。
//
// 每次调用都是一次全新的网络往返：没有重试、没有缓存、没有并发限制，
// 这些都由调用方（service / batch）自己控制。
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultUserAgent：目标站点会拒绝默认的 Go-http-client 标识，所以伪装成浏览器。
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

const htmlAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

var (
	ErrTooManyRedirects = errors.New("too many redirects")
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// StatusError 表示请求本身成功了，但最终状态码不是 2xx/3xx。
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s returned %d", ErrUnexpectedStatus, e.URL, e.Status)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// Options 配置 Client。零值字段会被 DefaultOptions 里的值替代。
type Options struct {
	Timeout      time.Duration // 单次调用（含全部跳转）的超时
	UserAgent    string
	MaxRedirects int
	MaxBodyBytes int64 // 抓页面时最多读多少字节
	// Transport 为 nil 时用 NewTransport(AllowPrivateNetworks)。
	// 自己传 Transport 时要自己负责内网地址的拦截。
	Transport http.RoundTripper
	// AllowPrivateNetworks 允许连接本机 / 内网地址，只给测试和本地调试用。
	AllowPrivateNetworks bool
}

func DefaultOptions() Options {
	return Options{
		Timeout:      10 * time.Second,
		UserAgent:    DefaultUserAgent,
		MaxRedirects: 10,
		MaxBodyBytes: 2 << 20,
	}
}

// RedirectResult 是跳转解析的结果。ContentType 在响应没有该头时为空串。
type RedirectResult struct {
	FinalURL    string `json:"final_url"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
}

type Client struct {
	http *http.Client
	opts Options
}

func New(opts Options) *Client {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = def.MaxRedirects
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = def.MaxBodyBytes
	}
	transport := opts.Transport
	if transport == nil {
		transport = NewTransport(opts.AllowPrivateNetworks)
	}
	return &Client{
		http: &http.Client{
			Transport:     transport,
			CheckRedirect: redirectPolicy(opts.MaxRedirects),
		},
		opts: opts,
	}
}

// redirectPolicy 跟随跳转直到跳数达到 maxHops，然后返回 ErrTooManyRedirects。
func redirectPolicy(maxHops int) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxHops {
			return ErrTooManyRedirects
		}
		return nil
	}
}

// ResolveRedirect 请求 Google News 链接并跟随跳转，返回最终落地的地址。
//
// 先发 HEAD；服务端对 HEAD 回 405/501 时改用 GET。
// 网络错误、超时、最终状态码不在 2xx/3xx 都会返回 error，不会吞掉：
// 调用方需要区分"试过但失败"和"离线解码成功"。
func (c *Client) ResolveRedirect(ctx context.Context, rawURL string) (RedirectResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodHead, rawURL, "")
	if err != nil {
		return RedirectResult{}, err
	}
	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		resp.Body.Close()
		resp, err = c.do(ctx, http.MethodGet, rawURL, "")
		if err != nil {
			return RedirectResult{}, err
		}
	}
	defer resp.Body.Close()
	// 只需要状态和头，body 少量读掉以便连接复用
	_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)

	res := RedirectResult{
		FinalURL:    resp.Request.URL.String(),
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return res, &StatusError{URL: res.FinalURL, Status: resp.StatusCode}
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, method, rawURL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, rawURL, err)
	}
	return resp, nil
}

// fetchPage GET 一个 HTML 页面，body 最多读 MaxBodyBytes。
func (c *Client) fetchPage(ctx context.Context, pageURL string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, pageURL, htmlAccept)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &StatusError{URL: resp.Request.URL.String(), Status: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxBodyBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	return body, resp.Request.URL.String(), nil
}
