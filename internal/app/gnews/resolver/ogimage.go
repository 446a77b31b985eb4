package resolver

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"
)

// 只认 property 在 content 前面的写法，取第一处匹配。
var ogImageRe = regexp.MustCompile(`(?i)<meta[^>]+property=["']og:image["'][^>]+content=["']([^"']+)["']`)

// ExtractOgImage 抓取页面并返回 og:image 的地址。
//
// 页面没有 og:image 是很常见的正常情况：返回 ("", nil)。
// 网络失败或非 2xx 才返回 error。
func (c *Client) ExtractOgImage(ctx context.Context, pageURL string) (string, error) {
	body, _, err := c.fetchPage(ctx, pageURL)
	if err != nil {
		return "", err
	}
	return matchOgImage(body), nil
}

func matchOgImage(body []byte) string {
	m := ogImageRe.FindSubmatch(body)
	if m == nil {
		return ""
	}
	return html.UnescapeString(string(m[1]))
}

// Preview 是原文页面的链接预览信息。
type Preview struct {
	URL         string `json:"url"`
	FinalURL    string `json:"final_url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	SiteName    string `json:"site_name,omitempty"`
	Type        string `json:"type,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// Preview 用完整的 OpenGraph 解析（不受属性顺序影响）生成预览，
// og 数据不全时用 <title> / meta description 兜底。
func (c *Client) Preview(ctx context.Context, pageURL string) (Preview, error) {
	body, finalURL, err := c.fetchPage(ctx, pageURL)
	if err != nil {
		return Preview{}, err
	}

	og := opengraph.NewOpenGraph()
	if err := og.ProcessHTML(bytes.NewReader(body)); err != nil {
		return Preview{}, fmt.Errorf("parse opengraph: %w", err)
	}

	p := Preview{
		URL:         pageURL,
		FinalURL:    finalURL,
		Title:       strings.TrimSpace(og.Title),
		Description: strings.TrimSpace(og.Description),
		SiteName:    og.SiteName,
		Type:        og.Type,
	}
	if len(og.Images) > 0 && og.Images[0].URL != "" {
		p.ImageURL = absoluteURL(finalURL, og.Images[0].URL)
	}

	if p.Title == "" || p.Description == "" {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err == nil {
			if p.Title == "" {
				p.Title = strings.TrimSpace(doc.Find("title").First().Text())
			}
			if p.Description == "" {
				if v, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
					p.Description = strings.TrimSpace(v)
				}
			}
		}
	}
	return p, nil
}

func absoluteURL(base, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
