package gnews

import (
	"errors"
	"time"
)

// Method 记录一条解析结果是怎么得到的。
type Method string

const (
	// MethodDecoded：离线解码 token 得到（不走网络）
	MethodDecoded Method = "decoded"
	// MethodRedirect：解码失败，靠 HTTP 跟随跳转得到
	MethodRedirect Method = "redirect"
	// MethodVerified：解码成功，并且经过一次真实跳转确认
	MethodVerified Method = "verified"
)

var (
	// ErrUnresolvable 表示"已经尝试过，但拿不到原文链接"。
	// 与网络错误区分开：它是正常结果，不应该重试。
	ErrUnresolvable = errors.New("link not resolvable")
	ErrNotFound     = errors.New("resolution not found")
)

// Resolution 是一次链接解析的结果（只关心业务含义，HTTP/DB 细节放在各自的包里）。
type Resolution struct {
	ID           int64     `json:"id,omitempty"`
	SourceURL    string    `json:"source_url"`
	ResolvedURL  string    `json:"resolved_url"`
	Method       Method    `json:"method"`
	Status       int       `json:"status,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	// ImageChecked 表示已经抓过一次 og:image；页面本来没图时 ImageURL 仍为空
	ImageChecked bool      `json:"image_checked,omitempty"`
	ResolvedAt   time.Time `json:"resolved_at"`
}

// ResolveOptions 控制一次解析要做多少网络工作。
//
// - FetchImage：解析成功后再抓一次原文页面的 og:image
// - Verify：即使离线解码成功，也走一次跳转确认最终地址
type ResolveOptions struct {
	FetchImage bool `json:"fetch_image"`
	Verify     bool `json:"verify"`
}
