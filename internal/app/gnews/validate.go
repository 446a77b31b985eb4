package gnews

import (
	"errors"
	"net/url"
	"strings"
)

// ErrInvalidURL 是领域层对"输入 URL 不合法"的统一错误，HTTP 层稳定映射成 400。
var ErrInvalidURL = errors.New("invalid url")

const googleNewsHost = "news.google.com"

// ValidateSourceURL 校验待解析的链接：scheme 必须是 http/https，host 不能为空。
// 不要求一定是 Google News 链接，非 Google News 的短链也可以走跳转解析。
func ValidateSourceURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL
	}
	if strings.TrimSpace(u.Host) == "" {
		return ErrInvalidURL
	}
	return nil
}

// IsGoogleNewsURL 判断链接是否仍然停留在 news.google.com 上。
// 跳转解析如果最后还落在这里（例如同意页），说明没有拿到原文。
func IsGoogleNewsURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), googleNewsHost)
}
