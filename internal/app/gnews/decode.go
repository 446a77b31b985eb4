package gnews

import (
	"encoding/base64"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Decode 尝试在不访问网络的情况下，从 Google News 的 /articles/<token> 链接里还原原文 URL。
//
// token 实际上是一段类似 protobuf 的二进制（格式没有公开文档），这里不做完整解析，
// 只是 base64 解码后扫描第一段连续的 http(s):// 可打印文本。这是经验性的启发式规则，
// Google 改了编码就可能失效，所以失败是常态而不是异常：ok=false 即可，调用方自己决定是否走跳转。
//
// 纯函数：无状态、无 I/O、不会 panic。
func Decode(googleNewsURL string) (string, bool) {
	u, err := Explain(googleNewsURL)
	if err != nil {
		return "", false
	}
	return u, true
}

var (
	ErrNotGoogleNews     = errors.New("not a google news article link")
	ErrBadToken          = errors.New("article token is not valid base64")
	ErrNoEmbeddedURL     = errors.New("no embedded url in token")
	ErrRejectedCandidate = errors.New("embedded url failed validation")
)

var (
	articleTokenRe = regexp.MustCompile(`/articles/([^?]+)`)
	embeddedURLRe  = regexp.MustCompile(`https?://[^\x00-\x1f\x7f\s\x{FFFD}]+`)
)

const (
	minCandidateLen = 10
	maxCandidateLen = 500
)

// Explain 与 Decode 走同一套流程，但把失败原因以哨兵错误返回，方便打点和 API 回显。
func Explain(googleNewsURL string) (string, error) {
	token, ok := Token(googleNewsURL)
	if !ok {
		return "", ErrNotGoogleNews
	}

	raw, err := decodeToken(token)
	if err != nil {
		return "", ErrBadToken
	}

	// 非文本区域会变成 U+FFFD，这是预期内的，不算错误。
	// 扫描 URL 时 U+FFFD 和控制字符一样视为终止符，否则 URL 后面紧跟的下一个字段会被粘上。
	text := strings.ToValidUTF8(string(raw), "\uFFFD")

	candidate := embeddedURLRe.FindString(text)
	if candidate == "" {
		return "", ErrNoEmbeddedURL
	}
	candidate = TrimControlSuffix(candidate)
	if !ValidCandidate(candidate) {
		return "", ErrRejectedCandidate
	}
	return candidate, nil
}

// Token 取出 /articles/ 后面、? 之前的那段 token。
func Token(googleNewsURL string) (string, bool) {
	m := articleTokenRe.FindStringSubmatch(googleNewsURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// decodeToken：URL-safe -> 标准字母表，再做标准 base64 解码。
// token 通常不带 padding，两种写法都接受。
func decodeToken(token string) ([]byte, error) {
	s := strings.NewReplacer("-", "+", "_", "/").Replace(token)
	s = strings.TrimRight(s, "=")
	return base64.RawStdEncoding.DecodeString(s)
}

// TrimControlSuffix 去掉末尾连续的控制字符（0x00-0x1F、0x7F），解码残留常常会带 1~2 个。
func TrimControlSuffix(s string) string {
	return strings.TrimRightFunc(s, func(r rune) bool {
		return r <= 0x1f || r == 0x7f
	})
}

// ValidCandidate 是最终的启发式过滤：必须含有 "."，长度严格介于 10 和 500 之间。
// 长度按字符数计算，不是字节数。
func ValidCandidate(s string) bool {
	n := utf8.RuneCountInString(s)
	if n <= minCandidateLen || n >= maxCandidateLen {
		return false
	}
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return false
	}
	return strings.Contains(s, ".")
}
