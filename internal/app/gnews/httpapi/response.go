package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gnlink.local/internal/app/gnews"
	"gnlink.local/internal/app/gnews/resolver"
	"gnlink.local/internal/platform/httpmiddleware"
)

// ResolutionResponse 对外的解析结果，id 是 sqids 编码后的字符串。
type ResolutionResponse struct {
	ID          string       `json:"id,omitempty"`
	SourceURL   string       `json:"source_url"`
	ResolvedURL string       `json:"resolved_url"`
	Method      gnews.Method `json:"method"`
	Status      int          `json:"status,omitempty"`
	ContentType string       `json:"content_type,omitempty"`
	ImageURL    string       `json:"image_url,omitempty"`
	ResolvedAt  time.Time    `json:"resolved_at"`
}

func toResponse(r gnews.Resolution) ResolutionResponse {
	out := ResolutionResponse{
		SourceURL:   r.SourceURL,
		ResolvedURL: r.ResolvedURL,
		Method:      r.Method,
		Status:      r.Status,
		ContentType: r.ContentType,
		ImageURL:    r.ImageURL,
		ResolvedAt:  r.ResolvedAt,
	}
	if r.ID > 0 {
		out.ID, _ = gnews.EncodeID(r.ID)
	}
	return out
}

// writeError 把领域错误映射成 HTTP 状态码：
//
//	ErrInvalidURL / ErrForbiddenAddress -> 400, ErrNotFound -> 404, ErrUnresolvable -> 422, 其它上游失败 -> 502
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gnews.ErrInvalidURL):
		httpmiddleware.AbortWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, resolver.ErrForbiddenAddress):
		httpmiddleware.AbortWithError(c, http.StatusBadRequest, resolver.ErrForbiddenAddress.Error())
	case errors.Is(err, gnews.ErrNotFound), errors.Is(err, gnews.ErrInvalidID):
		httpmiddleware.AbortWithError(c, http.StatusNotFound, gnews.ErrNotFound.Error())
	case errors.Is(err, gnews.ErrUnresolvable):
		httpmiddleware.AbortWithError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		httpmiddleware.AbortWithError(c, http.StatusGatewayTimeout, "upstream timeout")
	default:
		slog.Warn("upstream request failed", "err", err, "path", c.Request.URL.Path)
		httpmiddleware.AbortWithError(c, http.StatusBadGateway, "upstream request failed")
	}
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		httpmiddleware.AbortWithError(c, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}
