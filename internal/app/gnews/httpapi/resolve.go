package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gnlink.local/internal/app/gnews"
	"gnlink.local/internal/platform/httpmiddleware"
)

const maxBatchURLs = 50

type DecodeResponse struct {
	URL        string `json:"url"`
	DecodedURL string `json:"decoded_url,omitempty"`
	OK         bool   `json:"ok"`
	Reason     string `json:"reason,omitempty"`
}

// handleDecode 解不出来也是 200，ok=false 并给出原因。
func handleDecode(c *gin.Context) {
	raw := c.Query("url")
	if raw == "" {
		httpmiddleware.AbortWithError(c, http.StatusBadRequest, "url is required")
		return
	}
	decoded, err := gnews.Explain(raw)
	resp := DecodeResponse{URL: raw, DecodedURL: decoded, OK: err == nil}
	if err != nil {
		resp.Reason = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

type ResolveRequest struct {
	URL        string `json:"url"`
	FetchImage bool   `json:"fetch_image"`
	Verify     bool   `json:"verify"`
}

func handleResolve(svc Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ResolveRequest
		if !bindJSON(c, &req) {
			return
		}
		res, err := svc.Resolve(c.Request.Context(), req.URL, gnews.ResolveOptions{
			FetchImage: req.FetchImage,
			Verify:     req.Verify,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, toResponse(res))
	}
}

type BatchRequest struct {
	URLs       []string `json:"urls"`
	FetchImage bool     `json:"fetch_image"`
}

type BatchItem struct {
	URL        string              `json:"url"`
	OK         bool                `json:"ok"`
	Resolution *ResolutionResponse `json:"resolution,omitempty"`
	Error      string              `json:"error,omitempty"`
	Attempts   int                 `json:"attempts"`
}

type BatchResponse struct {
	Total    int         `json:"total"`
	Resolved int         `json:"resolved"`
	Failed   int         `json:"failed"`
	Results  []BatchItem `json:"results"`
}

func handleBatch(pool BatchResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BatchRequest
		if !bindJSON(c, &req) {
			return
		}
		if len(req.URLs) == 0 {
			httpmiddleware.AbortWithError(c, http.StatusBadRequest, "urls is required")
			return
		}
		if len(req.URLs) > maxBatchURLs {
			httpmiddleware.AbortWithError(c, http.StatusBadRequest, "too many urls (max 50)")
			return
		}

		outcomes := pool.ResolveAll(c.Request.Context(), req.URLs, gnews.ResolveOptions{FetchImage: req.FetchImage})
		resp := BatchResponse{Total: len(outcomes), Results: make([]BatchItem, len(outcomes))}
		for i, o := range outcomes {
			item := BatchItem{URL: o.URL, Attempts: o.Attempts}
			if o.Err != nil {
				item.Error = o.Err.Error()
				resp.Failed++
			} else if o.Resolution != nil {
				r := toResponse(*o.Resolution)
				item.OK = true
				item.Resolution = &r
				resp.Resolved++
			}
			resp.Results[i] = item
		}
		c.JSON(http.StatusOK, resp)
	}
}

// handleRedirect 给浏览器用：解析成功直接 302 到原文。
func handleRedirect(svc Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Query("url")
		if raw == "" {
			httpmiddleware.AbortWithError(c, http.StatusBadRequest, "url is required")
			return
		}
		res, err := svc.Resolve(c.Request.Context(), raw, gnews.ResolveOptions{})
		if err != nil {
			writeError(c, err)
			return
		}
		c.Redirect(http.StatusFound, res.ResolvedURL)
	}
}
