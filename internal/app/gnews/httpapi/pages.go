package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gnlink.local/internal/app/gnews"
	"gnlink.local/internal/platform/httpmiddleware"
)

type OgImageResponse struct {
	URL      string `json:"url"`
	ImageURL string `json:"image_url"`
}

func pageURL(c *gin.Context) (string, bool) {
	raw := c.Query("url")
	if err := gnews.ValidateSourceURL(raw); err != nil {
		httpmiddleware.AbortWithError(c, http.StatusBadRequest, "url must be an absolute http(s) url")
		return "", false
	}
	return raw, true
}

// handleOgImage 页面没有 og:image 时 image_url 为空串，仍然是 200。
func handleOgImage(pages PageInspector) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := pageURL(c)
		if !ok {
			return
		}
		img, err := pages.ExtractOgImage(c.Request.Context(), u)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, OgImageResponse{URL: u, ImageURL: img})
	}
}

func handlePreview(pages PageInspector) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := pageURL(c)
		if !ok {
			return
		}
		p, err := pages.Preview(c.Request.Context(), u)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}
