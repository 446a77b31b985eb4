package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gnlink.local/internal/app/gnews"
	"gnlink.local/internal/platform/httpmiddleware"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type ResolutionList struct {
	Items      []ResolutionResponse `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

func handleGetResolution(store ResolutionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := gnews.DecodeID(c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		r, err := store.FindByID(c.Request.Context(), id)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, toResponse(*r))
	}
}

// handleListResolutions 游标分页，cursor 是上一页返回的 next_cursor。
func handleListResolutions(store ResolutionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultPageSize
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				httpmiddleware.AbortWithError(c, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = min(n, maxPageSize)
		}
		var cursor int64
		if v := c.Query("cursor"); v != "" {
			id, err := gnews.DecodeID(v)
			if err != nil {
				httpmiddleware.AbortWithError(c, http.StatusBadRequest, "invalid cursor")
				return
			}
			cursor = id
		}

		page, err := store.ListRecent(c.Request.Context(), limit, cursor)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		resp := ResolutionList{Items: make([]ResolutionResponse, 0, len(page.Items))}
		for _, r := range page.Items {
			resp.Items = append(resp.Items, toResponse(r))
		}
		if page.NextCursor != nil {
			resp.NextCursor, _ = gnews.EncodeID(*page.NextCursor)
		}
		c.JSON(http.StatusOK, resp)
	}
}

// handleDeleteResolution 删库之后顺带清掉这条链接的缓存。
func handleDeleteResolution(store ResolutionStore, svc Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := gnews.DecodeID(c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		sourceURL, err := store.Delete(c.Request.Context(), id)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		if err := svc.Invalidate(c.Request.Context(), sourceURL); err != nil {
			c.Error(err)
		}
		c.Status(http.StatusNoContent)
	}
}

// 数据库错误不能按上游失败算成 502。
func writeStoreError(c *gin.Context, err error) {
	if errors.Is(err, gnews.ErrNotFound) {
		writeError(c, err)
		return
	}
	c.Error(err)
	httpmiddleware.AbortWithError(c, http.StatusInternalServerError, "internal error")
}
