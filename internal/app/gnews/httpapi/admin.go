package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"gnlink.local/internal/app/gnews"
	"gnlink.local/internal/app/gnews/repo"
	"gnlink.local/internal/platform/auth"
	"gnlink.local/internal/platform/httpmiddleware"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

func handleLogin(users UserStore, ts auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if !bindJSON(c, &req) {
			return
		}
		dbctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()
		user, err := users.FindByUsername(dbctx, req.Username)
		if err != nil {
			if errors.Is(err, repo.ErrUserNotFound) {
				httpmiddleware.AbortWithError(c, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
				return
			}
			slog.Error("find user failed", "err", err)
			httpmiddleware.AbortWithError(c, http.StatusInternalServerError, "internal error")
			return
		}
		if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
			httpmiddleware.AbortWithError(c, http.StatusUnauthorized, err.Error())
			return
		}
		token, err := ts.Sign(strconv.FormatInt(user.ID, 10), user.Role)
		if err != nil {
			slog.Error("sign token failed", "err", err)
			httpmiddleware.AbortWithError(c, http.StatusInternalServerError, "internal error")
			return
		}
		c.JSON(http.StatusOK, LoginResponse{Token: token})
	}
}

// handleInvalidate 清掉某个链接的缓存（含负缓存），下一次请求会重新解析。
func handleInvalidate(svc Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Query("url")
		if err := gnews.ValidateSourceURL(raw); err != nil {
			writeError(c, err)
			return
		}
		if err := svc.Invalidate(c.Request.Context(), raw); err != nil {
			c.Error(err)
			httpmiddleware.AbortWithError(c, http.StatusInternalServerError, "cache invalidate failed")
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type CollectRequest struct {
	FeedURL string `json:"feed_url"`
}

type CollectResponse struct {
	MessageID string `json:"message_id"`
	FeedURL   string `json:"feed_url"`
}

func handleEnqueueCollect(q JobQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		if q == nil {
			httpmiddleware.AbortWithError(c, http.StatusServiceUnavailable, "collect queue disabled")
			return
		}
		var req CollectRequest
		if !bindJSON(c, &req) {
			return
		}
		if err := gnews.ValidateSourceURL(req.FeedURL); err != nil {
			writeError(c, err)
			return
		}
		id, err := q.Enqueue(c.Request.Context(), req.FeedURL)
		if err != nil {
			c.Error(err)
			httpmiddleware.AbortWithError(c, http.StatusInternalServerError, "enqueue failed")
			return
		}
		c.JSON(http.StatusAccepted, CollectResponse{MessageID: id, FeedURL: req.FeedURL})
	}
}
