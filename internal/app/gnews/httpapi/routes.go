// Package httpapi 只做传输层：参数校验、错误映射、响应格式；解析逻辑在 gnews/service。
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gnlink.local/internal/app/gnews"
	"gnlink.local/internal/app/gnews/batch"
	"gnlink.local/internal/app/gnews/repo"
	"gnlink.local/internal/app/gnews/resolver"
	"gnlink.local/internal/platform/auth"
	"gnlink.local/internal/platform/httpmiddleware"
	"gnlink.local/internal/platform/ratelimit"
)

type Resolver interface {
	Resolve(ctx context.Context, rawURL string, opts gnews.ResolveOptions) (gnews.Resolution, error)
	Invalidate(ctx context.Context, sourceURL string) error
}

type BatchResolver interface {
	ResolveAll(ctx context.Context, urls []string, opts gnews.ResolveOptions) []batch.Outcome
}

// PageInspector 抓原文页面，*resolver.Client 实现了它。
type PageInspector interface {
	ExtractOgImage(ctx context.Context, pageURL string) (string, error)
	Preview(ctx context.Context, pageURL string) (resolver.Preview, error)
}

type ResolutionStore interface {
	FindByID(ctx context.Context, id int64) (*gnews.Resolution, error)
	ListRecent(ctx context.Context, limit int, cursor int64) (*repo.Page, error)
	Delete(ctx context.Context, id int64) (string, error)
}

type UserStore interface {
	FindByUsername(ctx context.Context, username string) (repo.User, error)
}

type JobQueue interface {
	Enqueue(ctx context.Context, feedURL string) (string, error)
}

// Deps 里 Queue / Limiter 可以为 nil：没有队列时采集接口返回 503，没有限流器时不限流。
type Deps struct {
	Service     Resolver
	Batch       BatchResolver
	Pages       PageInspector
	Resolutions ResolutionStore
	Users       UserStore
	Tokens      auth.TokenService
	Queue       JobQueue
	Limiter     *ratelimit.Limiter

	RateLimitPerMin int // <=0 时为 60
}

// Register 把所有路由挂到 engine 上：/api/v1 给机器调用，/r 给浏览器直接打开。
func Register(r *gin.Engine, d Deps) {
	perMin := d.RateLimitPerMin
	if perMin <= 0 {
		perMin = 60
	}
	resolveLimit := httpmiddleware.RateLimit(d.Limiter, "resolve", perMin, time.Minute)
	fetchLimit := httpmiddleware.RateLimit(d.Limiter, "fetch", perMin, time.Minute)

	api := r.Group("/api/v1")
	// 离线解码不走网络，不限流
	api.GET("/decode", handleDecode)
	api.POST("/resolve", resolveLimit, handleResolve(d.Service))
	// 一次批量按 10 次算
	api.POST("/resolve/batch", httpmiddleware.RateLimit(d.Limiter, "batch", max(perMin/10, 1), time.Minute), handleBatch(d.Batch))
	api.GET("/og-image", fetchLimit, handleOgImage(d.Pages))
	api.GET("/preview", fetchLimit, handlePreview(d.Pages))
	api.GET("/resolutions", handleListResolutions(d.Resolutions))
	api.GET("/resolutions/:id", handleGetResolution(d.Resolutions))
	//登录 5次/分钟
	api.POST("/login", httpmiddleware.RateLimit(d.Limiter, "login", 5, time.Minute), handleLogin(d.Users, d.Tokens))

	admin := api.Group("/admin")
	admin.Use(httpmiddleware.AuthRequired(d.Tokens), httpmiddleware.RequireRole(auth.RoleAdmin))
	admin.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	admin.DELETE("/cache", handleInvalidate(d.Service))
	admin.POST("/collect", handleEnqueueCollect(d.Queue))
	admin.DELETE("/resolutions/:id", handleDeleteResolution(d.Resolutions, d.Service))

	r.GET("/r", resolveLimit, handleRedirect(d.Service))
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
}
