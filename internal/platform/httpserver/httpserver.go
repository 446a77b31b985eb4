package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"gnlink.local/internal/platform/config"
)

func New(cfg config.Config, handler http.Handler) *http.Server {
	return NewWithAddr(cfg, cfg.Addr, handler)
}

// NewWithAddr 超时沿用 cfg，只换监听地址，管理端口用它。
func NewWithAddr(cfg config.Config, addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// RunAll 同时跑多个 server，任意一个监听失败或 ctx 结束时全部优雅关闭。
// 返回第一个非 ErrServerClosed 的错误。
func RunAll(ctx context.Context, shutdownTimeout time.Duration, servers ...*http.Server) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			return RunWithGracefulShutdownContext(srv, shutdownTimeout, gctx)
		})
	}
	return g.Wait()
}

// RunWithGracefulShutdownContext 阻塞到 stopCtx 结束或监听失败；
// stopCtx 结束后最多等 shutdownTimeout 让在途请求跑完。
func RunWithGracefulShutdownContext(srv *http.Server, shutdownTimeout time.Duration, stopCtx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-stopCtx.Done():
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}
	return nil
}
