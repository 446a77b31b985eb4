// gnlink 是命令行版本：不依赖数据库和 Redis，直接在本机解码 / 解析。
package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"gnlink.local/internal/app/gnews/resolver"
	"gnlink.local/internal/platform/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

type rootOptions struct {
	timeout   time.Duration
	userAgent string
	verbose   bool
	// 本机命令行可以放开内网地址
	allowPrivate bool
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	opts := &rootOptions{timeout: cfg.ResolverTimeout, userAgent: cfg.ResolverUserAgent}

	cmd := &cobra.Command{
		Use:           "gnlink",
		Short:         "Decode and resolve Google News article links",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", opts.timeout, "per-request network timeout")
	cmd.PersistentFlags().StringVar(&opts.userAgent, "user-agent", opts.userAgent, "User-Agent for outbound requests")
	cmd.PersistentFlags().BoolVar(&opts.allowPrivate, "allow-private", cfg.ResolverAllowPrivate, "allow requests to loopback and private addresses")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging to stderr")

	cmd.AddCommand(
		newDecodeCmd(),
		newResolveCmd(opts, cfg),
		newOgImageCmd(opts),
		newCollectCmd(opts, cfg),
	)
	return cmd
}

func (o *rootOptions) client() *resolver.Client {
	return resolver.New(resolver.Options{Timeout: o.timeout, UserAgent: o.userAgent, AllowPrivateNetworks: o.allowPrivate})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
