package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"gnlink.local/internal/app/gnews"
	"gnlink.local/internal/app/gnews/batch"
	"gnlink.local/internal/app/gnews/collect"
	"gnlink.local/internal/app/gnews/feed"
	"gnlink.local/internal/app/gnews/resolver"
	"gnlink.local/internal/app/gnews/service"
	"gnlink.local/internal/platform/config"
)

var errSomeFailed = errors.New("some links could not be resolved")

type decodeLine struct {
	URL        string `json:"url"`
	DecodedURL string `json:"decoded_url,omitempty"`
	OK         bool   `json:"ok"`
	Reason     string `json:"reason,omitempty"`
}

// decode 纯离线：每个参数输出一行 JSON，有任何一条失败就以非零退出。
func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <url>...",
		Short: "Decode article links offline (no network)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := false
			for _, u := range args {
				decoded, err := gnews.Explain(u)
				line := decodeLine{URL: u, DecodedURL: decoded, OK: err == nil}
				if err != nil {
					line.Reason = err.Error()
					failed = true
				}
				if err := writeJSON(cmd.OutOrStdout(), line); err != nil {
					return err
				}
			}
			if failed {
				return errSomeFailed
			}
			return nil
		},
	}
}

type resolveLine struct {
	URL        string            `json:"url"`
	Resolution *gnews.Resolution `json:"resolution,omitempty"`
	Error      string            `json:"error,omitempty"`
	Attempts   int               `json:"attempts"`
}

func newResolveCmd(opts *rootOptions, cfg config.Config) *cobra.Command {
	var ro gnews.ResolveOptions
	concurrency := cfg.BatchConcurrency
	interval := cfg.BatchMinInterval
	retries := cfg.ResolverRetries

	cmd := &cobra.Command{
		Use:   "resolve <url>...",
		Short: "Resolve article links, following redirects when decoding fails",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool := batch.New(service.New(opts.client()), batch.Options{
				Concurrency: concurrency,
				MinInterval: interval,
				Retries:     retries,
			})
			failed := false
			for _, o := range pool.ResolveAll(cmd.Context(), args, ro) {
				line := resolveLine{URL: o.URL, Resolution: o.Resolution, Attempts: o.Attempts}
				if o.Err != nil {
					line.Error = o.Err.Error()
					failed = true
				}
				if err := writeJSON(cmd.OutOrStdout(), line); err != nil {
					return err
				}
			}
			if failed {
				return errSomeFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&ro.FetchImage, "image", false, "also fetch og:image of the article")
	cmd.Flags().BoolVar(&ro.Verify, "verify", false, "confirm decoded links with a real redirect")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", concurrency, "parallel resolutions")
	cmd.Flags().DurationVar(&interval, "interval", interval, "minimum gap between request starts")
	cmd.Flags().IntVar(&retries, "retries", retries, "extra attempts on network errors")
	return cmd
}

func newOgImageCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "og-image <url>",
		Short: "Print the og:image of a page (empty line if none)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := gnews.ValidateSourceURL(args[0]); err != nil {
				return err
			}
			img, err := opts.client().ExtractOgImage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), img)
			return nil
		},
	}
}

func newCollectCmd(opts *rootOptions, cfg config.Config) *cobra.Command {
	var query, lang, country string
	var noImage bool

	cmd := &cobra.Command{
		Use:   "collect [feed-url]",
		Short: "Fetch a Google News feed and resolve every item",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var feedURL string
			switch {
			case len(args) == 1:
				feedURL = args[0]
			case query != "":
				feedURL = feed.SearchURL(query, lang, country)
			default:
				return errors.New("either a feed url or --query is required")
			}

			fetcher := feed.NewFetcher(&http.Client{Timeout: opts.timeout, Transport: resolver.NewTransport(opts.allowPrivate)}, opts.userAgent)
			pool := batch.New(service.New(opts.client()), batch.Options{
				Concurrency: cfg.BatchConcurrency,
				MinInterval: cfg.BatchMinInterval,
				Retries:     cfg.ResolverRetries,
			})
			rep, err := collect.New(fetcher, pool).
				WithOptions(gnews.ResolveOptions{FetchImage: !noImage}).
				Run(cmd.Context(), feedURL)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rep)
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Google News search query")
	cmd.Flags().StringVar(&lang, "lang", "en", "feed language")
	cmd.Flags().StringVar(&country, "country", "US", "feed country")
	cmd.Flags().BoolVar(&noImage, "no-image", false, "skip og:image extraction")
	return cmd
}
