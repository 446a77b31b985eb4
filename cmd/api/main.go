package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"gnlink.local/internal/app/gnews/batch"
	gncache "gnlink.local/internal/app/gnews/cache"
	"gnlink.local/internal/app/gnews/collect"
	"gnlink.local/internal/app/gnews/events"
	"gnlink.local/internal/app/gnews/feed"
	"gnlink.local/internal/app/gnews/httpapi"
	"gnlink.local/internal/app/gnews/queue"
	"gnlink.local/internal/app/gnews/repo"
	"gnlink.local/internal/app/gnews/resolver"
	"gnlink.local/internal/app/gnews/service"
	"gnlink.local/internal/app/gnews/worker"
	"gnlink.local/internal/platform/auth"
	platformcache "gnlink.local/internal/platform/cache"
	"gnlink.local/internal/platform/config"
	"gnlink.local/internal/platform/db"
	"gnlink.local/internal/platform/httpmiddleware"
	"gnlink.local/internal/platform/httpserver"
	"gnlink.local/internal/platform/metrics"
	"gnlink.local/internal/platform/migrate"
	"gnlink.local/internal/platform/ratelimit"
	"gnlink.local/internal/platform/trace"
	"gnlink.local/migrations"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg := config.Load()

	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var h slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.LogFormat == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB
	dbCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	dbPool, errDB := db.New(dbCtx, cfg.DBDSN)
	if errDB != nil {
		log.Fatal(errDB)
	}
	defer dbPool.Close()
	slog.Info("数据库连接成功")

	if cfg.MigrateOnStart {
		res, err := migrate.Up(context.Background(), dbPool, migrate.Options{Dir: cfg.MigrationsDir, FS: migrations.FS})
		if err != nil {
			log.Fatal(err)
		}
		slog.Info("migrations done", "source", res.Source, "applied", res.AppliedFiles, "skipped", len(res.SkippedFiles))
	}

	usersRepo := repo.NewUsersRepo(dbPool)
	if cfg.AdminUsername != "" && cfg.AdminPasswordHash != "" {
		if _, err := usersRepo.EnsureAdmin(context.Background(), cfg.AdminUsername, cfg.AdminPasswordHash); err != nil {
			log.Fatal(err)
		}
	}

	//Redis
	redisClient, errRedis := platformcache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if errRedis != nil {
		log.Fatal(errRedis)
	}
	defer redisClient.Close()

	var limiter *ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewLimiter(redisClient)
	} else {
		slog.Warn("RateLimit disabled by config", "RATELIMIT_ENABLED", false)
	}

	//解析结果缓存：本地 ristretto + Redis
	localCache, errLocal := gncache.NewLocalCache(100000, 1<<26) // 10万条目，64MB
	if errLocal != nil {
		log.Fatal(errLocal)
	}
	resCache := gncache.NewResolutionCache(redisClient, localCache, cfg.CacheTTL, cfg.CacheNegativeTTL)
	defer resCache.Close()

	//预期 100 万条源链接，1% 误判率
	sourceFilter := gncache.NewSourceFilter(1_000_000, 0.01)
	resolutionsRepo := repo.NewResolutionsRepo(dbPool, sourceFilter)
	if n, err := resolutionsRepo.WarmBloom(context.Background()); err != nil {
		slog.Warn("warm bloom filter failed", "err", err)
	} else {
		slog.Info("bloom filter warmed", "items", n)
		if sourceFilter.Saturated() {
			slog.Warn("bloom filter saturated, false positives will rise", "approx_items", sourceFilter.Len())
		}
	}

	//解析事件（根据配置选择 Channel 或 Kafka）
	sink := events.NewPGSink(dbPool)
	var collector events.Collector
	var kafkaConsumer *events.KafkaConsumer
	var channelConsumer *events.Consumer
	if cfg.KafkaEnabled {
		slog.Info("使用 Kafka 收集解析事件", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		collector = events.NewKafkaCollector(cfg.KafkaBrokers, cfg.KafkaTopic)
		kafkaConsumer = events.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, sink)
	} else {
		slog.Info("使用 Channel 收集解析事件")
		channelCollector := events.NewChannelCollector(10000)
		collector = channelCollector
		channelConsumer = events.NewConsumer(sink, channelCollector)
	}

	ts, jwtErr := auth.NewHS256Service(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if jwtErr != nil {
		log.Fatal(jwtErr)
	}

	metrics.Init()

	if cfg.TracingEnabled {
		shutdown := trace.InitTrace(cfg.OtlpGrpcEndpoint, cfg.OtlpServiceName)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				slog.Error(err.Error())
			}
		}()
	} else {
		slog.Warn("Tracing disabled by config", "TRACING_ENABLED", false)
	}

	//出站请求
	var transport http.RoundTripper = resolver.NewTransport(cfg.ResolverAllowPrivate)
	if cfg.ResolverAllowPrivate {
		slog.Warn("outbound requests may reach private networks", "RESOLVER_ALLOW_PRIVATE", true)
	}
	if cfg.TracingEnabled {
		transport = otelhttp.NewTransport(transport)
	}
	client := resolver.New(resolver.Options{
		Timeout:      cfg.ResolverTimeout,
		UserAgent:    cfg.ResolverUserAgent,
		MaxRedirects: cfg.ResolverMaxRedirects,
		MaxBodyBytes: cfg.ResolverMaxBodyBytes,
		Transport:    transport,
	})

	svc := service.New(client,
		service.WithStore(resolutionsRepo),
		service.WithCache(resCache),
		service.WithEvents(collector),
	)
	pool := batch.New(svc, batch.Options{
		Concurrency: cfg.BatchConcurrency,
		MinInterval: cfg.BatchMinInterval,
		Retries:     cfg.ResolverRetries,
	})

	var collectQueue *queue.CollectQueue
	var collectWorker *worker.CollectWorker
	if cfg.CollectEnabled {
		q, err := queue.NewCollectQueue(context.Background(), redisClient, queue.Config{
			Stream:   cfg.CollectStream,
			Group:    cfg.CollectGroup,
			Consumer: cfg.CollectConsumer,
		})
		if err != nil {
			log.Fatal(err)
		}
		collectQueue = q
		fetcher := feed.NewFetcher(&http.Client{Timeout: 20 * time.Second, Transport: transport}, cfg.ResolverUserAgent)
		collectWorker = worker.NewCollectWorker(q, collect.New(fetcher, pool))
	} else {
		slog.Warn("Collect worker disabled by config", "COLLECT_ENABLED", false)
	}

	// 对外业务
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(httpmiddleware.RequestID(), httpmiddleware.Recovery(), httpmiddleware.AccessLog(), httpmiddleware.Metrics(), httpmiddleware.TraceName())

	deps := httpapi.Deps{
		Service:         svc,
		Batch:           pool,
		Pages:           client,
		Resolutions:     resolutionsRepo,
		Users:           usersRepo,
		Tokens:          ts,
		Limiter:         limiter,
		RateLimitPerMin: cfg.RateLimitPerMin,
	}
	// 接口值不能直接放 typed nil 指针
	if collectQueue != nil {
		deps.Queue = collectQueue
	}
	httpapi.Register(r, deps)

	publicHandler := http.Handler(r)
	if cfg.TracingEnabled {
		publicHandler = otelhttp.NewHandler(r, "http")
	}
	publicSrv := httpserver.New(cfg, publicHandler)

	// 仅本机/内网
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	// 数据库 + Redis 连接状态检测
	adminMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := dbPool.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("DB Ping Err"))
			return
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Redis Ping Err"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	adminMux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"service_name": cfg.ServiceName,
			"version":      version,
			"commit":       commit,
			"build_time":   buildTime,
			"go_version":   runtime.Version(),
		})
	})

	if cfg.PprofEnabled {
		adminMux.HandleFunc("/debug/pprof/", pprof.Index)
		adminMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		adminMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		adminMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		adminMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	adminSrv := httpserver.NewWithAddr(cfg, cfg.AdminAddr, adminMux)

	if kafkaConsumer != nil {
		go kafkaConsumer.Run(stopCtx)
		defer kafkaConsumer.Close()
	}
	if channelConsumer != nil {
		go channelConsumer.Run(stopCtx)
	}
	defer collector.Close()

	if collectWorker != nil {
		collectWorker.OnReport(func(rep collect.Report) {
			slog.Info("feed collected", "feed", rep.FeedURL, "items", rep.Items, "resolved", rep.Resolved, "failed", rep.Failed, "elapsed", rep.Elapsed)
		})
		go collectWorker.Run(stopCtx)
	}

	if err := httpserver.RunAll(stopCtx, cfg.ShutdownTimeout, publicSrv, adminSrv); err != nil {
		slog.Error("server exited", "err", err)
		stop()
		os.Exit(1)
	}
}
