package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// once 保证指标只注册一次，重复注册同名指标会 panic。
	once sync.Once

	// HTTPRequestsTotal：累计请求数（Counter）。
	//
	// labels：
	// - method：HTTP 方法
	// - route：路由模板（gin 的 FullPath，例如 /api/v1/resolutions/:id；不要用真实 path，否则 label 无限增长）
	// - status：HTTP 状态码字符串
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "HTTP请求的总数",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDurationSeconds：请求耗时分布（Histogram），用来算 P95/P99。
	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// HTTPInflightRequests：当前正在处理中的请求数（Gauge）。
	HTTPInflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// CacheOperations：解析结果缓存的命中情况。
	//
	// labels：
	// - layer：l1（进程内 ristretto）/ l2（Redis）
	// - result：hit / hit_negative / miss
	CacheOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gnlink_cache_operations_total",
			Help: "Resolution cache lookups by layer and result.",
		},
		[]string{"layer", "result"},
	)

	// Resolutions：每次解析的结果。
	//
	// labels：
	// - method：decoded / redirect / verified / failed
	Resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gnlink_resolutions_total",
			Help: "Google News link resolutions by method.",
		},
		[]string{"method"},
	)

	// UpstreamRequestDurationSeconds：出站请求（跳转解析 / 抓 og:image）的耗时。
	//
	// labels：
	// - op：redirect / og_image / preview
	// - outcome：ok / error
	UpstreamRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gnlink_upstream_request_duration_seconds",
			Help:    "Outbound request latency for redirect and page fetches.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"op", "outcome"},
	)

	// BatchInflight：批量解析中正在执行的任务数。
	BatchInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gnlink_batch_inflight",
			Help: "Batch resolution tasks currently running.",
		},
	)
)

// Init 注册指标：只允许注册一次（否则 panic: duplicate metrics collector registration）
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			HTTPInflightRequests,
			CacheOperations,
			Resolutions,
			UpstreamRequestDurationSeconds,
			BatchInflight,
		)
	})
}

// Outcome 把 error 映射成 label 值。
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
