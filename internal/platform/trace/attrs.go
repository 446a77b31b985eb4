package trace

import (
	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// 解析链路上 span 的属性 key。
const (
	AttrSourceURL   = "gnlink.source_url"
	AttrResolvedURL = "gnlink.resolved_url"
	AttrMethod      = "gnlink.method"
	AttrCache       = "gnlink.cache"
	AttrBatchSize   = "gnlink.batch.size"
	AttrFeedURL     = "gnlink.feed_url"
)

const instrumentationName = "gnlink.local"

// Tracer 返回全局 TracerProvider 下的 tracer；没初始化时是 no-op。
func Tracer() oteltrace.Tracer {
	return otel.Tracer(instrumentationName)
}
