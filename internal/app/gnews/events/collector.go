package events

import (
	"sync"
	"time"
)

// Outcome 是一次解析的结局，和 Method 分开：失败时没有 Method。
const (
	OutcomeResolved    = "resolved"
	OutcomeUnresolved  = "unresolved"
	OutcomeError       = "error"
	OutcomeCacheHit    = "cache_hit"
	OutcomeCacheNegHit = "cache_negative"
)

// ResolutionEvent 每次 Resolve 调用结束时产生一条。
type ResolutionEvent struct {
	SourceURL string    `json:"source_url"`
	Method    string    `json:"method,omitempty"`
	Outcome   string    `json:"outcome"`
	LatencyMS int64     `json:"latency_ms"`
	At        time.Time `json:"at"`
}

// Collector 事件收集器：实现不能阻塞调用方。
type Collector interface {
	Collect(event ResolutionEvent)
	Close()
}

// ChannelCollector 进程内收集器，缓冲满了直接丢。
type ChannelCollector struct {
	mu     sync.RWMutex
	ch     chan ResolutionEvent
	closed bool
}

func NewChannelCollector(bufferSize int) *ChannelCollector {
	return &ChannelCollector{
		ch: make(chan ResolutionEvent, bufferSize),
	}
}

func (c *ChannelCollector) Collect(event ResolutionEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- event:
	default:
		// 满了，丢弃
	}
}

func (c *ChannelCollector) Events() <-chan ResolutionEvent {
	return c.ch
}

func (c *ChannelCollector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}

// Discard 什么都不做，没有配置事件管道时用。
type Discard struct{}

func (Discard) Collect(ResolutionEvent) {}
func (Discard) Close()                  {}
