package events

import (
	"context"
	"time"
)

// Consumer 消费 ChannelCollector 里的事件。
type Consumer struct {
	sink      Sink
	collector *ChannelCollector
	batchSize int
	interval  time.Duration
}

func NewConsumer(sink Sink, collector *ChannelCollector) *Consumer {
	return &Consumer{
		sink:      sink,
		collector: collector,
		batchSize: 100,
		interval:  time.Second,
	}
}

// Run 阻塞，直到 ctx 结束或 collector 被关闭。
func (c *Consumer) Run(ctx context.Context) {
	runBatches(ctx, c.collector.Events(), c.batchSize, c.interval, c.sink, "resolution events")
}
