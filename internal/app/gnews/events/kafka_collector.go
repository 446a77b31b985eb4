package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

type KafkaCollector struct {
	writer *kafka.Writer
}

func NewKafkaCollector(brokers []string, topic string) *KafkaCollector {
	return &KafkaCollector{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
			Async:    true,
		},
	}
}

func (k *KafkaCollector) Collect(event ResolutionEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshal resolution event failed", "err", err)
		return
	}
	// 同一个源链接落在同一分区
	if err := k.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(event.SourceURL),
		Value: data,
	}); err != nil {
		slog.Error("kafka write failed", "err", err)
	}
}

func (k *KafkaCollector) Close() {
	if err := k.writer.Close(); err != nil {
		slog.Error("kafka writer close failed", "err", err)
	}
}
