package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/your-org/mediapipe/pkg/metrics"
)

// Header keys set on every post event.
const (
	HeaderEventType   = "event_type"
	HeaderEventID     = "event_id"
	HeaderContentType = "content_type"
)

// Producer publishes post lifecycle events through a kafka-go Writer.
type Producer struct {
	writer *kafkago.Writer
	now    func() time.Time
}

type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	Compression  kafkago.Compression
	RequiredAcks kafkago.RequiredAcks
	MaxAttempts  int
}

// NewProducer constructs a Producer from the given configuration.
// Messages are hashed by key so every event of one post lands on the
// same partition.
func NewProducer(cfg ProducerConfig) *Producer {
	return &Producer{
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafkago.Hash{},
			BatchSize:              cfg.BatchSize,
			BatchTimeout:           cfg.BatchTimeout,
			RequiredAcks:           cfg.RequiredAcks,
			Compression:            cfg.Compression,
			MaxAttempts:            cfg.MaxAttempts,
			AllowAutoTopicCreation: true,
		},
		now: time.Now,
	}
}

// PublishEvent marshals payload as JSON and writes it under key. The
// event type and a fresh event id travel as headers so consumers can
// filter and deduplicate without decoding the body.
func (p *Producer) PublishEvent(ctx context.Context, key, eventType string, payload any) error {
	msg, err := p.eventMessage(key, eventType, payload)
	if err != nil {
		metrics.EventsPublished.WithLabelValues(eventType, "encode_error").Inc()
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.EventsPublished.WithLabelValues(eventType, "failure").Inc()
		return fmt.Errorf("publish %s for %s: %w", eventType, key, err)
	}
	metrics.EventsPublished.WithLabelValues(eventType, "success").Inc()
	return nil
}

func (p *Producer) eventMessage(key, eventType string, payload any) (kafkago.Message, error) {
	value, err := json.Marshal(payload)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return kafkago.Message{
		Key:   []byte(key),
		Value: value,
		Time:  p.now().UTC(),
		Headers: []kafkago.Header{
			{Key: HeaderEventType, Value: []byte(eventType)},
			{Key: HeaderEventID, Value: []byte(uuid.NewString())},
			{Key: HeaderContentType, Value: []byte("application/json")},
		},
	}, nil
}

// Close flushes pending batches and closes the writer.
func (p *Producer) Close(ctx context.Context) error {
	return p.writer.Close()
}

// CompressionFromString maps a codec name to its kafka-go value. Unknown
// names fall back to snappy.
func CompressionFromString(name string) kafkago.Compression {
	switch strings.ToLower(name) {
	case "gzip":
		return kafkago.Gzip
	case "snappy":
		return kafkago.Snappy
	case "lz4":
		return kafkago.Lz4
	case "zstd":
		return kafkago.Zstd
	default:
		return kafkago.Snappy
	}
}
