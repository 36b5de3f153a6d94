package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Writer is the subset of *kafka.Writer the producer needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Message represents a Kafka message.
type Message struct {
	Key     []byte
	Value   interface{}
	Headers map[string]string
}

// Producer wraps Kafka writer.
type Producer struct {
	writer  Writer
	metrics *producerMetrics
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := &ProducerConfig{
		RequiredAcks: -1,
		Compression:  "snappy",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		BatchSize:    100,
		BatchBytes:   1048576,
		BatchTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	w := cfg.Writer
	if w == nil {
		if len(cfg.Brokers) == 0 {
			return nil, fmt.Errorf("brokers are required")
		}
		bal := kafka.Balancer(&kafka.LeastBytes{})
		if cfg.HashByKey {
			bal = &kafka.Hash{}
		}
		w = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     bal,
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  parseCompression(cfg.Compression),
			MaxAttempts:  cfg.MaxAttempts,
			WriteTimeout: cfg.WriteTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			BatchSize:    cfg.BatchSize,
			BatchBytes:   int64(cfg.BatchBytes),
			BatchTimeout: cfg.BatchTimeout,
			Async:        cfg.Async,
		}
	}
	return &Producer{writer: w, metrics: newProducerMetrics(cfg.Registerer)}, nil
}

// Publish sends a single message to topic.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishBatch sends messages to topic in one write.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	start := time.Now()
	msgs := make([]kafka.Message, 0, len(messages))
	var totalBytes int
	for _, m := range messages {
		v, err := encodeValue(m.Value)
		if err != nil {
			return err
		}
		km := kafka.Message{Topic: topic, Key: m.Key, Value: v, Time: start}
		for k, hv := range m.Headers {
			km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(hv)})
		}
		msgs = append(msgs, km)
		totalBytes += len(v)
	}

	err := p.writer.WriteMessages(ctx, msgs...)
	p.observe(topic, totalBytes, len(msgs), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("kafka publish to %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

func (p *Producer) observe(topic string, bytes, count int, dur time.Duration, err error) {
	if p.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.metrics.messages.WithLabelValues(topic, result).Add(float64(count))
	p.metrics.bytes.WithLabelValues(topic).Add(float64(bytes))
	p.metrics.latency.WithLabelValues(topic).Observe(dur.Seconds())
}

func encodeValue(value interface{}) ([]byte, error) {
	switch val := value.(type) {
	case []byte:
		return val, nil
	case string:
		return []byte(val), nil
	default:
		v, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
		return v, nil
	}
}

func parseCompression(s string) kafka.Compression {
	switch s {
	case "none":
		return 0
	case "gzip":
		return kafka.Gzip
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Snappy
	}
}
