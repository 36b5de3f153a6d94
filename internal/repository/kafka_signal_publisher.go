package repository

import (
	"context"

	"FinScout/internal/domain/models"
	domrepo "FinScout/internal/domain/repository"
	pkgkafka "FinScout/pkg/kafka"
	"FinScout/pkg/logger"
)

// KafkaSignalPublisher writes each signal as a JSON message keyed by signal
// type, so consumers see one type's signals in order. It also ships the
// logger's aggregated batches.
type KafkaSignalPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

var (
	_ domrepo.SignalPublisher = (*KafkaSignalPublisher)(nil)
	_ logger.Publisher        = (*KafkaSignalPublisher)(nil)
)

func NewKafkaSignalPublisher(producer *pkgkafka.Producer, topic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

func (p *KafkaSignalPublisher) PublishSignals(ctx context.Context, signals []models.Signal) error {
	msgs := make([]pkgkafka.Message, 0, len(signals))
	for _, sig := range signals {
		msgs = append(msgs, pkgkafka.Message{
			Key:   []byte(sig.Type),
			Value: sig,
			Headers: map[string]string{
				"severity": string(sig.Severity),
				"source":   string(sig.Source),
			},
		})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaSignalPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}

func (p *KafkaSignalPublisher) Close() error { return p.producer.Close() }
