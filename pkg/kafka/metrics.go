package kafka

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type producerMetrics struct {
	messages *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func newProducerMetrics(reg prometheus.Registerer) *producerMetrics {
	if reg == nil {
		return nil
	}
	return &producerMetrics{
		messages: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "finscout_kafka_producer_messages_total", Help: "Messages published to Kafka"},
			[]string{"topic", "result"},
		)),
		bytes: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "finscout_kafka_producer_bytes_total", Help: "Payload bytes published"},
			[]string{"topic"},
		)),
		latency: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "finscout_kafka_producer_publish_seconds", Help: "Publish latency", Buckets: prometheus.DefBuckets},
			[]string{"topic"},
		)),
	}
}

type consumerMetrics struct {
	handled *prometheus.CounterVec
	latency *prometheus.HistogramVec
	depth   *prometheus.GaugeVec
}

func newConsumerMetrics(reg prometheus.Registerer) *consumerMetrics {
	if reg == nil {
		return nil
	}
	return &consumerMetrics{
		handled: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "finscout_kafka_consumer_messages_total", Help: "Messages handled by result"},
			[]string{"topic", "result"},
		)),
		latency: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "finscout_kafka_consumer_handle_seconds", Help: "Handling time per message"},
			[]string{"topic"},
		)),
		depth: register(reg, prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "finscout_kafka_consumer_queue_depth", Help: "Messages waiting for a worker"},
			[]string{"topic"},
		)),
	}
}

// register returns the already registered collector when an identical one
// exists, so several clients can share a registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
