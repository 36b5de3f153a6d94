package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"FinScout/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Reader is the subset of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer fans messages from one reader per topic out to a worker pool.
// Offsets are committed after a message is handled, or after it has been
// dead-lettered, so a poison message cannot stall a partition.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *logger.Logger
	metrics  *consumerMetrics
	handlers map[string]MessageHandler
	readers  map[string]Reader
	dlq      Writer
	msgChan  chan *message

	partMu    sync.Mutex
	partLocks map[string]map[int]*sync.Mutex

	cancel   context.CancelFunc
	readWg   sync.WaitGroup
	workerWg sync.WaitGroup
	stopOnce sync.Once
}

type message struct {
	topic string
	km    kafka.Message
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "finscout",
		WorkerCount: 1,
		BufferSize:  10,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 && cfg.ReaderFactory == nil {
		return nil, fmt.Errorf("brokers are required")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	c := &Consumer{
		cfg:       cfg,
		log:       log.With(logger.String("component", "kafka_consumer")),
		metrics:   newConsumerMetrics(cfg.Registerer),
		handlers:  make(map[string]MessageHandler),
		readers:   make(map[string]Reader),
		msgChan:   make(chan *message, cfg.BufferSize),
		partLocks: make(map[string]map[int]*sync.Mutex),
	}
	if cfg.DLQTopic != "" && len(cfg.Brokers) > 0 {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}
	return c, nil
}

// RegisterHandler registers a handler for its topic. Only the first handler
// per topic is kept.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("handler already registered", logger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// Start opens a reader per registered topic and starts the workers.
func (c *Consumer) Start(ctx context.Context) error {
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: no handlers registered")
	}
	ctx, c.cancel = context.WithCancel(ctx)

	for topic := range c.handlers {
		c.readers[topic] = c.newReader(topic)
	}
	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.workerWg.Add(1)
		go c.worker(ctx)
	}
	for topic, reader := range c.readers {
		c.readWg.Add(1)
		go c.consume(ctx, topic, reader)
	}
	c.log.Info("kafka consumer started",
		logger.Int("workers", c.cfg.WorkerCount),
		logger.Int("topics", len(c.readers)))
	return nil
}

func (c *Consumer) newReader(topic string) Reader {
	if c.cfg.ReaderFactory != nil {
		return c.cfg.ReaderFactory(topic)
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.cfg.Brokers,
		Topic:    topic,
		GroupID:  c.cfg.GroupID,
		MinBytes: c.cfg.MinBytes,
		MaxBytes: c.cfg.MaxBytes,
	})
}

// Stop cancels reads, drains buffered messages and closes the readers.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		if c.cancel == nil {
			return
		}
		c.cancel()
		c.readWg.Wait()
		close(c.msgChan)

		done := make(chan struct{})
		go func() {
			c.workerWg.Wait()
			close(done)
		}()
		select {
		case <-ctx.Done():
			stopErr = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		case <-done:
		}

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.log.Warn("closing reader", logger.String("topic", topic), logger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Warn("closing dlq writer", logger.Error(err))
			}
		}
		c.log.Info("kafka consumer stopped")
	})
	return stopErr
}

func (c *Consumer) consume(ctx context.Context, topic string, reader Reader) {
	defer c.readWg.Done()
	for {
		km, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("fetch failed", logger.String("topic", topic), logger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.cfg.BackoffMin):
			}
			continue
		}
		select {
		case c.msgChan <- &message{topic: topic, km: km}:
			if c.metrics != nil {
				c.metrics.depth.WithLabelValues(topic).Set(float64(len(c.msgChan)))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) worker(ctx context.Context) {
	defer c.workerWg.Done()
	for msg := range c.msgChan {
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg *message) {
	handler := c.handlers[msg.topic]
	start := time.Now()

	// one in-flight message per partition keeps per-key ordering
	pl := c.partitionLock(msg.topic, msg.km.Partition)
	pl.Lock()
	defer pl.Unlock()

	err := c.handleWithRetry(ctx, handler, msg)
	result := "ok"
	if err != nil {
		result = "error"
		c.log.Error("message handling failed",
			logger.String("topic", msg.topic),
			logger.Int("partition", msg.km.Partition),
			logger.Int64("offset", msg.km.Offset),
			logger.Error(err))
		if c.dlq != nil {
			result = "dead_lettered"
			if dlqErr := c.dlq.WriteMessages(context.Background(), kafka.Message{
				Topic:   c.cfg.DLQTopic,
				Key:     msg.km.Key,
				Value:   msg.km.Value,
				Time:    time.Now(),
				Headers: []kafka.Header{{Key: "source_topic", Value: []byte(msg.topic)}},
			}); dlqErr != nil {
				c.log.Error("dlq write failed", logger.String("topic", c.cfg.DLQTopic), logger.Error(dlqErr))
			}
		}
	}

	if err == nil || c.dlq != nil {
		if cerr := c.commitWithRetry(c.readers[msg.topic], msg.km, 3); cerr != nil {
			c.log.Error("offset commit failed", logger.String("topic", msg.topic), logger.Error(cerr))
		}
	}
	if c.metrics != nil {
		c.metrics.handled.WithLabelValues(msg.topic, result).Inc()
		c.metrics.latency.WithLabelValues(msg.topic).Observe(time.Since(start).Seconds())
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, handler MessageHandler, msg *message) (err error) {
	for attempt := 1; ; attempt++ {
		err = c.safeHandle(ctx, handler, msg.km.Value)
		if err == nil || attempt > c.cfg.RetryMax {
			return err
		}
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-ctx.Done():
			return err
		}
	}
}

func (c *Consumer) safeHandle(ctx context.Context, handler MessageHandler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler.Handle(ctx, data)
}

func (c *Consumer) commitWithRetry(reader Reader, km kafka.Message, max int) error {
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	return err
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	c.partMu.Lock()
	defer c.partMu.Unlock()
	byPart, ok := c.partLocks[topic]
	if !ok {
		byPart = make(map[int]*sync.Mutex)
		c.partLocks[topic] = byPart
	}
	l, ok := byPart[partition]
	if !ok {
		l = &sync.Mutex{}
		byPart[partition] = l
	}
	return l
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min * time.Duration(1<<uint(attempt-1))
	if exp > max || exp <= 0 {
		exp = max
	}
	// up to 50% jitter
	if half := int64(exp) / 2; half > 0 {
		exp -= time.Duration(rand.Int63n(half))
	}
	return exp
}
