package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"FinScout/pkg/logger"
)

// Mode selects which half of the queue runs in this process.
type Mode int

const (
	ModeProducerConsumer Mode = iota
	ModeProducerOnly
	ModeConsumerOnly
)

func (m Mode) String() string {
	switch m {
	case ModeProducerOnly:
		return "producer-only"
	case ModeConsumerOnly:
		return "consumer-only"
	default:
		return "producer-consumer"
	}
}

const (
	pollTimeout   = time.Second
	retryInterval = 5 * time.Second
)

// RedisQueue is a list-backed work queue with a sorted-set retry schedule
// and a dead-letter list.
type RedisQueue struct {
	log    *logger.Logger
	cfg    Config
	client *redis.Client
	mode   Mode

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
}

func NewRedisQueue(log *logger.Logger, cfg Config, client *redis.Client, mode Mode) *RedisQueue {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "finscout:queue"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisQueue{
		log:    log.With(logger.String("component", "queue"), logger.String("prefix", cfg.KeyPrefix)),
		cfg:    cfg,
		client: client,
		mode:   mode,
		jobs:   make(map[string]Job),
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}
}

// Register adds jobs. Registration is ignored in producer-only mode.
func (r *RedisQueue) Register(jobs ...Job) {
	if r.mode == ModeProducerOnly {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range jobs {
		if _, exists := r.jobs[job.Type()]; exists {
			r.log.Warn("job already registered", logger.String("job", job.Name()))
			continue
		}
		r.jobs[job.Type()] = job
		r.log.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
	}
}

func (r *RedisQueue) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("queue already running")
	}
	r.mu.Unlock()

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(pctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	r.mu.Lock()
	r.running = true
	r.mu.Unlock()

	if r.mode != ModeProducerOnly {
		for i := 0; i < r.cfg.Workers; i++ {
			r.wg.Add(1)
			go r.worker(i)
		}
		r.wg.Add(1)
		go r.retryLoop()
	}
	r.log.Info("redis queue started", logger.Int("workers", r.cfg.Workers), logger.String("mode", r.mode.String()))
	return nil
}

// Stop cancels the workers and waits for in-flight jobs or ctx.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("waiting for queue workers: %w", ctx.Err())
	case <-done:
		r.log.Info("redis queue stopped")
		return nil
	}
}

// Enqueue pushes a message and returns its id.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error) {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()

	if !running {
		return "", errors.New("queue not running")
	}
	if r.mode != ModeProducerOnly && !known {
		return "", fmt.Errorf("no job registered for type %q", msgType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := Message{ID: uuid.NewString(), Type: msgType, Payload: raw, Timestamp: r.now().UTC()}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.key("messages"), string(data)).Err(); err != nil {
		return "", fmt.Errorf("lpush: %w", err)
	}
	return msg.ID, nil
}

func (r *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	var err error
	if s.Pending, err = r.client.LLen(ctx, r.key("messages")).Result(); err != nil {
		return Stats{}, fmt.Errorf("llen: %w", err)
	}
	if s.Retrying, err = r.client.ZCard(ctx, r.key("retry")).Result(); err != nil {
		return Stats{}, fmt.Errorf("zcard: %w", err)
	}
	if s.Dead, err = r.client.LLen(ctx, r.key("dlq")).Result(); err != nil {
		return Stats{}, fmt.Errorf("llen dlq: %w", err)
	}
	return s, nil
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			r.log.Debug("queue worker stopping", logger.Int("worker_id", id))
			return
		default:
			r.next()
		}
	}
}

func (r *RedisQueue) next() {
	res, err := r.client.BRPop(r.ctx, pollTimeout, r.key("messages")).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		r.log.Error("brpop failed", logger.Error(err))
		select {
		case <-r.ctx.Done():
		case <-time.After(pollTimeout):
		}
		return
	}
	if len(res) < 2 {
		return
	}

	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		r.log.Error("dropping undecodable message", logger.Error(err))
		return
	}
	r.process(r.ctx, msg)
}

// process runs one message through its job and schedules a retry or
// dead-letters it on failure.
func (r *RedisQueue) process(ctx context.Context, msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.log.Error("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.deadLetter(msg)
		return
	}

	start := r.now()
	err := job.Handle(ctx, msg.Payload)
	if err == nil {
		r.log.Debug("message processed",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Duration("elapsed", r.now().Sub(start)))
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}

	msg.Attempts++
	r.log.Error("message processing failed",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts),
		logger.Error(err))

	if msg.Attempts > r.cfg.RetryLimit {
		r.deadLetter(msg)
		return
	}
	r.scheduleRetry(msg, r.now().Add(time.Duration(msg.Attempts)*r.cfg.RetryDelay))
}

func (r *RedisQueue) scheduleRetry(msg Message, at time.Time) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("marshal retry", logger.Error(err))
		return
	}
	err = r.client.ZAdd(context.Background(), r.key("retry"), redis.Z{
		Score:  float64(at.Unix()),
		Member: string(data),
	}).Err()
	if err != nil {
		r.log.Error("zadd retry", logger.Error(err))
	}
}

func (r *RedisQueue) deadLetter(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("marshal dead letter", logger.Error(err))
		return
	}
	if err := r.client.LPush(context.Background(), r.key("dlq"), string(data)).Err(); err != nil {
		r.log.Error("lpush dead letter", logger.Error(err))
	}
}

func (r *RedisQueue) retryLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.promoteRetries(r.ctx)
		}
	}
}

// promoteRetries moves due retries back onto the work list.
func (r *RedisQueue) promoteRetries(ctx context.Context) {
	due, err := r.client.ZRangeByScore(ctx, r.key("retry"), &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(r.now().Unix(), 10),
	}).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.log.Error("fetch due retries", logger.Error(err))
		}
		return
	}
	for _, member := range due {
		pipe := r.client.TxPipeline()
		pipe.ZRem(ctx, r.key("retry"), member)
		pipe.LPush(ctx, r.key("messages"), member)
		if _, err := pipe.Exec(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				r.log.Error("requeue retry", logger.Error(err))
			}
			return
		}
	}
}

func (r *RedisQueue) key(suffix string) string {
	return r.cfg.KeyPrefix + ":" + suffix
}
