package logger

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships aggregated log batches somewhere (Kafka in production).
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval
	CountThreshold int           // distinct entries that force an early flush
	Topic          string
	Publisher      Publisher
}

type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector deduplicates repeated log lines and publishes them in batches.
type LogCollector struct {
	cfg     CollectionConfig
	mu      sync.Mutex
	entries map[uint64]*AggregatedLogEntry
	order   []uint64
	flushCh chan []AggregatedLogEntry
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	closed  bool
}

func NewLogCollector(cfg *CollectionConfig) *LogCollector {
	c := &LogCollector{
		cfg:     *cfg,
		entries: make(map[uint64]*AggregatedLogEntry),
		flushCh: make(chan []AggregatedLogEntry, 8),
		stop:    make(chan struct{}),
	}
	if c.cfg.TimeInterval <= 0 {
		c.cfg.TimeInterval = 30 * time.Second
	}
	if c.cfg.CountThreshold <= 0 {
		c.cfg.CountThreshold = 100
	}

	c.wg.Add(2)
	go c.tick()
	go c.publishLoop()
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := entryKey(level, message, fields, caller)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
		return
	}
	c.entries[key] = &AggregatedLogEntry{
		Level:     level,
		Message:   message,
		Fields:    fields,
		Caller:    caller,
		Count:     1,
		FirstSeen: now,
		LastSeen:  now,
	}
	c.order = append(c.order, key)

	if len(c.entries) >= c.cfg.CountThreshold {
		c.drainLocked()
	}
}

// Pending returns the number of distinct entries not yet flushed.
func (c *LogCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func entryKey(level, message string, fields map[string]interface{}, caller string) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s", level, caller, message)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "|%s=%v", k, fields[k])
	}
	return h.Sum64()
}

// drainLocked hands the current batch to the publisher goroutine. Caller holds mu.
func (c *LogCollector) drainLocked() {
	if len(c.entries) == 0 {
		return
	}
	batch := make([]AggregatedLogEntry, 0, len(c.order))
	for _, k := range c.order {
		batch = append(batch, *c.entries[k])
	}
	c.entries = make(map[uint64]*AggregatedLogEntry)
	c.order = c.order[:0]

	select {
	case c.flushCh <- batch:
	default:
		fmt.Fprintf(os.Stderr, "log collector: dropping %d aggregated entries, publisher is behind\n", len(batch))
	}
}

func (c *LogCollector) tick() {
	defer c.wg.Done()
	t := time.NewTicker(c.cfg.TimeInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			c.mu.Lock()
			c.drainLocked()
			c.mu.Unlock()
		case <-c.stop:
			c.mu.Lock()
			c.drainLocked()
			c.closed = true
			c.mu.Unlock()
			close(c.flushCh)
			return
		}
	}
}

func (c *LogCollector) publishLoop() {
	defer c.wg.Done()
	for batch := range c.flushCh {
		if c.cfg.Publisher == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch); err != nil {
			fmt.Fprintf(os.Stderr, "log collector: publish failed: %v\n", err)
		}
		cancel()
	}
}

// Close flushes what is left and waits for the publisher to finish.
func (c *LogCollector) Close() {
	c.once.Do(func() {
		close(c.stop)
		c.wg.Wait()
	})
}
