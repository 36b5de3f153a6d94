package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const defaultMemoryTTL = 7 * 24 * time.Hour

type memoryItem struct {
	data     []byte
	expireAt time.Time
}

func (m *memoryItem) expired(now time.Time) bool {
	return now.After(m.expireAt)
}

// MemoryCache implements Service in process with LRU eviction. Values are
// stored JSON-encoded so Get behaves like the Redis implementation.
type MemoryCache struct {
	data    map[string]*memoryItem
	access  map[string]time.Time
	mutex   sync.Mutex
	maxSize int
	now     func() time.Time

	cleanupTicker *time.Ticker
	done          chan struct{}
	closeOnce     sync.Once
}

var _ Service = (*MemoryCache)(nil)

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mc := &MemoryCache{
		data:          make(map[string]*memoryItem),
		access:        make(map[string]time.Time),
		maxSize:       cfg.MaxSize,
		now:           time.Now,
		cleanupTicker: time.NewTicker(cfg.CleanupInterval),
		done:          make(chan struct{}),
	}
	go mc.cleanupExpired()
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}

	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	if _, exists := mc.data[key]; !exists && len(mc.data) >= mc.maxSize {
		mc.evictLRU()
	}
	if expiration <= 0 {
		expiration = defaultMemoryTTL
	}
	now := mc.now()
	mc.data[key] = &memoryItem{data: data, expireAt: now.Add(expiration)}
	mc.access[key] = now
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mutex.Lock()
	item, ok := mc.lookup(key)
	if ok {
		mc.access[key] = mc.now()
	}
	mc.mutex.Unlock()

	if !ok {
		return ErrCacheMiss
	}
	return decode(item.data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	for _, key := range keys {
		delete(mc.data, key)
		delete(mc.access, key)
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	for _, key := range keys {
		if _, ok := mc.lookup(key); ok {
			return true, nil
		}
	}
	return false, nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	if _, ok := mc.lookup(key); ok {
		return false, nil
	}
	now := mc.now()
	mc.data[key] = &memoryItem{data: []byte(`"locked"`), expireAt: now.Add(ttl)}
	mc.access[key] = now
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

// Close stops the cleanup goroutine.
func (mc *MemoryCache) Close() error {
	mc.closeOnce.Do(func() {
		mc.cleanupTicker.Stop()
		close(mc.done)
	})
	return nil
}

// lookup must be called with the mutex held. Expired items are dropped.
func (mc *MemoryCache) lookup(key string) (*memoryItem, bool) {
	item, ok := mc.data[key]
	if !ok {
		return nil, false
	}
	if item.expired(mc.now()) {
		delete(mc.data, key)
		delete(mc.access, key)
		return nil, false
	}
	return item, true
}

func (mc *MemoryCache) evictLRU() {
	var oldestKey string
	var oldestTime time.Time
	for key, accessTime := range mc.access {
		if oldestKey == "" || accessTime.Before(oldestTime) {
			oldestTime = accessTime
			oldestKey = key
		}
	}
	if oldestKey != "" {
		delete(mc.data, oldestKey)
		delete(mc.access, oldestKey)
	}
}

func (mc *MemoryCache) cleanupExpired() {
	for {
		select {
		case <-mc.done:
			return
		case <-mc.cleanupTicker.C:
			mc.mutex.Lock()
			now := mc.now()
			for key, item := range mc.data {
				if item.expired(now) {
					delete(mc.data, key)
					delete(mc.access, key)
				}
			}
			mc.mutex.Unlock()
		}
	}
}

func encode(value interface{}) ([]byte, error) {
	if s, ok := value.(string); ok {
		return []byte(s), nil
	}
	return json.Marshal(value)
}

func decode(data []byte, dest interface{}) error {
	if strPtr, ok := dest.(*string); ok {
		*strPtr = string(data)
		return nil
	}
	return json.Unmarshal(data, dest)
}
