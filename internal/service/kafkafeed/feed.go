package kafkafeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"FinScout/internal/domain/models"
	domrepo "FinScout/internal/domain/repository"
	"FinScout/pkg/kafka"
)

var (
	_ domrepo.MarketFeed   = (*Feed)(nil)
	_ kafka.MessageHandler = (*Feed)(nil)
)

// Feed keeps the latest tick published on a Kafka topic by an upstream
// collector. Ticks for other symbols and ticks older than the current one
// are ignored.
type Feed struct {
	topic      string
	symbol     string
	staleAfter time.Duration
	now        func() time.Time

	mu         sync.RWMutex
	latest     models.RawTick
	receivedAt time.Time
}

func New(topic, symbol string, staleAfter time.Duration) *Feed {
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}
	return &Feed{topic: topic, symbol: symbol, staleAfter: staleAfter, now: time.Now}
}

func (f *Feed) Topic() string { return f.topic }

func (f *Feed) Handle(_ context.Context, data []byte) error {
	var tick models.RawTick
	if err := json.Unmarshal(data, &tick); err != nil {
		// retrying will not fix a malformed message
		return nil
	}
	if tick.Symbol != "" && !strings.EqualFold(tick.Symbol, f.symbol) {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.receivedAt.IsZero() && !tick.Timestamp.IsZero() && tick.Timestamp.Before(f.latest.Timestamp) {
		return nil
	}
	f.latest = tick
	f.receivedAt = f.now()
	return nil
}

func (f *Feed) FetchTick(ctx context.Context) (models.RawTick, error) {
	if err := ctx.Err(); err != nil {
		return models.RawTick{}, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.receivedAt.IsZero() {
		return models.RawTick{}, fmt.Errorf("%w: nothing received on %s", models.ErrNoMarketData, f.topic)
	}
	if age := f.now().Sub(f.receivedAt); age > f.staleAfter {
		return models.RawTick{}, fmt.Errorf("%w: last tick on %s is %s old", models.ErrNoMarketData, f.topic, age.Round(time.Second))
	}
	return f.latest, nil
}
