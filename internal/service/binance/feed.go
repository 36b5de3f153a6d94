package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"FinScout/internal/domain/models"
	domrepo "FinScout/internal/domain/repository"
	"FinScout/pkg/logger"
)

// volumeAlpha weights each 24h volume update into the baseline the volume
// ratio is measured against.
const volumeAlpha = 0.02

var _ domrepo.MarketFeed = (*Feed)(nil)

type Config struct {
	URL            string
	Symbol         string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	// ReadTimeout is how long the socket may stay silent (no frame, no pong)
	// before it is dropped and redialled. Defaults to twice PingInterval.
	ReadTimeout    time.Duration
	StaleAfter     time.Duration
}

// tickerEvent is the 24hr rolling window ticker payload.
type tickerEvent struct {
	Event         string `json:"e"`
	EventTime     int64  `json:"E"`
	Symbol        string `json:"s"`
	LastPrice     string `json:"c"`
	ChangePercent string `json:"P"`
	QuoteVolume   string `json:"q"`
}

// Feed keeps the latest ticker for one symbol from the Binance websocket
// stream and serves it as a RawTick.
type Feed struct {
	cfg    Config
	log    *logger.Logger
	dialer *websocket.Dialer
	now    func() time.Time

	mu         sync.RWMutex
	latest     models.RawTick
	receivedAt time.Time
	baseline   float64
	connected  bool
}

func NewFeed(cfg Config, log *logger.Logger) *Feed {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 2 * cfg.PingInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * time.Minute
	}
	return &Feed{
		cfg:    cfg,
		log:    log.With(logger.String("component", "binance_feed"), logger.String("symbol", cfg.Symbol)),
		dialer: websocket.DefaultDialer,
		now:    time.Now,
	}
}

func (f *Feed) streamURL() string {
	return strings.TrimRight(f.cfg.URL, "/") + "/" + strings.ToLower(f.cfg.Symbol) + "@ticker"
}

// FetchTick returns the most recent ticker, or ErrNoMarketData when none
// has arrived within StaleAfter.
func (f *Feed) FetchTick(ctx context.Context) (models.RawTick, error) {
	if err := ctx.Err(); err != nil {
		return models.RawTick{}, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.receivedAt.IsZero() {
		return models.RawTick{}, fmt.Errorf("%w: no ticker received for %s", models.ErrNoMarketData, f.cfg.Symbol)
	}
	if age := f.now().Sub(f.receivedAt); age > f.cfg.StaleAfter {
		return models.RawTick{}, fmt.Errorf("%w: last %s ticker is %s old", models.ErrNoMarketData, f.cfg.Symbol, age.Round(time.Second))
	}
	return f.latest, nil
}

func (f *Feed) IsConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// Run streams until ctx is cancelled, reconnecting after failures.
func (f *Feed) Run(ctx context.Context) error {
	for {
		err := f.stream(ctx)
		f.setConnected(false)
		if ctx.Err() != nil {
			return nil
		}
		f.log.Warn("ticker stream dropped, reconnecting",
			logger.Error(err),
			logger.Duration("delay", f.cfg.ReconnectDelay))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.cfg.ReconnectDelay):
		}
	}
}

func (f *Feed) stream(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("binance connect: %w", err)
	}
	defer conn.Close()

	extend := func() error { return conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout)) }
	if err := extend(); err != nil {
		return fmt.Errorf("binance read deadline: %w", err)
	}
	conn.SetPongHandler(func(string) error { return extend() })

	f.setConnected(true)
	f.log.Info("ticker stream connected")

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeMu sync.Mutex
	go func() {
		ticker := time.NewTicker(f.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sctx.Done():
				writeMu.Lock()
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				writeMu.Unlock()
				_ = conn.Close()
				return
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				writeMu.Unlock()
				if err != nil {
					f.log.Debug("ping failed", logger.Error(err))
				}
			}
		}
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(sctx.Err(), context.Canceled) {
				return nil
			}
			return fmt.Errorf("binance read: %w", err)
		}
		if err := extend(); err != nil {
			return fmt.Errorf("binance read deadline: %w", err)
		}
		if err := f.handle(b); err != nil {
			f.log.Debug("ignoring frame", logger.Error(err))
		}
	}
}

func (f *Feed) handle(b []byte) error {
	var ev tickerEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return fmt.Errorf("decode ticker: %w", err)
	}
	if ev.Event != "24hrTicker" {
		return fmt.Errorf("unexpected event %q", ev.Event)
	}
	if !strings.EqualFold(ev.Symbol, f.cfg.Symbol) {
		return fmt.Errorf("unexpected symbol %q", ev.Symbol)
	}
	price, err := strconv.ParseFloat(ev.LastPrice, 64)
	if err != nil {
		return fmt.Errorf("price %q: %w", ev.LastPrice, err)
	}
	change, err := strconv.ParseFloat(ev.ChangePercent, 64)
	if err != nil {
		return fmt.Errorf("change %q: %w", ev.ChangePercent, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tick := models.RawTick{
		Symbol:           ev.Symbol,
		Price:            &price,
		Change24hPercent: &change,
		Timestamp:        time.UnixMilli(ev.EventTime).UTC(),
	}
	if vol, err := strconv.ParseFloat(ev.QuoteVolume, 64); err == nil && vol > 0 {
		if f.baseline == 0 {
			f.baseline = vol
		} else {
			f.baseline = volumeAlpha*vol + (1-volumeAlpha)*f.baseline
		}
		ratio := vol / f.baseline
		tick.VolumeRatio = &ratio
	}
	f.latest = tick
	f.receivedAt = f.now()
	return nil
}

func (f *Feed) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}
