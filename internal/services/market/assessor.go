package market

import (
	"math"
	"time"

	"FinScout/internal/domain/models"
)

// Thresholds on the absolute/signed 24h percent change.
type Thresholds struct {
	HighVolatility float64 // |chg| >= this is HIGH
	LowVolatility  float64 // |chg| < this is LOW
	Trend          float64 // chg > +this is BULLISH, chg < -this is BEARISH
}

func DefaultThresholds() Thresholds {
	return Thresholds{HighVolatility: 5, LowVolatility: 2, Trend: 1.5}
}

// Assessor classifies raw ticks into a MarketContext.
type Assessor struct {
	th  Thresholds
	now func() time.Time
}

type Option func(*Assessor)

func WithThresholds(th Thresholds) Option {
	return func(a *Assessor) { a.th = th }
}

// WithClock sets the time source used for ticks without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(a *Assessor) { a.now = now }
}

func NewAssessor(opts ...Option) *Assessor {
	a := &Assessor{th: DefaultThresholds(), now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Assessor) Assess(tick models.RawTick) (models.MarketContext, error) {
	if tick.Price == nil {
		return models.MarketContext{}, &models.InvalidMarketDataError{Field: "price", Reason: "is missing"}
	}
	price := *tick.Price
	if !finite(price) || price <= 0 {
		return models.MarketContext{}, &models.InvalidMarketDataError{Field: "price", Reason: "must be a positive number"}
	}
	if tick.Change24hPercent == nil {
		return models.MarketContext{}, &models.InvalidMarketDataError{Field: "change_24h_percent", Reason: "is missing"}
	}
	change := *tick.Change24hPercent
	if !finite(change) {
		return models.MarketContext{}, &models.InvalidMarketDataError{Field: "change_24h_percent", Reason: "must be finite"}
	}
	volumeRatio := 1.0
	if tick.VolumeRatio != nil {
		volumeRatio = *tick.VolumeRatio
		if !finite(volumeRatio) || volumeRatio < 0 {
			return models.MarketContext{}, &models.InvalidMarketDataError{Field: "volume_ratio", Reason: "must be non-negative"}
		}
	}

	ts := tick.Timestamp
	if ts.IsZero() {
		ts = a.now()
	}
	ts = ts.UTC()

	return models.MarketContext{
		Symbol:           tick.Symbol,
		Price:            price,
		Change24hPercent: change,
		VolumeRatio:      volumeRatio,
		Volatility:       a.volatility(change),
		Trend:            a.trend(change),
		Session:          SessionAt(ts),
		Timestamp:        ts,
	}, nil
}

func (a *Assessor) volatility(change float64) models.VolatilityTier {
	abs := math.Abs(change)
	switch {
	case abs >= a.th.HighVolatility:
		return models.VolatilityHigh
	case abs < a.th.LowVolatility:
		return models.VolatilityLow
	default:
		return models.VolatilityMedium
	}
}

func (a *Assessor) trend(change float64) models.Trend {
	switch {
	case change > a.th.Trend:
		return models.TrendBullish
	case change < -a.th.Trend:
		return models.TrendBearish
	default:
		return models.TrendSideways
	}
}

// SessionAt buckets a UTC hour into a trading session.
func SessionAt(t time.Time) models.Session {
	h := t.UTC().Hour()
	switch {
	case h < 8:
		return models.SessionAsian
	case h < 16:
		return models.SessionEuropean
	default:
		return models.SessionUS
	}
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
