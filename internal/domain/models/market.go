package models

import "time"

type VolatilityTier string

const (
	VolatilityLow    VolatilityTier = "LOW"
	VolatilityMedium VolatilityTier = "MEDIUM"
	VolatilityHigh   VolatilityTier = "HIGH"
)

// VolatilityTiers lists tiers from calmest to most volatile.
var VolatilityTiers = []VolatilityTier{VolatilityLow, VolatilityMedium, VolatilityHigh}

func (v VolatilityTier) Valid() bool {
	switch v {
	case VolatilityLow, VolatilityMedium, VolatilityHigh:
		return true
	}
	return false
}

type Trend string

const (
	TrendBullish  Trend = "BULLISH"
	TrendBearish  Trend = "BEARISH"
	TrendSideways Trend = "SIDEWAYS"
)

var Trends = []Trend{TrendBullish, TrendBearish, TrendSideways}

func (t Trend) Valid() bool {
	switch t {
	case TrendBullish, TrendBearish, TrendSideways:
		return true
	}
	return false
}

type Session string

const (
	SessionAsian    Session = "ASIAN"
	SessionEuropean Session = "EUROPEAN"
	SessionUS       Session = "US"
)

// RawTick is the unvalidated market observation a cycle starts from.
// Pointer fields distinguish "absent" from zero.
type RawTick struct {
	Symbol           string    `json:"symbol,omitempty"`
	Price            *float64  `json:"price"`
	Change24hPercent *float64  `json:"change_24h_percent"`
	VolumeRatio      *float64  `json:"volume_ratio,omitempty"`
	Timestamp        time.Time `json:"timestamp,omitempty"`
}

// NewRawTick builds a tick with every field present.
func NewRawTick(price, change, volumeRatio float64, ts time.Time) RawTick {
	return RawTick{
		Price:            &price,
		Change24hPercent: &change,
		VolumeRatio:      &volumeRatio,
		Timestamp:        ts,
	}
}

// MarketContext is the classified market state a cycle is decided against.
type MarketContext struct {
	Symbol           string         `json:"symbol,omitempty"`
	Price            float64        `json:"price"`
	Change24hPercent float64        `json:"change_24h_percent"`
	VolumeRatio      float64        `json:"volume_ratio"`
	Volatility       VolatilityTier `json:"volatility"`
	Trend            Trend          `json:"trend"`
	Session          Session        `json:"session"`
	Timestamp        time.Time      `json:"timestamp"`
}
