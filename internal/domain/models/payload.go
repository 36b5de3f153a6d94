package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SourcePayload is the typed body of a successful source response.
// Exactly one concrete type exists per source.
type SourcePayload interface {
	Source() SourceName
}

type WhaleTransaction struct {
	Amount    *float64 `json:"amount"`
	Direction string   `json:"direction,omitempty"` // "to_exchange", "from_exchange", "wallet"
	TxHash    string   `json:"tx_hash,omitempty"`
}

// UnmarshalJSON accepts amount_btc as an alias of amount.
func (t *WhaleTransaction) UnmarshalJSON(data []byte) error {
	type plain WhaleTransaction
	var aux struct {
		plain
		AmountBTC *float64 `json:"amount_btc"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*t = WhaleTransaction(aux.plain)
	if t.Amount == nil {
		t.Amount = aux.AmountBTC
	}
	return nil
}

type WhalePayload struct {
	Transactions []WhaleTransaction `json:"transactions"`
}

// UnmarshalJSON accepts either {"transactions":[...]} or a bare array of
// transactions.
func (p *WhalePayload) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &p.Transactions)
	}
	type plain WhalePayload
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = WhalePayload(v)
	return nil
}

func (WhalePayload) Source() SourceName { return SourceWhaleTracker }

type TopicStance string

const (
	StanceBullish TopicStance = "bullish"
	StanceBearish TopicStance = "bearish"
	StanceNeutral TopicStance = "neutral"
)

type TrendingTopic struct {
	Name   string      `json:"name"`
	Stance TopicStance `json:"stance"`
}

type SentimentPayload struct {
	Score          *float64        `json:"score"`
	TrendingTopics []TrendingTopic `json:"trending_topics"`
}

func (SentimentPayload) Source() SourceName { return SourceSocialSentiment }

type DerivativesPayload struct {
	FundingRate        *float64 `json:"funding_rate"`
	OpenInterestChange *float64 `json:"open_interest_change,omitempty"`
}

func (DerivativesPayload) Source() SourceName { return SourceDerivatives }

type FearGreedPayload struct {
	Index *float64 `json:"index"`
	Label string   `json:"label,omitempty"`
}

func (FearGreedPayload) Source() SourceName { return SourceFearGreed }

type ExchangeSpread struct {
	BuyExchange   string   `json:"buy_exchange"`
	SellExchange  string   `json:"sell_exchange"`
	SpreadPercent *float64 `json:"spread_percent"`
}

type ArbitragePayload struct {
	Spreads []ExchangeSpread `json:"spreads"`
}

func (ArbitragePayload) Source() SourceName { return SourceArbitrageScanner }

type Breakout struct {
	Confirmed        bool     `json:"confirmed"`
	Direction        string   `json:"direction"` // "up" or "down"
	Level            *float64 `json:"level,omitempty"`
	MagnitudePercent *float64 `json:"magnitude_percent"`
}

type TechnicalPayload struct {
	Pattern  string    `json:"pattern,omitempty"`
	Breakout *Breakout `json:"breakout"`
}

func (TechnicalPayload) Source() SourceName { return SourceTechnicalAnalysis }

type Headline struct {
	Title  string      `json:"title"`
	Impact *float64    `json:"impact"`
	Stance TopicStance `json:"stance,omitempty"`
}

type NewsPayload struct {
	Headlines []Headline `json:"headlines"`
}

func (NewsPayload) Source() SourceName { return SourceNewsMonitor }

type OnchainPayload struct {
	// Positive values are net inflow to exchanges, in BTC.
	ExchangeNetflow *float64 `json:"exchange_netflow_btc"`
}

func (OnchainPayload) Source() SourceName { return SourceOnchainFlows }

// DecodePayload turns a raw runtime response into the typed payload for source.
func DecodePayload(source SourceName, raw json.RawMessage) (SourcePayload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%s: empty payload", source)
	}

	var (
		p   SourcePayload
		err error
	)
	switch source {
	case SourceWhaleTracker:
		p, err = decodeAs[WhalePayload](raw)
	case SourceSocialSentiment:
		p, err = decodeAs[SentimentPayload](raw)
	case SourceDerivatives:
		p, err = decodeAs[DerivativesPayload](raw)
	case SourceFearGreed:
		p, err = decodeAs[FearGreedPayload](raw)
	case SourceArbitrageScanner:
		p, err = decodeAs[ArbitragePayload](raw)
	case SourceTechnicalAnalysis:
		p, err = decodeAs[TechnicalPayload](raw)
	case SourceNewsMonitor:
		p, err = decodeAs[NewsPayload](raw)
	case SourceOnchainFlows:
		p, err = decodeAs[OnchainPayload](raw)
	default:
		return nil, fmt.Errorf("unknown source %q", source)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: decode payload: %w", source, err)
	}
	return p, nil
}

func decodeAs[T SourcePayload](raw json.RawMessage) (SourcePayload, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
