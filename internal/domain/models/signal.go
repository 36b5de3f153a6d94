package models

import (
	"time"

	"github.com/google/uuid"
)

type SignalType string

const (
	SignalWhaleActivity        SignalType = "WHALE_ACTIVITY"
	SignalPositiveNarrative    SignalType = "POSITIVE_NARRATIVE"
	SignalNegativeNarrative    SignalType = "NEGATIVE_NARRATIVE"
	SignalExtremeFunding       SignalType = "EXTREME_FUNDING"
	SignalExtremeGreed         SignalType = "EXTREME_GREED"
	SignalExtremeFear          SignalType = "EXTREME_FEAR"
	SignalArbitrageOpportunity SignalType = "ARBITRAGE_OPPORTUNITY"
	SignalTechnicalBreakout    SignalType = "TECHNICAL_BREAKOUT"
	SignalMajorNews            SignalType = "MAJOR_NEWS"
	SignalExchangeOutflow      SignalType = "EXCHANGE_OUTFLOW"
	SignalExchangeInflow       SignalType = "EXCHANGE_INFLOW"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Agent names signals are routed to.
const (
	AgentRiskManager       = "risk_manager"
	AgentTradingStrategist = "trading_strategist"
	AgentPortfolioManager  = "portfolio_manager"
	AgentMarketAnalyst     = "market_analyst"
	AgentSentimentAnalyst  = "sentiment_analyst"
	AgentArbitrageExecutor = "arbitrage_executor"
)

// Signal is a discrete, actionable finding derived from a source payload.
type Signal struct {
	ID                string     `json:"id"`
	Type              SignalType `json:"type"`
	Severity          Severity   `json:"severity"`
	Confidence        float64    `json:"confidence"`
	Message           string     `json:"message"`
	Source            SourceName `json:"source"`
	RecommendedAction string     `json:"recommended_action"`
	TargetAgents      []string   `json:"target_agents"`
	CreatedAt         time.Time  `json:"created_at"`
}

func NewSignal(t SignalType, sev Severity, source SourceName, confidence float64, message string, at time.Time) Signal {
	return Signal{
		ID:         uuid.NewString(),
		Type:       t,
		Severity:   sev,
		Confidence: confidence,
		Message:    message,
		Source:     source,
		CreatedAt:  at,
	}
}
