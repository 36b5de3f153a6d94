package signals

import (
	"math"

	"FinScout/internal/domain/models"
)

// Thresholds for the rule table.
type Thresholds struct {
	WhaleVolumeBTC          float64
	BullishSentiment        float64
	BearishSentiment        float64
	MinTrendingTopics       int
	FundingRate             float64
	Greed                   float64
	Fear                    float64
	ArbitrageSpreadPercent  float64
	CriticalBreakoutPercent float64
	NewsImpact              float64
	ExchangeNetflowBTC      float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		WhaleVolumeBTC:          100,
		BullishSentiment:        0.65,
		BearishSentiment:        0.35,
		MinTrendingTopics:       2,
		FundingRate:             0.05,
		Greed:                   75,
		Fear:                    25,
		ArbitrageSpreadPercent:  0.5,
		CriticalBreakoutPercent: 5,
		NewsImpact:              0.8,
		ExchangeNetflowBTC:      1000,
	}
}

// routing describes where a signal type goes and what it asks for.
type routing struct {
	action string
	agents []string
}

var routes = map[models.SignalType]routing{
	models.SignalWhaleActivity: {
		action: "Review exposure and tighten stops ahead of large holder moves",
		agents: []string{models.AgentRiskManager, models.AgentTradingStrategist},
	},
	models.SignalPositiveNarrative: {
		action: "Consider scaling into long positions on confirmation",
		agents: []string{models.AgentTradingStrategist, models.AgentSentimentAnalyst},
	},
	models.SignalNegativeNarrative: {
		action: "Reduce long exposure and monitor narrative shift",
		agents: []string{models.AgentRiskManager, models.AgentSentimentAnalyst},
	},
	models.SignalExtremeFunding: {
		action: "Prepare for a leverage flush; hedge crowded side",
		agents: []string{models.AgentRiskManager, models.AgentTradingStrategist, models.AgentPortfolioManager},
	},
	models.SignalExtremeGreed: {
		action: "Take partial profits and avoid chasing entries",
		agents: []string{models.AgentPortfolioManager, models.AgentRiskManager},
	},
	models.SignalExtremeFear: {
		action: "Look for contrarian accumulation opportunities",
		agents: []string{models.AgentPortfolioManager, models.AgentTradingStrategist},
	},
	models.SignalArbitrageOpportunity: {
		action: "Evaluate cross-exchange execution net of fees",
		agents: []string{models.AgentArbitrageExecutor},
	},
	models.SignalTechnicalBreakout: {
		action: "Align entries with breakout direction and set invalidation",
		agents: []string{models.AgentTradingStrategist, models.AgentMarketAnalyst},
	},
	models.SignalMajorNews: {
		action: "Reassess open positions against the news event",
		agents: []string{models.AgentMarketAnalyst, models.AgentRiskManager},
	},
	models.SignalExchangeOutflow: {
		action: "Note supply leaving exchanges; bias towards accumulation",
		agents: []string{models.AgentMarketAnalyst, models.AgentPortfolioManager},
	},
	models.SignalExchangeInflow: {
		action: "Watch for sell pressure from coins moving to exchanges",
		agents: []string{models.AgentMarketAnalyst, models.AgentRiskManager},
	},
}

// RecommendedAction and TargetAgents are fixed per signal type.
func RecommendedAction(t models.SignalType) string { return routes[t].action }

func TargetAgents(t models.SignalType) []string {
	agents := routes[t].agents
	out := make([]string, len(agents))
	copy(out, agents)
	return out
}

// confidence maps how far a metric passed its threshold onto [0.5, 1].
func confidence(excess, scale float64) float64 {
	if scale <= 0 {
		return 0.5
	}
	c := 0.5 + 0.5*excess/scale
	switch {
	case math.IsNaN(c) || c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

func valid(p *float64) (float64, bool) {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return 0, false
	}
	return *p, true
}
