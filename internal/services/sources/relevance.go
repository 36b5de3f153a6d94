package sources

import (
	"fmt"

	"FinScout/internal/domain/models"
)

// RelevanceTable holds the base weight of each source for a market condition.
// Every source in models.AllSources must have a weight in (0, 1] for every
// volatility tier and trend.
type RelevanceTable map[models.SourceName]map[models.VolatilityTier]map[models.Trend]float64

// row is a helper for declaring weights as BULLISH, BEARISH, SIDEWAYS triples
// for LOW, MEDIUM and HIGH volatility.
func row(low, medium, high [3]float64) map[models.VolatilityTier]map[models.Trend]float64 {
	trends := func(w [3]float64) map[models.Trend]float64 {
		return map[models.Trend]float64{
			models.TrendBullish:  w[0],
			models.TrendBearish:  w[1],
			models.TrendSideways: w[2],
		}
	}
	return map[models.VolatilityTier]map[models.Trend]float64{
		models.VolatilityLow:    trends(low),
		models.VolatilityMedium: trends(medium),
		models.VolatilityHigh:   trends(high),
	}
}

// DefaultRelevance is the built-in table. Whale, derivatives, arbitrage and
// news sources gain weight as volatility rises; technical analysis is most
// useful in calm, range-bound markets.
func DefaultRelevance() RelevanceTable {
	return RelevanceTable{
		models.SourceWhaleTracker:      row([3]float64{0.50, 0.50, 0.40}, [3]float64{0.70, 0.70, 0.50}, [3]float64{0.95, 0.95, 0.80}),
		models.SourceSocialSentiment:   row([3]float64{0.50, 0.50, 0.40}, [3]float64{0.70, 0.65, 0.50}, [3]float64{0.85, 0.80, 0.60}),
		models.SourceDerivatives:       row([3]float64{0.40, 0.40, 0.50}, [3]float64{0.70, 0.70, 0.60}, [3]float64{0.95, 0.95, 0.85}),
		models.SourceFearGreed:         row([3]float64{0.60, 0.60, 0.50}, [3]float64{0.60, 0.65, 0.50}, [3]float64{0.80, 0.85, 0.60}),
		models.SourceArbitrageScanner:  row([3]float64{0.30, 0.30, 0.50}, [3]float64{0.50, 0.50, 0.60}, [3]float64{0.90, 0.90, 0.80}),
		models.SourceTechnicalAnalysis: row([3]float64{0.70, 0.70, 0.80}, [3]float64{0.80, 0.80, 0.75}, [3]float64{0.75, 0.75, 0.70}),
		models.SourceNewsMonitor:       row([3]float64{0.50, 0.50, 0.50}, [3]float64{0.60, 0.60, 0.55}, [3]float64{0.90, 0.90, 0.75}),
		models.SourceOnchainFlows:      row([3]float64{0.60, 0.60, 0.55}, [3]float64{0.60, 0.60, 0.55}, [3]float64{0.70, 0.70, 0.60}),
	}
}

// RelevanceFromConfig converts the YAML shape (source -> tier -> trend -> weight)
// and overlays it on the default table.
func RelevanceFromConfig(raw map[string]map[string]map[string]float64) (RelevanceTable, error) {
	t := DefaultRelevance()
	for src, tiers := range raw {
		name := models.SourceName(src)
		if !name.Valid() {
			return nil, fmt.Errorf("relevance: unknown source %q", src)
		}
		for tier, trends := range tiers {
			vt := models.VolatilityTier(tier)
			if !vt.Valid() {
				return nil, fmt.Errorf("relevance: %s: unknown volatility tier %q", src, tier)
			}
			for trend, w := range trends {
				tr := models.Trend(trend)
				if !tr.Valid() {
					return nil, fmt.Errorf("relevance: %s/%s: unknown trend %q", src, tier, trend)
				}
				t[name][vt][tr] = w
			}
		}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t RelevanceTable) Validate() error {
	for _, src := range models.AllSources {
		tiers, ok := t[src]
		if !ok {
			return fmt.Errorf("relevance: missing source %s", src)
		}
		for _, vt := range models.VolatilityTiers {
			for _, tr := range models.Trends {
				w, ok := tiers[vt][tr]
				if !ok {
					return fmt.Errorf("relevance: missing weight for %s/%s/%s", src, vt, tr)
				}
				if !(w > 0 && w <= 1) {
					return fmt.Errorf("relevance: weight for %s/%s/%s must be in (0,1], got %v", src, vt, tr, w)
				}
			}
		}
	}
	return nil
}

func (t RelevanceTable) Weight(src models.SourceName, vt models.VolatilityTier, tr models.Trend) float64 {
	return t[src][vt][tr]
}
