package signals

import (
	"fmt"
	"math"
	"sort"
	"time"

	"FinScout/internal/domain/models"
	"FinScout/pkg/logger"
)

// Skip records a rule that could not be evaluated.
type Skip struct {
	Source models.SourceName `json:"source"`
	Rule   string            `json:"rule"`
	Reason string            `json:"reason"`
}

type Report struct {
	Signals []models.Signal
	Skips   []Skip
}

type finding struct {
	typ      models.SignalType
	severity models.Severity
	conf     float64
	msg      string
}

// evaluation collects findings and skips for one payload.
type evaluation struct {
	source   models.SourceName
	findings []finding
	skips    []Skip
}

func (e *evaluation) fire(t models.SignalType, sev models.Severity, conf float64, format string, args ...interface{}) {
	e.findings = append(e.findings, finding{typ: t, severity: sev, conf: conf, msg: fmt.Sprintf(format, args...)})
}

func (e *evaluation) skip(rule, reason string) {
	e.skips = append(e.skips, Skip{Source: e.source, Rule: rule, Reason: reason})
}

// Generator turns successful source results into signals. It keeps no state
// between calls.
type Generator struct {
	th  Thresholds
	log *logger.Logger
}

func NewGenerator(th Thresholds, log *logger.Logger) *Generator {
	if log == nil {
		log = logger.Nop()
	}
	return &Generator{th: th, log: log.With(logger.String("component", "signal_generator"))}
}

// Generate evaluates results in canonical source order, so the output does not
// depend on the order sources completed in.
func (g *Generator) Generate(results []models.SourceResult, at time.Time) Report {
	ordered := make([]models.SourceResult, 0, len(results))
	for _, r := range results {
		if r.Success {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return models.SourceIndex(ordered[i].Source) < models.SourceIndex(ordered[j].Source)
	})

	var rep Report
	for _, r := range ordered {
		ev := &evaluation{source: r.Source}
		g.evaluate(ev, r.Payload)

		for _, s := range ev.skips {
			g.log.Warn("signal rule skipped",
				logger.String("source", string(s.Source)),
				logger.String("rule", s.Rule),
				logger.String("reason", s.Reason))
		}
		rep.Skips = append(rep.Skips, ev.skips...)

		for _, f := range ev.findings {
			sig := models.NewSignal(f.typ, f.severity, r.Source, f.conf, f.msg, at)
			sig.RecommendedAction = RecommendedAction(f.typ)
			sig.TargetAgents = TargetAgents(f.typ)
			rep.Signals = append(rep.Signals, sig)
		}
	}
	return rep
}

func (g *Generator) evaluate(ev *evaluation, payload models.SourcePayload) {
	if payload == nil {
		ev.skip("payload", "missing or undecodable payload")
		return
	}
	if payload.Source() != ev.source {
		ev.skip("payload", fmt.Sprintf("payload belongs to %s", payload.Source()))
		return
	}

	switch p := payload.(type) {
	case models.WhalePayload:
		g.whale(ev, p)
	case models.SentimentPayload:
		g.sentiment(ev, p)
	case models.DerivativesPayload:
		g.funding(ev, p)
	case models.FearGreedPayload:
		g.fearGreed(ev, p)
	case models.ArbitragePayload:
		g.arbitrage(ev, p)
	case models.TechnicalPayload:
		g.breakout(ev, p)
	case models.NewsPayload:
		g.news(ev, p)
	case models.OnchainPayload:
		g.netflow(ev, p)
	default:
		ev.skip("payload", fmt.Sprintf("unsupported payload %T", payload))
	}
}

func (g *Generator) whale(ev *evaluation, p models.WhalePayload) {
	const rule = "whale_volume"
	if p.Transactions == nil {
		ev.skip(rule, "transactions missing")
		return
	}
	total := 0.0
	for i, tx := range p.Transactions {
		amt, ok := valid(tx.Amount)
		if !ok || amt < 0 {
			ev.skip(rule, fmt.Sprintf("transaction %d has invalid amount", i))
			return
		}
		total += amt
	}
	if total > g.th.WhaleVolumeBTC {
		ev.fire(models.SignalWhaleActivity, models.SeverityHigh,
			confidence(total-g.th.WhaleVolumeBTC, g.th.WhaleVolumeBTC),
			"%.1f BTC moved across %d whale transactions", total, len(p.Transactions))
	}
}

func (g *Generator) sentiment(ev *evaluation, p models.SentimentPayload) {
	const rule = "narrative"
	score, ok := valid(p.Score)
	if !ok || score < 0 || score > 1 {
		ev.skip(rule, "sentiment score missing or outside [0,1]")
		return
	}
	var bullish, bearish int
	for _, t := range p.TrendingTopics {
		switch t.Stance {
		case models.StanceBullish:
			bullish++
		case models.StanceBearish:
			bearish++
		}
	}

	if score >= g.th.BullishSentiment && bullish >= g.th.MinTrendingTopics {
		ev.fire(models.SignalPositiveNarrative, models.SeverityMedium,
			confidence(score-g.th.BullishSentiment, 1-g.th.BullishSentiment),
			"sentiment %.2f with %d bullish trending topics", score, bullish)
	} else if score <= g.th.BearishSentiment && bearish >= g.th.MinTrendingTopics {
		ev.fire(models.SignalNegativeNarrative, models.SeverityMedium,
			confidence(g.th.BearishSentiment-score, g.th.BearishSentiment),
			"sentiment %.2f with %d bearish trending topics", score, bearish)
	}
}

func (g *Generator) funding(ev *evaluation, p models.DerivativesPayload) {
	const rule = "funding_rate"
	rate, ok := valid(p.FundingRate)
	if !ok {
		ev.skip(rule, "funding rate missing")
		return
	}
	abs := math.Abs(rate)
	if abs > g.th.FundingRate {
		side := "longs"
		if rate < 0 {
			side = "shorts"
		}
		ev.fire(models.SignalExtremeFunding, models.SeverityHigh,
			confidence(abs-g.th.FundingRate, g.th.FundingRate),
			"funding rate %.4f, %s are paying a premium", rate, side)
	}
}

func (g *Generator) fearGreed(ev *evaluation, p models.FearGreedPayload) {
	const rule = "fear_greed"
	idx, ok := valid(p.Index)
	if !ok || idx < 0 || idx > 100 {
		ev.skip(rule, "index missing or outside [0,100]")
		return
	}
	switch {
	case idx > g.th.Greed:
		ev.fire(models.SignalExtremeGreed, models.SeverityMedium,
			confidence(idx-g.th.Greed, 100-g.th.Greed),
			"fear & greed index at %.0f", idx)
	case idx < g.th.Fear:
		ev.fire(models.SignalExtremeFear, models.SeverityMedium,
			confidence(g.th.Fear-idx, g.th.Fear),
			"fear & greed index at %.0f", idx)
	}
}

func (g *Generator) arbitrage(ev *evaluation, p models.ArbitragePayload) {
	const rule = "arbitrage_spread"
	if p.Spreads == nil {
		ev.skip(rule, "spreads missing")
		return
	}
	best := -1
	bestSpread := 0.0
	for i, s := range p.Spreads {
		v, ok := valid(s.SpreadPercent)
		if !ok || v < 0 {
			ev.skip(rule, fmt.Sprintf("spread %d is invalid", i))
			return
		}
		if best < 0 || v > bestSpread {
			best, bestSpread = i, v
		}
	}
	if best >= 0 && bestSpread > g.th.ArbitrageSpreadPercent {
		s := p.Spreads[best]
		ev.fire(models.SignalArbitrageOpportunity, models.SeverityMedium,
			confidence(bestSpread-g.th.ArbitrageSpreadPercent, g.th.ArbitrageSpreadPercent),
			"%.2f%% spread buying on %s and selling on %s", bestSpread, s.BuyExchange, s.SellExchange)
	}
}

func (g *Generator) breakout(ev *evaluation, p models.TechnicalPayload) {
	const rule = "breakout"
	if p.Breakout == nil {
		ev.skip(rule, "breakout missing")
		return
	}
	if !p.Breakout.Confirmed {
		return
	}
	mag, ok := valid(p.Breakout.MagnitudePercent)
	if !ok {
		ev.skip(rule, "breakout magnitude missing")
		return
	}
	mag = math.Abs(mag)
	sev := models.SeverityHigh
	if mag >= g.th.CriticalBreakoutPercent {
		sev = models.SeverityCritical
	}
	dir := p.Breakout.Direction
	if dir == "" {
		dir = "unknown"
	}
	ev.fire(models.SignalTechnicalBreakout, sev,
		confidence(mag, g.th.CriticalBreakoutPercent),
		"confirmed %s breakout of %.2f%%", dir, mag)
}

func (g *Generator) news(ev *evaluation, p models.NewsPayload) {
	const rule = "news_impact"
	if p.Headlines == nil {
		ev.skip(rule, "headlines missing")
		return
	}
	top := -1
	topImpact := 0.0
	for i, h := range p.Headlines {
		v, ok := valid(h.Impact)
		if !ok || v < 0 || v > 1 {
			ev.skip(rule, fmt.Sprintf("headline %d has invalid impact", i))
			return
		}
		if top < 0 || v > topImpact {
			top, topImpact = i, v
		}
	}
	if top >= 0 && topImpact >= g.th.NewsImpact {
		ev.fire(models.SignalMajorNews, models.SeverityHigh,
			confidence(topImpact-g.th.NewsImpact, 1-g.th.NewsImpact),
			"high impact headline: %s", p.Headlines[top].Title)
	}
}

func (g *Generator) netflow(ev *evaluation, p models.OnchainPayload) {
	const rule = "exchange_netflow"
	nf, ok := valid(p.ExchangeNetflow)
	if !ok {
		ev.skip(rule, "netflow missing")
		return
	}
	switch {
	case nf <= -g.th.ExchangeNetflowBTC:
		ev.fire(models.SignalExchangeOutflow, models.SeverityMedium,
			confidence(-nf-g.th.ExchangeNetflowBTC, g.th.ExchangeNetflowBTC),
			"%.0f BTC net outflow from exchanges", -nf)
	case nf >= g.th.ExchangeNetflowBTC:
		ev.fire(models.SignalExchangeInflow, models.SeverityMedium,
			confidence(nf-g.th.ExchangeNetflowBTC, g.th.ExchangeNetflowBTC),
			"%.0f BTC net inflow to exchanges", nf)
	}
}
