package learning

import (
	"fmt"

	"FinScout/internal/domain/models"
)

const DefaultLearningRate = 0.1

// Outcome is what learning needs to know about one queried source.
type Outcome struct {
	Source         models.SourceName
	Success        bool
	ResponseTimeMs float64
}

// Updater applies exponential moving average updates to source metrics.
type Updater struct {
	alpha float64
}

func NewUpdater(alpha float64) (*Updater, error) {
	if !(alpha > 0 && alpha <= 1) {
		return nil, fmt.Errorf("learning rate must be in (0,1], got %v", alpha)
	}
	return &Updater{alpha: alpha}, nil
}

func (u *Updater) LearningRate() float64 { return u.alpha }

// Update returns a new metrics map with every outcome folded in. prior is not
// modified. Sources in prior without an outcome are carried over unchanged.
func (u *Updater) Update(prior map[models.SourceName]models.SourceMetrics, outcomes []Outcome, signals []models.Signal) map[models.SourceName]models.SourceMetrics {
	next := make(map[models.SourceName]models.SourceMetrics, len(prior)+len(outcomes))
	for k, v := range prior {
		next[k] = v
	}

	attributed := make(map[models.SourceName]int64)
	for _, s := range signals {
		attributed[s.Source]++
	}

	for _, o := range outcomes {
		m, ok := next[o.Source]
		if !ok {
			m = models.NewSourceMetrics()
		}
		next[o.Source] = u.apply(m, o, attributed[o.Source])
	}
	return next
}

func (u *Updater) apply(m models.SourceMetrics, o Outcome, signals int64) models.SourceMetrics {
	observed := 0.0
	if o.Success {
		observed = 1
	}
	m.SuccessRate = clamp01(u.ema(m.SuccessRate, observed))

	if signals > 0 {
		// QualitySignals counts calls that produced a signal, so it never
		// exceeds TotalCalls.
		m.SignalQuality = clamp01(u.ema(m.SignalQuality, float64(signals)))
		m.QualitySignals++
	}

	m.TotalCalls++
	rt := o.ResponseTimeMs
	if rt < 0 {
		rt = 0
	}
	m.AverageResponseTime += (rt - m.AverageResponseTime) / float64(m.TotalCalls)
	return m
}

func (u *Updater) ema(old, observed float64) float64 {
	return (1-u.alpha)*old + u.alpha*observed
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
