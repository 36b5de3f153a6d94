package routing

import (
	"fmt"
	"strings"

	"FinScout/internal/domain/models"
)

// Weights for the four scoring terms. They need not sum to one.
type Weights struct {
	Capability float64
	Cost       float64
	Speed      float64
	Reasoning  float64
}

var (
	balancedWeights  = Weights{Capability: 0.25, Cost: 0.25, Speed: 0.25, Reasoning: 0.25}
	costWeights      = Weights{Capability: 0.15, Cost: 0.55, Speed: 0.15, Reasoning: 0.15}
	latencyWeights   = Weights{Capability: 0.15, Cost: 0.20, Speed: 0.50, Reasoning: 0.15}
	reasoningWeights = Weights{Capability: 0.20, Cost: 0.10, Speed: 0.10, Reasoning: 0.60}
)

// WeightsFor returns the scoring weights used for a task type.
func WeightsFor(t models.TaskType) Weights {
	switch t {
	case models.TaskDataExtraction, models.TaskCostOptimized:
		return costWeights
	case models.TaskRealTimeAnalysis:
		return latencyWeights
	case models.TaskComplexReasoning, models.TaskPatternRecognition, models.TaskRiskAssessment:
		return reasoningWeights
	default:
		return balancedWeights
	}
}

const (
	preferredProviderBonus = 0.1
	scoreEpsilon           = 1e-9
)

// MinSpeedForLatency maps a latency budget to the slowest acceptable speed score.
func MinSpeedForLatency(maxLatencyMs int) float64 {
	switch {
	case maxLatencyMs <= 0:
		return 0
	case maxLatencyMs <= 1000:
		return 8
	case maxLatencyMs <= 3000:
		return 6
	case maxLatencyMs <= 10000:
		return 4
	default:
		return 0
	}
}

// Router picks the best catalog model for a request. It is stateless and
// deterministic for a fixed registry.
type Router struct {
	registry *Registry
}

func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

func (r *Router) Registry() *Registry { return r.registry }

// Normalize fills zero-valued optional fields and validates the rest.
func Normalize(c models.RoutingCriteria) (models.RoutingCriteria, error) {
	if c.TaskType == "" {
		c.TaskType = models.TaskGeneral
	}
	if c.MinCapability == 0 {
		c.MinCapability = models.CapabilityBasic
	}
	c.Region = strings.ToLower(strings.TrimSpace(c.Region))

	switch {
	case !c.TaskType.Valid():
		return c, models.NewValidationError("task_type", "unknown task type %q", c.TaskType)
	case !c.MinCapability.Valid():
		return c, models.NewValidationError("min_capability", "unknown capability %d", int(c.MinCapability))
	case c.InputTokens < 0:
		return c, models.NewValidationError("estimated_input_tokens", "must not be negative")
	case c.InputTokens == 0:
		return c, models.NewValidationError("estimated_input_tokens", "must be at least 1")
	case c.OutputTokens < 0:
		return c, models.NewValidationError("estimated_output_tokens", "must not be negative")
	case c.MaxCost < 0:
		return c, models.NewValidationError("max_cost", "must not be negative")
	case c.MaxLatencyMs < 0:
		return c, models.NewValidationError("max_latency_ms", "must not be negative")
	case c.Region == "":
		return c, models.NewValidationError("region", "is required")
	}
	return c, nil
}

type candidate struct {
	index int
	model models.ModelDescriptor
	cost  float64
	score float64
}

// Select returns the highest scoring model that satisfies every hard
// constraint, or a *models.NoEligibleModelError.
func (r *Router) Select(criteria models.RoutingCriteria) (models.ModelDescriptor, error) {
	c, err := Normalize(criteria)
	if err != nil {
		return models.ModelDescriptor{}, err
	}

	cands, rejections := r.evaluate(c)
	if len(cands) == 0 {
		return models.ModelDescriptor{}, &models.NoEligibleModelError{Criteria: c, Rejections: rejections}
	}

	best := 0
	for i := range cands {
		if better(cands[i], cands[best]) {
			best = i
		}
	}
	return cands[best].model, nil
}

// Explain reports the score of every eligible model and the reason each
// other model was rejected.
func (r *Router) Explain(criteria models.RoutingCriteria) (map[string]float64, map[string]string, error) {
	c, err := Normalize(criteria)
	if err != nil {
		return nil, nil, err
	}
	cands, rejections := r.evaluate(c)
	scores := make(map[string]float64, len(cands))
	for _, cd := range cands {
		scores[cd.model.ID] = cd.score
	}
	return scores, rejections, nil
}

// evaluate applies the hard filters and scores what survives, in registry order.
func (r *Router) evaluate(c models.RoutingCriteria) ([]candidate, map[string]string) {
	var (
		cands      []candidate
		rejections = make(map[string]string)
		minSpeed   = MinSpeedForLatency(c.MaxLatencyMs)
	)
	for i, m := range r.registry.models {
		cost := m.EstimateCost(c.InputTokens, c.OutputTokens)
		if reason := reject(m, c, cost, minSpeed); reason != "" {
			rejections[m.ID] = reason
			continue
		}
		cands = append(cands, candidate{index: i, model: m, cost: cost})
	}
	if len(cands) == 0 {
		return nil, rejections
	}

	cheapest := cands[0].cost
	for _, cd := range cands[1:] {
		if cd.cost < cheapest {
			cheapest = cd.cost
		}
	}
	w := WeightsFor(c.TaskType)
	for i := range cands {
		cands[i].score = score(cands[i], c, w, cheapest)
	}
	return cands, rejections
}

func reject(m models.ModelDescriptor, c models.RoutingCriteria, cost, minSpeed float64) string {
	switch {
	case m.Capability < c.MinCapability:
		return fmt.Sprintf("capability %s below %s", m.Capability, c.MinCapability)
	case !m.AvailableIn(c.Region):
		return fmt.Sprintf("not available in %s", c.Region)
	case m.ContextWindow < c.InputTokens+c.OutputTokens:
		return fmt.Sprintf("context window %d too small", m.ContextWindow)
	case c.MaxCost > 0 && cost > c.MaxCost:
		return fmt.Sprintf("estimated cost %.6f exceeds %.6f", cost, c.MaxCost)
	case m.SpeedScore < minSpeed:
		return fmt.Sprintf("speed %.1f below %.1f required for %dms", m.SpeedScore, minSpeed, c.MaxLatencyMs)
	}
	return ""
}

func score(cd candidate, c models.RoutingCriteria, w Weights, cheapest float64) float64 {
	capMatch := 1 - 0.25*float64(cd.model.Capability-c.MinCapability)
	costEff := 1.0
	if cd.cost > 0 {
		costEff = cheapest / cd.cost
	}
	s := w.Capability*capMatch +
		w.Cost*costEff +
		w.Speed*cd.model.SpeedScore/10 +
		w.Reasoning*cd.model.ReasoningScore/10
	if c.PreferredProvider != "" && strings.EqualFold(c.PreferredProvider, cd.model.Provider) {
		s += preferredProviderBonus
	}
	return s
}

// better orders by score, then lower cost, then registry position.
func better(a, b candidate) bool {
	if d := a.score - b.score; d > scoreEpsilon {
		return true
	} else if d < -scoreEpsilon {
		return false
	}
	if a.cost != b.cost {
		return a.cost < b.cost
	}
	return a.index < b.index
}
