package usage

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"FinScout/internal/domain/models"
)

var thousand = decimal.NewFromInt(1000)

type modelCounters struct {
	provider     string
	invocations  int64
	inputTokens  int64
	outputTokens int64
	cost         decimal.Decimal
}

// Tracker accumulates token usage and cost per model. Costs are summed as
// decimals so long-running totals do not drift.
type Tracker struct {
	mu       sync.Mutex
	now      func() time.Time
	since    time.Time
	perModel map[string]*modelCounters
	total    modelCounters
}

func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now, since: now(), perModel: make(map[string]*modelCounters)}
}

// Cost prices a call without recording it.
func Cost(m models.ModelDescriptor, inputTokens, outputTokens int) decimal.Decimal {
	in := decimal.NewFromInt(int64(inputTokens)).Div(thousand).Mul(decimal.NewFromFloat(m.CostPer1KInput))
	out := decimal.NewFromInt(int64(outputTokens)).Div(thousand).Mul(decimal.NewFromFloat(m.CostPer1KOutput))
	return in.Add(out)
}

// Record adds one invocation and returns its cost. Negative token counts are
// rejected without touching any counter.
func (t *Tracker) Record(m models.ModelDescriptor, inputTokens, outputTokens int) (float64, error) {
	if inputTokens < 0 {
		return 0, models.NewValidationError("input_tokens", "must not be negative, got %d", inputTokens)
	}
	if outputTokens < 0 {
		return 0, models.NewValidationError("output_tokens", "must not be negative, got %d", outputTokens)
	}
	cost := Cost(m, inputTokens, outputTokens)

	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.perModel[m.ID]
	if !ok {
		c = &modelCounters{provider: m.Provider}
		t.perModel[m.ID] = c
	}
	for _, ctr := range []*modelCounters{c, &t.total} {
		ctr.invocations++
		ctr.inputTokens += int64(inputTokens)
		ctr.outputTokens += int64(outputTokens)
		ctr.cost = ctr.cost.Add(cost)
	}
	return cost.InexactFloat64(), nil
}

func (t *Tracker) Report() models.UsageReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	rep := models.UsageReport{
		Since:             t.since,
		TotalInvocations:  t.total.invocations,
		TotalInputTokens:  t.total.inputTokens,
		TotalOutputTokens: t.total.outputTokens,
		TotalCost:         t.total.cost.InexactFloat64(),
		PerModel:          make(map[string]models.ModelUsage, len(t.perModel)),
	}
	for id, c := range t.perModel {
		rep.PerModel[id] = models.ModelUsage{
			ModelID:      id,
			Provider:     c.provider,
			Invocations:  c.invocations,
			InputTokens:  c.inputTokens,
			OutputTokens: c.outputTokens,
			Cost:         c.cost.InexactFloat64(),
		}
	}
	return rep
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.perModel = make(map[string]*modelCounters)
	t.total = modelCounters{}
	t.since = t.now()
}
