package usage

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinScout/internal/domain/models"
)

var sonnet = models.ModelDescriptor{ID: "claude-3-5-sonnet", Provider: "anthropic", CostPer1KInput: 0.003, CostPer1KOutput: 0.015}
var mini = models.ModelDescriptor{ID: "gpt-4o-mini", Provider: "openai", CostPer1KInput: 0.00015, CostPer1KOutput: 0.0006}

func TestRecord_CostAndTotals(t *testing.T) {
	tr := NewTracker(nil)

	cost, err := tr.Record(sonnet, 2000, 1000)
	require.NoError(t, err)
	assert.InDelta(t, 0.021, cost, 1e-12)

	_, err = tr.Record(mini, 1000, 500)
	require.NoError(t, err)
	_, err = tr.Record(sonnet, 1000, 0)
	require.NoError(t, err)

	rep := tr.Report()
	assert.Equal(t, int64(3), rep.TotalInvocations)
	assert.Equal(t, int64(4000), rep.TotalInputTokens)
	assert.Equal(t, int64(1500), rep.TotalOutputTokens)
	assert.InDelta(t, 0.021+0.00045+0.003, rep.TotalCost, 1e-12)

	s := rep.PerModel["claude-3-5-sonnet"]
	assert.Equal(t, int64(2), s.Invocations)
	assert.Equal(t, "anthropic", s.Provider)
	assert.InDelta(t, 0.024, s.Cost, 1e-12)
}

func TestRecord_NegativeTokensLeaveStateUnchanged(t *testing.T) {
	tr := NewTracker(nil)
	_, err := tr.Record(sonnet, 100, 100)
	require.NoError(t, err)
	before := tr.Report()

	_, err = tr.Record(sonnet, -1, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrValidation))

	_, err = tr.Record(mini, 10, -1)
	require.Error(t, err)

	assert.Equal(t, before, tr.Report())
}

func TestReset(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(func() time.Time { return clock })

	_, err := tr.Record(sonnet, 5000, 2000)
	require.NoError(t, err)

	clock = clock.Add(time.Hour)
	tr.Reset()

	rep := tr.Report()
	assert.Zero(t, rep.TotalInvocations)
	assert.Zero(t, rep.TotalInputTokens)
	assert.Zero(t, rep.TotalOutputTokens)
	assert.Zero(t, rep.TotalCost)
	assert.Empty(t, rep.PerModel)
	assert.Equal(t, clock, rep.Since)
}

func TestReportIsSnapshot(t *testing.T) {
	tr := NewTracker(nil)
	_, _ = tr.Record(mini, 10, 10)
	rep := tr.Report()
	_, _ = tr.Record(mini, 10, 10)

	assert.Equal(t, int64(1), rep.TotalInvocations)
	assert.Equal(t, int64(1), rep.PerModel[mini.ID].Invocations)
}

func TestRecord_Concurrent(t *testing.T) {
	tr := NewTracker(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, _ = tr.Record(mini, 1000, 1000)
			}
		}()
	}
	wg.Wait()

	rep := tr.Report()
	assert.Equal(t, int64(1000), rep.TotalInvocations)
	assert.InDelta(t, 1000*0.00075, rep.TotalCost, 1e-9)
}
