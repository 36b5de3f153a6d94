package routing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinScout/internal/domain/models"
)

func TestDefaultRegistry(t *testing.T) {
	reg, err := DefaultRegistry()
	require.NoError(t, err)
	assert.Equal(t, 9, reg.Len())

	m, ok := reg.Get("claude-3-5-sonnet")
	require.True(t, ok)
	assert.Equal(t, models.CapabilityExpert, m.Capability)
	assert.Equal(t, "anthropic", m.Provider)

	_, ok = reg.Get("nope")
	assert.False(t, ok)

	// All returns a copy.
	all := reg.All()
	all[0].ID = "changed"
	assert.NotEqual(t, "changed", reg.All()[0].ID)
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
models:
  - id: local-small
    provider: self
    capability: basic
    cost_per_1k_input: 0.0001
    cost_per_1k_output: 0.0001
    context_window: 4096
    speed_score: 9
    reasoning_score: 3
    regions: [us]
`), 0o600))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	require.Equal(t, 1, reg.Len())
	assert.Equal(t, models.CapabilityBasic, reg.All()[0].Capability)
}

func TestNewRegistry_Invalid(t *testing.T) {
	good := models.ModelDescriptor{
		ID: "m", Provider: "p", Capability: models.CapabilityBasic,
		CostPer1KInput: 0.1, CostPer1KOutput: 0.1, ContextWindow: 10,
		SpeedScore: 5, ReasoningScore: 5, Regions: []string{"us"},
	}

	tests := map[string]func(*models.ModelDescriptor){
		"no id":          func(m *models.ModelDescriptor) { m.ID = "" },
		"zero cost":      func(m *models.ModelDescriptor) { m.CostPer1KOutput = 0 },
		"bad capability": func(m *models.ModelDescriptor) { m.Capability = 0 },
		"speed range":    func(m *models.ModelDescriptor) { m.SpeedScore = 11 },
		"no regions":     func(m *models.ModelDescriptor) { m.Regions = nil },
		"no window":      func(m *models.ModelDescriptor) { m.ContextWindow = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			m := good
			mutate(&m)
			_, err := NewRegistry([]models.ModelDescriptor{m})
			assert.Error(t, err)
		})
	}

	_, err := NewRegistry([]models.ModelDescriptor{good, good})
	assert.Error(t, err, "duplicate ids")

	_, err = NewRegistry(nil)
	assert.Error(t, err)

	_, err = ParseCatalog([]byte("models:\n  - id: x\n    capability: GODLIKE\n"))
	assert.Error(t, err)
}
