package routing

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"FinScout/internal/domain/models"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type catalogFile struct {
	Models []models.ModelDescriptor `yaml:"models"`
}

// Registry is an immutable, ordered model catalog. Order is significant:
// it is the router's last tie-breaker.
type Registry struct {
	models []models.ModelDescriptor
	byID   map[string]int
}

func NewRegistry(descriptors []models.ModelDescriptor) (*Registry, error) {
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("registry: catalog is empty")
	}
	r := &Registry{
		models: make([]models.ModelDescriptor, 0, len(descriptors)),
		byID:   make(map[string]int, len(descriptors)),
	}
	for i, d := range descriptors {
		if err := validateDescriptor(d); err != nil {
			return nil, fmt.Errorf("registry: model %d: %w", i, err)
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate model id %q", d.ID)
		}
		d.Regions = append([]string(nil), d.Regions...)
		r.byID[d.ID] = len(r.models)
		r.models = append(r.models, d)
	}
	return r, nil
}

// DefaultRegistry loads the embedded catalog.
func DefaultRegistry() (*Registry, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadRegistry reads a catalog file in the same YAML shape as the embedded one.
func LoadRegistry(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(b)
}

func ParseCatalog(b []byte) (*Registry, error) {
	var c catalogFile
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return NewRegistry(c.Models)
}

func validateDescriptor(d models.ModelDescriptor) error {
	switch {
	case d.ID == "":
		return fmt.Errorf("id is required")
	case d.Provider == "":
		return fmt.Errorf("%s: provider is required", d.ID)
	case !d.Capability.Valid():
		return fmt.Errorf("%s: invalid capability", d.ID)
	case d.CostPer1KInput <= 0 || d.CostPer1KOutput <= 0:
		return fmt.Errorf("%s: costs must be positive", d.ID)
	case d.ContextWindow <= 0:
		return fmt.Errorf("%s: context window must be positive", d.ID)
	case d.SpeedScore < 0 || d.SpeedScore > 10:
		return fmt.Errorf("%s: speed score must be in [0,10]", d.ID)
	case d.ReasoningScore < 0 || d.ReasoningScore > 10:
		return fmt.Errorf("%s: reasoning score must be in [0,10]", d.ID)
	case len(d.Regions) == 0:
		return fmt.Errorf("%s: at least one region is required", d.ID)
	}
	return nil
}

// All returns a copy of the catalog in registry order.
func (r *Registry) All() []models.ModelDescriptor {
	out := make([]models.ModelDescriptor, len(r.models))
	copy(out, r.models)
	return out
}

func (r *Registry) Get(id string) (models.ModelDescriptor, bool) {
	i, ok := r.byID[id]
	if !ok {
		return models.ModelDescriptor{}, false
	}
	return r.models[i], true
}

func (r *Registry) Len() int { return len(r.models) }
