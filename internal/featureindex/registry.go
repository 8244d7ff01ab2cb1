package featureindex

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// FeatureSet describes a family of vectors sharing a dimension and default metric.
type FeatureSet struct {
	Name      string `msgpack:"name"      yaml:"name"`
	Metric    string `msgpack:"metric"    yaml:"metric"`
	Dimension int    `msgpack:"dimension" yaml:"dimension"`
	// Embed marks feature sets whose vectors are generated from text metadata at ingest time.
	Embed bool `msgpack:"embed" yaml:"embed"`
}

// Validate checks the feature set declaration.
func (f FeatureSet) Validate() error {
	if f.Name == "" {
		return errors.New("feature set name cannot be empty")
	}
	if f.Dimension <= 0 {
		return fmt.Errorf("feature set %s: dimension must be positive", f.Name)
	}
	if _, err := ResolveMetric(f.Metric); err != nil {
		return fmt.Errorf("feature set %s: %w", f.Name, err)
	}
	return nil
}

// Registry tracks the declared feature sets.
type Registry struct {
	mu   sync.RWMutex
	sets map[string]FeatureSet
}

// NewRegistry creates an empty feature set registry.
func NewRegistry() *Registry {
	return &Registry{
		mu:   sync.RWMutex{},
		sets: make(map[string]FeatureSet),
	}
}

// Register adds a feature set. Re-registering an identical declaration is a no-op.
func (r *Registry) Register(set FeatureSet) error {
	if err := set.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.sets[set.Name]; exists {
		if existing != set {
			return fmt.Errorf("feature set %s already registered with a different declaration", set.Name)
		}
		return nil
	}

	r.sets[set.Name] = set
	return nil
}

// Get retrieves a feature set by name.
func (r *Registry) Get(name string) (FeatureSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, exists := r.sets[name]
	if !exists {
		return FeatureSet{}, fmt.Errorf("%w: %s", ErrUnknownFeatureSet, name)
	}
	return set, nil
}

// List returns registered feature set names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sets))
	for name := range r.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
