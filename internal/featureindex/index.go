// Package featureindex answers k-nearest-neighbor queries over per-feature-set vectors.
package featureindex

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/davidbz/soundgraph/internal/domain"
)

var (
	// ErrItemNotFound indicates the queried id has no vector in the feature set.
	ErrItemNotFound = errors.New("item not found in feature index")

	// ErrUnknownMetric indicates an unsupported distance metric name.
	ErrUnknownMetric = errors.New("unknown distance metric")

	// ErrUnknownFeatureSet indicates a feature set that was never registered.
	ErrUnknownFeatureSet = errors.New("unknown feature set")

	// ErrDimensionMismatch indicates a vector whose length differs from its feature set.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Index is an exact, in-memory k-NN index. Answers are memoized in an LRU keyed by the full
// query, restriction set included; adding vectors purges the memo.
type Index struct {
	registry *Registry

	mu      sync.RWMutex
	vectors map[string]map[string][]float32

	answers *lru.Cache[string, []domain.Neighbor]
}

// NewIndex creates an index over the registry's feature sets. cacheSize <= 0 disables the memo.
func NewIndex(registry *Registry, cacheSize int) (*Index, error) {
	idx := &Index{
		registry: registry,
		vectors:  make(map[string]map[string][]float32),
	}

	if cacheSize > 0 {
		answers, err := lru.New[string, []domain.Neighbor](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create neighbor cache: %w", err)
		}
		idx.answers = answers
	}

	return idx, nil
}

// Registry returns the feature set registry backing the index.
func (i *Index) Registry() *Registry {
	return i.registry
}

// Add stores or replaces the vector of id in a registered feature set.
func (i *Index) Add(featureSet, id string, vector []float32) error {
	set, err := i.registry.Get(featureSet)
	if err != nil {
		return err
	}
	if len(vector) != set.Dimension {
		return fmt.Errorf("%w: %s/%s has %d values, want %d",
			ErrDimensionMismatch, featureSet, id, len(vector), set.Dimension)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	vectors, ok := i.vectors[featureSet]
	if !ok {
		vectors = make(map[string][]float32)
		i.vectors[featureSet] = vectors
	}
	vectors[id] = append([]float32(nil), vector...)

	if i.answers != nil {
		i.answers.Purge()
	}
	return nil
}

// Len returns the number of vectors stored for a feature set.
func (i *Index) Len(featureSet string) int {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return len(i.vectors[featureSet])
}

// NearestNeighbors implements domain.FeatureIndex with an exact scan. Ties on distance are
// broken by id so answers are stable.
func (i *Index) NearestNeighbors(_ context.Context, q domain.NeighborQuery) ([]domain.Neighbor, error) {
	set, err := i.registry.Get(q.FeatureSet)
	if err != nil {
		return nil, err
	}

	metric := q.Metric
	if metric == "" {
		metric = set.Metric
	}
	distance, err := ResolveMetric(metric)
	if err != nil {
		return nil, err
	}

	if q.K <= 0 {
		return []domain.Neighbor{}, nil
	}

	cacheKey := answerKey(q, metric)
	if i.answers != nil {
		if cached, ok := i.answers.Get(cacheKey); ok {
			return append([]domain.Neighbor(nil), cached...), nil
		}
	}

	neighbors, err := i.scan(q, distance)
	if err != nil {
		return nil, err
	}

	if i.answers != nil {
		i.answers.Add(cacheKey, neighbors)
	}
	return append([]domain.Neighbor(nil), neighbors...), nil
}

func (i *Index) scan(q domain.NeighborQuery, distance DistanceFunc) ([]domain.Neighbor, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	vectors := i.vectors[q.FeatureSet]
	target, ok := vectors[q.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrItemNotFound, q.FeatureSet, q.ID)
	}

	var candidates []domain.Neighbor
	consider := func(id string, vector []float32) {
		if id == q.ID {
			return
		}
		candidates = append(candidates, domain.Neighbor{ID: id, Distance: distance(target, vector)})
	}

	if len(q.RestrictTo) > 0 {
		candidates = make([]domain.Neighbor, 0, len(q.RestrictTo))
		for id := range q.RestrictTo {
			if vector, exists := vectors[id]; exists {
				consider(id, vector)
			}
		}
	} else {
		candidates = make([]domain.Neighbor, 0, len(vectors))
		for id, vector := range vectors {
			consider(id, vector)
		}
	}

	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].Distance != candidates[b].Distance {
			return candidates[a].Distance < candidates[b].Distance
		}
		return candidates[a].ID < candidates[b].ID
	})

	if len(candidates) > q.K {
		candidates = candidates[:q.K]
	}
	return candidates, nil
}

// answerKey identifies a query. The restriction set is folded into an order-independent
// fingerprint.
func answerKey(q domain.NeighborQuery, metric string) string {
	var sum, xor uint64
	for id := range q.RestrictTo {
		h := fnv.New64a()
		_, _ = h.Write([]byte(id))
		v := h.Sum64()
		sum += v
		xor ^= v
	}
	return fmt.Sprintf("%s|%s|%s|%d|%d|%x|%x", q.FeatureSet, metric, q.ID, q.K, len(q.RestrictTo), sum, xor)
}
