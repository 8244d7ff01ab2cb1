package domain

import (
	"context"
	"math"
	"sort"

	"github.com/davidbz/soundgraph/internal/observability"
)

// KPolicy returns the number of neighbors to request for a candidate set of the given size.
// Implementations must be non-decreasing in size.
type KPolicy func(candidates int) int

// LogScaledK grows k with log2 of the candidate count, clamped to [minK, maxK] and never above
// candidates-1.
func LogScaledK(minK, maxK int, factor float64) KPolicy {
	return func(candidates int) int {
		if candidates < 2 {
			return 0
		}

		k := int(math.Ceil(factor * math.Log2(float64(candidates))))
		k = max(k, minK)
		k = min(k, maxK)
		return min(k, candidates-1)
	}
}

// AggregateRequest describes one NeighborAggregator pass over a chunk of candidates.
type AggregateRequest struct {
	FeatureSet string
	Metric     string
	K          int
	// Chunk holds the ids whose neighbors are looked up.
	Chunk []string
	// Candidates is the full candidate set; neighbors are only chosen from it.
	Candidates IDSet
}

// NeighborAggregator queries the feature index for every id of a chunk.
type NeighborAggregator struct {
	index FeatureIndex
}

// NewNeighborAggregator creates an aggregator over the given feature index.
func NewNeighborAggregator(index FeatureIndex) *NeighborAggregator {
	return &NeighborAggregator{
		index: index,
	}
}

// Aggregate returns the neighbor map of req.Chunk. Any failed lookup aborts the whole chunk.
func (a *NeighborAggregator) Aggregate(ctx context.Context, req AggregateRequest) (NeighborMap, error) {
	logger := observability.FromContext(ctx)
	logger.Debug("aggregating nearest neighbors",
		observability.Int("chunk_size", len(req.Chunk)),
		observability.Int("candidates", len(req.Candidates)),
		observability.Int("k", req.K))

	result := make(NeighborMap, len(req.Chunk))
	for _, id := range req.Chunk {
		if req.K <= 0 {
			result[id] = nil
			continue
		}

		neighbors, err := a.index.NearestNeighbors(ctx, NeighborQuery{
			FeatureSet: req.FeatureSet,
			Metric:     req.Metric,
			ID:         id,
			K:          req.K,
			RestrictTo: req.Candidates,
		})
		if err != nil {
			logger.Error("nearest neighbor query failed",
				observability.String("id", id),
				observability.Error(err))
			return nil, &FeatureIndexError{ID: id, Err: err}
		}

		result[id] = sanitizeNeighbors(id, neighbors, req.K, req.Candidates)
	}

	return result, nil
}

// sanitizeNeighbors enforces the NeighborMap invariants on an index answer.
func sanitizeNeighbors(id string, neighbors []Neighbor, k int, candidates IDSet) []Neighbor {
	out := make([]Neighbor, 0, min(len(neighbors), k))
	for _, n := range neighbors {
		if n.ID == id {
			continue
		}
		if len(candidates) > 0 && !candidates.Contains(n.ID) {
			continue
		}
		out = append(out, n)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Distance < out[j].Distance
	})

	if len(out) > k {
		out = out[:k]
	}
	return out
}

// MergeNeighborMaps unions chunk outputs. Chunks have disjoint keys.
func MergeNeighborMaps(parts ...NeighborMap) NeighborMap {
	size := 0
	for _, part := range parts {
		size += len(part)
	}

	merged := make(NeighborMap, size)
	for _, part := range parts {
		for id, neighbors := range part {
			merged[id] = neighbors
		}
	}
	return merged
}

// ChunkIDs splits ids into consecutive chunks of at most size elements.
func ChunkIDs(ids []string, size int) [][]string {
	if size <= 0 || len(ids) <= size {
		if len(ids) == 0 {
			return nil
		}
		return [][]string{ids}
	}

	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
