// Package graph turns nearest-neighbor relations into an undirected similarity graph.
package graph

import (
	"sort"
	"strconv"

	"github.com/davidbz/soundgraph/internal/domain"
)

// SimilarityFunc maps a distance to a similarity weight in [0, 1].
// It must return 1 for distance 0 and be strictly decreasing.
type SimilarityFunc func(distance float64) float64

// InverseDistance is 1 / (1 + d), suitable for any non-negative metric.
func InverseDistance(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	return 1 / (1 + distance)
}

// Builder implements domain.GraphBuilder.
type Builder struct {
	similarity SimilarityFunc
}

// NewBuilder creates a graph builder. A nil similarity uses InverseDistance.
func NewBuilder(similarity SimilarityFunc) *Builder {
	if similarity == nil {
		similarity = InverseDistance
	}
	return &Builder{
		similarity: similarity,
	}
}

type edgeKey struct {
	a, b string
}

// Build creates one node per id appearing as a key or neighbor and one edge per unordered
// neighbor pair. When both directions report a pair, the higher similarity wins.
// Nodes and edges are sorted so identical input always yields an identical graph.
func (b *Builder) Build(neighbors domain.NeighborMap) *domain.SimilarityGraph {
	nodeSet := make(map[string]struct{}, len(neighbors))
	weights := make(map[edgeKey]float64)

	for id, list := range neighbors {
		nodeSet[id] = struct{}{}

		for _, n := range list {
			nodeSet[n.ID] = struct{}{}
			if n.ID == id {
				continue
			}

			key := newEdgeKey(id, n.ID)
			weight := b.similarity(n.Distance)
			if current, ok := weights[key]; !ok || weight > current {
				weights[key] = weight
			}
		}
	}

	ids := make([]string, 0, len(nodeSet))
	for id := range nodeSet {
		ids = append(ids, id)
	}
	SortIDs(ids)

	order := make(map[string]int, len(ids))
	nodes := make([]domain.GraphNode, len(ids))
	for i, id := range ids {
		order[id] = i
		nodes[i] = domain.GraphNode{ID: id}
	}

	edges := make([]domain.GraphEdge, 0, len(weights))
	for key, weight := range weights {
		source, target := key.a, key.b
		if order[source] > order[target] {
			source, target = target, source
		}
		edges = append(edges, domain.GraphEdge{Source: source, Target: target, Weight: weight})
	}
	sort.Slice(edges, func(i, j int) bool {
		si, sj := order[edges[i].Source], order[edges[j].Source]
		if si != sj {
			return si < sj
		}
		return order[edges[i].Target] < order[edges[j].Target]
	})

	return &domain.SimilarityGraph{
		Nodes: nodes,
		Edges: edges,
	}
}

func newEdgeKey(x, y string) edgeKey {
	if x > y {
		x, y = y, x
	}
	return edgeKey{a: x, b: y}
}

// SortIDs orders ids numerically when they are all integers, lexically otherwise.
func SortIDs(ids []string) {
	numeric := make([]int64, len(ids))
	for i, id := range ids {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			sort.Strings(ids)
			return
		}
		numeric[i] = n
	}

	sort.Sort(byNumber{ids: ids, numbers: numeric})
}

type byNumber struct {
	ids     []string
	numbers []int64
}

func (s byNumber) Len() int { return len(s.ids) }

func (s byNumber) Less(i, j int) bool {
	if s.numbers[i] != s.numbers[j] {
		return s.numbers[i] < s.numbers[j]
	}
	return s.ids[i] < s.ids[j]
}

func (s byNumber) Swap(i, j int) {
	s.ids[i], s.ids[j] = s.ids[j], s.ids[i]
	s.numbers[i], s.numbers[j] = s.numbers[j], s.numbers[i]
}
