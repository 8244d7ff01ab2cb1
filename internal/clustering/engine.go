// Package clustering partitions similarity graphs with weighted Louvain community detection.
package clustering

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/graph/simple"

	"github.com/davidbz/soundgraph/internal/domain"
	"github.com/davidbz/soundgraph/internal/observability"
)

const (
	defaultResolution = 1.0
	defaultMaxLevels  = 32
	defaultMaxPasses  = 64
)

// Config tunes the Louvain engine.
type Config struct {
	// Resolution scales the null model; higher values give more, smaller clusters.
	Resolution float64
	// MaxLevels bounds the number of aggregation levels.
	MaxLevels int
	// MaxPasses bounds the local moving passes per level.
	MaxPasses int
}

// Engine implements domain.ClusteringEngine.
type Engine struct {
	resolution float64
	maxLevels  int
	maxPasses  int
}

// NewEngine creates a clustering engine, filling zero config values with defaults.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		resolution: defaultResolution,
		maxLevels:  defaultMaxLevels,
		maxPasses:  defaultMaxPasses,
	}
	if cfg.Resolution > 0 {
		e.resolution = cfg.Resolution
	}
	if cfg.MaxLevels > 0 {
		e.maxLevels = cfg.MaxLevels
	}
	if cfg.MaxPasses > 0 {
		e.maxPasses = cfg.MaxPasses
	}
	return e
}

// Cluster partitions g. Nodes are processed in the order of g.Nodes, so identical graphs
// always produce identical partitions and centralities.
func (e *Engine) Cluster(ctx context.Context, g *domain.SimilarityGraph) (*domain.Partition, error) {
	partition := &domain.Partition{
		Clusters:    [][]string{},
		Assignments: make(map[string]domain.NodeAssignment),
	}
	if g == nil || len(g.Nodes) == 0 {
		return partition, nil
	}

	weighted, index, err := toWeighted(g)
	if err != nil {
		return nil, err
	}

	base := baseLevel(weighted, len(g.Nodes))
	membership := make([]int, len(g.Nodes))
	if weighted.Edges().Len() == 0 {
		for i := range membership {
			membership[i] = i
		}
	} else {
		membership = louvain(base, e.resolution, e.maxLevels, e.maxPasses)
	}

	count := 0
	for _, m := range membership {
		count = max(count, m+1)
	}

	partition.Clusters = make([][]string, count)
	for i, node := range g.Nodes {
		partition.Clusters[membership[i]] = append(partition.Clusters[membership[i]], node.ID)
	}

	centrality := groupCentrality(g, index, membership, count)
	for i, node := range g.Nodes {
		partition.Assignments[node.ID] = domain.NodeAssignment{
			Cluster:    membership[i],
			Centrality: centrality[i],
		}
	}

	partition.Modularity = base.modularity(membership, count, e.resolution)

	observability.FromContext(ctx).Debug("louvain clustering finished",
		observability.Int("nodes", len(g.Nodes)),
		observability.Int("edges", len(g.Edges)),
		observability.Int("clusters", count),
		observability.Float64("modularity", partition.Modularity))

	return partition, nil
}

// toWeighted copies g into a gonum graph whose node ids are the positions in g.Nodes.
func toWeighted(g *domain.SimilarityGraph) (*simple.WeightedUndirectedGraph, map[string]int64, error) {
	weighted := simple.NewWeightedUndirectedGraph(0, 0)
	index := make(map[string]int64, len(g.Nodes))

	for i, node := range g.Nodes {
		if _, dup := index[node.ID]; dup {
			return nil, nil, fmt.Errorf("duplicate node %q", node.ID)
		}
		index[node.ID] = int64(i)
		weighted.AddNode(simple.Node(int64(i)))
	}

	for _, edge := range g.Edges {
		from, ok := index[edge.Source]
		if !ok {
			return nil, nil, fmt.Errorf("edge references unknown node %q", edge.Source)
		}
		to, ok := index[edge.Target]
		if !ok {
			return nil, nil, fmt.Errorf("edge references unknown node %q", edge.Target)
		}
		if math.IsNaN(edge.Weight) || edge.Weight < 0 {
			return nil, nil, fmt.Errorf("invalid weight %v on edge %s-%s", edge.Weight, edge.Source, edge.Target)
		}
		if from == to || edge.Weight == 0 {
			continue
		}

		weight := edge.Weight
		if existing, exists := weighted.Weight(from, to); exists {
			weight = max(weight, existing)
		}
		weighted.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(from), T: simple.Node(to), W: weight})
	}

	return weighted, index, nil
}

// baseLevel builds the first Louvain level from the gonum graph.
func baseLevel(g *simple.WeightedUndirectedGraph, n int) *level {
	adjacency := make([]map[int]float64, n)
	for i := range adjacency {
		adjacency[i] = make(map[int]float64)
		neighbors := g.From(int64(i))
		for neighbors.Next() {
			j := neighbors.Node().ID()
			if w, ok := g.Weight(int64(i), j); ok {
				adjacency[i][int(j)] = w
			}
		}
	}
	return newLevel(adjacency, make([]float64, n))
}

// groupCentrality is each node's weighted degree inside its cluster, divided by the largest
// such degree in that cluster.
func groupCentrality(g *domain.SimilarityGraph, index map[string]int64, membership []int, count int) []float64 {
	inner := make([]float64, len(g.Nodes))
	for _, edge := range g.Edges {
		u, v := index[edge.Source], index[edge.Target]
		if u == v || membership[u] != membership[v] {
			continue
		}
		inner[u] += edge.Weight
		inner[v] += edge.Weight
	}

	peak := make([]float64, count)
	for i, w := range inner {
		peak[membership[i]] = max(peak[membership[i]], w)
	}

	centrality := make([]float64, len(g.Nodes))
	for i, w := range inner {
		if p := peak[membership[i]]; p > 0 {
			centrality[i] = w / p
		}
	}
	return centrality
}
