package clustering_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/davidbz/soundgraph/internal/clustering"
	"github.com/davidbz/soundgraph/internal/domain"
)

func complete(ids []string, weight float64) []domain.GraphEdge {
	var edges []domain.GraphEdge
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			edges = append(edges, domain.GraphEdge{Source: ids[i], Target: ids[j], Weight: weight})
		}
	}
	return edges
}

// gonumModularity scores a partition with gonum's reference implementation.
func gonumModularity(g *domain.SimilarityGraph, clusters [][]string, resolution float64) float64 {
	index := make(map[string]int64, len(g.Nodes))
	weighted := simple.NewWeightedUndirectedGraph(0, 0)
	for i, node := range g.Nodes {
		index[node.ID] = int64(i)
		weighted.AddNode(simple.Node(int64(i)))
	}
	for _, edge := range g.Edges {
		weighted.SetWeightedEdge(simple.WeightedEdge{
			F: simple.Node(index[edge.Source]),
			T: simple.Node(index[edge.Target]),
			W: edge.Weight,
		})
	}

	communities := make([][]graph.Node, len(clusters))
	for c, ids := range clusters {
		for _, id := range ids {
			communities[c] = append(communities[c], simple.Node(index[id]))
		}
	}
	return community.Q(weighted, communities, resolution)
}

func nodes(ids ...string) []domain.GraphNode {
	out := make([]domain.GraphNode, len(ids))
	for i, id := range ids {
		out[i] = domain.GraphNode{ID: id}
	}
	return out
}

func TestEngine_Cluster(t *testing.T) {
	ctx := context.Background()
	engine := clustering.NewEngine(clustering.Config{})

	t.Run("should keep a uniform clique together", func(t *testing.T) {
		g := &domain.SimilarityGraph{
			Nodes: nodes("1", "2", "3", "4"),
			Edges: complete([]string{"1", "2", "3", "4"}, 1/1.1),
		}

		partition, err := engine.Cluster(ctx, g)

		require.NoError(t, err)
		require.Equal(t, [][]string{{"1", "2", "3", "4"}}, partition.Clusters)
		require.InDelta(t, 0.0, partition.Modularity, 1e-9)
		for _, id := range []string{"1", "2", "3", "4"} {
			require.InDelta(t, 1.0, partition.Assignments[id].Centrality, 1e-9)
		}
	})

	t.Run("should split two cliques joined by a weak bridge", func(t *testing.T) {
		left := []string{"1", "2", "3", "4"}
		right := []string{"5", "6", "7", "8"}
		edges := append(complete(left, 1), complete(right, 1)...)
		edges = append(edges, domain.GraphEdge{Source: "4", Target: "5", Weight: 0.05})

		g := &domain.SimilarityGraph{
			Nodes: nodes(append(left, right...)...),
			Edges: edges,
		}

		partition, err := engine.Cluster(ctx, g)

		require.NoError(t, err)
		require.Equal(t, [][]string{left, right}, partition.Clusters)
		require.Greater(t, partition.Modularity, 0.4)
		require.InDelta(t, gonumModularity(g, partition.Clusters, 1), partition.Modularity, 1e-12)
		require.Equal(t, 0, partition.Assignments["1"].Cluster)
		require.Equal(t, 1, partition.Assignments["8"].Cluster)
	})

	t.Run("should give isolated nodes their own clusters", func(t *testing.T) {
		partition, err := engine.Cluster(ctx, &domain.SimilarityGraph{
			Nodes: nodes("1", "2", "3"),
			Edges: []domain.GraphEdge{{Source: "1", Target: "2", Weight: 0.8}},
		})

		require.NoError(t, err)
		require.Equal(t, [][]string{{"1", "2"}, {"3"}}, partition.Clusters)
		require.InDelta(t, 0.0, partition.Assignments["3"].Centrality, 1e-12)
	})

	t.Run("should make every node a singleton without edges", func(t *testing.T) {
		partition, err := engine.Cluster(ctx, &domain.SimilarityGraph{Nodes: nodes("a", "b")})

		require.NoError(t, err)
		require.Equal(t, [][]string{{"a"}, {"b"}}, partition.Clusters)
		require.InDelta(t, 0.0, partition.Modularity, 1e-12)
	})

	t.Run("should return an empty partition for an empty graph", func(t *testing.T) {
		partition, err := engine.Cluster(ctx, &domain.SimilarityGraph{})

		require.NoError(t, err)
		require.Empty(t, partition.Clusters)
		require.Empty(t, partition.Assignments)
	})

	t.Run("should reject malformed graphs", func(t *testing.T) {
		_, err := engine.Cluster(ctx, &domain.SimilarityGraph{
			Nodes: nodes("1"),
			Edges: []domain.GraphEdge{{Source: "1", Target: "2", Weight: 1}},
		})
		require.ErrorContains(t, err, "unknown node")

		_, err = engine.Cluster(ctx, &domain.SimilarityGraph{Nodes: nodes("1", "1")})
		require.ErrorContains(t, err, "duplicate node")

		_, err = engine.Cluster(ctx, &domain.SimilarityGraph{
			Nodes: nodes("1", "2"),
			Edges: []domain.GraphEdge{{Source: "1", Target: "2", Weight: -1}},
		})
		require.ErrorContains(t, err, "invalid weight")
	})

	t.Run("should be deterministic", func(t *testing.T) {
		ids := make([]string, 30)
		for i := range ids {
			ids[i] = fmt.Sprint(i + 1)
		}

		var edges []domain.GraphEdge
		for i := range ids {
			for _, step := range []int{1, 2, 7} {
				j := (i + step) % len(ids)
				if i < j {
					edges = append(edges, domain.GraphEdge{
						Source: ids[i],
						Target: ids[j],
						Weight: 1 / float64(1+step),
					})
				}
			}
		}
		g := &domain.SimilarityGraph{Nodes: nodes(ids...), Edges: edges}

		first, err := engine.Cluster(ctx, g)
		require.NoError(t, err)

		for range 10 {
			again, err := engine.Cluster(ctx, g)
			require.NoError(t, err)
			require.Equal(t, first, again)
		}
		require.InDelta(t, gonumModularity(g, first.Clusters, 1), first.Modularity, 1e-12)

		for _, assignment := range first.Assignments {
			require.GreaterOrEqual(t, assignment.Centrality, 0.0)
			require.LessOrEqual(t, assignment.Centrality, 1.0)
		}
	})
}
