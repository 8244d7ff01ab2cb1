package domain_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/soundgraph/internal/domain"
)

func TestNewRequestKey(t *testing.T) {
	params := domain.QueryParams{
		SearchQuery: "dog bark",
		FilterQuery: "tag:field-recording",
		Sort:        "created desc",
		Weights:     domain.DefaultFieldWeights(),
		Grouping:    true,
	}

	t.Run("should compose every request parameter", func(t *testing.T) {
		key := domain.NewRequestKey(params, "audio")

		require.Equal(t,
			`cluster-results-dog bark-tag:field\-recording-created desc-4-1-1-3-2-2-1-audio`,
			key.Composite)
		require.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), key.Hash)
	})

	t.Run("should be stable for cosmetic whitespace differences", func(t *testing.T) {
		spaced := params
		spaced.SearchQuery = "  dog \t bark "

		require.Equal(t, domain.NewRequestKey(params, "audio"), domain.NewRequestKey(spaced, " audio"))
	})

	t.Run("should keep separators inside text from shifting components", func(t *testing.T) {
		left := domain.QueryParams{SearchQuery: "a-b", FilterQuery: "c", Weights: params.Weights}
		right := domain.QueryParams{SearchQuery: "a", FilterQuery: "b-c", Weights: params.Weights}

		leftKey := domain.NewRequestKey(left, "audio")
		rightKey := domain.NewRequestKey(right, "audio")

		require.NotEqual(t, leftKey.Composite, rightKey.Composite)
		require.NotEqual(t, leftKey.Hash, rightKey.Hash)

		escaped := domain.QueryParams{SearchQuery: `a\`, FilterQuery: "-b", Weights: params.Weights}
		plain := domain.QueryParams{SearchQuery: "a", FilterQuery: `\-b`, Weights: params.Weights}
		require.NotEqual(t,
			domain.NewRequestKey(escaped, "audio").Composite,
			domain.NewRequestKey(plain, "audio").Composite)
	})

	t.Run("should differ when any parameter differs", func(t *testing.T) {
		base := domain.NewRequestKey(params, "audio")

		otherFeatures := domain.NewRequestKey(params, "mfcc")
		require.NotEqual(t, base.Hash, otherFeatures.Hash)

		ungrouped := params
		ungrouped.Grouping = false
		require.NotEqual(t, base.Hash, domain.NewRequestKey(ungrouped, "audio").Hash)

		reweighted := params
		reweighted.Weights.Tag = 5
		require.NotEqual(t, base.Hash, domain.NewRequestKey(reweighted, "audio").Hash)
	})
}

func TestDecodeEntry(t *testing.T) {
	t.Run("should round trip a result", func(t *testing.T) {
		result := &domain.ClusterResult{
			Clusters:   [][]string{{"1", "2"}, {"3"}},
			Modularity: 0.25,
			Graph: domain.SimilarityGraph{
				Nodes: []domain.GraphNode{{ID: "1"}, {ID: "2"}, {ID: "3", Group: 1}},
				Edges: []domain.GraphEdge{{Source: "1", Target: "2", Weight: 0.5}},
			},
		}

		data, err := domain.EncodeResult(result)
		require.NoError(t, err)

		state, decoded, err := domain.DecodeEntry(data)
		require.NoError(t, err)
		require.Equal(t, domain.StateDone, state)
		require.Equal(t, result.Clusters, decoded.Clusters)
		require.Equal(t, result.Graph, decoded.Graph)
	})

	t.Run("should reject garbage", func(t *testing.T) {
		_, _, err := domain.DecodeEntry([]byte("not msgpack"))
		require.Error(t, err)
	})
}

func TestClusterResult_Facets(t *testing.T) {
	result := &domain.ClusterResult{
		Clusters: [][]string{{"1", "2", "3"}, {"4"}},
		Graph: domain.SimilarityGraph{
			Nodes: []domain.GraphNode{
				{ID: "1", GroupCentrality: 0.5},
				{ID: "2", GroupCentrality: 1},
				{ID: "3", GroupCentrality: 0.5},
				{ID: "4", Group: 1},
			},
		},
	}

	facets := result.Facets(2)

	require.Len(t, facets, 2)
	require.Equal(t, domain.ClusterFacet{
		ID:       1,
		Size:     3,
		IDs:      []string{"1", "2", "3"},
		Examples: []string{"2", "1"},
	}, facets[0])
	require.Equal(t, 2, facets[1].ID)
	require.Equal(t, []string{"4"}, facets[1].Examples)
}
