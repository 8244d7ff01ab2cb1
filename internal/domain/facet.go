package domain

import "sort"

// DefaultFacetExamples is the number of representative ids shown per cluster.
const DefaultFacetExamples = 7

// ClusterFacet summarizes one cluster for display.
type ClusterFacet struct {
	// ID is the 1-based cluster number accepted by GetIDsInCluster.
	ID       int      `json:"id"`
	Size     int      `json:"size"`
	IDs      []string `json:"ids"`
	Examples []string `json:"examples"`
}

// Facets lists the clusters of r with their most central members as examples.
func (r *ClusterResult) Facets(examples int) []ClusterFacet {
	centrality := make(map[string]float64, len(r.Graph.Nodes))
	for _, node := range r.Graph.Nodes {
		centrality[node.ID] = node.GroupCentrality
	}

	facets := make([]ClusterFacet, 0, len(r.Clusters))
	for i, members := range r.Clusters {
		ranked := append([]string(nil), members...)
		sort.SliceStable(ranked, func(a, b int) bool {
			return centrality[ranked[a]] > centrality[ranked[b]]
		})
		if examples >= 0 && len(ranked) > examples {
			ranked = ranked[:examples]
		}

		facets = append(facets, ClusterFacet{
			ID:       i + 1,
			Size:     len(members),
			IDs:      members,
			Examples: ranked,
		})
	}
	return facets
}
