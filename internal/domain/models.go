package domain

import "time"

// FieldWeights holds the per-field relevance boosts applied by the search index.
type FieldWeights struct {
	Tag              int `json:"tag_weight"`
	Username         int `json:"username_weight"`
	ID               int `json:"id_weight"`
	Description      int `json:"description_weight"`
	PackTokenized    int `json:"pack_tokenized_weight"`
	OriginalFilename int `json:"original_filename_weight"`
}

// DefaultFieldWeights returns the boosts used when a request does not override them.
func DefaultFieldWeights() FieldWeights {
	return FieldWeights{
		Tag:              4,
		Username:         1,
		ID:               1,
		Description:      3,
		PackTokenized:    2,
		OriginalFilename: 2,
	}
}

// QueryParams describes a user search whose results are clustered.
type QueryParams struct {
	SearchQuery string       `json:"search_query"`
	FilterQuery string       `json:"filter_query"`
	Sort        string       `json:"sort"`
	Weights     FieldWeights `json:"weights"`
	Grouping    bool         `json:"grouping"`
}

// SearchRequest is a QueryParams execution against the search index.
type SearchRequest struct {
	QueryParams

	// Rows caps the number of returned ids.
	Rows int
	// IncludeFacets is always false for clustering to reduce the payload.
	IncludeFacets bool
}

// Neighbor is one k-NN answer: an item id and its distance to the query item.
type Neighbor struct {
	ID       string  `json:"id"       msgpack:"id"`
	Distance float64 `json:"distance" msgpack:"distance"`
}

// NeighborMap maps an item id to its neighbors ordered by ascending distance.
type NeighborMap map[string][]Neighbor

// IDSet is a set of item ids.
type IDSet map[string]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids []string) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Contains reports whether id is in the set.
func (s IDSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// NeighborQuery is a single k-NN lookup against a feature set.
type NeighborQuery struct {
	FeatureSet string
	// Metric overrides the feature set's default distance metric when non-empty.
	Metric string
	ID     string
	K      int
	// RestrictTo limits candidate neighbors to these ids. Empty means the whole feature set.
	RestrictTo IDSet
}

// GraphNode is a node of the node-link similarity graph.
type GraphNode struct {
	ID              string  `json:"id"               msgpack:"id"`
	Group           int     `json:"group"            msgpack:"group"`
	GroupCentrality float64 `json:"group_centrality" msgpack:"group_centrality"`
}

// GraphEdge is an undirected weighted edge; Source sorts before Target.
type GraphEdge struct {
	Source string  `json:"source" msgpack:"source"`
	Target string  `json:"target" msgpack:"target"`
	Weight float64 `json:"weight" msgpack:"weight"`
}

// SimilarityGraph is the node-link form of the similarity graph.
type SimilarityGraph struct {
	Nodes []GraphNode `json:"nodes" msgpack:"nodes"`
	Edges []GraphEdge `json:"links" msgpack:"links"`
}

// NodeAssignment places a node in a cluster.
type NodeAssignment struct {
	Cluster    int
	Centrality float64
}

// Partition is the output of a clustering engine.
type Partition struct {
	// Clusters are ordered as produced by the algorithm; members keep graph node order.
	Clusters    [][]string
	Assignments map[string]NodeAssignment
	Modularity  float64
}

// ClusterResult is the cached outcome of a clustering computation.
type ClusterResult struct {
	Clusters   [][]string      `json:"clusters"    msgpack:"clusters"`
	Graph      SimilarityGraph `json:"graph"       msgpack:"graph"`
	Modularity float64         `json:"modularity"  msgpack:"modularity"`
	ComputedAt time.Time       `json:"computed_at" msgpack:"computed_at"`
}

// ClusterState is the lifecycle state of a cached clustering.
type ClusterState int

const (
	// StateAbsent means there is no cache entry.
	StateAbsent ClusterState = iota
	// StatePending means a computation was dispatched and has not finished.
	StatePending
	// StateDone means a result is cached.
	StateDone
	// StateFailed means the last computation failed.
	StateFailed
)

func (s ClusterState) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StatePending:
		return "pending"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ClusterStatus is returned to callers polling for a clustering.
type ClusterStatus struct {
	Finished bool
	Error    bool
	Result   *ClusterResult
}

// State maps the status flags back to a ClusterState.
func (s *ClusterStatus) State() ClusterState {
	switch {
	case s.Finished:
		return StateDone
	case s.Error:
		return StateFailed
	default:
		return StatePending
	}
}
