package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/davidbz/soundgraph/internal/config"
	"github.com/davidbz/soundgraph/internal/domain"
	"github.com/davidbz/soundgraph/internal/observability"
)

// ClusterFacetResponse is the body of GET /v1/clusters.
type ClusterFacetResponse struct {
	Status     string                `json:"status"`
	Clusters   []domain.ClusterFacet `json:"clusters,omitempty"`
	Modularity *float64              `json:"modularity,omitempty"`
	ComputedAt *time.Time            `json:"computed_at,omitempty"`
}

// ClusterIDsResponse is the body of GET /v1/clusters/{cluster}/ids.
type ClusterIDsResponse struct {
	Cluster int      `json:"cluster"`
	IDs     []string `json:"ids"`
}

// Handler handles HTTP requests.
type Handler struct {
	clusters        *domain.ClusterService
	defaultFeatures string
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(clusters *domain.ClusterService, cfg *config.ClusteringConfig) *Handler {
	return &Handler{
		clusters:        clusters,
		defaultFeatures: cfg.DefaultFeatures,
	}
}

// HandleClusters returns the cluster facet of a search, dispatching its computation if needed.
func (h *Handler) HandleClusters(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	params, featureSet, err := h.parseQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	status, err := h.clusters.GetOrComputeClusters(ctx, params, featureSet)
	if err != nil {
		logger.Error("clustering request failed", zap.Error(err))
		http.Error(w, err.Error(), statusFromError(err))
		return
	}

	response := ClusterFacetResponse{Status: status.State().String()}
	if status.Finished {
		modularity := status.Result.Modularity
		computedAt := status.Result.ComputedAt
		response.Clusters = status.Result.Facets(domain.DefaultFacetExamples)
		response.Modularity = &modularity
		response.ComputedAt = &computedAt
	}

	writeJSON(w, r, http.StatusOK, response)
}

// HandleGraph returns the clustered similarity graph once it is computed.
func (h *Handler) HandleGraph(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	params, featureSet, err := h.parseQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	status, err := h.clusters.GetOrComputeClusters(ctx, params, featureSet)
	if err != nil {
		observability.FromContext(ctx).Error("graph request failed", zap.Error(err))
		http.Error(w, err.Error(), statusFromError(err))
		return
	}

	if !status.Finished {
		writeJSON(w, r, http.StatusAccepted, ClusterFacetResponse{Status: status.State().String()})
		return
	}

	writeJSON(w, r, http.StatusOK, status.Result.Graph)
}

// HandleClusterIDs returns the ids of one 1-based cluster; the list is empty when unavailable.
func (h *Handler) HandleClusterIDs(w http.ResponseWriter, r *http.Request) {
	params, featureSet, err := h.parseQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	response := ClusterIDsResponse{IDs: []string{}}

	cluster, err := strconv.Atoi(r.PathValue("cluster"))
	if err == nil {
		response.Cluster = cluster
		if ids := h.clusters.GetIDsInCluster(r.Context(), params, featureSet, cluster); ids != nil {
			response.IDs = ids
		}
	}

	writeJSON(w, r, http.StatusOK, response)
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// parseQuery reads the search parameters shared by every clustering endpoint.
func (h *Handler) parseQuery(r *http.Request) (domain.QueryParams, string, error) {
	query := r.URL.Query()

	params := domain.QueryParams{
		SearchQuery: query.Get("q"),
		FilterQuery: query.Get("f"),
		Sort:        query.Get("s"),
		Weights:     domain.DefaultFieldWeights(),
	}

	if g := query.Get("g"); g != "" {
		grouping, err := strconv.ParseBool(g)
		if err != nil {
			return domain.QueryParams{}, "", fmt.Errorf("invalid g: %q", g)
		}
		params.Grouping = grouping
	}

	weights := []struct {
		name  string
		field *int
	}{
		{"tag_weight", &params.Weights.Tag},
		{"username_weight", &params.Weights.Username},
		{"id_weight", &params.Weights.ID},
		{"description_weight", &params.Weights.Description},
		{"pack_tokenized_weight", &params.Weights.PackTokenized},
		{"original_filename_weight", &params.Weights.OriginalFilename},
	}
	for _, weight := range weights {
		raw := query.Get(weight.name)
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			return domain.QueryParams{}, "", fmt.Errorf("invalid %s: %q", weight.name, raw)
		}
		*weight.field = value
	}

	featureSet := strings.TrimSpace(query.Get("features"))
	if featureSet == "" {
		featureSet = h.defaultFeatures
	}

	return params, featureSet, nil
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Already written status, can't change it, just log.
		observability.FromContext(r.Context()).Error("failed to encode response", zap.Error(err))
	}
}
