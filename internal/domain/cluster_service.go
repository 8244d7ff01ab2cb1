package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/davidbz/soundgraph/internal/observability"
)

// Request outcomes reported to the MetricsRecorder.
const (
	OutcomeHit        = "hit"
	OutcomePending    = "pending"
	OutcomeFailed     = "failed"
	OutcomeDispatched = "dispatched"
	OutcomeSucceeded  = "succeeded"
)

// ClusterServiceConfig tunes the clustering pipeline.
type ClusterServiceConfig struct {
	// MaxResults caps the candidate set requested from the search index.
	MaxResults int
	// ResultTTL is how long a finished result stays cached.
	ResultTTL time.Duration
	// PendingTTL bounds how long PENDING and FAILED sentinels are honored.
	PendingTTL time.Duration
	// Parallel enables chunked nearest-neighbor fan-out.
	Parallel bool
	// ChunkSize is the number of ids per nearest-neighbor chunk.
	ChunkSize int
	// Metric overrides the feature set's distance metric when non-empty.
	Metric string
	// KPolicy chooses k from the candidate count.
	KPolicy KPolicy
}

// ClusterServiceOption customizes a ClusterService.
type ClusterServiceOption func(*ClusterService)

// WithMetrics attaches a metrics recorder.
func WithMetrics(recorder MetricsRecorder) ClusterServiceOption {
	return func(s *ClusterService) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithClock replaces the time source used to stamp results.
func WithClock(now func() time.Time) ClusterServiceOption {
	return func(s *ClusterService) {
		s.now = now
	}
}

// ClusterService computes and memoizes clusterings of search results.
type ClusterService struct {
	store      CacheStore
	search     IndexSearch
	aggregator *NeighborAggregator
	builder    GraphBuilder
	engine     ClusteringEngine
	executor   TaskExecutor
	cfg        ClusterServiceConfig
	metrics    MetricsRecorder
	now        func() time.Time
}

// NewClusterService creates a new cluster service (DI constructor).
func NewClusterService(
	store CacheStore,
	search IndexSearch,
	aggregator *NeighborAggregator,
	builder GraphBuilder,
	engine ClusteringEngine,
	executor TaskExecutor,
	cfg ClusterServiceConfig,
	opts ...ClusterServiceOption,
) *ClusterService {
	if cfg.KPolicy == nil {
		cfg.KPolicy = LogScaledK(5, 20, 1.5)
	}

	s := &ClusterService{
		store:      store,
		search:     search,
		aggregator: aggregator,
		builder:    builder,
		engine:     engine,
		executor:   executor,
		cfg:        cfg,
		metrics:    nopMetrics{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrComputeClusters returns the cached clustering for the request, or dispatches its
// computation and reports it as pending. It never waits for the computation.
func (s *ClusterService) GetOrComputeClusters(
	ctx context.Context,
	params QueryParams,
	featureSet string,
) (*ClusterStatus, error) {
	if strings.TrimSpace(featureSet) == "" {
		return nil, fmt.Errorf("%w: feature set cannot be empty", ErrInvalidRequest)
	}

	key := NewRequestKey(params, featureSet)
	ctx = observability.WithClusterKey(ctx, key.Hash)
	ctx = observability.WithFeatureSet(ctx, featureSet)
	logger := observability.FromContext(ctx)

	raw, err := s.store.Get(ctx, key.Hash)
	switch {
	case errors.Is(err, ErrCacheMiss):
		// Absent: fall through to dispatch.
	case err != nil:
		return nil, fmt.Errorf("failed to read cluster cache: %w", err)
	default:
		state, result, decodeErr := DecodeEntry(raw)
		if decodeErr != nil {
			return nil, decodeErr
		}
		switch state {
		case StatePending:
			s.metrics.RecordRequest(OutcomePending)
			return &ClusterStatus{Finished: false, Error: false}, nil
		case StateFailed:
			s.metrics.RecordRequest(OutcomeFailed)
			return &ClusterStatus{Finished: false, Error: true}, nil
		default:
			logger.Debug("cluster cache HIT",
				observability.Int("clusters", len(result.Clusters)))
			s.metrics.RecordRequest(OutcomeHit)
			return &ClusterStatus{Finished: true, Error: false, Result: result}, nil
		}
	}

	logger.Info("cluster cache MISS - querying search index",
		observability.String("composite_key", key.Composite))

	ids, err := s.search.Query(ctx, SearchRequest{
		QueryParams:   params,
		Rows:          s.cfg.MaxResults,
		IncludeFacets: false,
	})
	if err != nil {
		logger.Error("search index query failed", observability.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	if s.cfg.MaxResults > 0 && len(ids) > s.cfg.MaxResults {
		ids = ids[:s.cfg.MaxResults]
	}

	acquired, err := s.store.SetNX(ctx, key.Hash, pendingSentinel, s.cfg.PendingTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to mark clustering pending: %w", err)
	}
	if !acquired {
		logger.Info("clustering already pending, skipping dispatch")
		s.metrics.RecordRequest(OutcomePending)
		return &ClusterStatus{Finished: false, Error: false}, nil
	}

	s.dispatch(ctx, key, featureSet, ids)
	s.metrics.RecordRequest(OutcomeDispatched)

	return &ClusterStatus{Finished: false, Error: false}, nil
}

// GetIDsInCluster returns the ids of the 1-based cluster, or nil when the clustering is not
// available or the index is out of range.
func (s *ClusterService) GetIDsInCluster(
	ctx context.Context,
	params QueryParams,
	featureSet string,
	cluster int,
) []string {
	ids, err := s.idsInCluster(ctx, params, featureSet, cluster)
	if err != nil {
		observability.FromContext(ctx).Debug("cluster ids unavailable",
			observability.Int("cluster", cluster),
			observability.Error(err))
		return nil
	}
	return ids
}

func (s *ClusterService) idsInCluster(
	ctx context.Context,
	params QueryParams,
	featureSet string,
	cluster int,
) ([]string, error) {
	status, err := s.GetOrComputeClusters(ctx, params, featureSet)
	if err != nil {
		return nil, err
	}
	if !status.Finished || status.Result == nil {
		return nil, fmt.Errorf("clustering is %s", status.State())
	}

	index := cluster - 1
	if index < 0 || index >= len(status.Result.Clusters) {
		return nil, fmt.Errorf("%w: %d", ErrClusterNotFound, cluster)
	}

	return append([]string(nil), status.Result.Clusters[index]...), nil
}

// dispatch schedules the computation either as one task or as a chunked fan-out plus join.
func (s *ClusterService) dispatch(ctx context.Context, key RequestKey, featureSet string, ids []string) {
	logger := observability.FromContext(ctx)

	if !s.cfg.Parallel || s.cfg.ChunkSize <= 0 || len(ids) <= s.cfg.ChunkSize {
		logger.Info("dispatching clustering",
			observability.Int("candidates", len(ids)))

		s.executor.Dispatch(ctx, "cluster_sounds", func(ctx context.Context) error {
			return s.runGuarded(ctx, key, len(ids), func(ctx context.Context) (*ClusterResult, error) {
				return s.computeClusters(ctx, featureSet, ids)
			})
		})
		return
	}

	k := s.cfg.KPolicy(len(ids))
	candidates := NewIDSet(ids)
	chunks := ChunkIDs(ids, s.cfg.ChunkSize)
	parts := make([]NeighborMap, len(chunks))
	tasks := make([]Task, len(chunks))

	for i, chunk := range chunks {
		tasks[i] = func(ctx context.Context) error {
			neighbors, err := s.aggregator.Aggregate(ctx, AggregateRequest{
				FeatureSet: featureSet,
				Metric:     s.cfg.Metric,
				K:          k,
				Chunk:      chunk,
				Candidates: candidates,
			})
			if err != nil {
				return err
			}
			parts[i] = neighbors
			return nil
		}
	}

	logger.Info("dispatching chunked clustering",
		observability.Int("candidates", len(ids)),
		observability.Int("chunks", len(chunks)),
		observability.Int("k", k))

	s.executor.DispatchChunked(ctx, "nearest_neighbors", tasks, func(ctx context.Context, chunkErr error) error {
		return s.runGuarded(ctx, key, len(ids), func(ctx context.Context) (*ClusterResult, error) {
			if chunkErr != nil {
				return nil, chunkErr
			}
			return s.clusterNeighbors(ctx, ids, MergeNeighborMaps(parts...))
		})
	})
}

// runGuarded is the task boundary: it stores the result, or converts any error or panic into
// the FAILED sentinel.
func (s *ClusterService) runGuarded(
	ctx context.Context,
	key RequestKey,
	candidates int,
	compute func(ctx context.Context) (*ClusterResult, error),
) (err error) {
	start := s.now()
	logger := observability.FromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrComputation, r)
		}
		if err == nil {
			return
		}

		logger.Error("exception raised while clustering sounds",
			observability.String("composite_key", key.Composite),
			observability.Int("candidates", candidates),
			observability.Error(err))
		s.metrics.RecordComputation(OutcomeFailed, s.now().Sub(start), candidates)

		if setErr := s.store.Set(ctx, key.Hash, failedSentinel, s.cfg.PendingTTL); setErr != nil {
			logger.Error("failed to mark clustering failed", observability.Error(setErr))
		}
	}()

	result, err := compute(ctx)
	if err != nil {
		return err
	}

	data, err := EncodeResult(result)
	if err != nil {
		return err
	}

	if err := s.store.Set(ctx, key.Hash, data, s.cfg.ResultTTL); err != nil {
		return fmt.Errorf("failed to store cluster result: %w", err)
	}

	duration := s.now().Sub(start)
	s.metrics.RecordComputation(OutcomeSucceeded, duration, candidates)
	logger.Info("clustering stored",
		observability.Int("candidates", candidates),
		observability.Int("clusters", len(result.Clusters)),
		observability.Float64("modularity", result.Modularity),
		observability.Duration("duration", duration))

	return nil
}

// computeClusters runs the whole pipeline as a single unit of work.
func (s *ClusterService) computeClusters(ctx context.Context, featureSet string, ids []string) (*ClusterResult, error) {
	neighbors, err := s.aggregator.Aggregate(ctx, AggregateRequest{
		FeatureSet: featureSet,
		Metric:     s.cfg.Metric,
		K:          s.cfg.KPolicy(len(ids)),
		Chunk:      ids,
		Candidates: NewIDSet(ids),
	})
	if err != nil {
		return nil, err
	}
	return s.clusterNeighbors(ctx, ids, neighbors)
}

// clusterNeighbors builds the graph, partitions it and annotates its nodes.
func (s *ClusterService) clusterNeighbors(ctx context.Context, ids []string, neighbors NeighborMap) (*ClusterResult, error) {
	// Every candidate becomes a node even when the index returned nothing for it.
	for _, id := range ids {
		if _, ok := neighbors[id]; !ok {
			neighbors[id] = nil
		}
	}

	graph := s.builder.Build(neighbors)

	partition, err := s.engine.Cluster(ctx, graph)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrComputation, err)
	}

	for i := range graph.Nodes {
		assignment := partition.Assignments[graph.Nodes[i].ID]
		graph.Nodes[i].Group = assignment.Cluster
		graph.Nodes[i].GroupCentrality = assignment.Centrality
	}

	clusters := partition.Clusters
	if clusters == nil {
		clusters = [][]string{}
	}

	return &ClusterResult{
		Clusters:   clusters,
		Graph:      *graph,
		Modularity: partition.Modularity,
		ComputedAt: s.now().UTC(),
	}, nil
}
