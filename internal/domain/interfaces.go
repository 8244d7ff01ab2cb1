package domain

import (
	"context"
	"time"
)

// CacheStore is a key/value store with per-entry TTL.
type CacheStore interface {
	// Get returns the stored value or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

// IndexSearch runs search queries and returns matching item ids in rank order.
type IndexSearch interface {
	Query(ctx context.Context, req SearchRequest) ([]string, error)
}

// FeatureIndex answers k-nearest-neighbor queries over precomputed feature vectors.
type FeatureIndex interface {
	// NearestNeighbors returns at most q.K neighbors of q.ID ordered by ascending distance, excluding q.ID.
	NearestNeighbors(ctx context.Context, q NeighborQuery) ([]Neighbor, error)
}

// Task is a unit of background work.
type Task func(ctx context.Context) error

// Join runs once every chunk of a fan-out has completed. err is the first chunk failure, if any.
type Join func(ctx context.Context, err error) error

// TaskExecutor runs work detached from the caller.
type TaskExecutor interface {
	// Dispatch runs task in the background and returns immediately.
	Dispatch(ctx context.Context, name string, task Task)

	// DispatchChunked runs chunks concurrently in the background, then join.
	DispatchChunked(ctx context.Context, name string, chunks []Task, join Join)
}

// GraphBuilder converts neighbor relations into a similarity graph.
type GraphBuilder interface {
	Build(neighbors NeighborMap) *SimilarityGraph
}

// ClusteringEngine partitions a similarity graph into clusters.
type ClusteringEngine interface {
	Cluster(ctx context.Context, graph *SimilarityGraph) (*Partition, error)
}

// MetricsRecorder receives clustering lifecycle measurements.
type MetricsRecorder interface {
	// RecordRequest counts a GetOrComputeClusters outcome (hit, pending, failed, dispatched).
	RecordRequest(outcome string)

	// RecordComputation observes a finished background computation.
	RecordComputation(outcome string, duration time.Duration, candidates int)
}

type nopMetrics struct{}

func (nopMetrics) RecordRequest(string) {}

func (nopMetrics) RecordComputation(string, time.Duration, int) {}
