package domain_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/davidbz/soundgraph/internal/clustering"
	"github.com/davidbz/soundgraph/internal/domain"
	"github.com/davidbz/soundgraph/internal/graph"
	"github.com/davidbz/soundgraph/internal/mocks"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeEntry struct {
	value   []byte
	expires time.Time
}

// fakeStore is an in-memory CacheStore whose TTLs follow a fakeClock.
type fakeStore struct {
	mu      sync.Mutex
	clock   *fakeClock
	entries map[string]fakeEntry
}

func newFakeStore(clock *fakeClock) *fakeStore {
	return &fakeStore{clock: clock, entries: make(map[string]fakeEntry)}
}

func (s *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lookup(key)
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return entry.value, nil
}

func (s *fakeStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = fakeEntry{value: value, expires: s.clock.Now().Add(ttl)}
	return nil
}

func (s *fakeStore) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookup(key); ok {
		return false, nil
	}
	s.entries[key] = fakeEntry{value: value, expires: s.clock.Now().Add(ttl)}
	return true, nil
}

func (s *fakeStore) lookup(key string) (fakeEntry, bool) {
	entry, ok := s.entries[key]
	if !ok || !s.clock.Now().Before(entry.expires) {
		return fakeEntry{}, false
	}
	return entry, true
}

func (s *fakeStore) state(t *testing.T, key string) domain.ClusterState {
	t.Helper()

	raw, err := s.Get(context.Background(), key)
	if errors.Is(err, domain.ErrCacheMiss) {
		return domain.StateAbsent
	}
	require.NoError(t, err)

	state, _, err := domain.DecodeEntry(raw)
	require.NoError(t, err)
	return state
}

// queuedExecutor holds dispatched work until runAll.
type queuedExecutor struct {
	mu    sync.Mutex
	names []string
	jobs  []func(ctx context.Context) error
}

func (e *queuedExecutor) Dispatch(_ context.Context, name string, task domain.Task) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.names = append(e.names, name)
	e.jobs = append(e.jobs, task)
}

func (e *queuedExecutor) DispatchChunked(_ context.Context, name string, chunks []domain.Task, join domain.Join) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.names = append(e.names, name)
	e.jobs = append(e.jobs, func(ctx context.Context) error {
		var first error
		for _, chunk := range chunks {
			if err := chunk(ctx); err != nil && first == nil {
				first = err
			}
		}
		return join(ctx, first)
	})
}

func (e *queuedExecutor) runAll(ctx context.Context) []error {
	e.mu.Lock()
	jobs := e.jobs
	e.jobs = nil
	e.mu.Unlock()

	errs := make([]error, 0, len(jobs))
	for _, job := range jobs {
		errs = append(errs, job(ctx))
	}
	return errs
}

func (e *queuedExecutor) dispatched() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.names...)
}

// recordingMetrics keeps every reported outcome.
type recordingMetrics struct {
	mu           sync.Mutex
	requests     []string
	computations []string
}

func (m *recordingMetrics) RecordRequest(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, outcome)
}

func (m *recordingMetrics) RecordComputation(outcome string, _ time.Duration, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.computations = append(m.computations, outcome)
}

type serviceFixture struct {
	clock    *fakeClock
	store    *fakeStore
	search   *mocks.MockIndexSearch
	index    *mocks.MockFeatureIndex
	executor *queuedExecutor
	metrics  *recordingMetrics
	service  *domain.ClusterService
}

func newServiceFixture(t *testing.T, cfg domain.ClusterServiceConfig, engine domain.ClusteringEngine) *serviceFixture {
	t.Helper()

	if cfg.MaxResults == 0 {
		cfg.MaxResults = 100
	}
	if cfg.ResultTTL == 0 {
		cfg.ResultTTL = time.Hour
	}
	if cfg.PendingTTL == 0 {
		cfg.PendingTTL = time.Minute
	}
	if engine == nil {
		engine = clustering.NewEngine(clustering.Config{})
	}

	f := &serviceFixture{
		clock:    newFakeClock(),
		search:   mocks.NewMockIndexSearch(t),
		index:    mocks.NewMockFeatureIndex(t),
		executor: &queuedExecutor{},
		metrics:  &recordingMetrics{},
	}
	f.store = newFakeStore(f.clock)
	f.service = domain.NewClusterService(
		f.store,
		f.search,
		domain.NewNeighborAggregator(f.index),
		graph.NewBuilder(nil),
		engine,
		f.executor,
		cfg,
		domain.WithMetrics(f.metrics),
		domain.WithClock(f.clock.Now),
	)
	return f
}

// uniformIndex answers every query with all other allowed ids at distance 0.1.
func uniformIndex(_ context.Context, q domain.NeighborQuery) ([]domain.Neighbor, error) {
	ids := make([]string, 0, len(q.RestrictTo))
	for id := range q.RestrictTo {
		if id != q.ID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]domain.Neighbor, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Neighbor{ID: id, Distance: 0.1})
	}
	return out, nil
}

// twoGroups places 1-3 and 4-6 far apart on a line.
var twoGroups = lineIndex(map[string]float64{"1": 0, "2": 1, "3": 3, "4": 100, "5": 101, "6": 103})

func TestClusterService_GetOrComputeClusters(t *testing.T) {
	ctx := context.Background()
	params := domain.QueryParams{SearchQuery: "dogs", Weights: domain.DefaultFieldWeights()}
	key := domain.NewRequestKey(params, "audio")

	t.Run("should dispatch on miss and serve the stored result", func(t *testing.T) {
		f := newServiceFixture(t, domain.ClusterServiceConfig{}, nil)
		f.search.EXPECT().
			Query(mock.Anything, domain.SearchRequest{QueryParams: params, Rows: 100, IncludeFacets: false}).
			Return([]string{"1", "2", "3", "4"}, nil).
			Once()
		f.index.EXPECT().NearestNeighbors(mock.Anything, mock.Anything).RunAndReturn(uniformIndex)

		status, err := f.service.GetOrComputeClusters(ctx, params, "audio")
		require.NoError(t, err)
		require.Equal(t, &domain.ClusterStatus{Finished: false, Error: false}, status)
		require.Equal(t, []string{"cluster_sounds"}, f.executor.dispatched())
		require.Equal(t, domain.StatePending, f.store.state(t, key.Hash))

		require.Equal(t, []error{nil}, f.executor.runAll(ctx))
		require.Equal(t, domain.StateDone, f.store.state(t, key.Hash))

		status, err = f.service.GetOrComputeClusters(ctx, params, "audio")
		require.NoError(t, err)
		require.True(t, status.Finished)
		require.False(t, status.Error)
		require.Equal(t, [][]string{{"1", "2", "3", "4"}}, status.Result.Clusters)
		require.Len(t, status.Result.Graph.Nodes, 4)
		require.Len(t, status.Result.Graph.Edges, 6)
		for _, edge := range status.Result.Graph.Edges {
			require.InDelta(t, 1/1.1, edge.Weight, 1e-9)
		}
		require.True(t, f.clock.Now().Equal(status.Result.ComputedAt))

		require.Equal(t, []string{domain.OutcomeDispatched, domain.OutcomeHit}, f.metrics.requests)
		require.Equal(t, []string{domain.OutcomeSucceeded}, f.metrics.computations)
	})

	t.Run("should report pending without dispatching again", func(t *testing.T) {
		f := newServiceFixture(t, domain.ClusterServiceConfig{}, nil)
		f.search.EXPECT().Query(mock.Anything, mock.Anything).Return([]string{"1", "2"}, nil).Once()

		_, err := f.service.GetOrComputeClusters(ctx, params, "audio")
		require.NoError(t, err)

		status, err := f.service.GetOrComputeClusters(ctx, params, "audio")
		require.NoError(t, err)
		require.Equal(t, domain.StatePending, status.State())
		require.Len(t, f.executor.dispatched(), 1)
		require.Equal(t, []string{domain.OutcomeDispatched, domain.OutcomePending}, f.metrics.requests)
	})

	t.Run("should not dispatch when another caller holds the pending marker", func(t *testing.T) {
		store := mocks.NewMockCacheStore(t)
		search := mocks.NewMockIndexSearch(t)
		executor := &queuedExecutor{}
		service := domain.NewClusterService(store, search, domain.NewNeighborAggregator(mocks.NewMockFeatureIndex(t)),
			graph.NewBuilder(nil), clustering.NewEngine(clustering.Config{}), executor,
			domain.ClusterServiceConfig{PendingTTL: time.Minute})

		store.EXPECT().Get(mock.Anything, key.Hash).Return(nil, domain.ErrCacheMiss)
		search.EXPECT().Query(mock.Anything, mock.Anything).Return([]string{"1", "2"}, nil)
		store.EXPECT().SetNX(mock.Anything, key.Hash, mock.Anything, time.Minute).Return(false, nil)

		status, err := service.GetOrComputeClusters(ctx, params, "audio")
		require.NoError(t, err)
		require.Equal(t, domain.StatePending, status.State())
		require.Empty(t, executor.dispatched())
	})

	t.Run("should leave the cache untouched when the search index fails", func(t *testing.T) {
		cause := errors.New("connection refused")
		store := mocks.NewMockCacheStore(t)
		search := mocks.NewMockIndexSearch(t)
		executor := &queuedExecutor{}
		service := domain.NewClusterService(store, search, domain.NewNeighborAggregator(mocks.NewMockFeatureIndex(t)),
			graph.NewBuilder(nil), clustering.NewEngine(clustering.Config{}), executor,
			domain.ClusterServiceConfig{})

		store.EXPECT().Get(mock.Anything, key.Hash).Return(nil, domain.ErrCacheMiss)
		search.EXPECT().Query(mock.Anything, mock.Anything).Return(nil, cause)

		status, err := service.GetOrComputeClusters(ctx, params, "audio")
		require.Nil(t, status)
		require.ErrorIs(t, err, domain.ErrIndexUnavailable)
		require.ErrorIs(t, err, cause)
		require.Empty(t, executor.dispatched())
	})

	t.Run("should surface cache read errors", func(t *testing.T) {
		store := mocks.NewMockCacheStore(t)
		service := domain.NewClusterService(store, mocks.NewMockIndexSearch(t),
			domain.NewNeighborAggregator(mocks.NewMockFeatureIndex(t)),
			graph.NewBuilder(nil), clustering.NewEngine(clustering.Config{}), &queuedExecutor{},
			domain.ClusterServiceConfig{})

		store.EXPECT().Get(mock.Anything, key.Hash).Return(nil, errors.New("connection reset"))

		_, err := service.GetOrComputeClusters(ctx, params, "audio")
		require.ErrorContains(t, err, "connection reset")
	})

	t.Run("should reject an empty feature set", func(t *testing.T) {
		f := newServiceFixture(t, domain.ClusterServiceConfig{}, nil)

		_, err := f.service.GetOrComputeClusters(ctx, params, "  ")
		require.ErrorIs(t, err, domain.ErrInvalidRequest)
	})

	t.Run("should store FAILED on a neighbor error and retry after the pending TTL", func(t *testing.T) {
		f := newServiceFixture(t, domain.ClusterServiceConfig{}, nil)
		f.search.EXPECT().Query(mock.Anything, mock.Anything).Return([]string{"1", "2", "3"}, nil).Times(2)
		f.index.EXPECT().NearestNeighbors(mock.Anything, mock.Anything).Return(nil, errors.New("not indexed"))

		_, err := f.service.GetOrComputeClusters(ctx, params, "audio")
		require.NoError(t, err)

		errs := f.executor.runAll(ctx)
		require.Len(t, errs, 1)
		require.ErrorIs(t, errs[0], domain.ErrFeatureIndex)
		require.Equal(t, domain.StateFailed, f.store.state(t, key.Hash))

		status, err := f.service.GetOrComputeClusters(ctx, params, "audio")
		require.NoError(t, err)
		require.Equal(t, &domain.ClusterStatus{Finished: false, Error: true}, status)
		require.Equal(t, []string{domain.OutcomeFailed}, f.metrics.computations)

		f.clock.Advance(2 * time.Minute)

		status, err = f.service.GetOrComputeClusters(ctx, params, "audio")
		require.NoError(t, err)
		require.Equal(t, domain.StatePending, status.State())
		require.Len(t, f.executor.dispatched(), 2)
	})

	t.Run("should convert a panic into FAILED", func(t *testing.T) {
		engine := mocks.NewMockClusteringEngine(t)
		engine.EXPECT().
			Cluster(mock.Anything, mock.Anything).
			RunAndReturn(func(context.Context, *domain.SimilarityGraph) (*domain.Partition, error) {
				panic("corrupt graph")
			})

		f := newServiceFixture(t, domain.ClusterServiceConfig{}, engine)
		f.search.EXPECT().Query(mock.Anything, mock.Anything).Return([]string{"1", "2"}, nil)
		f.index.EXPECT().NearestNeighbors(mock.Anything, mock.Anything).RunAndReturn(uniformIndex)

		_, err := f.service.GetOrComputeClusters(ctx, params, "audio")
		require.NoError(t, err)

		errs := f.executor.runAll(ctx)
		require.ErrorIs(t, errs[0], domain.ErrComputation)
		require.Equal(t, domain.StateFailed, f.store.state(t, key.Hash))
	})

	t.Run("should redispatch after a stale pending marker expires", func(t *testing.T) {
		f := newServiceFixture(t, domain.ClusterServiceConfig{}, nil)
		f.search.EXPECT().Query(mock.Anything, mock.Anything).Return([]string{"1"}, nil).Times(2)

		_, err := f.service.GetOrComputeClusters(ctx, params, "audio")
		require.NoError(t, err)

		f.clock.Advance(time.Minute)

		_, err = f.service.GetOrComputeClusters(ctx, params, "audio")
		require.NoError(t, err)
		require.Len(t, f.executor.dispatched(), 2)
	})

	t.Run("should cluster an empty search result", func(t *testing.T) {
		f := newServiceFixture(t, domain.ClusterServiceConfig{}, nil)
		f.search.EXPECT().Query(mock.Anything, mock.Anything).Return([]string{}, nil)

		_, err := f.service.GetOrComputeClusters(ctx, params, "audio")
		require.NoError(t, err)
		require.Equal(t, []error{nil}, f.executor.runAll(ctx))

		status, err := f.service.GetOrComputeClusters(ctx, params, "audio")
		require.NoError(t, err)
		require.True(t, status.Finished)
		require.Empty(t, status.Result.Clusters)
		require.Empty(t, status.Result.Graph.Nodes)
	})

	t.Run("should keep isolated candidates as singleton clusters", func(t *testing.T) {
		f := newServiceFixture(t, domain.ClusterServiceConfig{KPolicy: func(int) int { return 1 }}, nil)
		f.search.EXPECT().Query(mock.Anything, mock.Anything).Return([]string{"1", "2", "3"}, nil)
		f.index.EXPECT().
			NearestNeighbors(mock.Anything, mock.Anything).
			RunAndReturn(func(_ context.Context, q domain.NeighborQuery) ([]domain.Neighbor, error) {
				switch q.ID {
				case "1":
					return []domain.Neighbor{{ID: "2", Distance: 0.5}}, nil
				case "2":
					return []domain.Neighbor{{ID: "1", Distance: 0.5}}, nil
				default:
					return nil, nil
				}
			})

		_, err := f.service.GetOrComputeClusters(ctx, params, "audio")
		require.NoError(t, err)
		require.Equal(t, []error{nil}, f.executor.runAll(ctx))

		status, err := f.service.GetOrComputeClusters(ctx, params, "audio")
		require.NoError(t, err)
		require.Equal(t, [][]string{{"1", "2"}, {"3"}}, status.Result.Clusters)
		require.Len(t, status.Result.Graph.Nodes, 3)
	})

	t.Run("should truncate candidates to the configured maximum", func(t *testing.T) {
		f := newServiceFixture(t, domain.ClusterServiceConfig{MaxResults: 3}, nil)
		f.search.EXPECT().Query(mock.Anything, mock.Anything).Return([]string{"1", "2", "3", "4", "5"}, nil)
		f.index.EXPECT().NearestNeighbors(mock.Anything, mock.Anything).RunAndReturn(uniformIndex)

		_, err := f.service.GetOrComputeClusters(ctx, params, "audio")
		require.NoError(t, err)
		require.Equal(t, []error{nil}, f.executor.runAll(ctx))

		status, err := f.service.GetOrComputeClusters(ctx, params, "audio")
		require.NoError(t, err)
		require.Len(t, status.Result.Graph.Nodes, 3)
	})
}

func TestClusterService_ChunkedFanOut(t *testing.T) {
	ctx := context.Background()
	params := domain.QueryParams{SearchQuery: "rain", Weights: domain.DefaultFieldWeights()}
	ids := []string{"1", "2", "3", "4", "5", "6"}
	fixedK := func(int) int { return 2 }

	compute := func(t *testing.T, cfg domain.ClusterServiceConfig) (*domain.ClusterResult, []string) {
		f := newServiceFixture(t, cfg, nil)
		f.search.EXPECT().Query(mock.Anything, mock.Anything).Return(ids, nil)
		f.index.EXPECT().NearestNeighbors(mock.Anything, mock.Anything).RunAndReturn(twoGroups)

		_, err := f.service.GetOrComputeClusters(ctx, params, "audio")
		require.NoError(t, err)
		require.Equal(t, []error{nil}, f.executor.runAll(ctx))

		status, err := f.service.GetOrComputeClusters(ctx, params, "audio")
		require.NoError(t, err)
		require.True(t, status.Finished)
		return status.Result, f.executor.dispatched()
	}

	t.Run("should match the single task result", func(t *testing.T) {
		single, singleTasks := compute(t, domain.ClusterServiceConfig{KPolicy: fixedK})
		chunked, chunkedTasks := compute(t, domain.ClusterServiceConfig{KPolicy: fixedK, Parallel: true, ChunkSize: 2})

		require.Equal(t, []string{"cluster_sounds"}, singleTasks)
		require.Equal(t, []string{"nearest_neighbors"}, chunkedTasks)

		require.Equal(t, [][]string{{"1", "2", "3"}, {"4", "5", "6"}}, single.Clusters)
		require.Equal(t, single.Clusters, chunked.Clusters)
		require.Equal(t, single.Graph, chunked.Graph)
		require.InDelta(t, single.Modularity, chunked.Modularity, 1e-12)
	})

	t.Run("should store FAILED when any chunk fails", func(t *testing.T) {
		f := newServiceFixture(t, domain.ClusterServiceConfig{KPolicy: fixedK, Parallel: true, ChunkSize: 2}, nil)
		f.search.EXPECT().Query(mock.Anything, mock.Anything).Return(ids, nil)
		f.index.EXPECT().
			NearestNeighbors(mock.Anything, mock.Anything).
			RunAndReturn(func(ctx context.Context, q domain.NeighborQuery) ([]domain.Neighbor, error) {
				if q.ID == "3" {
					return nil, errors.New("vector missing")
				}
				return twoGroups(ctx, q)
			})

		_, err := f.service.GetOrComputeClusters(ctx, params, "audio")
		require.NoError(t, err)

		errs := f.executor.runAll(ctx)
		require.ErrorIs(t, errs[0], domain.ErrFeatureIndex)
		require.Equal(t, domain.StateFailed, f.store.state(t, domain.NewRequestKey(params, "audio").Hash))
	})
}

// countingExecutor drops work and counts dispatches.
type countingExecutor struct {
	count atomic.Int32
}

func (e *countingExecutor) Dispatch(context.Context, string, domain.Task) {
	e.count.Add(1)
}

func (e *countingExecutor) DispatchChunked(context.Context, string, []domain.Task, domain.Join) {
	e.count.Add(1)
}

func TestClusterService_ConcurrentRequests(t *testing.T) {
	store := newFakeStore(newFakeClock())
	search := mocks.NewMockIndexSearch(t)
	search.EXPECT().Query(mock.Anything, mock.Anything).Return([]string{"1", "2", "3"}, nil)
	executor := &countingExecutor{}

	service := domain.NewClusterService(store, search, domain.NewNeighborAggregator(mocks.NewMockFeatureIndex(t)),
		graph.NewBuilder(nil), clustering.NewEngine(clustering.Config{}), executor,
		domain.ClusterServiceConfig{PendingTTL: time.Minute})

	params := domain.QueryParams{SearchQuery: "wind"}

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := service.GetOrComputeClusters(context.Background(), params, "audio")
			require.NoError(t, err)
			require.Equal(t, domain.StatePending, status.State())
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), executor.count.Load())
}

func TestClusterService_GetIDsInCluster(t *testing.T) {
	ctx := context.Background()
	params := domain.QueryParams{SearchQuery: "birds", Weights: domain.DefaultFieldWeights()}

	f := newServiceFixture(t, domain.ClusterServiceConfig{KPolicy: func(int) int { return 2 }}, nil)
	f.search.EXPECT().
		Query(mock.Anything, mock.Anything).
		Return([]string{"1", "2", "3", "4", "5", "6"}, nil).
		Once()
	f.index.EXPECT().NearestNeighbors(mock.Anything, mock.Anything).RunAndReturn(twoGroups)

	t.Run("should return nil while the clustering is pending", func(t *testing.T) {
		require.Nil(t, f.service.GetIDsInCluster(ctx, params, "audio", 1))
	})

	require.Equal(t, []error{nil}, f.executor.runAll(ctx))

	t.Run("should return the members of a 1-based cluster", func(t *testing.T) {
		require.Equal(t, []string{"1", "2", "3"}, f.service.GetIDsInCluster(ctx, params, "audio", 1))
		require.Equal(t, []string{"4", "5", "6"}, f.service.GetIDsInCluster(ctx, params, "audio", 2))
	})

	t.Run("should return nil out of range", func(t *testing.T) {
		require.Nil(t, f.service.GetIDsInCluster(ctx, params, "audio", 0))
		require.Nil(t, f.service.GetIDsInCluster(ctx, params, "audio", 3))
		require.Nil(t, f.service.GetIDsInCluster(ctx, params, "audio", -1))
	})

	t.Run("should return nil on errors", func(t *testing.T) {
		require.Nil(t, f.service.GetIDsInCluster(ctx, params, "", 1))
	})
}
