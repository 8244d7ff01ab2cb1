package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/davidbz/soundgraph/internal/cache/memory"
	rediscache "github.com/davidbz/soundgraph/internal/cache/redis"
	"github.com/davidbz/soundgraph/internal/clustering"
	"github.com/davidbz/soundgraph/internal/config"
	"github.com/davidbz/soundgraph/internal/domain"
	"github.com/davidbz/soundgraph/internal/embedding/openai"
	"github.com/davidbz/soundgraph/internal/executor"
	"github.com/davidbz/soundgraph/internal/featureindex"
	"github.com/davidbz/soundgraph/internal/graph"
	apihttp "github.com/davidbz/soundgraph/internal/http"
	"github.com/davidbz/soundgraph/internal/http/middleware"
	"github.com/davidbz/soundgraph/internal/ingest"
	"github.com/davidbz/soundgraph/internal/metrics"
	"github.com/davidbz/soundgraph/internal/observability"
	"github.com/davidbz/soundgraph/internal/search"
)

const shutdownTimeout = 10 * time.Second

// lifecycle closes resources in reverse acquisition order.
type lifecycle struct {
	closers []func(ctx context.Context) error
}

func (l *lifecycle) onClose(fn func(ctx context.Context) error) {
	l.closers = append(l.closers, fn)
}

func (l *lifecycle) Close(ctx context.Context) error {
	var errs []error
	for i := len(l.closers) - 1; i >= 0; i-- {
		errs = append(errs, l.closers[i](ctx))
	}
	return errors.Join(errs...)
}

// containerOptions selects how the clustering pipeline runs.
type containerOptions struct {
	// foreground computes clusterings on the calling goroutine against an in-memory cache.
	foreground bool
}

type provider struct {
	name        string
	constructor any
}

func buildContainer(opts containerOptions) (*dig.Container, *lifecycle, error) {
	container := dig.New()
	lc := &lifecycle{}

	providers := []provider{
		// Configuration
		{"config", config.Load},
		{"config dependencies", config.ParseDependenciesConfig},

		// Observability
		{"logger", observability.InitLogger},
		{"metrics", func() (domain.MetricsRecorder, error) {
			return metrics.NewRecorder()
		}},

		// Cache
		{"cache store", func(cfg *config.CacheConfig, redisCfg *rediscache.Config) (domain.CacheStore, error) {
			return newCacheStore(cfg, redisCfg, opts, lc)
		}},

		// Search index
		{"search index", func(cfg *search.Config) (*search.Index, error) {
			index, err := search.Open(*cfg)
			if err != nil {
				return nil, err
			}
			lc.onClose(func(context.Context) error { return index.Close() })
			return index, nil
		}},
		{"index search", func(index *search.Index) domain.IndexSearch {
			return index
		}},

		// Feature index
		{"feature store", func(cfg *config.FeaturesConfig) (*featureindex.Store, error) {
			store, err := featureindex.OpenStore(cfg.Path)
			if err != nil {
				return nil, err
			}
			lc.onClose(func(context.Context) error { return store.Close() })
			return store, nil
		}},
		{"feature index", newFeatureIndex},
		{"feature index contract", func(index *featureindex.Index) domain.FeatureIndex {
			return index
		}},

		// Clustering pipeline
		{"neighbor aggregator", domain.NewNeighborAggregator},
		{"graph builder", func() domain.GraphBuilder {
			return graph.NewBuilder(graph.InverseDistance)
		}},
		{"clustering engine", func(cfg *config.ClusteringConfig) domain.ClusteringEngine {
			return clustering.NewEngine(clustering.Config{
				Resolution: cfg.Resolution,
				MaxLevels:  cfg.MaxLevels,
			})
		}},
		{"task executor", func(cfg *config.ClusteringConfig) domain.TaskExecutor {
			return newExecutor(cfg, opts, lc)
		}},
		{"cluster service", newClusterService},

		// Ingestion
		{"embedder", newEmbedder},
		{"ingester", func(
			index *search.Index,
			store *featureindex.Store,
			embedder ingest.Embedder,
		) *ingest.Ingester {
			return ingest.NewIngester(index, store, embedder)
		}},

		// HTTP Layer
		{"middleware chain", middleware.BuildMiddlewareChain},
		{"HTTP handler", apihttp.NewHandler},
		{"HTTP server", apihttp.NewServer},
	}

	for _, p := range providers {
		if err := container.Provide(p.constructor); err != nil {
			return nil, nil, fmt.Errorf("failed to provide %s: %w", p.name, err)
		}
	}

	return container, lc, nil
}

func newCacheStore(
	cfg *config.CacheConfig,
	redisCfg *rediscache.Config,
	opts containerOptions,
	lc *lifecycle,
) (domain.CacheStore, error) {
	backend := cfg.Backend
	if opts.foreground {
		backend = config.CacheBackendMemory
	}

	switch backend {
	case config.CacheBackendMemory:
		store, err := memory.NewStore(memory.Config{MaxCost: cfg.MaxCost})
		if err != nil {
			return nil, err
		}
		lc.onClose(func(context.Context) error {
			store.Close()
			return nil
		})
		return store, nil
	case config.CacheBackendRedis:
		client, err := rediscache.NewClient(context.Background(), *redisCfg)
		if err != nil {
			return nil, err
		}
		lc.onClose(func(context.Context) error { return client.Close() })
		return rediscache.NewStore(client, redisCfg.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

func newFeatureIndex(cfg *config.FeaturesConfig, store *featureindex.Store) (*featureindex.Index, error) {
	index, err := featureindex.NewIndex(featureindex.NewRegistry(), cfg.NeighborCacheSize)
	if err != nil {
		return nil, err
	}

	if _, err := store.Load(context.Background(), index); err != nil {
		return nil, err
	}
	return index, nil
}

func newExecutor(cfg *config.ClusteringConfig, opts containerOptions, lc *lifecycle) domain.TaskExecutor {
	if opts.foreground {
		return executor.Inline{}
	}

	pool := executor.NewPool(executor.Config{
		Workers:     cfg.Workers,
		Parallelism: cfg.Parallelism,
	})
	lc.onClose(pool.Shutdown)
	return pool
}

func newClusterService(
	store domain.CacheStore,
	search domain.IndexSearch,
	aggregator *domain.NeighborAggregator,
	builder domain.GraphBuilder,
	engine domain.ClusteringEngine,
	exec domain.TaskExecutor,
	cfg *config.ClusteringConfig,
	cacheCfg *config.CacheConfig,
	recorder domain.MetricsRecorder,
) *domain.ClusterService {
	return domain.NewClusterService(
		store,
		search,
		aggregator,
		builder,
		engine,
		exec,
		domain.ClusterServiceConfig{
			MaxResults: cfg.MaxResults,
			ResultTTL:  cacheCfg.ResultTTL,
			PendingTTL: cacheCfg.PendingTTL,
			Parallel:   cfg.Parallel,
			ChunkSize:  cfg.ChunkSize,
			Metric:     cfg.Metric,
			KPolicy:    domain.LogScaledK(cfg.MinK, cfg.MaxK, cfg.KFactor),
		},
		domain.WithMetrics(recorder),
	)
}

// newEmbedder returns nil when no OpenAI key is configured; ingest then rejects embedded sets.
func newEmbedder(cfg *openai.Config) (ingest.Embedder, error) {
	generator, err := openai.NewGenerator(*cfg)
	if errors.Is(err, openai.ErrNotConfigured) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return generator, nil
}

// invoke builds the container, initializes logging and runs fn with its dependencies.
func invoke(opts containerOptions, fn any) error {
	container, lc, err := buildContainer(opts)
	if err != nil {
		return err
	}

	var logger *zap.Logger
	if err := container.Invoke(func(l *zap.Logger) {
		logger = l
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := lc.Close(ctx); err != nil {
			observability.FromContext(ctx).Error("failed to release resources", zap.Error(err))
		}
		_ = logger.Sync()
	}()

	return dig.RootCause(container.Invoke(fn))
}
