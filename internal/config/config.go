package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/davidbz/soundgraph/internal/cache/redis"
	"github.com/davidbz/soundgraph/internal/embedding/openai"
	"github.com/davidbz/soundgraph/internal/search"
)

// Cache backends.
const (
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
)

// Config represents the clustering service configuration.
type Config struct {
	Server     ServerConfig
	CORS       CORSConfig
	Cache      CacheConfig
	Redis      redis.Config
	Clustering ClusteringConfig
	Search     search.Config
	Features   FeaturesConfig
	OpenAI     openai.Config
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"30"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// CacheConfig selects the cache store and its TTLs.
type CacheConfig struct {
	Backend    string        `env:"CACHE_BACKEND"         envDefault:"redis"`
	ResultTTL  time.Duration `env:"CACHE_RESULT_TTL"      envDefault:"24h"`
	PendingTTL time.Duration `env:"CACHE_PENDING_TTL"     envDefault:"2m"`
	MaxCost    int64         `env:"CACHE_MEMORY_MAX_COST" envDefault:"268435456"`
}

// ClusteringConfig tunes the clustering pipeline.
type ClusteringConfig struct {
	MaxResults      int     `env:"CLUSTERING_MAX_RESULTS"      envDefault:"1000"`
	DefaultFeatures string  `env:"CLUSTERING_DEFAULT_FEATURES" envDefault:"audio"`
	Parallel        bool    `env:"CLUSTERING_PARALLEL"         envDefault:"true"`
	ChunkSize       int     `env:"CLUSTERING_CHUNK_SIZE"       envDefault:"100"`
	Metric          string  `env:"CLUSTERING_METRIC"`
	MinK            int     `env:"CLUSTERING_MIN_K"            envDefault:"5"`
	MaxK            int     `env:"CLUSTERING_MAX_K"            envDefault:"20"`
	KFactor         float64 `env:"CLUSTERING_K_FACTOR"         envDefault:"1.5"`
	Resolution      float64 `env:"CLUSTERING_RESOLUTION"       envDefault:"1.0"`
	MaxLevels       int     `env:"CLUSTERING_MAX_LEVELS"       envDefault:"32"`
	Workers         int     `env:"CLUSTERING_WORKERS"          envDefault:"4"`
	Parallelism     int     `env:"CLUSTERING_PARALLELISM"      envDefault:"8"`
}

// FeaturesConfig locates the feature store.
type FeaturesConfig struct {
	Path              string `env:"FEATURES_PATH"                envDefault:"data/features"`
	NeighborCacheSize int    `env:"FEATURES_NEIGHBOR_CACHE_SIZE" envDefault:"4096"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out
	*ServerConfig
	*CORSConfig
	*CacheConfig
	*ClusteringConfig
	*FeaturesConfig
	Redis  *redis.Config
	Search *search.Config
	OpenAI *openai.Config
}

// Load loads environment files and parses configuration.
func Load() (*Config, error) {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		Out:              dig.Out{},
		ServerConfig:     &cfg.Server,
		CORSConfig:       &cfg.CORS,
		CacheConfig:      &cfg.Cache,
		ClusteringConfig: &cfg.Clustering,
		FeaturesConfig:   &cfg.Features,
		Redis:            &cfg.Redis,
		Search:           &cfg.Search,
		OpenAI:           &cfg.OpenAI,
	}
}
