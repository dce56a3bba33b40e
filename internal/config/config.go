// Package config loads the application configuration from a YAML file,
// environment variables, and a .env file, the way the teacher's
// viper+godotenv stack does it.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       App       `mapstructure:"app"`
	AI        AI        `mapstructure:"ai"`
	Database  Database  `mapstructure:"database"`
	Archive   Archive   `mapstructure:"archive"`
	Ingestion Ingestion `mapstructure:"ingestion"`
	Retrieval Retrieval `mapstructure:"retrieval"`
	Graph     Graph     `mapstructure:"graph"`
	Quality   Quality   `mapstructure:"quality"`
	Logging   Logging   `mapstructure:"logging"`
}

// App holds general application configuration.
type App struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
	DataDir  string `mapstructure:"data_dir"`
}

// AI holds the model-client configuration for the enrichment pipeline's
// callable-black-box analyzers (summarizer, dense embedder, reranker).
type AI struct {
	APIKey          string  `mapstructure:"api_key"`
	Model           string  `mapstructure:"model"`
	EmbeddingModel  string  `mapstructure:"embedding_model"`
	EmbeddingDims   int     `mapstructure:"embedding_dims"`
	Temperature     float32 `mapstructure:"temperature"`
	RerankerEnabled bool    `mapstructure:"reranker_enabled"`
}

// Database holds persistence backend configuration. Driver selects between
// the sqlite and postgres Store implementations.
type Database struct {
	Driver           string `mapstructure:"driver"` // "sqlite" or "postgres"
	ConnectionString string `mapstructure:"connection_string"`
	DataDir          string `mapstructure:"data_dir"` // sqlite file location
	MaxConnections   int    `mapstructure:"max_connections"`
	IdleConnections  int    `mapstructure:"idle_connections"`
}

// Archive holds content-addressed archive storage configuration.
type Archive struct {
	RootDir string `mapstructure:"root_dir"`
}

// Ingestion holds the worker pool, retry, and per-stage timeout
// configuration of spec.md §5/§6.
type Ingestion struct {
	WorkerPoolSize     int    `mapstructure:"worker_pool_size"`
	MaxAttempts        int    `mapstructure:"max_attempts"`
	BackoffBaseMS      int    `mapstructure:"backoff_base_ms"`
	MaxBackoffMS       int    `mapstructure:"max_backoff_ms"`
	FetchTimeoutMS     int    `mapstructure:"fetch_timeout_ms"`
	ParseTimeoutMS     int    `mapstructure:"parse_timeout_ms"`
	ModelTimeoutMS     int    `mapstructure:"model_timeout_ms"`
	IndexWriteTimeoutMS int   `mapstructure:"index_write_timeout_ms"`
	FingerprintLockTimeoutMS int `mapstructure:"fingerprint_lock_timeout_ms"`
	QueueCapacity      int    `mapstructure:"queue_capacity"`
}

// Retrieval holds the hybrid query engine configuration of spec.md §6.
type Retrieval struct {
	RRFK                int     `mapstructure:"rrf_k"`
	CandidatePool       int     `mapstructure:"candidate_pool"`
	RerankTop           int     `mapstructure:"rerank_top"`
	DefaultHybridWeight float64 `mapstructure:"default_hybrid_weight"`
	VectorMinSimHybrid  float64 `mapstructure:"vector_min_sim_hybrid"`
	VectorMinSimGraph   float64 `mapstructure:"vector_min_sim_graph"`
	QueryTimeoutMS      int     `mapstructure:"query_timeout_ms"`
}

// Graph holds the hybrid relationship score and PageRank configuration of
// spec.md §4.8.
type Graph struct {
	WeightVector         float64 `mapstructure:"w_v"`
	WeightTags           float64 `mapstructure:"w_t"`
	WeightClassification float64 `mapstructure:"w_c"`
	VectorSimilarityTau  float64 `mapstructure:"tau_v"`
	PageRankDamping      float64 `mapstructure:"pagerank_damping"`
	PageRankMaxIter      int     `mapstructure:"pagerank_max_iterations"`
	PageRankConvergence  float64 `mapstructure:"pagerank_convergence"`
}

// Quality holds the five quality dimension weights, which must sum to 1.0.
type Quality struct {
	WeightAccuracy     float64 `mapstructure:"weight_accuracy"`
	WeightCompleteness float64 `mapstructure:"weight_completeness"`
	WeightConsistency  float64 `mapstructure:"weight_consistency"`
	WeightTimeliness   float64 `mapstructure:"weight_timeliness"`
	WeightRelevance    float64 `mapstructure:"weight_relevance"`
	ComputationVersion string  `mapstructure:"computation_version"`
}

// Logging holds logging configuration.
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var globalConfig *Config

// Load reads configuration from a config file (if present), a .env file,
// and environment variables, applying defaults and validating the result.
// Subsequent calls return the cached instance, matching the teacher's
// once-loaded global config pattern.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("warning: error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".neoalexandria")
		viper.SetConfigType("yaml")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetEnvPrefix("NEOALEXANDRIA")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

// Get returns the global configuration, loading defaults if Load was never
// called.
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("failed to load configuration: %v", err))
		}
		return cfg
	}
	return globalConfig
}

// Reset clears the cached global configuration; used by tests that need a
// fresh Load().
func Reset() {
	globalConfig = nil
	viper.Reset()
}

func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("app.data_dir", "./data")

	viper.SetDefault("ai.model", "gemini-flash-lite-latest")
	viper.SetDefault("ai.embedding_model", "gemini-embedding-001")
	viper.SetDefault("ai.embedding_dims", 768)
	viper.SetDefault("ai.temperature", 0.2)
	viper.SetDefault("ai.reranker_enabled", false)

	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.data_dir", "./data")
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.idle_connections", 5)

	viper.SetDefault("archive.root_dir", "./data/archive")

	viper.SetDefault("ingestion.worker_pool_size", 2*numCPU())
	viper.SetDefault("ingestion.max_attempts", 3)
	viper.SetDefault("ingestion.backoff_base_ms", 500)
	viper.SetDefault("ingestion.max_backoff_ms", 30000)
	viper.SetDefault("ingestion.fetch_timeout_ms", 30000)
	viper.SetDefault("ingestion.parse_timeout_ms", 15000)
	viper.SetDefault("ingestion.model_timeout_ms", 60000)
	viper.SetDefault("ingestion.index_write_timeout_ms", 10000)
	viper.SetDefault("ingestion.fingerprint_lock_timeout_ms", 120000)
	viper.SetDefault("ingestion.queue_capacity", 1000)

	viper.SetDefault("retrieval.rrf_k", 60)
	viper.SetDefault("retrieval.candidate_pool", 200)
	viper.SetDefault("retrieval.rerank_top", 50)
	viper.SetDefault("retrieval.default_hybrid_weight", 0.5)
	viper.SetDefault("retrieval.vector_min_sim_hybrid", 0.0)
	viper.SetDefault("retrieval.vector_min_sim_graph", 0.85)
	viper.SetDefault("retrieval.query_timeout_ms", 2000)

	viper.SetDefault("graph.w_v", 0.6)
	viper.SetDefault("graph.w_t", 0.3)
	viper.SetDefault("graph.w_c", 0.1)
	viper.SetDefault("graph.tau_v", 0.85)
	viper.SetDefault("graph.pagerank_damping", 0.85)
	viper.SetDefault("graph.pagerank_max_iterations", 100)
	viper.SetDefault("graph.pagerank_convergence", 1e-6)

	viper.SetDefault("quality.weight_accuracy", 0.2)
	viper.SetDefault("quality.weight_completeness", 0.2)
	viper.SetDefault("quality.weight_consistency", 0.2)
	viper.SetDefault("quality.weight_timeliness", 0.2)
	viper.SetDefault("quality.weight_relevance", 0.2)
	viper.SetDefault("quality.computation_version", "v1")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

func validate(cfg *Config) error {
	sum := cfg.Quality.WeightAccuracy + cfg.Quality.WeightCompleteness +
		cfg.Quality.WeightConsistency + cfg.Quality.WeightTimeliness + cfg.Quality.WeightRelevance
	if sum < 0.999999 || sum > 1.000001 {
		return fmt.Errorf("quality dimension weights must sum to 1.0, got %f", sum)
	}
	if cfg.Ingestion.MaxAttempts < 1 {
		return fmt.Errorf("ingestion.max_attempts must be >= 1")
	}
	return nil
}

// Backoff returns the base/max backoff durations as
// time.Duration for convenient wiring into the retry policy.
func (i Ingestion) Backoff() (base, max time.Duration) {
	return time.Duration(i.BackoffBaseMS) * time.Millisecond, time.Duration(i.MaxBackoffMS) * time.Millisecond
}

func numCPU() int {
	return runtime.NumCPU()
}
