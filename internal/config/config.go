package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/meridianhq/deepsearch/internal/tracing"
)

// EngineConfig holds the quality thresholds that drive the adaptive state machine.
type EngineConfig struct {
	MinConfidence float64 `mapstructure:"min_confidence"`
	MinSources    int     `mapstructure:"min_sources"`
	MaxIterations int     `mapstructure:"max_iterations"`
	// Validation level for the fact checker: basic, comprehensive, exhaustive
	ValidationLevel string `mapstructure:"validation_level"`
}

// VectorConfig controls the vector search backend (Qdrant-compatible HTTP API).
type VectorConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Collection string        `mapstructure:"collection"`
	TopK       int           `mapstructure:"top_k"`
	Threshold  float64       `mapstructure:"threshold"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// EmbeddingsConfig controls the embedding service used for semantic search.
type EmbeddingsConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PostgresConfig controls the fulltext search store.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig controls the search result cache.
type RedisConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Addr    string        `mapstructure:"addr"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig bounds outbound vector search calls.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// SearchConfig groups retrieval backends.
type SearchConfig struct {
	Vector     VectorConfig     `mapstructure:"vector"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Redis      RedisConfig      `mapstructure:"redis"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
}

// PersonasConfig points at an optional persona profile file.
type PersonasConfig struct {
	ConfigPath string `mapstructure:"config_path"`
	HotReload  bool   `mapstructure:"hot_reload"`
}

// Config is the root engine configuration.
type Config struct {
	Engine   EngineConfig   `mapstructure:"engine"`
	Search   SearchConfig   `mapstructure:"search"`
	Personas PersonasConfig `mapstructure:"personas"`
	Tracing  tracing.Config `mapstructure:"tracing"`
	Metrics  struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`
	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.min_confidence", 0.6)
	v.SetDefault("engine.min_sources", 3)
	v.SetDefault("engine.max_iterations", 5)
	v.SetDefault("engine.validation_level", "comprehensive")

	v.SetDefault("search.vector.enabled", true)
	v.SetDefault("search.vector.host", "localhost")
	v.SetDefault("search.vector.port", 6333)
	v.SetDefault("search.vector.collection", "sources")
	v.SetDefault("search.vector.top_k", 10)
	v.SetDefault("search.vector.threshold", 0.0)
	v.SetDefault("search.vector.timeout", 5*time.Second)

	v.SetDefault("search.embeddings.base_url", "http://localhost:8000")
	v.SetDefault("search.embeddings.model", "text-embedding-3-small")
	v.SetDefault("search.embeddings.timeout", 5*time.Second)

	v.SetDefault("search.redis.enabled", false)
	v.SetDefault("search.redis.addr", "localhost:6379")
	v.SetDefault("search.redis.ttl", 10*time.Minute)

	v.SetDefault("search.rate_limit.rps", 20.0)
	v.SetDefault("search.rate_limit.burst", 10)

	v.SetDefault("personas.hot_reload", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 2112)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load reads engine.yaml from CONFIG_PATH or ./config/engine.yaml. A missing
// file is not an error: defaults plus env overrides still produce a usable
// configuration.
func Load() (*Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/engine.yaml"
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(cfgPath)
	v.SetEnvPrefix("DEEPSEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

// Validate checks threshold sanity so a bad file fails fast at startup.
func (c *Config) Validate() error {
	if c.Engine.MinConfidence < 0 || c.Engine.MinConfidence > 1 {
		return fmt.Errorf("engine.min_confidence must be in [0,1], got %f", c.Engine.MinConfidence)
	}
	if c.Engine.MinSources < 1 {
		return fmt.Errorf("engine.min_sources must be >= 1, got %d", c.Engine.MinSources)
	}
	if c.Engine.MaxIterations < 1 {
		return fmt.Errorf("engine.max_iterations must be >= 1, got %d", c.Engine.MaxIterations)
	}
	switch c.Engine.ValidationLevel {
	case "basic", "comprehensive", "exhaustive":
	default:
		return fmt.Errorf("engine.validation_level must be basic, comprehensive or exhaustive, got %q", c.Engine.ValidationLevel)
	}
	return nil
}
