// Package config loads and validates build configuration from YAML files
// with environment-variable overrides. It provides typed structs for the
// build itself and for every optional collaborator (Kafka, Redis, Postgres,
// metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Build     BuildConfig     `yaml:"build"`
	Tokenizer TokenizerConfig `yaml:"tokenizer"`
	Source    SourceConfig    `yaml:"source"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// BuildConfig controls chunking, merging, and where artifacts live.
// ChunkSize and MergeBufferSize both trade memory ceiling against I/O rounds.
type BuildConfig struct {
	DataDir         string `yaml:"dataDir"`
	ChunkSize       int    `yaml:"chunkSize"`
	MergeBufferSize int    `yaml:"mergeBufferSize"`
	IndexWorkers    int    `yaml:"indexWorkers"`
	MergeWorkers    int    `yaml:"mergeWorkers"`
	KeepGenerations bool   `yaml:"keepGenerations"`
}

// TokenizerConfig selects the stemmer used by the default tokenizer.
type TokenizerConfig struct {
	Stemmer string `yaml:"stemmer"`
}

// SourceConfig selects where documents come from when no file is given.
type SourceConfig struct {
	Topic     string `yaml:"topic"`
	Partition int    `yaml:"partition"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled bool        `yaml:"enabled"`
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexComplete string `yaml:"indexComplete"`
}

// RedisConfig holds Redis connection and posting-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// PostgresConfig holds PostgreSQL connection parameters for the build registry.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Build: BuildConfig{
			DataDir:         "data/bsbi",
			ChunkSize:       2000,
			MergeBufferSize: 5000,
			IndexWorkers:    1,
			MergeWorkers:    1,
		},
		Tokenizer: TokenizerConfig{
			Stemmer: "simple",
		},
		Source: SourceConfig{
			Topic: "document-ingest",
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topics: KafkaTopics{
				IndexComplete: "index.complete",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "bsbi",
			User:            "bsbi",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Port: 9090,
		},
	}
}

// Validate checks the tunables that the build cannot run without.
func (c *Config) Validate() error {
	if c.Build.DataDir == "" {
		return fmt.Errorf("build.dataDir is required")
	}
	if c.Build.ChunkSize <= 0 {
		return fmt.Errorf("build.chunkSize must be positive, got %d", c.Build.ChunkSize)
	}
	if c.Build.MergeBufferSize <= 0 {
		return fmt.Errorf("build.mergeBufferSize must be positive, got %d", c.Build.MergeBufferSize)
	}
	if c.Build.IndexWorkers <= 0 {
		return fmt.Errorf("build.indexWorkers must be positive, got %d", c.Build.IndexWorkers)
	}
	if c.Build.MergeWorkers <= 0 {
		return fmt.Errorf("build.mergeWorkers must be positive, got %d", c.Build.MergeWorkers)
	}
	switch c.Tokenizer.Stemmer {
	case "simple", "porter2", "none":
	default:
		return fmt.Errorf(`tokenizer.stemmer must be "simple", "porter2" or "none", got %q`, c.Tokenizer.Stemmer)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	return nil
}

// applyEnvOverrides reads BSBI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BSBI_DATA_DIR"); v != "" {
		cfg.Build.DataDir = v
	}
	if v := os.Getenv("BSBI_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Build.ChunkSize = n
		}
	}
	if v := os.Getenv("BSBI_MERGE_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Build.MergeBufferSize = n
		}
	}
	if v := os.Getenv("BSBI_INDEX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Build.IndexWorkers = n
		}
	}
	if v := os.Getenv("BSBI_MERGE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Build.MergeWorkers = n
		}
	}
	if v := os.Getenv("BSBI_TOKENIZER_STEMMER"); v != "" {
		cfg.Tokenizer.Stemmer = v
	}
	if v := os.Getenv("BSBI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("BSBI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("BSBI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("BSBI_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("BSBI_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("BSBI_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BSBI_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
