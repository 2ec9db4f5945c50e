// Package config loads application configuration from YAML files with
// environment-variable overrides. It provides typed structs for every
// subsystem (Store, Indexer, Crawler, Search, Redis, Kafka, Server, etc.).
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
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Indexer IndexerConfig `yaml:"indexer"`
	Crawler CrawlerConfig `yaml:"crawler"`
	Search  SearchConfig  `yaml:"search"`
	Redis   RedisConfig   `yaml:"redis"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings for the serve command.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`

	// RateLimit is requests per client per minute; 0 disables limiting.
	RateLimit   int      `yaml:"rateLimit"`
	CORSOrigins []string `yaml:"corsOrigins"`
}

// StoreConfig selects the persistent store backend and names the two
// collections it keeps: postings per term and norms per document.
type StoreConfig struct {
	Driver         string         `yaml:"driver"`
	IndexTable     string         `yaml:"indexTable"`
	DocumentsTable string         `yaml:"documentsTable"`
	CreateIndexes  bool           `yaml:"createIndexes"`
	Postgres       PostgresConfig `yaml:"postgres"`
	Bolt           BoltConfig     `yaml:"bolt"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// BoltConfig holds the embedded BoltDB file settings.
type BoltConfig struct {
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
}

// RetryConfig mirrors resilience.RetryConfig in YAML form.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	InitialDelay time.Duration `yaml:"initialDelay"`
	MaxDelay     time.Duration `yaml:"maxDelay"`
}

// IndexerConfig controls when the in-memory index is flushed to the store.
type IndexerConfig struct {
	// FlushThreshold is the number of distinct resident terms that triggers a flush.
	FlushThreshold int         `yaml:"flushThreshold"`
	FlushRetry     RetryConfig `yaml:"flushRetry"`
}

// CrawlerConfig controls the breadth-first web crawler.
type CrawlerConfig struct {
	MaxDepth      int           `yaml:"maxDepth"`
	MaxFetches    int           `yaml:"maxFetches"`
	Workers       int           `yaml:"workers"`
	UserAgent     string        `yaml:"userAgent"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxBodyBytes  int64         `yaml:"maxBodyBytes"`
	RespectRobots bool          `yaml:"respectRobots"`
	HostBreaker   BreakerConfig `yaml:"hostBreaker"`
}

// BreakerConfig configures the per-host circuit breaker used while fetching.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
}

// SearchConfig holds the vector model defaults and query limits.
type SearchConfig struct {
	Above   float64       `yaml:"above"`
	Top     int           `yaml:"top"`
	Timeout time.Duration `yaml:"timeout"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled bool        `yaml:"enabled"`
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	CrawlEvents  string `yaml:"crawlEvents"`
	SearchEvents string `yaml:"searchEvents"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls query span collection.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides on top of the defaults.
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

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres", "bolt":
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
	if c.Indexer.FlushThreshold <= 0 {
		return fmt.Errorf("indexer.flushThreshold must be positive, got %d", c.Indexer.FlushThreshold)
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be positive, got %d", c.Crawler.Workers)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rateLimit must not be negative, got %d", c.Server.RateLimit)
	}
	if c.Crawler.MaxDepth < -1 {
		return fmt.Errorf("crawler.maxDepth must be -1 or greater, got %d", c.Crawler.MaxDepth)
	}
	return nil
}

// Default returns the built-in configuration without reading files or the
// environment.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
		},
		Store: StoreConfig{
			Driver:         "postgres",
			IndexTable:     "index",
			DocumentsTable: "documents",
			Postgres: PostgresConfig{
				Host:            "localhost",
				Port:            5432,
				Database:        "inforet",
				User:            "inforet",
				Password:        "localdev",
				SSLMode:         "disable",
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
			Bolt: BoltConfig{
				Path:    "inforet.db",
				Timeout: time.Second,
			},
		},
		Indexer: IndexerConfig{
			FlushThreshold: 10000,
			FlushRetry: RetryConfig{
				MaxAttempts:  3,
				InitialDelay: 200 * time.Millisecond,
				MaxDelay:     5 * time.Second,
			},
		},
		Crawler: CrawlerConfig{
			MaxDepth:     -1,
			Workers:      8,
			UserAgent:    "inforet-crawler/1.0",
			Timeout:      15 * time.Second,
			MaxBodyBytes: 10 << 20,
			HostBreaker: BreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
			},
		},
		Search: SearchConfig{
			Above:   0.2,
			Top:     -1,
			Timeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topics: KafkaTopics{
				CrawlEvents:  "crawl-events",
				SearchEvents: "search-events",
			},
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

// applyEnvOverrides reads IR_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IR_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("IR_SERVER_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit = n
		}
	}
	if v := os.Getenv("IR_SERVER_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("IR_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("IR_STORE_BOLT_PATH"); v != "" {
		cfg.Store.Bolt.Path = v
	}
	if v := os.Getenv("IR_POSTGRES_HOST"); v != "" {
		cfg.Store.Postgres.Host = v
	}
	if v := os.Getenv("IR_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Store.Postgres.Port = port
		}
	}
	if v := os.Getenv("IR_POSTGRES_DATABASE"); v != "" {
		cfg.Store.Postgres.Database = v
	}
	if v := os.Getenv("IR_POSTGRES_USER"); v != "" {
		cfg.Store.Postgres.User = v
	}
	if v := os.Getenv("IR_POSTGRES_PASSWORD"); v != "" {
		cfg.Store.Postgres.Password = v
	}
	if v := os.Getenv("IR_POSTGRES_SSLMODE"); v != "" {
		cfg.Store.Postgres.SSLMode = v
	}
	if v := os.Getenv("IR_INDEXER_FLUSH_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.FlushThreshold = n
		}
	}
	if v := os.Getenv("IR_CRAWLER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Crawler.Workers = n
		}
	}
	if v := os.Getenv("IR_CRAWLER_USER_AGENT"); v != "" {
		cfg.Crawler.UserAgent = v
	}
	if v := os.Getenv("IR_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("IR_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("IR_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("IR_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("IR_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
