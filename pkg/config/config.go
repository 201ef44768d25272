// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for the value
// index and every collaborator it talks to (Postgres, Kafka, Redis, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Index    IndexConfig    `yaml:"index"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds the HTTP endpoint settings of the daemon, which serves
// health probes and the metrics scrape.
type ServerConfig struct {
	Port            int           `yaml:"port" validate:"gte=0,lte=65535"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// IndexConfig controls how value indexes are built, stored and cached.
type IndexConfig struct {
	DataDir string `yaml:"dataDir" validate:"required"`
	// Document names the owning document, used for catalog entries and file names.
	Document string `yaml:"document" validate:"required"`
	// Type selects the indexed node kind.
	Type string `yaml:"type" validate:"oneof=text attribute"`
	// MaxLen is the longest value, in bytes, that is indexed at all.
	MaxLen int `yaml:"maxLen" validate:"gte=1"`
	// SliceSize spills a run after this many staged entries. Zero selects
	// the memory probe instead.
	SliceSize int `yaml:"sliceSize" validate:"gte=0"`
	// MemoryThreshold is the estimated staging size, in bytes, that triggers
	// a spill when SliceSize is zero.
	MemoryThreshold int64 `yaml:"memoryThreshold" validate:"gte=1"`
	// CheckInterval is the number of scanned positions between spill and
	// cancellation checks.
	CheckInterval   int  `yaml:"checkInterval" validate:"gte=1"`
	PersistentIDs   bool `yaml:"persistentIds"`
	Updatable       bool `yaml:"updatable"`
	LookupCacheSize int  `yaml:"lookupCacheSize" validate:"gte=0"`
	// IntegerKeys declares that numeric values are plain non-negative
	// integers, enabling the numeric range early stop.
	IntegerKeys bool `yaml:"integerKeys"`
	// CacheKeys keeps derived keys per slot in static readers.
	CacheKeys    bool `yaml:"cacheKeys"`
	CompressRuns bool `yaml:"compressRuns"`
	Mmap         bool `yaml:"mmap"`
}

// CatalogConfig selects where index metadata is recorded.
type CatalogConfig struct {
	Backend string `yaml:"backend" validate:"oneof=file redis"`
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

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumerGroup"`
	UpdateTopic   string   `yaml:"updateTopic"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"poolSize"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// MetricsConfig controls Prometheus collection.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

var validate = validator.New()

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result. Missing values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
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

// Validate checks struct-tag constraints on the whole configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Default returns a Config suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8090,
			ShutdownTimeout: 15 * time.Second,
		},
		Index:   DefaultIndex(),
		Catalog: CatalogConfig{Backend: "file"},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "xmldb",
			User:            "xmldb",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "valueindex-group",
			UpdateTopic:   "document-updates",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "valueindex:",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// DefaultIndex returns the index defaults on their own, for callers that
// construct indexes without a config file.
func DefaultIndex() IndexConfig {
	return IndexConfig{
		DataDir:         "data",
		Document:        "default",
		Type:            "text",
		MaxLen:          96,
		MemoryThreshold: 64 << 20,
		CheckInterval:   4096,
		LookupCacheSize: 65536,
		CompressRuns:    true,
	}
}

// applyEnvOverrides reads VI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VI_INDEX_DATA_DIR"); v != "" {
		cfg.Index.DataDir = v
	}
	if v := os.Getenv("VI_INDEX_DOCUMENT"); v != "" {
		cfg.Index.Document = v
	}
	if v := os.Getenv("VI_INDEX_TYPE"); v != "" {
		cfg.Index.Type = v
	}
	if v := os.Getenv("VI_INDEX_SLICE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.SliceSize = n
		}
	}
	if v := os.Getenv("VI_INDEX_UPDATABLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Index.Updatable = b
		}
	}
	if v := os.Getenv("VI_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("VI_CATALOG_BACKEND"); v != "" {
		cfg.Catalog.Backend = v
	}
	if v := os.Getenv("VI_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("VI_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("VI_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("VI_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("VI_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("VI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("VI_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("VI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("VI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("VI_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VI_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
