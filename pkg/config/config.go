// Package config loads and validates process configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Store, Engine, Redis, Mongo, Postgres, Kafka, Control, etc.).
//
// This is boot configuration for a single process. The runtime settings the
// daemon shares with sibling processes (index language, batch limits,
// excluded categories) live in the primary store and are managed by
// internal/settings, not here.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level process configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Engine    EngineConfig    `yaml:"engine"`
	Redis     RedisConfig     `yaml:"redis"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Bleve     BleveConfig     `yaml:"bleve"`
	Control   ControlConfig   `yaml:"control"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Sync      SyncConfig      `yaml:"sync"`
}

// StoreConfig selects the primary-store backend the forum writes to.
type StoreConfig struct {
	Backend string `yaml:"backend"` // "redis" or "mongo"
}

// EngineConfig selects the full-text index engine backend.
type EngineConfig struct {
	Backend string `yaml:"backend"` // "bleve" or "postgres"
}

// RedisConfig holds Redis connection parameters, shared by the Redis
// primary-store backend and the Redis broadcast backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// MongoConfig holds MongoDB connection parameters for the Mongo
// primary-store backend.
type MongoConfig struct {
	URI      string        `yaml:"uri"`
	Database string        `yaml:"database"`
	Timeout  time.Duration `yaml:"timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters for the Postgres
// full-text engine backend.
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

// KafkaConfig holds Kafka broker and topic settings for the mutation-event
// stream.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentEvents string `yaml:"documentEvents"`
}

// BleveConfig holds filesystem settings for the embedded bleve engine.
type BleveConfig struct {
	Dir string `yaml:"dir"`
}

// ControlConfig holds the control RPC listener settings.
type ControlConfig struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

// BroadcastConfig selects how settings saves are announced to sibling
// processes.
type BroadcastConfig struct {
	Backend string `yaml:"backend"` // "redis" or "memory"
	Channel string `yaml:"channel"`
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

// SyncConfig tunes the synchronizer itself: how many documents a rebuild
// reads per page and how many parent topics the event router caches.
type SyncConfig struct {
	PageSize       int64 `yaml:"pageSize"`
	TopicCacheSize int   `yaml:"topicCacheSize"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// defaultConfig returns a Config with defaults suitable for running against
// a local forum stack.
func defaultConfig() *Config {
	return &Config{
		Store:  StoreConfig{Backend: "redis"},
		Engine: EngineConfig{Backend: "bleve"},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
		},
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "forum",
			Timeout:  10 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "forum",
			User:            "forum",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "searchsync",
			Topics: KafkaTopics{
				DocumentEvents: "forum.events",
			},
		},
		Bleve: BleveConfig{
			Dir: "./data/bleve",
		},
		Control: ControlConfig{
			Addr:           ":7700",
			RequestTimeout: 30 * time.Second,
		},
		Broadcast: BroadcastConfig{
			Backend: "redis",
			Channel: "searchsync:settings",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Sync: SyncConfig{
			PageSize:       500,
			TopicCacheSize: 1024,
		},
	}
}

// applyEnvOverrides reads SEARCHSYNC_* environment variables and overrides
// the corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SEARCHSYNC_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("SEARCHSYNC_ENGINE_BACKEND"); v != "" {
		cfg.Engine.Backend = v
	}
	if v := os.Getenv("SEARCHSYNC_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SEARCHSYNC_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SEARCHSYNC_MONGO_URI"); v != "" {
		cfg.Mongo.URI = v
	}
	if v := os.Getenv("SEARCHSYNC_MONGO_DATABASE"); v != "" {
		cfg.Mongo.Database = v
	}
	if v := os.Getenv("SEARCHSYNC_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SEARCHSYNC_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SEARCHSYNC_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SEARCHSYNC_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SEARCHSYNC_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SEARCHSYNC_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("SEARCHSYNC_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SEARCHSYNC_BLEVE_DIR"); v != "" {
		cfg.Bleve.Dir = v
	}
	if v := os.Getenv("SEARCHSYNC_CONTROL_ADDR"); v != "" {
		cfg.Control.Addr = v
	}
	if v := os.Getenv("SEARCHSYNC_BROADCAST_BACKEND"); v != "" {
		cfg.Broadcast.Backend = v
	}
	if v := os.Getenv("SEARCHSYNC_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SEARCHSYNC_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SEARCHSYNC_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
	if v := os.Getenv("SEARCHSYNC_SYNC_PAGE_SIZE"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Sync.PageSize = size
		}
	}
	if v := os.Getenv("SEARCHSYNC_SYNC_TOPIC_CACHE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil {
			cfg.Sync.TopicCacheSize = size
		}
	}
}
