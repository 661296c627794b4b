// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the configuration shared by the server, worker and CLI.
type Config struct {
	AppEnv   string
	LogLevel string

	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Inventory InventoryConfig
	Kafka     KafkaConfig
	Outbox    OutboxConfig
}

type ServerConfig struct {
	Port               string
	IdempotencyEnabled bool
	IdempotencyTTL     time.Duration
}

type DatabaseConfig struct {
	URL              string
	MaxConns         int32
	MinConns         int32
	StatementTimeout time.Duration
}

type JWTConfig struct {
	Secret string
	Issuer string
}

// InventoryConfig holds ledger engine tunables.
type InventoryConfig struct {
	UndoWindow             time.Duration
	ImportMaxRows          int
	ImportMaxBytes         int64
	AuditCompressThreshold int
}

type KafkaConfig struct {
	Brokers        []string
	MovementsTopic string
	AlertsTopic    string
}

type OutboxConfig struct {
	Interval  time.Duration
	BatchSize int
	// Lease hides a claimed message from other relays while it is delivered.
	Lease time.Duration
}

// Development reports whether the process runs with development defaults.
func (c *Config) Development() bool {
	return c.AppEnv == "development"
}

// Load reads a .env file when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env is optional

	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:               getEnv("SERVER_PORT", "8080"),
			IdempotencyEnabled: getEnvBool("IDEMPOTENCY_ENABLED", true),
			IdempotencyTTL:     getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		},
		Database: DatabaseConfig{
			MaxConns:         int32(getEnvInt("DB_MAX_CONNS", 25)),
			MinConns:         int32(getEnvInt("DB_MIN_CONNS", 5)),
			StatementTimeout: getEnvDuration("STATEMENT_TIMEOUT", 8*time.Second),
		},
		JWT: JWTConfig{
			Issuer: getEnv("JWT_ISSUER", ""),
		},
		Inventory: InventoryConfig{
			UndoWindow:             getEnvDuration("UNDO_WINDOW", 10*time.Minute),
			ImportMaxRows:          getEnvInt("IMPORT_MAX_ROWS", 5000),
			ImportMaxBytes:         int64(getEnvInt("IMPORT_MAX_BYTES", 5<<20)),
			AuditCompressThreshold: getEnvInt("AUDIT_COMPRESS_THRESHOLD", 10*1024),
		},
		Kafka: KafkaConfig{
			Brokers:        getEnvList("KAFKA_BROKERS"),
			MovementsTopic: getEnv("KAFKA_TOPIC_MOVEMENTS", "inventory.movements"),
			AlertsTopic:    getEnv("KAFKA_TOPIC_ALERTS", "inventory.alerts"),
		},
		Outbox: OutboxConfig{
			Interval:  getEnvDuration("OUTBOX_INTERVAL", 5*time.Second),
			BatchSize: getEnvInt("OUTBOX_BATCH_SIZE", 100),
			Lease:     getEnvDuration("OUTBOX_LEASE", time.Minute),
		},
	}

	var err error
	if cfg.Database.URL, err = mustEnv("DATABASE_URL"); err != nil {
		return nil, err
	}
	if cfg.JWT.Secret, err = mustEnv("JWT_SECRET"); err != nil {
		return nil, err
	}

	if cfg.Database.StatementTimeout <= 0 {
		return nil, fmt.Errorf("STATEMENT_TIMEOUT must be positive")
	}
	if cfg.Inventory.UndoWindow <= 0 {
		return nil, fmt.Errorf("UNDO_WINDOW must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("required environment variable %s not set", key)
	}
	return value, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
