// Package config provides configuration structures and validation for the
// application. It handles environment-based configuration for all major
// components including the HTTP server, datastores, the scheduled-task worker
// and import session bookkeeping.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration. Each field represents a
// major subsystem's configuration and is validated during application startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Scheduler   SchedulerConfig
	Sessions    SessionsConfig
	Kafka       KafkaConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// SchedulerConfig contains scheduled-task worker configuration
type SchedulerConfig struct {
	TickInterval   time.Duration // How often the worker checks for due tasks
	FallbackRunGap time.Duration // Next-run gap for tasks without a cron expression
	WorkerPoolSize int           // Maximum number of concurrently running tasks
	RunEventsTopic string        // Kafka topic for run-outcome events; empty disables publishing
	KafkaBrokers   string        // Broker list for run-outcome events
}

// SessionsConfig contains import session bookkeeping configuration
type SessionsConfig struct {
	LogDir           string        // Root directory for per-session log files
	Retention        time.Duration // How long terminal progress snapshots stay in memory
	CleanupInterval  time.Duration // How often the in-memory session cleanup runs
	RawPayloadMaxAge time.Duration // Raw payload archive retention; zero disables pruning
}

// KafkaConfig contains connection settings shared by Kafka producers
type KafkaConfig struct {
	WriteTimeout time.Duration
	BatchTimeout time.Duration
}

// validate performs comprehensive validation of all configuration values,
// ensuring they meet minimum requirements and logical constraints
func (c *Config) validate() error {
	var validationErrors []string

	// Validate Server config
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Validate PostgreSQL config
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MinPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MIN_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MaxConnIdleTime <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate Scheduler config
	if c.Scheduler.TickInterval <= 0 {
		validationErrors = append(validationErrors, "SCHEDULER_TICK_INTERVAL must be greater than 0")
	}
	if c.Scheduler.FallbackRunGap <= 0 {
		validationErrors = append(validationErrors, "SCHEDULER_FALLBACK_RUN_GAP must be greater than 0")
	}
	if c.Scheduler.WorkerPoolSize <= 0 {
		validationErrors = append(validationErrors, "SCHEDULER_WORKER_POOL_SIZE must be greater than 0")
	}

	// Validate Sessions config
	if c.Sessions.LogDir == "" {
		validationErrors = append(validationErrors, "SESSIONS_LOG_DIR is required")
	}
	if c.Sessions.Retention <= 0 {
		validationErrors = append(validationErrors, "SESSIONS_RETENTION must be greater than 0")
	}
	if c.Sessions.CleanupInterval <= 0 {
		validationErrors = append(validationErrors, "SESSIONS_CLEANUP_INTERVAL must be greater than 0")
	}

	// Run-outcome publishing is optional, but a topic without brokers is a misconfiguration
	if c.Scheduler.RunEventsTopic != "" && c.Scheduler.KafkaBrokers == "" {
		validationErrors = append(validationErrors, "SCHEDULER_KAFKA_BROKERS is required when SCHEDULER_RUN_EVENTS_TOPIC is set")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
