package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/grantbase/grantbase/pkg/observability"
	"github.com/grantbase/grantbase/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Observability configuration
	Observability ObservabilityConfig

	// Sweeper configuration
	Sweeper SweeperConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// SweeperConfig holds expired membership sweeper settings
type SweeperConfig struct {
	Enabled  bool
	Schedule string // cron expression
}

// fileConfig is the YAML overlay shape. Only the fields operators commonly
// pin in a file are exposed; everything else stays env-only.
type fileConfig struct {
	Server struct {
		Host       string `yaml:"host"`
		Port       string `yaml:"port"`
		HealthPort string `yaml:"health_port"`
	} `yaml:"server"`
	Storage struct {
		PostgresURL         string `yaml:"postgres_url"`
		PostgresReplicaURLs string `yaml:"postgres_replica_urls"`
		RedisURL            string `yaml:"redis_url"`
	} `yaml:"storage"`
	Observability struct {
		LogLevel     string `yaml:"log_level"`
		OTelEnabled  *bool  `yaml:"otel_enabled"`
		OTelEndpoint string `yaml:"otel_endpoint"`
	} `yaml:"observability"`
	Sweeper struct {
		Enabled  *bool  `yaml:"enabled"`
		Schedule string `yaml:"schedule"`
	} `yaml:"sweeper"`
}

// LoadConfig loads configuration from environment variables, optionally
// overlaid by a YAML file named in GRANTBASE_CONFIG. Environment variables
// win over file values.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Observability: loadObservabilityConfig(),
		Sweeper:       loadSweeperConfig(),
	}

	if path := os.Getenv("GRANTBASE_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("GRANTBASE_HOST", "0.0.0.0"),
		Port:            getEnv("GRANTBASE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("GRANTBASE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("GRANTBASE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("GRANTBASE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("GRANTBASE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("GRANTBASE_HEALTH_PORT", "9090"),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if pgURL := getEnv("GRANTBASE_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if replicaURLs := getEnv("GRANTBASE_POSTGRES_REPLICA_URLS", ""); replicaURLs != "" {
		cfg.PostgresReplicaURLs = replicaURLs
	}
	if maxConns := getEnvInt("GRANTBASE_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("GRANTBASE_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("GRANTBASE_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	if redisURL := getEnv("GRANTBASE_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("GRANTBASE_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("GRANTBASE_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("GRANTBASE_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("GRANTBASE_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	if cacheEnabled := getEnv("GRANTBASE_CACHE_ENABLED", ""); cacheEnabled != "" {
		cfg.CacheEnabled = strings.ToLower(cacheEnabled) == "true"
	}

	return cfg
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           ParseLogLevel(getEnv("GRANTBASE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("GRANTBASE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("GRANTBASE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("GRANTBASE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("GRANTBASE_OTEL_SERVICE_NAME", "grantbase-api"),
		OTelServiceVersion: getEnv("GRANTBASE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("GRANTBASE_OTEL_INSECURE", true),
	}
}

func loadSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Enabled:  getEnvBool("GRANTBASE_SWEEPER_ENABLED", true),
		Schedule: getEnv("GRANTBASE_SWEEPER_SCHEDULE", ""),
	}
}

// applyFile overlays file values for settings the environment left at
// their defaults. An env var that was explicitly set always wins.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing yaml: %w", err)
	}

	if fc.Server.Host != "" && os.Getenv("GRANTBASE_HOST") == "" {
		c.Server.Host = fc.Server.Host
	}
	if fc.Server.Port != "" && os.Getenv("GRANTBASE_PORT") == "" {
		c.Server.Port = fc.Server.Port
	}
	if fc.Server.HealthPort != "" && os.Getenv("GRANTBASE_HEALTH_PORT") == "" {
		c.Server.HealthPort = fc.Server.HealthPort
	}
	if fc.Storage.PostgresURL != "" && os.Getenv("GRANTBASE_POSTGRES_URL") == "" {
		c.Storage.PostgresURL = fc.Storage.PostgresURL
	}
	if fc.Storage.PostgresReplicaURLs != "" && os.Getenv("GRANTBASE_POSTGRES_REPLICA_URLS") == "" {
		c.Storage.PostgresReplicaURLs = fc.Storage.PostgresReplicaURLs
	}
	if fc.Storage.RedisURL != "" && os.Getenv("GRANTBASE_REDIS_URL") == "" {
		c.Storage.RedisURL = fc.Storage.RedisURL
	}
	if fc.Observability.LogLevel != "" && os.Getenv("GRANTBASE_LOG_LEVEL") == "" {
		c.Observability.LogLevel = ParseLogLevel(fc.Observability.LogLevel)
	}
	if fc.Observability.OTelEnabled != nil && os.Getenv("GRANTBASE_OTEL_ENABLED") == "" {
		c.Observability.OTelEnabled = *fc.Observability.OTelEnabled
	}
	if fc.Observability.OTelEndpoint != "" && os.Getenv("GRANTBASE_OTEL_ENDPOINT") == "" {
		c.Observability.OTelEndpoint = fc.Observability.OTelEndpoint
	}
	if fc.Sweeper.Enabled != nil && os.Getenv("GRANTBASE_SWEEPER_ENABLED") == "" {
		c.Sweeper.Enabled = *fc.Sweeper.Enabled
	}
	if fc.Sweeper.Schedule != "" && os.Getenv("GRANTBASE_SWEEPER_SCHEDULE") == "" {
		c.Sweeper.Schedule = fc.Sweeper.Schedule
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Storage.CacheEnabled && c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required when caching is enabled")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// ParseLogLevel parses a log level string
func ParseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
