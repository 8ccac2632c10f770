// Package config provides application configuration from environment
// variables with an optional YAML file overlay.
//
// # Overview
//
// Configuration is loaded from GRANTBASE_* environment variables with
// sensible defaults. When GRANTBASE_CONFIG names a YAML file, its values
// fill in settings the environment left untouched; explicit environment
// variables always win.
//
// # Configuration Structure
//
// Server settings:
//
//	GRANTBASE_HOST="0.0.0.0"
//	GRANTBASE_PORT="8080"
//	GRANTBASE_HEALTH_PORT="9090"
//	GRANTBASE_READ_TIMEOUT="15s"
//	GRANTBASE_WRITE_TIMEOUT="15s"
//
// Storage settings:
//
//	GRANTBASE_POSTGRES_URL="postgres://localhost/grantbase"
//	GRANTBASE_POSTGRES_REPLICA_URLS="postgres://replica1/grantbase,postgres://replica2/grantbase"
//	GRANTBASE_POSTGRES_MAX_CONNS="20"
//	GRANTBASE_REDIS_URL="redis://localhost:6379"
//	GRANTBASE_CACHE_ENABLED="true"
//
// Observability settings:
//
//	GRANTBASE_LOG_LEVEL="info"  # debug, info, warn, error
//	GRANTBASE_METRICS_ENABLED="true"
//	GRANTBASE_OTEL_ENABLED="true"
//	GRANTBASE_OTEL_ENDPOINT="otel-collector:4317"
//
// Sweeper settings:
//
//	GRANTBASE_SWEEPER_ENABLED="true"
//	GRANTBASE_SWEEPER_SCHEDULE="7 * * * *"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Related Packages
//
//   - pkg/storage: Storage configuration types
//   - pkg/observability: Log level types
package config
