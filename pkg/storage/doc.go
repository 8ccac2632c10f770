// Package storage holds backing store configuration shared by the database
// and Redis layers.
//
// # Overview
//
// Config carries PostgreSQL connection settings (primary plus optional read
// replicas), Redis connection settings, and cache TTLs. The postgres
// subpackage provides the connection manager, the shared migration runner,
// and the Redis client factory.
//
// # Usage Example
//
//	cfg := storage.DefaultConfig()
//	cfg.PostgresURL = "postgres://localhost/grantbase"
//
//	cm, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
//		PrimaryURL: cfg.PostgresURL,
//		MaxConns:   cfg.PostgresMaxConns,
//		MinConns:   cfg.PostgresMinConns,
//		Timeout:    cfg.PostgresTimeout,
//	})
//
// # Related Packages
//
//   - pkg/storage/postgres: Connection manager, migrations, Redis client
//   - pkg/config: Loads Config from the environment
package storage
