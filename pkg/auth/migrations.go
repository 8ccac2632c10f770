package auth

import (
	"github.com/grantbase/grantbase/pkg/storage/postgres"
)

// MigrationsTable tracks applied auth schema versions
const MigrationsTable = "auth_migrations"

// GetMigrations returns all identity and token migrations.
func GetMigrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     1,
			Description: "Create actors and actor_groups tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS actors (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL DEFAULT '',
					is_administrator BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS actor_groups (
					actor_id TEXT NOT NULL,
					group_id TEXT NOT NULL,
					PRIMARY KEY (actor_id, group_id)
				);

				CREATE INDEX idx_actor_groups_group ON actor_groups(group_id);
			`,
		},
		{
			Version:     2,
			Description: "Create api_tokens table",
			SQL: `
				CREATE TABLE IF NOT EXISTS api_tokens (
					id BIGSERIAL PRIMARY KEY,
					actor_id TEXT NOT NULL REFERENCES actors(id),
					token_hash TEXT NOT NULL UNIQUE,
					token_prefix TEXT NOT NULL,
					name TEXT NOT NULL DEFAULT '',
					expires_at TIMESTAMP,
					last_used_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL,
					revoked_at TIMESTAMP
				);

				CREATE INDEX idx_api_tokens_actor ON api_tokens(actor_id);
			`,
		},
	}
}
