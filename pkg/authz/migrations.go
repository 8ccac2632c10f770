package authz

import (
	"github.com/grantbase/grantbase/pkg/storage/postgres"
)

// MigrationsTable tracks applied authz schema versions
const MigrationsTable = "authz_migrations"

// GetMigrations returns all permission grant migrations.
//
// Grantee and target key columns use NOT NULL DEFAULT sentinels rather than
// NULLs so the six-column uniqueness constraint behaves identically on every
// backend the tests run against.
func GetMigrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     1,
			Description: "Create permission_grants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permission_grants (
					id TEXT PRIMARY KEY,
					grantee_kind VARCHAR(20) NOT NULL,
					grantee_actor_id TEXT NOT NULL DEFAULT '',
					grantee_group_id TEXT NOT NULL DEFAULT '',
					context_entity_kind VARCHAR(50) NOT NULL,
					target_id BIGINT NOT NULL DEFAULT 0,
					target_short_code TEXT NOT NULL DEFAULT '',
					scope TEXT NOT NULL,
					verbs TEXT NOT NULL,
					created_by TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL,
					UNIQUE (grantee_kind, grantee_actor_id, grantee_group_id, context_entity_kind, target_id, target_short_code)
				);

				CREATE INDEX idx_permission_grants_actor ON permission_grants(grantee_actor_id);
				CREATE INDEX idx_permission_grants_group ON permission_grants(grantee_group_id);
				CREATE INDEX idx_permission_grants_entity ON permission_grants(context_entity_kind);
			`,
		},
	}
}
