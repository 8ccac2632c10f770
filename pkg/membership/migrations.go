package membership

import (
	"github.com/grantbase/grantbase/pkg/storage/postgres"
)

// MigrationsTable tracks applied membership schema versions
const MigrationsTable = "membership_migrations"

// GetMigrations returns all ephemeral membership migrations
func GetMigrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     1,
			Description: "Create ephemeral_memberships table",
			SQL: `
				CREATE TABLE IF NOT EXISTS ephemeral_memberships (
					id TEXT PRIMARY KEY,
					actor_id TEXT NOT NULL,
					group_id TEXT NOT NULL,
					not_after TIMESTAMP NOT NULL,
					created_by TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL,
					UNIQUE (actor_id, group_id)
				);

				CREATE INDEX idx_ephemeral_memberships_actor ON ephemeral_memberships(actor_id);
				CREATE INDEX idx_ephemeral_memberships_not_after ON ephemeral_memberships(not_after);
			`,
		},
	}
}
