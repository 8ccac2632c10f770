package collaborative

import (
	"github.com/grantbase/grantbase/pkg/storage/postgres"
)

// MigrationsTable tracks applied collaborative schema versions
const MigrationsTable = "collaborative_migrations"

// GetMigrations returns all funder collaborative migrations
func GetMigrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     1,
			Description: "Create funder_collaboratives table",
			SQL: `
				CREATE TABLE IF NOT EXISTS funder_collaboratives (
					short_code TEXT PRIMARY KEY,
					name TEXT NOT NULL DEFAULT '',
					created_by TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL
				);
			`,
		},
		{
			Version:     2,
			Description: "Create collaborative_invitations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS collaborative_invitations (
					id TEXT PRIMARY KEY,
					collaborative_short_code TEXT NOT NULL,
					funder_short_code TEXT NOT NULL,
					status VARCHAR(20) NOT NULL,
					created_by TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL,
					responded_at TIMESTAMP
				);

				CREATE UNIQUE INDEX idx_collaborative_invitations_pending
					ON collaborative_invitations(collaborative_short_code, funder_short_code)
					WHERE status = 'pending';

				CREATE INDEX idx_collaborative_invitations_collab
					ON collaborative_invitations(collaborative_short_code);
			`,
		},
		{
			Version:     3,
			Description: "Create collaborative_members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS collaborative_members (
					collaborative_short_code TEXT NOT NULL,
					funder_short_code TEXT NOT NULL,
					joined_at TIMESTAMP NOT NULL,
					PRIMARY KEY (collaborative_short_code, funder_short_code)
				);

				CREATE INDEX idx_collaborative_members_funder ON collaborative_members(funder_short_code);
			`,
		},
	}
}
