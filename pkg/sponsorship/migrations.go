package sponsorship

import (
	"github.com/grantbase/grantbase/pkg/storage/postgres"
)

// MigrationsTable tracks applied sponsorship schema versions
const MigrationsTable = "sponsorship_migrations"

// GetMigrations returns all fiscal sponsorship migrations
func GetMigrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     1,
			Description: "Create fiscal_sponsorships table",
			SQL: `
				CREATE TABLE IF NOT EXISTS fiscal_sponsorships (
					sponsee_id BIGINT NOT NULL,
					sponsor_id BIGINT NOT NULL,
					created_by TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL,
					PRIMARY KEY (sponsee_id, sponsor_id)
				);

				CREATE INDEX idx_fiscal_sponsorships_sponsor ON fiscal_sponsorships(sponsor_id);
			`,
		},
	}
}
