package sponsorship

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/grantbase/grantbase/pkg/errs"
)

// Edge records that sponsee is fiscally sponsored by sponsor. Both ends are
// changemaker ids. Permission flows sponsee to sponsor: whoever can act on
// the sponsor can act on the sponsee, never the other way.
type Edge struct {
	SponseeID int64     `json:"sponseeChangemakerId"`
	SponsorID int64     `json:"sponsorChangemakerId"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store handles fiscal sponsorship edge persistence
type Store struct {
	db       *sql.DB
	onChange func()
	now      func() time.Time
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithChangeHook registers a function invoked after every mutation
func WithChangeHook(hook func()) StoreOption {
	return func(s *Store) { s.onChange = hook }
}

// WithNow overrides the store's time source
func WithNow(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a new sponsorship store
func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert records a sponsorship edge. Idempotent: re-adding an existing edge
// succeeds and keeps the original record.
func (s *Store) Upsert(ctx context.Context, sponseeID, sponsorID int64, createdBy string) (*Edge, error) {
	if sponseeID <= 0 || sponsorID <= 0 {
		return nil, errs.NewValidation("changemaker ids must be positive")
	}
	if sponseeID == sponsorID {
		return nil, errs.NewValidation("a changemaker cannot sponsor itself")
	}

	edge := &Edge{
		SponseeID: sponseeID,
		SponsorID: sponsorID,
		CreatedBy: createdBy,
		CreatedAt: s.now(),
	}

	query := `
		INSERT INTO fiscal_sponsorships (sponsee_id, sponsor_id, created_by, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (sponsee_id, sponsor_id) DO UPDATE SET sponsee_id = excluded.sponsee_id
		RETURNING created_by, created_at
	`
	err := s.db.QueryRowContext(ctx, query,
		edge.SponseeID, edge.SponsorID, edge.CreatedBy, edge.CreatedAt,
	).Scan(&edge.CreatedBy, &edge.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert sponsorship: %w", err)
	}

	s.changed()
	return edge, nil
}

// Remove deletes a sponsorship edge and returns the removed record
func (s *Store) Remove(ctx context.Context, sponseeID, sponsorID int64) (*Edge, error) {
	query := `
		DELETE FROM fiscal_sponsorships WHERE sponsee_id = $1 AND sponsor_id = $2
		RETURNING sponsee_id, sponsor_id, created_by, created_at
	`
	var edge Edge
	err := s.db.QueryRowContext(ctx, query, sponseeID, sponsorID).
		Scan(&edge.SponseeID, &edge.SponsorID, &edge.CreatedBy, &edge.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.NewNotFound("fiscal_sponsorship", fmt.Sprintf("%d/%d", sponseeID, sponsorID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to remove sponsorship: %w", err)
	}

	s.changed()
	return &edge, nil
}

// Sponsors returns the sponsor ids of a changemaker. Satisfies the
// resolver's sponsor source. An unknown changemaker has no sponsors;
// that is an empty result, not an error.
func (s *Store) Sponsors(ctx context.Context, changemakerID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sponsor_id FROM fiscal_sponsorships WHERE sponsee_id = $1 ORDER BY sponsor_id`,
		changemakerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sponsors: %w", err)
	}
	defer rows.Close()

	var sponsors []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan sponsor: %w", err)
		}
		sponsors = append(sponsors, id)
	}
	return sponsors, rows.Err()
}

// ListEdges returns the full edge records for a sponsee
func (s *Store) ListEdges(ctx context.Context, sponseeID int64) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sponsee_id, sponsor_id, created_by, created_at
		 FROM fiscal_sponsorships WHERE sponsee_id = $1 ORDER BY sponsor_id`,
		sponseeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sponsorships: %w", err)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.SponseeID, &e.SponsorID, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sponsorship: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}
