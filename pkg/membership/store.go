package membership

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/grantbase/grantbase/pkg/errs"
)

// EphemeralMembership places an actor in a group until notAfter. Expiry is
// enforced at read time; rows are never mutated, only created and deleted.
type EphemeralMembership struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actorId"`
	GroupID   string    `json:"groupId"`
	NotAfter  time.Time `json:"notAfter"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// Active reports whether the membership is unexpired as of now
func (m *EphemeralMembership) Active(now time.Time) bool {
	return m.NotAfter.After(now)
}

// Store handles ephemeral membership persistence
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

// NewStore creates a new membership store
func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create adds an ephemeral membership. Re-adding an actor to a group it is
// already in extends or shortens the window to the new notAfter.
func (s *Store) Create(ctx context.Context, actorID, groupID string, notAfter time.Time, createdBy string) (*EphemeralMembership, error) {
	if actorID == "" {
		return nil, errs.NewValidation("actorId must be non-empty")
	}
	if groupID == "" {
		return nil, errs.NewValidation("groupId must be non-empty")
	}
	now := s.now()
	if !notAfter.After(now) {
		return nil, errs.NewValidation("notAfter must be in the future")
	}

	m := &EphemeralMembership{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		GroupID:   groupID,
		NotAfter:  notAfter,
		CreatedBy: createdBy,
		CreatedAt: now,
	}

	query := `
		INSERT INTO ephemeral_memberships (id, actor_id, group_id, not_after, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (actor_id, group_id)
		DO UPDATE SET not_after = excluded.not_after
		RETURNING id, created_by, created_at
	`
	err := s.db.QueryRowContext(ctx, query,
		m.ID, m.ActorID, m.GroupID, m.NotAfter, m.CreatedBy, m.CreatedAt,
	).Scan(&m.ID, &m.CreatedBy, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create membership: %w", err)
	}

	s.changed()
	return m, nil
}

// Get retrieves a membership by id, expired or not
func (s *Store) Get(ctx context.Context, id string) (*EphemeralMembership, error) {
	query := `SELECT id, actor_id, group_id, not_after, created_by, created_at
		FROM ephemeral_memberships WHERE id = $1`

	var m EphemeralMembership
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID, &m.ActorID, &m.GroupID, &m.NotAfter, &m.CreatedBy, &m.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errs.NewNotFound("ephemeral_membership", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &m, nil
}

// List returns memberships, optionally filtered by actor. Expired rows are
// included; they are storage, not access.
func (s *Store) List(ctx context.Context, actorID string, limit, offset int) ([]EphemeralMembership, int, error) {
	where := ""
	args := []interface{}{}
	if actorID != "" {
		where = " WHERE actor_id = $1"
		args = append(args, actorID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ephemeral_memberships`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count memberships: %w", err)
	}

	query := fmt.Sprintf(`SELECT id, actor_id, group_id, not_after, created_by, created_at
		FROM ephemeral_memberships%s ORDER BY not_after DESC, id ASC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []EphemeralMembership
	for rows.Next() {
		var m EphemeralMembership
		if err := rows.Scan(&m.ID, &m.ActorID, &m.GroupID, &m.NotAfter, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	return memberships, total, rows.Err()
}

// Delete hard-deletes a membership row. This is hygiene, not revocation:
// resolution already ignores expired rows, and deleting an active row does
// revoke it, so the change hook fires either way.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM ephemeral_memberships WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return errs.NewNotFound("ephemeral_membership", id)
	}

	s.changed()
	return nil
}

// ActiveGroups returns the distinct groups the actor belongs to as of now.
// Satisfies the resolver's ephemeral group source.
func (s *Store) ActiveGroups(ctx context.Context, actorID string, now time.Time) ([]string, error) {
	query := `SELECT DISTINCT group_id FROM ephemeral_memberships
		WHERE actor_id = $1 AND not_after > $2 ORDER BY group_id`

	rows, err := s.db.QueryContext(ctx, query, actorID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query active groups: %w", err)
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// DeleteExpired removes rows whose window has passed and returns how many
// went. Called by the sweeper; does not fire the change hook because expired
// rows are already invisible to resolution.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM ephemeral_memberships WHERE not_after <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired memberships: %w", err)
	}
	return result.RowsAffected()
}

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}
