package collaborative

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/grantbase/grantbase/pkg/errs"
)

var shortCodePattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// Store handles collaborative, invitation, and membership persistence
type Store struct {
	db       *sql.DB
	onChange func()
	now      func() time.Time
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithChangeHook registers a function invoked after every mutation that can
// affect resolution
func WithChangeHook(hook func()) StoreOption {
	return func(s *Store) { s.onChange = hook }
}

// WithNow overrides the store's time source
func WithNow(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a new collaborative store
func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateCollaborative flags a funder short code as a collaborative
func (s *Store) CreateCollaborative(ctx context.Context, shortCode, name, createdBy string) (*Collaborative, error) {
	if !shortCodePattern.MatchString(shortCode) {
		return nil, errs.NewValidation("shortCode must match " + shortCodePattern.String())
	}

	c := &Collaborative{
		ShortCode: shortCode,
		Name:      name,
		CreatedBy: createdBy,
		CreatedAt: s.now(),
	}

	query := `
		INSERT INTO funder_collaboratives (short_code, name, created_by, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (short_code) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query, c.ShortCode, c.Name, c.CreatedBy, c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create collaborative: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check create result: %w", err)
	}
	if affected == 0 {
		return nil, errs.NewConflict("collaborative " + shortCode + " already exists")
	}

	return c, nil
}

// GetCollaborative retrieves a collaborative by short code
func (s *Store) GetCollaborative(ctx context.Context, shortCode string) (*Collaborative, error) {
	var c Collaborative
	err := s.db.QueryRowContext(ctx,
		`SELECT short_code, name, created_by, created_at FROM funder_collaboratives WHERE short_code = $1`,
		shortCode,
	).Scan(&c.ShortCode, &c.Name, &c.CreatedBy, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.NewNotFound("funder_collaborative", shortCode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collaborative: %w", err)
	}
	return &c, nil
}

// ListCollaboratives returns one page of collaboratives plus the total count
func (s *Store) ListCollaboratives(ctx context.Context, limit, offset int) ([]Collaborative, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM funder_collaboratives`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count collaboratives: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT short_code, name, created_by, created_at FROM funder_collaboratives
		 ORDER BY short_code LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list collaboratives: %w", err)
	}
	defer rows.Close()

	var collaboratives []Collaborative
	for rows.Next() {
		var c Collaborative
		if err := rows.Scan(&c.ShortCode, &c.Name, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan collaborative: %w", err)
		}
		collaboratives = append(collaboratives, c)
	}
	return collaboratives, total, rows.Err()
}

// Invite creates a pending invitation for a funder to join a collaborative
func (s *Store) Invite(ctx context.Context, collaborativeShortCode, funderShortCode, createdBy string) (*Invitation, error) {
	if !shortCodePattern.MatchString(funderShortCode) {
		return nil, errs.NewValidation("funderShortCode must match " + shortCodePattern.String())
	}
	if funderShortCode == collaborativeShortCode {
		return nil, errs.NewValidation("a collaborative cannot invite itself")
	}
	if _, err := s.GetCollaborative(ctx, collaborativeShortCode); err != nil {
		return nil, err
	}

	var member int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM collaborative_members WHERE collaborative_short_code = $1 AND funder_short_code = $2`,
		collaborativeShortCode, funderShortCode,
	).Scan(&member)
	if err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if member > 0 {
		return nil, errs.NewConflict(funderShortCode + " is already a member of " + collaborativeShortCode)
	}

	inv := &Invitation{
		ID:                     uuid.NewString(),
		CollaborativeShortCode: collaborativeShortCode,
		FunderShortCode:        funderShortCode,
		Status:                 StatusPending,
		CreatedBy:              createdBy,
		CreatedAt:              s.now(),
	}

	// The partial unique index on pending rows turns a duplicate pending
	// invitation into a no-op insert
	query := `
		INSERT INTO collaborative_invitations (id, collaborative_short_code, funder_short_code, status, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (collaborative_short_code, funder_short_code) WHERE status = 'pending' DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query,
		inv.ID, inv.CollaborativeShortCode, inv.FunderShortCode, inv.Status, inv.CreatedBy, inv.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check invitation result: %w", err)
	}
	if affected == 0 {
		return nil, errs.NewConflict("a pending invitation for " + funderShortCode + " already exists")
	}

	return inv, nil
}

// ListInvitations returns a collaborative's invitations, newest first
func (s *Store) ListInvitations(ctx context.Context, collaborativeShortCode string) ([]Invitation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, collaborative_short_code, funder_short_code, status, created_by, created_at, responded_at
		 FROM collaborative_invitations WHERE collaborative_short_code = $1
		 ORDER BY created_at DESC, id ASC`,
		collaborativeShortCode,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []Invitation
	for rows.Next() {
		var inv Invitation
		var respondedAt sql.NullTime
		if err := rows.Scan(&inv.ID, &inv.CollaborativeShortCode, &inv.FunderShortCode, &inv.Status,
			&inv.CreatedBy, &inv.CreatedAt, &respondedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		if respondedAt.Valid {
			inv.RespondedAt = &respondedAt.Time
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// Respond moves a pending invitation to accepted or rejected. Accepting
// also creates the membership edge; the two writes share one transaction so
// an accepted invitation without its edge can never be observed.
func (s *Store) Respond(ctx context.Context, collaborativeShortCode, funderShortCode string, status InvitationStatus) (*Invitation, error) {
	if !ValidResponse(status) {
		return nil, errs.NewValidation("status must be accepted or rejected")
	}

	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var inv Invitation
	var respondedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		UPDATE collaborative_invitations
		SET status = $1, responded_at = $2
		WHERE collaborative_short_code = $3 AND funder_short_code = $4 AND status = 'pending'
		RETURNING id, collaborative_short_code, funder_short_code, status, created_by, created_at, responded_at
	`, status, now, collaborativeShortCode, funderShortCode,
	).Scan(&inv.ID, &inv.CollaborativeShortCode, &inv.FunderShortCode, &inv.Status,
		&inv.CreatedBy, &inv.CreatedAt, &respondedAt)
	if err == sql.ErrNoRows {
		return nil, classifyMissingPending(ctx, tx, collaborativeShortCode, funderShortCode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update invitation: %w", err)
	}
	if respondedAt.Valid {
		inv.RespondedAt = &respondedAt.Time
	}

	if status == StatusAccepted {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO collaborative_members (collaborative_short_code, funder_short_code, joined_at)
			VALUES ($1, $2, $3)
		`, collaborativeShortCode, funderShortCode, now)
		if err != nil {
			return nil, fmt.Errorf("failed to create membership: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit response: %w", err)
	}

	s.changed()
	return &inv, nil
}

// classifyMissingPending distinguishes "never invited" from "already
// responded" for a failed Respond. Runs inside the caller's transaction.
func classifyMissingPending(ctx context.Context, tx *sql.Tx, collaborativeShortCode, funderShortCode string) error {
	var count int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM collaborative_invitations
		 WHERE collaborative_short_code = $1 AND funder_short_code = $2`,
		collaborativeShortCode, funderShortCode,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to inspect invitations: %w", err)
	}
	if count == 0 {
		return errs.NewNotFound("collaborative_invitation", collaborativeShortCode+"/"+funderShortCode)
	}
	return errs.NewConflict("invitation for " + funderShortCode + " is already in a terminal state")
}

// ListMembers returns a collaborative's members
func (s *Store) ListMembers(ctx context.Context, collaborativeShortCode string) ([]Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT collaborative_short_code, funder_short_code, joined_at
		 FROM collaborative_members WHERE collaborative_short_code = $1
		 ORDER BY funder_short_code`,
		collaborativeShortCode,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.CollaborativeShortCode, &m.FunderShortCode, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// RemoveMember deletes a membership edge. The invitation history stays.
func (s *Store) RemoveMember(ctx context.Context, collaborativeShortCode, funderShortCode string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM collaborative_members WHERE collaborative_short_code = $1 AND funder_short_code = $2`,
		collaborativeShortCode, funderShortCode,
	)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check remove result: %w", err)
	}
	if affected == 0 {
		return errs.NewNotFound("collaborative_member", collaborativeShortCode+"/"+funderShortCode)
	}

	s.changed()
	return nil
}

// Collaboratives returns the collaboratives a funder is a member of.
// Satisfies the resolver's collaborative source.
func (s *Store) Collaboratives(ctx context.Context, funderShortCode string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT collaborative_short_code FROM collaborative_members
		 WHERE funder_short_code = $1 ORDER BY collaborative_short_code`,
		funderShortCode,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query collaboratives: %w", err)
	}
	defer rows.Close()

	var collaboratives []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan collaborative: %w", err)
		}
		collaboratives = append(collaboratives, code)
	}
	return collaboratives, rows.Err()
}

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}
