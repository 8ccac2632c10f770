package authz

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/grantbase/grantbase/pkg/errs"
)

// Store handles permission grant persistence. Grants are immutable apart
// from the scope/verbs-preserving upsert used when a call site re-issues
// the full record for an existing (grantee, entity, target) tuple.
type Store struct {
	db       *sql.DB
	registry *Registry
	onChange func()
	now      func() time.Time
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithChangeHook registers a function invoked after every mutation,
// used to invalidate decision and list caches
func WithChangeHook(hook func()) StoreOption {
	return func(s *Store) { s.onChange = hook }
}

// WithNow overrides the store's time source
func WithNow(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a new grant store
func NewStore(db *sql.DB, registry *Registry, opts ...StoreOption) *Store {
	s := &Store{
		db:       db,
		registry: registry,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates a raw creation request against the schema registry and
// persists it. Re-creating an existing (grantee, entity, target) tuple
// replaces its scope and verbs rather than erroring.
func (s *Store) Create(ctx context.Context, raw []byte, createdBy string) (*PermissionGrant, error) {
	req, err := s.registry.ValidateGrantRequest(raw)
	if err != nil {
		return nil, err
	}
	return s.CreateValidated(ctx, req, createdBy)
}

// CreateValidated persists an already-validated creation request
func (s *Store) CreateValidated(ctx context.Context, req *CreateGrantRequest, createdBy string) (*PermissionGrant, error) {
	scopeJSON, err := json.Marshal(req.Scope)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scope: %w", err)
	}
	verbsJSON, err := json.Marshal(req.Verbs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal verbs: %w", err)
	}

	grant := &PermissionGrant{
		ID:                uuid.NewString(),
		GranteeKind:       req.GranteeKind,
		GranteeActorID:    req.GranteeActorID,
		GranteeGroupID:    req.GranteeGroupID,
		ContextEntityKind: req.ContextEntityKind,
		Target:            req.Target,
		Scope:             req.Scope,
		Verbs:             req.Verbs,
		CreatedBy:         createdBy,
		CreatedAt:         s.now(),
	}

	query := `
		INSERT INTO permission_grants
			(id, grantee_kind, grantee_actor_id, grantee_group_id, context_entity_kind,
			 target_id, target_short_code, scope, verbs, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (grantee_kind, grantee_actor_id, grantee_group_id, context_entity_kind, target_id, target_short_code)
		DO UPDATE SET scope = excluded.scope, verbs = excluded.verbs
		RETURNING id, created_by, created_at
	`
	err = s.db.QueryRowContext(ctx, query,
		grant.ID,
		grant.GranteeKind,
		grant.GranteeActorID,
		grant.GranteeGroupID,
		grant.ContextEntityKind,
		grant.Target.ID,
		grant.Target.ShortCode,
		string(scopeJSON),
		string(verbsJSON),
		grant.CreatedBy,
		grant.CreatedAt,
	).Scan(&grant.ID, &grant.CreatedBy, &grant.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create grant: %w", err)
	}

	s.changed()
	return grant, nil
}

const grantColumns = `id, grantee_kind, grantee_actor_id, grantee_group_id, context_entity_kind,
	target_id, target_short_code, scope, verbs, created_by, created_at`

// Get retrieves a grant by id
func (s *Store) Get(ctx context.Context, id string) (*PermissionGrant, error) {
	query := `SELECT ` + grantColumns + ` FROM permission_grants WHERE id = $1`

	grant, err := scanGrant(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errs.NewNotFound("permission_grant", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}
	return grant, nil
}

// Delete removes a grant by id and returns the removed record. Hard delete;
// there is no soft-delete or undo.
func (s *Store) Delete(ctx context.Context, id string) (*PermissionGrant, error) {
	query := `DELETE FROM permission_grants WHERE id = $1 RETURNING ` + grantColumns

	grant, err := scanGrant(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errs.NewNotFound("permission_grant", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete grant: %w", err)
	}

	s.changed()
	return grant, nil
}

// Filter narrows a grant listing. Zero values mean no filtering on that
// dimension.
type Filter struct {
	GranteeActorID    string
	GranteeGroupID    string
	ContextEntityKind EntityKind
}

// List returns one page of grants matching the filter plus the total count
// of matches
func (s *Store) List(ctx context.Context, filter Filter, limit, offset int) ([]PermissionGrant, int, error) {
	where, args := filterClauses(filter)

	var total int
	countQuery := `SELECT COUNT(*) FROM permission_grants` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count grants: %w", err)
	}

	pageQuery := fmt.Sprintf(
		`SELECT `+grantColumns+` FROM permission_grants%s ORDER BY created_at DESC, id ASC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2,
	)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, pageQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	var grants []PermissionGrant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, *grant)
	}
	return grants, total, rows.Err()
}

// ListEffective returns the actor's individual grants plus group grants for
// any of the given groups. Consumed by the resolver's snapshot step.
func (s *Store) ListEffective(ctx context.Context, actorID string, groupIDs []string) ([]PermissionGrant, error) {
	query := `SELECT ` + grantColumns + ` FROM permission_grants
		WHERE (grantee_kind = $1 AND grantee_actor_id = $2)`
	args := []interface{}{GranteeIndividual, actorID}

	if len(groupIDs) > 0 {
		placeholders := make([]string, len(groupIDs))
		for i, g := range groupIDs {
			args = append(args, g)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		query += fmt.Sprintf(` OR (grantee_kind = '%s' AND grantee_group_id IN (%s))`,
			GranteeGroup, strings.Join(placeholders, ", "))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list effective grants: %w", err)
	}
	defer rows.Close()

	var grants []PermissionGrant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, *grant)
	}
	return grants, rows.Err()
}

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

func filterClauses(filter Filter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if filter.GranteeActorID != "" {
		args = append(args, filter.GranteeActorID)
		clauses = append(clauses, fmt.Sprintf("grantee_actor_id = $%d", len(args)))
	}
	if filter.GranteeGroupID != "" {
		args = append(args, filter.GranteeGroupID)
		clauses = append(clauses, fmt.Sprintf("grantee_group_id = $%d", len(args)))
	}
	if filter.ContextEntityKind != "" {
		args = append(args, filter.ContextEntityKind)
		clauses = append(clauses, fmt.Sprintf("context_entity_kind = $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// scanGrant scans a grant from a database row
func scanGrant(scanner interface {
	Scan(dest ...interface{}) error
}) (*PermissionGrant, error) {
	var grant PermissionGrant
	var scopeJSON, verbsJSON string

	err := scanner.Scan(
		&grant.ID,
		&grant.GranteeKind,
		&grant.GranteeActorID,
		&grant.GranteeGroupID,
		&grant.ContextEntityKind,
		&grant.Target.ID,
		&grant.Target.ShortCode,
		&scopeJSON,
		&verbsJSON,
		&grant.CreatedBy,
		&grant.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(scopeJSON), &grant.Scope); err != nil {
		return nil, fmt.Errorf("corrupt scope for grant %s: %w", grant.ID, err)
	}
	if err := json.Unmarshal([]byte(verbsJSON), &grant.Verbs); err != nil {
		return nil, fmt.Errorf("corrupt verbs for grant %s: %w", grant.ID, err)
	}

	return &grant, nil
}
