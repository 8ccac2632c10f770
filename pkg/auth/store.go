package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/grantbase/grantbase/pkg/async"
	"github.com/grantbase/grantbase/pkg/errs"
)

// TokenManager manages API token lifecycle against the backing store
type TokenManager struct {
	db        *sql.DB
	generator *TokenGenerator
	now       func() time.Time
}

// NewTokenManager creates a new token manager
func NewTokenManager(db *sql.DB) *TokenManager {
	return &TokenManager{
		db:        db,
		generator: NewTokenGenerator(),
		now:       time.Now,
	}
}

// CreateToken creates a new API token for an actor. The plaintext token is
// returned once and never stored.
func (tm *TokenManager) CreateToken(ctx context.Context, actorID, name string, expiresAt *time.Time) (*APIToken, string, error) {
	token, tokenHash, tokenPrefix, err := tm.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	apiToken := &APIToken{
		ActorID:     actorID,
		TokenHash:   tokenHash,
		TokenPrefix: tokenPrefix,
		Name:        name,
		ExpiresAt:   expiresAt,
		CreatedAt:   tm.now(),
	}

	query := `
		INSERT INTO api_tokens (actor_id, token_hash, token_prefix, name, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err = tm.db.QueryRowContext(ctx, query,
		apiToken.ActorID,
		apiToken.TokenHash,
		apiToken.TokenPrefix,
		apiToken.Name,
		apiToken.ExpiresAt,
		apiToken.CreatedAt,
	).Scan(&apiToken.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to store token: %w", err)
	}

	return apiToken, token, nil
}

// ValidateToken validates a plaintext token and resolves the calling actor,
// including the actor's durable group memberships.
func (tm *TokenManager) ValidateToken(ctx context.Context, token string) (*AuthContext, error) {
	if err := tm.generator.ValidateTokenFormat(token); err != nil {
		return nil, errs.NewUnauthorized("invalid token format")
	}

	tokenHash := tm.generator.HashToken(token)

	query := `
		SELECT t.id, t.actor_id, t.token_prefix, t.name, t.expires_at, t.created_at,
		       a.name, a.is_administrator, a.created_at
		FROM api_tokens t
		JOIN actors a ON a.id = t.actor_id
		WHERE t.token_hash = $1 AND t.revoked_at IS NULL
	`

	var apiToken APIToken
	var actor Actor
	var expiresAt sql.NullTime
	err := tm.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&apiToken.ID,
		&apiToken.ActorID,
		&apiToken.TokenPrefix,
		&apiToken.Name,
		&expiresAt,
		&apiToken.CreatedAt,
		&actor.Name,
		&actor.IsAdministrator,
		&actor.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errs.NewUnauthorized("invalid or revoked token")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	if expiresAt.Valid {
		ea := expiresAt.Time
		apiToken.ExpiresAt = &ea
		if !tm.now().Before(ea) {
			return nil, errs.NewUnauthorized("token expired")
		}
	}

	apiToken.TokenHash = tokenHash
	actor.ID = apiToken.ActorID

	groups, err := tm.actorGroups(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	actor.Groups = groups

	// Best effort and off the request path; last_used_at is informational
	// only. Background context so response completion doesn't abort it.
	async.SafeGo(context.Background(), 2*time.Second, "token last-used stamp", func(ctx context.Context) error {
		_, err := tm.db.ExecContext(ctx,
			`UPDATE api_tokens SET last_used_at = $1 WHERE id = $2`,
			tm.now(), apiToken.ID,
		)
		return err
	})

	return &AuthContext{Actor: &actor, Token: &apiToken}, nil
}

// RevokeToken revokes a token by id
func (tm *TokenManager) RevokeToken(ctx context.Context, tokenID int64) error {
	result, err := tm.db.ExecContext(ctx,
		`UPDATE api_tokens SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`,
		tm.now(), tokenID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check revocation: %w", err)
	}
	if affected == 0 {
		return errs.NewNotFound("api_token", fmt.Sprintf("%d", tokenID))
	}
	return nil
}

// GetActor loads an actor with its durable group memberships
func (tm *TokenManager) GetActor(ctx context.Context, actorID string) (*Actor, error) {
	var actor Actor
	err := tm.db.QueryRowContext(ctx,
		`SELECT id, name, is_administrator, created_at FROM actors WHERE id = $1`,
		actorID,
	).Scan(&actor.ID, &actor.Name, &actor.IsAdministrator, &actor.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.NewNotFound("actor", actorID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get actor: %w", err)
	}

	groups, err := tm.actorGroups(ctx, actorID)
	if err != nil {
		return nil, err
	}
	actor.Groups = groups
	return &actor, nil
}

func (tm *TokenManager) actorGroups(ctx context.Context, actorID string) ([]string, error) {
	rows, err := tm.db.QueryContext(ctx,
		`SELECT group_id FROM actor_groups WHERE actor_id = $1 ORDER BY group_id ASC`,
		actorID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get actor groups: %w", err)
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
