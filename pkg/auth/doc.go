// Package auth provides the identity layer: actor records, API tokens, and
// token validation.
//
// # Overview
//
// An Actor is the resolved identity of a caller: a stable identifier, an
// administrator flag, and the set of groups the actor durably belongs to.
// Time-bounded ephemeral memberships are not part of the identity context;
// the authorization resolver reads those separately at decision time.
//
// # Tokens
//
// API tokens use the format gb_<base64url(32 random bytes)>. Only the SHA-256
// hash is stored; the plaintext is returned once at creation:
//
//	tm := auth.NewTokenManager(db)
//	record, plaintext, err := tm.CreateToken(ctx, "actor-1", "ci token", nil)
//
// Validation resolves the full identity context in one query plus a group
// lookup:
//
//	authCtx, err := tm.ValidateToken(ctx, bearerToken)
//	if authCtx.IsAdministrator() { ... }
//
// # Related Packages
//
//   - pkg/middleware: extracts bearer tokens and attaches the AuthContext
//   - pkg/authz: consumes Actor as the subject of authorization decisions
package auth
