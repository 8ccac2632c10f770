package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantbase/grantbase/pkg/auth"
	"github.com/grantbase/grantbase/pkg/authz"
	"github.com/grantbase/grantbase/pkg/collaborative"
	"github.com/grantbase/grantbase/pkg/membership"
	"github.com/grantbase/grantbase/pkg/middleware"
	"github.com/grantbase/grantbase/pkg/sponsorship"
)

// TestAPIAgainstPostgres runs the HTTP surface end to end: token auth,
// the middleware chain, and handlers over a real database.
func TestAPIAgainstPostgres(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	tokenManager := auth.NewTokenManager(db)
	registry := authz.NewRegistry()
	grantStore := authz.NewStore(db, registry)
	membershipStore := membership.NewStore(db)
	sponsorshipStore := sponsorship.NewStore(db)
	collaborativeStore := collaborative.NewStore(db)
	resolver := authz.NewResolver(grantStore, membershipStore, sponsorshipStore, collaborativeStore)

	router := mux.NewRouter()
	router.Use(middleware.NewAuthMiddleware(tokenManager, false).Handler)
	router.Use(middleware.NewPermissionsMiddleware(resolver).Handler)
	authz.NewHandlers(grantStore, resolver, tokenManager).RegisterRoutes(router)
	membership.NewHandlers(membershipStore).RegisterRoutes(router)

	server := httptest.NewServer(router)
	defer server.Close()

	admin := seedActor(t, db, "actor-root", "Root", true)
	alice := seedActor(t, db, "actor-alice", "Alice", false)

	_, adminToken, err := tokenManager.CreateToken(ctx, admin.ID, "integration", nil)
	require.NoError(t, err)
	_, aliceToken, err := tokenManager.CreateToken(ctx, alice.ID, "integration", nil)
	require.NoError(t, err)

	do := func(t *testing.T, method, path, token string, body any) *http.Response {
		t.Helper()
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req, err := http.NewRequest(method, server.URL+path, &buf)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	t.Run("RejectsMissingToken", func(t *testing.T) {
		resp := do(t, http.MethodGet, "/permissionGrants", "", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("NonAdministratorCannotCreateGrants", func(t *testing.T) {
		resp := do(t, http.MethodPost, "/permissionGrants", aliceToken, map[string]any{
			"granteeKind":       "individual",
			"granteeActorId":    alice.ID,
			"contextEntityKind": "changemaker",
			"changemakerId":     7,
			"scope":             []string{"changemaker"},
			"verbs":             []string{"view"},
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	var grantID string
	t.Run("AdministratorCreatesGrant", func(t *testing.T) {
		resp := do(t, http.MethodPost, "/permissionGrants", adminToken, map[string]any{
			"granteeKind":       "individual",
			"granteeActorId":    alice.ID,
			"contextEntityKind": "changemaker",
			"changemakerId":     7,
			"scope":             []string{"changemaker", "proposal"},
			"verbs":             []string{"view", "edit"},
		})
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var grant authz.PermissionGrant
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&grant))
		require.NotEmpty(t, grant.ID)
		grantID = grant.ID
	})

	t.Run("CheckReflectsGrant", func(t *testing.T) {
		resp := do(t, http.MethodPost, "/authorization/check", aliceToken, map[string]any{
			"verb":              "edit",
			"contextEntityKind": "changemaker",
			"changemakerId":     7,
		})
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var check struct {
			Allowed bool `json:"allowed"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&check))
		assert.True(t, check.Allowed)
	})

	t.Run("CheckDeniesUngrantedVerb", func(t *testing.T) {
		resp := do(t, http.MethodPost, "/authorization/check", aliceToken, map[string]any{
			"verb":              "manage",
			"contextEntityKind": "changemaker",
			"changemakerId":     7,
		})
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var check struct {
			Allowed bool `json:"allowed"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&check))
		assert.False(t, check.Allowed)
	})

	t.Run("OnlyAdministratorsCheckOtherActors", func(t *testing.T) {
		resp := do(t, http.MethodPost, "/authorization/check", aliceToken, map[string]any{
			"actorId":           admin.ID,
			"verb":              "view",
			"contextEntityKind": "changemaker",
			"changemakerId":     7,
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp = do(t, http.MethodPost, "/authorization/check", adminToken, map[string]any{
			"actorId":           alice.ID,
			"verb":              "view",
			"contextEntityKind": "changemaker",
			"changemakerId":     7,
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("DeleteGrantRevokesAccess", func(t *testing.T) {
		resp := do(t, http.MethodDelete, fmt.Sprintf("/permissionGrants/%s", grantID), adminToken, nil)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = do(t, http.MethodPost, "/authorization/check", aliceToken, map[string]any{
			"verb":              "view",
			"contextEntityKind": "changemaker",
			"changemakerId":     7,
		})
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var check struct {
			Allowed bool `json:"allowed"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&check))
		assert.False(t, check.Allowed)
	})
}
