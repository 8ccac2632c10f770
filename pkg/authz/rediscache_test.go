package authz

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantbase/grantbase/pkg/auth"
)

type countingGrantReader struct {
	grants []PermissionGrant
	calls  int
}

func (r *countingGrantReader) ListEffective(ctx context.Context, actorID string, groupIDs []string) ([]PermissionGrant, error) {
	r.calls++
	return r.grants, nil
}

func setupGrantListCache(t *testing.T, source GrantReader) (*GrantListCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewGrantListCache(source, client, time.Minute), mr
}

func TestGrantListCacheReadThrough(t *testing.T) {
	source := &countingGrantReader{grants: []PermissionGrant{{
		ID:                "grant-1",
		GranteeKind:       GranteeIndividual,
		GranteeActorID:    "actor-1",
		ContextEntityKind: EntityChangemaker,
		Target:            IntKey(7),
		Scope:             []EntityKind{EntityChangemaker},
		Verbs:             []Verb{VerbView},
		CreatedBy:         "admin-1",
		CreatedAt:         time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}}}
	cache, _ := setupGrantListCache(t, source)
	ctx := context.Background()

	first, err := cache.ListEffective(ctx, "actor-1", []string{"reviewers"})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, source.calls)

	second, err := cache.ListEffective(ctx, "actor-1", []string{"reviewers"})
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls, "second read should be served from cache")
	assert.Equal(t, first, second)
	assert.Equal(t, IntKey(7), second[0].Target)
}

func TestGrantListCacheKeyedByGroupSet(t *testing.T) {
	source := &countingGrantReader{}
	cache, _ := setupGrantListCache(t, source)
	ctx := context.Background()

	_, err := cache.ListEffective(ctx, "actor-1", []string{"reviewers"})
	require.NoError(t, err)
	_, err = cache.ListEffective(ctx, "actor-1", []string{"reviewers", "ephemeral-1"})
	require.NoError(t, err)

	assert.Equal(t, 2, source.calls, "different group sets must not share entries")
}

func TestGrantListCacheInvalidate(t *testing.T) {
	source := &countingGrantReader{}
	cache, _ := setupGrantListCache(t, source)
	ctx := context.Background()

	_, err := cache.ListEffective(ctx, "actor-1", nil)
	require.NoError(t, err)
	_, err = cache.ListEffective(ctx, "actor-2", nil)
	require.NoError(t, err)
	require.Equal(t, 2, source.calls)

	require.NoError(t, cache.Invalidate(ctx))

	_, err = cache.ListEffective(ctx, "actor-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, source.calls)
}

func TestGrantListCacheCorruptEntryReloads(t *testing.T) {
	source := &countingGrantReader{}
	cache, mr := setupGrantListCache(t, source)
	ctx := context.Background()

	_, err := cache.ListEffective(ctx, "actor-1", nil)
	require.NoError(t, err)
	require.Equal(t, 1, source.calls)

	// Poison the cached entry
	keys := mr.Keys()
	require.Len(t, keys, 1)
	require.NoError(t, mr.Set(keys[0], "not json"))

	_, err = cache.ListEffective(ctx, "actor-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)
}

func TestGrantListCacheFailsOpenOnRedisOutage(t *testing.T) {
	source := &countingGrantReader{}
	cache, mr := setupGrantListCache(t, source)
	mr.Close()

	grants, err := cache.ListEffective(context.Background(), "actor-1", nil)
	require.NoError(t, err)
	assert.Empty(t, grants)
	assert.Equal(t, 1, source.calls)
}

// Mirrors the server's change-hook wiring: both caches clear synchronously
// inside the mutation, list cache first, so a decision made right after a
// mutation returns can never be computed from a stale cached list.
func TestMutationInvalidatesBothCachesBeforeReturning(t *testing.T) {
	source := &countingGrantReader{grants: []PermissionGrant{{
		ID:                "grant-1",
		GranteeKind:       GranteeIndividual,
		GranteeActorID:    "actor-1",
		ContextEntityKind: EntityProposal,
		Target:            IntKey(1),
		Scope:             []EntityKind{EntityProposal},
		Verbs:             []Verb{VerbView},
	}}}
	cache, _ := setupGrantListCache(t, source)
	ctx := context.Background()

	decisions := NewDecisionCache(128, time.Minute)
	resolver := NewResolver(cache, emptyGroups{}, emptyGraph{}, emptyGraph{},
		WithDecisionCache(decisions))
	actor := &auth.Actor{ID: "actor-1"}

	allowed, err := resolver.IsAuthorized(ctx, actor, VerbView, EntityProposal, IntKey(1))
	require.NoError(t, err)
	require.True(t, allowed)

	// The mutation: revoke the grant at the source, then run the hook.
	source.grants = nil
	require.NoError(t, cache.Invalidate(ctx))
	decisions.Invalidate()

	allowed, err = resolver.IsAuthorized(ctx, actor, VerbView, EntityProposal, IntKey(1))
	require.NoError(t, err)
	assert.False(t, allowed, "decision after the mutation must not see the revoked grant")
}

type emptyGroups struct{}

func (emptyGroups) ActiveGroups(context.Context, string, time.Time) ([]string, error) {
	return nil, nil
}

type emptyGraph struct{}

func (emptyGraph) Sponsors(context.Context, int64) ([]int64, error) { return nil, nil }

func (emptyGraph) Collaboratives(context.Context, string) ([]string, error) { return nil, nil }
