package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantbase/grantbase/pkg/auth"
	"github.com/grantbase/grantbase/pkg/contextkeys"
)

// fakeSources backs a resolver with in-memory data for every read interface
type fakeSources struct {
	grants         []PermissionGrant
	ephemeral      map[string][]string // actorID -> active group ids
	sponsors       map[int64][]int64
	collaboratives map[string][]string

	grantsErr    error
	ephemeralErr error
	sponsorsErr  error
	collabErr    error

	sponsorCalls int
	grantCalls   int
}

func (f *fakeSources) ListEffective(_ context.Context, actorID string, groupIDs []string) ([]PermissionGrant, error) {
	f.grantCalls++
	if f.grantsErr != nil {
		return nil, f.grantsErr
	}
	var out []PermissionGrant
	for _, g := range f.grants {
		if g.GranteeKind == GranteeIndividual && g.GranteeActorID == actorID {
			out = append(out, g)
			continue
		}
		if g.GranteeKind == GranteeGroup && containsString(groupIDs, g.GranteeGroupID) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeSources) ActiveGroups(_ context.Context, actorID string, _ time.Time) ([]string, error) {
	if f.ephemeralErr != nil {
		return nil, f.ephemeralErr
	}
	return f.ephemeral[actorID], nil
}

func (f *fakeSources) Sponsors(_ context.Context, changemakerID int64) ([]int64, error) {
	f.sponsorCalls++
	if f.sponsorsErr != nil {
		return nil, f.sponsorsErr
	}
	return f.sponsors[changemakerID], nil
}

func (f *fakeSources) Collaboratives(_ context.Context, funderShortCode string) ([]string, error) {
	if f.collabErr != nil {
		return nil, f.collabErr
	}
	return f.collaboratives[funderShortCode], nil
}

func newTestResolver(f *fakeSources, opts ...ResolverOption) *Resolver {
	return NewResolver(f, f, f, f, opts...)
}

func individualGrant(actorID string, kind EntityKind, target TargetKey, verbs ...Verb) PermissionGrant {
	return PermissionGrant{
		GranteeKind:       GranteeIndividual,
		GranteeActorID:    actorID,
		ContextEntityKind: kind,
		Target:            target,
		Scope:             []EntityKind{kind},
		Verbs:             verbs,
	}
}

func groupGrant(groupID string, kind EntityKind, target TargetKey, verbs ...Verb) PermissionGrant {
	return PermissionGrant{
		GranteeKind:       GranteeGroup,
		GranteeGroupID:    groupID,
		ContextEntityKind: kind,
		Target:            target,
		Scope:             []EntityKind{kind},
		Verbs:             verbs,
	}
}

func testActor(id string, groups ...string) *auth.Actor {
	return &auth.Actor{ID: id, Groups: groups}
}

func TestIsAuthorizedNilActorDenied(t *testing.T) {
	resolver := newTestResolver(&fakeSources{})

	allowed, err := resolver.IsAuthorized(context.Background(), nil, VerbView, EntityProposal, IntKey(1))
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestIsAuthorizedAdministratorBypass(t *testing.T) {
	// No grants, broken sources: the administrator path must not touch them
	f := &fakeSources{
		grantsErr:    errors.New("db down"),
		ephemeralErr: errors.New("db down"),
	}
	resolver := newTestResolver(f)

	admin := &auth.Actor{ID: "root", IsAdministrator: true}
	allowed, err := resolver.IsAuthorized(context.Background(), admin, VerbManage, EntityFunder, CodeKey("acme"))
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestIsAuthorizedDirectGrant(t *testing.T) {
	f := &fakeSources{
		grants: []PermissionGrant{
			individualGrant("actor-1", EntityProposal, IntKey(10), VerbView, VerbEdit),
		},
	}
	resolver := newTestResolver(f)

	allowed, err := resolver.IsAuthorized(context.Background(), testActor("actor-1"), VerbEdit, EntityProposal, IntKey(10))
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = resolver.IsAuthorized(context.Background(), testActor("actor-1"), VerbDelete, EntityProposal, IntKey(10))
	require.NoError(t, err)
	assert.False(t, allowed, "verb not in grant")

	allowed, err = resolver.IsAuthorized(context.Background(), testActor("actor-2"), VerbView, EntityProposal, IntKey(10))
	require.NoError(t, err)
	assert.False(t, allowed, "grant belongs to a different actor")
}

func TestIsAuthorizedDurableGroupGrant(t *testing.T) {
	f := &fakeSources{
		grants: []PermissionGrant{
			groupGrant("reviewers", EntityProposal, IntKey(10), VerbView),
		},
	}
	resolver := newTestResolver(f)

	allowed, err := resolver.IsAuthorized(context.Background(), testActor("actor-1", "reviewers"), VerbView, EntityProposal, IntKey(10))
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = resolver.IsAuthorized(context.Background(), testActor("actor-2"), VerbView, EntityProposal, IntKey(10))
	require.NoError(t, err)
	assert.False(t, allowed, "actor is not in the group")
}

func TestIsAuthorizedEphemeralGroupGrant(t *testing.T) {
	f := &fakeSources{
		grants: []PermissionGrant{
			groupGrant("audit-2026", EntityBulkUpload, IntKey(3), VerbView),
		},
		ephemeral: map[string][]string{
			"actor-1": {"audit-2026"},
		},
	}
	resolver := newTestResolver(f)

	allowed, err := resolver.IsAuthorized(context.Background(), testActor("actor-1"), VerbView, EntityBulkUpload, IntKey(3))
	require.NoError(t, err)
	assert.True(t, allowed)

	// actor-2 has no active membership in the group
	allowed, err = resolver.IsAuthorized(context.Background(), testActor("actor-2"), VerbView, EntityBulkUpload, IntKey(3))
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestIsAuthorizedSponsorInheritance(t *testing.T) {
	// actor-1 may view changemaker 100; changemaker 200 is fiscally
	// sponsored by 100, so the permission extends to 200
	f := &fakeSources{
		grants: []PermissionGrant{
			individualGrant("actor-1", EntityChangemaker, IntKey(100), VerbView),
		},
		sponsors: map[int64][]int64{
			200: {100},
		},
	}
	resolver := newTestResolver(f)

	allowed, err := resolver.IsAuthorized(context.Background(), testActor("actor-1"), VerbView, EntityChangemaker, IntKey(200))
	require.NoError(t, err)
	assert.True(t, allowed)

	// Inheritance runs sponsee to sponsor only
	f2 := &fakeSources{
		grants: []PermissionGrant{
			individualGrant("actor-1", EntityChangemaker, IntKey(200), VerbView),
		},
		sponsors: map[int64][]int64{
			200: {100},
		},
	}
	resolver2 := newTestResolver(f2)
	allowed, err = resolver2.IsAuthorized(context.Background(), testActor("actor-1"), VerbView, EntityChangemaker, IntKey(100))
	require.NoError(t, err)
	assert.False(t, allowed, "sponsor must not inherit from sponsee")
}

func TestIsAuthorizedSponsorChain(t *testing.T) {
	f := &fakeSources{
		grants: []PermissionGrant{
			individualGrant("actor-1", EntityChangemaker, IntKey(1), VerbEdit),
		},
		sponsors: map[int64][]int64{
			3: {2},
			2: {1},
		},
	}
	resolver := newTestResolver(f)

	allowed, err := resolver.IsAuthorized(context.Background(), testActor("actor-1"), VerbEdit, EntityChangemaker, IntKey(3))
	require.NoError(t, err)
	assert.True(t, allowed, "permission flows through multi-hop sponsorship")
}

func TestIsAuthorizedSponsorCycleTerminates(t *testing.T) {
	f := &fakeSources{
		sponsors: map[int64][]int64{
			1: {2},
			2: {1},
		},
	}
	resolver := newTestResolver(f)

	allowed, err := resolver.IsAuthorized(context.Background(), testActor("actor-1"), VerbView, EntityChangemaker, IntKey(1))
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.LessOrEqual(t, f.sponsorCalls, 3, "each node visited at most once")
}

func TestIsAuthorizedCollaborativeInheritance(t *testing.T) {
	f := &fakeSources{
		grants: []PermissionGrant{
			individualGrant("actor-1", EntityFunder, CodeKey("mega-collab"), VerbManage),
		},
		collaboratives: map[string][]string{
			"small-funder": {"mega-collab"},
		},
	}
	resolver := newTestResolver(f)

	allowed, err := resolver.IsAuthorized(context.Background(), testActor("actor-1"), VerbManage, EntityFunder, CodeKey("small-funder"))
	require.NoError(t, err)
	assert.True(t, allowed, "member funder inherits from its collaborative")

	allowed, err = resolver.IsAuthorized(context.Background(), testActor("actor-1"), VerbManage, EntityFunder, CodeKey("other-funder"))
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestIsAuthorizedNoInheritanceForOtherKinds(t *testing.T) {
	// Sponsorship and collaborative edges never extend non-changemaker,
	// non-funder kinds
	f := &fakeSources{
		grants: []PermissionGrant{
			individualGrant("actor-1", EntityOpportunity, IntKey(100), VerbView),
		},
		sponsors: map[int64][]int64{
			200: {100},
		},
	}
	resolver := newTestResolver(f)

	allowed, err := resolver.IsAuthorized(context.Background(), testActor("actor-1"), VerbView, EntityOpportunity, IntKey(200))
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Zero(t, f.sponsorCalls)
}

func TestIsAuthorizedSourceErrorsSurface(t *testing.T) {
	f := &fakeSources{
		sponsorsErr: errors.New("graph store down"),
	}
	resolver := newTestResolver(f)

	_, err := resolver.IsAuthorized(context.Background(), testActor("actor-1"), VerbView, EntityChangemaker, IntKey(1))
	assert.Error(t, err, "infrastructure failure is an error, not a deny")
}

func TestSnapshotMergesDurableAndEphemeralGroups(t *testing.T) {
	f := &fakeSources{
		grants: []PermissionGrant{
			groupGrant("durable", EntityProposal, IntKey(1), VerbView),
			groupGrant("ephemeral", EntityProposal, IntKey(2), VerbView),
			individualGrant("actor-1", EntityProposal, IntKey(3), VerbView),
		},
		ephemeral: map[string][]string{
			"actor-1": {"ephemeral", "durable"}, // overlap must not duplicate
		},
	}
	resolver := newTestResolver(f)

	snap, err := resolver.Snapshot(context.Background(), testActor("actor-1", "durable"))
	require.NoError(t, err)
	assert.Len(t, snap.Grants, 3)
	assert.True(t, snap.Allows(VerbView, EntityProposal, IntKey(1)))
	assert.True(t, snap.Allows(VerbView, EntityProposal, IntKey(2)))
	assert.True(t, snap.Allows(VerbView, EntityProposal, IntKey(3)))
	assert.False(t, snap.Allows(VerbView, EntityProposal, IntKey(4)))
}

func TestSnapshotUsesInjectedClock(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := &fakeSources{}
	resolver := newTestResolver(f, WithClock(func() time.Time { return fixed }))

	snap, err := resolver.Snapshot(context.Background(), testActor("actor-1"))
	require.NoError(t, err)
	assert.Equal(t, fixed, snap.TakenAt)
}

func TestIsAuthorizedDecisionCache(t *testing.T) {
	f := &fakeSources{
		grants: []PermissionGrant{
			individualGrant("actor-1", EntityProposal, IntKey(10), VerbView),
		},
	}
	cache := NewDecisionCache(16, time.Minute)
	resolver := newTestResolver(f, WithDecisionCache(cache))

	allowed, err := resolver.IsAuthorized(context.Background(), testActor("actor-1"), VerbView, EntityProposal, IntKey(10))
	require.NoError(t, err)
	assert.True(t, allowed)

	// The second ask is served from cache even when the sources fail
	f.grantsErr = errors.New("db down")
	allowed, err = resolver.IsAuthorized(context.Background(), testActor("actor-1"), VerbView, EntityProposal, IntKey(10))
	require.NoError(t, err)
	assert.True(t, allowed)

	// Invalidation forces a re-resolve, which now sees the failure
	cache.Invalidate()
	_, err = resolver.IsAuthorized(context.Background(), testActor("actor-1"), VerbView, EntityProposal, IntKey(10))
	assert.Error(t, err)
}

func TestIsAuthorizedReusesContextSnapshot(t *testing.T) {
	f := &fakeSources{
		grants: []PermissionGrant{individualGrant("alice", EntityProposal, IntKey(1), VerbView)},
	}
	resolver := newTestResolver(f)
	alice := testActor("alice")
	ctx := context.Background()

	snap, err := resolver.Snapshot(ctx, alice)
	require.NoError(t, err)
	ctx = contextkeys.WithPermissions(ctx, snap)
	reads := f.grantCalls

	allowed, err := resolver.IsAuthorized(ctx, alice, VerbView, EntityProposal, IntKey(1))
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, reads, f.grantCalls, "request snapshot must not be recomputed")

	// A snapshot taken for one actor never answers for another.
	mallory := testActor("mallory")
	allowed, err = resolver.IsAuthorized(ctx, mallory, VerbView, EntityProposal, IntKey(1))
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, f.grantCalls, reads)
}

func TestSnapshotFromContextMissing(t *testing.T) {
	assert.Nil(t, SnapshotFromContext(context.Background()))
}

type observedDecision struct {
	verb    Verb
	kind    EntityKind
	allowed bool
	path    string
	depth   int
}

func TestIsAuthorizedReportsDecisionPaths(t *testing.T) {
	f := &fakeSources{
		grants: []PermissionGrant{
			individualGrant("actor-1", EntityProposal, IntKey(10), VerbView),
			individualGrant("actor-1", EntityChangemaker, IntKey(100), VerbView),
		},
		sponsors: map[int64][]int64{200: {100}},
	}
	var seen []observedDecision
	cache := NewDecisionCache(16, time.Minute)
	resolver := newTestResolver(f, WithDecisionCache(cache),
		WithDecisionObserver(func(verb Verb, kind EntityKind, allowed bool, path string, depth int, _ time.Duration) {
			seen = append(seen, observedDecision{verb, kind, allowed, path, depth})
		}))
	ctx := context.Background()

	admin := &auth.Actor{ID: "root", IsAdministrator: true}
	_, err := resolver.IsAuthorized(ctx, admin, VerbManage, EntityFunder, CodeKey("acme"))
	require.NoError(t, err)

	_, err = resolver.IsAuthorized(ctx, testActor("actor-1"), VerbView, EntityProposal, IntKey(10))
	require.NoError(t, err)

	// The second ask lands in the decision cache
	_, err = resolver.IsAuthorized(ctx, testActor("actor-1"), VerbView, EntityProposal, IntKey(10))
	require.NoError(t, err)

	// Changemaker 200 inherits through its sponsor 100, one hop down
	_, err = resolver.IsAuthorized(ctx, testActor("actor-1"), VerbView, EntityChangemaker, IntKey(200))
	require.NoError(t, err)

	_, err = resolver.IsAuthorized(ctx, testActor("actor-2"), VerbDelete, EntityProposal, IntKey(10))
	require.NoError(t, err)

	require.Len(t, seen, 5)
	assert.Equal(t, observedDecision{VerbManage, EntityFunder, true, "admin", 0}, seen[0])
	assert.Equal(t, observedDecision{VerbView, EntityProposal, true, "grant", 0}, seen[1])
	assert.Equal(t, observedDecision{VerbView, EntityProposal, true, "cache", 0}, seen[2])
	assert.Equal(t, observedDecision{VerbView, EntityChangemaker, true, "sponsor", 1}, seen[3])
	assert.Equal(t, observedDecision{VerbDelete, EntityProposal, false, "deny", 0}, seen[4])
}
