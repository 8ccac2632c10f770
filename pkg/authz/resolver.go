package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/grantbase/grantbase/pkg/auth"
	"github.com/grantbase/grantbase/pkg/contextkeys"
)

// maxTraversalDepth bounds relationship-graph recursion. Cycle detection is
// the real guard; the depth cap covers pathological edge data.
const maxTraversalDepth = 32

// GrantReader lists the grants visible to an actor: individual grants for
// the actor plus group grants for any of the given groups.
type GrantReader interface {
	ListEffective(ctx context.Context, actorID string, groupIDs []string) ([]PermissionGrant, error)
}

// EphemeralGroupReader resolves the actor's unexpired ephemeral group
// memberships as of the given instant.
type EphemeralGroupReader interface {
	ActiveGroups(ctx context.Context, actorID string, now time.Time) ([]string, error)
}

// SponsorReader lists the fiscal sponsors of a changemaker.
type SponsorReader interface {
	Sponsors(ctx context.Context, changemakerID int64) ([]int64, error)
}

// CollaborativeReader lists the collaboratives a funder is a member of.
type CollaborativeReader interface {
	Collaboratives(ctx context.Context, funderShortCode string) ([]string, error)
}

// Resolver is the authorization decision function. It only reads state; a
// decision never mutates anything, and failures from the backing store
// surface as errors rather than silent denials.
type Resolver struct {
	grants         GrantReader
	ephemeral      EphemeralGroupReader
	sponsors       SponsorReader
	collaboratives CollaborativeReader
	cache          *DecisionCache
	observer       DecisionObserver
	clock          func() time.Time
}

// DecisionObserver receives the outcome of every decision made through
// IsAuthorized. path names the rung of the resolution chain that settled
// it: admin, cache, grant, sponsor, collaborative, or deny. depth is the
// deepest relationship-graph node visited.
type DecisionObserver func(verb Verb, kind EntityKind, allowed bool, path string, depth int, elapsed time.Duration)

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithClock overrides the resolver's time source
func WithClock(clock func() time.Time) ResolverOption {
	return func(r *Resolver) { r.clock = clock }
}

// WithDecisionCache attaches a decision cache. Cached decisions are
// invalidated by any grant, edge, or membership mutation.
func WithDecisionCache(cache *DecisionCache) ResolverOption {
	return func(r *Resolver) { r.cache = cache }
}

// WithDecisionObserver attaches an observer called with every decision
// outcome. Keeps the resolver free of any metrics library.
func WithDecisionObserver(observer DecisionObserver) ResolverOption {
	return func(r *Resolver) { r.observer = observer }
}

// NewResolver creates a resolver over the given read-only sources
func NewResolver(grants GrantReader, ephemeral EphemeralGroupReader, sponsors SponsorReader, collaboratives CollaborativeReader, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		grants:         grants,
		ephemeral:      ephemeral,
		sponsors:       sponsors,
		collaboratives: collaboratives,
		clock:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Snapshot is an actor's effective grant set, computed once per request and
// threaded through call arguments so that resolution over it is a pure
// function. Effective grants are the actor's individual grants plus group
// grants for durable and unexpired ephemeral memberships.
type Snapshot struct {
	ActorID         string
	IsAdministrator bool
	Grants          []PermissionGrant
	TakenAt         time.Time
}

// Allows reports whether any grant in the snapshot authorizes verb on the
// given target. Pure; no I/O.
func (s *Snapshot) Allows(verb Verb, kind EntityKind, key TargetKey) bool {
	for i := range s.Grants {
		if s.Grants[i].Allows(verb, kind, key) {
			return true
		}
	}
	return false
}

// SnapshotFromContext returns the request-scoped snapshot placed in the
// context by the permissions middleware, or nil when the request carries
// none.
func SnapshotFromContext(ctx context.Context) *Snapshot {
	snap, _ := ctx.Value(contextkeys.PermissionsKey).(*Snapshot)
	return snap
}

// Snapshot computes the actor's effective grant set as of now
func (r *Resolver) Snapshot(ctx context.Context, actor *auth.Actor) (*Snapshot, error) {
	now := r.clock()

	snap := &Snapshot{
		ActorID:         actor.ID,
		IsAdministrator: actor.IsAdministrator,
		TakenAt:         now,
	}

	// Administrators never need the grant scan
	if actor.IsAdministrator {
		return snap, nil
	}

	groups := append([]string(nil), actor.Groups...)
	ephemeral, err := r.ephemeral.ActiveGroups(ctx, actor.ID, now)
	if err != nil {
		return nil, fmt.Errorf("resolving ephemeral memberships: %w", err)
	}
	for _, g := range ephemeral {
		if !containsString(groups, g) {
			groups = append(groups, g)
		}
	}

	grants, err := r.grants.ListEffective(ctx, actor.ID, groups)
	if err != nil {
		return nil, fmt.Errorf("loading effective grants: %w", err)
	}
	snap.Grants = grants

	return snap, nil
}

// IsAuthorized decides whether the actor may perform verb on the target
// entity. The administrator bypass runs before anything else so that
// administrators are never blocked by a malformed or missing target key.
func (r *Resolver) IsAuthorized(ctx context.Context, actor *auth.Actor, verb Verb, kind EntityKind, key TargetKey) (bool, error) {
	if actor == nil {
		return false, nil
	}
	start := time.Now()
	if actor.IsAdministrator {
		r.observe(start, verb, kind, true, "admin", 0)
		return true, nil
	}

	if r.cache != nil {
		if allowed, ok := r.cache.Get(actor.ID, verb, kind, key); ok {
			r.observe(start, verb, kind, allowed, "cache", 0)
			return allowed, nil
		}
	}

	// A request-scoped snapshot saves the membership and grant reads, but
	// only for the actor it was taken for: administrators checking on
	// behalf of someone else still recompute.
	snap := SnapshotFromContext(ctx)
	if snap == nil || snap.ActorID != actor.ID {
		var err error
		snap, err = r.Snapshot(ctx, actor)
		if err != nil {
			return false, err
		}
	}

	trav := &traversal{}
	allowed, err := r.resolve(ctx, snap, verb, kind, key, map[string]bool{}, 0, trav)
	if err != nil {
		return false, err
	}

	if r.cache != nil {
		r.cache.Put(actor.ID, verb, kind, key, allowed)
	}
	path := trav.path
	if path == "" {
		path = "deny"
	}
	r.observe(start, verb, kind, allowed, path, trav.depth)
	return allowed, nil
}

func (r *Resolver) observe(start time.Time, verb Verb, kind EntityKind, allowed bool, path string, depth int) {
	if r.observer == nil {
		return
	}
	r.observer(verb, kind, allowed, path, depth, time.Since(start))
}

// traversal records how far the relationship graph was walked and which
// rung produced the allow, for the decision observer.
type traversal struct {
	depth int
	path  string
}

// resolve walks direct and group grants first, then the relationship graph
// for the two kinds that inherit permissions. Cycles terminate with deny.
func (r *Resolver) resolve(ctx context.Context, snap *Snapshot, verb Verb, kind EntityKind, key TargetKey, visited map[string]bool, depth int, trav *traversal) (bool, error) {
	if depth > maxTraversalDepth {
		return false, nil
	}
	if depth > trav.depth {
		trav.depth = depth
	}

	node := string(kind) + ":" + key.String()
	if visited[node] {
		return false, nil
	}
	visited[node] = true

	if snap.Allows(verb, kind, key) {
		switch {
		case depth == 0:
			trav.path = "grant"
		case kind == EntityChangemaker:
			trav.path = "sponsor"
		default:
			trav.path = "collaborative"
		}
		return true, nil
	}

	switch kind {
	case EntityChangemaker:
		sponsors, err := r.sponsors.Sponsors(ctx, key.ID)
		if err != nil {
			return false, fmt.Errorf("loading fiscal sponsors: %w", err)
		}
		for _, sponsor := range sponsors {
			allowed, err := r.resolve(ctx, snap, verb, kind, IntKey(sponsor), visited, depth+1, trav)
			if err != nil || allowed {
				return allowed, err
			}
		}
	case EntityFunder:
		collaboratives, err := r.collaboratives.Collaboratives(ctx, key.ShortCode)
		if err != nil {
			return false, fmt.Errorf("loading collaborative memberships: %w", err)
		}
		for _, c := range collaboratives {
			allowed, err := r.resolve(ctx, snap, verb, kind, CodeKey(c), visited, depth+1, trav)
			if err != nil || allowed {
				return allowed, err
			}
		}
	}

	return false, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
