package authz

import (
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DecisionCache memoizes resolver decisions. Every mutation to grants,
// relationship edges, or ephemeral memberships must call Invalidate so a
// stale decision is never served past the next write; entries also carry a
// TTL as a backstop.
type DecisionCache struct {
	cache      *lru.LRU[string, bool]
	generation atomic.Uint64

	onHit          func()
	onMiss         func()
	onInvalidation func()
}

// NewDecisionCache creates a decision cache holding up to maxEntries
// decisions for at most ttl each
func NewDecisionCache(maxEntries int, ttl time.Duration) *DecisionCache {
	if maxEntries < 1 {
		maxEntries = 1024
	}
	return &DecisionCache{
		cache: lru.NewLRU[string, bool](maxEntries, nil, ttl),
	}
}

// Instrument registers callbacks fired on cache events, typically metric
// counter increments. Any callback may be nil. Call before the cache is
// shared across goroutines.
func (c *DecisionCache) Instrument(onHit, onMiss, onInvalidation func()) {
	c.onHit = onHit
	c.onMiss = onMiss
	c.onInvalidation = onInvalidation
}

// Get returns a cached decision, if one exists for the current generation
func (c *DecisionCache) Get(actorID string, verb Verb, kind EntityKind, key TargetKey) (allowed bool, ok bool) {
	allowed, ok = c.cache.Get(c.key(actorID, verb, kind, key))
	if ok {
		fire(c.onHit)
	} else {
		fire(c.onMiss)
	}
	return allowed, ok
}

// Put stores a decision under the current generation
func (c *DecisionCache) Put(actorID string, verb Verb, kind EntityKind, key TargetKey, allowed bool) {
	c.cache.Add(c.key(actorID, verb, kind, key), allowed)
}

// Invalidate drops every cached decision by advancing the generation.
// Entries from prior generations become unreachable and age out of the LRU.
func (c *DecisionCache) Invalidate() {
	c.generation.Add(1)
	fire(c.onInvalidation)
}

func fire(fn func()) {
	if fn != nil {
		fn()
	}
}

func (c *DecisionCache) key(actorID string, verb Verb, kind EntityKind, key TargetKey) string {
	return fmt.Sprintf("%d|%s|%s|%s|%s", c.generation.Load(), actorID, verb, kind, key)
}
