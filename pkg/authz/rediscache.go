package authz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// GrantListCache is a read-through Redis cache in front of a GrantReader.
// Entries are keyed by actor and group set, so a snapshot taken with a
// different ephemeral membership set never sees a stale entry. Redis
// failures fall back to the underlying reader; the cache never turns an
// outage into a denial.
type GrantListCache struct {
	source GrantReader
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewGrantListCache creates a grant list cache over the given reader
func NewGrantListCache(source GrantReader, client *redis.Client, ttl time.Duration) *GrantListCache {
	if ttl == 0 {
		ttl = time.Minute
	}
	return &GrantListCache{
		source: source,
		client: client,
		ttl:    ttl,
		prefix: "grants",
	}
}

// ListEffective implements GrantReader with Redis read-through
func (c *GrantListCache) ListEffective(ctx context.Context, actorID string, groupIDs []string) ([]PermissionGrant, error) {
	key := c.key(actorID, groupIDs)

	data, err := c.client.Get(ctx, key).Result()
	if err == nil {
		var grants []PermissionGrant
		if jsonErr := json.Unmarshal([]byte(data), &grants); jsonErr == nil {
			return grants, nil
		}
		// Corrupt entry; drop it and reload from the source
		c.client.Del(ctx, key)
	}

	grants, err := c.source.ListEffective(ctx, actorID, groupIDs)
	if err != nil {
		return nil, err
	}

	if encoded, jsonErr := json.Marshal(grants); jsonErr == nil {
		// Best effort; a failed set only costs the next reader a reload
		c.client.Set(ctx, key, encoded, c.ttl)
	}

	return grants, nil
}

// Invalidate drops every cached grant list. Called from the store change
// hook so any grant or membership mutation is visible on the next read.
func (c *GrantListCache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}

func (c *GrantListCache) key(actorID string, groupIDs []string) string {
	sum := sha256.Sum256([]byte(strings.Join(groupIDs, "\x00")))
	return fmt.Sprintf("%s:%s:%s", c.prefix, actorID, hex.EncodeToString(sum[:8]))
}
