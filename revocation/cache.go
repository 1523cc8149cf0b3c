package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned when Redis cannot be reached. Callers decide
// whether to fail open or closed.
var ErrUnavailable = errors.New("revocation cache unavailable")

const minEntryTTL = time.Second

// Cache is a Redis-backed denylist for token IDs and session families.
//
// Cache instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise.
type Cache struct {
	redis  redis.UniversalClient
	prefix string
}

// NewCache creates a [Cache] over the given Redis client. prefix namespaces
// all keys written by this instance.
func NewCache(client redis.UniversalClient, prefix string) *Cache {
	if prefix == "" {
		prefix = "rvk"
	}
	return &Cache{redis: client, prefix: prefix}
}

func (c *Cache) jtiKey(jti string) string {
	return c.prefix + ":jti:" + jti
}

func (c *Cache) familyKey(familyID string) string {
	return c.prefix + ":fam:" + familyID
}

// Blacklist denies jti for ttl, which should be the remaining life of the
// token. Entries with non-positive TTL are clamped to a minimum so a token
// revoked at the edge of expiry is still caught.
func (c *Cache) Blacklist(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return nil
	}
	if ttl < minEntryTTL {
		ttl = minEntryTTL
	}
	if err := c.redis.Set(ctx, c.jtiKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// BlacklistAll denies every jti in one round trip.
func (c *Cache) BlacklistAll(ctx context.Context, jtis []string, ttl time.Duration) error {
	if len(jtis) == 0 {
		return nil
	}
	if ttl < minEntryTTL {
		ttl = minEntryTTL
	}
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, jti := range jtis {
			if jti == "" {
				continue
			}
			pipe.Set(ctx, c.jtiKey(jti), "1", ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IsBlacklisted reports whether jti has been denied.
//
//	Performance: 1 Redis EXISTS.
func (c *Cache) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	n, err := c.redis.Exists(ctx, c.jtiKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

// MarkFamilyRevoked records that every token minted for familyID is denied,
// for ttl covering the longest outstanding token in the family.
func (c *Cache) MarkFamilyRevoked(ctx context.Context, familyID string, ttl time.Duration) error {
	if familyID == "" {
		return nil
	}
	if ttl < minEntryTTL {
		ttl = minEntryTTL
	}
	if err := c.redis.Set(ctx, c.familyKey(familyID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IsFamilyRevoked reports whether familyID carries a revocation marker.
func (c *Cache) IsFamilyRevoked(ctx context.Context, familyID string) (bool, error) {
	if familyID == "" {
		return false, nil
	}
	n, err := c.redis.Exists(ctx, c.familyKey(familyID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (c *Cache) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}
