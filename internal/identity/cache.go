package identity

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/relaybot/interaction-gateway/internal/snowflake"
)

// CachingResolver keeps successful whitelabel lookups for a fixed TTL in
// front of a Resolver. Failures are never cached. A rotated key or token is
// served stale for at most ttl.
type CachingResolver struct {
	next   *Resolver
	keys   *expirable.LRU[snowflake.ID, ed25519.PublicKey]
	tokens *expirable.LRU[snowflake.ID, string]
}

// NewCachingResolver wraps next. size bounds the number of bots held per
// cache; ttl must be positive.
func NewCachingResolver(next *Resolver, size int, ttl time.Duration) *CachingResolver {
	if size <= 0 {
		size = 1024
	}
	return &CachingResolver{
		next:   next,
		keys:   expirable.NewLRU[snowflake.ID, ed25519.PublicKey](size, nil, ttl),
		tokens: expirable.NewLRU[snowflake.ID, string](size, nil, ttl),
	}
}

func (c *CachingResolver) IsWhitelabel(botID snowflake.ID) bool {
	return c.next.IsWhitelabel(botID)
}

func (c *CachingResolver) PublicKey(ctx context.Context, botID snowflake.ID) (ed25519.PublicKey, error) {
	if key, ok := c.keys.Get(botID); ok {
		return key, nil
	}
	key, err := c.next.PublicKey(ctx, botID)
	if err != nil {
		return nil, err
	}
	if c.next.IsWhitelabel(botID) {
		c.keys.Add(botID, key)
	}
	return key, nil
}

func (c *CachingResolver) Token(ctx context.Context, botID snowflake.ID) (string, error) {
	if token, ok := c.tokens.Get(botID); ok {
		return token, nil
	}
	token, err := c.next.Token(ctx, botID)
	if err != nil {
		return "", err
	}
	if c.next.IsWhitelabel(botID) {
		c.tokens.Add(botID, token)
	}
	return token, nil
}
