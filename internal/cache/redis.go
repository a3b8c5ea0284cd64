package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"
	"github.com/relaybot/interaction-gateway/internal/snowflake"
)

// RedisOptions configures the redis connection and key layout.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// NewRedisClient connects and pings redis.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	addr := opts.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctxPing).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

// RedisCache writes entities as JSON strings:
//
//	<prefix>user:<user_id>
//	<prefix>member:<guild_id>:<user_id>
//	<prefix>role:<guild_id>:<role_id>
//
// Each batch is sent in a single pipeline.
type RedisCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a cache. A zero ttl stores keys without expiry.
func NewRedisCache(client redis.Cmdable, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) UserKey(userID string) string {
	return c.prefix + "user:" + userID
}

func (c *RedisCache) MemberKey(guildID snowflake.ID, userID string) string {
	return c.prefix + "member:" + guildID.String() + ":" + userID
}

func (c *RedisCache) RoleKey(guildID snowflake.ID, roleID string) string {
	return c.prefix + "role:" + guildID.String() + ":" + roleID
}

func (c *RedisCache) StoreUsers(ctx context.Context, users []*discordgo.User) error {
	entries := make(map[string]any, len(users))
	var errs []error
	for _, u := range users {
		if u == nil || u.ID == "" {
			errs = append(errs, fmt.Errorf("user: %w", ErrMissingID))
			continue
		}
		entries[c.UserKey(u.ID)] = u
	}
	errs = append(errs, c.write(ctx, entries))
	return errors.Join(errs...)
}

func (c *RedisCache) StoreUser(ctx context.Context, user *discordgo.User) error {
	return c.StoreUsers(ctx, []*discordgo.User{user})
}

// StoreMembers requires each member to carry its user, which provides the key.
func (c *RedisCache) StoreMembers(ctx context.Context, members []*discordgo.Member, guildID snowflake.ID) error {
	entries := make(map[string]any, len(members))
	var errs []error
	for _, m := range members {
		if m == nil || m.User == nil || m.User.ID == "" {
			errs = append(errs, fmt.Errorf("member: %w", ErrMissingID))
			continue
		}
		entries[c.MemberKey(guildID, m.User.ID)] = m
	}
	errs = append(errs, c.write(ctx, entries))
	return errors.Join(errs...)
}

func (c *RedisCache) StoreMember(ctx context.Context, member *discordgo.Member, guildID snowflake.ID) error {
	return c.StoreMembers(ctx, []*discordgo.Member{member}, guildID)
}

func (c *RedisCache) StoreRoles(ctx context.Context, roles []*discordgo.Role, guildID snowflake.ID) error {
	entries := make(map[string]any, len(roles))
	var errs []error
	for _, r := range roles {
		if r == nil || r.ID == "" {
			errs = append(errs, fmt.Errorf("role: %w", ErrMissingID))
			continue
		}
		entries[c.RoleKey(guildID, r.ID)] = r
	}
	errs = append(errs, c.write(ctx, entries))
	return errors.Join(errs...)
}

func (c *RedisCache) write(ctx context.Context, entries map[string]any) error {
	if len(entries) == 0 {
		return nil
	}

	values := make(map[string][]byte, len(entries))
	for key, v := range entries {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", key, err)
		}
		values[key] = raw
	}

	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, raw := range values {
			pipe.Set(ctx, key, raw, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing %d cache entries: %w", len(values), err)
	}
	return nil
}
