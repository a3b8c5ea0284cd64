// Package cache stores platform entities embedded in interactions so other
// services can read them without calling the platform API.
package cache

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
	"github.com/relaybot/interaction-gateway/internal/snowflake"
)

var ErrMissingID = errors.New("entity has no id")

// Cache is the write side of the shared entity cache. Every method is an
// idempotent upsert keyed by entity id.
type Cache interface {
	StoreUsers(ctx context.Context, users []*discordgo.User) error
	StoreUser(ctx context.Context, user *discordgo.User) error
	StoreMembers(ctx context.Context, members []*discordgo.Member, guildID snowflake.ID) error
	StoreMember(ctx context.Context, member *discordgo.Member, guildID snowflake.ID) error
	StoreRoles(ctx context.Context, roles []*discordgo.Role, guildID snowflake.ID) error
}

// NopCache discards every write.
type NopCache struct{}

func (NopCache) StoreUsers(context.Context, []*discordgo.User) error { return nil }
func (NopCache) StoreUser(context.Context, *discordgo.User) error    { return nil }
func (NopCache) StoreMembers(context.Context, []*discordgo.Member, snowflake.ID) error {
	return nil
}
func (NopCache) StoreMember(context.Context, *discordgo.Member, snowflake.ID) error { return nil }
func (NopCache) StoreRoles(context.Context, []*discordgo.Role, snowflake.ID) error  { return nil }
