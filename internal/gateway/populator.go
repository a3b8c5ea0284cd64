package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/relaybot/interaction-gateway/internal/cache"
	"github.com/relaybot/interaction-gateway/internal/interaction"
	"github.com/relaybot/interaction-gateway/internal/platform/middleware"
	"github.com/relaybot/interaction-gateway/internal/snowflake"
)

// WriteSet is the set of entities extracted from one interaction.
// Channels are never included.
type WriteSet struct {
	GuildID snowflake.ID
	Users   []*discordgo.User
	Members []*discordgo.Member
	Roles   []*discordgo.Role
}

// CommandWriteSet flattens the resolved entities of cmd and adds the invoker.
// Resolved members arrive without their user, so the map key (or the resolved
// user with that id) is attached to give each member its cache key.
func CommandWriteSet(cmd *interaction.ApplicationCommand, guildID snowflake.ID) WriteSet {
	resolved := cmd.Data.Resolved
	set := WriteSet{
		GuildID: guildID,
		Users:   make([]*discordgo.User, 0, len(resolved.Users)+1),
		Members: make([]*discordgo.Member, 0, len(resolved.Members)+1),
		Roles:   make([]*discordgo.Role, 0, len(resolved.Roles)),
	}

	for _, u := range resolved.Users {
		if u != nil {
			set.Users = append(set.Users, u)
		}
	}
	for id, m := range resolved.Members {
		if m == nil {
			continue
		}
		member := *m
		if member.User == nil {
			if u, ok := resolved.Users[id]; ok && u != nil {
				member.User = u
			} else {
				member.User = &discordgo.User{ID: id.String()}
			}
		}
		member.GuildID = guildID.String()
		set.Members = append(set.Members, &member)
	}
	for _, r := range resolved.Roles {
		if r != nil {
			set.Roles = append(set.Roles, r)
		}
	}

	set.addInvoker(cmd.Member, cmd.User)
	return set
}

// ComponentWriteSet holds only the invoking member or user; component
// payloads carry no resolved entities.
func ComponentWriteSet(comp *interaction.MessageComponent, guildID snowflake.ID) WriteSet {
	set := WriteSet{GuildID: guildID}
	set.addInvoker(comp.Member, comp.User)
	return set
}

func (s *WriteSet) addInvoker(member *discordgo.Member, user *discordgo.User) {
	switch {
	case member != nil:
		if member.User != nil {
			s.Users = append(s.Users, member.User)
		}
		m := *member
		m.GuildID = s.GuildID.String()
		s.Members = append(s.Members, &m)
	case user != nil:
		s.Users = append(s.Users, user)
	}
}

// Populator writes interaction entities to the cache in the background. The
// caller never observes the outcome; failures are logged.
type Populator struct {
	cache   cache.Cache
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewPopulator creates a populator. timeout bounds each background task; zero
// means no bound.
func NewPopulator(c cache.Cache, logger *slog.Logger, timeout time.Duration) *Populator {
	if c == nil {
		c = cache.NopCache{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Populator{cache: c, logger: logger, timeout: timeout}
}

// FromCommand caches the entities of a command in the background.
func (p *Populator) FromCommand(ctx context.Context, cmd *interaction.ApplicationCommand, guildID snowflake.ID) {
	set := CommandWriteSet(cmd, guildID)
	p.spawn(ctx, "application_command", set, p.writeBatch)
}

// FromComponent caches the invoker of a component interaction in the background.
func (p *Populator) FromComponent(ctx context.Context, comp *interaction.MessageComponent, guildID snowflake.ID) {
	set := ComponentWriteSet(comp, guildID)
	p.spawn(ctx, "message_component", set, p.writeEach)
}

// Wait blocks until every spawned task has finished or ctx is done.
func (p *Populator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// spawn detaches the task from the request: the request context's values are
// kept for logging but its cancellation is not.
func (p *Populator) spawn(ctx context.Context, kind string, set WriteSet, write func(context.Context, WriteSet) error) {
	taskCtx := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx := taskCtx
		if p.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.timeout)
			defer cancel()
		}

		if err := write(ctx, set); err != nil {
			p.logger.Error("caching interaction entities failed",
				"kind", kind,
				"bot_id", middleware.GetBotID(ctx),
				"guild_id", set.GuildID.String(),
				"request_id", middleware.GetRequestID(ctx),
				"error", err,
			)
		}
	}()
}

// writeBatch stores users before members before roles, stopping at the first
// failure. Earlier writes are left in place.
func (p *Populator) writeBatch(ctx context.Context, set WriteSet) error {
	if err := p.cache.StoreUsers(ctx, set.Users); err != nil {
		return err
	}
	if err := p.cache.StoreMembers(ctx, set.Members, set.GuildID); err != nil {
		return err
	}
	return p.cache.StoreRoles(ctx, set.Roles, set.GuildID)
}

func (p *Populator) writeEach(ctx context.Context, set WriteSet) error {
	for _, u := range set.Users {
		if err := p.cache.StoreUser(ctx, u); err != nil {
			return err
		}
	}
	for _, m := range set.Members {
		if err := p.cache.StoreMember(ctx, m, set.GuildID); err != nil {
			return err
		}
	}
	return nil
}
