package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"
	"github.com/relaybot/interaction-gateway/internal/cache"
	"github.com/relaybot/interaction-gateway/internal/gateway"
	"github.com/relaybot/interaction-gateway/internal/interaction"
	"github.com/relaybot/interaction-gateway/internal/platform/middleware"
	"github.com/relaybot/interaction-gateway/internal/platform/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeCommand(t *testing.T, body string) *interaction.ApplicationCommand {
	t.Helper()
	decoded, err := interaction.Decode([]byte(body))
	require.NoError(t, err)
	cmd, ok := decoded.(*interaction.ApplicationCommand)
	require.True(t, ok)
	return cmd
}

func decodeComponent(t *testing.T, body string) *interaction.MessageComponent {
	t.Helper()
	decoded, err := interaction.Decode([]byte(body))
	require.NoError(t, err)
	comp, ok := decoded.(*interaction.MessageComponent)
	require.True(t, ok)
	return comp
}

func userIDs(users []*discordgo.User) []string {
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	sort.Strings(ids)
	return ids
}

func waitFor(t *testing.T, p *gateway.Populator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Wait(ctx))
}

func TestCommandWriteSet_UnionWithInvoker(t *testing.T) {
	cmd := decodeCommand(t, commandBody)

	set := gateway.CommandWriteSet(cmd, guildID)

	assert.Equal(t, guildID, set.GuildID)
	assert.Equal(t, []string{"700000000000000001", "700000000000000002"}, userIDs(set.Users))

	require.Len(t, set.Members, 2)
	memberIDs := make([]string, 0, 2)
	for _, m := range set.Members {
		require.NotNil(t, m.User)
		assert.Equal(t, guildID.String(), m.GuildID)
		memberIDs = append(memberIDs, m.User.ID)
	}
	sort.Strings(memberIDs)
	assert.Equal(t, []string{"700000000000000001", "700000000000000002"}, memberIDs)

	require.Len(t, set.Roles, 1)
	assert.Equal(t, "Support", set.Roles[0].Name)
}

func TestCommandWriteSet_DoesNotMutateDecodedMembers(t *testing.T) {
	cmd := decodeCommand(t, commandBody)

	_ = gateway.CommandWriteSet(cmd, guildID)

	for _, m := range cmd.Data.Resolved.Members {
		assert.Nil(t, m.User)
		assert.Empty(t, m.GuildID)
	}
	assert.Empty(t, cmd.Member.GuildID)
}

func TestCommandWriteSet_MemberWithoutResolvedUser(t *testing.T) {
	body := `{"type":2,"id":"1","application_id":"1","guild_id":"900000000000000001","user":{"id":"5"},"data":{"id":"2","name":"x","resolved":{"members":{"700000000000000009":{"roles":[]}}}}}`
	cmd := decodeCommand(t, body)

	set := gateway.CommandWriteSet(cmd, guildID)

	require.Len(t, set.Members, 1)
	assert.Equal(t, "700000000000000009", set.Members[0].User.ID)
	assert.Equal(t, []string{"5"}, userIDs(set.Users))
}

func TestComponentWriteSet_InvokerOnly(t *testing.T) {
	comp := decodeComponent(t, componentBody)

	set := gateway.ComponentWriteSet(comp, guildID)

	assert.Equal(t, []string{"700000000000000001"}, userIDs(set.Users))
	require.Len(t, set.Members, 1)
	assert.Empty(t, set.Roles)
}

func TestComponentWriteSet_UserWithoutMember(t *testing.T) {
	comp := decodeComponent(t, `{"type":3,"id":"1","application_id":"1","user":{"id":"42"},"data":{"custom_id":"c","component_type":2}}`)

	set := gateway.ComponentWriteSet(comp, guildID)

	assert.Equal(t, []string{"42"}, userIDs(set.Users))
	assert.Empty(t, set.Members)
}

func TestPopulator_CommandWritesUsersThenMembersThenRoles(t *testing.T) {
	c := &recordingCache{}
	p := gateway.NewPopulator(c, nil, time.Second)

	p.FromCommand(context.Background(), decodeCommand(t, commandBody), guildID)
	waitFor(t, p)

	ops := c.Ops()
	require.Len(t, ops, 5)
	for i, op := range ops {
		prefix := strings.SplitN(op, ":", 2)[0]
		switch {
		case i < 2:
			assert.Equal(t, "users", prefix)
		case i < 4:
			assert.Equal(t, "members", prefix)
		default:
			assert.Equal(t, "roles:800000000000000001", op)
		}
	}
}

func TestPopulator_FailureIsLoggedNotReturned(t *testing.T) {
	var buf bytes.Buffer
	logger := telemetry.NewLogger("info", "json", &buf)
	c := &recordingCache{failOn: "members"}
	p := gateway.NewPopulator(c, logger, time.Second)

	ctx := middleware.WithBotID(context.Background(), publicBotID.String())
	p.FromCommand(ctx, decodeCommand(t, commandBody), guildID)
	waitFor(t, p)

	for _, op := range c.Ops() {
		assert.True(t, strings.HasPrefix(op, "users:"), "no writes after the failing batch, got %s", op)
	}

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "caching interaction entities failed", entry["msg"])
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "application_command", entry["kind"])
	assert.Equal(t, publicBotID.String(), entry["bot_id"])
	assert.Equal(t, guildID.String(), entry["guild_id"])
	assert.Contains(t, entry["error"], "cache down")
}

func TestPopulator_ComponentUsesSingleWrites(t *testing.T) {
	c := &recordingCache{}
	p := gateway.NewPopulator(c, nil, time.Second)

	p.FromComponent(context.Background(), decodeComponent(t, componentBody), guildID)
	waitFor(t, p)

	assert.Equal(t, []string{"user:700000000000000001", "member:700000000000000001"}, c.Ops())
}

func TestPopulator_OutlivesRequestContext(t *testing.T) {
	c := &recordingCache{release: make(chan struct{})}
	p := gateway.NewPopulator(c, nil, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	p.FromComponent(ctx, decodeComponent(t, componentBody), guildID)
	cancel()
	close(c.release)

	waitFor(t, p)
	assert.Len(t, c.Ops(), 2)
	for _, err := range c.CtxErrs() {
		assert.NoError(t, err)
	}
}

func TestPopulator_WaitHonoursContext(t *testing.T) {
	c := &recordingCache{release: make(chan struct{})}
	p := gateway.NewPopulator(c, nil, 0)

	p.FromComponent(context.Background(), decodeComponent(t, componentBody), guildID)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Wait(ctx), context.DeadlineExceeded)

	close(c.release)
	waitFor(t, p)
}

func TestPopulator_NilCacheIsNoop(t *testing.T) {
	p := gateway.NewPopulator(nil, nil, 0)
	p.FromCommand(context.Background(), decodeCommand(t, commandBody), guildID)
	waitFor(t, p)
}

func TestPopulator_RedisReceivesResolvedEntitiesButNoChannels(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	p := gateway.NewPopulator(cache.NewRedisCache(client, "gw:", time.Minute), nil, time.Second)
	p.FromCommand(context.Background(), decodeCommand(t, commandBody), guildID)
	waitFor(t, p)

	keys := mr.Keys()
	sort.Strings(keys)
	assert.Equal(t, []string{
		"gw:member:900000000000000001:700000000000000001",
		"gw:member:900000000000000001:700000000000000002",
		"gw:role:900000000000000001:800000000000000001",
		"gw:user:700000000000000001",
		"gw:user:700000000000000002",
	}, keys)
	for _, k := range keys {
		assert.NotContains(t, k, "900000000000000003")
	}
}
