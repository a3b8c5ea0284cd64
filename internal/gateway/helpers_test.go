package gateway_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/relaybot/interaction-gateway/internal/gateway"
	"github.com/relaybot/interaction-gateway/internal/identity"
	"github.com/relaybot/interaction-gateway/internal/interaction"
	"github.com/relaybot/interaction-gateway/internal/snowflake"
	"github.com/stretchr/testify/require"
)

const (
	publicBotID     = snowflake.ID(508391840525975553)
	whitelabelBotID = snowflake.ID(600000000000000001)
	guildID         = snowflake.ID(900000000000000001)
	testTimestamp   = "1730000000"
)

const commandBody = `{"id":"1100000000000000001","application_id":"508391840525975553","type":2,"guild_id":"900000000000000001","channel_id":"900000000000000002","token":"interaction-token","member":{"user":{"id":"700000000000000001","username":"invoker"},"roles":["800000000000000001"],"nick":"inv"},"data":{"id":"1000000000000000001","name":"ticket","resolved":{"users":{"700000000000000002":{"id":"700000000000000002","username":"target"}},"members":{"700000000000000002":{"roles":[],"nick":"tgt"}},"roles":{"800000000000000001":{"id":"800000000000000001","name":"Support","permissions":"8"}},"channels":{"900000000000000003":{"id":"900000000000000003","name":"help","type":0}}}}}`

const componentBody = `{"id":"1100000000000000002","application_id":"508391840525975553","type":3,"guild_id":"900000000000000001","token":"t","member":{"user":{"id":"700000000000000001","username":"invoker"},"roles":[]},"data":{"custom_id":"open","component_type":2}}`

type keyPair struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

func newKeyPair(t *testing.T) keyPair {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return keyPair{public: pub, private: priv}
}

func (k keyPair) sign(timestamp string, body []byte) string {
	msg := append([]byte(timestamp), body...)
	return hex.EncodeToString(ed25519.Sign(k.private, msg))
}

// signedRequest builds a router request signed by k.
func (k keyPair) signedRequest(botID snowflake.ID, body string) gateway.Request {
	sig, _ := hex.DecodeString(k.sign(testTimestamp, []byte(body)))
	return gateway.Request{
		BotID:     botID,
		Signature: sig,
		Timestamp: []byte(testTimestamp),
		Body:      []byte(body),
	}
}

type stubKeys struct {
	keys map[snowflake.ID]ed25519.PublicKey
	err  error
}

func (s stubKeys) PublicKey(_ context.Context, botID snowflake.ID) (ed25519.PublicKey, error) {
	if s.err != nil {
		return nil, s.err
	}
	key, ok := s.keys[botID]
	if !ok {
		return nil, identity.ErrTenantNotFound
	}
	return key, nil
}

type relayCall struct {
	BotID snowflake.ID
	Type  interaction.Type
	Body  []byte
}

type recordingRelay struct {
	mu    sync.Mutex
	calls []relayCall
	resp  gateway.Response
	err   error
}

func (r *recordingRelay) Forward(_ context.Context, botID snowflake.ID, typ interaction.Type, body []byte) (gateway.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, relayCall{BotID: botID, Type: typ, Body: append([]byte(nil), body...)})
	if r.err != nil {
		return gateway.Response{}, r.err
	}
	return r.resp, nil
}

func (r *recordingRelay) Calls() []relayCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]relayCall(nil), r.calls...)
}

// recordingCache logs each write as "<op>:<id>" in call order.
type recordingCache struct {
	mu      sync.Mutex
	ops     []string
	failOn  string
	release chan struct{}
	ctxErrs []error
}

var errCacheDown = errors.New("cache down")

func (c *recordingCache) record(ctx context.Context, op string, ids ...string) error {
	if c.release != nil {
		<-c.release
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctxErrs = append(c.ctxErrs, ctx.Err())
	if op == c.failOn {
		return fmt.Errorf("%s: %w", op, errCacheDown)
	}
	for _, id := range ids {
		c.ops = append(c.ops, op+":"+id)
	}
	return nil
}

func (c *recordingCache) Ops() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ops...)
}

func (c *recordingCache) CtxErrs() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.ctxErrs...)
}

func (c *recordingCache) StoreUsers(ctx context.Context, users []*discordgo.User) error {
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return c.record(ctx, "users", ids...)
}

func (c *recordingCache) StoreUser(ctx context.Context, user *discordgo.User) error {
	return c.record(ctx, "user", user.ID)
}

func (c *recordingCache) StoreMembers(ctx context.Context, members []*discordgo.Member, _ snowflake.ID) error {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.User.ID)
	}
	return c.record(ctx, "members", ids...)
}

func (c *recordingCache) StoreMember(ctx context.Context, member *discordgo.Member, _ snowflake.ID) error {
	return c.record(ctx, "member", member.User.ID)
}

func (c *recordingCache) StoreRoles(ctx context.Context, roles []*discordgo.Role, _ snowflake.ID) error {
	ids := make([]string, 0, len(roles))
	for _, r := range roles {
		ids = append(ids, r.ID)
	}
	return c.record(ctx, "roles", ids...)
}
