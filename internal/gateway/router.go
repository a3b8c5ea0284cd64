package gateway

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/relaybot/interaction-gateway/internal/interaction"
	"github.com/relaybot/interaction-gateway/internal/snowflake"
)

// KeySource resolves the key that signs interactions for a bot.
type KeySource interface {
	PublicKey(ctx context.Context, botID snowflake.ID) (ed25519.PublicKey, error)
}

// Relay forwards a verified interaction and returns the worker's answer.
type Relay interface {
	Forward(ctx context.Context, botID snowflake.ID, typ interaction.Type, body []byte) (Response, error)
}

// Request is one inbound interaction exactly as received.
type Request struct {
	BotID     snowflake.ID
	Signature []byte
	Timestamp []byte
	Body      []byte
}

// Response is what the caller sees.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// Router authenticates interactions and dispatches them by type.
type Router struct {
	keys      KeySource
	relay     Relay
	populator *Populator
}

func NewRouter(keys KeySource, relay Relay, populator *Populator) *Router {
	return &Router{keys: keys, relay: relay, populator: populator}
}

// Route runs the pipeline:
// key lookup -> signature check -> UTF-8 check -> decode -> per-type dispatch.
// Cache population for commands and components is started before forwarding
// and is never waited on.
func (r *Router) Route(ctx context.Context, req Request) (Response, error) {
	key, err := r.keys.PublicKey(ctx, req.BotID)
	if err != nil {
		return Response{}, err
	}

	if err := Verify(key, req.Timestamp, req.Body, req.Signature); err != nil {
		return Response{}, err
	}

	// Reject before decode: the JSON decoder would silently substitute
	// U+FFFD and the cache would be populated from altered text.
	if !utf8.Valid(req.Body) {
		return Response{}, ErrEncoding
	}

	decoded, err := interaction.Decode(req.Body)
	if err != nil {
		return Response{}, err
	}

	switch in := decoded.(type) {
	case *interaction.Ping:
		if in.ApplicationID != req.BotID {
			return Response{}, fmt.Errorf("%w: got %s, want %s", ErrTenantMismatch, in.ApplicationID, req.BotID)
		}
		return pongResponse()

	case *interaction.ApplicationCommand:
		if in.GuildID != nil && r.populator != nil {
			r.populator.FromCommand(ctx, in, *in.GuildID)
		}
		return r.relay.Forward(ctx, req.BotID, in.InteractionType(), req.Body)

	case *interaction.MessageComponent:
		if in.GuildID != nil && r.populator != nil {
			r.populator.FromComponent(ctx, in, *in.GuildID)
		}
		return r.relay.Forward(ctx, req.BotID, in.InteractionType(), req.Body)

	case *interaction.Autocomplete:
		return r.relay.Forward(ctx, req.BotID, in.InteractionType(), req.Body)

	case *interaction.ModalSubmit:
		return r.relay.Forward(ctx, req.BotID, in.InteractionType(), req.Body)

	case *interaction.Unsupported:
		return Response{}, fmt.Errorf("%w: %d", ErrUnsupportedInteractionType, in.Kind)

	default:
		return Response{}, fmt.Errorf("%w: %T", ErrUnsupportedInteractionType, decoded)
	}
}

func pongResponse() (Response, error) {
	body, err := json.Marshal(interaction.Pong())
	if err != nil {
		return Response{}, fmt.Errorf("encoding pong: %w", err)
	}
	return Response{Status: http.StatusOK, ContentType: "application/json", Body: body}, nil
}
