package identity

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/relaybot/interaction-gateway/internal/snowflake"
)

var (
	ErrTenantNotFound   = errors.New("bot not found")
	ErrInvalidKeyFormat = errors.New("invalid public key format")
)

// Credential is the verification key and bearer token of a bot.
type Credential struct {
	PublicKey ed25519.PublicKey
	Token     string
}

// PublicBot is the statically configured public bot.
type PublicBot struct {
	ID         snowflake.ID
	Credential Credential
}

// Store is the whitelabel backing store. Both lookups return ErrTenantNotFound
// when the bot has no row.
type Store interface {
	WhitelabelPublicKey(ctx context.Context, botID snowflake.ID) (string, error)
	BotToken(ctx context.Context, botID snowflake.ID) (string, error)
}

// BackingStoreError wraps a failure to reach or query the whitelabel store.
type BackingStoreError struct {
	BotID snowflake.ID
	Err   error
}

func (e *BackingStoreError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return fmt.Sprintf("whitelabel store lookup for bot %s: %v", e.BotID, e.Err)
}

func (e *BackingStoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Resolver returns credentials for the public bot from configuration and for
// whitelabel bots from the store. Nothing is cached: every whitelabel call
// hits the store.
type Resolver struct {
	public PublicBot
	store  Store
}

// NewResolver creates a resolver. store may be nil, in which case every
// whitelabel bot is reported as not found.
func NewResolver(public PublicBot, store Store) *Resolver {
	return &Resolver{public: public, store: store}
}

// IsWhitelabel reports whether botID is anything other than the public bot.
func (r *Resolver) IsWhitelabel(botID snowflake.ID) bool {
	return botID != r.public.ID
}

// PublicKey returns the ed25519 key that signs interactions for botID.
func (r *Resolver) PublicKey(ctx context.Context, botID snowflake.ID) (ed25519.PublicKey, error) {
	if !r.IsWhitelabel(botID) {
		return r.public.Credential.PublicKey, nil
	}
	if r.store == nil {
		return nil, ErrTenantNotFound
	}

	raw, err := r.store.WhitelabelPublicKey(ctx, botID)
	if err != nil {
		return nil, classifyStoreError(botID, err)
	}
	return ParsePublicKey(raw)
}

// Token returns the bearer token used to act as botID.
func (r *Resolver) Token(ctx context.Context, botID snowflake.ID) (string, error) {
	if !r.IsWhitelabel(botID) {
		return r.public.Credential.Token, nil
	}
	if r.store == nil {
		return "", ErrTenantNotFound
	}

	token, err := r.store.BotToken(ctx, botID)
	if err != nil {
		return "", classifyStoreError(botID, err)
	}
	return token, nil
}

// Resolve returns both halves of the credential for botID.
func (r *Resolver) Resolve(ctx context.Context, botID snowflake.ID) (Credential, error) {
	key, err := r.PublicKey(ctx, botID)
	if err != nil {
		return Credential{}, err
	}
	token, err := r.Token(ctx, botID)
	if err != nil {
		return Credential{}, err
	}
	return Credential{PublicKey: key, Token: token}, nil
}

// ParsePublicKey decodes a 64 character hex string into an ed25519 public key.
// The bytes must encode a point on the curve.
func ParsePublicKey(raw string) (ed25519.PublicKey, error) {
	if len(raw) != hex.EncodedLen(ed25519.PublicKeySize) {
		return nil, fmt.Errorf("%w: expected %d hex characters, got %d", ErrInvalidKeyFormat, hex.EncodedLen(ed25519.PublicKeySize), len(raw))
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFormat, err)
	}
	if _, err := new(edwards25519.Point).SetBytes(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFormat, err)
	}
	return ed25519.PublicKey(b), nil
}

func classifyStoreError(botID snowflake.ID, err error) error {
	if errors.Is(err, ErrTenantNotFound) {
		return ErrTenantNotFound
	}
	return &BackingStoreError{BotID: botID, Err: err}
}
