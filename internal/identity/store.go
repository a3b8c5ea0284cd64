package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/relaybot/interaction-gateway/internal/platform/database"
	"github.com/relaybot/interaction-gateway/internal/snowflake"
)

// PostgresStore reads whitelabel bot keys and tokens.
type PostgresStore struct {
	db     database.Querier
	opener *TokenOpener
}

// NewPostgresStore creates a store. opener may be nil when every token is
// stored in plaintext.
func NewPostgresStore(db database.Querier, opener *TokenOpener) *PostgresStore {
	return &PostgresStore{db: db, opener: opener}
}

// WhitelabelPublicKey returns the hex encoded public key registered for botID.
func (s *PostgresStore) WhitelabelPublicKey(ctx context.Context, botID snowflake.ID) (string, error) {
	var key string
	err := s.db.QueryRow(ctx,
		`SELECT public_key FROM whitelabel_keys WHERE bot_id = $1`,
		int64(botID), // #nosec G115 -- ids are stored bit-for-bit in BIGINT columns
	).Scan(&key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrTenantNotFound
		}
		return "", fmt.Errorf("getting whitelabel public key: %w", err)
	}
	return key, nil
}

// BotToken returns the bearer token of the whitelabel bot.
func (s *PostgresStore) BotToken(ctx context.Context, botID snowflake.ID) (string, error) {
	var token string
	err := s.db.QueryRow(ctx,
		`SELECT token FROM whitelabel WHERE bot_id = $1`,
		int64(botID), // #nosec G115 -- ids are stored bit-for-bit in BIGINT columns
	).Scan(&token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrTenantNotFound
		}
		return "", fmt.Errorf("getting whitelabel token: %w", err)
	}

	token, err = s.opener.Open(token)
	if err != nil {
		return "", fmt.Errorf("opening whitelabel token: %w", err)
	}
	return token, nil
}
