package identity

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// SealedTokenPrefix marks a token column holding
// base64(nonce || AES-256-GCM ciphertext) instead of the token itself.
const SealedTokenPrefix = "enc:v1:"

var (
	ErrTokenKeyInvalid = errors.New("token key must be 32 bytes, base64 encoded")
	ErrSealedToken     = errors.New("sealed bot token cannot be opened")
)

// TokenOpener recovers bot tokens that were sealed before being written to
// the whitelabel table. The gateway never seals tokens itself.
type TokenOpener struct {
	aead cipher.AEAD
}

func NewTokenOpener(key string) (*TokenOpener, error) {
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(strings.TrimSpace(key), "="))
	if err != nil || len(raw) != 32 {
		return nil, ErrTokenKeyInvalid
	}
	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenKeyInvalid, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenKeyInvalid, err)
	}
	return &TokenOpener{aead: aead}, nil
}

// Open returns stored unchanged unless it carries SealedTokenPrefix. Sealed
// values need a non-nil opener.
func (o *TokenOpener) Open(stored string) (string, error) {
	payload, sealed := strings.CutPrefix(strings.TrimSpace(stored), SealedTokenPrefix)
	if !sealed {
		return stored, nil
	}
	if o == nil {
		return "", fmt.Errorf("%w: no token key configured", ErrSealedToken)
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSealedToken, err)
	}
	n := o.aead.NonceSize()
	if len(raw) < n+o.aead.Overhead() {
		return "", fmt.Errorf("%w: payload too short", ErrSealedToken)
	}

	token, err := o.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSealedToken, err)
	}
	return string(token), nil
}
