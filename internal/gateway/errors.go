package gateway

import (
	"errors"
	"fmt"

	"github.com/relaybot/interaction-gateway/internal/interaction"
)

var (
	ErrInvalidSignature           = errors.New("invalid request signature")
	ErrMissingSignature           = errors.New("signature headers are required")
	ErrInvalidBotID               = errors.New("bot id must be a decimal snowflake")
	ErrTenantMismatch             = errors.New("ping application id does not match bot")
	ErrUnsupportedInteractionType = errors.New("unsupported interaction type")
	ErrEncoding                   = errors.New("interaction body is not valid UTF-8")
	ErrMalformedPayload           = interaction.ErrMalformedPayload
)

// ForwardingError wraps a transport failure talking to the worker.
type ForwardingError struct {
	URL string
	Err error
}

func (e *ForwardingError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return fmt.Sprintf("forwarding interaction to %s: %v", e.URL, e.Err)
}

func (e *ForwardingError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
