package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/relaybot/interaction-gateway/internal/interaction"
	"github.com/relaybot/interaction-gateway/internal/snowflake"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxWorkerResponseBytes = 8 << 20

// TokenSource resolves the bearer token a bot acts with.
type TokenSource interface {
	Token(ctx context.Context, botID snowflake.ID) (string, error)
	IsWhitelabel(botID snowflake.ID) bool
}

// Envelope is the body posted to the worker. Data is the interaction exactly
// as received.
type Envelope struct {
	BotToken        string           `json:"bot_token"`
	BotID           uint64           `json:"bot_id"`
	IsWhitelabel    bool             `json:"is_whitelabel"`
	InteractionType interaction.Type `json:"interaction_type"`
	Data            json.RawMessage  `json:"data"`
}

// Forwarder relays verified interactions to the worker and hands back its
// response untouched. It never retries.
type Forwarder struct {
	url    string
	tokens TokenSource
	client *http.Client
}

// NewForwarder creates a forwarder posting to url. A nil client uses
// NewHTTPClient with a 3 second timeout.
func NewForwarder(url string, tokens TokenSource, client *http.Client) *Forwarder {
	if client == nil {
		client = NewHTTPClient(3 * time.Second)
	}
	return &Forwarder{url: url, tokens: tokens, client: client}
}

// NewHTTPClient returns a traced client for worker calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Forward posts body to the worker on behalf of botID. The token is looked up
// again here rather than reusing the one seen during verification.
func (f *Forwarder) Forward(ctx context.Context, botID snowflake.ID, typ interaction.Type, body []byte) (Response, error) {
	if !utf8.Valid(body) {
		return Response{}, ErrEncoding
	}
	if !json.Valid(body) {
		return Response{}, ErrMalformedPayload
	}

	token, err := f.tokens.Token(ctx, botID)
	if err != nil {
		return Response{}, err
	}

	payload, err := encodeEnvelope(Envelope{
		BotToken:        token,
		BotID:           botID.Uint64(),
		IsWhitelabel:    f.tokens.IsWhitelabel(botID),
		InteractionType: typ,
		Data:            body,
	})
	if err != nil {
		return Response{}, fmt.Errorf("encoding forwarding envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(payload))
	if err != nil {
		return Response{}, &ForwardingError{URL: f.url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return Response{}, &ForwardingError{URL: f.url, Err: err}
	}
	defer resp.Body.Close()

	resBody, err := io.ReadAll(io.LimitReader(resp.Body, maxWorkerResponseBytes))
	if err != nil {
		return Response{}, &ForwardingError{URL: f.url, Err: fmt.Errorf("reading response: %w", err)}
	}

	return Response{
		Status:      http.StatusOK,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        resBody,
	}, nil
}

// encodeEnvelope leaves HTML characters in Data unescaped so the worker sees
// the original text.
func encodeEnvelope(env Envelope) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(env); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
