package gateway

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/relaybot/interaction-gateway/internal/identity"
	"github.com/relaybot/interaction-gateway/internal/platform/middleware"
	"github.com/relaybot/interaction-gateway/internal/snowflake"
)

const maxInteractionBodyBytes = 1 << 20

// Handler exposes the router over HTTP.
type Handler struct {
	router *Router
	logger *slog.Logger
}

func NewHandler(router *Router, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{router: router, logger: logger}
}

// HandleInteraction receives a signed interaction webhook.
// POST /handle/{botID}
func (h *Handler) HandleInteraction(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	botID, err := snowflake.Parse(strings.TrimSpace(r.PathValue("botID")))
	if err != nil {
		writeRouteError(w, ErrInvalidBotID, requestID)
		return
	}
	ctx := middleware.WithBotID(r.Context(), botID.String())

	rawSig := r.Header.Get(signatureHeader)
	timestamp := r.Header.Get(timestampHeader)
	if rawSig == "" || timestamp == "" {
		writeRouteError(w, ErrMissingSignature, requestID)
		return
	}
	sig, err := ParseSignature(rawSig)
	if err != nil {
		writeRouteError(w, err, requestID)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxInteractionBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":      "invalid request body",
			"request_id": requestID,
		})
		return
	}

	resp, err := h.router.Route(ctx, Request{
		BotID:     botID,
		Signature: sig,
		Timestamp: []byte(timestamp),
		Body:      body,
	})
	if err != nil {
		status := writeRouteError(w, err, requestID)
		h.logRouteError(r, botID, status, err)
		return
	}

	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

// writeRouteError maps err to a status and writes it. Authentication failures
// never expose more than the fact that the signature was rejected.
func writeRouteError(w http.ResponseWriter, err error, requestID string) int {
	var storeErr *identity.BackingStoreError
	var fwdErr *ForwardingError

	status := http.StatusInternalServerError
	message := "processing interaction failed"

	switch {
	case errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrMissingSignature),
		errors.Is(err, identity.ErrInvalidKeyFormat):
		status, message = http.StatusUnauthorized, ErrInvalidSignature.Error()
	case errors.Is(err, identity.ErrTenantNotFound):
		status, message = http.StatusNotFound, identity.ErrTenantNotFound.Error()
	case errors.As(err, &storeErr):
		status, message = http.StatusServiceUnavailable, "credential store unavailable"
	case errors.Is(err, ErrInvalidBotID),
		errors.Is(err, ErrMalformedPayload),
		errors.Is(err, ErrEncoding),
		errors.Is(err, ErrUnsupportedInteractionType),
		errors.Is(err, ErrTenantMismatch):
		status, message = http.StatusBadRequest, err.Error()
	case errors.As(err, &fwdErr):
		status, message = http.StatusBadGateway, "forwarding interaction failed"
	}

	writeJSON(w, status, map[string]string{
		"error":      message,
		"request_id": requestID,
	})
	return status
}

func (h *Handler) logRouteError(r *http.Request, botID snowflake.ID, status int, err error) {
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "interaction rejected",
		"bot_id", botID.String(),
		"status", status,
		"request_id", middleware.GetRequestID(r.Context()),
		"error", err,
	)
}
