package middleware

import "context"

type botContextKey struct{}

// WithBotID stores the bot a request is addressed to and adds it to the
// request log line.
func WithBotID(ctx context.Context, botID string) context.Context {
	AddLogField(ctx, "bot_id", botID)
	return context.WithValue(ctx, botContextKey{}, botID)
}

// GetBotID retrieves the bot ID from the request context.
func GetBotID(ctx context.Context) string {
	if id, ok := ctx.Value(botContextKey{}).(string); ok {
		return id
	}
	return ""
}
