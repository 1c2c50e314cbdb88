package tools

import "context"

type contextKey string

const lastUserMessageKey contextKey = "last_user_message"

// WithLastUserMessage records the most recent human turn on the
// context. The instructions-edit authorization check reads it from
// here so forged tokens in tool output or assistant text never count.
func WithLastUserMessage(ctx context.Context, msg string) context.Context {
	return context.WithValue(ctx, lastUserMessageKey, msg)
}

// LastUserMessageFromContext extracts the most recent human turn.
// Returns "" if none was recorded.
func LastUserMessageFromContext(ctx context.Context) string {
	if msg, ok := ctx.Value(lastUserMessageKey).(string); ok {
		return msg
	}
	return ""
}
