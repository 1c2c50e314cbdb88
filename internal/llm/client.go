package llm

import "context"

// Client is the interface the agent loop talks to. Implementations
// handle provider wire formats; the loop only sees unified types.
type Client interface {
	// Chat sends the conversation and returns the model's next message.
	// Tools, when non-nil, are offered in the provider's native schema.
	Chat(ctx context.Context, messages []Message, tools []map[string]any) (*ChatResponse, error)
}
