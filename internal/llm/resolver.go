package llm

import (
	"errors"
	"fmt"
	"strings"
)

// DemoReply is returned instead of a live completion when no usable
// provider is configured or the server runs in demo mode.
const DemoReply = "This is a demo build. Live AI calls are disabled because no API key is configured.\n" +
	"To enable live responses, set the OpenAI API key in the configuration and restart the server."

// ErrProviderUnavailable means no backend could serve the requested
// model: demo mode is forced, or the OpenAI key is missing or malformed.
var ErrProviderUnavailable = errors.New("provider unavailable")

// modelAliases maps UI-facing model names to the identifiers the
// OpenAI API actually accepts. Unknown names pass through unchanged.
var modelAliases = map[string]string{
	"gpt-5-auto":          "gpt-5",
	"gpt-5-instant":       "gpt-5",
	"gpt-5-thinking":      "gpt-5",
	"gpt-5-thinking-mini": "gpt-5-mini",
	"gpt-5-pro":           "gpt-5",
	"gpt-5-mini":          "gpt-5-mini",
	"gpt-5-nano":          "gpt-5-nano",
	"gpt-4o":              "gpt-4o",
	"gpt-4.1":             "gpt-4.1",
	"o3":                  "o3",
	"o4-mini":             "o4-mini",
}

const (
	ollamaModelPrefix = "ollama:"
	defaultUIModel    = "gpt-5-instant"
	defaultLocalModel = "llama3.1"
)

// Provider is a resolved chat-completions backend: where to POST, what
// model to name in the payload, and which headers to send.
type Provider struct {
	Name          string
	URL           string
	Model         string
	SupportsTools bool
	Headers       map[string]string
}

// Resolver turns a project's UI model string into a concrete Provider.
type Resolver struct {
	// APIKey is the OpenAI API key. Cloud models require a key with the
	// "sk-" prefix.
	APIKey string

	// OllamaURL is the base URL of the local Ollama server.
	OllamaURL string

	// OllamaSupportsTools advertises tool schemas to local models.
	// Off by default; many local models mishandle tool calling.
	OllamaSupportsTools bool

	// DemoMode forces canned replies and refuses live resolution.
	DemoMode bool
}

// routed is the provider family a UI model string selects, before any
// credential checks.
type routed struct {
	provider string // "openai" or "ollama"
	model    string
}

func route(uiModel string) routed {
	raw := strings.TrimSpace(uiModel)
	lower := strings.ToLower(raw)

	if strings.HasPrefix(lower, ollamaModelPrefix) {
		model := strings.TrimSpace(raw[len(ollamaModelPrefix):])
		if model == "" {
			model = defaultLocalModel
		}
		return routed{provider: "ollama", model: model}
	}

	// Convenience: a bare llama* model name means Ollama.
	if strings.HasPrefix(lower, "llama") {
		return routed{provider: "ollama", model: raw}
	}

	if raw == "" {
		raw = defaultUIModel
	}
	if mapped, ok := modelAliases[raw]; ok {
		return routed{provider: "openai", model: mapped}
	}
	return routed{provider: "openai", model: raw}
}

func (r *Resolver) hasAPIKey() bool {
	return r.APIKey != "" && strings.HasPrefix(r.APIKey, "sk-")
}

// ShouldDemo reports whether a chat for the given UI model must be
// answered with DemoReply instead of a live call. Computed once per
// request; the answer does not change mid-loop.
func (r *Resolver) ShouldDemo(uiModel string) bool {
	if r.DemoMode {
		return true
	}
	if route(uiModel).provider == "openai" {
		return !r.hasAPIKey()
	}
	return false
}

// Resolve maps a UI model string to a concrete Provider.
func (r *Resolver) Resolve(uiModel string) (Provider, error) {
	if r.DemoMode {
		return Provider{}, fmt.Errorf("%w: demo mode, live AI disabled", ErrProviderUnavailable)
	}

	if uiModel == "" {
		uiModel = defaultUIModel
	}
	rt := route(uiModel)

	if rt.provider == "ollama" {
		base := strings.TrimRight(strings.TrimSpace(r.OllamaURL), "/")
		if base == "" {
			base = "http://localhost:11434"
		}
		return Provider{
			Name:          "ollama",
			URL:           base + "/v1/chat/completions",
			Model:         rt.model,
			SupportsTools: r.OllamaSupportsTools,
			Headers: map[string]string{
				"Content-Type": "application/json",
			},
		}, nil
	}

	if !r.hasAPIKey() {
		return Provider{}, fmt.Errorf("%w: no OpenAI API key configured", ErrProviderUnavailable)
	}

	return Provider{
		Name:          "openai",
		URL:           "https://api.openai.com/v1/chat/completions",
		Model:         rt.model,
		SupportsTools: true,
		Headers: map[string]string{
			"Authorization": "Bearer " + r.APIKey,
			"Content-Type":  "application/json",
		},
	}, nil
}
