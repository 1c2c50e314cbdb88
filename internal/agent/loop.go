// Package agent runs the tool-calling conversation loop: send the
// conversation to the model, execute any tool calls it makes, feed the
// results back, and repeat until the model answers in plain text or
// the step ceiling is hit.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nugget/scribe-ai-agent/internal/llm"
	"github.com/nugget/scribe-ai-agent/internal/policy"
	"github.com/nugget/scribe-ai-agent/internal/project"
	"github.com/nugget/scribe-ai-agent/internal/tools"
	"github.com/nugget/scribe-ai-agent/internal/workspace"
)

// StepsExceededReply is the canned final answer when the loop hits the
// step ceiling. Exhaustion is a normal completion, not an error.
const StepsExceededReply = "Error: tool loop exceeded maximum steps."

// Step ceiling bounds. Whatever the configuration says, a run gets at
// least one step and at most MaxStepCeiling.
const (
	DefaultMaxSteps = 8
	MaxStepCeiling  = 20
)

// Agent executes chat turns for projects.
type Agent struct {
	projects *project.Store
	resolver *llm.Resolver

	toggles      policy.Toggles
	toolsEnabled bool
	maxSteps     int
	logger       *slog.Logger

	// newClient is a seam for tests; production uses NewChatClient.
	newClient func(llm.Provider) llm.Client
}

// Options configure an Agent.
type Options struct {
	Toggles      policy.Toggles
	ToolsEnabled bool
	MaxSteps     int
	Logger       *slog.Logger
}

// New creates an agent over the given project store and provider
// resolver.
func New(projects *project.Store, resolver *llm.Resolver, opts Options) *Agent {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxSteps := opts.MaxSteps
	if maxSteps == 0 {
		maxSteps = DefaultMaxSteps
	}
	a := &Agent{
		projects:     projects,
		resolver:     resolver,
		toggles:      opts.Toggles,
		toolsEnabled: opts.ToolsEnabled,
		maxSteps:     maxSteps,
		logger:       logger,
	}
	a.newClient = func(p llm.Provider) llm.Client {
		return llm.NewChatClient(p, logger)
	}
	return a
}

// Run executes one agent turn for a project: the full conversation in,
// the assistant's final text out. Tool traffic stays internal.
func (a *Agent) Run(ctx context.Context, p project.Project, messages []llm.Message) (string, error) {
	if a.resolver.ShouldDemo(p.Model) {
		return llm.DemoReply, nil
	}

	provider, err := a.resolver.Resolve(p.Model)
	if err != nil {
		return "", err
	}
	client := a.newClient(provider)

	ws, err := workspace.New(a.projects.WorkspaceRoot(p))
	if err != nil {
		return "", fmt.Errorf("open workspace: %w", err)
	}
	registry := tools.NewRegistry(a.projects, p.ID, ws, a.toggles, a.logger)

	cleaned := cleanMessages(messages)
	convo := make([]llm.Message, 0, len(cleaned)+2)
	if prompt := strings.TrimSpace(p.SystemPrompt); prompt != "" {
		convo = append(convo, llm.Message{Role: "system", Content: prompt})
	}
	convo = append(convo, llm.Message{Role: "system", Content: a.capabilitiesPrompt(p.ID, ws.Root(), registry)})
	convo = append(convo, cleaned...)

	// The authorization check keys off the human's own words, never
	// off anything the model or a tool produced mid-loop.
	lastUserMessage := ""
	for i := len(cleaned) - 1; i >= 0; i-- {
		if cleaned[i].Role == "user" {
			lastUserMessage = cleaned[i].Content
			break
		}
	}
	toolCtx := tools.WithLastUserMessage(ctx, lastUserMessage)

	var schemas []map[string]any
	if a.toolsEnabled {
		schemas = registry.List()
	}

	steps := a.maxSteps
	if steps < 1 {
		steps = 1
	}
	if steps > MaxStepCeiling {
		steps = MaxStepCeiling
	}

	for step := 0; step < steps; step++ {
		resp, err := client.Chat(ctx, convo, schemas)
		if err != nil {
			return "", err
		}
		msg := resp.Message

		if len(msg.ToolCalls) == 0 {
			return strings.TrimSpace(msg.Content), nil
		}

		convo = append(convo, llm.Message{
			Role:      "assistant",
			Content:   msg.Content,
			ToolCalls: msg.ToolCalls,
		})

		for _, tc := range msg.ToolCalls {
			a.logger.Debug("tool call",
				"project", p.ID,
				"step", step,
				"tool", tc.Function.Name)

			result := registry.Dispatch(toolCtx, tc.Function.Name, tc.Function.Arguments)
			convo = append(convo, llm.Message{
				Role:       "tool",
				ToolCallID: tc.ID,
				Content:    result,
			})
		}
	}

	a.logger.Warn("tool loop exhausted", "project", p.ID, "steps", steps)
	return StepsExceededReply, nil
}

// Chat executes a plain completion without tools: the project system
// prompt plus the conversation, one round trip.
func (a *Agent) Chat(ctx context.Context, p project.Project, messages []llm.Message) (string, error) {
	if a.resolver.ShouldDemo(p.Model) {
		return llm.DemoReply, nil
	}

	provider, err := a.resolver.Resolve(p.Model)
	if err != nil {
		return "", err
	}
	client := a.newClient(provider)

	cleaned := cleanMessages(messages)
	convo := make([]llm.Message, 0, len(cleaned)+1)
	if prompt := strings.TrimSpace(p.SystemPrompt); prompt != "" {
		convo = append(convo, llm.Message{Role: "system", Content: prompt})
	}
	convo = append(convo, cleaned...)

	resp, err := client.Chat(ctx, convo, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Message.Content), nil
}

// cleanMessages keeps only the roles a provider accepts in history and
// drops everything else (tool residue, empty roles).
func cleanMessages(messages []llm.Message) []llm.Message {
	cleaned := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system", "user", "assistant":
			cleaned = append(cleaned, llm.Message{Role: m.Role, Content: m.Content})
		}
	}
	return cleaned
}

// capabilitiesPrompt tells the model what it can touch and under what
// rules, injected as a system message every turn.
func (a *Agent) capabilitiesPrompt(pid, root string, registry *tools.Registry) string {
	var b strings.Builder
	b.WriteString("You have local file tools via this server.\n")
	fmt.Fprintf(&b, "- Project id: %s\n", pid)
	fmt.Fprintf(&b, "- Project root (absolute): %s\n", root)
	fmt.Fprintf(&b, "- Tools: %s\n", strings.Join(registry.Names(), ", "))
	fmt.Fprintf(&b, "- write_file allowed: %t\n", a.toggles.AllowWrite)
	fmt.Fprintf(&b, "- delete_path allowed: %t\n", a.toggles.AllowDelete)
	fmt.Fprintf(&b, "- move_path allowed: %t\n", a.toggles.AllowRename)
	fmt.Fprintf(&b, "- set_project_instructions allowed: %t\n", a.toggles.AllowInstructionsEdit)
	b.WriteString("- All tool paths MUST be relative to the project root.\n")
	b.WriteString("- Never try to access secrets (for example `.env`, `.pem`, `.key`) or `.git`/`node_modules`.\n")
	b.WriteString("- You may suggest short instruction/rule changes, but DO NOT apply them unless the user explicitly includes `" +
		tools.AuthorizationToken + "` in their most recent message.\n")
	b.WriteString("- If asked to change code/files, use the tools and be explicit about what you will read/write.\n")
	return b.String()
}
