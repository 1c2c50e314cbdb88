package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mitchellh/mapstructure"

	"github.com/nugget/scribe-ai-agent/internal/policy"
	"github.com/nugget/scribe-ai-agent/internal/project"
	"github.com/nugget/scribe-ai-agent/internal/workspace"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`

	// Capability gates the tool behind a config toggle. CapabilityNone
	// tools always run.
	Capability policy.Capability `json:"-"`

	// PathArgs names the string arguments that are workspace-relative
	// paths. Every one is checked against the denylist before the
	// handler runs.
	PathArgs []string `json:"-"`

	Handler func(ctx context.Context, args map[string]any) (any, error) `json:"-"`
}

// Registry holds the tools for one project. Registries are cheap;
// build one per agent run.
type Registry struct {
	tools    map[string]*Tool
	order    []string
	projects *project.Store
	pid      string
	ws       *workspace.Workspace
	toggles  policy.Toggles
	logger   *slog.Logger
}

// NewRegistry creates a tool registry bound to a project's workspace
// and the current capability toggles.
func NewRegistry(projects *project.Store, pid string, ws *workspace.Workspace, toggles policy.Toggles, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		tools:    make(map[string]*Tool),
		projects: projects,
		pid:      pid,
		ws:       ws,
		toggles:  toggles,
		logger:   logger,
	}
	r.registerBuiltins()
	return r
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// List returns all tools in the chat-completions schema.
func (r *Registry) List() []map[string]any {
	var result []map[string]any
	for _, name := range r.order {
		t := r.tools[name]
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Execute runs a tool by name. Capability toggles and path denylist
// checks happen here so individual handlers cannot forget them.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	tool := r.tools[name]
	if tool == nil {
		return nil, Errorf(CodeUnknownTool, http.StatusBadRequest, "Unknown tool")
	}

	if !r.toggles.Allows(tool.Capability) {
		return nil, Errorf(CodePolicyDenied, http.StatusForbidden,
			"%s is disabled (set %s to enable).", tool.Name, tool.Capability.ConfigKey())
	}

	for _, argName := range tool.PathArgs {
		p, _ := args[argName].(string)
		if policy.IsDenied(p) {
			return nil, Errorf(CodePolicyDenied, http.StatusForbidden, "Path is not allowed for agent tools.")
		}
	}

	return tool.Handler(ctx, args)
}

// Dispatch runs a tool and serializes the outcome for the tool role
// message. Failures become structured JSON results; nothing here
// terminates the agent loop.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) string {
	out, err := r.Execute(ctx, name, args)
	if err != nil {
		te := asToolError(err)
		r.logger.Debug("tool failed",
			"tool", name,
			"code", string(te.Code),
			"detail", te.Detail)
		out = map[string]any{
			"error":       true,
			"status_code": te.Status,
			"detail":      te.Detail,
		}
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return `{"error":true,"status_code":500,"detail":"result not serializable"}`
	}
	return string(encoded)
}

// decodeArgs maps loosely-typed model arguments onto a typed struct.
// Numbers arrive as float64 from JSON; weak decoding absorbs that.
func decodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Errorf(CodeArgumentInvalid, http.StatusBadRequest, "argument decoder: %v", err)
	}
	if err := dec.Decode(args); err != nil {
		return Errorf(CodeArgumentInvalid, http.StatusBadRequest, "invalid arguments: %v", err)
	}
	return nil
}
