package tools

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/scribe-ai-agent/internal/policy"
	"github.com/nugget/scribe-ai-agent/internal/project"
)

// Limits on tool payloads. Reads clamp; writes over the cap are
// rejected before touching the disk.
const (
	DefaultReadChars     = 50000
	MaxWriteBytes        = 500000
	DefaultSearchResults = 50
	MaxSearchResults     = 200
	MaxInstructionsBytes = 20000
)

func (r *Registry) registerBuiltins() {
	r.Register(&Tool{
		Name:        "get_capabilities",
		Description: "Return server and tool capabilities for the current project.",
		Parameters: map[string]any{
			"type":                 "object",
			"properties":           map[string]any{},
			"additionalProperties": false,
		},
		Handler: r.handleGetCapabilities,
	})

	r.Register(&Tool{
		Name:        "list_files",
		Description: "List files/directories at a relative path within the project root.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Relative directory path ('' for root).",
				},
			},
			"required":             []string{"path"},
			"additionalProperties": false,
		},
		PathArgs: []string{"path"},
		Handler:  r.handleListFiles,
	})

	r.Register(&Tool{
		Name:        "read_file",
		Description: "Read a UTF-8 text file at a relative path within the project root.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Relative file path.",
				},
				"max_chars": map[string]any{
					"type":        "integer",
					"description": "Max characters to return.",
					"default":     DefaultReadChars,
				},
			},
			"required":             []string{"path"},
			"additionalProperties": false,
		},
		PathArgs: []string{"path"},
		Handler:  r.handleReadFile,
	})

	r.Register(&Tool{
		Name:        "write_file",
		Description: "Write a UTF-8 text file at a relative path within the project root.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Relative file path.",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "Full file content to write.",
				},
			},
			"required":             []string{"path", "content"},
			"additionalProperties": false,
		},
		Capability: policy.CapabilityWrite,
		PathArgs:   []string{"path"},
		Handler:    r.handleWriteFile,
	})

	r.Register(&Tool{
		Name:        "mkdir",
		Description: "Create a directory at a relative path within the project root.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Relative directory path.",
				},
			},
			"required":             []string{"path"},
			"additionalProperties": false,
		},
		Capability: policy.CapabilityWrite,
		PathArgs:   []string{"path"},
		Handler:    r.handleMkdir,
	})

	r.Register(&Tool{
		Name:        "delete_path",
		Description: "Delete a file or directory (recursive) within the project root.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Relative path.",
				},
			},
			"required":             []string{"path"},
			"additionalProperties": false,
		},
		Capability: policy.CapabilityDelete,
		PathArgs:   []string{"path"},
		Handler:    r.handleDeletePath,
	})

	r.Register(&Tool{
		Name:        "move_path",
		Description: "Move/rename a file or directory within the project root.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"src": map[string]any{
					"type":        "string",
					"description": "Relative source path.",
				},
				"dst": map[string]any{
					"type":        "string",
					"description": "Relative destination path.",
				},
			},
			"required":             []string{"src", "dst"},
			"additionalProperties": false,
		},
		Capability: policy.CapabilityRename,
		PathArgs:   []string{"src", "dst"},
		Handler:    r.handleMovePath,
	})

	r.Register(&Tool{
		Name:        "search_text",
		Description: "Search for a substring in UTF-8 text files under a relative directory.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Substring to search for.",
				},
				"path": map[string]any{
					"type":        "string",
					"description": "Relative directory path to search within.",
					"default":     "",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "Max matches to return.",
					"default":     DefaultSearchResults,
				},
			},
			"required":             []string{"query"},
			"additionalProperties": false,
		},
		PathArgs: []string{"path"},
		Handler:  r.handleSearchText,
	})

	r.Register(&Tool{
		Name:        "get_project_instructions",
		Description: "Read the current project instructions (system prompt) and basic settings.",
		Parameters: map[string]any{
			"type":                 "object",
			"properties":           map[string]any{},
			"additionalProperties": false,
		},
		Handler: r.handleGetInstructions,
	})

	r.Register(&Tool{
		Name:        "set_project_instructions",
		Description: "Update the project's instructions (system prompt). Only allowed if the user explicitly authorized it in their most recent message.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"system_prompt": map[string]any{
					"type":        "string",
					"description": "New full system prompt to store for this project.",
				},
				"authorization": map[string]any{
					"type":        "string",
					"description": "Must be exactly '" + AuthorizationToken + "' and must appear in the most recent user message.",
				},
			},
			"required":             []string{"system_prompt", "authorization"},
			"additionalProperties": false,
		},
		Capability: policy.CapabilityInstructionsEdit,
		Handler:    r.handleSetInstructions,
	})
}

// Tool handlers

func (r *Registry) handleGetCapabilities(ctx context.Context, args map[string]any) (any, error) {
	dirs, files, exts := policy.Denylist()
	return map[string]any{
		"project_id":              r.pid,
		"project_root":            r.ws.Root(),
		"tools":                   r.Names(),
		"allow_write":             r.toggles.AllowWrite,
		"allow_delete":            r.toggles.AllowDelete,
		"allow_rename":            r.toggles.AllowRename,
		"allow_instructions_edit": r.toggles.AllowInstructionsEdit,
		"instructions_edit_requires": "Most recent user message must include " +
			AuthorizationToken + " on its own line.",
		"denied": map[string]any{
			"dirs":  dirs,
			"files": files,
			"exts":  exts,
		},
		"time_utc": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (r *Registry) handleListFiles(ctx context.Context, args map[string]any) (any, error) {
	var in struct {
		Path string `mapstructure:"path"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	entries, err := r.ws.List(in.Path)
	if err != nil {
		return nil, err
	}

	// Denied names are invisible even when their parent is listable.
	filtered := entries[:0]
	for _, e := range entries {
		rel := e.Name
		if in.Path != "" {
			rel = strings.TrimRight(in.Path, "/\\") + "/" + e.Name
		}
		if policy.IsDenied(rel) {
			continue
		}
		filtered = append(filtered, e)
	}
	return map[string]any{"entries": filtered}, nil
}

func (r *Registry) handleReadFile(ctx context.Context, args map[string]any) (any, error) {
	in := struct {
		Path     string `mapstructure:"path"`
		MaxChars int    `mapstructure:"max_chars"`
	}{MaxChars: DefaultReadChars}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	content, err := r.ws.Read(in.Path, in.MaxChars)
	if err != nil {
		return nil, err
	}
	return map[string]any{"path": in.Path, "content": content}, nil
}

func (r *Registry) handleWriteFile(ctx context.Context, args map[string]any) (any, error) {
	var in struct {
		Path    string `mapstructure:"path"`
		Content string `mapstructure:"content"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	if len(in.Content) > MaxWriteBytes {
		return nil, Errorf(CodeTooLarge, http.StatusRequestEntityTooLarge, "Content too large")
	}
	if err := r.ws.Write(in.Path, in.Content); err != nil {
		return nil, err
	}
	return map[string]any{"status": "ok"}, nil
}

func (r *Registry) handleMkdir(ctx context.Context, args map[string]any) (any, error) {
	var in struct {
		Path string `mapstructure:"path"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	if err := r.ws.Mkdir(in.Path); err != nil {
		return nil, err
	}
	return map[string]any{"status": "ok"}, nil
}

func (r *Registry) handleDeletePath(ctx context.Context, args map[string]any) (any, error) {
	var in struct {
		Path string `mapstructure:"path"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	if err := r.ws.Delete(in.Path); err != nil {
		return nil, err
	}
	return map[string]any{"status": "ok"}, nil
}

func (r *Registry) handleMovePath(ctx context.Context, args map[string]any) (any, error) {
	var in struct {
		Src string `mapstructure:"src"`
		Dst string `mapstructure:"dst"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	if err := r.ws.Move(in.Src, in.Dst); err != nil {
		return nil, err
	}
	return map[string]any{"status": "ok"}, nil
}

func (r *Registry) handleSearchText(ctx context.Context, args map[string]any) (any, error) {
	in := struct {
		Query      string `mapstructure:"query"`
		Path       string `mapstructure:"path"`
		MaxResults int    `mapstructure:"max_results"`
	}{MaxResults: DefaultSearchResults}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	if in.MaxResults < 1 {
		in.MaxResults = 1
	}
	if in.MaxResults > MaxSearchResults {
		in.MaxResults = MaxSearchResults
	}

	matches, truncated, err := r.ws.Search(in.Query, in.Path, in.MaxResults, policy.IsDenied)
	if err != nil {
		return nil, err
	}
	return map[string]any{"matches": matches, "truncated": truncated}, nil
}

func (r *Registry) handleGetInstructions(ctx context.Context, args map[string]any) (any, error) {
	p, err := r.projects.Get(r.pid)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":            p.ID,
		"name":          p.Name,
		"model":         p.Model,
		"root":          r.ws.Root(),
		"system_prompt": p.SystemPrompt,
		"updated_at":    p.UpdatedAt.Format(time.RFC3339),
	}, nil
}

func (r *Registry) handleSetInstructions(ctx context.Context, args map[string]any) (any, error) {
	var in struct {
		SystemPrompt  string `mapstructure:"system_prompt"`
		Authorization string `mapstructure:"authorization"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	lastUserMessage := LastUserMessageFromContext(ctx)
	if !authorizedForInstructionsEdit(lastUserMessage, in.Authorization) {
		return nil, Errorf(CodeUnauthorized, http.StatusForbidden,
			"Not authorized. Include `%s` on its own line in your most recent user message.", AuthorizationToken)
	}
	if len(in.SystemPrompt) > MaxInstructionsBytes {
		return nil, Errorf(CodeTooLarge, http.StatusRequestEntityTooLarge, "System prompt too large")
	}

	p, err := r.projects.Apply(r.pid, project.Update{SystemPrompt: &in.SystemPrompt})
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": "ok", "project": p}, nil
}
