// Scribe is a workspace-confined project agent.
//
// It manages projects with isolated file workspaces, runs a
// tool-calling agent loop against OpenAI or a local Ollama server, and
// exposes an HTTP API for projects, chats, and direct file operations.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	scribe serve             Start the API server
//	scribe init [dir]        Initialize a working directory with defaults
//	scribe version           Print version and build information
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/nugget/scribe-ai-agent/internal/agent"
	"github.com/nugget/scribe-ai-agent/internal/api"
	"github.com/nugget/scribe-ai-agent/internal/buildinfo"
	"github.com/nugget/scribe-ai-agent/internal/config"
	"github.com/nugget/scribe-ai-agent/internal/llm"
	"github.com/nugget/scribe-ai-agent/internal/policy"
	"github.com/nugget/scribe-ai-agent/internal/project"
	"github.com/nugget/scribe-ai-agent/internal/transcript"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main is intentionally minimal. It constructs the OS-level environment
// and delegates to [run] so the lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run parses arguments and dispatches to the subcommands. Arguments
// are parsed by hand; the flag package's package-level globals make
// concurrent test runs awkward and the surface here is tiny.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		fmt.Fprintln(stdout, buildinfo.String())
		return nil
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintf(w, `Scribe, a workspace-confined project agent

Usage:
  scribe serve             Start the API server
  scribe init [dir]        Initialize a working directory with defaults
  scribe version           Print version and build information

Flags:
  -config <path>           Use an explicit config file
`)
	return nil
}

// runInit writes a starter config into dir.
func runInit(stdout io.Writer, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	path := filepath.Join(dir, "scribe.yaml")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	starter := `# Scribe configuration
listen:
  port: 8080

openai:
  api_key: "${OPENAI_API_KEY}"

ollama:
  url: "http://localhost:11434"
  supports_tools: false

agent:
  tools_enabled: true
  max_steps: 8

capabilities:
  allow_write: true
  allow_delete: false
  allow_rename: true
  allow_instructions_edit: true

data_dir: "data"
log_level: "info"
`
	if err := os.WriteFile(path, []byte(starter), 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(stdout, "wrote %s\n", path)
	return nil
}

// runServe loads configuration, wires the stores and agent, and blocks
// until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	path, err := config.FindConfig(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
	slog.SetDefault(logger)

	logger.Info("starting",
		"version", buildinfo.Version,
		"commit", buildinfo.GitCommit,
		"config", path)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	dsn := filepath.Join(cfg.DataDir, "scribe.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	projects, err := project.NewStore(db, cfg.DataDir)
	if err != nil {
		return err
	}
	transcripts, err := transcript.NewStore(db)
	if err != nil {
		return err
	}

	resolver := &llm.Resolver{
		APIKey:              cfg.OpenAI.APIKey,
		OllamaURL:           cfg.Ollama.URL,
		OllamaSupportsTools: cfg.Ollama.SupportsTools,
		DemoMode:            cfg.DemoMode,
	}
	if cfg.DemoMode {
		logger.Warn("demo mode enabled, live AI calls are disabled")
	}

	ag := agent.New(projects, resolver, agent.Options{
		Toggles: policy.Toggles{
			AllowWrite:            cfg.Capabilities.AllowWrite,
			AllowDelete:           cfg.Capabilities.AllowDelete,
			AllowRename:           cfg.Capabilities.AllowRename,
			AllowInstructionsEdit: cfg.Capabilities.AllowInstructionsEdit,
		},
		ToolsEnabled: cfg.Agent.ToolsEnabled,
		MaxSteps:     cfg.Agent.MaxSteps,
		Logger:       logger,
	})

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, projects, transcripts, ag, logger)
	server.SetVoiceCredentials(cfg.OpenAI.APIKey, cfg.DemoMode)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", "error", err)
	}
	logger.Info("stopped", "uptime", buildinfo.Uptime())
	return nil
}
