// Package config handles Scribe configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./scribe.yaml, ~/.config/scribe/config.yaml, /etc/scribe/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"scribe.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "scribe", "config.yaml"))
	}

	paths = append(paths, "/etc/scribe/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Scribe configuration.
type Config struct {
	Listen       ListenConfig       `yaml:"listen"`
	OpenAI       OpenAIConfig       `yaml:"openai"`
	Ollama       OllamaConfig       `yaml:"ollama"`
	Agent        AgentConfig        `yaml:"agent"`
	Capabilities CapabilitiesConfig `yaml:"capabilities"`
	DemoMode     bool               `yaml:"demo_mode"`
	DataDir      string             `yaml:"data_dir"`
	LogLevel     string             `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// OpenAIConfig defines OpenAI API settings.
type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
}

// OllamaConfig defines the local inference backend.
type OllamaConfig struct {
	// URL is the Ollama base URL (default http://localhost:11434).
	URL string `yaml:"url"`
	// SupportsTools enables tool calling for Ollama-served models.
	// Many local models produce malformed tool calls, so this is a
	// separate opt-in from agent.tools_enabled.
	SupportsTools bool `yaml:"supports_tools"`
}

// AgentConfig defines agent loop behavior.
type AgentConfig struct {
	// ToolsEnabled globally enables tool calling. When false the agent
	// answers from conversation context alone.
	ToolsEnabled bool `yaml:"tools_enabled"`
	// MaxSteps bounds the tool-calling loop. Clamped into [1, 20] at
	// run time.
	MaxSteps int `yaml:"max_steps"`
}

// CapabilitiesConfig gates classes of privileged tool operations.
// Each toggle is read at dispatch time for every tool call; there is no
// per-project override.
type CapabilitiesConfig struct {
	AllowWrite            bool `yaml:"allow_write"`
	AllowDelete           bool `yaml:"allow_delete"`
	AllowRename           bool `yaml:"allow_rename"`
	AllowInstructionsEdit bool `yaml:"allow_instructions_edit"`
}

// Load reads configuration from a YAML file. Values start from
// Default() so a sparse file only overrides what it mentions.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen:  ListenConfig{Port: 8080},
		DataDir: "data",
		Ollama: OllamaConfig{
			URL: "http://localhost:11434",
		},
		Agent: AgentConfig{
			ToolsEnabled: true,
			MaxSteps:     8,
		},
		Capabilities: CapabilitiesConfig{
			AllowWrite:            true,
			AllowDelete:           false,
			AllowRename:           true,
			AllowInstructionsEdit: true,
		},
	}
}
