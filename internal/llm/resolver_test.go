package llm

import (
	"errors"
	"testing"
)

func TestResolveOpenAI(t *testing.T) {
	r := &Resolver{APIKey: "sk-test123"}

	tests := []struct {
		uiModel   string
		wantModel string
	}{
		{"", "gpt-5"},
		{"gpt-5-instant", "gpt-5"},
		{"gpt-5-thinking-mini", "gpt-5-mini"},
		{"gpt-5-nano", "gpt-5-nano"},
		{"gpt-4o", "gpt-4o"},
		{"o4-mini", "o4-mini"},
		{"gpt-9-experimental", "gpt-9-experimental"}, // unknown names pass through
	}

	for _, tt := range tests {
		p, err := r.Resolve(tt.uiModel)
		if err != nil {
			t.Errorf("Resolve(%q) error: %v", tt.uiModel, err)
			continue
		}
		if p.Name != "openai" {
			t.Errorf("Resolve(%q).Name = %q", tt.uiModel, p.Name)
		}
		if p.Model != tt.wantModel {
			t.Errorf("Resolve(%q).Model = %q, want %q", tt.uiModel, p.Model, tt.wantModel)
		}
		if !p.SupportsTools {
			t.Errorf("Resolve(%q) should support tools", tt.uiModel)
		}
		if p.Headers["Authorization"] != "Bearer sk-test123" {
			t.Errorf("Resolve(%q) auth header = %q", tt.uiModel, p.Headers["Authorization"])
		}
	}
}

func TestResolveOllama(t *testing.T) {
	r := &Resolver{OllamaURL: "http://box:11434/"}

	tests := []struct {
		uiModel   string
		wantModel string
	}{
		{"ollama:qwen2.5-coder", "qwen2.5-coder"},
		{"OLLAMA:mistral", "mistral"},
		{"ollama:", "llama3.1"},
		{"llama3.2", "llama3.2"}, // bare llama* shortcut
	}

	for _, tt := range tests {
		p, err := r.Resolve(tt.uiModel)
		if err != nil {
			t.Errorf("Resolve(%q) error: %v", tt.uiModel, err)
			continue
		}
		if p.Name != "ollama" {
			t.Errorf("Resolve(%q).Name = %q", tt.uiModel, p.Name)
		}
		if p.Model != tt.wantModel {
			t.Errorf("Resolve(%q).Model = %q, want %q", tt.uiModel, p.Model, tt.wantModel)
		}
		if p.URL != "http://box:11434/v1/chat/completions" {
			t.Errorf("Resolve(%q).URL = %q", tt.uiModel, p.URL)
		}
		if p.SupportsTools {
			t.Errorf("Resolve(%q) tools should be off by default", tt.uiModel)
		}
	}

	r.OllamaSupportsTools = true
	p, err := r.Resolve("ollama:mistral")
	if err != nil {
		t.Fatal(err)
	}
	if !p.SupportsTools {
		t.Error("SupportsTools flag not honored")
	}
}

func TestResolveNoKey(t *testing.T) {
	for _, key := range []string{"", "not-a-key", "pk-wrong-prefix"} {
		r := &Resolver{APIKey: key}
		if _, err := r.Resolve("gpt-5"); !errors.Is(err, ErrProviderUnavailable) {
			t.Errorf("APIKey=%q: Resolve = %v, want ErrProviderUnavailable", key, err)
		}
		// Local models resolve without any key.
		if _, err := r.Resolve("ollama:mistral"); err != nil {
			t.Errorf("APIKey=%q: ollama Resolve error: %v", key, err)
		}
	}
}

func TestResolveDemoMode(t *testing.T) {
	r := &Resolver{APIKey: "sk-valid", DemoMode: true}

	if _, err := r.Resolve("gpt-5"); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("demo mode Resolve = %v, want ErrProviderUnavailable", err)
	}
	if _, err := r.Resolve("ollama:mistral"); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("demo mode ollama Resolve = %v, want ErrProviderUnavailable", err)
	}
}

func TestShouldDemo(t *testing.T) {
	tests := []struct {
		name    string
		r       Resolver
		uiModel string
		want    bool
	}{
		{"forced demo", Resolver{APIKey: "sk-x", DemoMode: true}, "gpt-5", true},
		{"forced demo local", Resolver{DemoMode: true}, "ollama:mistral", true},
		{"cloud without key", Resolver{}, "gpt-5", true},
		{"cloud bad key prefix", Resolver{APIKey: "abc"}, "gpt-5", true},
		{"cloud with key", Resolver{APIKey: "sk-x"}, "gpt-5", false},
		{"local without key", Resolver{}, "ollama:mistral", false},
		{"bare llama without key", Resolver{}, "llama3.2", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.ShouldDemo(tt.uiModel); got != tt.want {
				t.Errorf("ShouldDemo(%q) = %v, want %v", tt.uiModel, got, tt.want)
			}
		})
	}
}
