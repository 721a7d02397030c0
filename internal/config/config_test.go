package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/merge"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, "agent:\n  command: claude\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Settings.MaxConcurrent != 4 {
		t.Fatalf("expected default max_concurrent=4, got %d", cfg.Settings.MaxConcurrent)
	}
	if cfg.Settings.MergeStrategy != merge.StrategyMerge {
		t.Fatalf("expected default merge strategy, got %v", cfg.Settings.MergeStrategy)
	}
	if cfg.Settings.TargetBranch != "main" {
		t.Fatalf("expected default target branch main, got %q", cfg.Settings.TargetBranch)
	}
}

func TestLoad_ParsesDurationsAndFallbacks(t *testing.T) {
	path := writeConfig(t, `
agent:
  command: claude
  args: ["--flag"]
fallback_agents:
  - name: gpt
    command: codex
settings:
  poll_interval: 5s
  max_retries: 3
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Settings.PollInterval.Duration().String() != "5s" {
		t.Fatalf("expected 5s poll interval, got %v", cfg.Settings.PollInterval.Duration())
	}
	if len(cfg.FallbackAgents) != 1 || cfg.FallbackAgents[0].Name != "gpt" {
		t.Fatalf("expected one fallback agent named gpt, got %+v", cfg.FallbackAgents)
	}
}

func TestValidate_RequiresAgentCommand(t *testing.T) {
	cfg := &Config{Settings: Settings{MaxConcurrent: 1, MaxConcurrentPerAgent: 1, MergeStrategy: merge.StrategyMerge}}
	errs := Validate(cfg)
	if len(errs) == 0 {
		t.Fatal("expected validation error for missing agent.command")
	}
}

func TestValidate_RejectsUnknownMergeStrategy(t *testing.T) {
	cfg := &Config{
		Agent:    AgentConfig{Command: "claude"},
		Settings: Settings{MaxConcurrent: 1, MaxConcurrentPerAgent: 1, MergeStrategy: "bogus"},
	}
	errs := Validate(cfg)
	found := false
	for _, e := range errs {
		if e != nil {
			found = true
		}
	}
	if !found {
		t.Fatal("expected at least one validation error")
	}
}

func TestValidate_RejectsDuplicateFallbackAgentNames(t *testing.T) {
	cfg := &Config{
		Agent: AgentConfig{Command: "claude"},
		FallbackAgents: []AgentConfig{
			{Name: "gpt", Command: "codex"},
			{Name: "gpt", Command: "codex2"},
		},
		Settings: Settings{MaxConcurrent: 1, MaxConcurrentPerAgent: 1, MergeStrategy: merge.StrategyMerge},
	}
	errs := Validate(cfg)
	if len(errs) == 0 {
		t.Fatal("expected duplicate fallback agent name to be rejected")
	}
}
