// Package config loads the per-feature orchestration config (primary and
// fallback agents, scheduler concurrency limits, merge strategy) and
// bootstraps the global runtime home. Adapted from the teacher's
// internal/config, which loaded a chain of "concerns" (sequential
// review/implement stages) into a pipeline config; here the equivalent
// role — describing how work gets dispatched — is played by the WP
// scheduler's own dependency graph (internal/scheduler), so the
// concern-chain fields are replaced with the scheduler/merge knobs this
// system actually needs. The YAML load/validate shape and the Duration
// wrapper are carried over unchanged.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/merge"
)

// Config is a feature's orchestration settings, loaded from
// kitty-specs/<feature>/config.yaml.
type Config struct {
	Agent         AgentConfig    `yaml:"agent"`
	FallbackAgents []AgentConfig `yaml:"fallback_agents,omitempty"`
	Settings      Settings       `yaml:"settings"`
}

// AgentConfig names an external agent invocation: the command to exec
// and its fixed arguments (the WP id and prompt are appended by the
// scheduler at invocation time).
type AgentConfig struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// Settings holds the scheduler and merge coordinator's tunables.
type Settings struct {
	PollInterval          Duration      `yaml:"poll_interval"`
	MaxConcurrent         int           `yaml:"max_concurrent"`
	MaxConcurrentPerAgent int           `yaml:"max_concurrent_per_agent"`
	MaxRetries            int           `yaml:"max_retries"`
	StaleAfter            Duration      `yaml:"stale_after"`
	TargetBranch          string        `yaml:"target_branch"`
	MergeStrategy         merge.Strategy `yaml:"merge_strategy"`
}

// Duration wraps time.Duration for YAML unmarshaling from strings like "10s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	if cfg.Settings.PollInterval == 0 {
		cfg.Settings.PollInterval = Duration(2 * time.Second)
	}
	if cfg.Settings.MaxConcurrent == 0 {
		cfg.Settings.MaxConcurrent = 4
	}
	if cfg.Settings.MaxConcurrentPerAgent == 0 {
		cfg.Settings.MaxConcurrentPerAgent = 2
	}
	if cfg.Settings.MaxRetries == 0 {
		cfg.Settings.MaxRetries = 2
	}
	if cfg.Settings.StaleAfter == 0 {
		cfg.Settings.StaleAfter = Duration(30 * time.Minute)
	}
	if cfg.Settings.TargetBranch == "" {
		cfg.Settings.TargetBranch = "main"
	}
	if cfg.Settings.MergeStrategy == "" {
		cfg.Settings.MergeStrategy = merge.StrategyMerge
	}

	return &cfg, nil
}

// Validate checks structural requirements: a primary agent command is
// mandatory, fallback agent names must be unique and non-empty, and the
// merge strategy must be one of the three known values.
func Validate(cfg *Config) []error {
	var errs []error

	if cfg.Agent.Command == "" {
		errs = append(errs, fmt.Errorf("agent.command is required"))
	}

	names := make(map[string]bool)
	for i, a := range cfg.FallbackAgents {
		if a.Name == "" {
			errs = append(errs, fmt.Errorf("fallback_agents[%d]: name is required", i))
		} else if names[a.Name] {
			errs = append(errs, fmt.Errorf("fallback_agents[%d]: duplicate name %q", i, a.Name))
		} else {
			names[a.Name] = true
		}
		if a.Command == "" {
			errs = append(errs, fmt.Errorf("fallback_agents[%d] (%s): command is required", i, a.Name))
		}
	}

	switch cfg.Settings.MergeStrategy {
	case merge.StrategyMerge, merge.StrategySquash, merge.StrategyRebase:
	default:
		errs = append(errs, fmt.Errorf("settings.merge_strategy: unknown strategy %q", cfg.Settings.MergeStrategy))
	}

	if cfg.Settings.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("settings.max_concurrent must be at least 1"))
	}
	if cfg.Settings.MaxConcurrentPerAgent < 1 {
		errs = append(errs, fmt.Errorf("settings.max_concurrent_per_agent must be at least 1"))
	}

	return errs
}
