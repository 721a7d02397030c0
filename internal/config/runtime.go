package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/fileutil"
)

// managedDirs is the closed set of directories the runtime home bootstrap
// owns. Anything else under the home is left untouched; missions/custom/
// is explicitly user-owned and must never be overwritten (spec §6).
var managedDirs = []string{"missions", "templates", "scripts", "hooks", "cache"}

// unmanagedDirs are created if missing but never overwritten/repaired by
// bootstrap.
var unmanagedDirs = []string{filepath.Join("missions", "custom")}

const versionLockFile = "version.lock"
const managedHookMarker = "SPEC_KITTY_MANAGED_HOOK_SHIM=1"

// RuntimeHome resolves ~/.kittify, honoring the SPEC_KITTY_HOME override.
// Grounded on the teacher's findGitRoot walk-up idiom (internal/cli/helpers.go),
// generalized here into a single fixed-location resolver since the runtime
// home is not discovered by walking the filesystem, just overridden by env.
func RuntimeHome() (string, error) {
	if override := os.Getenv("SPEC_KITTY_HOME"); override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving user home directory: %w", err)
	}
	return filepath.Join(home, ".kittify"), nil
}

// Bootstrap ensures the runtime home's managed directory set exists,
// writes the version lock if absent or stale, and returns the resolved
// home path. It is safe to call from multiple concurrent processes: a
// file lock guards the directory-creation step.
func Bootstrap(version string) (string, error) {
	home, err := RuntimeHome()
	if err != nil {
		return "", err
	}

	lockPath := home + ".bootstrap.lock"
	if err := fileutil.EnsureDir(home); err != nil {
		return "", fmt.Errorf("creating runtime home: %w", err)
	}
	lock, err := fileutil.Lock(lockPath)
	if err != nil {
		return "", fmt.Errorf("acquiring bootstrap lock: %w", err)
	}
	defer lock.Unlock()

	for _, d := range managedDirs {
		if err := fileutil.EnsureDir(filepath.Join(home, d)); err != nil {
			return "", fmt.Errorf("creating managed directory %s: %w", d, err)
		}
	}
	for _, d := range unmanagedDirs {
		if err := fileutil.EnsureDir(filepath.Join(home, d)); err != nil {
			return "", fmt.Errorf("creating user-owned directory %s: %w", d, err)
		}
	}

	if err := writeVersionLockIfStale(home, version); err != nil {
		return "", err
	}
	return home, nil
}

// IsManagedPath reports whether rel (relative to the runtime home) falls
// under the closed managed set and is NOT inside a user-owned exclusion
// (missions/custom/). Bootstrap and any repair pass must consult this
// before overwriting a file.
func IsManagedPath(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, u := range unmanagedDirs {
		if strings.HasPrefix(rel, filepath.ToSlash(u)+"/") || rel == filepath.ToSlash(u) {
			return false
		}
	}
	for _, d := range managedDirs {
		if strings.HasPrefix(rel, d+"/") || rel == d {
			return true
		}
	}
	return false
}

func writeVersionLockIfStale(home, version string) error {
	path := filepath.Join(home, "cache", versionLockFile)
	existing, err := os.ReadFile(path)
	if err == nil && strings.TrimSpace(string(existing)) == version {
		return nil
	}
	return os.WriteFile(path, []byte(version+"\n"), 0o644)
}

// InstalledVersion reads the version recorded by the last Bootstrap call,
// or "" if none has run yet.
func InstalledVersion(home string) string {
	data, err := os.ReadFile(filepath.Join(home, "cache", versionLockFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// InstallHookShim writes a thin shim at repoDir/.git/hooks/<name> that
// execs the real hook script from the runtime home's hooks/ directory,
// marked with managedHookMarker so a later bootstrap can recognize and
// safely replace it. A pre-existing, non-managed (user-authored) hook is
// left untouched unless force is true (spec §6).
func InstallHookShim(repoDir, home, name string, force bool) error {
	hookPath := filepath.Join(repoDir, ".git", "hooks", name)
	if existing, err := os.ReadFile(hookPath); err == nil {
		if !strings.Contains(string(existing), managedHookMarker) && !force {
			return fmt.Errorf("hook %s is not managed by spec-kitty; refusing to overwrite without --force", name)
		}
	}

	shim := fmt.Sprintf("#!/bin/sh\n# %s\nexec %q \"$@\"\n", managedHookMarker, filepath.Join(home, "hooks", name))
	if err := os.MkdirAll(filepath.Dir(hookPath), 0o755); err != nil {
		return fmt.Errorf("creating hooks directory: %w", err)
	}
	return os.WriteFile(hookPath, []byte(shim), 0o755)
}

// GlobalSettings are the rarely-changing, viper-layered defaults: telemetry
// opt-out, default agent command, and fallback agent list.
type GlobalSettings struct {
	TelemetryOptOut bool     `mapstructure:"telemetry_opt_out"`
	DefaultAgent    string   `mapstructure:"default_agent"`
	FallbackAgents  []string `mapstructure:"fallback_agents"`
}

// GlobalLoader layers global runtime settings over a YAML base in the
// runtime home, following the pack's viper-over-YAML pattern
// (hugo-lorenzo-mato-quorum-ai's internal/config.Loader and
// cloudshipai-station's load.go).
type GlobalLoader struct {
	v    *viper.Viper
	mu   sync.Mutex
	home string
}

func NewGlobalLoader(home string) *GlobalLoader {
	v := viper.New()
	v.SetDefault("telemetry_opt_out", false)
	v.SetDefault("default_agent", "")
	v.SetDefault("fallback_agents", []string{})
	v.SetConfigName("settings")
	v.SetConfigType("yaml")
	v.AddConfigPath(home)
	v.SetEnvPrefix("SPEC_KITTY")
	v.AutomaticEnv()
	return &GlobalLoader{v: v, home: home}
}

// Load reads settings.yaml from the runtime home, tolerating a missing
// file (defaults apply).
func (l *GlobalLoader) Load() (*GlobalSettings, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading global settings: %w", err)
		}
	}
	var s GlobalSettings
	if err := l.v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshaling global settings: %w", err)
	}
	return &s, nil
}

// WatchForChanges installs an fsnotify watch on the runtime home and
// invokes onChange whenever settings.yaml is rewritten, so a long-lived
// process (the scheduler, the sync daemon) can pick up a telemetry
// opt-out or default-agent change without restarting.
func (l *GlobalLoader) WatchForChanges(onChange func(*GlobalSettings)) (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating settings watcher: %w", err)
	}
	if err := watcher.Add(l.home); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching runtime home: %w", err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != "settings.yaml" {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if s, err := l.Load(); err == nil {
					onChange(s)
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return watcher.Close, nil
}
