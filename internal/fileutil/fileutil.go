// Package fileutil collects small filesystem helpers shared across the
// core: directory creation, path layout for a feature directory, and a
// cross-process advisory file lock. Adapted from the teacher's
// internal/fileutil (EnsureDir) and internal/engine (per-file state
// layout), generalized from a single flat .detergent/ directory into the
// feature directory tree described in spec §6.
package fileutil

import (
	"os"
	"path/filepath"
)

// EnsureDir creates a directory and all parent directories with 0755
// permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// FeatureDir returns the directory for a feature slug under the repo's
// kitty-specs/ root.
func FeatureDir(repoDir, featureSlug string) string {
	return filepath.Join(repoDir, "kitty-specs", featureSlug)
}

// EventsLogPath returns the path to a feature's append-only event log.
func EventsLogPath(featureDir string) string {
	return filepath.Join(featureDir, "events.jsonl")
}

// SnapshotPath returns the path to a feature's materialized snapshot.
func SnapshotPath(featureDir string) string {
	return filepath.Join(featureDir, "status.json")
}

// LockPath returns the path to the sibling lock file guarding a feature's
// event log.
func LockPath(featureDir string) string {
	return filepath.Join(featureDir, ".events.lock")
}

// ExecutionEventsLogPath returns the path to a feature's append-only
// execution telemetry log.
func ExecutionEventsLogPath(featureDir string) string {
	return filepath.Join(featureDir, "execution.events.jsonl")
}

// TelemetryClockPath returns the path to a feature's Lamport clock slot.
func TelemetryClockPath(featureDir string) string {
	return filepath.Join(featureDir, ".telemetry-clock.json")
}

// MergeStatePath returns the path to a feature's in-flight merge state.
func MergeStatePath(featureDir string) string {
	return filepath.Join(featureDir, "merge-state.json")
}

// MetaPath returns the path to a feature's meta descriptor.
func MetaPath(featureDir string) string {
	return filepath.Join(featureDir, "meta.json")
}

// TasksDir returns the flat directory of per-WP markdown files.
func TasksDir(featureDir string) string {
	return filepath.Join(featureDir, "tasks")
}

// WPFilePath returns the path to a single WP's markdown file.
func WPFilePath(featureDir, wpID, slug string) string {
	name := wpID
	if slug != "" {
		name += "-" + slug
	}
	return filepath.Join(TasksDir(featureDir), name+".md")
}
