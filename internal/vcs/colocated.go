package vcs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ColocatedBackend models the workspace-colocated shape (Jujutsu-style):
// every workspace shares one underlying object store instead of being a
// full separate checkout. A real jj backend would shell out to `jj
// workspace add`/`jj workspace forget` against a colocated .jj/.git
// store; since no jj binary can be assumed present in this environment,
// this is a deliberate simplification documented in DESIGN.md: each
// workspace is a git worktree of repoDir (sharing its object store) on its
// own branch, with a .spec-kitty-workspace.json manifest standing in for
// the shared-store bookkeeping jj itself would do. It satisfies the same
// Backend contract so callers never special-case it beyond Capabilities.
type ColocatedBackend struct{}

func (b *ColocatedBackend) Capabilities() Capabilities {
	return Capabilities{SharedObjectStore: true, NativeConflictDetection: false}
}

type colocatedManifest struct {
	Branch     string    `json:"branch"`
	BaseCommit string    `json:"base_commit"`
	CreatedAt  time.Time `json:"created_at"`
}

func manifestPath(path string) string {
	return filepath.Join(path, ".spec-kitty-workspace.json")
}

// CreateWorkspace resolves baseBranchOrCommit, adds a detached git worktree
// of repoDir at path on that commit, creates the logical branch name in
// it, then records a manifest (branch, base commit, creation time) that
// GetWorkspaceInfo reads back. The worktree shares repoDir's object store.
func (b *ColocatedBackend) CreateWorkspace(repoDir, path, name, baseBranchOrCommit string) (WorkspaceInfo, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return WorkspaceInfo{}, fmt.Errorf("creating workspace directory: %w", err)
	}

	head, err := runGit(repoDir, "rev-parse", baseBranchOrCommit)
	if err != nil {
		return WorkspaceInfo{}, fmt.Errorf("resolving base %q: %w", baseBranchOrCommit, err)
	}

	if _, err := runGit(repoDir, "worktree", "add", "--detach", path, head); err != nil {
		return WorkspaceInfo{}, fmt.Errorf("materializing colocated workspace: %w", err)
	}
	if _, err := runGit(path, "checkout", "-b", name); err != nil {
		return WorkspaceInfo{}, fmt.Errorf("creating logical branch %q: %w", name, err)
	}

	info := WorkspaceInfo{Path: path, Branch: name, BaseCommit: head, CreatedAt: time.Now().UTC()}
	if err := writeManifest(path, info); err != nil {
		return WorkspaceInfo{}, err
	}
	return info, nil
}

func writeManifest(path string, info WorkspaceInfo) error {
	m := colocatedManifest{Branch: info.Branch, BaseCommit: info.BaseCommit, CreatedAt: info.CreatedAt}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(manifestPath(path), data, 0o644)
}

func readManifest(path string) (colocatedManifest, error) {
	data, err := os.ReadFile(manifestPath(path))
	if err != nil {
		return colocatedManifest{}, err
	}
	var m colocatedManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return colocatedManifest{}, err
	}
	return m, nil
}

func (b *ColocatedBackend) RemoveWorkspace(repoDir, path string) error {
	_, err := runGit(repoDir, "worktree", "remove", "--force", path)
	if err != nil {
		_, err = runGit(repoDir, "worktree", "prune")
	}
	return err
}

func (b *ColocatedBackend) ListWorkspaces(repoDir string) ([]WorkspaceInfo, error) {
	gw := &GitWorktreeBackend{}
	return gw.ListWorkspaces(repoDir)
}

func (b *ColocatedBackend) GetWorkspaceInfo(repoDir, path string) (WorkspaceInfo, error) {
	m, err := readManifest(path)
	if err != nil {
		return WorkspaceInfo{}, fmt.Errorf("reading colocated manifest: %w", err)
	}
	return WorkspaceInfo{Path: path, Branch: m.Branch, BaseCommit: m.BaseCommit, CreatedAt: m.CreatedAt}, nil
}

func (b *ColocatedBackend) GetLastCommitTime(path string) (time.Time, error) {
	out, err := runGit(path, "log", "-1", "--format=%ct")
	if err != nil {
		return time.Time{}, err
	}
	sec, err := strconv.ParseInt(out, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing commit timestamp %q: %w", out, err)
	}
	return time.Unix(sec, 0).UTC(), nil
}

func (b *ColocatedBackend) Commit(path, message string, paths []string) error {
	gw := &GitWorktreeBackend{}
	return gw.Commit(path, message, paths)
}

func (b *ColocatedBackend) GetChanges(path, rangeSpec string) ([]string, error) {
	gw := &GitWorktreeBackend{}
	return gw.GetChanges(path, rangeSpec)
}

// DetectConflicts always returns empty: the colocated simplification
// materializes a flat checkout rather than tracking jj's operation log, so
// there is no native conflict marker surface to inspect. Conflict handling
// for this backend shape falls to the merge coordinator's own diffing.
func (b *ColocatedBackend) DetectConflicts(path string) ([]string, error) {
	return nil, nil
}

func (b *ColocatedBackend) HasConflicts(path string) (bool, error) {
	return false, nil
}
