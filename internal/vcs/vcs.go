// Package vcs is the uniform capability surface over the two backend
// shapes the core supports for isolated per-work-package workspaces:
// git-worktree (separate checkouts of the same repository) and
// workspace-colocated (lightweight workspaces sharing underlying object
// storage, the Jujutsu model). It generalizes the teacher's
// internal/git.Repo, which hard-coded the git-worktree shape; the
// interface here lets callers feature-gate on Capabilities instead.
package vcs

import "time"

// Capabilities advertises what a backend can do, so components can
// feature-gate rather than assume.
type Capabilities struct {
	SeparateCheckouts bool // git-worktree: each workspace is its own full checkout
	SharedObjectStore bool // colocated: workspaces share object storage
	NativeConflictDetection bool
}

// WorkspaceInfo is the result of any operation that creates or locates a
// workspace, carrying enough information for the scheduler to act on.
type WorkspaceInfo struct {
	Path       string
	Branch     string
	BaseCommit string
	CreatedAt  time.Time
}

// Backend is the capability surface every VCS backend implements.
type Backend interface {
	Capabilities() Capabilities

	// CreateWorkspace creates an isolated checkout at path on a new branch
	// named name, based on baseBranchOrCommit. It must fail if any
	// committed or tracked worktree already uses that branch.
	CreateWorkspace(repoDir, path, name, baseBranchOrCommit string) (WorkspaceInfo, error)
	RemoveWorkspace(repoDir, path string) error
	ListWorkspaces(repoDir string) ([]WorkspaceInfo, error)
	GetWorkspaceInfo(repoDir, path string) (WorkspaceInfo, error)

	// GetLastCommitTime returns the most recent commit timestamp on the
	// workspace's own branch, not the shared repository's history. Used by
	// scheduler staleness detection.
	GetLastCommitTime(path string) (time.Time, error)

	Commit(path, message string, paths []string) error
	GetChanges(path, rangeSpec string) ([]string, error)
	DetectConflicts(path string) ([]string, error)
	HasConflicts(path string) (bool, error)
}
