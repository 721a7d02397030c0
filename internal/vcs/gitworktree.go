package vcs

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sabhiram/go-gitignore"
)

// GitWorktreeBackend is the separate-checkout backend: each workspace is
// a full `git worktree add` checkout on its own branch. Adapted directly
// from the teacher's internal/git.Repo (CreateWorktree, CommitsBetween,
// EnsureIdentity, Rebase-with-reset-on-conflict).
type GitWorktreeBackend struct {
	// IgnorePatterns, when set, filters generated/ignored paths out of
	// GetChanges (e.g. lockfiles, vendored output a reviewer never wants
	// to see as "changed").
	IgnorePatterns []string
}

func (b *GitWorktreeBackend) Capabilities() Capabilities {
	return Capabilities{SeparateCheckouts: true, NativeConflictDetection: true}
}

// CreateWorkspace creates a worktree at path on a new branch named name,
// based on baseBranchOrCommit. It fails if the branch already has a
// worktree checked out anywhere in the repo.
func (b *GitWorktreeBackend) CreateWorkspace(repoDir, path, name, baseBranchOrCommit string) (WorkspaceInfo, error) {
	inUse, err := b.branchHasWorktree(repoDir, name)
	if err != nil {
		return WorkspaceInfo{}, err
	}
	if inUse {
		return WorkspaceInfo{}, fmt.Errorf("branch %q already checked out in another worktree", name)
	}

	if err := ensureIdentity(repoDir); err != nil {
		return WorkspaceInfo{}, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return WorkspaceInfo{}, fmt.Errorf("creating workspace parent directory: %w", err)
	}

	branchExists, _ := runGit(repoDir, "rev-parse", "--verify", name)
	if branchExists == "" {
		if _, err := runGit(repoDir, "worktree", "add", "-b", name, path, baseBranchOrCommit); err != nil {
			return WorkspaceInfo{}, fmt.Errorf("creating worktree: %w", err)
		}
	} else {
		if _, err := runGit(repoDir, "worktree", "add", path, name); err != nil {
			return WorkspaceInfo{}, fmt.Errorf("creating worktree: %w", err)
		}
	}

	head, err := runGit(path, "rev-parse", "HEAD")
	if err != nil {
		return WorkspaceInfo{}, err
	}

	return WorkspaceInfo{Path: path, Branch: name, BaseCommit: head, CreatedAt: time.Now().UTC()}, nil
}

func (b *GitWorktreeBackend) branchHasWorktree(repoDir, branch string) (bool, error) {
	out, err := runGit(repoDir, "worktree", "list", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("listing worktrees: %w", err)
	}
	target := "refs/heads/" + branch
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "branch ") && strings.TrimSpace(strings.TrimPrefix(line, "branch ")) == target {
			return true, nil
		}
	}
	return false, nil
}

func (b *GitWorktreeBackend) RemoveWorkspace(repoDir, path string) error {
	_, err := runGit(repoDir, "worktree", "remove", "--force", path)
	if err != nil {
		_, err = runGit(repoDir, "worktree", "prune")
	}
	return err
}

func (b *GitWorktreeBackend) ListWorkspaces(repoDir string) ([]WorkspaceInfo, error) {
	out, err := runGit(repoDir, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("listing worktrees: %w", err)
	}
	var infos []WorkspaceInfo
	var cur WorkspaceInfo
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			if cur.Path != "" {
				infos = append(infos, cur)
			}
			cur = WorkspaceInfo{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "branch "):
			cur.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		case strings.HasPrefix(line, "HEAD "):
			cur.BaseCommit = strings.TrimPrefix(line, "HEAD ")
		}
	}
	if cur.Path != "" {
		infos = append(infos, cur)
	}
	return infos, nil
}

func (b *GitWorktreeBackend) GetWorkspaceInfo(repoDir, path string) (WorkspaceInfo, error) {
	infos, err := b.ListWorkspaces(repoDir)
	if err != nil {
		return WorkspaceInfo{}, err
	}
	absPath, _ := filepath.Abs(path)
	for _, info := range infos {
		if abs, _ := filepath.Abs(info.Path); abs == absPath {
			return info, nil
		}
	}
	return WorkspaceInfo{}, fmt.Errorf("no workspace found at %s", path)
}

// GetLastCommitTime returns the commit timestamp at HEAD of the
// workspace's own branch (not the shared repo's history), used by
// scheduler staleness detection.
func (b *GitWorktreeBackend) GetLastCommitTime(path string) (time.Time, error) {
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

func (b *GitWorktreeBackend) Commit(path, message string, paths []string) error {
	if len(paths) == 0 {
		if _, err := runGit(path, "add", "-A"); err != nil {
			return fmt.Errorf("staging changes: %w", err)
		}
	} else {
		args := append([]string{"add"}, paths...)
		if _, err := runGit(path, args...); err != nil {
			return fmt.Errorf("staging changes: %w", err)
		}
	}
	if _, err := runGit(path, "commit", "--no-verify", "-m", message); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

// GetChanges returns files changed in rangeSpec (e.g. "base..HEAD"), or
// the uncommitted changes to tracked files relative to HEAD when
// rangeSpec is "". Entries matching IgnorePatterns are filtered out.
func (b *GitWorktreeBackend) GetChanges(path, rangeSpec string) ([]string, error) {
	args := []string{"diff", "--name-only"}
	if rangeSpec != "" {
		args = append(args, rangeSpec)
	} else {
		args = append(args, "HEAD")
	}
	out, err := runGit(path, args...)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	files := strings.Split(out, "\n")
	if len(b.IgnorePatterns) == 0 {
		return files, nil
	}
	gi := ignore.CompileIgnoreLines(b.IgnorePatterns...)
	var kept []string
	for _, f := range files {
		if !gi.MatchesPath(f) {
			kept = append(kept, f)
		}
	}
	return kept, nil
}

// DetectConflicts returns the paths currently in a conflicted state.
func (b *GitWorktreeBackend) DetectConflicts(path string) ([]string, error) {
	out, err := runGit(path, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

func (b *GitWorktreeBackend) HasConflicts(path string) (bool, error) {
	conflicts, err := b.DetectConflicts(path)
	if err != nil {
		return false, err
	}
	return len(conflicts) > 0, nil
}

// ensureIdentity sets user.name/user.email locally if unresolvable, to
// avoid "Author identity unknown" in agentic/CI environments. Carried
// from the teacher's Repo.EnsureIdentity.
func ensureIdentity(repoDir string) error {
	if _, err := runGit(repoDir, "config", "user.name"); err != nil {
		if _, err := runGit(repoDir, "config", "user.name", "spec-kitty"); err != nil {
			return err
		}
	}
	if _, err := runGit(repoDir, "config", "user.email"); err != nil {
		if _, err := runGit(repoDir, "config", "user.email", "spec-kitty@localhost"); err != nil {
			return err
		}
	}
	return nil
}

// Rebase rebases the current branch in workspaceDir onto targetBranch. On
// conflict it aborts and hard-resets to targetBranch: workspace branches
// are disposable implementation branches, so discarding a stale conflicted
// rebase and letting the agent regenerate from a clean base is preferable
// to leaving the workspace mid-conflict. Carried from the teacher's
// rebaseWorktree/Repo.Rebase.
func Rebase(workspaceDir, targetBranch string) error {
	abortRebase(workspaceDir)

	if _, err := runGit(workspaceDir, "rebase", targetBranch); err != nil {
		abortRebase(workspaceDir)
		if _, resetErr := runGit(workspaceDir, "reset", "--hard", targetBranch); resetErr != nil {
			return fmt.Errorf("git rebase %s failed and reset also failed: %w", targetBranch, resetErr)
		}
	}
	return nil
}

func abortRebase(workspaceDir string) {
	_, _ = runGit(workspaceDir, "rebase", "--abort")
}
