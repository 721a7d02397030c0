package vcs

import (
	"fmt"
	"strings"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/kerrors"
)

// PreflightFailureKind is one of the closed set of git preflight checks
// the core issues before any action that assumes repository trust.
type PreflightFailureKind string

const (
	NotAGitRepository   PreflightFailureKind = "NOT_A_GIT_REPOSITORY"
	UntrustedRepository PreflightFailureKind = "UNTRUSTED_REPOSITORY"
	WorktreeListFailed  PreflightFailureKind = "WORKTREE_LIST_FAILED"
	MissingOriginRemote PreflightFailureKind = "MISSING_ORIGIN_REMOTE" // warning only
)

// PreflightResult carries every check's outcome plus a literal remediation
// command, surfaced to the caller verbatim (spec §4.A).
type PreflightResult struct {
	OK           bool
	Kind         PreflightFailureKind
	Message      string
	Remediation  string
	WarningsOnly []PreflightResult
}

// Preflight runs `rev-parse --is-inside-work-tree`, `worktree list
// --porcelain`, and `remote get-url origin` against dir, classifying
// failures. A missing origin remote is a warning, not a hard failure.
func Preflight(dir string) (*PreflightResult, error) {
	if _, err := runGit(dir, "rev-parse", "--is-inside-work-tree"); err != nil {
		if strings.Contains(err.Error(), "detected dubious ownership") {
			return nil, kerrors.New(kerrors.GitPreflightError, "repository ownership is untrusted").
				WithData("kind", UntrustedRepository).
				WithData("remediation", fmt.Sprintf("git config --global --add safe.directory %s", dir))
		}
		return nil, kerrors.New(kerrors.GitPreflightError, "not a git repository").
			WithData("kind", NotAGitRepository).
			WithData("remediation", fmt.Sprintf("git init %s", dir))
	}

	if _, err := runGit(dir, "worktree", "list", "--porcelain"); err != nil {
		return nil, kerrors.New(kerrors.GitPreflightError, "listing worktrees failed").
			WithData("kind", WorktreeListFailed).
			WithData("remediation", "git worktree prune")
	}

	result := &PreflightResult{OK: true}
	if _, err := runGit(dir, "remote", "get-url", "origin"); err != nil {
		result.WarningsOnly = append(result.WarningsOnly, PreflightResult{
			Kind:        MissingOriginRemote,
			Message:     "no origin remote configured",
			Remediation: "git remote add origin <url>",
		})
	}
	return result, nil
}
