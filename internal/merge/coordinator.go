package merge

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// gitRunner is the minimal git command surface the coordinator needs;
// satisfied by internal/vcs's exported RunGit (in production and in this
// package's tests).
// Kept as an unexported function type rather than importing internal/vcs
// directly so the merge package doesn't need VCS-backend capabilities
// beyond raw command execution.
type gitRunner func(dir string, args ...string) (string, error)

// Coordinator merges completed WP branches into a feature's target
// branch, per spec §4.E.
type Coordinator struct {
	RepoDir    string
	FeatureDir string
	Git        gitRunner
	Log        *zap.Logger
}

func New(repoDir, featureDir string, git gitRunner, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{RepoDir: repoDir, FeatureDir: featureDir, Git: git, Log: log}
}

// WPInput is one mergeable work package: its id, branch name, and
// dependency set (restricted to other WPs in this merge batch).
type WPInput struct {
	ID           string
	Branch       string
	Dependencies []string
}

// Run executes (or resumes) a merge sequence for wps into targetBranch.
// It refuses to start a brand new sequence over a paused, conflicted one
// (spec §4.E resumability).
func (c *Coordinator) Run(targetBranch string, wps []WPInput, strategy Strategy) (*MergeState, error) {
	state, err := Load(c.FeatureDir)
	if err != nil {
		return nil, err
	}

	if len(state.WPOrder) == 0 {
		deps := make(map[string][]string, len(wps))
		for _, w := range wps {
			deps[w.ID] = w.Dependencies
		}
		order, err := TopologicalOrder(deps)
		if err != nil {
			return nil, fmt.Errorf("ordering WPs for merge: %w", err)
		}
		state = &MergeState{
			FeatureSlug:   featureSlugFromDir(c.FeatureDir),
			TargetBranch:  targetBranch,
			WPOrder:       order,
			Strategy:      strategy,
		}
	} else if err := state.CanStartNew(); err != nil {
		return state, err
	}

	byID := make(map[string]WPInput, len(wps))
	for _, w := range wps {
		byID[w.ID] = w
	}

	for _, id := range state.RemainingWPs() {
		w, ok := byID[id]
		if !ok {
			return state, fmt.Errorf("merge state references unknown work package %s", id)
		}

		if len(w.Dependencies) > 1 {
			if err := c.computeDiamondMergeBase(targetBranch, w, byID); err != nil {
				return state, fmt.Errorf("computing merge base for %s: %w", id, err)
			}
		}

		state.CurrentWP = id
		if err := state.Save(c.FeatureDir); err != nil {
			return state, err
		}

		if err := c.mergeOne(targetBranch, w, strategy, state); err != nil {
			return state, err
		}
		if state.HasPendingConflicts {
			return state, fmt.Errorf("merge of %s paused: unresolved conflicts in %v", id, state.ConflictPaths)
		}

		state.CompletedWPs = append(state.CompletedWPs, id)
		state.CurrentWP = ""
		if err := state.Save(c.FeatureDir); err != nil {
			return state, err
		}
	}

	if err := Clear(c.FeatureDir); err != nil {
		return state, err
	}
	return state, nil
}

func (c *Coordinator) mergeOne(targetBranch string, w WPInput, strategy Strategy, state *MergeState) error {
	if _, err := c.Git(c.RepoDir, "checkout", targetBranch); err != nil {
		return fmt.Errorf("checking out %s: %w", targetBranch, err)
	}

	if hasTrackedRemote(c.Git, c.RepoDir, targetBranch) {
		if _, err := c.Git(c.RepoDir, "pull", "--ff-only"); err != nil {
			c.Log.Warn("pull --ff-only failed or branch diverged; proceeding with local state", zap.Error(err))
		}
	}

	var mergeErr error
	switch strategy {
	case StrategySquash:
		_, mergeErr = c.Git(c.RepoDir, "merge", "--squash", w.Branch)
		if mergeErr == nil {
			_, mergeErr = c.Git(c.RepoDir, "commit", "-m", fmt.Sprintf("Merge %s (squash)", w.ID))
		}
	case StrategyRebase:
		_, mergeErr = c.Git(c.RepoDir, "rebase", w.Branch)
	default:
		_, mergeErr = c.Git(c.RepoDir, "merge", "--no-ff", w.Branch, "-m", fmt.Sprintf("Merge %s", w.ID))
	}

	if mergeErr == nil {
		return nil
	}

	conflicted, err := c.conflictedPaths()
	if err != nil {
		return fmt.Errorf("listing conflicted paths after merge failure: %w", err)
	}
	if len(conflicted) == 0 {
		return fmt.Errorf("merging %s: %w", w.ID, mergeErr)
	}

	return c.resolveConflicts(conflicted, state)
}

// resolveConflicts attempts to auto-resolve every conflicted path that is
// a recognized status file. If any conflicted path is not recognized, or
// a recognized file has an unresolvable conflict region, the merge is
// left paused (has_pending_conflicts=true).
func (c *Coordinator) resolveConflicts(paths []string, state *MergeState) error {
	var unresolved []string
	for _, p := range paths {
		if !IsRecognizedStatusPath(p) {
			unresolved = append(unresolved, p)
			continue
		}
		full := c.RepoDir + "/" + p
		data, err := os.ReadFile(full)
		if err != nil {
			unresolved = append(unresolved, p)
			continue
		}
		resolved, ok := ResolveStatusFileContent(string(data))
		if !ok {
			unresolved = append(unresolved, p)
			continue
		}
		if err := os.WriteFile(full, []byte(resolved), 0o644); err != nil {
			unresolved = append(unresolved, p)
			continue
		}
		if _, err := c.Git(c.RepoDir, "add", p); err != nil {
			unresolved = append(unresolved, p)
		}
	}

	if len(unresolved) > 0 {
		state.HasPendingConflicts = true
		state.ConflictPaths = unresolved
		return nil
	}

	state.HasPendingConflicts = false
	state.ConflictPaths = nil
	_, err := c.Git(c.RepoDir, "commit", "--no-edit")
	return err
}

func (c *Coordinator) conflictedPaths() ([]string, error) {
	out, err := c.Git(c.RepoDir, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// computeDiamondMergeBase handles spec §4.E's multi-parent case: when a
// WP depends on more than one other WP, merge those parent branches in
// sorted id order onto a disposable `<feature>-<wp>-merge-base` branch so
// the WP's own branch has a single, deterministic ancestor to rebase
// against. The disposable branch is removed on both success and failure.
// byID resolves each dependency's WP id to its WPInput (and so its actual
// branch name) — a dependency id is never itself a valid git ref under
// this repo's <slug>-<wpID> branch-naming convention.
func (c *Coordinator) computeDiamondMergeBase(targetBranch string, w WPInput, byID map[string]WPInput) error {
	baseBranch := fmt.Sprintf("%s-%s-merge-base", featureSlugFromDir(c.FeatureDir), w.ID)
	cleanup := func() {
		_, _ = c.Git(c.RepoDir, "branch", "-D", baseBranch)
	}
	defer cleanup()

	if _, err := c.Git(c.RepoDir, "checkout", "-B", baseBranch, targetBranch); err != nil {
		return fmt.Errorf("creating merge-base branch: %w", err)
	}

	parents := append([]string{}, w.Dependencies...)
	sort.Strings(parents)
	for _, parentID := range parents {
		parent, ok := byID[parentID]
		if !ok {
			return fmt.Errorf("merge base for %s references unknown dependency %s", w.ID, parentID)
		}
		if _, err := c.Git(c.RepoDir, "merge", "--no-ff", parent.Branch, "-m", fmt.Sprintf("merge-base: fold in %s", parentID)); err != nil {
			_, _ = c.Git(c.RepoDir, "merge", "--abort")
			return fmt.Errorf("merging parent %s onto merge base: %w", parentID, err)
		}
	}

	if _, err := c.Git(c.RepoDir, "checkout", w.Branch); err != nil {
		return fmt.Errorf("checking out %s: %w", w.Branch, err)
	}
	if _, err := c.Git(c.RepoDir, "rebase", baseBranch); err != nil {
		_, _ = c.Git(c.RepoDir, "rebase", "--abort")
		return fmt.Errorf("rebasing %s onto computed merge base: %w", w.Branch, err)
	}
	return nil
}

func hasTrackedRemote(git gitRunner, repoDir, branch string) bool {
	_, err := git(repoDir, "rev-parse", "--abbrev-ref", branch+"@{upstream}")
	return err == nil
}

func featureSlugFromDir(featureDir string) string {
	parts := strings.Split(strings.TrimRight(featureDir, "/"), "/")
	if len(parts) == 0 {
		return featureDir
	}
	return parts[len(parts)-1]
}

