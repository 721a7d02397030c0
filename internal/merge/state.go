// Package merge implements the merge coordinator: it folds N completed
// work-package branches back into a feature's target branch in
// dependency order, auto-resolving conflicts confined to status files
// (WP frontmatter lane, checkboxes, history arrays) and pausing for human
// resolution on anything else. Resumable via a persisted MergeState,
// grounded on the teacher's atomic JSON state pattern (internal/engine
// WriteStatus/ReadStatus) generalized from per-concern status rows to a
// single feature-wide merge session.
package merge

import (
	"fmt"
	"os"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/atomicio"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/fileutil"
)

// Strategy is how a WP branch is folded into the target.
type Strategy string

const (
	StrategyMerge  Strategy = "merge"
	StrategySquash Strategy = "squash"
	StrategyRebase Strategy = "rebase"
)

// MergeState is the resumable merge session for one feature.
type MergeState struct {
	FeatureSlug         string   `json:"feature_slug"`
	TargetBranch        string   `json:"target_branch"`
	WPOrder             []string `json:"wp_order"`
	CompletedWPs        []string `json:"completed_wps"`
	CurrentWP           string   `json:"current_wp,omitempty"`
	HasPendingConflicts bool     `json:"has_pending_conflicts"`
	ConflictPaths       []string `json:"conflict_paths,omitempty"`
	Strategy            Strategy `json:"strategy"`
}

// RemainingWPs returns WPOrder entries not yet in CompletedWPs.
func (s *MergeState) RemainingWPs() []string {
	done := make(map[string]bool, len(s.CompletedWPs))
	for _, id := range s.CompletedWPs {
		done[id] = true
	}
	var remaining []string
	for _, id := range s.WPOrder {
		if !done[id] {
			remaining = append(remaining, id)
		}
	}
	return remaining
}

// ProgressPercent returns completed/total as a percentage, 100 when empty.
func (s *MergeState) ProgressPercent() float64 {
	if len(s.WPOrder) == 0 {
		return 100
	}
	return 100 * float64(len(s.CompletedWPs)) / float64(len(s.WPOrder))
}

// Load reads a feature's merge-state.json, returning a zero-value
// MergeState (no error) if none exists yet — there being no prior session
// is not a failure.
func Load(featureDir string) (*MergeState, error) {
	var state MergeState
	err := atomicio.ReadJSON(fileutil.MergeStatePath(featureDir), &state)
	if os.IsNotExist(err) {
		return &MergeState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading merge state: %w", err)
	}
	return &state, nil
}

// Save atomically persists the merge state.
func (s *MergeState) Save(featureDir string) error {
	return atomicio.WriteJSON(fileutil.MergeStatePath(featureDir), s)
}

// Clear removes the merge-state.json file after a completed sequence.
func Clear(featureDir string) error {
	err := os.Remove(fileutil.MergeStatePath(featureDir))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// CanStartNew reports whether a new merge sequence may begin: refused if
// a prior session is mid-conflict (spec §4.E resumability rule).
func (s *MergeState) CanStartNew() error {
	if s.CurrentWP != "" && s.HasPendingConflicts {
		return fmt.Errorf("merge paused on %s with unresolved conflicts in %v; resolve and resume before starting a new merge", s.CurrentWP, s.ConflictPaths)
	}
	return nil
}
