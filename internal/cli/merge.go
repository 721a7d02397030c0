package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/events"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/fileutil"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/kerrors"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/merge"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/vcs"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/wpfile"
)

var mergeResume bool
var mergeTargetBranch string

var mergeCmd = &cobra.Command{
	Use:   "merge <slug>",
	Short: "Merge completed work-package branches into the target branch",
	Args:  cobra.ExactArgs(1),
	RunE: wrap("merge", func(cmd *cobra.Command, args []string) (map[string]any, error) {
		slug := args[0]
		root, err := repoRoot()
		if err != nil {
			return nil, err
		}
		if _, err := vcs.Preflight(root); err != nil {
			return nil, err
		}

		featureDir := featureDirFor(root, slug)
		cfg, err := loadFeatureConfig(featureDir)
		if err != nil {
			return nil, err
		}
		targetBranch := mergeTargetBranch
		if targetBranch == "" {
			targetBranch = cfg.Settings.TargetBranch
		}

		store := events.New(featureDir, zap.NewNop())
		snapshot, err := store.LoadSnapshot()
		if err != nil {
			return nil, kerrors.Wrap(kerrors.ValidationError, "loading snapshot", err)
		}

		wps, err := doneWPInputs(featureDir, slug, snapshot)
		if err != nil {
			return nil, err
		}
		if len(wps) == 0 && !mergeResume {
			return nil, kerrors.New(kerrors.ValidationError, "no work packages are in the done lane")
		}

		coordinator := merge.New(root, featureDir, vcs.RunGit, zap.NewNop())
		state, err := coordinator.Run(targetBranch, wps, cfg.Settings.MergeStrategy)
		if err != nil {
			return map[string]any{"state": state}, kerrors.Wrap(kerrors.VCSError, "merge failed", err)
		}

		return map[string]any{
			"slug":            slug,
			"target_branch":   targetBranch,
			"completed_wps":   state.CompletedWPs,
			"progress_percent": state.ProgressPercent(),
		}, nil
	}),
}

func init() {
	mergeCmd.Flags().BoolVar(&mergeResume, "resume", false, "resume a paused merge sequence instead of requiring new done WPs")
	mergeCmd.Flags().StringVar(&mergeTargetBranch, "target-branch", "", "override the feature config's target branch")
}

// doneWPInputs builds the merge coordinator's input list from every WP
// currently in the done lane, using its declared dependencies (restricted
// to other done WPs) and the scheduler's branch naming convention.
func doneWPInputs(featureDir, slug string, snapshot events.Snapshot) ([]merge.WPInput, error) {
	tasksDir := fileutil.TasksDir(featureDir)
	var inputs []merge.WPInput
	for wpID, state := range snapshot.WorkPackages {
		if state.Lane != "done" {
			continue
		}
		deps, err := wpDependencies(tasksDir, wpID)
		if err != nil {
			return nil, err
		}
		var restricted []string
		for _, d := range deps {
			if snapshot.WorkPackages[d].Lane == "done" {
				restricted = append(restricted, d)
			}
		}
		inputs = append(inputs, merge.WPInput{
			ID:           wpID,
			Branch:       fmt.Sprintf("%s-%s", slug, wpID),
			Dependencies: restricted,
		})
	}
	return inputs, nil
}

func wpDependencies(tasksDir, wpID string) ([]string, error) {
	path, ok := wpfile.FindByID(tasksDir, wpID)
	if !ok {
		return nil, nil
	}
	f, err := wpfile.ReadFile(path)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.ValidationError, "reading WP file "+wpID, err)
	}
	return f.Frontmatter.Dependencies, nil
}
