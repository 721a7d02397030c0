package cli

import (
	"github.com/spf13/cobra"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/fileutil"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/kerrors"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/scheduler"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/wpfile"
)

var finalizeTasksCmd = &cobra.Command{
	Use:   "finalize-tasks <slug>",
	Short: "Validate and lock a feature's work-package dependency graph",
	Long: `finalize-tasks reads every WP file's declared dependencies and builds the
dependency graph the scheduler will dispatch against, rejecting cyclic or
dangling references (spec §4.D). It is idempotent: rerunning after a
successful finalize just revalidates the same graph.`,
	Args: cobra.ExactArgs(1),
	RunE: wrap("finalize-tasks", func(cmd *cobra.Command, args []string) (map[string]any, error) {
		slug := args[0]
		root, err := repoRoot()
		if err != nil {
			return nil, err
		}
		featureDir := featureDirFor(root, slug)
		meta, err := loadMeta(featureDir)
		if err != nil {
			return nil, err
		}
		if !meta.PlanSetUp {
			return nil, kerrors.New(kerrors.ValidationError, "run setup-plan before finalize-tasks")
		}

		specs, err := readWPSpecs(featureDir)
		if err != nil {
			return nil, err
		}
		if len(specs) == 0 {
			return nil, kerrors.New(kerrors.ValidationError, "feature has no work packages")
		}

		graph, err := scheduler.BuildGraph(specs)
		if err != nil {
			return nil, kerrors.Wrap(kerrors.ValidationError, "dependency graph is invalid", err)
		}

		meta.Finalized = true
		if err := saveMeta(featureDir, meta); err != nil {
			return nil, err
		}

		return map[string]any{"slug": slug, "work_packages": graph.IDs()}, nil
	}),
}

func readWPSpecs(featureDir string) ([]scheduler.WPSpec, error) {
	tasksDir := fileutil.TasksDir(featureDir)
	ids := wpfile.ListIDs(tasksDir)
	specs := make([]scheduler.WPSpec, 0, len(ids))
	for _, id := range ids {
		path, ok := wpfile.FindByID(tasksDir, id)
		if !ok {
			continue
		}
		f, err := wpfile.ReadFile(path)
		if err != nil {
			return nil, kerrors.Wrap(kerrors.ValidationError, "reading WP file "+id, err)
		}
		specs = append(specs, scheduler.WPSpec{ID: id, Dependencies: f.Frontmatter.Dependencies})
	}
	return specs, nil
}
