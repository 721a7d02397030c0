package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/fileutil"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/kerrors"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/vcs"
)

var createFeatureTitle string

var createFeatureCmd = &cobra.Command{
	Use:   "create-feature <slug>",
	Short: "Create a new feature directory",
	Args:  cobra.ExactArgs(1),
	RunE: wrap("create-feature", func(cmd *cobra.Command, args []string) (map[string]any, error) {
		slug := args[0]
		if err := validateFeatureSlug(slug); err != nil {
			return nil, err
		}

		root, err := repoRoot()
		if err != nil {
			return nil, err
		}
		if _, err := vcs.Preflight(root); err != nil {
			return nil, err
		}

		featureDir := featureDirFor(root, slug)
		if _, err := os.Stat(fileutil.MetaPath(featureDir)); err == nil {
			return nil, kerrors.New(kerrors.ValidationError, "feature already exists").WithData("slug", slug)
		}

		if err := fileutil.EnsureDir(fileutil.TasksDir(featureDir)); err != nil {
			return nil, fmt.Errorf("creating feature directory: %w", err)
		}

		meta := &Meta{Slug: slug, Title: createFeatureTitle, CreatedAt: time.Now().UTC()}
		if err := saveMeta(featureDir, meta); err != nil {
			return nil, fmt.Errorf("writing feature meta: %w", err)
		}

		if err := writeDefaultFeatureConfig(featureDir); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}

		return map[string]any{"slug": slug, "feature_dir": featureDir}, nil
	}),
}

func init() {
	createFeatureCmd.Flags().StringVar(&createFeatureTitle, "title", "", "human-readable feature title")
}

const defaultFeatureConfigYAML = `agent:
  command: claude
settings:
  poll_interval: 2s
  max_concurrent: 4
  max_concurrent_per_agent: 2
  max_retries: 2
  stale_after: 30m
  target_branch: main
  merge_strategy: merge
`

func writeDefaultFeatureConfig(featureDir string) error {
	path := filepath.Join(featureDir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(defaultFeatureConfigYAML), 0o644)
}
