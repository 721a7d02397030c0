package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/config"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/fileutil"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/kerrors"
)

// findGitRoot walks up from dir looking for a .git directory. Kept
// verbatim from the teacher's internal/cli/helpers.go.
func findGitRoot(dir string) string {
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// repoRoot resolves the current git repository root from the working
// directory, the way every command needs before locating kitty-specs/.
func repoRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	root := findGitRoot(wd)
	if root == "" {
		return "", kerrors.New(kerrors.GitPreflightError, "not inside a git repository")
	}
	return root, nil
}

// loadFeatureConfig loads and validates a feature's config.yaml, the way
// the teacher's loadAndValidateConfig did for line.yaml.
func loadFeatureConfig(featureDir string) (*config.Config, error) {
	path := filepath.Join(featureDir, "config.yaml")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("%d config validation error(s), first: %s", len(errs), errs[0])
	}
	return cfg, nil
}

func featureDirFor(repoDir, slug string) string {
	return fileutil.FeatureDir(repoDir, slug)
}
