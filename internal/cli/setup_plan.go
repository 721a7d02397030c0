package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/fileutil"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/kerrors"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/wpfile"
)

var setupPlanWPs []string

var setupPlanCmd = &cobra.Command{
	Use:   "setup-plan <slug>",
	Short: "Register a feature's work-package set from a plan decomposition",
	Long: `setup-plan writes one WP file per --wp entry (format WP<nn>:Title[:dep,dep]),
each starting in the planned lane. Rendering the plan's prose and prompt
content is a template-rendering concern outside the core; setup-plan only
materializes the structural WP file set finalize-tasks and the scheduler
need.`,
	Args: cobra.ExactArgs(1),
	RunE: wrap("setup-plan", func(cmd *cobra.Command, args []string) (map[string]any, error) {
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

		if len(setupPlanWPs) == 0 {
			return nil, kerrors.New(kerrors.UsageError, "at least one --wp entry is required")
		}

		if err := fileutil.EnsureDir(fileutil.TasksDir(featureDir)); err != nil {
			return nil, err
		}
		var written []string
		for _, spec := range setupPlanWPs {
			id, title, deps, err := parseWPSpec(spec)
			if err != nil {
				return nil, err
			}
			if !wpfile.ValidID(id) {
				return nil, kerrors.New(kerrors.UsageError, "invalid WP id").WithData("id", id)
			}
			path := fileutil.WPFilePath(featureDir, id, slugify(title))
			f := wpfile.File{Frontmatter: wpfile.Frontmatter{
				Dependencies: deps,
				Lane:         "planned",
				Title:        title,
			}}
			out, err := f.Render()
			if err != nil {
				return nil, err
			}
			if err := writeWPFile(path, out); err != nil {
				return nil, err
			}
			written = append(written, id)
		}

		meta.PlanSetUp = true
		if err := saveMeta(featureDir, meta); err != nil {
			return nil, err
		}

		return map[string]any{"slug": slug, "work_packages": written}, nil
	}),
}

func init() {
	setupPlanCmd.Flags().StringArrayVar(&setupPlanWPs, "wp", nil, "WP<nn>:Title[:dep,dep,...] (repeatable)")
}

func parseWPSpec(spec string) (id, title string, deps []string, err error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 2 {
		return "", "", nil, kerrors.New(kerrors.UsageError, "malformed --wp entry, expected WP<nn>:Title[:deps]").WithData("entry", spec)
	}
	id = strings.TrimSpace(parts[0])
	title = strings.TrimSpace(parts[1])
	if len(parts) == 3 && strings.TrimSpace(parts[2]) != "" {
		for _, d := range strings.Split(parts[2], ",") {
			deps = append(deps, strings.TrimSpace(d))
		}
	}
	return id, title, deps, nil
}

func slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if out == "" {
		return "wp"
	}
	return out
}

func writeWPFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}
