package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/events"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/kerrors"
)

var validatePhase2 bool

var validateCmd = &cobra.Command{
	Use:   "validate <slug>",
	Short: "Check status integrity: snapshot drift and WP frontmatter drift",
	Args:  cobra.ExactArgs(1),
	RunE: wrap("validate", func(cmd *cobra.Command, args []string) (map[string]any, error) {
		slug := args[0]
		root, err := repoRoot()
		if err != nil {
			return nil, err
		}
		featureDir := featureDirFor(root, slug)
		store := events.New(featureDir, zap.NewNop())

		driftLines, err := store.ValidateMaterializationDrift()
		if err != nil {
			return nil, err
		}

		phase := events.Phase1DualWrite
		if validatePhase2 {
			phase = events.Phase2Authoritative
		}
		findings, err := store.ValidateDerivedViews(phase)
		if err != nil {
			return nil, err
		}

		data := map[string]any{
			"slug":              slug,
			"materialization_ok": len(driftLines) == 0,
			"drift":             driftLines,
			"frontmatter_drift": findings,
		}

		if len(driftLines) > 0 {
			return data, kerrors.New(kerrors.ValidationError, "snapshot drift detected").WithData("drift", driftLines)
		}
		if phase == events.Phase2Authoritative && len(findings) > 0 {
			return data, kerrors.New(kerrors.ValidationError, "WP frontmatter drift detected").WithData("findings", findings)
		}
		return data, nil
	}),
}

func init() {
	validateCmd.Flags().BoolVar(&validatePhase2, "strict", false, "treat frontmatter drift as an error (Phase 2 semantics)")
}
