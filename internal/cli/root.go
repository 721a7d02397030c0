// Package cli is the cobra command tree for spec-kitty's core operations:
// create-feature, setup-plan, finalize-tasks, move-task, validate, merge,
// sync, and auth. Adapted from the teacher's internal/cli, which laid out
// one file per command under a single root.go; the command set itself is
// entirely new (the teacher's concern-chain commands — run/status/gate/
// viz/trigger/statusline — have no equivalent in this domain; dependency
// dispatch is now internal/scheduler's job, not something a human drives
// concern-by-concern from the CLI).
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/kerrors"
)

// Version is set at build time via ldflags.
var Version = "dev"

var jsonOutput bool
var correlationID string

var rootCmd = &cobra.Command{
	Use:   "kittify",
	Short: "Spec Kitty: multi-agent development orchestrator core",
	Long: `kittify drives the work-package lifecycle for a feature: creating it,
planning its work packages, finalizing their dependency graph, moving them
through the lane state machine, validating their integrity, merging
completed branches, and syncing status events upstream.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("no-json") {
			return fmt.Errorf("--no-json was removed; text output is already the default, use --json to opt into the envelope")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit the canonical JSON envelope instead of text")
	rootCmd.PersistentFlags().StringVar(&correlationID, "correlation-id", "", "correlation id to attach to emitted events")

	// The legacy --no-json flag existed opposite a --json default-true
	// flag in an earlier iteration of this surface; both are gone now
	// that --json defaults to false, and reintroducing it would silently
	// flip meaning. Reject it explicitly rather than letting cobra treat
	// it as an unknown-flag usage error indistinguishable from a typo.
	rootCmd.PersistentFlags().Bool("no-json", false, "removed: use the default text output instead")
	_ = rootCmd.PersistentFlags().MarkHidden("no-json")

	rootCmd.AddCommand(
		versionCmd,
		createFeatureCmd,
		setupPlanCmd,
		finalizeTasksCmd,
		moveTaskCmd,
		validateCmd,
		mergeCmd,
		syncCmd,
		authCmd,
	)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("kittify %s\n", Version)
	},
}

// commandFunc is the shape every data-bearing command implements: it does
// its work and returns the envelope's data payload, or an error (ideally
// a *kerrors.Error so the envelope carries a real code).
type commandFunc func(cmd *cobra.Command, args []string) (map[string]any, error)

// reportedError marks a command failure that wrap has already written
// out (as an envelope or as text).
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

// wrap adapts a commandFunc into a cobra RunE that encodes the canonical
// envelope on both success and failure when --json is set, and plain
// text otherwise. Cobra's own parse-level errors (unknown flag, missing
// required arg) never reach this wrapper — they're caught by
// SilenceErrors+Execute's own error return in Execute(), below, and
// re-encoded as USAGE_ERROR there. A command failure that wrap has
// already written is returned as a reportedError so Execute does not
// write it a second time.
func wrap(name string, fn commandFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		data, err := fn(cmd, args)
		if jsonOutput {
			encErr := encodeEnvelope(name, data, err)
			if err != nil {
				return reportedError{err}
			}
			return encErr
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			return reportedError{err}
		}
		printText(name, data)
		return nil
	}
}

func encodeEnvelope(name string, data map[string]any, err error) error {
	now := func() string { return time.Now().UTC().Format(time.RFC3339) }
	var env kerrors.Envelope
	if err != nil {
		env = kerrors.FailureEnvelope(name, now, correlationID, err)
	} else {
		env = kerrors.SuccessEnvelope(name, now, correlationID, data)
	}
	out, encErr := kerrors.Encode(env)
	if encErr != nil {
		return encErr
	}
	fmt.Fprintln(os.Stdout, string(out))
	if err != nil {
		return err
	}
	return nil
}

// printText renders a command's data payload as simple key: value lines,
// in the teacher's direct fmt.Fprintf(os.Stderr/os.Stdout, ...) idiom
// rather than a templating library.
func printText(name string, data map[string]any) {
	if len(data) == 0 {
		fmt.Printf("%s: ok\n", name)
		return
	}
	keys := sortedKeys(data)
	for _, k := range keys {
		fmt.Printf("%s: %v\n", k, data[k])
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// Execute runs the root command. A usage-level parse error (unrecognized
// flag, wrong arg count) is reported by cobra before any RunE runs;
// because SilenceErrors is set, we catch it here and, if --json was
// requested, re-encode it as a USAGE_ERROR envelope instead of cobra's
// default plain-text dump.
func Execute() error {
	err := rootCmd.Execute()
	if err == nil {
		return nil
	}
	var reported reportedError
	if errors.As(err, &reported) {
		return reported.error
	}
	if jsonOutput {
		wrapped := kerrors.Wrap(kerrors.UsageError, "command usage error", err)
		out, encErr := kerrors.Encode(kerrors.FailureEnvelope("kittify", func() string {
			return time.Now().UTC().Format(time.RFC3339)
		}, correlationID, wrapped))
		if encErr == nil {
			fmt.Fprintln(os.Stdout, string(out))
		}
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	return err
}

// marshalPretty is a small shared helper for commands that want to echo
// a structured value as part of their text-mode output.
func marshalPretty(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
