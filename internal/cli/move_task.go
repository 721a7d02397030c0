package cli

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/events"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/ids"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/kerrors"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/lane"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/transitions"
)

var (
	moveTaskTo               string
	moveTaskActor            string
	moveTaskReason           string
	moveTaskForce            bool
	moveTaskReviewRef        string
	moveTaskWorkspaceContext string
	moveTaskSubtasksComplete bool
	moveTaskEvidencePresent  bool
	moveTaskReviewer         string
	moveTaskVerdict          string
	moveTaskReference        string
)

var moveTaskCmd = &cobra.Command{
	Use:   "move-task <slug> <WP-id> --to <lane>",
	Short: "Transition a work package to a new lane",
	Args:  cobra.ExactArgs(2),
	RunE: wrap("move-task", func(cmd *cobra.Command, args []string) (map[string]any, error) {
		slug, wpID := args[0], args[1]
		if moveTaskTo == "" {
			return nil, kerrors.New(kerrors.UsageError, "--to is required")
		}

		root, err := repoRoot()
		if err != nil {
			return nil, err
		}
		featureDir := featureDirFor(root, slug)
		store := events.New(featureDir, zap.NewNop())

		snapshot, err := store.LoadSnapshot()
		if err != nil {
			return nil, kerrors.Wrap(kerrors.ValidationError, "loading snapshot", err)
		}
		fromLane := lane.Planned
		if state, ok := snapshot.WorkPackages[wpID]; ok {
			if canon, ok := lane.Canonicalize(state.Lane); ok {
				fromLane = canon
			}
		}

		toLane, ok := lane.Canonicalize(moveTaskTo)
		if !ok {
			return nil, kerrors.New(kerrors.UsageError, "unknown lane").WithData("lane", moveTaskTo)
		}

		var evidence *transitions.ReviewEvidence
		if moveTaskReviewer != "" || moveTaskVerdict != "" || moveTaskReference != "" {
			evidence = &transitions.ReviewEvidence{Reviewer: moveTaskReviewer, Verdict: moveTaskVerdict, Reference: moveTaskReference}
		}

		guardInput := transitions.Input{
			From:                          fromLane,
			To:                            toLane,
			Actor:                         moveTaskActor,
			Reason:                        moveTaskReason,
			Force:                         moveTaskForce,
			WorkspaceContext:              moveTaskWorkspaceContext,
			SubtasksComplete:              moveTaskSubtasksComplete,
			ImplementationEvidencePresent: moveTaskEvidencePresent,
			ReviewRef:                     moveTaskReviewRef,
			Evidence:                      evidence,
		}
		if err := transitions.Guard(guardInput); err != nil {
			return nil, kerrors.Wrap(kerrors.ValidationError, "illegal transition", err)
		}

		eventID := ids.NewULID()
		ev := events.Event{
			EventID:       eventID,
			FeatureSlug:   slug,
			WPID:          wpID,
			FromLane:      string(fromLane),
			ToLane:        string(toLane),
			At:            time.Now().UTC(),
			Actor:         moveTaskActor,
			Force:         moveTaskForce,
			Reason:        moveTaskReason,
			ReviewRef:     moveTaskReviewRef,
			CorrelationID: correlationID,
		}
		if toLane == lane.Done && evidence != nil {
			ev.Evidence = &events.Evidence{Review: events.ReviewEvidence{
				Reviewer: evidence.Reviewer, Verdict: evidence.Verdict, Reference: evidence.Reference,
			}}
		}

		stored, err := store.Append(ev)
		if err != nil {
			return nil, kerrors.Wrap(kerrors.ValidationError, "appending event", err)
		}

		return map[string]any{
			"slug":     slug,
			"wp_id":    wpID,
			"from":     fromLane,
			"to":       toLane,
			"event_id": stored.EventID,
		}, nil
	}),
}

func init() {
	moveTaskCmd.Flags().StringVar(&moveTaskTo, "to", "", "target lane (alias 'doing' resolves to in_progress)")
	moveTaskCmd.Flags().StringVar(&moveTaskActor, "actor", "", "actor performing the transition")
	moveTaskCmd.Flags().StringVar(&moveTaskReason, "reason", "", "reason (required for abandonment/blocked/force)")
	moveTaskCmd.Flags().BoolVar(&moveTaskForce, "force", false, "force the transition, bypassing guard conditions")
	moveTaskCmd.Flags().StringVar(&moveTaskReviewRef, "review-ref", "", "review reference (required for_review->in_progress)")
	moveTaskCmd.Flags().StringVar(&moveTaskWorkspaceContext, "workspace-context", "", "proof a workspace was created (claimed->in_progress)")
	moveTaskCmd.Flags().BoolVar(&moveTaskSubtasksComplete, "subtasks-complete", false, "all subtasks complete (in_progress->for_review)")
	moveTaskCmd.Flags().BoolVar(&moveTaskEvidencePresent, "evidence-present", false, "implementation evidence present (in_progress->for_review)")
	moveTaskCmd.Flags().StringVar(&moveTaskReviewer, "reviewer", "", "review evidence: reviewer (for_review->done)")
	moveTaskCmd.Flags().StringVar(&moveTaskVerdict, "verdict", "", "review evidence: verdict (for_review->done)")
	moveTaskCmd.Flags().StringVar(&moveTaskReference, "evidence-ref", "", "review evidence: reference (for_review->done)")
}
