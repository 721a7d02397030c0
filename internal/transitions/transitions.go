// Package transitions implements the lane state machine: the closed
// table of legal (from, to) edges, their guard conditions, and the force
// override discipline. It mirrors the teacher's closed-table style in
// internal/config.Validate/detectCycles — an explicit map keyed by a
// small tuple, not a class hierarchy.
package transitions

import (
	"fmt"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/lane"
)

// Input is the proposed transition and the facts the guard conditions
// need to decide whether it is legal.
type Input struct {
	From lane.Lane
	To   lane.Lane

	Actor  string
	Reason string
	Force  bool

	// Guard evidence.
	WorkspaceContext           string // claimed->in_progress
	SubtasksComplete           bool   // in_progress->for_review
	ImplementationEvidencePresent bool // in_progress->for_review
	ReviewRef                 string // for_review->in_progress
	Evidence                  *ReviewEvidence // for_review->done
}

// ReviewEvidence is the {reviewer, verdict, reference} payload required
// for a for_review->done transition.
type ReviewEvidence struct {
	Reviewer  string
	Verdict   string
	Reference string
}

func (e *ReviewEvidence) valid() bool {
	return e != nil && e.Reviewer != "" && e.Verdict != "" && e.Reference != ""
}

// edge is one entry of the closed 20-edge transition table.
type edge struct {
	from, to lane.Lane
}

// legalEdges is the closed, explicit transition table encoding the
// lifecycle described in spec §4.C: planned<->claimed<->in_progress<->for_review->done;
// bidirectional abandonment to planned; for_review->in_progress rollback;
// any non-terminal->blocked->in_progress; any non-terminal->canceled.
var legalEdges = buildLegalEdges()

func buildLegalEdges() map[edge]bool {
	m := map[edge]bool{
		{lane.Planned, lane.Claimed}:       true,
		{lane.Claimed, lane.Planned}:       true,
		{lane.Claimed, lane.InProgress}:    true,
		{lane.InProgress, lane.Claimed}:    true,
		{lane.InProgress, lane.ForReview}:  true,
		{lane.ForReview, lane.Done}:        true,
		{lane.ForReview, lane.InProgress}:  true,
		{lane.InProgress, lane.Planned}:    true,
		{lane.ForReview, lane.Planned}:     true,
		{lane.Blocked, lane.InProgress}:    true,
	}
	nonTerminal := []lane.Lane{lane.Planned, lane.Claimed, lane.InProgress, lane.ForReview, lane.Blocked}
	for _, from := range nonTerminal {
		m[edge{from, lane.Blocked}] = true
		m[edge{from, lane.Canceled}] = true
	}
	return m
}

// Guard returns nil if transition in is legal (after applying force
// override rules), or a concrete diagnostic error describing which guard
// failed.
func Guard(in Input) error {
	if in.Force {
		if in.Actor == "" || in.Reason == "" {
			return fmt.Errorf("force transition %s->%s requires both actor and reason", in.From, in.To)
		}
		return nil
	}

	if !legalEdges[edge{in.From, in.To}] {
		return fmt.Errorf("illegal transition %s->%s (not force)", in.From, in.To)
	}

	switch {
	case in.From == lane.Planned && in.To == lane.Claimed:
		if in.Actor == "" {
			return fmt.Errorf("planned->claimed requires a non-empty actor")
		}
	case in.From == lane.Claimed && in.To == lane.InProgress:
		if in.WorkspaceContext == "" {
			return fmt.Errorf("claimed->in_progress requires workspace_context proving a workspace was created")
		}
	case in.From == lane.InProgress && in.To == lane.ForReview:
		if !in.SubtasksComplete {
			return fmt.Errorf("in_progress->for_review requires subtasks_complete=true")
		}
		if !in.ImplementationEvidencePresent {
			return fmt.Errorf("in_progress->for_review requires implementation_evidence_present=true")
		}
	case in.From == lane.ForReview && in.To == lane.InProgress:
		if in.ReviewRef == "" {
			return fmt.Errorf("for_review->in_progress requires a non-empty review_ref")
		}
	case in.From == lane.ForReview && in.To == lane.Done:
		if !in.Evidence.valid() {
			return fmt.Errorf("for_review->done requires evidence with reviewer, verdict, and reference")
		}
	case in.From == lane.InProgress && in.To == lane.Planned:
		if in.Reason == "" {
			return fmt.Errorf("in_progress->planned requires a non-empty reason")
		}
	case in.To == lane.Blocked:
		if in.Reason == "" {
			return fmt.Errorf("%s->blocked requires a non-empty reason", in.From)
		}
	}

	return nil
}

// IsLegalEdge reports whether (from, to) appears in the closed table,
// independent of guard conditions or force.
func IsLegalEdge(from, to lane.Lane) bool {
	return legalEdges[edge{from, to}]
}
