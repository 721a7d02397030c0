package transitions

import (
	"testing"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/lane"
)

func TestGuard_PlannedToClaimedRequiresActor(t *testing.T) {
	err := Guard(Input{From: lane.Planned, To: lane.Claimed})
	if err == nil {
		t.Fatal("expected error without actor")
	}
	err = Guard(Input{From: lane.Planned, To: lane.Claimed, Actor: "alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGuard_ClaimedToInProgressRequiresWorkspace(t *testing.T) {
	err := Guard(Input{From: lane.Claimed, To: lane.InProgress})
	if err == nil {
		t.Fatal("expected error without workspace context")
	}
	err = Guard(Input{From: lane.Claimed, To: lane.InProgress, WorkspaceContext: "/ws/wp01"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGuard_InProgressToForReviewRequiresEvidence(t *testing.T) {
	cases := []struct {
		name    string
		in      Input
		wantErr bool
	}{
		{"neither", Input{From: lane.InProgress, To: lane.ForReview}, true},
		{"only subtasks", Input{From: lane.InProgress, To: lane.ForReview, SubtasksComplete: true}, true},
		{"both", Input{From: lane.InProgress, To: lane.ForReview, SubtasksComplete: true, ImplementationEvidencePresent: true}, false},
	}
	for _, tc := range cases {
		err := Guard(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: got err=%v, wantErr=%v", tc.name, err, tc.wantErr)
		}
	}
}

func TestGuard_ForReviewToInProgressRequiresReviewRef(t *testing.T) {
	err := Guard(Input{From: lane.ForReview, To: lane.InProgress})
	if err == nil {
		t.Fatal("expected error without review_ref")
	}
	err = Guard(Input{From: lane.ForReview, To: lane.InProgress, ReviewRef: "PR#1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGuard_ForReviewToDoneRequiresEvidence(t *testing.T) {
	err := Guard(Input{From: lane.ForReview, To: lane.Done})
	if err == nil {
		t.Fatal("expected error without evidence")
	}
	err = Guard(Input{From: lane.ForReview, To: lane.Done, Evidence: &ReviewEvidence{Reviewer: "bob", Verdict: "approved", Reference: "PR#1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGuard_BlockedRequiresReason(t *testing.T) {
	err := Guard(Input{From: lane.InProgress, To: lane.Blocked})
	if err == nil {
		t.Fatal("expected error without reason")
	}
	err = Guard(Input{From: lane.InProgress, To: lane.Blocked, Reason: "dependency unavailable"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestGuard_ForceOverride implements invariant 6 from spec §8: terminal ->
// non-terminal transitions are accepted iff force=true, actor != "", and
// reason != "".
func TestGuard_ForceOverride(t *testing.T) {
	cases := []struct {
		name    string
		in      Input
		wantErr bool
	}{
		{"no force, illegal edge", Input{From: lane.Done, To: lane.InProgress}, true},
		{"force without actor", Input{From: lane.Done, To: lane.InProgress, Force: true, Reason: "hotfix"}, true},
		{"force without reason", Input{From: lane.Done, To: lane.InProgress, Force: true, Actor: "admin"}, true},
		{"force with both", Input{From: lane.Done, To: lane.InProgress, Force: true, Actor: "admin", Reason: "hotfix"}, false},
	}
	for _, tc := range cases {
		err := Guard(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: got err=%v, wantErr=%v", tc.name, err, tc.wantErr)
		}
	}
}

func TestGuard_IllegalEdgeRejectedWithoutForce(t *testing.T) {
	if err := Guard(Input{From: lane.Planned, To: lane.Done}); err == nil {
		t.Fatal("planned->done should be illegal without force")
	}
}

func TestIsLegalEdge_ClosedTableSize(t *testing.T) {
	count := 0
	for _, from := range lane.All {
		for _, to := range lane.All {
			if IsLegalEdge(from, to) {
				count++
			}
		}
	}
	if count != len(legalEdges) {
		t.Fatalf("legalEdges table and IsLegalEdge disagree: %d vs %d", count, len(legalEdges))
	}
}
