package events

import (
	"math/rand"
	"testing"
	"time"
)

func mkEvent(id, wp, from, to string, at time.Time, force bool) Event {
	return Event{
		EventID:     id,
		FeatureSlug: "001-demo",
		WPID:        wp,
		FromLane:    from,
		ToLane:      to,
		At:          at,
		Actor:       "agent",
		Force:       force,
	}
}

func TestReduce_DeterministicUnderShuffle(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	evs := []Event{
		mkEvent("E01", "WP01", "planned", "claimed", base, false),
		mkEvent("E02", "WP01", "claimed", "in_progress", base.Add(time.Minute), false),
		mkEvent("E03", "WP01", "in_progress", "for_review", base.Add(2*time.Minute), false),
		mkEvent("E04", "WP01", "for_review", "done", base.Add(3*time.Minute), false),
	}

	want := Reduce(evs)

	shuffled := append([]Event(nil), evs...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	got := Reduce(shuffled)

	if got.WorkPackages["WP01"].Lane != want.WorkPackages["WP01"].Lane {
		t.Fatalf("lane mismatch after shuffle: got %q want %q", got.WorkPackages["WP01"].Lane, want.WorkPackages["WP01"].Lane)
	}
	if got.EventCount != want.EventCount {
		t.Fatalf("event count mismatch after shuffle: got %d want %d", got.EventCount, want.EventCount)
	}
}

func TestReduce_ApplyEventMatchesFullReduce(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	evs := []Event{
		mkEvent("E01", "WP01", "planned", "claimed", base, false),
		mkEvent("E02", "WP01", "claimed", "in_progress", base.Add(time.Minute), false),
	}
	fresh := mkEvent("E03", "WP01", "in_progress", "for_review", base.Add(2*time.Minute), false)

	viaFullReduce := Reduce(append(append([]Event(nil), evs...), fresh))
	viaApply := ApplyEvent(Reduce(evs), fresh)

	if viaApply.WorkPackages["WP01"].Lane != viaFullReduce.WorkPackages["WP01"].Lane {
		t.Fatalf("ApplyEvent diverged from full Reduce: got %q want %q",
			viaApply.WorkPackages["WP01"].Lane, viaFullReduce.WorkPackages["WP01"].Lane)
	}
	if viaApply.EventCount != viaFullReduce.EventCount {
		t.Fatalf("event count diverged: got %d want %d", viaApply.EventCount, viaFullReduce.EventCount)
	}
}

// TestReduce_RollbackBeatsConcurrentForward is scenario S1 from spec §8:
// a same-timestamp rollback (for_review->in_progress with review_ref) must
// win over a same-timestamp forward transition (for_review->done).
func TestReduce_RollbackBeatsConcurrentForward(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	evs := []Event{
		mkEvent("E01", "WP01", "planned", "claimed", base, false),
		mkEvent("E02", "WP01", "claimed", "in_progress", base.Add(time.Minute), false),
		mkEvent("E03", "WP01", "in_progress", "for_review", base.Add(2*time.Minute), false),
	}
	tie := base.Add(3 * time.Minute)

	forward := mkEvent("E04B", "WP01", "for_review", "done", tie, false)
	forward.Evidence = &Evidence{Review: ReviewEvidence{Reviewer: "bob", Verdict: "approved", Reference: "PR#1"}}

	rollback := mkEvent("E04A", "WP01", "for_review", "in_progress", tie, false)
	rollback.ReviewRef = "PR#42"

	snap := Reduce(append(append([]Event(nil), evs...), forward, rollback))

	if got := snap.WorkPackages["WP01"].Lane; got != "in_progress" {
		t.Fatalf("expected rollback to win, got lane %q", got)
	}
}

func TestReduce_DuplicateEventIDFirstOccurrenceWins(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	first := mkEvent("E01", "WP01", "planned", "claimed", base, false)
	dup := mkEvent("E01", "WP01", "claimed", "in_progress", base.Add(time.Minute), false)

	snap := Reduce([]Event{first, dup})

	if snap.EventCount != 1 {
		t.Fatalf("expected deduped event count 1, got %d", snap.EventCount)
	}
	if got := snap.WorkPackages["WP01"].Lane; got != "claimed" {
		t.Fatalf("expected first occurrence (claimed) to win, got %q", got)
	}
}

func TestReduce_ForceCounting(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	evs := []Event{
		mkEvent("E01", "WP01", "planned", "claimed", base, false),
		mkEvent("E02", "WP01", "done", "in_progress", base.Add(time.Hour), true),
	}
	snap := Reduce(evs)
	if snap.WorkPackages["WP01"].ForceCount != 1 {
		t.Fatalf("expected force_count 1, got %d", snap.WorkPackages["WP01"].ForceCount)
	}
}

func TestReduce_SummaryCounts(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	evs := []Event{
		mkEvent("E01", "WP01", "planned", "claimed", base, false),
		mkEvent("E02", "WP02", "planned", "claimed", base, false),
		mkEvent("E03", "WP02", "claimed", "in_progress", base.Add(time.Minute), false),
	}
	snap := Reduce(evs)
	if snap.Summary["claimed"] != 1 || snap.Summary["in_progress"] != 1 {
		t.Fatalf("unexpected summary: %+v", snap.Summary)
	}
}
