package events

import "sort"

// WPState is the per-work-package view held inside a Snapshot.
type WPState struct {
	Lane        string `json:"lane"`
	Actor       string `json:"actor,omitempty"`
	LastEventID string `json:"last_event_id,omitempty"`
	ForceCount  int    `json:"force_count"`
}

// Snapshot is the derived, regenerable view of a feature's event log.
type Snapshot struct {
	WorkPackages map[string]WPState `json:"work_packages"`
	Summary      map[string]int     `json:"summary"`
	EventCount   int                `json:"event_count"`
}

func newSnapshot() Snapshot {
	return Snapshot{
		WorkPackages: make(map[string]WPState),
		Summary:      make(map[string]int),
	}
}

// rollbackRank is 1 for events that represent "rollback beats concurrent
// forward progression": a transition away from for_review to a
// non-terminal lane carrying a non-empty review_ref. All other events
// rank 0. Used only to break ties at equal timestamps.
func rollbackRank(e Event) int {
	if e.FromLane == "for_review" && e.ToLane != "done" && e.ToLane != "canceled" && e.ReviewRef != "" {
		return 1
	}
	return 0
}

// Reduce deterministically folds a slice of events (in any order, with
// possible duplicate event_ids) into a Snapshot. It is pure: calling it
// twice on the same (possibly reordered) input slice always yields an
// identical Snapshot.
//
// Steps, per spec §4.B:
//  1. Deduplicate by event_id, keeping first occurrence (by original
//     slice position, since position is the only meaningful "occurrence
//     order" before the events have been append-ordered).
//  2. Sort by (at, rollback_rank, event_id), rollback_rank ascending:
//     the apply loop is last-applied-wins, so a rollback (rank 1) sorts
//     after a same-timestamp forward event and wins.
//  3. Apply each event in order to the per-WP state.
//  4. Compute summary counts per lane.
func Reduce(evs []Event) Snapshot {
	deduped := dedupeFirstOccurrence(evs)

	sort.SliceStable(deduped, func(i, j int) bool {
		a, b := deduped[i], deduped[j]
		if !a.At.Equal(b.At) {
			return a.At.Before(b.At)
		}
		ra, rb := rollbackRank(a), rollbackRank(b)
		if ra != rb {
			// apply loop below is last-applied-wins, so the rollback
			// (rank 1) must sort after the concurrent forward event to win
			return ra < rb
		}
		return a.EventID < b.EventID
	})

	snap := newSnapshot()
	snap.EventCount = len(deduped)

	for _, e := range deduped {
		st := snap.WorkPackages[e.WPID]
		st.Lane = e.ToLane
		st.Actor = e.Actor
		st.LastEventID = e.EventID
		if e.Force {
			st.ForceCount++
		}
		snap.WorkPackages[e.WPID] = st
	}

	for _, st := range snap.WorkPackages {
		snap.Summary[st.Lane]++
	}

	return snap
}

func dedupeFirstOccurrence(evs []Event) []Event {
	seen := make(map[string]bool, len(evs))
	out := make([]Event, 0, len(evs))
	for _, e := range evs {
		if seen[e.EventID] {
			continue
		}
		seen[e.EventID] = true
		out = append(out, e)
	}
	return out
}

// ApplyEvent folds a single fresh event into an existing snapshot,
// equivalent to (but cheaper than) re-reducing the whole log with e
// appended. The equivalence holds only when e's event_id is new and e.At
// is not older than any event already folded into snap; ApplyEvent does
// not check either condition. Store.Append does not use it: it re-reduces
// the full log on every write.
func ApplyEvent(snap Snapshot, e Event) Snapshot {
	if snap.WorkPackages == nil {
		snap = newSnapshot()
	}
	st := snap.WorkPackages[e.WPID]
	st.Lane = e.ToLane
	st.Actor = e.Actor
	st.LastEventID = e.EventID
	if e.Force {
		st.ForceCount++
	}
	snap.WorkPackages[e.WPID] = st
	snap.EventCount++

	snap.Summary = make(map[string]int, len(snap.Summary))
	for _, s := range snap.WorkPackages {
		snap.Summary[s.Lane]++
	}
	return snap
}
