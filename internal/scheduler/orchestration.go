package scheduler

import "time"

// Phase is one of the scheduler's per-WP lifecycle phases, tracked
// independently from the lane state machine in internal/transitions
// (which records the durable, auditable history; Phase is transient
// run-local bookkeeping for the dispatch loop).
type Phase string

const (
	PhasePending        Phase = "PENDING"
	PhaseReady          Phase = "READY"
	PhaseImplementation Phase = "IMPLEMENTATION"
	PhaseReview         Phase = "REVIEW"
	PhaseCompleted      Phase = "COMPLETED"
	PhaseFailed         Phase = "FAILED"
)

func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// WPExecution is the transient scheduler-local state for a single WP
// during a run, per spec §3 OrchestrationRun.WPExecution.
type WPExecution struct {
	WPID                string
	Status              Phase
	ImplementationRetry int
	ReviewRetry         int
	StartedAt           time.Time
	CompletedAt         time.Time
	LastError           string
	FallbackAgentsTried []string
	ReviewFeedback      string
	Stale               bool
	WorkspaceCreated    bool
}

// OrchestrationRun is the transient state of one scheduler invocation
// over a feature's work packages.
type OrchestrationRun struct {
	RunID       string
	FeatureSlug string
	Executions  map[string]*WPExecution
}

func newOrchestrationRun(runID, featureSlug string, specs []WPSpec) *OrchestrationRun {
	execs := make(map[string]*WPExecution, len(specs))
	for _, s := range specs {
		execs[s.ID] = &WPExecution{WPID: s.ID, Status: PhasePending}
	}
	return &OrchestrationRun{RunID: runID, FeatureSlug: featureSlug, Executions: execs}
}

// ProgressCounts summarizes execution phases for reporting.
func (r *OrchestrationRun) ProgressCounts() map[Phase]int {
	counts := map[Phase]int{}
	for _, e := range r.Executions {
		counts[e.Status]++
	}
	return counts
}

// AllTerminal reports whether every WP has reached COMPLETED or FAILED.
func (r *OrchestrationRun) AllTerminal() bool {
	for _, e := range r.Executions {
		if !e.Status.Terminal() {
			return false
		}
	}
	return true
}
