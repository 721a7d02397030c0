// Package scheduler implements the concurrent, dependency-aware
// work-package dispatcher: a single cooperative loop that advances every
// WP in a feature through PENDING -> READY -> IMPLEMENTATION -> REVIEW ->
// COMPLETED|FAILED, using the lane state machine (internal/transitions,
// internal/events) as the authoritative substrate for what actually
// happened. Generalized from the teacher's internal/engine level-by-level
// concern runner: that package ran one pass over a fixed concern list
// per invocation; this one runs a long-lived loop with retries, fallback
// agents, staleness polling, and graceful shutdown.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/events"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/ids"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/lane"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/telemetry"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/transitions"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/vcs"

	"go.uber.org/zap"
)

// Config configures one scheduler run.
type Config struct {
	FeatureSlug string
	RepoDir     string
	WorkDir     string // parent directory under which per-WP workspaces are created

	// Agents is the implementer agent and its fallback list, in order;
	// Agents[0] is tried first.
	Agents []AgentConfig
	// Reviewer is the agent invoked for the review phase.
	Reviewer AgentConfig

	MaxRetries         int
	MaxConcurrent      int64 // global concurrency cap
	MaxConcurrentAgent int64 // per-agent concurrency cap
	StalenessThreshold time.Duration
	TickInterval       time.Duration

	Store     *events.Store
	Telemetry *telemetry.Store
	VCS       vcs.Backend
	Invoker   AgentInvoker
	Log       *zap.Logger

	// Prompt builds the implement-phase prompt for a WP; ReviewPrompt
	// builds the review-phase prompt given the workspace path.
	Prompt       func(wpID string) string
	ReviewPrompt func(wpID, workspaceDir string) string

	Now func() time.Time
}

func (c *Config) defaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	if c.MaxConcurrentAgent <= 0 {
		c.MaxConcurrentAgent = 2
	}
	if c.StalenessThreshold <= 0 {
		c.StalenessThreshold = 10 * time.Minute
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 30 * time.Second
	}
	if c.Log == nil {
		c.Log = zap.NewNop()
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
}

// Scheduler is a single feature's dispatch loop.
type Scheduler struct {
	cfg Config

	mu          sync.Mutex
	run         *OrchestrationRun
	graph       *Graph
	inFlight    map[string]bool
	agentIndex  map[string]int // per-WP index into cfg.Agents currently in use

	globalSem *semaphore.Weighted
	agentSems map[string]*semaphore.Weighted
}

// New constructs a scheduler for the given specs (work packages and their
// declared dependencies). It fails if the dependency graph is cyclic or
// references a non-existent WP, per spec §4.D finalization.
func New(cfg Config, specs []WPSpec) (*Scheduler, error) {
	cfg.defaults()
	graph, err := BuildGraph(specs)
	if err != nil {
		return nil, err
	}

	runID, err := newRunID()
	if err != nil {
		return nil, err
	}

	agentSems := make(map[string]*semaphore.Weighted, len(cfg.Agents)+1)
	for _, a := range cfg.Agents {
		agentSems[a.Name] = semaphore.NewWeighted(cfg.MaxConcurrentAgent)
	}
	agentSems[cfg.Reviewer.Name] = semaphore.NewWeighted(cfg.MaxConcurrentAgent)

	return &Scheduler{
		cfg:        cfg,
		run:        newOrchestrationRun(runID, cfg.FeatureSlug, specs),
		graph:      graph,
		inFlight:   make(map[string]bool),
		agentIndex: make(map[string]int),
		globalSem:  semaphore.NewWeighted(cfg.MaxConcurrent),
		agentSems:  agentSems,
	}, nil
}

func newRunID() (string, error) {
	return ids.NewULID(), nil
}

// Run executes the dispatch loop until every WP reaches a terminal phase,
// or ctx is canceled (in which case in-flight tasks are allowed to finish
// before Run returns, per spec §4.D step 5 / §5 cancellation policy).
func (s *Scheduler) Run(ctx context.Context) (*OrchestrationRun, error) {
	completions := make(chan string, len(s.graph.IDs()))
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	shuttingDown := false

	for {
		s.cascadeDependencyFailures()

		if !shuttingDown {
			s.dispatchReady(ctx, completions)
		}

		if s.allDone() {
			return s.run, nil
		}

		if s.noProgressPossible() {
			s.failStuckWPs()
			continue
		}

		select {
		case <-completions:
			// loop: re-evaluate ready set and cascades
		case <-ticker.C:
			s.detectStaleness()
		case <-ctx.Done():
			shuttingDown = true
			if s.inFlightCount() == 0 {
				return s.run, ctx.Err()
			}
		}
	}
}

func (s *Scheduler) inFlightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

func (s *Scheduler) allDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run.AllTerminal()
}

// cascadeDependencyFailures marks any PENDING WP FAILED if one of its
// dependencies is FAILED, repeating to a fixpoint so failure propagates
// transitively down a dependency chain (spec §8 scenario S4).
func (s *Scheduler) cascadeDependencyFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		changed := false
		for _, id := range s.graph.IDs() {
			exec := s.run.Executions[id]
			if exec.Status.Terminal() || exec.Status == PhaseImplementation || exec.Status == PhaseReview {
				continue
			}
			for _, dep := range s.graph.Dependencies(id) {
				if s.run.Executions[dep].Status == PhaseFailed {
					exec.Status = PhaseFailed
					exec.LastError = "Blocked by failed dependencies"
					exec.CompletedAt = s.cfg.Now()
					changed = true
					break
				}
			}
		}
		if !changed {
			return
		}
	}
}

// readySet returns PENDING WPs whose dependencies are all COMPLETED, plus
// any WP stuck mid-phase (IMPLEMENTATION/REVIEW) that isn't currently
// in-flight — the latter is the crash-recovery/respawn case from spec
// §4.D step 3.
func (s *Scheduler) readySet() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ready []string
	for _, id := range s.graph.IDs() {
		if s.inFlight[id] {
			continue
		}
		exec := s.run.Executions[id]
		switch exec.Status {
		case PhaseImplementation, PhaseReview:
			ready = append(ready, id)
		case PhasePending:
			allDepsDone := true
			for _, dep := range s.graph.Dependencies(id) {
				if s.run.Executions[dep].Status != PhaseCompleted {
					allDepsDone = false
					break
				}
			}
			if allDepsDone {
				ready = append(ready, id)
			}
		}
	}
	return ready
}

func (s *Scheduler) dispatchReady(ctx context.Context, completions chan<- string) {
	for _, id := range s.readySet() {
		s.mu.Lock()
		s.inFlight[id] = true
		if s.run.Executions[id].Status == PhasePending {
			s.run.Executions[id].Status = PhaseReady
		}
		s.mu.Unlock()

		go s.runTask(ctx, id, completions)
	}
}

func (s *Scheduler) runTask(ctx context.Context, wpID string, completions chan<- string) {
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, wpID)
		s.mu.Unlock()
		completions <- wpID
	}()
	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			exec := s.run.Executions[wpID]
			exec.Status = PhaseFailed
			exec.LastError = fmt.Sprintf("panic: %v", r)
			exec.CompletedAt = s.cfg.Now()
			s.mu.Unlock()
		}
	}()

	s.processWP(ctx, wpID)
}

// noProgressPossible implements spec §4.D step 6: nothing in flight, the
// ready set is empty, yet some WP remains non-terminal with a non-failed,
// non-completed dependency that itself has no path forward.
func (s *Scheduler) noProgressPossible() bool {
	if s.inFlightCount() > 0 {
		return false
	}
	if len(s.readySet()) > 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.graph.IDs() {
		if !s.run.Executions[id].Status.Terminal() {
			return true
		}
	}
	return false
}

func (s *Scheduler) failStuckWPs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.graph.IDs() {
		exec := s.run.Executions[id]
		if !exec.Status.Terminal() {
			exec.Status = PhaseFailed
			exec.LastError = "No progress possible: dependency chain stalled"
			exec.CompletedAt = s.cfg.Now()
		}
	}
}

// detectStaleness flags WPs whose workspace hasn't committed in longer
// than the configured threshold. It is observational only: it never
// moves a lane (spec §4.D).
func (s *Scheduler) detectStaleness() {
	s.mu.Lock()
	ids := make([]string, 0)
	for _, id := range s.graph.IDs() {
		if s.run.Executions[id].Status == PhaseImplementation {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	for _, id := range ids {
		wsDir := s.workspaceDir(id)
		last, err := s.cfg.VCS.GetLastCommitTime(wsDir)
		if err != nil {
			continue
		}
		stale := s.cfg.Now().Sub(last) > s.cfg.StalenessThreshold
		s.mu.Lock()
		s.run.Executions[id].Stale = stale
		s.mu.Unlock()
	}
}

func (s *Scheduler) workspaceDir(wpID string) string {
	return s.cfg.WorkDir + "/" + s.cfg.FeatureSlug + "-" + wpID
}

// transition validates and persists a lane transition, wiring
// internal/transitions.Guard in front of internal/events.Store.Append so
// the scheduler never writes an event the state machine wouldn't allow.
func (s *Scheduler) transition(wpID string, from, to lane.Lane, in transitions.Input) error {
	in.From, in.To = from, to
	if err := transitions.Guard(in); err != nil {
		return fmt.Errorf("transition %s %s->%s rejected: %w", wpID, from, to, err)
	}

	eventID := ids.NewULID()
	e := events.Event{
		EventID:     eventID,
		FeatureSlug: s.cfg.FeatureSlug,
		WPID:        wpID,
		FromLane:    string(from),
		ToLane:      string(to),
		At:          s.cfg.Now(),
		Actor:       in.Actor,
		Force:       in.Force,
		Reason:      in.Reason,
		ReviewRef:   in.ReviewRef,
	}
	if in.Evidence != nil {
		e.Evidence = &events.Evidence{Review: events.ReviewEvidence(*in.Evidence)}
	}
	_, err := s.cfg.Store.Append(e)
	return err
}
