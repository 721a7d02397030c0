package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/ids"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/lane"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/telemetry"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/transitions"

	"go.uber.org/zap"
)

// processWP phase-dispatches one task body invocation for wpID, per spec
// §4.D. It does not loop internally: a WP that needs both an implement
// and a review pass is redispatched across two scheduler loop iterations,
// which is what lets step 3 ("respawn incomplete in-flight WPs") recover a
// WP whose process died mid-phase.
func (s *Scheduler) processWP(ctx context.Context, wpID string) {
	s.mu.Lock()
	status := s.run.Executions[wpID].Status
	s.mu.Unlock()

	switch status {
	case PhaseReady, PhasePending, PhaseImplementation:
		s.implementPhase(ctx, wpID)
	case PhaseReview:
		s.reviewPhase(ctx, wpID)
	}
}

func (s *Scheduler) currentAgent(wpID string) AgentConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.agentIndex[wpID]
	if idx >= len(s.cfg.Agents) {
		idx = len(s.cfg.Agents) - 1
	}
	return s.cfg.Agents[idx]
}

func (s *Scheduler) implementPhase(ctx context.Context, wpID string) {
	agent := s.currentAgent(wpID)
	if err := s.globalSem.Acquire(ctx, 1); err != nil {
		s.failWP(wpID, fmt.Sprintf("acquiring global concurrency slot: %v", err))
		return
	}
	defer s.globalSem.Release(1)

	sem := s.agentSems[agent.Name]
	if sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			s.failWP(wpID, fmt.Sprintf("acquiring agent concurrency slot: %v", err))
			return
		}
		defer sem.Release(1)
	}

	s.mu.Lock()
	s.run.Executions[wpID].Status = PhaseImplementation
	s.run.Executions[wpID].StartedAt = s.cfg.Now()
	alreadyClaimed := s.run.Executions[wpID].WorkspaceCreated
	s.mu.Unlock()

	wsDir := s.workspaceDir(wpID)

	if !alreadyClaimed {
		if err := s.transition(wpID, lane.Planned, lane.Claimed, transitions.Input{Actor: agent.Name}); err != nil {
			s.failWP(wpID, err.Error())
			return
		}

		branch := s.cfg.FeatureSlug + "-" + wpID
		if _, err := s.cfg.VCS.CreateWorkspace(s.cfg.RepoDir, wsDir, branch, "HEAD"); err != nil {
			s.recordImplementFailure(wpID, fmt.Errorf("creating workspace: %w", err))
			return
		}

		if err := s.transition(wpID, lane.Claimed, lane.InProgress, transitions.Input{Actor: agent.Name, WorkspaceContext: wsDir}); err != nil {
			s.recordImplementFailure(wpID, err)
			return
		}

		s.mu.Lock()
		s.run.Executions[wpID].WorkspaceCreated = true
		s.mu.Unlock()
	}

	prompt := ""
	if s.cfg.Prompt != nil {
		prompt = s.cfg.Prompt(wpID)
	}

	start := time.Now()
	_, err := s.cfg.Invoker.Invoke(ctx, agent, wsDir, prompt)
	elapsed := time.Since(start)

	s.emitExecutionTelemetry(wpID, telemetry.RoleImplementer, agent.Name, elapsed, err)

	if err != nil {
		s.recordImplementFailure(wpID, err)
		return
	}

	if err := s.transition(wpID, lane.InProgress, lane.ForReview, transitions.Input{
		Actor:                         agent.Name,
		SubtasksComplete:              true,
		ImplementationEvidencePresent: true,
	}); err != nil {
		s.recordImplementFailure(wpID, err)
		return
	}

	s.mu.Lock()
	s.run.Executions[wpID].Status = PhaseReview
	s.mu.Unlock()
}

func (s *Scheduler) reviewPhase(ctx context.Context, wpID string) {
	reviewer := s.cfg.Reviewer
	if err := s.globalSem.Acquire(ctx, 1); err != nil {
		s.failWP(wpID, fmt.Sprintf("acquiring global concurrency slot: %v", err))
		return
	}
	defer s.globalSem.Release(1)

	sem := s.agentSems[reviewer.Name]
	if sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			s.failWP(wpID, fmt.Sprintf("acquiring agent concurrency slot: %v", err))
			return
		}
		defer sem.Release(1)
	}

	wsDir := s.workspaceDir(wpID)
	prompt := ""
	if s.cfg.ReviewPrompt != nil {
		prompt = s.cfg.ReviewPrompt(wpID, wsDir)
	}

	start := time.Now()
	output, err := s.cfg.Invoker.Invoke(ctx, reviewer, wsDir, prompt)
	elapsed := time.Since(start)
	s.emitExecutionTelemetry(wpID, telemetry.RoleReviewer, reviewer.Name, elapsed, err)

	if err != nil {
		s.recordReviewFailure(wpID, err)
		return
	}

	verdict := ParseReviewVerdict(output)
	if verdict.Approved {
		reviewRef := ids.NewULID()
		err := s.transition(wpID, lane.ForReview, lane.Done, transitions.Input{
			Actor: reviewer.Name,
			Evidence: &transitions.ReviewEvidence{
				Reviewer:  reviewer.Name,
				Verdict:   "approved",
				Reference: reviewRef,
			},
		})
		if err != nil {
			s.recordReviewFailure(wpID, err)
			return
		}
		s.mu.Lock()
		s.run.Executions[wpID].Status = PhaseCompleted
		s.run.Executions[wpID].CompletedAt = s.cfg.Now()
		s.mu.Unlock()
		return
	}

	reviewRef := ids.NewULID()
	err = s.transition(wpID, lane.ForReview, lane.InProgress, transitions.Input{
		Actor:     reviewer.Name,
		ReviewRef: reviewRef,
	})
	if err != nil {
		s.recordReviewFailure(wpID, err)
		return
	}

	s.mu.Lock()
	exec := s.run.Executions[wpID]
	exec.ReviewFeedback = verdict.Feedback
	exec.ReviewRetry++
	if exec.ReviewRetry > s.cfg.MaxRetries {
		exec.Status = PhaseFailed
		exec.LastError = "review not approved after exhausting retry budget"
		exec.CompletedAt = s.cfg.Now()
	} else {
		exec.Status = PhaseImplementation
	}
	s.mu.Unlock()
}

// recordImplementFailure applies spec §4.D retry/fallback policy: bump
// implementation_retries; once it exceeds max_retries, advance to the
// next configured fallback agent (recording it in fallback_agents_tried);
// once the fallback list is exhausted, mark the WP FAILED.
func (s *Scheduler) recordImplementFailure(wpID string, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec := s.run.Executions[wpID]
	exec.ImplementationRetry++
	exec.LastError = cause.Error()

	if exec.ImplementationRetry <= s.cfg.MaxRetries {
		exec.Status = PhasePending
		return
	}

	idx := s.agentIndex[wpID]
	if idx+1 < len(s.cfg.Agents) {
		exec.FallbackAgentsTried = append(exec.FallbackAgentsTried, s.cfg.Agents[idx].Name)
		s.agentIndex[wpID] = idx + 1
		exec.ImplementationRetry = 0
		exec.Status = PhasePending
		return
	}

	exec.Status = PhaseFailed
	exec.CompletedAt = s.cfg.Now()
}

func (s *Scheduler) recordReviewFailure(wpID string, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec := s.run.Executions[wpID]
	exec.ReviewRetry++
	exec.LastError = cause.Error()

	if exec.ReviewRetry <= s.cfg.MaxRetries {
		exec.Status = PhaseReview
		return
	}
	exec.Status = PhaseFailed
	exec.CompletedAt = s.cfg.Now()
}

func (s *Scheduler) failWP(wpID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec := s.run.Executions[wpID]
	exec.Status = PhaseFailed
	exec.LastError = reason
	exec.CompletedAt = s.cfg.Now()
}

func (s *Scheduler) emitExecutionTelemetry(wpID string, role telemetry.Role, agentName string, elapsed time.Duration, invokeErr error) {
	if s.cfg.Telemetry == nil {
		return
	}
	e := telemetry.ExecutionEvent{
		EventID:    ids.NewULID(),
		WPID:       wpID,
		Role:       role,
		Agent:      agentName,
		At:         s.cfg.Now(),
		DurationMS: elapsed.Milliseconds(),
		Success:    invokeErr == nil,
	}
	if invokeErr != nil {
		e.Error = invokeErr.Error()
	}
	if err := s.cfg.Telemetry.Append(e); err != nil {
		s.cfg.Log.Warn("failed to append execution telemetry", zap.String("wp_id", wpID), zap.Error(err))
	}
}
