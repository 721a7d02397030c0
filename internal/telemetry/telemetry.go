// Package telemetry records ExecutionEvents: per-feature, append-only
// agent-invocation telemetry (role, model, token/cost/duration, success,
// error), kept separate from the status event log in internal/events.
// Storage shape mirrors internal/events.Store (JSONL + file lock) since
// both are append-only per-feature logs written by the same process.
package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/fileutil"
)

// Role identifies which agent invocation produced the event.
type Role string

const (
	RoleImplementer Role = "implementer"
	RoleReviewer    Role = "reviewer"
)

// ExecutionEvent is one agent invocation's telemetry record.
type ExecutionEvent struct {
	EventID     string    `json:"event_id"`
	WPID        string    `json:"wp_id"`
	Role        Role      `json:"role"`
	Agent       string    `json:"agent"`
	Model       string    `json:"model,omitempty"`
	At          time.Time `json:"at"`
	DurationMS  int64     `json:"duration_ms"`
	TokensIn    int64     `json:"tokens_in,omitempty"`
	TokensOut   int64     `json:"tokens_out,omitempty"`
	CostUSD     float64   `json:"cost_usd,omitempty"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	AttemptNum  int       `json:"attempt_num"`
}

// Store appends ExecutionEvents to a feature's execution.events.jsonl.
type Store struct {
	FeatureDir string
	Log        *zap.Logger
}

func New(featureDir string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{FeatureDir: featureDir, Log: log}
}

// Append writes e to the execution log. Unlike the status event store,
// execution telemetry has no reducer or materialized view: it is read
// back in full (ReadAll) for reporting, never folded into current state.
func (s *Store) Append(e ExecutionEvent) error {
	if e.EventID == "" {
		return fmt.Errorf("telemetry: event_id is required")
	}
	if e.WPID == "" {
		return fmt.Errorf("telemetry: wp_id is required")
	}
	if err := fileutil.EnsureDir(s.FeatureDir); err != nil {
		return err
	}

	lock, err := fileutil.Lock(fileutil.LockPath(s.FeatureDir) + ".execution")
	if err != nil {
		return fmt.Errorf("acquiring execution telemetry lock: %w", err)
	}
	defer lock.Unlock()

	f, err := os.OpenFile(fileutil.ExecutionEventsLogPath(s.FeatureDir), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening execution events log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling execution event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing execution event: %w", err)
	}
	return nil
}

// ReadAll returns every recorded ExecutionEvent for the feature, in file
// order. Unparseable lines are skipped and logged once, not line-by-line,
// matching internal/events.Store.ReadAll's tolerance for partial writes.
func (s *Store) ReadAll() ([]ExecutionEvent, error) {
	f, err := os.Open(fileutil.ExecutionEventsLogPath(s.FeatureDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening execution events log: %w", err)
	}
	defer f.Close()

	var events []ExecutionEvent
	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e ExecutionEvent
		if err := json.Unmarshal(line, &e); err != nil {
			skipped++
			continue
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning execution events log: %w", err)
	}
	if skipped > 0 {
		s.Log.Warn("skipped unparseable execution event lines", zap.Int("count", skipped))
	}
	return events, nil
}

// ForWP filters ReadAll to a single work package.
func (s *Store) ForWP(wpID string) ([]ExecutionEvent, error) {
	all, err := s.ReadAll()
	if err != nil {
		return nil, err
	}
	var filtered []ExecutionEvent
	for _, e := range all {
		if e.WPID == wpID {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}
