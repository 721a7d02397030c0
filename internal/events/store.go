package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/atomicio"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/fileutil"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/lane"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/wpfile"
	"go.uber.org/zap"
)

// Phase controls how strictly ValidateDerivedViews treats drift between a
// WP file's frontmatter lane and the canonical snapshot. Phase 1 (dual
// write) only warns; Phase 2 (snapshot-authoritative) treats it as an
// error.
type Phase int

const (
	Phase1DualWrite Phase = 1
	Phase2Authoritative Phase = 2
)

// Store is the append-only event log plus materialized snapshot for a
// single feature directory.
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

// Append validates e's shape, resolves the to_lane/from_lane aliases,
// appends it to events.jsonl under an exclusive file lock, rewrites the
// affected WP's frontmatter lane (dual-write, Phase 1), and re-materializes
// the snapshot. It returns the canonicalized event actually stored.
func (s *Store) Append(e Event) (Event, error) {
	toLane, ok := lane.Canonicalize(e.ToLane)
	if !ok {
		return Event{}, fmt.Errorf("invalid to_lane %q", e.ToLane)
	}
	e.ToLane = string(toLane)

	if e.FromLane != "" {
		fromLane, ok := lane.Canonicalize(e.FromLane)
		if !ok {
			return Event{}, fmt.Errorf("invalid from_lane %q", e.FromLane)
		}
		e.FromLane = string(fromLane)
	}

	if e.EventID == "" || e.WPID == "" || e.FeatureSlug == "" {
		return Event{}, fmt.Errorf("event missing required field(s): event_id=%q wp_id=%q feature_slug=%q", e.EventID, e.WPID, e.FeatureSlug)
	}

	if err := fileutil.EnsureDir(s.FeatureDir); err != nil {
		return Event{}, err
	}

	lockPath := fileutil.LockPath(s.FeatureDir)
	fl, err := fileutil.Lock(lockPath)
	if err != nil {
		return Event{}, fmt.Errorf("acquiring event log lock: %w", err)
	}
	defer fl.Unlock()

	existing, _, err := s.readAllLocked()
	if err != nil {
		return Event{}, err
	}
	for _, prior := range existing {
		if prior.EventID == e.EventID {
			// Idempotent duplicate: append is a no-op, materialize is still
			// safe to rerun but unnecessary.
			s.Log.Debug("duplicate event_id, append is a no-op", zap.String("event_id", e.EventID))
			return prior, nil
		}
	}

	logPath := fileutil.EventsLogPath(s.FeatureDir)
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Event{}, fmt.Errorf("opening event log: %w", err)
	}
	line, err := json.Marshal(e)
	if err != nil {
		f.Close()
		return Event{}, err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return Event{}, fmt.Errorf("appending event: %w", err)
	}
	if err := f.Close(); err != nil {
		return Event{}, fmt.Errorf("closing event log: %w", err)
	}

	if err := s.materializeLocked(append(existing, e)); err != nil {
		return Event{}, fmt.Errorf("materializing snapshot: %w", err)
	}

	s.dualWriteFrontmatter(e)

	return e, nil
}

// dualWriteFrontmatter rewrites the affected WP file's frontmatter lane to
// match the event just appended. Per spec §4.B this keeps pre-cutover
// consumers (anything reading the WP file directly instead of the
// snapshot) seeing a consistent view. A missing WP file is not an error:
// not every event necessarily has a corresponding file yet (e.g. in
// tests, or a WP created purely through the event stream).
func (s *Store) dualWriteFrontmatter(e Event) {
	path, ok := wpfile.FindByID(fileutil.TasksDir(s.FeatureDir), e.WPID)
	if !ok {
		return
	}
	if err := wpfile.WriteLane(path, e.ToLane); err != nil {
		s.Log.Warn("dual-write of WP frontmatter lane failed", zap.String("wp_id", e.WPID), zap.Error(err))
	}
}

// ValidateDerivedViews compares each WP file's frontmatter lane against
// the canonical snapshot. In Phase1DualWrite, disagreements are returned
// as warnings only (the caller decides how to surface them); in
// Phase2Authoritative the same disagreements are errors.
type DriftFinding struct {
	WPID       string
	FileLane   string
	SnapLane   string
	IsError    bool
}

func (s *Store) ValidateDerivedViews(phase Phase) ([]DriftFinding, error) {
	snap, err := s.LoadSnapshot()
	if err != nil {
		return nil, err
	}
	tasksDir := fileutil.TasksDir(s.FeatureDir)
	var findings []DriftFinding
	for _, id := range wpfile.ListIDs(tasksDir) {
		path, ok := wpfile.FindByID(tasksDir, id)
		if !ok {
			continue
		}
		f, err := wpfile.ReadFile(path)
		if err != nil {
			s.Log.Warn("skipping unreadable WP file during drift validation", zap.String("path", path), zap.Error(err))
			continue
		}
		snapLane := snap.WorkPackages[id].Lane
		if f.Frontmatter.Lane != snapLane {
			findings = append(findings, DriftFinding{
				WPID:     id,
				FileLane: f.Frontmatter.Lane,
				SnapLane: snapLane,
				IsError:  phase == Phase2Authoritative,
			})
		}
	}
	return findings, nil
}

// ReadAll returns every event in the log, skipping (and logging once per
// read, not per line) corrupt JSONL lines. A missing log file is treated
// as an empty one.
func (s *Store) ReadAll() ([]Event, error) {
	evs, _, err := s.readAllLocked()
	return evs, err
}

func (s *Store) readAllLocked() ([]Event, int, error) {
	path := fileutil.EventsLogPath(s.FeatureDir)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("opening event log: %w", err)
	}
	defer f.Close()

	var evs []Event
	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			skipped++
			continue
		}
		evs = append(evs, e)
	}
	if skipped > 0 {
		s.Log.Warn("skipped corrupt event log line(s)", zap.Int("skipped", skipped), zap.String("path", path))
	}
	return evs, skipped, scanner.Err()
}

// Materialize reruns Reduce over the current log and writes status.json
// atomically. If the log is missing entirely, it writes an empty
// snapshot (Failure model: "Missing events + missing snapshot -> empty
// state").
func (s *Store) Materialize() error {
	evs, err := s.ReadAll()
	if err != nil {
		return err
	}
	return s.materializeLocked(evs)
}

func (s *Store) materializeLocked(evs []Event) error {
	snap := Reduce(evs)
	return atomicio.WriteJSON(fileutil.SnapshotPath(s.FeatureDir), snap)
}

// LoadSnapshot reads status.json, rebuilding it from the event log if it
// is missing.
func (s *Store) LoadSnapshot() (Snapshot, error) {
	var snap Snapshot
	err := atomicio.ReadJSON(fileutil.SnapshotPath(s.FeatureDir), &snap)
	if os.IsNotExist(err) {
		evs, rerr := s.ReadAll()
		if rerr != nil {
			return Snapshot{}, rerr
		}
		snap = Reduce(evs)
		if werr := s.materializeLocked(evs); werr != nil {
			return Snapshot{}, werr
		}
		return snap, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// ValidateMaterializationDrift re-reduces the event log and compares the
// result to what's currently on disk in status.json. A non-nil, non-empty
// result lists the WP ids whose on-disk lane disagrees with the freshly
// reduced one.
func (s *Store) ValidateMaterializationDrift() ([]string, error) {
	evs, err := s.ReadAll()
	if err != nil {
		return nil, err
	}
	fresh := Reduce(evs)

	var onDisk Snapshot
	err = atomicio.ReadJSON(fileutil.SnapshotPath(s.FeatureDir), &onDisk)
	if os.IsNotExist(err) {
		return nil, nil // nothing on disk yet; not drift, just unmaterialized
	}
	if err != nil {
		return nil, err
	}

	var drifted []string
	for wp, freshState := range fresh.WorkPackages {
		if onDisk.WorkPackages[wp].Lane != freshState.Lane {
			drifted = append(drifted, wp)
		}
	}
	return drifted, nil
}
