package telemetry

import (
	"testing"
	"time"
)

func TestStore_AppendAndReadAll(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)

	e1 := ExecutionEvent{EventID: "01EVT1", WPID: "WP01", Role: RoleImplementer, Agent: "claude", At: time.Unix(100, 0).UTC(), Success: true, AttemptNum: 1}
	e2 := ExecutionEvent{EventID: "01EVT2", WPID: "WP01", Role: RoleReviewer, Agent: "claude", At: time.Unix(200, 0).UTC(), Success: false, Error: "timeout", AttemptNum: 1}

	if err := s.Append(e1); err != nil {
		t.Fatalf("Append e1: %v", err)
	}
	if err := s.Append(e2); err != nil {
		t.Fatalf("Append e2: %v", err)
	}

	all, err := s.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 events, got %d", len(all))
	}
	if all[0].EventID != "01EVT1" || all[1].EventID != "01EVT2" {
		t.Fatalf("unexpected order: %+v", all)
	}
}

func TestStore_ReadAllOnMissingLogReturnsEmpty(t *testing.T) {
	s := New(t.TempDir(), nil)
	events, err := s.ReadAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestStore_ForWPFiltersByWorkPackage(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)

	if err := s.Append(ExecutionEvent{EventID: "e1", WPID: "WP01", Role: RoleImplementer, At: time.Unix(1, 0), Success: true}); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ExecutionEvent{EventID: "e2", WPID: "WP02", Role: RoleImplementer, At: time.Unix(2, 0), Success: true}); err != nil {
		t.Fatal(err)
	}

	wp01Events, err := s.ForWP("WP01")
	if err != nil {
		t.Fatalf("ForWP: %v", err)
	}
	if len(wp01Events) != 1 || wp01Events[0].EventID != "e1" {
		t.Fatalf("unexpected filter result: %+v", wp01Events)
	}
}

func TestStore_AppendRequiresEventIDAndWPID(t *testing.T) {
	s := New(t.TempDir(), nil)
	if err := s.Append(ExecutionEvent{WPID: "WP01"}); err == nil {
		t.Fatal("expected error for missing event_id")
	}
	if err := s.Append(ExecutionEvent{EventID: "e1"}); err == nil {
		t.Fatal("expected error for missing wp_id")
	}
}
