package sync

import (
	"path/filepath"
	"testing"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/emitter"
)

func testScope() emitter.AccountScope {
	return emitter.AccountScope{ServerURL: "https://example.test", Username: "alice", TeamSlug: "team-a"}
}

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func testEnvelope(eventType string) emitter.Envelope {
	return emitter.Envelope{
		EventID:     "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		EventType:   eventType,
		AggregateID: "WP01",
	}
}

func TestQueue_EnqueueAndDrain(t *testing.T) {
	q := openTestQueue(t)
	scope := testScope()

	for i := 0; i < 3; i++ {
		if err := q.Enqueue(scope, testEnvelope("WPStatusChanged")); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	count, err := q.PendingCount(scope)
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 pending, got %d", count)
	}

	rows, err := q.Drain(scope, 10)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows drained, got %d", len(rows))
	}
}

func TestQueue_ScopeIsolation(t *testing.T) {
	q := openTestQueue(t)
	scopeA := emitter.AccountScope{ServerURL: "https://x", Username: "alice", TeamSlug: "t1"}
	scopeB := emitter.AccountScope{ServerURL: "https://x", Username: "bob", TeamSlug: "t1"}

	if err := q.Enqueue(scopeA, testEnvelope("a")); err != nil {
		t.Fatal(err)
	}

	countA, _ := q.PendingCount(scopeA)
	countB, _ := q.PendingCount(scopeB)
	if countA != 1 || countB != 0 {
		t.Fatalf("expected scope isolation, got A=%d B=%d", countA, countB)
	}
}

func TestQueue_MarkDeliveredRemovesRows(t *testing.T) {
	q := openTestQueue(t)
	scope := testScope()
	if err := q.Enqueue(scope, testEnvelope("a")); err != nil {
		t.Fatal(err)
	}
	rows, _ := q.Drain(scope, 10)
	if err := q.MarkDelivered([]int64{rows[0].ID}); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	count, _ := q.PendingCount(scope)
	if count != 0 {
		t.Fatalf("expected 0 pending after delivery, got %d", count)
	}
}

func TestQueue_MarkFailedIncrementsRetryAndStaysPending(t *testing.T) {
	q := openTestQueue(t)
	scope := testScope()
	if err := q.Enqueue(scope, testEnvelope("a")); err != nil {
		t.Fatal(err)
	}
	rows, _ := q.Drain(scope, 10)
	if err := q.MarkFailed([]int64{rows[0].ID}); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	count, _ := q.PendingCount(scope)
	if count != 1 {
		t.Fatalf("expected event to remain pending after failure, got %d", count)
	}
	rows, _ = q.Drain(scope, 10)
	if rows[0].RetryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", rows[0].RetryCount)
	}
}

func TestQueue_RejectsOverCapWithoutDropping(t *testing.T) {
	orig := MaxPendingPerScope
	MaxPendingPerScope = 2
	t.Cleanup(func() { MaxPendingPerScope = orig })

	q := openTestQueue(t)
	scope := testScope()

	for i := 0; i < 2; i++ {
		if err := q.Enqueue(scope, testEnvelope("a")); err != nil {
			t.Fatalf("expected enqueue under cap to succeed: %v", err)
		}
	}
	if err := q.Enqueue(scope, testEnvelope("a")); err == nil {
		t.Fatal("expected enqueue over cap to be rejected")
	}
	count, _ := q.PendingCount(scope)
	if count != 2 {
		t.Fatalf("expected rejected event not persisted, pending count stayed at %d", count)
	}
}
