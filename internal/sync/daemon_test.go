package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

// TestDaemon_OfflineQueueSurvivesRestart reproduces spec scenario S6: with
// the sync endpoint unreachable, three events are emitted directly to the
// queue; "restarting the process" is simulated by reopening the same
// queue file; sync_now then delivers all three and the queue drains.
func TestDaemon_OfflineQueueSurvivesRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "queue.db")
	scope := testScope()

	q1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := q1.Enqueue(scope, testEnvelope("WPStatusChanged")); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if err := q1.Close(); err != nil {
		t.Fatal(err)
	}

	q2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopening queue after restart: %v", err)
	}
	defer q2.Close()

	count, err := q2.PendingCount(scope)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("expected queue size 3 after restart, got %d", count)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeGzipBody(t, r)
		results := make([]eventResult, len(req.Events))
		for i, e := range req.Events {
			results[i] = eventResult{EventID: e.EventID, Status: "delivered"}
		}
		_ = json.NewEncoder(w).Encode(batchResponse{Results: results})
	}))
	defer srv.Close()

	daemon := NewDaemon(NewClient(srv.URL), q2, scope, func() string { return "tok" }, nil)
	if err := daemon.SyncNow(context.Background()); err != nil {
		t.Fatalf("SyncNow: %v", err)
	}

	final, err := q2.PendingCount(scope)
	if err != nil {
		t.Fatal(err)
	}
	if final != 0 {
		t.Fatalf("expected queue drained to 0, got %d", final)
	}
}

func TestDaemon_BackoffResetsOnSuccessDoublesOnFailure(t *testing.T) {
	b := newDaemonBackoff(daemonBaseInterval, daemonMaxInterval)
	if b.NextBackOff() != daemonBaseInterval {
		t.Fatalf("expected base interval, got %v", b.NextBackOff())
	}
	b.OnFailure()
	if b.NextBackOff() != daemonBaseInterval*2 {
		t.Fatalf("expected doubled interval, got %v", b.NextBackOff())
	}
	b.OnSuccess()
	if b.NextBackOff() != daemonBaseInterval {
		t.Fatalf("expected reset to base, got %v", b.NextBackOff())
	}
}

func TestDaemon_BackoffCapsAtMax(t *testing.T) {
	b := newDaemonBackoff(daemonBaseInterval, daemonMaxInterval)
	for i := 0; i < 20; i++ {
		b.OnFailure()
	}
	if b.NextBackOff() != daemonMaxInterval {
		t.Fatalf("expected capped at %v, got %v", daemonMaxInterval, b.NextBackOff())
	}
}
