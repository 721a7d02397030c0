package sync

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeGzipBody(t *testing.T, r *http.Request) batchRequest {
	t.Helper()
	gz, err := gzip.NewReader(r.Body)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	defer gz.Close()
	data, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("reading gzip body: %v", err)
	}
	var req batchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		t.Fatalf("unmarshaling batch body: %v", err)
	}
	return req
}

func TestClient_SyncOnce_DeliversAndDrainsQueue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeGzipBody(t, r)
		if r.Header.Get("Authorization") != "Bearer tok123" {
			t.Errorf("expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		results := make([]eventResult, len(req.Events))
		for i, e := range req.Events {
			results[i] = eventResult{EventID: e.EventID, Status: "delivered"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(batchResponse{Results: results})
	}))
	defer srv.Close()

	q := openTestQueue(t)
	scope := testScope()
	for i := 0; i < 3; i++ {
		env := testEnvelope("WPStatusChanged")
		env.EventID = env.EventID[:len(env.EventID)-1] + string(rune('A'+i))
		if err := q.Enqueue(scope, env); err != nil {
			t.Fatal(err)
		}
	}

	client := NewClient(srv.URL)
	n, err := client.SyncOnce(context.Background(), q, scope, "tok123")
	if err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 delivered, got %d", n)
	}
	count, _ := q.PendingCount(scope)
	if count != 0 {
		t.Fatalf("expected queue drained, got %d pending", count)
	}
}

func TestClient_SyncOnce_PartialSuccessKeepsErroredEventsPending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeGzipBody(t, r)
		results := make([]eventResult, len(req.Events))
		for i, e := range req.Events {
			status := "delivered"
			if i == 0 {
				status = "error"
			}
			results[i] = eventResult{EventID: e.EventID, Status: status}
		}
		_ = json.NewEncoder(w).Encode(batchResponse{Results: results})
	}))
	defer srv.Close()

	q := openTestQueue(t)
	scope := testScope()
	for i := 0; i < 2; i++ {
		env := testEnvelope("WPStatusChanged")
		env.EventID = env.EventID[:len(env.EventID)-1] + string(rune('A'+i))
		if err := q.Enqueue(scope, env); err != nil {
			t.Fatal(err)
		}
	}

	client := NewClient(srv.URL)
	n, err := client.SyncOnce(context.Background(), q, scope, "tok")
	if err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 delivered, got %d", n)
	}
	count, _ := q.PendingCount(scope)
	if count != 1 {
		t.Fatalf("expected 1 still pending after partial success, got %d", count)
	}
}

func TestClient_SyncOnce_AuthFailureKeepsEventsQueued(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	q := openTestQueue(t)
	scope := testScope()
	if err := q.Enqueue(scope, testEnvelope("a")); err != nil {
		t.Fatal(err)
	}

	client := NewClient(srv.URL)
	_, err := client.SyncOnce(context.Background(), q, scope, "bad-token")
	if err == nil {
		t.Fatal("expected auth failure error")
	}
	if te, ok := err.(*TransportError); !ok || te.Kind != "auth" {
		t.Fatalf("expected TransportError{Kind: auth}, got %v (%T)", err, err)
	}

	count, _ := q.PendingCount(scope)
	if count != 1 {
		t.Fatalf("expected event to remain queued after auth failure, got %d", count)
	}
}

func TestClient_SyncOnce_EmptyQueueIsNoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("expected no request for an empty queue")
	}))
	defer srv.Close()

	q := openTestQueue(t)
	client := NewClient(srv.URL)
	n, err := client.SyncOnce(context.Background(), q, testScope(), "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
}

func TestClient_Probe_ClassifiesResponses(t *testing.T) {
	cases := []struct {
		status int
		want   ProbeResult
	}{
		{http.StatusOK, ProbeConnected},
		{http.StatusUnauthorized, ProbeAuthenticationFailed},
		{http.StatusForbidden, ProbePermissionDenied},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		client := NewClient(srv.URL)
		got := client.Probe(context.Background(), "tok")
		srv.Close()
		if got != tc.want {
			t.Errorf("status %d: expected %v, got %v", tc.status, tc.want, got)
		}
	}
}

func TestClient_Probe_UnreachableServer(t *testing.T) {
	client := NewClient("http://127.0.0.1:1") // nothing listening
	got := client.Probe(context.Background(), "tok")
	if got != ProbeUnreachable {
		t.Fatalf("expected unreachable, got %v", got)
	}
}
