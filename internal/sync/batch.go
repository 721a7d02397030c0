package sync

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/emitter"
)

const defaultBatchSize = 200

// batchRequest is the wire body for a batch sync POST.
type batchRequest struct {
	Events []emitter.Envelope `json:"events"`
}

// eventResult is one event's disposition in a partial-success response.
type eventResult struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"` // "delivered" | "error"
}

type batchResponse struct {
	Results []eventResult `json:"results"`
}

// TransportError classifies a batch POST failure so the caller's retry
// policy can react appropriately (spec §4.G).
type TransportError struct {
	Kind string // "auth", "permission", "transport", "unreachable"
	Err  error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// Client delivers batches of queued events to the remote ingest endpoint.
type Client struct {
	BatchURL   string
	HTTPClient *http.Client
}

func NewClient(batchURL string) *Client {
	return &Client{BatchURL: batchURL, HTTPClient: &http.Client{Timeout: 30 * time.Second}}
}

// postBatch serializes envs as {"events": [...]}, gzip-compresses the
// body, and POSTs it with accessToken as a bearer header. Returns the
// per-event dispositions on any 2xx response with a parseable body.
func (c *Client) postBatch(ctx context.Context, envs []emitter.Envelope, accessToken string) ([]eventResult, error) {
	body, err := json.Marshal(batchRequest{Events: envs})
	if err != nil {
		return nil, fmt.Errorf("marshaling batch: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(body); err != nil {
		return nil, fmt.Errorf("gzip-compressing batch: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BatchURL, &buf)
	if err != nil {
		return nil, fmt.Errorf("building batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &TransportError{Kind: "unreachable", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &TransportError{Kind: "auth", Err: fmt.Errorf("401 unauthorized")}
	case resp.StatusCode == http.StatusForbidden:
		return nil, &TransportError{Kind: "permission", Err: fmt.Errorf("403 forbidden")}
	case resp.StatusCode >= 500:
		return nil, &TransportError{Kind: "transport", Err: fmt.Errorf("server error %d", resp.StatusCode)}
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var parsed batchResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			// 2xx with an empty or unparseable body: treat every event as
			// delivered, matching an endpoint that acknowledges with 204.
			return nil, nil
		}
		return parsed.Results, nil
	default:
		return nil, &TransportError{Kind: "transport", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
}

// SyncOnce drains up to defaultBatchSize pending events for scope, POSTs
// them, and applies the partial-success disposition: delivered events are
// removed, errored events keep their retry counter incremented and stay
// pending. Returns the number of events successfully delivered.
func (c *Client) SyncOnce(ctx context.Context, q *Queue, scope emitter.AccountScope, accessToken string) (int, error) {
	rows, err := q.Drain(scope, defaultBatchSize)
	if err != nil {
		return 0, fmt.Errorf("draining queue: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	envs := make([]emitter.Envelope, 0, len(rows))
	byEventID := make(map[string]int64, len(rows))
	for _, row := range rows {
		env, err := row.Envelope()
		if err != nil {
			continue
		}
		envs = append(envs, env)
		byEventID[env.EventID] = row.ID
	}

	results, err := c.postBatch(ctx, envs, accessToken)
	if err != nil {
		// Transport/auth/permission failure: nothing delivered, rows stay
		// pending for the next attempt. Retry counters are not bumped here
		// since the whole batch failed before per-event disposition.
		return 0, err
	}

	if results == nil {
		// No body: the endpoint acknowledged the whole batch.
		ids := make([]int64, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		return len(ids), q.MarkDelivered(ids)
	}

	var delivered, failed []int64
	for _, r := range results {
		id, ok := byEventID[r.EventID]
		if !ok {
			continue
		}
		if r.Status == "delivered" {
			delivered = append(delivered, id)
		} else {
			failed = append(failed, id)
		}
	}
	if err := q.MarkDelivered(delivered); err != nil {
		return len(delivered), err
	}
	if err := q.MarkFailed(failed); err != nil {
		return len(delivered), err
	}
	return len(delivered), nil
}

// Probe checks connectivity/auth state against the batch endpoint using
// the real access token (never a hardcoded literal), per spec §4.G.
type ProbeResult string

const (
	ProbeConnected           ProbeResult = "connected"
	ProbeAuthenticationFailed ProbeResult = "authentication_failed"
	ProbePermissionDenied    ProbeResult = "permission_denied"
	ProbeUnreachable         ProbeResult = "unreachable"
)

func (c *Client) Probe(ctx context.Context, accessToken string) ProbeResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BatchURL, nil)
	if err != nil {
		return ProbeUnreachable
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return ProbeUnreachable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ProbeAuthenticationFailed
	case resp.StatusCode == http.StatusForbidden:
		return ProbePermissionDenied
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return ProbeConnected
	default:
		return ProbeUnreachable
	}
}
