// Package sync implements the durable offline event queue and batch
// delivery pipeline (spec §4.G): a SQLite-backed store, gzip-compressed
// batch POSTs, a background daemon timer with exponential backoff, and a
// connectivity probe. Grounded on the teacher's db.go connection-setup
// idiom (WAL mode, busy_timeout, retry-on-open) from the pack's
// cloudshipai-station repo, generalized from an application database
// into a single append-mostly queue table.
package sync

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/emitter"
)

// ReplayStatus is the lifecycle of one queued event.
type ReplayStatus string

const (
	StatusPending   ReplayStatus = "pending"
	StatusDelivered ReplayStatus = "delivered"
	StatusFailed    ReplayStatus = "failed"
)

// MaxPendingPerScope is the hard cap on pending rows per account scope;
// over-cap enqueues are rejected with a warning rather than dropping
// older events to make room (spec §4.G). A var, not a const, so tests can
// exercise the boundary without enqueuing ten thousand rows.
var MaxPendingPerScope = 10_000

// QueuedEvent is one row of the offline queue.
type QueuedEvent struct {
	ID           int64            `db:"id"`
	ScopeKey     string           `db:"scope_key"`
	EventJSON    string           `db:"event_json"`
	ReplayStatus ReplayStatus     `db:"replay_status"`
	RetryCount   int              `db:"retry_count"`
	LastRetryAt  sql.NullTime     `db:"last_retry_at"`
	CreatedAt    time.Time        `db:"created_at"`
}

// Envelope decodes the stored envelope JSON.
func (q QueuedEvent) Envelope() (emitter.Envelope, error) {
	var env emitter.Envelope
	err := json.Unmarshal([]byte(q.EventJSON), &env)
	return env, err
}

// Queue is the durable offline event store, backed by a single SQLite
// file in WAL mode.
type Queue struct {
	db *sqlx.DB
}

// Open creates (if needed) and opens the queue database at path,
// enabling WAL mode and a busy timeout so concurrent processes tolerate
// each other's writes without an additional application-level lock (spec
// §5 shared-resource policy).
func Open(path string) (*Queue, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening queue database: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers from one handle
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 30000"); err != nil {
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("applying queue schema: %w", err)
	}
	return &Queue{db: db}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS queued_events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	scope_key     TEXT NOT NULL,
	event_json    TEXT NOT NULL,
	replay_status TEXT NOT NULL DEFAULT 'pending',
	retry_count   INTEGER NOT NULL DEFAULT 0,
	last_retry_at DATETIME,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_queued_events_scope_status ON queued_events(scope_key, replay_status);
`

func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue appends env to scope's queue. Returns an error (logged as a
// warning by callers, never dropping the event from the caller's
// perspective) if scope is already at MaxPendingPerScope.
func (q *Queue) Enqueue(scope emitter.AccountScope, env emitter.Envelope) error {
	count, err := q.PendingCount(scope)
	if err != nil {
		return fmt.Errorf("checking queue capacity: %w", err)
	}
	if count >= MaxPendingPerScope {
		return fmt.Errorf("queue at capacity (%d) for scope %s", MaxPendingPerScope, scope.Key())
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}
	_, err = q.db.Exec(
		`INSERT INTO queued_events (scope_key, event_json, replay_status) VALUES (?, ?, ?)`,
		scope.Key(), string(data), StatusPending,
	)
	return err
}

// PendingCount returns the number of pending rows for scope.
func (q *Queue) PendingCount(scope emitter.AccountScope) (int, error) {
	var n int
	err := q.db.Get(&n, `SELECT COUNT(*) FROM queued_events WHERE scope_key = ? AND replay_status = ?`, scope.Key(), StatusPending)
	return n, err
}

// Drain returns up to limit pending rows for scope, oldest first.
func (q *Queue) Drain(scope emitter.AccountScope, limit int) ([]QueuedEvent, error) {
	var rows []QueuedEvent
	err := q.db.Select(&rows,
		`SELECT id, scope_key, event_json, replay_status, retry_count, last_retry_at, created_at
		 FROM queued_events WHERE scope_key = ? AND replay_status = ? ORDER BY id ASC LIMIT ?`,
		scope.Key(), StatusPending, limit,
	)
	return rows, err
}

// MarkDelivered removes delivered rows from the queue entirely.
func (q *Queue) MarkDelivered(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM queued_events WHERE id IN (?)`, ids)
	if err != nil {
		return err
	}
	_, err = q.db.Exec(q.db.Rebind(query), args...)
	return err
}

// MarkFailed increments the retry counter and stamps last_retry_at for
// rows that failed delivery but remain pending (spec §4.G partial-success
// disposition).
func (q *Queue) MarkFailed(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE queued_events SET retry_count = retry_count + 1, last_retry_at = ? WHERE id IN (?)`, time.Now(), ids)
	if err != nil {
		return err
	}
	_, err = q.db.Exec(q.db.Rebind(query), args...)
	return err
}
