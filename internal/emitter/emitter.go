package emitter

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/fileutil"
)

// Transport is the online delivery path for envelopes. Implementations
// must treat any dial/write failure as routable to the offline queue;
// Send should not retry internally (retry/backoff is the sync pipeline's
// job once an event is queued).
type Transport interface {
	// IsConnected reports whether the transport currently believes it has
	// a live, authenticated connection. Emit only attempts Send when this
	// is true; false routes straight to the queue.
	IsConnected() bool
	Send(ctx context.Context, scope AccountScope, env Envelope) error
}

// Queue is the durable offline-queue side of routing. Implemented by
// internal/sync; kept as a narrow interface here so this package never
// imports the sync package (inverted dependency: sync depends on
// emitter's Envelope type, not the reverse).
type Queue interface {
	Enqueue(scope AccountScope, env Envelope) error
}

// Emitter constructs and routes envelopes for one account scope. Per
// spec §4.F, emission is fail-safe: construction or transport failures
// are logged once and never raised to the caller.
type Emitter struct {
	Scope     AccountScope
	Clock     *LamportClock
	Transport Transport
	Queue     Queue
	Log       *zap.Logger
}

// New constructs an Emitter bound to scope, loading (or initializing) the
// Lamport clock at the per-feature path conventionally returned by
// fileutil.TelemetryClockPath.
func New(scope AccountScope, featureDir string, transport Transport, queue Queue, log *zap.Logger) *Emitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Emitter{
		Scope:     scope,
		Clock:     LoadClock(fileutil.TelemetryClockPath(featureDir)),
		Transport: transport,
		Queue:     queue,
		Log:       log,
	}
}

// Emit constructs an envelope, ticks the clock, and routes it: direct
// send when an online transport is connected, otherwise (or on any
// transport failure) the durable queue. It never returns an error to the
// caller — nil means construction failed and was logged. A non-nil
// envelope is returned whether it was sent online, queued, or rejected by
// the queue (the rejection is logged as a warning), so it does not tell
// the caller whether routing succeeded.
func (e *Emitter) Emit(ctx context.Context, in NewEnvelopeInput) *Envelope {
	clockValue := e.Clock.Tick()
	env, err := newEnvelope(in, e.Clock.NodeID, clockValue)
	if err != nil {
		e.Log.Warn("emitter: envelope construction failed", zap.Error(err), zap.String("event_type", in.EventType))
		return nil
	}

	if e.Transport != nil && e.Transport.IsConnected() {
		sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := e.Transport.Send(sendCtx, e.Scope, env); err == nil {
			return &env
		} else {
			e.Log.Info("emitter: online send failed, falling back to offline queue", zap.Error(err), zap.String("event_id", env.EventID))
		}
	}

	if err := e.Queue.Enqueue(e.Scope, env); err != nil {
		e.Log.Warn("emitter: queue rejected event (capacity?), returning event anyway", zap.Error(err), zap.String("event_id", env.EventID))
	}
	return &env
}

// Receive reconciles the local clock with a remote Lamport value observed
// from an incoming sync event, e.g. during multi-machine reconciliation.
func (e *Emitter) Receive(remote uint64) uint64 {
	return e.Clock.Receive(remote)
}
