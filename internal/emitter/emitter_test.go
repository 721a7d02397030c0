package emitter

import (
	"context"
	"errors"
	"testing"

	"github.com/oklog/ulid/v2"
)

type fakeTransport struct {
	connected bool
	sendErr   error
	sent      []Envelope
}

func (f *fakeTransport) IsConnected() bool { return f.connected }

func (f *fakeTransport) Send(ctx context.Context, scope AccountScope, env Envelope) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, env)
	return nil
}

type fakeQueue struct {
	rejectAll bool
	queued    []Envelope
}

func (f *fakeQueue) Enqueue(scope AccountScope, env Envelope) error {
	if f.rejectAll {
		return errors.New("queue at capacity")
	}
	f.queued = append(f.queued, env)
	return nil
}

func testEmitter(t *testing.T, transport Transport, queue Queue) *Emitter {
	t.Helper()
	return New(AccountScope{ServerURL: "https://example.test", Username: "alice", TeamSlug: "team-a"}, t.TempDir(), transport, queue, nil)
}

func TestEmit_SendsDirectlyWhenTransportConnected(t *testing.T) {
	transport := &fakeTransport{connected: true}
	queue := &fakeQueue{}
	e := testEmitter(t, transport, queue)

	env := e.Emit(context.Background(), NewEnvelopeInput{EventType: "WPStatusChanged", AggregateID: "WP01", AggregateType: "work_package"})
	if env == nil {
		t.Fatal("expected a non-nil envelope")
	}
	if len(transport.sent) != 1 {
		t.Fatalf("expected event sent online, transport.sent=%v", transport.sent)
	}
	if len(queue.queued) != 0 {
		t.Fatalf("expected nothing queued, got %v", queue.queued)
	}
}

func TestEmit_FallsBackToQueueOnTransportFailure(t *testing.T) {
	transport := &fakeTransport{connected: true, sendErr: errors.New("dial failed")}
	queue := &fakeQueue{}
	e := testEmitter(t, transport, queue)

	env := e.Emit(context.Background(), NewEnvelopeInput{EventType: "WPStatusChanged", AggregateID: "WP01", AggregateType: "work_package"})
	if env == nil {
		t.Fatal("expected a non-nil envelope even on transport failure")
	}
	if len(queue.queued) != 1 {
		t.Fatalf("expected event queued after transport failure, got %v", queue.queued)
	}
}

func TestEmit_EnqueuesDirectlyWhenOffline(t *testing.T) {
	transport := &fakeTransport{connected: false}
	queue := &fakeQueue{}
	e := testEmitter(t, transport, queue)

	env := e.Emit(context.Background(), NewEnvelopeInput{EventType: "WPStatusChanged", AggregateID: "WP01", AggregateType: "work_package"})
	if env == nil {
		t.Fatal("expected a non-nil envelope")
	}
	if len(transport.sent) != 0 || len(queue.queued) != 1 {
		t.Fatalf("expected offline enqueue only, sent=%v queued=%v", transport.sent, queue.queued)
	}
}

func TestEmit_QueueRejectionStillReturnsEnvelope(t *testing.T) {
	transport := &fakeTransport{connected: false}
	queue := &fakeQueue{rejectAll: true}
	e := testEmitter(t, transport, queue)

	env := e.Emit(context.Background(), NewEnvelopeInput{EventType: "WPStatusChanged", AggregateID: "WP01", AggregateType: "work_package"})
	if env == nil {
		t.Fatal("expected the event returned even though the queue rejected it")
	}
}

func TestEmit_TicksClockOnEveryCall(t *testing.T) {
	transport := &fakeTransport{connected: false}
	queue := &fakeQueue{}
	e := testEmitter(t, transport, queue)

	first := e.Emit(context.Background(), NewEnvelopeInput{EventType: "a", AggregateID: "x", AggregateType: "t"})
	second := e.Emit(context.Background(), NewEnvelopeInput{EventType: "b", AggregateID: "x", AggregateType: "t"})
	if second.LamportClock <= first.LamportClock {
		t.Fatalf("expected monotonically increasing clock, got %d then %d", first.LamportClock, second.LamportClock)
	}
}

func TestEmit_MintsValidULIDEventID(t *testing.T) {
	e := testEmitter(t, &fakeTransport{connected: false}, &fakeQueue{})
	env := e.Emit(context.Background(), NewEnvelopeInput{EventType: "a", AggregateID: "x", AggregateType: "t"})
	if _, err := ulid.ParseStrict(env.EventID); err != nil {
		t.Fatalf("expected event_id to be a valid ULID, got %q: %v", env.EventID, err)
	}
}

func TestEmit_RejectsInvalidCausationID(t *testing.T) {
	e := testEmitter(t, &fakeTransport{connected: false}, &fakeQueue{})
	env := e.Emit(context.Background(), NewEnvelopeInput{
		EventType: "a", AggregateID: "x", AggregateType: "t",
		CausationID: "not-a-valid-id",
	})
	if env != nil {
		t.Fatal("expected nil envelope when causation_id is invalid")
	}
}

func TestEmit_NormalizesBareUUIDCorrelationID(t *testing.T) {
	e := testEmitter(t, &fakeTransport{connected: false}, &fakeQueue{})
	bare := "550e8400e29b41d4a716446655440000"
	env := e.Emit(context.Background(), NewEnvelopeInput{
		EventType: "a", AggregateID: "x", AggregateType: "t",
		CorrelationID: bare,
	})
	if env == nil {
		t.Fatal("expected non-nil envelope")
	}
	want := "550e8400-e29b-41d4-a716-446655440000"
	if env.CorrelationID != want {
		t.Fatalf("expected normalized %q, got %q", want, env.CorrelationID)
	}
}

func TestAccountScope_KeyDiffersAcrossAccounts(t *testing.T) {
	a := AccountScope{ServerURL: "https://x", Username: "alice", TeamSlug: "t1"}
	b := AccountScope{ServerURL: "https://x", Username: "bob", TeamSlug: "t1"}
	if a.Key() == b.Key() {
		t.Fatal("expected different scope keys for different usernames")
	}
}
