// Package emitter constructs canonical event envelopes for every
// significant mutation in the system and routes them to an online
// transport or a durable offline queue (spec §4.F). It is grounded on the
// teacher's JSON status-row construction in internal/engine (WriteStatus)
// generalized from a single flat status file into a causally-ordered
// envelope with cross-machine id acceptance.
package emitter

import (
	"fmt"
	"time"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/ids"
)

// Envelope is the canonical event record emitted for every significant
// mutation: status transitions, WP creation/assignment, feature creation,
// history notes, and execution telemetry.
type Envelope struct {
	EventID       string         `json:"event_id"`
	EventType     string         `json:"event_type"`
	AggregateID   string         `json:"aggregate_id"`
	AggregateType string         `json:"aggregate_type"`
	Payload       map[string]any `json:"payload,omitempty"`
	NodeID        string         `json:"node_id"`
	LamportClock  uint64         `json:"lamport_clock"`
	CausationID   string         `json:"causation_id,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	TeamSlug      string         `json:"team_slug"`
}

// NewEnvelopeInput is the caller-supplied content for one envelope;
// CausationID/CorrelationID are optional and, if present, must already be
// one of the three accepted id forms (validated here, not minted here).
type NewEnvelopeInput struct {
	EventType     string
	AggregateID   string
	AggregateType string
	Payload       map[string]any
	CausationID   string
	CorrelationID string
	TeamSlug      string
}

// newEnvelope mints a fresh event_id and stamps clock/node/time fields.
// Returns an error if a caller-supplied causation/correlation id fails
// the three-form acceptance check (spec §4.F); construction never mints
// those on the caller's behalf, only validates and normalizes.
func newEnvelope(in NewEnvelopeInput, nodeID string, clockValue uint64) (Envelope, error) {
	env := Envelope{
		EventID:       ids.NewULID(),
		EventType:     in.EventType,
		AggregateID:   in.AggregateID,
		AggregateType: in.AggregateType,
		Payload:       in.Payload,
		NodeID:        nodeID,
		LamportClock:  clockValue,
		Timestamp:     time.Now(),
		TeamSlug:      in.TeamSlug,
	}

	if in.CausationID != "" {
		norm, err := ids.Normalize(in.CausationID)
		if err != nil {
			return Envelope{}, fmt.Errorf("invalid causation_id: %w", err)
		}
		env.CausationID = norm
	}
	if in.CorrelationID != "" {
		norm, err := ids.Normalize(in.CorrelationID)
		if err != nil {
			return Envelope{}, fmt.Errorf("invalid correlation_id: %w", err)
		}
		env.CorrelationID = norm
	}
	return env, nil
}
