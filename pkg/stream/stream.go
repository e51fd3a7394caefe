// Package stream implements the per-investigation ordered event stream and
// its wire encoder (§4.8, §6): a closed set of typed event kinds, a stable
// NDJSON `<kind>\t<json>\n` framing, and a connection/backpressure model
// adapted from the teacher's Postgres-LISTEN/NOTIFY-backed
// ConnectionManager, simplified here to an in-process ring buffer since the
// core places no durable-storage requirement on itself (§1 Non-goal 3).
package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind is one of the closed set of event kinds named in §4.8.
type Kind string

const (
	KindStarted              Kind = "started"
	KindAgentStarted         Kind = "agent_started"
	KindAgentFinished        Kind = "agent_finished"
	KindQueryExecuted        Kind = "query_executed"
	KindEvidenceAdded        Kind = "evidence_added"
	KindHypothesisAdded      Kind = "hypothesis_added"
	KindHypothesisUpdated    Kind = "hypothesis_updated"
	KindHypothesisEliminated Kind = "hypothesis_eliminated"
	KindDecision             Kind = "decision"
	KindDiscussion           Kind = "discussion"
	KindHeartbeat            Kind = "heartbeat"
	KindRootCause            Kind = "root_cause"
	KindNeedsHuman           Kind = "needs_human"
	KindComplete             Kind = "complete"
	// KindSnapshot is emitted only to a late subscriber, never persisted,
	// per §4.8's "a late subscriber receives a snapshot event summarizing
	// current state, then live events".
	KindSnapshot Kind = "snapshot"
)

// Event is one record on an investigation's stream: a kind label plus its
// typed JSON body.
type Event struct {
	Kind Kind
	Body json.RawMessage
}

// Encode renders an Event as `<kind>\t<json>\n` (§6).
func Encode(e Event) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(string(e.Kind))
	buf.WriteByte('\t')
	buf.Write(e.Body)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// NewEvent marshals body and wraps it as an Event of the given kind.
func NewEvent(kind Kind, body any) (Event, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Event{}, fmt.Errorf("stream: encode %s event: %w", kind, err)
	}
	return Event{Kind: kind, Body: raw}, nil
}
