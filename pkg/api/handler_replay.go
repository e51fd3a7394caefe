package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fourkites/rca-engine/pkg/stream"
)

// replayEvent is the wire shape of one persisted event, matching the
// NDJSON frame's kind/body split (§6).
type replayEvent struct {
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body"`
}

// replayHandler handles GET /api/v1/investigations/:id/replay: reconstructs
// an investigation's full event history from the optional durable event
// log (§6 EXPANSION "Optional persistence"). Returns 404 when no event log
// is configured or the investigation was never persisted — the engine runs
// correctly without this store, so its absence is not a server error.
func (s *Server) replayHandler(c *gin.Context) {
	if s.eventLog == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, apiError{Error: "event log persistence is not enabled"})
		return
	}

	events, err := s.eventLog.Replay(c.Request.Context(), c.Param("id"))
	if err != nil {
		mapInvestigationError(c, err)
		return
	}
	if len(events) == 0 {
		c.AbortWithStatusJSON(http.StatusNotFound, apiError{Error: "investigation not found"})
		return
	}

	resp := make([]replayEvent, len(events))
	for i, e := range events {
		resp[i] = replayEvent{Kind: string(e.Kind), Body: e.Body}
	}
	c.JSON(http.StatusOK, resp)
}

// persistEvents subscribes to one investigation's stream independently of
// any HTTP/WS client and appends every event to the event log in arrival
// order, assigning the strictly-increasing sequence Append requires.
// KindSnapshot is never persisted (§4.8) since it is a late-subscriber
// catchup artifact, not part of the canonical history.
//
// Runs until the subscription closes (investigation complete) or the
// server shuts down (subscriber channel left to drain on its own).
func (s *Server) persistEvents(ctx context.Context, investigationID string) {
	subID := "eventlog-" + uuid.NewString()
	sub, err := s.bus.Subscribe(investigationID, subID)
	if err != nil {
		return
	}
	defer s.bus.Unsubscribe(investigationID, subID)

	var seq int64
	for e := range sub.Events() {
		if e.Kind == stream.KindSnapshot {
			continue
		}
		if err := s.eventLog.Append(ctx, investigationID, seq, e); err != nil {
			slog.Error("failed to persist investigation event", "investigation_id", investigationID, "error", err)
		}
		seq++
		if e.Kind == stream.KindComplete {
			return
		}
	}
}
