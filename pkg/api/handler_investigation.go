package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fourkites/rca-engine/pkg/stream"
	"github.com/fourkites/rca-engine/pkg/ticket"
)

// submitInvestigationHandler handles POST /api/v1/investigations.
//
// Starts the investigation, then upgrades the response to chunked NDJSON
// streaming of its event channel (§6 "Submission" — "the response opens a
// long-lived ordered event stream"). The handler only returns once the
// investigation reaches `complete` or the client disconnects.
func (s *Server) submitInvestigationHandler(c *gin.Context) {
	// 1. Bind request.
	var req SubmitTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	// 2. Transform to a ticket, filling in defaults.
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	t := ticket.Ticket{
		ID:              req.ID,
		Subject:         req.Subject,
		Body:            req.Body,
		CustomerID:      req.CustomerID,
		SubmittedAt:     time.Now().UTC(),
		UserIdentifiers: req.UserIdentifiers,
	}

	opts := s.defaultOptions
	if req.MaxIterations > 0 {
		opts.MaxIterations = req.MaxIterations
	}
	if req.OverallDeadlineS > 0 {
		opts.OverallDeadline = time.Duration(req.OverallDeadlineS) * time.Second
	}
	opts.Collaborative = req.Collaborative
	if req.AutoResolveThreshold > 0 {
		opts.AutoResolveThreshold = req.AutoResolveThreshold
	}
	if req.EliminationThreshold > 0 {
		opts.EliminationThreshold = req.EliminationThreshold
	}

	// 3. Start the investigation.
	id, err := s.supervisor.Start(c.Request.Context(), t, opts)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	slog.Info("investigation submitted", "investigation_id", id, "requester", extractRequester(c))

	if s.eventLog != nil {
		go s.persistEvents(context.Background(), id)
	}

	// 4. Subscribe before writing anything, so no event published after
	// Start can be missed.
	subID := uuid.NewString()
	sub, err := s.bus.Subscribe(id, subID)
	if err != nil {
		// The investigation already finished and closed its bus entry
		// before we subscribed; reply with a plain "complete" acknowledgement.
		c.JSON(http.StatusOK, &SubmitTicketResponse{InvestigationID: id, Status: "complete"})
		return
	}
	defer s.bus.Unsubscribe(id, subID)

	// 5. Stream NDJSON until `complete` or the client goes away.
	c.Writer.Header().Set("Content-Type", "application/x-ndjson")
	c.Writer.WriteHeader(http.StatusOK)
	flusher, canFlush := c.Writer.(http.Flusher)

	for {
		select {
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			frame, err := stream.Encode(e)
			if err != nil {
				continue
			}
			if _, err := c.Writer.Write(frame); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
			if e.Kind == stream.KindComplete {
				return
			}
		case <-c.Request.Context().Done():
			return
		}
	}
}

// getInvestigationHandler handles GET /api/v1/investigations/:id.
func (s *Server) getInvestigationHandler(c *gin.Context) {
	id := c.Param("id")
	snap, ok := s.supervisor.Get(id)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, apiError{Error: "investigation not found"})
		return
	}
	c.JSON(http.StatusOK, newSnapshotResponse(snap))
}

// cancelInvestigationHandler handles POST /api/v1/investigations/:id/cancel.
func (s *Server) cancelInvestigationHandler(c *gin.Context) {
	id := c.Param("id")

	var req CancelRequest
	_ = c.ShouldBindJSON(&req) // body is optional; a missing/empty reason is fine

	if err := s.supervisor.Cancel(id, req.Reason); err != nil {
		mapInvestigationError(c, err)
		return
	}
	c.JSON(http.StatusOK, &CancelResponse{InvestigationID: id, Message: "cancellation requested"})
}

// humanInputHandler handles POST /api/v1/investigations/:id/human-input.
func (s *Server) humanInputHandler(c *gin.Context) {
	id := c.Param("id")

	var req HumanInputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Answer == "" {
		badRequest(c, "answer is required")
		return
	}

	if err := s.supervisor.ProvideHumanInput(id, req.Answer); err != nil {
		mapInvestigationError(c, err)
		return
	}
	c.JSON(http.StatusOK, &HumanInputResponse{InvestigationID: id, Message: "human input recorded"})
}
