package api

import (
	"time"

	"github.com/fourkites/rca-engine/pkg/hypothesis"
	"github.com/fourkites/rca-engine/pkg/investigation"
)

// SubmitTicketResponse is the plain JSON reply of POST
// /api/v1/investigations when the investigation has already finished
// before its stream could be subscribed; otherwise the handler answers
// with the NDJSON event stream instead.
type SubmitTicketResponse struct {
	InvestigationID string `json:"investigation_id"`
	Status          string `json:"status"`
}

// CancelResponse is returned by POST /api/v1/investigations/:id/cancel.
type CancelResponse struct {
	InvestigationID string `json:"investigation_id"`
	Message         string `json:"message"`
}

// HumanInputResponse is returned by
// POST /api/v1/investigations/:id/human-input.
type HumanInputResponse struct {
	InvestigationID string `json:"investigation_id"`
	Message         string `json:"message"`
}

// RecommendedActionResponse mirrors investigation.RecommendedAction.
type RecommendedActionResponse struct {
	Priority    string `json:"priority"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// ResultResponse mirrors investigation.Result.
type ResultResponse struct {
	Status              string                      `json:"status"`
	Category            string                      `json:"category,omitempty"`
	Description         string                      `json:"description,omitempty"`
	Confidence          float64                     `json:"confidence,omitempty"`
	RecommendedActions  []RecommendedActionResponse `json:"recommended_actions,omitempty"`
	Question            string                      `json:"question,omitempty"`
	MissingIdentifiers  []string                    `json:"missing_identifiers,omitempty"`
}

// SnapshotResponse is returned by GET /api/v1/investigations/:id: a
// read-only view of one investigation at the instant of the call,
// mirroring investigation.Snapshot.
type SnapshotResponse struct {
	ID            string                     `json:"id"`
	Mode          string                     `json:"mode,omitempty"`
	Phase         string                     `json:"phase"`
	Iteration     int                        `json:"iteration"`
	MaxIterations int                        `json:"max_iterations"`
	Hypotheses    []*hypothesis.Hypothesis   `json:"hypotheses,omitempty"`
	EvidenceCount int                        `json:"evidence_count"`
	Result        *ResultResponse            `json:"result,omitempty"`
	StartedAt     time.Time                  `json:"started_at"`
	EndedAt       time.Time                  `json:"ended_at,omitempty"`
	CancelReason  string                     `json:"cancel_reason,omitempty"`
}

// newSnapshotResponse translates an investigation.Snapshot into its wire
// shape.
func newSnapshotResponse(s investigation.Snapshot) *SnapshotResponse {
	resp := &SnapshotResponse{
		ID:            s.ID,
		Mode:          s.Mode,
		Phase:         string(s.Phase),
		Iteration:     s.Iteration,
		MaxIterations: s.MaxIterations,
		Hypotheses:    s.Hypotheses,
		EvidenceCount: s.EvidenceCount,
		StartedAt:     s.StartedAt,
		EndedAt:       s.EndedAt,
		CancelReason:  s.CancelReason,
	}
	if s.Result != nil {
		actions := make([]RecommendedActionResponse, 0, len(s.Result.RecommendedActions))
		for _, a := range s.Result.RecommendedActions {
			actions = append(actions, RecommendedActionResponse{
				Priority: a.Priority, Category: a.Category, Description: a.Description,
			})
		}
		resp.Result = &ResultResponse{
			Status:              string(s.Result.Status),
			Category:            s.Result.Category,
			Description:         s.Result.Description,
			Confidence:          s.Result.Confidence,
			RecommendedActions:  actions,
			Question:            s.Result.Question,
			MissingIdentifiers:  s.Result.MissingIdentifiers,
		}
	}
	return resp
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// HealthCheck represents the status of a single health check component.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
