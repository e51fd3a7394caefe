package stream

// Payload structs mirror the wire bodies documented in §6 exactly: one
// struct per event kind, JSON-tagged to match the field names given there.

type StartedPayload struct {
	InvestigationID string `json:"investigation_id"`
	Mode            string `json:"mode"`
}

type AgentStartedPayload struct {
	InvestigationID string `json:"investigation_id"`
	Source          string `json:"source"`
}

type AgentFinishedPayload struct {
	InvestigationID string `json:"investigation_id"`
	Source          string `json:"source"`
	Status          string `json:"status"`
}

type QueryExecutedPayload struct {
	InvestigationID  string `json:"investigation_id"`
	Source           string `json:"source"`
	QueryFingerprint string `json:"query_fingerprint"`
	DurationMS       int    `json:"duration_ms"`
	ResultCount      *int   `json:"result_count,omitempty"`
	Error            string `json:"error,omitempty"`
	Raw              any    `json:"raw,omitempty"`
}

type EvidenceAddedPayload struct {
	InvestigationID  string  `json:"investigation_id"`
	EvidenceID       string  `json:"evidence_id"`
	Source           string  `json:"source"`
	Finding          string  `json:"finding"`
	Supports         bool    `json:"supports"`
	Weight           int     `json:"weight"`
	SourceConfidence float64 `json:"source_confidence"`
	HypothesisID     string  `json:"hypothesis_id,omitempty"`
	Timestamp        string  `json:"ts"`
}

type HypothesisUpdatedPayload struct {
	InvestigationID string   `json:"investigation_id"`
	HypothesisID    string   `json:"hypothesis_id"`
	Category        string   `json:"category"`
	Description     string   `json:"description"`
	Confidence      float64  `json:"confidence"`
	State           string   `json:"state"`
	EvidenceFor     []string `json:"evidence_for"`
	EvidenceAgainst []string `json:"evidence_against"`
}

type DecisionPayload struct {
	InvestigationID string `json:"investigation_id"`
	AdapterName     string `json:"adapter_name"`
	Reason          string `json:"reason"`
}

type DiscussionPayload struct {
	InvestigationID string `json:"investigation_id"`
	AgentID         string `json:"agent_id"`
	Type            string `json:"type"`
	Message         string `json:"message"`
}

type HeartbeatPayload struct {
	InvestigationID    string   `json:"investigation_id"`
	Progress           float64  `json:"progress"`
	CurrentActivity    string   `json:"current_activity"`
	AgentsRunning      []string `json:"agents_running"`
	DataSourcesQueried int      `json:"data_sources_queried"`
	DataSourcesTotal   int      `json:"data_sources_total"`
}

type RecommendedAction struct {
	Priority    string `json:"priority"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

type RootCausePayload struct {
	InvestigationID    string              `json:"investigation_id"`
	Category           string              `json:"category"`
	Description        string              `json:"description"`
	Confidence         float64             `json:"confidence"`
	RecommendedActions []RecommendedAction `json:"recommended_actions"`
}

type HypothesisSummary struct {
	ID         string  `json:"id"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

type NeedsHumanContext struct {
	Hypotheses         []HypothesisSummary `json:"hypotheses"`
	MissingIdentifiers []string            `json:"missing_identifiers"`
}

type NeedsHumanPayload struct {
	InvestigationID string            `json:"investigation_id"`
	Question        string            `json:"question"`
	Context         NeedsHumanContext `json:"context"`
}

type CompletePayload struct {
	InvestigationID string `json:"investigation_id"`
	Status          string `json:"status"`
	DurationMS      int    `json:"duration_ms"`
}

type SnapshotPayload struct {
	InvestigationID string                     `json:"investigation_id"`
	Phase           string                     `json:"phase"`
	Hypotheses      []HypothesisUpdatedPayload `json:"hypotheses"`
	EvidenceCount   int                        `json:"evidence_count"`
}

// RoundConfidence rounds a confidence value half up to 4 decimal places
// (at most 4 significant digits for values in [0,1]) for wire stability (§4.6 "emits them as decimals with ≤4
// significant digits").
func RoundConfidence(v float64) float64 {
	const scale = 10000.0
	return float64(int(v*scale+0.5)) / scale
}
