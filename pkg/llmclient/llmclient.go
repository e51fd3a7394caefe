// Package llmclient defines the pluggable classifier/reasoner boundary the
// engine calls for identifier extraction and hypothesis seeding. No vendor
// SDK is named here (§1 Non-goal 2, §9): callers depend only on this
// interface, mirroring how the teacher's agent controllers depend on
// agent.LLMClient rather than a concrete provider type.
package llmclient

import "context"

// ExtractionRequest carries the free text and any already-known
// identifiers for a single extraction call (§4.2).
type ExtractionRequest struct {
	Text               string
	KnownIdentifiers   map[string]string
}

// ExtractionResult is the classifier's best-effort identifier/mode guess.
// Confidence is in [0,1]; callers fall back to regex extraction when it is
// below their configured threshold or the call errors.
type ExtractionResult struct {
	Identifiers map[string]string
	Mode        string
	Confidence  float64
}

// HypothesisSuggestion is one LLM-proposed root-cause candidate (§4.6
// seeding source 2).
type HypothesisSuggestion struct {
	Category    string
	Description string
	Prior       float64
}

// EvidenceSummary is the minimal view of one evidence item the reasoner
// sees when proposing hypotheses — deliberately narrower than
// evidence.Evidence so this package has no dependency on the evidence
// store.
type EvidenceSummary struct {
	Source   string
	Finding  string
	Supports bool
	Weight   int
}

// Client is the boundary the engine calls into. Implementations may wrap
// any provider; the engine never assumes one.
type Client interface {
	// ExtractIdentifiers classifies free text into identifiers and a
	// transport mode.
	ExtractIdentifiers(ctx context.Context, req ExtractionRequest) (ExtractionResult, error)

	// SuggestHypotheses proposes up to maxSuggestions additional
	// hypotheses given the evidence accumulated so far (§4.6: priors in
	// [0.10, 0.35]).
	SuggestHypotheses(ctx context.Context, evidence []EvidenceSummary, maxSuggestions int) ([]HypothesisSuggestion, error)
}
