package llmclient

import "context"

// StubClient is a deterministic Client used in tests and as the default
// when no real provider is configured. It never calls out to anything.
type StubClient struct {
	// ExtractFn and SuggestFn let tests override behavior; nil means
	// "no-op low-confidence" response, which exercises the regex
	// fallback / empty-suggestions path.
	ExtractFn func(ctx context.Context, req ExtractionRequest) (ExtractionResult, error)
	SuggestFn func(ctx context.Context, evidence []EvidenceSummary, max int) ([]HypothesisSuggestion, error)
}

func (s *StubClient) ExtractIdentifiers(ctx context.Context, req ExtractionRequest) (ExtractionResult, error) {
	if s.ExtractFn != nil {
		return s.ExtractFn(ctx, req)
	}
	return ExtractionResult{Identifiers: map[string]string{}, Mode: "unknown", Confidence: 0}, nil
}

func (s *StubClient) SuggestHypotheses(ctx context.Context, evidence []EvidenceSummary, max int) ([]HypothesisSuggestion, error) {
	if s.SuggestFn != nil {
		return s.SuggestFn(ctx, evidence, max)
	}
	return nil, nil
}
