package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fourkites/rca-engine/pkg/llmclient"
	"github.com/fourkites/rca-engine/pkg/ticket"
)

func TestExtractFallsBackToRegexWhenLLMUnavailable(t *testing.T) {
	e := New(nil)
	tk := &ticket.Ticket{ID: "t1", Body: "Ocean vessel Load U110123982 not tracking; shipper ABC Corp; carrier XYZ Logistics"}

	res, err := e.Extract(context.Background(), tk)
	require.NoError(t, err)
	require.Contains(t, res.Identifiers, "load_number")
	assert.Equal(t, "U110123982", res.Identifiers["load_number"].Value)
	assert.Equal(t, ticket.ProvenanceRegex, res.Identifiers["load_number"].Provenance)
	assert.Equal(t, "ocean", res.Mode)
}

func TestExtractNeverOverwritesUserIdentifiers(t *testing.T) {
	llm := &llmclient.StubClient{
		ExtractFn: func(ctx context.Context, req llmclient.ExtractionRequest) (llmclient.ExtractionResult, error) {
			return llmclient.ExtractionResult{
				Identifiers: map[string]string{"tracking_id": "000000000000"},
				Mode:        "ocean",
				Confidence:  0.9,
			}, nil
		},
	}
	e := New(llm)
	tk := &ticket.Ticket{
		ID:              "t1",
		Body:            "no data",
		UserIdentifiers: map[string]string{"tracking_id": "999999999999"},
	}

	res, err := e.Extract(context.Background(), tk)
	require.NoError(t, err)
	assert.Equal(t, "999999999999", res.Identifiers["tracking_id"].Value)
	assert.Equal(t, ticket.ProvenanceUser, res.Identifiers["tracking_id"].Provenance)
}

func TestExtractReturnsErrNoIdentifiersWhenNothingDerivable(t *testing.T) {
	e := New(nil)
	tk := &ticket.Ticket{ID: "t1", Body: "something is wrong but there are no details at all"}

	_, err := e.Extract(context.Background(), tk)
	require.ErrorIs(t, err, ErrNoIdentifiers)
}

func TestExtractUsesLowConfidenceLLMAsSignalToFallBack(t *testing.T) {
	llm := &llmclient.StubClient{
		ExtractFn: func(ctx context.Context, req llmclient.ExtractionRequest) (llmclient.ExtractionResult, error) {
			return llmclient.ExtractionResult{Confidence: 0.1}, nil
		},
	}
	e := New(llm)
	tk := &ticket.Ticket{ID: "t1", Body: "Tracking ID 999999999999 has no data"}

	res, err := e.Extract(context.Background(), tk)
	require.NoError(t, err)
	assert.Equal(t, ticket.ProvenanceRegex, res.Identifiers["tracking_id"].Provenance)
}
