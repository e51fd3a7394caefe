// Package extractor implements the identifier extractor (§4.2): an
// LLM-backed pass over free text, falling back to a registry of per-family
// regex extractors when the LLM is unavailable or low-confidence.
package extractor

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/fourkites/rca-engine/pkg/llmclient"
	"github.com/fourkites/rca-engine/pkg/ticket"
)

// ErrNoIdentifiers is returned when no strategy derived a tracking-usable
// identifier and no mode could be inferred (§4.2 error conditions).
var ErrNoIdentifiers = errors.New("extractor: no identifiers derivable from ticket")

// Result is the filled identifier map plus inferred mode (§4.2 contract).
type Result struct {
	Identifiers ticket.Identifiers
	Mode        string
	Confidence  float64
}

// family is one regex-based identifier extractor.
type family struct {
	name    string
	pattern *regexp.Regexp
}

// builtinFamilies are the regex fallbacks named in §4.2: container numbers
// (ISO 6346: 4 letters + 7 digits), AWB (3-digit prefix + 8 digits), PRO
// number (carrier-assigned, 6-10 digits), rail car initials (2-4 letters +
// 6-7 digits), booking number, and bill of lading.
var builtinFamilies = []family{
	{name: "container_number", pattern: regexp.MustCompile(`\b[A-Z]{4}\d{7}\b`)},
	{name: "awb", pattern: regexp.MustCompile(`\b\d{3}-?\d{8}\b`)},
	{name: "pro_number", pattern: regexp.MustCompile(`\bPRO[\s#:-]*(\d{6,10})\b`)},
	{name: "rail_car", pattern: regexp.MustCompile(`\b[A-Z]{2,4}\d{6,7}\b`)},
	{name: "booking_number", pattern: regexp.MustCompile(`\bBK[\s#:-]*([A-Z0-9]{6,12})\b`)},
	{name: "bill_of_lading", pattern: regexp.MustCompile(`\bBOL[\s#:-]*([A-Z0-9]{6,15})\b`)},
	{name: "tracking_id", pattern: regexp.MustCompile(`\b\d{9,12}\b`)},
	{name: "load_number", pattern: regexp.MustCompile(`\b[A-Z]\d{9}\b`)},
}

// modeKeywords infers a transport mode hint when neither the user nor the
// LLM supplied one.
var modeKeywords = map[string]string{
	"vessel":    "ocean",
	"ocean":     "ocean",
	"container": "ocean",
	"rail car":  "rail",
	"railcar":   "rail",
	"rail":      "rail",
	"flight":    "air",
	"awb":       "air",
	"air":       "air",
	"truck":     "otr",
	"otr":       "otr",
	"driver":    "otr",
	"yard":      "yard",
}

// Extractor runs the §4.2 contract: one LLM call, then regex fallback per
// identifier family, tagging every value with its provenance.
type Extractor struct {
	llm              llmclient.Client
	confidenceFloor  float64
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithConfidenceFloor overrides the LLM-confidence threshold below which
// the regex fallback runs (default 0.5).
func WithConfidenceFloor(f float64) Option {
	return func(e *Extractor) { e.confidenceFloor = f }
}

// New builds an Extractor around the given LLM client.
func New(llm llmclient.Client, opts ...Option) *Extractor {
	e := &Extractor{llm: llm, confidenceFloor: 0.5}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract implements the full §4.2 contract.
func (e *Extractor) Extract(ctx context.Context, t *ticket.Ticket) (Result, error) {
	ids := make(ticket.Identifiers)

	for k, v := range t.UserIdentifiers {
		if strings.TrimSpace(v) == "" {
			continue
		}
		ids[k] = ticket.IdentifierValue{Value: v, Provenance: ticket.ProvenanceUser}
	}

	mode := ""
	text := t.Text()

	if e.llm != nil {
		known := make(map[string]string, len(ids))
		for k, v := range ids {
			known[k] = v.Value
		}
		res, err := e.llm.ExtractIdentifiers(ctx, llmclient.ExtractionRequest{Text: text, KnownIdentifiers: known})
		if err == nil && res.Confidence >= e.confidenceFloor {
			for k, v := range res.Identifiers {
				if _, exists := ids[k]; exists {
					continue // user-supplied values are never overwritten
				}
				if strings.TrimSpace(v) == "" {
					continue
				}
				ids[k] = ticket.IdentifierValue{Value: v, Provenance: ticket.ProvenanceLLM}
			}
			if res.Mode != "" {
				mode = res.Mode
			}
		}
	}

	for _, fam := range builtinFamilies {
		if _, exists := ids[fam.name]; exists {
			continue
		}
		if match := fam.pattern.FindString(text); match != "" {
			ids[fam.name] = ticket.IdentifierValue{Value: match, Provenance: ticket.ProvenanceRegex}
		}
	}

	if mode == "" {
		mode = inferMode(text)
	}

	if len(ids) == 0 && mode == "" {
		return Result{}, ErrNoIdentifiers
	}
	if mode == "" {
		mode = "unknown"
	}

	return Result{Identifiers: ids, Mode: mode, Confidence: confidenceFor(ids)}, nil
}

func inferMode(text string) string {
	lower := strings.ToLower(text)
	for kw, mode := range modeKeywords {
		if strings.Contains(lower, kw) {
			return mode
		}
	}
	return ""
}

func confidenceFor(ids ticket.Identifiers) float64 {
	if len(ids) == 0 {
		return 0
	}
	hasUser, hasLLM := false, false
	for _, v := range ids {
		switch v.Provenance {
		case ticket.ProvenanceUser:
			hasUser = true
		case ticket.ProvenanceLLM:
			hasLLM = true
		}
	}
	switch {
	case hasUser:
		return 1.0
	case hasLLM:
		return 0.8
	default:
		return 0.6
	}
}
