package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/c360studio/tripsync/itinerary"
	"github.com/c360studio/tripsync/llm"
	"github.com/c360studio/tripsync/recommendation"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// errNoJSON is returned when text output holds no JSON at all.
var errNoJSON = errors.New("no JSON found in generator output")

// rawJSON turns generator output into JSON bytes. Text is run through the
// same extraction the LLM client uses, preferring arrays when wantArray is set.
func rawJSON(raw any, wantArray bool) ([]byte, error) {
	switch v := raw.(type) {
	case nil:
		return nil, errNoJSON
	case Output:
		if v.Structured != nil {
			return rawJSON(v.Structured, wantArray)
		}
		return rawJSON(v.Text, wantArray)
	case string:
		trimmed := strings.TrimSpace(v)
		if json.Valid([]byte(trimmed)) && trimmed != "" {
			return []byte(trimmed), nil
		}
		extract := []func(string) string{llm.ExtractJSON, llm.ExtractJSONArray}
		if wantArray {
			extract[0], extract[1] = extract[1], extract[0]
		}
		for _, fn := range extract {
			if s := fn(v); s != "" && json.Valid([]byte(s)) {
				return []byte(s), nil
			}
		}
		return nil, errNoJSON
	case []byte:
		return rawJSON(string(v), wantArray)
	case json.RawMessage:
		return v, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal generator output: %w", err)
		}
		return b, nil
	}
}

// decodeObject decodes raw into T. Type mismatches fail; unknown fields are
// ignored.
func decodeObject[T any](raw any) (T, error) {
	var out T
	if typed, ok := raw.(T); ok {
		return typed, nil
	}
	if typed, ok := raw.(*T); ok && typed != nil {
		return *typed, nil
	}
	b, err := rawJSON(raw, false)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("decode %T: %w", out, err)
	}
	return out, nil
}

// decodeList decodes raw into []T. It accepts either a bare array or an
// object carrying the array under field.
func decodeList[T any](raw any, field string) ([]T, error) {
	if typed, ok := raw.([]T); ok {
		return typed, nil
	}
	b, err := rawJSON(raw, true)
	if err != nil {
		return nil, err
	}
	var list []T
	if err := json.Unmarshal(b, &list); err == nil {
		return list, nil
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return nil, fmt.Errorf("decode %s: %w", field, err)
	}
	inner, ok := wrapped[field]
	if !ok {
		return nil, fmt.Errorf("decode %s: field missing", field)
	}
	if err := json.Unmarshal(inner, &list); err != nil {
		return nil, fmt.Errorf("decode %s: %w", field, err)
	}
	return list, nil
}

// DecodeCandidates decodes and validates between minN and maxN candidates.
func DecodeCandidates(raw any, minN, maxN int) ([]recommendation.Candidate, error) {
	cands, err := decodeList[recommendation.Candidate](raw, "candidates")
	if err != nil {
		return nil, err
	}
	if len(cands) < minN || len(cands) > maxN {
		return nil, fmt.Errorf("got %d candidates, want %d to %d", len(cands), minN, maxN)
	}
	for i, c := range cands {
		if err := validate.Struct(c); err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
	}
	return cands, nil
}

// DecodeResearch decodes one research entry. A missing destination name is
// filled from the candidate it was requested for.
func DecodeResearch(raw any, destination string) (recommendation.ResearchFacts, error) {
	rf, err := decodeObject[recommendation.ResearchFacts](raw)
	if err != nil {
		return rf, err
	}
	if rf.DestinationName == "" {
		rf.DestinationName = destination
	}
	if rf.Facts == nil {
		rf.Facts = []string{}
	}
	if rf.Sources == nil {
		rf.Sources = []string{}
	}
	if rf.TwoDayHighlights == nil {
		rf.TwoDayHighlights = []string{}
	}
	return rf, validate.Struct(rf)
}

// PackDefaults supplies values for optional pack fields the generator left out.
type PackDefaults struct {
	TripID       string
	GeneratedAt  time.Time
	GroupSummary map[string]string
	Conflicts    []string
}

// DecodePack strictly decodes a recommendations pack. Optional fields get
// defaults; missing required fields or out-of-range option counts fail.
func DecodePack(raw any, d PackDefaults) (recommendation.Pack, error) {
	pack, err := decodeObject[recommendation.Pack](raw)
	if err != nil {
		return pack, err
	}
	if pack.TripID == "" {
		pack.TripID = d.TripID
	}
	if pack.GeneratedAt == "" {
		pack.GeneratedAt = d.GeneratedAt.UTC().Format(time.RFC3339)
	}
	if len(pack.GroupSummary) == 0 {
		pack.GroupSummary = d.GroupSummary
	}
	if pack.GroupSummary == nil {
		pack.GroupSummary = map[string]string{}
	}
	if pack.Conflicts == nil {
		pack.Conflicts = append([]string{}, d.Conflicts...)
	}
	for i := range pack.Options {
		o := &pack.Options[i]
		if o.EstimatedCost.Currency == "" {
			o.EstimatedCost.Currency = "USD"
		}
		if o.EstimatedCost.Includes == nil {
			o.EstimatedCost.Includes = []string{}
		}
		if o.Tradeoffs == nil {
			o.Tradeoffs = []recommendation.Tradeoff{}
		}
		if o.Sources == nil {
			o.Sources = []string{}
		}
	}
	if err := validate.Struct(pack); err != nil {
		return pack, fmt.Errorf("recommendations pack: %w", err)
	}
	return pack, nil
}

// DecodeItinerary strictly decodes an itinerary, filling trip and destination
// from the run when absent.
func DecodeItinerary(raw any, tripID, destination string) (itinerary.Itinerary, error) {
	it, err := decodeObject[itinerary.Itinerary](raw)
	if err != nil {
		return it, err
	}
	it = it.Clone()
	if it.TripID == "" {
		it.TripID = tripID
	}
	if it.DestinationName == "" {
		it.DestinationName = destination
	}
	if it.Assumptions == nil {
		it.Assumptions = []string{}
	}
	if it.Sources == nil {
		it.Sources = []string{}
	}
	if err := validate.Struct(it); err != nil {
		return it, fmt.Errorf("itinerary: %w", err)
	}
	return it, nil
}
