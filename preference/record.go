// Package preference holds per-member trip preferences and the deterministic
// tools that merge them into a single group profile.
//
// Every function in this package is pure. Malformed or partial input never
// produces an error; it simply contributes nothing to the dimension it is
// malformed for.
package preference

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Record is one member's submitted preferences. Every section is optional.
type Record struct {
	UserID           string            `json:"user_id"`
	Dates            *Dates            `json:"dates,omitempty"`
	Budget           *Budget           `json:"budget,omitempty"`
	DestinationPrefs *DestinationPrefs `json:"destination_prefs,omitempty"`
	Constraints      *Constraints      `json:"constraints,omitempty"`
	Notes            string            `json:"notes,omitempty"`
}

// Dates is the travel window a member can make.
type Dates struct {
	EarliestStart string `json:"earliest_start,omitempty"`
	LatestEnd     string `json:"latest_end,omitempty"`
	IdealLength   string `json:"ideal_length,omitempty"`
	Flexible      bool   `json:"flexible,omitempty"`
}

// Budget is a per-person spend range in USD. Nil bounds mean "not given".
type Budget struct {
	MinBudget   *float64 `json:"min_budget,omitempty"`
	MaxBudget   *float64 `json:"max_budget,omitempty"`
	Includes    []string `json:"includes,omitempty"`
	Flexibility string   `json:"flexibility,omitempty"`
}

// DestinationPrefs describes where a member would like to go.
type DestinationPrefs struct {
	Vibes                 []string `json:"vibes,omitempty"`
	SpecificPlaces        string   `json:"specific_places,omitempty"`
	PlacesToAvoid         string   `json:"places_to_avoid,omitempty"`
	DomesticInternational string   `json:"domestic_international,omitempty"`
}

// Constraints are non-negotiable requirements and exclusions.
type Constraints struct {
	DietaryRestrictions []string `json:"dietary_restrictions,omitempty"`
	AccessibilityNeeds  []string `json:"accessibility_needs,omitempty"`
	HardNos             []string `json:"hard_nos,omitempty"`
}

// Flexibility values used by budgets.
const (
	FlexibilityHardLimit   = "hard limit"
	FlexibilityPreferUnder = "prefer under"
	FlexibilityNoLimit     = "no limit"
)

// UnmarshalJSON decodes a record leniently. Fields of the wrong type are
// dropped instead of failing the whole record, so a member who typed "lots"
// into the budget box still contributes dates and vibes.
func (r *Record) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode preference record: %w", err)
	}
	*r = FromMap(m)
	return nil
}

// FromMap converts an untyped preference document into a Record using the
// same tolerant coercion as UnmarshalJSON.
func FromMap(m map[string]any) Record {
	rec := Record{
		UserID: stringValue(m["user_id"]),
		Notes:  stringValue(m["notes"]),
	}

	if d, ok := mapValue(m["dates"]); ok {
		rec.Dates = &Dates{
			EarliestStart: stringValue(d["earliest_start"]),
			LatestEnd:     stringValue(d["latest_end"]),
			IdealLength:   stringValue(d["ideal_length"]),
			Flexible:      boolValue(d["flexible"]),
		}
	}

	if b, ok := mapValue(m["budget"]); ok {
		rec.Budget = &Budget{
			MinBudget:   numberValue(b["min_budget"]),
			MaxBudget:   numberValue(b["max_budget"]),
			Includes:    stringSlice(b["includes"]),
			Flexibility: stringValue(b["flexibility"]),
		}
	}

	if dp, ok := mapValue(m["destination_prefs"]); ok {
		rec.DestinationPrefs = &DestinationPrefs{
			Vibes:                 stringSlice(dp["vibes"]),
			SpecificPlaces:        stringValue(dp["specific_places"]),
			PlacesToAvoid:         stringValue(dp["places_to_avoid"]),
			DomesticInternational: stringValue(dp["domestic_international"]),
		}
	}

	if c, ok := mapValue(m["constraints"]); ok {
		rec.Constraints = &Constraints{
			DietaryRestrictions: stringSlice(c["dietary_restrictions"]),
			AccessibilityNeeds:  stringSlice(c["accessibility_needs"]),
			HardNos:             hardNoValues(c["hard_nos"]),
		}
	}

	return rec
}

// mapValue returns v as a non-empty object.
func mapValue(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	return m, true
}

func stringValue(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func boolValue(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		return err == nil && parsed
	}
	return false
}

// numberValue accepts JSON numbers only. Numeric-looking strings are not
// budgets.
func numberValue(v any) *float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	return &f
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// hardNoValues accepts either a single free-text string or a list of them.
func hardNoValues(v any) []string {
	if s, ok := v.(string); ok {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	return stringSlice(v)
}
