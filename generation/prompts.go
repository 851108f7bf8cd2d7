package generation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/c360studio/tripsync/llm"
	"github.com/c360studio/tripsync/recommendation"
)

// ErrUnknownStage is returned for a stage with no prompt template.
var ErrUnknownStage = errors.New("unknown generation stage")

const systemPrompt = `You are the planning engine of TripSync, a group trip planner.
You only ever answer with JSON that matches the requested shape. Never invent
prices or facts you cannot support; leave a field empty instead.`

// PromptData is what a stage template renders against.
type PromptData struct {
	Stage         string
	View          map[string]any
	MinCandidates int
	MaxCandidates int
}

// Get returns a view value, or nil.
func (d PromptData) Get(key string) any {
	return d.View[key]
}

var funcs = template.FuncMap{
	"json": func(v any) (string, error) {
		if v == nil {
			return "null", nil
		}
		b, err := json.MarshalIndent(v, "", "  ")
		return string(b), err
	},
	"join": strings.Join,
}

var prompts = template.Must(template.New("prompts").Funcs(funcs).Parse(`
{{define "generate_candidates"}}Propose between {{.MinCandidates}} and {{.MaxCandidates}} candidate destinations for this group.

Group profile:
{{json (.Get "aggregated_group_profile")}}

Conflict report:
{{json (.Get "conflict_report")}}

Rules:
- Exclude anything that violates a hard no, dietary need or accessibility need.
- Stay inside the feasible budget range; spread options across it.
- Prefer destinations matching the common vibes, then the wider vibe set.
- Mix destination types (beach, city, nature, adventure, cultural).
- If the group has no shared dates, still propose candidates and say so in the reasoning.

Answer as {"candidates": [{"name": "", "region": "", "reasoning": "", "diversity_category": ""}]}.
{{end}}

{{define "research"}}Research this destination for the group.

Candidate:
{{json (.Get "candidate")}}

Group profile:
{{json (.Get "aggregated_group_profile")}}

Cover typical costs per person, seasonality for the group's dates, neighborhoods to stay in,
two-day highlights, and whether dietary and accessibility needs can be met. Cite source URLs.

Answer as {"destination_name": "", "facts": [], "sources": [], "typical_cost_signals": "", "seasonality_notes": "", "two_day_highlights": []}.
{{end}}

{{define "rank"}}Rank the researched candidates and return the best 3 to 5 options.

Candidates:
{{json (.Get "candidate_destinations")}}

Research:
{{json (.Get "destination_research")}}

Group profile:
{{json (.Get "aggregated_group_profile")}}

Conflict report:
{{json (.Get "conflict_report")}}

Rank by constraint satisfaction first, then vibe match, then how well the research backs the option.
Only use facts and sources from the research. Confidence and tradeoff severity are low, medium or high.
Cost inclusions may only be {{join .Inclusions ", "}}.

Answer as {"options": [{"name": "", "region": "", "why_it_fits": [], "estimated_cost": {"currency": "USD", "per_person_low": 0, "per_person_high": 0, "includes": []}, "sample_highlights_2day": [], "tradeoffs": [{"title": "", "description": "", "severity": ""}], "confidence": "", "sources": []}]}.
{{end}}

{{define "draft"}}Draft a day-by-day itinerary in {{.Get "selected_destination"}}.

Group profile:
{{json (.Get "aggregated_group_profile")}}

Destination research:
{{json (.Get "destination_research")}}
{{with .Get "itinerary_final"}}
Current itinerary:
{{json .}}
{{end}}{{with .Get "feedback_items"}}
Feedback to address:
{{range .}}- {{.}}
{{end}}{{end}}
Give every activity an estimated_cost_per_person in whole dollars, and keep the total within the group's budget.
Respect every hard no, dietary need and accessibility need.

Answer as {"destination_name": "", "total_estimated_cost_per_person": 0, "assumptions": [], "days": [{"day_index": 1, "date_iso": "", "morning": [{"title": "", "description": "", "neighborhood_or_area": "", "estimated_cost_per_person": 0, "duration_minutes": 0, "tips": []}], "afternoon": [], "evening": []}], "sources": []}.
{{end}}

{{define "polish"}}Polish this itinerary without changing its costs or activities.

Itinerary:
{{json (.Get "itinerary_draft")}}

Cost check:
{{json (.Get "cost_sanity_report")}}
{{with .Get "feedback_items"}}
Feedback to keep in mind:
{{range .}}- {{.}}
{{end}}{{end}}
Tighten descriptions, add practical tips, and list assumptions. Answer with the full itinerary in the same JSON shape.
{{end}}
`))

// Inclusions lists the allowed cost inclusion values.
func (d PromptData) Inclusions() []string {
	return recommendation.Inclusions
}

// BuildMessages renders the system and user messages for a stage.
func BuildMessages(data PromptData) ([]llm.Message, error) {
	if prompts.Lookup(data.Stage) == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, data.Stage)
	}
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, data.Stage, data); err != nil {
		return nil, fmt.Errorf("render %s prompt: %w", data.Stage, err)
	}
	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: strings.TrimSpace(buf.String())},
	}, nil
}
