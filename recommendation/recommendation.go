// Package recommendation defines destination candidates, research facts and
// the final recommendations pack returned to a trip.
package recommendation

import "fmt"

// Cardinality limits for a pack and for candidate generation.
const (
	MinOptions    = 3
	MaxOptions    = 5
	MinCandidates = 8
	MaxCandidates = 12
)

// Cost inclusions a MoneyRange may list.
var Inclusions = []string{"flights", "accommodation", "food", "activities"}

// Pack is the final recommendations output for a trip.
type Pack struct {
	TripID       string            `json:"trip_id" validate:"required"`
	GeneratedAt  string            `json:"generated_at"`
	GroupSummary map[string]string `json:"group_summary"`
	Conflicts    []string          `json:"conflicts"`
	Options      []Option          `json:"options" validate:"min=3,max=5,dive"`
}

// Option is one recommended destination.
type Option struct {
	Name                 string     `json:"name" validate:"required"`
	Region               string     `json:"region" validate:"required"`
	WhyItFits            []string   `json:"why_it_fits" validate:"required,min=1"`
	EstimatedCost        MoneyRange `json:"estimated_cost"`
	SampleHighlights2Day []string   `json:"sample_highlights_2day" validate:"required,min=1"`
	Tradeoffs            []Tradeoff `json:"tradeoffs" validate:"dive"`
	Confidence           string     `json:"confidence" validate:"required,oneof=low medium high"`
	Sources              []string   `json:"sources"`
}

// MoneyRange is a per-person cost estimate.
type MoneyRange struct {
	Currency      string   `json:"currency"`
	PerPersonLow  int      `json:"per_person_low" validate:"gte=0"`
	PerPersonHigh int      `json:"per_person_high" validate:"gtefield=PerPersonLow"`
	Includes      []string `json:"includes" validate:"dive,oneof=flights accommodation food activities"`
}

// Tradeoff is a compromise the group accepts with an option.
type Tradeoff struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Severity    string `json:"severity" validate:"required,oneof=low medium high"`
}

// Candidate is an unranked destination idea.
type Candidate struct {
	Name              string `json:"name" validate:"required"`
	Region            string `json:"region" validate:"required"`
	Reasoning         string `json:"reasoning"`
	DiversityCategory string `json:"diversity_category"`
}

// ResearchFacts are the grounded facts gathered for one candidate.
type ResearchFacts struct {
	DestinationName    string   `json:"destination_name" validate:"required"`
	Facts              []string `json:"facts"`
	Sources            []string `json:"sources"`
	TypicalCostSignals string   `json:"typical_cost_signals,omitempty"`
	SeasonalityNotes   string   `json:"seasonality_notes,omitempty"`
	TwoDayHighlights   []string `json:"two_day_highlights"`
}

// Option returns the option named name, if the pack has it.
func (p Pack) Option(name string) (Option, bool) {
	for _, o := range p.Options {
		if o.Name == name {
			return o, true
		}
	}
	return Option{}, false
}

// FactsFor returns the research entry for a destination.
func FactsFor(research []ResearchFacts, name string) (ResearchFacts, bool) {
	for _, r := range research {
		if r.DestinationName == name {
			return r, true
		}
	}
	return ResearchFacts{}, false
}

// AsResearch rebuilds a research entry from a stored option, so a later
// itinerary run can be grounded against what the recommendation cited.
func (o Option) AsResearch() ResearchFacts {
	facts := append([]string{}, o.WhyItFits...)
	for _, t := range o.Tradeoffs {
		facts = append(facts, t.Title+": "+t.Description)
	}
	rf := ResearchFacts{
		DestinationName:  o.Name,
		Facts:            facts,
		Sources:          append([]string{}, o.Sources...),
		TwoDayHighlights: append([]string{}, o.SampleHighlights2Day...),
	}
	if o.EstimatedCost.PerPersonHigh > 0 {
		rf.TypicalCostSignals = fmt.Sprintf("$%d-$%d per person", o.EstimatedCost.PerPersonLow, o.EstimatedCost.PerPersonHigh)
	}
	return rf
}
