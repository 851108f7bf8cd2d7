package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/c360studio/tripsync/itinerary"
	"github.com/c360studio/tripsync/preference"
	"github.com/c360studio/tripsync/recommendation"
)

// stubGenerator is a scripted Generator. Each stage has a responder that
// receives the zero-based call number for that stage.
type stubGenerator struct {
	mu         sync.Mutex
	responders map[string]func(call int, view map[string]any) (Output, error)
	calls      map[string]int
	order      []string
}

func newStub() *stubGenerator {
	return &stubGenerator{
		responders: map[string]func(int, map[string]any) (Output, error){},
		calls:      map[string]int{},
	}
}

func (g *stubGenerator) on(stage string, fn func(call int, view map[string]any) (Output, error)) *stubGenerator {
	g.responders[stage] = fn
	return g
}

func (g *stubGenerator) always(stage string, out Output) *stubGenerator {
	return g.on(stage, func(int, map[string]any) (Output, error) { return out, nil })
}

func (g *stubGenerator) Generate(_ context.Context, stage string, view map[string]any) (Output, error) {
	g.mu.Lock()
	call := g.calls[stage]
	g.calls[stage]++
	g.order = append(g.order, stage)
	fn, ok := g.responders[stage]
	g.mu.Unlock()
	if !ok {
		return Output{}, fmt.Errorf("no response scripted for %s", stage)
	}
	return fn(call, view)
}

func (g *stubGenerator) callCount(stage string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[stage]
}

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC) }
}

func money(v float64) *float64 { return &v }

func cost(v int) *int { return &v }

func groupPrefs() []preference.Record {
	member := func(id, start, end string, lo, hi float64, vibes ...string) preference.Record {
		return preference.Record{
			UserID:           id,
			Dates:            &preference.Dates{EarliestStart: start, LatestEnd: end},
			Budget:           &preference.Budget{MinBudget: money(lo), MaxBudget: money(hi)},
			DestinationPrefs: &preference.DestinationPrefs{Vibes: vibes},
		}
	}
	return []preference.Record{
		member("alice", "2025-06-01", "2025-06-15", 500, 1500, "city", "beach"),
		member("bob", "2025-06-05", "2025-06-20", 800, 2000, "city", "food"),
		member("cara", "2025-06-03", "2025-06-12", 600, 1200, "City"),
	}
}

var candidateNames = []string{"Lisbon", "Porto", "Seville", "Valencia", "Madeira", "Azores", "Malaga", "Granada"}

func candidatesJSON(n int) string {
	cands := make([]recommendation.Candidate, n)
	for i := range cands {
		name := candidateNames[i%len(candidateNames)]
		if i >= len(candidateNames) {
			name = fmt.Sprintf("%s %d", name, i/len(candidateNames)+1)
		}
		cands[i] = recommendation.Candidate{
			Name:              name,
			Region:            "Iberia",
			Reasoning:         "Walkable old town",
			DiversityCategory: "city",
		}
	}
	b, _ := json.Marshal(map[string]any{"candidates": cands})
	return string(b)
}

func researchFor(name string) recommendation.ResearchFacts {
	return recommendation.ResearchFacts{
		DestinationName: name,
		Facts: []string{
			"Tram 28 rides through Alfama cost about $3",
			"Fado dinner houses in Alfama",
			"Pastel de nata tasting at Belem",
		},
		Sources:            []string{"https://example.com/" + name},
		TypicalCostSignals: "$800-$1200 per person",
		TwoDayHighlights:   []string{"Day trip to Sintra palaces"},
	}
}

func packText(names ...string) string {
	options := make([]recommendation.Option, len(names))
	for i, n := range names {
		options[i] = recommendation.Option{
			Name:                 n,
			Region:               "Iberia",
			WhyItFits:            []string{"Everyone asked for a city break"},
			EstimatedCost:        recommendation.MoneyRange{PerPersonLow: 800, PerPersonHigh: 1000, Includes: []string{"accommodation", "food"}},
			SampleHighlights2Day: []string{"Day trip to Sintra palaces"},
			Tradeoffs:            []recommendation.Tradeoff{{Title: "Crowds", Severity: "medium"}},
			Confidence:           "high",
			Sources:              []string{"https://example.com/" + n},
		}
	}
	b, _ := json.MarshalIndent(map[string]any{"options": options}, "", "  ")
	return "Here is the ranked shortlist:\n```json\n" + string(b) + "\n```"
}

func lisbonItinerary() itinerary.Itinerary {
	return itinerary.Itinerary{
		TripID:                      "trip-1",
		DestinationName:             "Lisbon",
		TotalEstimatedCostPerPerson: 110,
		Days: []itinerary.Day{
			{
				DayIndex: 1,
				DateISO:  "2025-06-05",
				Morning:  []itinerary.Activity{{Title: "Tram 28 ride through Alfama", EstimatedCostPerPerson: cost(5)}},
				Evening:  []itinerary.Activity{{Title: "Fado dinner in Alfama", EstimatedCostPerPerson: cost(60)}},
			},
			{
				DayIndex:  2,
				DateISO:   "2025-06-06",
				Morning:   []itinerary.Activity{{Title: "Day trip to Sintra palaces", EstimatedCostPerPerson: cost(40)}},
				Afternoon: []itinerary.Activity{{Title: "Pastel de nata tasting", EstimatedCostPerPerson: cost(5)}},
			},
		},
		Sources: []string{"https://example.com/Lisbon"},
	}
}

func itineraryText(it itinerary.Itinerary) string {
	b, _ := json.Marshal(it)
	return string(b)
}

// itineraryState builds a state ready for the itinerary pipeline.
func itineraryState(opts ...StateOption) *State {
	recs := groupPrefs()
	opts = append([]StateOption{WithSelectedDestination("Lisbon"), WithClock(fixedClock())}, opts...)
	s := InitializeState("trip-1", recs, opts...)
	s.Set(KeyAggregatedGroupProfile, preference.Aggregate(preference.Normalize(recs)))
	s.Set(KeyDestinationResearch, []recommendation.ResearchFacts{researchFor("Lisbon")})
	return s
}
