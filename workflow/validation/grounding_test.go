package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/tripsync/itinerary"
	"github.com/c360studio/tripsync/recommendation"
)

func lisbonResearch() []recommendation.ResearchFacts {
	return []recommendation.ResearchFacts{{
		DestinationName: "Lisbon, Portugal",
		Facts: []string{
			"Tram 28 winds through Alfama and costs about $3 per ride",
			"Fado houses in Alfama serve dinner with live music",
		},
		Sources:            []string{"https://example.com/lisbon"},
		TypicalCostSignals: "Mid-range trips run $900-$1400 per person",
		TwoDayHighlights:   []string{"Day trip to Sintra palaces"},
	}}
}

func TestCheckGrounding_Itinerary(t *testing.T) {
	it := sampleItinerary(
		itinerary.Activity{Title: "Tram 28 ride", Description: "Ride through Alfama", EstimatedCostPerPerson: usd(3)},
		itinerary.Activity{Title: "Fado dinner", Description: "Live music in Alfama", EstimatedCostPerPerson: usd(60)},
		itinerary.Activity{Title: "Sintra palaces", Description: "Day trip", EstimatedCostPerPerson: usd(40)},
		itinerary.Activity{Title: "Miradouro sunset", Description: "Free viewpoint", EstimatedCostPerPerson: usd(0)},
	)

	got := CheckGrounding(ForItinerary(it), lisbonResearch())
	assert.True(t, got.IsGrounded, got.Summary)
	assert.Equal(t, 1.0, got.CoverageScore)
	assert.Equal(t, 1, got.SourcesCount)
	assert.Empty(t, got.Issues)
}

func TestCheckGrounding_UnbackedClaims(t *testing.T) {
	it := sampleItinerary(
		itinerary.Activity{Title: "Tram 28 ride", Description: "Ride through Alfama", EstimatedCostPerPerson: usd(3)},
		itinerary.Activity{Title: "Private yacht charter", Description: "Champagne cruise", EstimatedCostPerPerson: usd(250)},
	)

	got := CheckGrounding(ForItinerary(it), lisbonResearch())
	assert.False(t, got.IsGrounded)
	require.Len(t, got.Issues, 1)
	assert.Equal(t, SeverityWarning, got.Issues[0].Severity)
	assert.Equal(t, "Lisbon, Portugal / Private yacht charter", got.Issues[0].Location)
	assert.InDelta(t, 2.0/3.0, got.CoverageScore, 0.001)
}

func TestCheckGrounding_CostWithoutSignals(t *testing.T) {
	research := lisbonResearch()
	research[0].TypicalCostSignals = ""

	it := sampleItinerary(itinerary.Activity{Title: "Fado dinner", Description: "Live music in Alfama", EstimatedCostPerPerson: usd(60)})
	got := CheckGrounding(ForItinerary(it), research)
	assert.False(t, got.IsGrounded)
	require.Len(t, got.Issues, 1)
	assert.Equal(t, SeverityError, got.Issues[0].Severity)
}

func TestCheckGrounding_NoSources(t *testing.T) {
	it := sampleItinerary(itinerary.Activity{Title: "Fado dinner", Description: "Live music in Alfama", EstimatedCostPerPerson: usd(60)})
	it.Sources = nil

	got := CheckGrounding(ForItinerary(it), lisbonResearch())
	assert.False(t, got.IsGrounded)
	assert.Zero(t, got.CoverageScore)
	assert.Zero(t, got.SourcesCount)
	assert.Len(t, got.Issues, 2)
	assert.Contains(t, got.Summary, "no sources")
}

func TestCheckGrounding_NoClaims(t *testing.T) {
	it := sampleItinerary(itinerary.Activity{Title: "Miradouro sunset", EstimatedCostPerPerson: usd(0)})
	got := CheckGrounding(ForItinerary(it), nil)
	assert.True(t, got.IsGrounded)
	assert.Equal(t, 1.0, got.CoverageScore)
}

func TestCheckGrounding_Pack(t *testing.T) {
	pack := samplePack(1200, "Day trip to Sintra palaces")
	research := []recommendation.ResearchFacts{
		{DestinationName: "Lisbon", TypicalCostSignals: "$900-$1400", TwoDayHighlights: []string{"Sintra palaces day trip"}},
		{DestinationName: "Porto", TypicalCostSignals: "$800-$1200", Facts: []string{"Day trips to Sintra palaces leave from Lisbon"}},
		{DestinationName: "Seville", TypicalCostSignals: "$700-$1100"},
	}

	got := CheckGrounding(ForPack(pack), research)
	assert.Equal(t, 3, got.SourcesCount)
	require.Len(t, got.Issues, 1)
	assert.Equal(t, "Seville / Day trip to Sintra palaces", got.Issues[0].Location)
	assert.InDelta(t, 5.0/6.0, got.CoverageScore, 0.001)
	assert.True(t, got.IsGrounded)
}
