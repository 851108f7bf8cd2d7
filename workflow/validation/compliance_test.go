package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/tripsync/itinerary"
	"github.com/c360studio/tripsync/preference"
	"github.com/c360studio/tripsync/recommendation"
)

func usd(v int) *int { return &v }

func profileWith(mutate func(*preference.GroupProfile)) preference.GroupProfile {
	p := preference.Aggregate(nil)
	p.MemberCount = 2
	if mutate != nil {
		mutate(&p)
	}
	return p
}

func withBudget(maxBudget float64) func(*preference.GroupProfile) {
	return func(p *preference.GroupProfile) {
		p.BudgetRange = preference.BudgetRange{
			MinBudget: 0, MaxBudget: maxBudget, HasFeasibleRange: true, MembersWithBudgets: 2,
		}
	}
}

func sampleItinerary(acts ...itinerary.Activity) itinerary.Itinerary {
	total := 0
	for _, a := range acts {
		total += a.Cost()
	}
	return itinerary.Itinerary{
		TripID:                      "trip-1",
		DestinationName:             "Lisbon, Portugal",
		TotalEstimatedCostPerPerson: total,
		Days:                        []itinerary.Day{{DayIndex: 1, DateISO: "2025-06-06", Morning: acts}},
		Sources:                     []string{"https://example.com/lisbon"},
	}
}

func samplePack(high int, highlights ...string) recommendation.Pack {
	opt := func(name string) recommendation.Option {
		return recommendation.Option{
			Name:                 name,
			Region:               "Europe",
			WhyItFits:            []string{"Walkable old town"},
			EstimatedCost:        recommendation.MoneyRange{Currency: "USD", PerPersonLow: high / 2, PerPersonHigh: high},
			SampleHighlights2Day: highlights,
			Confidence:           "high",
			Sources:              []string{"https://example.com/" + name},
		}
	}
	return recommendation.Pack{
		TripID:  "trip-1",
		Options: []recommendation.Option{opt("Lisbon"), opt("Porto"), opt("Seville")},
	}
}

func TestCheckCompliance_NoConstraints(t *testing.T) {
	got := CheckCompliance(ForPack(samplePack(5000, "Hiking")), profileWith(nil))
	assert.True(t, got.IsValid)
	assert.Equal(t, "No hard constraints to validate", got.Summary)
	assert.Empty(t, got.Issues)
}

func TestCheckCompliance_Budget(t *testing.T) {
	t.Run("pack over limit", func(t *testing.T) {
		got := CheckCompliance(ForPack(samplePack(1500)), profileWith(withBudget(1200)))
		assert.False(t, got.IsValid)
		require.Len(t, got.Issues, 3)
		assert.Equal(t, CategoryBudget, got.Issues[0].Category)
		assert.Contains(t, got.Issues[0].SuggestedFix, "$300")
		assert.Contains(t, got.Summary, "budget")
	})

	t.Run("near limit warns", func(t *testing.T) {
		got := CheckCompliance(ForPack(samplePack(1150)), profileWith(withBudget(1200)))
		assert.True(t, got.IsValid)
		assert.Len(t, got.Warnings, 3)
	})

	t.Run("itinerary uses computed total when higher", func(t *testing.T) {
		it := sampleItinerary(
			itinerary.Activity{Title: "Dinner", EstimatedCostPerPerson: usd(400)},
			itinerary.Activity{Title: "Show", EstimatedCostPerPerson: usd(300)},
		)
		it.TotalEstimatedCostPerPerson = 100
		got := CheckCompliance(ForItinerary(it), profileWith(withBudget(500)))
		require.Len(t, got.Issues, 1)
		assert.Contains(t, got.Issues[0].Description, "$700")
	})
}

func TestCheckCompliance_Dates(t *testing.T) {
	profile := profileWith(func(p *preference.GroupProfile) {
		p.DateOverlap = preference.DateOverlap{
			OverlapStart: "2025-06-05", OverlapEnd: "2025-06-07", HasOverlap: true, OverlapDays: 3, MembersWithDates: 2,
		}
	})

	it := sampleItinerary(itinerary.Activity{Title: "Tram", EstimatedCostPerPerson: usd(5)})
	it.Days = append(it.Days,
		itinerary.Day{DayIndex: 2, DateISO: "2025-06-07"},
		itinerary.Day{DayIndex: 3, DateISO: "2025-06-08"},
		itinerary.Day{DayIndex: 4},
	)

	got := CheckCompliance(ForItinerary(it), profile)
	assert.False(t, got.IsValid)
	require.Len(t, got.Issues, 1)
	assert.Equal(t, CategoryDates, got.Issues[0].Category)
	assert.Equal(t, "Day 3", got.Issues[0].AffectedItem)
	require.Len(t, got.Warnings, 1)
	assert.Contains(t, got.Warnings[0].Description, "4 days")
}

func TestCheckCompliance_HardNos(t *testing.T) {
	profile := profileWith(func(p *preference.GroupProfile) {
		p.Constraints.HardNos = []string{"No hiking", "No hiking", "no red-eye flights"}
	})

	tests := []struct {
		title   string
		violate bool
	}{
		{"Sunrise hiking in Sintra", true},
		{"HIKING the coast", true},
		{"Biking along the river", false},
		{"Take the red-eye flights home", true},
		{"Hikers museum", false},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			got := CheckCompliance(ForItinerary(sampleItinerary(itinerary.Activity{Title: tt.title, EstimatedCostPerPerson: usd(10)})), profile)
			assert.Equal(t, !tt.violate, got.IsValid)
			if tt.violate {
				require.Len(t, got.Issues, 1, "duplicate hard nos report once")
				assert.Equal(t, CategoryHardNo, got.Issues[0].Category)
			}
		})
	}
}

func TestCheckCompliance_DietaryAndAccessibility(t *testing.T) {
	profile := profileWith(func(p *preference.GroupProfile) {
		p.Constraints.DietaryRestrictions = []string{"shellfish allergy", "vegetarian"}
		p.Constraints.AccessibilityNeeds = []string{"wheelchair access", "sign language interpreter"}
	})

	it := sampleItinerary(
		itinerary.Activity{Title: "Lobster dinner", Description: "Harbour-side lobster feast", EstimatedCostPerPerson: usd(80)},
		itinerary.Activity{Title: "Castle climb", Description: "Steep stairs to the ramparts", EstimatedCostPerPerson: usd(15)},
		itinerary.Activity{Title: "Vegetable market", Description: "Browse produce stalls", EstimatedCostPerPerson: usd(5)},
	)

	got := CheckCompliance(ForItinerary(it), profile)
	assert.False(t, got.IsValid)
	cats := map[Category]int{}
	for _, iss := range got.Issues {
		cats[iss.Category]++
	}
	assert.Equal(t, 1, cats[CategoryDietary])
	assert.Equal(t, 1, cats[CategoryAccessibility])

	// The same content in a recommendations pack only warns.
	pack := samplePack(500, "Lobster dinner by the harbour", "Climb the castle stairs")
	gotPack := CheckCompliance(ForPack(pack), profile)
	assert.True(t, gotPack.IsValid)
	assert.NotEmpty(t, gotPack.Warnings)
}

func TestReportFeedback(t *testing.T) {
	passed := Report{Compliance: ComplianceResult{IsValid: true}}
	assert.True(t, passed.Passed())
	assert.Empty(t, passed.Feedback())
	assert.Empty(t, passed.FormatFeedback())

	failed := Report{
		Compliance: ComplianceResult{
			IsValid: false,
			Issues:  []Issue{{Category: CategoryHardNo, Severity: SeverityError, Description: "Hiking violates no hiking", SuggestedFix: "Remove hiking"}},
		},
		Grounding: &GroundingResult{
			IsGrounded: false,
			Issues:     []GroundingIssue{{Claim: "Total $900 per person", Location: "Lisbon", Severity: SeverityError}},
		},
	}
	assert.False(t, failed.Passed())
	assert.Equal(t, []string{
		"Hiking violates no hiking (Remove hiking)",
		"Unsupported claim at Lisbon: Total $900 per person",
	}, failed.Feedback())
	assert.Contains(t, failed.FormatFeedback(), "## Validation Failed")

	ungrounded := Report{
		Compliance: ComplianceResult{IsValid: true},
		Grounding:  &GroundingResult{IsGrounded: false, Summary: "1 of 4 factual claims backed"},
	}
	assert.Equal(t, []string{"1 of 4 factual claims backed"}, ungrounded.Feedback())
}
