package preference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	recs := []Record{
		{
			UserID: " u1 ",
			Dates:  &Dates{EarliestStart: "June 1, 2025", LatestEnd: "2025-06-15"},
			Budget: &Budget{MaxBudget: usd(1500), Flexibility: " Hard Limit "},
			DestinationPrefs: &DestinationPrefs{
				Vibes: []string{"beach", "BEACH", " food-focused ", "", "Volcano spotting"},
			},
			Constraints: &Constraints{
				DietaryRestrictions: []string{" Vegan ", ""},
				HardNos:             []string{" No camping "},
			},
		},
		{UserID: "u2", Notes: "Honestly whatever works for everyone"},
		{UserID: "u3", Budget: &Budget{}},
	}

	got := Normalize(recs)
	require.Len(t, got, 3)

	u1 := got[0]
	assert.Equal(t, "u1", u1.UserID)
	assert.Equal(t, "2025-06-01", u1.Dates.EarliestStart)
	assert.Equal(t, "2025-06-15", u1.Dates.LatestEnd)
	assert.Equal(t, FlexibilityHardLimit, u1.Budget.Flexibility)
	assert.Equal(t, []string{"flights", "accommodation", "food", "activities"}, u1.Budget.Includes)
	assert.Equal(t, []string{"Beach", "Food-focused", "Volcano spotting"}, u1.DestinationPrefs.Vibes)
	assert.Equal(t, "either", u1.DestinationPrefs.DomesticInternational)
	assert.Equal(t, []string{"vegan"}, u1.Constraints.DietaryRestrictions)
	assert.Equal(t, []string{"No camping"}, u1.Constraints.HardNos)

	u2 := got[1]
	require.NotNil(t, u2.Dates)
	assert.True(t, u2.Dates.Flexible)
	assert.Empty(t, u2.Dates.EarliestStart)
	assert.Nil(t, u2.Budget)
	assert.Nil(t, u2.DestinationPrefs)

	u3 := got[2]
	assert.Nil(t, u3.Budget.MaxBudget)
	assert.Equal(t, FlexibilityNoLimit, u3.Budget.Flexibility)

	// Input is left untouched.
	assert.Equal(t, " u1 ", recs[0].UserID)
	assert.Equal(t, "beach", recs[0].DestinationPrefs.Vibes[0])
}

func TestNormalize_NeverInventsData(t *testing.T) {
	got := Normalize([]Record{{UserID: "u", Notes: "open to anything"}})
	profile := Aggregate(got)

	assert.Zero(t, profile.DateOverlap.MembersWithDates)
	assert.Zero(t, profile.BudgetRange.MembersWithBudgets)
	assert.Zero(t, profile.Vibes.MembersWithVibes)
}

func TestCanonicalVibe(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"road TRIP", "Road trip", true},
		{"Nature", "Nature", true},
		{"  ", "", false},
		{"Skiing", "Skiing", true},
	}
	for _, tt := range tests {
		got, ok := CanonicalVibe(tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.ok, ok)
	}
}
