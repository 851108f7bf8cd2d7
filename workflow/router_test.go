package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/tripsync/preference"
)

func TestRoute(t *testing.T) {
	withProfile := func(s *State) { s.Set(KeyAggregatedGroupProfile, preference.Aggregate(s.RawPreferences())) }
	withFinal := func(s *State) { s.Set(KeyItineraryFinal, lisbonItinerary()) }

	tests := []struct {
		name      string
		recs      []preference.Record
		opts      []StateOption
		prepare   []func(*State)
		requested Action
		want      Action
		ready     bool
		missing   []string
	}{
		{
			name:      "recommendations with preferences",
			recs:      groupPrefs(),
			requested: ActionRecommendations,
			want:      ActionRecommendations,
			ready:     true,
			missing:   []string{},
		},
		{
			name:      "recommendations without preferences",
			requested: ActionRecommendations,
			want:      ActionError,
			missing:   []string{"preferences"},
		},
		{
			name:      "itinerary missing everything",
			requested: ActionItinerary,
			want:      ActionError,
			missing:   []string{"selected_destination", "preferences"},
		},
		{
			name:      "itinerary missing destination",
			recs:      groupPrefs(),
			prepare:   []func(*State){withProfile},
			requested: ActionItinerary,
			want:      ActionError,
			missing:   []string{"selected_destination"},
		},
		{
			name:      "itinerary ready",
			recs:      groupPrefs(),
			opts:      []StateOption{WithSelectedDestination("Lisbon")},
			prepare:   []func(*State){withProfile},
			requested: ActionItinerary,
			want:      ActionItinerary,
			ready:     true,
			missing:   []string{},
		},
		{
			name:      "regenerate without feedback",
			prepare:   []func(*State){withFinal},
			requested: ActionRegenerate,
			want:      ActionError,
			missing:   []string{"feedback_items"},
		},
		{
			name:      "regenerate ready",
			opts:      []StateOption{WithFeedback("More beach")},
			prepare:   []func(*State){withFinal},
			requested: ActionRegenerate,
			want:      ActionRegenerate,
			ready:     true,
			missing:   []string{},
		},
		{
			name:      "regenerate at limit",
			opts:      []StateOption{WithFeedback("More beach"), WithMaxRegenIterations(2)},
			prepare:   []func(*State){withFinal, func(s *State) { s.Set(KeyRegenCount, 2) }},
			requested: ActionRegenerate,
			want:      ActionError,
			missing:   []string{},
		},
		{
			name:      "conflicts only is always ready",
			requested: ActionConflictsOnly,
			want:      ActionConflictsOnly,
			ready:     true,
			missing:   []string{},
		},
		{
			name:      "explain is always ready",
			requested: ActionExplain,
			want:      ActionExplain,
			ready:     true,
			missing:   []string{},
		},
		{
			name:      "unknown action",
			requested: Action("teleport"),
			want:      ActionError,
			missing:   []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := InitializeState("trip-1", tt.recs, tt.opts...)
			for _, p := range tt.prepare {
				p(s)
			}
			got := Route(s, tt.requested)
			assert.Equal(t, tt.want, got.Action)
			assert.Equal(t, tt.ready, got.ReadyToProceed)
			assert.Equal(t, tt.missing, got.MissingInputs)
			assert.NotEmpty(t, got.Reason)

			recorded, ok := s.RouterDecision()
			require.True(t, ok)
			assert.Equal(t, got, recorded)
		})
	}
}

func TestRouterDecisionErr(t *testing.T) {
	s := InitializeState("trip-1", nil)
	d := Route(s, ActionRecommendations)

	var inputErr *InputError
	require.ErrorAs(t, d.Err(), &inputErr)
	assert.Equal(t, []string{"preferences"}, inputErr.Missing)

	s = InitializeState("trip-1", nil, WithFeedback("x"), WithMaxRegenIterations(0))
	s.Set(KeyItineraryFinal, lisbonItinerary())
	assert.True(t, errors.Is(Route(s, ActionRegenerate).Err(), ErrRegenerationLimit))

	assert.NoError(t, Route(s, ActionExplain).Err())
}

func TestRouteWith_CustomRouter(t *testing.T) {
	s := InitializeState("trip-1", nil)
	r := RouterFunc(func(*State, Action) RouterDecision {
		return RouterDecision{Action: ActionExplain, Reason: "always explain", ReadyToProceed: true}
	})
	got := RouteWith(r, s, ActionRecommendations)
	assert.Equal(t, ActionExplain, got.Action)
	assert.Equal(t, []string{}, got.MissingInputs)
}
