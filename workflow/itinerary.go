package workflow

import (
	"context"

	"github.com/c360studio/tripsync/itinerary"
	"github.com/c360studio/tripsync/workflow/validation"
)

// NewItineraryPipeline builds draft through validate_grounding. The state
// must already hold the group profile and a selected destination.
func NewItineraryPipeline(gen Generator, opts ...PipelineOption) *Pipeline {
	stages := []Stage{
		{
			Name:   GenDraft,
			Reads:  []Key{KeySelectedDestination, KeyAggregatedGroupProfile, KeyDestinationResearch, KeyFeedbackItems, KeyItineraryFinal},
			Writes: []Key{KeyItineraryDraft},
			Run: func(ctx context.Context, s *State) (map[Key]any, error) {
				dest := s.SelectedDestination()
				if dest == "" {
					return nil, &InputError{Missing: []string{"selected_destination"}}
				}
				out, err := generate(ctx, gen, GenDraft, s.View(KeyTripContext, KeySelectedDestination,
					KeyAggregatedGroupProfile, KeyDestinationResearch, KeyFeedbackItems, KeyItineraryFinal))
				if err != nil {
					return nil, err
				}
				draft, err := DecodeItinerary(out, s.TripID(), dest)
				if err != nil {
					return nil, err
				}
				return map[Key]any{KeyItineraryDraft: draft}, nil
			},
		},
		{
			Name:   "validate_costs",
			Reads:  []Key{KeyItineraryDraft, KeyAggregatedGroupProfile},
			Writes: []Key{KeyCostSanityReport},
			Run: func(_ context.Context, s *State) (map[Key]any, error) {
				draft, _ := s.ItineraryDraft()
				var budgetMax *int
				if profile, ok := s.Profile(); ok {
					if limit, ok := profile.BudgetCap(); ok {
						budgetMax = &limit
					}
				}
				report := itinerary.SanityReport(itinerary.ValidateCosts(draft, budgetMax))
				out := map[Key]any{KeyCostSanityReport: report}
				if !report.Passed() {
					return out, &BudgetExceededError{Report: report}
				}
				return out, nil
			},
		},
		{
			Name:   GenPolish,
			Reads:  []Key{KeyItineraryDraft, KeyCostSanityReport, KeyFeedbackItems},
			Writes: []Key{KeyItineraryPolished},
			Run: func(ctx context.Context, s *State) (map[Key]any, error) {
				draft, _ := s.ItineraryDraft()
				out, err := generate(ctx, gen, GenPolish, s.View(KeyTripContext, KeyItineraryDraft,
					KeyCostSanityReport, KeyFeedbackItems, KeyAggregatedGroupProfile))
				if err != nil {
					return nil, err
				}
				if out.Empty() {
					return map[Key]any{KeyItineraryPolished: draft.Clone()}, nil
				}
				return map[Key]any{KeyItineraryPolished: out}, nil
			},
		},
		{
			Name:   "enforce_schema",
			Reads:  []Key{KeyItineraryPolished},
			Writes: []Key{KeyItineraryFinal},
			Run: func(_ context.Context, s *State) (map[Key]any, error) {
				polished, _ := s.Get(KeyItineraryPolished)
				it, err := DecodeItinerary(polished, s.TripID(), s.SelectedDestination())
				if err != nil {
					return nil, err
				}
				return map[Key]any{KeyItineraryFinal: it}, nil
			},
		},
		{
			Name:   "validate_constraints",
			Reads:  []Key{KeyItineraryFinal, KeyAggregatedGroupProfile},
			Writes: []Key{KeyValidationResult},
			Run: func(_ context.Context, s *State) (map[Key]any, error) {
				it, _ := s.ItineraryFinal()
				profile, _ := s.Profile()
				report := validation.Report{Compliance: validation.CheckCompliance(validation.ForItinerary(it), profile)}
				return map[Key]any{KeyValidationResult: report}, nil
			},
		},
		{
			Name:   "validate_grounding",
			Reads:  []Key{KeyItineraryFinal, KeyDestinationResearch, KeyValidationResult},
			Writes: []Key{KeyValidationResult},
			Run: func(_ context.Context, s *State) (map[Key]any, error) {
				it, _ := s.ItineraryFinal()
				report, _ := s.Validation()
				g := validation.CheckGrounding(validation.ForItinerary(it), s.Research())
				report.Grounding = &g
				return map[Key]any{KeyValidationResult: report}, nil
			},
		},
	}
	return NewPipeline(PipelineItinerary, stages, opts...)
}
