package workflow

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/c360studio/tripsync/preference"
	"github.com/c360studio/tripsync/recommendation"
	"github.com/c360studio/tripsync/workflow/validation"
)

// RecommendationConfig bounds the generation stages of the recommendation
// pipeline.
type RecommendationConfig struct {
	MinCandidates       int
	MaxCandidates       int
	ResearchConcurrency int
}

// DefaultRecommendationConfig returns the standard candidate bounds with four
// concurrent research calls.
func DefaultRecommendationConfig() RecommendationConfig {
	return RecommendationConfig{
		MinCandidates:       recommendation.MinCandidates,
		MaxCandidates:       recommendation.MaxCandidates,
		ResearchConcurrency: 4,
	}
}

// ProfileStages are the deterministic stages shared by every pipeline that
// starts from raw preferences.
func ProfileStages() []Stage {
	return []Stage{
		{
			Name:   "normalize",
			Reads:  []Key{KeyRawPreferences},
			Writes: []Key{KeyNormalizedPreferences},
			Run: func(_ context.Context, s *State) (map[Key]any, error) {
				recs := s.RawPreferences()
				if len(recs) == 0 {
					return nil, &InputError{Missing: []string{"preferences"}}
				}
				return map[Key]any{KeyNormalizedPreferences: preference.Normalize(recs)}, nil
			},
		},
		{
			Name:   "aggregate",
			Reads:  []Key{KeyNormalizedPreferences},
			Writes: []Key{KeyAggregatedGroupProfile},
			Run: func(_ context.Context, s *State) (map[Key]any, error) {
				return map[Key]any{KeyAggregatedGroupProfile: preference.Aggregate(s.NormalizedPreferences())}, nil
			},
		},
		{
			Name:   "detect_conflicts",
			Reads:  []Key{KeyAggregatedGroupProfile, KeyNormalizedPreferences},
			Writes: []Key{KeyConflictReport},
			Run: func(_ context.Context, s *State) (map[Key]any, error) {
				profile, ok := s.Profile()
				if !ok {
					return nil, &InputError{Missing: []string{"aggregated_group_profile"}}
				}
				return map[Key]any{KeyConflictReport: preference.DetectConflicts(profile, s.NormalizedPreferences())}, nil
			},
		},
	}
}

// NewConflictsPipeline runs only the profile stages.
func NewConflictsPipeline(opts ...PipelineOption) *Pipeline {
	return NewPipeline("conflicts", ProfileStages(), opts...)
}

// NewRecommendationPipeline builds normalize through validate_grounding.
func NewRecommendationPipeline(gen Generator, cfg RecommendationConfig, opts ...PipelineOption) *Pipeline {
	stages := ProfileStages()
	stages = append(stages,
		Stage{
			Name:   GenCandidates,
			Reads:  []Key{KeyTripContext, KeyAggregatedGroupProfile, KeyConflictReport},
			Writes: []Key{KeyCandidateDestinations},
			Run: func(ctx context.Context, s *State) (map[Key]any, error) {
				if report, ok := s.Conflicts(); ok && !report.CanProceed {
					return nil, &ConflictBlockedError{Report: report}
				}
				out, err := generate(ctx, gen, GenCandidates, s.View(KeyTripContext, KeyAggregatedGroupProfile, KeyConflictReport))
				if err != nil {
					return nil, err
				}
				cands, err := DecodeCandidates(out, cfg.MinCandidates, cfg.MaxCandidates)
				if err != nil {
					return nil, err
				}
				return map[Key]any{KeyCandidateDestinations: cands}, nil
			},
		},
		Stage{
			Name:   GenResearch,
			Reads:  []Key{KeyCandidateDestinations, KeyAggregatedGroupProfile},
			Writes: []Key{KeyDestinationResearch},
			Run: func(ctx context.Context, s *State) (map[Key]any, error) {
				research, err := researchAll(ctx, gen, s, cfg.ResearchConcurrency)
				if err != nil {
					return nil, err
				}
				return map[Key]any{KeyDestinationResearch: research}, nil
			},
		},
		Stage{
			Name:   GenRank,
			Reads:  []Key{KeyCandidateDestinations, KeyDestinationResearch, KeyAggregatedGroupProfile, KeyConflictReport},
			Writes: []Key{KeyRecommendationsDraft},
			Run: func(ctx context.Context, s *State) (map[Key]any, error) {
				out, err := generate(ctx, gen, GenRank, s.View(KeyTripContext, KeyCandidateDestinations,
					KeyDestinationResearch, KeyAggregatedGroupProfile, KeyConflictReport))
				if err != nil {
					return nil, err
				}
				return map[Key]any{KeyRecommendationsDraft: out}, nil
			},
		},
		Stage{
			Name:   "enforce_schema",
			Reads:  []Key{KeyRecommendationsDraft},
			Writes: []Key{KeyRecommendationsFinal},
			Run: func(_ context.Context, s *State) (map[Key]any, error) {
				draft, _ := s.Get(KeyRecommendationsDraft)
				profile, _ := s.Profile()
				conflicts, _ := s.Conflicts()
				pack, err := DecodePack(draft, PackDefaults{
					TripID:       s.TripID(),
					GeneratedAt:  s.Now(),
					GroupSummary: GroupSummary(profile),
					Conflicts:    conflictDescriptions(conflicts),
				})
				if err != nil {
					return nil, err
				}
				return map[Key]any{KeyRecommendationsFinal: pack}, nil
			},
		},
		Stage{
			Name:   "validate_constraints",
			Reads:  []Key{KeyRecommendationsFinal, KeyAggregatedGroupProfile},
			Writes: []Key{KeyValidationResult},
			Run: func(_ context.Context, s *State) (map[Key]any, error) {
				pack, _ := s.RecommendationsFinal()
				profile, _ := s.Profile()
				report := validation.Report{Compliance: validation.CheckCompliance(validation.ForPack(pack), profile)}
				return map[Key]any{KeyValidationResult: report}, nil
			},
		},
		Stage{
			Name:   "validate_grounding",
			Reads:  []Key{KeyRecommendationsFinal, KeyDestinationResearch, KeyValidationResult},
			Writes: []Key{KeyValidationResult},
			Run: func(_ context.Context, s *State) (map[Key]any, error) {
				pack, _ := s.RecommendationsFinal()
				report, _ := s.Validation()
				g := validation.CheckGrounding(validation.ForPack(pack), s.Research())
				report.Grounding = &g
				return map[Key]any{KeyValidationResult: report}, nil
			},
		},
	)
	return NewPipeline(PipelineRecommendations, stages, opts...)
}

// researchAll fans out one research call per candidate. Results keep
// candidate order regardless of completion order.
func researchAll(ctx context.Context, gen Generator, s *State, limit int) ([]recommendation.ResearchFacts, error) {
	cands := s.Candidates()
	if len(cands) == 0 {
		return nil, &InputError{Missing: []string{"candidate_destinations"}}
	}
	if limit <= 0 {
		limit = 1
	}

	base := s.View(KeyTripContext, KeyAggregatedGroupProfile)
	results := make([]recommendation.ResearchFacts, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, c := range cands {
		view := make(map[string]any, len(base)+1)
		for k, v := range base {
			view[k] = v
		}
		view["candidate"] = c
		g.Go(func() error {
			out, err := generate(gctx, gen, GenResearch, view)
			if err != nil {
				return fmt.Errorf("research %s: %w", c.Name, err)
			}
			rf, err := DecodeResearch(out, c.Name)
			if err != nil {
				return fmt.Errorf("research %s: %w", c.Name, err)
			}
			results[i] = rf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func generate(ctx context.Context, gen Generator, stage string, view map[string]any) (Output, error) {
	if gen == nil {
		return Output{}, ErrNoGenerator
	}
	out, err := gen.Generate(ctx, stage, view)
	if err != nil {
		return Output{}, fmt.Errorf("generate %s: %w", stage, err)
	}
	return out, nil
}

// GroupSummary renders a short human-readable digest of the profile.
func GroupSummary(p preference.GroupProfile) map[string]string {
	summary := map[string]string{
		"members": fmt.Sprintf("%d", p.MemberCount),
		"dates":   "No shared dates",
		"budget":  "No shared budget",
		"vibes":   "No common vibes",
	}
	if p.DateOverlap.HasOverlap {
		summary["dates"] = fmt.Sprintf("%s to %s (%d days)", p.DateOverlap.OverlapStart, p.DateOverlap.OverlapEnd, p.DateOverlap.OverlapDays)
	}
	if p.BudgetRange.HasFeasibleRange && p.BudgetRange.MembersWithBudgets > 0 {
		summary["budget"] = fmt.Sprintf("$%.0f-$%.0f per person", p.BudgetRange.MinBudget, p.BudgetRange.MaxBudget)
	}
	if p.Vibes.HasCommonVibes {
		summary["vibes"] = strings.Join(p.Vibes.CommonVibes, ", ")
	}
	if hn := p.Constraints.HardNos; len(hn) > 0 {
		summary["hard_nos"] = strings.Join(hn, ", ")
	}
	return summary
}

func conflictDescriptions(r preference.ConflictReport) []string {
	out := make([]string, 0, len(r.Conflicts))
	for _, c := range r.Conflicts {
		out = append(out, c.Description)
	}
	return out
}
