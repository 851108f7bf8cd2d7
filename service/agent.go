// Package service runs the recommendation, itinerary and regeneration
// workflows for a trip and persists their results.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360studio/tripsync/itinerary"
	"github.com/c360studio/tripsync/preference"
	"github.com/c360studio/tripsync/recommendation"
	"github.com/c360studio/tripsync/storage"
	"github.com/c360studio/tripsync/workflow"
)

// MaxRegenerations is the default lifetime regeneration budget of one itinerary.
const MaxRegenerations = workflow.DefaultMaxRegenIterations

// Failure messages returned to callers.
const (
	msgNoPreferences = "No preferences found. Members must submit preferences first."
	msgNoItinerary   = "No existing itinerary found. Generate an itinerary first."
	msgTripNotFound  = "Trip not found"
)

const progressFlushTimeout = 10 * time.Second

// Store is the storage the agent reads from and writes to. *storage.Store
// implements it.
type Store interface {
	LoadTripContext(ctx context.Context, tripID string) (*storage.TripContext, error)
	LoadMemberPreferences(ctx context.Context, tripID string) ([]preference.Record, error)
	LoadLatestRecommendations(ctx context.Context, tripID string) (*storage.Recommendation, error)
	LoadItinerary(ctx context.Context, tripID string) (*storage.ItineraryRecord, error)
	StoreRecommendations(ctx context.Context, tripID string, pack recommendation.Pack, generatedBy string) (*storage.Recommendation, error)
	StoreItinerary(ctx context.Context, tripID string, it itinerary.Itinerary, generatedBy string, regenCount int) (*storage.ItineraryRecord, error)
	StoreProgress(ctx context.Context, tripID, stage, message string, at time.Time) error
}

// Observer receives per-stage timings and per-run outcomes.
type Observer interface {
	workflow.StageObserver
	ObserveRun(pipeline string, err error)
	ObserveRegeneration(status workflow.LoopStatus)
}

// Result is the outcome of one agent operation. Success is false exactly when
// Error is set.
type Result struct {
	Success     bool     `json:"success"`
	Error       string   `json:"error,omitempty"`
	FailedStage string   `json:"failed_stage,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`

	// Conflicts is set when blocking group conflicts stopped generation.
	Conflicts *preference.ConflictReport `json:"conflicts,omitempty"`

	Recommendations  *recommendation.Pack `json:"recommendations,omitempty"`
	RecommendationID string               `json:"recommendation_id,omitempty"`

	Itinerary   *itinerary.Itinerary `json:"itinerary,omitempty"`
	ItineraryID string               `json:"itinerary_id,omitempty"`

	GeneratedAt time.Time `json:"generated_at,omitempty"`

	// Regeneration only.
	Status             workflow.LoopStatus `json:"status,omitempty"`
	UnresolvedFeedback []string            `json:"unresolved_feedback,omitempty"`
	RegenerationCount  int                 `json:"regeneration_count,omitempty"`
}

func failure(msg string) Result {
	return Result{Error: msg}
}

// Agent orchestrates workflow runs against storage and a generator. It holds
// no per-run state and is safe for concurrent use.
type Agent struct {
	store     Store
	gen       workflow.Generator
	logger    *slog.Logger
	observer  Observer
	timeout   time.Duration
	recConfig workflow.RecommendationConfig
	maxRegen  int
	now       func() time.Time

	flushes sync.WaitGroup
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithObserver registers a run observer.
func WithObserver(o Observer) Option {
	return func(a *Agent) { a.observer = o }
}

// WithStageTimeout bounds every pipeline stage.
func WithStageTimeout(d time.Duration) Option {
	return func(a *Agent) { a.timeout = d }
}

// WithRecommendationConfig overrides candidate bounds and research concurrency.
func WithRecommendationConfig(cfg workflow.RecommendationConfig) Option {
	return func(a *Agent) { a.recConfig = cfg }
}

// WithMaxRegenerations sets the lifetime regeneration budget. Values below 1
// keep the default.
func WithMaxRegenerations(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxRegen = n
		}
	}
}

// WithClock sets the clock used for run state.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAgent creates an Agent.
func NewAgent(store Store, gen workflow.Generator, opts ...Option) *Agent {
	a := &Agent{
		store:     store,
		gen:       gen,
		logger:    slog.Default(),
		recConfig: workflow.DefaultRecommendationConfig(),
		maxRegen:  MaxRegenerations,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Wait blocks until every pending progress flush has finished.
func (a *Agent) Wait() {
	a.flushes.Wait()
}

func (a *Agent) pipelineOptions() []workflow.PipelineOption {
	opts := []workflow.PipelineOption{
		workflow.WithLogger(a.logger),
		workflow.WithStageTimeout(a.timeout),
	}
	if a.observer != nil {
		opts = append(opts, workflow.WithObserver(a.observer))
	}
	return opts
}

func (a *Agent) run(ctx context.Context, p *workflow.Pipeline, s *workflow.State) error {
	err := p.Run(ctx, s)
	if a.observer != nil {
		a.observer.ObserveRun(p.Name(), err)
	}
	return err
}

// loadInputs returns the trip context and member preferences, or a failure result.
func (a *Agent) loadInputs(ctx context.Context, tripID string) (*storage.TripContext, []preference.Record, *Result) {
	tc, err := a.store.LoadTripContext(ctx, tripID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			r := failure(msgTripNotFound)
			return nil, nil, &r
		}
		r := failure(fmt.Sprintf("Failed to load trip: %v", err))
		return nil, nil, &r
	}
	prefs, err := a.store.LoadMemberPreferences(ctx, tripID)
	if err != nil {
		r := failure(fmt.Sprintf("Failed to load preferences: %v", err))
		return nil, nil, &r
	}
	if len(prefs) == 0 {
		r := failure(msgNoPreferences)
		return nil, nil, &r
	}
	return tc, prefs, nil
}

func (a *Agent) newState(tc *storage.TripContext, prefs []preference.Record, opts ...workflow.StateOption) *workflow.State {
	opts = append([]workflow.StateOption{
		workflow.WithTripContext(tc.Map()),
		workflow.WithClock(a.now),
	}, opts...)
	return workflow.InitializeState(tc.TripID, prefs, opts...)
}

// recovered converts a panic into a failure result.
func (a *Agent) recovered(op string, tripID string, result *Result) {
	if r := recover(); r != nil {
		a.logger.Error("Agent operation panicked", "operation", op, "trip_id", tripID, "panic", r)
		*result = failure(fmt.Sprintf("%s failed: internal error", op))
	}
}

// GenerateRecommendations runs the recommendation pipeline and stores the pack.
func (a *Agent) GenerateRecommendations(ctx context.Context, tripID, userID string) (result Result) {
	defer a.recovered("Recommendation generation", tripID, &result)
	a.logger.Info("Generating recommendations", "trip_id", tripID, "user_id", userID)

	tc, prefs, fail := a.loadInputs(ctx, tripID)
	if fail != nil {
		return *fail
	}

	s := a.newState(tc, prefs)
	defer a.flushProgress(ctx, s)

	if d := workflow.Route(s, workflow.ActionRecommendations); !d.ReadyToProceed {
		return failure(d.Reason)
	}
	s.AddProgress("initialization", "Starting destination recommendation generation", nil)

	p := workflow.NewRecommendationPipeline(a.gen, a.recConfig, a.pipelineOptions()...)
	if err := a.run(ctx, p, s); err != nil {
		a.logger.Warn("Recommendation pipeline failed", "trip_id", tripID, "error", err)
		return runFailure("Recommendation generation", err)
	}

	pack, ok := s.RecommendationsFinal()
	if !ok {
		return failure("Recommendation generation failed to produce output")
	}

	rec, err := a.store.StoreRecommendations(ctx, tripID, pack, userID)
	if err != nil {
		a.logger.Error("Failed to save recommendations", "trip_id", tripID, "error", err)
		return failure(fmt.Sprintf("Failed to save recommendations: %v", err))
	}
	s.AddProgress("complete", "Recommendations generated successfully", nil)

	return Result{
		Success:          true,
		Recommendations:  &pack,
		RecommendationID: rec.ID,
		GeneratedAt:      rec.GeneratedAt,
	}
}

// GenerateItinerary drafts, checks and stores an itinerary for destination.
func (a *Agent) GenerateItinerary(ctx context.Context, tripID, destination, userID string) (result Result) {
	defer a.recovered("Itinerary generation", tripID, &result)
	a.logger.Info("Generating itinerary", "trip_id", tripID, "destination", destination, "user_id", userID)

	tc, prefs, fail := a.loadInputs(ctx, tripID)
	if fail != nil {
		return *fail
	}

	s := a.newState(tc, prefs, workflow.WithSelectedDestination(destination))
	defer a.flushProgress(ctx, s)

	if err := a.run(ctx, workflow.NewConflictsPipeline(a.pipelineOptions()...), s); err != nil {
		return runFailure("Itinerary generation", err)
	}
	a.seedResearch(ctx, s, tripID, destination)

	if d := workflow.Route(s, workflow.ActionItinerary); !d.ReadyToProceed {
		return failure(d.Reason)
	}
	s.AddProgress("initialization", "Starting itinerary generation", nil)

	p := workflow.NewItineraryPipeline(a.gen, a.pipelineOptions()...)
	if err := a.run(ctx, p, s); err != nil {
		a.logger.Warn("Itinerary pipeline failed", "trip_id", tripID, "error", err)
		return runFailure("Itinerary generation", err)
	}

	it, ok := s.ItineraryFinal()
	if !ok {
		return failure("Itinerary generation failed to produce output")
	}

	rec, err := a.store.StoreItinerary(ctx, tripID, it, userID, 0)
	if err != nil {
		a.logger.Error("Failed to save itinerary", "trip_id", tripID, "error", err)
		return failure(fmt.Sprintf("Failed to save itinerary: %v", err))
	}
	s.AddProgress("complete", "Itinerary generated successfully", nil)

	return Result{
		Success:     true,
		Itinerary:   &it,
		ItineraryID: rec.ID,
		GeneratedAt: rec.GeneratedAt,
	}
}

// RegenerateItinerary revises the stored itinerary with feedback. regenCount
// is the number of regenerations already spent on it.
func (a *Agent) RegenerateItinerary(ctx context.Context, tripID, feedback, userID string, regenCount int) (result Result) {
	defer a.recovered("Itinerary regeneration", tripID, &result)
	a.logger.Info("Regenerating itinerary", "trip_id", tripID, "regen_count", regenCount, "user_id", userID)

	if regenCount >= a.maxRegen {
		return failure(fmt.Sprintf("Maximum regeneration limit reached (%d). Please modify feedback or start fresh.", a.maxRegen))
	}
	if regenCount < 0 {
		regenCount = 0
	}

	existing, err := a.store.LoadItinerary(ctx, tripID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return failure(msgNoItinerary)
		}
		return failure(fmt.Sprintf("Itinerary regeneration failed: %v", err))
	}

	tc, prefs, fail := a.loadInputs(ctx, tripID)
	if fail != nil {
		return *fail
	}

	s := a.newState(tc, prefs,
		workflow.WithSelectedDestination(existing.DestinationName),
		workflow.WithFeedback(feedback),
		workflow.WithMaxRegenIterations(a.maxRegen-regenCount),
	)
	defer a.flushProgress(ctx, s)

	if err := a.run(ctx, workflow.NewConflictsPipeline(a.pipelineOptions()...), s); err != nil {
		return runFailure("Itinerary regeneration", err)
	}
	s.Set(workflow.KeyItineraryFinal, existing.Itinerary())
	a.seedResearch(ctx, s, tripID, existing.DestinationName)

	if d := workflow.Route(s, workflow.ActionRegenerate); !d.ReadyToProceed {
		return failure(d.Reason)
	}
	s.AddProgress("regeneration", fmt.Sprintf("Starting itinerary regeneration (iteration %d)", regenCount+1), nil)

	res, err := workflow.Regenerate(ctx, s, workflow.NewItineraryPipeline(a.gen, a.pipelineOptions()...))
	if err != nil {
		return failure(fmt.Sprintf("Itinerary regeneration failed: %v", err))
	}
	if a.observer != nil {
		a.observer.ObserveRegeneration(res.Status)
	}

	total := regenCount + res.RegenCount
	rec, err := a.store.StoreItinerary(ctx, tripID, res.Itinerary, userID, total)
	if err != nil {
		a.logger.Error("Failed to save regenerated itinerary", "trip_id", tripID, "error", err)
		return failure(fmt.Sprintf("Failed to save regenerated itinerary: %v", err))
	}
	s.AddProgress("complete", "Itinerary regenerated: "+res.Status.String(), nil)

	it := res.Itinerary
	return Result{
		Success:            true,
		Itinerary:          &it,
		ItineraryID:        rec.ID,
		GeneratedAt:        rec.GeneratedAt,
		Status:             res.Status,
		UnresolvedFeedback: res.UnresolvedFeedback,
		Suggestions:        res.Suggestions,
		RegenerationCount:  total,
	}
}

// seedResearch turns the stored recommendation for destination into research
// facts for grounding. Missing recommendations leave the state untouched.
func (a *Agent) seedResearch(ctx context.Context, s *workflow.State, tripID, destination string) {
	rec, err := a.store.LoadLatestRecommendations(ctx, tripID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			a.logger.Warn("Failed to load recommendations for research", "trip_id", tripID, "error", err)
		}
		return
	}
	opt, ok := rec.Option(destination)
	if !ok {
		return
	}
	facts := recommendation.ResearchFacts{
		DestinationName:  opt.Name,
		Facts:            append([]string{}, opt.WhyItFits...),
		Sources:          append([]string{}, opt.Sources...),
		TwoDayHighlights: append([]string{}, opt.SampleHighlights2Day...),
	}
	if opt.EstimatedCost.PerPersonHigh > 0 {
		facts.TypicalCostSignals = fmt.Sprintf("$%d-$%d per person", opt.EstimatedCost.PerPersonLow, opt.EstimatedCost.PerPersonHigh)
	}
	s.Set(workflow.KeyDestinationResearch, []recommendation.ResearchFacts{facts})
}

// runFailure reports a pipeline error, surfacing cost suggestions.
func runFailure(op string, err error) Result {
	rr := workflow.NewRunResult(err)
	r := Result{
		Error:       fmt.Sprintf("%s failed: %s", op, rr.Error),
		FailedStage: rr.FailedStage,
	}
	var budget *workflow.BudgetExceededError
	if errors.As(err, &budget) {
		r.Suggestions = budget.Report.Suggestions
	}
	var blocked *workflow.ConflictBlockedError
	if errors.As(err, &blocked) {
		r.Error = fmt.Sprintf("%s failed: %s", op, blocked.Report.Summary)
		r.Suggestions = blocked.Resolutions()
		r.Conflicts = &blocked.Report
	}
	var input *workflow.InputError
	if errors.As(err, &input) {
		r.Error = input.Error()
	}
	return r
}

// flushProgress persists the run's progress events in the background.
// Cancelled runs persist nothing.
func (a *Agent) flushProgress(ctx context.Context, s *workflow.State) {
	if ctx.Err() != nil {
		return
	}
	events := s.ProgressEvents()
	if len(events) == 0 {
		return
	}
	tripID := s.TripID()
	ctx = context.WithoutCancel(ctx)

	a.flushes.Add(1)
	go func() {
		defer a.flushes.Done()
		ctx, cancel := context.WithTimeout(ctx, progressFlushTimeout)
		defer cancel()

		for _, ev := range events {
			at, err := time.Parse(time.RFC3339, ev.Timestamp)
			if err != nil {
				at = time.Time{}
			}
			if err := a.store.StoreProgress(ctx, tripID, ev.Stage, ev.Message, at); err != nil {
				a.logger.Warn("Failed to store progress", "trip_id", tripID, "stage", ev.Stage, "error", err)
			}
		}
	}()
}
