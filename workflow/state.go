// Package workflow sequences the trip planning pipelines. A single State is
// threaded through every stage of one run; stages read declared keys and
// return values for the keys they own, which the Pipeline writes back.
package workflow

import (
	"reflect"
	"time"

	"github.com/c360studio/tripsync/itinerary"
	"github.com/c360studio/tripsync/preference"
	"github.com/c360studio/tripsync/recommendation"
	"github.com/c360studio/tripsync/workflow/validation"
)

// Key names a canonical state slot.
type Key string

// Input keys.
const (
	KeyTripContext         Key = "trip_context"
	KeyRawPreferences      Key = "raw_preferences"
	KeySelectedDestination Key = "selected_destination"
	KeyFeedbackItems       Key = "feedback_items"
)

// Derived keys.
const (
	KeyNormalizedPreferences  Key = "normalized_preferences"
	KeyAggregatedGroupProfile Key = "aggregated_group_profile"
	KeyConflictReport         Key = "conflict_report"
)

// Pipeline output keys.
const (
	KeyCandidateDestinations Key = "candidate_destinations"
	KeyDestinationResearch   Key = "destination_research"
	KeyRecommendationsDraft  Key = "recommendations_draft"
	KeyRecommendationsFinal  Key = "recommendations_final"
	KeyItineraryDraft        Key = "itinerary_draft"
	KeyCostSanityReport      Key = "cost_sanity_report"
	KeyItineraryPolished     Key = "itinerary_polished"
	KeyItineraryFinal        Key = "itinerary_final"
)

// Control keys.
const (
	KeyRegenCount         Key = "regen_count"
	KeyMaxRegenIterations Key = "max_regen_iterations"
	KeyProgressEvents     Key = "progress_events"
	KeyRouterAction       Key = "router_action"
	KeyValidationResult   Key = "validation_result"
)

// DefaultMaxRegenIterations caps regeneration when no limit is configured.
const DefaultMaxRegenIterations = 5

// ProgressEvent is one entry in a run's progress log.
type ProgressEvent struct {
	Stage     string         `json:"stage"`
	Message   string         `json:"message"`
	Timestamp string         `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

// State is the keyed blob owned by a single pipeline run. It is not safe
// for concurrent use and must never be shared between runs.
type State struct {
	values map[Key]any
	now    func() time.Time
}

// StateOption configures InitializeState.
type StateOption func(*State)

// WithTripContext replaces the default {trip_id} context.
func WithTripContext(ctx map[string]any) StateOption {
	return func(s *State) {
		merged := map[string]any{}
		for k, v := range ctx {
			merged[k] = v
		}
		if _, ok := merged["trip_id"]; !ok {
			merged["trip_id"] = s.TripID()
		}
		s.values[KeyTripContext] = merged
	}
}

// WithSelectedDestination seeds the destination chosen by the organizer.
func WithSelectedDestination(name string) StateOption {
	return func(s *State) { s.values[KeySelectedDestination] = name }
}

// WithFeedback seeds regeneration feedback.
func WithFeedback(items ...string) StateOption {
	return func(s *State) { s.values[KeyFeedbackItems] = append([]string(nil), items...) }
}

// WithMaxRegenIterations overrides DefaultMaxRegenIterations.
func WithMaxRegenIterations(n int) StateOption {
	return func(s *State) {
		if n >= 0 {
			s.values[KeyMaxRegenIterations] = n
		}
	}
}

// WithClock overrides time.Now for progress timestamps.
func WithClock(now func() time.Time) StateOption {
	return func(s *State) {
		if now != nil {
			s.now = now
		}
	}
}

// InitializeState creates the state for one run.
func InitializeState(tripID string, rawPrefs []preference.Record, opts ...StateOption) *State {
	s := &State{
		values: map[Key]any{
			KeyTripContext:        map[string]any{"trip_id": tripID},
			KeyRawPreferences:     append([]preference.Record{}, rawPrefs...),
			KeyRegenCount:         0,
			KeyMaxRegenIterations: DefaultMaxRegenIterations,
			KeyProgressEvents:     []ProgressEvent{},
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the raw value stored under k.
func (s *State) Get(k Key) (any, bool) {
	v, ok := s.values[k]
	return v, ok
}

// Set stores v under k. Stages do not call Set; the Pipeline writes their
// declared outputs.
func (s *State) Set(k Key, v any) { s.values[k] = v }

// Has reports whether k holds a non-empty value.
func (s *State) Has(k Key) bool {
	v, ok := s.values[k]
	return ok && present(v)
}

// View copies the requested keys into a plain map for a generator call.
func (s *State) View(keys ...Key) map[string]any {
	view := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := s.values[k]; ok {
			view[string(k)] = v
		}
	}
	return view
}

// Now returns the state's clock reading.
func (s *State) Now() time.Time { return s.now() }

// AddProgress appends a progress event with a UTC ISO-8601 timestamp.
func (s *State) AddProgress(stage, message string, metadata map[string]any) ProgressEvent {
	if metadata == nil {
		metadata = map[string]any{}
	}
	ev := ProgressEvent{
		Stage:     stage,
		Message:   message,
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Metadata:  metadata,
	}
	s.values[KeyProgressEvents] = append(s.ProgressEvents(), ev)
	return ev
}

// ProgressEvents returns the progress log.
func (s *State) ProgressEvents() []ProgressEvent {
	events, _ := typed[[]ProgressEvent](s, KeyProgressEvents)
	return events
}

// TripID returns the trip the run belongs to.
func (s *State) TripID() string {
	ctx, _ := typed[map[string]any](s, KeyTripContext)
	id, _ := ctx["trip_id"].(string)
	return id
}

// TripContext returns the trip metadata map.
func (s *State) TripContext() map[string]any {
	ctx, _ := typed[map[string]any](s, KeyTripContext)
	return ctx
}

// RawPreferences returns the submitted member records.
func (s *State) RawPreferences() []preference.Record {
	v, _ := typed[[]preference.Record](s, KeyRawPreferences)
	return v
}

// NormalizedPreferences returns the canonicalized member records.
func (s *State) NormalizedPreferences() []preference.Record {
	v, _ := typed[[]preference.Record](s, KeyNormalizedPreferences)
	return v
}

// Profile returns the aggregated group profile, if computed.
func (s *State) Profile() (preference.GroupProfile, bool) {
	return typed[preference.GroupProfile](s, KeyAggregatedGroupProfile)
}

// Conflicts returns the conflict report, if computed.
func (s *State) Conflicts() (preference.ConflictReport, bool) {
	return typed[preference.ConflictReport](s, KeyConflictReport)
}

// SelectedDestination returns the destination chosen for itinerary work.
func (s *State) SelectedDestination() string {
	v, _ := typed[string](s, KeySelectedDestination)
	return v
}

// FeedbackItems returns accumulated regeneration feedback.
func (s *State) FeedbackItems() []string {
	v, _ := typed[[]string](s, KeyFeedbackItems)
	return v
}

// Candidates returns the generated candidate destinations.
func (s *State) Candidates() []recommendation.Candidate {
	v, _ := typed[[]recommendation.Candidate](s, KeyCandidateDestinations)
	return v
}

// Research returns per-destination research, in candidate order.
func (s *State) Research() []recommendation.ResearchFacts {
	v, _ := typed[[]recommendation.ResearchFacts](s, KeyDestinationResearch)
	return v
}

// RecommendationsFinal returns the schema-enforced pack.
func (s *State) RecommendationsFinal() (recommendation.Pack, bool) {
	return typed[recommendation.Pack](s, KeyRecommendationsFinal)
}

// ItineraryDraft returns the decoded draft itinerary.
func (s *State) ItineraryDraft() (itinerary.Itinerary, bool) {
	return typed[itinerary.Itinerary](s, KeyItineraryDraft)
}

// ItineraryFinal returns the schema-enforced itinerary.
func (s *State) ItineraryFinal() (itinerary.Itinerary, bool) {
	return typed[itinerary.Itinerary](s, KeyItineraryFinal)
}

// CostReport returns the cost gate report.
func (s *State) CostReport() (itinerary.CostSanityReport, bool) {
	return typed[itinerary.CostSanityReport](s, KeyCostSanityReport)
}

// Validation returns the merged validation report.
func (s *State) Validation() (validation.Report, bool) {
	return typed[validation.Report](s, KeyValidationResult)
}

// RouterDecision returns the last routing decision.
func (s *State) RouterDecision() (RouterDecision, bool) {
	return typed[RouterDecision](s, KeyRouterAction)
}

// RegenCount returns the number of regeneration iterations run so far.
func (s *State) RegenCount() int {
	v, _ := typed[int](s, KeyRegenCount)
	return v
}

// MaxRegenIterations returns the regeneration cap.
func (s *State) MaxRegenIterations() int {
	v, ok := typed[int](s, KeyMaxRegenIterations)
	if !ok {
		return DefaultMaxRegenIterations
	}
	return v
}

func typed[T any](s *State, k Key) (T, bool) {
	var zero T
	v, ok := s.values[k]
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// present treats nil, empty strings, and empty collections as absent.
func present(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}
