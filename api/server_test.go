package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/tripsync/itinerary"
	"github.com/c360studio/tripsync/recommendation"
	"github.com/c360studio/tripsync/service"
	"github.com/c360studio/tripsync/storage"
	"github.com/c360studio/tripsync/workflow"
)

var generatedAt = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

type call struct {
	op, tripID, arg, userID string
	regenCount              int
}

// stubPlanner returns canned results and records calls.
type stubPlanner struct {
	mu     sync.Mutex
	calls  []call
	result service.Result
}

func (p *stubPlanner) record(c call) service.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, c)
	return p.result
}

func (p *stubPlanner) GenerateRecommendations(_ context.Context, tripID, userID string) service.Result {
	return p.record(call{op: "recommendations", tripID: tripID, userID: userID})
}

func (p *stubPlanner) GenerateItinerary(_ context.Context, tripID, destination, userID string) service.Result {
	return p.record(call{op: "itinerary", tripID: tripID, arg: destination, userID: userID})
}

func (p *stubPlanner) RegenerateItinerary(_ context.Context, tripID, feedback, userID string, regenCount int) service.Result {
	return p.record(call{op: "regenerate", tripID: tripID, arg: feedback, userID: userID, regenCount: regenCount})
}

type countingChecker struct {
	TripStore
	mu    sync.Mutex
	calls int
}

func (c *countingChecker) IsTripMember(ctx context.Context, tripID, userID string) (bool, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.TripStore.IsTripMember(ctx, tripID, userID)
}

type requestLog struct {
	mu    sync.Mutex
	codes map[string][]int
}

func (r *requestLog) ObserveRequest(route string, code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.codes == nil {
		r.codes = map[string][]int{}
	}
	r.codes[route] = append(r.codes[route], code)
}

func newTripStore(t *testing.T) *storage.Store {
	t.Helper()
	backend, err := storage.OpenBadger(storage.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	store := storage.NewStore(backend)

	ctx := context.Background()
	for id, status := range map[string]storage.TripStatus{
		"trip-collecting": storage.TripStatusCollecting,
		"trip-planning":   storage.TripStatusPlanning,
		"trip-final":      storage.TripStatusFinalized,
	} {
		require.NoError(t, store.CreateTrip(ctx, &storage.Trip{ID: id, Name: id, Status: status, OrganizerID: "alice"}))
		require.NoError(t, store.AddMember(ctx, id, "bob", storage.RoleMember))
	}
	return store
}

func newTestServer(t *testing.T, planner Planner, trips TripStore, opts ...Option) *Server {
	t.Helper()
	auth, err := NewJWTAuthenticator(testSecret)
	require.NoError(t, err)
	return NewServer(planner, trips, auth, append([]Option{WithRateLimit(0, 0)}, opts...)...)
}

func post(t *testing.T, srv *Server, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+mint(t, tokenSpec{subject: user}))
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func detail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Detail
}

func TestPreconditions(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		user       string
		body       any
		wantCode   int
		wantDetail string
	}{
		{
			name:     "unauthenticated",
			path:     "/ai/recommendations/generate",
			body:     map[string]any{"trip_id": "trip-collecting"},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:       "non-member recommendations",
			path:       "/ai/recommendations/generate",
			user:       "mallory",
			body:       map[string]any{"trip_id": "trip-collecting"},
			wantCode:   http.StatusForbidden,
			wantDetail: "You must be a member of this trip to generate recommendations",
		},
		{
			name:       "non-member itinerary",
			path:       "/ai/itinerary/generate",
			user:       "mallory",
			body:       map[string]any{"trip_id": "trip-planning", "destination_name": "Lisbon"},
			wantCode:   http.StatusForbidden,
			wantDetail: "You must be a member of this trip to generate an itinerary",
		},
		{
			name:       "non-member regenerate",
			path:       "/ai/itinerary/regenerate",
			user:       "mallory",
			body:       map[string]any{"trip_id": "trip-planning", "feedback": "More food"},
			wantCode:   http.StatusForbidden,
			wantDetail: "You must be a member of this trip to regenerate the itinerary",
		},
		{
			name:       "recommendations in planning",
			path:       "/ai/recommendations/generate",
			user:       "bob",
			body:       map[string]any{"trip_id": "trip-planning"},
			wantCode:   http.StatusBadRequest,
			wantDetail: "Cannot generate recommendations for trip in 'planning' status. Trip must be in 'collecting' or 'recommending' status.",
		},
		{
			name:       "itinerary while collecting",
			path:       "/ai/itinerary/generate",
			user:       "alice",
			body:       map[string]any{"trip_id": "trip-collecting", "destination_name": "Lisbon"},
			wantCode:   http.StatusBadRequest,
			wantDetail: "Cannot generate itinerary for trip in 'collecting' status. Trip must be in 'planning' status (destination selected).",
		},
		{
			name:       "regenerate when finalized",
			path:       "/ai/itinerary/regenerate",
			user:       "bob",
			body:       map[string]any{"trip_id": "trip-final", "feedback": "More food"},
			wantCode:   http.StatusBadRequest,
			wantDetail: "Cannot regenerate itinerary for trip in 'finalized' status. Trip must be in 'planning' status.",
		},
		{
			name:     "missing trip id",
			path:     "/ai/recommendations/generate",
			user:     "bob",
			body:     map[string]any{},
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name:     "missing destination",
			path:     "/ai/itinerary/generate",
			user:     "bob",
			body:     map[string]any{"trip_id": "trip-planning"},
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name:     "empty feedback",
			path:     "/ai/itinerary/regenerate",
			user:     "bob",
			body:     map[string]any{"trip_id": "trip-planning", "feedback": ""},
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name:     "feedback too long",
			path:     "/ai/itinerary/regenerate",
			user:     "bob",
			body:     map[string]any{"trip_id": "trip-planning", "feedback": string(bytes.Repeat([]byte("a"), 1001))},
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name:     "negative regeneration count",
			path:     "/ai/itinerary/regenerate",
			user:     "bob",
			body:     map[string]any{"trip_id": "trip-planning", "feedback": "More food", "regeneration_count": -1},
			wantCode: http.StatusUnprocessableEntity,
		},
	}

	store := newTripStore(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planner := &stubPlanner{}
			srv := newTestServer(t, planner, store)

			w := post(t, srv, tt.path, tt.user, tt.body)

			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantDetail != "" {
				assert.Equal(t, tt.wantDetail, detail(t, w))
			}
			assert.Empty(t, planner.calls, "planner is not reached")
		})
	}
}

func TestMissingTrip(t *testing.T) {
	store := newTripStore(t)
	// A member record without a trip record: membership passes, lookup fails.
	require.NoError(t, store.AddMember(context.Background(), "trip-gone", "bob", storage.RoleMember))
	srv := newTestServer(t, &stubPlanner{}, store)

	w := post(t, srv, "/ai/recommendations/generate", "bob", map[string]any{"trip_id": "trip-gone"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Trip not found", detail(t, w))
}

func TestGenerateRecommendationsRoute(t *testing.T) {
	planner := &stubPlanner{result: service.Result{
		Success:     true,
		GeneratedAt: generatedAt,
		Recommendations: &recommendation.Pack{
			TripID:       "trip-collecting",
			GroupSummary: map[string]string{"budget": "$800-$1500 per person"},
			Options:      []recommendation.Option{{Name: "Lisbon"}, {Name: "Porto"}, {Name: "Seville"}},
		},
	}}
	srv := newTestServer(t, planner, newTripStore(t))

	w := post(t, srv, "/ai/recommendations/generate", "alice", map[string]any{"trip_id": "trip-collecting"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp GenerateRecommendationsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "trip-collecting", resp.TripID)
	assert.Len(t, resp.Destinations, 3)
	assert.Equal(t, "2025-06-01T09:30:00Z", resp.GeneratedAt)
	assert.Equal(t, "$800-$1500 per person", resp.AggregatedPreferencesSummary["budget"])
	assert.Equal(t, []call{{op: "recommendations", tripID: "trip-collecting", userID: "alice"}}, planner.calls)
}

func TestItineraryRoutes(t *testing.T) {
	it := &itinerary.Itinerary{
		TripID:                      "trip-planning",
		DestinationName:             "Lisbon",
		TotalEstimatedCostPerPerson: 420,
		Assumptions:                 []string{"Flights excluded.", "Shared rooms."},
		Days:                        []itinerary.Day{{DayIndex: 1}, {DayIndex: 2}},
	}

	t.Run("generate", func(t *testing.T) {
		planner := &stubPlanner{result: service.Result{Success: true, Itinerary: it, GeneratedAt: generatedAt}}
		srv := newTestServer(t, planner, newTripStore(t))

		w := post(t, srv, "/ai/itinerary/generate", "bob", map[string]any{"trip_id": "trip-planning", "destination_name": "Lisbon"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp ItineraryResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Lisbon", resp.DestinationName)
		assert.Equal(t, 420, resp.TotalCost)
		assert.Equal(t, 2, resp.TripLengthDays)
		assert.Equal(t, "Flights excluded. Shared rooms.", resp.Summary)
		assert.Empty(t, resp.Status)
		assert.Equal(t, "Lisbon", planner.calls[0].arg)
	})

	t.Run("regenerate", func(t *testing.T) {
		planner := &stubPlanner{result: service.Result{
			Success:            true,
			Itinerary:          it,
			Status:             workflow.LoopLimitReached,
			RegenerationCount:  5,
			UnresolvedFeedback: []string{"Add a hiking day"},
		}}
		srv := newTestServer(t, planner, newTripStore(t))

		w := post(t, srv, "/ai/itinerary/regenerate", "bob", map[string]any{
			"trip_id": "trip-planning", "feedback": "Add a hiking day", "regeneration_count": 3,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp ItineraryResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, workflow.LoopLimitReached, resp.Status)
		assert.Equal(t, 5, resp.RegenerationCount)
		assert.Equal(t, []string{"Add a hiking day"}, resp.UnresolvedFeedback)
		assert.Equal(t, call{op: "regenerate", tripID: "trip-planning", arg: "Add a hiking day", userID: "bob", regenCount: 3}, planner.calls[0])
	})
}

func TestServiceFailureIs500(t *testing.T) {
	planner := &stubPlanner{result: service.Result{
		Error:       "Itinerary generation failed: budget exceeded",
		FailedStage: "validate_costs",
		Suggestions: []string{"Drop the dinner cruise"},
	}}
	srv := newTestServer(t, planner, newTripStore(t))

	w := post(t, srv, "/ai/itinerary/generate", "bob", map[string]any{"trip_id": "trip-planning", "destination_name": "Lisbon"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{
		"detail": "Itinerary generation failed: budget exceeded",
		"failed_stage": "validate_costs",
		"suggestions": ["Drop the dinner cruise"]
	}`, w.Body.String())
}

func TestMembershipErrorIs500(t *testing.T) {
	broken := &brokenTrips{}
	srv := newTestServer(t, &stubPlanner{}, broken)

	w := post(t, srv, "/ai/recommendations/generate", "bob", map[string]any{"trip_id": "trip-collecting"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

type brokenTrips struct{}

func (brokenTrips) IsTripMember(context.Context, string, string) (bool, error) {
	return false, errors.New("bucket offline")
}

func (brokenTrips) GetTrip(context.Context, string) (*storage.Trip, error) {
	return nil, errors.New("bucket offline")
}

func TestMembershipCache(t *testing.T) {
	store := newTripStore(t)
	checker := &countingChecker{TripStore: store}
	srv := newTestServer(t, &stubPlanner{result: service.Result{Success: true}}, checker, WithMembershipTTL(time.Minute))

	for range 3 {
		w := post(t, srv, "/ai/recommendations/generate", "bob", map[string]any{"trip_id": "trip-collecting"})
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, 1, checker.calls, "positive answers are cached")

	for range 2 {
		post(t, srv, "/ai/recommendations/generate", "mallory", map[string]any{"trip_id": "trip-collecting"})
	}
	assert.Equal(t, 3, checker.calls, "negative answers are not cached")

	require.NoError(t, store.AddMember(context.Background(), "trip-collecting", "mallory", storage.RoleMember))
	w := post(t, srv, "/ai/recommendations/generate", "mallory", map[string]any{"trip_id": "trip-collecting"})
	assert.Equal(t, http.StatusOK, w.Code, "new members are let in at once")
}

func TestRateLimit(t *testing.T) {
	planner := &stubPlanner{result: service.Result{Success: true}}
	auth, err := NewJWTAuthenticator(testSecret)
	require.NoError(t, err)
	srv := NewServer(planner, newTripStore(t), auth, WithRateLimit(0.001, 2))

	body := map[string]any{"trip_id": "trip-collecting"}
	assert.Equal(t, http.StatusOK, post(t, srv, "/ai/recommendations/generate", "bob", body).Code)
	assert.Equal(t, http.StatusOK, post(t, srv, "/ai/recommendations/generate", "bob", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, post(t, srv, "/ai/recommendations/generate", "bob", body).Code)

	assert.Equal(t, http.StatusOK, post(t, srv, "/ai/recommendations/generate", "alice", body).Code, "limits are per user")
	assert.Len(t, planner.calls, 3)
}

func TestHealthAndMetrics(t *testing.T) {
	log := &requestLog{}
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("tripsync_up 1\n"))
	})
	srv := newTestServer(t, &stubPlanner{}, newTripStore(t), WithRequestObserver(log), WithMetricsHandler(metricsHandler))

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tripsync_up")

	post(t, srv, "/ai/recommendations/generate", "", map[string]any{"trip_id": "trip-collecting"})
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, []int{http.StatusOK}, log.codes["/healthz"])
	assert.Equal(t, []int{http.StatusUnauthorized}, log.codes["/ai/recommendations/generate"])
	assert.Equal(t, []int{http.StatusNotFound}, log.codes[""])
}
