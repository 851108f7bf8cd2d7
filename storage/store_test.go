package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/tripsync/itinerary"
	"github.com/c360studio/tripsync/preference"
	"github.com/c360studio/tripsync/recommendation"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(newBadgerBackend(t))
}

func ptr[T any](v T) *T { return &v }

func TestStore_InsertGetQueryUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p := &Progress{TripID: "trip-1", Stage: "aggregate", Message: "done"}
	id, err := s.Insert(ctx, EntityTypeProgress, p)
	require.NoError(t, err)
	assert.Equal(t, EntityTypeProgress, id.Type)
	assert.Equal(t, id.ID, p.ID, "insert assigns the generated id")

	var got Progress
	require.NoError(t, s.Get(ctx, EntityTypeProgress, id.ID, &got))
	assert.Equal(t, "aggregate", got.Stage)

	assert.ErrorIs(t, s.Get(ctx, EntityTypeProgress, "nope", &got), ErrNotFound)

	_, err = s.Insert(ctx, EntityTypeProgress, &Progress{TripID: "trip-2", Stage: "rank"})
	require.NoError(t, err)

	all, err := s.Query(ctx, EntityTypeProgress, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	only, err := s.Query(ctx, EntityTypeProgress, fieldEquals("trip_id", "trip-2"))
	require.NoError(t, err)
	require.Len(t, only, 1)
	var p2 Progress
	require.NoError(t, json.Unmarshal(only[0], &p2))
	assert.Equal(t, "rank", p2.Stage)

	uid, err := s.Upsert(ctx, EntityTypeProgress, id.ID, &Progress{TripID: "trip-1", Stage: "polish"})
	require.NoError(t, err)
	assert.Equal(t, id, uid)
	require.NoError(t, s.Get(ctx, EntityTypeProgress, id.ID, &got))
	assert.Equal(t, "polish", got.Stage)
	assert.Equal(t, id.ID, got.ID)

	_, err = s.Upsert(ctx, EntityTypeProgress, "", &Progress{})
	assert.Error(t, err)
}

func seedTrip(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateTrip(ctx, &Trip{
		ID:             "trip-1",
		Name:           "Spring getaway",
		RoughTimeframe: "April",
		OrganizerID:    "alice",
	}))
	require.NoError(t, s.AddMember(ctx, "trip-1", "bob", RoleMember))
}

func TestStore_TripContextAndMembership(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedTrip(t, s)

	assert.ErrorIs(t, s.CreateTrip(ctx, &Trip{ID: "trip-1", Name: "dup"}), ErrExists)

	tc, err := s.LoadTripContext(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, "Spring getaway", tc.TripName)
	assert.Equal(t, TripStatusCollecting, tc.Status)
	assert.Equal(t, 2, tc.MemberCount)
	assert.Equal(t, "alice", tc.Members[0].UserID)
	assert.Equal(t, RoleOrganizer, tc.Members[0].Role)

	m := tc.Map()
	assert.Equal(t, "trip-1", m["trip_id"])
	assert.Equal(t, 2, m["member_count"])

	_, err = s.LoadTripContext(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	tests := []struct {
		user      string
		member    bool
		organizer bool
	}{
		{"alice", true, true},
		{"bob", true, false},
		{"mallory", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			member, err := s.IsTripMember(ctx, "trip-1", tt.user)
			require.NoError(t, err)
			assert.Equal(t, tt.member, member)

			org, err := s.IsTripOrganizer(ctx, "trip-1", tt.user)
			require.NoError(t, err)
			assert.Equal(t, tt.organizer, org)
		})
	}

	require.NoError(t, s.UpdateTripStatus(ctx, "trip-1", TripStatusPlanning))
	trip, err := s.GetTrip(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, TripStatusPlanning, trip.Status)
	assert.Error(t, s.UpdateTripStatus(ctx, "trip-1", "archived"))
}

func TestStore_MemberPreferences(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedTrip(t, s)

	require.NoError(t, s.SubmitPreference(ctx, "trip-1", "alice", preference.Record{
		Budget: &preference.Budget{MaxBudget: ptr(800.0)},
	}))
	require.NoError(t, s.SubmitPreference(ctx, "trip-1", "bob", preference.Record{Notes: "beach"}))
	require.NoError(t, s.SubmitPreference(ctx, "trip-2", "carol", preference.Record{}))
	time.Sleep(2 * time.Millisecond)
	// Resubmission replaces the earlier record.
	require.NoError(t, s.SubmitPreference(ctx, "trip-1", "alice", preference.Record{
		Budget: &preference.Budget{MaxBudget: ptr(600.0)},
	}))

	prefs, err := s.LoadMemberPreferences(ctx, "trip-1")
	require.NoError(t, err)
	require.Len(t, prefs, 2)
	assert.Equal(t, "bob", prefs[0].UserID)
	assert.Equal(t, "alice", prefs[1].UserID)
	assert.Equal(t, 600.0, *prefs[1].Budget.MaxBudget)

	none, err := s.LoadMemberPreferences(ctx, "trip-3")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_Recommendations(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.LoadLatestRecommendations(ctx, "trip-1")
	assert.ErrorIs(t, err, ErrNotFound)

	first, err := s.StoreRecommendations(ctx, "trip-1", recommendation.Pack{
		TripID:  "trip-1",
		Options: []recommendation.Option{{Name: "Lisbon"}},
	}, "alice")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = s.StoreRecommendations(ctx, "trip-1", recommendation.Pack{
		TripID:       "trip-1",
		Options:      []recommendation.Option{{Name: "Porto"}, {Name: "Seville"}},
		GroupSummary: map[string]string{"budget": "$400-$800"},
	}, "bob")
	require.NoError(t, err)

	latest, err := s.LoadLatestRecommendations(ctx, "trip-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, latest.ID)
	assert.Equal(t, "bob", latest.GeneratedBy)
	opt, ok := latest.Option("Seville")
	assert.True(t, ok)
	assert.Equal(t, "Seville", opt.Name)
	_, ok = latest.Option("Lisbon")
	assert.False(t, ok)
}

func TestStore_ItineraryUpsertsByTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.LoadItinerary(ctx, "trip-1")
	assert.ErrorIs(t, err, ErrNotFound)

	it := itinerary.Itinerary{
		TripID:                      "trip-1",
		DestinationName:             "Lisbon",
		TotalEstimatedCostPerPerson: 300,
		Days: []itinerary.Day{{
			DayIndex: 1,
			Morning:  []itinerary.Activity{{Title: "Tram 28", EstimatedCostPerPerson: ptr(3)}},
		}},
	}
	_, err = s.StoreItinerary(ctx, "trip-1", it, "alice", 0)
	require.NoError(t, err)

	it.TotalEstimatedCostPerPerson = 250
	_, err = s.StoreItinerary(ctx, "trip-1", it, "alice", 1)
	require.NoError(t, err)

	rec, err := s.LoadItinerary(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, "trip-1", rec.ID)
	assert.Equal(t, 1, rec.RegenerationCount)
	assert.Equal(t, 250, rec.TotalCost)
	assert.Equal(t, 3, *rec.Itinerary().Days[0].Morning[0].EstimatedCostPerPerson)

	all, err := s.Query(ctx, EntityTypeItinerary, nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_Progress(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.StoreProgress(ctx, "trip-1", "rank", "second", base.Add(time.Second)))
	require.NoError(t, s.StoreProgress(ctx, "trip-1", "aggregate", "first", base))
	require.NoError(t, s.StoreProgress(ctx, "trip-2", "aggregate", "other", base))

	events, err := s.ListProgress(ctx, "trip-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "first", events[0].Message)
	assert.Equal(t, "second", events[1].Message)
}

func TestGlobal(t *testing.T) {
	require.NoError(t, ResetGlobal())
	t.Cleanup(func() { _ = ResetGlobal() })

	a, err := Global()
	require.NoError(t, err)
	b, err := Global()
	require.NoError(t, err)
	assert.Same(t, a, b)

	require.NoError(t, a.Close())
	backend, err := OpenBadger(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	custom := NewStore(backend)
	InitGlobal(custom)
	c, err := Global()
	require.NoError(t, err)
	assert.Same(t, custom, c)
}
