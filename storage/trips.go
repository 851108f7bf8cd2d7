package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/c360studio/tripsync/itinerary"
	"github.com/c360studio/tripsync/preference"
	"github.com/c360studio/tripsync/recommendation"
)

// TripStatus is the lifecycle stage of a trip.
type TripStatus string

const (
	TripStatusCollecting   TripStatus = "collecting"
	TripStatusRecommending TripStatus = "recommending"
	TripStatusPlanning     TripStatus = "planning"
	TripStatusFinalized    TripStatus = "finalized"
)

// IsValid reports whether s is a known trip status.
func (s TripStatus) IsValid() bool {
	switch s {
	case TripStatusCollecting, TripStatusRecommending, TripStatusPlanning, TripStatusFinalized:
		return true
	}
	return false
}

// Member roles.
const (
	RoleOrganizer = "organizer"
	RoleMember    = "member"
)

// Trip is a group trip being planned.
type Trip struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Status         TripStatus `json:"status"`
	RoughTimeframe string     `json:"rough_timeframe,omitempty"`
	OrganizerID    string     `json:"organizer_id"`
	CreatedAt      time.Time  `json:"created_at"`
}

// SetID implements identified.
func (t *Trip) SetID(id string) { t.ID = id }

// TripMember links a user to a trip.
type TripMember struct {
	ID     string `json:"id"`
	TripID string `json:"trip_id"`
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// SetID implements identified.
func (m *TripMember) SetID(id string) { m.ID = id }

// Preference is one member's submitted preferences for a trip.
type Preference struct {
	ID          string            `json:"id"`
	TripID      string            `json:"trip_id"`
	UserID      string            `json:"user_id"`
	Data        preference.Record `json:"data"`
	SubmittedAt time.Time         `json:"submitted_at"`
}

// SetID implements identified.
func (p *Preference) SetID(id string) { p.ID = id }

// Recommendation is a stored destination recommendations pack.
type Recommendation struct {
	ID           string                  `json:"id"`
	TripID       string                  `json:"trip_id"`
	Options      []recommendation.Option `json:"options"`
	GroupSummary map[string]string       `json:"group_summary,omitempty"`
	Conflicts    []string                `json:"conflicts,omitempty"`
	GeneratedBy  string                  `json:"generated_by"`
	GeneratedAt  time.Time               `json:"generated_at"`
}

// SetID implements identified.
func (r *Recommendation) SetID(id string) { r.ID = id }

// Option returns the option with the given destination name.
func (r *Recommendation) Option(name string) (recommendation.Option, bool) {
	for _, opt := range r.Options {
		if opt.Name == name {
			return opt, true
		}
	}
	return recommendation.Option{}, false
}

// ItineraryRecord is the stored itinerary of a trip. There is at most one per
// trip, keyed by trip id.
type ItineraryRecord struct {
	ID                string          `json:"id"`
	TripID            string          `json:"trip_id"`
	DestinationName   string          `json:"destination_name"`
	Days              []itinerary.Day `json:"days"`
	TotalCost         int             `json:"total_cost"`
	Assumptions       []string        `json:"assumptions,omitempty"`
	Sources           []string        `json:"sources,omitempty"`
	GeneratedBy       string          `json:"generated_by"`
	GeneratedAt       time.Time       `json:"generated_at"`
	RegenerationCount int             `json:"regeneration_count"`
}

// SetID implements identified.
func (r *ItineraryRecord) SetID(id string) { r.ID = id }

// Itinerary converts the record back to the domain shape.
func (r *ItineraryRecord) Itinerary() itinerary.Itinerary {
	return itinerary.Itinerary{
		TripID:                      r.TripID,
		DestinationName:             r.DestinationName,
		TotalEstimatedCostPerPerson: r.TotalCost,
		Assumptions:                 r.Assumptions,
		Days:                        r.Days,
		Sources:                     r.Sources,
	}
}

// Progress is a persisted pipeline progress message.
type Progress struct {
	ID        string    `json:"id"`
	TripID    string    `json:"trip_id"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// SetID implements identified.
func (p *Progress) SetID(id string) { p.ID = id }

// TripContext is the trip summary seeded into a pipeline run.
type TripContext struct {
	TripID         string       `json:"trip_id"`
	TripName       string       `json:"trip_name"`
	Status         TripStatus   `json:"status"`
	RoughTimeframe string       `json:"rough_timeframe,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	Members        []TripMember `json:"members"`
	MemberCount    int          `json:"member_count"`
}

// Map returns the context as a generic map.
func (c *TripContext) Map() map[string]any {
	members := make([]map[string]any, 0, len(c.Members))
	for _, m := range c.Members {
		members = append(members, map[string]any{"user_id": m.UserID, "role": m.Role})
	}
	return map[string]any{
		"trip_id":         c.TripID,
		"trip_name":       c.TripName,
		"status":          string(c.Status),
		"rough_timeframe": c.RoughTimeframe,
		"created_at":      c.CreatedAt.UTC().Format(time.RFC3339),
		"members":         members,
		"member_count":    c.MemberCount,
	}
}

func memberKey(tripID, userID string) string {
	return tripID + "." + userID
}

// CreateTrip stores a new trip. An empty ID is generated; an existing ID
// returns ErrExists. The organizer is added as a member.
func (s *Store) CreateTrip(ctx context.Context, trip *Trip) error {
	if trip.Status == "" {
		trip.Status = TripStatusCollecting
	}
	if !trip.Status.IsValid() {
		return fmt.Errorf("invalid trip status %q", trip.Status)
	}
	if trip.CreatedAt.IsZero() {
		trip.CreatedAt = time.Now().UTC()
	}

	if trip.ID == "" {
		if _, err := s.Insert(ctx, EntityTypeTrip, trip); err != nil {
			return err
		}
	} else {
		data, err := json.Marshal(trip)
		if err != nil {
			return fmt.Errorf("marshal trip: %w", err)
		}
		if err := s.backend.Create(ctx, EntityTypeTrip.Bucket(), trip.ID, data); err != nil {
			return err
		}
	}

	if trip.OrganizerID != "" {
		return s.AddMember(ctx, trip.ID, trip.OrganizerID, RoleOrganizer)
	}
	return nil
}

// GetTrip loads a trip by id.
func (s *Store) GetTrip(ctx context.Context, tripID string) (*Trip, error) {
	var trip Trip
	if err := s.Get(ctx, EntityTypeTrip, tripID, &trip); err != nil {
		return nil, err
	}
	return &trip, nil
}

// UpdateTripStatus moves a trip to status.
func (s *Store) UpdateTripStatus(ctx context.Context, tripID string, status TripStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid trip status %q", status)
	}
	trip, err := s.GetTrip(ctx, tripID)
	if err != nil {
		return err
	}
	trip.Status = status
	_, err = s.Upsert(ctx, EntityTypeTrip, tripID, trip)
	return err
}

// AddMember adds or updates a trip membership.
func (s *Store) AddMember(ctx context.Context, tripID, userID, role string) error {
	if role != RoleOrganizer {
		role = RoleMember
	}
	m := &TripMember{TripID: tripID, UserID: userID, Role: role}
	_, err := s.Upsert(ctx, EntityTypeTripMember, memberKey(tripID, userID), m)
	return err
}

// ListMembers returns a trip's members ordered by user id.
func (s *Store) ListMembers(ctx context.Context, tripID string) ([]TripMember, error) {
	raws, err := s.Query(ctx, EntityTypeTripMember, fieldEquals("trip_id", tripID))
	if err != nil {
		return nil, err
	}
	members := make([]TripMember, 0, len(raws))
	for _, raw := range raws {
		var m TripMember
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members, nil
}

// SubmitPreference stores a member's preferences, replacing earlier ones.
func (s *Store) SubmitPreference(ctx context.Context, tripID, userID string, rec preference.Record) error {
	if rec.UserID == "" {
		rec.UserID = userID
	}
	p := &Preference{
		TripID:      tripID,
		UserID:      userID,
		Data:        rec,
		SubmittedAt: time.Now().UTC(),
	}
	_, err := s.Upsert(ctx, EntityTypePreference, memberKey(tripID, userID), p)
	return err
}

// LoadTripContext returns the trip summary and its members.
func (s *Store) LoadTripContext(ctx context.Context, tripID string) (*TripContext, error) {
	trip, err := s.GetTrip(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("load trip %s: %w", tripID, err)
	}
	members, err := s.ListMembers(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("load members of %s: %w", tripID, err)
	}
	return &TripContext{
		TripID:         trip.ID,
		TripName:       trip.Name,
		Status:         trip.Status,
		RoughTimeframe: trip.RoughTimeframe,
		CreatedAt:      trip.CreatedAt,
		Members:        members,
		MemberCount:    len(members),
	}, nil
}

// LoadMemberPreferences returns the submitted preference records of a trip,
// oldest submission first.
func (s *Store) LoadMemberPreferences(ctx context.Context, tripID string) ([]preference.Record, error) {
	raws, err := s.Query(ctx, EntityTypePreference, fieldEquals("trip_id", tripID))
	if err != nil {
		return nil, fmt.Errorf("load preferences of %s: %w", tripID, err)
	}
	prefs := make([]Preference, 0, len(raws))
	for _, raw := range raws {
		var p Preference
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		prefs = append(prefs, p)
	}
	sort.SliceStable(prefs, func(i, j int) bool {
		if !prefs[i].SubmittedAt.Equal(prefs[j].SubmittedAt) {
			return prefs[i].SubmittedAt.Before(prefs[j].SubmittedAt)
		}
		return prefs[i].UserID < prefs[j].UserID
	})

	records := make([]preference.Record, 0, len(prefs))
	for _, p := range prefs {
		rec := p.Data
		if rec.UserID == "" {
			rec.UserID = p.UserID
		}
		records = append(records, rec)
	}
	return records, nil
}

// LoadLatestRecommendations returns the most recently generated
// recommendations of a trip, or ErrNotFound.
func (s *Store) LoadLatestRecommendations(ctx context.Context, tripID string) (*Recommendation, error) {
	raws, err := s.Query(ctx, EntityTypeRecommendation, fieldEquals("trip_id", tripID))
	if err != nil {
		return nil, fmt.Errorf("load recommendations of %s: %w", tripID, err)
	}
	var latest *Recommendation
	for _, raw := range raws {
		var r Recommendation
		if err := json.Unmarshal(raw, &r); err != nil {
			continue
		}
		if latest == nil || r.GeneratedAt.After(latest.GeneratedAt) {
			latest = &r
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

// StoreRecommendations persists a final recommendations pack.
func (s *Store) StoreRecommendations(ctx context.Context, tripID string, pack recommendation.Pack, generatedBy string) (*Recommendation, error) {
	rec := &Recommendation{
		TripID:       tripID,
		Options:      pack.Options,
		GroupSummary: pack.GroupSummary,
		Conflicts:    pack.Conflicts,
		GeneratedBy:  generatedBy,
		GeneratedAt:  time.Now().UTC(),
	}
	if _, err := s.Insert(ctx, EntityTypeRecommendation, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// LoadItinerary returns the stored itinerary of a trip, or ErrNotFound.
func (s *Store) LoadItinerary(ctx context.Context, tripID string) (*ItineraryRecord, error) {
	var rec ItineraryRecord
	if err := s.Get(ctx, EntityTypeItinerary, tripID, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// StoreItinerary replaces the itinerary of a trip.
func (s *Store) StoreItinerary(ctx context.Context, tripID string, it itinerary.Itinerary, generatedBy string, regenCount int) (*ItineraryRecord, error) {
	rec := &ItineraryRecord{
		TripID:            tripID,
		DestinationName:   it.DestinationName,
		Days:              it.Days,
		TotalCost:         it.TotalEstimatedCostPerPerson,
		Assumptions:       it.Assumptions,
		Sources:           it.Sources,
		GeneratedBy:       generatedBy,
		GeneratedAt:       time.Now().UTC(),
		RegenerationCount: regenCount,
	}
	if _, err := s.Upsert(ctx, EntityTypeItinerary, tripID, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// StoreProgress appends a progress message for a trip.
func (s *Store) StoreProgress(ctx context.Context, tripID, stage, message string, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	p := &Progress{
		TripID:    tripID,
		Stage:     stage,
		Message:   message,
		CreatedAt: at.UTC(),
	}
	_, err := s.Insert(ctx, EntityTypeProgress, p)
	return err
}

// ListProgress returns a trip's progress messages in creation order.
func (s *Store) ListProgress(ctx context.Context, tripID string) ([]Progress, error) {
	raws, err := s.Query(ctx, EntityTypeProgress, fieldEquals("trip_id", tripID))
	if err != nil {
		return nil, err
	}
	out := make([]Progress, 0, len(raws))
	for _, raw := range raws {
		var p Progress
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// IsTripMember reports whether userID belongs to the trip.
func (s *Store) IsTripMember(ctx context.Context, tripID, userID string) (bool, error) {
	var m TripMember
	err := s.Get(ctx, EntityTypeTripMember, memberKey(tripID, userID), &m)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IsTripOrganizer reports whether userID organizes the trip.
func (s *Store) IsTripOrganizer(ctx context.Context, tripID, userID string) (bool, error) {
	var m TripMember
	err := s.Get(ctx, EntityTypeTripMember, memberKey(tripID, userID), &m)
	if err == nil {
		return m.Role == RoleOrganizer, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	trip, err := s.GetTrip(ctx, tripID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return trip.OrganizerID == userID, nil
}
