package storage

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// EntityType represents the type of entity stored in a bucket.
type EntityType string

const (
	EntityTypeTrip           EntityType = "trip"
	EntityTypeTripMember     EntityType = "trip_member"
	EntityTypePreference     EntityType = "preference"
	EntityTypeRecommendation EntityType = "recommendation"
	EntityTypeItinerary      EntityType = "itinerary"
	EntityTypeProgress       EntityType = "progress"
)

// EntityTypes lists every known entity type.
var EntityTypes = []EntityType{
	EntityTypeTrip,
	EntityTypeTripMember,
	EntityTypePreference,
	EntityTypeRecommendation,
	EntityTypeItinerary,
	EntityTypeProgress,
}

// IsValid reports whether t is a known entity type.
func (t EntityType) IsValid() bool {
	for _, known := range EntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Bucket returns the bucket name for the entity type, e.g. TRIPSYNC_TRIP_MEMBER.
func (t EntityType) Bucket() string {
	return "TRIPSYNC_" + strings.ToUpper(string(t))
}

// EntityID represents a typed entity identifier.
type EntityID struct {
	Type EntityType
	ID   string
}

// String returns the string representation of the entity ID.
func (e EntityID) String() string {
	return fmt.Sprintf("%s:%s", e.Type, e.ID)
}

// ParseEntityID parses an entity ID string into its components.
func ParseEntityID(s string) (EntityID, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return EntityID{}, fmt.Errorf("invalid entity ID format: %s", s)
	}
	entityType := EntityType(parts[0])
	if !entityType.IsValid() {
		return EntityID{}, fmt.Errorf("unknown entity type: %s", parts[0])
	}
	return EntityID{Type: entityType, ID: parts[1]}, nil
}

// NewEntityID generates a new unique entity ID for the given type.
func NewEntityID(t EntityType) EntityID {
	return EntityID{
		Type: t,
		ID:   uuid.New().String(),
	}
}
