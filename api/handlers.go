package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/c360studio/tripsync/itinerary"
	"github.com/c360studio/tripsync/recommendation"
	"github.com/c360studio/tripsync/service"
	"github.com/c360studio/tripsync/storage"
	"github.com/c360studio/tripsync/workflow"
)

// GenerateRecommendationsRequest is the body of POST /ai/recommendations/generate.
type GenerateRecommendationsRequest struct {
	TripID string `json:"trip_id" binding:"required"`
}

// GenerateRecommendationsResponse lists the recommended destinations.
type GenerateRecommendationsResponse struct {
	TripID                       string                  `json:"trip_id"`
	Destinations                 []recommendation.Option `json:"destinations"`
	GeneratedAt                  string                  `json:"generated_at"`
	AggregatedPreferencesSummary map[string]string       `json:"aggregated_preferences_summary,omitempty"`
}

// GenerateItineraryRequest is the body of POST /ai/itinerary/generate.
type GenerateItineraryRequest struct {
	TripID          string `json:"trip_id" binding:"required"`
	DestinationName string `json:"destination_name" binding:"required"`
}

// RegenerateItineraryRequest is the body of POST /ai/itinerary/regenerate.
type RegenerateItineraryRequest struct {
	TripID            string `json:"trip_id" binding:"required"`
	Feedback          string `json:"feedback" binding:"required,min=1,max=1000"`
	RegenerationCount int    `json:"regeneration_count" binding:"gte=0"`
}

// ItineraryResponse is returned by both itinerary routes. The regeneration
// fields are only set by /ai/itinerary/regenerate.
type ItineraryResponse struct {
	TripID          string          `json:"trip_id"`
	DestinationName string          `json:"destination_name"`
	Days            []itinerary.Day `json:"days"`
	TotalCost       int             `json:"total_cost"`
	TripLengthDays  int             `json:"trip_length_days"`
	GeneratedAt     string          `json:"generated_at"`
	Summary         string          `json:"summary,omitempty"`

	Status             workflow.LoopStatus `json:"status,omitempty"`
	RegenerationCount  int                 `json:"regeneration_count,omitempty"`
	UnresolvedFeedback []string            `json:"unresolved_feedback,omitempty"`
	Suggestions        []string            `json:"suggestions,omitempty"`
}

func (s *Server) generateRecommendations(c *gin.Context) {
	var req GenerateRecommendationsRequest
	if !bind(c, &req) {
		return
	}
	userID := IdentityFrom(c).UserID
	if !s.authorize(c, req.TripID, userID, "generate recommendations") {
		return
	}
	if !s.checkStatus(c, req.TripID, func(st storage.TripStatus) string {
		if st == storage.TripStatusCollecting || st == storage.TripStatusRecommending {
			return ""
		}
		return fmt.Sprintf("Cannot generate recommendations for trip in '%s' status. Trip must be in 'collecting' or 'recommending' status.", st)
	}) {
		return
	}

	result := s.planner.GenerateRecommendations(c.Request.Context(), req.TripID, userID)
	if !result.Success {
		s.fail(c, result, "Unknown error during recommendation generation")
		return
	}

	resp := GenerateRecommendationsResponse{
		TripID:      req.TripID,
		GeneratedAt: formatTime(result.GeneratedAt),
	}
	if pack := result.Recommendations; pack != nil {
		resp.Destinations = pack.Options
		resp.AggregatedPreferencesSummary = pack.GroupSummary
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) generateItinerary(c *gin.Context) {
	var req GenerateItineraryRequest
	if !bind(c, &req) {
		return
	}
	userID := IdentityFrom(c).UserID
	if !s.authorize(c, req.TripID, userID, "generate an itinerary") {
		return
	}
	if !s.checkStatus(c, req.TripID, func(st storage.TripStatus) string {
		if st == storage.TripStatusPlanning {
			return ""
		}
		return fmt.Sprintf("Cannot generate itinerary for trip in '%s' status. Trip must be in 'planning' status (destination selected).", st)
	}) {
		return
	}

	result := s.planner.GenerateItinerary(c.Request.Context(), req.TripID, req.DestinationName, userID)
	if !result.Success {
		s.fail(c, result, "Unknown error during itinerary generation")
		return
	}
	resp := itineraryResponse(req.TripID, result)
	if resp.DestinationName == "" {
		resp.DestinationName = req.DestinationName
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) regenerateItinerary(c *gin.Context) {
	var req RegenerateItineraryRequest
	if !bind(c, &req) {
		return
	}
	userID := IdentityFrom(c).UserID
	if !s.authorize(c, req.TripID, userID, "regenerate the itinerary") {
		return
	}
	if !s.checkStatus(c, req.TripID, func(st storage.TripStatus) string {
		if st == storage.TripStatusPlanning {
			return ""
		}
		return fmt.Sprintf("Cannot regenerate itinerary for trip in '%s' status. Trip must be in 'planning' status.", st)
	}) {
		return
	}

	result := s.planner.RegenerateItinerary(c.Request.Context(), req.TripID, req.Feedback, userID, req.RegenerationCount)
	if !result.Success {
		s.fail(c, result, "Unknown error during itinerary regeneration")
		return
	}
	resp := itineraryResponse(req.TripID, result)
	resp.Status = result.Status
	resp.RegenerationCount = result.RegenerationCount
	resp.UnresolvedFeedback = result.UnresolvedFeedback
	resp.Suggestions = result.Suggestions
	c.JSON(http.StatusOK, resp)
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return false
	}
	return true
}

// authorize answers 403 for non-members.
func (s *Server) authorize(c *gin.Context, tripID, userID, action string) bool {
	ok, err := s.members.IsTripMember(c.Request.Context(), tripID, userID)
	if err != nil {
		s.logger.Error("Membership check failed", "trip_id", tripID, "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to verify trip membership"})
		return false
	}
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"detail": "You must be a member of this trip to " + action})
		return false
	}
	return true
}

// checkStatus answers 404 for a missing trip and 400 when reject returns a
// message for the trip's status.
func (s *Server) checkStatus(c *gin.Context, tripID string, reject func(storage.TripStatus) string) bool {
	trip, err := s.trips.GetTrip(c.Request.Context(), tripID)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Trip not found"})
		return false
	}
	if err != nil {
		s.logger.Error("Trip lookup failed", "trip_id", tripID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to load trip"})
		return false
	}
	if msg := reject(trip.Status); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": msg})
		return false
	}
	return true
}

func (s *Server) fail(c *gin.Context, result service.Result, fallback string) {
	detail := result.Error
	if detail == "" {
		detail = fallback
	}
	body := gin.H{"detail": detail}
	if result.FailedStage != "" {
		body["failed_stage"] = result.FailedStage
	}
	if len(result.Suggestions) > 0 {
		body["suggestions"] = result.Suggestions
	}
	c.JSON(http.StatusInternalServerError, body)
}

func itineraryResponse(tripID string, result service.Result) ItineraryResponse {
	resp := ItineraryResponse{
		TripID:      tripID,
		GeneratedAt: formatTime(result.GeneratedAt),
	}
	if it := result.Itinerary; it != nil {
		resp.DestinationName = it.DestinationName
		resp.Days = it.Days
		resp.TotalCost = it.TotalEstimatedCostPerPerson
		resp.TripLengthDays = len(it.Days)
		resp.Summary = strings.Join(it.Assumptions, " ")
	}
	return resp
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
