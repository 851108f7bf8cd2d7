// Package api serves the generation operations over HTTP with gin.
//
// Every /ai route requires a bearer JWT. Callers must belong to the trip,
// the trip must be in a status that allows the operation, and each user is
// rate limited independently.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/c360studio/tripsync/service"
	"github.com/c360studio/tripsync/storage"
)

// Planner runs the generation operations. *service.Agent implements it.
type Planner interface {
	GenerateRecommendations(ctx context.Context, tripID, userID string) service.Result
	GenerateItinerary(ctx context.Context, tripID, destination, userID string) service.Result
	RegenerateItinerary(ctx context.Context, tripID, feedback, userID string, regenCount int) service.Result
}

// TripStore answers the authorization and status checks.
type TripStore interface {
	MembershipChecker
	GetTrip(ctx context.Context, tripID string) (*storage.Trip, error)
}

// RequestObserver counts served requests by route and status code.
type RequestObserver interface {
	ObserveRequest(route string, code int)
}

// Server wires the routes onto a gin engine.
type Server struct {
	engine  *gin.Engine
	planner Planner
	trips   TripStore
	members *membershipCache
	limiter *userLimiter
	logger  *slog.Logger

	observer       RequestObserver
	metricsHandler http.Handler
	rps            float64
	burst          int
	membershipTTL  time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRequestObserver records every response.
func WithRequestObserver(o RequestObserver) Option {
	return func(s *Server) {
		s.observer = o
	}
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

// WithRateLimit allows each user rps generation requests per second with
// the given burst. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		s.rps = rps
		s.burst = burst
	}
}

// WithMembershipTTL caches positive membership checks for d. Zero disables
// the cache.
func WithMembershipTTL(d time.Duration) Option {
	return func(s *Server) {
		s.membershipTTL = d
	}
}

// NewServer builds the HTTP surface.
func NewServer(planner Planner, trips TripStore, auth Authenticator, opts ...Option) *Server {
	s := &Server{
		planner:       planner,
		trips:         trips,
		logger:        slog.Default(),
		rps:           1,
		burst:         5,
		membershipTTL: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.members = newMembershipCache(trips, s.membershipTTL)

	engine := gin.New()
	engine.Use(gin.Recovery(), s.logRequests())
	if s.observer != nil {
		engine.Use(s.observeRequests())
	}

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metricsHandler != nil {
		engine.GET("/metrics", gin.WrapH(s.metricsHandler))
	}

	ai := engine.Group("/ai")
	ai.Use(AuthMiddleware(auth))
	if s.rps > 0 {
		s.limiter = newUserLimiter(s.rps, s.burst)
		ai.Use(s.limiter.middleware())
	}
	{
		ai.POST("/recommendations/generate", s.generateRecommendations)
		ai.POST("/itinerary/generate", s.generateItinerary)
		ai.POST("/itinerary/regenerate", s.regenerateItinerary)
	}

	s.engine = engine
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) observeRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.observer.ObserveRequest(c.FullPath(), c.Writer.Status())
	}
}
