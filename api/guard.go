package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// limiterIdle is how long an unused per-user limiter is kept.
const limiterIdle = 10 * time.Minute

// userLimiter hands out one token bucket per user.
type userLimiter struct {
	limit   rate.Limit
	burst   int
	buckets *gocache.Cache
}

func newUserLimiter(rps float64, burst int) *userLimiter {
	if burst < 1 {
		burst = 1
	}
	return &userLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		buckets: gocache.New(limiterIdle, limiterIdle),
	}
}

func (l *userLimiter) allow(userID string) bool {
	if v, ok := l.buckets.Get(userID); ok {
		l.buckets.SetDefault(userID, v)
		return v.(*rate.Limiter).Allow()
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	if err := l.buckets.Add(userID, lim, gocache.DefaultExpiration); err != nil {
		// Lost the race; use the winner.
		if v, ok := l.buckets.Get(userID); ok {
			lim = v.(*rate.Limiter)
		}
	}
	return lim.Allow()
}

// middleware must run after AuthMiddleware.
func (l *userLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := IdentityFrom(c)
		if id != nil && !l.allow(id.UserID) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"detail": "Too many generation requests. Please wait before trying again.",
			})
			return
		}
		c.Next()
	}
}

// MembershipChecker reports whether a user belongs to a trip.
type MembershipChecker interface {
	IsTripMember(ctx context.Context, tripID, userID string) (bool, error)
}

// membershipCache remembers positive membership answers for ttl. Negative
// answers always go to the checker so newly added members are let in at once.
type membershipCache struct {
	checker MembershipChecker
	ttl     time.Duration
	entries *gocache.Cache
}

func newMembershipCache(checker MembershipChecker, ttl time.Duration) *membershipCache {
	return &membershipCache{
		checker: checker,
		ttl:     ttl,
		entries: gocache.New(ttl, 2*ttl),
	}
}

func (m *membershipCache) IsTripMember(ctx context.Context, tripID, userID string) (bool, error) {
	if m.ttl <= 0 {
		return m.checker.IsTripMember(ctx, tripID, userID)
	}
	key := tripID + "\x00" + userID
	if _, ok := m.entries.Get(key); ok {
		return true, nil
	}
	ok, err := m.checker.IsTripMember(ctx, tripID, userID)
	if err != nil {
		return false, err
	}
	if ok {
		m.entries.SetDefault(key, true)
	}
	return ok, nil
}
