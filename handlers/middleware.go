package handlers

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/johnwmail/clipsync/internal/identity"
	"golang.org/x/time/rate"
)

// JWTAuth validates the Bearer token and stores the user id in the request context
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortJSON(c, http.StatusUnauthorized, "missing authorization header")
			return
		}

		token, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			abortJSON(c, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		claims, err := identity.ValidateToken(strings.TrimSpace(token), secret)
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		c.Request = c.Request.WithContext(identity.WithUserID(c.Request.Context(), claims.UserID))
		c.Next()
	}
}

// SingleUser attributes every request to one fixed user. Used when no JWT secret is set.
func SingleUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(identity.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

// currentUser returns the authenticated user of the request
func currentUser(c *gin.Context) (string, bool) {
	return identity.UserIDFromContext(c.Request.Context())
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter keeps one token bucket per client IP
type ipRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

func newIPRateLimiter(rps float64, burst int) *ipRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &ipRateLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

func (rl *ipRateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, exists := rl.visitors[ip]
	if !exists {
		rl.evictLocked(now)
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// evictLocked drops visitors idle for longer than rl.idle
func (rl *ipRateLimiter) evictLocked(now time.Time) {
	for ip, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.idle {
			delete(rl.visitors, ip)
		}
	}
}

// RateLimit limits requests per client IP. rps <= 0 disables limiting.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := newIPRateLimiter(rps, burst)
	return func(c *gin.Context) {
		if !limiter.allow(c.ClientIP()) {
			abortJSON(c, http.StatusTooManyRequests, "too many requests")
			return
		}
		c.Next()
	}
}

func abortJSON(c *gin.Context, status int, msg string) {
	c.Header("Content-Type", "application/json; charset=utf-8")
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
