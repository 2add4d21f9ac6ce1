package mw

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyedRateLimiter stores a rate limiter for each caller.
type KeyedRateLimiter struct {
	keys map[string]*rate.Limiter
	mu   *sync.RWMutex
	r    rate.Limit
	b    int
}

// NewKeyedRateLimiter creates a new KeyedRateLimiter.
func NewKeyedRateLimiter(r rate.Limit, b int) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		keys: make(map[string]*rate.Limiter),
		mu:   &sync.RWMutex{},
		r:    r,
		b:    b,
	}
}

// add creates the limiter for key unless a concurrent caller already did.
func (k *KeyedRateLimiter) add(key string) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	if limiter, exists := k.keys[key]; exists {
		return limiter
	}
	limiter := rate.NewLimiter(k.r, k.b)
	k.keys[key] = limiter
	return limiter
}

// GetLimiter returns the rate limiter for key.
func (k *KeyedRateLimiter) GetLimiter(key string) *rate.Limiter {
	k.mu.RLock()
	limiter, exists := k.keys[key]
	k.mu.RUnlock()

	if !exists {
		return k.add(key)
	}
	return limiter
}

// callerKey is the authenticated user when Auth ran first, the client IP otherwise.
func callerKey(c *gin.Context) string {
	if actor, ok := ActorFrom(c); ok {
		return "user:" + actor.UserID
	}
	return "ip:" + c.ClientIP()
}

// RateLimiter is a middleware for per-caller rate limiting.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	limiter := NewKeyedRateLimiter(r, b)
	return func(c *gin.Context) {
		if !limiter.GetLimiter(callerKey(c)).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
