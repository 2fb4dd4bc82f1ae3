// Package httpkit provides HTTP middleware utilities.
package httpkit

import (
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	"loancrm_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RequestTimer logs every request with its latency.
func RequestTimer(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := float64(time.Since(start).Microseconds()) / 1000.0
		log.HTTPRequest(c.Request.Method, c.Request.URL.Path, c.Writer.Status(), latency, c.ClientIP())
	}
}

// APIKeyAuth validates the X-Webhook-API-Key header against the configured key
// using a constant-time comparison. When no key is configured the middleware
// rejects all calls.
func APIKeyAuth(expectedKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader("X-Webhook-API-Key")
		if expectedKey == "" || provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(expectedKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}
		c.Next()
	}
}

// RateLimit applies a per-client-IP token bucket to the route.
// Stale limiters are pruned lazily when the map grows.
func RateLimit(perSecond float64, burst int, log *logger.Logger) gin.HandlerFunc {
	type client struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	var (
		mu      sync.Mutex
		clients = make(map[string]*client)
	)

	const maxClients = 10000

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		entry, ok := clients[ip]
		if !ok {
			if len(clients) >= maxClients {
				cutoff := time.Now().Add(-10 * time.Minute)
				for key, cl := range clients {
					if cl.lastSeen.Before(cutoff) {
						delete(clients, key)
					}
				}
			}
			entry = &client{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
			clients[ip] = entry
		}
		entry.lastSeen = time.Now()
		allowed := entry.limiter.Allow()
		mu.Unlock()

		if !allowed {
			log.RateLimitExceeded(ip, c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
