// internal/api/middleware.go
package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Corphon/VogueVault/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RateLimiter implements a fixed-window limiter per key
type RateLimiter struct {
	visitors map[string]*Visitor
	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
}

// Visitor represents a client with rate limiting data
type Visitor struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter() *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*Visitor),
		stopCh:   make(chan struct{}),
	}

	go rl.cleanup(10 * time.Minute)

	return rl
}

// cleanup removes visitors whose window has passed
func (rl *RateLimiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweep(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) sweep(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, visitor := range rl.visitors {
		if now.After(visitor.Reset) {
			delete(rl.visitors, key)
			removed++
		}
	}
	return removed
}

// Stop ends the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow checks if a visitor may make a request and returns the remaining budget
func (rl *RateLimiter) Allow(key string, limit int, window time.Duration) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	visitor, exists := rl.visitors[key]

	if !exists || now.After(visitor.Reset) {
		visitor = &Visitor{
			Limit:     limit,
			Remaining: limit - 1,
			Reset:     now.Add(window),
		}
		rl.visitors[key] = visitor
		return true, visitor.Remaining, visitor.Reset
	}

	if visitor.Remaining <= 0 {
		return false, 0, visitor.Reset
	}

	visitor.Remaining--
	return true, visitor.Remaining, visitor.Reset
}

// RateLimitMiddleware creates a rate limiting middleware
func RateLimitMiddleware(rl *RateLimiter, limit int, window time.Duration, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	rh := NewResponseHelper()
	return func(c *gin.Context) {
		allowed, remaining, reset := rl.Allow(keyFunc(c), limit, window)

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", reset.Unix()))

		if !allowed {
			rh.Error(c, http.StatusTooManyRequests, ErrorRateLimited, "Rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

// ClientRateLimit limits by client IP; dropping the session cookie does not reset it
func ClientRateLimit(rl *RateLimiter, perMinute int) gin.HandlerFunc {
	return RateLimitMiddleware(rl, perMinute, time.Minute, func(c *gin.Context) string {
		return "client:" + c.ClientIP()
	})
}

// AnalysisRateLimit limits remote-analysis endpoints per session
func AnalysisRateLimit(rl *RateLimiter, perMinute int) gin.HandlerFunc {
	return RateLimitMiddleware(rl, perMinute, time.Minute, func(c *gin.Context) string {
		if sess := sessionFrom(c); sess != nil {
			return "session:" + sess.ID
		}
		return "ip:" + c.ClientIP()
	})
}

// RequestIDMiddleware tags each request with an id for log correlation
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ctxRequestID, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// RequestLogger logs each request and records it in the metrics collector
func RequestLogger(metrics *utils.APIMetrics) gin.HandlerFunc {
	logger := utils.GetLogger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		duration := time.Since(start)
		metrics.RecordAPIRequest(route, c.Request.Method, status, duration)

		fields := utils.Fields{
			"method":     c.Request.Method,
			"route":      route,
			"status":     status,
			"elapsed_ms": duration.Milliseconds(),
			"request_id": c.GetString(ctxRequestID),
		}
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", fields)
		} else {
			logger.Debug("request served", fields)
		}
	}
}

// corsMiddleware 实现跨域资源共享
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Session-Token, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
