package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter is a fixed-window limiter keyed by operator subject or client IP.
type RateLimiter struct {
	requests map[string]*window
	mu       sync.Mutex
	rate     int
	window   time.Duration
	stopCh   chan struct{}
	once     sync.Once
}

type window struct {
	remaining int
	startedAt time.Time
}

func NewRateLimiter(rate int, every time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string]*window),
		rate:     rate,
		window:   every,
		stopCh:   make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(rl.key(c), time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": rl.window.Seconds(),
			})
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) key(c *gin.Context) string {
	if subject, ok := c.Get("subject"); ok {
		return fmt.Sprintf("sub:%v", subject)
	}
	return "ip:" + c.ClientIP()
}

func (rl *RateLimiter) allow(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.requests[key]
	if !ok || now.Sub(w.startedAt) > rl.window {
		rl.requests[key] = &window{remaining: rl.rate - 1, startedAt: now}
		return rl.rate > 0
	}

	if w.remaining > 0 {
		w.remaining--
		return true
	}

	return false
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for key, w := range rl.requests {
				if now.Sub(w.startedAt) > rl.window*2 {
					delete(rl.requests, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}
