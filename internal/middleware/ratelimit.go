package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter 按来源IP限流。状态持有在实例里而不是包级变量，
// 每个挂载点一份独立计数
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// NewRateLimiter 创建限流器
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Middleware 返回gin中间件
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		rl.mu.Lock()

		times := rl.requests[ip]
		var fresh []time.Time
		for _, t := range times {
			if now.Sub(t) < rl.window {
				fresh = append(fresh, t)
			}
		}

		if len(fresh) >= rl.limit {
			rl.mu.Unlock()
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, please try later"})
			c.Abort()
			return
		}

		fresh = append(fresh, now)
		rl.requests[ip] = fresh
		rl.mu.Unlock()

		c.Next()
	}
}

// StartCleanup 周期清理过期条目
func (rl *RateLimiter) StartCleanup(interval time.Duration) {
	go func() {
		for {
			time.Sleep(interval)
			rl.mu.Lock()
			now := time.Now()
			for ip, times := range rl.requests {
				var fresh []time.Time
				for _, t := range times {
					if now.Sub(t) < rl.window {
						fresh = append(fresh, t)
					}
				}
				if len(fresh) == 0 {
					delete(rl.requests, ip)
				} else {
					rl.requests[ip] = fresh
				}
			}
			rl.mu.Unlock()
		}
	}()
}
