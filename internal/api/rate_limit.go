package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/auth"
	"golang.org/x/time/rate"
)

// clientLimiter 单个客户端的令牌桶
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware 按用户(未识别时按 IP)限流. rps <= 0 时不限流.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}

	var mu sync.Mutex
	clients := make(map[string]*clientLimiter)
	lastCleanup := time.Now()

	return func(c *gin.Context) {
		key := c.GetString(auth.ContextKeyUserID)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}

		now := time.Now()
		mu.Lock()
		// 清理长时间不活跃的客户端
		if now.Sub(lastCleanup) > 10*time.Minute {
			for k, cl := range clients {
				if now.Sub(cl.lastSeen) > 10*time.Minute {
					delete(clients, k)
				}
			}
			lastCleanup = now
		}
		cl, ok := clients[key]
		if !ok {
			cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
			clients[key] = cl
		}
		cl.lastSeen = now
		allowed := cl.limiter.Allow()
		mu.Unlock()

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Code:    http.StatusTooManyRequests,
				Message: "too many requests",
			})
			return
		}
		c.Next()
	}
}
