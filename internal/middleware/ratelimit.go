package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/diabetes-risk-fusion/internal/domain"
)

// maxTrackedClients bounds the per-client limiter table.
const maxTrackedClients = 10000

// RateLimit allows each client IP limit requests per period, with bursts up
// to limit. Idle clients are forgotten after one period. A non-positive
// limit disables limiting.
func RateLimit(limit int, period time.Duration) gin.HandlerFunc {
	if limit <= 0 || period <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	every := rate.Every(period / time.Duration(limit))
	clients := expirable.NewLRU[string, *rate.Limiter](maxTrackedClients, nil, period)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter, ok := clients.Get(ip)
		if !ok {
			limiter = rate.NewLimiter(every, limit)
			clients.Add(ip, limiter)
		}

		if !limiter.Allow() {
			c.Header("Retry-After", strconv.Itoa(int(period.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, domain.NewServiceError(
				domain.ErrCodeRateLimit,
				"rate limit exceeded",
				"",
				GetRequestID(c),
			))
			return
		}

		c.Next()
	}
}
