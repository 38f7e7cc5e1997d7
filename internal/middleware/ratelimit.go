package middleware

import (
	"net"
	"net/http"
	"strings"

	"reftrack/internal/services"

	"github.com/gin-gonic/gin"
)

// RateLimit throttles each client IP with the shared limiter table.
func RateLimit(limiter *services.IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(ClientIP(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}
		c.Next()
	}
}

// ClientIP prefers the Cloudflare header, then the first X-Forwarded-For hop,
// then gin's own resolution. Ports are stripped.
func ClientIP(c *gin.Context) string {
	ip := strings.TrimSpace(c.GetHeader("CF-Connecting-IP"))
	if ip == "" {
		if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
			ip = strings.TrimSpace(strings.Split(fwd, ",")[0])
		}
	}
	if ip == "" {
		ip = c.ClientIP()
	}
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return ip
}
