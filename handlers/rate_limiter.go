package handlers

import (
	"crypto/subtle"
	"net/http"

	"dailyvote-bot/cache"

	"github.com/gin-gonic/gin"
)

// AdminTokenHeader carries the admin token on protected routes.
const AdminTokenHeader = "X-Admin-Token"

// RateLimitMiddleware throttles requests per client IP.
func RateLimitMiddleware(limiter *cache.UserRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "Too many requests, please slow down"})
			return
		}
		c.Next()
	}
}

// AdminAuth rejects requests without the configured admin token.
// An empty token disables the protected routes entirely.
func AdminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "Admin API is disabled"})
			return
		}
		got := c.GetHeader(AdminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid admin token"})
			return
		}
		c.Next()
	}
}
