package middleware

import (
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/flowmesh/flowmesh/common/ratelimit"
)

// isInternalRequest checks if the request is from an internal service.
// Internal services set X-Internal-Service header to bypass rate limits.
func isInternalRequest(c echo.Context) bool {
	internalHeader := c.Request().Header.Get("X-Internal-Service")
	if internalHeader == "" {
		return false
	}

	expectedSecret := os.Getenv("INTERNAL_SERVICE_SECRET")
	if expectedSecret == "" {
		return false
	}

	return internalHeader == expectedSecret
}

// GlobalRateLimitMiddleware checks the service-wide request limit before each
// API call. Redis errors fail open so a degraded Redis never takes the API
// down with it.
func GlobalRateLimitMiddleware(limiter *ratelimit.RedisLimiter, limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isInternalRequest(c) {
				return next(c)
			}

			result, err := limiter.CheckGlobalLimit(c.Request().Context(), limit)
			if err != nil {
				return next(c)
			}

			if !result.Allowed {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":   "global_rate_limit_exceeded",
					"message": "Service is experiencing high load. Please try again later.",
					"details": map[string]interface{}{
						"limit":               result.Limit,
						"window":              "60 seconds",
						"retry_after_seconds": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}

// ClientRateLimitMiddleware checks per-client limits keyed by remote IP.
// Fails open on Redis errors, like the global limiter.
func ClientRateLimitMiddleware(limiter *ratelimit.RedisLimiter, limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isInternalRequest(c) {
				return next(c)
			}

			client := c.RealIP()
			if client == "" {
				return next(c)
			}

			result, err := limiter.CheckClientLimit(c.Request().Context(), client, limit)
			if err != nil {
				return next(c)
			}

			if !result.Allowed {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":   "client_rate_limit_exceeded",
					"message": "You have exceeded your request quota. Please wait before trying again.",
					"details": map[string]interface{}{
						"limit":               result.Limit,
						"window":              "60 seconds",
						"current_count":       result.CurrentCount,
						"retry_after_seconds": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}
