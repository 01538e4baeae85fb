// Package middleware holds shared echo middleware.
package middleware

import (
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/iceos-ai/iceos/common/ratelimit"
)

// isInternalRequest checks if the request is from an internal service.
// Internal services set X-Internal-Service to the shared secret to bypass
// rate limits.
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

// GlobalRateLimit checks the service-wide run-start limit. Errors fail
// open so a Redis outage does not take the API down with it.
func GlobalRateLimit(rateLimiter *ratelimit.RateLimiter, limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isInternalRequest(c) {
				return next(c)
			}

			result, err := rateLimiter.CheckGlobalLimit(c.Request().Context(), limit)
			if err != nil {
				return next(c)
			}

			if !result.Allowed {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error": map[string]interface{}{
						"code":    "rate_limited",
						"message": "service is experiencing high load, try again later",
						"details": map[string]interface{}{
							"limit":               result.Limit,
							"retry_after_seconds": result.RetryAfterSeconds,
						},
					},
				})
			}

			return next(c)
		}
	}
}
