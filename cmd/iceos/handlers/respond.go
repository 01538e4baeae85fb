// Package handlers holds the HTTP layer: request decoding, error-to-status
// mapping, and response shaping. Business logic lives in service.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
	"github.com/iceos-ai/iceos/cmd/iceos/service"
)

// errorBody is the uniform error envelope
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// fail maps service and engine errors onto HTTP statuses with a stable
// error code vocabulary.
func fail(c echo.Context, err error) error {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return respondError(c, http.StatusBadRequest, "validation_failed", verr.Error())
	case errors.Is(err, service.ErrNotFound):
		return respondError(c, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrVersionConflict):
		return respondError(c, http.StatusConflict, "version_conflict", err.Error())
	case errors.Is(err, service.ErrNotRunning):
		return respondError(c, http.StatusConflict, "run_not_active", err.Error())
	}

	var rlerr *service.RateLimitError
	if errors.As(err, &rlerr) {
		c.Response().Header().Set("Retry-After", strconv.FormatInt(rlerr.RetryAfterSeconds, 10))
		return respondError(c, http.StatusTooManyRequests, "rate_limited", rlerr.Error())
	}

	switch sdk.KindOf(err) {
	case sdk.ErrBudgetExceeded:
		return respondError(c, http.StatusPaymentRequired, "budget_exceeded", err.Error())
	case sdk.ErrValidation, sdk.ErrCircularDependency, sdk.ErrInputUnresolved:
		return respondError(c, http.StatusBadRequest, "validation_failed", err.Error())
	case sdk.ErrRegistry:
		return respondError(c, http.StatusBadRequest, "registry_error", err.Error())
	}

	return respondError(c, http.StatusInternalServerError, "internal", err.Error())
}

func respondError(c echo.Context, status int, code, message string) error {
	return c.JSON(status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// expectedVersion reads the If-Match header carrying the lock version.
// Missing header is a 428; the caller must read before writing.
func expectedVersion(c echo.Context) (int64, bool, error) {
	raw := c.Request().Header.Get("If-Match")
	if raw == "" {
		return 0, false, respondError(c, http.StatusPreconditionRequired, "precondition_required",
			"If-Match header with the current lock_version is required")
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, respondError(c, http.StatusBadRequest, "validation_failed",
			"If-Match must be the integer lock_version")
	}
	return version, true, nil
}
