// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/dispatch-board/backend/internal/records"
	"github.com/dispatch-board/backend/internal/upstream"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// APIError represents a structured API error response
type APIError struct {
	Status     int           `json:"-"`
	RetryAfter time.Duration `json:"-"`
	Code       string        `json:"code"`
	Message    string        `json:"error"`
	Details    string        `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func withCause(e *APIError, cause error) *APIError {
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	return withCause(&APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}, cause)
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewUnauthorizedError creates a 401 for a credential the upstream rejected
func NewUnauthorizedError(message string) *APIError {
	return &APIError{
		Status:  http.StatusUnauthorized,
		Code:    "UPSTREAM_AUTH",
		Message: message,
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: message,
	}
}

// NewRateLimitedError creates a 429, carrying the upstream Retry-After when known
func NewRateLimitedError(message string, retryAfter time.Duration) *APIError {
	return &APIError{
		Status:     http.StatusTooManyRequests,
		RetryAfter: retryAfter,
		Code:       "RATE_LIMITED",
		Message:    message,
	}
}

// NewGatewayTimeoutError creates a 504 for an upstream that did not answer in time
func NewGatewayTimeoutError(message string) *APIError {
	return &APIError{
		Status:  http.StatusGatewayTimeout,
		Code:    "UPSTREAM_TIMEOUT",
		Message: message,
	}
}

// NewConfigurationError creates a 500 for missing server-side settings
func NewConfigurationError(message string) *APIError {
	return &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "CONFIGURATION_ERROR",
		Message: message,
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	return withCause(&APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}, cause)
}

// NewUpstreamError relays an upstream status the server has no special handling for
func NewUpstreamError(status int, message string) *APIError {
	return &APIError{
		Status:  status,
		Code:    "UPSTREAM_ERROR",
		Message: message,
	}
}

// positionsError maps an aircraft feed failure to the response the dashboard expects.
func positionsError(err error) *APIError {
	var ue *upstream.Error
	errors.As(err, &ue)

	switch {
	case upstream.KindOf(err) == upstream.KindConfiguration:
		return withCause(NewConfigurationError("Server configuration error: aircraft feed is not configured"), err)
	case upstream.KindOf(err) == upstream.KindAuth:
		return NewUnauthorizedError("Authentication failed: aircraft feed rejected the credentials")
	case upstream.KindOf(err) == upstream.KindRateLimited:
		return NewRateLimitedError("Rate limited by the aircraft feed", ue.RetryAfter)
	case upstream.KindOf(err) == upstream.KindTimeout || upstream.IsTimeout(err):
		return NewGatewayTimeoutError("Aircraft feed timed out")
	default:
		return NewInternalError("Failed to fetch aircraft positions", err)
	}
}

// recordsError maps a record store failure, relaying the store's own status.
func recordsError(err error) *APIError {
	var se *records.SchemaError
	if errors.As(err, &se) {
		return NewInternalError("Failed to fetch dispatch calls", se.Err)
	}

	var ue *upstream.Error
	if !errors.As(err, &ue) {
		return NewInternalError("Failed to fetch dispatch calls", err)
	}
	switch {
	case ue.Kind == upstream.KindConfiguration:
		return NewConfigurationError("Server configuration error: Missing NocoDB credentials")
	case ue.Status == http.StatusUnauthorized:
		return NewUnauthorizedError("Authentication failed: Invalid NocoDB API token")
	case ue.Status == http.StatusNotFound:
		return NewNotFoundError("Table not found: Invalid NocoDB table ID")
	case ue.Status != 0:
		return NewUpstreamError(ue.Status, "NocoDB API error: "+ue.Error())
	case ue.Kind == upstream.KindTimeout:
		return NewGatewayTimeoutError("NocoDB API error: " + ue.Error())
	default:
		return NewUpstreamError(http.StatusInternalServerError, "NocoDB API error: "+ue.Error())
	}
}

// NewErrorHandler returns the echo error handler. Details of unexpected errors
// are only included when exposeDetails is set.
// Usage: e.HTTPErrorHandler = api.NewErrorHandler(cfg.Server.ExposeErrorDetails)
func NewErrorHandler(exposeDetails bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var apiErr *APIError
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &apiErr):
		case errors.As(err, &httpErr):
			apiErr = &APIError{
				Status:  httpErr.Code,
				Code:    "HTTP_ERROR",
				Message: fmt.Sprintf("%v", httpErr.Message),
			}
		default:
			apiErr = &APIError{
				Status:  http.StatusInternalServerError,
				Code:    "UNKNOWN_ERROR",
				Message: "An unexpected error occurred",
			}
			if exposeDetails {
				apiErr.Details = err.Error()
			}
		}

		if apiErr.Status >= http.StatusInternalServerError {
			log.WithFields(log.Fields{
				"component": "api",
				"path":      c.Request().URL.Path,
				"status":    apiErr.Status,
			}).WithError(err).Error("request failed")
		}
		if apiErr.RetryAfter > 0 {
			secs := int(math.Ceil(apiErr.RetryAfter.Seconds()))
			c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
		}

		var sendErr error
		if c.Request().Method == http.MethodHead {
			sendErr = c.NoContent(apiErr.Status)
		} else {
			sendErr = c.JSON(apiErr.Status, apiErr)
		}
		if sendErr != nil {
			log.WithError(sendErr).Warn("failed to send error response")
		}
	}
}
