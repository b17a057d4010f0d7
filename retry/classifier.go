package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/use-agent/gallerydiscover/models"
)

// Classify maps a raw error into the ErrorCategory taxonomy RetryManager
// uses to select a policy and circuit breaker. An *models.EngineError's own
// Category is trusted as-is; anything else is inferred from the error's
// shape, falling back to CategoryDefault.
func Classify(err error) models.ErrorCategory {
	if err == nil {
		return models.CategoryDefault
	}

	var ee *models.EngineError
	if errors.As(err, &ee) {
		return ee.Category
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return models.CategoryTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return models.CategoryTimeout
		}
		return models.CategoryNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return models.CategoryRateLimit
	case strings.Contains(msg, "cors") || strings.Contains(msg, "cross-origin"):
		return models.CategoryCors
	case strings.Contains(msg, "permission") || strings.Contains(msg, "forbidden") || strings.Contains(msg, "403"):
		return models.CategoryPermission
	case strings.Contains(msg, "not found") || strings.Contains(msg, "404"):
		return models.CategoryNotFound
	case strings.Contains(msg, "extension"):
		return models.CategoryExtension
	case strings.Contains(msg, "out of memory") || strings.Contains(msg, "memory"):
		return models.CategoryMemory
	case strings.Contains(msg, "validation") || strings.Contains(msg, "invalid"):
		return models.CategoryValidation
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return models.CategoryTimeout
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network") || strings.Contains(msg, "dns"):
		return models.CategoryNetwork
	}
	return models.CategoryDefault
}

// ClassifyHTTPStatus refines classification using a response status code,
// for callers that have one available (the Fetcher port does).
func ClassifyHTTPStatus(status int) models.ErrorCategory {
	switch {
	case status == http.StatusTooManyRequests:
		return models.CategoryRateLimit
	case status == http.StatusForbidden:
		return models.CategoryPermission
	case status == http.StatusNotFound:
		return models.CategoryNotFound
	case status >= 500:
		return models.CategoryServer
	case status >= 400:
		return models.CategoryValidation
	default:
		return models.CategoryDefault
	}
}
