package services

import (
	"context"
	"errors"
	"strings"

	domain "github.com/khobz-app/checkout/internal/domain"
)

// BackendError is a structured failure from the commerce backend. Code is
// populated when the backend returned a machine-readable code; Message keeps
// the raw prose for the legacy substring heuristics.
type BackendError struct {
	Code    string
	Message string
	// Retryable marks transient transport-level failures.
	Retryable bool
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Backend error codes the orchestrator understands.
const (
	CodeInsufficientStock = "insufficient_stock"
	CodeZoneRestricted    = "zone_restricted"
	CodeStoreClosed       = "store_closed"
)

// ClassifyCalculationFailure buckets a recalculation failure. Structured
// codes win; the substring heuristics only cover legacy prose responses.
func ClassifyCalculationFailure(err error) domain.FailureKind {
	if err == nil {
		return ""
	}

	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		switch backendErr.Code {
		case CodeInsufficientStock:
			return domain.FailureStock
		case CodeZoneRestricted:
			return domain.FailureZone
		}
		if backendErr.Retryable {
			return domain.FailureTransient
		}
		return classifyByMessage(backendErr.Message)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.FailureTransient
	}
	return classifyByMessage(err.Error())
}

func classifyByMessage(message string) domain.FailureKind {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "stock") || strings.Contains(lower, "insufficient") || strings.Contains(lower, "quantity"):
		return domain.FailureStock
	case strings.Contains(lower, "zone") || strings.Contains(lower, "delivery area") || strings.Contains(lower, "restricted"):
		return domain.FailureZone
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline") || strings.Contains(lower, "connection"):
		return domain.FailureTransient
	default:
		return domain.FailureTransient
	}
}

// IsRetryable reports whether an order-creation failure is worth another
// attempt. Structured validation and stock rejections are terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		if backendErr.Code == CodeInsufficientStock || backendErr.Code == CodeZoneRestricted {
			return false
		}
		return backendErr.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return classifyByMessage(err.Error()) == domain.FailureTransient
}
