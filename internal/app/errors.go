package app

import (
	"fmt"
	"net/http"
)

// DomainError is the action-boundary failure shape. Every operation recovers
// into one of these; only the store escalates past the boundary, and even
// that is reported, never fatal for the process.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// phaseViolation: the mutation is not allowed in the run's current status.
// The run is left unchanged.
func phaseViolation(message string) *DomainError {
	return domainError(http.StatusConflict, "PHASE_VIOLATION", message, nil)
}

func notFound(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func permissionDenied() *DomainError {
	return domainError(http.StatusForbidden, "PERMISSION_DENIED", "you don't have access to manage awards", nil)
}

func validationError(message string, details any) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", message, details)
}

// storeUnavailable: retries exhausted or transport failure. The in-memory
// document is not assumed committed.
func storeUnavailable(err error) *DomainError {
	return domainError(http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "document store unavailable", err.Error())
}
