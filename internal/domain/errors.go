package domain

import "fmt"

// Error types for consistent error handling across the service.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an evidence store call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrUpstreamUnavailable is returned when the base account population
// cannot be loaded at all. No partial data accompanies it.
type ErrUpstreamUnavailable struct {
	Source string
	Err    error
}

func (e *ErrUpstreamUnavailable) Error() string {
	return fmt.Sprintf("upstream unavailable [%s]: %v", e.Source, e.Err)
}

func (e *ErrUpstreamUnavailable) Unwrap() error {
	return e.Err
}

// ErrAmbiguousMatch records that identity linking saw more than one phone
// candidate. It is logged, never returned to callers.
type ErrAmbiguousMatch struct {
	AccountID  int64
	Phone      string
	Candidates []int64
	Chosen     int64
}

func (e *ErrAmbiguousMatch) Error() string {
	return fmt.Sprintf("ambiguous phone match for account %d: %d candidates, chose %d",
		e.AccountID, len(e.Candidates), e.Chosen)
}

// ErrInvalidFilter is an unparseable filter value. Listings ignore it.
type ErrInvalidFilter struct {
	Field string
	Value string
}

func (e *ErrInvalidFilter) Error() string {
	return fmt.Sprintf("invalid filter %s=%q", e.Field, e.Value)
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrForbidden indicates the caller lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrUnauthorized indicates an invalid or missing token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrConflict indicates a concurrent change won over this write.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}
