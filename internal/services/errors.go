package services

import (
	"errors"
	"sort"
	"strings"
)

// Error taxonomy shared by the provider services. Handlers map these to
// HTTP statuses; wrapped detail is for logs only.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("provider not found")
	ErrInvalidLicense      = errors.New("invalid business license")
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
	ErrMisconfigured       = errors.New("server misconfigured")
	ErrPersistence         = errors.New("persistence failure")

	// ErrAlreadyClaimed is returned when another account owns the provider.
	ErrAlreadyClaimed = errors.New("provider claimed by another account")
	// ErrNotClaimant is returned when the caller does not own the provider.
	ErrNotClaimant = errors.New("caller is not the provider's claimant")
	// ErrSubscriptionPending blocks a tier change while an earlier one
	// still awaits payment.
	ErrSubscriptionPending = errors.New("subscription change pending")
)

// ValidationError carries per-field messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func newValidationError(field, msg string) *ValidationError {
	v := &ValidationError{}
	v.add(field, msg)
	return v
}
