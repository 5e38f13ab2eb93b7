package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies failures so callers can react without string matching
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindNotFound    ErrorKind = "not_found"
	KindStale       ErrorKind = "stale"
	KindComputation ErrorKind = "computation"
	KindInternal    ErrorKind = "internal"
)

// KindedError is implemented by every error in the taxonomy
type KindedError interface {
	error
	Kind() ErrorKind
}

// KindOf returns the kind of the first classified error in the chain.
// Unclassified errors are reported as internal.
func KindOf(err error) ErrorKind {
	var ke KindedError
	if errors.As(err, &ke) {
		return ke.Kind()
	}
	return KindInternal
}

// ValidationError reports malformed caller input
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// Kind implements KindedError
func (e *ValidationError) Kind() ErrorKind { return KindValidation }

// PackValidationError reports a pack identifier that is not a recognized form
type PackValidationError struct {
	PackID string
}

func (e *PackValidationError) Error() string {
	return fmt.Sprintf("invalid pricing pack id %q: expected a calendar date (YYYY-MM-DD) or a generated id (PP_YYYYMMDD_N)", e.PackID)
}

// Kind implements KindedError
func (e *PackValidationError) Kind() ErrorKind { return KindValidation }

// PackNotFoundError reports that no usable pack matches the request
type PackNotFoundError struct {
	PackID string
	Reason string
}

func (e *PackNotFoundError) Error() string {
	msg := "pricing pack not found"
	if e.PackID != "" {
		msg = fmt.Sprintf("pricing pack %s not found", e.PackID)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Kind implements KindedError
func (e *PackNotFoundError) Kind() ErrorKind { return KindNotFound }

// PackStaleError reports a pack published longer ago than the freshness threshold
type PackStaleError struct {
	PackID    string
	Age       time.Duration
	Threshold time.Duration
}

func (e *PackStaleError) Error() string {
	return fmt.Sprintf("pricing pack %s is stale: published %s ago, threshold %s",
		e.PackID, e.Age.Round(time.Second), e.Threshold)
}

// Kind implements KindedError
func (e *PackStaleError) Kind() ErrorKind { return KindStale }

// PackImmutableError reports an attempt to write to a published pack
type PackImmutableError struct {
	PackID string
	Status PackStatus
}

func (e *PackImmutableError) Error() string {
	return fmt.Sprintf("pricing pack %s is %s and cannot be modified", e.PackID, e.Status)
}

// Kind implements KindedError
func (e *PackImmutableError) Kind() ErrorKind { return KindValidation }

// PriceNotFoundError reports a missing price or FX rate in a pack
type PriceNotFoundError struct {
	Symbol string
	PackID string
}

func (e *PriceNotFoundError) Error() string {
	return fmt.Sprintf("no price for %s in pricing pack %s", e.Symbol, e.PackID)
}

// Kind implements KindedError
func (e *PriceNotFoundError) Kind() ErrorKind { return KindNotFound }

// CapabilityNotFoundError reports an unregistered capability name
type CapabilityNotFoundError struct {
	Capability string
}

func (e *CapabilityNotFoundError) Error() string {
	return fmt.Sprintf("capability %q is not registered", e.Capability)
}

// Kind implements KindedError
func (e *CapabilityNotFoundError) Kind() ErrorKind { return KindNotFound }

// PatternNotFoundError reports an unknown pattern id
type PatternNotFoundError struct {
	PatternID string
}

func (e *PatternNotFoundError) Error() string {
	return fmt.Sprintf("pattern %q not found", e.PatternID)
}

// Kind implements KindedError
func (e *PatternNotFoundError) Kind() ErrorKind { return KindNotFound }

// MissingBetaError reports a held security without a beta for a required factor
type MissingBetaError struct {
	Symbol string
	Factor Factor
	PackID string
}

func (e *MissingBetaError) Error() string {
	return fmt.Sprintf("missing %s beta for %s at pricing pack %s", e.Factor, e.Symbol, e.PackID)
}

// Kind implements KindedError
func (e *MissingBetaError) Kind() ErrorKind { return KindNotFound }

// InsufficientHistoryError reports fewer observations than the minimum regression window
type InsufficientHistoryError struct {
	Symbol       string
	Observations int
	Required     int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history for %s: %d observations, need at least %d",
		e.Symbol, e.Observations, e.Required)
}

// Kind implements KindedError
func (e *InsufficientHistoryError) Kind() ErrorKind { return KindComputation }

// ReconciliationError reports a broken sum invariant in an attribution
type ReconciliationError struct {
	Components float64
	Total      float64
	Tolerance  float64
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("attribution does not reconcile: components sum to %.8f, total is %.8f (tolerance %.6f)",
		e.Components, e.Total, e.Tolerance)
}

// Kind implements KindedError
func (e *ReconciliationError) Kind() ErrorKind { return KindComputation }

// ComputationError reports any other numerical failure
type ComputationError struct {
	Op  string
	Err error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ComputationError) Unwrap() error { return e.Err }

// Kind implements KindedError
func (e *ComputationError) Kind() ErrorKind { return KindComputation }

// ScenarioNotFoundError reports an unknown scenario name
type ScenarioNotFoundError struct {
	Scenario string
}

func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario %q not found", e.Scenario)
}

// Kind implements KindedError
func (e *ScenarioNotFoundError) Kind() ErrorKind { return KindNotFound }
