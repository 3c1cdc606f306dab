// Package errs holds the typed failures the dispatch core surfaces to
// callers. Every error here is local and synchronous; the core never
// retries on its own and never substitutes a default for a failure.
package errs

import "fmt"

// ValidationError reports malformed caller input: out-of-range
// coordinates, a non-positive speed, an empty required field. Always
// caller-fixable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidStateError means the operation is not legal given the current
// ride state, including losing an assignment race. The caller must
// re-fetch state before retrying.
type InvalidStateError struct {
	RideID string
	Status string
	Reason string
}

func (e *InvalidStateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("ride %s: %s (status=%s)", e.RideID, e.Reason, e.Status)
	}
	return fmt.Sprintf("ride %s is not assignable (status=%s)", e.RideID, e.Status)
}

// DriverUnavailableError means the target driver is inactive, unknown, or
// otherwise ineligible for assignment.
type DriverUnavailableError struct {
	DriverID string
	Reason   string
}

func (e *DriverUnavailableError) Error() string {
	return fmt.Sprintf("driver %s unavailable: %s", e.DriverID, e.Reason)
}

// NoDriversAvailableError means auto-assign found an empty candidate set.
// Recoverable by retrying later or widening the staleness window.
type NoDriversAvailableError struct {
	StalenessMinutes float64
}

func (e *NoDriversAvailableError) Error() string {
	return fmt.Sprintf("no drivers available within %.0f minutes", e.StalenessMinutes)
}

// GeocodeUnavailableError means the pickup address could not be resolved
// to coordinates, so distance-based matching cannot proceed.
type GeocodeUnavailableError struct {
	Address string
	Err     error
}

func (e *GeocodeUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("geocoding unavailable for %q: %v", e.Address, e.Err)
	}
	return fmt.Sprintf("geocoding unavailable for %q", e.Address)
}

func (e *GeocodeUnavailableError) Unwrap() error { return e.Err }

// InvalidTransitionError means a status update does not name the immediate
// successor of the current status (cancellation excepted), or repeats an
// already-applied transition.
type InvalidTransitionError struct {
	RideID string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("ride %s: illegal transition %s -> %s", e.RideID, e.From, e.To)
}
