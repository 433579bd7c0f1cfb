package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
	ErrForbidden = errors.New("forbidden")

	// ErrListingBusy: a listing cannot be deleted while pending or
	// confirmed reservations reference it.
	ErrListingBusy = errors.New("listing has active reservations")

	// ErrTerminalStatus: cancelled/completed reservations accept no
	// further transitions.
	ErrTerminalStatus = errors.New("reservation already finalized")

	// ErrNoStay: only students with a completed stay may rate a listing.
	ErrNoStay = errors.New("no completed stay for this listing")

	ErrGeocodeUnavailable = errors.New("geocoder unavailable")
)

// DenyReason classifies a refused admission. Denials are business
// outcomes, never retried automatically.
type DenyReason string

const (
	DenyFullyBooked  DenyReason = "fully_booked"
	DenyNotEligible  DenyReason = "not_eligible"
	DenyInvalidRange DenyReason = "invalid_range"
)

type AdmissionDeniedError struct {
	Reason DenyReason
}

func (e *AdmissionDeniedError) Error() string {
	return "admission denied: " + string(e.Reason)
}

// DeniedReason unwraps err as an admission denial.
func DeniedReason(err error) (DenyReason, bool) {
	var ad *AdmissionDeniedError
	if errors.As(err, &ad) {
		return ad.Reason, true
	}
	return "", false
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err carries a field-level validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
