package domain

import "time"

type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCancelled ReservationStatus = "cancelled"
	StatusCompleted ReservationStatus = "completed"
)

// Terminal statuses accept no further transitions.
func (s ReservationStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Active statuses count against a listing's bed capacity.
func (s ReservationStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

type Reservation struct {
	ID         int64
	UID        string
	ListingID  int64
	StudentID  string
	University string
	StartDate  time.Time
	EndDate    time.Time
	Status     ReservationStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DeriveStatus is the pure date-driven transition rule. It is evaluated
// lazily on read paths; there is no background scheduler.
func DeriveStatus(cur ReservationStatus, start, end, today time.Time) ReservationStatus {
	if cur.Terminal() {
		return cur
	}
	start, end, today = DateOnly(start), DateOnly(end), DateOnly(today)
	switch {
	case end.Before(today):
		return StatusCompleted
	case !start.After(today) && !today.After(end):
		return StatusConfirmed
	default:
		return StatusPending
	}
}

// RefreshStatus applies DeriveStatus in place and reports whether the
// stored status is now stale.
func (r *Reservation) RefreshStatus(today time.Time) bool {
	next := DeriveStatus(r.Status, r.StartDate, r.EndDate, today)
	if next == r.Status {
		return false
	}
	r.Status = next
	return true
}

// CheckAdmission decides whether a reservation request may be admitted
// against the listing. activeCount is the number of pending/confirmed
// reservations at the instant of the check; callers must evaluate this
// function and the subsequent insert inside a critical section scoped to
// the listing. Capacity is count-based: date ranges of existing
// reservations are deliberately not consulted.
func CheckAdmission(l Listing, activeCount int, university string, start, end, today time.Time) error {
	if activeCount >= l.Beds {
		return &AdmissionDeniedError{Reason: DenyFullyBooked}
	}
	if !l.VisibleTo(university) {
		return &AdmissionDeniedError{Reason: DenyNotEligible}
	}
	start, end, today = DateOnly(start), DateOnly(end), DateOnly(today)
	if start.Before(today) || start.After(end) {
		return &AdmissionDeniedError{Reason: DenyInvalidRange}
	}
	return nil
}
