package domain

import (
	"context"
	"time"
)

// Repository is the persistence port. Implementations must make
// AdmitReservation and SubmitRating atomic per listing: the capacity
// check (resp. aggregate recompute) and the insert are indivisible with
// respect to other writers of the same listing. Different listings
// proceed in parallel.
type Repository interface {
	// Listings
	CreateListing(ctx context.Context, l Listing) (Listing, error)
	UpdateListing(ctx context.Context, l Listing) (Listing, error)
	// DeleteListing fails with ErrListingBusy while pending/confirmed
	// reservations exist; ratings are removed with the listing.
	DeleteListing(ctx context.Context, id int64) error
	GetListing(ctx context.Context, id int64) (Listing, error)
	ListVisible(ctx context.Context, university string) ([]Listing, error)
	ListUnresolved(ctx context.Context) ([]Listing, error)
	SetListingLocation(ctx context.Context, id int64, c Coords, geoAddress string) error

	// Reservations
	AdmitReservation(ctx context.Context, r Reservation, today time.Time) (Reservation, error)
	GetReservation(ctx context.Context, uid string) (Reservation, error)
	// CancelReservation re-derives the status inside the same
	// per-listing critical section as AdmitReservation and fails with
	// ErrTerminalStatus if the reservation already ended.
	CancelReservation(ctx context.Context, uid string, today time.Time) (Reservation, error)
	// UpdateReservationStatus persists a lazily derived status. Rows
	// already in a terminal status are left untouched: a stale snapshot
	// must never move a reservation out of cancelled or completed.
	UpdateReservationStatus(ctx context.Context, uid string, st ReservationStatus) error
	ListReservationsByStudent(ctx context.Context, studentID string) ([]Reservation, error)
	ListReservationsByUniversity(ctx context.Context, university string) ([]Reservation, error)
	CountActive(ctx context.Context, listingID int64) (int, error)

	// Ratings. SubmitRating verifies the completed stay, inserts, and
	// recomputes the listing aggregate in one unit; it returns the
	// stored rating and the listing with its refreshed aggregate.
	SubmitRating(ctx context.Context, rt Rating, today time.Time) (Rating, Listing, error)
	ListRatings(ctx context.Context, listingID int64) ([]Rating, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// Geocoder resolves free-text addresses. Resolution failure is a
// degraded mode, not a fatal one: listings are stored without
// coordinates and excluded from distance math.
type Geocoder interface {
	Resolve(ctx context.Context, address string) (Coords, string, error)
}

// Notifier is fire-and-forget; failures must never roll back the
// operation that triggered the notification.
type Notifier interface {
	Notify(ctx context.Context, recipients []string, subject, body string) error
}
