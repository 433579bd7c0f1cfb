package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"unihaven/internal/adapters/observability"
	"unihaven/internal/domain"
)

// ReservationService runs the admission protocol and the status
// lifecycle on top of the repository's per-listing critical section.
type ReservationService struct {
	repo     domain.Repository
	cache    domain.Cache
	notifier domain.Notifier
	now      Clock
}

func NewReservationService(repo domain.Repository, cache domain.Cache, n domain.Notifier, now Clock) *ReservationService {
	return &ReservationService{repo: repo, cache: cache, notifier: n, now: orSystem(now)}
}

// Admit requests a bed on the listing for [start, end]. The capacity
// check, eligibility check and range check happen inside the repository
// transaction; this layer only shapes the request and records the
// outcome.
func (s *ReservationService) Admit(ctx context.Context, actor domain.Identity, listingID int64, start, end time.Time) (domain.Reservation, error) {
	if start.IsZero() || end.IsZero() {
		return domain.Reservation{}, &domain.ValidationError{Field: "dates", Reason: "start_date and end_date are required"}
	}
	req := domain.Reservation{
		UID:        uuid.NewString(),
		ListingID:  listingID,
		StudentID:  actor.ID,
		University: actor.University,
		StartDate:  domain.DateOnly(start),
		EndDate:    domain.DateOnly(end),
	}

	res, err := s.repo.AdmitReservation(ctx, req, s.now())
	switch {
	case err == nil:
		observability.ObserveAdmission("admitted")
	default:
		if reason, denied := domain.DeniedReason(err); denied {
			observability.ObserveAdmission(string(reason))
		} else {
			observability.ObserveAdmission("error")
		}
		return domain.Reservation{}, err
	}

	s.invalidate(ctx, listingID)
	notifyAsync(s.notifier, []string{res.StudentID},
		"reservation received",
		fmt.Sprintf("reservation %s on listing %d is pending for %s to %s",
			res.UID, res.ListingID, res.StartDate.Format(domain.DateFormat), res.EndDate.Format(domain.DateFormat)))
	return res, nil
}

// Cancel releases the bed. The requesting student or staff of an
// eligible university may cancel; reservations already in a terminal
// status are refused.
func (s *ReservationService) Cancel(ctx context.Context, actor domain.Identity, uid string) error {
	res, err := s.repo.GetReservation(ctx, uid)
	if err != nil {
		return err
	}
	l, err := s.repo.GetListing(ctx, res.ListingID)
	if err != nil {
		return err
	}
	if actor.ID != res.StudentID && !l.ManagedBy(actor) {
		return domain.ErrForbidden
	}

	// The terminal check and the cancel write happen inside the
	// repository's per-listing critical section, not here.
	if _, err := s.repo.CancelReservation(ctx, uid, s.now()); err != nil {
		return err
	}
	s.invalidate(ctx, res.ListingID)
	notifyAsync(s.notifier, []string{res.StudentID},
		"reservation cancelled",
		fmt.Sprintf("reservation %s on listing %d was cancelled", uid, res.ListingID))
	return nil
}

// List returns the actor's own reservations for students, and every
// reservation on listings eligible for the actor's university for
// staff and admins. Stored statuses stale against today's date are
// refreshed in the response and persisted best-effort.
func (s *ReservationService) List(ctx context.Context, actor domain.Identity) ([]domain.Reservation, error) {
	var (
		items []domain.Reservation
		err   error
	)
	if actor.CanManageListings() {
		items, err = s.repo.ListReservationsByUniversity(ctx, actor.University)
	} else {
		items, err = s.repo.ListReservationsByStudent(ctx, actor.ID)
	}
	if err != nil {
		return nil, err
	}
	today := s.now()
	for i := range items {
		if items[i].RefreshStatus(today) {
			s.persistStatus(ctx, &items[i])
		}
	}
	return items, nil
}

// Get returns a single reservation, status refreshed, to its student or
// to staff managing the listing.
func (s *ReservationService) Get(ctx context.Context, actor domain.Identity, uid string) (domain.Reservation, error) {
	res, err := s.repo.GetReservation(ctx, uid)
	if err != nil {
		return domain.Reservation{}, err
	}
	l, err := s.repo.GetListing(ctx, res.ListingID)
	if err != nil {
		return domain.Reservation{}, err
	}
	if actor.ID != res.StudentID && !l.ManagedBy(actor) {
		return domain.Reservation{}, domain.ErrForbidden
	}
	if res.RefreshStatus(s.now()) {
		s.persistStatus(ctx, &res)
	}
	return res, nil
}

func (s *ReservationService) persistStatus(ctx context.Context, r *domain.Reservation) {
	if err := s.repo.UpdateReservationStatus(ctx, r.UID, r.Status); err != nil {
		log.Warn().Err(err).Str("uid", r.UID).Str("status", string(r.Status)).Msg("derived status persist failed")
	}
}

func (s *ReservationService) invalidate(ctx context.Context, listingID int64) {
	if err := s.cache.Del(ctx, listingKey(listingID)); err != nil {
		log.Warn().Err(err).Int64("listing_id", listingID).Msg("cache invalidation failed")
	}
}
