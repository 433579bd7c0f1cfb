package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"unihaven/internal/domain"
)

// RatingService accepts post-stay ratings and keeps the cached listing
// aggregate coherent with the stored one.
type RatingService struct {
	repo  domain.Repository
	cache domain.Cache
	now   Clock
}

func NewRatingService(repo domain.Repository, cache domain.Cache, now Clock) *RatingService {
	return &RatingService{repo: repo, cache: cache, now: orSystem(now)}
}

// Submit records the actor's rating for the listing. The completed-stay
// requirement and the one-rating-per-student rule are enforced inside
// the repository; the listing aggregate the caller sees is the one
// recomputed in that same unit.
func (s *RatingService) Submit(ctx context.Context, actor domain.Identity, listingID int64, value int, comment string) (domain.Rating, domain.Listing, error) {
	rt := domain.Rating{
		ListingID: listingID,
		StudentID: actor.ID,
		Value:     value,
		Comment:   comment,
	}
	if err := rt.Validate(); err != nil {
		return domain.Rating{}, domain.Listing{}, err
	}
	stored, l, err := s.repo.SubmitRating(ctx, rt, s.now())
	if err != nil {
		return domain.Rating{}, domain.Listing{}, err
	}
	if err := s.cache.Del(ctx, listingKey(listingID)); err != nil {
		log.Warn().Err(err).Int64("listing_id", listingID).Msg("cache invalidation failed")
	}
	return stored, l, nil
}

// List returns the listing's ratings to anyone who can see the listing.
func (s *RatingService) List(ctx context.Context, actor domain.Identity, listingID int64) ([]domain.Rating, error) {
	l, err := s.repo.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !l.VisibleTo(actor.University) && !l.ManagedBy(actor) {
		return nil, domain.ErrForbidden
	}
	return s.repo.ListRatings(ctx, listingID)
}
