package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"unihaven/internal/domain"
)

// ListingInput carries the writable listing fields; geocoding outcome,
// aggregate rating and ownership are assigned by the service.
type ListingInput struct {
	Title         string
	Description   string
	PropertyType  string
	Price         decimal.Decimal
	Beds          int
	Bedrooms      int
	Address       string
	Flat          string
	Floor         string
	Room          string
	AvailableFrom time.Time
	AvailableTo   time.Time
	Universities  []string
}

func (in ListingInput) toListing() domain.Listing {
	return domain.Listing{
		Title:                in.Title,
		Description:          in.Description,
		PropertyType:         domain.PropertyType(in.PropertyType),
		Price:                in.Price,
		Beds:                 in.Beds,
		Bedrooms:             in.Bedrooms,
		Address:              in.Address,
		Flat:                 in.Flat,
		Floor:                in.Floor,
		Room:                 in.Room,
		AvailableFrom:        domain.DateOnly(in.AvailableFrom),
		AvailableTo:          domain.DateOnly(in.AvailableTo),
		EligibleUniversities: in.Universities,
	}
}

// CatalogService owns the listing lifecycle: create/update with
// best-effort geocoding, cache-aside reads, guarded deletes.
type CatalogService struct {
	repo     domain.Repository
	cache    domain.Cache
	geo      domain.Geocoder
	notifier domain.Notifier
	ttl      time.Duration
}

func NewCatalogService(repo domain.Repository, cache domain.Cache, geo domain.Geocoder, n domain.Notifier, ttl time.Duration) *CatalogService {
	return &CatalogService{repo: repo, cache: cache, geo: geo, notifier: n, ttl: ttl}
}

func (s *CatalogService) Create(ctx context.Context, actor domain.Identity, in ListingInput) (domain.Listing, error) {
	if !actor.CanManageListings() {
		return domain.Listing{}, domain.ErrForbidden
	}
	l := in.toListing()
	l.OwnerID = actor.ID
	if err := l.Validate(); err != nil {
		return domain.Listing{}, err
	}
	s.geocode(ctx, &l)

	created, err := s.repo.CreateListing(ctx, l)
	if err != nil {
		return domain.Listing{}, err
	}
	notifyAsync(s.notifier, []string{created.OwnerID},
		"listing published",
		fmt.Sprintf("listing %d (%s) is now visible to %d universities", created.ID, created.Title, len(created.EligibleUniversities)))
	return created, nil
}

func (s *CatalogService) Update(ctx context.Context, actor domain.Identity, id int64, in ListingInput) (domain.Listing, error) {
	existing, err := s.repo.GetListing(ctx, id)
	if err != nil {
		return domain.Listing{}, err
	}
	if !existing.ManagedBy(actor) {
		return domain.Listing{}, domain.ErrForbidden
	}

	l := in.toListing()
	l.ID = existing.ID
	l.OwnerID = existing.OwnerID
	l.Rating = existing.Rating
	if err := l.Validate(); err != nil {
		return domain.Listing{}, err
	}
	if l.Address == existing.Address {
		l.Coords = existing.Coords
		l.GeoAddress = existing.GeoAddress
	} else {
		s.geocode(ctx, &l)
	}

	updated, err := s.repo.UpdateListing(ctx, l)
	if err != nil {
		return domain.Listing{}, err
	}
	s.invalidate(ctx, id)
	return updated, nil
}

func (s *CatalogService) Delete(ctx context.Context, actor domain.Identity, id int64) error {
	existing, err := s.repo.GetListing(ctx, id)
	if err != nil {
		return err
	}
	if !existing.ManagedBy(actor) {
		return domain.ErrForbidden
	}
	if err := s.repo.DeleteListing(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// Get serves reads cache-aside; the visibility check runs on whichever
// copy was produced so a cache hit cannot widen exposure.
func (s *CatalogService) Get(ctx context.Context, actor domain.Identity, id int64) (domain.Listing, error) {
	key := listingKey(id)
	var l domain.Listing
	hit, err := s.cache.Get(ctx, key, &l)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}
	if !hit {
		l, err = s.repo.GetListing(ctx, id)
		if err != nil {
			return domain.Listing{}, err
		}
		if err := s.cache.Set(ctx, key, l, int(s.ttl.Seconds())); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	if !l.VisibleTo(actor.University) && !l.ManagedBy(actor) {
		return domain.Listing{}, domain.ErrForbidden
	}
	return l, nil
}

// geocode is tolerant: a lookup failure leaves the listing without
// coordinates instead of failing the write.
func (s *CatalogService) geocode(ctx context.Context, l *domain.Listing) {
	if s.geo == nil {
		return
	}
	c, geoAddr, err := s.geo.Resolve(ctx, l.Address)
	if err != nil {
		log.Warn().Err(err).Str("address", l.Address).Msg("geocoding failed, storing listing without coordinates")
		l.Coords = nil
		l.GeoAddress = ""
		return
	}
	l.Coords = &c
	l.GeoAddress = geoAddr
}

func (s *CatalogService) invalidate(ctx context.Context, id int64) {
	if err := s.cache.Del(ctx, listingKey(id)); err != nil {
		log.Warn().Err(err).Int64("listing_id", id).Msg("cache invalidation failed")
	}
}
