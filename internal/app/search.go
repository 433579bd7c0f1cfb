package app

import (
	"context"
	"sort"

	"unihaven/internal/domain"
)

// SearchService filters the catalog to what the actor's university may
// see and annotates results with distance from a reference point.
type SearchService struct {
	repo     domain.Repository
	campuses map[string]domain.Coords
}

func NewSearchService(repo domain.Repository, campuses map[string]domain.Coords) *SearchService {
	return &SearchService{repo: repo, campuses: campuses}
}

func (s *SearchService) Search(ctx context.Context, actor domain.Identity, f domain.SearchFilter) ([]domain.SearchResult, error) {
	origin := f.Origin
	if origin == nil && f.Campus != "" {
		c, ok := s.campuses[f.Campus]
		if !ok {
			return nil, &domain.ValidationError{Field: "campus", Reason: "unknown campus"}
		}
		origin = &c
	}
	if f.MaxDistanceKm != nil && origin == nil {
		return nil, &domain.ValidationError{Field: "max_distance", Reason: "requires lat/lon or campus"}
	}

	listings, err := s.repo.ListVisible(ctx, actor.University)
	if err != nil {
		return nil, err
	}

	results := make([]domain.SearchResult, 0, len(listings))
	for _, l := range listings {
		if !f.Matches(l) {
			continue
		}
		r := domain.SearchResult{Listing: l}
		if origin != nil && l.Coords != nil {
			d := domain.Distance(*origin, *l.Coords)
			r.DistanceKm = &d
		}
		// Under a cutoff, listings without coordinates cannot prove they
		// are in range and are excluded.
		if f.MaxDistanceKm != nil && (r.DistanceKm == nil || *r.DistanceKm > *f.MaxDistanceKm) {
			continue
		}
		results = append(results, r)
	}

	if origin != nil {
		sort.SliceStable(results, func(i, j int) bool {
			di, dj := results[i].DistanceKm, results[j].DistanceKm
			switch {
			case di == nil:
				return false
			case dj == nil:
				return true
			default:
				return *di < *dj
			}
		})
	}
	return results, nil
}

// Campuses exposes the registry keys for the campus listing endpoint.
func (s *SearchService) Campuses() []string {
	names := make([]string, 0, len(s.campuses))
	for name := range s.campuses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
