package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SearchFilter composes optional predicates with AND semantics.
// Nil fields do not constrain the result.
type SearchFilter struct {
	PropertyType  *PropertyType
	AvailableFrom *time.Time
	AvailableTo   *time.Time
	MinBeds       *int
	MinBedrooms   *int
	MinPrice      *decimal.Decimal
	MaxPrice      *decimal.Decimal
	Flat          *string
	Floor         *string
	Room          *string

	// Origin is an explicit reference coordinate; Campus names one from
	// the injected university registry. Origin wins when both are set.
	Origin        *Coords
	Campus        string
	MaxDistanceKm *float64
}

// Matches applies every non-distance predicate.
func (f SearchFilter) Matches(l Listing) bool {
	if f.PropertyType != nil && l.PropertyType != *f.PropertyType {
		return false
	}
	if f.AvailableFrom != nil && DateOnly(l.AvailableFrom).After(DateOnly(*f.AvailableFrom)) {
		return false
	}
	if f.AvailableTo != nil && DateOnly(l.AvailableTo).Before(DateOnly(*f.AvailableTo)) {
		return false
	}
	if f.MinBeds != nil && l.Beds < *f.MinBeds {
		return false
	}
	if f.MinBedrooms != nil && l.Bedrooms < *f.MinBedrooms {
		return false
	}
	if f.MinPrice != nil && l.Price.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && l.Price.GreaterThan(*f.MaxPrice) {
		return false
	}
	if f.Flat != nil && l.Flat != *f.Flat {
		return false
	}
	if f.Floor != nil && l.Floor != *f.Floor {
		return false
	}
	if f.Room != nil && l.Room != *f.Room {
		return false
	}
	return true
}

// SearchResult pairs a listing with its distance from the reference
// point, when one was supplied and the listing has known coordinates.
type SearchResult struct {
	Listing    Listing
	DistanceKm *float64
}
