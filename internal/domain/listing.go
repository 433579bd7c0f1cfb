package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PropertyType codes follow the upstream accommodation registry.
type PropertyType string

const (
	PropertyApartment  PropertyType = "AP"
	PropertyWholeHouse PropertyType = "HM"
	PropertyHouseRoom  PropertyType = "HR"
	PropertySharedRoom PropertyType = "SH"
)

func ParsePropertyType(s string) (PropertyType, bool) {
	switch pt := PropertyType(strings.ToUpper(s)); pt {
	case PropertyApartment, PropertyWholeHouse, PropertyHouseRoom, PropertySharedRoom:
		return pt, true
	}
	return "", false
}

// Listing is a rentable accommodation unit with a fixed bed capacity.
type Listing struct {
	ID           int64
	Title        string
	Description  string
	PropertyType PropertyType
	Price        decimal.Decimal
	Beds         int
	Bedrooms     int

	Address string
	Flat    string
	Floor   string
	Room    string

	// Coords is nil when geocoding failed; such listings sort last in
	// distance searches and are excluded under a distance cutoff.
	Coords     *Coords
	GeoAddress string

	AvailableFrom time.Time
	AvailableTo   time.Time

	EligibleUniversities []string
	OwnerID              string

	// Rating is the derived aggregate, 0 when unrated.
	Rating float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (l Listing) Validate() error {
	if strings.TrimSpace(l.Title) == "" {
		return invalid("title", "required")
	}
	if _, ok := ParsePropertyType(string(l.PropertyType)); !ok {
		return invalid("property_type", "must be one of AP, HM, HR, SH")
	}
	if l.Price.IsNegative() {
		return invalid("price", "must not be negative")
	}
	if l.Beds < 1 {
		return invalid("beds", "must be at least 1")
	}
	if l.Bedrooms < 0 {
		return invalid("bedrooms", "must not be negative")
	}
	if strings.TrimSpace(l.Address) == "" {
		return invalid("address", "required")
	}
	if l.AvailableFrom.IsZero() || l.AvailableTo.IsZero() {
		return invalid("availability", "available_from and available_to are required")
	}
	if DateOnly(l.AvailableFrom).After(DateOnly(l.AvailableTo)) {
		return invalid("availability", "available_from must not be after available_to")
	}
	if len(l.EligibleUniversities) == 0 {
		return invalid("universities", "at least one eligible university is required")
	}
	return nil
}

// VisibleTo reports whether students of the university may see and
// reserve this listing.
func (l Listing) VisibleTo(university string) bool {
	for _, u := range l.EligibleUniversities {
		if u == university {
			return true
		}
	}
	return false
}

// ManagedBy gates mutations: staff of an eligible university, or admins.
func (l Listing) ManagedBy(actor Identity) bool {
	if actor.Role == RoleAdmin {
		return true
	}
	return actor.Role == RoleStaff && l.VisibleTo(actor.University)
}

// DedupeKey is the normalized address-derived uniqueness key. The
// geo-address label is preferred; listings that never geocoded fall back
// to the raw address text.
func (l Listing) DedupeKey() string {
	base := l.GeoAddress
	if base == "" {
		base = l.Address
	}
	parts := []string{base, l.Flat, l.Floor, l.Room}
	for i, p := range parts {
		parts[i] = strings.Join(strings.Fields(strings.ToLower(p)), " ")
	}
	return strings.Join(parts, "|")
}
