package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"unihaven/internal/domain"
)

func validListing() domain.Listing {
	return domain.Listing{
		Title:                "Cozy flat near campus",
		PropertyType:         domain.PropertyApartment,
		Price:                decimal.NewFromInt(8500),
		Beds:                 2,
		Bedrooms:             1,
		Address:              "123 Pok Fu Lam Road",
		AvailableFrom:        day("2026-09-01"),
		AvailableTo:          day("2027-08-31"),
		EligibleUniversities: []string{"HKU"},
	}
}

func TestListingValidate(t *testing.T) {
	if err := validListing().Validate(); err != nil {
		t.Fatalf("valid listing rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*domain.Listing)
		field  string
	}{
		{"missing title", func(l *domain.Listing) { l.Title = "  " }, "title"},
		{"bad property type", func(l *domain.Listing) { l.PropertyType = "XX" }, "property_type"},
		{"negative price", func(l *domain.Listing) { l.Price = decimal.NewFromInt(-1) }, "price"},
		{"zero beds", func(l *domain.Listing) { l.Beds = 0 }, "beds"},
		{"missing address", func(l *domain.Listing) { l.Address = "" }, "address"},
		{"reversed availability", func(l *domain.Listing) { l.AvailableFrom, l.AvailableTo = l.AvailableTo, l.AvailableFrom }, "availability"},
		{"no universities", func(l *domain.Listing) { l.EligibleUniversities = nil }, "universities"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := validListing()
			tc.mutate(&l)
			err := l.Validate()
			if !domain.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestDedupeKey(t *testing.T) {
	a := validListing()
	a.GeoAddress = "123 POK FU LAM ROAD, HONG KONG"
	a.Flat = "4B"
	a.Floor = "4"

	b := a
	b.GeoAddress = "123  Pok Fu Lam   Road, Hong Kong"
	b.Flat = "4b"

	if a.DedupeKey() != b.DedupeKey() {
		t.Fatalf("case and whitespace must not distinguish units: %q vs %q", a.DedupeKey(), b.DedupeKey())
	}

	c := a
	c.Room = "2"
	if a.DedupeKey() == c.DedupeKey() {
		t.Fatal("different room must produce a different key")
	}

	// Without a geocoded label the raw address is the base.
	d := validListing()
	if got := d.DedupeKey(); got != "123 pok fu lam road|||" {
		t.Fatalf("fallback key = %q", got)
	}
}

func TestManagedBy(t *testing.T) {
	l := validListing()
	cases := []struct {
		name  string
		actor domain.Identity
		want  bool
	}{
		{"student never manages", domain.Identity{ID: "s1", University: "HKU", Role: domain.RoleStudent}, false},
		{"staff of eligible university", domain.Identity{ID: "w1", University: "HKU", Role: domain.RoleStaff}, true},
		{"staff of other university", domain.Identity{ID: "w2", University: "CUHK", Role: domain.RoleStaff}, false},
		{"admin manages everything", domain.Identity{ID: "a1", University: "CUHK", Role: domain.RoleAdmin}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := l.ManagedBy(tc.actor); got != tc.want {
				t.Fatalf("ManagedBy = %v, want %v", got, tc.want)
			}
		})
	}
}
