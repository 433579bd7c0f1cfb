package httpserver

import (
	"time"

	"github.com/shopspring/decimal"

	"unihaven/internal/app"
	"unihaven/internal/domain"
)

type listingRequest struct {
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	PropertyType  string          `json:"property_type"`
	Price         decimal.Decimal `json:"price"`
	Beds          int             `json:"beds"`
	Bedrooms      int             `json:"bedrooms"`
	Address       string          `json:"address"`
	Flat          string          `json:"flat"`
	Floor         string          `json:"floor"`
	Room          string          `json:"room"`
	AvailableFrom string          `json:"available_from"`
	AvailableTo   string          `json:"available_to"`
	Universities  []string        `json:"universities"`
}

func (req listingRequest) toInput() (app.ListingInput, error) {
	from, err := parseDate(req.AvailableFrom, "available_from")
	if err != nil {
		return app.ListingInput{}, err
	}
	to, err := parseDate(req.AvailableTo, "available_to")
	if err != nil {
		return app.ListingInput{}, err
	}
	return app.ListingInput{
		Title:         req.Title,
		Description:   req.Description,
		PropertyType:  req.PropertyType,
		Price:         req.Price,
		Beds:          req.Beds,
		Bedrooms:      req.Bedrooms,
		Address:       req.Address,
		Flat:          req.Flat,
		Floor:         req.Floor,
		Room:          req.Room,
		AvailableFrom: from,
		AvailableTo:   to,
		Universities:  req.Universities,
	}, nil
}

type reservationRequest struct {
	ListingID int64  `json:"listing_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type ratingRequest struct {
	ListingID int64  `json:"listing_id"`
	Value     int    `json:"value"`
	Comment   string `json:"comment"`
}

type listingJSON struct {
	ID            int64           `json:"id"`
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	PropertyType  string          `json:"property_type"`
	Price         decimal.Decimal `json:"price"`
	Beds          int             `json:"beds"`
	Bedrooms      int             `json:"bedrooms"`
	Address       string          `json:"address"`
	Flat          string          `json:"flat,omitempty"`
	Floor         string          `json:"floor,omitempty"`
	Room          string          `json:"room,omitempty"`
	Latitude      *float64        `json:"latitude,omitempty"`
	Longitude     *float64        `json:"longitude,omitempty"`
	GeoAddress    string          `json:"geo_address,omitempty"`
	AvailableFrom string          `json:"available_from"`
	AvailableTo   string          `json:"available_to"`
	Universities  []string        `json:"universities"`
	OwnerID       string          `json:"owner_id"`
	Rating        float64         `json:"rating"`
	DistanceKm    *float64        `json:"distance_km,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func toListingJSON(l domain.Listing) listingJSON {
	out := listingJSON{
		ID:            l.ID,
		Title:         l.Title,
		Description:   l.Description,
		PropertyType:  string(l.PropertyType),
		Price:         l.Price,
		Beds:          l.Beds,
		Bedrooms:      l.Bedrooms,
		Address:       l.Address,
		Flat:          l.Flat,
		Floor:         l.Floor,
		Room:          l.Room,
		GeoAddress:    l.GeoAddress,
		AvailableFrom: l.AvailableFrom.Format(domain.DateFormat),
		AvailableTo:   l.AvailableTo.Format(domain.DateFormat),
		Universities:  l.EligibleUniversities,
		OwnerID:       l.OwnerID,
		Rating:        l.Rating,
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
	if l.Coords != nil {
		lat, lon := l.Coords.Lat, l.Coords.Lon
		out.Latitude, out.Longitude = &lat, &lon
	}
	return out
}

func toSearchJSON(results []domain.SearchResult) []listingJSON {
	out := make([]listingJSON, 0, len(results))
	for _, r := range results {
		j := toListingJSON(r.Listing)
		j.DistanceKm = r.DistanceKm
		out = append(out, j)
	}
	return out
}

type reservationJSON struct {
	UID       string    `json:"uid"`
	ListingID int64     `json:"listing_id"`
	StudentID string    `json:"student_id"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toReservationJSON(r domain.Reservation) reservationJSON {
	return reservationJSON{
		UID:       r.UID,
		ListingID: r.ListingID,
		StudentID: r.StudentID,
		StartDate: r.StartDate.Format(domain.DateFormat),
		EndDate:   r.EndDate.Format(domain.DateFormat),
		Status:    string(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type ratingJSON struct {
	ID        int64     `json:"id"`
	ListingID int64     `json:"listing_id"`
	StudentID string    `json:"student_id"`
	Value     int       `json:"value"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toRatingJSON(rt domain.Rating) ratingJSON {
	return ratingJSON{
		ID:        rt.ID,
		ListingID: rt.ListingID,
		StudentID: rt.StudentID,
		Value:     rt.Value,
		Comment:   rt.Comment,
		CreatedAt: rt.CreatedAt,
	}
}

func parseDate(s, field string) (time.Time, error) {
	if s == "" {
		return time.Time{}, &domain.ValidationError{Field: field, Reason: "required"}
	}
	t, err := time.Parse(domain.DateFormat, s)
	if err != nil {
		return time.Time{}, &domain.ValidationError{Field: field, Reason: "must be formatted YYYY-MM-DD"}
	}
	return t, nil
}
