package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"unihaven/internal/app"
	"unihaven/internal/domain"
)

type Handlers struct {
	Catalog      *app.CatalogService
	Reservations *app.ReservationService
	Ratings      *app.RatingService
	Search       *app.SearchService
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Route("/v1", func(r chi.Router) {
		r.Use(Identity)
		r.Get("/campuses", h.listCampuses)
		r.Get("/listings", h.searchListings)
		r.Post("/listings", h.createListing)
		r.Get("/listings/{id}", h.getListing)
		r.Put("/listings/{id}", h.updateListing)
		r.Delete("/listings/{id}", h.deleteListing)
		r.Get("/listings/{id}/ratings", h.listRatings)
		r.Get("/reservations", h.listReservations)
		r.Post("/reservations", h.createReservation)
		r.Get("/reservations/{uid}", h.getReservation)
		r.Delete("/reservations/{uid}", h.cancelReservation)
		r.Post("/ratings", h.submitRating)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeDomainErr maps service errors onto the problem+json surface.
func writeDomainErr(w http.ResponseWriter, err error) {
	if reason, denied := domain.DeniedReason(err); denied {
		writeProblem(w, http.StatusForbidden, "Admission Denied", string(reason))
		return
	}
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeProblem(w, http.StatusBadRequest, "Invalid Request", verr.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", "resource not found")
	case errors.Is(err, domain.ErrForbidden):
		writeProblem(w, http.StatusForbidden, "Forbidden", "not allowed for this identity")
	case errors.Is(err, domain.ErrNoStay):
		writeProblem(w, http.StatusForbidden, "Forbidden", "a completed stay on the listing is required")
	case errors.Is(err, domain.ErrDuplicate):
		writeProblem(w, http.StatusConflict, "Conflict", "resource already exists")
	case errors.Is(err, domain.ErrListingBusy):
		writeProblem(w, http.StatusConflict, "Conflict", "listing has active reservations")
	case errors.Is(err, domain.ErrTerminalStatus):
		writeProblem(w, http.StatusConflict, "Conflict", "reservation is already finalized")
	default:
		log.Error().Err(err).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", nil, err
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body, nil
}

// writeCacheable answers conditional GETs with a weak ETag.
func writeCacheable(w http.ResponseWriter, r *http.Request, v any) {
	etag, body, err := calcETagAndBody(v)
	if err != nil {
		log.Error().Err(err).Msg("encode response body")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "could not encode response")
		return
	}
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// ---- listings ----

func (h *Handlers) createListing(w http.ResponseWriter, r *http.Request) {
	var req listingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	l, err := h.Catalog.Create(r.Context(), identityFrom(r), in)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toListingJSON(l))
}

func (h *Handlers) getListing(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive number")
		return
	}
	l, err := h.Catalog.Get(r.Context(), identityFrom(r), id)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeCacheable(w, r, toListingJSON(l))
}

func (h *Handlers) updateListing(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive number")
		return
	}
	var req listingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	l, err := h.Catalog.Update(r.Context(), identityFrom(r), id, in)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingJSON(l))
}

func (h *Handlers) deleteListing(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive number")
		return
	}
	if err := h.Catalog.Delete(r.Context(), identityFrom(r), id); err != nil {
		writeDomainErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) searchListings(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	results, err := h.Search.Search(r.Context(), identityFrom(r), f)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeCacheable(w, r, toSearchJSON(results))
}

func (h *Handlers) listCampuses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Search.Campuses())
}

// ---- reservations ----

func (h *Handlers) createReservation(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	start, err := parseDate(req.StartDate, "start_date")
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	end, err := parseDate(req.EndDate, "end_date")
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	res, err := h.Reservations.Admit(r.Context(), identityFrom(r), req.ListingID, start, end)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservationJSON(res))
}

func (h *Handlers) listReservations(w http.ResponseWriter, r *http.Request) {
	items, err := h.Reservations.List(r.Context(), identityFrom(r))
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	out := make([]reservationJSON, 0, len(items))
	for _, res := range items {
		out = append(out, toReservationJSON(res))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) getReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.Reservations.Get(r.Context(), identityFrom(r), chi.URLParam(r, "uid"))
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationJSON(res))
}

func (h *Handlers) cancelReservation(w http.ResponseWriter, r *http.Request) {
	if err := h.Reservations.Cancel(r.Context(), identityFrom(r), chi.URLParam(r, "uid")); err != nil {
		writeDomainErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- ratings ----

func (h *Handlers) submitRating(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	rt, _, err := h.Ratings.Submit(r.Context(), identityFrom(r), req.ListingID, req.Value, req.Comment)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRatingJSON(rt))
}

func (h *Handlers) listRatings(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive number")
		return
	}
	items, err := h.Ratings.List(r.Context(), identityFrom(r), id)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	out := make([]ratingJSON, 0, len(items))
	for _, rt := range items {
		out = append(out, toRatingJSON(rt))
	}
	writeCacheable(w, r, out)
}

// ---- filter parsing ----

func parseFilter(q url.Values) (domain.SearchFilter, error) {
	var f domain.SearchFilter
	if v := q.Get("property_type"); v != "" {
		pt, ok := domain.ParsePropertyType(v)
		if !ok {
			return f, &domain.ValidationError{Field: "property_type", Reason: "must be one of AP, HM, HR, SH"}
		}
		f.PropertyType = &pt
	}
	if v := q.Get("available_from"); v != "" {
		t, err := parseDate(v, "available_from")
		if err != nil {
			return f, err
		}
		f.AvailableFrom = &t
	}
	if v := q.Get("available_to"); v != "" {
		t, err := parseDate(v, "available_to")
		if err != nil {
			return f, err
		}
		f.AvailableTo = &t
	}
	if v := q.Get("min_beds"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, &domain.ValidationError{Field: "min_beds", Reason: "must be a positive integer"}
		}
		f.MinBeds = &n
	}
	// Bedrooms start at zero (studio flats), beds at one.
	if v := q.Get("min_bedrooms"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, &domain.ValidationError{Field: "min_bedrooms", Reason: "must be a non-negative integer"}
		}
		f.MinBedrooms = &n
	}
	if v := q.Get("min_price"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return f, &domain.ValidationError{Field: "min_price", Reason: "must be a number"}
		}
		f.MinPrice = &d
	}
	if v := q.Get("max_price"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return f, &domain.ValidationError{Field: "max_price", Reason: "must be a number"}
		}
		f.MaxPrice = &d
	}
	if v := q.Get("flat"); v != "" {
		f.Flat = &v
	}
	if v := q.Get("floor"); v != "" {
		f.Floor = &v
	}
	if v := q.Get("room"); v != "" {
		f.Room = &v
	}

	latS, lonS := q.Get("lat"), q.Get("lon")
	if latS != "" || lonS != "" {
		lat, errLat := strconv.ParseFloat(latS, 64)
		lon, errLon := strconv.ParseFloat(lonS, 64)
		if errLat != nil || errLon != nil {
			return f, &domain.ValidationError{Field: "lat", Reason: "lat and lon must both be numbers"}
		}
		f.Origin = &domain.Coords{Lat: lat, Lon: lon}
	}
	f.Campus = q.Get("campus")
	if v := q.Get("max_distance"); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil || d < 0 {
			return f, &domain.ValidationError{Field: "max_distance", Reason: "must be a non-negative number"}
		}
		f.MaxDistanceKm = &d
	}
	return f, nil
}
