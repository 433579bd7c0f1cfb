package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"unihaven/internal/domain"
)

// Repo is an in-process Repository used by tests and local development.
// Admission and rating writes take a per-listing mutex so the capacity
// check and the insert form one critical section per listing identity;
// the outer mutex only guards map access.
type Repo struct {
	mu           sync.RWMutex
	listings     map[int64]domain.Listing
	dedupe       map[string]int64
	reservations map[string]domain.Reservation
	ratings      map[int64][]domain.Rating
	ratingKeys   map[string]struct{}

	locks   map[int64]*sync.Mutex
	locksMu sync.Mutex

	nextListing     int64
	nextReservation int64
	nextRating      int64
}

func New() *Repo {
	return &Repo{
		listings:     make(map[int64]domain.Listing),
		dedupe:       make(map[string]int64),
		reservations: make(map[string]domain.Reservation),
		ratings:      make(map[int64][]domain.Rating),
		ratingKeys:   make(map[string]struct{}),
		locks:        make(map[int64]*sync.Mutex),
	}
}

func (s *Repo) lockFor(listingID int64) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lk, ok := s.locks[listingID]
	if !ok {
		lk = &sync.Mutex{}
		s.locks[listingID] = lk
	}
	return lk
}

func ratingKey(listingID int64, studentID string) string {
	return fmt.Sprintf("%d|%s", listingID, studentID)
}

func copyListing(l domain.Listing) domain.Listing {
	out := l
	if l.Coords != nil {
		c := *l.Coords
		out.Coords = &c
	}
	out.EligibleUniversities = append([]string(nil), l.EligibleUniversities...)
	return out
}

// ---- listings ----

func (s *Repo) CreateListing(ctx context.Context, l domain.Listing) (domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := l.DedupeKey()
	if _, exists := s.dedupe[key]; exists {
		return domain.Listing{}, domain.ErrDuplicate
	}
	s.nextListing++
	l.ID = s.nextListing
	now := time.Now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now
	s.listings[l.ID] = copyListing(l)
	s.dedupe[key] = l.ID
	return copyListing(l), nil
}

func (s *Repo) UpdateListing(ctx context.Context, l domain.Listing) (domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.listings[l.ID]
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	newKey := l.DedupeKey()
	if owner, exists := s.dedupe[newKey]; exists && owner != l.ID {
		return domain.Listing{}, domain.ErrDuplicate
	}
	delete(s.dedupe, cur.DedupeKey())
	s.dedupe[newKey] = l.ID

	l.CreatedAt = cur.CreatedAt
	l.Rating = cur.Rating
	l.UpdatedAt = time.Now().UTC()
	s.listings[l.ID] = copyListing(l)
	return copyListing(l), nil
}

func (s *Repo) DeleteListing(ctx context.Context, id int64) error {
	lk := s.lockFor(id)
	lk.Lock()
	defer lk.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[id]
	if !ok {
		return domain.ErrNotFound
	}
	today := time.Now().UTC()
	for _, r := range s.reservations {
		if r.ListingID == id && domain.DeriveStatus(r.Status, r.StartDate, r.EndDate, today).Active() {
			return domain.ErrListingBusy
		}
	}
	delete(s.dedupe, l.DedupeKey())
	delete(s.listings, id)
	for uid, r := range s.reservations {
		if r.ListingID == id {
			delete(s.reservations, uid)
		}
	}
	for _, rt := range s.ratings[id] {
		delete(s.ratingKeys, ratingKey(id, rt.StudentID))
	}
	delete(s.ratings, id)
	return nil
}

func (s *Repo) GetListing(ctx context.Context, id int64) (domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[id]
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	return copyListing(l), nil
}

func (s *Repo) ListVisible(ctx context.Context, university string) ([]domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Listing
	for _, l := range s.listings {
		if l.VisibleTo(university) {
			out = append(out, copyListing(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Repo) ListUnresolved(ctx context.Context) ([]domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Listing
	for _, l := range s.listings {
		if l.Coords == nil {
			out = append(out, copyListing(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Repo) SetListingLocation(ctx context.Context, id int64, c domain.Coords, geoAddress string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return domain.ErrNotFound
	}
	oldKey := l.DedupeKey()
	l.Coords = &c
	l.GeoAddress = geoAddress
	newKey := l.DedupeKey()
	if owner, exists := s.dedupe[newKey]; exists && owner != id {
		return domain.ErrDuplicate
	}
	delete(s.dedupe, oldKey)
	s.dedupe[newKey] = id
	l.UpdatedAt = time.Now().UTC()
	s.listings[id] = l
	return nil
}

// ---- reservations ----

func (s *Repo) AdmitReservation(ctx context.Context, r domain.Reservation, today time.Time) (domain.Reservation, error) {
	lk := s.lockFor(r.ListingID)
	lk.Lock()
	defer lk.Unlock()

	s.mu.RLock()
	l, ok := s.listings[r.ListingID]
	count := 0
	if ok {
		for _, ex := range s.reservations {
			if ex.ListingID == r.ListingID &&
				domain.DeriveStatus(ex.Status, ex.StartDate, ex.EndDate, today).Active() {
				count++
			}
		}
	}
	s.mu.RUnlock()
	if !ok {
		return domain.Reservation{}, domain.ErrNotFound
	}

	if err := domain.CheckAdmission(l, count, r.University, r.StartDate, r.EndDate, today); err != nil {
		return domain.Reservation{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextReservation++
	r.ID = s.nextReservation
	r.Status = domain.StatusPending
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	s.reservations[r.UID] = r
	return r, nil
}

func (s *Repo) GetReservation(ctx context.Context, uid string) (domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reservations[uid]
	if !ok {
		return domain.Reservation{}, domain.ErrNotFound
	}
	return r, nil
}

func (s *Repo) CancelReservation(ctx context.Context, uid string, today time.Time) (domain.Reservation, error) {
	s.mu.RLock()
	r, ok := s.reservations[uid]
	s.mu.RUnlock()
	if !ok {
		return domain.Reservation{}, domain.ErrNotFound
	}

	// Same critical section as AdmitReservation, so a cancel and a
	// competing admission on the listing serialize.
	lk := s.lockFor(r.ListingID)
	lk.Lock()
	defer lk.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok = s.reservations[uid]
	if !ok {
		return domain.Reservation{}, domain.ErrNotFound
	}
	derived := domain.DeriveStatus(r.Status, r.StartDate, r.EndDate, today)
	if derived.Terminal() {
		if derived != r.Status {
			r.Status = derived
			r.UpdatedAt = time.Now().UTC()
			s.reservations[uid] = r
		}
		return domain.Reservation{}, domain.ErrTerminalStatus
	}
	r.Status = domain.StatusCancelled
	r.UpdatedAt = time.Now().UTC()
	s.reservations[uid] = r
	return r, nil
}

// UpdateReservationStatus persists a derived status; terminal rows are
// never overwritten by a caller holding a stale snapshot.
func (s *Repo) UpdateReservationStatus(ctx context.Context, uid string, st domain.ReservationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[uid]
	if !ok {
		return domain.ErrNotFound
	}
	if r.Status.Terminal() {
		return nil
	}
	r.Status = st
	r.UpdatedAt = time.Now().UTC()
	s.reservations[uid] = r
	return nil
}

func (s *Repo) ListReservationsByStudent(ctx context.Context, studentID string) ([]domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Reservation
	for _, r := range s.reservations {
		if r.StudentID == studentID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Repo) ListReservationsByUniversity(ctx context.Context, university string) ([]domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Reservation
	for _, r := range s.reservations {
		if l, ok := s.listings[r.ListingID]; ok && l.VisibleTo(university) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Repo) CountActive(ctx context.Context, listingID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	today := time.Now().UTC()
	count := 0
	for _, r := range s.reservations {
		if r.ListingID == listingID &&
			domain.DeriveStatus(r.Status, r.StartDate, r.EndDate, today).Active() {
			count++
		}
	}
	return count, nil
}

// ---- ratings ----

func (s *Repo) SubmitRating(ctx context.Context, rt domain.Rating, today time.Time) (domain.Rating, domain.Listing, error) {
	lk := s.lockFor(rt.ListingID)
	lk.Lock()
	defer lk.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[rt.ListingID]
	if !ok {
		return domain.Rating{}, domain.Listing{}, domain.ErrNotFound
	}

	stayed := false
	for _, r := range s.reservations {
		if r.ListingID == rt.ListingID && r.StudentID == rt.StudentID &&
			domain.DeriveStatus(r.Status, r.StartDate, r.EndDate, today) == domain.StatusCompleted {
			stayed = true
			break
		}
	}
	if !stayed {
		return domain.Rating{}, domain.Listing{}, domain.ErrNoStay
	}

	key := ratingKey(rt.ListingID, rt.StudentID)
	if _, dup := s.ratingKeys[key]; dup {
		return domain.Rating{}, domain.Listing{}, domain.ErrDuplicate
	}

	s.nextRating++
	rt.ID = s.nextRating
	rt.CreatedAt = time.Now().UTC()
	s.ratings[rt.ListingID] = append(s.ratings[rt.ListingID], rt)
	s.ratingKeys[key] = struct{}{}

	values := make([]int, 0, len(s.ratings[rt.ListingID]))
	for _, existing := range s.ratings[rt.ListingID] {
		values = append(values, existing.Value)
	}
	l.Rating = domain.AggregateRating(values)
	l.UpdatedAt = time.Now().UTC()
	s.listings[rt.ListingID] = l

	return rt, copyListing(l), nil
}

func (s *Repo) ListRatings(ctx context.Context, listingID int64) ([]domain.Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.listings[listingID]; !ok {
		return nil, domain.ErrNotFound
	}
	return append([]domain.Rating(nil), s.ratings[listingID]...), nil
}
