package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"unihaven/internal/app"
	"unihaven/internal/domain"
	"unihaven/internal/storage/memory"
)

// ---- fakes ----

type fakeCache struct {
	mu    sync.Mutex
	store map[string]any
	dels  []string
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store[key]
	if !ok {
		return false, nil
	}
	if d, isListing := dst.(*domain.Listing); isListing {
		*d = v.(domain.Listing)
	}
	return true, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string]any{}
	}
	c.store[key] = v
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	c.dels = append(c.dels, key)
	return nil
}

type fakeGeocoder struct {
	coords domain.Coords
	label  string
	err    error
}

func (g *fakeGeocoder) Resolve(ctx context.Context, address string) (domain.Coords, string, error) {
	if g.err != nil {
		return domain.Coords{}, "", g.err
	}
	return g.coords, g.label, nil
}

func day(s string) time.Time {
	t, err := time.Parse(domain.DateFormat, s)
	if err != nil {
		panic(err)
	}
	return t
}

func fixedClock(s string) app.Clock {
	return func() time.Time { return day(s) }
}

var (
	staffHKU   = domain.Identity{ID: "staff-1", University: "HKU", Role: domain.RoleStaff}
	studentHKU = domain.Identity{ID: "stu-1", University: "HKU", Role: domain.RoleStudent}
	otherHKU   = domain.Identity{ID: "stu-2", University: "HKU", Role: domain.RoleStudent}
	cuhkStu    = domain.Identity{ID: "stu-9", University: "CUHK", Role: domain.RoleStudent}
)

func listingInput(beds int, universities ...string) app.ListingInput {
	if len(universities) == 0 {
		universities = []string{"HKU"}
	}
	return app.ListingInput{
		Title:         "Studio near MTR",
		PropertyType:  "AP",
		Price:         decimal.NewFromInt(7800),
		Beds:          beds,
		Bedrooms:      1,
		Address:       "99 Hill Road",
		AvailableFrom: day("2026-01-01"),
		AvailableTo:   day("2027-12-31"),
		Universities:  universities,
	}
}

func seed(t *testing.T, repo *memory.Repo, cache domain.Cache, beds int, universities ...string) domain.Listing {
	t.Helper()
	catalog := app.NewCatalogService(repo, cache, &fakeGeocoder{coords: domain.Coords{Lat: 22.28, Lon: 114.14}, label: "99 HILL ROAD"}, nil, time.Minute)
	l, err := catalog.Create(context.Background(), staffHKU, listingInput(beds, universities...))
	if err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	return l
}

// ---- tests ----

func TestAdmitExactlyOneWinsLastBed(t *testing.T) {
	repo := memory.New()
	cache := &fakeCache{}
	l := seed(t, repo, cache, 1)
	svc := app.NewReservationService(repo, cache, nil, fixedClock("2026-06-01"))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, actor := range []domain.Identity{studentHKU, otherHKU} {
		wg.Add(1)
		go func(i int, actor domain.Identity) {
			defer wg.Done()
			_, errs[i] = svc.Admit(context.Background(), actor, l.ID, day("2026-07-01"), day("2026-07-31"))
		}(i, actor)
	}
	wg.Wait()

	admitted, denied := 0, 0
	for _, err := range errs {
		if err == nil {
			admitted++
			continue
		}
		if reason, ok := domain.DeniedReason(err); ok && reason == domain.DenyFullyBooked {
			denied++
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if admitted != 1 || denied != 1 {
		t.Fatalf("admitted=%d denied=%d, want exactly one of each", admitted, denied)
	}
}

func TestAdmitIneligibleUniversity(t *testing.T) {
	repo := memory.New()
	cache := &fakeCache{}
	l := seed(t, repo, cache, 5)
	svc := app.NewReservationService(repo, cache, nil, fixedClock("2026-06-01"))

	_, err := svc.Admit(context.Background(), cuhkStu, l.ID, day("2026-07-01"), day("2026-07-31"))
	reason, ok := domain.DeniedReason(err)
	if !ok || reason != domain.DenyNotEligible {
		t.Fatalf("expected not_eligible denial, got %v", err)
	}

	// Free beds remained free: an eligible student still gets in.
	if _, err := svc.Admit(context.Background(), studentHKU, l.ID, day("2026-07-01"), day("2026-07-31")); err != nil {
		t.Fatalf("eligible admission after denial failed: %v", err)
	}
}

func TestAdmitInvalidRange(t *testing.T) {
	repo := memory.New()
	cache := &fakeCache{}
	l := seed(t, repo, cache, 2)
	svc := app.NewReservationService(repo, cache, nil, fixedClock("2026-06-01"))

	_, err := svc.Admit(context.Background(), studentHKU, l.ID, day("2026-05-01"), day("2026-07-31"))
	if reason, ok := domain.DeniedReason(err); !ok || reason != domain.DenyInvalidRange {
		t.Fatalf("past start: expected invalid_range, got %v", err)
	}

	_, err = svc.Admit(context.Background(), studentHKU, l.ID, day("2026-08-01"), day("2026-07-01"))
	if reason, ok := domain.DeniedReason(err); !ok || reason != domain.DenyInvalidRange {
		t.Fatalf("start after end: expected invalid_range, got %v", err)
	}
}

func TestCancelFreesBedAndInvalidatesCache(t *testing.T) {
	repo := memory.New()
	cache := &fakeCache{}
	l := seed(t, repo, cache, 1)
	svc := app.NewReservationService(repo, cache, nil, fixedClock("2026-06-01"))

	res, err := svc.Admit(context.Background(), studentHKU, l.ID, day("2026-07-01"), day("2026-07-31"))
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if _, err := svc.Admit(context.Background(), otherHKU, l.ID, day("2026-07-01"), day("2026-07-31")); err == nil {
		t.Fatal("second admission on a single bed must be denied")
	}

	if err := svc.Cancel(context.Background(), studentHKU, res.UID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(cache.dels) == 0 {
		t.Fatal("cancel must invalidate the cached listing")
	}

	if _, err := svc.Admit(context.Background(), otherHKU, l.ID, day("2026-07-01"), day("2026-07-31")); err != nil {
		t.Fatalf("bed not freed after cancel: %v", err)
	}
}

func TestStatusPersistAfterCancelKeepsCancelled(t *testing.T) {
	repo := memory.New()
	cache := &fakeCache{}
	l := seed(t, repo, cache, 1)
	svc := app.NewReservationService(repo, cache, nil, fixedClock("2026-06-01"))

	res, err := svc.Admit(context.Background(), studentHKU, l.ID, day("2026-06-01"), day("2026-07-31"))
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	// A concurrent reader derived the mid-stay status from a snapshot
	// taken before the cancel landed.
	snapshot, err := repo.GetReservation(context.Background(), res.UID)
	if err != nil {
		t.Fatalf("GetReservation: %v", err)
	}
	if !snapshot.RefreshStatus(day("2026-06-01")) || snapshot.Status != domain.StatusConfirmed {
		t.Fatalf("snapshot status = %q, want derived confirmed", snapshot.Status)
	}

	if err := svc.Cancel(context.Background(), studentHKU, res.UID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// The reader's late persist must not resurrect the reservation.
	if err := repo.UpdateReservationStatus(context.Background(), res.UID, snapshot.Status); err != nil {
		t.Fatalf("stale persist: %v", err)
	}
	got, err := svc.Get(context.Background(), studentHKU, res.UID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusCancelled {
		t.Fatalf("reservation resurrected to %q after cancel", got.Status)
	}

	// And the bed it held stays free.
	if _, err := svc.Admit(context.Background(), otherHKU, l.ID, day("2026-07-01"), day("2026-07-31")); err != nil {
		t.Fatalf("bed still held by cancelled reservation: %v", err)
	}
}

func TestCancelAuthorization(t *testing.T) {
	repo := memory.New()
	cache := &fakeCache{}
	l := seed(t, repo, cache, 2)
	svc := app.NewReservationService(repo, cache, nil, fixedClock("2026-06-01"))

	res, err := svc.Admit(context.Background(), studentHKU, l.ID, day("2026-07-01"), day("2026-07-31"))
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	if err := svc.Cancel(context.Background(), otherHKU, res.UID); err != domain.ErrForbidden {
		t.Fatalf("another student cancelling: got %v, want ErrForbidden", err)
	}
	if err := svc.Cancel(context.Background(), staffHKU, res.UID); err != nil {
		t.Fatalf("staff of eligible university must be able to cancel: %v", err)
	}
	// Already terminal now.
	if err := svc.Cancel(context.Background(), studentHKU, res.UID); err != domain.ErrTerminalStatus {
		t.Fatalf("cancelling a cancelled reservation: got %v, want ErrTerminalStatus", err)
	}
}

func TestListRefreshesStaleStatuses(t *testing.T) {
	repo := memory.New()
	cache := &fakeCache{}
	l := seed(t, repo, cache, 3)
	svc := app.NewReservationService(repo, cache, nil, fixedClock("2026-06-01"))

	past, err := svc.Admit(context.Background(), studentHKU, l.ID, day("2026-06-05"), day("2026-06-10"))
	if err != nil {
		t.Fatalf("admit past: %v", err)
	}
	ongoing, err := svc.Admit(context.Background(), studentHKU, l.ID, day("2026-06-20"), day("2026-07-20"))
	if err != nil {
		t.Fatalf("admit ongoing: %v", err)
	}

	later := app.NewReservationService(repo, cache, nil, fixedClock("2026-07-01"))
	items, err := later.List(context.Background(), studentHKU)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := map[string]domain.ReservationStatus{}
	for _, r := range items {
		got[r.UID] = r.Status
	}
	if got[past.UID] != domain.StatusCompleted {
		t.Fatalf("past stay = %s, want completed", got[past.UID])
	}
	if got[ongoing.UID] != domain.StatusConfirmed {
		t.Fatalf("ongoing stay = %s, want confirmed", got[ongoing.UID])
	}

	// The derived statuses were written back, not just rendered.
	stored, err := repo.GetReservation(context.Background(), past.UID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.StatusCompleted {
		t.Fatalf("stored status = %s, want completed", stored.Status)
	}
}

func TestListScopes(t *testing.T) {
	repo := memory.New()
	cache := &fakeCache{}
	l := seed(t, repo, cache, 3)
	svc := app.NewReservationService(repo, cache, nil, fixedClock("2026-06-01"))

	if _, err := svc.Admit(context.Background(), studentHKU, l.ID, day("2026-07-01"), day("2026-07-31")); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if _, err := svc.Admit(context.Background(), otherHKU, l.ID, day("2026-07-01"), day("2026-07-31")); err != nil {
		t.Fatalf("admit: %v", err)
	}

	mine, err := svc.List(context.Background(), studentHKU)
	if err != nil {
		t.Fatalf("list student: %v", err)
	}
	if len(mine) != 1 || mine[0].StudentID != studentHKU.ID {
		t.Fatalf("student sees %d reservations, want only their own", len(mine))
	}

	all, err := svc.List(context.Background(), staffHKU)
	if err != nil {
		t.Fatalf("list staff: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("staff sees %d reservations, want 2", len(all))
	}
}
