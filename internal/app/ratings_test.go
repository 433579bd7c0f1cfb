package app_test

import (
	"context"
	"errors"
	"testing"

	"unihaven/internal/app"
	"unihaven/internal/domain"
	"unihaven/internal/storage/memory"
)

// completedStay admits a reservation whose stay is over by the given day.
func completedStay(t *testing.T, repo *memory.Repo, listingID int64, actor domain.Identity, start, end string) {
	t.Helper()
	svc := app.NewReservationService(repo, &fakeCache{}, nil, fixedClock(start))
	if _, err := svc.Admit(context.Background(), actor, listingID, day(start), day(end)); err != nil {
		t.Fatalf("seed stay: %v", err)
	}
}

func TestSubmitRatingAggregates(t *testing.T) {
	repo := memory.New()
	cache := &fakeCache{}
	l := seed(t, repo, cache, 3)
	completedStay(t, repo, l.ID, studentHKU, "2026-02-01", "2026-02-28")
	completedStay(t, repo, l.ID, otherHKU, "2026-03-01", "2026-03-31")

	svc := app.NewRatingService(repo, cache, fixedClock("2026-09-01"))

	_, updated, err := svc.Submit(context.Background(), studentHKU, l.ID, 4, "good light, thin walls")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if updated.Rating != 4 {
		t.Fatalf("aggregate after first rating = %v, want 4", updated.Rating)
	}

	_, updated, err = svc.Submit(context.Background(), otherHKU, l.ID, 2, "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if updated.Rating != 3 {
		t.Fatalf("aggregate after second rating = %v, want 3", updated.Rating)
	}
	if len(cache.dels) == 0 {
		t.Fatal("a new rating must invalidate the cached listing")
	}
}

func TestSubmitRatingDuplicateKeepsAggregate(t *testing.T) {
	repo := memory.New()
	cache := &fakeCache{}
	l := seed(t, repo, cache, 3)
	completedStay(t, repo, l.ID, studentHKU, "2026-02-01", "2026-02-28")

	svc := app.NewRatingService(repo, cache, fixedClock("2026-09-01"))
	if _, _, err := svc.Submit(context.Background(), studentHKU, l.ID, 4, ""); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, _, err := svc.Submit(context.Background(), studentHKU, l.ID, 1, "changed my mind"); !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("second rating: got %v, want ErrDuplicate", err)
	}

	got, err := repo.GetListing(context.Background(), l.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Rating != 4 {
		t.Fatalf("aggregate changed by rejected rating: %v", got.Rating)
	}
}

func TestSubmitRatingRequiresCompletedStay(t *testing.T) {
	repo := memory.New()
	cache := &fakeCache{}
	l := seed(t, repo, cache, 3)

	// Ongoing stay, not completed.
	res := app.NewReservationService(repo, cache, nil, fixedClock("2026-06-01"))
	if _, err := res.Admit(context.Background(), studentHKU, l.ID, day("2026-06-01"), day("2026-12-31")); err != nil {
		t.Fatalf("admit: %v", err)
	}

	svc := app.NewRatingService(repo, cache, fixedClock("2026-09-01"))
	if _, _, err := svc.Submit(context.Background(), studentHKU, l.ID, 5, ""); !errors.Is(err, domain.ErrNoStay) {
		t.Fatalf("rating mid-stay: got %v, want ErrNoStay", err)
	}
	if _, _, err := svc.Submit(context.Background(), otherHKU, l.ID, 5, ""); !errors.Is(err, domain.ErrNoStay) {
		t.Fatalf("rating with no stay: got %v, want ErrNoStay", err)
	}
}

func TestSubmitRatingValidatesValue(t *testing.T) {
	repo := memory.New()
	svc := app.NewRatingService(repo, &fakeCache{}, fixedClock("2026-09-01"))
	if _, _, err := svc.Submit(context.Background(), studentHKU, 1, 6, ""); !domain.IsValidation(err) {
		t.Fatalf("value 6: got %v, want validation error", err)
	}
}

func TestListRatingsVisibility(t *testing.T) {
	repo := memory.New()
	cache := &fakeCache{}
	l := seed(t, repo, cache, 3)
	completedStay(t, repo, l.ID, studentHKU, "2026-02-01", "2026-02-28")

	svc := app.NewRatingService(repo, cache, fixedClock("2026-09-01"))
	if _, _, err := svc.Submit(context.Background(), studentHKU, l.ID, 4, ""); err != nil {
		t.Fatalf("submit: %v", err)
	}

	items, err := svc.List(context.Background(), otherHKU, l.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].Value != 4 {
		t.Fatalf("ratings = %+v", items)
	}

	if _, err := svc.List(context.Background(), cuhkStu, l.ID); err != domain.ErrForbidden {
		t.Fatalf("ineligible student listing ratings: got %v, want ErrForbidden", err)
	}

	var missing int64 = 404
	if _, err := svc.List(context.Background(), otherHKU, missing); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown listing: got %v, want ErrNotFound", err)
	}
}
