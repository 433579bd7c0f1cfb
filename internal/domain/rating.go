package domain

import "time"

// Rating is immutable once created; at most one exists per
// (listing, student) pair, enforced by a storage uniqueness constraint.
type Rating struct {
	ID        int64
	ListingID int64
	StudentID string
	Value     int
	Comment   string
	CreatedAt time.Time
}

func (r Rating) Validate() error {
	if r.Value < 1 || r.Value > 5 {
		return invalid("value", "must be between 1 and 5")
	}
	return nil
}

// AggregateRating is the derived mean of all rating values, rounded to
// 2 decimals. Zero when no ratings exist.
func AggregateRating(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return round2(float64(sum) / float64(len(values)))
}
