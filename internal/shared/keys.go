package shared

import "fmt"

// ListingCacheKey is the cache key scheme shared by the API and the
// geocode backfill job.
func ListingCacheKey(id int64) string { return fmt.Sprintf("listing:%d", id) }
