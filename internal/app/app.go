package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"unihaven/internal/domain"
	"unihaven/internal/shared"
)

// Clock lets tests pin "today"; date-driven status transitions and
// admission checks are pure functions of it.
type Clock func() time.Time

func orSystem(c Clock) Clock {
	if c != nil {
		return c
	}
	return func() time.Time { return time.Now().UTC() }
}

func listingKey(id int64) string { return shared.ListingCacheKey(id) }

// notifyAsync delivers best-effort, off the request path. A failed or
// slow notifier never affects the operation that triggered it.
func notifyAsync(n domain.Notifier, recipients []string, subject, body string) {
	if n == nil || len(recipients) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := n.Notify(ctx, recipients, subject, body); err != nil {
			log.Warn().Err(err).Str("subject", subject).Msg("notification failed")
		}
	}()
}
