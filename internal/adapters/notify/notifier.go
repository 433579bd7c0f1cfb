package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier records outbound notifications instead of delivering them.
// Real delivery (email/SMS) lives outside this engine; callers treat any
// Notifier as best-effort and never roll back on its errors.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLog(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, recipients []string, subject, body string) error {
	n.log.Info().
		Strs("recipients", recipients).
		Str("subject", subject).
		Str("body", body).
		Msg("notification")
	return nil
}
