package session

import (
	"context"
	"log/slog"
	"time"
)

// StartSweeper runs the periodic expiry sweep until ctx is cancelled.
// onExpired is invoked once per destroyed identity, after the session data is
// already wiped; it is used to notify the user and record statistics.
func StartSweeper(ctx context.Context, store *Store, interval time.Duration, onExpired func(identity string)) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval, "timeout", store.Timeout())

		for {
			select {
			case <-ticker.C:
				sweepOnce(store, onExpired)
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepOnce(store *Store, onExpired func(identity string)) {
	destroyed := store.SweepExpired(time.Now())
	if len(destroyed) == 0 {
		return
	}

	slog.Info("Session sweeper destroyed expired sessions", "count", len(destroyed))

	for _, identity := range destroyed {
		if onExpired != nil {
			onExpired(identity)
		}
	}
}
