package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Middleware wraps a Handler with cross-cutting behavior.
type Middleware func(Handler) Handler

// Chain applies middleware around h, first listed outermost.
func Chain(h Handler, mw ...Middleware) Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// Logging records one line per handled event. Message content is birth data
// and never reaches the log, only the event kind does.
func Logging() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, ev Event) ([]Reply, error) {
			start := time.Now()
			replies, err := next(ctx, ev)
			attrs := []any{
				"identity", ev.Identity,
				"kind", eventKind(ev.Text),
				"replies", len(replies),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if err != nil {
				attrs = append(attrs, "error", err)
				slog.Error("Chat event failed", attrs...)
			} else {
				slog.Info("Chat event handled", attrs...)
			}
			return replies, err
		}
	}
}

// Recovery turns a handler panic into an apology, destroying the session so
// no draft survives an unknown failure mode.
func Recovery(e *Engine) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, ev Event) (replies []Reply, err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				slog.Error("Panic while handling chat event", "identity", ev.Identity, "panic", r)
				e.store.Destroy(ev.Identity)
				replies = []Reply{{Text: noticeUnexpectedError}}
				err = fmt.Errorf("handler panic: %v", r)
			}()
			return next(ctx, ev)
		}
	}
}
