// Package store persists anonymous usage statistics. It never stores birth
// data, names, places, or any other personal field. Sessions live only in
// memory; this repository exists for operational visibility.
package store

import (
	"context"
	"time"
)

// Event kinds recorded by the conversation flow.
const (
	EventConversationStarted = "conversation_started"
	EventChartGenerated      = "chart_generated"
	EventGenerationFailed    = "generation_failed"
	EventSessionCancelled    = "session_cancelled"
	EventSessionExpired      = "session_expired"
	EventRetriesExhausted    = "retries_exhausted"
)

// Repository records and aggregates anonymous usage events.
type Repository interface {
	// RecordEvent stores one occurrence of the given event kind.
	RecordEvent(ctx context.Context, kind string) error

	// CountSince returns how many events of the kind occurred at or after
	// the given instant.
	CountSince(ctx context.Context, kind string, since time.Time) (int64, error)

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying storage.
	Close() error
}

// Noop is a Repository that discards everything. Used in tests and when the
// statistics database is disabled.
type Noop struct{}

// RecordEvent discards the event.
func (Noop) RecordEvent(context.Context, string) error { return nil }

// CountSince always reports zero.
func (Noop) CountSince(context.Context, string, time.Time) (int64, error) { return 0, nil }

// Ping always succeeds.
func (Noop) Ping(context.Context) error { return nil }

// Close is a no-op.
func (Noop) Close() error { return nil }
