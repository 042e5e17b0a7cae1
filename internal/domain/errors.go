package domain

import "errors"

// Sentinel errors for the conversation flow. Handlers match these with
// errors.Is to pick the user-facing recovery path.
var (
	// ErrLocationNotFound means geocoding returned no candidates. Recoverable:
	// the user is asked to re-enter the place.
	ErrLocationNotFound = errors.New("location not found")

	// ErrGeocodingUnavailable means the geocoding provider failed (timeout,
	// quota, malformed response). Distinct from not-found: it does not consume
	// the user's retry budget.
	ErrGeocodingUnavailable = errors.New("geocoding unavailable")

	// ErrGenerationFailed wraps any chart engine or raster conversion failure.
	// Always fatal to the current attempt; never retried automatically.
	ErrGenerationFailed = errors.New("chart generation failed")

	// ErrTooManyRetries means the user exhausted the retry budget for a state.
	// Fatal: the session and its draft are destroyed.
	ErrTooManyRetries = errors.New("too many retries")

	// ErrSessionExpired means the idle timeout elapsed and the sweep destroyed
	// the session.
	ErrSessionExpired = errors.New("session expired")
)
