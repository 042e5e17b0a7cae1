package domain

import "time"

// State identifies the current step of a birth-data conversation.
type State int

const (
	// StateIdle means no conversation is in progress.
	StateIdle State = iota
	// StateAwaitingName waits for the user's name.
	StateAwaitingName
	// StateAwaitingDate waits for the birth date.
	StateAwaitingDate
	// StateAwaitingTime waits for the birth time.
	StateAwaitingTime
	// StateAwaitingPlace waits for the birth place text.
	StateAwaitingPlace
	// StateAwaitingLocationConfirm waits for the user to pick or confirm a
	// geocoding candidate.
	StateAwaitingLocationConfirm
	// StateGenerating means chart generation is in flight; user input other
	// than cancellation is ignored.
	StateGenerating
)

// String returns a stable name for logging and metrics.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingName:
		return "awaiting_name"
	case StateAwaitingDate:
		return "awaiting_date"
	case StateAwaitingTime:
		return "awaiting_time"
	case StateAwaitingPlace:
		return "awaiting_place"
	case StateAwaitingLocationConfirm:
		return "awaiting_location_confirm"
	case StateGenerating:
		return "generating"
	default:
		return "unknown"
	}
}

// Session tracks one user's conversation state and collected data.
// The session store owns the record; handlers mutate it only while holding
// the per-identity lock.
type Session struct {
	Identity     string
	State        State
	Draft        BirthDraft
	Candidates   []ResolvedLocation // pending geocoding choices, wiped with the draft
	CreatedAt    time.Time
	LastActivity time.Time

	// Version increases on every state transition. A result computed against
	// an older version (e.g. a chart finishing after /cancel) is discarded.
	Version uint64

	// Retries counts failed attempts for the current state. Reset on every
	// transition.
	Retries int
}

// Touch refreshes the activity timestamp used for expiry.
func (s *Session) Touch(now time.Time) {
	s.LastActivity = now
}

// Expired reports whether the session has been idle longer than timeout.
func (s *Session) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastActivity) > timeout
}

// Wipe destroys all personal data held by the session. Candidates are
// included: they contain the user's birth place.
func (s *Session) Wipe() {
	s.Draft.Wipe()
	for i := range s.Candidates {
		s.Candidates[i] = ResolvedLocation{}
	}
	s.Candidates = nil
}
