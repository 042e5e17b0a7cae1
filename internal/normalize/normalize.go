// Package normalize parses free-text user input into canonical typed values.
// It is purely syntactic: no I/O, no session state. Geocoding lives in the
// geocode package because it is an I/O boundary, not a format concern.
package normalize

// Kind classifies a validation failure.
type Kind int

const (
	// InvalidFormat means no supported pattern matched the input.
	InvalidFormat Kind = iota
	// OutOfRange means a pattern matched but the value failed semantic bounds
	// (impossible calendar date, hour > 23, year outside limits).
	OutOfRange
)

// String returns a stable name for logging.
func (k Kind) String() string {
	switch k {
	case InvalidFormat:
		return "invalid_format"
	case OutOfRange:
		return "out_of_range"
	default:
		return "unknown"
	}
}

// FieldError is a recoverable validation failure with enough context for the
// conversation flow to produce a helpful re-prompt.
type FieldError struct {
	Field       string
	Kind        Kind
	Message     string
	Remediation string
}

// Error implements the error interface. The combined message is shown to the
// user verbatim.
func (e *FieldError) Error() string {
	if e.Remediation == "" {
		return e.Message
	}
	return e.Message + "\n\n" + e.Remediation
}

func invalidFormat(field, message, remediation string) *FieldError {
	return &FieldError{Field: field, Kind: InvalidFormat, Message: message, Remediation: remediation}
}

func outOfRange(field, message, remediation string) *FieldError {
	return &FieldError{Field: field, Kind: OutOfRange, Message: message, Remediation: remediation}
}

// SuggestDateFormats lists the accepted date formats with examples.
func SuggestDateFormats() string {
	return "Please use one of:\n" +
		"  - YYYY-MM-DD (e.g., 1990-05-15)\n" +
		"  - DD/MM/YYYY (e.g., 15/05/1990)\n" +
		"  - Month DD, YYYY (e.g., May 15, 1990)\n" +
		"  - DD Month YYYY (e.g., 15 May 1990)"
}

// SuggestTimeFormats lists the accepted time formats with examples.
func SuggestTimeFormats() string {
	return "Please use one of:\n" +
		"  - HH:MM (24-hour, e.g., 14:30)\n" +
		"  - HH:MM AM/PM (12-hour, e.g., 2:30 PM)\n" +
		"  - HH (hour only, e.g., 14 or 2 PM)"
}
