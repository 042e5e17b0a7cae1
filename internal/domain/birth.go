// Package domain defines the core conversation and birth-data types.
package domain

import (
	"fmt"
	"time"
)

// Date is a calendar date without time-of-day or timezone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// String returns the date in ISO format (YYYY-MM-DD).
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// TimeOfDay is a wall-clock time in 24-hour form.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// String returns the time in HH:MM format.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// DefaultBirthTime is used when the user does not know their birth time.
// Noon minimizes the worst-case error for time-sensitive chart points.
var DefaultBirthTime = TimeOfDay{Hour: 12, Minute: 0}

// ResolvedLocation is a geocoded birth place with coordinates and timezone.
type ResolvedLocation struct {
	Name       string  `json:"name"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Timezone   string  `json:"timezone"`
	Confidence float64 `json:"confidence"`
}

// Valid reports whether coordinates are in range and the timezone is set.
func (l ResolvedLocation) Valid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 &&
		l.Longitude >= -180 && l.Longitude <= 180 &&
		l.Timezone != ""
}

// BirthDraft is the partially filled birth-data record for one conversation.
// Fields are written only by the conversation state that owns them.
type BirthDraft struct {
	Name          string
	Date          *Date
	Time          *TimeOfDay
	TimeDefaulted bool // true when the user did not know their birth time
	Place         string
	Location      *ResolvedLocation
}

// Complete reports whether all fields required for chart generation are set.
func (d *BirthDraft) Complete() bool {
	return d.Name != "" && d.Date != nil && d.Time != nil && d.Location != nil
}

// EffectiveTime returns the birth time, or the documented noon default when
// the time is unknown.
func (d *BirthDraft) EffectiveTime() TimeOfDay {
	if d.Time != nil {
		return *d.Time
	}
	return DefaultBirthTime
}

// Clone returns a deep copy of the draft. Used to hand an immutable snapshot
// to chart generation while the session record remains mutable.
func (d *BirthDraft) Clone() BirthDraft {
	out := BirthDraft{
		Name:          d.Name,
		TimeDefaulted: d.TimeDefaulted,
		Place:         d.Place,
	}
	if d.Date != nil {
		date := *d.Date
		out.Date = &date
	}
	if d.Time != nil {
		tm := *d.Time
		out.Time = &tm
	}
	if d.Location != nil {
		loc := *d.Location
		out.Location = &loc
	}
	return out
}

// Wipe zeroes every field of the draft. This is the privacy guarantee: it
// must run on every path out of a conversation before the session record is
// released or reused.
func (d *BirthDraft) Wipe() {
	d.Name = ""
	d.Date = nil
	d.Time = nil
	d.TimeDefaulted = false
	d.Place = ""
	d.Location = nil
}
