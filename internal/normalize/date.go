package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"natalbot/internal/domain"
)

// Date format patterns, tried in fixed priority order. The first structural
// match is authoritative: a match that fails calendar or range validation is
// rejected as OutOfRange rather than reinterpreted by a later pattern.
var (
	isoDatePattern     = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	numericDatePattern = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{4})$`)
	monthFirstPattern  = regexp.MustCompile(`^([A-Za-z]+)\s+(\d{1,2}),?\s+(\d{4})$`)
	dayFirstPattern    = regexp.MustCompile(`^(\d{1,2})\s+([A-Za-z]+)\s+(\d{4})$`)
)

var monthsByName = map[string]time.Month{
	"january":   time.January,
	"february":  time.February,
	"march":     time.March,
	"april":     time.April,
	"may":       time.May,
	"june":      time.June,
	"july":      time.July,
	"august":    time.August,
	"september": time.September,
	"october":   time.October,
	"november":  time.November,
	"december":  time.December,
}

// Date parses a birth date in one of the supported formats and validates it
// against the calendar and the [minYear, today] range.
func Date(input string, minYear int, now time.Time) (domain.Date, error) {
	s := strings.TrimSpace(input)

	var (
		year, day int
		month     time.Month
		matched   bool
	)

	switch {
	case isoDatePattern.MatchString(s):
		m := isoDatePattern.FindStringSubmatch(s)
		year, _ = strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		month = time.Month(mo)
		day, _ = strconv.Atoi(m[3])
		matched = true

	case numericDatePattern.MatchString(s):
		m := numericDatePattern.FindStringSubmatch(s)
		day, _ = strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		month = time.Month(mo)
		year, _ = strconv.Atoi(m[3])
		matched = true

	case monthFirstPattern.MatchString(s):
		m := monthFirstPattern.FindStringSubmatch(s)
		mo, ok := monthsByName[strings.ToLower(m[1])]
		if !ok {
			return domain.Date{}, outOfRange("birth_date",
				fmt.Sprintf("Unknown month name %q", m[1]), SuggestDateFormats())
		}
		month = mo
		day, _ = strconv.Atoi(m[2])
		year, _ = strconv.Atoi(m[3])
		matched = true

	case dayFirstPattern.MatchString(s):
		m := dayFirstPattern.FindStringSubmatch(s)
		day, _ = strconv.Atoi(m[1])
		mo, ok := monthsByName[strings.ToLower(m[2])]
		if !ok {
			return domain.Date{}, outOfRange("birth_date",
				fmt.Sprintf("Unknown month name %q", m[2]), SuggestDateFormats())
		}
		month = mo
		year, _ = strconv.Atoi(m[3])
		matched = true
	}

	if !matched {
		return domain.Date{}, invalidFormat("birth_date",
			fmt.Sprintf("Invalid date format: %q", s), SuggestDateFormats())
	}

	if !validCalendarDate(year, month, day) {
		return domain.Date{}, outOfRange("birth_date",
			fmt.Sprintf("%q is not a valid calendar date", s),
			"Please enter a real calendar date, e.g., 1990-05-15.")
	}

	if year < minYear {
		return domain.Date{}, outOfRange("birth_date",
			fmt.Sprintf("Birth year must be %d or later", minYear),
			fmt.Sprintf("Please enter a date between %d and today.", minYear))
	}

	parsed := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if parsed.After(today) {
		return domain.Date{}, outOfRange("birth_date",
			"Birth date cannot be in the future",
			"Please enter a birth date in the past.")
	}

	return domain.Date{Year: year, Month: month, Day: day}, nil
}

func validCalendarDate(year int, month time.Month, day int) bool {
	if month < time.January || month > time.December {
		return false
	}
	if day < 1 || day > daysInMonth(year, month) {
		return false
	}
	return true
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
