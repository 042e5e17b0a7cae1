package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"natalbot/internal/domain"
)

var (
	time24Pattern   = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	hourOnlyPattern = regexp.MustCompile(`^(\d{1,2})$`)
	time12Pattern   = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*([AaPp][Mm])$`)
)

// Time parses a birth time in 24-hour, 12-hour, or hour-only form. Hour-only
// input implies zero minutes.
func Time(input string) (domain.TimeOfDay, error) {
	s := strings.TrimSpace(input)

	switch {
	case time24Pattern.MatchString(s):
		m := time24Pattern.FindStringSubmatch(s)
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour > 23 || minute > 59 {
			return domain.TimeOfDay{}, outOfRange("birth_time",
				fmt.Sprintf("Invalid time %q: hours must be 0-23, minutes 0-59", s),
				SuggestTimeFormats())
		}
		return domain.TimeOfDay{Hour: hour, Minute: minute}, nil

	case hourOnlyPattern.MatchString(s):
		hour, _ := strconv.Atoi(s)
		if hour > 23 {
			return domain.TimeOfDay{}, outOfRange("birth_time",
				fmt.Sprintf("Invalid hour %q: must be 0-23", s),
				SuggestTimeFormats())
		}
		return domain.TimeOfDay{Hour: hour}, nil

	case time12Pattern.MatchString(s):
		m := time12Pattern.FindStringSubmatch(s)
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour < 1 || hour > 12 || minute > 59 {
			return domain.TimeOfDay{}, outOfRange("birth_time",
				fmt.Sprintf("Invalid time %q: hours must be 1-12 for AM/PM, minutes 0-59", s),
				SuggestTimeFormats())
		}
		hour = to24Hour(hour, strings.ToUpper(m[3]))
		return domain.TimeOfDay{Hour: hour, Minute: minute}, nil
	}

	return domain.TimeOfDay{}, invalidFormat("birth_time",
		fmt.Sprintf("Invalid time format: %q", s), SuggestTimeFormats())
}

func to24Hour(hour int, period string) int {
	if period == "AM" {
		if hour == 12 {
			return 0
		}
		return hour
	}
	if hour == 12 {
		return 12
	}
	return hour + 12
}
