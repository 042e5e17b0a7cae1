package normalize

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	maxNameLength  = 100
	maxPlaceLength = 200
)

// Name validates the user's name: 1-100 characters with at least one letter.
func Name(input string) (string, error) {
	name := strings.TrimSpace(input)

	if name == "" {
		return "", invalidFormat("name",
			"Name cannot be empty",
			"Please enter a name (1-100 characters with at least one letter).")
	}
	if len([]rune(name)) > maxNameLength {
		return "", outOfRange("name",
			fmt.Sprintf("Name is too long (%d characters)", len([]rune(name))),
			fmt.Sprintf("Please enter a name with %d characters or less.", maxNameLength))
	}
	if !strings.ContainsFunc(name, unicode.IsLetter) {
		return "", invalidFormat("name",
			"Name must contain at least one letter",
			"Please enter a valid name, e.g., Ada Lovelace.")
	}

	return name, nil
}

// Place validates the free-text birth place. Coordinate resolution is the
// geocode package's job; this only checks shape.
func Place(input string) (string, error) {
	place := strings.TrimSpace(input)

	if place == "" {
		return "", invalidFormat("birth_place",
			"Birth place cannot be empty",
			"Please enter a city name, e.g., 'London' or 'Paris, France'.")
	}
	if len([]rune(place)) > maxPlaceLength {
		return "", outOfRange("birth_place",
			fmt.Sprintf("Place name is too long (%d characters)", len([]rune(place))),
			fmt.Sprintf("Please enter a place name with %d characters or less.", maxPlaceLength))
	}

	return place, nil
}
