// Package validate provides input validation for user-supplied text: scene
// titles, character names, post blocks and roll labels.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// String validation errors
var (
	ErrStringTooShort    = errors.New("string is too short")
	ErrStringTooLong     = errors.New("string is too long")
	ErrInvalidCharacters = errors.New("string contains invalid characters")
	ErrEmpty             = errors.New("string is empty")
)

// StringConstraints defines validation constraints for a string.
type StringConstraints struct {
	MinLength      int            // Minimum length (0 = no minimum)
	MaxLength      int            // Maximum length (0 = no maximum)
	AllowedPattern *regexp.Regexp // Optional regex pattern for allowed characters
	AllowEmpty     bool           // Whether empty strings are allowed
	TrimSpace      bool           // Whether to trim whitespace before validation
}

// String validates a string against the given constraints.
// Returns the validated (and optionally trimmed) string and an error if validation fails.
func String(s string, constraints StringConstraints) (string, error) {
	if constraints.TrimSpace {
		s = strings.TrimSpace(s)
	}

	if s == "" {
		if !constraints.AllowEmpty {
			return "", ErrEmpty
		}
		return s, nil
	}

	// Character count, not byte count
	length := utf8.RuneCountInString(s)

	if constraints.MinLength > 0 && length < constraints.MinLength {
		return "", fmt.Errorf("%w: got %d chars, need at least %d", ErrStringTooShort, length, constraints.MinLength)
	}
	if constraints.MaxLength > 0 && length > constraints.MaxLength {
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrStringTooLong, length, constraints.MaxLength)
	}
	if constraints.AllowedPattern != nil && !constraints.AllowedPattern.MatchString(s) {
		return "", fmt.Errorf("%w: does not match required pattern", ErrInvalidCharacters)
	}
	return s, nil
}

var (
	namePattern = regexp.MustCompile(`^[\p{L}\p{N} '\-\.]+$`)
	dicePattern = regexp.MustCompile(`^[1-9][0-9]?d[1-9][0-9]{0,2}$`)
)

// SceneTitle validates a scene title: 1-200 characters.
func SceneTitle(title string) (string, error) {
	return String(title, StringConstraints{MinLength: 1, MaxLength: 200, TrimSpace: true})
}

// CharacterName validates a character name:
// - 1-100 characters
// - Letters, numbers, spaces, apostrophe, dash and period only
func CharacterName(name string) (string, error) {
	return String(name, StringConstraints{
		MinLength:      1,
		MaxLength:      100,
		AllowedPattern: namePattern,
		TrimSpace:      true,
	})
}

// PostBlock validates one content block of a post: required, at most 10000
// characters. Leading and trailing whitespace is kept.
func PostBlock(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmpty
	}
	return String(text, StringConstraints{MaxLength: 10000})
}

// OOCNote validates an out-of-character note: optional, at most 2000 characters.
func OOCNote(note string) (string, error) {
	return String(note, StringConstraints{MaxLength: 2000, AllowEmpty: true, TrimSpace: true})
}

// Description validates a description field:
// - Optional (can be empty)
// - Max 5000 characters
func Description(desc string) (string, error) {
	return String(desc, StringConstraints{MaxLength: 5000, AllowEmpty: true, TrimSpace: true})
}

// Intention validates the label a player gives a roll: optional, at most 200 characters.
func Intention(label string) (string, error) {
	return String(label, StringConstraints{MaxLength: 200, AllowEmpty: true, TrimSpace: true})
}

// Dice validates dice notation such as "2d6" or "1d100".
func Dice(notation string) (string, error) {
	return String(strings.ToLower(notation), StringConstraints{AllowedPattern: dicePattern, TrimSpace: true})
}
