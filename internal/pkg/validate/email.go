package validate

import (
	"regexp"
	"unicode/utf8"
)

const maxEmailLength = 32

var emailPattern = regexp.MustCompile(`(?i)^[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,4}$`)

// Email reports whether email is a well-formed address of at most 32 characters.
func Email(email string) bool {
	n := utf8.RuneCountInString(email)
	if n == 0 || n > maxEmailLength {
		return false
	}
	return emailPattern.MatchString(email)
}
