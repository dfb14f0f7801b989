package validate

import (
	"fmt"
	"regexp"
	"unicode"
	"unicode/utf8"

	"github.com/go-accounts-nosql/internal/domain"
)

// PasswordPolicy holds the minimum character-class counts and length bounds a
// password must satisfy. Special characters are anything that is neither a
// letter nor a digit.
type PasswordPolicy struct {
	MinUpper   int
	MinSpecial int
	MinDigit   int
	MinLower   int
	MinLength  int
	MaxLength  int
}

// DefaultPasswordPolicy requires one of each character class and 8..64 characters.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinUpper:   1,
		MinSpecial: 1,
		MinDigit:   1,
		MinLower:   1,
		MinLength:  8,
		MaxLength:  64,
	}
}

// The listed symbols are literal; '-' is not a range, so ,/:;<=>? are rejected.
var passwordCharset = regexp.MustCompile(`^[A-Za-z0-9._%+\-@#!$&*]+$`)

// Password checks password against policy. It returns nil when the password is
// acceptable, otherwise a *domain.ValidationError naming exactly one problem.
// Unmet character classes are reported in the order upper, special, digit, lower.
func Password(password string, policy PasswordPolicy) error {
	length := utf8.RuneCountInString(password)
	if length < policy.MinLength {
		return domain.NewValidationError(fmt.Sprintf("Password needs to be at least %d in length.", policy.MinLength))
	}
	if length > policy.MaxLength {
		return domain.NewValidationError(fmt.Sprintf("Password can't be longer than %d.", policy.MaxLength))
	}
	if !passwordCharset.MatchString(password) {
		return domain.NewValidationError("Only A-Z, a-z, 0-9, ._%+-!@#$&* can be used in password.")
	}

	var upper, special, digit, lower int
	for _, c := range password {
		switch {
		case unicode.IsDigit(c):
			digit++
		case unicode.IsLetter(c):
			if unicode.IsUpper(c) {
				upper++
			} else if unicode.IsLower(c) {
				lower++
			}
		default:
			special++
		}
		if upper >= policy.MinUpper && special >= policy.MinSpecial &&
			digit >= policy.MinDigit && lower >= policy.MinLower {
			return nil
		}
	}

	switch {
	case upper < policy.MinUpper:
		return domain.NewValidationError(requirement(policy.MinUpper, "upper case letter"))
	case special < policy.MinSpecial:
		return domain.NewValidationError(requirement(policy.MinSpecial, "special letter"))
	case digit < policy.MinDigit:
		return domain.NewValidationError(requirement(policy.MinDigit, "digit"))
	case lower < policy.MinLower:
		return domain.NewValidationError(requirement(policy.MinLower, "lower case letter"))
	}
	return nil
}

func requirement(n int, what string) string {
	suffix := "."
	if n > 1 {
		suffix = "s."
	}
	return fmt.Sprintf("Password needs to contain at least %d %s%s", n, what, suffix)
}
