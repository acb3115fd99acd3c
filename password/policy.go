package password

import (
	"errors"
	"unicode"
)

// MinLength is the shortest accepted password.
const MinLength = 8

// ErrWeak is returned by CheckPolicy.
var ErrWeak = errors.New("password must be at least 8 characters and contain at least one letter and one number")

// CheckPolicy rejects passwords shorter than MinLength or missing a letter or
// a digit.
func CheckPolicy(plain string) error {
	if len([]rune(plain)) < MinLength {
		return ErrWeak
	}

	var letter, digit bool
	for _, r := range plain {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return ErrWeak
	}
	return nil
}
