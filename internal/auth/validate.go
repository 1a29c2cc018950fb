package auth

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	minFullNameLength = 2
	maxFullNameLength = 50
	maxEmailLength    = 254
	otpLength         = 6
)

// ErrInvalidInput marks a request rejected before any backend call.
var ErrInvalidInput = errors.New("invalid input")

// NormalizeEmail returns the canonical lowercase address and validates its syntax.
func NormalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(strings.ToLower(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if len(email) > maxEmailLength {
		return "", fmt.Errorf("%w: email too long", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	return email, nil
}

// ValidateFullName trims and checks the display name given at sign-up.
func ValidateFullName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(name)
	if n < minFullNameLength {
		return "", fmt.Errorf("%w: full name must be at least %d characters", ErrInvalidInput, minFullNameLength)
	}
	if n > maxFullNameLength {
		return "", fmt.Errorf("%w: full name must be at most %d characters", ErrInvalidInput, maxFullNameLength)
	}
	return name, nil
}

// validOTP reports whether code has the shape of an emailed code.
func validOTP(code string) bool {
	if len(code) != otpLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
