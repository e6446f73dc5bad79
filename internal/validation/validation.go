// Package validation checks caller-supplied signup and login fields.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// emailPattern is a pragmatic check, not RFC 5322: one @, no spaces,
// a dot in the domain. Ownership is proven by the verification mail.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const (
	// MinNameLen minimal display name length
	MinNameLen = 2
	// MaxNameLen maximal display name length
	MaxNameLen = 64
	// MinPasswordLen minimal password length
	MinPasswordLen = 8
	// MaxPasswordLen caps input before it reaches bcrypt (72-byte limit)
	MaxPasswordLen = 72
)

// ValidateName checks the display name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) < MinNameLen {
		return fmt.Errorf("name must be at least %d characters long", MinNameLen)
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("name must not exceed %d characters", MaxNameLen)
	}
	return nil
}

// ValidateEmail checks the email address format.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if len(email) > 254 {
		return fmt.Errorf("email is too long")
	}
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("invalid email address")
	}
	return nil
}

// ValidatePassword checks password strength: at least 8 characters with an
// uppercase letter, a lowercase letter, a digit and a special character.
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}
	if len(password) < MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLen)
	}
	if len(password) > MaxPasswordLen {
		return fmt.Errorf("password must not exceed %d characters", MaxPasswordLen)
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		default:
			hasSpecial = true
		}
	}
	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasDigit {
		return fmt.Errorf("password must contain at least one number")
	}
	if !hasSpecial {
		return fmt.Errorf("password must contain at least one special character")
	}
	return nil
}

// NormalizeEmail lowercases and trims an email address so that uniqueness
// checks and lookups agree on one canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
