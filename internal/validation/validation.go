// Package validation provides input validation utilities
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"memberdir/internal/models"
)

const (
	maxDisplayName = 100
	maxBackground  = 280
	maxBio         = 4000
	maxLocation    = 100
	maxSkills      = 50
	maxSkillLength = 60
	maxURLLength   = 255
)

var (
	emailRegex       = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9\-]+(\.[a-zA-Z0-9\-]+)*\.[a-zA-Z]{2,}$`)
	otpCodeRegex     = regexp.MustCompile(`^[0-9]{6}$`)
	slackHandleRegex = regexp.MustCompile(`^@?[a-zA-Z0-9._\-]{1,80}$`)
)

// ValidateEmail checks basic email format
func ValidateEmail(email string) error {
	if len(email) > 254 {
		return fmt.Errorf("email must not exceed 254 characters")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// NormalizeEmail lower-cases and trims an address before it is used as a key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateOTPCode checks that a one-time code is exactly six digits.
func ValidateOTPCode(code string) error {
	if !otpCodeRegex.MatchString(code) {
		return fmt.Errorf("code must be 6 digits")
	}
	return nil
}

// ValidateDisplayName requires a non-blank name of bounded length.
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("display name is required")
	}
	if utf8.RuneCountInString(name) > maxDisplayName {
		return fmt.Errorf("display name must not exceed %d characters", maxDisplayName)
	}
	return nil
}

// ValidateCategories rejects values outside the opportunity vocabulary.
func ValidateCategories(field string, values []string) error {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if !models.IsCategory(v) {
			return fmt.Errorf("%s contains unknown category %q", field, v)
		}
		if _, dup := seen[v]; dup {
			return fmt.Errorf("%s lists %q more than once", field, v)
		}
		seen[v] = struct{}{}
	}
	return nil
}

// ValidateSkills bounds the free-text skill list. Values are not checked
// against the taxonomy.
func ValidateSkills(skills []string) error {
	if len(skills) > maxSkills {
		return fmt.Errorf("at most %d skills are allowed", maxSkills)
	}
	for _, s := range skills {
		if utf8.RuneCountInString(s) > maxSkillLength {
			return fmt.Errorf("skill %q is longer than %d characters", s, maxSkillLength)
		}
	}
	return nil
}

// ValidateURL accepts an empty value or an absolute http(s) URL.
func ValidateURL(field, raw string) error {
	if raw == "" {
		return nil
	}
	if len(raw) > maxURLLength {
		return fmt.Errorf("%s must not exceed %d characters", field, maxURLLength)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http or https URL", field)
	}
	return nil
}

// ValidateContact checks that the handle or address matching method is usable.
// An empty value is allowed; the column is simply left null.
func ValidateContact(method models.ContactMethod, slackHandle, contactEmail string) error {
	switch method {
	case models.ContactSlack:
		if slackHandle != "" && !slackHandleRegex.MatchString(slackHandle) {
			return fmt.Errorf("invalid slack handle")
		}
	case models.ContactEmail:
		if contactEmail != "" {
			if err := ValidateEmail(contactEmail); err != nil {
				return fmt.Errorf("contact email: %w", err)
			}
		}
	default:
		return fmt.Errorf("contact method must be slack or email")
	}
	return nil
}

// ValidateTextLengths bounds the optional free-text fields.
func ValidateTextLengths(background, bio, location string) error {
	if utf8.RuneCountInString(background) > maxBackground {
		return fmt.Errorf("background must not exceed %d characters", maxBackground)
	}
	if utf8.RuneCountInString(bio) > maxBio {
		return fmt.Errorf("bio must not exceed %d characters", maxBio)
	}
	if utf8.RuneCountInString(location) > maxLocation {
		return fmt.Errorf("location must not exceed %d characters", maxLocation)
	}
	return nil
}

// SplitSkills turns the comma-separated form value into a trimmed list,
// dropping empty entries.
func SplitSkills(raw string) []string {
	out := []string{}
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
