package cache

import (
	"strings"
	"time"
)

const (
	SkillsTaxonomyKey = "skills:taxonomy"
	OTPKeyPrefix      = "otp:"
	OTPAttemptsPrefix = "otp_attempts:"
	RevokedKeyPrefix  = "blacklist:"
	WSTicketPrefix    = "ws_ticket:"
)

const (
	SkillsTTL   = 10 * time.Minute
	WSTicketTTL = 30 * time.Second
)

// OTPKey is where the hashed sign-in code for email lives.
func OTPKey(email string) string {
	return OTPKeyPrefix + strings.ToLower(strings.TrimSpace(email))
}

// OTPAttemptsKey counts failed verifications for the current code.
func OTPAttemptsKey(email string) string {
	return OTPAttemptsPrefix + strings.ToLower(strings.TrimSpace(email))
}

// RevokedKey marks a token id as signed out until the token would expire.
func RevokedKey(jti string) string {
	return RevokedKeyPrefix + jti
}

// WSTicketKey holds the token a single-use WebSocket ticket stands for.
func WSTicketKey(ticket string) string {
	return WSTicketPrefix + ticket
}
