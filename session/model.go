package session

import "time"

// Record is one issued refresh-token lineage.
type Record struct {
	ID        string    `json:"id"`
	TokenHash string    `json:"token_hash"`
	UserAgent string    `json:"user_agent,omitempty"`
	IP        string    `json:"ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the record is past its implicit TTL.
func (r Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Issue is the input for a new record. RawToken is hashed before storage.
type Issue struct {
	ID        string
	RawToken  string
	UserAgent string
	IP        string
}

// TruncateUserAgent cuts ua to at most max bytes without splitting a UTF-8
// sequence.
func TruncateUserAgent(ua string, max int) string {
	if max <= 0 || len(ua) <= max {
		return ua
	}
	cut := max
	for cut > 0 && !isRuneStart(ua[cut]) {
		cut--
	}
	return ua[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
