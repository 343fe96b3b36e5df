package goIdentity

import (
	"time"

	"github.com/MrEthical07/goIdentity/account"
)

// Grant is returned by every flow that starts or rotates a session.
type Grant struct {
	Account          account.Public `json:"account"`
	SessionID        string         `json:"session_id"`
	AccessToken      string         `json:"access_token"`
	AccessExpiresAt  time.Time      `json:"access_expires_at"`
	RefreshToken     string         `json:"refresh_token"`
	RefreshExpiresAt time.Time      `json:"refresh_expires_at"`
}

// AuthResult is the verified content of an access token.
type AuthResult struct {
	AccountID string       `json:"account_id"`
	Role      account.Role `json:"role"`
	SessionID string       `json:"session_id"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// RegisterRequest is the input of Register. Name is optional.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// ProfileUpdate changes only the fields that are non-nil.
type ProfileUpdate struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.Name == nil && u.Email == nil
}

// SessionInfo describes one live session without its token digest.
type SessionInfo struct {
	ID        string    `json:"id"`
	UserAgent string    `json:"user_agent,omitempty"`
	IP        string    `json:"ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
