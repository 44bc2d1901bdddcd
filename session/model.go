package session

import "time"

// Session is the server-side record behind one refresh token chain.
// RefreshHash is stored separately in Redis so rotation can compare and
// swap it without rewriting the document.
type Session struct {
	SessionID string    `json:"sid"`
	UserID    string    `json:"uid"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	// ExpiresAt is the absolute lifetime bound; sliding renewal never
	// extends past it.
	ExpiresAt time.Time `json:"expires_at"`
}
