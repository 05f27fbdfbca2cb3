package domain

import "time"

// Identity is the claim set carried by a session token and attached to an
// authenticated request.
type Identity struct {
	ID    string
	Email string
}

// Session describes a freshly issued token.
type Session struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	// Cached is false when the token could not be written to the cache.
	// Such a token is rejected by the gate until a later login succeeds.
	Cached bool
}
