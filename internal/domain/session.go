package domain

import "time"

// Session is a logged-in browser session held in the ephemeral store.
type Session struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExpiredAt reports whether the session has passed its expiry at the given
// instant. Expiry is also enforced by the store TTL; this check covers index
// entries that outlive the session key.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
