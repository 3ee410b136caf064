package models

import "time"

// SessionRecord is the single live refresh token of an account.
type SessionRecord struct {
	AccountID int64
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the record is past its expiry at now.
// A record expiring exactly at now is expired.
func (s SessionRecord) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
