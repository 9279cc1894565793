package model

import "time"

// Session is a server-side login, keyed by the cookie token.
type Session struct {
	Token     string    `gorm:"primaryKey;size:36"`
	UserID    string    `gorm:"index;size:36;not null"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
}

// Expired reports whether the session can no longer authenticate.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
