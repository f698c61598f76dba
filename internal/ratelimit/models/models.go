// Package models holds the login lockout record and its policy.
package models

import (
	"strings"
	"time"
)

// Lockout tracks failed logins for one username and client address.
type Lockout struct {
	Key         string
	Failures    int
	LockedUntil *time.Time
}

// IsLockedAt reports whether the record blocks logins at now.
func (l *Lockout) IsLockedAt(now time.Time) bool {
	return l != nil && l.LockedUntil != nil && now.Before(*l.LockedUntil)
}

// RetryAfter is how long a locked caller must wait.
func (l *Lockout) RetryAfter(now time.Time) time.Duration {
	if !l.IsLockedAt(now) {
		return 0
	}
	return l.LockedUntil.Sub(now)
}

// Policy bounds failed attempts. Attempts failures within Window lock the
// key for LockDuration.
type Policy struct {
	Attempts     int
	Window       time.Duration
	LockDuration time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Attempts: 5, Window: 15 * time.Minute, LockDuration: 15 * time.Minute}
}

// Key composes the lockout key. Usernames compare case-insensitively.
func Key(username, clientIP string) string {
	return strings.ToLower(strings.TrimSpace(username)) + "|" + clientIP
}
