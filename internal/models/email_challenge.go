package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailOtpChallenge represents a live email one-time-code challenge.
// At most one non-consumed challenge exists per (user, purpose, email);
// issuing a new one replaces it in place.
type EmailOtpChallenge struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Purpose        string
	TargetEmail    string
	CodeHash       string // hex sha256 of the plaintext code
	ExpiresAt      time.Time
	FailedAttempts int
	MaxAttempts    int
	LockUntil      *time.Time
	LastSentAt     time.Time
	ConsumedAt     *time.Time
	RoleCodeID     *uuid.UUID
	TenantID       *uuid.UUID
	CreatedAt      time.Time
}

// IsExpired reports whether the challenge is past its TTL
func (c *EmailOtpChallenge) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// IsLocked reports whether submissions are refused until LockUntil
func (c *EmailOtpChallenge) IsLocked(now time.Time) bool {
	return c.LockUntil != nil && now.Before(*c.LockUntil)
}

// IsConsumed reports whether the challenge was already redeemed
func (c *EmailOtpChallenge) IsConsumed() bool {
	return c.ConsumedAt != nil
}
