package models

import (
	"time"

	"github.com/google/uuid"
)

// ActiveSession is the single authoritative session per user. Each new
// login overwrites it ("last login wins"); only the hash of the session
// secret is stored.
type ActiveSession struct {
	UserID      uuid.UUID
	SessionHash string
	LastLoginAt time.Time
	LastLoginIP string
	LastLoginUA string
}

// LoginSessionRecord is the per-login history row, used for explicit
// bulk revocation (for example on password change).
type LoginSessionRecord struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	SessionHash string
	CreatedAt   time.Time
	RevokedAt   *time.Time
}

// IsRevoked reports whether the record was explicitly revoked
func (r *LoginSessionRecord) IsRevoked() bool {
	return r.RevokedAt != nil
}

// SessionVerdict is the typed outcome of validating a request's
// session secret against the authoritative hash.
type SessionVerdict struct {
	Valid bool
	// Reason is a human-readable explanation when Valid is false,
	// built from masked IP and a coarse device label only.
	Reason string
}
