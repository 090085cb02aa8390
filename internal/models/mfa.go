package models

import (
	"time"

	"github.com/google/uuid"
)

// MfaMethodType enumerates the supported second-factor method types
type MfaMethodType string

const (
	MfaMethodTOTP     MfaMethodType = "totp"
	MfaMethodEmailOTP MfaMethodType = "email_otp"
	MfaMethodPasskey  MfaMethodType = "passkey"
	MfaMethodRecovery MfaMethodType = "recovery_code"
)

// MfaMethod represents a configured second factor for a user.
// At most one verified TOTP method may exist per user.
type MfaMethod struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Type           MfaMethodType
	SecretBase32   string // TOTP only; base32-encoded shared secret
	FailedAttempts int
	LockUntil      *time.Time
	VerifiedAt     *time.Time
	LastUsedAt     *time.Time
	CreatedAt      time.Time
}

// IsVerified reports whether the method completed enrollment
func (m *MfaMethod) IsVerified() bool {
	return m.VerifiedAt != nil
}

// IsLocked reports whether verification is refused until LockUntil
func (m *MfaMethod) IsLocked(now time.Time) bool {
	return m.LockUntil != nil && now.Before(*m.LockUntil)
}

// PendingTotpSecret is the ephemeral enrollment state held in the
// caller's session store until the first code confirms the secret.
type PendingTotpSecret struct {
	UserID    uuid.UUID `json:"user_id"`
	Secret    string    `json:"secret"`
	CreatedAt time.Time `json:"created_at"`
}

// PendingMfaState names the methods a half-authenticated user may
// complete. It is session-scoped and TTL-bounded.
type PendingMfaState struct {
	UserID    uuid.UUID       `json:"user_id"`
	Methods   []MfaMethodType `json:"methods"`
	CreatedAt time.Time       `json:"created_at"`
}
