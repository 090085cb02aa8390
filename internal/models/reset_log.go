package models

import (
	"time"

	"github.com/google/uuid"
)

// MfaResetLog records a privileged MFA reset. Snapshot holds the
// encrypted pre-reset state so the action is one-step reversible.
type MfaResetLog struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	PerformedBy  uuid.UUID
	Snapshot     string // "enc:"-enveloped ciphertext
	CreatedAt    time.Time
	RolledBackAt *time.Time
}

// MfaSnapshot is the plaintext shape of a reset snapshot before
// encryption: the user's MFA method plus recovery-code hashes.
type MfaSnapshot struct {
	Method        *MfaMethod     `json:"method,omitempty"`
	RecoveryCodes []RecoveryCode `json:"recovery_codes,omitempty"`
	TakenAt       time.Time      `json:"taken_at"`
}
