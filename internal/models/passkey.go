package models

import (
	"time"

	"github.com/google/uuid"
)

// PasskeyCredential is a stored WebAuthn credential. CredentialID is
// globally unique; SignCount is monotonically non-decreasing (the
// protocol primitive enforces the anti-clone check).
type PasskeyCredential struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	CredentialID    []byte
	PublicKey       []byte
	SignCount       uint32
	UserHandle      []byte
	Transports      []string
	AttestationType string
	CreatedAt       time.Time
	LastUsedAt      *time.Time
}
