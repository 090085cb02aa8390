package models

import (
	"time"

	"github.com/google/uuid"
)

// RecoveryCode is a single-use backup credential. Only the hash is
// stored; the plaintext is shown to the user exactly once at
// generation time.
type RecoveryCode struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	CodeHash  string
	UsedAt    *time.Time
	CreatedAt time.Time
}

// IsUsed reports whether the code has been redeemed
func (c *RecoveryCode) IsUsed() bool {
	return c.UsedAt != nil
}
