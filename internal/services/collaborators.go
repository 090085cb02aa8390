package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TxRunner runs a function inside a database transaction. Satisfied by
// database.DB; multi-step state changes (MFA disable, reset, rollback)
// go through it for all-or-nothing semantics.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(pgx.Tx) error) error
}

// AccountStatus is what the account tier reports about a login target
type AccountStatus struct {
	Active      bool
	Locked      bool
	RoleAllowed bool
}

// AccountProfile carries the display fields WebAuthn options need
type AccountProfile struct {
	Email       string
	DisplayName string
}

// AccountDirectory is the external account-tier collaborator. The MFA
// core never touches account rows directly; it asks.
type AccountDirectory interface {
	Status(ctx context.Context, userID uuid.UUID) (AccountStatus, error)
	Profile(ctx context.Context, userID uuid.UUID) (AccountProfile, error)
}
