package services

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/punchdeck/punchdeck/internal/models"
	"github.com/punchdeck/punchdeck/internal/sessionstore"
)

// MfaGateConfig holds the pending-login lifetime
type MfaGateConfig struct {
	TTL time.Duration
}

// MfaGate is the seam between external password authentication and the
// second-factor services. When the first factor passes, the caller
// opens a pending login naming the methods the user may complete; the
// method controllers consult the gate before dispatching, and a
// successful second factor consumes it. The record is session-scoped
// and expires with its TTL if the user walks away.
type MfaGate struct {
	pending sessionstore.Store
	logger  *slog.Logger
	config  MfaGateConfig
}

// NewMfaGate creates a new MFA gate
func NewMfaGate(pending sessionstore.Store, logger *slog.Logger, config MfaGateConfig) *MfaGate {
	return &MfaGate{
		pending: pending,
		logger:  logger,
		config:  config,
	}
}

func pendingMfaKey(userID uuid.UUID) string {
	return "pending-mfa:" + userID.String()
}

// Open records that userID passed the first factor and names the
// methods eligible to complete the login. Reopening replaces any
// earlier pending login.
func (g *MfaGate) Open(userID uuid.UUID, methods []models.MfaMethodType) error {
	state := models.PendingMfaState{
		UserID:    userID,
		Methods:   methods,
		CreatedAt: time.Now(),
	}
	if err := sessionstore.SetJSON(g.pending, pendingMfaKey(userID), state, g.config.TTL); err != nil {
		g.logger.Error("failed to store pending MFA state", slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}

// Eligible reports whether method may currently complete the user's
// pending login. No pending login, an expired one, or a method outside
// the recorded set all answer false.
func (g *MfaGate) Eligible(userID uuid.UUID, method models.MfaMethodType) bool {
	var state models.PendingMfaState
	if !sessionstore.GetJSON(g.pending, pendingMfaKey(userID), &state) || state.UserID != userID {
		return false
	}
	for _, m := range state.Methods {
		if m == method {
			return true
		}
	}
	return false
}

// Consume closes the pending login after a successful second factor.
// The record is removed as it is read, so of two racing logins only
// one obtains it.
func (g *MfaGate) Consume(userID uuid.UUID) (*models.PendingMfaState, bool) {
	var state models.PendingMfaState
	if !sessionstore.TakeJSON(g.pending, pendingMfaKey(userID), &state) || state.UserID != userID {
		return nil, false
	}
	return &state, true
}

// Cancel discards the pending login, for example when the user signs
// out mid-flow.
func (g *MfaGate) Cancel(userID uuid.UUID) {
	g.pending.Delete(pendingMfaKey(userID))
}
