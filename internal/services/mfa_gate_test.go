package services

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchdeck/punchdeck/internal/models"
	"github.com/punchdeck/punchdeck/internal/sessionstore"
)

func newTestMfaGate(ttl time.Duration) *MfaGate {
	return NewMfaGate(sessionstore.NewMemory(), slog.Default(), MfaGateConfig{TTL: ttl})
}

func TestMfaGate_OpenRecordsEligibleMethods(t *testing.T) {
	gate := newTestMfaGate(5 * time.Minute)
	userID := uuid.New()

	require.NoError(t, gate.Open(userID, []models.MfaMethodType{models.MfaMethodTOTP, models.MfaMethodRecovery}))

	assert.True(t, gate.Eligible(userID, models.MfaMethodTOTP))
	assert.True(t, gate.Eligible(userID, models.MfaMethodRecovery))
	assert.False(t, gate.Eligible(userID, models.MfaMethodPasskey))
	assert.False(t, gate.Eligible(uuid.New(), models.MfaMethodTOTP))
}

func TestMfaGate_NoPendingLogin(t *testing.T) {
	gate := newTestMfaGate(5 * time.Minute)

	assert.False(t, gate.Eligible(uuid.New(), models.MfaMethodTOTP))

	_, ok := gate.Consume(uuid.New())
	assert.False(t, ok)
}

func TestMfaGate_ConsumeIsSingleUse(t *testing.T) {
	gate := newTestMfaGate(5 * time.Minute)
	userID := uuid.New()

	require.NoError(t, gate.Open(userID, []models.MfaMethodType{models.MfaMethodEmailOTP}))

	state, ok := gate.Consume(userID)
	require.True(t, ok)
	assert.Equal(t, userID, state.UserID)
	assert.Equal(t, []models.MfaMethodType{models.MfaMethodEmailOTP}, state.Methods)

	_, ok = gate.Consume(userID)
	assert.False(t, ok)
	assert.False(t, gate.Eligible(userID, models.MfaMethodEmailOTP))
}

func TestMfaGate_ExpiredLoginNotEligible(t *testing.T) {
	gate := newTestMfaGate(-time.Second)
	userID := uuid.New()

	require.NoError(t, gate.Open(userID, []models.MfaMethodType{models.MfaMethodTOTP}))

	assert.False(t, gate.Eligible(userID, models.MfaMethodTOTP))
	_, ok := gate.Consume(userID)
	assert.False(t, ok)
}

func TestMfaGate_Cancel(t *testing.T) {
	gate := newTestMfaGate(5 * time.Minute)
	userID := uuid.New()

	require.NoError(t, gate.Open(userID, []models.MfaMethodType{models.MfaMethodTOTP}))
	gate.Cancel(userID)

	assert.False(t, gate.Eligible(userID, models.MfaMethodTOTP))
}
