package services

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchdeck/punchdeck/internal/auth"
	"github.com/punchdeck/punchdeck/internal/models"
	"github.com/punchdeck/punchdeck/internal/sessionstore"
	pkglogger "github.com/punchdeck/punchdeck/pkg/logger"
)

func newResetTestService(t *testing.T, methodRepo *MockMfaMethodRepository, recoveryRepo *MockRecoveryCodeRepository, resetLogRepo *MockResetLogRepository) (*ResetService, *auth.SnapshotCipher) {
	t.Helper()
	cipher, err := auth.NewSnapshotCipher("test-snapshot-secret", false)
	require.NoError(t, err)

	logger := slog.Default()
	svc := NewResetService(methodRepo, recoveryRepo, resetLogRepo, cipher,
		sessionstore.NewMemory(), &MockTxRunner{},
		pkglogger.NewAuditLogger(logger), logger)
	return svc, cipher
}

func TestResetService_Reset_SnapshotsAndWipes(t *testing.T) {
	userID := uuid.New()
	admin := uuid.New()
	method := NewTestMfaMethod(userID, "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP")
	codes := []models.RecoveryCode{
		{ID: uuid.New(), UserID: userID, CodeHash: "hash-1", CreatedAt: time.Now()},
		{ID: uuid.New(), UserID: userID, CodeHash: "hash-2", CreatedAt: time.Now()},
	}

	var createdLog *models.MfaResetLog
	methodDeleted := false
	codesDeleted := false

	methodRepo := &MockMfaMethodRepository{
		GetVerifiedTOTPFunc: func(ctx context.Context, id uuid.UUID) (*models.MfaMethod, error) {
			return method, nil
		},
		DeleteByUserTxFunc: func(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
			methodDeleted = true
			return nil
		},
	}
	recoveryRepo := &MockRecoveryCodeRepository{
		GetByUserFunc: func(ctx context.Context, id uuid.UUID) ([]models.RecoveryCode, error) {
			return codes, nil
		},
		DeleteByUserTxFunc: func(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
			codesDeleted = true
			return nil
		},
	}
	resetLogRepo := &MockResetLogRepository{
		CreateTxFunc: func(ctx context.Context, tx pgx.Tx, log *models.MfaResetLog) error {
			log.ID = uuid.New()
			createdLog = log
			return nil
		},
	}

	svc, cipher := newResetTestService(t, methodRepo, recoveryRepo, resetLogRepo)

	require.NoError(t, svc.Reset(context.Background(), userID, admin))
	assert.True(t, methodDeleted)
	assert.True(t, codesDeleted)

	require.NotNil(t, createdLog)
	assert.Equal(t, admin, createdLog.PerformedBy)
	assert.True(t, strings.HasPrefix(createdLog.Snapshot, "enc:"))

	var snapshot models.MfaSnapshot
	require.True(t, cipher.DecryptInto(createdLog.Snapshot, &snapshot))
	require.NotNil(t, snapshot.Method)
	assert.Equal(t, method.SecretBase32, snapshot.Method.SecretBase32)
	assert.Len(t, snapshot.RecoveryCodes, 2)
}

func TestResetService_Reset_NoEnrollmentStillLogged(t *testing.T) {
	var createdLog *models.MfaResetLog
	resetLogRepo := &MockResetLogRepository{
		CreateTxFunc: func(ctx context.Context, tx pgx.Tx, log *models.MfaResetLog) error {
			createdLog = log
			return nil
		},
	}
	svc, cipher := newResetTestService(t, &MockMfaMethodRepository{}, &MockRecoveryCodeRepository{}, resetLogRepo)

	require.NoError(t, svc.Reset(context.Background(), uuid.New(), uuid.New()))
	require.NotNil(t, createdLog)

	var snapshot models.MfaSnapshot
	require.True(t, cipher.DecryptInto(createdLog.Snapshot, &snapshot))
	assert.Nil(t, snapshot.Method)
	assert.Empty(t, snapshot.RecoveryCodes)
}

func TestResetService_Rollback_RestoresSnapshot(t *testing.T) {
	userID := uuid.New()
	method := NewTestMfaMethod(userID, "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP")
	snapshot := models.MfaSnapshot{
		Method: method,
		RecoveryCodes: []models.RecoveryCode{
			{ID: uuid.New(), UserID: userID, CodeHash: "hash-1", CreatedAt: time.Now()},
		},
		TakenAt: time.Now(),
	}

	var restoredMethod *models.MfaMethod
	var restoredCodes []models.RecoveryCode
	markedBack := false

	methodRepo := &MockMfaMethodRepository{
		CreateTxFunc: func(ctx context.Context, tx pgx.Tx, m *models.MfaMethod) error {
			restoredMethod = m
			return nil
		},
	}
	recoveryRepo := &MockRecoveryCodeRepository{
		RestoreTxFunc: func(ctx context.Context, tx pgx.Tx, codes []models.RecoveryCode) error {
			restoredCodes = codes
			return nil
		},
	}
	resetLogRepo := &MockResetLogRepository{
		MarkRolledBackTxFunc: func(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
			markedBack = true
			return nil
		},
	}

	svc, cipher := newResetTestService(t, methodRepo, recoveryRepo, resetLogRepo)

	sealed, err := cipher.Encrypt(snapshot)
	require.NoError(t, err)
	resetID := uuid.New()
	resetLogRepo.GetLatestByUserFunc = func(ctx context.Context, id uuid.UUID) (*models.MfaResetLog, error) {
		return &models.MfaResetLog{
			ID:       resetID,
			UserID:   userID,
			Snapshot: sealed,
		}, nil
	}

	require.NoError(t, svc.Rollback(context.Background(), userID, resetID, uuid.New()))
	assert.True(t, markedBack)
	require.NotNil(t, restoredMethod)
	assert.Equal(t, method.SecretBase32, restoredMethod.SecretBase32)
	assert.Len(t, restoredCodes, 1)
}

func TestResetService_Rollback_AlreadyRolledBack(t *testing.T) {
	resetID := uuid.New()
	rolledBackAt := time.Now().Add(-time.Hour)
	resetLogRepo := &MockResetLogRepository{
		GetLatestByUserFunc: func(ctx context.Context, id uuid.UUID) (*models.MfaResetLog, error) {
			return &models.MfaResetLog{ID: resetID, UserID: id, RolledBackAt: &rolledBackAt}, nil
		},
	}
	svc, _ := newResetTestService(t, &MockMfaMethodRepository{}, &MockRecoveryCodeRepository{}, resetLogRepo)

	err := svc.Rollback(context.Background(), uuid.New(), resetID, uuid.New())
	assert.ErrorIs(t, err, models.ErrResetSuperseded)
}

func TestResetService_Rollback_StaleResetID(t *testing.T) {
	markedBack := false
	resetLogRepo := &MockResetLogRepository{
		GetLatestByUserFunc: func(ctx context.Context, id uuid.UUID) (*models.MfaResetLog, error) {
			return &models.MfaResetLog{ID: uuid.New(), UserID: id}, nil
		},
		MarkRolledBackTxFunc: func(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
			markedBack = true
			return nil
		},
	}
	svc, _ := newResetTestService(t, &MockMfaMethodRepository{}, &MockRecoveryCodeRepository{}, resetLogRepo)

	// A replayed rollback request carries the identifier of an older
	// reset; it must be refused without touching the newest entry.
	err := svc.Rollback(context.Background(), uuid.New(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, models.ErrResetSuperseded)
	assert.False(t, markedBack)
}

func TestResetService_Rollback_ReEnrolledSinceReset(t *testing.T) {
	userID := uuid.New()
	methodRepo := &MockMfaMethodRepository{
		GetVerifiedTOTPFunc: func(ctx context.Context, id uuid.UUID) (*models.MfaMethod, error) {
			return NewTestMfaMethod(id, "NEWSECRET"), nil
		},
	}
	resetLogRepo := &MockResetLogRepository{}
	svc, cipher := newResetTestService(t, methodRepo, &MockRecoveryCodeRepository{}, resetLogRepo)

	sealed, err := cipher.Encrypt(models.MfaSnapshot{TakenAt: time.Now()})
	require.NoError(t, err)
	resetID := uuid.New()
	resetLogRepo.GetLatestByUserFunc = func(ctx context.Context, id uuid.UUID) (*models.MfaResetLog, error) {
		return &models.MfaResetLog{ID: resetID, UserID: userID, Snapshot: sealed}, nil
	}

	err = svc.Rollback(context.Background(), userID, resetID, uuid.New())
	assert.ErrorIs(t, err, models.ErrResetConflict)
}

func TestResetService_Rollback_CorruptSnapshot(t *testing.T) {
	resetID := uuid.New()
	resetLogRepo := &MockResetLogRepository{
		GetLatestByUserFunc: func(ctx context.Context, id uuid.UUID) (*models.MfaResetLog, error) {
			return &models.MfaResetLog{ID: resetID, UserID: id, Snapshot: "enc:not-valid-base64!!!"}, nil
		},
	}
	svc, _ := newResetTestService(t, &MockMfaMethodRepository{}, &MockRecoveryCodeRepository{}, resetLogRepo)

	err := svc.Rollback(context.Background(), uuid.New(), resetID, uuid.New())
	assert.ErrorIs(t, err, models.ErrSnapshotInvalid)
}

func TestResetService_Rollback_RacingRollbackLoses(t *testing.T) {
	userID := uuid.New()
	resetLogRepo := &MockResetLogRepository{
		MarkRolledBackTxFunc: func(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
			return models.ErrConflict
		},
	}
	svc, cipher := newResetTestService(t, &MockMfaMethodRepository{}, &MockRecoveryCodeRepository{}, resetLogRepo)

	sealed, err := cipher.Encrypt(models.MfaSnapshot{TakenAt: time.Now()})
	require.NoError(t, err)
	resetID := uuid.New()
	resetLogRepo.GetLatestByUserFunc = func(ctx context.Context, id uuid.UUID) (*models.MfaResetLog, error) {
		return &models.MfaResetLog{ID: resetID, UserID: userID, Snapshot: sealed}, nil
	}

	err = svc.Rollback(context.Background(), userID, resetID, uuid.New())
	assert.ErrorIs(t, err, models.ErrResetSuperseded)
}

func TestResetService_Rollback_NoResetLog(t *testing.T) {
	svc, _ := newResetTestService(t, &MockMfaMethodRepository{}, &MockRecoveryCodeRepository{}, &MockResetLogRepository{})

	err := svc.Rollback(context.Background(), uuid.New(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}
