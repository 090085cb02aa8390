package services

import (
	"context"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchdeck/punchdeck/internal/auth"
	"github.com/punchdeck/punchdeck/internal/models"
	"github.com/punchdeck/punchdeck/internal/ratelimit"
)

func newRecoveryTestService(recoveryRepo *MockRecoveryCodeRepository, methodRepo *MockMfaMethodRepository) *RecoveryService {
	config := RecoveryConfig{
		CodeCount:    10,
		RedeemLimit:  5,
		RedeemWindow: 15 * time.Minute,
	}
	return NewRecoveryService(recoveryRepo, methodRepo, ratelimit.NewMemory(), &MockTxRunner{}, slog.Default(), config)
}

func verifiedMethodRepo() *MockMfaMethodRepository {
	return &MockMfaMethodRepository{
		GetVerifiedTOTPFunc: func(ctx context.Context, userID uuid.UUID) (*models.MfaMethod, error) {
			return NewTestMfaMethod(userID, "SECRET"), nil
		},
	}
}

func TestRecoveryService_Generate_Success(t *testing.T) {
	var storedHashes []string
	recoveryRepo := &MockRecoveryCodeRepository{
		ReplaceForUserTxFunc: func(ctx context.Context, tx pgx.Tx, userID uuid.UUID, hashes []string) error {
			storedHashes = hashes
			return nil
		},
	}
	svc := newRecoveryTestService(recoveryRepo, verifiedMethodRepo())

	codes, err := svc.Generate(context.Background(), uuid.New())

	require.NoError(t, err)
	require.Len(t, codes, 10)
	require.Len(t, storedHashes, 10)

	pattern := regexp.MustCompile(`^[23456789ABCDEFGHJKMNPQRSTUVWXYZ]{5}-[23456789ABCDEFGHJKMNPQRSTUVWXYZ]{5}$`)
	for i, code := range codes {
		assert.Regexp(t, pattern, code)
		assert.Equal(t, auth.HashRecoveryCode(code), storedHashes[i])
	}
}

func TestRecoveryService_Generate_RequiresVerifiedMethod(t *testing.T) {
	svc := newRecoveryTestService(&MockRecoveryCodeRepository{}, &MockMfaMethodRepository{})

	codes, err := svc.Generate(context.Background(), uuid.New())

	assert.Nil(t, codes)
	assert.ErrorIs(t, err, models.ErrMethodNotFound)
}

func TestRecoveryService_Redeem_Success(t *testing.T) {
	userID := uuid.New()
	code := "ABCDE-23456"

	recoveryRepo := &MockRecoveryCodeRepository{
		RedeemFunc: func(ctx context.Context, id uuid.UUID, codeHash string) (bool, error) {
			assert.Equal(t, auth.HashRecoveryCode(code), codeHash)
			return true, nil
		},
		CountUnusedFunc: func(ctx context.Context, id uuid.UUID) (int, error) {
			return 9, nil
		},
	}
	svc := newRecoveryTestService(recoveryRepo, verifiedMethodRepo())

	result, err := svc.Redeem(context.Background(), userID, code)

	require.NoError(t, err)
	assert.Equal(t, models.VerifyOK, result.Status)
}

func TestRecoveryService_Redeem_NormalizesInput(t *testing.T) {
	userID := uuid.New()
	var seenHash string

	recoveryRepo := &MockRecoveryCodeRepository{
		RedeemFunc: func(ctx context.Context, id uuid.UUID, codeHash string) (bool, error) {
			seenHash = codeHash
			return true, nil
		},
	}
	svc := newRecoveryTestService(recoveryRepo, verifiedMethodRepo())

	_, err := svc.Redeem(context.Background(), userID, " abcde 23456 ")
	require.NoError(t, err)

	assert.Equal(t, auth.HashRecoveryCode("ABCDE-23456"), seenHash)
}

func TestRecoveryService_Redeem_InvalidCode(t *testing.T) {
	recoveryRepo := &MockRecoveryCodeRepository{
		RedeemFunc: func(ctx context.Context, id uuid.UUID, codeHash string) (bool, error) {
			return false, nil
		},
	}
	svc := newRecoveryTestService(recoveryRepo, verifiedMethodRepo())

	result, err := svc.Redeem(context.Background(), uuid.New(), "AAAAA-AAAAA")

	require.NoError(t, err)
	assert.Equal(t, models.VerifyInvalidCode, result.Status)
}

func TestRecoveryService_Redeem_RateLimited(t *testing.T) {
	recoveryRepo := &MockRecoveryCodeRepository{
		RedeemFunc: func(ctx context.Context, id uuid.UUID, codeHash string) (bool, error) {
			return false, nil
		},
	}
	svc := newRecoveryTestService(recoveryRepo, verifiedMethodRepo())
	userID := uuid.New()

	for i := 0; i < 5; i++ {
		result, err := svc.Redeem(context.Background(), userID, "AAAAA-AAAAA")
		require.NoError(t, err)
		require.Equal(t, models.VerifyInvalidCode, result.Status)
	}

	result, err := svc.Redeem(context.Background(), userID, "AAAAA-AAAAA")
	require.NoError(t, err)
	assert.Equal(t, models.VerifyRateLimited, result.Status)
}

func TestRecoveryService_Remaining(t *testing.T) {
	recoveryRepo := &MockRecoveryCodeRepository{
		CountUnusedFunc: func(ctx context.Context, id uuid.UUID) (int, error) {
			return 3, nil
		},
	}
	svc := newRecoveryTestService(recoveryRepo, verifiedMethodRepo())

	count, err := svc.Remaining(context.Background(), uuid.New())

	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
