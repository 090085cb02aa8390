package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchdeck/punchdeck/internal/models"
	"github.com/punchdeck/punchdeck/internal/ratelimit"
)

func newEmailOTPTestService(repo *MockEmailChallengeRepository, mailer *MockMailer) *EmailOTPService {
	config := EmailOTPConfig{
		CodeLength:   6,
		TTL:          5 * time.Minute,
		MaxAttempts:  5,
		LockDuration: 10 * time.Minute,
		IssueLimit:   3,
		IssueWindow:  time.Hour,
	}
	return NewEmailOTPService(repo, mailer, ratelimit.NewMemory(), slog.Default(), config)
}

func TestEmailOTPService_Issue_Success(t *testing.T) {
	var stored *models.EmailOtpChallenge
	repo := &MockEmailChallengeRepository{
		UpsertFunc: func(ctx context.Context, challenge *models.EmailOtpChallenge) error {
			challenge.ID = uuid.New()
			stored = challenge
			return nil
		},
	}
	mailer := &MockMailer{}
	svc := newEmailOTPTestService(repo, mailer)
	userID := uuid.New()

	err := svc.Issue(context.Background(), IssueParams{
		UserID:      userID,
		Purpose:     "login",
		TargetEmail: "worker@example.com",
	})

	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Len(t, mailer.SentCodes, 1)

	code := mailer.SentCodes[0]
	assert.Len(t, code, 6)
	assert.Equal(t, hashOTPCode(code), stored.CodeHash)
	assert.NotEqual(t, code, stored.CodeHash)
	assert.True(t, stored.ExpiresAt.After(time.Now()))
}

func TestEmailOTPService_Issue_RateLimited(t *testing.T) {
	repo := &MockEmailChallengeRepository{}
	svc := newEmailOTPTestService(repo, &MockMailer{})
	params := IssueParams{UserID: uuid.New(), Purpose: "login", TargetEmail: "worker@example.com"}

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Issue(context.Background(), params))
	}

	err := svc.Issue(context.Background(), params)
	assert.ErrorIs(t, err, models.ErrRateLimited)
}

func TestEmailOTPService_Issue_SendFailurePropagates(t *testing.T) {
	mailer := &MockMailer{
		SendOTPEmailFunc: func(ctx context.Context, email, code string, expiresAt time.Time) error {
			return errors.New("ses unavailable")
		},
	}
	svc := newEmailOTPTestService(&MockEmailChallengeRepository{}, mailer)

	err := svc.Issue(context.Background(), IssueParams{
		UserID:      uuid.New(),
		Purpose:     "login",
		TargetEmail: "worker@example.com",
	})
	assert.Error(t, err)
}

func TestEmailOTPService_Verify_Success(t *testing.T) {
	userID := uuid.New()
	challenge := NewTestEmailChallenge(userID, "login", "worker@example.com", hashOTPCode("428519"))

	consumed := false
	repo := &MockEmailChallengeRepository{
		GetLiveFunc: func(ctx context.Context, id uuid.UUID, purpose, email string) (*models.EmailOtpChallenge, error) {
			return challenge, nil
		},
		MarkConsumedFunc: func(ctx context.Context, id uuid.UUID) error {
			assert.Equal(t, challenge.ID, id)
			consumed = true
			return nil
		},
	}
	svc := newEmailOTPTestService(repo, &MockMailer{})

	result, err := svc.Verify(context.Background(), userID, "login", "worker@example.com", "428519")

	require.NoError(t, err)
	assert.Equal(t, models.VerifyOK, result.Status)
	assert.True(t, consumed)
}

func TestEmailOTPService_Verify_NormalizesSubmittedCode(t *testing.T) {
	userID := uuid.New()
	challenge := NewTestEmailChallenge(userID, "login", "worker@example.com", hashOTPCode("123456"))

	repo := &MockEmailChallengeRepository{
		GetLiveFunc: func(ctx context.Context, id uuid.UUID, purpose, email string) (*models.EmailOtpChallenge, error) {
			return challenge, nil
		},
	}
	svc := newEmailOTPTestService(repo, &MockMailer{})

	// Spacing and hyphenation at entry time must not fail a correct
	// code or burn a lockout attempt.
	for _, submitted := range []string{"123 456", "123-456", " 123456 "} {
		result, err := svc.Verify(context.Background(), userID, "login", "worker@example.com", submitted)

		require.NoError(t, err)
		assert.Equal(t, models.VerifyOK, result.Status, "submitted %q", submitted)
	}
}

func TestEmailOTPService_Verify_WrongCode(t *testing.T) {
	userID := uuid.New()
	challenge := NewTestEmailChallenge(userID, "login", "worker@example.com", hashOTPCode("428519"))

	var recordedFailures int
	repo := &MockEmailChallengeRepository{
		GetLiveFunc: func(ctx context.Context, id uuid.UUID, purpose, email string) (*models.EmailOtpChallenge, error) {
			return challenge, nil
		},
		RecordFailureFunc: func(ctx context.Context, id uuid.UUID, failedAttempts int, lockUntil *time.Time) error {
			recordedFailures = failedAttempts
			assert.Nil(t, lockUntil)
			return nil
		},
	}
	svc := newEmailOTPTestService(repo, &MockMailer{})

	result, err := svc.Verify(context.Background(), userID, "login", "worker@example.com", "000000")

	require.NoError(t, err)
	assert.Equal(t, models.VerifyInvalidCode, result.Status)
	assert.Equal(t, 1, recordedFailures)
}

func TestEmailOTPService_Verify_LocksAfterMaxAttempts(t *testing.T) {
	userID := uuid.New()
	challenge := NewTestEmailChallenge(userID, "login", "worker@example.com", hashOTPCode("428519"))
	challenge.FailedAttempts = 4

	var persistedLock *time.Time
	repo := &MockEmailChallengeRepository{
		GetLiveFunc: func(ctx context.Context, id uuid.UUID, purpose, email string) (*models.EmailOtpChallenge, error) {
			return challenge, nil
		},
		RecordFailureFunc: func(ctx context.Context, id uuid.UUID, failedAttempts int, lockUntil *time.Time) error {
			assert.Equal(t, 5, failedAttempts)
			persistedLock = lockUntil
			return nil
		},
	}
	svc := newEmailOTPTestService(repo, &MockMailer{})

	result, err := svc.Verify(context.Background(), userID, "login", "worker@example.com", "000000")

	require.NoError(t, err)
	assert.Equal(t, models.VerifyLocked, result.Status)
	require.NotNil(t, result.RetryAt)
	require.NotNil(t, persistedLock)
	assert.True(t, persistedLock.After(time.Now()))
}

func TestEmailOTPService_Verify_LockedChallenge(t *testing.T) {
	userID := uuid.New()
	challenge := NewTestEmailChallenge(userID, "login", "worker@example.com", hashOTPCode("428519"))
	lockUntil := time.Now().Add(8 * time.Minute)
	challenge.LockUntil = &lockUntil

	repo := &MockEmailChallengeRepository{
		GetLiveFunc: func(ctx context.Context, id uuid.UUID, purpose, email string) (*models.EmailOtpChallenge, error) {
			return challenge, nil
		},
	}
	svc := newEmailOTPTestService(repo, &MockMailer{})

	// Even the correct code is refused while locked.
	result, err := svc.Verify(context.Background(), userID, "login", "worker@example.com", "428519")

	require.NoError(t, err)
	assert.Equal(t, models.VerifyLocked, result.Status)
	require.NotNil(t, result.RetryAt)
	assert.Equal(t, lockUntil.Unix(), result.RetryAt.Unix())
}

func TestEmailOTPService_Verify_Expired(t *testing.T) {
	userID := uuid.New()
	challenge := NewTestEmailChallenge(userID, "login", "worker@example.com", hashOTPCode("428519"))
	challenge.ExpiresAt = time.Now().Add(-time.Minute)

	repo := &MockEmailChallengeRepository{
		GetLiveFunc: func(ctx context.Context, id uuid.UUID, purpose, email string) (*models.EmailOtpChallenge, error) {
			return challenge, nil
		},
	}
	svc := newEmailOTPTestService(repo, &MockMailer{})

	result, err := svc.Verify(context.Background(), userID, "login", "worker@example.com", "428519")

	require.NoError(t, err)
	assert.Equal(t, models.VerifyExpired, result.Status)
}

func TestEmailOTPService_Verify_NoChallenge(t *testing.T) {
	svc := newEmailOTPTestService(&MockEmailChallengeRepository{}, &MockMailer{})

	result, err := svc.Verify(context.Background(), uuid.New(), "login", "worker@example.com", "428519")

	require.NoError(t, err)
	assert.Equal(t, models.VerifyNotFound, result.Status)
}

func TestEmailOTPService_Verify_ConcurrentRedemptionLoses(t *testing.T) {
	userID := uuid.New()
	challenge := NewTestEmailChallenge(userID, "login", "worker@example.com", hashOTPCode("428519"))

	repo := &MockEmailChallengeRepository{
		GetLiveFunc: func(ctx context.Context, id uuid.UUID, purpose, email string) (*models.EmailOtpChallenge, error) {
			return challenge, nil
		},
		MarkConsumedFunc: func(ctx context.Context, id uuid.UUID) error {
			return models.ErrNotFound
		},
	}
	svc := newEmailOTPTestService(repo, &MockMailer{})

	result, err := svc.Verify(context.Background(), userID, "login", "worker@example.com", "428519")

	require.NoError(t, err)
	assert.Equal(t, models.VerifyNotFound, result.Status)
}

func TestEmailOTPService_Cancel(t *testing.T) {
	deleted := false
	repo := &MockEmailChallengeRepository{
		DeleteByUserAndPurposeFunc: func(ctx context.Context, userID uuid.UUID, purpose string) error {
			assert.Equal(t, "login", purpose)
			deleted = true
			return nil
		},
	}
	svc := newEmailOTPTestService(repo, &MockMailer{})

	require.NoError(t, svc.Cancel(context.Background(), uuid.New(), "login"))
	assert.True(t, deleted)
}
