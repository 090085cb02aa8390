package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/punchdeck/punchdeck/internal/models"
	"github.com/punchdeck/punchdeck/internal/ratelimit"
	"github.com/punchdeck/punchdeck/internal/repositories"
	pkglogger "github.com/punchdeck/punchdeck/pkg/logger"
)

// EmailOTPConfig holds issuance and verification parameters
type EmailOTPConfig struct {
	CodeLength   int
	TTL          time.Duration
	MaxAttempts  int
	LockDuration time.Duration
	IssueLimit   int
	IssueWindow  time.Duration
}

// IssueParams identifies the challenge being issued. RoleCodeID and
// TenantID are opaque pass-throughs for the caller's own bookkeeping.
type IssueParams struct {
	UserID      uuid.UUID
	Purpose     string
	TargetEmail string
	RoleCodeID  *uuid.UUID
	TenantID    *uuid.UUID
}

// EmailOTPService issues and verifies emailed one-time codes. One live
// challenge exists per (user, purpose, email); reissuing replaces it in
// place, resetting the failure counter and lock.
type EmailOTPService struct {
	challengeRepo repositories.EmailChallengeRepository
	mailer        Mailer
	limiter       ratelimit.Limiter
	logger        *slog.Logger
	config        EmailOTPConfig
}

// NewEmailOTPService creates a new email OTP service
func NewEmailOTPService(
	challengeRepo repositories.EmailChallengeRepository,
	mailer Mailer,
	limiter ratelimit.Limiter,
	logger *slog.Logger,
	config EmailOTPConfig,
) *EmailOTPService {
	return &EmailOTPService{
		challengeRepo: challengeRepo,
		mailer:        mailer,
		limiter:       limiter,
		logger:        logger,
		config:        config,
	}
}

func issueKey(userID uuid.UUID, purpose string) string {
	return "email-otp:issue:" + userID.String() + ":" + purpose
}

func hashOTPCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// normalizeOTPCode strips everything outside [0-9], so spacing or
// hyphenation at entry time does not affect matching.
func normalizeOTPCode(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	for _, r := range code {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func generateNumericCode(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to generate OTP code: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}

// Issue generates a fresh code, persists its hash and emails the
// plaintext. Issuance is rate limited per user and purpose; a send
// failure surfaces to the caller so the challenge is not presented as
// delivered.
func (s *EmailOTPService) Issue(ctx context.Context, params IssueParams) error {
	if !s.limiter.Allow(ctx, issueKey(params.UserID, params.Purpose), s.config.IssueLimit, s.config.IssueWindow) {
		s.logger.Warn("email OTP issuance rate limited",
			slog.String("user_id", params.UserID.String()),
			slog.String("purpose", params.Purpose))
		return models.ErrRateLimited
	}

	code, err := generateNumericCode(s.config.CodeLength)
	if err != nil {
		s.logger.Error("failed to generate OTP code", slog.Any("error", err))
		return models.ErrInternalServer
	}

	now := time.Now()
	challenge := &models.EmailOtpChallenge{
		UserID:      params.UserID,
		Purpose:     params.Purpose,
		TargetEmail: params.TargetEmail,
		CodeHash:    hashOTPCode(code),
		ExpiresAt:   now.Add(s.config.TTL),
		MaxAttempts: s.config.MaxAttempts,
		LastSentAt:  now,
		RoleCodeID:  params.RoleCodeID,
		TenantID:    params.TenantID,
	}
	if err := s.challengeRepo.Upsert(ctx, challenge); err != nil {
		s.logger.Error("failed to store email OTP challenge", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.mailer.SendOTPEmail(ctx, params.TargetEmail, code, challenge.ExpiresAt); err != nil {
		return fmt.Errorf("failed to deliver OTP code: %w", err)
	}

	s.logger.Info("email OTP issued",
		slog.String("user_id", params.UserID.String()),
		slog.String("purpose", params.Purpose),
		slog.String("recipient_hash", pkglogger.HashIdentifier(params.TargetEmail)))
	return nil
}

// Verify checks a submitted code against the live challenge. Successful
// redemption consumes the challenge; failures drive the lockout counter
// on the challenge row.
func (s *EmailOTPService) Verify(ctx context.Context, userID uuid.UUID, purpose, email, code string) (models.VerifyResult, error) {
	challenge, err := s.challengeRepo.GetLive(ctx, userID, purpose, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.VerifyResult{Status: models.VerifyNotFound}, nil
		}
		s.logger.Error("failed to load email OTP challenge", slog.Any("error", err))
		return models.VerifyResult{}, models.ErrInternalServer
	}

	now := time.Now()
	if challenge.IsLocked(now) {
		return models.VerifyResult{Status: models.VerifyLocked, RetryAt: challenge.LockUntil}, nil
	}
	if challenge.IsExpired(now) {
		return models.VerifyResult{Status: models.VerifyExpired}, nil
	}

	submitted := hashOTPCode(normalizeOTPCode(code))
	if subtle.ConstantTimeCompare([]byte(submitted), []byte(challenge.CodeHash)) == 1 {
		if err := s.challengeRepo.MarkConsumed(ctx, challenge.ID); err != nil {
			// Two racing redemptions: the loser sees the row already
			// consumed and must not also succeed.
			if errors.Is(err, models.ErrNotFound) {
				return models.VerifyResult{Status: models.VerifyNotFound}, nil
			}
			s.logger.Error("failed to consume email OTP challenge", slog.Any("error", err))
			return models.VerifyResult{}, models.ErrInternalServer
		}
		s.limiter.Reset(ctx, issueKey(userID, purpose))
		s.logger.Info("email OTP verified",
			slog.String("user_id", userID.String()),
			slog.String("purpose", purpose))
		return models.VerifyResult{Status: models.VerifyOK}, nil
	}

	failures := challenge.FailedAttempts + 1
	if failures >= challenge.MaxAttempts {
		lockUntil := now.Add(s.config.LockDuration)
		if err := s.challengeRepo.RecordFailure(ctx, challenge.ID, failures, &lockUntil); err != nil {
			s.logger.Error("failed to lock email OTP challenge", slog.Any("error", err))
		}
		s.logger.Warn("email OTP challenge locked",
			slog.String("user_id", userID.String()),
			slog.String("purpose", purpose))
		return models.VerifyResult{Status: models.VerifyLocked, RetryAt: &lockUntil}, nil
	}

	if err := s.challengeRepo.RecordFailure(ctx, challenge.ID, failures, nil); err != nil {
		s.logger.Error("failed to record email OTP failure", slog.Any("error", err))
	}
	return models.VerifyResult{Status: models.VerifyInvalidCode}, nil
}

// Cancel removes any challenges for the user and purpose, for example
// when the surrounding flow is abandoned.
func (s *EmailOTPService) Cancel(ctx context.Context, userID uuid.UUID, purpose string) error {
	if err := s.challengeRepo.DeleteByUserAndPurpose(ctx, userID, purpose); err != nil {
		s.logger.Error("failed to cancel email OTP challenges", slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}
