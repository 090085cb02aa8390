package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/punchdeck/punchdeck/internal/auth"
	"github.com/punchdeck/punchdeck/internal/models"
	"github.com/punchdeck/punchdeck/internal/ratelimit"
	"github.com/punchdeck/punchdeck/internal/repositories"
)

// RecoveryConfig holds recovery code parameters
type RecoveryConfig struct {
	CodeCount    int
	RedeemLimit  int
	RedeemWindow time.Duration
}

// RecoveryService manages single-use backup codes. Generation replaces
// the whole set atomically; redemption spends exactly one unused code.
type RecoveryService struct {
	recoveryRepo repositories.RecoveryCodeRepository
	methodRepo   repositories.MfaMethodRepository
	limiter      ratelimit.Limiter
	tx           TxRunner
	logger       *slog.Logger
	config       RecoveryConfig
}

// NewRecoveryService creates a new recovery code service
func NewRecoveryService(
	recoveryRepo repositories.RecoveryCodeRepository,
	methodRepo repositories.MfaMethodRepository,
	limiter ratelimit.Limiter,
	tx TxRunner,
	logger *slog.Logger,
	config RecoveryConfig,
) *RecoveryService {
	return &RecoveryService{
		recoveryRepo: recoveryRepo,
		methodRepo:   methodRepo,
		limiter:      limiter,
		tx:           tx,
		logger:       logger,
		config:       config,
	}
}

// Generate replaces the user's recovery code set and returns the
// plaintext codes exactly once. A verified TOTP method must exist
// before codes can be generated.
func (s *RecoveryService) Generate(ctx context.Context, userID uuid.UUID) ([]string, error) {
	if _, err := s.methodRepo.GetVerifiedTOTP(ctx, userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrMethodNotFound
		}
		s.logger.Error("failed to check MFA method", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	codes, err := auth.GenerateRecoveryCodes(s.config.CodeCount)
	if err != nil {
		s.logger.Error("failed to generate recovery codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hashes := make([]string, len(codes))
	for i, code := range codes {
		hashes[i] = auth.HashRecoveryCode(code)
	}

	err = s.tx.WithTransaction(ctx, func(tx pgx.Tx) error {
		return s.recoveryRepo.ReplaceForUserTx(ctx, tx, userID, hashes)
	})
	if err != nil {
		s.logger.Error("failed to store recovery codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("recovery codes generated",
		slog.String("user_id", userID.String()),
		slog.Int("count", len(codes)))
	return codes, nil
}

// Redeem spends one unused recovery code. The update is atomic, so a
// code presented twice concurrently succeeds at most once. Attempts are
// rate limited per user.
func (s *RecoveryService) Redeem(ctx context.Context, userID uuid.UUID, code string) (models.VerifyResult, error) {
	if !s.limiter.Allow(ctx, "recovery:redeem:"+userID.String(), s.config.RedeemLimit, s.config.RedeemWindow) {
		return models.VerifyResult{Status: models.VerifyRateLimited}, nil
	}

	ok, err := s.recoveryRepo.Redeem(ctx, userID, auth.HashRecoveryCode(code))
	if err != nil {
		s.logger.Error("failed to redeem recovery code", slog.Any("error", err))
		return models.VerifyResult{}, models.ErrInternalServer
	}
	if !ok {
		s.logger.Warn("invalid recovery code", slog.String("user_id", userID.String()))
		return models.VerifyResult{Status: models.VerifyInvalidCode}, nil
	}

	remaining, err := s.recoveryRepo.CountUnused(ctx, userID)
	if err != nil {
		s.logger.Error("failed to count remaining recovery codes", slog.Any("error", err))
	} else if remaining == 0 {
		s.logger.Warn("last recovery code spent", slog.String("user_id", userID.String()))
	}

	s.logger.Info("recovery code redeemed",
		slog.String("user_id", userID.String()),
		slog.Int("remaining", remaining))
	return models.VerifyResult{Status: models.VerifyOK}, nil
}

// Remaining reports how many unused codes the user has left
func (s *RecoveryService) Remaining(ctx context.Context, userID uuid.UUID) (int, error) {
	count, err := s.recoveryRepo.CountUnused(ctx, userID)
	if err != nil {
		s.logger.Error("failed to count recovery codes", slog.Any("error", err))
		return 0, models.ErrInternalServer
	}
	return count, nil
}
