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
	"github.com/punchdeck/punchdeck/internal/repositories"
	"github.com/punchdeck/punchdeck/internal/sessionstore"
)

// TOTPConfig holds verification and enrollment parameters. Values come
// from configuration already clamped to safe bounds.
type TOTPConfig struct {
	Digits           int
	Period           int
	Window           int
	MaxFailures      int
	LockDuration     time.Duration
	PendingSecretTTL time.Duration
}

// EnrollmentSetup is returned once when TOTP enrollment begins. The
// secret is also held as pending session state until the first code
// confirms it.
type EnrollmentSetup struct {
	Secret string
	URI    string
	QRCode string
}

// TOTPService manages authenticator-app enrollment and verification.
// The lock state machine lives on the MfaMethod row: consecutive
// failures up to MaxFailures lock the method until LockDuration
// elapses, and a locked method refuses attempts outright.
type TOTPService struct {
	methodRepo   repositories.MfaMethodRepository
	recoveryRepo repositories.RecoveryCodeRepository
	engine       *auth.TOTPEngine
	pending      sessionstore.Store
	tx           TxRunner
	logger       *slog.Logger
	config       TOTPConfig
}

// NewTOTPService creates a new TOTP service
func NewTOTPService(
	methodRepo repositories.MfaMethodRepository,
	recoveryRepo repositories.RecoveryCodeRepository,
	engine *auth.TOTPEngine,
	pending sessionstore.Store,
	tx TxRunner,
	logger *slog.Logger,
	config TOTPConfig,
) *TOTPService {
	return &TOTPService{
		methodRepo:   methodRepo,
		recoveryRepo: recoveryRepo,
		engine:       engine,
		pending:      pending,
		tx:           tx,
		logger:       logger,
		config:       config,
	}
}

func pendingTotpKey(userID uuid.UUID) string {
	return "pending-totp:" + userID.String()
}

// BeginEnrollment generates a fresh secret, stores it as pending
// session state and returns the provisioning material. An existing
// verified method blocks a second enrollment.
func (s *TOTPService) BeginEnrollment(ctx context.Context, userID uuid.UUID, accountLabel string) (*EnrollmentSetup, error) {
	if _, err := s.methodRepo.GetVerifiedTOTP(ctx, userID); err == nil {
		return nil, models.ErrAlreadyRegistered
	} else if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check existing TOTP method", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	secret, err := s.engine.GenerateSecret()
	if err != nil {
		s.logger.Error("failed to generate TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	state := models.PendingTotpSecret{
		UserID:    userID,
		Secret:    secret,
		CreatedAt: time.Now(),
	}
	if err := sessionstore.SetJSON(s.pending, pendingTotpKey(userID), state, s.config.PendingSecretTTL); err != nil {
		s.logger.Error("failed to store pending TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	uri := s.engine.ProvisioningURI(secret, accountLabel, s.config.Digits, s.config.Period)
	qr, err := s.engine.QRCodeDataURL(uri)
	if err != nil {
		s.logger.Error("failed to render enrollment QR code", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("TOTP enrollment started", slog.String("user_id", userID.String()))

	return &EnrollmentSetup{Secret: secret, URI: uri, QRCode: qr}, nil
}

// ConfirmEnrollment verifies the first live code against the pending
// secret and persists the verified method. The pending record expires
// with its TTL, after which enrollment must be restarted.
func (s *TOTPService) ConfirmEnrollment(ctx context.Context, userID uuid.UUID, code string) error {
	// The pending record is consumed atomically; of two concurrent
	// confirmations only one can proceed.
	var state models.PendingTotpSecret
	if !sessionstore.TakeJSON(s.pending, pendingTotpKey(userID), &state) || state.UserID != userID {
		return models.ErrNotFound
	}

	if !s.engine.Verify(ctx, state.Secret, code, s.config.Digits, s.config.Period, s.config.Window) {
		// A mistyped code should not force restarting enrollment. The
		// record goes back under whatever TTL it had left.
		if remaining := s.config.PendingSecretTTL - time.Since(state.CreatedAt); remaining > 0 {
			if err := sessionstore.SetJSON(s.pending, pendingTotpKey(userID), state, remaining); err != nil {
				s.logger.Error("failed to restore pending TOTP secret", slog.Any("error", err))
			}
		}
		s.logger.Warn("invalid TOTP code during enrollment", slog.String("user_id", userID.String()))
		return models.ErrInvalidCode
	}

	now := time.Now()
	method := &models.MfaMethod{
		UserID:       userID,
		Type:         models.MfaMethodTOTP,
		SecretBase32: state.Secret,
		VerifiedAt:   &now,
	}
	if err := s.methodRepo.Create(ctx, method); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return models.ErrAlreadyRegistered
		}
		s.logger.Error("failed to persist TOTP method", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("TOTP enrollment confirmed",
		slog.String("user_id", userID.String()),
		slog.String("method_id", method.ID.String()))
	return nil
}

// Verify checks a login code against the user's verified method,
// driving the failure counter and lock window on the method row.
func (s *TOTPService) Verify(ctx context.Context, userID uuid.UUID, code string) (models.VerifyResult, error) {
	method, err := s.methodRepo.GetVerifiedTOTP(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.VerifyResult{Status: models.VerifyNotFound}, nil
		}
		s.logger.Error("failed to load TOTP method", slog.Any("error", err))
		return models.VerifyResult{}, models.ErrInternalServer
	}

	now := time.Now()
	if method.IsLocked(now) {
		return models.VerifyResult{Status: models.VerifyLocked, RetryAt: method.LockUntil}, nil
	}

	if s.engine.Verify(ctx, method.SecretBase32, code, s.config.Digits, s.config.Period, s.config.Window) {
		if err := s.methodRepo.MarkUsed(ctx, method.ID); err != nil {
			s.logger.Error("failed to mark TOTP method used", slog.Any("error", err))
		}
		return models.VerifyResult{Status: models.VerifyOK}, nil
	}

	failures := method.FailedAttempts + 1
	if failures >= s.config.MaxFailures {
		lockUntil := now.Add(s.config.LockDuration)
		if err := s.methodRepo.UpdateFailureState(ctx, method.ID, 0, &lockUntil); err != nil {
			s.logger.Error("failed to lock TOTP method", slog.Any("error", err))
		}
		s.logger.Warn("TOTP method locked after repeated failures",
			slog.String("user_id", userID.String()),
			slog.Time("lock_until", lockUntil))
		return models.VerifyResult{Status: models.VerifyLocked, RetryAt: &lockUntil}, nil
	}

	if err := s.methodRepo.UpdateFailureState(ctx, method.ID, failures, nil); err != nil {
		s.logger.Error("failed to record TOTP failure", slog.Any("error", err))
	}
	return models.VerifyResult{Status: models.VerifyInvalidCode}, nil
}

// Disable removes the user's TOTP method together with their recovery
// codes in one transaction.
func (s *TOTPService) Disable(ctx context.Context, userID uuid.UUID) error {
	err := s.tx.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := s.methodRepo.DeleteByUserTx(ctx, tx, userID); err != nil {
			return err
		}
		return s.recoveryRepo.DeleteByUserTx(ctx, tx, userID)
	})
	if err != nil {
		s.logger.Error("failed to disable MFA", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.pending.Delete(pendingTotpKey(userID))
	s.logger.Info("MFA disabled", slog.String("user_id", userID.String()))
	return nil
}
