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
	pkglogger "github.com/punchdeck/punchdeck/pkg/logger"
)

// ResetService performs privileged MFA resets and their rollbacks. A
// reset snapshots the user's current MFA state into an encrypted audit
// log entry before wiping it, so a support mistake is one-step
// reversible. Rollback only ever applies to the newest entry, and only
// while the user has not re-enrolled in the meantime.
type ResetService struct {
	methodRepo   repositories.MfaMethodRepository
	recoveryRepo repositories.RecoveryCodeRepository
	resetLogRepo repositories.ResetLogRepository
	cipher       *auth.SnapshotCipher
	pending      sessionstore.Store
	tx           TxRunner
	audit        *pkglogger.AuditLogger
	logger       *slog.Logger
}

// NewResetService creates a new reset service
func NewResetService(
	methodRepo repositories.MfaMethodRepository,
	recoveryRepo repositories.RecoveryCodeRepository,
	resetLogRepo repositories.ResetLogRepository,
	cipher *auth.SnapshotCipher,
	pending sessionstore.Store,
	tx TxRunner,
	audit *pkglogger.AuditLogger,
	logger *slog.Logger,
) *ResetService {
	return &ResetService{
		methodRepo:   methodRepo,
		recoveryRepo: recoveryRepo,
		resetLogRepo: resetLogRepo,
		cipher:       cipher,
		pending:      pending,
		tx:           tx,
		audit:        audit,
		logger:       logger,
	}
}

// Reset wipes the user's MFA state after snapshotting it. The snapshot
// write and the deletions commit together or not at all; a user is
// never left reset without a recoverable snapshot.
func (s *ResetService) Reset(ctx context.Context, userID, performedBy uuid.UUID) error {
	snapshot := models.MfaSnapshot{TakenAt: time.Now()}

	method, err := s.methodRepo.GetVerifiedTOTP(ctx, userID)
	switch {
	case err == nil:
		snapshot.Method = method
	case errors.Is(err, models.ErrNotFound):
		// Nothing enrolled; the reset still clears stragglers and is logged.
	default:
		s.logger.Error("failed to snapshot MFA method", slog.Any("error", err))
		return models.ErrInternalServer
	}

	codes, err := s.recoveryRepo.GetByUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to snapshot recovery codes", slog.Any("error", err))
		return models.ErrInternalServer
	}
	snapshot.RecoveryCodes = codes

	sealed, err := s.cipher.Encrypt(snapshot)
	if err != nil {
		s.logger.Error("failed to encrypt reset snapshot", slog.Any("error", err))
		return models.ErrInternalServer
	}

	logEntry := &models.MfaResetLog{
		UserID:      userID,
		PerformedBy: performedBy,
		Snapshot:    sealed,
	}
	err = s.tx.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := s.resetLogRepo.CreateTx(ctx, tx, logEntry); err != nil {
			return err
		}
		if err := s.methodRepo.DeleteByUserTx(ctx, tx, userID); err != nil {
			return err
		}
		return s.recoveryRepo.DeleteByUserTx(ctx, tx, userID)
	})
	if err != nil {
		s.logger.Error("failed to reset MFA", slog.Any("error", err))
		return models.ErrInternalServer
	}

	// Any half-finished login, enrollment or ceremony is moot after
	// the wipe.
	s.pending.Delete(pendingMfaKey(userID))
	s.pending.Delete(pendingTotpKey(userID))
	s.pending.Delete(regChallengeKey(userID))
	s.pending.Delete(assertChallengeKey(userID))

	s.audit.LogMfaEvent(pkglogger.AuditEvent{
		EventType: "mfa_reset",
		UserID:    userID.String(),
		Success:   true,
	})
	s.logger.Info("MFA reset",
		slog.String("user_id", userID.String()),
		slog.String("performed_by", performedBy.String()),
		slog.String("reset_log_id", logEntry.ID.String()))
	return nil
}

// Rollback restores the state captured by the reset identified by
// resetID. It refuses when that entry is not the user's most recent
// reset, was already rolled back, when the user has re-enrolled since,
// or when the snapshot cannot be decoded.
func (s *ResetService) Rollback(ctx context.Context, userID, resetID, performedBy uuid.UUID) error {
	logEntry, err := s.resetLogRepo.GetLatestByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to load reset log", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if logEntry.ID != resetID {
		// Only the newest reset may roll back; a replayed request
		// carrying an older identifier must not touch it.
		return models.ErrResetSuperseded
	}
	if logEntry.RolledBackAt != nil {
		return models.ErrResetSuperseded
	}

	var snapshot models.MfaSnapshot
	if !s.cipher.DecryptInto(logEntry.Snapshot, &snapshot) {
		s.logger.Error("reset snapshot unreadable",
			slog.String("reset_log_id", logEntry.ID.String()))
		return models.ErrSnapshotInvalid
	}

	if _, err := s.methodRepo.GetVerifiedTOTP(ctx, userID); err == nil {
		return models.ErrResetConflict
	} else if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check re-enrollment", slog.Any("error", err))
		return models.ErrInternalServer
	}

	err = s.tx.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := s.resetLogRepo.MarkRolledBackTx(ctx, tx, logEntry.ID); err != nil {
			return err
		}
		if snapshot.Method != nil {
			if err := s.methodRepo.CreateTx(ctx, tx, snapshot.Method); err != nil {
				return err
			}
		}
		if len(snapshot.RecoveryCodes) > 0 {
			if err := s.recoveryRepo.RestoreTx(ctx, tx, snapshot.RecoveryCodes); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// Two racing rollbacks: the loser sees the entry already marked.
		if errors.Is(err, models.ErrConflict) {
			return models.ErrResetSuperseded
		}
		s.logger.Error("failed to roll back MFA reset", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.LogMfaEvent(pkglogger.AuditEvent{
		EventType: "mfa_reset_rollback",
		UserID:    userID.String(),
		Success:   true,
	})
	s.logger.Info("MFA reset rolled back",
		slog.String("user_id", userID.String()),
		slog.String("performed_by", performedBy.String()),
		slog.String("reset_log_id", logEntry.ID.String()))
	return nil
}
