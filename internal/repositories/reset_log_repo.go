package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/punchdeck/punchdeck/internal/database"
	"github.com/punchdeck/punchdeck/internal/models"
)

// ResetLogRepository defines the MFA reset audit log. Rollback only
// ever targets the newest entry for a user, so ordering matters.
type ResetLogRepository interface {
	CreateTx(ctx context.Context, tx pgx.Tx, log *models.MfaResetLog) error
	GetLatestByUser(ctx context.Context, userID uuid.UUID) (*models.MfaResetLog, error)
	MarkRolledBackTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

type resetLogRepoImpl struct {
	db *database.DB
}

// NewResetLogRepository creates a new reset log repository
func NewResetLogRepository(db *database.DB) ResetLogRepository {
	return &resetLogRepoImpl{db: db}
}

func (r *resetLogRepoImpl) CreateTx(ctx context.Context, tx pgx.Tx, log *models.MfaResetLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}

	query := `
		INSERT INTO mfa_reset_logs (id, user_id, performed_by, snapshot)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	err := tx.QueryRow(ctx, query, log.ID, log.UserID, log.PerformedBy, log.Snapshot).Scan(&log.CreatedAt)
	if err != nil {
		if mapped := database.MapPostgresError(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to create reset log: %w", err)
	}
	return nil
}

func (r *resetLogRepoImpl) GetLatestByUser(ctx context.Context, userID uuid.UUID) (*models.MfaResetLog, error) {
	log := &models.MfaResetLog{}

	query := `
		SELECT id, user_id, performed_by, snapshot, created_at, rolled_back_at
		FROM mfa_reset_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	err := r.db.Pool.QueryRow(ctx, query, userID).Scan(
		&log.ID,
		&log.UserID,
		&log.PerformedBy,
		&log.Snapshot,
		&log.CreatedAt,
		&log.RolledBackAt,
	)
	if err != nil {
		if mapped := database.MapPostgresError(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to get latest reset log: %w", err)
	}
	return log, nil
}

func (r *resetLogRepoImpl) MarkRolledBackTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	query := `
		UPDATE mfa_reset_logs
		SET rolled_back_at = NOW()
		WHERE id = $1 AND rolled_back_at IS NULL
	`
	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark reset log rolled back: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrConflict
	}
	return nil
}
