package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/punchdeck/punchdeck/internal/database"
	"github.com/punchdeck/punchdeck/internal/models"
)

// RecoveryCodeRepository defines recovery code persistence. Redemption
// is a single atomic update so a code can never be spent twice.
type RecoveryCodeRepository interface {
	ReplaceForUserTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, hashes []string) error
	GetByUser(ctx context.Context, userID uuid.UUID) ([]models.RecoveryCode, error)
	Redeem(ctx context.Context, userID uuid.UUID, codeHash string) (bool, error)
	CountUnused(ctx context.Context, userID uuid.UUID) (int, error)
	DeleteByUserTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error
	RestoreTx(ctx context.Context, tx pgx.Tx, codes []models.RecoveryCode) error
}

type recoveryCodeRepoImpl struct {
	db *database.DB
}

// NewRecoveryCodeRepository creates a new recovery code repository
func NewRecoveryCodeRepository(db *database.DB) RecoveryCodeRepository {
	return &recoveryCodeRepoImpl{db: db}
}

// ReplaceForUserTx deletes the user's existing set and inserts the new
// hashes within the caller's transaction, so regeneration is
// all-or-nothing.
func (r *recoveryCodeRepoImpl) ReplaceForUserTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, hashes []string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM recovery_codes WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear recovery codes: %w", err)
	}
	for _, hash := range hashes {
		_, err := tx.Exec(ctx,
			`INSERT INTO recovery_codes (id, user_id, code_hash) VALUES ($1, $2, $3)`,
			uuid.New(), userID, hash)
		if err != nil {
			return fmt.Errorf("failed to insert recovery code: %w", err)
		}
	}
	return nil
}

func (r *recoveryCodeRepoImpl) GetByUser(ctx context.Context, userID uuid.UUID) ([]models.RecoveryCode, error) {
	query := `
		SELECT id, user_id, code_hash, used_at, created_at
		FROM recovery_codes
		WHERE user_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query recovery codes: %w", err)
	}
	defer rows.Close()

	var codes []models.RecoveryCode
	for rows.Next() {
		var code models.RecoveryCode
		if err := rows.Scan(&code.ID, &code.UserID, &code.CodeHash, &code.UsedAt, &code.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recovery code: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recovery codes: %w", err)
	}
	return codes, nil
}

// Redeem marks an unused code as used. Returns false when no unused
// code matches the hash; the WHERE clause makes redemption atomic
// under concurrent attempts.
func (r *recoveryCodeRepoImpl) Redeem(ctx context.Context, userID uuid.UUID, codeHash string) (bool, error) {
	query := `
		UPDATE recovery_codes
		SET used_at = NOW()
		WHERE user_id = $1 AND code_hash = $2 AND used_at IS NULL
	`
	tag, err := r.db.Pool.Exec(ctx, query, userID, codeHash)
	if err != nil {
		return false, fmt.Errorf("failed to redeem recovery code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *recoveryCodeRepoImpl) CountUnused(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM recovery_codes WHERE user_id = $1 AND used_at IS NULL`,
		userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recovery codes: %w", err)
	}
	return count, nil
}

func (r *recoveryCodeRepoImpl) DeleteByUserTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	_, err := tx.Exec(ctx, `DELETE FROM recovery_codes WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete recovery codes: %w", err)
	}
	return nil
}

// RestoreTx reinserts snapshotted codes, preserving their used state
func (r *recoveryCodeRepoImpl) RestoreTx(ctx context.Context, tx pgx.Tx, codes []models.RecoveryCode) error {
	for _, code := range codes {
		_, err := tx.Exec(ctx,
			`INSERT INTO recovery_codes (id, user_id, code_hash, used_at, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			code.ID, code.UserID, code.CodeHash, code.UsedAt, code.CreatedAt)
		if err != nil {
			if mapped := database.MapPostgresError(err); mapped != err {
				return mapped
			}
			return fmt.Errorf("failed to restore recovery code: %w", err)
		}
	}
	return nil
}
