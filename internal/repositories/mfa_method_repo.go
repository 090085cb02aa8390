package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/punchdeck/punchdeck/internal/database"
	"github.com/punchdeck/punchdeck/internal/models"
)

// MfaMethodRepository defines MFA method persistence operations.
// A partial unique index on (user_id) WHERE method_type = 'totp' AND
// verified_at IS NOT NULL backs the one-verified-TOTP-per-user
// invariant; violation surfaces as ErrConflict.
type MfaMethodRepository interface {
	Create(ctx context.Context, method *models.MfaMethod) error
	CreateTx(ctx context.Context, tx pgx.Tx, method *models.MfaMethod) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.MfaMethod, error)
	GetVerifiedTOTP(ctx context.Context, userID uuid.UUID) (*models.MfaMethod, error)
	UpdateFailureState(ctx context.Context, id uuid.UUID, failedAttempts int, lockUntil *time.Time) error
	MarkUsed(ctx context.Context, id uuid.UUID) error
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
	DeleteByUserTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error
}

type mfaMethodRepoImpl struct {
	db *database.DB
}

// NewMfaMethodRepository creates a new MFA method repository
func NewMfaMethodRepository(db *database.DB) MfaMethodRepository {
	return &mfaMethodRepoImpl{db: db}
}

const mfaMethodColumns = `id, user_id, method_type, secret, failed_attempts, lock_until, verified_at, last_used_at, created_at`

const createMfaMethodQuery = `
	INSERT INTO mfa_methods
		(id, user_id, method_type, secret, verified_at)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING created_at
`

func (r *mfaMethodRepoImpl) Create(ctx context.Context, method *models.MfaMethod) error {
	if method.ID == uuid.Nil {
		method.ID = uuid.New()
	}
	err := r.db.Pool.QueryRow(ctx, createMfaMethodQuery,
		method.ID, method.UserID, method.Type, method.SecretBase32, method.VerifiedAt,
	).Scan(&method.CreatedAt)
	if err != nil {
		if mapped := database.MapPostgresError(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to create MFA method: %w", err)
	}
	return nil
}

func (r *mfaMethodRepoImpl) CreateTx(ctx context.Context, tx pgx.Tx, method *models.MfaMethod) error {
	if method.ID == uuid.Nil {
		method.ID = uuid.New()
	}
	err := tx.QueryRow(ctx, createMfaMethodQuery,
		method.ID, method.UserID, method.Type, method.SecretBase32, method.VerifiedAt,
	).Scan(&method.CreatedAt)
	if err != nil {
		if mapped := database.MapPostgresError(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to create MFA method: %w", err)
	}
	return nil
}

func (r *mfaMethodRepoImpl) GetByID(ctx context.Context, id uuid.UUID) (*models.MfaMethod, error) {
	query := `SELECT ` + mfaMethodColumns + ` FROM mfa_methods WHERE id = $1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *mfaMethodRepoImpl) GetVerifiedTOTP(ctx context.Context, userID uuid.UUID) (*models.MfaMethod, error) {
	query := `
		SELECT ` + mfaMethodColumns + `
		FROM mfa_methods
		WHERE user_id = $1 AND method_type = $2 AND verified_at IS NOT NULL
	`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, userID, models.MfaMethodTOTP))
}

func (r *mfaMethodRepoImpl) scanOne(row pgx.Row) (*models.MfaMethod, error) {
	method := &models.MfaMethod{}
	err := row.Scan(
		&method.ID,
		&method.UserID,
		&method.Type,
		&method.SecretBase32,
		&method.FailedAttempts,
		&method.LockUntil,
		&method.VerifiedAt,
		&method.LastUsedAt,
		&method.CreatedAt,
	)
	if err != nil {
		if mapped := database.MapPostgresError(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to get MFA method: %w", err)
	}
	return method, nil
}

// UpdateFailureState persists the lock state machine transition
func (r *mfaMethodRepoImpl) UpdateFailureState(ctx context.Context, id uuid.UUID, failedAttempts int, lockUntil *time.Time) error {
	query := `
		UPDATE mfa_methods
		SET failed_attempts = $1, lock_until = $2
		WHERE id = $3
	`
	tag, err := r.db.Pool.Exec(ctx, query, failedAttempts, lockUntil, id)
	if err != nil {
		return fmt.Errorf("failed to update MFA failure state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// MarkUsed resets failure counters and stamps last_used_at
func (r *mfaMethodRepoImpl) MarkUsed(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE mfa_methods
		SET failed_attempts = 0, lock_until = NULL, last_used_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark MFA method used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *mfaMethodRepoImpl) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM mfa_methods WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user's MFA methods: %w", err)
	}
	return nil
}

func (r *mfaMethodRepoImpl) DeleteByUserTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	_, err := tx.Exec(ctx, `DELETE FROM mfa_methods WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user's MFA methods: %w", err)
	}
	return nil
}
