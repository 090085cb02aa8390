package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/punchdeck/punchdeck/internal/database"
	"github.com/punchdeck/punchdeck/internal/models"
)

// EmailChallengeRepository defines email OTP challenge persistence.
// A partial unique index on (user_id, purpose, target_email) WHERE
// consumed_at IS NULL keeps one live challenge per triple; Upsert
// replaces the live row in place.
type EmailChallengeRepository interface {
	Upsert(ctx context.Context, challenge *models.EmailOtpChallenge) error
	GetLive(ctx context.Context, userID uuid.UUID, purpose, email string) (*models.EmailOtpChallenge, error)
	RecordFailure(ctx context.Context, id uuid.UUID, failedAttempts int, lockUntil *time.Time) error
	MarkConsumed(ctx context.Context, id uuid.UUID) error
	DeleteByUserAndPurpose(ctx context.Context, userID uuid.UUID, purpose string) error
}

type emailChallengeRepoImpl struct {
	db *database.DB
}

// NewEmailChallengeRepository creates a new email challenge repository
func NewEmailChallengeRepository(db *database.DB) EmailChallengeRepository {
	return &emailChallengeRepoImpl{db: db}
}

func (r *emailChallengeRepoImpl) Upsert(ctx context.Context, challenge *models.EmailOtpChallenge) error {
	if challenge.ID == uuid.Nil {
		challenge.ID = uuid.New()
	}

	query := `
		INSERT INTO email_otp_challenges
			(id, user_id, purpose, target_email, code_hash, expires_at,
			 failed_attempts, max_attempts, lock_until, last_sent_at,
			 role_code_id, tenant_id)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, NULL, $8, $9, $10)
		ON CONFLICT (user_id, purpose, target_email) WHERE consumed_at IS NULL
		DO UPDATE SET
			code_hash = EXCLUDED.code_hash,
			expires_at = EXCLUDED.expires_at,
			failed_attempts = 0,
			max_attempts = EXCLUDED.max_attempts,
			lock_until = NULL,
			last_sent_at = EXCLUDED.last_sent_at,
			role_code_id = EXCLUDED.role_code_id,
			tenant_id = EXCLUDED.tenant_id
		RETURNING id, created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		challenge.ID,
		challenge.UserID,
		challenge.Purpose,
		challenge.TargetEmail,
		challenge.CodeHash,
		challenge.ExpiresAt,
		challenge.MaxAttempts,
		challenge.LastSentAt,
		challenge.RoleCodeID,
		challenge.TenantID,
	).Scan(&challenge.ID, &challenge.CreatedAt)
	if err != nil {
		if mapped := database.MapPostgresError(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to upsert email OTP challenge: %w", err)
	}
	return nil
}

func (r *emailChallengeRepoImpl) GetLive(ctx context.Context, userID uuid.UUID, purpose, email string) (*models.EmailOtpChallenge, error) {
	challenge := &models.EmailOtpChallenge{}

	query := `
		SELECT id, user_id, purpose, target_email, code_hash, expires_at,
		       failed_attempts, max_attempts, lock_until, last_sent_at,
		       consumed_at, role_code_id, tenant_id, created_at
		FROM email_otp_challenges
		WHERE user_id = $1 AND purpose = $2 AND target_email = $3 AND consumed_at IS NULL
	`

	err := r.db.Pool.QueryRow(ctx, query, userID, purpose, email).Scan(
		&challenge.ID,
		&challenge.UserID,
		&challenge.Purpose,
		&challenge.TargetEmail,
		&challenge.CodeHash,
		&challenge.ExpiresAt,
		&challenge.FailedAttempts,
		&challenge.MaxAttempts,
		&challenge.LockUntil,
		&challenge.LastSentAt,
		&challenge.ConsumedAt,
		&challenge.RoleCodeID,
		&challenge.TenantID,
		&challenge.CreatedAt,
	)
	if err != nil {
		if mapped := database.MapPostgresError(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to get email OTP challenge: %w", err)
	}
	return challenge, nil
}

func (r *emailChallengeRepoImpl) RecordFailure(ctx context.Context, id uuid.UUID, failedAttempts int, lockUntil *time.Time) error {
	query := `
		UPDATE email_otp_challenges
		SET failed_attempts = $1, lock_until = $2
		WHERE id = $3 AND consumed_at IS NULL
	`
	tag, err := r.db.Pool.Exec(ctx, query, failedAttempts, lockUntil, id)
	if err != nil {
		return fmt.Errorf("failed to record email OTP failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *emailChallengeRepoImpl) MarkConsumed(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE email_otp_challenges
		SET consumed_at = NOW(), failed_attempts = 0, lock_until = NULL
		WHERE id = $1 AND consumed_at IS NULL
	`
	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to consume email OTP challenge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *emailChallengeRepoImpl) DeleteByUserAndPurpose(ctx context.Context, userID uuid.UUID, purpose string) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM email_otp_challenges WHERE user_id = $1 AND purpose = $2`,
		userID, purpose)
	if err != nil {
		return fmt.Errorf("failed to delete email OTP challenges: %w", err)
	}
	return nil
}
