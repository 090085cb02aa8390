package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/punchdeck/punchdeck/internal/database"
	"github.com/punchdeck/punchdeck/internal/models"
)

// SessionRepository defines active-session and login-history
// persistence. active_sessions holds exactly one row per user; the
// upsert implements "last login wins".
type SessionRepository interface {
	UpsertActive(ctx context.Context, session *models.ActiveSession) error
	GetActive(ctx context.Context, userID uuid.UUID) (*models.ActiveSession, error)
	CreateLoginRecord(ctx context.Context, record *models.LoginSessionRecord) error
	GetLoginRecord(ctx context.Context, userID uuid.UUID, sessionHash string) (*models.LoginSessionRecord, error)
	RevokeOthers(ctx context.Context, userID uuid.UUID, keepHash string) (int64, error)
}

type sessionRepoImpl struct {
	db *database.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *database.DB) SessionRepository {
	return &sessionRepoImpl{db: db}
}

func (r *sessionRepoImpl) UpsertActive(ctx context.Context, session *models.ActiveSession) error {
	query := `
		INSERT INTO active_sessions (user_id, session_hash, last_login_at, last_login_ip, last_login_ua)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id)
		DO UPDATE SET
			session_hash = EXCLUDED.session_hash,
			last_login_at = EXCLUDED.last_login_at,
			last_login_ip = EXCLUDED.last_login_ip,
			last_login_ua = EXCLUDED.last_login_ua
	`
	_, err := r.db.Pool.Exec(ctx, query,
		session.UserID,
		session.SessionHash,
		session.LastLoginAt,
		session.LastLoginIP,
		session.LastLoginUA,
	)
	if err != nil {
		if mapped := database.MapPostgresError(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to upsert active session: %w", err)
	}
	return nil
}

func (r *sessionRepoImpl) GetActive(ctx context.Context, userID uuid.UUID) (*models.ActiveSession, error) {
	session := &models.ActiveSession{}

	query := `
		SELECT user_id, session_hash, last_login_at, last_login_ip, last_login_ua
		FROM active_sessions
		WHERE user_id = $1
	`
	err := r.db.Pool.QueryRow(ctx, query, userID).Scan(
		&session.UserID,
		&session.SessionHash,
		&session.LastLoginAt,
		&session.LastLoginIP,
		&session.LastLoginUA,
	)
	if err != nil {
		if mapped := database.MapPostgresError(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return session, nil
}

func (r *sessionRepoImpl) CreateLoginRecord(ctx context.Context, record *models.LoginSessionRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	query := `
		INSERT INTO login_sessions (id, user_id, session_hash)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`
	err := r.db.Pool.QueryRow(ctx, query, record.ID, record.UserID, record.SessionHash).Scan(&record.CreatedAt)
	if err != nil {
		if mapped := database.MapPostgresError(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to create login record: %w", err)
	}
	return nil
}

func (r *sessionRepoImpl) GetLoginRecord(ctx context.Context, userID uuid.UUID, sessionHash string) (*models.LoginSessionRecord, error) {
	record := &models.LoginSessionRecord{}

	query := `
		SELECT id, user_id, session_hash, created_at, revoked_at
		FROM login_sessions
		WHERE user_id = $1 AND session_hash = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	err := r.db.Pool.QueryRow(ctx, query, userID, sessionHash).Scan(
		&record.ID,
		&record.UserID,
		&record.SessionHash,
		&record.CreatedAt,
		&record.RevokedAt,
	)
	if err != nil {
		if mapped := database.MapPostgresError(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to get login record: %w", err)
	}
	return record, nil
}

// RevokeOthers marks every non-revoked login record except keepHash as
// revoked, returning how many were affected.
func (r *sessionRepoImpl) RevokeOthers(ctx context.Context, userID uuid.UUID, keepHash string) (int64, error) {
	query := `
		UPDATE login_sessions
		SET revoked_at = NOW()
		WHERE user_id = $1 AND session_hash <> $2 AND revoked_at IS NULL
	`
	tag, err := r.db.Pool.Exec(ctx, query, userID, keepHash)
	if err != nil {
		if mapped := database.MapPostgresError(err); mapped != err {
			return 0, mapped
		}
		return 0, fmt.Errorf("failed to revoke login records: %w", err)
	}
	return tag.RowsAffected(), nil
}
