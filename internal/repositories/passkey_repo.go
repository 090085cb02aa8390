package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/punchdeck/punchdeck/internal/database"
	"github.com/punchdeck/punchdeck/internal/models"
)

// PasskeyRepository defines WebAuthn credential persistence.
// credential_id carries a unique constraint; duplicate registration
// surfaces as ErrConflict.
type PasskeyRepository interface {
	Create(ctx context.Context, credential *models.PasskeyCredential) error
	GetByCredentialID(ctx context.Context, credentialID []byte) (*models.PasskeyCredential, error)
	GetByUser(ctx context.Context, userID uuid.UUID) ([]models.PasskeyCredential, error)
	UpdateSignCount(ctx context.Context, credentialID []byte, signCount uint32) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
}

type passkeyRepoImpl struct {
	db *database.DB
}

// NewPasskeyRepository creates a new passkey repository
func NewPasskeyRepository(db *database.DB) PasskeyRepository {
	return &passkeyRepoImpl{db: db}
}

const passkeyColumns = `id, user_id, credential_id, public_key, sign_count, user_handle, transports, attestation_type, created_at, last_used_at`

func (r *passkeyRepoImpl) Create(ctx context.Context, credential *models.PasskeyCredential) error {
	if credential.ID == uuid.Nil {
		credential.ID = uuid.New()
	}

	query := `
		INSERT INTO passkey_credentials
			(id, user_id, credential_id, public_key, sign_count, user_handle, transports, attestation_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err := r.db.Pool.QueryRow(ctx, query,
		credential.ID,
		credential.UserID,
		credential.CredentialID,
		credential.PublicKey,
		credential.SignCount,
		credential.UserHandle,
		credential.Transports,
		credential.AttestationType,
	).Scan(&credential.CreatedAt)
	if err != nil {
		if mapped := database.MapPostgresError(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to create passkey credential: %w", err)
	}
	return nil
}

func (r *passkeyRepoImpl) GetByCredentialID(ctx context.Context, credentialID []byte) (*models.PasskeyCredential, error) {
	credential := &models.PasskeyCredential{}

	query := `SELECT ` + passkeyColumns + ` FROM passkey_credentials WHERE credential_id = $1`
	err := r.db.Pool.QueryRow(ctx, query, credentialID).Scan(
		&credential.ID,
		&credential.UserID,
		&credential.CredentialID,
		&credential.PublicKey,
		&credential.SignCount,
		&credential.UserHandle,
		&credential.Transports,
		&credential.AttestationType,
		&credential.CreatedAt,
		&credential.LastUsedAt,
	)
	if err != nil {
		if mapped := database.MapPostgresError(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to get passkey credential: %w", err)
	}
	return credential, nil
}

func (r *passkeyRepoImpl) GetByUser(ctx context.Context, userID uuid.UUID) ([]models.PasskeyCredential, error) {
	query := `SELECT ` + passkeyColumns + ` FROM passkey_credentials WHERE user_id = $1 ORDER BY created_at`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query passkey credentials: %w", err)
	}
	defer rows.Close()

	var credentials []models.PasskeyCredential
	for rows.Next() {
		var credential models.PasskeyCredential
		if err := rows.Scan(
			&credential.ID,
			&credential.UserID,
			&credential.CredentialID,
			&credential.PublicKey,
			&credential.SignCount,
			&credential.UserHandle,
			&credential.Transports,
			&credential.AttestationType,
			&credential.CreatedAt,
			&credential.LastUsedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan passkey credential: %w", err)
		}
		credentials = append(credentials, credential)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating passkey credentials: %w", err)
	}
	return credentials, nil
}

// UpdateSignCount persists the post-assertion counter and stamps
// last_used_at. The guard clause keeps the counter monotonic even if
// two assertions race.
func (r *passkeyRepoImpl) UpdateSignCount(ctx context.Context, credentialID []byte, signCount uint32) error {
	query := `
		UPDATE passkey_credentials
		SET sign_count = $1, last_used_at = NOW()
		WHERE credential_id = $2 AND sign_count <= $1
	`
	tag, err := r.db.Pool.Exec(ctx, query, signCount, credentialID)
	if err != nil {
		return fmt.Errorf("failed to update sign count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *passkeyRepoImpl) Delete(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM passkey_credentials WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete passkey credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *passkeyRepoImpl) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM passkey_credentials WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user's passkey credentials: %w", err)
	}
	return nil
}
