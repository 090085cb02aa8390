package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/punchdeck/punchdeck/internal/models"
)

// MockMfaMethodRepository implements MfaMethodRepository for testing
type MockMfaMethodRepository struct {
	CreateFunc             func(ctx context.Context, method *models.MfaMethod) error
	CreateTxFunc           func(ctx context.Context, tx pgx.Tx, method *models.MfaMethod) error
	GetByIDFunc            func(ctx context.Context, id uuid.UUID) (*models.MfaMethod, error)
	GetVerifiedTOTPFunc    func(ctx context.Context, userID uuid.UUID) (*models.MfaMethod, error)
	UpdateFailureStateFunc func(ctx context.Context, id uuid.UUID, failedAttempts int, lockUntil *time.Time) error
	MarkUsedFunc           func(ctx context.Context, id uuid.UUID) error
	DeleteByUserFunc       func(ctx context.Context, userID uuid.UUID) error
	DeleteByUserTxFunc     func(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error
}

func (m *MockMfaMethodRepository) Create(ctx context.Context, method *models.MfaMethod) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, method)
	}
	if method.ID == uuid.Nil {
		method.ID = uuid.New()
	}
	return nil
}

func (m *MockMfaMethodRepository) CreateTx(ctx context.Context, tx pgx.Tx, method *models.MfaMethod) error {
	if m.CreateTxFunc != nil {
		return m.CreateTxFunc(ctx, tx, method)
	}
	if method.ID == uuid.Nil {
		method.ID = uuid.New()
	}
	return nil
}

func (m *MockMfaMethodRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.MfaMethod, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockMfaMethodRepository) GetVerifiedTOTP(ctx context.Context, userID uuid.UUID) (*models.MfaMethod, error) {
	if m.GetVerifiedTOTPFunc != nil {
		return m.GetVerifiedTOTPFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockMfaMethodRepository) UpdateFailureState(ctx context.Context, id uuid.UUID, failedAttempts int, lockUntil *time.Time) error {
	if m.UpdateFailureStateFunc != nil {
		return m.UpdateFailureStateFunc(ctx, id, failedAttempts, lockUntil)
	}
	return nil
}

func (m *MockMfaMethodRepository) MarkUsed(ctx context.Context, id uuid.UUID) error {
	if m.MarkUsedFunc != nil {
		return m.MarkUsedFunc(ctx, id)
	}
	return nil
}

func (m *MockMfaMethodRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	if m.DeleteByUserFunc != nil {
		return m.DeleteByUserFunc(ctx, userID)
	}
	return nil
}

func (m *MockMfaMethodRepository) DeleteByUserTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	if m.DeleteByUserTxFunc != nil {
		return m.DeleteByUserTxFunc(ctx, tx, userID)
	}
	return nil
}

// MockEmailChallengeRepository implements EmailChallengeRepository for testing
type MockEmailChallengeRepository struct {
	UpsertFunc                 func(ctx context.Context, challenge *models.EmailOtpChallenge) error
	GetLiveFunc                func(ctx context.Context, userID uuid.UUID, purpose, email string) (*models.EmailOtpChallenge, error)
	RecordFailureFunc          func(ctx context.Context, id uuid.UUID, failedAttempts int, lockUntil *time.Time) error
	MarkConsumedFunc           func(ctx context.Context, id uuid.UUID) error
	DeleteByUserAndPurposeFunc func(ctx context.Context, userID uuid.UUID, purpose string) error
}

func (m *MockEmailChallengeRepository) Upsert(ctx context.Context, challenge *models.EmailOtpChallenge) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, challenge)
	}
	if challenge.ID == uuid.Nil {
		challenge.ID = uuid.New()
	}
	return nil
}

func (m *MockEmailChallengeRepository) GetLive(ctx context.Context, userID uuid.UUID, purpose, email string) (*models.EmailOtpChallenge, error) {
	if m.GetLiveFunc != nil {
		return m.GetLiveFunc(ctx, userID, purpose, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockEmailChallengeRepository) RecordFailure(ctx context.Context, id uuid.UUID, failedAttempts int, lockUntil *time.Time) error {
	if m.RecordFailureFunc != nil {
		return m.RecordFailureFunc(ctx, id, failedAttempts, lockUntil)
	}
	return nil
}

func (m *MockEmailChallengeRepository) MarkConsumed(ctx context.Context, id uuid.UUID) error {
	if m.MarkConsumedFunc != nil {
		return m.MarkConsumedFunc(ctx, id)
	}
	return nil
}

func (m *MockEmailChallengeRepository) DeleteByUserAndPurpose(ctx context.Context, userID uuid.UUID, purpose string) error {
	if m.DeleteByUserAndPurposeFunc != nil {
		return m.DeleteByUserAndPurposeFunc(ctx, userID, purpose)
	}
	return nil
}

// MockRecoveryCodeRepository implements RecoveryCodeRepository for testing
type MockRecoveryCodeRepository struct {
	ReplaceForUserTxFunc func(ctx context.Context, tx pgx.Tx, userID uuid.UUID, hashes []string) error
	GetByUserFunc        func(ctx context.Context, userID uuid.UUID) ([]models.RecoveryCode, error)
	RedeemFunc           func(ctx context.Context, userID uuid.UUID, codeHash string) (bool, error)
	CountUnusedFunc      func(ctx context.Context, userID uuid.UUID) (int, error)
	DeleteByUserTxFunc   func(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error
	RestoreTxFunc        func(ctx context.Context, tx pgx.Tx, codes []models.RecoveryCode) error
}

func (m *MockRecoveryCodeRepository) ReplaceForUserTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, hashes []string) error {
	if m.ReplaceForUserTxFunc != nil {
		return m.ReplaceForUserTxFunc(ctx, tx, userID, hashes)
	}
	return nil
}

func (m *MockRecoveryCodeRepository) GetByUser(ctx context.Context, userID uuid.UUID) ([]models.RecoveryCode, error) {
	if m.GetByUserFunc != nil {
		return m.GetByUserFunc(ctx, userID)
	}
	return []models.RecoveryCode{}, nil
}

func (m *MockRecoveryCodeRepository) Redeem(ctx context.Context, userID uuid.UUID, codeHash string) (bool, error) {
	if m.RedeemFunc != nil {
		return m.RedeemFunc(ctx, userID, codeHash)
	}
	return false, nil
}

func (m *MockRecoveryCodeRepository) CountUnused(ctx context.Context, userID uuid.UUID) (int, error) {
	if m.CountUnusedFunc != nil {
		return m.CountUnusedFunc(ctx, userID)
	}
	return 0, nil
}

func (m *MockRecoveryCodeRepository) DeleteByUserTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	if m.DeleteByUserTxFunc != nil {
		return m.DeleteByUserTxFunc(ctx, tx, userID)
	}
	return nil
}

func (m *MockRecoveryCodeRepository) RestoreTx(ctx context.Context, tx pgx.Tx, codes []models.RecoveryCode) error {
	if m.RestoreTxFunc != nil {
		return m.RestoreTxFunc(ctx, tx, codes)
	}
	return nil
}

// MockPasskeyRepository implements PasskeyRepository for testing
type MockPasskeyRepository struct {
	CreateFunc            func(ctx context.Context, credential *models.PasskeyCredential) error
	GetByCredentialIDFunc func(ctx context.Context, credentialID []byte) (*models.PasskeyCredential, error)
	GetByUserFunc         func(ctx context.Context, userID uuid.UUID) ([]models.PasskeyCredential, error)
	UpdateSignCountFunc   func(ctx context.Context, credentialID []byte, signCount uint32) error
	DeleteFunc            func(ctx context.Context, userID, id uuid.UUID) error
	DeleteByUserFunc      func(ctx context.Context, userID uuid.UUID) error
}

func (m *MockPasskeyRepository) Create(ctx context.Context, credential *models.PasskeyCredential) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, credential)
	}
	if credential.ID == uuid.Nil {
		credential.ID = uuid.New()
	}
	return nil
}

func (m *MockPasskeyRepository) GetByCredentialID(ctx context.Context, credentialID []byte) (*models.PasskeyCredential, error) {
	if m.GetByCredentialIDFunc != nil {
		return m.GetByCredentialIDFunc(ctx, credentialID)
	}
	return nil, models.ErrNotFound
}

func (m *MockPasskeyRepository) GetByUser(ctx context.Context, userID uuid.UUID) ([]models.PasskeyCredential, error) {
	if m.GetByUserFunc != nil {
		return m.GetByUserFunc(ctx, userID)
	}
	return []models.PasskeyCredential{}, nil
}

func (m *MockPasskeyRepository) UpdateSignCount(ctx context.Context, credentialID []byte, signCount uint32) error {
	if m.UpdateSignCountFunc != nil {
		return m.UpdateSignCountFunc(ctx, credentialID, signCount)
	}
	return nil
}

func (m *MockPasskeyRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, userID, id)
	}
	return nil
}

func (m *MockPasskeyRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	if m.DeleteByUserFunc != nil {
		return m.DeleteByUserFunc(ctx, userID)
	}
	return nil
}

// MockSessionRepository implements SessionRepository for testing
type MockSessionRepository struct {
	UpsertActiveFunc      func(ctx context.Context, session *models.ActiveSession) error
	GetActiveFunc         func(ctx context.Context, userID uuid.UUID) (*models.ActiveSession, error)
	CreateLoginRecordFunc func(ctx context.Context, record *models.LoginSessionRecord) error
	GetLoginRecordFunc    func(ctx context.Context, userID uuid.UUID, sessionHash string) (*models.LoginSessionRecord, error)
	RevokeOthersFunc      func(ctx context.Context, userID uuid.UUID, keepHash string) (int64, error)
}

func (m *MockSessionRepository) UpsertActive(ctx context.Context, session *models.ActiveSession) error {
	if m.UpsertActiveFunc != nil {
		return m.UpsertActiveFunc(ctx, session)
	}
	return nil
}

func (m *MockSessionRepository) GetActive(ctx context.Context, userID uuid.UUID) (*models.ActiveSession, error) {
	if m.GetActiveFunc != nil {
		return m.GetActiveFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) CreateLoginRecord(ctx context.Context, record *models.LoginSessionRecord) error {
	if m.CreateLoginRecordFunc != nil {
		return m.CreateLoginRecordFunc(ctx, record)
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return nil
}

func (m *MockSessionRepository) GetLoginRecord(ctx context.Context, userID uuid.UUID, sessionHash string) (*models.LoginSessionRecord, error) {
	if m.GetLoginRecordFunc != nil {
		return m.GetLoginRecordFunc(ctx, userID, sessionHash)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) RevokeOthers(ctx context.Context, userID uuid.UUID, keepHash string) (int64, error) {
	if m.RevokeOthersFunc != nil {
		return m.RevokeOthersFunc(ctx, userID, keepHash)
	}
	return 0, nil
}

// MockResetLogRepository implements ResetLogRepository for testing
type MockResetLogRepository struct {
	CreateTxFunc         func(ctx context.Context, tx pgx.Tx, log *models.MfaResetLog) error
	GetLatestByUserFunc  func(ctx context.Context, userID uuid.UUID) (*models.MfaResetLog, error)
	MarkRolledBackTxFunc func(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

func (m *MockResetLogRepository) CreateTx(ctx context.Context, tx pgx.Tx, log *models.MfaResetLog) error {
	if m.CreateTxFunc != nil {
		return m.CreateTxFunc(ctx, tx, log)
	}
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	return nil
}

func (m *MockResetLogRepository) GetLatestByUser(ctx context.Context, userID uuid.UUID) (*models.MfaResetLog, error) {
	if m.GetLatestByUserFunc != nil {
		return m.GetLatestByUserFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockResetLogRepository) MarkRolledBackTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	if m.MarkRolledBackTxFunc != nil {
		return m.MarkRolledBackTxFunc(ctx, tx, id)
	}
	return nil
}

// MockMailer implements Mailer for testing
type MockMailer struct {
	SendOTPEmailFunc func(ctx context.Context, email, code string, expiresAt time.Time) error
	SentCodes        []string
}

func (m *MockMailer) SendOTPEmail(ctx context.Context, email, code string, expiresAt time.Time) error {
	if m.SendOTPEmailFunc != nil {
		return m.SendOTPEmailFunc(ctx, email, code, expiresAt)
	}
	m.SentCodes = append(m.SentCodes, code)
	return nil
}

// MockAccountDirectory implements AccountDirectory for testing
type MockAccountDirectory struct {
	StatusFunc  func(ctx context.Context, userID uuid.UUID) (AccountStatus, error)
	ProfileFunc func(ctx context.Context, userID uuid.UUID) (AccountProfile, error)
}

func (m *MockAccountDirectory) Status(ctx context.Context, userID uuid.UUID) (AccountStatus, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, userID)
	}
	return AccountStatus{Active: true, RoleAllowed: true}, nil
}

func (m *MockAccountDirectory) Profile(ctx context.Context, userID uuid.UUID) (AccountProfile, error) {
	if m.ProfileFunc != nil {
		return m.ProfileFunc(ctx, userID)
	}
	return AccountProfile{Email: "worker@example.com", DisplayName: "Test Worker"}, nil
}

// MockTxRunner implements TxRunner for testing. The callback receives a
// nil transaction; mocked repositories never touch it.
type MockTxRunner struct {
	WithTransactionFunc func(ctx context.Context, fn func(pgx.Tx) error) error
}

func (m *MockTxRunner) WithTransaction(ctx context.Context, fn func(pgx.Tx) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(nil)
}

// NewTestMfaMethod creates a verified TOTP method
func NewTestMfaMethod(userID uuid.UUID, secret string) *models.MfaMethod {
	now := time.Now()
	return &models.MfaMethod{
		ID:           uuid.New(),
		UserID:       userID,
		Type:         models.MfaMethodTOTP,
		SecretBase32: secret,
		VerifiedAt:   &now,
		CreatedAt:    now,
	}
}

// NewTestEmailChallenge creates a live email OTP challenge for codeHash
func NewTestEmailChallenge(userID uuid.UUID, purpose, email, codeHash string) *models.EmailOtpChallenge {
	now := time.Now()
	return &models.EmailOtpChallenge{
		ID:          uuid.New(),
		UserID:      userID,
		Purpose:     purpose,
		TargetEmail: email,
		CodeHash:    codeHash,
		ExpiresAt:   now.Add(5 * time.Minute),
		MaxAttempts: 5,
		LastSentAt:  now,
		CreatedAt:   now,
	}
}
