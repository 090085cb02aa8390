package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/punchdeck/punchdeck/internal/models"
	"github.com/punchdeck/punchdeck/internal/ratelimit"
	"github.com/punchdeck/punchdeck/internal/repositories"
	"github.com/punchdeck/punchdeck/internal/sessionstore"
)

// WebAuthnConfig holds relying-party and ceremony parameters. An empty
// Origins list switches origin checking to per-request mode: each
// ceremony is validated against the origin the caller asserts, which
// multi-tenant deployments with per-tenant domains rely on.
type WebAuthnConfig struct {
	RPID          string
	RPDisplayName string
	Origins       []string
	ChallengeTTL  time.Duration
	AssertLimit   int
	AssertWindow  time.Duration
}

// WebAuthnService runs passkey registration and login ceremonies. Open
// challenges live in the session store under a short TTL and are
// consumed before verification, so a challenge can never be replayed.
type WebAuthnService struct {
	passkeyRepo repositories.PasskeyRepository
	directory   AccountDirectory
	pending     sessionstore.Store
	limiter     ratelimit.Limiter
	logger      *slog.Logger
	config      WebAuthnConfig

	// web is non-nil only when Origins is fixed in configuration
	web *webauthn.WebAuthn
}

// NewWebAuthnService creates a new WebAuthn service
func NewWebAuthnService(
	passkeyRepo repositories.PasskeyRepository,
	directory AccountDirectory,
	pending sessionstore.Store,
	limiter ratelimit.Limiter,
	logger *slog.Logger,
	config WebAuthnConfig,
) (*WebAuthnService, error) {
	s := &WebAuthnService{
		passkeyRepo: passkeyRepo,
		directory:   directory,
		pending:     pending,
		limiter:     limiter,
		logger:      logger,
		config:      config,
	}
	if len(config.Origins) > 0 {
		web, err := webauthn.New(&webauthn.Config{
			RPID:          config.RPID,
			RPDisplayName: config.RPDisplayName,
			RPOrigins:     config.Origins,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure WebAuthn: %w", err)
		}
		s.web = web
	}
	return s, nil
}

// handler returns the relying-party handler for one ceremony. With a
// configured allowlist the shared handler is reused; otherwise one is
// built around the asserted origin.
func (s *WebAuthnService) handler(origin string) (*webauthn.WebAuthn, error) {
	if s.web != nil {
		return s.web, nil
	}
	if origin == "" {
		return nil, models.ErrInvalidOrigin
	}
	return webauthn.New(&webauthn.Config{
		RPID:          s.config.RPID,
		RPDisplayName: s.config.RPDisplayName,
		RPOrigins:     []string{origin},
	})
}

func regChallengeKey(userID uuid.UUID) string {
	return "webauthn:register:" + userID.String()
}

func assertChallengeKey(userID uuid.UUID) string {
	return "webauthn:assert:" + userID.String()
}

func anonAssertKey(ceremonyID string) string {
	return "webauthn:assert:anon:" + ceremonyID
}

// webAuthnUser adapts an account to the ceremony's user contract
type webAuthnUser struct {
	id          uuid.UUID
	name        string
	displayName string
	credentials []webauthn.Credential
}

func (u *webAuthnUser) WebAuthnID() []byte                         { return u.id[:] }
func (u *webAuthnUser) WebAuthnName() string                       { return u.name }
func (u *webAuthnUser) WebAuthnDisplayName() string                { return u.displayName }
func (u *webAuthnUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

func toCeremonyCredential(c models.PasskeyCredential) webauthn.Credential {
	transports := make([]protocol.AuthenticatorTransport, len(c.Transports))
	for i, t := range c.Transports {
		transports[i] = protocol.AuthenticatorTransport(t)
	}
	return webauthn.Credential{
		ID:              c.CredentialID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       transports,
		Authenticator: webauthn.Authenticator{
			SignCount: c.SignCount,
		},
	}
}

func (s *WebAuthnService) ceremonyUser(ctx context.Context, userID uuid.UUID) (*webAuthnUser, error) {
	profile, err := s.directory.Profile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account profile: %w", err)
	}

	stored, err := s.passkeyRepo.GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load passkey credentials: %w", err)
	}

	credentials := make([]webauthn.Credential, len(stored))
	for i, c := range stored {
		credentials[i] = toCeremonyCredential(c)
	}

	return &webAuthnUser{
		id:          userID,
		name:        profile.Email,
		displayName: profile.DisplayName,
		credentials: credentials,
	}, nil
}

// BeginRegistration opens a registration ceremony. Existing credentials
// are excluded so an authenticator cannot register itself twice.
func (s *WebAuthnService) BeginRegistration(ctx context.Context, userID uuid.UUID, origin string) (*protocol.CredentialCreation, error) {
	web, err := s.handler(origin)
	if err != nil {
		return nil, err
	}

	user, err := s.ceremonyUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to build registration ceremony", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	exclusions := make([]protocol.CredentialDescriptor, len(user.credentials))
	for i, c := range user.credentials {
		exclusions[i] = protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: c.ID,
			Transport:    c.Transport,
		}
	}

	options, session, err := web.BeginRegistration(user, webauthn.WithExclusions(exclusions))
	if err != nil {
		s.logger.Error("failed to begin registration", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := sessionstore.SetJSON(s.pending, regChallengeKey(userID), session, s.config.ChallengeTTL); err != nil {
		s.logger.Error("failed to store registration challenge", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("passkey registration started", slog.String("user_id", userID.String()))
	return options, nil
}

// FinishRegistration verifies the authenticator's attestation response
// and persists the new credential. The open challenge is consumed
// before verification regardless of outcome.
func (s *WebAuthnService) FinishRegistration(ctx context.Context, userID uuid.UUID, origin string, response io.Reader) (*models.PasskeyCredential, error) {
	var session webauthn.SessionData
	if !sessionstore.TakeJSON(s.pending, regChallengeKey(userID), &session) {
		return nil, models.ErrNotFound
	}

	web, err := s.handler(origin)
	if err != nil {
		return nil, err
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(response)
	if err != nil {
		s.logger.Warn("malformed registration response",
			slog.String("user_id", userID.String()), slog.Any("error", err))
		return nil, models.ErrVerificationFailed
	}

	user, err := s.ceremonyUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to build registration ceremony", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	ceremonyCred, err := web.CreateCredential(user, session, parsed)
	if err != nil {
		s.logger.Warn("passkey registration failed verification",
			slog.String("user_id", userID.String()), slog.Any("error", err))
		return nil, models.ErrVerificationFailed
	}

	transports := make([]string, len(ceremonyCred.Transport))
	for i, t := range ceremonyCred.Transport {
		transports[i] = string(t)
	}
	credential := &models.PasskeyCredential{
		UserID:          userID,
		CredentialID:    ceremonyCred.ID,
		PublicKey:       ceremonyCred.PublicKey,
		SignCount:       ceremonyCred.Authenticator.SignCount,
		UserHandle:      user.WebAuthnID(),
		Transports:      transports,
		AttestationType: ceremonyCred.AttestationType,
	}
	if err := s.passkeyRepo.Create(ctx, credential); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrAlreadyRegistered
		}
		s.logger.Error("failed to store passkey credential", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("passkey registered",
		slog.String("user_id", userID.String()),
		slog.String("credential_id", credential.ID.String()))
	return credential, nil
}

// BeginLogin opens an assertion ceremony against the user's registered
// credentials.
func (s *WebAuthnService) BeginLogin(ctx context.Context, userID uuid.UUID, origin string) (*protocol.CredentialAssertion, error) {
	web, err := s.handler(origin)
	if err != nil {
		return nil, err
	}

	user, err := s.ceremonyUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to build login ceremony", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if len(user.credentials) == 0 {
		return nil, models.ErrMethodNotFound
	}

	options, session, err := web.BeginLogin(user)
	if err != nil {
		s.logger.Error("failed to begin login", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := sessionstore.SetJSON(s.pending, assertChallengeKey(userID), session, s.config.ChallengeTTL); err != nil {
		s.logger.Error("failed to store login challenge", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return options, nil
}

// FinishLogin verifies the assertion response, persists the advanced
// sign counter and reports a typed outcome. Attempts are rate limited
// per user before any cryptographic work happens.
func (s *WebAuthnService) FinishLogin(ctx context.Context, userID uuid.UUID, origin string, response io.Reader) (models.VerifyResult, error) {
	if !s.limiter.Allow(ctx, assertChallengeKey(userID), s.config.AssertLimit, s.config.AssertWindow) {
		return models.VerifyResult{Status: models.VerifyRateLimited}, nil
	}

	var session webauthn.SessionData
	if !sessionstore.TakeJSON(s.pending, assertChallengeKey(userID), &session) {
		return models.VerifyResult{Status: models.VerifyExpired}, nil
	}

	// The account may have been suspended, locked or role-revoked
	// since the ceremony opened; re-check before doing any
	// cryptographic work.
	status, err := s.directory.Status(ctx, userID)
	if err != nil {
		s.logger.Error("failed to load account status", slog.Any("error", err))
		return models.VerifyResult{}, models.ErrInternalServer
	}
	if !status.Active || status.Locked || !status.RoleAllowed {
		s.logger.Warn("passkey login refused by account status",
			slog.String("user_id", userID.String()))
		return models.VerifyResult{Status: models.VerifyLocked}, nil
	}

	web, err := s.handler(origin)
	if err != nil {
		return models.VerifyResult{}, err
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(response)
	if err != nil {
		s.logger.Warn("malformed login response",
			slog.String("user_id", userID.String()), slog.Any("error", err))
		return models.VerifyResult{Status: models.VerifyInvalidCode}, nil
	}

	user, err := s.ceremonyUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to build login ceremony", slog.Any("error", err))
		return models.VerifyResult{}, models.ErrInternalServer
	}

	ceremonyCred, err := web.ValidateLogin(user, session, parsed)
	if err != nil {
		s.logger.Warn("passkey login failed verification",
			slog.String("user_id", userID.String()), slog.Any("error", err))
		return models.VerifyResult{Status: models.VerifyInvalidCode}, nil
	}
	if ceremonyCred.Authenticator.CloneWarning {
		s.logger.Warn("passkey sign counter regressed, possible cloned authenticator",
			slog.String("user_id", userID.String()))
		return models.VerifyResult{Status: models.VerifyInvalidCode}, nil
	}

	if err := s.passkeyRepo.UpdateSignCount(ctx, ceremonyCred.ID, ceremonyCred.Authenticator.SignCount); err != nil {
		s.logger.Error("failed to update sign count", slog.Any("error", err))
	}

	s.logger.Info("passkey login verified", slog.String("user_id", userID.String()))
	return models.VerifyResult{Status: models.VerifyOK}, nil
}

// BeginDiscoverableLogin opens an assertion ceremony with no account
// binding; the authenticator picks a resident credential. The returned
// ceremony id keys the pending challenge for the finish call.
func (s *WebAuthnService) BeginDiscoverableLogin(ctx context.Context, origin string) (*protocol.CredentialAssertion, string, error) {
	web, err := s.handler(origin)
	if err != nil {
		return nil, "", err
	}

	options, session, err := web.BeginDiscoverableLogin()
	if err != nil {
		s.logger.Error("failed to begin discoverable login", slog.Any("error", err))
		return nil, "", models.ErrInternalServer
	}

	ceremonyID := uuid.NewString()
	if err := sessionstore.SetJSON(s.pending, anonAssertKey(ceremonyID), session, s.config.ChallengeTTL); err != nil {
		s.logger.Error("failed to store login challenge", slog.Any("error", err))
		return nil, "", models.ErrInternalServer
	}
	return options, ceremonyID, nil
}

// FinishDiscoverableLogin verifies a usernameless assertion, resolving
// the account from the credential the authenticator presented. The
// account gate runs after resolution, since there is no user to check
// until then.
func (s *WebAuthnService) FinishDiscoverableLogin(ctx context.Context, ceremonyID, origin string, response io.Reader) (uuid.UUID, models.VerifyResult, error) {
	if !s.limiter.Allow(ctx, anonAssertKey(ceremonyID), s.config.AssertLimit, s.config.AssertWindow) {
		return uuid.Nil, models.VerifyResult{Status: models.VerifyRateLimited}, nil
	}

	var session webauthn.SessionData
	if !sessionstore.TakeJSON(s.pending, anonAssertKey(ceremonyID), &session) {
		return uuid.Nil, models.VerifyResult{Status: models.VerifyExpired}, nil
	}

	web, err := s.handler(origin)
	if err != nil {
		return uuid.Nil, models.VerifyResult{}, err
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(response)
	if err != nil {
		s.logger.Warn("malformed discoverable login response", slog.Any("error", err))
		return uuid.Nil, models.VerifyResult{Status: models.VerifyInvalidCode}, nil
	}

	var resolved uuid.UUID
	lookup := func(rawID, userHandle []byte) (webauthn.User, error) {
		stored, err := s.passkeyRepo.GetByCredentialID(ctx, rawID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, models.ErrInvalidCredential
			}
			return nil, err
		}
		resolved = stored.UserID
		user, err := s.ceremonyUser(ctx, stored.UserID)
		if err != nil {
			return nil, err
		}
		return user, nil
	}

	ceremonyCred, err := web.ValidateDiscoverableLogin(lookup, session, parsed)
	if err != nil {
		s.logger.Warn("discoverable login failed verification", slog.Any("error", err))
		return uuid.Nil, models.VerifyResult{Status: models.VerifyInvalidCode}, nil
	}
	if ceremonyCred.Authenticator.CloneWarning {
		s.logger.Warn("passkey sign counter regressed, possible cloned authenticator",
			slog.String("user_id", resolved.String()))
		return uuid.Nil, models.VerifyResult{Status: models.VerifyInvalidCode}, nil
	}

	status, err := s.directory.Status(ctx, resolved)
	if err != nil {
		s.logger.Error("failed to load account status", slog.Any("error", err))
		return uuid.Nil, models.VerifyResult{}, models.ErrInternalServer
	}
	if !status.Active || status.Locked || !status.RoleAllowed {
		s.logger.Warn("passkey login refused by account status",
			slog.String("user_id", resolved.String()))
		return resolved, models.VerifyResult{Status: models.VerifyLocked}, nil
	}

	if err := s.passkeyRepo.UpdateSignCount(ctx, ceremonyCred.ID, ceremonyCred.Authenticator.SignCount); err != nil {
		s.logger.Error("failed to update sign count", slog.Any("error", err))
	}

	s.logger.Info("passkey login verified", slog.String("user_id", resolved.String()))
	return resolved, models.VerifyResult{Status: models.VerifyOK}, nil
}

// Credentials lists the user's registered passkeys
func (s *WebAuthnService) Credentials(ctx context.Context, userID uuid.UUID) ([]models.PasskeyCredential, error) {
	credentials, err := s.passkeyRepo.GetByUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list passkey credentials", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return credentials, nil
}

// RemoveCredential deletes one of the user's passkeys
func (s *WebAuthnService) RemoveCredential(ctx context.Context, userID, credentialID uuid.UUID) error {
	if err := s.passkeyRepo.Delete(ctx, userID, credentialID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to delete passkey credential", slog.Any("error", err))
		return models.ErrInternalServer
	}
	s.logger.Info("passkey removed",
		slog.String("user_id", userID.String()),
		slog.String("credential_id", credentialID.String()))
	return nil
}
