package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/punchdeck/punchdeck/internal/models"
	"github.com/punchdeck/punchdeck/internal/repositories"
	pkglogger "github.com/punchdeck/punchdeck/pkg/logger"
)

// SessionGuard enforces single-session-per-user. Each login overwrites
// the authoritative session hash, so the newest login wins and every
// older session fails validation with an eviction notice.
//
// A deployment whose session tables have not been migrated yet degrades
// to pass-through: the guard logs the condition once and treats every
// session as valid rather than locking the whole tenant out.
type SessionGuard struct {
	sessionRepo repositories.SessionRepository
	audit       *pkglogger.AuditLogger
	logger      *slog.Logger

	degradedOnce sync.Once
}

// NewSessionGuard creates a new session guard
func NewSessionGuard(sessionRepo repositories.SessionRepository, audit *pkglogger.AuditLogger, logger *slog.Logger) *SessionGuard {
	return &SessionGuard{
		sessionRepo: sessionRepo,
		audit:       audit,
		logger:      logger,
	}
}

// HashSessionSecret returns the hex sha256 of the session secret. Only
// this digest is ever stored or compared.
func HashSessionSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func (g *SessionGuard) schemaMissing(err error) bool {
	if !errors.Is(err, models.ErrSchemaMissing) {
		return false
	}
	g.degradedOnce.Do(func() {
		g.logger.Warn("session tables missing, session guard degraded to pass-through")
	})
	return true
}

// Establish records a fresh login as the user's authoritative session
// and appends it to the login history.
func (g *SessionGuard) Establish(ctx context.Context, userID uuid.UUID, sessionSecret, ip, userAgent string) error {
	hash := HashSessionSecret(sessionSecret)

	session := &models.ActiveSession{
		UserID:      userID,
		SessionHash: hash,
		LastLoginAt: time.Now(),
		LastLoginIP: ip,
		LastLoginUA: userAgent,
	}
	if err := g.sessionRepo.UpsertActive(ctx, session); err != nil {
		if g.schemaMissing(err) {
			return nil
		}
		g.logger.Error("failed to establish session", slog.Any("error", err))
		return models.ErrInternalServer
	}

	record := &models.LoginSessionRecord{UserID: userID, SessionHash: hash}
	if err := g.sessionRepo.CreateLoginRecord(ctx, record); err != nil && !g.schemaMissing(err) {
		// History is best-effort; the authoritative row is already in place.
		g.logger.Error("failed to record login history", slog.Any("error", err))
	}

	g.audit.LogSessionEvent("session_established", userID.String(), ip, userAgent)
	return nil
}

// Validate checks a request's session secret against the authoritative
// hash. A mismatch means a later login evicted this session; the
// verdict carries a reason built only from masked address and coarse
// device data.
func (g *SessionGuard) Validate(ctx context.Context, userID uuid.UUID, sessionSecret string) (models.SessionVerdict, error) {
	active, err := g.sessionRepo.GetActive(ctx, userID)
	if err != nil {
		if g.schemaMissing(err) || errors.Is(err, models.ErrNotFound) {
			return models.SessionVerdict{Valid: true}, nil
		}
		g.logger.Error("failed to validate session", slog.Any("error", err))
		return models.SessionVerdict{}, models.ErrInternalServer
	}

	hash := HashSessionSecret(sessionSecret)
	if subtle.ConstantTimeCompare([]byte(hash), []byte(active.SessionHash)) == 1 {
		// A hash match is not enough: the login record may have been
		// explicitly revoked, for example by a password change.
		record, err := g.sessionRepo.GetLoginRecord(ctx, userID, hash)
		if err != nil {
			if g.schemaMissing(err) || errors.Is(err, models.ErrNotFound) {
				return models.SessionVerdict{Valid: true}, nil
			}
			g.logger.Error("failed to load login record", slog.Any("error", err))
			return models.SessionVerdict{}, models.ErrInternalServer
		}
		if record.IsRevoked() {
			g.audit.LogSessionEvent("session_revoked", userID.String(), active.LastLoginIP, active.LastLoginUA)
			return models.SessionVerdict{
				Valid:  false,
				Reason: "signed out because this session was revoked",
			}, nil
		}
		return models.SessionVerdict{Valid: true}, nil
	}

	reason := fmt.Sprintf("signed out because a newer login from %s (%s) replaced this session",
		pkglogger.MaskIP(active.LastLoginIP),
		pkglogger.DeviceLabel(active.LastLoginUA))

	g.audit.LogSessionEvent("session_evicted", userID.String(), active.LastLoginIP, active.LastLoginUA)
	return models.SessionVerdict{Valid: false, Reason: reason}, nil
}

// RevokeOthers marks every login record except the caller's as revoked,
// returning how many were affected. Used after credential changes.
func (g *SessionGuard) RevokeOthers(ctx context.Context, userID uuid.UUID, sessionSecret string) (int64, error) {
	revoked, err := g.sessionRepo.RevokeOthers(ctx, userID, HashSessionSecret(sessionSecret))
	if err != nil {
		if g.schemaMissing(err) {
			return 0, nil
		}
		g.logger.Error("failed to revoke sessions", slog.Any("error", err))
		return 0, models.ErrInternalServer
	}

	if revoked > 0 {
		g.logger.Info("revoked other sessions",
			slog.String("user_id", userID.String()),
			slog.Int64("revoked", revoked))
	}
	return revoked, nil
}
