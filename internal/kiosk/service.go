package kiosk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ejmockler/frontier-meals/internal/audit"
	"github.com/ejmockler/frontier-meals/internal/metrics"
	inats "github.com/ejmockler/frontier-meals/internal/nats"
)

// Service is the kiosk session authority: it mints, validates, and
// revokes the bearer credentials that gate redemption.
type Service struct {
	pool          *pgxpool.Pool
	repo          Repository
	auditRepo     *audit.Repository
	jwt           *JWTManager
	publisher     *inats.Publisher
	defaultExpiry time.Duration
}

func NewService(pool *pgxpool.Pool, repo Repository, auditRepo *audit.Repository, jwt *JWTManager, publisher *inats.Publisher, defaultExpiry time.Duration) *Service {
	return &Service{
		pool:          pool,
		repo:          repo,
		auditRepo:     auditRepo,
		jwt:           jwt,
		publisher:     publisher,
		defaultExpiry: defaultExpiry,
	}
}

// Issue provisions a session for a kiosk device and returns the signed
// bearer token. The session row and its audit entry commit together.
func (s *Service) Issue(ctx context.Context, kioskID, location, actor string) (*Session, string, error) {
	expiresAt := time.Now().Add(s.defaultExpiry)
	session := &Session{
		JTI:       uuid.New(),
		KioskID:   kioskID,
		Location:  location,
		IssuedAt:  time.Now(),
		ExpiresAt: &expiresAt,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("beginning session issue tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.repo.Insert(ctx, tx, session); err != nil {
		return nil, "", err
	}

	details, _ := json.Marshal(map[string]string{"location": location, "jti": session.JTI.String()})
	if err := s.auditRepo.InsertTx(ctx, tx, &audit.Entry{
		Actor:     actor,
		EventType: audit.EventSessionIssued,
		KioskID:   kioskID,
		Details:   details,
	}); err != nil {
		return nil, "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", fmt.Errorf("committing session issue: %w", err)
	}

	signed, err := s.jwt.Mint(session.JTI, kioskID, session.ExpiresAt)
	if err != nil {
		return nil, "", err
	}

	slog.Info("kiosk session issued", "kiosk_id", kioskID, "jti", session.JTI, "actor", actor)
	return session, signed, nil
}

// Validate authorizes one use of a session. It takes the row lock, checks
// revocation before expiry, and only on success updates the usage
// counters, so a validation racing an administrative revocation resolves
// to whichever transaction commits first with no partial state.
func (s *Service) Validate(ctx context.Context, jti uuid.UUID) (*Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning session validation tx: %w", err)
	}
	defer tx.Rollback(ctx)

	session, err := s.repo.GetForUpdate(ctx, tx, jti)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, s.reject(ctx, jti, "", ReasonNotFound)
	}
	if session.Revoked() {
		return nil, s.reject(ctx, jti, session.KioskID, ReasonRevoked)
	}
	if session.Expired(time.Now()) {
		return nil, s.reject(ctx, jti, session.KioskID, ReasonExpired)
	}

	if err := s.repo.RecordUse(ctx, tx, jti); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing session validation: %w", err)
	}

	metrics.SessionValidationsTotal.WithLabelValues("ok").Inc()
	return session, nil
}

// reject records the precise failure for forensics and returns the
// terminal validation error. The enclosing transaction rolls back, so a
// failed validation never touches usage counters. Without a NATS
// publisher the audit row is written synchronously instead, so the
// precise reason reaches the trail in either configuration.
func (s *Service) reject(ctx context.Context, jti uuid.UUID, kioskID string, reason InvalidReason) error {
	metrics.SessionValidationsTotal.WithLabelValues(string(reason)).Inc()

	if s.publisher != nil {
		err := s.publisher.PublishForensicEvent(ctx, inats.ForensicEvent{
			EventType: inats.EventSessionRejected,
			Severity:  "warn",
			Actor:     kioskID,
			KioskID:   kioskID,
			Details:   fmt.Sprintf("session %s rejected: %s", jti, reason),
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			slog.Warn("publishing session rejection event", "error", err)
		}
	} else {
		details, _ := json.Marshal(map[string]string{"jti": jti.String(), "reason": string(reason)})
		if err := s.auditRepo.Insert(ctx, &audit.Entry{
			Actor:     kioskID,
			EventType: audit.EventSessionRejected,
			Severity:  "warn",
			KioskID:   kioskID,
			Details:   details,
		}); err != nil {
			slog.Error("recording session rejection", "error", err, "jti", jti)
		}
	}

	return &ValidationError{Reason: reason}
}

// Revoke kills a session. Idempotent: revoking an already-revoked or
// unknown session returns false without error so retried administrative
// actions are safe.
func (s *Service) Revoke(ctx context.Context, jti uuid.UUID, actor, reason string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning session revoke tx: %w", err)
	}
	defer tx.Rollback(ctx)

	revoked, err := s.repo.Revoke(ctx, tx, jti, actor, reason)
	if err != nil {
		return false, err
	}
	if !revoked {
		return false, nil
	}

	details, _ := json.Marshal(map[string]string{"jti": jti.String(), "reason": reason})
	if err := s.auditRepo.InsertTx(ctx, tx, &audit.Entry{
		Actor:     actor,
		EventType: audit.EventSessionRevoked,
		Details:   details,
	}); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing session revoke: %w", err)
	}

	slog.Info("kiosk session revoked", "jti", jti, "actor", actor, "reason", reason)
	return true, nil
}

// RevokeAll kills every live session for a kiosk device, e.g. when the
// device is decommissioned or suspected compromised.
func (s *Service) RevokeAll(ctx context.Context, kioskID, actor, reason string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning bulk revoke tx: %w", err)
	}
	defer tx.Rollback(ctx)

	count, err := s.repo.RevokeAllForKiosk(ctx, tx, kioskID, actor, reason)
	if err != nil {
		return 0, err
	}

	details, _ := json.Marshal(map[string]any{"reason": reason, "revoked": count})
	if err := s.auditRepo.InsertTx(ctx, tx, &audit.Entry{
		Actor:     actor,
		EventType: audit.EventSessionRevoked,
		KioskID:   kioskID,
		Details:   details,
	}); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing bulk revoke: %w", err)
	}

	slog.Info("kiosk sessions revoked", "kiosk_id", kioskID, "count", count, "actor", actor)
	return count, nil
}

// ListActive returns sessions that are neither revoked nor expired.
func (s *Service) ListActive(ctx context.Context) ([]Session, error) {
	return s.repo.ListActive(ctx)
}
