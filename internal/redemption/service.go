package redemption

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ejmockler/frontier-meals/internal/audit"
	"github.com/ejmockler/frontier-meals/internal/customers"
	"github.com/ejmockler/frontier-meals/internal/entitlements"
	"github.com/ejmockler/frontier-meals/internal/metrics"
	inats "github.com/ejmockler/frontier-meals/internal/nats"
	"github.com/ejmockler/frontier-meals/internal/tokens"
)

// Service executes the redemption transaction. All state changes for a
// successful pickup — the redemption row, the token's used_at, the
// entitlement counter, and the audit entry — commit atomically; any
// precondition failure rolls the transaction back untouched.
type Service struct {
	pool         *pgxpool.Pool
	customers    customers.Repository
	entitlements entitlements.Repository
	tokens       tokens.Repository
	redemptions  Repository
	auditRepo    *audit.Repository
	publisher    *inats.Publisher
	lockTimeout  time.Duration
}

func NewService(
	pool *pgxpool.Pool,
	customerRepo customers.Repository,
	entitlementRepo entitlements.Repository,
	tokenRepo tokens.Repository,
	redemptionRepo Repository,
	auditRepo *audit.Repository,
	publisher *inats.Publisher,
	lockTimeout time.Duration,
) *Service {
	return &Service{
		pool:         pool,
		customers:    customerRepo,
		entitlements: entitlementRepo,
		tokens:       tokenRepo,
		redemptions:  redemptionRepo,
		auditRepo:    auditRepo,
		publisher:    publisher,
		lockTimeout:  lockTimeout,
	}
}

// Redeem attempts one meal pickup. Concurrent attempts for the same
// customer serialize on the entitlement row lock, then the token row
// lock, always in that order so two attempts can never deadlock against
// each other. Terminal failures come back as *Error; anything else is
// an infrastructure fault the caller may retry.
func (s *Service) Redeem(ctx context.Context, req Request) (*Result, error) {
	now := time.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning redemption tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if s.lockTimeout > 0 {
		// SET does not take bind parameters; the value is a config
		// duration, never client input.
		_, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds()))
		if err != nil {
			return nil, fmt.Errorf("setting lock timeout: %w", err)
		}
	}

	ent, err := s.entitlements.GetForUpdate(ctx, tx, req.CustomerID, req.ServiceDate)
	if err != nil {
		return nil, err
	}
	if ent == nil {
		return nil, s.deny(ctx, req, CodeNoEntitlement, nil)
	}
	if ent.Remaining() <= 0 {
		return nil, s.deny(ctx, req, CodeAlreadyRedeemed, nil)
	}

	token, err := s.resolveToken(ctx, tx, req)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, s.deny(ctx, req, CodeInvalidToken, nil)
	}
	if token.CustomerID != req.CustomerID || !token.ServiceDate.Equal(req.ServiceDate) {
		return nil, s.deny(ctx, req, CodeTokenMismatch, &token.JTI)
	}
	if token.Used() {
		return nil, s.deny(ctx, req, CodeAlreadyUsed, &token.JTI)
	}
	if token.Expired(now) {
		return nil, s.deny(ctx, req, CodeExpired, &token.JTI)
	}

	customer, err := s.customers.GetByIDTx(ctx, tx, req.CustomerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, s.deny(ctx, req, CodeCustomerNotFound, &token.JTI)
	}

	sub, err := s.customers.GetActiveSubscriptionTx(ctx, tx, req.CustomerID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, s.deny(ctx, req, CodeSubscriptionInactive, &token.JTI)
	}

	record := &Redemption{
		ID:            uuid.New(),
		CustomerID:    req.CustomerID,
		ServiceDate:   req.ServiceDate,
		TokenJTI:      token.JTI,
		KioskID:       req.KioskID,
		KioskLocation: req.Location,
		RedeemedAt:    now,
	}

	if err := s.redemptions.InsertTx(ctx, tx, record); err != nil {
		return nil, err
	}
	if err := s.tokens.MarkUsed(ctx, tx, token.JTI, now); err != nil {
		return nil, err
	}
	if err := s.entitlements.IncrementRedeemed(ctx, tx, req.CustomerID, req.ServiceDate); err != nil {
		return nil, err
	}

	details, _ := json.Marshal(map[string]any{
		"redemption_id": record.ID.String(),
		"token_jti":     token.JTI.String(),
		"service_date":  req.ServiceDate.Format("2006-01-02"),
		"remaining":     ent.Remaining() - 1,
	})
	if err := s.auditRepo.InsertTx(ctx, tx, &audit.Entry{
		Actor:      req.KioskID,
		EventType:  audit.EventRedemption,
		KioskID:    req.KioskID,
		CustomerID: &req.CustomerID,
		Details:    details,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing redemption: %w", err)
	}

	metrics.RedemptionsTotal.WithLabelValues("success").Inc()
	slog.Info("meal redeemed",
		"customer_id", req.CustomerID,
		"service_date", req.ServiceDate.Format("2006-01-02"),
		"kiosk_id", req.KioskID,
		"token_jti", token.JTI,
	)

	return &Result{
		RedemptionID:   record.ID,
		CustomerName:   customer.DisplayName,
		DietaryFlags:   customer.DietaryFlags,
		MealsRemaining: ent.Remaining() - 1,
		RedeemedAt:     now,
	}, nil
}

// resolveToken locks the token row by JTI. A short code is first
// translated to its JTI with a plain read; the locked re-read inside the
// transaction is the authoritative state either way.
func (s *Service) resolveToken(ctx context.Context, tx pgx.Tx, req Request) (*tokens.Token, error) {
	jti := req.TokenJTI
	if jti == nil {
		byCode, err := s.tokens.GetByShortCode(ctx, req.ShortCode)
		if err != nil {
			return nil, err
		}
		if byCode == nil {
			return nil, nil
		}
		jti = &byCode.JTI
	}
	return s.tokens.GetByJTIForUpdate(ctx, tx, *jti)
}

// deny records a terminal failure and returns it. The audit entry is
// written outside the redemption transaction, which is rolling back, so
// the denial survives in the trail.
func (s *Service) deny(ctx context.Context, req Request, code FailureCode, jti *uuid.UUID) error {
	metrics.RedemptionsTotal.WithLabelValues(strings.ToLower(string(code))).Inc()

	details := map[string]any{
		"failure_code": string(code),
		"service_date": req.ServiceDate.Format("2006-01-02"),
	}
	if jti != nil {
		details["token_jti"] = jti.String()
	}
	raw, _ := json.Marshal(details)

	if err := s.auditRepo.Insert(ctx, &audit.Entry{
		Actor:      req.KioskID,
		EventType:  audit.EventRedemptionDenied,
		Severity:   "warn",
		KioskID:    req.KioskID,
		CustomerID: &req.CustomerID,
		Details:    raw,
	}); err != nil {
		slog.Error("recording redemption denial", "error", err, "code", code)
	}

	if s.publisher != nil {
		err := s.publisher.PublishForensicEvent(ctx, inats.ForensicEvent{
			EventType:  inats.EventRedemptionDenied,
			Severity:   "warn",
			Actor:      req.KioskID,
			KioskID:    req.KioskID,
			CustomerID: &req.CustomerID,
			Details:    string(code),
			Timestamp:  time.Now().UTC(),
		})
		if err != nil {
			slog.Warn("publishing redemption denial event", "error", err)
		}
	}

	return &Error{Code: code}
}
