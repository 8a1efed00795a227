package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ejmockler/frontier-meals/internal/customers"
	"github.com/ejmockler/frontier-meals/internal/metrics"
)

// shortCodeRetries bounds regeneration attempts on a display-code collision.
const shortCodeRetries = 5

// Service mints and looks up redemption tokens.
type Service struct {
	repo      Repository
	customers customers.Repository
	loc       *time.Location
}

func NewService(repo Repository, customerRepo customers.Repository, loc *time.Location) *Service {
	return &Service{repo: repo, customers: customerRepo, loc: loc}
}

// EndOfDay returns the expiry for a token issued for the given service
// date: midnight at the start of the next day in the operating timezone.
func EndOfDay(serviceDate time.Time, loc *time.Location) time.Time {
	y, m, d := serviceDate.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

// Issue mints the day's token for a subscriber. Issuance is idempotent:
// a second call for the same (customer, date) returns the existing token
// with created=false. Expiry is fixed at end of the service day
// regardless of when issuance happens.
func (s *Service) Issue(ctx context.Context, customerID uuid.UUID, serviceDate time.Time) (*Token, bool, error) {
	for attempt := 0; attempt < shortCodeRetries; attempt++ {
		code, err := generateShortCode()
		if err != nil {
			return nil, false, err
		}

		token := &Token{
			JTI:         uuid.New(),
			CustomerID:  customerID,
			ServiceDate: serviceDate,
			ShortCode:   code,
			IssuedAt:    time.Now(),
			ExpiresAt:   EndOfDay(serviceDate, s.loc),
		}

		err = s.repo.Insert(ctx, token)
		switch {
		case err == nil:
			metrics.TokensIssuedTotal.Inc()
			return token, true, nil
		case errors.Is(err, ErrDuplicatePair):
			existing, err := s.repo.GetByPair(ctx, customerID, serviceDate)
			if err != nil {
				return nil, false, err
			}
			if existing == nil {
				// Raced with an erasure; retry the insert.
				continue
			}
			return existing, false, nil
		case errors.Is(err, ErrDuplicateShortCode):
			continue
		default:
			return nil, false, err
		}
	}
	return nil, false, fmt.Errorf("issuing token: exhausted %d short code attempts", shortCodeRetries)
}

// IssueDaily mints tokens for every subscriber holding a positive
// allowance on the service date. Idempotent: re-running skips customers
// whose token already exists. Returns the number newly minted.
func (s *Service) IssueDaily(ctx context.Context, serviceDate time.Time) (int, error) {
	ids, err := s.customers.ListEntitledIDs(ctx, serviceDate)
	if err != nil {
		return 0, err
	}

	minted := 0
	for _, id := range ids {
		_, created, err := s.Issue(ctx, id, serviceDate)
		if err != nil {
			return minted, fmt.Errorf("issuing token for customer %s: %w", id, err)
		}
		if created {
			minted++
		}
	}

	slog.Info("daily tokens issued", "service_date", serviceDate.Format("2006-01-02"),
		"entitled", len(ids), "minted", minted)
	return minted, nil
}
