// Package schedule exposes the back-office endpoints the meal planner
// calls: setting daily allowances and minting the day's redemption
// tokens. Both are idempotent so a retried scheduler run is harmless.
package schedule

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ejmockler/frontier-meals/internal/api"
	"github.com/ejmockler/frontier-meals/internal/audit"
	"github.com/ejmockler/frontier-meals/internal/customers"
	"github.com/ejmockler/frontier-meals/internal/entitlements"
	"github.com/ejmockler/frontier-meals/internal/tokens"
)

type Handler struct {
	entitlements entitlements.Repository
	customers    customers.Repository
	tokens       *tokens.Service
	auditRepo    *audit.Repository
	validate     *validator.Validate
}

func NewHandler(entitlementRepo entitlements.Repository, customerRepo customers.Repository, tokenSvc *tokens.Service, auditRepo *audit.Repository) *Handler {
	return &Handler{
		entitlements: entitlementRepo,
		customers:    customerRepo,
		tokens:       tokenSvc,
		auditRepo:    auditRepo,
		validate:     validator.New(),
	}
}

type SetEntitlementRequest struct {
	CustomerID   string `json:"customer_id" validate:"required,uuid4"`
	ServiceDate  string `json:"service_date" validate:"required,datetime=2006-01-02"`
	MealsAllowed int    `json:"meals_allowed" validate:"min=0,max=10"`
	Actor        string `json:"actor" validate:"required,min=1,max=255"`
}

// SetEntitlement creates or adjusts a day's allowance. Lowering the
// allowance below meals_redeemed is rejected by the storage constraint;
// that surfaces here as a conflict rather than silently clamping.
func (h *Handler) SetEntitlement(w http.ResponseWriter, r *http.Request) {
	var req SetEntitlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid customer id"))
		return
	}
	serviceDate, err := time.ParseInLocation("2006-01-02", req.ServiceDate, time.UTC)
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid service date"))
		return
	}

	customer, err := h.customers.GetByID(r.Context(), customerID)
	if err != nil {
		slog.Error("looking up customer", "error", err, "customer_id", customerID)
		api.HandleError(w, api.ErrTransientStore)
		return
	}
	if customer == nil {
		api.HandleError(w, api.NewTaggedError(http.StatusNotFound, "CUSTOMER_NOT_FOUND", "customer not found"))
		return
	}

	ent, err := h.entitlements.Upsert(r.Context(), customerID, serviceDate, req.MealsAllowed)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23514" {
			api.HandleError(w, api.NewTaggedError(http.StatusConflict, "ALLOWANCE_BELOW_REDEEMED",
				"allowance cannot drop below meals already redeemed"))
			return
		}
		slog.Error("setting entitlement", "error", err, "customer_id", customerID)
		api.HandleError(w, api.ErrTransientStore)
		return
	}

	details, _ := json.Marshal(map[string]any{
		"service_date":  req.ServiceDate,
		"meals_allowed": req.MealsAllowed,
	})
	if err := h.auditRepo.Insert(r.Context(), &audit.Entry{
		Actor:      req.Actor,
		EventType:  audit.EventEntitlementSet,
		CustomerID: &customerID,
		Details:    details,
	}); err != nil {
		slog.Error("recording entitlement change", "error", err)
	}

	api.JSON(w, http.StatusOK, ent)
}

type IssueTokensRequest struct {
	ServiceDate string `json:"service_date" validate:"required,datetime=2006-01-02"`
	CustomerID  string `json:"customer_id" validate:"omitempty,uuid4"`
	Actor       string `json:"actor" validate:"required,min=1,max=255"`
}

type IssueTokensResponse struct {
	ServiceDate string        `json:"service_date"`
	Minted      int           `json:"minted"`
	Token       *tokens.Token `json:"token,omitempty"`
}

// IssueTokens mints redemption tokens for a service date: the full
// entitled roster by default, or a single customer when customer_id is
// given (late signups, replacements after a lost code).
func (h *Handler) IssueTokens(w http.ResponseWriter, r *http.Request) {
	var req IssueTokensRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	serviceDate, err := time.ParseInLocation("2006-01-02", req.ServiceDate, time.UTC)
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid service date"))
		return
	}

	resp := IssueTokensResponse{ServiceDate: req.ServiceDate}

	if req.CustomerID != "" {
		customerID, err := uuid.Parse(req.CustomerID)
		if err != nil {
			api.HandleError(w, api.NewBadRequestError("invalid customer id"))
			return
		}
		token, created, err := h.tokens.Issue(r.Context(), customerID, serviceDate)
		if err != nil {
			slog.Error("issuing token", "error", err, "customer_id", customerID)
			api.HandleError(w, api.ErrTransientStore)
			return
		}
		resp.Token = token
		if created {
			resp.Minted = 1
		}
	} else {
		minted, err := h.tokens.IssueDaily(r.Context(), serviceDate)
		if err != nil {
			slog.Error("issuing daily tokens", "error", err, "service_date", req.ServiceDate)
			api.HandleError(w, api.ErrTransientStore)
			return
		}
		resp.Minted = minted
	}

	details, _ := json.Marshal(map[string]any{
		"service_date": req.ServiceDate,
		"minted":       resp.Minted,
	})
	if err := h.auditRepo.Insert(r.Context(), &audit.Entry{
		Actor:     req.Actor,
		EventType: audit.EventTokensIssued,
		Details:   details,
	}); err != nil {
		slog.Error("recording token issuance", "error", err)
	}

	api.JSON(w, http.StatusOK, resp)
}
