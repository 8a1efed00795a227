package kiosk

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ejmockler/frontier-meals/internal/api"
)

// Handler exposes the administrative session endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

type IssueSessionRequest struct {
	KioskID  string `json:"kiosk_id" validate:"required,min=1,max=64"`
	Location string `json:"location" validate:"required,min=1,max=255"`
	Actor    string `json:"actor" validate:"required,min=1,max=255"`
}

type IssueSessionResponse struct {
	Session *Session `json:"session"`
	Token   string   `json:"token"`
}

type RevokeRequest struct {
	Actor  string `json:"actor" validate:"required,min=1,max=255"`
	Reason string `json:"reason" validate:"required,min=1,max=1000"`
}

func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	var req IssueSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	session, token, err := h.svc.Issue(r.Context(), req.KioskID, req.Location, req.Actor)
	if err != nil {
		slog.Error("issuing kiosk session", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, IssueSessionResponse{Session: session, Token: token})
}

func (h *Handler) ListActive(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.ListActive(r.Context())
	if err != nil {
		slog.Error("listing active sessions", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, sessions)
}

func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	jti, err := uuid.Parse(chi.URLParam(r, "jti"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid session jti"))
		return
	}

	var req RevokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	revoked, err := h.svc.Revoke(r.Context(), jti, req.Actor, req.Reason)
	if err != nil {
		slog.Error("revoking kiosk session", "error", err, "jti", jti)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, map[string]bool{"revoked": revoked})
}

func (h *Handler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	kioskID := chi.URLParam(r, "kioskID")
	if kioskID == "" {
		api.HandleError(w, api.NewBadRequestError("missing kiosk id"))
		return
	}

	var req RevokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	count, err := h.svc.RevokeAll(r.Context(), kioskID, req.Actor, req.Reason)
	if err != nil {
		slog.Error("revoking kiosk sessions", "error", err, "kiosk_id", kioskID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, map[string]int64{"revoked": count})
}
