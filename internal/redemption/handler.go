package redemption

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ejmockler/frontier-meals/internal/api"
	"github.com/ejmockler/frontier-meals/internal/kiosk"
)

// Handler exposes the kiosk-facing redemption endpoint.
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

// RedeemRequest carries exactly one credential: the QR payload's token
// JTI or the manually keyed short code.
type RedeemRequest struct {
	CustomerID  string `json:"customer_id" validate:"required,uuid4"`
	ServiceDate string `json:"service_date" validate:"required,datetime=2006-01-02"`
	TokenJTI    string `json:"token_jti" validate:"required_without=ShortCode,omitempty,uuid4"`
	ShortCode   string `json:"short_code" validate:"required_without=TokenJTI,omitempty,len=8,alphanum"`
}

func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	session := kiosk.GetSession(r.Context())
	if session == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var body RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(body); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}
	if body.TokenJTI != "" && body.ShortCode != "" {
		api.HandleError(w, api.NewBadRequestError("provide token_jti or short_code, not both"))
		return
	}

	customerID, err := uuid.Parse(body.CustomerID)
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid customer id"))
		return
	}
	serviceDate, err := time.ParseInLocation("2006-01-02", body.ServiceDate, time.UTC)
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid service date"))
		return
	}

	req := Request{
		CustomerID:  customerID,
		ServiceDate: serviceDate,
		ShortCode:   body.ShortCode,
		KioskID:     session.KioskID,
		Location:    session.Location,
	}
	if body.TokenJTI != "" {
		jti, err := uuid.Parse(body.TokenJTI)
		if err != nil {
			api.HandleError(w, api.NewBadRequestError("invalid token jti"))
			return
		}
		req.TokenJTI = &jti
	}

	result, err := h.svc.Redeem(r.Context(), req)
	if err != nil {
		var redErr *Error
		if errors.As(err, &redErr) {
			api.HandleError(w, api.NewTaggedError(redErr.HTTPStatus(), string(redErr.Code), redErr.Message()))
			return
		}
		slog.Error("redemption failed", "error", err, "customer_id", customerID, "kiosk_id", session.KioskID)
		api.HandleError(w, api.ErrTransientStore)
		return
	}

	api.JSON(w, http.StatusOK, result)
}
