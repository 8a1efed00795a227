package api

import (
	"encoding/json"
	"errors"
	"net/http"
)

// AppError is the HTTP-boundary error shape. Reason carries the
// machine-readable tag a kiosk uses to pick its staff-facing message.
type AppError struct {
	Code    int    `json:"-"`
	Reason  string `json:"code,omitempty"`
	Message string `json:"error"`
}

func (e *AppError) Error() string {
	return e.Message
}

var (
	ErrBadRequest     = &AppError{Code: http.StatusBadRequest, Message: "bad request"}
	ErrUnauthorized   = &AppError{Code: http.StatusUnauthorized, Message: "unauthorized"}
	ErrForbidden      = &AppError{Code: http.StatusForbidden, Message: "forbidden"}
	ErrNotFound       = &AppError{Code: http.StatusNotFound, Message: "not found"}
	ErrConflict       = &AppError{Code: http.StatusConflict, Message: "conflict"}
	ErrInternalServer = &AppError{Code: http.StatusInternalServerError, Message: "internal server error"}
	ErrValidation     = &AppError{Code: http.StatusBadRequest, Message: "validation error"}

	// ErrTransientStore signals an infrastructure fault (lock timeout,
	// connectivity). It is the only class a caller may retry.
	ErrTransientStore = &AppError{Code: http.StatusServiceUnavailable, Reason: "TRANSIENT_STORE_ERROR", Message: "temporary storage error, retry with backoff"}
)

func NewBadRequestError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func NewValidationError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

// NewTaggedError builds an AppError carrying a machine-readable reason tag.
func NewTaggedError(status int, reason, msg string) *AppError {
	return &AppError{Code: status, Reason: reason, Message: msg}
}

func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(appErr.Code)
		// Encode the struct itself so the reason tag rides along.
		_ = json.NewEncoder(w).Encode(appErr)
		return
	}
	JSONErrorMessage(w, http.StatusInternalServerError, "internal server error")
}
