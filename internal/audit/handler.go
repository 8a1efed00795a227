package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ejmockler/frontier-meals/internal/api"
)

// Handler exposes the read side of the audit trail to administrators.
type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// List returns paginated audit entries. Filters combine with AND.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	params := DefaultListParams()
	q := r.URL.Query()

	params.EventType = q.Get("event_type")
	params.Actor = q.Get("actor")
	params.KioskID = q.Get("kiosk_id")

	if v := q.Get("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			api.HandleError(w, api.NewBadRequestError("invalid from timestamp"))
			return
		}
		params.From = &from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			api.HandleError(w, api.NewBadRequestError("invalid to timestamp"))
			return
		}
		params.To = &to
	}
	if v := q.Get("page"); v != "" {
		if page, err := strconv.Atoi(v); err == nil {
			params.Page = page
		}
	}
	if v := q.Get("page_size"); v != "" {
		if size, err := strconv.Atoi(v); err == nil {
			params.PageSize = size
		}
	}

	entries, total, err := h.repo.List(r.Context(), params)
	if err != nil {
		slog.Error("listing audit entries", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, entries, total, params.Page, params.PageSize)
}
