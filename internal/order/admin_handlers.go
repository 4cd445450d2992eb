package order

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-apparel/internal/common"
)

// AdminHandler provides administrative order management endpoints.
type AdminHandler struct {
	Svc *Service
}

type patchStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// List handles GET /api/v1/admin/orders.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	q := r.URL.Query()
	filter := AdminFilter{
		Status: NormalizeStatus(q.Get("status")),
		Query:  strings.TrimSpace(q.Get("q")),
	}
	if filter.Status != "" && !KnownStatus(filter.Status) {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unsupported status", map[string]any{"field": "status"})
		return
	}
	var err error
	if filter.From, err = parseBound(q.Get("from"), false); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "from must be a date or RFC3339 timestamp", map[string]any{"field": "from"})
		return
	}
	if filter.To, err = parseBound(q.Get("to"), true); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "to must be a date or RFC3339 timestamp", map[string]any{"field": "to"})
		return
	}
	page, perPage := common.ParsePagination(r, 20, 100)
	result, err := h.Svc.AdminList(r.Context(), filter, page, perPage)
	if err != nil {
		writeError(w, err)
		return
	}
	common.TotalCount(w, result.Pagination.TotalItems)
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       result.Items,
		"pagination": result.Pagination,
		"total":      result.Total,
	})
}

// Get handles GET /api/v1/admin/orders/{id}.
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	view, err := h.Svc.AdminGet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

// Create handles POST /api/v1/admin/orders.
func (h *AdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	var in PlaceInput
	if err := common.DecodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		writeError(w, common.ValidationError(map[string]string{"userId": "required"}))
		return
	}
	view, err := h.Svc.Place(r.Context(), userID, in, true)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, view)
}

// PatchStatus updates the order status with state-machine validation.
func (h *AdminHandler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	var req patchStatusRequest
	if err := common.DecodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	view, err := h.Svc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

// parseBound accepts RFC3339 or a plain date. A plain upper bound covers the whole day.
func parseBound(raw string, upper bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	if upper {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
