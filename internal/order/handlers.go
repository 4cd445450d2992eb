package order

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-apparel/internal/common"
	"github.com/noah-isme/toko-apparel/internal/upstream"
)

// Handler exposes the customer order endpoints.
type Handler struct {
	Svc *Service
}

// Create handles POST /api/v1/orders.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	var in PlaceInput
	if err := common.DecodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	in.UserID = ""
	view, err := h.Svc.Place(r.Context(), userID, in, false)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, view)
}

// List handles GET /api/v1/orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 20, 100)
	views, meta, err := h.Svc.ListForUser(r.Context(), userID, page, perPage)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Page(w, views, meta)
}

// Get handles GET /api/v1/orders/{orderId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	view, err := h.Svc.GetForUser(r.Context(), userID, chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

// Cancel handles POST /api/v1/orders/{orderId}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	view, err := h.Svc.Cancel(r.Context(), userID, chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

func writeError(w http.ResponseWriter, err error) {
	common.WriteError(w, upstream.ToAppError(err))
}
