package user

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-apparel/internal/common"
	"github.com/noah-isme/toko-apparel/internal/upstream"
)

// Handler exposes account endpoints.
type Handler struct {
	Service *Service
}

type roleRequest struct {
	Role string `json:"role" validate:"required,oneof=customer admin"`
}

// Me handles GET /api/v1/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "user service not configured", nil)
		return
	}
	if _, ok := common.UserID(r.Context()); !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return
	}
	profile, err := h.Service.Me(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, profile)
}

// List handles GET /api/v1/admin/users.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "user service not configured", nil)
		return
	}
	q := r.URL.Query()
	page, limit := common.ParsePagination(r, 20, 100)
	items, meta, err := h.Service.List(r.Context(), Filter{Query: q.Get("q"), Role: q.Get("role")}, page, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Page(w, items, meta)
}

// Get handles GET /api/v1/admin/users/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "user service not configured", nil)
		return
	}
	profile, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, profile)
}

// UpdateRole handles PATCH /api/v1/admin/users/{id}/role.
func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "user service not configured", nil)
		return
	}
	var req roleRequest
	if err := common.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	actor, _ := common.UserID(r.Context())
	profile, err := h.Service.UpdateRole(r.Context(), actor, chi.URLParam(r, "id"), req.Role)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, profile)
}

// Delete handles DELETE /api/v1/admin/users/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "user service not configured", nil)
		return
	}
	actor, _ := common.UserID(r.Context())
	if err := h.Service.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	common.NoContent(w)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	common.WriteError(w, upstream.ToAppError(err))
}
