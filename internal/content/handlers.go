package content

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-apparel/internal/common"
	"github.com/noah-isme/toko-apparel/internal/upstream"
)

// Handler exposes page content endpoints.
type Handler struct {
	Svc *Service
}

// Page handles GET /api/v1/content/{page}.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	page := chi.URLParam(r, "page")
	sections, err := h.Svc.Page(r.Context(), page)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"page":     normalizePage(page),
		"sections": sections,
	}})
}

// List handles GET /api/v1/admin/content?page=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	sections, err := h.Svc.List(r.Context(), r.URL.Query().Get("page"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, sections)
}

// Create handles POST /api/v1/admin/content.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var f Form
	if err := common.DecodeJSON(r, &f); err != nil {
		writeError(w, err)
		return
	}
	sec, err := h.Svc.Create(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, sec)
}

// Update handles PUT /api/v1/admin/content/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var f Form
	if err := common.DecodeJSON(r, &f); err != nil {
		writeError(w, err)
		return
	}
	sec, err := h.Svc.Update(r.Context(), chi.URLParam(r, "id"), f)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, sec)
}

// Delete handles DELETE /api/v1/admin/content/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	common.NoContent(w)
}

func writeError(w http.ResponseWriter, err error) {
	common.WriteError(w, upstream.ToAppError(err))
}
