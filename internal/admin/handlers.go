package admin

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-apparel/internal/common"
	"github.com/noah-isme/toko-apparel/internal/upstream"
)

const maxImageBytes = 5 << 20

// Handler exposes the back-office catalog endpoints.
type Handler struct {
	Svc *Service
}

// ListProducts handles GET /api/v1/admin/products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := common.ParsePagination(r, 20, 100)
	items, meta, err := h.Svc.ListProducts(r.Context(), ProductFilter{
		Query:      q.Get("q"),
		CategoryID: strings.TrimSpace(q.Get("category")),
	}, page, perPage)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Page(w, items, meta)
}

// GetProduct handles GET /api/v1/admin/products/{id}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	view, err := h.Svc.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

// CreateProduct handles POST /api/v1/admin/products.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var form ProductForm
	if err := common.DecodeJSON(r, &form); err != nil {
		writeError(w, err)
		return
	}
	view, err := h.Svc.CreateProduct(r.Context(), form)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, view)
}

// UpdateProduct handles PUT /api/v1/admin/products/{id}.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var form ProductForm
	if err := common.DecodeJSON(r, &form); err != nil {
		writeError(w, err)
		return
	}
	view, err := h.Svc.UpdateProduct(r.Context(), chi.URLParam(r, "id"), form)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

// DeleteProduct handles DELETE /api/v1/admin/products/{id}.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	common.NoContent(w)
}

// UploadImage handles POST /api/v1/admin/products/{id}/images with a
// multipart "image" field.
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+1<<20)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		writeError(w, common.BadRequest("multipart form with an image field is required"))
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, common.ValidationError(map[string]string{"image": "required"}))
		return
	}
	defer file.Close()
	if header.Size > maxImageBytes {
		writeError(w, common.ValidationError(map[string]string{"image": "too large"}))
		return
	}
	ct := header.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "image/") {
		writeError(w, common.ValidationError(map[string]string{"image": "must be an image"}))
		return
	}
	view, err := h.Svc.UploadImage(r.Context(), chi.URLParam(r, "id"), upstream.Upload{
		Field:       "image",
		Filename:    header.Filename,
		ContentType: ct,
		Body:        file,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

// ListCategories handles GET /api/v1/admin/categories.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Svc.ListCategories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, rows)
}

// CreateCategory handles POST /api/v1/admin/categories.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var form CategoryForm
	if err := common.DecodeJSON(r, &form); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.Svc.CreateCategory(r.Context(), form)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, c)
}

// UpdateCategory handles PUT /api/v1/admin/categories/{id}.
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var form CategoryForm
	if err := common.DecodeJSON(r, &form); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.Svc.UpdateCategory(r.Context(), chi.URLParam(r, "id"), form)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, c)
}

// DeleteCategory handles DELETE /api/v1/admin/categories/{id}.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	common.NoContent(w)
}

// ListDiscounts handles GET /api/v1/admin/discounts?productId&categoryId.
func (h *Handler) ListDiscounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := h.Svc.ListDiscounts(r.Context(), upstream.DiscountFilter{
		ProductID:  strings.TrimSpace(q.Get("productId")),
		CategoryID: strings.TrimSpace(q.Get("categoryId")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, rows)
}

// CreateDiscount handles POST /api/v1/admin/discounts.
func (h *Handler) CreateDiscount(w http.ResponseWriter, r *http.Request) {
	var form DiscountForm
	if err := common.DecodeJSON(r, &form); err != nil {
		writeError(w, err)
		return
	}
	d, err := h.Svc.CreateDiscount(r.Context(), form)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, d)
}

// UpdateDiscount handles PUT /api/v1/admin/discounts/{id}.
func (h *Handler) UpdateDiscount(w http.ResponseWriter, r *http.Request) {
	var form DiscountForm
	if err := common.DecodeJSON(r, &form); err != nil {
		writeError(w, err)
		return
	}
	d, err := h.Svc.UpdateDiscount(r.Context(), chi.URLParam(r, "id"), form)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, d)
}

// DeleteDiscount handles DELETE /api/v1/admin/discounts/{id}.
func (h *Handler) DeleteDiscount(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.DeleteDiscount(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	common.NoContent(w)
}

func writeError(w http.ResponseWriter, err error) {
	common.WriteError(w, upstream.ToAppError(err))
}
