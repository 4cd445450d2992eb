package catalog

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-apparel/internal/common"
	"github.com/noah-isme/toko-apparel/internal/upstream"
)

// Handler serves the public storefront catalog.
type Handler struct {
	service *Service
	maxAge  time.Duration
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
	// MaxAge sets "Cache-Control: public, max-age" on successful reads.
	// Zero sends no-store since prices change with discount windows.
	MaxAge time.Duration
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service, maxAge: cfg.MaxAge}
}

// serve runs fn and writes its result in the data envelope.
func (h *Handler) serve(w http.ResponseWriter, fn func() (any, error)) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	v, err := fn()
	if err != nil {
		common.WriteError(w, upstream.ToAppError(err))
		return
	}
	h.cacheHeaders(w)
	if page, ok := v.(ProductListResult); ok {
		common.Page(w, page.Items, common.Pagination{Page: page.Page, PerPage: page.Limit, TotalItems: page.Total})
		return
	}
	common.Data(w, http.StatusOK, v)
}

func (h *Handler) cacheHeaders(w http.ResponseWriter) {
	if h.maxAge <= 0 {
		w.Header().Set("Cache-Control", "no-store")
		return
	}
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(h.maxAge.Seconds())))
	w.Header().Add("Vary", "Authorization")
}

// Categories handles GET /api/v1/categories.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	h.serve(w, func() (any, error) { return h.service.Categories(r.Context()) })
}

// Products handles GET /api/v1/products with filters, sorting and pagination.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	h.serve(w, func() (any, error) {
		params, err := h.service.ParseListParams(r.URL.Query())
		if err != nil {
			return nil, err
		}
		return h.service.ListProducts(r.Context(), params)
	})
}

// BestSellers handles GET /api/v1/products/best-sellers?limit.
func (h *Handler) BestSellers(w http.ResponseWriter, r *http.Request) {
	limit := common.AtoiDefault(r.URL.Query().Get("limit"), 0)
	h.serve(w, func() (any, error) { return h.service.BestSellers(r.Context(), limit) })
}

// ProductDetail handles GET /api/v1/products/{id}.
func (h *Handler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	h.serve(w, func() (any, error) { return h.service.GetProductDetail(r.Context(), chi.URLParam(r, "id")) })
}

// Related handles GET /api/v1/products/{id}/related?limit.
func (h *Handler) Related(w http.ResponseWriter, r *http.Request) {
	limit := common.AtoiDefault(r.URL.Query().Get("limit"), 4)
	h.serve(w, func() (any, error) { return h.service.ListRelatedProducts(r.Context(), chi.URLParam(r, "id"), limit) })
}
