package analytics

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/noah-isme/toko-apparel/internal/common"
	"github.com/noah-isme/toko-apparel/internal/upstream"
)

// Handler exposes analytics read endpoints.
type Handler struct {
	Svc *Service
}

// resolveRange reads from/to (RFC3339 or YYYY-MM-DD, date-only "to" is
// inclusive) or falls back to the last "days" days. Ranges longer than the
// service maximum are rejected.
func (h *Handler) resolveRange(q url.Values) (time.Time, time.Time, error) {
	from, to, err := h.parseRange(q)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if err := h.Svc.CheckRange(from, to); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

func (h *Handler) parseRange(q url.Values) (time.Time, time.Time, *common.AppError) {
	now := h.Svc.now()
	fromStr, toStr := q.Get("from"), q.Get("to")
	if fromStr != "" || toStr != "" {
		if fromStr == "" || toStr == "" {
			return time.Time{}, time.Time{}, common.BadRequest("from and to must be provided together")
		}
		from, _, err := parseBound(fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, common.BadRequest("invalid from date")
		}
		to, dateOnly, err := parseBound(toStr)
		if err != nil {
			return time.Time{}, time.Time{}, common.BadRequest("invalid to date")
		}
		if dateOnly {
			to = to.AddDate(0, 0, 1)
		}
		if !from.Before(to) {
			return time.Time{}, time.Time{}, common.BadRequest("from must be before to")
		}
		return from, to, nil
	}
	days := h.Svc.DefaultRange
	if days <= 0 {
		days = 30
	}
	if raw := q.Get("days"); raw != "" {
		parsed := common.AtoiDefault(raw, days)
		if parsed > h.Svc.maxRangeDays() {
			return time.Time{}, time.Time{}, common.BadRequest(fmt.Sprintf("days must not exceed %d", h.Svc.maxRangeDays()))
		}
		if parsed > 0 {
			days = parsed
		}
	}
	return now.AddDate(0, 0, -days), now, nil
}

func parseBound(raw string) (time.Time, bool, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	return t, false, err
}

// Overview handles GET /api/v1/admin/analytics/overview.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_NOT_CONFIGURED", "analytics service not configured", nil)
		return
	}
	from, to, err := h.resolveRange(r.URL.Query())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.Svc.Overview(r.Context(), from, to)
	if err != nil {
		common.WriteError(w, upstream.ToAppError(err))
		return
	}
	common.Data(w, http.StatusOK, out)
}

// Sales handles GET /api/v1/admin/analytics/sales.
func (h *Handler) Sales(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_NOT_CONFIGURED", "analytics service not configured", nil)
		return
	}
	from, to, err := h.resolveRange(r.URL.Query())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	rows, err := h.Svc.SalesRange(r.Context(), from, to)
	if err != nil {
		common.WriteError(w, upstream.ToAppError(err))
		return
	}
	common.Data(w, http.StatusOK, rows)
}

// TopProducts handles GET /api/v1/admin/analytics/top-products.
func (h *Handler) TopProducts(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_NOT_CONFIGURED", "analytics service not configured", nil)
		return
	}
	q := r.URL.Query()
	from, to, err := h.resolveRange(q)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	limit := common.AtoiDefault(q.Get("limit"), 10)
	offset := common.AtoiDefault(q.Get("offset"), 0)
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	rows, err := h.Svc.TopProducts(r.Context(), from, to, limit, offset)
	if err != nil {
		common.WriteError(w, upstream.ToAppError(err))
		return
	}
	common.Data(w, http.StatusOK, rows)
}
