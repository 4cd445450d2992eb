package audit

import (
	"net/http"
	"strings"
	"time"

	"github.com/noah-isme/toko-apparel/internal/common"
)

// Handler serves the audit trail to admins.
type Handler struct {
	Store Store
}

// List handles GET /api/v1/admin/audit-logs.
// Query: page, limit, actor, resource, resource_id, since, until (RFC3339 or YYYY-MM-DD).
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := common.ParsePagination(r, 50, 200)
	f := Filter{
		ActorUserID:  strings.TrimSpace(q.Get("actor")),
		ResourceType: strings.TrimSpace(q.Get("resource")),
		ResourceID:   strings.TrimSpace(q.Get("resource_id")),
		Limit:        perPage,
		Offset:       (page - 1) * perPage,
	}
	var err error
	if f.Since, err = parseBound(q.Get("since")); err != nil {
		common.WriteError(w, common.BadRequest("since must be RFC3339 or YYYY-MM-DD"))
		return
	}
	if f.Until, err = parseBound(q.Get("until")); err != nil {
		common.WriteError(w, common.BadRequest("until must be RFC3339 or YYYY-MM-DD"))
		return
	}

	rows, total, err := h.Store.List(r.Context(), f)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "unable to fetch audit logs", nil)
		return
	}
	common.Page(w, rows, common.Pagination{Page: page, PerPage: perPage, TotalItems: total})
}

func parseBound(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}
