package security

import (
	"net/http"
	"strings"

	"github.com/noah-isme/toko-apparel/internal/common"
)

// BodyLimit caps request payload size. Multipart requests (image uploads) get
// their own, usually larger, cap.
type BodyLimit struct {
	Max          int64
	MaxMultipart int64
}

// Middleware rejects declared oversize bodies with 413 and wraps the rest in
// http.MaxBytesReader so handlers fail once the cap is crossed.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := b.Max
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") && b.MaxMultipart > 0 {
			limit = b.MaxMultipart
		}
		if limit <= 0 || r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > limit {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request entity too large", map[string]int64{"max_bytes": limit})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}
