package audit

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-apparel/internal/common"
	"github.com/noah-isme/toko-apparel/internal/obs"
)

// HTTPRecorder audits back-office requests after they are handled.
type HTTPRecorder struct {
	Service *Service
	OnError func(error)
}

// Route overrides what is derived from the matched route.
type Route struct {
	Action       string
	ResourceType string
	// IDParam names the chi URL parameter holding the resource id.
	IDParam  string
	Metadata func(r *http.Request, status int) map[string]any
}

// Mutations audits every non-read request under the router it is mounted
// on, taking the resource id from the "id" parameter when present.
func (h HTTPRecorder) Mutations(next http.Handler) http.Handler {
	audited := h.Middleware(Route{IDParam: "id"})(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
		default:
			audited.ServeHTTP(w, r)
		}
	})
}

// Middleware audits every request passing through it using rt.
func (h HTTPRecorder) Middleware(rt Route) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h.Service == nil || !h.Service.Enabled {
				next.ServeHTTP(w, r)
				return
			}
			rec := obs.NewStatusRecorder(w)
			next.ServeHTTP(rec, r)

			ev := Event{
				Actor:        actorOf(r),
				Action:       rt.Action,
				ResourceType: rt.ResourceType,
				Status:       rec.Status(),
			}
			if rt.IDParam != "" {
				ev.ResourceID = chi.URLParam(r, rt.IDParam)
			}
			if rt.Metadata != nil {
				ev.Metadata = rt.Metadata(r, rec.Status())
			}
			if err := h.Service.Record(r.Context(), r, ev); err != nil && h.OnError != nil {
				h.OnError(err)
			}
		})
	}
}

func actorOf(r *http.Request) Actor {
	if id, ok := common.UserID(r.Context()); ok && id != "" {
		return Actor{Kind: ActorKindUser, UserID: id}
	}
	return Actor{Kind: ActorKindAnonymous}
}
