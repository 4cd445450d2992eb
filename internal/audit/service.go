package audit

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/noah-isme/toko-apparel/internal/common"
	"github.com/noah-isme/toko-apparel/internal/obs"
)

// ActorKind says who performed an audited action.
type ActorKind string

const (
	ActorKindUser      ActorKind = "user"
	ActorKindSystem    ActorKind = "system"
	ActorKindAnonymous ActorKind = "anonymous"
)

// Actor describes the entity performing the action.
type Actor struct {
	Kind   ActorKind
	UserID string
}

// Event is one handled back-office request to be audited. Empty Action and
// ResourceType are derived from the matched route.
type Event struct {
	Actor        Actor
	Action       string
	ResourceType string
	ResourceID   string
	Status       int
	Metadata     map[string]any
}

// Store persists and queries audit records.
type Store interface {
	Insert(ctx context.Context, e Entry) error
	List(ctx context.Context, f Filter) ([]Log, int, error)
}

// Service turns handled admin requests into audit entries.
type Service struct {
	Store   Store
	Enabled bool
	// SamplingRate in (0,1) drops a share of successful writes. Rejected
	// requests (status >= 400) are always kept.
	SamplingRate float64
}

// Record writes ev for req unless auditing is off or the event is sampled out.
func (s Service) Record(ctx context.Context, req *http.Request, ev Event) error {
	if !s.Enabled {
		return nil
	}
	if req == nil {
		return errors.New("audit: request is required")
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}
	if ev.Status == 0 {
		ev.Status = http.StatusOK
	}
	if ev.Status < http.StatusBadRequest && s.SamplingRate > 0 && s.SamplingRate < 1 && rand.Float64() >= s.SamplingRate {
		return nil
	}

	route := obs.RoutePatternFromContext(req.Context())
	if route == "" {
		route = req.URL.Path
	}
	resource := ev.ResourceType
	if strings.TrimSpace(resource) == "" {
		resource = resourceFromRoute(route)
	}
	action := ev.Action
	if strings.TrimSpace(action) == "" {
		action = resource + "." + verbFor(req.Method)
	}

	kind := ev.Actor.Kind
	if kind != ActorKindUser && kind != ActorKindSystem {
		kind = ActorKindAnonymous
	}

	return s.Store.Insert(ctx, Entry{
		ActorKind:    kind,
		ActorUserID:  optional(ev.Actor.UserID),
		Action:       strings.TrimSpace(action),
		ResourceType: strings.TrimSpace(resource),
		ResourceID:   optional(ev.ResourceID),
		Method:       req.Method,
		Path:         req.URL.Path,
		Route:        optional(route),
		Status:       ev.Status,
		IP:           optional(common.ClientIP(req)),
		UserAgent:    optional(req.UserAgent()),
		RequestID:    optional(requestIDOf(req)),
		Metadata:     metadataJSON(ev.Metadata, req.URL.RawQuery),
	})
}

func requestIDOf(req *http.Request) string {
	if id := middleware.GetReqID(req.Context()); id != "" {
		return id
	}
	return req.Header.Get("X-Request-ID")
}

// resourceFromRoute maps "/api/v1/admin/products/{id}/images" to
// "products.images". Route parameters and the API prefix are dropped.
func resourceFromRoute(route string) string {
	var kept []string
	for _, seg := range strings.Split(strings.Trim(route, "/ "), "/") {
		switch {
		case seg == "", seg == "api", seg == "v1", seg == "admin":
		case strings.HasPrefix(seg, "{"):
		default:
			kept = append(kept, seg)
		}
	}
	if len(kept) == 0 {
		return "unknown"
	}
	return strings.Join(kept, ".")
}

func verbFor(method string) string {
	switch strings.ToUpper(method) {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func metadataJSON(meta map[string]any, query string) []byte {
	if len(meta) == 0 && strings.TrimSpace(query) == "" {
		return nil
	}
	payload := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		payload[k] = v
	}
	if q := strings.TrimSpace(query); q != "" {
		payload["query"] = q
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}
