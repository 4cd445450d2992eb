package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/noah-isme/toko-apparel/internal/common"
)

// ErrNoToken means the request carried neither a bearer header nor the access cookie.
var ErrNoToken = errors.New("auth: token missing")

// Middleware resolves the caller from a bearer token or the session cookie.
type Middleware struct {
	Verifier     *Verifier
	AccessCookie string
	// Realm is reported in WWW-Authenticate on 401 responses.
	Realm string
}

type outcomeKey struct{}

// outcome caches the verification result so RequireAuth after Authenticate
// does not verify the token twice.
type outcome struct {
	claims Claims
	err    error
}

// Authenticate attaches the caller to the context when a valid token is
// present. Anonymous and invalid-token requests pass through unchanged; the
// storefront catalog stays readable without a session.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(m.resolve(r)))
	})
}

// RequireAuth rejects requests without a valid token with 401.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := m.resolve(r)
		res, _ := ctx.Value(outcomeKey{}).(outcome)
		if res.err != nil {
			m.challenge(w, res.err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole lets through callers holding any of roles. It answers 401 for
// anonymous callers, so it is safe to mount without RequireAuth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := common.UserID(r.Context()); !ok {
				common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
				return
			}
			if !slices.ContainsFunc(roles, func(role string) bool { return common.HasRole(r.Context(), role) }) {
				common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "insufficient role",
					map[string]any{"required": roles})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// resolve verifies the request token once and returns a context carrying the
// outcome and, on success, the caller identity.
func (m Middleware) resolve(r *http.Request) context.Context {
	ctx := r.Context()
	if _, done := ctx.Value(outcomeKey{}).(outcome); done {
		return ctx
	}
	var res outcome
	token := m.tokenFrom(r)
	switch {
	case m.Verifier == nil:
		res.err = errors.New("auth: verifier not configured")
	case token == "":
		res.err = ErrNoToken
	default:
		res.claims, res.err = m.Verifier.Verify(token)
	}
	ctx = context.WithValue(ctx, outcomeKey{}, res)
	if res.err != nil {
		return ctx
	}
	ctx = common.WithUserID(ctx, res.claims.Subject)
	ctx = common.WithRoles(ctx, res.claims.Roles)
	return common.WithAccessToken(ctx, token)
}

func (m Middleware) challenge(w http.ResponseWriter, err error) {
	realm := m.Realm
	if realm == "" {
		realm = "toko-apparel"
	}
	header := `Bearer realm="` + realm + `"`
	if !errors.Is(err, ErrNoToken) {
		header += `, error="invalid_token"`
	}
	w.Header().Set("WWW-Authenticate", header)

	var appErr *common.AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus == http.StatusUnauthorized {
		common.JSONError(w, http.StatusUnauthorized, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
}

func (m Middleware) tokenFrom(r *http.Request) string {
	if scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " "); ok &&
		strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	if m.AccessCookie == "" {
		return ""
	}
	if c, err := r.Cookie(m.AccessCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}
