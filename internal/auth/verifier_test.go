package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-apparel/internal/common"
)

const testSecret = "super-secret-key"

func newTestVerifier(t *testing.T, now time.Time) *Verifier {
	t.Helper()
	v, err := NewVerifier(Config{Secret: testSecret, Issuer: "toko-identity", Audience: "toko-apparel", ClockSkew: time.Second})
	require.NoError(t, err)
	v.WithNow(func() time.Time { return now })
	return v
}

func TestVerifyIssuedToken(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	v := newTestVerifier(t, now)

	token, err := v.Issue("user-1", []string{"Admin", "customer"}, time.Minute)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, []string{"admin", "customer"}, claims.Roles)
	require.True(t, claims.HasRole("admin"))
}

func TestVerifyRejects(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	v := newTestVerifier(t, now)

	sign := func(b *jwt.Builder, alg jwa.SignatureAlgorithm, key any) string {
		tok, err := b.Build()
		require.NoError(t, err)
		signed, err := jwt.Sign(tok, jwt.WithKey(alg, key))
		require.NoError(t, err)
		return string(signed)
	}
	base := func() *jwt.Builder {
		return jwt.NewBuilder().Subject("user-1").Issuer("toko-identity").Audience([]string{"toko-apparel"}).IssuedAt(now)
	}

	cases := map[string]string{
		"expired":         sign(base().Expiration(now.Add(-time.Minute)), jwa.HS256, []byte(testSecret)),
		"no expiry":       sign(base(), jwa.HS256, []byte(testSecret)),
		"wrong issuer":    sign(base().Issuer("other").Expiration(now.Add(time.Minute)), jwa.HS256, []byte(testSecret)),
		"wrong audience":  sign(base().Audience([]string{"x"}).Expiration(now.Add(time.Minute)), jwa.HS256, []byte(testSecret)),
		"not yet valid":   sign(base().NotBefore(now.Add(5*time.Minute)).Expiration(now.Add(10*time.Minute)), jwa.HS256, []byte(testSecret)),
		"wrong secret":    sign(base().Expiration(now.Add(time.Minute)), jwa.HS256, []byte("another-secret")),
		"other algorithm": sign(base().Expiration(now.Add(time.Minute)), jwa.HS512, []byte(testSecret)),
		"garbage":         "not-a-token",
		"empty":           "  ",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			var appErr *common.AppError
			require.ErrorAs(t, err, &appErr)
			require.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus)
		})
	}
}

func TestRolesFromSingleClaim(t *testing.T) {
	now := time.Now()
	tok, err := jwt.NewBuilder().Subject("u").Expiration(now.Add(time.Minute)).Claim("role", "admin").Build()
	require.NoError(t, err)
	require.Equal(t, []string{"admin"}, rolesOf(tok))
}

func TestMiddlewareSetsCallerContext(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	v := newTestVerifier(t, now)
	token, err := v.Issue("user-9", []string{"customer"}, time.Minute)
	require.NoError(t, err)

	m := Middleware{Verifier: v, AccessCookie: "toko_session"}
	var gotUser, gotToken string
	var gotRoles []string
	h := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = common.UserID(r.Context())
		gotToken, _ = common.AccessToken(r.Context())
		gotRoles = common.Roles(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.AddCookie(&http.Cookie{Name: "toko_session", Value: token})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "user-9", gotUser)
	require.Equal(t, token, gotToken)
	require.Equal(t, []string{"customer"}, gotRoles)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireRole(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	v := newTestVerifier(t, now)
	m := Middleware{Verifier: v}
	h := m.RequireAuth(RequireRole("admin")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	call := func(roles []string) int {
		token, err := v.Issue("user-1", roles, time.Minute)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}
	require.Equal(t, http.StatusOK, call([]string{"admin"}))
	require.Equal(t, http.StatusForbidden, call([]string{"customer"}))
}

func TestAuthenticateIsOptional(t *testing.T) {
	m := Middleware{Verifier: newTestVerifier(t, time.Now())}
	var seen bool
	h := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, seen = common.UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set("Authorization", "Bearer broken")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.False(t, seen)
}
