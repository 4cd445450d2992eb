package user_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-apparel/internal/common"
	"github.com/noah-isme/toko-apparel/internal/upstream"
	"github.com/noah-isme/toko-apparel/internal/user"
)

type fakeBackend struct {
	users   []upstream.User
	roles   map[string]string
	deleted []string
	me      upstream.User
}

func (f *fakeBackend) ListUsers(context.Context, upstream.UserFilter) ([]upstream.User, error) {
	return f.users, nil
}

func (f *fakeBackend) GetUser(_ context.Context, id string) (upstream.User, error) {
	for _, u := range f.users {
		if u.ID.String() == id {
			return u, nil
		}
	}
	return upstream.User{}, &upstream.Error{Status: http.StatusNotFound}
}

func (f *fakeBackend) UpdateUserRole(_ context.Context, id, role string) (upstream.User, error) {
	f.roles[id] = role
	return upstream.User{ID: upstream.ID(id), Role: role}, nil
}

func (f *fakeBackend) DeleteUser(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBackend) Me(context.Context) (upstream.User, error) { return f.me, nil }

func newHandler() (*user.Handler, *fakeBackend) {
	backend := &fakeBackend{
		roles: map[string]string{},
		users: []upstream.User{
			{ID: "1", Name: "Sari", Email: "sari@example.com", Role: "ADMIN"},
			{ID: "2", Name: "Budi", Email: "budi@example.com", Role: "customer"},
			{ID: "3", Name: "Ayu", Email: "ayu@example.com"},
		},
		me: upstream.User{ID: "2", Name: "Budi", Email: "budi@example.com", Role: "customer"},
	}
	return &user.Handler{Service: user.NewService(backend, zerolog.Nop())}, backend
}

func withID(r *http.Request, id string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rc))
}

func TestListFiltersByRoleAndQuery(t *testing.T) {
	h, _ := newHandler()

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/users?role=customer", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data       []user.Profile    `json:"data"`
		Pagination common.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Pagination.TotalItems)
	require.Equal(t, "ayu@example.com", resp.Data[0].Email)
	require.Equal(t, "customer", resp.Data[0].Role)

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/users?q=SARI", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	require.Equal(t, "admin", resp.Data[0].Role)

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/users?role=owner", nil))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUpdateRole(t *testing.T) {
	h, backend := newHandler()

	req := withID(httptest.NewRequest(http.MethodPatch, "/api/v1/admin/users/2/role", strings.NewReader(`{"role":"admin"}`)), "2")
	req = req.WithContext(common.WithUserID(req.Context(), "1"))
	rec := httptest.NewRecorder()
	h.UpdateRole(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "admin", backend.roles["2"])

	req = withID(httptest.NewRequest(http.MethodPatch, "/api/v1/admin/users/2/role", strings.NewReader(`{"role":"root"}`)), "2")
	rec = httptest.NewRecorder()
	h.UpdateRole(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	req = withID(httptest.NewRequest(http.MethodPatch, "/api/v1/admin/users/1/role", strings.NewReader(`{"role":"customer"}`)), "1")
	req = req.WithContext(common.WithUserID(req.Context(), "1"))
	rec = httptest.NewRecorder()
	h.UpdateRole(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.NotContains(t, backend.roles, "1")
}

func TestDeleteAndGet(t *testing.T) {
	h, backend := newHandler()

	req := withID(httptest.NewRequest(http.MethodDelete, "/api/v1/admin/users/3", nil), "3")
	req = req.WithContext(common.WithUserID(req.Context(), "1"))
	rec := httptest.NewRecorder()
	h.Delete(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, []string{"3"}, backend.deleted)

	rec = httptest.NewRecorder()
	h.Get(rec, withID(httptest.NewRequest(http.MethodGet, "/api/v1/admin/users/99", nil), "99"))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMe(t *testing.T) {
	h, _ := newHandler()

	rec := httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req = req.WithContext(common.WithUserID(req.Context(), "2"))
	rec = httptest.NewRecorder()
	h.Me(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"email":"budi@example.com"`)
}
