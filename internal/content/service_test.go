package content_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-apparel/internal/cache"
	"github.com/noah-isme/toko-apparel/internal/content"
	"github.com/noah-isme/toko-apparel/internal/upstream"
)

type fakeBackend struct {
	rows  []upstream.PageContent
	calls int
}

func (f *fakeBackend) ListContent(_ context.Context, page string) ([]upstream.PageContent, error) {
	f.calls++
	return append([]upstream.PageContent(nil), f.rows...), nil
}

func (f *fakeBackend) CreateContent(_ context.Context, in upstream.ContentInput) (upstream.PageContent, error) {
	row := upstream.PageContent{ID: "new", Page: in.Page, Section: in.Section, Title: in.Title, Position: in.Position}
	f.rows = append(f.rows, row)
	return row, nil
}

func (f *fakeBackend) UpdateContent(_ context.Context, id string, in upstream.ContentInput) (upstream.PageContent, error) {
	for i := range f.rows {
		if f.rows[i].ID.String() == id {
			f.rows[i].Page = in.Page
			f.rows[i].Title = in.Title
			return f.rows[i], nil
		}
	}
	return upstream.PageContent{}, &upstream.Error{Status: http.StatusNotFound}
}

func (f *fakeBackend) DeleteContent(_ context.Context, id string) error {
	for i := range f.rows {
		if f.rows[i].ID.String() == id {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return &upstream.Error{Status: http.StatusNotFound}
}

func setup(t *testing.T) (*content.Service, *fakeBackend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	backend := &fakeBackend{rows: []upstream.PageContent{
		{ID: "1", Page: "home", Section: "hero", Title: "Summer drop", Position: 2},
		{ID: "2", Page: "home", Section: "banner", Title: "Free shipping", Position: 1},
		{ID: "3", Page: "about", Section: "story", Title: "Since 2019", Position: 1},
	}}
	svc, err := content.NewService(backend, cache.New(rdb, time.Minute), zerolog.Nop())
	require.NoError(t, err)
	return svc, backend, mr
}

func TestPageOrderedAndCached(t *testing.T) {
	svc, backend, _ := setup(t)
	ctx := context.Background()

	sections, err := svc.Page(ctx, "Home")
	require.NoError(t, err)
	require.Len(t, sections, 2)
	require.Equal(t, "banner", sections[0].Section)
	require.Equal(t, "hero", sections[1].Section)

	_, err = svc.Page(ctx, "home")
	require.NoError(t, err)
	require.Equal(t, 1, backend.calls)

	_, err = svc.Page(ctx, "../etc")
	require.Error(t, err)
}

func TestMutationsInvalidatePages(t *testing.T) {
	svc, backend, mr := setup(t)
	ctx := context.Background()

	_, err := svc.Page(ctx, "home")
	require.NoError(t, err)
	require.True(t, mr.Exists("content:home:v1"))

	_, err = svc.Update(ctx, "1", content.Form{Page: "about", Section: "hero", Title: "Moved"})
	require.NoError(t, err)
	require.False(t, mr.Exists("content:home:v1"))

	sections, err := svc.Page(ctx, "home")
	require.NoError(t, err)
	require.Len(t, sections, 1)

	require.NoError(t, svc.Delete(ctx, "2"))
	require.False(t, mr.Exists("content:home:v1"))
	require.Len(t, backend.rows, 2)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := setup(t)
	h := &content.Handler{Svc: svc}

	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/content", strings.NewReader(`{"page":"Home Page","section":"hero"}`)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/content", strings.NewReader(`{"page":"lookbook","section":"grid","position":3}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestPageHandler(t *testing.T) {
	svc, _, _ := setup(t)
	h := &content.Handler{Svc: svc}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/content/about", nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("page", "about")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	rec := httptest.NewRecorder()
	h.Page(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Page     string            `json:"page"`
			Sections []content.Section `json:"sections"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "about", resp.Data.Page)
	require.Len(t, resp.Data.Sections, 1)
	require.Equal(t, "story", resp.Data.Sections[0].Section)
}
