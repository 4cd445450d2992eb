package admin_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-apparel/internal/admin"
	"github.com/noah-isme/toko-apparel/internal/cache"
	"github.com/noah-isme/toko-apparel/internal/catalog"
	"github.com/noah-isme/toko-apparel/internal/common"
	"github.com/noah-isme/toko-apparel/internal/pricing"
	"github.com/noah-isme/toko-apparel/internal/upstream"
)

var now = time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)

type fakeBackend struct {
	products  []upstream.Product
	discounts []upstream.DiscountInput
	uploads   []string
	deleted   []string
}

func (f *fakeBackend) ListProducts(context.Context) ([]upstream.Product, error) {
	return append([]upstream.Product(nil), f.products...), nil
}

func (f *fakeBackend) GetProduct(_ context.Context, id string) (upstream.Product, error) {
	for _, p := range f.products {
		if p.ID.String() == id {
			return p, nil
		}
	}
	return upstream.Product{}, &upstream.Error{Status: http.StatusNotFound}
}

func (f *fakeBackend) CreateProduct(_ context.Context, in upstream.ProductInput) (upstream.Product, error) {
	p := upstream.Product{ID: "p-new", Name: in.Name, Price: in.Price, CategoryID: upstream.ID(in.CategoryID), Stock: in.Stock}
	f.products = append(f.products, p)
	return p, nil
}

func (f *fakeBackend) UpdateProduct(_ context.Context, id string, in upstream.ProductInput) (upstream.Product, error) {
	return upstream.Product{ID: upstream.ID(id), Name: in.Name, Price: in.Price}, nil
}

func (f *fakeBackend) DeleteProduct(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBackend) UploadProductImage(_ context.Context, id string, up upstream.Upload) (upstream.Product, error) {
	data, err := io.ReadAll(up.Body)
	if err != nil {
		return upstream.Product{}, err
	}
	f.uploads = append(f.uploads, up.Filename+":"+up.ContentType+":"+string(data))
	p, err := f.GetProduct(context.Background(), id)
	p.Images = append(p.Images, "https://cdn.example.com/"+up.Filename)
	return p, err
}

func (f *fakeBackend) ListCategories(context.Context) ([]upstream.Category, error) {
	return []upstream.Category{{ID: "c-1", Name: "Tops"}}, nil
}

func (f *fakeBackend) CreateCategory(_ context.Context, in upstream.CategoryInput) (upstream.Category, error) {
	return upstream.Category{ID: "c-new", Name: in.Name}, nil
}

func (f *fakeBackend) UpdateCategory(_ context.Context, id string, in upstream.CategoryInput) (upstream.Category, error) {
	return upstream.Category{ID: upstream.ID(id), Name: in.Name}, nil
}

func (f *fakeBackend) DeleteCategory(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBackend) ListDiscounts(context.Context, upstream.DiscountFilter) ([]upstream.Discount, error) {
	return []upstream.Discount{
		{ID: "d-1", Percent: decimal.NewFromInt(10), Start: upstream.NewTime(now.AddDate(0, 0, -1)), End: upstream.NewTime(now.AddDate(0, 0, 1)), ProductID: "p-1"},
		{ID: "d-2", Percent: decimal.NewFromInt(20), Start: upstream.NewTime(now.AddDate(0, -2, 0)), End: upstream.NewTime(now.AddDate(0, -1, 0)), CategoryID: "c-1"},
	}, nil
}

func (f *fakeBackend) CreateDiscount(_ context.Context, in upstream.DiscountInput) (upstream.Discount, error) {
	f.discounts = append(f.discounts, in)
	return upstream.Discount{ID: "d-new", Percent: in.Percent, Start: in.Start, End: in.End, ProductID: upstream.ID(in.ProductID)}, nil
}

func (f *fakeBackend) UpdateDiscount(_ context.Context, id string, in upstream.DiscountInput) (upstream.Discount, error) {
	f.discounts = append(f.discounts, in)
	return upstream.Discount{ID: upstream.ID(id), Percent: in.Percent, Start: in.Start, End: in.End}, nil
}

func (f *fakeBackend) DeleteDiscount(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type countingWarmer struct{ calls int }

func (w *countingWarmer) EnqueueCatalogWarm(context.Context) error {
	w.calls++
	return nil
}

type fixture struct {
	svc     *admin.Service
	backend *fakeBackend
	warmer  *countingWarmer
	redis   *miniredis.Miniredis
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	backend := &fakeBackend{products: []upstream.Product{
		{ID: "p-1", Name: "Linen Shirt", Price: decimal.NewFromInt(1000), CategoryID: "c-1", Stock: 4,
			ProductDiscounts: []upstream.Discount{{Percent: decimal.NewFromInt(15), Start: upstream.NewTime(now.AddDate(0, 0, -1)), End: upstream.NewTime(now.AddDate(0, 0, 1))}}},
		{ID: "p-2", Name: "Denim Jacket", Price: decimal.NewFromInt(2500), CategoryID: "c-2", Stock: 2},
		{ID: "p-3", Name: "Canvas Cap", Price: decimal.NewFromInt(300), CategoryID: "c-1", Stock: 9},
	}}
	cat, err := catalog.NewService(catalog.ServiceConfig{
		Source:     backend,
		Cache:      cache.New(rdb, time.Minute),
		Now:        func() time.Time { return now },
		PriceScale: 2,
	})
	require.NoError(t, err)
	warmer := &countingWarmer{}
	svc, err := admin.NewService(admin.ServiceConfig{
		Backend: backend,
		Catalog: cat,
		Warmer:  warmer,
		Now:     func() time.Time { return now },
	})
	require.NoError(t, err)
	return fixture{svc: svc, backend: backend, warmer: warmer, redis: mr}
}

func validationDetails(t *testing.T, err error) map[string]string {
	t.Helper()
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusUnprocessableEntity, appErr.HTTPStatus)
	details, ok := appErr.Details.(map[string]string)
	require.True(t, ok)
	return details
}

func day(offset int) upstream.Time {
	return upstream.NewTime(now.AddDate(0, 0, offset))
}

func TestDiscountFormRules(t *testing.T) {
	cases := []struct {
		name  string
		form  admin.DiscountForm
		field string
	}{
		{"percent above range", admin.DiscountForm{Percent: decimal.NewFromInt(120), StartDate: day(0), EndDate: day(1), ProductID: "p-1"}, "percent"},
		{"negative percent", admin.DiscountForm{Percent: decimal.NewFromInt(-5), StartDate: day(0), EndDate: day(1), ProductID: "p-1"}, "percent"},
		{"end before start", admin.DiscountForm{Percent: decimal.NewFromInt(10), StartDate: day(2), EndDate: day(1), ProductID: "p-1"}, "endDate"},
		{"missing start", admin.DiscountForm{Percent: decimal.NewFromInt(10), EndDate: day(1), ProductID: "p-1"}, "startDate"},
		{"two owners", admin.DiscountForm{Percent: decimal.NewFromInt(10), StartDate: day(0), EndDate: day(1), ProductID: "p-1", CategoryID: "c-1"}, "owner"},
		{"no owner", admin.DiscountForm{Percent: decimal.NewFromInt(10), StartDate: day(0), EndDate: day(1)}, "owner"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			details := validationDetails(t, tc.form.Check())
			require.Contains(t, details, tc.field)
		})
	}

	ok := admin.DiscountForm{Percent: decimal.NewFromInt(100), StartDate: day(0), EndDate: day(0), CategoryID: "c-1"}
	require.NoError(t, ok.Check())
}

func TestCreateDiscountInvalidatesAndWarms(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.redis.Set("catalog:products:v1", "[]"))

	rec, err := fx.svc.CreateDiscount(ctx, admin.DiscountForm{
		Percent: decimal.NewFromInt(25), StartDate: day(-1), EndDate: day(3), ProductID: " p-2 ",
	})
	require.NoError(t, err)
	require.True(t, rec.Active)
	require.Len(t, fx.backend.discounts, 1)
	require.Equal(t, "p-2", fx.backend.discounts[0].ProductID)
	require.Equal(t, 1, fx.warmer.calls)
	require.False(t, fx.redis.Exists("catalog:products:v1"))

	_, err = fx.svc.CreateDiscount(ctx, admin.DiscountForm{Percent: decimal.NewFromInt(101), StartDate: day(0), EndDate: day(1), ProductID: "p-2"})
	require.Error(t, err)
	require.Len(t, fx.backend.discounts, 1)
	require.Equal(t, 1, fx.warmer.calls)
}

func TestListDiscountsMarksActive(t *testing.T) {
	fx := newFixture(t)
	rows, err := fx.svc.ListDiscounts(context.Background(), upstream.DiscountFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.True(t, rows[0].Active)
	require.False(t, rows[1].Active)
	require.Equal(t, "c-1", rows[1].CategoryID)
}

func TestProductValidation(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.CreateProduct(context.Background(), admin.ProductForm{Price: decimal.Zero, Stock: -1})
	details := validationDetails(t, err)
	require.Contains(t, details, "name")
	require.Contains(t, details, "price")
	require.Contains(t, details, "categoryId")
	require.Contains(t, details, "stock")
	require.Zero(t, fx.warmer.calls)

	view, err := fx.svc.CreateProduct(context.Background(), admin.ProductForm{
		Name: "Wool Scarf", Price: decimal.NewFromInt(450), CategoryID: "c-3", Stock: 5,
	})
	require.NoError(t, err)
	require.Equal(t, "p-new", view.ID)
	require.True(t, view.FinalPrice.Equal(decimal.NewFromInt(450)))
	require.Equal(t, pricing.SourceNone, view.DiscountSource)
	require.Equal(t, 1, fx.warmer.calls)
}

func TestListProductsFiltersAndPrices(t *testing.T) {
	fx := newFixture(t)
	items, meta, err := fx.svc.ListProducts(context.Background(), admin.ProductFilter{CategoryID: "c-1"}, 1, 1)
	require.NoError(t, err)
	require.Equal(t, 2, meta.TotalItems)
	require.Len(t, items, 1)
	require.Equal(t, "p-3", items[0].ID)

	items, _, err = fx.svc.ListProducts(context.Background(), admin.ProductFilter{Query: "linen"}, 1, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.True(t, items[0].FinalPrice.Equal(decimal.NewFromInt(850)))
}

func withID(r *http.Request, id string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rc))
}

func multipartImage(t *testing.T, contentType string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="front.png"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadImageHandler(t *testing.T) {
	fx := newFixture(t)
	h := &admin.Handler{Svc: fx.svc}

	body, ct := multipartImage(t, "image/png")
	req := withID(httptest.NewRequest(http.MethodPost, "/api/v1/admin/products/p-1/images", body), "p-1")
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.UploadImage(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"front.png:image/png:png-bytes"}, fx.backend.uploads)

	var resp struct {
		Data catalog.ProductView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, []string{"https://cdn.example.com/front.png"}, resp.Data.Images)

	body, ct = multipartImage(t, "text/plain")
	req = withID(httptest.NewRequest(http.MethodPost, "/api/v1/admin/products/p-1/images", body), "p-1")
	req.Header.Set("Content-Type", ct)
	rec = httptest.NewRecorder()
	h.UploadImage(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Len(t, fx.backend.uploads, 1)
}

func TestDeleteHandlers(t *testing.T) {
	fx := newFixture(t)
	h := &admin.Handler{Svc: fx.svc}

	rec := httptest.NewRecorder()
	h.DeleteDiscount(rec, withID(httptest.NewRequest(http.MethodDelete, "/api/v1/admin/discounts/d-1", nil), "d-1"))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.DeleteCategory(rec, withID(httptest.NewRequest(http.MethodDelete, "/api/v1/admin/categories/c-1", nil), "c-1"))
	require.Equal(t, http.StatusNoContent, rec.Code)

	require.Equal(t, []string{"d-1", "c-1"}, fx.backend.deleted)
	require.Equal(t, 2, fx.warmer.calls)
}

func TestGetProductNotFound(t *testing.T) {
	fx := newFixture(t)
	h := &admin.Handler{Svc: fx.svc}
	rec := httptest.NewRecorder()
	h.GetProduct(rec, withID(httptest.NewRequest(http.MethodGet, "/api/v1/admin/products/nope", nil), "nope"))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
