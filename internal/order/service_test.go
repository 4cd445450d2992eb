package order_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-apparel/internal/common"
	"github.com/noah-isme/toko-apparel/internal/order"
	"github.com/noah-isme/toko-apparel/internal/pricing"
	"github.com/noah-isme/toko-apparel/internal/upstream"
)

type fakeBackend struct {
	orders  map[string]upstream.Order
	created []upstream.OrderInput
	updates []string
}

func (f *fakeBackend) ListOrders(_ context.Context, flt upstream.OrderFilter) ([]upstream.Order, error) {
	out := make([]upstream.Order, 0, len(f.orders))
	for _, o := range f.orders {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeBackend) GetOrder(_ context.Context, id string) (upstream.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return upstream.Order{}, &upstream.Error{Status: http.StatusNotFound}
	}
	return o, nil
}

func (f *fakeBackend) CreateOrder(_ context.Context, in upstream.OrderInput) (upstream.Order, error) {
	f.created = append(f.created, in)
	o := upstream.Order{
		ID:              upstream.ID("o-new"),
		UserID:          upstream.ID(in.UserID),
		Status:          in.Status,
		ShippingAddress: in.ShippingAddress,
		Items:           in.Items,
	}
	f.orders["o-new"] = o
	return o, nil
}

func (f *fakeBackend) UpdateOrderStatus(_ context.Context, id, status string) (upstream.Order, error) {
	f.updates = append(f.updates, id+":"+status)
	o := f.orders[id]
	o.Status = status
	f.orders[id] = o
	return upstream.Order{ID: o.ID, Status: status}, nil
}

type fakePricer struct {
	products map[string]upstream.Product
	now      time.Time
}

func (f fakePricer) Quote(_ context.Context, id string) (upstream.Product, pricing.Resolution, error) {
	p, ok := f.products[id]
	if !ok {
		return upstream.Product{}, pricing.Resolution{}, &upstream.Error{Status: http.StatusNotFound}
	}
	return p, pricing.Resolve(p.Pricing(), f.now), nil
}

var now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFixture(t *testing.T) (*order.Service, *fakeBackend) {
	t.Helper()
	ten := dec("10")
	backend := &fakeBackend{orders: map[string]upstream.Order{
		"o-1": {
			ID: "o-1", UserID: "u-1", Status: "PENDING",
			CreatedAt: upstream.NewTime(now.AddDate(0, 0, -2)),
			Items: []upstream.OrderLine{
				{ProductID: "p-1", ProductName: "Tee", Amount: 2, UnitPrice: dec("500"), Discount: &ten},
				{ProductID: "p-2", ProductName: "Cap", Amount: 1, UnitPrice: dec("300")},
			},
		},
		"o-2": {
			ID: "o-2", UserID: "u-2", Status: "SHIPPED",
			CreatedAt: upstream.NewTime(now.AddDate(0, 0, -1)),
			Items:     []upstream.OrderLine{{ProductID: "p-2", Amount: 3, UnitPrice: dec("300")}},
		},
		"o-3": {
			ID: "o-3", UserID: "u-1", Status: "delivered",
			CreatedAt: upstream.NewTime(now.AddDate(0, 0, -5)),
			Items:     []upstream.OrderLine{{ProductID: "p-1", Amount: 1, UnitPrice: dec("1000")}},
		},
	}}
	pricer := fakePricer{now: now, products: map[string]upstream.Product{
		"p-1": {
			ID: "p-1", Name: "Tee", Price: dec("1000"), Sizes: []string{"S", "M"}, Stock: 10,
			ProductDiscounts: []upstream.Discount{{
				Percent: dec("15"),
				Start:   upstream.NewTime(now.AddDate(0, 0, -1)),
				End:     upstream.NewTime(now.AddDate(0, 0, 1)),
			}},
		},
		"p-2": {ID: "p-2", Name: "Cap", Price: dec("300"), Stock: 1},
	}}
	svc, err := order.NewService(order.ServiceConfig{Backend: backend, Pricer: pricer, PriceScale: 2})
	require.NoError(t, err)
	return svc, backend
}

func TestViewTotals(t *testing.T) {
	svc, _ := newFixture(t)
	view, err := svc.GetForUser(context.Background(), "u-1", "o-1")
	require.NoError(t, err)

	require.True(t, view.Items[0].Total.Equal(dec("900")))
	require.True(t, view.Items[1].Total.Equal(dec("300")))
	require.True(t, view.Summary.Total.Equal(dec("1200")))
	require.True(t, view.Summary.Subtotal.Equal(dec("1300")))
	require.True(t, view.Summary.Discount.Equal(dec("100")))
	require.Equal(t, int64(3), view.Summary.ItemCount)
}

func TestGetForUserHidesOtherUsersOrders(t *testing.T) {
	svc, _ := newFixture(t)
	_, err := svc.GetForUser(context.Background(), "u-1", "o-2")

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusNotFound, appErr.HTTPStatus)
}

func TestPlaceUsesResolvedPrice(t *testing.T) {
	svc, backend := newFixture(t)
	view, err := svc.Place(context.Background(), "u-9", order.PlaceInput{
		ShippingAddress: "Jl. Merdeka 1",
		Items: []order.PlaceItem{
			{ProductID: "p-1", Quantity: 2, Size: "m"},
			{ProductID: "p-2", Quantity: 1},
		},
	}, false)
	require.NoError(t, err)

	require.Len(t, backend.created, 1)
	in := backend.created[0]
	require.Equal(t, "u-9", in.UserID)
	require.Equal(t, order.StatusPending, in.Status)
	require.True(t, in.Items[0].UnitPrice.Equal(dec("850")))
	require.Nil(t, in.Items[0].Discount)
	require.True(t, view.Summary.Total.Equal(dec("2000")))
}

func TestPlaceRejections(t *testing.T) {
	svc, _ := newFixture(t)
	pct := dec("5")
	cases := []struct {
		name   string
		items  []order.PlaceItem
		status int
	}{
		{"empty", nil, http.StatusUnprocessableEntity},
		{"zero quantity", []order.PlaceItem{{ProductID: "p-2", Quantity: 0}}, http.StatusUnprocessableEntity},
		{"unknown product", []order.PlaceItem{{ProductID: "p-x", Quantity: 1}}, http.StatusUnprocessableEntity},
		{"bad size", []order.PlaceItem{{ProductID: "p-1", Quantity: 1, Size: "XXL"}}, http.StatusUnprocessableEntity},
		{"stock", []order.PlaceItem{{ProductID: "p-2", Quantity: 2}}, http.StatusConflict},
		{"line discount", []order.PlaceItem{{ProductID: "p-2", Quantity: 1, DiscountPercent: &pct}}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Place(context.Background(), "u-1", order.PlaceInput{ShippingAddress: "x", Items: tc.items}, false)
			var appErr *common.AppError
			require.ErrorAs(t, err, &appErr)
			require.Equal(t, tc.status, appErr.HTTPStatus)
		})
	}
}

func TestPlaceStockCoversAllLinesOfAProduct(t *testing.T) {
	svc, backend := newFixture(t)
	_, err := svc.Place(context.Background(), "u-1", order.PlaceInput{
		ShippingAddress: "x",
		Items: []order.PlaceItem{
			{ProductID: "p-1", Quantity: 6, Size: "S"},
			{ProductID: "p-1", Quantity: 5, Size: "M"},
		},
	}, false)

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusConflict, appErr.HTTPStatus)
	require.Equal(t, int64(11), appErr.Details.(map[string]any)["requested"])
	require.Empty(t, backend.created)

	_, err = svc.Place(context.Background(), "u-1", order.PlaceInput{
		ShippingAddress: "x",
		Items: []order.PlaceItem{
			{ProductID: "p-1", Quantity: 5, Size: "S"},
			{ProductID: "p-1", Quantity: 5, Size: "M"},
		},
	}, false)
	require.NoError(t, err)
	require.Len(t, backend.created, 1)
}

func TestAdminPlaceAllowsLineDiscount(t *testing.T) {
	svc, backend := newFixture(t)
	pct := dec("10")
	view, err := svc.Place(context.Background(), "u-3", order.PlaceInput{
		ShippingAddress: "Warehouse",
		Items:           []order.PlaceItem{{ProductID: "p-1", Quantity: 2, Size: "S", DiscountPercent: &pct}},
	}, true)
	require.NoError(t, err)
	require.True(t, backend.created[0].Items[0].Discount.Equal(pct))
	// 2 x 850 less 10%
	require.True(t, view.Summary.Total.Equal(dec("1530")))
}

func TestCancel(t *testing.T) {
	svc, backend := newFixture(t)
	view, err := svc.Cancel(context.Background(), "u-1", "o-1")
	require.NoError(t, err)
	require.Equal(t, order.StatusCanceled, view.Status)
	require.Len(t, view.Items, 2)
	require.Equal(t, []string{"o-1:CANCELED"}, backend.updates)

	_, err = svc.Cancel(context.Background(), "u-1", "o-3")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusConflict, appErr.HTTPStatus)
}

func TestListForUserNewestFirst(t *testing.T) {
	svc, _ := newFixture(t)
	views, meta, err := svc.ListForUser(context.Background(), "u-1", 1, 10)
	require.NoError(t, err)
	require.Equal(t, 2, meta.TotalItems)
	require.Equal(t, "o-1", views[0].ID)
	require.Equal(t, "o-3", views[1].ID)
}

func TestAdminListFiltersAndAggregates(t *testing.T) {
	svc, _ := newFixture(t)
	from := now.AddDate(0, 0, -3)

	result, err := svc.AdminList(context.Background(), order.AdminFilter{From: &from}, 1, 1)
	require.NoError(t, err)
	require.Equal(t, 2, result.Pagination.TotalItems)
	require.Len(t, result.Items, 1)
	require.Equal(t, "o-2", result.Items[0].ID)
	// o-1 (1200) and o-2 (900)
	require.True(t, result.Total.Equal(dec("2100")))

	result, err = svc.AdminList(context.Background(), order.AdminFilter{Status: order.StatusDelivered}, 1, 10)
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	require.Equal(t, "o-3", result.Items[0].ID)

	result, err = svc.AdminList(context.Background(), order.AdminFilter{Query: "U-2"}, 1, 10)
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
}

func TestAdminGetComparesCurrentPrice(t *testing.T) {
	svc, _ := newFixture(t)
	view, err := svc.AdminGet(context.Background(), "o-3")
	require.NoError(t, err)
	cur := view.Items[0].Current
	require.NotNil(t, cur)
	require.True(t, cur.FinalPrice.Equal(dec("850")))
	require.True(t, cur.Difference.Equal(dec("-150")))
	require.Equal(t, pricing.SourceProduct, cur.Source)
}

func TestCanTransition(t *testing.T) {
	require.True(t, order.CanTransition(order.StatusPending, order.StatusPaid))
	require.True(t, order.CanTransition(order.StatusPaid, order.StatusShipped))
	require.True(t, order.CanTransition(order.StatusShipped, order.StatusCanceled))
	require.False(t, order.CanTransition(order.StatusShipped, order.StatusPaid))
	require.False(t, order.CanTransition(order.StatusPaid, order.StatusPaid))
	require.False(t, order.CanTransition(order.StatusDelivered, order.StatusCanceled))
	require.False(t, order.CanTransition(order.StatusCanceled, order.StatusPending))
	require.False(t, order.CanTransition("LOST", order.StatusPaid))
}

func TestAdminPatchStatusHandler(t *testing.T) {
	svc, backend := newFixture(t)
	h := &order.AdminHandler{Svc: svc}

	patch := func(id, status string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]string{"status": status})
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/orders/"+id+"/status", bytes.NewReader(body))
		rc := chi.NewRouteContext()
		rc.URLParams.Add("id", id)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
		rec := httptest.NewRecorder()
		h.PatchStatus(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, patch("o-1", "paid").Code)
	require.Equal(t, http.StatusConflict, patch("o-2", "PAID").Code)
	require.Equal(t, http.StatusUnprocessableEntity, patch("o-2", "LOST").Code)
	require.Equal(t, http.StatusNotFound, patch("o-404", "PAID").Code)
	require.Equal(t, []string{"o-1:PAID"}, backend.updates)
}

func TestCustomerHandlersRequireUser(t *testing.T) {
	svc, _ := newFixture(t)
	h := &order.Handler{Svc: svc}

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req = req.WithContext(common.WithUserID(req.Context(), "u-1"))
	rec = httptest.NewRecorder()
	h.List(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "2", rec.Header().Get("X-Total-Count"))
}
