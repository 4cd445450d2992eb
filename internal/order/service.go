package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-apparel/internal/common"
	"github.com/noah-isme/toko-apparel/internal/pricing"
	"github.com/noah-isme/toko-apparel/internal/upstream"
)

// Backend is the part of the backend client used for orders.
type Backend interface {
	ListOrders(ctx context.Context, f upstream.OrderFilter) ([]upstream.Order, error)
	GetOrder(ctx context.Context, id string) (upstream.Order, error)
	CreateOrder(ctx context.Context, in upstream.OrderInput) (upstream.Order, error)
	UpdateOrderStatus(ctx context.Context, id, status string) (upstream.Order, error)
}

// Pricer resolves the current price of a product.
type Pricer interface {
	Quote(ctx context.Context, id string) (upstream.Product, pricing.Resolution, error)
}

// Service places and presents orders.
type Service struct {
	backend Backend
	pricer  Pricer
	scale   int32
	logger  zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Backend    Backend
	Pricer     Pricer
	PriceScale int32
	Logger     zerolog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Backend == nil {
		return nil, errors.New("order: backend is required")
	}
	if cfg.Pricer == nil {
		return nil, errors.New("order: pricer is required")
	}
	scale := cfg.PriceScale
	if scale < 0 {
		scale = pricing.DefaultScale
	}
	return &Service{backend: cfg.Backend, pricer: cfg.Pricer, scale: scale, logger: cfg.Logger}, nil
}

// PlaceItem is one requested line.
type PlaceItem struct {
	ProductID       string           `json:"productId" validate:"required"`
	Quantity        int64            `json:"quantity" validate:"gte=1,lte=999"`
	Size            string           `json:"size,omitempty"`
	DiscountPercent *decimal.Decimal `json:"discountPercent,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// PlaceInput is the order form.
type PlaceInput struct {
	UserID          string      `json:"userId,omitempty"`
	ShippingAddress string      `json:"shippingAddress" validate:"required,max=500"`
	Note            string      `json:"note,omitempty" validate:"max=1000"`
	Items           []PlaceItem `json:"items" validate:"required,min=1,max=100,dive"`
}

// LineView is an order line with its computed totals.
type LineView struct {
	ProductID       string          `json:"productId"`
	ProductName     string          `json:"productName"`
	Size            string          `json:"size,omitempty"`
	Quantity        int64           `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	Gross           decimal.Decimal `json:"gross"`
	Total           decimal.Decimal `json:"total"`
	Current         *CurrentPrice   `json:"current,omitempty"`
}

// CurrentPrice compares a line's entry price with the product's price now.
type CurrentPrice struct {
	FinalPrice decimal.Decimal `json:"finalPrice"`
	Percent    decimal.Decimal `json:"percent"`
	Source     pricing.Source  `json:"source"`
	Difference decimal.Decimal `json:"difference"`
}

// View is an order with per-line totals and a summary.
type View struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	Status          string          `json:"status"`
	CreatedAt       *time.Time      `json:"createdAt,omitempty"`
	ShippingAddress string          `json:"shippingAddress,omitempty"`
	Note            string          `json:"note,omitempty"`
	Items           []LineView      `json:"items"`
	Summary         pricing.Summary `json:"summary"`
}

func (s *Service) view(o upstream.Order) View {
	v := View{
		ID:              o.ID.String(),
		UserID:          o.UserID.String(),
		Status:          NormalizeStatus(o.Status),
		ShippingAddress: o.ShippingAddress,
		Note:            o.Note,
		Items:           make([]LineView, 0, len(o.Items)),
		Summary:         pricing.Summarize(o.LineItems()).Rounded(s.scale),
	}
	if !o.CreatedAt.IsZero() {
		created := o.CreatedAt.Time
		v.CreatedAt = &created
	}
	for _, l := range o.Items {
		li := l.LineItem()
		v.Items = append(v.Items, LineView{
			ProductID:       l.ProductID.String(),
			ProductName:     l.ProductName,
			Size:            l.Size,
			Quantity:        l.Amount,
			UnitPrice:       li.UnitPrice,
			DiscountPercent: li.DiscountPercent,
			Gross:           pricing.Display(li.Gross(), s.scale),
			Total:           pricing.Display(pricing.LineTotal(li), s.scale),
		})
	}
	return v
}

// Place builds line items at the current resolved price and submits the order.
// Per-line discounts are only honoured when allowLineDiscount is set.
func (s *Service) Place(ctx context.Context, userID string, in PlaceInput, allowLineDiscount bool) (View, error) {
	if strings.TrimSpace(userID) == "" {
		return View{}, common.NewAppError("UNAUTHORIZED", "authentication required", http.StatusUnauthorized, nil)
	}
	if err := common.Validate(in); err != nil {
		return View{}, err
	}
	lines := make([]upstream.OrderLine, 0, len(in.Items))
	requested := make(map[upstream.ID]int64, len(in.Items))
	for i, item := range in.Items {
		product, res, err := s.pricer.Quote(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, upstream.ErrNotFound) {
				return View{}, common.ValidationError(map[string]string{fmt.Sprintf("items[%d].productId", i): "unknown product"})
			}
			return View{}, fmt.Errorf("quote product %s: %w", item.ProductID, err)
		}
		size := strings.TrimSpace(item.Size)
		if len(product.Sizes) > 0 && !hasSize(product.Sizes, size) {
			return View{}, common.ValidationError(map[string]string{fmt.Sprintf("items[%d].size", i): "size not offered"})
		}
		// Stock covers the sum of every line for the same product.
		requested[product.ID] += item.Quantity
		if requested[product.ID] > product.Stock {
			return View{}, &common.AppError{
				Code:       "OUT_OF_STOCK",
				Message:    "insufficient stock",
				HTTPStatus: http.StatusConflict,
				Details:    map[string]any{"productId": item.ProductID, "available": product.Stock, "requested": requested[product.ID]},
			}
		}
		line := upstream.OrderLine{
			ProductID:   product.ID,
			ProductName: product.Name,
			Size:        size,
			Amount:      item.Quantity,
			UnitPrice:   pricing.Display(res.FinalPrice, s.scale),
		}
		if item.DiscountPercent != nil && !item.DiscountPercent.IsZero() {
			if !allowLineDiscount {
				return View{}, common.ValidationError(map[string]string{fmt.Sprintf("items[%d].discountPercent", i): "not allowed"})
			}
			pct := *item.DiscountPercent
			line.Discount = &pct
		}
		lines = append(lines, line)
	}
	created, err := s.backend.CreateOrder(ctx, upstream.OrderInput{
		UserID:          userID,
		Status:          StatusPending,
		ShippingAddress: strings.TrimSpace(in.ShippingAddress),
		Note:            strings.TrimSpace(in.Note),
		Items:           lines,
	})
	if err != nil {
		return View{}, fmt.Errorf("create order: %w", err)
	}
	if len(created.Items) == 0 {
		created.Items = lines
	}
	if created.UserID == "" {
		created.UserID = upstream.ID(userID)
	}
	s.logger.Info().Str("order_id", created.ID.String()).Str("user_id", userID).Int("lines", len(lines)).Msg("order_placed")
	return s.view(created), nil
}

// ListForUser returns the caller's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string, page, perPage int) ([]View, common.Pagination, error) {
	orders, err := s.backend.ListOrders(ctx, upstream.OrderFilter{UserID: userID})
	if err != nil {
		return nil, common.Pagination{}, fmt.Errorf("list orders: %w", err)
	}
	own := orders[:0]
	for _, o := range orders {
		if o.UserID.String() == userID {
			own = append(own, o)
		}
	}
	sortNewestFirst(own)
	pageItems, meta := common.Paginate(own, page, perPage)
	out := make([]View, 0, len(pageItems))
	for _, o := range pageItems {
		out = append(out, s.view(o))
	}
	return out, meta, nil
}

// GetForUser returns one of the caller's orders. Orders of other users are
// reported as not found.
func (s *Service) GetForUser(ctx context.Context, userID, id string) (View, error) {
	o, err := s.ownOrder(ctx, userID, id)
	if err != nil {
		return View{}, err
	}
	return s.view(o), nil
}

// Cancel cancels one of the caller's pending orders.
func (s *Service) Cancel(ctx context.Context, userID, id string) (View, error) {
	o, err := s.ownOrder(ctx, userID, id)
	if err != nil {
		return View{}, err
	}
	if NormalizeStatus(o.Status) != StatusPending {
		return View{}, common.NewAppError("INVALID_STATE", "only pending orders can be canceled", http.StatusConflict, nil)
	}
	updated, err := s.backend.UpdateOrderStatus(ctx, id, StatusCanceled)
	if err != nil {
		return View{}, fmt.Errorf("cancel order: %w", err)
	}
	return s.view(merge(o, updated)), nil
}

func (s *Service) ownOrder(ctx context.Context, userID, id string) (upstream.Order, error) {
	o, err := s.backend.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return upstream.Order{}, common.NotFound("order not found")
		}
		return upstream.Order{}, fmt.Errorf("get order: %w", err)
	}
	if o.UserID.String() != userID {
		return upstream.Order{}, common.NotFound("order not found")
	}
	return o, nil
}

// AdminFilter narrows the back-office order list.
type AdminFilter struct {
	Status string
	Query  string
	From   *time.Time
	To     *time.Time
}

// AdminListResult is a page of orders plus the aggregate of the whole filtered set.
type AdminListResult struct {
	Items      []View
	Pagination common.Pagination
	Total      decimal.Decimal
}

// AdminList returns orders matching the filter.
func (s *Service) AdminList(ctx context.Context, f AdminFilter, page, perPage int) (AdminListResult, error) {
	orders, err := s.backend.ListOrders(ctx, upstream.OrderFilter{Status: f.Status})
	if err != nil {
		return AdminListResult{}, fmt.Errorf("list orders: %w", err)
	}
	query := strings.ToLower(strings.TrimSpace(f.Query))
	matched := orders[:0]
	total := decimal.Zero
	for _, o := range orders {
		if f.Status != "" && NormalizeStatus(o.Status) != f.Status {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(o.ID.String()), query) && !strings.Contains(strings.ToLower(o.UserID.String()), query) {
			continue
		}
		if f.From != nil && o.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && o.CreatedAt.After(*f.To) {
			continue
		}
		matched = append(matched, o)
		total = total.Add(pricing.OrderTotal(o.LineItems()))
	}
	sortNewestFirst(matched)
	pageItems, meta := common.Paginate(matched, page, perPage)
	out := make([]View, 0, len(pageItems))
	for _, o := range pageItems {
		out = append(out, s.view(o))
	}
	return AdminListResult{Items: out, Pagination: meta, Total: pricing.Display(total, s.scale)}, nil
}

// AdminGet returns an order with each line compared against the current price.
func (s *Service) AdminGet(ctx context.Context, id string) (View, error) {
	o, err := s.backend.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return View{}, common.NotFound("order not found")
		}
		return View{}, fmt.Errorf("get order: %w", err)
	}
	v := s.view(o)
	quotes := make(map[string]*CurrentPrice)
	for i := range v.Items {
		pid := v.Items[i].ProductID
		cur, seen := quotes[pid]
		if !seen {
			_, res, err := s.pricer.Quote(ctx, pid)
			if err != nil {
				s.logger.Debug().Err(err).Str("product_id", pid).Msg("order_line_quote_skipped")
			} else {
				final := pricing.Display(res.FinalPrice, s.scale)
				cur = &CurrentPrice{FinalPrice: final, Percent: res.Percent, Source: res.Source}
			}
			quotes[pid] = cur
		}
		if cur != nil {
			line := *cur
			line.Difference = line.FinalPrice.Sub(v.Items[i].UnitPrice)
			v.Items[i].Current = &line
		}
	}
	return v, nil
}

// UpdateStatus moves an order along the status machine.
func (s *Service) UpdateStatus(ctx context.Context, id, target string) (View, error) {
	target = NormalizeStatus(target)
	if !KnownStatus(target) {
		return View{}, common.ValidationError(map[string]string{"status": "unsupported status"})
	}
	current, err := s.backend.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return View{}, common.NotFound("order not found")
		}
		return View{}, fmt.Errorf("get order: %w", err)
	}
	from := NormalizeStatus(current.Status)
	if !CanTransition(from, target) {
		return View{}, &common.AppError{
			Code:       "INVALID_STATE",
			Message:    "status transition not allowed",
			HTTPStatus: http.StatusConflict,
			Details:    map[string]string{"from": from, "to": target},
		}
	}
	updated, err := s.backend.UpdateOrderStatus(ctx, id, target)
	if err != nil {
		return View{}, fmt.Errorf("update order status: %w", err)
	}
	s.logger.Info().Str("order_id", id).Str("from", from).Str("to", target).Msg("order_status_changed")
	return s.view(merge(current, updated)), nil
}

// merge keeps the fields of before that the backend omitted from its reply.
func merge(before, after upstream.Order) upstream.Order {
	if after.ID == "" {
		after.ID = before.ID
	}
	if after.UserID == "" {
		after.UserID = before.UserID
	}
	if after.Status == "" {
		after.Status = before.Status
	}
	if after.CreatedAt.IsZero() {
		after.CreatedAt = before.CreatedAt
	}
	if len(after.Items) == 0 {
		after.Items = before.Items
	}
	if after.ShippingAddress == "" {
		after.ShippingAddress = before.ShippingAddress
	}
	if after.Note == "" {
		after.Note = before.Note
	}
	return after
}

func sortNewestFirst(orders []upstream.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt.Time)
	})
}

func hasSize(sizes []string, want string) bool {
	for _, s := range sizes {
		if strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}
