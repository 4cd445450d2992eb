package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-apparel/internal/cache"
	"github.com/noah-isme/toko-apparel/internal/common"
	"github.com/noah-isme/toko-apparel/internal/obs"
	"github.com/noah-isme/toko-apparel/internal/pricing"
	"github.com/noah-isme/toko-apparel/internal/upstream"
)

const (
	productsKey   = "catalog:products:v1"
	categoriesKey = "catalog:categories:v1"
)

// Keys lists every cache key holding a catalog snapshot.
func Keys() []string { return []string{productsKey, categoriesKey} }

// Source is the part of the backend client the catalog reads from.
type Source interface {
	ListProducts(ctx context.Context) ([]upstream.Product, error)
	GetProduct(ctx context.Context, id string) (upstream.Product, error)
	ListCategories(ctx context.Context) ([]upstream.Category, error)
}

// Service builds priced product views from backend snapshots.
type Service struct {
	source           Source
	cache            *cache.Cache
	resolver         pricing.Resolver
	scale            int32
	defaultLimit     int
	maxLimit         int
	bestSellersLimit int
	logger           zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Source           Source
	Cache            *cache.Cache
	Now              func() time.Time
	PriceScale       int32
	DefaultLimit     int
	MaxLimit         int
	BestSellersLimit int
	Logger           zerolog.Logger
}

// ListParams captures filters for product listing.
type ListParams struct {
	Query    string
	Category string
	Size     string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	OnSale   *bool
	Sort     string
	Page     int
	Limit    int
}

// ProductView is a product together with its resolved price.
type ProductView struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	CategoryID      string          `json:"categoryId,omitempty"`
	Images          []string        `json:"images"`
	Sizes           []string        `json:"sizes"`
	Colors          []string        `json:"colors"`
	Stock           int64           `json:"stock"`
	Sold            int64           `json:"sold"`
	CreatedAt       *time.Time      `json:"createdAt,omitempty"`
	Price           decimal.Decimal `json:"price"`
	FinalPrice      decimal.Decimal `json:"finalPrice"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	DiscountSource  pricing.Source  `json:"discountSource"`
}

// DiscountView describes one discount attached to a product detail.
type DiscountView struct {
	ID        string          `json:"id"`
	Scope     string          `json:"scope"`
	Percent   decimal.Decimal `json:"percent"`
	StartDate time.Time       `json:"startDate"`
	EndDate   time.Time       `json:"endDate"`
	Active    bool            `json:"active"`
}

// ProductDetail is the product page payload.
type ProductDetail struct {
	ProductView
	Category  *Category      `json:"category,omitempty"`
	Discounts []DiscountView `json:"discounts"`
}

// Category represents the public category payload.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
}

// ProductListResult contains list data and pagination metadata.
type ProductListResult struct {
	Items []ProductView
	Total int
	Page  int
	Limit int
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Source == nil {
		return nil, errors.New("catalog: source is required")
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	best := cfg.BestSellersLimit
	if best < 1 {
		best = 8
	}
	scale := cfg.PriceScale
	if scale < 0 {
		scale = pricing.DefaultScale
	}
	return &Service{
		source:           cfg.Source,
		cache:            cfg.Cache.Named("catalog"),
		resolver:         pricing.Resolver{Now: cfg.Now},
		scale:            scale,
		defaultLimit:     defaultLimit,
		maxLimit:         maxLimit,
		bestSellersLimit: best,
		logger:           cfg.Logger,
	}, nil
}

// ParseListParams normalises raw query values into strongly typed filters.
func (s *Service) ParseListParams(values url.Values) (ListParams, error) {
	params := ListParams{Page: 1, Limit: s.defaultLimit}
	params.Query = strings.TrimSpace(values.Get("q"))
	params.Category = strings.TrimSpace(values.Get("category"))
	params.Size = strings.TrimSpace(values.Get("size"))

	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, badRequest("page", "page must be a positive integer", err)
		}
		params.Page = page
	}
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 1 {
			return params, badRequest("limit", "limit must be a positive integer", err)
		}
		params.Limit = l
	}
	if params.Limit > s.maxLimit {
		params.Limit = s.maxLimit
	}

	for _, bound := range []struct {
		field string
		dst   **decimal.Decimal
	}{{"minPrice", &params.MinPrice}, {"maxPrice", &params.MaxPrice}} {
		v := strings.TrimSpace(values.Get(bound.field))
		if v == "" {
			continue
		}
		parsed, err := decimal.NewFromString(v)
		if err != nil || parsed.IsNegative() {
			return params, badRequest(bound.field, bound.field+" must be a non-negative number", err)
		}
		*bound.dst = &parsed
	}
	if params.MinPrice != nil && params.MaxPrice != nil && params.MinPrice.GreaterThan(*params.MaxPrice) {
		return params, badRequest("price", "minPrice cannot be greater than maxPrice", fmt.Errorf("invalid price range"))
	}

	if v := strings.TrimSpace(values.Get("onSale")); v != "" {
		b, err := parseBool(v)
		if err != nil {
			return params, badRequest("onSale", "onSale must be true or false", err)
		}
		params.OnSale = &b
	}

	sortKey, ok := normalizeSort(values.Get("sort"))
	if !ok {
		return params, badRequest("sort", "unsupported sort", nil)
	}
	params.Sort = sortKey
	return params, nil
}

// Products returns the product snapshot, from cache when fresh.
func (s *Service) Products(ctx context.Context) ([]upstream.Product, error) {
	var cached []upstream.Product
	if ok, err := s.cache.GetJSON(ctx, productsKey, &cached); err == nil && ok {
		return cached, nil
	} else if err != nil {
		s.logger.Warn().Err(err).Msg("catalog_cache_read")
	}
	products, err := s.source.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if err := s.cache.SetJSON(ctx, productsKey, products); err != nil {
		s.logger.Warn().Err(err).Msg("catalog_cache_write")
	}
	return products, nil
}

// Categories returns the category snapshot, from cache when fresh.
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	var cached []Category
	if ok, err := s.cache.GetJSON(ctx, categoriesKey, &cached); err == nil && ok {
		return cached, nil
	}
	rows, err := s.source.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]Category, 0, len(rows))
	for _, row := range rows {
		out = append(out, toCategory(row))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	if err := s.cache.SetJSON(ctx, categoriesKey, out); err != nil {
		s.logger.Warn().Err(err).Msg("catalog_cache_write")
	}
	return out, nil
}

// Refresh drops and reloads both snapshots.
func (s *Service) Refresh(ctx context.Context) (int, error) {
	if err := s.Invalidate(ctx); err != nil {
		return 0, err
	}
	products, err := s.Products(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := s.Categories(ctx); err != nil {
		return 0, err
	}
	return len(products), nil
}

// Invalidate drops the cached snapshots.
func (s *Service) Invalidate(ctx context.Context) error {
	if err := s.cache.Delete(ctx, Keys()...); err != nil {
		return fmt.Errorf("invalidate catalog: %w", err)
	}
	return nil
}

// Views prices products with a single clock reading.
func (s *Service) Views(products []upstream.Product) []ProductView {
	inputs := make([]pricing.Product, len(products))
	for i, p := range products {
		inputs[i] = p.Pricing()
	}
	resolutions := s.resolver.ResolveAll(inputs)
	out := make([]ProductView, len(products))
	for i, p := range products {
		out[i] = s.view(p, resolutions[i])
	}
	return out
}

// Quote fetches a product fresh from the backend and resolves its price now.
func (s *Service) Quote(ctx context.Context, id string) (upstream.Product, pricing.Resolution, error) {
	p, err := s.source.GetProduct(ctx, id)
	if err != nil {
		return upstream.Product{}, pricing.Resolution{}, err
	}
	res := s.resolver.Resolve(p.Pricing())
	obs.ObserveResolution(string(res.Source))
	return p, res, nil
}

// ListProducts returns filtered product list with pagination metadata.
func (s *Service) ListProducts(ctx context.Context, params ListParams) (ProductListResult, error) {
	products, err := s.Products(ctx)
	if err != nil {
		return ProductListResult{}, err
	}
	views := filter(s.Views(products), params)
	sortViews(views, params.Sort)
	page, meta := common.Paginate(views, params.Page, params.Limit)
	return ProductListResult{Items: page, Total: meta.TotalItems, Page: params.Page, Limit: params.Limit}, nil
}

// BestSellers returns the most sold products priced with the standard rule.
func (s *Service) BestSellers(ctx context.Context, limit int) ([]ProductView, error) {
	if limit < 1 {
		limit = s.bestSellersLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	products, err := s.Products(ctx)
	if err != nil {
		return nil, err
	}
	views := s.Views(products)
	sort.SliceStable(views, func(i, j int) bool { return views[i].Sold > views[j].Sold })
	if len(views) > limit {
		views = views[:limit]
	}
	return views, nil
}

// GetProductDetail returns the product page payload.
func (s *Service) GetProductDetail(ctx context.Context, id string) (ProductDetail, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return ProductDetail{}, badRequest("id", "id is required", nil)
	}
	product, err := s.lookup(ctx, id)
	if err != nil {
		return ProductDetail{}, err
	}
	now := s.resolver.Clock()
	res := pricing.Resolve(product.Pricing(), now)

	detail := ProductDetail{ProductView: s.view(product, res)}
	detail.Discounts = make([]DiscountView, 0, len(product.ProductDiscounts)+len(product.CategoryDiscounts))
	for _, d := range product.ProductDiscounts {
		detail.Discounts = append(detail.Discounts, discountView(d, "product", now))
	}
	for _, d := range product.CategoryDiscounts {
		detail.Discounts = append(detail.Discounts, discountView(d, "category", now))
	}
	if product.CategoryID != "" {
		if cats, err := s.Categories(ctx); err == nil {
			for i := range cats {
				if cats[i].ID == product.CategoryID.String() {
					detail.Category = &cats[i]
					break
				}
			}
		}
	}
	return detail, nil
}

// ListRelatedProducts returns other products from the same category.
func (s *Service) ListRelatedProducts(ctx context.Context, id string, limit int) ([]ProductView, error) {
	if limit < 1 || limit > s.maxLimit {
		limit = 4
	}
	product, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if product.CategoryID == "" {
		return []ProductView{}, nil
	}
	products, err := s.Products(ctx)
	if err != nil {
		return nil, err
	}
	related := make([]upstream.Product, 0, limit)
	for _, p := range products {
		if p.ID == product.ID || p.CategoryID != product.CategoryID {
			continue
		}
		related = append(related, p)
		if len(related) == limit {
			break
		}
	}
	return s.Views(related), nil
}

func (s *Service) lookup(ctx context.Context, id string) (upstream.Product, error) {
	products, err := s.Products(ctx)
	if err == nil {
		for _, p := range products {
			if p.ID.String() == id {
				return p, nil
			}
		}
	}
	p, err := s.source.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return upstream.Product{}, &common.AppError{Code: "NOT_FOUND", Message: "product not found", HTTPStatus: http.StatusNotFound, Err: err}
		}
		return upstream.Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (s *Service) view(p upstream.Product, res pricing.Resolution) ProductView {
	obs.ObserveResolution(string(res.Source))
	v := ProductView{
		ID:              p.ID.String(),
		Name:            p.Name,
		Description:     p.Description,
		CategoryID:      p.CategoryID.String(),
		Images:          nonNil(p.Images),
		Sizes:           nonNil(p.Sizes),
		Colors:          nonNil(p.Colors),
		Stock:           p.Stock,
		Sold:            p.Sold,
		Price:           pricing.Display(p.Price, s.scale),
		FinalPrice:      pricing.Display(res.FinalPrice, s.scale),
		DiscountPercent: res.Percent,
		DiscountSource:  res.Source,
	}
	if !p.CreatedAt.IsZero() {
		created := p.CreatedAt.Time
		v.CreatedAt = &created
	}
	return v
}

func filter(views []ProductView, params ListParams) []ProductView {
	query := strings.ToLower(params.Query)
	out := views[:0]
	for _, v := range views {
		if query != "" && !strings.Contains(strings.ToLower(v.Name), query) {
			continue
		}
		if params.Category != "" && v.CategoryID != params.Category {
			continue
		}
		if params.Size != "" && !containsFold(v.Sizes, params.Size) {
			continue
		}
		if params.MinPrice != nil && v.FinalPrice.LessThan(*params.MinPrice) {
			continue
		}
		if params.MaxPrice != nil && v.FinalPrice.GreaterThan(*params.MaxPrice) {
			continue
		}
		if params.OnSale != nil && v.DiscountPercent.IsPositive() != *params.OnSale {
			continue
		}
		out = append(out, v)
	}
	return out
}

func sortViews(views []ProductView, key string) {
	var less func(a, b ProductView) bool
	switch key {
	case "price:asc":
		less = func(a, b ProductView) bool { return a.FinalPrice.LessThan(b.FinalPrice) }
	case "price:desc":
		less = func(a, b ProductView) bool { return a.FinalPrice.GreaterThan(b.FinalPrice) }
	case "name:asc":
		less = func(a, b ProductView) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) }
	case "name:desc":
		less = func(a, b ProductView) bool { return strings.ToLower(a.Name) > strings.ToLower(b.Name) }
	case "discount:desc":
		less = func(a, b ProductView) bool { return a.DiscountPercent.GreaterThan(b.DiscountPercent) }
	case "newest":
		less = func(a, b ProductView) bool {
			if a.CreatedAt == nil || b.CreatedAt == nil {
				return a.CreatedAt != nil
			}
			return a.CreatedAt.After(*b.CreatedAt)
		}
	default:
		return
	}
	sort.SliceStable(views, func(i, j int) bool { return less(views[i], views[j]) })
}

func discountView(d upstream.Discount, scope string, now time.Time) DiscountView {
	pd := d.Pricing()
	return DiscountView{
		ID:        d.ID.String(),
		Scope:     scope,
		Percent:   d.Percent,
		StartDate: pd.Start,
		EndDate:   pd.End,
		Active:    pd.ActiveAt(now),
	}
}

func toCategory(row upstream.Category) Category {
	return Category{ID: row.ID.String(), Name: row.Name, Description: row.Description, Image: row.Image}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "y":
		return true, nil
	case "false", "0", "no", "n":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean: %s", value)
	}
}

func normalizeSort(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return "", true
	case "price:asc", "price:desc", "name:asc", "name:desc", "newest", "discount:desc":
		return s, true
	default:
		return "", false
	}
}

func badRequest(field, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details: map[string]any{
			"field": field,
		},
	}
}
