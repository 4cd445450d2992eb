package admin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-apparel/internal/catalog"
	"github.com/noah-isme/toko-apparel/internal/common"
	"github.com/noah-isme/toko-apparel/internal/upstream"
)

// Backend is the part of the backend client used by catalog administration.
type Backend interface {
	ListProducts(ctx context.Context) ([]upstream.Product, error)
	GetProduct(ctx context.Context, id string) (upstream.Product, error)
	CreateProduct(ctx context.Context, in upstream.ProductInput) (upstream.Product, error)
	UpdateProduct(ctx context.Context, id string, in upstream.ProductInput) (upstream.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	UploadProductImage(ctx context.Context, id string, up upstream.Upload) (upstream.Product, error)

	ListCategories(ctx context.Context) ([]upstream.Category, error)
	CreateCategory(ctx context.Context, in upstream.CategoryInput) (upstream.Category, error)
	UpdateCategory(ctx context.Context, id string, in upstream.CategoryInput) (upstream.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	ListDiscounts(ctx context.Context, f upstream.DiscountFilter) ([]upstream.Discount, error)
	CreateDiscount(ctx context.Context, in upstream.DiscountInput) (upstream.Discount, error)
	UpdateDiscount(ctx context.Context, id string, in upstream.DiscountInput) (upstream.Discount, error)
	DeleteDiscount(ctx context.Context, id string) error
}

// Catalog prices products and owns the storefront snapshots.
type Catalog interface {
	Views(products []upstream.Product) []catalog.ProductView
	Invalidate(ctx context.Context) error
}

// Warmer schedules a rebuild of the storefront snapshots.
type Warmer interface {
	EnqueueCatalogWarm(ctx context.Context) error
}

// Service implements catalog administration on top of the backend.
type Service struct {
	backend Backend
	catalog Catalog
	warmer  Warmer
	now     func() time.Time
	logger  zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Backend Backend
	Catalog Catalog
	Warmer  Warmer
	Now     func() time.Time
	Logger  zerolog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Backend == nil {
		return nil, errors.New("admin: backend is required")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("admin: catalog is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{backend: cfg.Backend, catalog: cfg.Catalog, warmer: cfg.Warmer, now: now, logger: cfg.Logger}, nil
}

// ProductForm is the admin product payload.
type ProductForm struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=5000"`
	Price       decimal.Decimal `json:"price" validate:"gt=0"`
	CategoryID  string          `json:"categoryId" validate:"required"`
	Images      []string        `json:"images,omitempty" validate:"omitempty,max=20,dive,url"`
	Sizes       []string        `json:"sizes,omitempty" validate:"omitempty,max=20,dive,required,max=10"`
	Colors      []string        `json:"colors,omitempty" validate:"omitempty,max=30,dive,required,max=40"`
	Stock       int64           `json:"stock" validate:"gte=0"`
}

func (f ProductForm) input() upstream.ProductInput {
	return upstream.ProductInput{
		Name:        strings.TrimSpace(f.Name),
		Description: strings.TrimSpace(f.Description),
		Price:       f.Price,
		CategoryID:  strings.TrimSpace(f.CategoryID),
		Images:      f.Images,
		Sizes:       f.Sizes,
		Colors:      f.Colors,
		Stock:       f.Stock,
	}
}

// CategoryForm is the admin category payload.
type CategoryForm struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=2000"`
	Image       string `json:"image,omitempty" validate:"omitempty,url"`
}

// DiscountForm is the admin discount payload. Exactly one of ProductID and
// CategoryID must be set.
type DiscountForm struct {
	Percent    decimal.Decimal `json:"percent" validate:"gte=0,lte=100"`
	StartDate  upstream.Time   `json:"startDate"`
	EndDate    upstream.Time   `json:"endDate"`
	ProductID  string          `json:"productId,omitempty"`
	CategoryID string          `json:"categoryId,omitempty"`
}

// Check validates the rules that span fields.
func (f DiscountForm) Check() error {
	if err := common.Validate(f); err != nil {
		return err
	}
	details := map[string]string{}
	if f.StartDate.IsZero() {
		details["startDate"] = "required"
	}
	if f.EndDate.IsZero() {
		details["endDate"] = "required"
	}
	if len(details) == 0 && f.StartDate.After(f.EndDate.EndOfWindow()) {
		details["endDate"] = "must not be before startDate"
	}
	hasProduct := strings.TrimSpace(f.ProductID) != ""
	hasCategory := strings.TrimSpace(f.CategoryID) != ""
	if hasProduct == hasCategory {
		details["owner"] = "exactly one of productId or categoryId is required"
	}
	if len(details) > 0 {
		return common.ValidationError(details)
	}
	return nil
}

func (f DiscountForm) input() upstream.DiscountInput {
	return upstream.DiscountInput{
		Percent:    f.Percent,
		Start:      f.StartDate,
		End:        f.EndDate,
		ProductID:  strings.TrimSpace(f.ProductID),
		CategoryID: strings.TrimSpace(f.CategoryID),
	}
}

// DiscountRecord is the admin view of a discount.
type DiscountRecord struct {
	ID         string          `json:"id"`
	Percent    decimal.Decimal `json:"percent"`
	StartDate  upstream.Time   `json:"startDate"`
	EndDate    upstream.Time   `json:"endDate"`
	ProductID  string          `json:"productId,omitempty"`
	CategoryID string          `json:"categoryId,omitempty"`
	Active     bool            `json:"active"`
}

func (s *Service) discountRecord(d upstream.Discount, now time.Time) DiscountRecord {
	return DiscountRecord{
		ID:         d.ID.String(),
		Percent:    d.Percent,
		StartDate:  d.Start,
		EndDate:    d.End,
		ProductID:  d.ProductID.String(),
		CategoryID: d.CategoryID.String(),
		Active:     d.Pricing().ActiveAt(now),
	}
}

// ProductFilter narrows the admin product list.
type ProductFilter struct {
	Query      string
	CategoryID string
}

// ListProducts returns priced products straight from the backend.
func (s *Service) ListProducts(ctx context.Context, f ProductFilter, page, perPage int) ([]catalog.ProductView, common.Pagination, error) {
	rows, err := s.backend.ListProducts(ctx)
	if err != nil {
		return nil, common.Pagination{}, fmt.Errorf("list products: %w", err)
	}
	query := strings.ToLower(strings.TrimSpace(f.Query))
	matched := rows[:0]
	for _, p := range rows {
		if f.CategoryID != "" && p.CategoryID.String() != f.CategoryID {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(p.Name), query) {
			continue
		}
		matched = append(matched, p)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return strings.ToLower(matched[i].Name) < strings.ToLower(matched[j].Name)
	})
	pageRows, meta := common.Paginate(matched, page, perPage)
	return s.catalog.Views(pageRows), meta, nil
}

// GetProduct returns one priced product.
func (s *Service) GetProduct(ctx context.Context, id string) (catalog.ProductView, error) {
	p, err := s.backend.GetProduct(ctx, id)
	if err != nil {
		return catalog.ProductView{}, fmt.Errorf("get product: %w", err)
	}
	return s.catalog.Views([]upstream.Product{p})[0], nil
}

// CreateProduct validates and creates a product.
func (s *Service) CreateProduct(ctx context.Context, f ProductForm) (catalog.ProductView, error) {
	if err := common.Validate(f); err != nil {
		return catalog.ProductView{}, err
	}
	p, err := s.backend.CreateProduct(ctx, f.input())
	if err != nil {
		return catalog.ProductView{}, fmt.Errorf("create product: %w", err)
	}
	s.changed(ctx, "product", "create", p.ID.String())
	return s.catalog.Views([]upstream.Product{p})[0], nil
}

// UpdateProduct validates and replaces a product.
func (s *Service) UpdateProduct(ctx context.Context, id string, f ProductForm) (catalog.ProductView, error) {
	if err := common.Validate(f); err != nil {
		return catalog.ProductView{}, err
	}
	p, err := s.backend.UpdateProduct(ctx, id, f.input())
	if err != nil {
		return catalog.ProductView{}, fmt.Errorf("update product: %w", err)
	}
	s.changed(ctx, "product", "update", id)
	return s.catalog.Views([]upstream.Product{p})[0], nil
}

// DeleteProduct removes a product.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.backend.DeleteProduct(ctx, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	s.changed(ctx, "product", "delete", id)
	return nil
}

// UploadImage forwards an image for a product.
func (s *Service) UploadImage(ctx context.Context, id string, up upstream.Upload) (catalog.ProductView, error) {
	p, err := s.backend.UploadProductImage(ctx, id, up)
	if err != nil {
		return catalog.ProductView{}, fmt.Errorf("upload image: %w", err)
	}
	s.changed(ctx, "product", "image", id)
	return s.catalog.Views([]upstream.Product{p})[0], nil
}

// ListCategories returns every category.
func (s *Service) ListCategories(ctx context.Context) ([]upstream.Category, error) {
	rows, err := s.backend.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return rows, nil
}

// CreateCategory validates and creates a category.
func (s *Service) CreateCategory(ctx context.Context, f CategoryForm) (upstream.Category, error) {
	if err := common.Validate(f); err != nil {
		return upstream.Category{}, err
	}
	c, err := s.backend.CreateCategory(ctx, upstream.CategoryInput{
		Name:        strings.TrimSpace(f.Name),
		Description: strings.TrimSpace(f.Description),
		Image:       f.Image,
	})
	if err != nil {
		return upstream.Category{}, fmt.Errorf("create category: %w", err)
	}
	s.changed(ctx, "category", "create", c.ID.String())
	return c, nil
}

// UpdateCategory validates and replaces a category.
func (s *Service) UpdateCategory(ctx context.Context, id string, f CategoryForm) (upstream.Category, error) {
	if err := common.Validate(f); err != nil {
		return upstream.Category{}, err
	}
	c, err := s.backend.UpdateCategory(ctx, id, upstream.CategoryInput{
		Name:        strings.TrimSpace(f.Name),
		Description: strings.TrimSpace(f.Description),
		Image:       f.Image,
	})
	if err != nil {
		return upstream.Category{}, fmt.Errorf("update category: %w", err)
	}
	s.changed(ctx, "category", "update", id)
	return c, nil
}

// DeleteCategory removes a category.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if err := s.backend.DeleteCategory(ctx, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	s.changed(ctx, "category", "delete", id)
	return nil
}

// ListDiscounts returns discounts for an optional owner.
func (s *Service) ListDiscounts(ctx context.Context, f upstream.DiscountFilter) ([]DiscountRecord, error) {
	rows, err := s.backend.ListDiscounts(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list discounts: %w", err)
	}
	now := s.now()
	out := make([]DiscountRecord, 0, len(rows))
	for _, d := range rows {
		out = append(out, s.discountRecord(d, now))
	}
	return out, nil
}

// CreateDiscount validates and creates a discount.
func (s *Service) CreateDiscount(ctx context.Context, f DiscountForm) (DiscountRecord, error) {
	if err := f.Check(); err != nil {
		return DiscountRecord{}, err
	}
	d, err := s.backend.CreateDiscount(ctx, f.input())
	if err != nil {
		return DiscountRecord{}, fmt.Errorf("create discount: %w", err)
	}
	s.changed(ctx, "discount", "create", d.ID.String())
	return s.discountRecord(d, s.now()), nil
}

// UpdateDiscount validates and replaces a discount.
func (s *Service) UpdateDiscount(ctx context.Context, id string, f DiscountForm) (DiscountRecord, error) {
	if err := f.Check(); err != nil {
		return DiscountRecord{}, err
	}
	d, err := s.backend.UpdateDiscount(ctx, id, f.input())
	if err != nil {
		return DiscountRecord{}, fmt.Errorf("update discount: %w", err)
	}
	s.changed(ctx, "discount", "update", id)
	return s.discountRecord(d, s.now()), nil
}

// DeleteDiscount removes a discount.
func (s *Service) DeleteDiscount(ctx context.Context, id string) error {
	if err := s.backend.DeleteDiscount(ctx, id); err != nil {
		return fmt.Errorf("delete discount: %w", err)
	}
	s.changed(ctx, "discount", "delete", id)
	return nil
}

// changed drops the storefront snapshots and schedules a rebuild. Failures
// are logged; the mutation itself already succeeded.
func (s *Service) changed(ctx context.Context, entity, action, id string) {
	if err := s.catalog.Invalidate(ctx); err != nil {
		s.logger.Warn().Err(err).Str("entity", entity).Str("id", id).Msg("catalog_invalidate_failed")
	}
	if s.warmer != nil {
		if err := s.warmer.EnqueueCatalogWarm(ctx); err != nil {
			s.logger.Warn().Err(err).Str("entity", entity).Str("id", id).Msg("catalog_warm_enqueue_failed")
		}
	}
	s.logger.Info().Str("entity", entity).Str("action", action).Str("id", id).Msg("catalog_changed")
}
