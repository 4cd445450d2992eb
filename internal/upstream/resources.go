package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
)

func seg(id string) string { return url.PathEscape(strings.TrimSpace(id)) }

// ListCategories returns every category.
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	return list[Category](ctx, c, "categories", "/categories", nil)
}

// GetCategory returns one category.
func (c *Client) GetCategory(ctx context.Context, id string) (Category, error) {
	return one[Category](ctx, c, http.MethodGet, "categories", "/categories/"+seg(id), nil)
}

// CreateCategory creates a category.
func (c *Client) CreateCategory(ctx context.Context, in CategoryInput) (Category, error) {
	return one[Category](ctx, c, http.MethodPost, "categories", "/categories", in)
}

// UpdateCategory replaces a category.
func (c *Client) UpdateCategory(ctx context.Context, id string, in CategoryInput) (Category, error) {
	return one[Category](ctx, c, http.MethodPut, "categories", "/categories/"+seg(id), in)
}

// DeleteCategory removes a category.
func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	return c.remove(ctx, "categories", "/categories/"+seg(id))
}

// ListProducts returns the full product snapshot including discounts.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	return list[Product](ctx, c, "products", "/products", nil)
}

// GetProduct returns one product with its discounts.
func (c *Client) GetProduct(ctx context.Context, id string) (Product, error) {
	return one[Product](ctx, c, http.MethodGet, "products", "/products/"+seg(id), nil)
}

// CreateProduct creates a product.
func (c *Client) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	return one[Product](ctx, c, http.MethodPost, "products", "/products", in)
}

// UpdateProduct replaces a product.
func (c *Client) UpdateProduct(ctx context.Context, id string, in ProductInput) (Product, error) {
	return one[Product](ctx, c, http.MethodPut, "products", "/products/"+seg(id), in)
}

// DeleteProduct removes a product.
func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	return c.remove(ctx, "products", "/products/"+seg(id))
}

// Upload describes a file forwarded to the backend image store.
type Upload struct {
	Field       string
	Filename    string
	ContentType string
	Body        io.Reader
}

// UploadProductImage forwards an image as multipart form data and returns the updated product.
func (c *Client) UploadProductImage(ctx context.Context, productID string, up Upload) (Product, error) {
	field := up.Field
	if field == "" {
		field = "image"
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, up.Filename))
	ct := up.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	header.Set("Content-Type", ct)
	part, err := mw.CreatePart(header)
	if err != nil {
		return Product{}, fmt.Errorf("upstream: create part: %w", err)
	}
	if _, err := io.Copy(part, up.Body); err != nil {
		return Product{}, fmt.Errorf("upstream: copy image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Product{}, fmt.Errorf("upstream: close multipart: %w", err)
	}
	body, err := c.send(ctx, request{
		method:      http.MethodPost,
		resource:    "images",
		path:        "/products/" + seg(productID) + "/images",
		body:        &buf,
		contentType: mw.FormDataContentType(),
	})
	if err != nil {
		return Product{}, err
	}
	out, err := decodeOne[Product](body)
	if err != nil {
		return Product{}, fmt.Errorf("upstream: decode images: %w", err)
	}
	return out, nil
}

// DiscountFilter narrows ListDiscounts to one owner.
type DiscountFilter struct {
	ProductID  string
	CategoryID string
}

// ListDiscounts returns discounts, optionally for a single owner.
func (c *Client) ListDiscounts(ctx context.Context, f DiscountFilter) ([]Discount, error) {
	q := url.Values{}
	if f.ProductID != "" {
		q.Set("product_id", f.ProductID)
	}
	if f.CategoryID != "" {
		q.Set("category_id", f.CategoryID)
	}
	return list[Discount](ctx, c, "discounts", "/discounts", q)
}

// CreateDiscount creates a discount.
func (c *Client) CreateDiscount(ctx context.Context, in DiscountInput) (Discount, error) {
	return one[Discount](ctx, c, http.MethodPost, "discounts", "/discounts", in)
}

// UpdateDiscount replaces a discount.
func (c *Client) UpdateDiscount(ctx context.Context, id string, in DiscountInput) (Discount, error) {
	return one[Discount](ctx, c, http.MethodPut, "discounts", "/discounts/"+seg(id), in)
}

// DeleteDiscount removes a discount.
func (c *Client) DeleteDiscount(ctx context.Context, id string) error {
	return c.remove(ctx, "discounts", "/discounts/"+seg(id))
}

// OrderFilter narrows ListOrders.
type OrderFilter struct {
	UserID string
	Status string
}

// ListOrders returns orders visible to the caller.
func (c *Client) ListOrders(ctx context.Context, f OrderFilter) ([]Order, error) {
	q := url.Values{}
	if f.UserID != "" {
		q.Set("user_id", f.UserID)
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	return list[Order](ctx, c, "orders", "/orders", q)
}

// GetOrder returns one order.
func (c *Client) GetOrder(ctx context.Context, id string) (Order, error) {
	return one[Order](ctx, c, http.MethodGet, "orders", "/orders/"+seg(id), nil)
}

// CreateOrder places an order.
func (c *Client) CreateOrder(ctx context.Context, in OrderInput) (Order, error) {
	return one[Order](ctx, c, http.MethodPost, "orders", "/orders", in)
}

// UpdateOrderStatus moves an order to a new status.
func (c *Client) UpdateOrderStatus(ctx context.Context, id, status string) (Order, error) {
	return one[Order](ctx, c, http.MethodPatch, "orders", "/orders/"+seg(id)+"/status", map[string]string{"status": status})
}

// UserFilter narrows ListUsers.
type UserFilter struct {
	Query string
	Role  string
}

// ListUsers returns user accounts.
func (c *Client) ListUsers(ctx context.Context, f UserFilter) ([]User, error) {
	q := url.Values{}
	if f.Query != "" {
		q.Set("q", f.Query)
	}
	if f.Role != "" {
		q.Set("role", f.Role)
	}
	return list[User](ctx, c, "users", "/users", q)
}

// GetUser returns one user.
func (c *Client) GetUser(ctx context.Context, id string) (User, error) {
	return one[User](ctx, c, http.MethodGet, "users", "/users/"+seg(id), nil)
}

// UpdateUserRole changes a user's role.
func (c *Client) UpdateUserRole(ctx context.Context, id, role string) (User, error) {
	return one[User](ctx, c, http.MethodPatch, "users", "/users/"+seg(id)+"/role", map[string]string{"role": role})
}

// DeleteUser removes a user.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.remove(ctx, "users", "/users/"+seg(id))
}

// Me returns the profile of the caller identified by the context token.
func (c *Client) Me(ctx context.Context) (User, error) {
	return one[User](ctx, c, http.MethodGet, "users", "/me", nil)
}

// ListContent returns the sections of one page, or all sections when page is empty.
func (c *Client) ListContent(ctx context.Context, page string) ([]PageContent, error) {
	q := url.Values{}
	if page != "" {
		q.Set("page", page)
	}
	return list[PageContent](ctx, c, "content", "/content", q)
}

// CreateContent creates a page section.
func (c *Client) CreateContent(ctx context.Context, in ContentInput) (PageContent, error) {
	return one[PageContent](ctx, c, http.MethodPost, "content", "/content", in)
}

// UpdateContent replaces a page section.
func (c *Client) UpdateContent(ctx context.Context, id string, in ContentInput) (PageContent, error) {
	return one[PageContent](ctx, c, http.MethodPut, "content", "/content/"+seg(id), in)
}

// DeleteContent removes a page section.
func (c *Client) DeleteContent(ctx context.Context, id string) error {
	return c.remove(ctx, "content", "/content/"+seg(id))
}
