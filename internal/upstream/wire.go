package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-apparel/internal/pricing"
)

// ID accepts identifiers the backend sends either as strings or numbers.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the identifier as text.
func (id ID) String() string { return string(id) }

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Time decodes the timestamp formats the backend emits. Date-only values are
// remembered so an inclusive end date can cover the whole day.
type Time struct {
	time.Time
	dateOnly bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Time) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		if string(bytes.TrimSpace(data)) == "null" {
			*t = Time{}
			return nil
		}
		return fmt.Errorf("time: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*t = Time{}
		return nil
	}
	if parsed, err := time.Parse("2006-01-02", s); err == nil {
		*t = Time{Time: parsed, dateOnly: true}
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = Time{Time: parsed}
			return nil
		}
	}
	return fmt.Errorf("time: unsupported format %q", s)
}

// MarshalJSON implements json.Marshaler.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	if t.dateOnly {
		return json.Marshal(t.Format("2006-01-02"))
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// NewTime wraps a time value.
func NewTime(v time.Time) Time { return Time{Time: v} }

// EndOfWindow returns the last instant covered by t when used as an inclusive
// end date.
func (t Time) EndOfWindow() time.Time {
	if t.dateOnly {
		return t.Time.Add(24*time.Hour - time.Nanosecond)
	}
	return t.Time
}

// Discount is a time-bounded percentage reduction attached to a product or a category.
type Discount struct {
	ID         ID              `json:"id"`
	Percent    decimal.Decimal `json:"percent_discount"`
	Start      Time            `json:"start_date_discount"`
	End        Time            `json:"end_date_discount"`
	ProductID  ID              `json:"product_id,omitempty"`
	CategoryID ID              `json:"category_id,omitempty"`
}

// Pricing converts the record to the pricing rule input.
func (d Discount) Pricing() pricing.Discount {
	return pricing.Discount{Percent: d.Percent, Start: d.Start.Time, End: d.End.EndOfWindow()}
}

// Product is the backend product record.
type Product struct {
	ID                ID              `json:"id"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	Price             decimal.Decimal `json:"price"`
	CategoryID        ID              `json:"category_id,omitempty"`
	Images            []string        `json:"images"`
	Sizes             []string        `json:"sizes"`
	Colors            []string        `json:"colors"`
	Stock             int64           `json:"stock"`
	Sold              int64           `json:"sold"`
	CreatedAt         Time            `json:"created_at"`
	ProductDiscounts  []Discount      `json:"discount_product"`
	CategoryDiscounts []Discount      `json:"discount_category"`
}

// Pricing converts the product to the pricing rule input.
func (p Product) Pricing() pricing.Product {
	out := pricing.Product{Price: p.Price}
	for _, d := range p.ProductDiscounts {
		out.ProductDiscounts = append(out.ProductDiscounts, d.Pricing())
	}
	for _, d := range p.CategoryDiscounts {
		out.CategoryDiscounts = append(out.CategoryDiscounts, d.Pricing())
	}
	return out
}

// OrderLine is one product line inside an order.
type OrderLine struct {
	ProductID   ID               `json:"product_id"`
	ProductName string           `json:"product_name"`
	Size        string           `json:"size,omitempty"`
	Amount      int64            `json:"amount"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	Discount    *decimal.Decimal `json:"discount,omitempty"`
}

// LineItem converts the line to the pricing rule input.
func (l OrderLine) LineItem() pricing.LineItem {
	li := pricing.LineItem{Quantity: l.Amount, UnitPrice: l.UnitPrice}
	if l.Discount != nil {
		li.DiscountPercent = *l.Discount
	}
	return li
}

// Order is the backend order record.
type Order struct {
	ID              ID          `json:"id"`
	UserID          ID          `json:"user_id"`
	Status          string      `json:"status"`
	CreatedAt       Time        `json:"created_at"`
	ShippingAddress string      `json:"shipping_address"`
	Note            string      `json:"note"`
	Items           []OrderLine `json:"items"`
}

// LineItems converts every line of the order.
func (o Order) LineItems() []pricing.LineItem {
	out := make([]pricing.LineItem, 0, len(o.Items))
	for _, l := range o.Items {
		out = append(out, l.LineItem())
	}
	return out
}

// Category groups products and may carry category-wide discounts.
type Category struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// User is an account known to the backend.
type User struct {
	ID        ID     `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt Time   `json:"created_at"`
}

// PageContent is one editable section of a storefront page.
type PageContent struct {
	ID       ID     `json:"id"`
	Page     string `json:"page"`
	Section  string `json:"section"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	ImageURL string `json:"image_url"`
	Position int    `json:"position"`
}

// ProductInput is the create/update payload for products.
type ProductInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	CategoryID  string          `json:"category_id,omitempty"`
	Images      []string        `json:"images,omitempty"`
	Sizes       []string        `json:"sizes,omitempty"`
	Colors      []string        `json:"colors,omitempty"`
	Stock       int64           `json:"stock"`
}

// CategoryInput is the create/update payload for categories.
type CategoryInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image,omitempty"`
}

// DiscountInput is the create/update payload for discounts.
type DiscountInput struct {
	Percent    decimal.Decimal `json:"percent_discount"`
	Start      Time            `json:"start_date_discount"`
	End        Time            `json:"end_date_discount"`
	ProductID  string          `json:"product_id,omitempty"`
	CategoryID string          `json:"category_id,omitempty"`
}

// OrderInput is the payload used to place an order.
type OrderInput struct {
	UserID          string      `json:"user_id,omitempty"`
	Status          string      `json:"status,omitempty"`
	ShippingAddress string      `json:"shipping_address"`
	Note            string      `json:"note,omitempty"`
	Items           []OrderLine `json:"items"`
}

// ContentInput is the create/update payload for page content.
type ContentInput struct {
	Page     string `json:"page"`
	Section  string `json:"section"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	ImageURL string `json:"image_url,omitempty"`
	Position int    `json:"position"`
}

// decodeList accepts either a bare JSON array or an object wrapping it in "data".
func decodeList[T any](data []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return []T{}, nil
	}
	var out []T
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var env struct {
		Data []T `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return []T{}, nil
	}
	return env.Data, nil
}

// decodeOne accepts either a bare object or one wrapped in "data".
func decodeOne[T any](data []byte) (T, error) {
	var out T
	trimmed := bytes.TrimSpace(data)
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err == nil {
		if inner, ok := probe["data"]; ok {
			if err := json.Unmarshal(inner, &out); err != nil {
				return out, err
			}
			return out, nil
		}
	}
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return out, err
	}
	return out, nil
}
