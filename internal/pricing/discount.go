package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies which scope produced the winning discount.
type Source string

const (
	// SourceNone means no discount was active.
	SourceNone Source = "none"
	// SourceProduct means a product-scoped discount won.
	SourceProduct Source = "product"
	// SourceCategory means a category-scoped discount won.
	SourceCategory Source = "category"
)

var hundred = decimal.NewFromInt(100)

// Discount is a percentage reduction active inside an inclusive time window.
type Discount struct {
	Percent decimal.Decimal
	Start   time.Time
	End     time.Time
}

// ActiveAt reports whether now falls inside [Start, End].
func (d Discount) ActiveAt(now time.Time) bool {
	return !now.Before(d.Start) && !now.After(d.End)
}

// Product is the subset of a catalog product needed to resolve its price.
type Product struct {
	Price             decimal.Decimal
	ProductDiscounts  []Discount
	CategoryDiscounts []Discount
}

// Resolution is the outcome of resolving a product's effective discount.
type Resolution struct {
	FinalPrice decimal.Decimal `json:"finalPrice"`
	Percent    decimal.Decimal `json:"percent"`
	Source     Source          `json:"source"`
}

// Discounted reports whether a non-zero discount was applied.
func (r Resolution) Discounted() bool {
	return r.Source != SourceNone && !r.Percent.IsZero()
}

// Resolve picks the largest active discount among the product and category
// scopes and applies it to the product price. Product discounts are evaluated
// first and only a strictly larger category discount replaces them, so product
// discounts win ties. Percent values are not clamped.
func Resolve(p Product, now time.Time) Resolution {
	best := decimal.Zero
	source := SourceNone
	for _, d := range p.ProductDiscounts {
		if d.ActiveAt(now) && d.Percent.GreaterThan(best) {
			best = d.Percent
			source = SourceProduct
		}
	}
	for _, d := range p.CategoryDiscounts {
		if d.ActiveAt(now) && d.Percent.GreaterThan(best) {
			best = d.Percent
			source = SourceCategory
		}
	}
	return Resolution{
		FinalPrice: ApplyPercent(p.Price, best),
		Percent:    best,
		Source:     source,
	}
}

// ApplyPercent returns amount reduced by percent. The division by one hundred
// is a decimal shift so the result stays exact.
func ApplyPercent(amount, percent decimal.Decimal) decimal.Decimal {
	if percent.IsZero() {
		return amount
	}
	return amount.Mul(hundred.Sub(percent)).Shift(-2)
}

// Resolver resolves prices against an injected clock.
type Resolver struct {
	Now func() time.Time
}

// NewResolver returns a Resolver using the wall clock.
func NewResolver() Resolver {
	return Resolver{Now: time.Now}
}

// Clock returns the resolver's current time.
func (r Resolver) Clock() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Resolve applies Resolve at the resolver's current time.
func (r Resolver) Resolve(p Product) Resolution {
	return Resolve(p, r.Clock())
}

// ResolveAll resolves every product against the same instant so a single
// listing never mixes two clock readings.
func (r Resolver) ResolveAll(products []Product) []Resolution {
	now := r.Clock()
	out := make([]Resolution, len(products))
	for i, p := range products {
		out[i] = Resolve(p, now)
	}
	return out
}
