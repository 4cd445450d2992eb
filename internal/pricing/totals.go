package pricing

import "github.com/shopspring/decimal"

// LineItem describes one order line. UnitPrice is the price fixed when the
// line was entered; DiscountPercent is an extra per-line reduction applied on
// top of it and defaults to zero.
type LineItem struct {
	Quantity        int64
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
}

// Gross returns unit price times quantity before the line discount.
func (li LineItem) Gross() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(li.Quantity))
}

// LineTotal returns the line amount net of its discount.
func LineTotal(li LineItem) decimal.Decimal {
	return ApplyPercent(li.Gross(), li.DiscountPercent)
}

// OrderTotal sums LineTotal over items. An empty order totals zero.
func OrderTotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(LineTotal(it))
	}
	return total
}

// Summary aggregates the figures shown on order dashboards.
type Summary struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	Discount  decimal.Decimal `json:"discount"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int64           `json:"itemCount"`
}

// Summarize computes subtotal, line discounts and total for items.
func Summarize(items []LineItem) Summary {
	subtotal := decimal.Zero
	var count int64
	for _, it := range items {
		subtotal = subtotal.Add(it.Gross())
		count += it.Quantity
	}
	total := OrderTotal(items)
	return Summary{
		Subtotal:  subtotal,
		Discount:  subtotal.Sub(total),
		Total:     total,
		ItemCount: count,
	}
}

// Add combines two summaries.
func (s Summary) Add(o Summary) Summary {
	return Summary{
		Subtotal:  s.Subtotal.Add(o.Subtotal),
		Discount:  s.Discount.Add(o.Discount),
		Total:     s.Total.Add(o.Total),
		ItemCount: s.ItemCount + o.ItemCount,
	}
}

// Rounded returns a copy with every amount rounded for display.
func (s Summary) Rounded(scale int32) Summary {
	return Summary{
		Subtotal:  Display(s.Subtotal, scale),
		Discount:  Display(s.Discount, scale),
		Total:     Display(s.Total, scale),
		ItemCount: s.ItemCount,
	}
}
