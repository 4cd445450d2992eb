package pricing

import "github.com/shopspring/decimal"

// DefaultScale is the number of fractional digits used when presenting money.
const DefaultScale int32 = 2

// Display rounds amount half away from zero at scale. A negative scale falls
// back to DefaultScale.
func Display(amount decimal.Decimal, scale int32) decimal.Decimal {
	if scale < 0 {
		scale = DefaultScale
	}
	return amount.Round(scale)
}

// Rounded returns a copy of the resolution with money rounded for display.
func (r Resolution) Rounded(scale int32) Resolution {
	r.FinalPrice = Display(r.FinalPrice, scale)
	return r
}
