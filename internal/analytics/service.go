package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-apparel/internal/cache"
	"github.com/noah-isme/toko-apparel/internal/common"
	"github.com/noah-isme/toko-apparel/internal/order"
	"github.com/noah-isme/toko-apparel/internal/pricing"
	"github.com/noah-isme/toko-apparel/internal/upstream"
)

// OrderSource lists orders from the backend.
type OrderSource interface {
	ListOrders(ctx context.Context, f upstream.OrderFilter) ([]upstream.Order, error)
}

// Service aggregates order history into dashboard figures. Results are cached
// per range.
type Service struct {
	Orders       OrderSource
	Cache        *cache.Cache
	DefaultRange int
	MaxRangeDays int
	Scale        int32
	Now          func() time.Time
}

// Overview summarises orders placed inside a range.
type Overview struct {
	From              time.Time       `json:"from"`
	To                time.Time       `json:"to"`
	Orders            int             `json:"orders"`
	CountsByStatus    map[string]int  `json:"countsByStatus"`
	ItemsSold         int64           `json:"itemsSold"`
	Revenue           decimal.Decimal `json:"revenue"`
	Discounts         decimal.Decimal `json:"discounts"`
	AverageOrderValue decimal.Decimal `json:"averageOrderValue"`
}

// DayRow is the revenue of a single UTC day.
type DayRow struct {
	Day     time.Time       `json:"day"`
	Orders  int             `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

// TopProduct is a product ranked by quantity sold.
type TopProduct struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int64           `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// DefaultMaxRangeDays bounds a query range when MaxRangeDays is unset.
const DefaultMaxRangeDays = 366

func (s *Service) maxRangeDays() int {
	if s == nil || s.MaxRangeDays <= 0 {
		return DefaultMaxRangeDays
	}
	return s.MaxRangeDays
}

// CheckRange rejects empty, inverted and over-long ranges with a 400.
func (s *Service) CheckRange(from, to time.Time) error {
	if !from.Before(to) {
		return common.BadRequest("from must be before to")
	}
	if maxDays := s.maxRangeDays(); to.Sub(from) > time.Duration(maxDays)*24*time.Hour {
		return common.BadRequest(fmt.Sprintf("range must not exceed %d days", maxDays))
	}
	return nil
}

func (s *Service) scale() int32 {
	if s.Scale < 0 {
		return pricing.DefaultScale
	}
	return s.Scale
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts))
	for _, part := range parts {
		switch v := part.(type) {
		case time.Time:
			formatted = append(formatted, v.UTC().Format(time.RFC3339))
		default:
			formatted = append(formatted, fmt.Sprint(v))
		}
	}
	return cache.Key(formatted...)
}

// ordersIn returns orders created in [from, to).
func (s *Service) ordersIn(ctx context.Context, from, to time.Time) ([]upstream.Order, error) {
	if s == nil || s.Orders == nil {
		return nil, errors.New("analytics service not configured")
	}
	rows, err := s.Orders.ListOrders(ctx, upstream.OrderFilter{})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	out := rows[:0]
	for _, o := range rows {
		if o.CreatedAt.Before(from) || !o.CreatedAt.Before(to) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func counted(o upstream.Order) bool {
	return order.NormalizeStatus(o.Status) != order.StatusCanceled
}

// Overview returns order counts per status, revenue and average order value.
// Canceled orders are counted but contribute no revenue.
func (s *Service) Overview(ctx context.Context, from, to time.Time) (Overview, error) {
	if err := s.CheckRange(from, to); err != nil {
		return Overview{}, err
	}
	key := cacheKey("an", "overview", from, to)
	var cached Overview
	if ok, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	orders, err := s.ordersIn(ctx, from, to)
	if err != nil {
		return Overview{}, err
	}
	out := Overview{From: from, To: to, CountsByStatus: map[string]int{}}
	var summary pricing.Summary
	revenueOrders := 0
	for _, o := range orders {
		out.Orders++
		out.CountsByStatus[order.NormalizeStatus(o.Status)]++
		if !counted(o) {
			continue
		}
		revenueOrders++
		summary = summary.Add(pricing.Summarize(o.LineItems()))
	}
	out.ItemsSold = summary.ItemCount
	out.Revenue = pricing.Display(summary.Total, s.scale())
	out.Discounts = pricing.Display(summary.Discount, s.scale())
	out.AverageOrderValue = decimal.Zero
	if revenueOrders > 0 {
		out.AverageOrderValue = pricing.Display(summary.Total.Div(decimal.NewFromInt(int64(revenueOrders))), s.scale())
	}
	_ = s.Cache.SetJSON(ctx, key, out)
	return out, nil
}

// SalesRange returns one row per UTC day between from (inclusive) and to (exclusive).
func (s *Service) SalesRange(ctx context.Context, from, to time.Time) ([]DayRow, error) {
	if err := s.CheckRange(from, to); err != nil {
		return nil, err
	}
	key := cacheKey("an", "sales", from, to)
	var cached []DayRow
	if ok, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	orders, err := s.ordersIn(ctx, from, to)
	if err != nil {
		return nil, err
	}
	byDay := map[time.Time]*DayRow{}
	rows := []DayRow{}
	for d := truncateDay(from); d.Before(to); d = d.AddDate(0, 0, 1) {
		rows = append(rows, DayRow{Day: d, Revenue: decimal.Zero})
	}
	for i := range rows {
		byDay[rows[i].Day] = &rows[i]
	}
	for _, o := range orders {
		if !counted(o) {
			continue
		}
		row, ok := byDay[truncateDay(o.CreatedAt.Time)]
		if !ok {
			continue
		}
		row.Orders++
		row.Revenue = row.Revenue.Add(pricing.OrderTotal(o.LineItems()))
	}
	for i := range rows {
		rows[i].Revenue = pricing.Display(rows[i].Revenue, s.scale())
	}
	_ = s.Cache.SetJSON(ctx, key, rows)
	return rows, nil
}

// TopProducts ranks products by quantity sold in non-canceled orders.
func (s *Service) TopProducts(ctx context.Context, from, to time.Time, limit, offset int) ([]TopProduct, error) {
	if err := s.CheckRange(from, to); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	key := cacheKey("an", "top", from, to, limit, offset)
	var cached []TopProduct
	if ok, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	orders, err := s.ordersIn(ctx, from, to)
	if err != nil {
		return nil, err
	}
	agg := map[string]*TopProduct{}
	for _, o := range orders {
		if !counted(o) {
			continue
		}
		for _, l := range o.Items {
			id := l.ProductID.String()
			row, ok := agg[id]
			if !ok {
				row = &TopProduct{ProductID: id, Revenue: decimal.Zero}
				agg[id] = row
			}
			if row.ProductName == "" {
				row.ProductName = strings.TrimSpace(l.ProductName)
			}
			row.Quantity += l.Amount
			row.Revenue = row.Revenue.Add(pricing.LineTotal(l.LineItem()))
		}
	}
	ranked := make([]TopProduct, 0, len(agg))
	for _, row := range agg {
		row.Revenue = pricing.Display(row.Revenue, s.scale())
		ranked = append(ranked, *row)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Quantity != ranked[j].Quantity {
			return ranked[i].Quantity > ranked[j].Quantity
		}
		if !ranked[i].Revenue.Equal(ranked[j].Revenue) {
			return ranked[i].Revenue.GreaterThan(ranked[j].Revenue)
		}
		return ranked[i].ProductID < ranked[j].ProductID
	})
	if offset >= len(ranked) {
		ranked = ranked[:0]
	} else {
		ranked = ranked[offset:]
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	_ = s.Cache.SetJSON(ctx, key, ranked)
	return ranked, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
