package cli

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/noah-isme/toko-apparel/internal/pricing"
	"github.com/noah-isme/toko-apparel/internal/upstream"
)

type priceOutput struct {
	ProductID  string          `json:"productId,omitempty"`
	At         time.Time       `json:"at"`
	Price      decimal.Decimal `json:"price"`
	FinalPrice decimal.Decimal `json:"finalPrice"`
	Percent    decimal.Decimal `json:"discountPercent"`
	Source     pricing.Source  `json:"discountSource"`
}

func newPriceCommand() *cobra.Command {
	var (
		file  string
		at    string
		scale int32
	)
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Resolve the effective discount of a backend product record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now().UTC()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				now = parsed
			}
			var product upstream.Product
			if err := readInput(cmd, file, &product); err != nil {
				return err
			}
			res := pricing.Resolve(product.Pricing(), now).Rounded(scale)
			return printJSON(cmd, priceOutput{
				ProductID:  string(product.ID),
				At:         now,
				Price:      pricing.Display(product.Price, scale),
				FinalPrice: res.FinalPrice,
				Percent:    res.Percent,
				Source:     res.Source,
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "product JSON file (- for stdin)")
	cmd.Flags().StringVar(&at, "at", "", "evaluation instant in RFC3339 (default now)")
	cmd.Flags().Int32Var(&scale, "scale", pricing.DefaultScale, "display decimal places")
	return cmd
}

type lineOutput struct {
	ProductID string          `json:"productId,omitempty"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Discount  decimal.Decimal `json:"discountPercent"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

type orderTotalOutput struct {
	Lines   []lineOutput    `json:"lines"`
	Summary pricing.Summary `json:"summary"`
}

func newOrderTotalCommand() *cobra.Command {
	var (
		file  string
		scale int32
	)
	cmd := &cobra.Command{
		Use:   "order-total",
		Short: "Compute line totals and the order summary for backend order lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var lines []upstream.OrderLine
			if err := readInput(cmd, file, &lines); err != nil {
				return err
			}
			out := orderTotalOutput{Lines: make([]lineOutput, 0, len(lines))}
			items := make([]pricing.LineItem, 0, len(lines))
			for _, l := range lines {
				li := l.LineItem()
				items = append(items, li)
				out.Lines = append(out.Lines, lineOutput{
					ProductID: string(l.ProductID),
					Quantity:  li.Quantity,
					UnitPrice: li.UnitPrice,
					Discount:  li.DiscountPercent,
					LineTotal: pricing.Display(pricing.LineTotal(li), scale),
				})
			}
			out.Summary = pricing.Summarize(items).Rounded(scale)
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "order lines JSON file (- for stdin)")
	cmd.Flags().Int32Var(&scale, "scale", pricing.DefaultScale, "display decimal places")
	return cmd
}
