package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-apparel/internal/auth"
	"github.com/noah-isme/toko-apparel/internal/pricing"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want %s got %s", want, got)
}

const productJSON = `{
  "id": 7,
  "name": "Linen Shirt",
  "price": 1000,
  "discount_product": [
    {"id": 1, "percent_discount": 15, "start_date_discount": "2025-03-01", "end_date_discount": "2025-03-31"}
  ],
  "discount_category": [
    {"id": 2, "percent_discount": 30, "start_date_discount": "2025-01-01", "end_date_discount": "2025-01-31"}
  ]
}`

func TestPriceCommandResolvesActiveDiscount(t *testing.T) {
	path := writeFile(t, "product.json", productJSON)
	out, err := run(t, "", "price", "--file", path, "--at", "2025-03-31T23:00:00Z")
	require.NoError(t, err)

	var got priceOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, "7", got.ProductID)
	requireDecimal(t, "850", got.FinalPrice)
	requireDecimal(t, "15", got.Percent)
	require.Equal(t, pricing.SourceProduct, got.Source)
}

func TestPriceCommandAllExpiredFromStdin(t *testing.T) {
	out, err := run(t, productJSON, "price", "--at", "2025-06-01T00:00:00Z")
	require.NoError(t, err)

	var got priceOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	requireDecimal(t, "1000", got.FinalPrice)
	requireDecimal(t, "0", got.Percent)
	require.Equal(t, pricing.SourceNone, got.Source)
}

func TestPriceCommandRejectsBadInstant(t *testing.T) {
	_, err := run(t, productJSON, "price", "--at", "yesterday")
	require.ErrorContains(t, err, "--at")
}

func TestOrderTotalCommand(t *testing.T) {
	lines := `[
  {"product_id": 1, "amount": 2, "unit_price": 500, "discount": 10},
  {"product_id": 2, "amount": 1, "unit_price": 300}
]`
	out, err := run(t, lines, "order-total")
	require.NoError(t, err)

	var got orderTotalOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Lines, 2)
	requireDecimal(t, "900", got.Lines[0].LineTotal)
	requireDecimal(t, "300", got.Lines[1].LineTotal)
	requireDecimal(t, "1300", got.Summary.Subtotal)
	requireDecimal(t, "100", got.Summary.Discount)
	requireDecimal(t, "1200", got.Summary.Total)
	require.EqualValues(t, 3, got.Summary.ItemCount)
}

func TestOrderTotalCommandEmpty(t *testing.T) {
	out, err := run(t, `[]`, "order-total")
	require.NoError(t, err)

	var got orderTotalOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Empty(t, got.Lines)
	requireDecimal(t, "0", got.Summary.Total)
}

func TestTokenCommandIssuesVerifiableToken(t *testing.T) {
	out, err := run(t, "", "token", "--secret", "s3cret", "--subject", "u-1", "--role", "admin", "--ttl", "5m")
	require.NoError(t, err)

	v, err := auth.NewVerifier(auth.Config{Secret: "s3cret"})
	require.NoError(t, err)
	claims, err := v.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	require.Equal(t, "u-1", claims.Subject)
	require.True(t, claims.HasRole("admin"))
}

func TestTokenCommandRequiresSubject(t *testing.T) {
	_, err := run(t, "", "token", "--secret", "s3cret")
	require.ErrorContains(t, err, "--subject")
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := run(t, "", "migrate", "version")
	require.ErrorContains(t, err, "DATABASE_URL")
}

func TestPriceOutputTimestamp(t *testing.T) {
	out, err := run(t, productJSON, "price", "--at", "2025-03-10T09:00:00Z")
	require.NoError(t, err)
	var got priceOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.True(t, got.At.Equal(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)))
}

type closerFunc func() (error, error)

func (f closerFunc) Close() (error, error) { return f() }

func TestCloseMigratorLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	closeMigrator(closerFunc(func() (error, error) { return nil, nil }), logger)
	require.Zero(t, buf.Len())

	closeMigrator(closerFunc(func() (error, error) { return nil, errors.New("conn reset") }), logger)
	require.Contains(t, buf.String(), `"level":"warn"`)
	require.Contains(t, buf.String(), `"database":"conn reset"`)
	require.NotContains(t, buf.String(), `"source"`)
}
