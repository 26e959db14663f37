package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crudexec/construction-sub006/ledger"
)

func TestVendorPriceStats_UpsertOnPurchase_CreatesThenAccumulates(t *testing.T) {
	// GIVEN: No price row for (item, vendor)
	// WHEN: Two purchases are recorded
	// THEN: The first creates the row seeded with its unit price; the
	//       second adds to the accumulators without touching the price
	l, _ := newTestLedger(t)
	ctx := context.Background()
	day1 := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 7)

	first, err := l.Prices.UpsertOnPurchase(ctx, pm, "rebar", "vendor-1", dec("10"), dec("4"), day1)
	require.NoError(t, err)
	assertDec(t, "4", first.UnitPrice)
	assertDec(t, "10", first.TotalPurchasedQty)
	assertDec(t, "40", first.TotalPurchasedValue)

	second, err := l.Prices.UpsertOnPurchase(ctx, pm, "rebar", "vendor-1", dec("5"), dec("6"), day2)
	require.NoError(t, err)
	assertDec(t, "4", second.UnitPrice)
	assertDec(t, "15", second.TotalPurchasedQty)
	assertDec(t, "70", second.TotalPurchasedValue)
	require.NotNil(t, second.LastPurchaseDate)
	assert.True(t, second.LastPurchaseDate.Equal(day2))
	assertDec(t, "4.6667", second.AveragePurchasePrice())
}

func TestVendorPriceStats_SetPreferred_Exclusive(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	for _, v := range []ledger.VendorID{"vendor-1", "vendor-2", "vendor-3"} {
		_, err := l.Prices.SetPrice(ctx, pm, "tile", v, ledger.SetPriceInput{UnitPrice: decp("3")})
		require.NoError(t, err)
	}

	_, err := l.Prices.SetPreferred(ctx, pm, "tile", "vendor-1")
	require.NoError(t, err)
	_, err = l.Prices.SetPreferred(ctx, pm, "tile", "vendor-3")
	require.NoError(t, err)

	rows, err := l.Prices.ListPrices(ctx, pm, "tile")
	require.NoError(t, err)
	preferred := 0
	for _, r := range rows {
		if r.IsPreferred {
			preferred++
			assert.Equal(t, ledger.VendorID("vendor-3"), r.VendorID)
		}
	}
	assert.Equal(t, 1, preferred)

	require.NoError(t, l.Prices.ClearPreferred(ctx, pm, "tile"))
	rows, _ = l.Prices.ListPrices(ctx, pm, "tile")
	for _, r := range rows {
		assert.False(t, r.IsPreferred)
	}
}

func TestVendorPriceStats_SetPreferred_NoPriceRow_NotFound(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.Prices.SetPreferred(context.Background(), pm, "tile", "vendor-9")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestVendorPriceStats_SetPrice_KeepsAccumulators(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	_, err := l.Prices.UpsertOnPurchase(ctx, pm, "tile", "vendor-1", dec("2"), dec("5"), time.Now())
	require.NoError(t, err)

	lead := 3
	p, err := l.Prices.SetPrice(ctx, pm, "tile", "vendor-1", ledger.SetPriceInput{UnitPrice: decp("5.5"), LeadTimeDays: &lead})
	require.NoError(t, err)
	assertDec(t, "5.5", p.UnitPrice)
	assertDec(t, "2", p.TotalPurchasedQty)
	assertDec(t, "10", p.TotalPurchasedValue)
}

func TestVendorPriceStats_ListPrices_CheapestFirst(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	_, err := l.Prices.SetPrice(ctx, pm, "tile", "vendor-a", ledger.SetPriceInput{UnitPrice: decp("9")})
	require.NoError(t, err)
	_, err = l.Prices.SetPrice(ctx, pm, "tile", "vendor-b", ledger.SetPriceInput{UnitPrice: decp("2.25")})
	require.NoError(t, err)

	rows, err := l.Prices.ListPrices(ctx, pm, "tile")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ledger.VendorID("vendor-b"), rows[0].VendorID)

	require.NoError(t, l.Prices.DeletePrice(ctx, pm, "tile", "vendor-b"))
	rows, _ = l.Prices.ListPrices(ctx, pm, "tile")
	assert.Len(t, rows, 1)

	assert.ErrorIs(t, l.Prices.DeletePrice(ctx, outsider, "tile", "vendor-a"), ledger.ErrNotFound)
}

func TestVendorPriceStats_TenantIsolation(t *testing.T) {
	// GIVEN: tenant-1 has a preferred price for (rebar, vendor-1)
	// WHEN: Another tenant purchases, prices and clears preference on the
	//       same (item, vendor) pair
	// THEN: tenant-1's row is unchanged and the other tenant gets its own row
	l, _ := newTestLedger(t)
	ctx := context.Background()
	day := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	_, err := l.Prices.SetPrice(ctx, pm, "rebar", "vendor-1", ledger.SetPriceInput{UnitPrice: decp("4")})
	require.NoError(t, err)
	_, err = l.Prices.SetPreferred(ctx, pm, "rebar", "vendor-1")
	require.NoError(t, err)

	theirs, err := l.Prices.UpsertOnPurchase(ctx, outsider, "rebar", "vendor-1", dec("10"), dec("9"), day)
	require.NoError(t, err)
	assert.Equal(t, outsider.TenantID, theirs.TenantID)
	require.NoError(t, l.Prices.ClearPreferred(ctx, outsider, "rebar"))
	_, err = l.Prices.SetPrice(ctx, outsider, "rebar", "vendor-1", ledger.SetPriceInput{UnitPrice: decp("11")})
	require.NoError(t, err)
	res, err := l.Inventory.RecordPurchase(ctx, outsider, ledger.RecordPurchaseInput{
		ItemID: "rebar", ProjectID: "project-1", Quantity: decp("5"), UnitCost: decp("9"), VendorID: "vendor-1",
	})
	require.NoError(t, err)
	require.NotNil(t, res.PriceStat)
	assert.Equal(t, outsider.TenantID, res.PriceStat.TenantID)

	mine, err := l.Prices.ListPrices(ctx, pm, "rebar")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.True(t, mine[0].IsPreferred)
	assertDec(t, "4", mine[0].UnitPrice)
	assertDec(t, "0", mine[0].TotalPurchasedQty)
	assertDec(t, "0", mine[0].TotalPurchasedValue)

	other, err := l.Prices.ListPrices(ctx, outsider, "rebar")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, outsider.TenantID, other[0].TenantID)
	assertDec(t, "11", other[0].UnitPrice)
	assertDec(t, "15", other[0].TotalPurchasedQty)
	assertDec(t, "135", other[0].TotalPurchasedValue)

	// Inventory entries are keyed per tenant as well.
	entries, err := l.Inventory.ListEntries(ctx, pm, "project-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
