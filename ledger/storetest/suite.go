/*
Package storetest is the behavioural contract every ledger.TxStore must
satisfy. Each implementation's tests call Run with a factory returning an
empty store.

COVERS:
  - NotFound and Conflict error shapes per table
  - cascading contract deletes
  - ordering guarantees of the List methods
  - price accumulation and the single preferred row per item
  - tenant scoping of the price and inventory natural keys
  - lock-or-create of inventory entries
  - the append-only inventory log
  - rollback of a failed WithTx and read-your-writes inside one
*/
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crudexec/construction-sub006/ledger"
)

// Factory returns an empty store; it should register its own cleanup.
type Factory func(t *testing.T) ledger.TxStore

var base = time.Date(2025, time.May, 5, 9, 30, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func decEqual(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, d(want).Equal(got), "want %s, got %s", want, got)
}

// Run executes the whole contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Contracts", func(t *testing.T) { testContracts(t, newStore(t)) })
	t.Run("ContractCascade", func(t *testing.T) { testContractCascade(t, newStore(t)) })
	t.Run("LineItemOrdering", func(t *testing.T) { testLineItemOrdering(t, newStore(t)) })
	t.Run("ChangeOrders", func(t *testing.T) { testChangeOrders(t, newStore(t)) })
	t.Run("PurchaseOrders", func(t *testing.T) { testPurchaseOrders(t, newStore(t)) })
	t.Run("Prices", func(t *testing.T) { testPrices(t, newStore(t)) })
	t.Run("PreferredUnique", func(t *testing.T) { testPreferredUnique(t, newStore(t)) })
	t.Run("PricesPerTenant", func(t *testing.T) { testPricesPerTenant(t, newStore(t)) })
	t.Run("Inventory", func(t *testing.T) { testInventory(t, newStore(t)) })
	t.Run("InventoryLockOrCreate", func(t *testing.T) { testInventoryLockOrCreate(t, newStore(t)) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, newStore(t)) })
	t.Run("TxReadsOwnWrites", func(t *testing.T) { testTxReadsOwnWrites(t, newStore(t)) })
}

// =============================================================================
// FIXTURES
// =============================================================================

func contract(id, number string) *ledger.Contract {
	return &ledger.Contract{
		ID:             ledger.ContractID(id),
		TenantID:       "tenant-1",
		ContractNumber: number,
		Title:          "Foundation works",
		Type:           ledger.ContractLumpSum,
		Status:         ledger.ContractDraft,
		VendorID:       "vendor-1",
		ProjectID:      "project-1",
		WarrantyYears:  1,
		CreatedBy:      "user-1",
		CreatedAt:      base,
		UpdatedAt:      base,
	}
}

func item(id string, parent ledger.ParentRef, order int, qty, price string) *ledger.LineItem {
	q, p := d(qty), d(price)
	return &ledger.LineItem{
		ID:          ledger.LineItemID(id),
		Parent:      parent,
		Description: id,
		Quantity:    q,
		Unit:        "ea",
		UnitPrice:   p,
		TotalPrice:  q.Mul(p),
		Order:       order,
		CreatedAt:   base,
		UpdatedAt:   base,
	}
}

func changeOrder(id string, contractID ledger.ContractID, number int) *ledger.ChangeOrder {
	return &ledger.ChangeOrder{
		ID:          ledger.ChangeOrderID(id),
		ContractID:  contractID,
		Number:      number,
		Title:       "CO",
		TotalAmount: decimal.Zero,
		Status:      ledger.ChangeOrderDraft,
		CreatedBy:   "user-1",
		CreatedAt:   base,
		UpdatedAt:   base,
	}
}

func mustCreateContract(t *testing.T, ctx context.Context, s ledger.Store, c *ledger.Contract) {
	t.Helper()
	require.NoError(t, s.CreateContract(ctx, c))
}

// =============================================================================
// CONTRACTS
// =============================================================================

func testContracts(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()

	_, err := s.GetContract(ctx, "missing")
	assert.True(t, ledger.IsNotFound(err))

	c := contract("c-1", "C-001")
	c.RetentionPercent = dp("5")
	end := base.AddDate(1, 0, 0)
	c.EndDate = &end
	mustCreateContract(t, ctx, s, c)

	err = s.CreateContract(ctx, contract("c-2", "C-001"))
	assert.ErrorIs(t, err, ledger.ErrConflict)

	got, err := s.GetContract(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "C-001", got.ContractNumber)
	assert.Nil(t, got.TotalSum)
	require.NotNil(t, got.RetentionPercent)
	decEqual(t, "5", *got.RetentionPercent)
	require.NotNil(t, got.EndDate)
	assert.True(t, got.EndDate.Equal(end))
	assert.Nil(t, got.StartDate)
	assert.True(t, got.CreatedAt.Equal(base))

	got.TotalSum = dp("1234.56")
	got.ChangeOrderSeq = 3
	got.Status = ledger.ContractActive
	require.NoError(t, s.UpdateContract(ctx, got))

	again, err := s.GetContract(ctx, "c-1")
	require.NoError(t, err)
	require.NotNil(t, again.TotalSum)
	decEqual(t, "1234.56", *again.TotalSum)
	assert.Equal(t, 3, again.ChangeOrderSeq)
	assert.Equal(t, ledger.ContractActive, again.Status)

	other := contract("c-3", "C-003")
	other.TenantID = "tenant-2"
	other.CreatedAt = base.Add(time.Minute)
	mustCreateContract(t, ctx, s, other)

	list, err := s.ListContracts(ctx, ledger.ContractFilter{TenantID: "tenant-1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ledger.ContractID("c-1"), list[0].ID)

	list, err = s.ListContracts(ctx, ledger.ContractFilter{Status: ledger.ContractDraft})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ledger.ContractID("c-3"), list[0].ID)

	err = s.UpdateContract(ctx, contract("nope", "X"))
	assert.True(t, ledger.IsNotFound(err))
}

func testContractCascade(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	mustCreateContract(t, ctx, s, contract("c-1", "C-001"))
	require.NoError(t, s.CreateLineItem(ctx, item("li-1", ledger.ContractParent("c-1"), 0, "1", "1")))
	require.NoError(t, s.CreateChangeOrder(ctx, changeOrder("co-1", "c-1", 1)))
	require.NoError(t, s.CreateLineItem(ctx, item("li-2", ledger.ChangeOrderParent("co-1"), 0, "1", "1")))

	require.NoError(t, s.DeleteContract(ctx, "c-1"))

	_, err := s.GetChangeOrder(ctx, "co-1")
	assert.True(t, ledger.IsNotFound(err))
	_, err = s.GetLineItem(ctx, "li-1")
	assert.True(t, ledger.IsNotFound(err))
	_, err = s.GetLineItem(ctx, "li-2")
	assert.True(t, ledger.IsNotFound(err))

	assert.True(t, ledger.IsNotFound(s.DeleteContract(ctx, "c-1")))
}

// =============================================================================
// LINE ITEMS
// =============================================================================

func testLineItemOrdering(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	mustCreateContract(t, ctx, s, contract("c-1", "C-001"))
	parent := ledger.ContractParent("c-1")

	late := item("li-b", parent, 1, "1", "1")
	late.CreatedAt = base.Add(time.Second)
	require.NoError(t, s.CreateLineItem(ctx, late))
	require.NoError(t, s.CreateLineItem(ctx, item("li-c", parent, 1, "1", "1")))
	require.NoError(t, s.CreateLineItem(ctx, item("li-a", parent, 2, "1", "1")))
	require.NoError(t, s.CreateLineItem(ctx, item("li-z", parent, 0, "2.5", "4")))

	items, err := s.ListLineItems(ctx, parent)
	require.NoError(t, err)
	ids := make([]ledger.LineItemID, 0, len(items))
	for _, li := range items {
		ids = append(ids, li.ID)
	}
	assert.Equal(t, []ledger.LineItemID{"li-z", "li-c", "li-b", "li-a"}, ids)
	decEqual(t, "10", items[0].TotalPrice)

	li := items[0]
	li.Quantity = d("3")
	li.TotalPrice = d("12")
	li.Notes = "revised"
	require.NoError(t, s.UpdateLineItem(ctx, &li))
	got, err := s.GetLineItem(ctx, li.ID)
	require.NoError(t, err)
	decEqual(t, "12", got.TotalPrice)
	assert.Equal(t, "revised", got.Notes)
	assert.Equal(t, parent, got.Parent)

	require.NoError(t, s.DeleteLineItem(ctx, li.ID))
	assert.True(t, ledger.IsNotFound(s.DeleteLineItem(ctx, li.ID)))

	empty, err := s.ListLineItems(ctx, ledger.ChangeOrderParent("none"))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// =============================================================================
// CHANGE ORDERS
// =============================================================================

func testChangeOrders(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	mustCreateContract(t, ctx, s, contract("c-1", "C-001"))

	n, err := s.MaxChangeOrderNumber(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, s.CreateChangeOrder(ctx, changeOrder("co-2", "c-1", 2)))
	require.NoError(t, s.CreateChangeOrder(ctx, changeOrder("co-1", "c-1", 1)))
	assert.ErrorIs(t, s.CreateChangeOrder(ctx, changeOrder("co-x", "c-1", 2)), ledger.ErrConflict)

	n, err = s.MaxChangeOrderNumber(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := s.ListChangeOrders(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].Number)

	co := list[1]
	at := base.Add(time.Hour)
	co.Status = ledger.ChangeOrderPendingApproval
	co.TotalAmount = d("1500.25")
	co.SubmittedBy = "user-2"
	co.SubmittedAt = &at
	require.NoError(t, s.UpdateChangeOrder(ctx, &co))

	got, err := s.GetChangeOrderForUpdate(ctx, co.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.ChangeOrderPendingApproval, got.Status)
	decEqual(t, "1500.25", got.TotalAmount)
	require.NotNil(t, got.SubmittedAt)
	assert.True(t, got.SubmittedAt.Equal(at))
	assert.Nil(t, got.ApprovedAt)

	require.NoError(t, s.DeleteChangeOrder(ctx, "co-1"))
	_, err = s.GetChangeOrder(ctx, "co-1")
	assert.True(t, ledger.IsNotFound(err))
}

// =============================================================================
// PURCHASE ORDERS
// =============================================================================

func purchaseOrder(id, number string) *ledger.PurchaseOrder {
	po := &ledger.PurchaseOrder{
		ID:        ledger.PurchaseOrderID(id),
		TenantID:  "tenant-1",
		PONumber:  number,
		VendorID:  "vendor-1",
		ProjectID: "project-1",
		Status:    ledger.PODraft,
		CreatedBy: "user-1",
		CreatedAt: base,
		UpdatedAt: base,
	}
	for i, q := range []string{"10", "5"} {
		po.Lines = append(po.Lines, ledger.PurchaseOrderLine{
			ID:               ledger.POLineID(id + "-l" + string(rune('a'+i))),
			PurchaseOrderID:  po.ID,
			ItemID:           ledger.ItemID("item-" + string(rune('a'+i))),
			Description:      "line",
			Unit:             "bag",
			Quantity:         d(q),
			ReceivedQuantity: decimal.Zero,
			UnitPrice:        d("2.5"),
			Position:         1 - i,
		})
	}
	return po
}

func testPurchaseOrders(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.CreatePurchaseOrder(ctx, purchaseOrder("po-1", "PO-1")))
	assert.ErrorIs(t, s.CreatePurchaseOrder(ctx, purchaseOrder("po-2", "PO-1")), ledger.ErrConflict)

	_, err := s.GetPurchaseOrder(ctx, "missing")
	assert.True(t, ledger.IsNotFound(err))

	po, err := s.GetPurchaseOrderForUpdate(ctx, "po-1")
	require.NoError(t, err)
	require.Len(t, po.Lines, 2)
	assert.Equal(t, 0, po.Lines[0].Position)
	assert.Equal(t, ledger.POLineID("po-1-lb"), po.Lines[0].ID)

	line := po.Lines[0]
	line.ReceivedQuantity = d("5")
	require.NoError(t, s.UpdatePurchaseOrderLine(ctx, &line))

	line.ReceivedQuantity = d("5.5")
	err = s.UpdatePurchaseOrderLine(ctx, &line)
	assert.ErrorIs(t, err, ledger.ErrOverReceipt)

	delivered := base.Add(48 * time.Hour)
	po.Status = ledger.POReceived
	po.DeliveredDate = &delivered
	require.NoError(t, s.UpdatePurchaseOrder(ctx, po))

	got, err := s.GetPurchaseOrder(ctx, "po-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.POReceived, got.Status)
	require.NotNil(t, got.DeliveredDate)
	assert.True(t, got.DeliveredDate.Equal(delivered))
	decEqual(t, "5", got.Lines[0].ReceivedQuantity)
	decEqual(t, "0", got.Lines[1].ReceivedQuantity)
	decEqual(t, "37.5", got.Total())
}

// =============================================================================
// PRICE COMPARISONS
// =============================================================================

func price(item, vendor, unit string) *ledger.PriceComparison {
	return &ledger.PriceComparison{
		ID:                  ledger.PriceID("p-" + item + "-" + vendor),
		TenantID:            "tenant-1",
		ItemID:              ledger.ItemID(item),
		VendorID:            ledger.VendorID(vendor),
		UnitPrice:           d(unit),
		TotalPurchasedQty:   decimal.Zero,
		TotalPurchasedValue: decimal.Zero,
		CreatedAt:           base,
		UpdatedAt:           base,
	}
}

func testPrices(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()

	_, err := s.GetPrice(ctx, "tenant-1", "item-1", "vendor-1")
	assert.True(t, ledger.IsNotFound(err))

	first, err := s.AccumulatePurchase(ctx, ledger.PurchaseAccumulation{
		ID: "p-1", TenantID: "tenant-1", ItemID: "item-1", VendorID: "vendor-1",
		Quantity: d("10"), Value: d("45"), UnitPrice: d("4.5"), At: base,
	})
	require.NoError(t, err)
	decEqual(t, "4.5", first.UnitPrice)
	decEqual(t, "10", first.TotalPurchasedQty)

	later := base.Add(24 * time.Hour)
	second, err := s.AccumulatePurchase(ctx, ledger.PurchaseAccumulation{
		ID: "p-ignored", TenantID: "tenant-1", ItemID: "item-1", VendorID: "vendor-1",
		Quantity: d("2"), Value: d("10"), UnitPrice: d("5"), At: later,
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.PriceID("p-1"), second.ID)
	decEqual(t, "4.5", second.UnitPrice)
	decEqual(t, "12", second.TotalPurchasedQty)
	decEqual(t, "55", second.TotalPurchasedValue)
	require.NotNil(t, second.LastPurchaseDate)
	assert.True(t, second.LastPurchaseDate.Equal(later))

	edit := *second
	edit.UnitPrice = d("3.75")
	edit.TotalPurchasedQty = decimal.Zero
	lead := 7
	edit.LeadTimeDays = &lead
	require.NoError(t, s.SavePrice(ctx, &edit))

	got, err := s.GetPrice(ctx, "tenant-1", "item-1", "vendor-1")
	require.NoError(t, err)
	decEqual(t, "3.75", got.UnitPrice)
	decEqual(t, "12", got.TotalPurchasedQty)
	require.NotNil(t, got.LeadTimeDays)
	assert.Equal(t, 7, *got.LeadTimeDays)

	require.NoError(t, s.SavePrice(ctx, price("item-1", "vendor-2", "2")))
	require.NoError(t, s.SavePrice(ctx, price("item-1", "vendor-3", "9")))
	require.NoError(t, s.SavePrice(ctx, price("item-2", "vendor-1", "1")))

	list, err := s.ListPrices(ctx, "tenant-1", "item-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ledger.VendorID("vendor-2"), list[0].VendorID)
	assert.Equal(t, ledger.VendorID("vendor-1"), list[1].VendorID)
	assert.Equal(t, ledger.VendorID("vendor-3"), list[2].VendorID)

	require.NoError(t, s.DeletePrice(ctx, "tenant-1", "item-1", "vendor-3"))
	assert.True(t, ledger.IsNotFound(s.DeletePrice(ctx, "tenant-1", "item-1", "vendor-3")))
}

func testPreferredUnique(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	a, b := price("item-1", "vendor-a", "1"), price("item-1", "vendor-b", "2")
	require.NoError(t, s.SavePrice(ctx, a))
	require.NoError(t, s.SavePrice(ctx, b))

	a.IsPreferred = true
	require.NoError(t, s.SavePrice(ctx, a))
	b.IsPreferred = true
	assert.ErrorIs(t, s.SavePrice(ctx, b), ledger.ErrConflict)

	require.NoError(t, s.ClearPreferred(ctx, "tenant-1", "item-1"))
	require.NoError(t, s.SavePrice(ctx, b))

	got, err := s.GetPrice(ctx, "tenant-1", "item-1", "vendor-a")
	require.NoError(t, err)
	assert.False(t, got.IsPreferred)
	got, err = s.GetPrice(ctx, "tenant-1", "item-1", "vendor-b")
	require.NoError(t, err)
	assert.True(t, got.IsPreferred)
}

func testPricesPerTenant(t *testing.T, s ledger.TxStore) {
	// GIVEN: tenant-1's preferred price row for (item-1, vendor-1)
	ctx := context.Background()
	mine := price("item-1", "vendor-1", "4")
	mine.IsPreferred = true
	require.NoError(t, s.SavePrice(ctx, mine))
	_, err := s.AccumulatePurchase(ctx, ledger.PurchaseAccumulation{
		ID: "p-acc-1", TenantID: "tenant-1", ItemID: "item-1", VendorID: "vendor-1",
		Quantity: d("10"), Value: d("40"), UnitPrice: d("4"), At: base,
	})
	require.NoError(t, err)

	// WHEN: tenant-2 writes the same (item, vendor) key
	theirs := price("item-1", "vendor-1", "9")
	theirs.ID = "p-other"
	theirs.TenantID = "tenant-2"
	theirs.IsPreferred = true
	require.NoError(t, s.SavePrice(ctx, theirs))
	acc, err := s.AccumulatePurchase(ctx, ledger.PurchaseAccumulation{
		ID: "p-acc-2", TenantID: "tenant-2", ItemID: "item-1", VendorID: "vendor-1",
		Quantity: d("5"), Value: d("45"), UnitPrice: d("9"), At: base,
	})
	require.NoError(t, err)
	require.NoError(t, s.ClearPreferred(ctx, "tenant-2", "item-1"))

	// THEN: Each tenant sees only its own row and tenant-1's row is untouched
	assert.Equal(t, ledger.TenantID("tenant-2"), acc.TenantID)
	decEqual(t, "5", acc.TotalPurchasedQty)

	got, err := s.GetPrice(ctx, "tenant-1", "item-1", "vendor-1")
	require.NoError(t, err)
	decEqual(t, "4", got.UnitPrice)
	decEqual(t, "10", got.TotalPurchasedQty)
	assert.True(t, got.IsPreferred)

	list, err := s.ListPrices(ctx, "tenant-2", "item-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].IsPreferred)

	require.NoError(t, s.DeletePrice(ctx, "tenant-2", "item-1", "vendor-1"))
	_, err = s.GetPrice(ctx, "tenant-1", "item-1", "vendor-1")
	require.NoError(t, err)
}

// =============================================================================
// INVENTORY
// =============================================================================

func entry(id, itemID, projectID string) *ledger.InventoryEntry {
	return &ledger.InventoryEntry{
		ID:           ledger.EntryID(id),
		TenantID:     "tenant-1",
		ItemID:       ledger.ItemID(itemID),
		ProjectID:    ledger.ProjectID(projectID),
		PurchasedQty: decimal.Zero,
		UsedQty:      decimal.Zero,
		CreatedAt:    base,
		UpdatedAt:    base,
	}
}

func testInventory(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateInventoryEntry(ctx, entry("e-1", "item-1", "project-1")))
	require.NoError(t, s.CreateInventoryEntry(ctx, entry("e-2", "item-2", "project-1")))
	require.NoError(t, s.CreateInventoryEntry(ctx, entry("e-3", "item-1", "project-2")))
	assert.ErrorIs(t, s.CreateInventoryEntry(ctx, entry("e-4", "item-1", "project-1")), ledger.ErrConflict)

	_, err := s.FindInventoryEntryForUpdate(ctx, "tenant-1", "item-9", "project-1")
	assert.True(t, ledger.IsNotFound(err))
	_, err = s.FindInventoryEntryForUpdate(ctx, "tenant-2", "item-1", "project-2")
	assert.True(t, ledger.IsNotFound(err))

	found, err := s.FindInventoryEntryForUpdate(ctx, "tenant-1", "item-1", "project-2")
	require.NoError(t, err)
	assert.Equal(t, ledger.EntryID("e-3"), found.ID)

	cost := d("3")
	total := d("30")
	txs := []ledger.InventoryTransaction{
		{ID: "t-2", EntryID: "e-1", Kind: ledger.InventoryUsage, Quantity: d("4"), OccurredAt: base.Add(2 * time.Hour), CreatedBy: "u", CreatedAt: base},
		{ID: "t-1", EntryID: "e-1", Kind: ledger.InventoryPurchase, Quantity: d("10"), UnitCost: &cost, TotalCost: &total, VendorID: "vendor-1", OccurredAt: base.Add(time.Hour), CreatedBy: "u", CreatedAt: base},
	}
	for i := range txs {
		require.NoError(t, s.AppendInventoryTransaction(ctx, &txs[i]))
	}

	log, err := s.ListInventoryTransactions(ctx, "e-1")
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, ledger.InventoryTxID("t-1"), log[0].ID)
	require.NotNil(t, log[0].TotalCost)
	decEqual(t, "30", *log[0].TotalCost)
	assert.Nil(t, log[1].UnitCost)
	assert.Equal(t, ledger.VendorID("vendor-1"), log[0].VendorID)

	e, err := s.GetInventoryEntryForUpdate(ctx, "e-1")
	require.NoError(t, err)
	e.PurchasedQty = d("10")
	e.UsedQty = d("4")
	e.MinStockLevel = dp("6")
	require.NoError(t, s.UpdateInventoryEntry(ctx, e))

	got, err := s.GetInventoryEntry(ctx, "e-1")
	require.NoError(t, err)
	decEqual(t, "6", got.Remaining())
	assert.True(t, got.LowStock())

	list, err := s.ListInventoryEntries(ctx, ledger.InventoryFilter{TenantID: "tenant-1", ProjectID: "project-1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ledger.ItemID("item-1"), list[0].ItemID)

	list, err = s.ListInventoryEntries(ctx, ledger.InventoryFilter{ItemID: "item-1"})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	empty, err := s.ListInventoryTransactions(ctx, "e-2")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testInventoryLockOrCreate(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()

	var first *ledger.InventoryEntry
	require.NoError(t, s.WithTx(ctx, func(tx ledger.Store) error {
		var err error
		first, err = tx.LockOrCreateInventoryEntry(ctx, entry("e-1", "item-1", "project-1"))
		return err
	}))
	assert.Equal(t, ledger.EntryID("e-1"), first.ID)

	// A second call with a fresh id returns the stored entry.
	var again *ledger.InventoryEntry
	require.NoError(t, s.WithTx(ctx, func(tx ledger.Store) error {
		var err error
		again, err = tx.LockOrCreateInventoryEntry(ctx, entry("e-2", "item-1", "project-1"))
		return err
	}))
	assert.Equal(t, ledger.EntryID("e-1"), again.ID)

	// The same item and project in another tenant is a separate entry.
	other := entry("e-3", "item-1", "project-1")
	other.TenantID = "tenant-2"
	var theirs *ledger.InventoryEntry
	require.NoError(t, s.WithTx(ctx, func(tx ledger.Store) error {
		var err error
		theirs, err = tx.LockOrCreateInventoryEntry(ctx, other)
		return err
	}))
	assert.Equal(t, ledger.EntryID("e-3"), theirs.ID)
	assert.Equal(t, ledger.TenantID("tenant-2"), theirs.TenantID)

	list, err := s.ListInventoryEntries(ctx, ledger.InventoryFilter{ItemID: "item-1"})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func testTxRollback(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	mustCreateContract(t, ctx, s, contract("c-1", "C-001"))
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx ledger.Store) error {
		mustCreateContract(t, ctx, tx, contract("c-2", "C-002"))
		c, err := tx.GetContractForUpdate(ctx, "c-1")
		if err != nil {
			return err
		}
		c.TotalSum = dp("99")
		if err := tx.UpdateContract(ctx, c); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetContract(ctx, "c-2")
	assert.True(t, ledger.IsNotFound(err))
	c, err := s.GetContract(ctx, "c-1")
	require.NoError(t, err)
	assert.Nil(t, c.TotalSum)
}

func testTxReadsOwnWrites(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	err := s.WithTx(ctx, func(tx ledger.Store) error {
		mustCreateContract(t, ctx, tx, contract("c-1", "C-001"))
		if err := tx.CreateLineItem(ctx, item("li-1", ledger.ContractParent("c-1"), 0, "2", "3")); err != nil {
			return err
		}
		items, err := tx.ListLineItems(ctx, ledger.ContractParent("c-1"))
		if err != nil {
			return err
		}
		assert.Len(t, items, 1)
		c, err := tx.GetContractForUpdate(ctx, "c-1")
		if err != nil {
			return err
		}
		c.TotalSum = dp("6")
		return tx.UpdateContract(ctx, c)
	})
	require.NoError(t, err)

	c, err := s.GetContract(ctx, "c-1")
	require.NoError(t, err)
	require.NotNil(t, c.TotalSum)
	decEqual(t, "6", *c.TotalSum)
}
