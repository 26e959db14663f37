package ledger_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crudexec/construction-sub006/ledger"
)

func createContract(t *testing.T, l *ledger.Ledger, number string, items ...ledger.LineItemInput) *ledger.Contract {
	t.Helper()
	c, err := l.Contracts.CreateContract(context.Background(), pm, ledger.CreateContractInput{
		ContractNumber: number,
		Type:           ledger.ContractLumpSum,
		VendorID:       "vendor-1",
		ProjectID:      "project-1",
		LineItems:      items,
	})
	require.NoError(t, err)
	return c
}

// =============================================================================
// AGGREGATE CONSISTENCY
// =============================================================================

func TestContractLedger_AddUpdateDelete_RecomputesTotalSum(t *testing.T) {
	// GIVEN: A contract with no line items (totalSum null)
	// WHEN: Items are added and one is deleted
	// THEN: totalSum tracks the sum of the remaining items
	l, _ := newTestLedger(t)
	ctx := context.Background()
	c := createContract(t, l, "C-001")
	assert.Nil(t, c.TotalSum)

	first, err := l.Contracts.AddLineItem(ctx, pm, ledger.ContractParent(c.ID), lineItem("Concrete", "10", "5"))
	require.NoError(t, err)
	assertDec(t, "50", first.TotalPrice)

	got, err := l.Contracts.GetContract(ctx, pm, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TotalSum)
	assertDec(t, "50", *got.TotalSum)

	_, err = l.Contracts.AddLineItem(ctx, pm, ledger.ContractParent(c.ID), lineItem("Rebar", "2", "25"))
	require.NoError(t, err)
	got, _ = l.Contracts.GetContract(ctx, pm, c.ID)
	assertDec(t, "100", *got.TotalSum)

	require.NoError(t, l.Contracts.DeleteLineItem(ctx, pm, ledger.ContractParent(c.ID), first.ID))
	got, _ = l.Contracts.GetContract(ctx, pm, c.ID)
	assertDec(t, "50", *got.TotalSum)
}

func TestContractLedger_DeleteLastItem_TotalIsZero(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	c := createContract(t, l, "C-001", lineItem("Labor", "3", "100"))
	assertDec(t, "300", *c.TotalSum)

	items, err := l.Contracts.ListLineItems(ctx, pm, ledger.ContractParent(c.ID))
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.NoError(t, l.Contracts.DeleteLineItem(ctx, pm, ledger.ContractParent(c.ID), items[0].ID))
	got, _ := l.Contracts.GetContract(ctx, pm, c.ID)
	require.NotNil(t, got.TotalSum)
	assert.True(t, got.TotalSum.IsZero())
}

func TestContractLedger_UpdateOnlyUnitPrice_UsesStoredQuantity(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	c := createContract(t, l, "C-001")
	li, err := l.Contracts.AddLineItem(ctx, pm, ledger.ContractParent(c.ID), lineItem("Paint", "4", "10"))
	require.NoError(t, err)

	updated, err := l.Contracts.UpdateLineItem(ctx, pm, ledger.ContractParent(c.ID), li.ID, ledger.LineItemPatch{UnitPrice: decp("12.5")})
	require.NoError(t, err)
	assertDec(t, "4", updated.Quantity)
	assertDec(t, "50", updated.TotalPrice)

	updated, err = l.Contracts.UpdateLineItem(ctx, pm, ledger.ContractParent(c.ID), li.ID, ledger.LineItemPatch{Quantity: decp("6")})
	require.NoError(t, err)
	assertDec(t, "75", updated.TotalPrice)

	got, _ := l.Contracts.GetContract(ctx, pm, c.ID)
	assertDec(t, "75", *got.TotalSum)
}

func TestContractLedger_UpdateNotesOnly_KeepsTotal(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	c := createContract(t, l, "C-001")
	li, err := l.Contracts.AddLineItem(ctx, pm, ledger.ContractParent(c.ID), lineItem("Paint", "4", "10"))
	require.NoError(t, err)

	notes := "two coats"
	updated, err := l.Contracts.UpdateLineItem(ctx, pm, ledger.ContractParent(c.ID), li.ID, ledger.LineItemPatch{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, "two coats", updated.Notes)
	assertDec(t, "40", updated.TotalPrice)
}

func TestContractLedger_ConcurrentAdds_TotalConverges(t *testing.T) {
	// GIVEN: One contract
	// WHEN: Many requests add items concurrently
	// THEN: totalSum equals the sum of all items (no lost update)
	l, _ := newTestLedger(t)
	ctx := context.Background()
	c := createContract(t, l, "C-001")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Contracts.AddLineItem(ctx, pm, ledger.ContractParent(c.ID), lineItem(fmt.Sprintf("item %d", i), "1", "10"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := l.Contracts.GetContract(ctx, pm, c.ID)
	require.NoError(t, err)
	assertDec(t, "200", *got.TotalSum)
}

// =============================================================================
// ORDER ASSIGNMENT
// =============================================================================

func TestContractLedger_OrderOmitted_AssignsMaxPlusOne(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	c := createContract(t, l, "C-001")
	parent := ledger.ContractParent(c.ID)

	a, err := l.Contracts.AddLineItem(ctx, pm, parent, lineItem("a", "1", "1"))
	require.NoError(t, err)
	assert.Equal(t, 0, a.Order)

	explicit := lineItem("b", "1", "1")
	seven := 7
	explicit.Order = &seven
	b, err := l.Contracts.AddLineItem(ctx, pm, parent, explicit)
	require.NoError(t, err)
	assert.Equal(t, 7, b.Order)

	next, err := l.Contracts.AddLineItem(ctx, pm, parent, lineItem("c", "1", "1"))
	require.NoError(t, err)
	assert.Equal(t, 8, next.Order)

	items, err := l.Contracts.ListLineItems(ctx, pm, parent)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{items[0].Description, items[1].Description, items[2].Description})
}

// =============================================================================
// VALIDATION & SCOPING
// =============================================================================

func TestContractLedger_AddLineItem_MissingFields(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	c := createContract(t, l, "C-001")

	_, err := l.Contracts.AddLineItem(ctx, pm, ledger.ContractParent(c.ID), ledger.LineItemInput{
		Description: "no quantity",
		Unit:        "ea",
		UnitPrice:   decp("1"),
	})
	require.ErrorIs(t, err, ledger.ErrInvalidInput)

	var ve *ledger.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.FieldMap(), "quantity")
}

func TestContractLedger_ZeroQuantityAndPrice_Allowed(t *testing.T) {
	l, _ := newTestLedger(t)
	c := createContract(t, l, "C-001")

	li, err := l.Contracts.AddLineItem(context.Background(), pm, ledger.ContractParent(c.ID), lineItem("allowance", "0", "0"))
	require.NoError(t, err)
	assert.True(t, li.TotalPrice.IsZero())
}

func TestContractLedger_NegativePrice_Rejected(t *testing.T) {
	l, _ := newTestLedger(t)
	c := createContract(t, l, "C-001")

	_, err := l.Contracts.AddLineItem(context.Background(), pm, ledger.ContractParent(c.ID), lineItem("credit", "1", "-5"))
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)
}

func TestContractLedger_OtherTenant_NotFound(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	c := createContract(t, l, "C-001")

	_, err := l.Contracts.GetContract(ctx, outsider, c.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = l.Contracts.AddLineItem(ctx, outsider, ledger.ContractParent(c.ID), lineItem("x", "1", "1"))
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestContractLedger_ItemOfOtherParent_NotFound(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	a := createContract(t, l, "C-001", lineItem("x", "1", "1"))
	b := createContract(t, l, "C-002")

	items, err := l.Contracts.ListLineItems(ctx, pm, ledger.ContractParent(a.ID))
	require.NoError(t, err)

	err = l.Contracts.DeleteLineItem(ctx, pm, ledger.ContractParent(b.ID), items[0].ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
