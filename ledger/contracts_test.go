package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crudexec/construction-sub006/ledger"
)

func TestContractLedger_CreateContract_Defaults(t *testing.T) {
	l, _ := newTestLedger(t)
	c := createContract(t, l, "C-001", lineItem("a", "2", "50"), lineItem("b", "1", "25"))

	assert.Equal(t, ledger.ContractDraft, c.Status)
	assert.Equal(t, 1, c.WarrantyYears)
	assertDec(t, "125", *c.TotalSum)
}

func TestContractLedger_CreateContract_DuplicateNumber(t *testing.T) {
	l, _ := newTestLedger(t)
	createContract(t, l, "C-001")

	_, err := l.Contracts.CreateContract(context.Background(), pm, ledger.CreateContractInput{
		ContractNumber: "C-001",
		Type:           ledger.ContractAddendum,
		VendorID:       "vendor-2",
	})
	assert.ErrorIs(t, err, ledger.ErrConflict)
}

func TestContractLedger_CreateContract_FieldRules(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, -1, 0)

	cases := []struct {
		name  string
		in    ledger.CreateContractInput
		field string
	}{
		{"unknown type", ledger.CreateContractInput{ContractNumber: "X", Type: "FIXED", VendorID: "v"}, "type"},
		{"warranty too long", ledger.CreateContractInput{ContractNumber: "X", Type: ledger.ContractLumpSum, VendorID: "v", WarrantyYears: 11}, "warrantyYears"},
		{"retention over 100", ledger.CreateContractInput{ContractNumber: "X", Type: ledger.ContractLumpSum, VendorID: "v", RetentionPercent: decp("120")}, "retentionPercent"},
		{"end before start", ledger.CreateContractInput{ContractNumber: "X", Type: ledger.ContractLumpSum, VendorID: "v", StartDate: &start, EndDate: &end}, "endDate"},
		{"missing number", ledger.CreateContractInput{Type: ledger.ContractLumpSum, VendorID: "v"}, "contractNumber"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.Contracts.CreateContract(ctx, pm, tc.in)
			var ve *ledger.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.FieldMap(), tc.field)
		})
	}
}

func TestContractLedger_UpdateContract_FreeFormStatus(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	c := createContract(t, l, "C-001")

	completed := ledger.ContractCompleted
	got, err := l.Contracts.UpdateContract(ctx, pm, c.ID, ledger.UpdateContractInput{Status: &completed})
	require.NoError(t, err)
	assert.Equal(t, ledger.ContractCompleted, got.Status)

	draft := ledger.ContractDraft
	got, err = l.Contracts.UpdateContract(ctx, pm, c.ID, ledger.UpdateContractInput{Status: &draft})
	require.NoError(t, err)
	assert.Equal(t, ledger.ContractDraft, got.Status)
	assert.Equal(t, "C-001", got.ContractNumber)
}

func TestContractLedger_DeleteContract_AdminOnlyAndCascades(t *testing.T) {
	// GIVEN: A contract with line items and a change order
	// WHEN: A member tries to delete it, then an admin does
	// THEN: The member is forbidden; the admin delete removes everything
	l, st := newTestLedger(t)
	ctx := context.Background()
	c := createContract(t, l, "C-001", lineItem("a", "1", "1"))
	co, err := l.ChangeOrders.Create(ctx, pm, c.ID, ledger.CreateChangeOrderInput{
		Title:     "Extra",
		LineItems: []ledger.LineItemInput{lineItem("b", "1", "1")},
	})
	require.NoError(t, err)

	assert.ErrorIs(t, l.Contracts.DeleteContract(ctx, pm, c.ID), ledger.ErrForbidden)
	require.NoError(t, l.Contracts.DeleteContract(ctx, admin, c.ID))

	_, err = st.GetContract(ctx, c.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	_, err = st.GetChangeOrder(ctx, co.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	items, err := st.ListLineItems(ctx, ledger.ChangeOrderParent(co.ID))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestContractLedger_Recalculate_RepairsDrift(t *testing.T) {
	l, st := newTestLedger(t)
	ctx := context.Background()
	c := createContract(t, l, "C-001", lineItem("a", "2", "10"))

	// Simulate a drifted aggregate written outside the ledger.
	drifted, err := st.GetContract(ctx, c.ID)
	require.NoError(t, err)
	bogus := dec("999")
	drifted.TotalSum = &bogus
	require.NoError(t, st.UpdateContract(ctx, drifted))

	fixed, err := l.Contracts.RecalculateContractTotal(ctx, pm, c.ID)
	require.NoError(t, err)
	assertDec(t, "20", *fixed.TotalSum)
}

func TestContractLedger_ListContracts_FiltersByTenantAndStatus(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	createContract(t, l, "C-001")
	c2 := createContract(t, l, "C-002")
	_, err := l.Contracts.CreateContract(ctx, outsider, ledger.CreateContractInput{
		ContractNumber: "C-003", Type: ledger.ContractLumpSum, VendorID: "vendor-1",
	})
	require.NoError(t, err)

	active := ledger.ContractActive
	_, err = l.Contracts.UpdateContract(ctx, pm, c2.ID, ledger.UpdateContractInput{Status: &active})
	require.NoError(t, err)

	all, err := l.Contracts.ListContracts(ctx, pm, ledger.ContractFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyActive, err := l.Contracts.ListContracts(ctx, pm, ledger.ContractFilter{Status: ledger.ContractActive})
	require.NoError(t, err)
	require.Len(t, onlyActive, 1)
	assert.Equal(t, c2.ID, onlyActive[0].ID)
}
