package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crudexec/construction-sub006/ledger"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, ledger.CanTransition(ledger.ChangeOrderDraft, ledger.ChangeOrderPendingApproval))
	assert.True(t, ledger.CanTransition(ledger.ChangeOrderPendingApproval, ledger.ChangeOrderApproved))
	assert.True(t, ledger.CanTransition(ledger.ChangeOrderPendingApproval, ledger.ChangeOrderRejected))
	assert.False(t, ledger.CanTransition(ledger.ChangeOrderDraft, ledger.ChangeOrderApproved))
	assert.False(t, ledger.CanTransition(ledger.ChangeOrderApproved, ledger.ChangeOrderRejected))
	assert.False(t, ledger.CanTransition(ledger.ChangeOrderRejected, ledger.ChangeOrderPendingApproval))
}

func TestNextChangeOrderNumber(t *testing.T) {
	assert.Equal(t, 1, ledger.NextChangeOrderNumber(0, 0))
	assert.Equal(t, 4, ledger.NextChangeOrderNumber(3, 2))
	assert.Equal(t, 6, ledger.NextChangeOrderNumber(2, 5))
}

func TestChangeOrderWorkflow_FreezeAfterSubmit(t *testing.T) {
	// GIVEN: A DRAFT change order with two items totaling 1,200
	// WHEN: It is submitted and someone tries to edit its items
	// THEN: Edits fail with InvalidState and totalAmount stays 1,200
	l, _ := newTestLedger(t)
	ctx := context.Background()
	c := createContract(t, l, "C-001")

	co, err := l.ChangeOrders.Create(ctx, pm, c.ID, ledger.CreateChangeOrderInput{
		Title: "Add canopy",
		LineItems: []ledger.LineItemInput{
			lineItem("Steel", "4", "200"),
			lineItem("Labor", "8", "50"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.ChangeOrderDraft, co.Status)
	assert.Equal(t, 1, co.Number)
	assertDec(t, "1200", co.TotalAmount)

	submitted, err := l.ChangeOrders.Submit(ctx, pm, co.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.ChangeOrderPendingApproval, submitted.Status)
	assert.Equal(t, pm.UserID, submitted.SubmittedBy)
	require.NotNil(t, submitted.SubmittedAt)

	parent := ledger.ChangeOrderParent(co.ID)
	_, err = l.Contracts.AddLineItem(ctx, pm, parent, lineItem("Paint", "1", "100"))
	assert.ErrorIs(t, err, ledger.ErrInvalidState)

	items, err := l.Contracts.ListLineItems(ctx, pm, parent)
	require.NoError(t, err)
	_, err = l.Contracts.UpdateLineItem(ctx, pm, parent, items[0].ID, ledger.LineItemPatch{Quantity: decp("1")})
	assert.ErrorIs(t, err, ledger.ErrInvalidState)
	assert.ErrorIs(t, l.Contracts.DeleteLineItem(ctx, pm, parent, items[0].ID), ledger.ErrInvalidState)

	approved, err := l.ChangeOrders.Approve(ctx, admin, co.ID, "ok")
	require.NoError(t, err)
	assert.Equal(t, ledger.ChangeOrderApproved, approved.Status)
	assert.Equal(t, admin.UserID, approved.ApprovedBy)
	assert.Equal(t, "ok", approved.ApprovalComment)
	assertDec(t, "1200", approved.TotalAmount)

	sum, err := l.Contracts.Summary(ctx, pm, c.ID)
	require.NoError(t, err)
	assertDec(t, "1200", sum.ApprovedChangeOrdersTotal)
}

func TestChangeOrderWorkflow_WrongStateTransitions(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	c := createContract(t, l, "C-001")
	co, err := l.ChangeOrders.Create(ctx, pm, c.ID, ledger.CreateChangeOrderInput{Title: "x"})
	require.NoError(t, err)

	_, err = l.ChangeOrders.Approve(ctx, admin, co.ID, "")
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
	_, err = l.ChangeOrders.Reject(ctx, admin, co.ID, "no")
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)

	_, err = l.ChangeOrders.Submit(ctx, pm, co.ID)
	require.NoError(t, err)
	_, err = l.ChangeOrders.Submit(ctx, pm, co.ID)
	var te *ledger.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, string(ledger.ChangeOrderPendingApproval), te.From)

	rejected, err := l.ChangeOrders.Reject(ctx, admin, co.ID, "over budget")
	require.NoError(t, err)
	assert.Equal(t, "over budget", rejected.RejectionReason)
	assert.Equal(t, admin.UserID, rejected.RejectedBy)

	_, err = l.ChangeOrders.Approve(ctx, admin, co.ID, "")
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
}

func TestChangeOrderWorkflow_NumbersNeverReused(t *testing.T) {
	// GIVEN: Three change orders numbered 1..3
	// WHEN: The latest one is deleted and a new one is created
	// THEN: The new one gets number 4
	l, _ := newTestLedger(t)
	ctx := context.Background()
	c := createContract(t, l, "C-001")

	var ids []ledger.ChangeOrderID
	for i := 0; i < 3; i++ {
		co, err := l.ChangeOrders.Create(ctx, pm, c.ID, ledger.CreateChangeOrderInput{Title: "co"})
		require.NoError(t, err)
		assert.Equal(t, i+1, co.Number)
		ids = append(ids, co.ID)
	}
	require.NoError(t, l.ChangeOrders.Delete(ctx, pm, ids[2]))

	next, err := l.ChangeOrders.Create(ctx, pm, c.ID, ledger.CreateChangeOrderInput{Title: "co"})
	require.NoError(t, err)
	assert.Equal(t, 4, next.Number)

	list, err := l.ChangeOrders.List(ctx, pm, c.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int{1, 2, 4}, []int{list[0].Number, list[1].Number, list[2].Number})
}

func TestChangeOrderWorkflow_DeleteOnlyDraftOrRejected(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	c := createContract(t, l, "C-001")
	co, err := l.ChangeOrders.Create(ctx, pm, c.ID, ledger.CreateChangeOrderInput{Title: "x"})
	require.NoError(t, err)
	_, err = l.ChangeOrders.Submit(ctx, pm, co.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, l.ChangeOrders.Delete(ctx, pm, co.ID), ledger.ErrInvalidState)

	_, err = l.ChangeOrders.Reject(ctx, admin, co.ID, "no")
	require.NoError(t, err)
	assert.NoError(t, l.ChangeOrders.Delete(ctx, pm, co.ID))
}

func TestChangeOrderWorkflow_UpdateHeader_DraftOnly(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	c := createContract(t, l, "C-001")
	co, err := l.ChangeOrders.Create(ctx, pm, c.ID, ledger.CreateChangeOrderInput{Title: "x"})
	require.NoError(t, err)

	title := "Revised canopy"
	got, err := l.ChangeOrders.Update(ctx, pm, co.ID, ledger.UpdateChangeOrderInput{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, got.Title)

	_, err = l.ChangeOrders.Submit(ctx, pm, co.ID)
	require.NoError(t, err)
	_, err = l.ChangeOrders.Update(ctx, pm, co.ID, ledger.UpdateChangeOrderInput{Title: &title})
	assert.ErrorIs(t, err, ledger.ErrInvalidState)
}

func TestChangeOrderWorkflow_DraftEdits_RecomputeTotalAmount(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	c := createContract(t, l, "C-001")
	co, err := l.ChangeOrders.Create(ctx, pm, c.ID, ledger.CreateChangeOrderInput{Title: "x"})
	require.NoError(t, err)
	assert.True(t, co.TotalAmount.IsZero())

	parent := ledger.ChangeOrderParent(co.ID)
	_, err = l.Contracts.AddLineItem(ctx, pm, parent, lineItem("a", "3", "7"))
	require.NoError(t, err)

	got, err := l.ChangeOrders.Get(ctx, pm, co.ID)
	require.NoError(t, err)
	assertDec(t, "21", got.TotalAmount)

	// The contract's own total is untouched by change order items.
	contract, err := l.Contracts.GetContract(ctx, pm, c.ID)
	require.NoError(t, err)
	assert.Nil(t, contract.TotalSum)
}

func TestChangeOrderWorkflow_RejectRequiresReason(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	c := createContract(t, l, "C-001")
	co, err := l.ChangeOrders.Create(ctx, pm, c.ID, ledger.CreateChangeOrderInput{Title: "x"})
	require.NoError(t, err)
	_, err = l.ChangeOrders.Submit(ctx, pm, co.ID)
	require.NoError(t, err)

	_, err = l.ChangeOrders.Reject(ctx, admin, co.ID, "  ")
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)

	got, err := l.ChangeOrders.Get(ctx, pm, co.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.ChangeOrderPendingApproval, got.Status)
}
