package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crudexec/construction-sub006/ledger"
)

func sentPO(t *testing.T, l *ledger.Ledger, number string, lines ...ledger.PurchaseOrderLineInput) *ledger.PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	po, err := l.PurchaseOrders.Create(ctx, pm, ledger.CreatePurchaseOrderInput{
		PONumber:  number,
		VendorID:  "vendor-1",
		ProjectID: "project-1",
		Lines:     lines,
	})
	require.NoError(t, err)
	po, err = l.PurchaseOrders.Send(ctx, pm, po.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.POSent, po.Status)
	return po
}

func poLine(item, qty, price string) ledger.PurchaseOrderLineInput {
	return ledger.PurchaseOrderLineInput{
		ItemID:      ledger.ItemID(item),
		Description: item,
		Unit:        "bag",
		Quantity:    decp(qty),
		UnitPrice:   decp(price),
	}
}

func receipt(lines ...ledger.ReceiptLine) ledger.RecordReceiptInput {
	return ledger.RecordReceiptInput{Lines: lines}
}

func recv(id ledger.POLineID, qty string) ledger.ReceiptLine {
	return ledger.ReceiptLine{LineID: id, Quantity: decp(qty)}
}

// =============================================================================
// STATUS DERIVATION
// =============================================================================

func TestDerivePOStatus(t *testing.T) {
	line := func(qty, received string) ledger.PurchaseOrderLine {
		return ledger.PurchaseOrderLine{Quantity: dec(qty), ReceivedQuantity: dec(received)}
	}
	tests := []struct {
		name  string
		lines []ledger.PurchaseOrderLine
		want  ledger.POStatus
	}{
		{"nothing received", []ledger.PurchaseOrderLine{line("10", "0"), line("5", "0")}, ledger.POSent},
		{"some received", []ledger.PurchaseOrderLine{line("10", "3"), line("5", "0")}, ledger.POPartiallyReceived},
		{"one line complete", []ledger.PurchaseOrderLine{line("10", "10"), line("5", "0")}, ledger.POPartiallyReceived},
		{"all complete", []ledger.PurchaseOrderLine{line("10", "10"), line("5", "5")}, ledger.POReceived},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ledger.DerivePOStatus(ledger.POSent, tt.lines))
		})
	}
}

// =============================================================================
// RECEIVING
// =============================================================================

func TestReceivingEngine_PartialThenOverReceiptThenComplete(t *testing.T) {
	// GIVEN: A SENT PO with one line of 100
	// WHEN: 60 is received, then 50, then 40
	// THEN: PARTIALLY_RECEIVED, OverReceipt with nothing written, RECEIVED
	l, _ := newTestLedger(t)
	ctx := context.Background()
	po := sentPO(t, l, "PO-1", poLine("cement", "100", "8.50"))
	lineID := po.Lines[0].ID

	res, err := l.PurchaseOrders.RecordReceipt(ctx, pm, po.ID, receipt(recv(lineID, "60")))
	require.NoError(t, err)
	assert.Equal(t, ledger.POPartiallyReceived, res.PurchaseOrder.Status)
	assert.Equal(t, ledger.POSent, res.PreviousStatus)
	assertDec(t, "60", res.PurchaseOrder.Lines[0].ReceivedQuantity)
	assert.Nil(t, res.PurchaseOrder.DeliveredDate)

	_, err = l.PurchaseOrders.RecordReceipt(ctx, pm, po.ID, receipt(recv(lineID, "50")))
	require.ErrorIs(t, err, ledger.ErrOverReceipt)
	var ore *ledger.OverReceiptError
	require.ErrorAs(t, err, &ore)
	require.Len(t, ore.Lines, 1)
	assertDec(t, "100", ore.Lines[0].Ordered)
	assertDec(t, "60", ore.Lines[0].Received)
	assertDec(t, "50", ore.Lines[0].Requested)
	assertDec(t, "10", ore.Lines[0].Excess())

	got, err := l.PurchaseOrders.Get(ctx, pm, po.ID)
	require.NoError(t, err)
	assertDec(t, "60", got.Lines[0].ReceivedQuantity)
	assert.Equal(t, ledger.POPartiallyReceived, got.Status)

	res, err = l.PurchaseOrders.RecordReceipt(ctx, pm, po.ID, receipt(recv(lineID, "40")))
	require.NoError(t, err)
	assert.Equal(t, ledger.POReceived, res.PurchaseOrder.Status)
	require.NotNil(t, res.PurchaseOrder.DeliveredDate)
	require.Len(t, res.PriceStats, 1)
	assertDec(t, "100", res.PriceStats[0].TotalPurchasedQty)
	assertDec(t, "850", res.PriceStats[0].TotalPurchasedValue)

	stat, err := l.Prices.ListPrices(ctx, pm, "cement")
	require.NoError(t, err)
	require.Len(t, stat, 1)
	assertDec(t, "8.50", stat[0].UnitPrice)
	assertDec(t, "100", stat[0].TotalPurchasedQty)
}

func TestReceivingEngine_OneBadLine_RejectsWholeBatch(t *testing.T) {
	// GIVEN: Two lines; the batch is fine for line A but over-receives line B
	// THEN: Neither line changes and no price stats are written
	l, _ := newTestLedger(t)
	ctx := context.Background()
	po := sentPO(t, l, "PO-1", poLine("sand", "10", "2"), poLine("gravel", "5", "3"))

	_, err := l.PurchaseOrders.RecordReceipt(ctx, pm, po.ID, receipt(
		recv(po.Lines[0].ID, "4"),
		recv(po.Lines[1].ID, "6"),
	))
	require.ErrorIs(t, err, ledger.ErrOverReceipt)

	got, err := l.PurchaseOrders.Get(ctx, pm, po.ID)
	require.NoError(t, err)
	for _, line := range got.Lines {
		assert.True(t, line.ReceivedQuantity.IsZero(), "line %s", line.ID)
	}
	assert.Equal(t, ledger.POSent, got.Status)

	prices, err := l.Prices.ListPrices(ctx, pm, "sand")
	require.NoError(t, err)
	assert.Empty(t, prices)
}

func TestReceivingEngine_UnknownLine_InvalidReference(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	po := sentPO(t, l, "PO-1", poLine("sand", "10", "2"))
	other := sentPO(t, l, "PO-2", poLine("sand", "10", "2"))

	_, err := l.PurchaseOrders.RecordReceipt(ctx, pm, po.ID, receipt(
		recv(po.Lines[0].ID, "1"),
		recv(other.Lines[0].ID, "1"),
	))
	require.ErrorIs(t, err, ledger.ErrInvalidReference)
	var re *ledger.ReferenceError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, []ledger.POLineID{other.Lines[0].ID}, re.LineIDs)

	got, _ := l.PurchaseOrders.Get(ctx, pm, po.ID)
	assert.True(t, got.Lines[0].ReceivedQuantity.IsZero())
}

func TestReceivingEngine_DuplicateLineIDs_AreSummed(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	po := sentPO(t, l, "PO-1", poLine("pipe", "10", "1"))
	id := po.Lines[0].ID

	_, err := l.PurchaseOrders.RecordReceipt(ctx, pm, po.ID, receipt(recv(id, "6"), recv(id, "6")))
	require.ErrorIs(t, err, ledger.ErrOverReceipt)

	res, err := l.PurchaseOrders.RecordReceipt(ctx, pm, po.ID, receipt(recv(id, "4"), recv(id, "6")))
	require.NoError(t, err)
	assert.Equal(t, ledger.POReceived, res.PurchaseOrder.Status)
}

func TestReceivingEngine_NotReceivable_InvalidState(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	draft, err := l.PurchaseOrders.Create(ctx, pm, ledger.CreatePurchaseOrderInput{
		PONumber: "PO-1", VendorID: "vendor-1", Lines: []ledger.PurchaseOrderLineInput{poLine("x", "1", "1")},
	})
	require.NoError(t, err)

	_, err = l.PurchaseOrders.RecordReceipt(ctx, pm, draft.ID, receipt(recv(draft.Lines[0].ID, "1")))
	assert.ErrorIs(t, err, ledger.ErrInvalidState)

	po := sentPO(t, l, "PO-2", poLine("x", "1", "1"))
	_, err = l.PurchaseOrders.RecordReceipt(ctx, pm, po.ID, receipt(recv(po.Lines[0].ID, "1")))
	require.NoError(t, err)
	_, err = l.PurchaseOrders.RecordReceipt(ctx, pm, po.ID, receipt(recv(po.Lines[0].ID, "0")))
	assert.ErrorIs(t, err, ledger.ErrInvalidState)
}

func TestReceivingEngine_ZeroDelta_StatusUnchanged(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	po := sentPO(t, l, "PO-1", poLine("x", "5", "1"))

	res, err := l.PurchaseOrders.RecordReceipt(ctx, pm, po.ID, receipt(recv(po.Lines[0].ID, "0")))
	require.NoError(t, err)
	assert.Equal(t, ledger.POSent, res.PurchaseOrder.Status)
	assert.Empty(t, res.PriceStats)
}

func TestReceivingEngine_NegativeQuantity_InvalidInput(t *testing.T) {
	l, _ := newTestLedger(t)
	po := sentPO(t, l, "PO-1", poLine("x", "5", "1"))

	_, err := l.PurchaseOrders.RecordReceipt(context.Background(), pm, po.ID, receipt(recv(po.Lines[0].ID, "-1")))
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)
}

func TestReceivingEngine_SendAndCancelTransitions(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	po := sentPO(t, l, "PO-1", poLine("x", "5", "1"))

	_, err := l.PurchaseOrders.Send(ctx, pm, po.ID)
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)

	_, err = l.PurchaseOrders.RecordReceipt(ctx, pm, po.ID, receipt(recv(po.Lines[0].ID, "1")))
	require.NoError(t, err)
	_, err = l.PurchaseOrders.Cancel(ctx, pm, po.ID)
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)

	other := sentPO(t, l, "PO-2", poLine("x", "5", "1"))
	cancelled, err := l.PurchaseOrders.Cancel(ctx, pm, other.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.POCancelled, cancelled.Status)
}

func TestReceivingEngine_DuplicatePONumber_Conflict(t *testing.T) {
	l, _ := newTestLedger(t)
	sentPO(t, l, "PO-1", poLine("x", "5", "1"))

	_, err := l.PurchaseOrders.Create(context.Background(), pm, ledger.CreatePurchaseOrderInput{
		PONumber: "PO-1", VendorID: "vendor-2", Lines: []ledger.PurchaseOrderLineInput{poLine("y", "1", "1")},
	})
	assert.ErrorIs(t, err, ledger.ErrConflict)
}

func TestReceivingProgress(t *testing.T) {
	po := ledger.PurchaseOrder{Lines: []ledger.PurchaseOrderLine{
		{ID: "a", Quantity: dec("100"), ReceivedQuantity: dec("25")},
		{ID: "b", Quantity: dec("100"), ReceivedQuantity: dec("100")},
	}}

	lines, overall := ledger.ReceivingProgress(po)

	require.Len(t, lines, 2)
	assertDec(t, "75", lines[0].Remaining)
	assertDec(t, "25", lines[0].PercentReceived)
	assertDec(t, "100", lines[1].PercentReceived)
	assertDec(t, "62.5", overall)
}
