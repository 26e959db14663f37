/*
receiving.go - Purchase order lifecycle and receiving state machine

STATES:
  DRAFT | PENDING_APPROVAL | APPROVED --send--> SENT
  SENT | PARTIALLY_RECEIVED --receipt--> PARTIALLY_RECEIVED | RECEIVED
  any state before the first receipt --cancel--> CANCELLED

RECORDING A RECEIPT:
  The whole batch is validated before anything is written: the order must
  be receivable, every line must belong to it, and no line may end above
  its ordered quantity. One bad entry rejects the batch. Entries naming
  the same line are summed first. The new status is derived from the
  resulting state of every line, and the vendor price stats for each line
  with a positive delta are accumulated in the same transaction.
*/
package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// DerivePOStatus computes the status after a receipt from the resulting
// line state: RECEIVED when every line is fully received, else
// PARTIALLY_RECEIVED when any line has received something, else current.
func DerivePOStatus(current POStatus, lines []PurchaseOrderLine) POStatus {
	if len(lines) == 0 {
		return current
	}
	all, some := true, false
	for _, l := range lines {
		if !l.FullyReceived() {
			all = false
		}
		if l.ReceivedQuantity.IsPositive() {
			some = true
		}
	}
	switch {
	case all:
		return POReceived
	case some:
		return POPartiallyReceived
	default:
		return current
	}
}

// ReceivingEngine manages purchase orders and their receipts.
type ReceivingEngine struct {
	*engine
	prices *VendorPriceStats
}

type PurchaseOrderLineInput struct {
	ItemID      ItemID           `json:"itemId"`
	Description string           `json:"description" validate:"required"`
	Unit        string           `json:"unit"`
	Quantity    *decimal.Decimal `json:"quantity" validate:"required,gt=0"`
	UnitPrice   *decimal.Decimal `json:"unitPrice" validate:"required,gte=0"`
}

type CreatePurchaseOrderInput struct {
	PONumber  string                   `json:"poNumber" validate:"required"`
	VendorID  VendorID                 `json:"vendorId" validate:"required"`
	ProjectID ProjectID                `json:"projectId"`
	Notes     string                   `json:"notes"`
	Lines     []PurchaseOrderLineInput `json:"lines" validate:"required,min=1,dive"`
}

// ReceiptLine is the quantity delivered for one line in this call.
type ReceiptLine struct {
	LineID   POLineID         `json:"lineItemId" validate:"required"`
	Quantity *decimal.Decimal `json:"receivedQuantity" validate:"required,gte=0"`
}

type RecordReceiptInput struct {
	Lines []ReceiptLine `json:"lines" validate:"required,min=1,dive"`
}

// ReceiptResult is the outcome of a recorded receipt.
type ReceiptResult struct {
	PurchaseOrder  *PurchaseOrder
	PreviousStatus POStatus
	PriceStats     []PriceComparison
}

// LineProgress summarizes receiving on one line.
type LineProgress struct {
	LineID          POLineID
	Ordered         decimal.Decimal
	Received        decimal.Decimal
	Remaining       decimal.Decimal
	PercentReceived decimal.Decimal
}

// ReceivingProgress reports per-line and overall received percentages.
func ReceivingProgress(po PurchaseOrder) ([]LineProgress, decimal.Decimal) {
	out := make([]LineProgress, 0, len(po.Lines))
	ordered, received := decimal.Zero, decimal.Zero
	for _, l := range po.Lines {
		out = append(out, LineProgress{
			LineID:          l.ID,
			Ordered:         l.Quantity,
			Received:        l.ReceivedQuantity,
			Remaining:       l.Remaining(),
			PercentReceived: percentOf(l.ReceivedQuantity, l.Quantity),
		})
		ordered = ordered.Add(l.Quantity)
		received = received.Add(l.ReceivedQuantity)
	}
	return out, percentOf(received, ordered)
}

// Create opens a DRAFT purchase order.
func (r *ReceivingEngine) Create(ctx context.Context, actor Actor, in CreatePurchaseOrderInput) (*PurchaseOrder, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	now := r.now()
	po := &PurchaseOrder{
		ID:        PurchaseOrderID(r.newID()),
		TenantID:  actor.TenantID,
		PONumber:  in.PONumber,
		VendorID:  in.VendorID,
		ProjectID: in.ProjectID,
		Status:    PODraft,
		Notes:     in.Notes,
		CreatedBy: actor.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, l := range in.Lines {
		po.Lines = append(po.Lines, PurchaseOrderLine{
			ID:               POLineID(r.newID()),
			PurchaseOrderID:  po.ID,
			ItemID:           l.ItemID,
			Description:      l.Description,
			Unit:             l.Unit,
			Quantity:         *l.Quantity,
			ReceivedQuantity: decimal.Zero,
			UnitPrice:        *l.UnitPrice,
			Position:         i,
		})
	}
	if err := r.inTx(ctx, func(s Store) error { return s.CreatePurchaseOrder(ctx, po) }); err != nil {
		return nil, err
	}
	return po, nil
}

// Get returns a purchase order with its lines.
func (r *ReceivingEngine) Get(ctx context.Context, actor Actor, id PurchaseOrderID) (*PurchaseOrder, error) {
	po, err := r.store.GetPurchaseOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if po.TenantID != actor.TenantID {
		return nil, &NotFoundError{Entity: "purchase order", ID: string(id)}
	}
	return po, nil
}

func (r *ReceivingEngine) lock(ctx context.Context, s Store, actor Actor, id PurchaseOrderID) (*PurchaseOrder, error) {
	po, err := s.GetPurchaseOrderForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if po.TenantID != actor.TenantID {
		return nil, &NotFoundError{Entity: "purchase order", ID: string(id)}
	}
	return po, nil
}

// Send releases a purchase order to its vendor.
func (r *ReceivingEngine) Send(ctx context.Context, actor Actor, id PurchaseOrderID) (*PurchaseOrder, error) {
	return r.move(ctx, actor, id, POSent, PODraft, POPendingApproval, POApproved)
}

// Cancel withdraws a purchase order that has not received anything yet.
func (r *ReceivingEngine) Cancel(ctx context.Context, actor Actor, id PurchaseOrderID) (*PurchaseOrder, error) {
	return r.move(ctx, actor, id, POCancelled, PODraft, POPendingApproval, POApproved, POSent)
}

func (r *ReceivingEngine) move(ctx context.Context, actor Actor, id PurchaseOrderID, to POStatus, from ...POStatus) (*PurchaseOrder, error) {
	var po *PurchaseOrder
	err := r.inTx(ctx, func(s Store) error {
		var err error
		po, err = r.lock(ctx, s, actor, id)
		if err != nil {
			return err
		}
		allowed := false
		for _, st := range from {
			if po.Status == st {
				allowed = true
				break
			}
		}
		if !allowed {
			return &TransitionError{Entity: "purchase order", ID: string(id), From: string(po.Status), To: string(to)}
		}
		po.Status = to
		po.UpdatedAt = r.now()
		return s.UpdatePurchaseOrder(ctx, po)
	})
	if err != nil {
		return nil, err
	}
	r.log.Info().Str("purchase_order_id", string(id)).Str("status", string(to)).Msg("purchase order status changed")
	return po, nil
}

// RecordReceipt applies a batch of delivered quantities atomically.
func (r *ReceivingEngine) RecordReceipt(ctx context.Context, actor Actor, id PurchaseOrderID, in RecordReceiptInput) (*ReceiptResult, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	var res *ReceiptResult
	err := r.inTx(ctx, func(s Store) error {
		po, err := r.lock(ctx, s, actor, id)
		if err != nil {
			return err
		}
		if !po.Status.Receivable() {
			return &StateError{Entity: "purchase order", ID: string(id), Status: string(po.Status), Operation: "receive"}
		}

		deltas, order, err := batchDeltas(po, in.Lines)
		if err != nil {
			return err
		}
		if err := checkOverReceipt(po, deltas, order); err != nil {
			return err
		}

		res = &ReceiptResult{PurchaseOrder: po, PreviousStatus: po.Status}
		now := r.now()
		for i := range po.Lines {
			line := &po.Lines[i]
			delta := deltas[line.ID]
			if !delta.IsPositive() {
				continue
			}
			line.ReceivedQuantity = line.ReceivedQuantity.Add(delta)
			if err := s.UpdatePurchaseOrderLine(ctx, line); err != nil {
				return err
			}
		}

		next := DerivePOStatus(po.Status, po.Lines)
		if next != po.Status {
			if next == POReceived {
				po.DeliveredDate = &now
			}
			po.Status = next
		}
		po.UpdatedAt = now
		if err := s.UpdatePurchaseOrder(ctx, po); err != nil {
			return err
		}

		for _, line := range po.Lines {
			delta := deltas[line.ID]
			if !delta.IsPositive() || line.ItemID == "" {
				continue
			}
			stat, err := r.prices.accumulate(ctx, s, actor, line.ItemID, po.VendorID, delta, line.UnitPrice, now)
			if err != nil {
				return err
			}
			res.PriceStats = append(res.PriceStats, *stat)
		}
		return nil
	})
	if err != nil {
		var ore *OverReceiptError
		if errors.As(err, &ore) {
			r.log.Warn().Str("purchase_order_id", string(id)).Int("lines", len(ore.Lines)).Msg("receipt rejected: over receipt")
		}
		return nil, err
	}
	if res.PreviousStatus != res.PurchaseOrder.Status {
		r.log.Info().
			Str("purchase_order_id", string(id)).
			Str("from", string(res.PreviousStatus)).
			Str("to", string(res.PurchaseOrder.Status)).
			Msg("purchase order status changed")
	}
	return res, nil
}

// batchDeltas sums the batch per line, rejecting ids outside the order.
// order keeps the first-seen sequence of line ids.
func batchDeltas(po *PurchaseOrder, entries []ReceiptLine) (map[POLineID]decimal.Decimal, []POLineID, error) {
	known := make(map[POLineID]bool, len(po.Lines))
	for _, l := range po.Lines {
		known[l.ID] = true
	}
	deltas := make(map[POLineID]decimal.Decimal, len(entries))
	var order, unknown []POLineID
	for _, e := range entries {
		if !known[e.LineID] {
			unknown = append(unknown, e.LineID)
			continue
		}
		if _, seen := deltas[e.LineID]; !seen {
			order = append(order, e.LineID)
			deltas[e.LineID] = decimal.Zero
		}
		deltas[e.LineID] = deltas[e.LineID].Add(*e.Quantity)
	}
	if len(unknown) > 0 {
		return nil, nil, &ReferenceError{PurchaseOrderID: po.ID, LineIDs: unknown}
	}
	return deltas, order, nil
}

func checkOverReceipt(po *PurchaseOrder, deltas map[POLineID]decimal.Decimal, order []POLineID) error {
	lines := make(map[POLineID]PurchaseOrderLine, len(po.Lines))
	for _, l := range po.Lines {
		lines[l.ID] = l
	}
	var over []OverReceiptLine
	for _, id := range order {
		l := lines[id]
		if l.ReceivedQuantity.Add(deltas[id]).GreaterThan(l.Quantity) {
			over = append(over, OverReceiptLine{
				LineID:    id,
				Ordered:   l.Quantity,
				Received:  l.ReceivedQuantity,
				Requested: deltas[id],
			})
		}
	}
	if len(over) > 0 {
		return &OverReceiptError{PurchaseOrderID: po.ID, Lines: over}
	}
	return nil
}
