/*
changeorder.go - Change order approval workflow

STATES:
  DRAFT -> PENDING_APPROVAL -> APPROVED | REJECTED

  APPROVED and REJECTED are terminal. Only DRAFT change orders accept
  line item edits (see lineitems.go). TotalAmount is recomputed one last
  time on submission and is never touched by approve or reject.

NUMBERING:
  Numbers are per contract, start at 1 and are never reused. The
  contract keeps the highest number it has issued (ChangeOrderSeq), so
  deleting the latest change order does not free its number.
*/
package ledger

import (
	"context"
	"strings"
	"time"
)

var changeOrderTransitions = map[ChangeOrderStatus][]ChangeOrderStatus{
	ChangeOrderDraft:           {ChangeOrderPendingApproval},
	ChangeOrderPendingApproval: {ChangeOrderApproved, ChangeOrderRejected},
}

// CanTransition reports whether a change order may move from one status to another.
func CanTransition(from, to ChangeOrderStatus) bool {
	for _, s := range changeOrderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// NextChangeOrderNumber is one past the highest number ever issued.
func NextChangeOrderNumber(seq, maxExisting int) int {
	if maxExisting > seq {
		seq = maxExisting
	}
	return seq + 1
}

// ChangeOrderWorkflow manages change orders and their approval lifecycle.
type ChangeOrderWorkflow struct {
	*engine
}

type CreateChangeOrderInput struct {
	Title       string          `json:"title" validate:"required"`
	Description string          `json:"description"`
	Reason      string          `json:"reason"`
	LineItems   []LineItemInput `json:"lineItems" validate:"omitempty,dive"`
}

type UpdateChangeOrderInput struct {
	Title       *string `json:"title" validate:"omitempty,min=1"`
	Description *string `json:"description"`
	Reason      *string `json:"reason"`
}

// Create opens a DRAFT change order on a contract with the next number.
func (w *ChangeOrderWorkflow) Create(ctx context.Context, actor Actor, contractID ContractID, in CreateChangeOrderInput) (*ChangeOrder, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	var co *ChangeOrder
	err := w.inTx(ctx, func(s Store) error {
		o, err := lockOwner(ctx, s, actor, ContractParent(contractID), "")
		if err != nil {
			return err
		}
		c := o.contract
		maxNumber, err := s.MaxChangeOrderNumber(ctx, contractID)
		if err != nil {
			return err
		}
		now := w.now()
		c.ChangeOrderSeq = NextChangeOrderNumber(c.ChangeOrderSeq, maxNumber)
		c.UpdatedAt = now
		if err := s.UpdateContract(ctx, c); err != nil {
			return err
		}
		co = &ChangeOrder{
			ID:          ChangeOrderID(w.newID()),
			ContractID:  contractID,
			Number:      c.ChangeOrderSeq,
			Title:       in.Title,
			Description: in.Description,
			Reason:      in.Reason,
			Status:      ChangeOrderDraft,
			CreatedBy:   actor.UserID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.CreateChangeOrder(ctx, co); err != nil {
			return err
		}
		if len(in.LineItems) == 0 {
			return nil
		}
		ref := ChangeOrderParent(co.ID)
		if _, err := insertItems(ctx, s, w.engine, ref, in.LineItems); err != nil {
			return err
		}
		_, err = (&owner{ref: ref, contract: c, changeOrder: co}).recompute(ctx, s, w.engine)
		return err
	})
	if err != nil {
		return nil, err
	}
	w.log.Info().
		Str("change_order_id", string(co.ID)).
		Str("contract_id", string(contractID)).
		Int("number", co.Number).
		Msg("change order created")
	return co, nil
}

// Get returns a change order whose contract belongs to the actor's tenant.
func (w *ChangeOrderWorkflow) Get(ctx context.Context, actor Actor, id ChangeOrderID) (*ChangeOrder, error) {
	o, err := loadOwner(ctx, w.store, actor, ChangeOrderParent(id), false, "")
	if err != nil {
		return nil, err
	}
	return o.changeOrder, nil
}

// List returns a contract's change orders by number.
func (w *ChangeOrderWorkflow) List(ctx context.Context, actor Actor, contractID ContractID) ([]ChangeOrder, error) {
	if _, err := loadOwner(ctx, w.store, actor, ContractParent(contractID), false, ""); err != nil {
		return nil, err
	}
	return w.store.ListChangeOrders(ctx, contractID)
}

// Update edits the header of a DRAFT change order.
func (w *ChangeOrderWorkflow) Update(ctx context.Context, actor Actor, id ChangeOrderID, in UpdateChangeOrderInput) (*ChangeOrder, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	var co *ChangeOrder
	err := w.inTx(ctx, func(s Store) error {
		o, err := lockOwner(ctx, s, actor, ChangeOrderParent(id), "edit")
		if err != nil {
			return err
		}
		co = o.changeOrder
		if in.Title != nil {
			co.Title = *in.Title
		}
		if in.Description != nil {
			co.Description = *in.Description
		}
		if in.Reason != nil {
			co.Reason = *in.Reason
		}
		co.UpdatedAt = w.now()
		return s.UpdateChangeOrder(ctx, co)
	})
	if err != nil {
		return nil, err
	}
	return co, nil
}

// Delete removes a DRAFT or REJECTED change order with its line items.
func (w *ChangeOrderWorkflow) Delete(ctx context.Context, actor Actor, id ChangeOrderID) error {
	return w.inTx(ctx, func(s Store) error {
		o, err := lockOwner(ctx, s, actor, ChangeOrderParent(id), "")
		if err != nil {
			return err
		}
		switch o.changeOrder.Status {
		case ChangeOrderDraft, ChangeOrderRejected:
		default:
			return &StateError{Entity: "change order", ID: string(id), Status: string(o.changeOrder.Status), Operation: "delete"}
		}
		return s.DeleteChangeOrder(ctx, id)
	})
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Submit moves a DRAFT change order to PENDING_APPROVAL and freezes its total.
func (w *ChangeOrderWorkflow) Submit(ctx context.Context, actor Actor, id ChangeOrderID) (*ChangeOrder, error) {
	return w.transition(ctx, actor, id, ChangeOrderPendingApproval, func(s Store, o *owner, now time.Time) error {
		o.changeOrder.SubmittedBy = actor.UserID
		o.changeOrder.SubmittedAt = &now
		_, err := o.recompute(ctx, s, w.engine)
		return err
	})
}

// Approve resolves a pending change order as APPROVED.
func (w *ChangeOrderWorkflow) Approve(ctx context.Context, actor Actor, id ChangeOrderID, comment string) (*ChangeOrder, error) {
	return w.transition(ctx, actor, id, ChangeOrderApproved, func(_ Store, o *owner, now time.Time) error {
		o.changeOrder.ApprovedBy = actor.UserID
		o.changeOrder.ApprovedAt = &now
		o.changeOrder.ApprovalComment = comment
		return nil
	})
}

// Reject resolves a pending change order as REJECTED. A reason is required.
func (w *ChangeOrderWorkflow) Reject(ctx context.Context, actor Actor, id ChangeOrderID, reason string) (*ChangeOrder, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, invalidField("reason", "required", "rejection reason is required")
	}
	return w.transition(ctx, actor, id, ChangeOrderRejected, func(_ Store, o *owner, now time.Time) error {
		o.changeOrder.RejectedBy = actor.UserID
		o.changeOrder.RejectedAt = &now
		o.changeOrder.RejectionReason = reason
		return nil
	})
}

func (w *ChangeOrderWorkflow) transition(ctx context.Context, actor Actor, id ChangeOrderID, to ChangeOrderStatus,
	apply func(Store, *owner, time.Time) error) (*ChangeOrder, error) {
	var (
		co   *ChangeOrder
		from ChangeOrderStatus
	)
	err := w.inTx(ctx, func(s Store) error {
		o, err := lockOwner(ctx, s, actor, ChangeOrderParent(id), "")
		if err != nil {
			return err
		}
		co = o.changeOrder
		from = co.Status
		if !CanTransition(from, to) {
			return &TransitionError{Entity: "change order", ID: string(id), From: string(from), To: string(to)}
		}
		now := w.now()
		co.Status = to
		co.UpdatedAt = now
		if err := apply(s, o, now); err != nil {
			return err
		}
		return s.UpdateChangeOrder(ctx, co)
	})
	if err != nil {
		return nil, err
	}
	w.log.Info().
		Str("change_order_id", string(id)).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("actor", string(actor.UserID)).
		Msg("change order transition")
	return co, nil
}
