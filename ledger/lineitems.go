/*
lineitems.go - LineItemSet operations shared by contracts and change orders

PURPOSE:
  A line item set is the ordered collection of priced rows owned by a
  Contract or a ChangeOrder. Every add, update or delete recomputes the
  owner's aggregate (Contract.TotalSum or ChangeOrder.TotalAmount) from
  the full current set, inside the same transaction, after locking the
  owner row. The aggregate is never adjusted incrementally.

FROZEN SETS:
  A change order's set can only change while the change order is DRAFT.
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// LineTotal is quantity * unitPrice.
func LineTotal(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitPrice)
}

// SumLineTotals adds the TotalPrice of every item.
func SumLineTotals(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, li := range items {
		total = total.Add(li.TotalPrice)
	}
	return total
}

// NextOrder is one past the highest order in the set, 0 for an empty set.
func NextOrder(items []LineItem) int {
	if len(items) == 0 {
		return 0
	}
	highest := items[0].Order
	for _, li := range items[1:] {
		if li.Order > highest {
			highest = li.Order
		}
	}
	return highest + 1
}

// LineItemInput describes a new line item. Quantity and UnitPrice may be
// zero but must be present.
type LineItemInput struct {
	Description string           `json:"description" validate:"required"`
	Quantity    *decimal.Decimal `json:"quantity" validate:"required,gte=0"`
	Unit        string           `json:"unit" validate:"required"`
	UnitPrice   *decimal.Decimal `json:"unitPrice" validate:"required,gte=0"`
	Notes       string           `json:"notes"`
	Order       *int             `json:"order" validate:"omitempty,gte=0"`
}

// LineItemPatch changes any subset of a line item's fields.
type LineItemPatch struct {
	Description *string          `json:"description" validate:"omitempty,min=1"`
	Quantity    *decimal.Decimal `json:"quantity" validate:"omitempty,gte=0"`
	Unit        *string          `json:"unit" validate:"omitempty,min=1"`
	UnitPrice   *decimal.Decimal `json:"unitPrice" validate:"omitempty,gte=0"`
	Notes       *string          `json:"notes"`
	Order       *int             `json:"order" validate:"omitempty,gte=0"`
}

// Apply merges the patch into li and recomputes its total from the
// resulting quantity and unit price.
func (p LineItemPatch) Apply(li *LineItem) {
	if p.Description != nil {
		li.Description = *p.Description
	}
	if p.Quantity != nil {
		li.Quantity = *p.Quantity
	}
	if p.Unit != nil {
		li.Unit = *p.Unit
	}
	if p.UnitPrice != nil {
		li.UnitPrice = *p.UnitPrice
	}
	if p.Notes != nil {
		li.Notes = *p.Notes
	}
	if p.Order != nil {
		li.Order = *p.Order
	}
	li.TotalPrice = LineTotal(li.Quantity, li.UnitPrice)
}

// =============================================================================
// OWNER DOCUMENT
// =============================================================================

// owner is a locked document holding a line item set.
type owner struct {
	ref         ParentRef
	contract    *Contract
	changeOrder *ChangeOrder
}

// lockOwner loads and locks the document behind ref for the rest of the
// transaction. A change order must be DRAFT.
func lockOwner(ctx context.Context, s Store, actor Actor, ref ParentRef, op string) (*owner, error) {
	return loadOwner(ctx, s, actor, ref, true, op)
}

func loadOwner(ctx context.Context, s Store, actor Actor, ref ParentRef, lock bool, op string) (*owner, error) {
	switch ref.Kind {
	case ParentContract:
		getContract := s.GetContract
		if lock {
			getContract = s.GetContractForUpdate
		}
		c, err := getContract(ctx, ContractID(ref.ID))
		if err != nil {
			return nil, err
		}
		if c.TenantID != actor.TenantID {
			return nil, &NotFoundError{Entity: "contract", ID: ref.ID}
		}
		return &owner{ref: ref, contract: c}, nil
	case ParentChangeOrder:
		getChangeOrder := s.GetChangeOrder
		if lock {
			getChangeOrder = s.GetChangeOrderForUpdate
		}
		co, err := getChangeOrder(ctx, ChangeOrderID(ref.ID))
		if err != nil {
			return nil, err
		}
		c, err := s.GetContract(ctx, co.ContractID)
		if err != nil {
			return nil, err
		}
		if c.TenantID != actor.TenantID {
			return nil, &NotFoundError{Entity: "change order", ID: ref.ID}
		}
		if op != "" && co.Status != ChangeOrderDraft {
			return nil, &StateError{Entity: "change order", ID: ref.ID, Status: string(co.Status), Operation: op}
		}
		return &owner{ref: ref, contract: c, changeOrder: co}, nil
	default:
		return nil, invalidField("parent", "oneof", "unknown line item owner "+string(ref.Kind))
	}
}

// stored returns the aggregate currently persisted on the owner.
func (o *owner) stored() *decimal.Decimal {
	if o.changeOrder != nil {
		total := o.changeOrder.TotalAmount
		return &total
	}
	return o.contract.TotalSum
}

// recompute sums the owner's current set and persists the aggregate.
func (o *owner) recompute(ctx context.Context, s Store, e *engine) (decimal.Decimal, error) {
	items, err := s.ListLineItems(ctx, o.ref)
	if err != nil {
		return decimal.Zero, err
	}
	total := SumLineTotals(items)
	now := e.now()
	if o.changeOrder != nil {
		o.changeOrder.TotalAmount = total
		o.changeOrder.UpdatedAt = now
		err = s.UpdateChangeOrder(ctx, o.changeOrder)
	} else {
		o.contract.TotalSum = &total
		o.contract.UpdatedAt = now
		err = s.UpdateContract(ctx, o.contract)
	}
	if err != nil {
		return decimal.Zero, err
	}
	e.log.Debug().
		Str("owner", string(o.ref.Kind)).
		Str("owner_id", o.ref.ID).
		Int("items", len(items)).
		Str("total", total.String()).
		Msg("aggregate recomputed")
	return total, nil
}

// insertItems appends new rows to the owner's set, assigning orders as needed.
func insertItems(ctx context.Context, s Store, e *engine, ref ParentRef, inputs []LineItemInput) ([]LineItem, error) {
	existing, err := s.ListLineItems(ctx, ref)
	if err != nil {
		return nil, err
	}
	next := NextOrder(existing)
	now := e.now()
	created := make([]LineItem, 0, len(inputs))
	for _, in := range inputs {
		li := LineItem{
			ID:          LineItemID(e.newID()),
			Parent:      ref,
			Description: in.Description,
			Quantity:    *in.Quantity,
			Unit:        in.Unit,
			UnitPrice:   *in.UnitPrice,
			TotalPrice:  LineTotal(*in.Quantity, *in.UnitPrice),
			Notes:       in.Notes,
			Order:       next,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if in.Order != nil {
			li.Order = *in.Order
		}
		if li.Order >= next {
			next = li.Order + 1
		}
		if err := s.CreateLineItem(ctx, &li); err != nil {
			return nil, err
		}
		created = append(created, li)
	}
	return created, nil
}

// =============================================================================
// SET OPERATIONS
// =============================================================================

// AddLineItem appends an item to the set of a contract or a DRAFT change order.
func (l *ContractLedger) AddLineItem(ctx context.Context, actor Actor, parent ParentRef, in LineItemInput) (*LineItem, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	var created LineItem
	err := l.inTx(ctx, func(s Store) error {
		o, err := lockOwner(ctx, s, actor, parent, "add line items to")
		if err != nil {
			return err
		}
		items, err := insertItems(ctx, s, l.engine, parent, []LineItemInput{in})
		if err != nil {
			return err
		}
		created = items[0]
		_, err = o.recompute(ctx, s, l.engine)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateLineItem applies patch to an item of parent's set.
func (l *ContractLedger) UpdateLineItem(ctx context.Context, actor Actor, parent ParentRef, id LineItemID, patch LineItemPatch) (*LineItem, error) {
	if err := Validate(patch); err != nil {
		return nil, err
	}
	var updated *LineItem
	err := l.inTx(ctx, func(s Store) error {
		o, err := lockOwner(ctx, s, actor, parent, "edit line items of")
		if err != nil {
			return err
		}
		li, err := s.GetLineItem(ctx, id)
		if err != nil {
			return err
		}
		if li.Parent != parent {
			return &NotFoundError{Entity: "line item", ID: string(id)}
		}
		patch.Apply(li)
		li.UpdatedAt = l.now()
		if err := s.UpdateLineItem(ctx, li); err != nil {
			return err
		}
		updated = li
		_, err = o.recompute(ctx, s, l.engine)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteLineItem removes an item and recomputes the owner's aggregate from
// the remaining siblings.
func (l *ContractLedger) DeleteLineItem(ctx context.Context, actor Actor, parent ParentRef, id LineItemID) error {
	return l.inTx(ctx, func(s Store) error {
		o, err := lockOwner(ctx, s, actor, parent, "remove line items from")
		if err != nil {
			return err
		}
		li, err := s.GetLineItem(ctx, id)
		if err != nil {
			return err
		}
		if li.Parent != parent {
			return &NotFoundError{Entity: "line item", ID: string(id)}
		}
		if err := s.DeleteLineItem(ctx, id); err != nil {
			return err
		}
		_, err = o.recompute(ctx, s, l.engine)
		return err
	})
}

// ListLineItems returns parent's set in display order.
func (l *ContractLedger) ListLineItems(ctx context.Context, actor Actor, parent ParentRef) ([]LineItem, error) {
	if _, err := loadOwner(ctx, l.store, actor, parent, false, ""); err != nil {
		return nil, err
	}
	return l.store.ListLineItems(ctx, parent)
}
