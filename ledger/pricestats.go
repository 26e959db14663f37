package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// VendorPriceStats maintains per (item, vendor) catalog prices and the
// purchase accumulators fed by receiving and inventory purchases.
type VendorPriceStats struct {
	*engine
}

type SetPriceInput struct {
	UnitPrice    *decimal.Decimal `json:"unitPrice" validate:"required,gte=0"`
	LeadTimeDays *int             `json:"leadTimeDays" validate:"omitempty,gte=0"`
	Notes        string           `json:"notes"`
}

func (v *VendorPriceStats) ownedPrice(ctx context.Context, s Store, actor Actor, itemID ItemID, vendorID VendorID) (*PriceComparison, error) {
	p, err := s.GetPrice(ctx, actor.TenantID, itemID, vendorID)
	if err != nil {
		return nil, err
	}
	if p.TenantID != actor.TenantID {
		return nil, &NotFoundError{Entity: "price comparison", ID: string(itemID) + "/" + string(vendorID)}
	}
	return p, nil
}

// SetPrice creates or edits the catalog price of an item at a vendor.
// The purchase accumulators are never changed here.
func (v *VendorPriceStats) SetPrice(ctx context.Context, actor Actor, itemID ItemID, vendorID VendorID, in SetPriceInput) (*PriceComparison, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	var p *PriceComparison
	err := v.inTx(ctx, func(s Store) error {
		now := v.now()
		existing, err := v.ownedPrice(ctx, s, actor, itemID, vendorID)
		switch {
		case err == nil:
			p = existing
		case IsNotFound(err):
			p = &PriceComparison{
				ID:                  PriceID(v.newID()),
				TenantID:            actor.TenantID,
				ItemID:              itemID,
				VendorID:            vendorID,
				TotalPurchasedQty:   decimal.Zero,
				TotalPurchasedValue: decimal.Zero,
				CreatedAt:           now,
			}
		default:
			return err
		}
		p.UnitPrice = *in.UnitPrice
		p.LeadTimeDays = in.LeadTimeDays
		p.Notes = in.Notes
		p.UpdatedAt = now
		return s.SavePrice(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPrices returns the item's vendor prices, cheapest first.
func (v *VendorPriceStats) ListPrices(ctx context.Context, actor Actor, itemID ItemID) ([]PriceComparison, error) {
	return v.store.ListPrices(ctx, actor.TenantID, itemID)
}

// DeletePrice removes a price row.
func (v *VendorPriceStats) DeletePrice(ctx context.Context, actor Actor, itemID ItemID, vendorID VendorID) error {
	return v.inTx(ctx, func(s Store) error {
		if _, err := v.ownedPrice(ctx, s, actor, itemID, vendorID); err != nil {
			return err
		}
		return s.DeletePrice(ctx, actor.TenantID, itemID, vendorID)
	})
}

// SetPreferred makes vendorID the only preferred vendor for itemID. The
// vendor must already have a price row.
func (v *VendorPriceStats) SetPreferred(ctx context.Context, actor Actor, itemID ItemID, vendorID VendorID) (*PriceComparison, error) {
	var p *PriceComparison
	err := v.inTx(ctx, func(s Store) error {
		var err error
		p, err = v.ownedPrice(ctx, s, actor, itemID, vendorID)
		if err != nil {
			return err
		}
		if err := s.ClearPreferred(ctx, actor.TenantID, itemID); err != nil {
			return err
		}
		p.IsPreferred = true
		p.UpdatedAt = v.now()
		return s.SavePrice(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	v.log.Info().Str("item_id", string(itemID)).Str("vendor_id", string(vendorID)).Msg("preferred vendor set")
	return p, nil
}

// ClearPreferred unsets the preferred flag on the tenant's rows of itemID.
func (v *VendorPriceStats) ClearPreferred(ctx context.Context, actor Actor, itemID ItemID) error {
	return v.inTx(ctx, func(s Store) error {
		return s.ClearPreferred(ctx, actor.TenantID, itemID)
	})
}

// UpsertOnPurchase accumulates a purchase of quantity at unitPrice on the
// (item, vendor) row, creating it seeded with unitPrice if absent.
func (v *VendorPriceStats) UpsertOnPurchase(ctx context.Context, actor Actor, itemID ItemID, vendorID VendorID,
	quantity, unitPrice decimal.Decimal, at time.Time) (*PriceComparison, error) {
	var p *PriceComparison
	err := v.inTx(ctx, func(s Store) error {
		var err error
		p, err = v.accumulate(ctx, s, actor, itemID, vendorID, quantity, unitPrice, at)
		return err
	})
	return p, err
}

// accumulate runs inside the caller's transaction.
func (v *VendorPriceStats) accumulate(ctx context.Context, s Store, actor Actor, itemID ItemID, vendorID VendorID,
	quantity, unitPrice decimal.Decimal, at time.Time) (*PriceComparison, error) {
	if quantity.IsNegative() || unitPrice.IsNegative() {
		return nil, invalidField("quantity", "gte", "must be at least 0")
	}
	p, err := s.AccumulatePurchase(ctx, PurchaseAccumulation{
		ID:        PriceID(v.newID()),
		TenantID:  actor.TenantID,
		ItemID:    itemID,
		VendorID:  vendorID,
		Quantity:  quantity,
		Value:     quantity.Mul(unitPrice),
		UnitPrice: unitPrice,
		At:        at,
	})
	if err != nil {
		return nil, err
	}
	if p.TenantID != actor.TenantID {
		return nil, &NotFoundError{Entity: "price comparison", ID: string(itemID) + "/" + string(vendorID)}
	}
	return p, nil
}
