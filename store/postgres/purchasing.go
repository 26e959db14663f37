package postgres

import (
	"context"
	"fmt"

	"github.com/crudexec/construction-sub006/ledger"
)

// =============================================================================
// PURCHASE ORDERS
// =============================================================================

const purchaseOrderColumns = `id, tenant_id, po_number, vendor_id, project_id, status, notes,
	delivered_date, created_by, created_at, updated_at`

const poLineColumns = `id, purchase_order_id, item_id, description, unit, quantity,
	received_quantity, unit_price, position`

func (q *queries) CreatePurchaseOrder(ctx context.Context, po *ledger.PurchaseOrder) error {
	_, err := q.q.Exec(ctx, `
		INSERT INTO purchase_orders (`+purchaseOrderColumns+`)
		VALUES (`+valuesList(11)+`)`,
		po.ID, po.TenantID, po.PONumber, po.VendorID, po.ProjectID, po.Status, po.Notes,
		po.DeliveredDate, po.CreatedBy, po.CreatedAt, po.UpdatedAt,
	)
	if err != nil {
		return mapErr(err, "purchase order", po.PONumber)
	}
	for _, l := range po.Lines {
		_, err := q.q.Exec(ctx, `
			INSERT INTO purchase_order_lines (`+poLineColumns+`)
			VALUES (`+valuesList(9)+`)`,
			l.ID, po.ID, l.ItemID, l.Description, l.Unit, l.Quantity,
			l.ReceivedQuantity, l.UnitPrice, l.Position,
		)
		if err != nil {
			return mapErr(err, "purchase order line", string(l.ID))
		}
	}
	return nil
}

func (q *queries) GetPurchaseOrder(ctx context.Context, id ledger.PurchaseOrderID) (*ledger.PurchaseOrder, error) {
	return q.getPurchaseOrder(ctx, id, "")
}

// GetPurchaseOrderForUpdate locks the header row; lines are only written
// by holders of that lock.
func (q *queries) GetPurchaseOrderForUpdate(ctx context.Context, id ledger.PurchaseOrderID) (*ledger.PurchaseOrder, error) {
	return q.getPurchaseOrder(ctx, id, q.lock)
}

func (q *queries) getPurchaseOrder(ctx context.Context, id ledger.PurchaseOrderID, lock string) (*ledger.PurchaseOrder, error) {
	var po ledger.PurchaseOrder
	err := q.q.QueryRow(ctx, `SELECT `+purchaseOrderColumns+` FROM purchase_orders WHERE id = $1`+lock, id).Scan(
		&po.ID, &po.TenantID, &po.PONumber, &po.VendorID, &po.ProjectID, &po.Status, &po.Notes,
		&po.DeliveredDate, &po.CreatedBy, &po.CreatedAt, &po.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err, "purchase order", string(id))
	}

	rows, err := q.q.Query(ctx, `
		SELECT `+poLineColumns+` FROM purchase_order_lines
		WHERE purchase_order_id = $1
		ORDER BY position, id`, id)
	if err != nil {
		return nil, mapErr(err, "purchase order line", "")
	}
	po.Lines, err = collect(rows, func(row rowScanner) (*ledger.PurchaseOrderLine, error) {
		var l ledger.PurchaseOrderLine
		err := row.Scan(
			&l.ID, &l.PurchaseOrderID, &l.ItemID, &l.Description, &l.Unit, &l.Quantity,
			&l.ReceivedQuantity, &l.UnitPrice, &l.Position,
		)
		return &l, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load purchase order lines: %w", err)
	}
	return &po, nil
}

func (q *queries) UpdatePurchaseOrder(ctx context.Context, po *ledger.PurchaseOrder) error {
	tag, err := q.q.Exec(ctx, `
		UPDATE purchase_orders SET
			vendor_id = $1, project_id = $2, status = $3, notes = $4, delivered_date = $5, updated_at = $6
		WHERE id = $7`,
		po.VendorID, po.ProjectID, po.Status, po.Notes, po.DeliveredDate, po.UpdatedAt,
		po.ID,
	)
	return mustAffect(tag, err, "purchase order", string(po.ID))
}

// UpdatePurchaseOrderLine relies on po_lines_received_within_ordered to
// reject a counter above the ordered quantity.
func (q *queries) UpdatePurchaseOrderLine(ctx context.Context, line *ledger.PurchaseOrderLine) error {
	tag, err := q.q.Exec(ctx,
		`UPDATE purchase_order_lines SET received_quantity = $1 WHERE id = $2`,
		line.ReceivedQuantity, line.ID,
	)
	return mustAffect(tag, err, "purchase order line", string(line.ID))
}

// =============================================================================
// PRICE COMPARISONS
// =============================================================================

const priceColumns = `id, tenant_id, item_id, vendor_id, unit_price, is_preferred, lead_time_days,
	notes, last_purchase_date, total_purchased_qty, total_purchased_value, created_at, updated_at`

func scanPrice(row rowScanner) (*ledger.PriceComparison, error) {
	var p ledger.PriceComparison
	err := row.Scan(
		&p.ID, &p.TenantID, &p.ItemID, &p.VendorID, &p.UnitPrice, &p.IsPreferred, &p.LeadTimeDays,
		&p.Notes, &p.LastPurchaseDate, &p.TotalPurchasedQty, &p.TotalPurchasedValue, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func priceKey(itemID ledger.ItemID, vendorID ledger.VendorID) string {
	return string(itemID) + "/" + string(vendorID)
}

func (q *queries) GetPrice(ctx context.Context, tenantID ledger.TenantID, itemID ledger.ItemID, vendorID ledger.VendorID) (*ledger.PriceComparison, error) {
	row := q.q.QueryRow(ctx, `SELECT `+priceColumns+` FROM price_comparisons
		WHERE tenant_id = $1 AND item_id = $2 AND vendor_id = $3`, tenantID, itemID, vendorID)
	p, err := scanPrice(row)
	if err != nil {
		return nil, mapErr(err, "price comparison", priceKey(itemID, vendorID))
	}
	return p, nil
}

func (q *queries) ListPrices(ctx context.Context, tenantID ledger.TenantID, itemID ledger.ItemID) ([]ledger.PriceComparison, error) {
	rows, err := q.q.Query(ctx, `
		SELECT `+priceColumns+` FROM price_comparisons
		WHERE tenant_id = $1 AND item_id = $2
		ORDER BY unit_price, vendor_id`, tenantID, itemID)
	if err != nil {
		return nil, mapErr(err, "price comparison", "")
	}
	out, err := collect(rows, scanPrice)
	if err != nil {
		return nil, fmt.Errorf("failed to list prices: %w", err)
	}
	return out, nil
}

func (q *queries) SavePrice(ctx context.Context, p *ledger.PriceComparison) error {
	_, err := q.q.Exec(ctx, `
		INSERT INTO price_comparisons (`+priceColumns+`)
		VALUES (`+valuesList(13)+`)
		ON CONFLICT (tenant_id, item_id, vendor_id) DO UPDATE SET
			unit_price = EXCLUDED.unit_price,
			is_preferred = EXCLUDED.is_preferred,
			lead_time_days = EXCLUDED.lead_time_days,
			notes = EXCLUDED.notes,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.TenantID, p.ItemID, p.VendorID, p.UnitPrice, p.IsPreferred, p.LeadTimeDays,
		p.Notes, p.LastPurchaseDate, p.TotalPurchasedQty, p.TotalPurchasedValue, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil && p.IsPreferred {
		return mapErr(err, "preferred vendor", string(p.ItemID))
	}
	return mapErr(err, "price comparison", priceKey(p.ItemID, p.VendorID))
}

// AccumulatePurchase is a single upsert, so it is atomic with or without
// an enclosing transaction. A new row is seeded with acc.UnitPrice; an
// existing row keeps its catalog price.
func (q *queries) AccumulatePurchase(ctx context.Context, acc ledger.PurchaseAccumulation) (*ledger.PriceComparison, error) {
	row := q.q.QueryRow(ctx, `
		INSERT INTO price_comparisons (
			id, tenant_id, item_id, vendor_id, unit_price, last_purchase_date,
			total_purchased_qty, total_purchased_value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $6, $6)
		ON CONFLICT (tenant_id, item_id, vendor_id) DO UPDATE SET
			total_purchased_qty = price_comparisons.total_purchased_qty + EXCLUDED.total_purchased_qty,
			total_purchased_value = price_comparisons.total_purchased_value + EXCLUDED.total_purchased_value,
			last_purchase_date = EXCLUDED.last_purchase_date,
			updated_at = EXCLUDED.updated_at
		RETURNING `+priceColumns,
		acc.ID, acc.TenantID, acc.ItemID, acc.VendorID, acc.UnitPrice, acc.At,
		acc.Quantity, acc.Value,
	)
	p, err := scanPrice(row)
	if err != nil {
		return nil, mapErr(err, "price comparison", priceKey(acc.ItemID, acc.VendorID))
	}
	return p, nil
}

func (q *queries) ClearPreferred(ctx context.Context, tenantID ledger.TenantID, itemID ledger.ItemID) error {
	_, err := q.q.Exec(ctx, `UPDATE price_comparisons SET is_preferred = FALSE
		WHERE tenant_id = $1 AND item_id = $2 AND is_preferred`, tenantID, itemID)
	return mapErr(err, "price comparison", string(itemID))
}

func (q *queries) DeletePrice(ctx context.Context, tenantID ledger.TenantID, itemID ledger.ItemID, vendorID ledger.VendorID) error {
	tag, err := q.q.Exec(ctx, `DELETE FROM price_comparisons
		WHERE tenant_id = $1 AND item_id = $2 AND vendor_id = $3`, tenantID, itemID, vendorID)
	return mustAffect(tag, err, "price comparison", priceKey(itemID, vendorID))
}
