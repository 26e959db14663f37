package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

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
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO purchase_orders (`+purchaseOrderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		po.ID, po.TenantID, po.PONumber, po.VendorID, po.ProjectID, po.Status, po.Notes,
		nullTS(po.DeliveredDate), po.CreatedBy, ts(po.CreatedAt), ts(po.UpdatedAt),
	)
	if err != nil {
		return mapErr(err, "purchase order", po.PONumber)
	}
	for _, l := range po.Lines {
		_, err := q.q.ExecContext(ctx, `
			INSERT INTO purchase_order_lines (`+poLineColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, po.ID, l.ItemID, l.Description, l.Unit, l.Quantity.String(),
			l.ReceivedQuantity.String(), l.UnitPrice.String(), l.Position,
		)
		if err != nil {
			return mapErr(err, "purchase order line", string(l.ID))
		}
	}
	return nil
}

func (q *queries) GetPurchaseOrder(ctx context.Context, id ledger.PurchaseOrderID) (*ledger.PurchaseOrder, error) {
	var (
		po               ledger.PurchaseOrder
		delivered        sql.NullString
		created, updated string
	)
	err := q.q.QueryRowContext(ctx, `SELECT `+purchaseOrderColumns+` FROM purchase_orders WHERE id = ?`, id).Scan(
		&po.ID, &po.TenantID, &po.PONumber, &po.VendorID, &po.ProjectID, &po.Status, &po.Notes,
		&delivered, &po.CreatedBy, &created, &updated,
	)
	if err != nil {
		return nil, mapErr(err, "purchase order", string(id))
	}
	if po.DeliveredDate, err = parseNullTS(delivered); err != nil {
		return nil, err
	}
	if po.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	if po.UpdatedAt, err = parseTS(updated); err != nil {
		return nil, err
	}

	rows, err := q.q.QueryContext(ctx, `
		SELECT `+poLineColumns+` FROM purchase_order_lines
		WHERE purchase_order_id = ?
		ORDER BY position, id`, id)
	if err != nil {
		return nil, mapErr(err, "purchase order line", "")
	}
	defer rows.Close()
	for rows.Next() {
		var l ledger.PurchaseOrderLine
		if err := rows.Scan(
			&l.ID, &l.PurchaseOrderID, &l.ItemID, &l.Description, &l.Unit, &l.Quantity,
			&l.ReceivedQuantity, &l.UnitPrice, &l.Position,
		); err != nil {
			return nil, fmt.Errorf("failed to scan purchase order line: %w", err)
		}
		po.Lines = append(po.Lines, l)
	}
	return &po, rows.Err()
}

func (q *queries) GetPurchaseOrderForUpdate(ctx context.Context, id ledger.PurchaseOrderID) (*ledger.PurchaseOrder, error) {
	return q.GetPurchaseOrder(ctx, id)
}

func (q *queries) UpdatePurchaseOrder(ctx context.Context, po *ledger.PurchaseOrder) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE purchase_orders SET
			vendor_id = ?, project_id = ?, status = ?, notes = ?, delivered_date = ?, updated_at = ?
		WHERE id = ?`,
		po.VendorID, po.ProjectID, po.Status, po.Notes, nullTS(po.DeliveredDate), ts(po.UpdatedAt),
		po.ID,
	)
	return mustAffect(res, err, "purchase order", string(po.ID))
}

// UpdatePurchaseOrderLine checks the ordered quantity in Go so the error
// carries exact decimals. The schema CHECK compares them as REAL and backs
// writes that bypass this method.
func (q *queries) UpdatePurchaseOrderLine(ctx context.Context, line *ledger.PurchaseOrderLine) error {
	var ordered decimal.Decimal
	err := q.q.QueryRowContext(ctx,
		`SELECT quantity FROM purchase_order_lines WHERE id = ?`, line.ID,
	).Scan(&ordered)
	if err != nil {
		return mapErr(err, "purchase order line", string(line.ID))
	}
	if line.ReceivedQuantity.IsNegative() || line.ReceivedQuantity.GreaterThan(ordered) {
		return fmt.Errorf("%w: line %s received %s of %s", ledger.ErrOverReceipt, line.ID, line.ReceivedQuantity, ordered)
	}
	res, err := q.q.ExecContext(ctx,
		`UPDATE purchase_order_lines SET received_quantity = ? WHERE id = ?`,
		line.ReceivedQuantity.String(), line.ID,
	)
	return mustAffect(res, err, "purchase order line", string(line.ID))
}

// =============================================================================
// PRICE COMPARISONS
// =============================================================================

const priceColumns = `id, tenant_id, item_id, vendor_id, unit_price, is_preferred, lead_time_days,
	notes, last_purchase_date, total_purchased_qty, total_purchased_value, created_at, updated_at`

func scanPrice(row rowScanner) (*ledger.PriceComparison, error) {
	var (
		p                ledger.PriceComparison
		lead             sql.NullInt64
		lastPurchase     sql.NullString
		created, updated string
	)
	err := row.Scan(
		&p.ID, &p.TenantID, &p.ItemID, &p.VendorID, &p.UnitPrice, &p.IsPreferred, &lead,
		&p.Notes, &lastPurchase, &p.TotalPurchasedQty, &p.TotalPurchasedValue, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	if lead.Valid {
		days := int(lead.Int64)
		p.LeadTimeDays = &days
	}
	if p.LastPurchaseDate, err = parseNullTS(lastPurchase); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTS(updated); err != nil {
		return nil, err
	}
	return &p, nil
}

func priceKey(itemID ledger.ItemID, vendorID ledger.VendorID) string {
	return string(itemID) + "/" + string(vendorID)
}

func (q *queries) GetPrice(ctx context.Context, tenantID ledger.TenantID, itemID ledger.ItemID, vendorID ledger.VendorID) (*ledger.PriceComparison, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+priceColumns+` FROM price_comparisons
		WHERE tenant_id = ? AND item_id = ? AND vendor_id = ?`, tenantID, itemID, vendorID)
	p, err := scanPrice(row)
	if err != nil {
		return nil, mapErr(err, "price comparison", priceKey(itemID, vendorID))
	}
	return p, nil
}

func (q *queries) ListPrices(ctx context.Context, tenantID ledger.TenantID, itemID ledger.ItemID) ([]ledger.PriceComparison, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+priceColumns+` FROM price_comparisons
		WHERE tenant_id = ? AND item_id = ? ORDER BY vendor_id`, tenantID, itemID)
	if err != nil {
		return nil, mapErr(err, "price comparison", "")
	}
	defer rows.Close()

	out := make([]ledger.PriceComparison, 0)
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price comparison: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// TEXT columns sort lexically, so price order is applied here.
	sort.SliceStable(out, func(i, j int) bool { return out[i].UnitPrice.LessThan(out[j].UnitPrice) })
	return out, nil
}

func (q *queries) SavePrice(ctx context.Context, p *ledger.PriceComparison) error {
	var lead any
	if p.LeadTimeDays != nil {
		lead = *p.LeadTimeDays
	}
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO price_comparisons (`+priceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, item_id, vendor_id) DO UPDATE SET
			unit_price = excluded.unit_price,
			is_preferred = excluded.is_preferred,
			lead_time_days = excluded.lead_time_days,
			notes = excluded.notes,
			updated_at = excluded.updated_at`,
		p.ID, p.TenantID, p.ItemID, p.VendorID, p.UnitPrice.String(), p.IsPreferred, lead,
		p.Notes, nullTS(p.LastPurchaseDate), p.TotalPurchasedQty.String(), p.TotalPurchasedValue.String(),
		ts(p.CreatedAt), ts(p.UpdatedAt),
	)
	if err != nil && p.IsPreferred {
		return mapErr(err, "preferred vendor", string(p.ItemID))
	}
	return mapErr(err, "price comparison", priceKey(p.ItemID, p.VendorID))
}

// AccumulatePurchase must run inside a transaction; Store wraps it in one.
func (q *queries) AccumulatePurchase(ctx context.Context, acc ledger.PurchaseAccumulation) (*ledger.PriceComparison, error) {
	existing, err := q.GetPrice(ctx, acc.TenantID, acc.ItemID, acc.VendorID)
	switch {
	case ledger.IsNotFound(err):
		at := acc.At
		p := &ledger.PriceComparison{
			ID:                  acc.ID,
			TenantID:            acc.TenantID,
			ItemID:              acc.ItemID,
			VendorID:            acc.VendorID,
			UnitPrice:           acc.UnitPrice,
			LastPurchaseDate:    &at,
			TotalPurchasedQty:   acc.Quantity,
			TotalPurchasedValue: acc.Value,
			CreatedAt:           at,
			UpdatedAt:           at,
		}
		if err := q.SavePrice(ctx, p); err != nil {
			return nil, err
		}
		return p, nil
	case err != nil:
		return nil, err
	}

	existing.TotalPurchasedQty = existing.TotalPurchasedQty.Add(acc.Quantity)
	existing.TotalPurchasedValue = existing.TotalPurchasedValue.Add(acc.Value)
	at := acc.At
	existing.LastPurchaseDate = &at
	existing.UpdatedAt = at
	res, err := q.q.ExecContext(ctx, `
		UPDATE price_comparisons SET
			total_purchased_qty = ?, total_purchased_value = ?, last_purchase_date = ?, updated_at = ?
		WHERE tenant_id = ? AND item_id = ? AND vendor_id = ?`,
		existing.TotalPurchasedQty.String(), existing.TotalPurchasedValue.String(), ts(at), ts(at),
		acc.TenantID, acc.ItemID, acc.VendorID,
	)
	if err := mustAffect(res, err, "price comparison", priceKey(acc.ItemID, acc.VendorID)); err != nil {
		return nil, err
	}
	return existing, nil
}

func (q *queries) ClearPreferred(ctx context.Context, tenantID ledger.TenantID, itemID ledger.ItemID) error {
	_, err := q.q.ExecContext(ctx, `UPDATE price_comparisons SET is_preferred = 0
		WHERE tenant_id = ? AND item_id = ? AND is_preferred = 1`, tenantID, itemID)
	return mapErr(err, "price comparison", string(itemID))
}

func (q *queries) DeletePrice(ctx context.Context, tenantID ledger.TenantID, itemID ledger.ItemID, vendorID ledger.VendorID) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM price_comparisons
		WHERE tenant_id = ? AND item_id = ? AND vendor_id = ?`, tenantID, itemID, vendorID)
	return mustAffect(res, err, "price comparison", priceKey(itemID, vendorID))
}
