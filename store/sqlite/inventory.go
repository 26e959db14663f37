package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/crudexec/construction-sub006/ledger"
)

// =============================================================================
// INVENTORY ENTRIES
// =============================================================================

const entryColumns = `id, tenant_id, item_id, project_id, purchased_qty, used_qty,
	min_stock_level, created_at, updated_at`

func scanEntry(row rowScanner) (*ledger.InventoryEntry, error) {
	var (
		e                ledger.InventoryEntry
		minLevel         decimal.NullDecimal
		created, updated string
	)
	err := row.Scan(
		&e.ID, &e.TenantID, &e.ItemID, &e.ProjectID, &e.PurchasedQty, &e.UsedQty,
		&minLevel, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	e.MinStockLevel = decPtr(minLevel)
	if e.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTS(updated); err != nil {
		return nil, err
	}
	return &e, nil
}

func (q *queries) CreateInventoryEntry(ctx context.Context, e *ledger.InventoryEntry) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO inventory_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TenantID, e.ItemID, e.ProjectID, e.PurchasedQty.String(), e.UsedQty.String(),
		nullDec(e.MinStockLevel), ts(e.CreatedAt), ts(e.UpdatedAt),
	)
	return mapErr(err, "inventory entry", string(e.ItemID)+"/"+string(e.ProjectID))
}

func (q *queries) GetInventoryEntry(ctx context.Context, id ledger.EntryID) (*ledger.InventoryEntry, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM inventory_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err != nil {
		return nil, mapErr(err, "inventory entry", string(id))
	}
	return e, nil
}

func (q *queries) GetInventoryEntryForUpdate(ctx context.Context, id ledger.EntryID) (*ledger.InventoryEntry, error) {
	return q.GetInventoryEntry(ctx, id)
}

func (q *queries) FindInventoryEntryForUpdate(ctx context.Context, tenantID ledger.TenantID, itemID ledger.ItemID, projectID ledger.ProjectID) (*ledger.InventoryEntry, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM inventory_entries
		WHERE tenant_id = ? AND item_id = ? AND project_id = ?`, tenantID, itemID, projectID)
	e, err := scanEntry(row)
	if err != nil {
		return nil, mapErr(err, "inventory entry", string(itemID)+"/"+string(projectID))
	}
	return e, nil
}

// LockOrCreateInventoryEntry relies on _txlock=immediate: the enclosing
// transaction already holds the write lock, so find-then-insert cannot race.
func (q *queries) LockOrCreateInventoryEntry(ctx context.Context, e *ledger.InventoryEntry) (*ledger.InventoryEntry, error) {
	existing, err := q.FindInventoryEntryForUpdate(ctx, e.TenantID, e.ItemID, e.ProjectID)
	if !ledger.IsNotFound(err) {
		return existing, err
	}
	if err := q.CreateInventoryEntry(ctx, e); err != nil {
		return nil, err
	}
	created := *e
	return &created, nil
}

func (q *queries) ListInventoryEntries(ctx context.Context, f ledger.InventoryFilter) ([]ledger.InventoryEntry, error) {
	var (
		where []string
		args  []any
	)
	for col, v := range map[string]string{
		"tenant_id":  string(f.TenantID),
		"project_id": string(f.ProjectID),
		"item_id":    string(f.ItemID),
	} {
		if v != "" {
			where = append(where, col+" = ?")
			args = append(args, v)
		}
	}
	query := `SELECT ` + entryColumns + ` FROM inventory_entries`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY item_id, project_id`

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err, "inventory entry", "")
	}
	defer rows.Close()

	out := make([]ledger.InventoryEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inventory entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (q *queries) UpdateInventoryEntry(ctx context.Context, e *ledger.InventoryEntry) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE inventory_entries SET
			purchased_qty = ?, used_qty = ?, min_stock_level = ?, updated_at = ?
		WHERE id = ?`,
		e.PurchasedQty.String(), e.UsedQty.String(), nullDec(e.MinStockLevel), ts(e.UpdatedAt),
		e.ID,
	)
	return mustAffect(res, err, "inventory entry", string(e.ID))
}

// =============================================================================
// INVENTORY LOG (append-only, enforced by triggers)
// =============================================================================

const inventoryTxColumns = `id, entry_id, kind, quantity, unit_cost, total_cost, vendor_id,
	notes, occurred_at, created_by, created_at`

func (q *queries) AppendInventoryTransaction(ctx context.Context, tx *ledger.InventoryTransaction) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO inventory_transactions (`+inventoryTxColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.EntryID, tx.Kind, tx.Quantity.String(), nullDec(tx.UnitCost), nullDec(tx.TotalCost), tx.VendorID,
		tx.Notes, ts(tx.OccurredAt), tx.CreatedBy, ts(tx.CreatedAt),
	)
	return mapErr(err, "inventory transaction", string(tx.ID))
}

func (q *queries) ListInventoryTransactions(ctx context.Context, entryID ledger.EntryID) ([]ledger.InventoryTransaction, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+inventoryTxColumns+` FROM inventory_transactions
		WHERE entry_id = ?
		ORDER BY occurred_at, created_at, rowid`, entryID)
	if err != nil {
		return nil, mapErr(err, "inventory transaction", "")
	}
	defer rows.Close()

	out := make([]ledger.InventoryTransaction, 0)
	for rows.Next() {
		var (
			tx                ledger.InventoryTransaction
			unitCost, total   decimal.NullDecimal
			occurred, created string
		)
		if err := rows.Scan(
			&tx.ID, &tx.EntryID, &tx.Kind, &tx.Quantity, &unitCost, &total, &tx.VendorID,
			&tx.Notes, &occurred, &tx.CreatedBy, &created,
		); err != nil {
			return nil, fmt.Errorf("failed to scan inventory transaction: %w", err)
		}
		tx.UnitCost = decPtr(unitCost)
		tx.TotalCost = decPtr(total)
		if tx.OccurredAt, err = parseTS(occurred); err != nil {
			return nil, err
		}
		if tx.CreatedAt, err = parseTS(created); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// Interface guard for the tx-bound store.
var _ ledger.Store = (*queries)(nil)
