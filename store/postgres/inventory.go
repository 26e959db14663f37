package postgres

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
		e        ledger.InventoryEntry
		minLevel decimal.NullDecimal
	)
	err := row.Scan(
		&e.ID, &e.TenantID, &e.ItemID, &e.ProjectID, &e.PurchasedQty, &e.UsedQty,
		&minLevel, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.MinStockLevel = decPtr(minLevel)
	return &e, nil
}

func (q *queries) CreateInventoryEntry(ctx context.Context, e *ledger.InventoryEntry) error {
	_, err := q.q.Exec(ctx, `
		INSERT INTO inventory_entries (`+entryColumns+`)
		VALUES (`+valuesList(9)+`)`,
		e.ID, e.TenantID, e.ItemID, e.ProjectID, e.PurchasedQty, e.UsedQty,
		e.MinStockLevel, e.CreatedAt, e.UpdatedAt,
	)
	return mapErr(err, "inventory entry", string(e.ItemID)+"/"+string(e.ProjectID))
}

func (q *queries) GetInventoryEntry(ctx context.Context, id ledger.EntryID) (*ledger.InventoryEntry, error) {
	return q.getEntry(ctx, id, "")
}

func (q *queries) GetInventoryEntryForUpdate(ctx context.Context, id ledger.EntryID) (*ledger.InventoryEntry, error) {
	return q.getEntry(ctx, id, q.lock)
}

func (q *queries) getEntry(ctx context.Context, id ledger.EntryID, lock string) (*ledger.InventoryEntry, error) {
	row := q.q.QueryRow(ctx, `SELECT `+entryColumns+` FROM inventory_entries WHERE id = $1`+lock, id)
	e, err := scanEntry(row)
	if err != nil {
		return nil, mapErr(err, "inventory entry", string(id))
	}
	return e, nil
}

func (q *queries) FindInventoryEntryForUpdate(ctx context.Context, tenantID ledger.TenantID, itemID ledger.ItemID, projectID ledger.ProjectID) (*ledger.InventoryEntry, error) {
	row := q.q.QueryRow(ctx, `SELECT `+entryColumns+` FROM inventory_entries
		WHERE tenant_id = $1 AND item_id = $2 AND project_id = $3`+q.lock,
		tenantID, itemID, projectID)
	e, err := scanEntry(row)
	if err != nil {
		return nil, mapErr(err, "inventory entry", string(itemID)+"/"+string(projectID))
	}
	return e, nil
}

// LockOrCreateInventoryEntry inserts with ON CONFLICT DO NOTHING, then
// locks whichever row holds the key. A concurrent first insert makes this
// one wait on the unique index; once that commits, the SELECT (a fresh
// snapshot under READ COMMITTED) finds and locks the winner's row.
func (q *queries) LockOrCreateInventoryEntry(ctx context.Context, e *ledger.InventoryEntry) (*ledger.InventoryEntry, error) {
	_, err := q.q.Exec(ctx, `
		INSERT INTO inventory_entries (`+entryColumns+`)
		VALUES (`+valuesList(9)+`)
		ON CONFLICT (tenant_id, item_id, project_id) DO NOTHING`,
		e.ID, e.TenantID, e.ItemID, e.ProjectID, e.PurchasedQty, e.UsedQty,
		e.MinStockLevel, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err, "inventory entry", string(e.ItemID)+"/"+string(e.ProjectID))
	}
	row := q.q.QueryRow(ctx, `SELECT `+entryColumns+` FROM inventory_entries
		WHERE tenant_id = $1 AND item_id = $2 AND project_id = $3`+q.lock,
		e.TenantID, e.ItemID, e.ProjectID)
	locked, err := scanEntry(row)
	if err != nil {
		return nil, mapErr(err, "inventory entry", string(e.ItemID)+"/"+string(e.ProjectID))
	}
	return locked, nil
}

func (q *queries) ListInventoryEntries(ctx context.Context, f ledger.InventoryFilter) ([]ledger.InventoryEntry, error) {
	var (
		p     placeholders
		where []string
	)
	add := func(col, v string) {
		if v != "" {
			where = append(where, col+" = "+p.add(v))
		}
	}
	add("tenant_id", string(f.TenantID))
	add("project_id", string(f.ProjectID))
	add("item_id", string(f.ItemID))

	query := `SELECT ` + entryColumns + ` FROM inventory_entries`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY item_id, project_id`

	rows, err := q.q.Query(ctx, query, p.args...)
	if err != nil {
		return nil, mapErr(err, "inventory entry", "")
	}
	out, err := collect(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory entries: %w", err)
	}
	return out, nil
}

func (q *queries) UpdateInventoryEntry(ctx context.Context, e *ledger.InventoryEntry) error {
	tag, err := q.q.Exec(ctx, `
		UPDATE inventory_entries SET
			purchased_qty = $1, used_qty = $2, min_stock_level = $3, updated_at = $4
		WHERE id = $5`,
		e.PurchasedQty, e.UsedQty, e.MinStockLevel, e.UpdatedAt,
		e.ID,
	)
	return mustAffect(tag, err, "inventory entry", string(e.ID))
}

// =============================================================================
// INVENTORY LOG (append-only, enforced by trigger)
// =============================================================================

const inventoryTxColumns = `id, entry_id, kind, quantity, unit_cost, total_cost, vendor_id,
	notes, occurred_at, created_by, created_at`

func (q *queries) AppendInventoryTransaction(ctx context.Context, tx *ledger.InventoryTransaction) error {
	_, err := q.q.Exec(ctx, `
		INSERT INTO inventory_transactions (`+inventoryTxColumns+`)
		VALUES (`+valuesList(11)+`)`,
		tx.ID, tx.EntryID, tx.Kind, tx.Quantity, tx.UnitCost, tx.TotalCost, tx.VendorID,
		tx.Notes, tx.OccurredAt, tx.CreatedBy, tx.CreatedAt,
	)
	return mapErr(err, "inventory transaction", string(tx.ID))
}

func (q *queries) ListInventoryTransactions(ctx context.Context, entryID ledger.EntryID) ([]ledger.InventoryTransaction, error) {
	rows, err := q.q.Query(ctx, `
		SELECT `+inventoryTxColumns+` FROM inventory_transactions
		WHERE entry_id = $1
		ORDER BY occurred_at, created_at, seq`, entryID)
	if err != nil {
		return nil, mapErr(err, "inventory transaction", "")
	}
	out, err := collect(rows, func(row rowScanner) (*ledger.InventoryTransaction, error) {
		var (
			tx              ledger.InventoryTransaction
			unitCost, total decimal.NullDecimal
		)
		if err := row.Scan(
			&tx.ID, &tx.EntryID, &tx.Kind, &tx.Quantity, &unitCost, &total, &tx.VendorID,
			&tx.Notes, &tx.OccurredAt, &tx.CreatedBy, &tx.CreatedAt,
		); err != nil {
			return nil, err
		}
		tx.UnitCost = decPtr(unitCost)
		tx.TotalCost = decPtr(total)
		return &tx, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory transactions: %w", err)
	}
	return out, nil
}

// Interface guard for the tx-bound store.
var _ ledger.Store = (*queries)(nil)
