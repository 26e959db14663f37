/*
inventory.go - Per (item, project) stock accumulators and their log

PURPOSE:
  An InventoryEntry's PurchasedQty and UsedQty only change by appending
  a purchase or usage transaction to its log. The log is append-only, so
  the accumulators can always be re-derived by replaying it.

KEY OPERATIONS:
  - RecordPurchase: appends a purchase, creating the entry on first use
  - RecordUsage: appends a usage, refusing to go below zero remaining
  - History: running balance reconstructed newest-first from Remaining
  - Verify: replays the log from zero and compares to the accumulators
*/
package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PURE LOG ARITHMETIC
// =============================================================================

// BalanceRow is one transaction with the balance around it.
type BalanceRow struct {
	Transaction   InventoryTransaction
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
}

// sortNewestFirst orders by OccurredAt, then CreatedAt, then ID, descending.
func sortNewestFirst(txs []InventoryTransaction) []InventoryTransaction {
	out := make([]InventoryTransaction, len(txs))
	copy(out, txs)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.After(b.OccurredAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return out
}

// RunningBalance walks the log newest-first starting from remaining and
// reconstructs the balance before and after each transaction.
func RunningBalance(remaining decimal.Decimal, txs []InventoryTransaction) []BalanceRow {
	ordered := sortNewestFirst(txs)
	rows := make([]BalanceRow, 0, len(ordered))
	balance := remaining
	for _, tx := range ordered {
		before := balance.Sub(tx.SignedQuantity())
		rows = append(rows, BalanceRow{Transaction: tx, BalanceBefore: before, BalanceAfter: balance})
		balance = before
	}
	return rows
}

// Replay sums the log from zero.
func Replay(txs []InventoryTransaction) (purchased, used decimal.Decimal) {
	purchased, used = decimal.Zero, decimal.Zero
	for _, tx := range txs {
		switch tx.Kind {
		case InventoryPurchase:
			purchased = purchased.Add(tx.Quantity)
		case InventoryUsage:
			used = used.Add(tx.Quantity)
		}
	}
	return purchased, used
}

// =============================================================================
// INVENTORY LEDGER
// =============================================================================

// InventoryLedger records stock movements per (item, project).
type InventoryLedger struct {
	*engine
	prices *VendorPriceStats
}

type CreateEntryInput struct {
	ItemID        ItemID           `json:"itemId" validate:"required"`
	ProjectID     ProjectID        `json:"projectId" validate:"required"`
	MinStockLevel *decimal.Decimal `json:"minStockLevel" validate:"omitempty,gte=0"`
}

type RecordPurchaseInput struct {
	ItemID      ItemID           `json:"itemId" validate:"required"`
	ProjectID   ProjectID        `json:"projectId" validate:"required"`
	Quantity    *decimal.Decimal `json:"quantity" validate:"required,gt=0"`
	UnitCost    *decimal.Decimal `json:"unitCost" validate:"required,gte=0"`
	VendorID    VendorID         `json:"vendorId"`
	PurchasedAt *time.Time       `json:"purchasedAt"`
	Notes       string           `json:"notes"`
}

type RecordUsageInput struct {
	ItemID    ItemID           `json:"itemId" validate:"required"`
	ProjectID ProjectID        `json:"projectId" validate:"required"`
	Quantity  *decimal.Decimal `json:"quantity" validate:"required,gt=0"`
	UsedAt    *time.Time       `json:"usedAt"`
	Notes     string           `json:"notes"`
}

// MovementResult is the entry after a movement with the appended transaction.
type MovementResult struct {
	Entry       *InventoryEntry
	Transaction InventoryTransaction
	PriceStat   *PriceComparison
}

// Verification compares the stored accumulators to a replay of the log.
type Verification struct {
	EntryID           EntryID
	StoredPurchased   decimal.Decimal
	StoredUsed        decimal.Decimal
	ReplayedPurchased decimal.Decimal
	ReplayedUsed      decimal.Decimal
	TransactionCount  int
	Consistent        bool
}

func (l *InventoryLedger) owned(e *InventoryEntry, actor Actor) (*InventoryEntry, error) {
	if e.TenantID != actor.TenantID {
		return nil, &NotFoundError{Entity: "inventory entry", ID: string(e.ID)}
	}
	return e, nil
}

func (l *InventoryLedger) newEntry(actor Actor, itemID ItemID, projectID ProjectID, minLevel *decimal.Decimal) *InventoryEntry {
	now := l.now()
	return &InventoryEntry{
		ID:            EntryID(l.newID()),
		TenantID:      actor.TenantID,
		ItemID:        itemID,
		ProjectID:     projectID,
		PurchasedQty:  decimal.Zero,
		UsedQty:       decimal.Zero,
		MinStockLevel: minLevel,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CreateEntry opens an empty entry for (item, project).
func (l *InventoryLedger) CreateEntry(ctx context.Context, actor Actor, in CreateEntryInput) (*InventoryEntry, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	e := l.newEntry(actor, in.ItemID, in.ProjectID, in.MinStockLevel)
	if err := l.inTx(ctx, func(s Store) error { return s.CreateInventoryEntry(ctx, e) }); err != nil {
		return nil, err
	}
	return e, nil
}

// GetEntry returns an entry of the actor's tenant.
func (l *InventoryLedger) GetEntry(ctx context.Context, actor Actor, id EntryID) (*InventoryEntry, error) {
	e, err := l.store.GetInventoryEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	return l.owned(e, actor)
}

// ListEntries returns the tenant's entries, optionally for one project.
func (l *InventoryLedger) ListEntries(ctx context.Context, actor Actor, projectID ProjectID) ([]InventoryEntry, error) {
	return l.store.ListInventoryEntries(ctx, InventoryFilter{TenantID: actor.TenantID, ProjectID: projectID})
}

// ListLowStock returns entries at or below their threshold.
func (l *InventoryLedger) ListLowStock(ctx context.Context, actor Actor, projectID ProjectID) ([]InventoryEntry, error) {
	entries, err := l.ListEntries(ctx, actor, projectID)
	if err != nil {
		return nil, err
	}
	low := make([]InventoryEntry, 0)
	for _, e := range entries {
		if e.LowStock() {
			low = append(low, e)
		}
	}
	return low, nil
}

// SetMinStockLevel sets or clears (nil) the low-stock threshold.
func (l *InventoryLedger) SetMinStockLevel(ctx context.Context, actor Actor, id EntryID, level *decimal.Decimal) (*InventoryEntry, error) {
	if level != nil && level.IsNegative() {
		return nil, invalidField("minStockLevel", "gte", "must be at least 0")
	}
	var entry *InventoryEntry
	err := l.inTx(ctx, func(s Store) error {
		e, err := s.GetInventoryEntryForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if entry, err = l.owned(e, actor); err != nil {
			return err
		}
		entry.MinStockLevel = level
		entry.UpdatedAt = l.now()
		return s.UpdateInventoryEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// RecordPurchase appends a purchase. The entry is created on first
// purchase; a vendor purchase also accumulates the vendor price stats.
func (l *InventoryLedger) RecordPurchase(ctx context.Context, actor Actor, in RecordPurchaseInput) (*MovementResult, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	var res *MovementResult
	err := l.inTx(ctx, func(s Store) error {
		entry, err := s.LockOrCreateInventoryEntry(ctx, l.newEntry(actor, in.ItemID, in.ProjectID, nil))
		if err != nil {
			return err
		}
		if entry, err = l.owned(entry, actor); err != nil {
			return err
		}

		now := l.now()
		total := in.Quantity.Mul(*in.UnitCost)
		tx := InventoryTransaction{
			ID:         InventoryTxID(l.newID()),
			EntryID:    entry.ID,
			Kind:       InventoryPurchase,
			Quantity:   *in.Quantity,
			UnitCost:   in.UnitCost,
			TotalCost:  &total,
			VendorID:   in.VendorID,
			Notes:      in.Notes,
			OccurredAt: now,
			CreatedBy:  actor.UserID,
			CreatedAt:  now,
		}
		if in.PurchasedAt != nil {
			tx.OccurredAt = *in.PurchasedAt
		}
		if err := s.AppendInventoryTransaction(ctx, &tx); err != nil {
			return err
		}
		entry.PurchasedQty = entry.PurchasedQty.Add(tx.Quantity)
		entry.UpdatedAt = now
		if err := s.UpdateInventoryEntry(ctx, entry); err != nil {
			return err
		}
		res = &MovementResult{Entry: entry, Transaction: tx}
		if in.VendorID != "" {
			stat, err := l.prices.accumulate(ctx, s, actor, in.ItemID, in.VendorID, tx.Quantity, *in.UnitCost, tx.OccurredAt)
			if err != nil {
				return err
			}
			res.PriceStat = stat
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RecordUsage appends a usage against an existing entry.
func (l *InventoryLedger) RecordUsage(ctx context.Context, actor Actor, in RecordUsageInput) (*MovementResult, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	var res *MovementResult
	err := l.inTx(ctx, func(s Store) error {
		entry, err := s.FindInventoryEntryForUpdate(ctx, actor.TenantID, in.ItemID, in.ProjectID)
		if err != nil {
			return err
		}
		if entry, err = l.owned(entry, actor); err != nil {
			return err
		}
		if in.Quantity.GreaterThan(entry.Remaining()) {
			return &InsufficientStockError{EntryID: entry.ID, Remaining: entry.Remaining(), Requested: *in.Quantity}
		}
		now := l.now()
		tx := InventoryTransaction{
			ID:         InventoryTxID(l.newID()),
			EntryID:    entry.ID,
			Kind:       InventoryUsage,
			Quantity:   *in.Quantity,
			Notes:      in.Notes,
			OccurredAt: now,
			CreatedBy:  actor.UserID,
			CreatedAt:  now,
		}
		if in.UsedAt != nil {
			tx.OccurredAt = *in.UsedAt
		}
		if err := s.AppendInventoryTransaction(ctx, &tx); err != nil {
			return err
		}
		entry.UsedQty = entry.UsedQty.Add(tx.Quantity)
		entry.UpdatedAt = now
		if err := s.UpdateInventoryEntry(ctx, entry); err != nil {
			return err
		}
		res = &MovementResult{Entry: entry, Transaction: tx}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Entry.LowStock() {
		l.log.Warn().
			Str("entry_id", string(res.Entry.ID)).
			Str("remaining", res.Entry.Remaining().String()).
			Msg("inventory below minimum stock level")
	}
	return res, nil
}

// History returns the entry's log newest-first with running balances.
func (l *InventoryLedger) History(ctx context.Context, actor Actor, id EntryID) ([]BalanceRow, error) {
	var rows []BalanceRow
	err := l.inTx(ctx, func(s Store) error {
		e, err := s.GetInventoryEntry(ctx, id)
		if err != nil {
			return err
		}
		if _, err := l.owned(e, actor); err != nil {
			return err
		}
		txs, err := s.ListInventoryTransactions(ctx, id)
		if err != nil {
			return err
		}
		rows = RunningBalance(e.Remaining(), txs)
		return nil
	})
	return rows, err
}

// VerifyEntry replays the entry's log from zero and compares the result
// with the stored accumulators.
func (l *InventoryLedger) VerifyEntry(ctx context.Context, actor Actor, id EntryID) (*Verification, error) {
	var v *Verification
	err := l.inTx(ctx, func(s Store) error {
		e, err := s.GetInventoryEntry(ctx, id)
		if err != nil {
			return err
		}
		if _, err := l.owned(e, actor); err != nil {
			return err
		}
		txs, err := s.ListInventoryTransactions(ctx, id)
		if err != nil {
			return err
		}
		purchased, used := Replay(txs)
		v = &Verification{
			EntryID:           id,
			StoredPurchased:   e.PurchasedQty,
			StoredUsed:        e.UsedQty,
			ReplayedPurchased: purchased,
			ReplayedUsed:      used,
			TransactionCount:  len(txs),
			Consistent:        purchased.Equal(e.PurchasedQty) && used.Equal(e.UsedQty),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !v.Consistent {
		l.log.Error().Str("entry_id", string(id)).Msg("inventory accumulators drifted from transaction log")
	}
	return v, nil
}
