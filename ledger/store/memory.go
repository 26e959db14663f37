// Package store provides the in-memory ledger.TxStore.
package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/crudexec/construction-sub006/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps every table in maps guarded by one RWMutex. WithTx holds
// the write lock for the whole unit of work, so transactions serialize,
// and restores a snapshot when fn fails.
type Memory struct {
	*view
}

type priceKey struct {
	tenant ledger.TenantID
	item   ledger.ItemID
	vendor ledger.VendorID
}

type data struct {
	contracts    map[ledger.ContractID]ledger.Contract
	changeOrders map[ledger.ChangeOrderID]ledger.ChangeOrder
	lineItems    map[ledger.LineItemID]ledger.LineItem
	orders       map[ledger.PurchaseOrderID]ledger.PurchaseOrder
	orderLines   map[ledger.POLineID]ledger.PurchaseOrderLine
	prices       map[priceKey]ledger.PriceComparison
	entries      map[ledger.EntryID]ledger.InventoryEntry
	entryLog     map[ledger.EntryID][]ledger.InventoryTransaction
}

func newData() *data {
	return &data{
		contracts:    make(map[ledger.ContractID]ledger.Contract),
		changeOrders: make(map[ledger.ChangeOrderID]ledger.ChangeOrder),
		lineItems:    make(map[ledger.LineItemID]ledger.LineItem),
		orders:       make(map[ledger.PurchaseOrderID]ledger.PurchaseOrder),
		orderLines:   make(map[ledger.POLineID]ledger.PurchaseOrderLine),
		prices:       make(map[priceKey]ledger.PriceComparison),
		entries:      make(map[ledger.EntryID]ledger.InventoryEntry),
		entryLog:     make(map[ledger.EntryID][]ledger.InventoryTransaction),
	}
}

func (d *data) clone() *data {
	c := &data{
		contracts:    maps.Clone(d.contracts),
		changeOrders: maps.Clone(d.changeOrders),
		lineItems:    maps.Clone(d.lineItems),
		orders:       maps.Clone(d.orders),
		orderLines:   maps.Clone(d.orderLines),
		prices:       maps.Clone(d.prices),
		entries:      maps.Clone(d.entries),
		entryLog:     make(map[ledger.EntryID][]ledger.InventoryTransaction, len(d.entryLog)),
	}
	for k, v := range d.entryLog {
		c.entryLog[k] = slices.Clone(v)
	}
	return c
}

// view is the Store surface over data. Outside a transaction every call
// takes the lock itself; inside WithTx the caller already holds it.
type view struct {
	mu   *sync.RWMutex
	d    *data
	inTx bool
}

func (v *view) read() func() {
	if v.inTx {
		return func() {}
	}
	v.mu.RLock()
	return v.mu.RUnlock
}

func (v *view) write() func() {
	if v.inTx {
		return func() {}
	}
	v.mu.Lock()
	return v.mu.Unlock
}

func NewMemory() *Memory {
	return &Memory{view: &view{mu: &sync.RWMutex{}, d: newData()}}
}

// WithTx runs fn atomically. For the memory store this is simulated with
// a snapshot and a rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.d.clone()
	if err := fn(&view{mu: m.mu, d: m.d, inTx: true}); err != nil {
		*m.d = *snapshot
		return err
	}
	return nil
}

// Reset drops every row.
func (m *Memory) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	*m.d = *newData()
	return nil
}

var _ ledger.TxStore = (*Memory)(nil)

// =============================================================================
// CONTRACTS
// =============================================================================

func (v *view) CreateContract(_ context.Context, c *ledger.Contract) error {
	defer v.write()()
	for _, existing := range v.d.contracts {
		if existing.ContractNumber == c.ContractNumber {
			return &ledger.ConflictError{Entity: "contract", Key: c.ContractNumber}
		}
	}
	if _, ok := v.d.contracts[c.ID]; ok {
		return &ledger.ConflictError{Entity: "contract", Key: string(c.ID)}
	}
	v.d.contracts[c.ID] = *c
	return nil
}

func (v *view) GetContract(_ context.Context, id ledger.ContractID) (*ledger.Contract, error) {
	defer v.read()()
	c, ok := v.d.contracts[id]
	if !ok {
		return nil, &ledger.NotFoundError{Entity: "contract", ID: string(id)}
	}
	return &c, nil
}

// GetContractForUpdate needs no row lock: transactions already serialize.
func (v *view) GetContractForUpdate(ctx context.Context, id ledger.ContractID) (*ledger.Contract, error) {
	return v.GetContract(ctx, id)
}

func (v *view) ListContracts(_ context.Context, f ledger.ContractFilter) ([]ledger.Contract, error) {
	defer v.read()()
	out := make([]ledger.Contract, 0)
	for _, c := range v.d.contracts {
		if f.TenantID != "" && c.TenantID != f.TenantID ||
			f.VendorID != "" && c.VendorID != f.VendorID ||
			f.ProjectID != "" && c.ProjectID != f.ProjectID ||
			f.Status != "" && c.Status != f.Status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *view) UpdateContract(_ context.Context, c *ledger.Contract) error {
	defer v.write()()
	if _, ok := v.d.contracts[c.ID]; !ok {
		return &ledger.NotFoundError{Entity: "contract", ID: string(c.ID)}
	}
	v.d.contracts[c.ID] = *c
	return nil
}

func (v *view) DeleteContract(_ context.Context, id ledger.ContractID) error {
	defer v.write()()
	if _, ok := v.d.contracts[id]; !ok {
		return &ledger.NotFoundError{Entity: "contract", ID: string(id)}
	}
	for coID, co := range v.d.changeOrders {
		if co.ContractID == id {
			v.deleteChangeOrderLocked(coID)
		}
	}
	v.deleteItemsLocked(ledger.ContractParent(id))
	delete(v.d.contracts, id)
	return nil
}

// =============================================================================
// LINE ITEMS
// =============================================================================

func (v *view) CreateLineItem(_ context.Context, li *ledger.LineItem) error {
	defer v.write()()
	if _, ok := v.d.lineItems[li.ID]; ok {
		return &ledger.ConflictError{Entity: "line item", Key: string(li.ID)}
	}
	v.d.lineItems[li.ID] = *li
	return nil
}

func (v *view) GetLineItem(_ context.Context, id ledger.LineItemID) (*ledger.LineItem, error) {
	defer v.read()()
	li, ok := v.d.lineItems[id]
	if !ok {
		return nil, &ledger.NotFoundError{Entity: "line item", ID: string(id)}
	}
	return &li, nil
}

func (v *view) UpdateLineItem(_ context.Context, li *ledger.LineItem) error {
	defer v.write()()
	if _, ok := v.d.lineItems[li.ID]; !ok {
		return &ledger.NotFoundError{Entity: "line item", ID: string(li.ID)}
	}
	v.d.lineItems[li.ID] = *li
	return nil
}

func (v *view) DeleteLineItem(_ context.Context, id ledger.LineItemID) error {
	defer v.write()()
	if _, ok := v.d.lineItems[id]; !ok {
		return &ledger.NotFoundError{Entity: "line item", ID: string(id)}
	}
	delete(v.d.lineItems, id)
	return nil
}

func (v *view) ListLineItems(_ context.Context, parent ledger.ParentRef) ([]ledger.LineItem, error) {
	defer v.read()()
	out := make([]ledger.LineItem, 0)
	for _, li := range v.d.lineItems {
		if li.Parent == parent {
			out = append(out, li)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (v *view) deleteItemsLocked(parent ledger.ParentRef) {
	for id, li := range v.d.lineItems {
		if li.Parent == parent {
			delete(v.d.lineItems, id)
		}
	}
}

// =============================================================================
// CHANGE ORDERS
// =============================================================================

func (v *view) CreateChangeOrder(_ context.Context, co *ledger.ChangeOrder) error {
	defer v.write()()
	if _, ok := v.d.contracts[co.ContractID]; !ok {
		return &ledger.NotFoundError{Entity: "contract", ID: string(co.ContractID)}
	}
	for _, existing := range v.d.changeOrders {
		if existing.ContractID == co.ContractID && existing.Number == co.Number {
			return &ledger.ConflictError{Entity: "change order", Key: fmt.Sprintf("%s#%d", co.ContractID, co.Number)}
		}
	}
	v.d.changeOrders[co.ID] = *co
	return nil
}

func (v *view) GetChangeOrder(_ context.Context, id ledger.ChangeOrderID) (*ledger.ChangeOrder, error) {
	defer v.read()()
	co, ok := v.d.changeOrders[id]
	if !ok {
		return nil, &ledger.NotFoundError{Entity: "change order", ID: string(id)}
	}
	return &co, nil
}

func (v *view) GetChangeOrderForUpdate(ctx context.Context, id ledger.ChangeOrderID) (*ledger.ChangeOrder, error) {
	return v.GetChangeOrder(ctx, id)
}

func (v *view) ListChangeOrders(_ context.Context, contractID ledger.ContractID) ([]ledger.ChangeOrder, error) {
	defer v.read()()
	out := make([]ledger.ChangeOrder, 0)
	for _, co := range v.d.changeOrders {
		if co.ContractID == contractID {
			out = append(out, co)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (v *view) UpdateChangeOrder(_ context.Context, co *ledger.ChangeOrder) error {
	defer v.write()()
	if _, ok := v.d.changeOrders[co.ID]; !ok {
		return &ledger.NotFoundError{Entity: "change order", ID: string(co.ID)}
	}
	v.d.changeOrders[co.ID] = *co
	return nil
}

func (v *view) DeleteChangeOrder(_ context.Context, id ledger.ChangeOrderID) error {
	defer v.write()()
	if _, ok := v.d.changeOrders[id]; !ok {
		return &ledger.NotFoundError{Entity: "change order", ID: string(id)}
	}
	v.deleteChangeOrderLocked(id)
	return nil
}

func (v *view) deleteChangeOrderLocked(id ledger.ChangeOrderID) {
	v.deleteItemsLocked(ledger.ChangeOrderParent(id))
	delete(v.d.changeOrders, id)
}

func (v *view) MaxChangeOrderNumber(_ context.Context, contractID ledger.ContractID) (int, error) {
	defer v.read()()
	highest := 0
	for _, co := range v.d.changeOrders {
		if co.ContractID == contractID && co.Number > highest {
			highest = co.Number
		}
	}
	return highest, nil
}

// =============================================================================
// PURCHASE ORDERS
// =============================================================================

func (v *view) CreatePurchaseOrder(_ context.Context, po *ledger.PurchaseOrder) error {
	defer v.write()()
	for _, existing := range v.d.orders {
		if existing.PONumber == po.PONumber {
			return &ledger.ConflictError{Entity: "purchase order", Key: po.PONumber}
		}
	}
	header := *po
	header.Lines = nil
	v.d.orders[po.ID] = header
	for _, l := range po.Lines {
		v.d.orderLines[l.ID] = l
	}
	return nil
}

func (v *view) GetPurchaseOrder(_ context.Context, id ledger.PurchaseOrderID) (*ledger.PurchaseOrder, error) {
	defer v.read()()
	po, ok := v.d.orders[id]
	if !ok {
		return nil, &ledger.NotFoundError{Entity: "purchase order", ID: string(id)}
	}
	for _, l := range v.d.orderLines {
		if l.PurchaseOrderID == id {
			po.Lines = append(po.Lines, l)
		}
	}
	sort.Slice(po.Lines, func(i, j int) bool { return po.Lines[i].Position < po.Lines[j].Position })
	return &po, nil
}

func (v *view) GetPurchaseOrderForUpdate(ctx context.Context, id ledger.PurchaseOrderID) (*ledger.PurchaseOrder, error) {
	return v.GetPurchaseOrder(ctx, id)
}

func (v *view) UpdatePurchaseOrder(_ context.Context, po *ledger.PurchaseOrder) error {
	defer v.write()()
	if _, ok := v.d.orders[po.ID]; !ok {
		return &ledger.NotFoundError{Entity: "purchase order", ID: string(po.ID)}
	}
	header := *po
	header.Lines = nil
	v.d.orders[po.ID] = header
	return nil
}

func (v *view) UpdatePurchaseOrderLine(_ context.Context, line *ledger.PurchaseOrderLine) error {
	defer v.write()()
	existing, ok := v.d.orderLines[line.ID]
	if !ok {
		return &ledger.NotFoundError{Entity: "purchase order line", ID: string(line.ID)}
	}
	if line.ReceivedQuantity.IsNegative() || line.ReceivedQuantity.GreaterThan(existing.Quantity) {
		return fmt.Errorf("%w: line %s received %s of %s", ledger.ErrOverReceipt, line.ID, line.ReceivedQuantity, existing.Quantity)
	}
	existing.ReceivedQuantity = line.ReceivedQuantity
	v.d.orderLines[line.ID] = existing
	return nil
}

// =============================================================================
// PRICE COMPARISONS
// =============================================================================

func (v *view) GetPrice(_ context.Context, tenantID ledger.TenantID, itemID ledger.ItemID, vendorID ledger.VendorID) (*ledger.PriceComparison, error) {
	defer v.read()()
	p, ok := v.d.prices[priceKey{tenantID, itemID, vendorID}]
	if !ok {
		return nil, &ledger.NotFoundError{Entity: "price comparison", ID: string(itemID) + "/" + string(vendorID)}
	}
	return &p, nil
}

func (v *view) ListPrices(_ context.Context, tenantID ledger.TenantID, itemID ledger.ItemID) ([]ledger.PriceComparison, error) {
	defer v.read()()
	out := make([]ledger.PriceComparison, 0)
	for k, p := range v.d.prices {
		if k.tenant == tenantID && k.item == itemID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UnitPrice.Equal(out[j].UnitPrice) {
			return out[i].UnitPrice.LessThan(out[j].UnitPrice)
		}
		return out[i].VendorID < out[j].VendorID
	})
	return out, nil
}

// SavePrice mirrors the partial unique index on preferred rows.
func (v *view) SavePrice(_ context.Context, p *ledger.PriceComparison) error {
	defer v.write()()
	k := priceKey{p.TenantID, p.ItemID, p.VendorID}
	if p.IsPreferred {
		for other, row := range v.d.prices {
			if other.tenant == k.tenant && other.item == k.item && other != k && row.IsPreferred {
				return &ledger.ConflictError{Entity: "preferred vendor", Key: string(p.ItemID)}
			}
		}
	}
	row, ok := v.d.prices[k]
	if !ok {
		v.d.prices[k] = *p
		return nil
	}
	row.UnitPrice = p.UnitPrice
	row.IsPreferred = p.IsPreferred
	row.LeadTimeDays = p.LeadTimeDays
	row.Notes = p.Notes
	row.UpdatedAt = p.UpdatedAt
	v.d.prices[k] = row
	return nil
}

func (v *view) AccumulatePurchase(_ context.Context, acc ledger.PurchaseAccumulation) (*ledger.PriceComparison, error) {
	defer v.write()()
	k := priceKey{acc.TenantID, acc.ItemID, acc.VendorID}
	at := acc.At
	row, ok := v.d.prices[k]
	if !ok {
		row = ledger.PriceComparison{
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
	} else {
		row.TotalPurchasedQty = row.TotalPurchasedQty.Add(acc.Quantity)
		row.TotalPurchasedValue = row.TotalPurchasedValue.Add(acc.Value)
		row.LastPurchaseDate = &at
		row.UpdatedAt = at
	}
	v.d.prices[k] = row
	return &row, nil
}

func (v *view) ClearPreferred(_ context.Context, tenantID ledger.TenantID, itemID ledger.ItemID) error {
	defer v.write()()
	for k, p := range v.d.prices {
		if k.tenant == tenantID && k.item == itemID && p.IsPreferred {
			p.IsPreferred = false
			v.d.prices[k] = p
		}
	}
	return nil
}

func (v *view) DeletePrice(_ context.Context, tenantID ledger.TenantID, itemID ledger.ItemID, vendorID ledger.VendorID) error {
	defer v.write()()
	k := priceKey{tenantID, itemID, vendorID}
	if _, ok := v.d.prices[k]; !ok {
		return &ledger.NotFoundError{Entity: "price comparison", ID: string(itemID) + "/" + string(vendorID)}
	}
	delete(v.d.prices, k)
	return nil
}

// =============================================================================
// INVENTORY
// =============================================================================

func (v *view) CreateInventoryEntry(_ context.Context, e *ledger.InventoryEntry) error {
	defer v.write()()
	if _, ok := v.findEntry(e.TenantID, e.ItemID, e.ProjectID); ok {
		return &ledger.ConflictError{Entity: "inventory entry", Key: string(e.ItemID) + "/" + string(e.ProjectID)}
	}
	v.d.entries[e.ID] = *e
	return nil
}

// LockOrCreateInventoryEntry needs no extra locking: transactions already
// serialize on the store mutex.
func (v *view) LockOrCreateInventoryEntry(_ context.Context, e *ledger.InventoryEntry) (*ledger.InventoryEntry, error) {
	defer v.write()()
	if existing, ok := v.findEntry(e.TenantID, e.ItemID, e.ProjectID); ok {
		return &existing, nil
	}
	v.d.entries[e.ID] = *e
	created := *e
	return &created, nil
}

func (v *view) findEntry(tenantID ledger.TenantID, itemID ledger.ItemID, projectID ledger.ProjectID) (ledger.InventoryEntry, bool) {
	for _, e := range v.d.entries {
		if e.TenantID == tenantID && e.ItemID == itemID && e.ProjectID == projectID {
			return e, true
		}
	}
	return ledger.InventoryEntry{}, false
}

func (v *view) GetInventoryEntry(_ context.Context, id ledger.EntryID) (*ledger.InventoryEntry, error) {
	defer v.read()()
	e, ok := v.d.entries[id]
	if !ok {
		return nil, &ledger.NotFoundError{Entity: "inventory entry", ID: string(id)}
	}
	return &e, nil
}

func (v *view) GetInventoryEntryForUpdate(ctx context.Context, id ledger.EntryID) (*ledger.InventoryEntry, error) {
	return v.GetInventoryEntry(ctx, id)
}

func (v *view) FindInventoryEntryForUpdate(_ context.Context, tenantID ledger.TenantID, itemID ledger.ItemID, projectID ledger.ProjectID) (*ledger.InventoryEntry, error) {
	defer v.read()()
	if e, ok := v.findEntry(tenantID, itemID, projectID); ok {
		return &e, nil
	}
	return nil, &ledger.NotFoundError{Entity: "inventory entry", ID: string(itemID) + "/" + string(projectID)}
}

func (v *view) ListInventoryEntries(_ context.Context, f ledger.InventoryFilter) ([]ledger.InventoryEntry, error) {
	defer v.read()()
	out := make([]ledger.InventoryEntry, 0)
	for _, e := range v.d.entries {
		if f.TenantID != "" && e.TenantID != f.TenantID ||
			f.ProjectID != "" && e.ProjectID != f.ProjectID ||
			f.ItemID != "" && e.ItemID != f.ItemID {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ItemID != out[j].ItemID {
			return out[i].ItemID < out[j].ItemID
		}
		return out[i].ProjectID < out[j].ProjectID
	})
	return out, nil
}

func (v *view) UpdateInventoryEntry(_ context.Context, e *ledger.InventoryEntry) error {
	defer v.write()()
	if _, ok := v.d.entries[e.ID]; !ok {
		return &ledger.NotFoundError{Entity: "inventory entry", ID: string(e.ID)}
	}
	v.d.entries[e.ID] = *e
	return nil
}

// AppendInventoryTransaction is append-only: there is no update or delete.
func (v *view) AppendInventoryTransaction(_ context.Context, tx *ledger.InventoryTransaction) error {
	defer v.write()()
	if _, ok := v.d.entries[tx.EntryID]; !ok {
		return &ledger.NotFoundError{Entity: "inventory entry", ID: string(tx.EntryID)}
	}
	v.d.entryLog[tx.EntryID] = append(v.d.entryLog[tx.EntryID], *tx)
	return nil
}

func (v *view) ListInventoryTransactions(_ context.Context, entryID ledger.EntryID) ([]ledger.InventoryTransaction, error) {
	defer v.read()()
	out := slices.Clone(v.d.entryLog[entryID])
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.Before(out[j].OccurredAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if out == nil {
		out = []ledger.InventoryTransaction{}
	}
	return out, nil
}
