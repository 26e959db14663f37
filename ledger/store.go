/*
store.go - Persistence interfaces for the ledger

PURPOSE:
  Defines what the ledger needs from a store. Implementations live in
  ledger/store (memory), store/sqlite and store/postgres.

TRANSACTIONS:
  Every mutation runs inside TxStore.WithTx. The Store handed to fn is
  bound to the transaction: reads see the transaction's own writes and
  the ...ForUpdate reads lock the parent document until commit, so two
  writers on the same document serialize. If fn returns an error nothing
  is persisted.

  Implementations must route every read made through the bound Store
  to the transaction itself, never to the parent connection.

ERRORS:
  Get* methods return *NotFoundError. Create* methods return
  *ConflictError on duplicate unique keys. A transaction aborted by the
  database because of a concurrent writer returns ErrConcurrentModification.
*/
package ledger

import "context"

// ContractStore persists contracts.
type ContractStore interface {
	CreateContract(ctx context.Context, c *Contract) error
	GetContract(ctx context.Context, id ContractID) (*Contract, error)
	GetContractForUpdate(ctx context.Context, id ContractID) (*Contract, error)
	ListContracts(ctx context.Context, filter ContractFilter) ([]Contract, error)
	// UpdateContract writes every mutable column, including TotalSum and ChangeOrderSeq.
	UpdateContract(ctx context.Context, c *Contract) error
	// DeleteContract removes the contract with its change orders and line items.
	DeleteContract(ctx context.Context, id ContractID) error
}

// LineItemStore persists line items of contracts and change orders.
type LineItemStore interface {
	CreateLineItem(ctx context.Context, li *LineItem) error
	GetLineItem(ctx context.Context, id LineItemID) (*LineItem, error)
	UpdateLineItem(ctx context.Context, li *LineItem) error
	DeleteLineItem(ctx context.Context, id LineItemID) error
	// ListLineItems returns the set ordered by Order, then CreatedAt, then ID.
	ListLineItems(ctx context.Context, parent ParentRef) ([]LineItem, error)
}

// ChangeOrderStore persists change orders.
type ChangeOrderStore interface {
	CreateChangeOrder(ctx context.Context, co *ChangeOrder) error
	GetChangeOrder(ctx context.Context, id ChangeOrderID) (*ChangeOrder, error)
	GetChangeOrderForUpdate(ctx context.Context, id ChangeOrderID) (*ChangeOrder, error)
	// ListChangeOrders returns the contract's change orders ordered by Number.
	ListChangeOrders(ctx context.Context, contractID ContractID) ([]ChangeOrder, error)
	UpdateChangeOrder(ctx context.Context, co *ChangeOrder) error
	DeleteChangeOrder(ctx context.Context, id ChangeOrderID) error
	// MaxChangeOrderNumber returns 0 when the contract has no change orders.
	MaxChangeOrderNumber(ctx context.Context, contractID ContractID) (int, error)
}

// PurchaseOrderStore persists purchase orders. Get* return the order with its lines.
type PurchaseOrderStore interface {
	CreatePurchaseOrder(ctx context.Context, po *PurchaseOrder) error
	GetPurchaseOrder(ctx context.Context, id PurchaseOrderID) (*PurchaseOrder, error)
	GetPurchaseOrderForUpdate(ctx context.Context, id PurchaseOrderID) (*PurchaseOrder, error)
	// UpdatePurchaseOrder writes header fields only.
	UpdatePurchaseOrder(ctx context.Context, po *PurchaseOrder) error
	// UpdatePurchaseOrderLine writes the received quantity of one line.
	UpdatePurchaseOrderLine(ctx context.Context, line *PurchaseOrderLine) error
}

// PriceStore persists vendor price comparisons. Rows are keyed by
// (tenant, item, vendor); one tenant never reads or writes another's row.
type PriceStore interface {
	GetPrice(ctx context.Context, tenantID TenantID, itemID ItemID, vendorID VendorID) (*PriceComparison, error)
	// ListPrices returns the item's rows ordered by UnitPrice ascending.
	ListPrices(ctx context.Context, tenantID TenantID, itemID ItemID) ([]PriceComparison, error)
	// SavePrice creates the row or updates its scalar fields. Accumulators
	// are left untouched on update.
	SavePrice(ctx context.Context, p *PriceComparison) error
	// AccumulatePurchase atomically creates the row seeded with acc or adds
	// acc to its accumulators, returning the resulting row.
	AccumulatePurchase(ctx context.Context, acc PurchaseAccumulation) (*PriceComparison, error)
	ClearPreferred(ctx context.Context, tenantID TenantID, itemID ItemID) error
	DeletePrice(ctx context.Context, tenantID TenantID, itemID ItemID, vendorID VendorID) error
}

// InventoryStore persists inventory entries and their transaction log.
type InventoryStore interface {
	CreateInventoryEntry(ctx context.Context, e *InventoryEntry) error
	GetInventoryEntry(ctx context.Context, id EntryID) (*InventoryEntry, error)
	GetInventoryEntryForUpdate(ctx context.Context, id EntryID) (*InventoryEntry, error)
	// FindInventoryEntryForUpdate looks an entry up by its natural key
	// (tenant, item, project) and locks it.
	FindInventoryEntryForUpdate(ctx context.Context, tenantID TenantID, itemID ItemID, projectID ProjectID) (*InventoryEntry, error)
	// LockOrCreateInventoryEntry inserts e unless an entry with its natural
	// key exists, then returns the stored entry locked. Two callers racing
	// on the same key both end up holding the one row.
	LockOrCreateInventoryEntry(ctx context.Context, e *InventoryEntry) (*InventoryEntry, error)
	ListInventoryEntries(ctx context.Context, filter InventoryFilter) ([]InventoryEntry, error)
	// UpdateInventoryEntry writes the accumulators and the stock threshold.
	UpdateInventoryEntry(ctx context.Context, e *InventoryEntry) error
	AppendInventoryTransaction(ctx context.Context, tx *InventoryTransaction) error
	// ListInventoryTransactions returns the log oldest first.
	ListInventoryTransactions(ctx context.Context, entryID EntryID) ([]InventoryTransaction, error)
}

// Store is the full persistence surface.
type Store interface {
	ContractStore
	LineItemStore
	ChangeOrderStore
	PurchaseOrderStore
	PriceStore
	InventoryStore
}

// TxStore is a Store that can run a unit of work atomically.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
