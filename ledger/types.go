/*
Package ledger provides the financial rollup and receiving engine.

PURPOSE:
  Keeps derived money and quantity totals consistent while line items,
  change orders, purchase-order receipts and inventory movements are
  mutated independently. Every aggregate is recomputed from its full
  child set inside the same transaction that changed a child.

KEY CONCEPTS IN THIS FILE (types.go):
  - Actor: the caller every operation is attributed to (tenant, user, role)
  - LineItem: a priced row owned by a Contract or a ChangeOrder
  - Contract / ChangeOrder: documents that aggregate their line items
  - PurchaseOrder: receiving target with per-line received counters
  - PriceComparison: per (item, vendor) catalog price and purchase stats
  - InventoryEntry / InventoryTransaction: per (item, project) stock log

USAGE:
  l := ledger.New(store, ledger.Options{})
  item, err := l.Contracts.AddLineItem(ctx, actor, ledger.ContractParent(id), in)

SEE ALSO:
  - lineitems.go: LineItemSet and ContractLedger
  - changeorder.go: change order approval workflow
  - receiving.go: purchase order receiving state machine
  - inventory.go: inventory accumulators and running balance
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	TenantID        string
	UserID          string
	ContractID      string
	ChangeOrderID   string
	LineItemID      string
	PurchaseOrderID string
	POLineID        string
	ItemID          string
	VendorID        string
	ProjectID       string
	PriceID         string
	EntryID         string
	InventoryTxID   string
)

// =============================================================================
// ACTOR - Explicit caller context
// =============================================================================

// Role is the caller's role within its tenant.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Actor identifies who performs an operation. Authentication happens
// outside the ledger; the ledger only scopes by tenant and records the user.
type Actor struct {
	TenantID TenantID
	UserID   UserID
	Role     Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// =============================================================================
// LINE ITEMS
// =============================================================================

// ParentKind names the document type that owns a line item set.
type ParentKind string

const (
	ParentContract    ParentKind = "contract"
	ParentChangeOrder ParentKind = "change_order"
)

// ParentRef points at the document owning a line item set.
type ParentRef struct {
	Kind ParentKind
	ID   string
}

func ContractParent(id ContractID) ParentRef {
	return ParentRef{Kind: ParentContract, ID: string(id)}
}

func ChangeOrderParent(id ChangeOrderID) ParentRef {
	return ParentRef{Kind: ParentChangeOrder, ID: string(id)}
}

// LineItem is a priced row. TotalPrice is always Quantity * UnitPrice.
type LineItem struct {
	ID          LineItemID
	Parent      ParentRef
	Description string
	Quantity    decimal.Decimal
	Unit        string
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
	Order       int
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// =============================================================================
// CONTRACTS
// =============================================================================

type ContractType string

const (
	ContractLumpSum      ContractType = "LUMP_SUM"
	ContractRemeasurable ContractType = "REMEASURABLE"
	ContractAddendum     ContractType = "ADDENDUM"
)

type ContractStatus string

const (
	ContractDraft      ContractStatus = "DRAFT"
	ContractActive     ContractStatus = "ACTIVE"
	ContractCompleted  ContractStatus = "COMPLETED"
	ContractTerminated ContractStatus = "TERMINATED"
	ContractExpired    ContractStatus = "EXPIRED"
)

// Contract is a vendor engagement. TotalSum is nil until the first line item
// set is computed; afterwards it tracks the sum of the line item totals.
type Contract struct {
	ID               ContractID
	TenantID         TenantID
	ContractNumber   string
	Title            string
	Type             ContractType
	Status           ContractStatus
	VendorID         VendorID
	ProjectID        ProjectID
	TotalSum         *decimal.Decimal
	RetentionPercent *decimal.Decimal
	RetentionAmount  *decimal.Decimal
	WarrantyYears    int
	StartDate        *time.Time
	EndDate          *time.Time
	ChangeOrderSeq   int
	CreatedBy        UserID
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ContractFilter narrows ListContracts. Empty fields match everything.
type ContractFilter struct {
	TenantID  TenantID
	VendorID  VendorID
	ProjectID ProjectID
	Status    ContractStatus
}

// =============================================================================
// CHANGE ORDERS
// =============================================================================

type ChangeOrderStatus string

const (
	ChangeOrderDraft           ChangeOrderStatus = "DRAFT"
	ChangeOrderPendingApproval ChangeOrderStatus = "PENDING_APPROVAL"
	ChangeOrderApproved        ChangeOrderStatus = "APPROVED"
	ChangeOrderRejected        ChangeOrderStatus = "REJECTED"
)

// ChangeOrderStatuses lists every status in lifecycle order.
var ChangeOrderStatuses = []ChangeOrderStatus{
	ChangeOrderDraft,
	ChangeOrderPendingApproval,
	ChangeOrderApproved,
	ChangeOrderRejected,
}

type ChangeOrder struct {
	ID              ChangeOrderID
	ContractID      ContractID
	Number          int
	Title           string
	Description     string
	Reason          string
	TotalAmount     decimal.Decimal
	Status          ChangeOrderStatus
	CreatedBy       UserID
	SubmittedBy     UserID
	SubmittedAt     *time.Time
	ApprovedBy      UserID
	ApprovedAt      *time.Time
	ApprovalComment string
	RejectedBy      UserID
	RejectedAt      *time.Time
	RejectionReason string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// =============================================================================
// PURCHASE ORDERS
// =============================================================================

type POStatus string

const (
	PODraft             POStatus = "DRAFT"
	POPendingApproval   POStatus = "PENDING_APPROVAL"
	POApproved          POStatus = "APPROVED"
	POSent              POStatus = "SENT"
	POPartiallyReceived POStatus = "PARTIALLY_RECEIVED"
	POReceived          POStatus = "RECEIVED"
	POCancelled         POStatus = "CANCELLED"
)

// Receivable reports whether receipts may be recorded in this status.
func (s POStatus) Receivable() bool {
	return s == POSent || s == POPartiallyReceived
}

type PurchaseOrder struct {
	ID            PurchaseOrderID
	TenantID      TenantID
	PONumber      string
	VendorID      VendorID
	ProjectID     ProjectID
	Status        POStatus
	DeliveredDate *time.Time
	Notes         string
	CreatedBy     UserID
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Lines         []PurchaseOrderLine
}

// Total is the ordered value of the purchase order.
func (po PurchaseOrder) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range po.Lines {
		total = total.Add(l.Quantity.Mul(l.UnitPrice))
	}
	return total
}

// PurchaseOrderLine carries a monotonically non-decreasing received counter
// that never exceeds the ordered quantity.
type PurchaseOrderLine struct {
	ID               POLineID
	PurchaseOrderID  PurchaseOrderID
	ItemID           ItemID
	Description      string
	Unit             string
	Quantity         decimal.Decimal
	ReceivedQuantity decimal.Decimal
	UnitPrice        decimal.Decimal
	Position         int
}

// Remaining is the quantity still to be received.
func (l PurchaseOrderLine) Remaining() decimal.Decimal {
	r := l.Quantity.Sub(l.ReceivedQuantity)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// FullyReceived reports whether the ordered quantity has been received.
func (l PurchaseOrderLine) FullyReceived() bool {
	return l.ReceivedQuantity.GreaterThanOrEqual(l.Quantity)
}

// =============================================================================
// VENDOR PRICE STATS
// =============================================================================

// PriceComparison is keyed by (ItemID, VendorID). At most one row per item
// is preferred. The purchase accumulators only ever grow.
type PriceComparison struct {
	ID                  PriceID
	TenantID            TenantID
	ItemID              ItemID
	VendorID            VendorID
	UnitPrice           decimal.Decimal
	IsPreferred         bool
	LeadTimeDays        *int
	Notes               string
	LastPurchaseDate    *time.Time
	TotalPurchasedQty   decimal.Decimal
	TotalPurchasedValue decimal.Decimal
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// AveragePurchasePrice is the value-weighted purchase price, zero before any purchase.
func (p PriceComparison) AveragePurchasePrice() decimal.Decimal {
	if p.TotalPurchasedQty.IsZero() {
		return decimal.Zero
	}
	return p.TotalPurchasedValue.DivRound(p.TotalPurchasedQty, 4)
}

// PurchaseAccumulation is one increment applied to a PriceComparison row.
type PurchaseAccumulation struct {
	ID        PriceID
	TenantID  TenantID
	ItemID    ItemID
	VendorID  VendorID
	Quantity  decimal.Decimal
	Value     decimal.Decimal
	UnitPrice decimal.Decimal
	At        time.Time
}

// =============================================================================
// INVENTORY
// =============================================================================

// InventoryEntry is keyed by (ItemID, ProjectID). PurchasedQty and UsedQty
// change only by appending InventoryTransactions.
type InventoryEntry struct {
	ID            EntryID
	TenantID      TenantID
	ItemID        ItemID
	ProjectID     ProjectID
	PurchasedQty  decimal.Decimal
	UsedQty       decimal.Decimal
	MinStockLevel *decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (e InventoryEntry) Remaining() decimal.Decimal {
	return e.PurchasedQty.Sub(e.UsedQty)
}

// LowStock holds when a threshold is set and remaining is at or below it.
func (e InventoryEntry) LowStock() bool {
	if e.MinStockLevel == nil {
		return false
	}
	return e.Remaining().LessThanOrEqual(*e.MinStockLevel)
}

type InventoryTxKind string

const (
	InventoryPurchase InventoryTxKind = "purchase"
	InventoryUsage    InventoryTxKind = "usage"
)

// InventoryTransaction is immutable once appended.
type InventoryTransaction struct {
	ID         InventoryTxID
	EntryID    EntryID
	Kind       InventoryTxKind
	Quantity   decimal.Decimal
	UnitCost   *decimal.Decimal
	TotalCost  *decimal.Decimal
	VendorID   VendorID
	Notes      string
	OccurredAt time.Time
	CreatedBy  UserID
	CreatedAt  time.Time
}

// SignedQuantity is positive for purchases and negative for usage.
func (t InventoryTransaction) SignedQuantity() decimal.Decimal {
	if t.Kind == InventoryUsage {
		return t.Quantity.Neg()
	}
	return t.Quantity
}

// InventoryFilter narrows ListInventoryEntries.
type InventoryFilter struct {
	TenantID  TenantID
	ProjectID ProjectID
	ItemID    ItemID
}
