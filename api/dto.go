/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures returned to clients. Domain types carry
  decimal.Decimal and typed IDs; DTOs render money and quantities as
  decimal strings so no precision is lost in transit.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request bodies that have no ledger input type

  Most request bodies decode straight into the ledger input structs
  (CreateContractInput, RecordReceiptInput, ...), which carry the json and
  validate tags.

TYPES:
  Contracts:
    ContractDTO, LineItemDTO, ContractSummaryDTO

  Change orders:
    ChangeOrderDTO, ApproveRequest, RejectRequest

  Purchasing:
    PurchaseOrderDTO, PurchaseOrderLineDTO, ReceiptResultDTO, PriceDTO

  Inventory:
    InventoryEntryDTO, InventoryTransactionDTO, BalanceRowDTO,
    MovementDTO, VerificationDTO, MinStockRequest

  Admin:
    AuditReportDTO

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: Domain model
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/crudexec/construction-sub006/ledger"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ApproveRequest is the optional body of an approval.
type ApproveRequest struct {
	Comment string `json:"comment"`
}

// RejectRequest is the body of a rejection. Reason is required.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// MinStockRequest sets or clears (null) an entry's threshold.
type MinStockRequest struct {
	MinStockLevel *decimal.Decimal `json:"minStockLevel"`
}

// =============================================================================
// CONTRACTS
// =============================================================================

// LineItemDTO represents a contract or change-order line.
type LineItemDTO struct {
	ID          string    `json:"id"`
	ParentType  string    `json:"parentType"`
	ParentID    string    `json:"parentId"`
	Description string    `json:"description"`
	Quantity    string    `json:"quantity"`
	Unit        string    `json:"unit"`
	UnitPrice   string    `json:"unitPrice"`
	TotalPrice  string    `json:"totalPrice"`
	Order       int       `json:"order"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ContractDTO represents a contract. LineItems is set on single reads.
type ContractDTO struct {
	ID               string        `json:"id"`
	ContractNumber   string        `json:"contractNumber"`
	Title            string        `json:"title"`
	Type             string        `json:"type"`
	Status           string        `json:"status"`
	VendorID         string        `json:"vendorId"`
	ProjectID        string        `json:"projectId,omitempty"`
	TotalSum         *string       `json:"totalSum"`
	RetentionPercent *string       `json:"retentionPercent,omitempty"`
	RetentionAmount  *string       `json:"retentionAmount,omitempty"`
	WarrantyYears    int           `json:"warrantyYears"`
	StartDate        *time.Time    `json:"startDate,omitempty"`
	EndDate          *time.Time    `json:"endDate,omitempty"`
	CreatedBy        string        `json:"createdBy"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
	LineItems        []LineItemDTO `json:"lineItems,omitempty"`
}

// StatusTotalDTO is one bucket of the change-order breakdown.
type StatusTotalDTO struct {
	Count int    `json:"count"`
	Total string `json:"total"`
}

// ContractSummaryDTO is the financial view of a contract.
type ContractSummaryDTO struct {
	ContractID                string                    `json:"contractId"`
	LineItemCount             int                       `json:"lineItemCount"`
	LineItemsTotal            string                    `json:"lineItemsTotal"`
	OriginalContractValue     string                    `json:"originalContractValue"`
	ChangeOrderCount          int                       `json:"changeOrderCount"`
	ChangeOrdersByStatus      map[string]StatusTotalDTO `json:"changeOrdersByStatus"`
	ApprovedChangeOrdersTotal string                    `json:"approvedChangeOrdersTotal"`
	PendingChangeOrdersTotal  string                    `json:"pendingChangeOrdersTotal"`
	RejectedChangeOrdersTotal string                    `json:"rejectedChangeOrdersTotal"`
	DraftChangeOrdersTotal    string                    `json:"draftChangeOrdersTotal"`
	CurrentContractValue      string                    `json:"currentContractValue"`
	PotentialContractValue    string                    `json:"potentialContractValue"`
	NetChangeFromOriginal     string                    `json:"netChangeFromOriginal"`
	PercentChangeFromOriginal string                    `json:"percentChangeFromOriginal"`
}

// =============================================================================
// CHANGE ORDERS
// =============================================================================

// ChangeOrderDTO represents a change order with its audit fields.
type ChangeOrderDTO struct {
	ID              string        `json:"id"`
	ContractID      string        `json:"contractId"`
	Number          int           `json:"changeOrderNumber"`
	Title           string        `json:"title"`
	Description     string        `json:"description,omitempty"`
	Reason          string        `json:"reason,omitempty"`
	TotalAmount     string        `json:"totalAmount"`
	Status          string        `json:"status"`
	CreatedBy       string        `json:"createdBy"`
	SubmittedBy     string        `json:"submittedBy,omitempty"`
	SubmittedAt     *time.Time    `json:"submittedAt,omitempty"`
	ApprovedBy      string        `json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time    `json:"approvedAt,omitempty"`
	ApprovalComment string        `json:"approvalComment,omitempty"`
	RejectedBy      string        `json:"rejectedBy,omitempty"`
	RejectedAt      *time.Time    `json:"rejectedAt,omitempty"`
	RejectionReason string        `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
	LineItems       []LineItemDTO `json:"lineItems,omitempty"`
}

// =============================================================================
// PURCHASING
// =============================================================================

// PurchaseOrderLineDTO is one ordered line with its receiving progress.
type PurchaseOrderLineDTO struct {
	ID               string `json:"id"`
	ItemID           string `json:"itemId,omitempty"`
	Description      string `json:"description"`
	Unit             string `json:"unit,omitempty"`
	Quantity         string `json:"quantity"`
	ReceivedQuantity string `json:"receivedQuantity"`
	Remaining        string `json:"remaining"`
	PercentReceived  string `json:"percentReceived"`
	UnitPrice        string `json:"unitPrice"`
	Position         int    `json:"position"`
}

// PurchaseOrderDTO represents a purchase order.
type PurchaseOrderDTO struct {
	ID              string                 `json:"id"`
	PONumber        string                 `json:"poNumber"`
	VendorID        string                 `json:"vendorId"`
	ProjectID       string                 `json:"projectId,omitempty"`
	Status          string                 `json:"status"`
	DeliveredDate   *time.Time             `json:"deliveredDate,omitempty"`
	Notes           string                 `json:"notes,omitempty"`
	Total           string                 `json:"total"`
	PercentReceived string                 `json:"percentReceived"`
	CreatedBy       string                 `json:"createdBy"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
	Lines           []PurchaseOrderLineDTO `json:"lines"`
}

// PriceDTO is a vendor price row with its purchase statistics.
type PriceDTO struct {
	ID                   string     `json:"id"`
	ItemID               string     `json:"itemId"`
	VendorID             string     `json:"vendorId"`
	UnitPrice            string     `json:"unitPrice"`
	IsPreferred          bool       `json:"isPreferred"`
	LeadTimeDays         *int       `json:"leadTimeDays,omitempty"`
	Notes                string     `json:"notes,omitempty"`
	LastPurchaseDate     *time.Time `json:"lastPurchaseDate,omitempty"`
	TotalPurchasedQty    string     `json:"totalPurchasedQty"`
	TotalPurchasedValue  string     `json:"totalPurchasedValue"`
	AveragePurchasePrice string     `json:"averagePurchasePrice"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// ReceiptResultDTO is the response of a recorded receipt.
type ReceiptResultDTO struct {
	PurchaseOrder  PurchaseOrderDTO `json:"purchaseOrder"`
	PreviousStatus string           `json:"previousStatus"`
	PriceStats     []PriceDTO       `json:"priceStats"`
}

// =============================================================================
// INVENTORY
// =============================================================================

// InventoryEntryDTO represents one item's stock in one project.
type InventoryEntryDTO struct {
	ID                string    `json:"id"`
	ItemID            string    `json:"itemId"`
	ProjectID         string    `json:"projectId"`
	QuantityPurchased string    `json:"quantityPurchased"`
	QuantityUsed      string    `json:"quantityUsed"`
	QuantityRemaining string    `json:"quantityRemaining"`
	MinStockLevel     *string   `json:"minStockLevel,omitempty"`
	LowStock          bool      `json:"lowStock"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// InventoryTransactionDTO is one log row.
type InventoryTransactionDTO struct {
	ID         string    `json:"id"`
	EntryID    string    `json:"entryId"`
	Type       string    `json:"type"`
	Quantity   string    `json:"quantity"`
	UnitCost   *string   `json:"unitCost,omitempty"`
	TotalCost  *string   `json:"totalCost,omitempty"`
	VendorID   string    `json:"vendorId,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
	CreatedBy  string    `json:"createdBy"`
}

// BalanceRowDTO is a transaction with the balance around it.
type BalanceRowDTO struct {
	InventoryTransactionDTO
	BalanceBefore string `json:"balanceBefore"`
	BalanceAfter  string `json:"balanceAfter"`
}

// MovementDTO is the response of a purchase or usage.
type MovementDTO struct {
	Entry       InventoryEntryDTO       `json:"entry"`
	Transaction InventoryTransactionDTO `json:"transaction"`
	PriceStat   *PriceDTO               `json:"priceStat,omitempty"`
}

// VerificationDTO compares stored accumulators to a log replay.
type VerificationDTO struct {
	EntryID           string `json:"entryId"`
	StoredPurchased   string `json:"storedPurchased"`
	StoredUsed        string `json:"storedUsed"`
	ReplayedPurchased string `json:"replayedPurchased"`
	ReplayedUsed      string `json:"replayedUsed"`
	TransactionCount  int    `json:"transactionCount"`
	Consistent        bool   `json:"consistent"`
}

// =============================================================================
// ADMIN
// =============================================================================

// AggregateDriftDTO is a stored total that disagrees with its lines.
type AggregateDriftDTO struct {
	Kind     string  `json:"kind"`
	ID       string  `json:"id"`
	TenantID string  `json:"tenantId"`
	Stored   *string `json:"stored"`
	Computed string  `json:"computed"`
	Repaired bool    `json:"repaired"`
}

// InventoryDriftDTO is an entry whose accumulators disagree with its log.
type InventoryDriftDTO struct {
	VerificationDTO
	Repaired bool `json:"repaired"`
}

// AuditReportDTO is one drift audit pass.
type AuditReportDTO struct {
	StartedAt        time.Time           `json:"startedAt"`
	FinishedAt       time.Time           `json:"finishedAt"`
	Repair           bool                `json:"repair"`
	Clean            bool                `json:"clean"`
	ContractsChecked int                 `json:"contractsChecked"`
	ChangeOrders     int                 `json:"changeOrdersChecked"`
	EntriesChecked   int                 `json:"entriesChecked"`
	Aggregates       []AggregateDriftDTO `json:"aggregates"`
	Inventory        []InventoryDriftDTO `json:"inventory"`
}

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func decString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func toLineItemDTO(li ledger.LineItem) LineItemDTO {
	return LineItemDTO{
		ID:          string(li.ID),
		ParentType:  string(li.Parent.Kind),
		ParentID:    li.Parent.ID,
		Description: li.Description,
		Quantity:    li.Quantity.String(),
		Unit:        li.Unit,
		UnitPrice:   li.UnitPrice.String(),
		TotalPrice:  li.TotalPrice.String(),
		Order:       li.Order,
		Notes:       li.Notes,
		CreatedAt:   li.CreatedAt,
		UpdatedAt:   li.UpdatedAt,
	}
}

func toLineItemDTOs(items []ledger.LineItem) []LineItemDTO {
	out := make([]LineItemDTO, len(items))
	for i, li := range items {
		out[i] = toLineItemDTO(li)
	}
	return out
}

func toContractDTO(c ledger.Contract) ContractDTO {
	return ContractDTO{
		ID:               string(c.ID),
		ContractNumber:   c.ContractNumber,
		Title:            c.Title,
		Type:             string(c.Type),
		Status:           string(c.Status),
		VendorID:         string(c.VendorID),
		ProjectID:        string(c.ProjectID),
		TotalSum:         decString(c.TotalSum),
		RetentionPercent: decString(c.RetentionPercent),
		RetentionAmount:  decString(c.RetentionAmount),
		WarrantyYears:    c.WarrantyYears,
		StartDate:        c.StartDate,
		EndDate:          c.EndDate,
		CreatedBy:        string(c.CreatedBy),
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

func toSummaryDTO(s ledger.ContractSummary) ContractSummaryDTO {
	byStatus := make(map[string]StatusTotalDTO, len(s.ChangeOrdersByStatus))
	for status, t := range s.ChangeOrdersByStatus {
		byStatus[string(status)] = StatusTotalDTO{Count: t.Count, Total: t.Total.String()}
	}
	return ContractSummaryDTO{
		ContractID:                string(s.ContractID),
		LineItemCount:             s.LineItemCount,
		LineItemsTotal:            s.LineItemsTotal.String(),
		OriginalContractValue:     s.OriginalContractValue.String(),
		ChangeOrderCount:          s.ChangeOrderCount,
		ChangeOrdersByStatus:      byStatus,
		ApprovedChangeOrdersTotal: s.ApprovedChangeOrdersTotal.String(),
		PendingChangeOrdersTotal:  s.PendingChangeOrdersTotal.String(),
		RejectedChangeOrdersTotal: s.RejectedChangeOrdersTotal.String(),
		DraftChangeOrdersTotal:    s.DraftChangeOrdersTotal.String(),
		CurrentContractValue:      s.CurrentContractValue.String(),
		PotentialContractValue:    s.PotentialContractValue.String(),
		NetChangeFromOriginal:     s.NetChangeFromOriginal.String(),
		PercentChangeFromOriginal: s.PercentChangeFromOriginal.String(),
	}
}

func toChangeOrderDTO(co ledger.ChangeOrder) ChangeOrderDTO {
	return ChangeOrderDTO{
		ID:              string(co.ID),
		ContractID:      string(co.ContractID),
		Number:          co.Number,
		Title:           co.Title,
		Description:     co.Description,
		Reason:          co.Reason,
		TotalAmount:     co.TotalAmount.String(),
		Status:          string(co.Status),
		CreatedBy:       string(co.CreatedBy),
		SubmittedBy:     string(co.SubmittedBy),
		SubmittedAt:     co.SubmittedAt,
		ApprovedBy:      string(co.ApprovedBy),
		ApprovedAt:      co.ApprovedAt,
		ApprovalComment: co.ApprovalComment,
		RejectedBy:      string(co.RejectedBy),
		RejectedAt:      co.RejectedAt,
		RejectionReason: co.RejectionReason,
		CreatedAt:       co.CreatedAt,
		UpdatedAt:       co.UpdatedAt,
	}
}

func toPurchaseOrderDTO(po ledger.PurchaseOrder) PurchaseOrderDTO {
	progress, overall := ledger.ReceivingProgress(po)
	lines := make([]PurchaseOrderLineDTO, len(po.Lines))
	for i, l := range po.Lines {
		lines[i] = PurchaseOrderLineDTO{
			ID:               string(l.ID),
			ItemID:           string(l.ItemID),
			Description:      l.Description,
			Unit:             l.Unit,
			Quantity:         l.Quantity.String(),
			ReceivedQuantity: l.ReceivedQuantity.String(),
			Remaining:        l.Remaining().String(),
			UnitPrice:        l.UnitPrice.String(),
			Position:         l.Position,
		}
		if i < len(progress) {
			lines[i].PercentReceived = progress[i].PercentReceived.String()
		}
	}
	return PurchaseOrderDTO{
		ID:              string(po.ID),
		PONumber:        po.PONumber,
		VendorID:        string(po.VendorID),
		ProjectID:       string(po.ProjectID),
		Status:          string(po.Status),
		DeliveredDate:   po.DeliveredDate,
		Notes:           po.Notes,
		Total:           po.Total().String(),
		PercentReceived: overall.String(),
		CreatedBy:       string(po.CreatedBy),
		CreatedAt:       po.CreatedAt,
		UpdatedAt:       po.UpdatedAt,
		Lines:           lines,
	}
}

func toPriceDTO(p ledger.PriceComparison) PriceDTO {
	return PriceDTO{
		ID:                   string(p.ID),
		ItemID:               string(p.ItemID),
		VendorID:             string(p.VendorID),
		UnitPrice:            p.UnitPrice.String(),
		IsPreferred:          p.IsPreferred,
		LeadTimeDays:         p.LeadTimeDays,
		Notes:                p.Notes,
		LastPurchaseDate:     p.LastPurchaseDate,
		TotalPurchasedQty:    p.TotalPurchasedQty.String(),
		TotalPurchasedValue:  p.TotalPurchasedValue.String(),
		AveragePurchasePrice: p.AveragePurchasePrice().String(),
		UpdatedAt:            p.UpdatedAt,
	}
}

func toPriceDTOs(prices []ledger.PriceComparison) []PriceDTO {
	out := make([]PriceDTO, len(prices))
	for i, p := range prices {
		out[i] = toPriceDTO(p)
	}
	return out
}

func toEntryDTO(e ledger.InventoryEntry) InventoryEntryDTO {
	return InventoryEntryDTO{
		ID:                string(e.ID),
		ItemID:            string(e.ItemID),
		ProjectID:         string(e.ProjectID),
		QuantityPurchased: e.PurchasedQty.String(),
		QuantityUsed:      e.UsedQty.String(),
		QuantityRemaining: e.Remaining().String(),
		MinStockLevel:     decString(e.MinStockLevel),
		LowStock:          e.LowStock(),
		UpdatedAt:         e.UpdatedAt,
	}
}

func toEntryDTOs(entries []ledger.InventoryEntry) []InventoryEntryDTO {
	out := make([]InventoryEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = toEntryDTO(e)
	}
	return out
}

func toInventoryTxDTO(t ledger.InventoryTransaction) InventoryTransactionDTO {
	return InventoryTransactionDTO{
		ID:         string(t.ID),
		EntryID:    string(t.EntryID),
		Type:       string(t.Kind),
		Quantity:   t.Quantity.String(),
		UnitCost:   decString(t.UnitCost),
		TotalCost:  decString(t.TotalCost),
		VendorID:   string(t.VendorID),
		Notes:      t.Notes,
		OccurredAt: t.OccurredAt,
		CreatedBy:  string(t.CreatedBy),
	}
}

func toMovementDTO(m *ledger.MovementResult) MovementDTO {
	dto := MovementDTO{
		Entry:       toEntryDTO(*m.Entry),
		Transaction: toInventoryTxDTO(m.Transaction),
	}
	if m.PriceStat != nil {
		p := toPriceDTO(*m.PriceStat)
		dto.PriceStat = &p
	}
	return dto
}

func toVerificationDTO(v ledger.Verification) VerificationDTO {
	return VerificationDTO{
		EntryID:           string(v.EntryID),
		StoredPurchased:   v.StoredPurchased.String(),
		StoredUsed:        v.StoredUsed.String(),
		ReplayedPurchased: v.ReplayedPurchased.String(),
		ReplayedUsed:      v.ReplayedUsed.String(),
		TransactionCount:  v.TransactionCount,
		Consistent:        v.Consistent,
	}
}

func toAuditReportDTO(r ledger.AuditReport) AuditReportDTO {
	dto := AuditReportDTO{
		StartedAt:        r.StartedAt,
		FinishedAt:       r.FinishedAt,
		Repair:           r.Repair,
		Clean:            r.Clean(),
		ContractsChecked: r.ContractsChecked,
		ChangeOrders:     r.ChangeOrders,
		EntriesChecked:   r.EntriesChecked,
		Aggregates:       make([]AggregateDriftDTO, len(r.Aggregates)),
		Inventory:        make([]InventoryDriftDTO, len(r.Inventory)),
	}
	for i, a := range r.Aggregates {
		dto.Aggregates[i] = AggregateDriftDTO{
			Kind:     string(a.Kind),
			ID:       a.ID,
			TenantID: string(a.TenantID),
			Stored:   decString(a.Stored),
			Computed: a.Computed.String(),
			Repaired: a.Repaired,
		}
	}
	for i, d := range r.Inventory {
		dto.Inventory[i] = InventoryDriftDTO{VerificationDTO: toVerificationDTO(d.Verification), Repaired: d.Repaired}
	}
	return dto
}
