/*
handlers.go - HTTP API handlers for the construction ledger

PURPOSE:
  Exposes the ledger services via REST API. Handles HTTP request/response
  and JSON serialization, and delegates every rule to package ledger.

ENDPOINTS:
  Contracts:
    GET    /api/contracts                         List contracts
    POST   /api/contracts                         Create contract
    GET    /api/contracts/{id}                    Contract with line items
    PATCH  /api/contracts/{id}                    Update header
    DELETE /api/contracts/{id}                    Delete (admin)
    GET    /api/contracts/{id}/summary            Financial summary
    POST   /api/contracts/{id}/recalculate        Recompute total

  Line items (contract or change order parent):
    GET|POST      /api/{parent}/{id}/line-items
    PATCH|DELETE  /api/{parent}/{id}/line-items/{itemID}

  Change orders:
    GET|POST      /api/contracts/{id}/change-orders
    GET|PATCH|DELETE /api/change-orders/{id}
    POST          /api/change-orders/{id}/submit|approve|reject

  Purchasing:
    POST   /api/purchase-orders                   Create PO
    GET    /api/purchase-orders/{id}              PO with progress
    POST   /api/purchase-orders/{id}/send|cancel  Lifecycle
    POST   /api/purchase-orders/{id}/receipts     Record receipt
    GET    /api/items/{itemID}/prices             Price comparison
    PUT|DELETE /api/items/{itemID}/prices/{vendorID}
    POST   /api/items/{itemID}/prices/{vendorID}/preferred
    DELETE /api/items/{itemID}/preferred

  Inventory:
    GET|POST /api/inventory                       List / create entries
    GET    /api/inventory/low-stock               Low-stock entries
    POST   /api/inventory/purchases|usages        Stock movements
    GET    /api/inventory/{id}[/history|/verify]
    PUT    /api/inventory/{id}/min-stock

  Admin:
    GET    /api/admin/audit                       Last drift report
    POST   /api/admin/audit?repair=true           Run drift audit now

ARCHITECTURE:
  Handler holds the Ledger, the store (for scenario resets) and the audit
  scheduler. The caller's identity comes from requireActor.

REQUEST FLOW:
  1. Decode body into the ledger input struct
  2. Call the ledger inside RetryOnConflict (mutations only)
  3. Convert the result to a DTO
  4. Map errors with writeLedgerError (see errors.go)

SEE ALSO:
  - dto.go: Response data structures
  - errors.go: Error to status mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/crudexec/construction-sub006/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter wipes every table. Demo scenarios use it before seeding.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Ledger        *ledger.Ledger
	Store         Resetter
	Scheduler     *AuditScheduler
	RetryAttempts int

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler. store and scheduler may be nil; the
// endpoints that need them then answer 501 / run audits inline.
func NewHandler(l *ledger.Ledger, store Resetter, scheduler *AuditScheduler, retryAttempts int) *Handler {
	if retryAttempts < 1 {
		retryAttempts = 1
	}
	return &Handler{
		Ledger:        l,
		Store:         store,
		Scheduler:     scheduler,
		RetryAttempts: retryAttempts,
	}
}

// mutate runs fn, retrying on concurrent-modification errors.
func (h *Handler) mutate(r *http.Request, fn func(ctx context.Context) error) error {
	return ledger.RetryOnConflict(r.Context(), h.RetryAttempts, fn)
}

// =============================================================================
// CONTRACT HANDLERS
// =============================================================================

// ListContracts returns the tenant's contracts.
func (h *Handler) ListContracts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.ContractFilter{
		VendorID:  ledger.VendorID(q.Get("vendor_id")),
		ProjectID: ledger.ProjectID(q.Get("project_id")),
		Status:    ledger.ContractStatus(q.Get("status")),
	}
	contracts, err := h.Ledger.Contracts.ListContracts(r.Context(), actorFrom(r), filter)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	out := make([]ContractDTO, len(contracts))
	for i, c := range contracts {
		out[i] = toContractDTO(c)
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateContract creates a contract with optional initial line items.
func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	var in ledger.CreateContractInput
	if !decodeJSON(w, r, &in) {
		return
	}
	var c *ledger.Contract
	err := h.mutate(r, func(ctx context.Context) (err error) {
		c, err = h.Ledger.Contracts.CreateContract(ctx, actorFrom(r), in)
		return err
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	h.writeContract(w, r, http.StatusCreated, c)
}

// GetContract returns a contract with its line items.
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	c, err := h.Ledger.Contracts.GetContract(r.Context(), actorFrom(r), contractID(r))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	h.writeContract(w, r, http.StatusOK, c)
}

// UpdateContract applies header edits.
func (h *Handler) UpdateContract(w http.ResponseWriter, r *http.Request) {
	var in ledger.UpdateContractInput
	if !decodeJSON(w, r, &in) {
		return
	}
	var c *ledger.Contract
	err := h.mutate(r, func(ctx context.Context) (err error) {
		c, err = h.Ledger.Contracts.UpdateContract(ctx, actorFrom(r), contractID(r), in)
		return err
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	h.writeContract(w, r, http.StatusOK, c)
}

// DeleteContract removes a contract and everything under it. Admin only.
func (h *Handler) DeleteContract(w http.ResponseWriter, r *http.Request) {
	err := h.mutate(r, func(ctx context.Context) error {
		return h.Ledger.Contracts.DeleteContract(ctx, actorFrom(r), contractID(r))
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ContractSummary returns the contract's financial summary.
func (h *Handler) ContractSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.Ledger.Contracts.Summary(r.Context(), actorFrom(r), contractID(r))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(*s))
}

// RecalculateContract forces a recompute of the stored total.
func (h *Handler) RecalculateContract(w http.ResponseWriter, r *http.Request) {
	var c *ledger.Contract
	err := h.mutate(r, func(ctx context.Context) (err error) {
		c, err = h.Ledger.Contracts.RecalculateContractTotal(ctx, actorFrom(r), contractID(r))
		return err
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	h.writeContract(w, r, http.StatusOK, c)
}

func (h *Handler) writeContract(w http.ResponseWriter, r *http.Request, status int, c *ledger.Contract) {
	items, err := h.Ledger.Contracts.ListLineItems(r.Context(), actorFrom(r), ledger.ContractParent(c.ID))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	dto := toContractDTO(*c)
	dto.LineItems = toLineItemDTOs(items)
	writeJSON(w, status, dto)
}

// =============================================================================
// LINE ITEM HANDLERS
// =============================================================================

// lineItemRoutes mounts the line item endpoints for one parent kind.
func (h *Handler) lineItemRoutes(parent func(*http.Request) ledger.ParentRef) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) { h.listLineItems(w, r, parent(r)) })
		r.Post("/", func(w http.ResponseWriter, r *http.Request) { h.addLineItem(w, r, parent(r)) })
		r.Patch("/{itemID}", func(w http.ResponseWriter, r *http.Request) { h.updateLineItem(w, r, parent(r)) })
		r.Delete("/{itemID}", func(w http.ResponseWriter, r *http.Request) { h.deleteLineItem(w, r, parent(r)) })
	}
}

func (h *Handler) listLineItems(w http.ResponseWriter, r *http.Request, parent ledger.ParentRef) {
	items, err := h.Ledger.Contracts.ListLineItems(r.Context(), actorFrom(r), parent)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLineItemDTOs(items))
}

func (h *Handler) addLineItem(w http.ResponseWriter, r *http.Request, parent ledger.ParentRef) {
	var in ledger.LineItemInput
	if !decodeJSON(w, r, &in) {
		return
	}
	var li *ledger.LineItem
	err := h.mutate(r, func(ctx context.Context) (err error) {
		li, err = h.Ledger.Contracts.AddLineItem(ctx, actorFrom(r), parent, in)
		return err
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLineItemDTO(*li))
}

func (h *Handler) updateLineItem(w http.ResponseWriter, r *http.Request, parent ledger.ParentRef) {
	var patch ledger.LineItemPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	id := ledger.LineItemID(chi.URLParam(r, "itemID"))
	var li *ledger.LineItem
	err := h.mutate(r, func(ctx context.Context) (err error) {
		li, err = h.Ledger.Contracts.UpdateLineItem(ctx, actorFrom(r), parent, id, patch)
		return err
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLineItemDTO(*li))
}

func (h *Handler) deleteLineItem(w http.ResponseWriter, r *http.Request, parent ledger.ParentRef) {
	id := ledger.LineItemID(chi.URLParam(r, "itemID"))
	err := h.mutate(r, func(ctx context.Context) error {
		return h.Ledger.Contracts.DeleteLineItem(ctx, actorFrom(r), parent, id)
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CHANGE ORDER HANDLERS
// =============================================================================

// ListChangeOrders returns a contract's change orders by number.
func (h *Handler) ListChangeOrders(w http.ResponseWriter, r *http.Request) {
	cos, err := h.Ledger.ChangeOrders.List(r.Context(), actorFrom(r), contractID(r))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	out := make([]ChangeOrderDTO, len(cos))
	for i, co := range cos {
		out[i] = toChangeOrderDTO(co)
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateChangeOrder opens a DRAFT change order on a contract.
func (h *Handler) CreateChangeOrder(w http.ResponseWriter, r *http.Request) {
	var in ledger.CreateChangeOrderInput
	if !decodeJSON(w, r, &in) {
		return
	}
	var co *ledger.ChangeOrder
	err := h.mutate(r, func(ctx context.Context) (err error) {
		co, err = h.Ledger.ChangeOrders.Create(ctx, actorFrom(r), contractID(r), in)
		return err
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	h.writeChangeOrder(w, r, http.StatusCreated, co)
}

// GetChangeOrder returns a change order with its line items.
func (h *Handler) GetChangeOrder(w http.ResponseWriter, r *http.Request) {
	co, err := h.Ledger.ChangeOrders.Get(r.Context(), actorFrom(r), changeOrderID(r))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	h.writeChangeOrder(w, r, http.StatusOK, co)
}

// UpdateChangeOrder edits a DRAFT change order's header.
func (h *Handler) UpdateChangeOrder(w http.ResponseWriter, r *http.Request) {
	var in ledger.UpdateChangeOrderInput
	if !decodeJSON(w, r, &in) {
		return
	}
	var co *ledger.ChangeOrder
	err := h.mutate(r, func(ctx context.Context) (err error) {
		co, err = h.Ledger.ChangeOrders.Update(ctx, actorFrom(r), changeOrderID(r), in)
		return err
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	h.writeChangeOrder(w, r, http.StatusOK, co)
}

// DeleteChangeOrder removes a DRAFT or REJECTED change order.
func (h *Handler) DeleteChangeOrder(w http.ResponseWriter, r *http.Request) {
	err := h.mutate(r, func(ctx context.Context) error {
		return h.Ledger.ChangeOrders.Delete(ctx, actorFrom(r), changeOrderID(r))
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubmitChangeOrder moves a change order to PENDING_APPROVAL.
func (h *Handler) SubmitChangeOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id ledger.ChangeOrderID) (*ledger.ChangeOrder, error) {
		return h.Ledger.ChangeOrders.Submit(ctx, actorFrom(r), id)
	})
}

// ApproveChangeOrder approves a pending change order.
func (h *Handler) ApproveChangeOrder(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.transition(w, r, func(ctx context.Context, id ledger.ChangeOrderID) (*ledger.ChangeOrder, error) {
		return h.Ledger.ChangeOrders.Approve(ctx, actorFrom(r), id, req.Comment)
	})
}

// RejectChangeOrder rejects a pending change order with a reason.
func (h *Handler) RejectChangeOrder(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.transition(w, r, func(ctx context.Context, id ledger.ChangeOrderID) (*ledger.ChangeOrder, error) {
		return h.Ledger.ChangeOrders.Reject(ctx, actorFrom(r), id, req.Reason)
	})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, ledger.ChangeOrderID) (*ledger.ChangeOrder, error)) {
	id := changeOrderID(r)
	var co *ledger.ChangeOrder
	err := h.mutate(r, func(ctx context.Context) (err error) {
		co, err = fn(ctx, id)
		return err
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	h.writeChangeOrder(w, r, http.StatusOK, co)
}

func (h *Handler) writeChangeOrder(w http.ResponseWriter, r *http.Request, status int, co *ledger.ChangeOrder) {
	items, err := h.Ledger.Contracts.ListLineItems(r.Context(), actorFrom(r), ledger.ChangeOrderParent(co.ID))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	dto := toChangeOrderDTO(*co)
	dto.LineItems = toLineItemDTOs(items)
	writeJSON(w, status, dto)
}

// =============================================================================
// PURCHASE ORDER HANDLERS
// =============================================================================

// CreatePurchaseOrder opens a DRAFT purchase order.
func (h *Handler) CreatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var in ledger.CreatePurchaseOrderInput
	if !decodeJSON(w, r, &in) {
		return
	}
	var po *ledger.PurchaseOrder
	err := h.mutate(r, func(ctx context.Context) (err error) {
		po, err = h.Ledger.PurchaseOrders.Create(ctx, actorFrom(r), in)
		return err
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPurchaseOrderDTO(*po))
}

// GetPurchaseOrder returns a purchase order with receiving progress.
func (h *Handler) GetPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	po, err := h.Ledger.PurchaseOrders.Get(r.Context(), actorFrom(r), purchaseOrderID(r))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseOrderDTO(*po))
}

// SendPurchaseOrder marks a purchase order SENT.
func (h *Handler) SendPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	h.poLifecycle(w, r, h.Ledger.PurchaseOrders.Send)
}

// CancelPurchaseOrder cancels a purchase order with nothing received.
func (h *Handler) CancelPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	h.poLifecycle(w, r, h.Ledger.PurchaseOrders.Cancel)
}

func (h *Handler) poLifecycle(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, ledger.Actor, ledger.PurchaseOrderID) (*ledger.PurchaseOrder, error)) {
	var po *ledger.PurchaseOrder
	err := h.mutate(r, func(ctx context.Context) (err error) {
		po, err = fn(ctx, actorFrom(r), purchaseOrderID(r))
		return err
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseOrderDTO(*po))
}

// RecordReceipt applies a batch of received quantities.
func (h *Handler) RecordReceipt(w http.ResponseWriter, r *http.Request) {
	var in ledger.RecordReceiptInput
	if !decodeJSON(w, r, &in) {
		return
	}
	var res *ledger.ReceiptResult
	err := h.mutate(r, func(ctx context.Context) (err error) {
		res, err = h.Ledger.PurchaseOrders.RecordReceipt(ctx, actorFrom(r), purchaseOrderID(r), in)
		return err
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReceiptResultDTO{
		PurchaseOrder:  toPurchaseOrderDTO(*res.PurchaseOrder),
		PreviousStatus: string(res.PreviousStatus),
		PriceStats:     toPriceDTOs(res.PriceStats),
	})
}

// =============================================================================
// PRICE HANDLERS
// =============================================================================

// ListPrices returns an item's vendor prices, cheapest first.
func (h *Handler) ListPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := h.Ledger.Prices.ListPrices(r.Context(), actorFrom(r), itemID(r))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPriceDTOs(prices))
}

// SetPrice creates or updates a catalog price.
func (h *Handler) SetPrice(w http.ResponseWriter, r *http.Request) {
	var in ledger.SetPriceInput
	if !decodeJSON(w, r, &in) {
		return
	}
	var p *ledger.PriceComparison
	err := h.mutate(r, func(ctx context.Context) (err error) {
		p, err = h.Ledger.Prices.SetPrice(ctx, actorFrom(r), itemID(r), vendorID(r), in)
		return err
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPriceDTO(*p))
}

// DeletePrice removes a vendor price row.
func (h *Handler) DeletePrice(w http.ResponseWriter, r *http.Request) {
	err := h.mutate(r, func(ctx context.Context) error {
		return h.Ledger.Prices.DeletePrice(ctx, actorFrom(r), itemID(r), vendorID(r))
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetPreferred makes one vendor the item's preferred source.
func (h *Handler) SetPreferred(w http.ResponseWriter, r *http.Request) {
	var p *ledger.PriceComparison
	err := h.mutate(r, func(ctx context.Context) (err error) {
		p, err = h.Ledger.Prices.SetPreferred(ctx, actorFrom(r), itemID(r), vendorID(r))
		return err
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPriceDTO(*p))
}

// ClearPreferred unsets the item's preferred vendor.
func (h *Handler) ClearPreferred(w http.ResponseWriter, r *http.Request) {
	err := h.mutate(r, func(ctx context.Context) error {
		return h.Ledger.Prices.ClearPreferred(ctx, actorFrom(r), itemID(r))
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// INVENTORY HANDLERS
// =============================================================================

// ListInventory returns entries, optionally for one project.
func (h *Handler) ListInventory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Ledger.Inventory.ListEntries(r.Context(), actorFrom(r), ledger.ProjectID(r.URL.Query().Get("project_id")))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// ListLowStock returns entries at or below their threshold.
func (h *Handler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Ledger.Inventory.ListLowStock(r.Context(), actorFrom(r), ledger.ProjectID(r.URL.Query().Get("project_id")))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// CreateInventoryEntry registers an item in a project.
func (h *Handler) CreateInventoryEntry(w http.ResponseWriter, r *http.Request) {
	var in ledger.CreateEntryInput
	if !decodeJSON(w, r, &in) {
		return
	}
	var e *ledger.InventoryEntry
	err := h.mutate(r, func(ctx context.Context) (err error) {
		e, err = h.Ledger.Inventory.CreateEntry(ctx, actorFrom(r), in)
		return err
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(*e))
}

// GetInventoryEntry returns one entry.
func (h *Handler) GetInventoryEntry(w http.ResponseWriter, r *http.Request) {
	e, err := h.Ledger.Inventory.GetEntry(r.Context(), actorFrom(r), entryID(r))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(*e))
}

// SetMinStockLevel sets or clears an entry's threshold.
func (h *Handler) SetMinStockLevel(w http.ResponseWriter, r *http.Request) {
	var req MinStockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var e *ledger.InventoryEntry
	err := h.mutate(r, func(ctx context.Context) (err error) {
		e, err = h.Ledger.Inventory.SetMinStockLevel(ctx, actorFrom(r), entryID(r), req.MinStockLevel)
		return err
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(*e))
}

// RecordPurchase adds stock.
func (h *Handler) RecordPurchase(w http.ResponseWriter, r *http.Request) {
	var in ledger.RecordPurchaseInput
	if !decodeJSON(w, r, &in) {
		return
	}
	var m *ledger.MovementResult
	err := h.mutate(r, func(ctx context.Context) (err error) {
		m, err = h.Ledger.Inventory.RecordPurchase(ctx, actorFrom(r), in)
		return err
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementDTO(m))
}

// RecordUsage consumes stock.
func (h *Handler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	var in ledger.RecordUsageInput
	if !decodeJSON(w, r, &in) {
		return
	}
	var m *ledger.MovementResult
	err := h.mutate(r, func(ctx context.Context) (err error) {
		m, err = h.Ledger.Inventory.RecordUsage(ctx, actorFrom(r), in)
		return err
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementDTO(m))
}

// InventoryHistory returns the running balance, newest first.
func (h *Handler) InventoryHistory(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Ledger.Inventory.History(r.Context(), actorFrom(r), entryID(r))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	out := make([]BalanceRowDTO, len(rows))
	for i, row := range rows {
		out[i] = BalanceRowDTO{
			InventoryTransactionDTO: toInventoryTxDTO(row.Transaction),
			BalanceBefore:           row.BalanceBefore.String(),
			BalanceAfter:            row.BalanceAfter.String(),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// VerifyInventoryEntry replays the log against the stored accumulators.
func (h *Handler) VerifyInventoryEntry(w http.ResponseWriter, r *http.Request) {
	v, err := h.Ledger.Inventory.VerifyEntry(r.Context(), actorFrom(r), entryID(r))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVerificationDTO(*v))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// LastAudit returns the most recent drift report.
func (h *Handler) LastAudit(w http.ResponseWriter, r *http.Request) {
	if !actorFrom(r).IsAdmin() {
		writeLedgerError(w, r, ledger.ErrForbidden)
		return
	}
	if h.Scheduler == nil || h.Scheduler.LastReport() == nil {
		writeError(w, http.StatusNotFound, "no audit has run yet", nil)
		return
	}
	writeJSON(w, http.StatusOK, toAuditReportDTO(*h.Scheduler.LastReport()))
}

// RunAudit runs a drift audit now. ?repair=true rewrites drifted rows.
func (h *Handler) RunAudit(w http.ResponseWriter, r *http.Request) {
	if !actorFrom(r).IsAdmin() {
		writeLedgerError(w, r, ledger.ErrForbidden)
		return
	}
	repair, _ := strconv.ParseBool(r.URL.Query().Get("repair"))

	var (
		rep *ledger.AuditReport
		err error
	)
	if h.Scheduler != nil {
		rep, err = h.Scheduler.RunNow(r.Context(), repair)
	} else {
		rep, err = h.Ledger.Audit.Run(r.Context(), repair)
	}
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditReportDTO(*rep))
}

// =============================================================================
// HELPERS
// =============================================================================

func contractID(r *http.Request) ledger.ContractID {
	return ledger.ContractID(chi.URLParam(r, "id"))
}

func changeOrderID(r *http.Request) ledger.ChangeOrderID {
	return ledger.ChangeOrderID(chi.URLParam(r, "id"))
}

func purchaseOrderID(r *http.Request) ledger.PurchaseOrderID {
	return ledger.PurchaseOrderID(chi.URLParam(r, "id"))
}

func entryID(r *http.Request) ledger.EntryID {
	return ledger.EntryID(chi.URLParam(r, "id"))
}

func itemID(r *http.Request) ledger.ItemID {
	return ledger.ItemID(chi.URLParam(r, "itemID"))
}

func vendorID(r *http.Request) ledger.VendorID {
	return ledger.VendorID(chi.URLParam(r, "vendorID"))
}

// decodeJSON reads the request body into v. An empty body leaves v at its
// zero value. On failure it writes a 400 and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, http.StatusBadRequest, "invalid request body", err)
	return false
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
