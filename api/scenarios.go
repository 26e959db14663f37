/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	construction data. Every row is written through the ledger services,
	so the seeded data obeys the same rules as API traffic.

AVAILABLE SCENARIOS:

	residential-build: Lump-sum contract with change orders in every state
	procurement:       Vendor catalog prices and a partially received PO
	site-inventory:    Purchases and usage on site, one item below minimum
	full-project:      All of the above in one project

HOW SCENARIOS WORK:
 1. Reset the store (clear all data, every tenant)
 2. Seed through package ledger as the calling actor
 3. Remember the loaded scenario for GET /api/scenarios/current

USAGE VIA API:

	POST /api/scenarios/procurement

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Write a loader: seedXxx(ctx, l, actor) error
 3. Register it in scenarioLoaders

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler
  - cmd/server/main.go: scenario command
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/crudexec/construction-sub006/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "residential-build",
		Name:        "Residential Build",
		Description: "Lump-sum contract with approved, pending, rejected and draft change orders",
		Category:    "contracts",
	},
	{
		ID:          "procurement",
		Name:        "Procurement",
		Description: "Three vendors quoting rebar and a purchase order received in part",
		Category:    "purchasing",
	},
	{
		ID:          "site-inventory",
		Name:        "Site Inventory",
		Description: "Cement and sand purchased and used on site, cement below minimum",
		Category:    "inventory",
	},
	{
		ID:          "full-project",
		Name:        "Full Project",
		Description: "Contracts, purchasing and inventory for one project",
		Category:    "all",
	},
}

type seedFunc func(ctx context.Context, l *ledger.Ledger, actor ledger.Actor) error

var scenarioLoaders = map[string]seedFunc{
	"residential-build": seedResidentialBuild,
	"procurement":       seedProcurement,
	"site-inventory":    seedSiteInventory,
	"full-project": func(ctx context.Context, l *ledger.Ledger, actor ledger.Actor) error {
		for _, seed := range []seedFunc{seedResidentialBuild, seedProcurement, seedSiteInventory} {
			if err := seed(ctx, l, actor); err != nil {
				return err
			}
		}
		return nil
	},
}

// Scenarios returns the available demo scenarios.
func Scenarios() []ScenarioDTO {
	out := make([]ScenarioDTO, len(scenarios))
	copy(out, scenarios)
	return out
}

// SeedScenario writes scenario id's data through l as actor. It does not
// reset anything first.
func SeedScenario(ctx context.Context, l *ledger.Ledger, actor ledger.Actor, id string) error {
	seed, ok := scenarioLoaders[id]
	if !ok {
		return &ledger.NotFoundError{Entity: "scenario", ID: id}
	}
	if err := seed(ctx, l, actor); err != nil {
		return fmt.Errorf("seed scenario %s: %w", id, err)
	}
	return nil
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and seeds a scenario for the caller's tenant.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "name")
	if _, ok := scenarioLoaders[id]; !ok {
		writeLedgerError(w, r, &ledger.NotFoundError{Entity: "scenario", ID: id})
		return
	}
	if h.Store == nil {
		writeError(w, http.StatusNotImplemented, "store does not support reset", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeLedgerError(w, r, fmt.Errorf("reset store: %w", err))
		return
	}
	h.currentScenario = ""

	if err := SeedScenario(ctx, h.Ledger, actorFrom(r), id); err != nil {
		writeLedgerError(w, r, err)
		return
	}
	h.currentScenario = id

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": id})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

const demoProject ledger.ProjectID = "riverside-homes"

func dp(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func item(desc, qty, unit, price string) ledger.LineItemInput {
	return ledger.LineItemInput{Description: desc, Quantity: dp(qty), Unit: unit, UnitPrice: dp(price)}
}

func seedResidentialBuild(ctx context.Context, l *ledger.Ledger, actor ledger.Actor) error {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)
	c, err := l.Contracts.CreateContract(ctx, actor, ledger.CreateContractInput{
		ContractNumber:   "RH-2024-001",
		Title:            "Riverside Homes - Block A shell and core",
		Type:             ledger.ContractLumpSum,
		VendorID:         "northgate-builders",
		ProjectID:        demoProject,
		RetentionPercent: dp("5"),
		WarrantyYears:    2,
		StartDate:        &start,
		EndDate:          &end,
		LineItems: []ledger.LineItemInput{
			item("Site preparation and excavation", "1", "lot", "18500"),
			item("Reinforced concrete foundations", "120", "m3", "310.50"),
			item("Blockwork walls", "860", "m2", "42.75"),
			item("Roof structure and covering", "420", "m2", "96"),
		},
	})
	if err != nil {
		return err
	}
	status := ledger.ContractActive
	if _, err := l.Contracts.UpdateContract(ctx, actor, c.ID, ledger.UpdateContractInput{Status: &status}); err != nil {
		return err
	}

	changeOrders := []struct {
		in      ledger.CreateChangeOrderInput
		resolve func(ledger.ChangeOrderID) error
	}{
		{
			in: ledger.CreateChangeOrderInput{
				Title:     "Additional rock excavation",
				Reason:    "Unforeseen ground conditions",
				LineItems: []ledger.LineItemInput{item("Rock breaking and removal", "45", "m3", "120")},
			},
			resolve: func(id ledger.ChangeOrderID) error {
				if _, err := l.ChangeOrders.Submit(ctx, actor, id); err != nil {
					return err
				}
				_, err := l.ChangeOrders.Approve(ctx, actor, id, "Confirmed by geotechnical report")
				return err
			},
		},
		{
			in: ledger.CreateChangeOrderInput{
				Title:  "Upgrade to insulated roof panels",
				Reason: "Client request",
				LineItems: []ledger.LineItemInput{
					item("Insulated roof panel premium", "420", "m2", "12.50"),
					item("Ridge flashing upgrade", "36", "m", "22"),
				},
			},
			resolve: func(id ledger.ChangeOrderID) error {
				_, err := l.ChangeOrders.Submit(ctx, actor, id)
				return err
			},
		},
		{
			in: ledger.CreateChangeOrderInput{
				Title:     "Decorative facade lighting",
				Reason:    "Architect proposal",
				LineItems: []ledger.LineItemInput{item("LED facade fittings", "24", "ea", "340")},
			},
			resolve: func(id ledger.ChangeOrderID) error {
				if _, err := l.ChangeOrders.Submit(ctx, actor, id); err != nil {
					return err
				}
				_, err := l.ChangeOrders.Reject(ctx, actor, id, "Outside budget for phase one")
				return err
			},
		},
		{
			in: ledger.CreateChangeOrderInput{
				Title:     "Extra drainage channel",
				LineItems: []ledger.LineItemInput{item("Slot drain", "30", "m", "85")},
			},
		},
	}
	for _, step := range changeOrders {
		co, err := l.ChangeOrders.Create(ctx, actor, c.ID, step.in)
		if err != nil {
			return err
		}
		if step.resolve != nil {
			if err := step.resolve(co.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func seedProcurement(ctx context.Context, l *ledger.Ledger, actor ledger.Actor) error {
	lead := func(days int) *int { return &days }
	quotes := []struct {
		vendor ledger.VendorID
		price  string
		lead   int
	}{
		{"steelco", "1.18", 5},
		{"metro-supply", "1.05", 12},
		{"buildmart", "1.24", 2},
	}
	for _, q := range quotes {
		if _, err := l.Prices.SetPrice(ctx, actor, "rebar-12mm", q.vendor, ledger.SetPriceInput{
			UnitPrice:    dp(q.price),
			LeadTimeDays: lead(q.lead),
		}); err != nil {
			return err
		}
	}
	if _, err := l.Prices.SetPreferred(ctx, actor, "rebar-12mm", "steelco"); err != nil {
		return err
	}

	po, err := l.PurchaseOrders.Create(ctx, actor, ledger.CreatePurchaseOrderInput{
		PONumber:  "PO-2024-0042",
		VendorID:  "steelco",
		ProjectID: demoProject,
		Lines: []ledger.PurchaseOrderLineInput{
			{ItemID: "rebar-12mm", Description: "Rebar 12mm", Unit: "kg", Quantity: dp("2400"), UnitPrice: dp("1.15")},
			{ItemID: "tie-wire", Description: "Tie wire 1.6mm", Unit: "roll", Quantity: dp("40"), UnitPrice: dp("6.80")},
		},
	})
	if err != nil {
		return err
	}
	if _, err := l.PurchaseOrders.Send(ctx, actor, po.ID); err != nil {
		return err
	}
	_, err = l.PurchaseOrders.RecordReceipt(ctx, actor, po.ID, ledger.RecordReceiptInput{
		Lines: []ledger.ReceiptLine{
			{LineID: po.Lines[0].ID, Quantity: dp("1600")},
			{LineID: po.Lines[1].ID, Quantity: dp("40")},
		},
	})
	return err
}

func seedSiteInventory(ctx context.Context, l *ledger.Ledger, actor ledger.Actor) error {
	day := func(d int) *time.Time {
		t := time.Date(2024, 4, d, 8, 0, 0, 0, time.UTC)
		return &t
	}
	if _, err := l.Inventory.CreateEntry(ctx, actor, ledger.CreateEntryInput{
		ItemID: "cement-50kg", ProjectID: demoProject, MinStockLevel: dp("40"),
	}); err != nil {
		return err
	}
	if _, err := l.Inventory.CreateEntry(ctx, actor, ledger.CreateEntryInput{
		ItemID: "sharp-sand", ProjectID: demoProject, MinStockLevel: dp("5"),
	}); err != nil {
		return err
	}

	purchases := []ledger.RecordPurchaseInput{
		{ItemID: "cement-50kg", Quantity: dp("120"), UnitCost: dp("7.40"), VendorID: "buildmart", PurchasedAt: day(2)},
		{ItemID: "sharp-sand", Quantity: dp("18"), UnitCost: dp("42"), VendorID: "metro-supply", PurchasedAt: day(2)},
		{ItemID: "cement-50kg", Quantity: dp("60"), UnitCost: dp("7.10"), VendorID: "metro-supply", PurchasedAt: day(9)},
	}
	for _, in := range purchases {
		in.ProjectID = demoProject
		if _, err := l.Inventory.RecordPurchase(ctx, actor, in); err != nil {
			return err
		}
	}

	usages := []ledger.RecordUsageInput{
		{ItemID: "cement-50kg", Quantity: dp("85"), UsedAt: day(5), Notes: "Foundation pour, grid A-C"},
		{ItemID: "sharp-sand", Quantity: dp("6.5"), UsedAt: day(6)},
		{ItemID: "cement-50kg", Quantity: dp("62"), UsedAt: day(12), Notes: "Ground floor slab"},
	}
	for _, in := range usages {
		in.ProjectID = demoProject
		if _, err := l.Inventory.RecordUsage(ctx, actor, in); err != nil {
			return err
		}
	}
	return nil
}
