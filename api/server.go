/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:    Unique ID per request for tracing
  2. RealIP:       Client address behind proxies
  3. accessLog:    zerolog request logging (middleware.go)
  4. Recoverer:    Panic recovery (500 instead of crash)
  5. CORS:         Cross-origin requests for a frontend
  6. requireActor: Tenant and user from headers (/api only)

ROUTE GROUPS:
  /healthz              Liveness and store ping
  /api/contracts/*      Contracts, line items, change orders
  /api/change-orders/*  Change order workflow
  /api/purchase-orders/* Purchasing and receiving
  /api/items/*          Vendor price comparison
  /api/inventory/*      Site inventory
  /api/admin/*          Drift audit
  /api/scenarios/*      Demo data (dev only)

SECURITY NOTE:
  Authentication is expected in front of this service. The actor headers
  are trusted as given.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/crudexec/construction-sub006/ledger"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Logger      zerolog.Logger
	CORSOrigins []string
	// Ping reports store health for /healthz. Nil means always healthy.
	Ping func(ctx context.Context) error
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(opts.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", HeaderTenantID, HeaderUserID, HeaderUserRole},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Ping != nil {
			if err := opts.Ping(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "store unavailable", err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(requireActor)

		// Contract routes
		r.Route("/contracts", func(r chi.Router) {
			r.Get("/", h.ListContracts)
			r.Post("/", h.CreateContract)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetContract)
				r.Patch("/", h.UpdateContract)
				r.Delete("/", h.DeleteContract)
				r.Get("/summary", h.ContractSummary)
				r.Post("/recalculate", h.RecalculateContract)
				r.Route("/line-items", h.lineItemRoutes(func(r *http.Request) ledger.ParentRef {
					return ledger.ContractParent(contractID(r))
				}))
				r.Get("/change-orders", h.ListChangeOrders)
				r.Post("/change-orders", h.CreateChangeOrder)
			})
		})

		// Change order routes
		r.Route("/change-orders/{id}", func(r chi.Router) {
			r.Get("/", h.GetChangeOrder)
			r.Patch("/", h.UpdateChangeOrder)
			r.Delete("/", h.DeleteChangeOrder)
			r.Post("/submit", h.SubmitChangeOrder)
			r.Post("/approve", h.ApproveChangeOrder)
			r.Post("/reject", h.RejectChangeOrder)
			r.Route("/line-items", h.lineItemRoutes(func(r *http.Request) ledger.ParentRef {
				return ledger.ChangeOrderParent(changeOrderID(r))
			}))
		})

		// Purchase order routes
		r.Route("/purchase-orders", func(r chi.Router) {
			r.Post("/", h.CreatePurchaseOrder)
			r.Get("/{id}", h.GetPurchaseOrder)
			r.Post("/{id}/send", h.SendPurchaseOrder)
			r.Post("/{id}/cancel", h.CancelPurchaseOrder)
			r.Post("/{id}/receipts", h.RecordReceipt)
		})

		// Price comparison routes
		r.Route("/items/{itemID}", func(r chi.Router) {
			r.Get("/prices", h.ListPrices)
			r.Put("/prices/{vendorID}", h.SetPrice)
			r.Delete("/prices/{vendorID}", h.DeletePrice)
			r.Post("/prices/{vendorID}/preferred", h.SetPreferred)
			r.Delete("/preferred", h.ClearPreferred)
		})

		// Inventory routes
		r.Route("/inventory", func(r chi.Router) {
			r.Get("/", h.ListInventory)
			r.Post("/", h.CreateInventoryEntry)
			r.Get("/low-stock", h.ListLowStock)
			r.Post("/purchases", h.RecordPurchase)
			r.Post("/usages", h.RecordUsage)
			r.Get("/{id}", h.GetInventoryEntry)
			r.Put("/{id}/min-stock", h.SetMinStockLevel)
			r.Get("/{id}/history", h.InventoryHistory)
			r.Get("/{id}/verify", h.VerifyInventoryEntry)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/audit", h.LastAudit)
			r.Post("/audit", h.RunAudit)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/{name}", h.LoadScenario)
		})
	})

	return r
}
