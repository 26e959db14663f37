/*
scenarios_test.go - Tests for demo scenarios

Each scenario is loaded through the HTTP endpoint and the seeded data is
checked through the read endpoints.
*/
package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *testServer) loadScenario(id string) {
	s.t.Helper()
	rec := s.call(admin, http.MethodPost, "/api/scenarios/"+id, nil)
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestScenario_ResidentialBuild(t *testing.T) {
	// GIVEN: The residential-build scenario
	s := newTestServer(t)
	s.loadScenario("residential-build")

	// THEN: One active contract with four change orders in distinct states
	rec := s.call(member, http.MethodGet, "/api/contracts?status=ACTIVE", nil)
	contracts := decodeAs[[]ContractDTO](t, rec)
	require.Len(t, contracts, 1)
	assertDecString(t, "132845", *contracts[0].TotalSum)

	rec = s.call(member, http.MethodGet, "/api/contracts/"+contracts[0].ID+"/summary", nil)
	sum := decodeAs[ContractSummaryDTO](t, rec)
	assert.Equal(t, 4, sum.ChangeOrderCount)
	assertDecString(t, "5400", sum.ApprovedChangeOrdersTotal)
	assertDecString(t, "6042", sum.PendingChangeOrdersTotal)
	assertDecString(t, "8160", sum.RejectedChangeOrdersTotal)
	assertDecString(t, "2550", sum.DraftChangeOrdersTotal)
	assertDecString(t, "138245", sum.CurrentContractValue)
	assertDecString(t, "144287", sum.PotentialContractValue)
}

func TestScenario_Procurement(t *testing.T) {
	s := newTestServer(t)
	s.loadScenario("procurement")

	rec := s.call(member, http.MethodGet, "/api/items/rebar-12mm/prices", nil)
	prices := decodeAs[[]PriceDTO](t, rec)
	require.Len(t, prices, 3)
	assert.Equal(t, "metro-supply", prices[0].VendorID)

	var steel PriceDTO
	for _, p := range prices {
		if p.VendorID == "steelco" {
			steel = p
		}
	}
	assert.True(t, steel.IsPreferred)
	assertDecString(t, "1600", steel.TotalPurchasedQty)
	assertDecString(t, "1840", steel.TotalPurchasedValue)
}

func TestScenario_SiteInventory(t *testing.T) {
	s := newTestServer(t)
	s.loadScenario("site-inventory")

	rec := s.call(member, http.MethodGet, "/api/inventory/low-stock?project_id=riverside-homes", nil)
	low := decodeAs[[]InventoryEntryDTO](t, rec)
	require.Len(t, low, 1)
	assert.Equal(t, "cement-50kg", low[0].ItemID)
	assertDecString(t, "33", low[0].QuantityRemaining)

	rec = s.call(member, http.MethodGet, "/api/inventory/"+low[0].ID+"/history", nil)
	rows := decodeAs[[]BalanceRowDTO](t, rec)
	require.Len(t, rows, 4)
	assertDecString(t, "33", rows[0].BalanceAfter)
	assertDecString(t, "0", rows[3].BalanceBefore)
}

func TestScenario_ReloadResetsAndTracksCurrent(t *testing.T) {
	s := newTestServer(t)

	rec := s.call(member, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null\n", rec.Body.String())

	s.loadScenario("full-project")
	s.loadScenario("full-project")

	rec = s.call(member, http.MethodGet, "/api/contracts", nil)
	assert.Len(t, decodeAs[[]ContractDTO](t, rec), 1)

	rec = s.call(member, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "full-project", decodeAs[ScenarioDTO](t, rec).ID)

	rec = s.call(admin, http.MethodPost, "/api/scenarios/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.call(member, http.MethodGet, "/api/scenarios", nil)
	assert.Len(t, decodeAs[[]ScenarioDTO](t, rec), len(Scenarios()))
}

func TestScenario_AllScenariosAuditClean(t *testing.T) {
	for _, sc := range Scenarios() {
		t.Run(sc.ID, func(t *testing.T) {
			s := newTestServer(t)
			s.loadScenario(sc.ID)

			rep, err := s.ledger.Audit.Run(context.Background(), false)
			require.NoError(t, err)
			assert.True(t, rep.Clean())
		})
	}
}

// =============================================================================
// SCHEDULER
// =============================================================================

func TestAuditScheduler_RunsAndStops(t *testing.T) {
	s := newTestServer(t)
	s.loadScenario("residential-build")

	sched := NewAuditScheduler(s.ledger.Audit, 10*time.Millisecond, false, zerolog.Nop())
	sched.Start()
	require.Eventually(t, func() bool { return sched.LastReport() != nil }, time.Second, 5*time.Millisecond)
	sched.Stop()
	sched.Stop()

	rep := sched.LastReport()
	assert.True(t, rep.Clean())
	assert.Equal(t, 1, rep.ContractsChecked)
	assert.Equal(t, 4, rep.ChangeOrders)
}

func TestAuditScheduler_DisabledInterval(t *testing.T) {
	s := newTestServer(t)
	sched := NewAuditScheduler(s.ledger.Audit, 0, false, zerolog.Nop())
	sched.Start()
	sched.Stop()
	assert.Nil(t, sched.LastReport())
}
