package ledger_test

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/crudexec/construction-sub006/ledger"
	"github.com/crudexec/construction-sub006/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var (
	admin    = ledger.Actor{TenantID: "tenant-1", UserID: "user-admin", Role: ledger.RoleAdmin}
	pm       = ledger.Actor{TenantID: "tenant-1", UserID: "user-pm", Role: ledger.RoleMember}
	outsider = ledger.Actor{TenantID: "tenant-2", UserID: "user-x", Role: ledger.RoleAdmin}
)

// stepClock advances one second per reading so timestamps are ordered.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestLedger(t *testing.T) (*ledger.Ledger, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	clock := &stepClock{t: time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)}
	return ledger.New(st, ledger.Options{Now: clock.Now, IDs: &ledger.SequenceIDs{Prefix: "id"}}), st
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decp(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func lineItem(desc, qty, price string) ledger.LineItemInput {
	return ledger.LineItemInput{Description: desc, Quantity: decp(qty), Unit: "ea", UnitPrice: decp(price)}
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}
