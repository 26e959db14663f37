package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crudexec/construction-sub006/ledger"
	"github.com/crudexec/construction-sub006/ledger/store"
)

func TestAuditor_CleanLedger(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Contracts.CreateContract(ctx, pm, ledger.CreateContractInput{
		ContractNumber: "C-1", Type: ledger.ContractLumpSum, VendorID: "v",
		LineItems: []ledger.LineItemInput{lineItem("slab", "2", "50")},
	})
	require.NoError(t, err)
	_, err = l.Contracts.CreateContract(ctx, pm, ledger.CreateContractInput{
		ContractNumber: "C-2", Type: ledger.ContractLumpSum, VendorID: "v",
	})
	require.NoError(t, err)

	rep, err := l.Audit.Run(ctx, false)
	require.NoError(t, err)
	assert.True(t, rep.Clean())
	assert.Equal(t, 2, rep.ContractsChecked)
}

func TestAuditor_DetectsAndRepairsDrift(t *testing.T) {
	// GIVEN: A contract and an inventory entry whose stored totals were
	// overwritten behind the ledger's back
	l, st := newTestLedger(t)
	ctx := context.Background()

	c, err := l.Contracts.CreateContract(ctx, pm, ledger.CreateContractInput{
		ContractNumber: "C-1", Type: ledger.ContractLumpSum, VendorID: "v",
		LineItems: []ledger.LineItemInput{lineItem("slab", "2", "50"), lineItem("rebar", "10", "3")},
	})
	require.NoError(t, err)
	co, err := l.ChangeOrders.Create(ctx, pm, c.ID, ledger.CreateChangeOrderInput{
		Title: "extra", LineItems: []ledger.LineItemInput{lineItem("door", "1", "400")},
	})
	require.NoError(t, err)
	mv, err := l.Inventory.RecordPurchase(ctx, pm, ledger.RecordPurchaseInput{
		ItemID: "cement", ProjectID: "p-1", Quantity: decp("20"), UnitCost: decp("7"),
	})
	require.NoError(t, err)

	c.TotalSum = decp("1")
	require.NoError(t, st.UpdateContract(ctx, c))
	co.TotalAmount = dec("0")
	require.NoError(t, st.UpdateChangeOrder(ctx, co))
	e := *mv.Entry
	e.PurchasedQty = dec("5")
	require.NoError(t, st.UpdateInventoryEntry(ctx, &e))

	// WHEN: Auditing without repair
	rep, err := l.Audit.Run(ctx, false)
	require.NoError(t, err)

	// THEN: Every drift is reported and nothing changes
	require.Len(t, rep.Aggregates, 2)
	assert.Equal(t, ledger.ParentContract, rep.Aggregates[0].Kind)
	assertDec(t, "130", rep.Aggregates[0].Computed)
	assertDec(t, "1", *rep.Aggregates[0].Stored)
	assert.False(t, rep.Aggregates[0].Repaired)
	assert.Equal(t, ledger.ParentChangeOrder, rep.Aggregates[1].Kind)
	assertDec(t, "400", rep.Aggregates[1].Computed)
	require.Len(t, rep.Inventory, 1)
	assertDec(t, "20", rep.Inventory[0].ReplayedPurchased)
	assertDec(t, "5", rep.Inventory[0].StoredPurchased)

	got, err := l.Contracts.GetContract(ctx, pm, c.ID)
	require.NoError(t, err)
	assertDec(t, "1", *got.TotalSum)

	// WHEN: Auditing with repair
	rep, err = l.Audit.Run(ctx, true)
	require.NoError(t, err)
	assert.True(t, rep.Aggregates[0].Repaired)
	assert.True(t, rep.Aggregates[1].Repaired)
	assert.True(t, rep.Inventory[0].Repaired)

	// THEN: Stored values match their children and a second pass is clean
	got, err = l.Contracts.GetContract(ctx, pm, c.ID)
	require.NoError(t, err)
	assertDec(t, "130", *got.TotalSum)
	v, err := l.Inventory.VerifyEntry(ctx, pm, mv.Entry.ID)
	require.NoError(t, err)
	assert.True(t, v.Consistent)

	rep, err = l.Audit.Run(ctx, false)
	require.NoError(t, err)
	assert.True(t, rep.Clean())
}

// settlingStore runs a hook inside the transaction just before a row is
// locked, standing in for a writer that commits between the unlocked scan
// and the repair.
type settlingStore struct {
	*store.Memory
	once   sync.Once
	settle func(ctx context.Context, tx ledger.Store)
}

func (s *settlingStore) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return s.Memory.WithTx(ctx, func(tx ledger.Store) error {
		return fn(&settlingTx{Store: tx, parent: s})
	})
}

type settlingTx struct {
	ledger.Store
	parent *settlingStore
}

func (t *settlingTx) run(ctx context.Context) {
	if t.parent.settle == nil {
		return
	}
	t.parent.once.Do(func() { t.parent.settle(ctx, t.Store) })
}

func (t *settlingTx) GetContractForUpdate(ctx context.Context, id ledger.ContractID) (*ledger.Contract, error) {
	t.run(ctx)
	return t.Store.GetContractForUpdate(ctx, id)
}

func (t *settlingTx) GetInventoryEntryForUpdate(ctx context.Context, id ledger.EntryID) (*ledger.InventoryEntry, error) {
	t.run(ctx)
	return t.Store.GetInventoryEntryForUpdate(ctx, id)
}

func TestAuditor_Repair_SkipsDriftSettledBeforeLock(t *testing.T) {
	// GIVEN: A drifted contract and a drifted entry, each corrected by
	// another writer after the audit scan but before the repair locks it
	ctx := context.Background()
	for _, tc := range []struct {
		name  string
		drift func(t *testing.T, l *ledger.Ledger, st *store.Memory) func(context.Context, ledger.Store)
	}{
		{
			name: "contract",
			drift: func(t *testing.T, l *ledger.Ledger, st *store.Memory) func(context.Context, ledger.Store) {
				c, err := l.Contracts.CreateContract(ctx, pm, ledger.CreateContractInput{
					ContractNumber: "C-1", Type: ledger.ContractLumpSum, VendorID: "v",
					LineItems: []ledger.LineItemInput{lineItem("slab", "2", "50")},
				})
				require.NoError(t, err)
				c.TotalSum = decp("1")
				require.NoError(t, st.UpdateContract(ctx, c))
				return func(ctx context.Context, tx ledger.Store) {
					fixed := *c
					fixed.TotalSum = decp("100")
					require.NoError(t, tx.UpdateContract(ctx, &fixed))
				}
			},
		},
		{
			name: "inventory entry",
			drift: func(t *testing.T, l *ledger.Ledger, st *store.Memory) func(context.Context, ledger.Store) {
				mv, err := l.Inventory.RecordPurchase(ctx, pm, ledger.RecordPurchaseInput{
					ItemID: "cement", ProjectID: "p-1", Quantity: decp("20"), UnitCost: decp("7"),
				})
				require.NoError(t, err)
				e := *mv.Entry
				e.PurchasedQty = dec("5")
				require.NoError(t, st.UpdateInventoryEntry(ctx, &e))
				return func(ctx context.Context, tx ledger.Store) {
					fixed := e
					fixed.PurchasedQty = dec("20")
					require.NoError(t, tx.UpdateInventoryEntry(ctx, &fixed))
				}
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			mem := store.NewMemory()
			wrapped := &settlingStore{Memory: mem}
			clock := &stepClock{t: time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)}
			l := ledger.New(wrapped, ledger.Options{Now: clock.Now, IDs: &ledger.SequenceIDs{Prefix: "id"}})
			settle := tc.drift(t, l, mem)

			// The scan sees the drift before any hook is armed.
			rep, err := l.Audit.Run(ctx, false)
			require.NoError(t, err)
			require.False(t, rep.Clean())

			// WHEN: Auditing with repair
			wrapped.settle = settle
			rep, err = l.Audit.Run(ctx, true)
			require.NoError(t, err)

			// THEN: Nothing is reported or marked repaired and the state is clean
			assert.Empty(t, rep.Aggregates)
			assert.Empty(t, rep.Inventory)
			assert.True(t, rep.Clean())

			rep, err = l.Audit.Run(ctx, false)
			require.NoError(t, err)
			assert.True(t, rep.Clean())
		})
	}
}
