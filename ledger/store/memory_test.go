package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crudexec/construction-sub006/ledger"
	"github.com/crudexec/construction-sub006/ledger/store"
	"github.com/crudexec/construction-sub006/ledger/storetest"
)

func TestMemory_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ledger.TxStore { return store.NewMemory() })
}

func TestMemory_WithTx_CancelledContext(t *testing.T) {
	m := store.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := m.WithTx(ctx, func(ledger.Store) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestMemory_Reset(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	l := ledger.New(m, ledger.Options{})
	actor := ledger.Actor{TenantID: "t", UserID: "u"}
	_, err := l.Contracts.CreateContract(ctx, actor, ledger.CreateContractInput{
		ContractNumber: "C-1", Type: ledger.ContractLumpSum, VendorID: "v",
	})
	assert.NoError(t, err)

	assert.NoError(t, m.Reset(ctx))

	list, err := m.ListContracts(ctx, ledger.ContractFilter{})
	assert.NoError(t, err)
	assert.Empty(t, list)
}
