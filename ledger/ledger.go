package ledger

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// IDGenerator mints identifiers for new rows.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator issues random v4 UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }

// SequenceIDs issues prefix-1, prefix-2, ... for deterministic tests and demos.
type SequenceIDs struct {
	Prefix string
	n      atomic.Int64
}

func (s *SequenceIDs) NewID() string {
	return fmt.Sprintf("%s-%d", s.Prefix, s.n.Add(1))
}

// Options configures the ledger services. Zero values get defaults.
type Options struct {
	Now    func() time.Time
	IDs    IDGenerator
	Logger zerolog.Logger
}

// engine is shared by the services.
type engine struct {
	store TxStore
	now   func() time.Time
	ids   IDGenerator
	log   zerolog.Logger
}

func (e *engine) newID() string { return e.ids.NewID() }

func (e *engine) inTx(ctx context.Context, fn func(Store) error) error {
	return e.store.WithTx(ctx, fn)
}

// Ledger groups the services that share one store.
type Ledger struct {
	Contracts      *ContractLedger
	ChangeOrders   *ChangeOrderWorkflow
	PurchaseOrders *ReceivingEngine
	Prices         *VendorPriceStats
	Inventory      *InventoryLedger
	Audit          *Auditor
}

// New wires every service over store.
func New(store TxStore, opts Options) *Ledger {
	e := &engine{store: store, now: opts.Now, ids: opts.IDs, log: opts.Logger}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	if e.ids == nil {
		e.ids = UUIDGenerator{}
	}
	prices := &VendorPriceStats{engine: e}
	return &Ledger{
		Contracts:      &ContractLedger{engine: e},
		ChangeOrders:   &ChangeOrderWorkflow{engine: e},
		PurchaseOrders: &ReceivingEngine{engine: e, prices: prices},
		Prices:         prices,
		Inventory:      &InventoryLedger{engine: e, prices: prices},
		Audit:          &Auditor{engine: e},
	}
}
