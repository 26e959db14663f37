/*
Package postgres provides a PostgreSQL-backed implementation of ledger.TxStore.

PURPOSE:
  Multi-writer persistence for production deployments. Table layout
  matches store/sqlite; money and quantities are native NUMERIC.

CONCURRENCY:
  Transactions run at READ COMMITTED. The ...ForUpdate reads take
  SELECT ... FOR UPDATE row locks on the parent document, so writers on
  the same contract, change order, purchase order or inventory entry
  queue behind each other until commit. Serialization failures and
  deadlocks surface as ledger.ErrConcurrentModification.

CONSTRAINTS:
  po_lines_received_within_ordered  received_quantity within [0, quantity]
  idx_price_preferred               one preferred vendor per item
  inventory_transactions trigger    the stock log is append-only

USAGE:
  pool, err := postgres.NewPool(ctx, postgres.PoolConfig{URL: url})
  st, err := postgres.New(ctx, pool)
  l := ledger.New(st, ledger.Options{})
*/
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/crudexec/construction-sub006/ledger"
)

//go:embed schema.sql
var schema string

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queries implements ledger.Store over a querier.
type queries struct {
	q querier
	// lock is appended to the ...ForUpdate reads. Empty outside a
	// transaction, where a row lock would be released immediately.
	lock string
}

// Store implements ledger.TxStore using a pgx pool.
type Store struct {
	*queries
	pool *pgxpool.Pool
}

var _ ledger.TxStore = (*Store)(nil)

// New wraps pool and applies the schema.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{queries: &queries{q: pool}, pool: pool}
	if err := s.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Migrate applies the embedded schema. Exec without arguments uses the
// simple protocol, which accepts several statements at once.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Reset drops every ledger table and re-applies the schema.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DROP TABLE IF EXISTS
		inventory_transactions, inventory_entries, price_comparisons,
		purchase_order_lines, purchase_orders, line_items, change_orders, contracts
		CASCADE`)
	if err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	return s.Migrate(ctx)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn in one transaction with a Store bound to it.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapErr(fmt.Errorf("failed to begin transaction: %w", err), "transaction", "")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&queries{q: tx, lock: " FOR UPDATE"}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapErr(fmt.Errorf("failed to commit transaction: %w", err), "transaction", "")
	}
	return nil
}

// CreatePurchaseOrder writes header and lines atomically when called
// outside WithTx.
func (s *Store) CreatePurchaseOrder(ctx context.Context, po *ledger.PurchaseOrder) error {
	return s.WithTx(ctx, func(tx ledger.Store) error { return tx.CreatePurchaseOrder(ctx, po) })
}

// =============================================================================
// HELPERS
// =============================================================================

func decPtr(nd decimal.NullDecimal) *decimal.Decimal {
	if !nd.Valid {
		return nil
	}
	d := nd.Decimal
	return &d
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// placeholders assigns $n positions to a growing argument list.
type placeholders struct {
	args []any
}

func (p *placeholders) add(v any) string {
	p.args = append(p.args, v)
	return fmt.Sprintf("$%d", len(p.args))
}

// Postgres SQLSTATE codes the store distinguishes.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeNotNullViolation     = "23502"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

const overReceiptConstraint = "po_lines_received_within_ordered"

// mapErr translates driver errors into the ledger's error vocabulary.
func mapErr(err error, entity, key string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &ledger.NotFoundError{Entity: entity, ID: key}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return &ledger.ConflictError{Entity: entity, Key: key}
		case codeForeignKeyViolation:
			return fmt.Errorf("%w: %s %s references a missing row", ledger.ErrInvalidReference, entity, key)
		case codeCheckViolation:
			if pgErr.ConstraintName == overReceiptConstraint {
				return fmt.Errorf("%w: line %s", ledger.ErrOverReceipt, key)
			}
			return fmt.Errorf("%w: %s violates %s", ledger.ErrInvalidInput, entity, pgErr.ConstraintName)
		case codeNotNullViolation:
			return fmt.Errorf("%w: %s.%s is required", ledger.ErrInvalidInput, entity, pgErr.ColumnName)
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %s", ledger.ErrConcurrentModification, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", entity, err)
}

// mustAffect turns a zero-row UPDATE or DELETE into a NotFoundError.
func mustAffect(tag pgconn.CommandTag, err error, entity, key string) error {
	if err != nil {
		return mapErr(err, entity, key)
	}
	if tag.RowsAffected() == 0 {
		return &ledger.NotFoundError{Entity: entity, ID: key}
	}
	return nil
}

// valuesList returns "$1, $2, ..., $n".
func valuesList(n int) string {
	b := make([]byte, 0, n*4)
	for i := 1; i <= n; i++ {
		if i > 1 {
			b = append(b, ", "...)
		}
		b = append(b, fmt.Sprintf("$%d", i)...)
	}
	return string(b)
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// collect scans every row with scan and closes rows.
func collect[T any](rows pgx.Rows, scan func(rowScanner) (*T, error)) ([]T, error) {
	defer rows.Close()
	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}
