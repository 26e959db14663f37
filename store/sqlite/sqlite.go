/*
Package sqlite provides a SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Single-file persistence for development, demos and small deployments.
  The same tables exist in store/postgres with native NUMERIC columns.

KEY TABLES:
  contracts, change_orders, line_items:  contract documents
  purchase_orders, purchase_order_lines: receiving
  price_comparisons:                     vendor price stats
  inventory_entries:                     per (item, project) accumulators
  inventory_transactions:                append-only stock log

DECIMALS:
  Stored as TEXT and scanned back into decimal.Decimal. Arithmetic on
  accumulators happens in Go inside the transaction, never in SQL.

CONCURRENCY:
  The pool is capped at one connection and transactions begin IMMEDIATE,
  so there is exactly one writer at a time. A Store bound to a transaction
  runs every read through that transaction; reads through the parent
  would wait on the connection the transaction holds.

USAGE:
  st, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

  l := ledger.New(st, ledger.Options{})

MIGRATION:
  schema.sql is embedded and applied on New. Every statement is
  idempotent (IF NOT EXISTS).
*/
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/crudexec/construction-sub006/ledger"
)

//go:embed schema.sql
var schema string

// querier is the part of *sql.DB and *sql.Tx the queries need.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements ledger.Store over a querier.
type queries struct {
	q querier
}

// Store implements ledger.TxStore using SQLite.
type Store struct {
	*queries
	db *sql.DB
}

var _ ledger.TxStore = (*Store)(nil)

// New opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func New(path string) (*Store, error) {
	dsn := path + "?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
	if path != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{queries: &queries{q: db}, db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Migrate applies the embedded schema.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Reset drops every table and re-applies the schema. Used to reload
// demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{
		"inventory_transactions",
		"inventory_entries",
		"price_comparisons",
		"purchase_order_lines",
		"purchase_orders",
		"line_items",
		"change_orders",
		"contracts",
	}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+t); err != nil {
			return fmt.Errorf("failed to drop %s: %w", t, err)
		}
	}
	return s.Migrate(ctx)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn inside one database transaction. fn receives a Store
// bound to the transaction; returning an error rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(fmt.Errorf("failed to begin transaction: %w", err), "transaction", "")
	}
	defer tx.Rollback()

	if err := fn(&queries{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapErr(fmt.Errorf("failed to commit transaction: %w", err), "transaction", "")
	}
	return nil
}

// The multi-statement writes below get their own transaction when called
// on the Store directly.

func (s *Store) CreatePurchaseOrder(ctx context.Context, po *ledger.PurchaseOrder) error {
	return s.WithTx(ctx, func(tx ledger.Store) error { return tx.CreatePurchaseOrder(ctx, po) })
}

func (s *Store) UpdatePurchaseOrderLine(ctx context.Context, line *ledger.PurchaseOrderLine) error {
	return s.WithTx(ctx, func(tx ledger.Store) error { return tx.UpdatePurchaseOrderLine(ctx, line) })
}

func (s *Store) AccumulatePurchase(ctx context.Context, acc ledger.PurchaseAccumulation) (*ledger.PriceComparison, error) {
	var out *ledger.PriceComparison
	err := s.WithTx(ctx, func(tx ledger.Store) error {
		var err error
		out, err = tx.AccumulatePurchase(ctx, acc)
		return err
	})
	return out, err
}

// =============================================================================
// HELPERS
// =============================================================================

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func ts(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return ts(*t)
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTS(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTS(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullDec(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func decPtr(nd decimal.NullDecimal) *decimal.Decimal {
	if !nd.Valid {
		return nil
	}
	d := nd.Decimal
	return &d
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const overReceiptConstraint = "po_lines_received_within_ordered"

// mapErr translates driver errors into the ledger's error vocabulary.
func mapErr(err error, entity, key string) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return &ledger.ConflictError{Entity: entity, Key: key}
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %s %s references a missing row", ledger.ErrInvalidReference, entity, key)
		case sqlite3.ErrConstraintCheck, sqlite3.ErrConstraintNotNull:
			if strings.Contains(se.Error(), overReceiptConstraint) {
				return fmt.Errorf("%w: line %s", ledger.ErrOverReceipt, key)
			}
			return fmt.Errorf("%w: %v", ledger.ErrInvalidInput, err)
		}
		if se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked {
			return fmt.Errorf("%w: %v", ledger.ErrConcurrentModification, err)
		}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &ledger.NotFoundError{Entity: entity, ID: key}
	}
	return fmt.Errorf("%s: %w", entity, err)
}

// mustAffect turns a zero-row UPDATE or DELETE into a NotFoundError.
func mustAffect(res sql.Result, err error, entity, key string) error {
	if err != nil {
		return mapErr(err, entity, key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(err, entity, key)
	}
	if n == 0 {
		return &ledger.NotFoundError{Entity: entity, ID: key}
	}
	return nil
}
