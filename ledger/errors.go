/*
errors.go - Error taxonomy for the ledger

PURPOSE:
  All error types in one place. Callers branch with errors.Is on the
  sentinels; the structured errors carry enough context (which line,
  which limit, which state) for a user to correct the input.

ERROR CATEGORIES:
  1. Lookup errors - NotFound, InvalidReference
  2. Input errors - InvalidInput (field-level ValidationError)
  3. Workflow errors - InvalidState, InvalidTransition, OverReceipt, InsufficientStock
  4. Store errors - Conflict, ConcurrentModification

USAGE:
  if errors.Is(err, ledger.ErrOverReceipt) {
      var ore *ledger.OverReceiptError
      errors.As(err, &ore)
  }

SEE ALSO:
  - validate.go: builds ValidationError
  - api/errors.go: maps the taxonomy to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced entity is absent or belongs
	// to another tenant.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned for missing required fields or out-of-range values.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidState is returned when a mutation targets a frozen document.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidTransition is returned when a workflow step is not allowed
	// from the current status.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrOverReceipt is returned when a receipt would exceed the ordered quantity.
	ErrOverReceipt = errors.New("over receipt")

	// ErrInvalidReference is returned when a batch names lines outside its document.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrConflict is returned for duplicate unique keys.
	ErrConflict = errors.New("conflict")

	// ErrForbidden is returned when the actor's role does not permit the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrConcurrentModification is returned when the store aborts a transaction
	// because of a concurrent writer. Safe to retry.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInsufficientStock is returned when usage exceeds the remaining quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// StateError reports an operation rejected because of the document status.
type StateError struct {
	Entity    string
	ID        string
	Status    string
	Operation string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s %s %q in status %s", e.Operation, e.Entity, e.ID, e.Status)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

// TransitionError reports a workflow transition not allowed from the current status.
type TransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %q cannot move from %s to %s", e.Entity, e.ID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// OverReceiptLine describes one line of a rejected receipt batch.
type OverReceiptLine struct {
	LineID    POLineID
	Ordered   decimal.Decimal
	Received  decimal.Decimal
	Requested decimal.Decimal
}

// Excess is how much the request overshoots the ordered quantity.
func (l OverReceiptLine) Excess() decimal.Decimal {
	return l.Received.Add(l.Requested).Sub(l.Ordered)
}

// OverReceiptError lists every line of the batch that would be over-received.
type OverReceiptError struct {
	PurchaseOrderID PurchaseOrderID
	Lines           []OverReceiptLine
}

func (e *OverReceiptError) Error() string {
	parts := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		parts = append(parts, fmt.Sprintf("line %s: ordered %s, received %s, requested %s",
			l.LineID, l.Ordered, l.Received, l.Requested))
	}
	return fmt.Sprintf("over receipt on purchase order %q: %s", e.PurchaseOrderID, strings.Join(parts, "; "))
}

func (e *OverReceiptError) Unwrap() error { return ErrOverReceipt }

// ReferenceError lists line ids that do not belong to the purchase order.
type ReferenceError struct {
	PurchaseOrderID PurchaseOrderID
	LineIDs         []POLineID
}

func (e *ReferenceError) Error() string {
	ids := make([]string, len(e.LineIDs))
	for i, id := range e.LineIDs {
		ids[i] = string(id)
	}
	return fmt.Sprintf("lines [%s] do not belong to purchase order %q", strings.Join(ids, ", "), e.PurchaseOrderID)
}

func (e *ReferenceError) Unwrap() error { return ErrInvalidReference }

// FieldError is one failed field constraint.
type FieldError struct {
	Field   string
	Rule    string
	Param   string
	Message string
}

// ValidationError collects every failed field of an input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// FieldMap flattens the errors to field -> message, first message wins.
func (e *ValidationError) FieldMap() map[string]string {
	m := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		if _, ok := m[f.Field]; !ok {
			m[f.Field] = f.Message
		}
	}
	return m
}

func invalidField(field, rule, msg string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Rule: rule, Message: msg}}}
}

// ConflictError reports a duplicate unique key.
type ConflictError struct {
	Entity string
	Key    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s with key %q already exists", e.Entity, e.Key)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// InsufficientStockError provides details about an inventory shortage.
type InsufficientStockError struct {
	EntryID   EntryID
	Remaining decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock on entry %s: remaining %s, requested %s",
		e.EntryID, e.Remaining, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error was caused by the caller's input
// or the current state of the data rather than a system failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrOverReceipt) ||
		errors.Is(err, ErrInvalidReference) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrInsufficientStock)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
