package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crudexec/construction-sub006/ledger"
)

func TestValidate_NestedFieldPaths(t *testing.T) {
	err := ledger.Validate(ledger.RecordReceiptInput{Lines: []ledger.ReceiptLine{
		{LineID: "a", Quantity: decp("1")},
		{LineID: "b"},
	}})

	var ve *ledger.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "is required", ve.FieldMap()["lines[1].receivedQuantity"])
}

func TestValidate_EmptyBatch(t *testing.T) {
	err := ledger.Validate(ledger.RecordReceiptInput{})
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, ledger.Validate(lineItem("a", "0", "0")))
}

func TestRetryOnConflict(t *testing.T) {
	ctx := context.Background()
	calls := 0
	err := ledger.RetryOnConflict(ctx, 3, func(context.Context) error {
		calls++
		if calls < 3 {
			return ledger.ErrConcurrentModification
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	boom := errors.New("boom")
	err = ledger.RetryOnConflict(ctx, 5, func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, ledger.IsClientError(&ledger.OverReceiptError{}))
	assert.True(t, ledger.IsNotFound(&ledger.NotFoundError{Entity: "contract", ID: "x"}))
	assert.False(t, ledger.IsClientError(errors.New("disk full")))
	assert.True(t, ledger.IsRetryable(ledger.ErrConcurrentModification))
}
