package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crudexec/construction-sub006/ledger"
)

func TestSummarize_CurrentAndPotentialValue(t *testing.T) {
	// GIVEN: original value 10,000, one approved CO of 1,500, one pending of 500
	// THEN: current 11,500, potential 12,000, +15%
	total := dec("10000")
	c := ledger.Contract{ID: "c-1", TotalSum: &total}
	cos := []ledger.ChangeOrder{
		{ID: "co-1", Status: ledger.ChangeOrderApproved, TotalAmount: dec("1500")},
		{ID: "co-2", Status: ledger.ChangeOrderPendingApproval, TotalAmount: dec("500")},
		{ID: "co-3", Status: ledger.ChangeOrderRejected, TotalAmount: dec("900")},
	}

	s := ledger.Summarize(c, nil, cos)

	assertDec(t, "10000", s.OriginalContractValue)
	assertDec(t, "11500", s.CurrentContractValue)
	assertDec(t, "12000", s.PotentialContractValue)
	assertDec(t, "1500", s.NetChangeFromOriginal)
	assertDec(t, "15", s.PercentChangeFromOriginal)
	assertDec(t, "900", s.RejectedChangeOrdersTotal)
	assert.Equal(t, 1, s.ChangeOrdersByStatus[ledger.ChangeOrderApproved].Count)
	assert.Equal(t, 0, s.ChangeOrdersByStatus[ledger.ChangeOrderDraft].Count)
	assert.Equal(t, 3, s.ChangeOrderCount)
}

func TestSummarize_NullTotalSum_FallsBackToLineItems(t *testing.T) {
	c := ledger.Contract{ID: "c-1"}
	items := []ledger.LineItem{
		{TotalPrice: dec("40")},
		{TotalPrice: dec("60")},
	}

	s := ledger.Summarize(c, items, nil)

	assertDec(t, "100", s.LineItemsTotal)
	assertDec(t, "100", s.OriginalContractValue)
	assertDec(t, "100", s.CurrentContractValue)
	assert.Len(t, s.ChangeOrdersByStatus, len(ledger.ChangeOrderStatuses))
}

func TestSummarize_ZeroOriginal_PercentIsZero(t *testing.T) {
	c := ledger.Contract{ID: "c-1"}
	cos := []ledger.ChangeOrder{{Status: ledger.ChangeOrderApproved, TotalAmount: dec("250")}}

	s := ledger.Summarize(c, nil, cos)

	assertDec(t, "250", s.CurrentContractValue)
	assert.True(t, s.PercentChangeFromOriginal.IsZero())
}

func TestSummarize_MultipleStatusesSum(t *testing.T) {
	total := dec("3")
	c := ledger.Contract{TotalSum: &total}
	cos := []ledger.ChangeOrder{
		{Status: ledger.ChangeOrderApproved, TotalAmount: dec("1")},
		{Status: ledger.ChangeOrderApproved, TotalAmount: dec("2")},
		{Status: ledger.ChangeOrderDraft, TotalAmount: dec("7")},
	}

	s := ledger.Summarize(c, nil, cos)

	assert.Equal(t, 2, s.ChangeOrdersByStatus[ledger.ChangeOrderApproved].Count)
	assertDec(t, "3", s.ApprovedChangeOrdersTotal)
	assertDec(t, "7", s.DraftChangeOrdersTotal)
	assertDec(t, "100", s.PercentChangeFromOriginal)
}
