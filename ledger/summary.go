package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// StatusTotal is the count and summed TotalAmount of change orders in one status.
type StatusTotal struct {
	Count int
	Total decimal.Decimal
}

// ContractSummary is the financial view of a contract and its change orders.
type ContractSummary struct {
	ContractID                ContractID
	LineItemCount             int
	LineItemsTotal            decimal.Decimal
	OriginalContractValue     decimal.Decimal
	ChangeOrdersByStatus      map[ChangeOrderStatus]StatusTotal
	ChangeOrderCount          int
	ApprovedChangeOrdersTotal decimal.Decimal
	PendingChangeOrdersTotal  decimal.Decimal
	RejectedChangeOrdersTotal decimal.Decimal
	DraftChangeOrdersTotal    decimal.Decimal
	CurrentContractValue      decimal.Decimal
	PotentialContractValue    decimal.Decimal
	NetChangeFromOriginal     decimal.Decimal
	PercentChangeFromOriginal decimal.Decimal
}

// Summarize folds a contract's line items and change orders into a
// ContractSummary. It performs no I/O.
func Summarize(c Contract, items []LineItem, changeOrders []ChangeOrder) ContractSummary {
	sum := ContractSummary{
		ContractID:           c.ID,
		LineItemCount:        len(items),
		LineItemsTotal:       SumLineTotals(items),
		ChangeOrdersByStatus: make(map[ChangeOrderStatus]StatusTotal, len(ChangeOrderStatuses)),
		ChangeOrderCount:     len(changeOrders),
	}
	sum.OriginalContractValue = sum.LineItemsTotal
	if c.TotalSum != nil {
		sum.OriginalContractValue = *c.TotalSum
	}

	for _, st := range ChangeOrderStatuses {
		sum.ChangeOrdersByStatus[st] = StatusTotal{Total: decimal.Zero}
	}
	for _, co := range changeOrders {
		st := sum.ChangeOrdersByStatus[co.Status]
		st.Count++
		st.Total = st.Total.Add(co.TotalAmount)
		sum.ChangeOrdersByStatus[co.Status] = st
	}
	sum.ApprovedChangeOrdersTotal = sum.ChangeOrdersByStatus[ChangeOrderApproved].Total
	sum.PendingChangeOrdersTotal = sum.ChangeOrdersByStatus[ChangeOrderPendingApproval].Total
	sum.RejectedChangeOrdersTotal = sum.ChangeOrdersByStatus[ChangeOrderRejected].Total
	sum.DraftChangeOrdersTotal = sum.ChangeOrdersByStatus[ChangeOrderDraft].Total

	sum.CurrentContractValue = sum.OriginalContractValue.Add(sum.ApprovedChangeOrdersTotal)
	sum.PotentialContractValue = sum.CurrentContractValue.Add(sum.PendingChangeOrdersTotal)
	sum.NetChangeFromOriginal = sum.CurrentContractValue.Sub(sum.OriginalContractValue)
	sum.PercentChangeFromOriginal = percentOf(sum.NetChangeFromOriginal, sum.OriginalContractValue)
	return sum
}

// percentOf is part/whole*100 rounded to two places, 0 when whole is 0.
func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(decimal.NewFromInt(100)).DivRound(whole, 2)
}

// Summary loads a contract with its line items and change orders in one
// transaction and summarizes them.
func (l *ContractLedger) Summary(ctx context.Context, actor Actor, id ContractID) (*ContractSummary, error) {
	var sum ContractSummary
	err := l.inTx(ctx, func(s Store) error {
		o, err := loadOwner(ctx, s, actor, ContractParent(id), false, "")
		if err != nil {
			return err
		}
		items, err := s.ListLineItems(ctx, o.ref)
		if err != nil {
			return err
		}
		changeOrders, err := s.ListChangeOrders(ctx, id)
		if err != nil {
			return err
		}
		sum = Summarize(*o.contract, items, changeOrders)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sum, nil
}
