package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/crudexec/construction-sub006/ledger"
)

// =============================================================================
// CONTRACTS
// =============================================================================

const contractColumns = `id, tenant_id, contract_number, title, contract_type, status, vendor_id,
	project_id, total_sum, retention_percent, retention_amount, warranty_years, start_date,
	end_date, change_order_seq, created_by, created_at, updated_at`

func scanContract(row rowScanner) (*ledger.Contract, error) {
	var (
		c                           ledger.Contract
		total, retention, retAmount decimal.NullDecimal
	)
	err := row.Scan(
		&c.ID, &c.TenantID, &c.ContractNumber, &c.Title, &c.Type, &c.Status, &c.VendorID,
		&c.ProjectID, &total, &retention, &retAmount, &c.WarrantyYears, &c.StartDate,
		&c.EndDate, &c.ChangeOrderSeq, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.TotalSum = decPtr(total)
	c.RetentionPercent = decPtr(retention)
	c.RetentionAmount = decPtr(retAmount)
	return &c, nil
}

func (q *queries) CreateContract(ctx context.Context, c *ledger.Contract) error {
	_, err := q.q.Exec(ctx, `
		INSERT INTO contracts (`+contractColumns+`)
		VALUES (`+valuesList(18)+`)`,
		c.ID, c.TenantID, c.ContractNumber, c.Title, c.Type, c.Status, c.VendorID,
		c.ProjectID, c.TotalSum, c.RetentionPercent, c.RetentionAmount, c.WarrantyYears,
		c.StartDate, c.EndDate, c.ChangeOrderSeq, c.CreatedBy, c.CreatedAt, c.UpdatedAt,
	)
	return mapErr(err, "contract", c.ContractNumber)
}

func (q *queries) GetContract(ctx context.Context, id ledger.ContractID) (*ledger.Contract, error) {
	return q.getContract(ctx, id, "")
}

func (q *queries) GetContractForUpdate(ctx context.Context, id ledger.ContractID) (*ledger.Contract, error) {
	return q.getContract(ctx, id, q.lock)
}

func (q *queries) getContract(ctx context.Context, id ledger.ContractID, lock string) (*ledger.Contract, error) {
	row := q.q.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1`+lock, id)
	c, err := scanContract(row)
	if err != nil {
		return nil, mapErr(err, "contract", string(id))
	}
	return c, nil
}

func (q *queries) ListContracts(ctx context.Context, f ledger.ContractFilter) ([]ledger.Contract, error) {
	var (
		p     placeholders
		where []string
	)
	add := func(col, v string) {
		if v != "" {
			where = append(where, col+" = "+p.add(v))
		}
	}
	add("tenant_id", string(f.TenantID))
	add("vendor_id", string(f.VendorID))
	add("project_id", string(f.ProjectID))
	add("status", string(f.Status))

	query := `SELECT ` + contractColumns + ` FROM contracts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at, id`

	rows, err := q.q.Query(ctx, query, p.args...)
	if err != nil {
		return nil, mapErr(err, "contract", "")
	}
	out, err := collect(rows, scanContract)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	return out, nil
}

func (q *queries) UpdateContract(ctx context.Context, c *ledger.Contract) error {
	tag, err := q.q.Exec(ctx, `
		UPDATE contracts SET
			title = $1, contract_type = $2, status = $3, vendor_id = $4, project_id = $5,
			total_sum = $6, retention_percent = $7, retention_amount = $8, warranty_years = $9,
			start_date = $10, end_date = $11, change_order_seq = $12, updated_at = $13
		WHERE id = $14`,
		c.Title, c.Type, c.Status, c.VendorID, c.ProjectID,
		c.TotalSum, c.RetentionPercent, c.RetentionAmount, c.WarrantyYears,
		c.StartDate, c.EndDate, c.ChangeOrderSeq, c.UpdatedAt,
		c.ID,
	)
	return mustAffect(tag, err, "contract", string(c.ID))
}

// DeleteContract relies on ON DELETE CASCADE for change orders and items.
func (q *queries) DeleteContract(ctx context.Context, id ledger.ContractID) error {
	tag, err := q.q.Exec(ctx, `DELETE FROM contracts WHERE id = $1`, id)
	return mustAffect(tag, err, "contract", string(id))
}

// =============================================================================
// LINE ITEMS
// =============================================================================

const lineItemColumns = `id, contract_id, change_order_id, description, quantity, unit,
	unit_price, total_price, sort_order, notes, created_at, updated_at`

func parentColumns(p ledger.ParentRef) (contractID, changeOrderID *string) {
	if p.Kind == ledger.ParentChangeOrder {
		return nil, nullString(p.ID)
	}
	return nullString(p.ID), nil
}

func scanLineItem(row rowScanner) (*ledger.LineItem, error) {
	var (
		li               ledger.LineItem
		contractID, coID *string
	)
	err := row.Scan(
		&li.ID, &contractID, &coID, &li.Description, &li.Quantity, &li.Unit,
		&li.UnitPrice, &li.TotalPrice, &li.Order, &li.Notes, &li.CreatedAt, &li.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	switch {
	case coID != nil:
		li.Parent = ledger.ChangeOrderParent(ledger.ChangeOrderID(*coID))
	case contractID != nil:
		li.Parent = ledger.ContractParent(ledger.ContractID(*contractID))
	}
	return &li, nil
}

func (q *queries) CreateLineItem(ctx context.Context, li *ledger.LineItem) error {
	contractID, coID := parentColumns(li.Parent)
	_, err := q.q.Exec(ctx, `
		INSERT INTO line_items (`+lineItemColumns+`)
		VALUES (`+valuesList(12)+`)`,
		li.ID, contractID, coID, li.Description, li.Quantity, li.Unit,
		li.UnitPrice, li.TotalPrice, li.Order, li.Notes, li.CreatedAt, li.UpdatedAt,
	)
	return mapErr(err, "line item", string(li.ID))
}

func (q *queries) GetLineItem(ctx context.Context, id ledger.LineItemID) (*ledger.LineItem, error) {
	row := q.q.QueryRow(ctx, `SELECT `+lineItemColumns+` FROM line_items WHERE id = $1`, id)
	li, err := scanLineItem(row)
	if err != nil {
		return nil, mapErr(err, "line item", string(id))
	}
	return li, nil
}

func (q *queries) UpdateLineItem(ctx context.Context, li *ledger.LineItem) error {
	tag, err := q.q.Exec(ctx, `
		UPDATE line_items SET
			description = $1, quantity = $2, unit = $3, unit_price = $4, total_price = $5,
			sort_order = $6, notes = $7, updated_at = $8
		WHERE id = $9`,
		li.Description, li.Quantity, li.Unit, li.UnitPrice, li.TotalPrice,
		li.Order, li.Notes, li.UpdatedAt,
		li.ID,
	)
	return mustAffect(tag, err, "line item", string(li.ID))
}

func (q *queries) DeleteLineItem(ctx context.Context, id ledger.LineItemID) error {
	tag, err := q.q.Exec(ctx, `DELETE FROM line_items WHERE id = $1`, id)
	return mustAffect(tag, err, "line item", string(id))
}

func (q *queries) ListLineItems(ctx context.Context, parent ledger.ParentRef) ([]ledger.LineItem, error) {
	col := "contract_id"
	if parent.Kind == ledger.ParentChangeOrder {
		col = "change_order_id"
	}
	rows, err := q.q.Query(ctx, `
		SELECT `+lineItemColumns+` FROM line_items
		WHERE `+col+` = $1
		ORDER BY sort_order, created_at, id`, parent.ID)
	if err != nil {
		return nil, mapErr(err, "line item", "")
	}
	out, err := collect(rows, scanLineItem)
	if err != nil {
		return nil, fmt.Errorf("failed to list line items: %w", err)
	}
	return out, nil
}

// =============================================================================
// CHANGE ORDERS
// =============================================================================

const changeOrderColumns = `id, contract_id, number, title, description, reason, total_amount,
	status, created_by, submitted_by, submitted_at, approved_by, approved_at, approval_comment,
	rejected_by, rejected_at, rejection_reason, created_at, updated_at`

func scanChangeOrder(row rowScanner) (*ledger.ChangeOrder, error) {
	var co ledger.ChangeOrder
	err := row.Scan(
		&co.ID, &co.ContractID, &co.Number, &co.Title, &co.Description, &co.Reason, &co.TotalAmount,
		&co.Status, &co.CreatedBy, &co.SubmittedBy, &co.SubmittedAt, &co.ApprovedBy, &co.ApprovedAt, &co.ApprovalComment,
		&co.RejectedBy, &co.RejectedAt, &co.RejectionReason, &co.CreatedAt, &co.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &co, nil
}

func (q *queries) CreateChangeOrder(ctx context.Context, co *ledger.ChangeOrder) error {
	_, err := q.q.Exec(ctx, `
		INSERT INTO change_orders (`+changeOrderColumns+`)
		VALUES (`+valuesList(19)+`)`,
		co.ID, co.ContractID, co.Number, co.Title, co.Description, co.Reason, co.TotalAmount,
		co.Status, co.CreatedBy, co.SubmittedBy, co.SubmittedAt, co.ApprovedBy, co.ApprovedAt, co.ApprovalComment,
		co.RejectedBy, co.RejectedAt, co.RejectionReason, co.CreatedAt, co.UpdatedAt,
	)
	return mapErr(err, "change order", fmt.Sprintf("%s#%d", co.ContractID, co.Number))
}

func (q *queries) GetChangeOrder(ctx context.Context, id ledger.ChangeOrderID) (*ledger.ChangeOrder, error) {
	return q.getChangeOrder(ctx, id, "")
}

func (q *queries) GetChangeOrderForUpdate(ctx context.Context, id ledger.ChangeOrderID) (*ledger.ChangeOrder, error) {
	return q.getChangeOrder(ctx, id, q.lock)
}

func (q *queries) getChangeOrder(ctx context.Context, id ledger.ChangeOrderID, lock string) (*ledger.ChangeOrder, error) {
	row := q.q.QueryRow(ctx, `SELECT `+changeOrderColumns+` FROM change_orders WHERE id = $1`+lock, id)
	co, err := scanChangeOrder(row)
	if err != nil {
		return nil, mapErr(err, "change order", string(id))
	}
	return co, nil
}

func (q *queries) ListChangeOrders(ctx context.Context, contractID ledger.ContractID) ([]ledger.ChangeOrder, error) {
	rows, err := q.q.Query(ctx, `
		SELECT `+changeOrderColumns+` FROM change_orders
		WHERE contract_id = $1
		ORDER BY number`, contractID)
	if err != nil {
		return nil, mapErr(err, "change order", "")
	}
	out, err := collect(rows, scanChangeOrder)
	if err != nil {
		return nil, fmt.Errorf("failed to list change orders: %w", err)
	}
	return out, nil
}

func (q *queries) UpdateChangeOrder(ctx context.Context, co *ledger.ChangeOrder) error {
	tag, err := q.q.Exec(ctx, `
		UPDATE change_orders SET
			title = $1, description = $2, reason = $3, total_amount = $4, status = $5,
			submitted_by = $6, submitted_at = $7, approved_by = $8, approved_at = $9, approval_comment = $10,
			rejected_by = $11, rejected_at = $12, rejection_reason = $13, updated_at = $14
		WHERE id = $15`,
		co.Title, co.Description, co.Reason, co.TotalAmount, co.Status,
		co.SubmittedBy, co.SubmittedAt, co.ApprovedBy, co.ApprovedAt, co.ApprovalComment,
		co.RejectedBy, co.RejectedAt, co.RejectionReason, co.UpdatedAt,
		co.ID,
	)
	return mustAffect(tag, err, "change order", string(co.ID))
}

func (q *queries) DeleteChangeOrder(ctx context.Context, id ledger.ChangeOrderID) error {
	tag, err := q.q.Exec(ctx, `DELETE FROM change_orders WHERE id = $1`, id)
	return mustAffect(tag, err, "change order", string(id))
}

func (q *queries) MaxChangeOrderNumber(ctx context.Context, contractID ledger.ContractID) (int, error) {
	var n int
	err := q.q.QueryRow(ctx,
		`SELECT COALESCE(MAX(number), 0) FROM change_orders WHERE contract_id = $1`, contractID,
	).Scan(&n)
	if err != nil {
		return 0, mapErr(err, "change order", string(contractID))
	}
	return n, nil
}
