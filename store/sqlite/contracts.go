package sqlite

import (
	"context"
	"database/sql"
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
		start, end                  sql.NullString
		created, updated            string
	)
	err := row.Scan(
		&c.ID, &c.TenantID, &c.ContractNumber, &c.Title, &c.Type, &c.Status, &c.VendorID,
		&c.ProjectID, &total, &retention, &retAmount, &c.WarrantyYears, &start,
		&end, &c.ChangeOrderSeq, &c.CreatedBy, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	c.TotalSum = decPtr(total)
	c.RetentionPercent = decPtr(retention)
	c.RetentionAmount = decPtr(retAmount)
	if c.StartDate, err = parseNullTS(start); err != nil {
		return nil, err
	}
	if c.EndDate, err = parseNullTS(end); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTS(updated); err != nil {
		return nil, err
	}
	return &c, nil
}

func (q *queries) CreateContract(ctx context.Context, c *ledger.Contract) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO contracts (`+contractColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TenantID, c.ContractNumber, c.Title, c.Type, c.Status, c.VendorID,
		c.ProjectID, nullDec(c.TotalSum), nullDec(c.RetentionPercent), nullDec(c.RetentionAmount),
		c.WarrantyYears, nullTS(c.StartDate), nullTS(c.EndDate), c.ChangeOrderSeq,
		c.CreatedBy, ts(c.CreatedAt), ts(c.UpdatedAt),
	)
	return mapErr(err, "contract", c.ContractNumber)
}

func (q *queries) GetContract(ctx context.Context, id ledger.ContractID) (*ledger.Contract, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = ?`, id)
	c, err := scanContract(row)
	if err != nil {
		return nil, mapErr(err, "contract", string(id))
	}
	return c, nil
}

// GetContractForUpdate is a plain read: the IMMEDIATE transaction already
// holds the database write lock.
func (q *queries) GetContractForUpdate(ctx context.Context, id ledger.ContractID) (*ledger.Contract, error) {
	return q.GetContract(ctx, id)
}

func (q *queries) ListContracts(ctx context.Context, f ledger.ContractFilter) ([]ledger.Contract, error) {
	var (
		where []string
		args  []any
	)
	add := func(col string, v string) {
		if v != "" {
			where = append(where, col+" = ?")
			args = append(args, v)
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

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err, "contract", "")
	}
	defer rows.Close()

	out := make([]ledger.Contract, 0)
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (q *queries) UpdateContract(ctx context.Context, c *ledger.Contract) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE contracts SET
			title = ?, contract_type = ?, status = ?, vendor_id = ?, project_id = ?,
			total_sum = ?, retention_percent = ?, retention_amount = ?, warranty_years = ?,
			start_date = ?, end_date = ?, change_order_seq = ?, updated_at = ?
		WHERE id = ?`,
		c.Title, c.Type, c.Status, c.VendorID, c.ProjectID,
		nullDec(c.TotalSum), nullDec(c.RetentionPercent), nullDec(c.RetentionAmount), c.WarrantyYears,
		nullTS(c.StartDate), nullTS(c.EndDate), c.ChangeOrderSeq, ts(c.UpdatedAt),
		c.ID,
	)
	return mustAffect(res, err, "contract", string(c.ID))
}

// DeleteContract relies on ON DELETE CASCADE for change orders and items.
func (q *queries) DeleteContract(ctx context.Context, id ledger.ContractID) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM contracts WHERE id = ?`, id)
	return mustAffect(res, err, "contract", string(id))
}

// =============================================================================
// LINE ITEMS
// =============================================================================

const lineItemColumns = `id, contract_id, change_order_id, description, quantity, unit,
	unit_price, total_price, sort_order, notes, created_at, updated_at`

func parentColumns(p ledger.ParentRef) (contractID, changeOrderID sql.NullString) {
	if p.Kind == ledger.ParentChangeOrder {
		return sql.NullString{}, nullString(p.ID)
	}
	return nullString(p.ID), sql.NullString{}
}

func scanLineItem(row rowScanner) (*ledger.LineItem, error) {
	var (
		li               ledger.LineItem
		contractID, coID sql.NullString
		created, updated string
	)
	err := row.Scan(
		&li.ID, &contractID, &coID, &li.Description, &li.Quantity, &li.Unit,
		&li.UnitPrice, &li.TotalPrice, &li.Order, &li.Notes, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	if coID.Valid {
		li.Parent = ledger.ChangeOrderParent(ledger.ChangeOrderID(coID.String))
	} else {
		li.Parent = ledger.ContractParent(ledger.ContractID(contractID.String))
	}
	if li.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	if li.UpdatedAt, err = parseTS(updated); err != nil {
		return nil, err
	}
	return &li, nil
}

func (q *queries) CreateLineItem(ctx context.Context, li *ledger.LineItem) error {
	contractID, coID := parentColumns(li.Parent)
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO line_items (`+lineItemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		li.ID, contractID, coID, li.Description, li.Quantity.String(), li.Unit,
		li.UnitPrice.String(), li.TotalPrice.String(), li.Order, li.Notes, ts(li.CreatedAt), ts(li.UpdatedAt),
	)
	return mapErr(err, "line item", string(li.ID))
}

func (q *queries) GetLineItem(ctx context.Context, id ledger.LineItemID) (*ledger.LineItem, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+lineItemColumns+` FROM line_items WHERE id = ?`, id)
	li, err := scanLineItem(row)
	if err != nil {
		return nil, mapErr(err, "line item", string(id))
	}
	return li, nil
}

func (q *queries) UpdateLineItem(ctx context.Context, li *ledger.LineItem) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE line_items SET
			description = ?, quantity = ?, unit = ?, unit_price = ?, total_price = ?,
			sort_order = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		li.Description, li.Quantity.String(), li.Unit, li.UnitPrice.String(), li.TotalPrice.String(),
		li.Order, li.Notes, ts(li.UpdatedAt),
		li.ID,
	)
	return mustAffect(res, err, "line item", string(li.ID))
}

func (q *queries) DeleteLineItem(ctx context.Context, id ledger.LineItemID) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM line_items WHERE id = ?`, id)
	return mustAffect(res, err, "line item", string(id))
}

func (q *queries) ListLineItems(ctx context.Context, parent ledger.ParentRef) ([]ledger.LineItem, error) {
	col := "contract_id"
	if parent.Kind == ledger.ParentChangeOrder {
		col = "change_order_id"
	}
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+lineItemColumns+` FROM line_items
		WHERE `+col+` = ?
		ORDER BY sort_order, created_at, id`, parent.ID)
	if err != nil {
		return nil, mapErr(err, "line item", "")
	}
	defer rows.Close()

	out := make([]ledger.LineItem, 0)
	for rows.Next() {
		li, err := scanLineItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		out = append(out, *li)
	}
	return out, rows.Err()
}

// =============================================================================
// CHANGE ORDERS
// =============================================================================

const changeOrderColumns = `id, contract_id, number, title, description, reason, total_amount,
	status, created_by, submitted_by, submitted_at, approved_by, approved_at, approval_comment,
	rejected_by, rejected_at, rejection_reason, created_at, updated_at`

func scanChangeOrder(row rowScanner) (*ledger.ChangeOrder, error) {
	var (
		co                            ledger.ChangeOrder
		submitted, approved, rejected sql.NullString
		created, updated              string
	)
	err := row.Scan(
		&co.ID, &co.ContractID, &co.Number, &co.Title, &co.Description, &co.Reason, &co.TotalAmount,
		&co.Status, &co.CreatedBy, &co.SubmittedBy, &submitted, &co.ApprovedBy, &approved, &co.ApprovalComment,
		&co.RejectedBy, &rejected, &co.RejectionReason, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	if co.SubmittedAt, err = parseNullTS(submitted); err != nil {
		return nil, err
	}
	if co.ApprovedAt, err = parseNullTS(approved); err != nil {
		return nil, err
	}
	if co.RejectedAt, err = parseNullTS(rejected); err != nil {
		return nil, err
	}
	if co.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	if co.UpdatedAt, err = parseTS(updated); err != nil {
		return nil, err
	}
	return &co, nil
}

func (q *queries) CreateChangeOrder(ctx context.Context, co *ledger.ChangeOrder) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO change_orders (`+changeOrderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		co.ID, co.ContractID, co.Number, co.Title, co.Description, co.Reason, co.TotalAmount.String(),
		co.Status, co.CreatedBy, co.SubmittedBy, nullTS(co.SubmittedAt), co.ApprovedBy, nullTS(co.ApprovedAt), co.ApprovalComment,
		co.RejectedBy, nullTS(co.RejectedAt), co.RejectionReason, ts(co.CreatedAt), ts(co.UpdatedAt),
	)
	return mapErr(err, "change order", fmt.Sprintf("%s#%d", co.ContractID, co.Number))
}

func (q *queries) GetChangeOrder(ctx context.Context, id ledger.ChangeOrderID) (*ledger.ChangeOrder, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+changeOrderColumns+` FROM change_orders WHERE id = ?`, id)
	co, err := scanChangeOrder(row)
	if err != nil {
		return nil, mapErr(err, "change order", string(id))
	}
	return co, nil
}

func (q *queries) GetChangeOrderForUpdate(ctx context.Context, id ledger.ChangeOrderID) (*ledger.ChangeOrder, error) {
	return q.GetChangeOrder(ctx, id)
}

func (q *queries) ListChangeOrders(ctx context.Context, contractID ledger.ContractID) ([]ledger.ChangeOrder, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+changeOrderColumns+` FROM change_orders
		WHERE contract_id = ?
		ORDER BY number`, contractID)
	if err != nil {
		return nil, mapErr(err, "change order", "")
	}
	defer rows.Close()

	out := make([]ledger.ChangeOrder, 0)
	for rows.Next() {
		co, err := scanChangeOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change order: %w", err)
		}
		out = append(out, *co)
	}
	return out, rows.Err()
}

func (q *queries) UpdateChangeOrder(ctx context.Context, co *ledger.ChangeOrder) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE change_orders SET
			title = ?, description = ?, reason = ?, total_amount = ?, status = ?,
			submitted_by = ?, submitted_at = ?, approved_by = ?, approved_at = ?, approval_comment = ?,
			rejected_by = ?, rejected_at = ?, rejection_reason = ?, updated_at = ?
		WHERE id = ?`,
		co.Title, co.Description, co.Reason, co.TotalAmount.String(), co.Status,
		co.SubmittedBy, nullTS(co.SubmittedAt), co.ApprovedBy, nullTS(co.ApprovedAt), co.ApprovalComment,
		co.RejectedBy, nullTS(co.RejectedAt), co.RejectionReason, ts(co.UpdatedAt),
		co.ID,
	)
	return mustAffect(res, err, "change order", string(co.ID))
}

func (q *queries) DeleteChangeOrder(ctx context.Context, id ledger.ChangeOrderID) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM change_orders WHERE id = ?`, id)
	return mustAffect(res, err, "change order", string(id))
}

func (q *queries) MaxChangeOrderNumber(ctx context.Context, contractID ledger.ContractID) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(number), 0) FROM change_orders WHERE contract_id = ?`, contractID,
	).Scan(&n)
	if err != nil {
		return 0, mapErr(err, "change order", string(contractID))
	}
	return n, nil
}
