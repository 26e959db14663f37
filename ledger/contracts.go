package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ContractLedger owns contracts, their line item sets and TotalSum.
type ContractLedger struct {
	*engine
}

// CreateContractInput describes a new contract. Line items are optional;
// when present TotalSum is computed from them at creation.
type CreateContractInput struct {
	ContractNumber   string           `json:"contractNumber" validate:"required"`
	Title            string           `json:"title"`
	Type             ContractType     `json:"type" validate:"required,oneof=LUMP_SUM REMEASURABLE ADDENDUM"`
	VendorID         VendorID         `json:"vendorId" validate:"required"`
	ProjectID        ProjectID        `json:"projectId"`
	RetentionPercent *decimal.Decimal `json:"retentionPercent" validate:"omitempty,gte=0,lte=100"`
	RetentionAmount  *decimal.Decimal `json:"retentionAmount" validate:"omitempty,gte=0"`
	WarrantyYears    int              `json:"warrantyYears" validate:"omitempty,min=1,max=10"`
	StartDate        *time.Time       `json:"startDate"`
	EndDate          *time.Time       `json:"endDate"`
	LineItems        []LineItemInput  `json:"lineItems" validate:"omitempty,dive"`
}

// UpdateContractInput edits contract header fields. The contract number
// is immutable and not part of the input.
type UpdateContractInput struct {
	Title            *string          `json:"title"`
	Type             *ContractType    `json:"type" validate:"omitempty,oneof=LUMP_SUM REMEASURABLE ADDENDUM"`
	Status           *ContractStatus  `json:"status" validate:"omitempty,oneof=DRAFT ACTIVE COMPLETED TERMINATED EXPIRED"`
	ProjectID        *ProjectID       `json:"projectId"`
	RetentionPercent *decimal.Decimal `json:"retentionPercent" validate:"omitempty,gte=0,lte=100"`
	RetentionAmount  *decimal.Decimal `json:"retentionAmount" validate:"omitempty,gte=0"`
	WarrantyYears    *int             `json:"warrantyYears" validate:"omitempty,min=1,max=10"`
	StartDate        *time.Time       `json:"startDate"`
	EndDate          *time.Time       `json:"endDate"`
}

func checkDates(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return invalidField("endDate", "gtefield", "must not be before startDate")
	}
	return nil
}

// CreateContract issues a new DRAFT contract.
func (l *ContractLedger) CreateContract(ctx context.Context, actor Actor, in CreateContractInput) (*Contract, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	if err := checkDates(in.StartDate, in.EndDate); err != nil {
		return nil, err
	}
	now := l.now()
	c := &Contract{
		ID:               ContractID(l.newID()),
		TenantID:         actor.TenantID,
		ContractNumber:   in.ContractNumber,
		Title:            in.Title,
		Type:             in.Type,
		Status:           ContractDraft,
		VendorID:         in.VendorID,
		ProjectID:        in.ProjectID,
		RetentionPercent: in.RetentionPercent,
		RetentionAmount:  in.RetentionAmount,
		WarrantyYears:    in.WarrantyYears,
		StartDate:        in.StartDate,
		EndDate:          in.EndDate,
		CreatedBy:        actor.UserID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if c.WarrantyYears == 0 {
		c.WarrantyYears = 1
	}
	err := l.inTx(ctx, func(s Store) error {
		if err := s.CreateContract(ctx, c); err != nil {
			return err
		}
		if len(in.LineItems) == 0 {
			return nil
		}
		ref := ContractParent(c.ID)
		if _, err := insertItems(ctx, s, l.engine, ref, in.LineItems); err != nil {
			return err
		}
		_, err := (&owner{ref: ref, contract: c}).recompute(ctx, s, l.engine)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.log.Info().Str("contract_id", string(c.ID)).Str("contract_number", c.ContractNumber).Msg("contract created")
	return c, nil
}

// GetContract returns a contract of the actor's tenant.
func (l *ContractLedger) GetContract(ctx context.Context, actor Actor, id ContractID) (*Contract, error) {
	c, err := l.store.GetContract(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.TenantID != actor.TenantID {
		return nil, &NotFoundError{Entity: "contract", ID: string(id)}
	}
	return c, nil
}

// ListContracts returns the tenant's contracts matching filter.
func (l *ContractLedger) ListContracts(ctx context.Context, actor Actor, filter ContractFilter) ([]Contract, error) {
	filter.TenantID = actor.TenantID
	return l.store.ListContracts(ctx, filter)
}

// UpdateContract applies free-form header edits.
func (l *ContractLedger) UpdateContract(ctx context.Context, actor Actor, id ContractID, in UpdateContractInput) (*Contract, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	var c *Contract
	err := l.inTx(ctx, func(s Store) error {
		o, err := lockOwner(ctx, s, actor, ContractParent(id), "")
		if err != nil {
			return err
		}
		c = o.contract
		if in.Title != nil {
			c.Title = *in.Title
		}
		if in.Type != nil {
			c.Type = *in.Type
		}
		if in.Status != nil {
			c.Status = *in.Status
		}
		if in.ProjectID != nil {
			c.ProjectID = *in.ProjectID
		}
		if in.RetentionPercent != nil {
			c.RetentionPercent = in.RetentionPercent
		}
		if in.RetentionAmount != nil {
			c.RetentionAmount = in.RetentionAmount
		}
		if in.WarrantyYears != nil {
			c.WarrantyYears = *in.WarrantyYears
		}
		if in.StartDate != nil {
			c.StartDate = in.StartDate
		}
		if in.EndDate != nil {
			c.EndDate = in.EndDate
		}
		if err := checkDates(c.StartDate, c.EndDate); err != nil {
			return err
		}
		c.UpdatedAt = l.now()
		return s.UpdateContract(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteContract removes a contract with its change orders and line items.
// Admin only.
func (l *ContractLedger) DeleteContract(ctx context.Context, actor Actor, id ContractID) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	err := l.inTx(ctx, func(s Store) error {
		if _, err := lockOwner(ctx, s, actor, ContractParent(id), ""); err != nil {
			return err
		}
		return s.DeleteContract(ctx, id)
	})
	if err != nil {
		return err
	}
	l.log.Info().Str("contract_id", string(id)).Str("actor", string(actor.UserID)).Msg("contract deleted")
	return nil
}

// RecalculateContractTotal recomputes TotalSum from the current line items.
func (l *ContractLedger) RecalculateContractTotal(ctx context.Context, actor Actor, id ContractID) (*Contract, error) {
	var c *Contract
	err := l.inTx(ctx, func(s Store) error {
		o, err := lockOwner(ctx, s, actor, ContractParent(id), "")
		if err != nil {
			return err
		}
		if _, err := o.recompute(ctx, s, l.engine); err != nil {
			return err
		}
		c = o.contract
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
