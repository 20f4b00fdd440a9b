package services

import (
	"github.com/shopspring/decimal"

	"github.com/diewo77/helpdesk-billing/internal/models"
	"github.com/diewo77/helpdesk-billing/internal/validation"
)

// LineItem is the tagged union over the three billable sources. Every variant
// normalizes to the same persisted shape with amount = quantity x rate.
type LineItem interface {
	Validate() error
	ToModel() models.InvoiceLineItem
}

// TimeLineItem wraps an aggregated group. Quantity zero is legal only for an
// empty group, and empty groups are skipped before this point.
type TimeLineItem struct {
	Group TimeGroup
}

func (t TimeLineItem) Validate() error {
	v := validation.Violations{}
	if len(t.Group.EntryIDs) == 0 {
		v["entries"] = "empty_group"
	}
	validation.NonNegativeDecimal("quantity", t.Group.Quantity, v)
	validation.NonNegativeDecimal("rate", t.Group.Rate, v)
	if !v.Empty() {
		return newValidationError(v)
	}
	return nil
}

func (t TimeLineItem) ToModel() models.InvoiceLineItem {
	return models.InvoiceLineItem{
		Type:           models.LineItemTypeTime,
		RateCategoryID: t.Group.RateCategoryID,
		Description:    t.Group.Description,
		Quantity:       t.Group.Quantity,
		Rate:           t.Group.Rate,
	}
}

// CatalogLineItem bills a catalog entry, optionally overriding rate and
// description per use. The catalog row itself is read-only here.
type CatalogLineItem struct {
	Item                models.BillableItem
	Quantity            decimal.Decimal
	RateOverride        *decimal.Decimal
	DescriptionOverride string
}

func (c CatalogLineItem) Validate() error {
	v := validation.Violations{}
	validation.PositiveDecimal("quantity", c.Quantity, v)
	if c.RateOverride != nil {
		validation.NonNegativeDecimal("rate", *c.RateOverride, v)
	}
	if !v.Empty() {
		return newValidationError(v)
	}
	return nil
}

func (c CatalogLineItem) ToModel() models.InvoiceLineItem {
	rate := c.Item.DefaultRate
	if c.RateOverride != nil {
		rate = *c.RateOverride
	}
	desc := c.Item.Name
	if c.DescriptionOverride != "" {
		desc = c.DescriptionOverride
	}
	id := c.Item.ID
	return models.InvoiceLineItem{
		Type:           models.LineItemTypeBillableItem,
		BillableItemID: &id,
		Description:    desc,
		Quantity:       c.Quantity,
		Rate:           rate,
	}
}

// CustomLineItem is free-form: description, quantity and rate all come from
// the caller, no catalog lookup.
type CustomLineItem struct {
	Description string
	Quantity    decimal.Decimal
	Rate        decimal.Decimal
}

func (c CustomLineItem) Validate() error {
	v := validation.Violations{}
	validation.Required("description", c.Description, v)
	validation.PositiveDecimal("quantity", c.Quantity, v)
	validation.NonNegativeDecimal("rate", c.Rate, v)
	if !v.Empty() {
		return newValidationError(v)
	}
	return nil
}

func (c CustomLineItem) ToModel() models.InvoiceLineItem {
	return models.InvoiceLineItem{
		Type:        models.LineItemTypeCustom,
		Description: c.Description,
		Quantity:    c.Quantity,
		Rate:        c.Rate,
	}
}
