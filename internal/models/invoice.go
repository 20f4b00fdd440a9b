package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "draft"
	InvoiceStatusSent    InvoiceStatus = "sent"
	InvoiceStatusPartial InvoiceStatus = "partial"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusOverdue InvoiceStatus = "overdue"
	InvoiceStatusVoid    InvoiceStatus = "void"
)

type LineItemType string

const (
	LineItemTypeTime         LineItemType = "time"
	LineItemTypeBillableItem LineItemType = "billable_item"
	LineItemTypeCustom       LineItemType = "custom"
)

// Invoice monetary fields are always recomputed from line items and payments,
// never edited by hand. Billing name/email/address are a snapshot captured at
// creation so later project edits do not rewrite history.
type Invoice struct {
	ID             uint          `gorm:"primaryKey"`
	UUID           string        `gorm:"not null;uniqueIndex"`
	ProjectID      uint          `gorm:"not null;index"`
	InvoiceNumber  string        `gorm:"not null;uniqueIndex"`
	Status         InvoiceStatus `gorm:"not null;default:'draft'"`
	BillingName    string
	BillingEmail   string
	BillingAddress string

	Subtotal            decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	DiscountAmount      decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	DiscountDescription string
	CreditAmount        decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	CreditDescription   string
	TaxRate             decimal.Decimal `gorm:"type:numeric(6,3);not null;default:0"` // percent
	TaxAmount           decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	Total               decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	PaidAmount          decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`

	IssueDate time.Time `gorm:"not null"`
	DueDate   *time.Time
	SentAt    *time.Time
	Notes     string

	LineItems []InvoiceLineItem `gorm:"foreignKey:InvoiceID"`
	Payments  []InvoicePayment  `gorm:"foreignKey:InvoiceID"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BalanceDue is derived, never stored.
func (i *Invoice) BalanceDue() decimal.Decimal {
	return i.Total.Sub(i.PaidAmount)
}

// Editable reports whether line items, discount, credit, tax and dates may
// still change. Everything after draft is locked.
func (i *Invoice) Editable() bool {
	return i.Status == InvoiceStatusDraft
}

// Terminal states accept no further billing activity.
func (i *Invoice) Terminal() bool {
	return i.Status == InvoiceStatusPaid || i.Status == InvoiceStatusVoid
}

// Sendable covers first send (draft) and resend.
func (i *Invoice) Sendable() bool {
	switch i.Status {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPartial, InvoiceStatusOverdue:
		return true
	}
	return false
}

// Voidable excludes draft (drafts are deleted, not voided) and terminal states.
func (i *Invoice) Voidable() bool {
	switch i.Status {
	case InvoiceStatusSent, InvoiceStatusPartial, InvoiceStatusOverdue:
		return true
	}
	return false
}

type InvoiceLineItem struct {
	ID             uint         `gorm:"primaryKey"`
	InvoiceID      uint         `gorm:"not null;index"`
	Type           LineItemType `gorm:"not null"`
	RateCategoryID *uint
	BillableItemID *uint
	Description    string          `gorm:"not null"`
	Quantity       decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Rate           decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Amount is always quantity x rate, derived on read to avoid drift.
func (li *InvoiceLineItem) Amount() decimal.Decimal {
	return li.Quantity.Mul(li.Rate).Round(2)
}
