package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCheck        PaymentMethod = "check"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCOD          PaymentMethod = "cod"
	PaymentMethodOther        PaymentMethod = "other"
)

func ValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCheck, PaymentMethodBankTransfer, PaymentMethodCOD, PaymentMethodOther:
		return true
	}
	return false
}

// InvoicePayment rows are append-only. A recorded payment is never mutated;
// corrections go through soft delete with a reason and actor, so the ledger
// keeps its full history.
type InvoicePayment struct {
	ID              uint            `gorm:"primaryKey"`
	InvoiceID       uint            `gorm:"not null;index"`
	Amount          decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Method          PaymentMethod   `gorm:"not null"`
	ReferenceNumber string
	PaymentDate     time.Time `gorm:"not null"`
	Notes           string

	DeletedAt     *time.Time `gorm:"index"`
	DeletedReason string
	DeletedByID   *uint

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *InvoicePayment) Deleted() bool { return p.DeletedAt != nil }
