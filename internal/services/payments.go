package services

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/diewo77/helpdesk-billing/internal/models"
	"github.com/diewo77/helpdesk-billing/internal/validation"
)

// PaymentService is the append-only ledger of manual payments. Rows are never
// mutated once recorded; corrections are soft deletes with a reason.
type PaymentService struct {
	DB *gorm.DB
}

func NewPaymentService(db *gorm.DB) *PaymentService { return &PaymentService{DB: db} }

// PaymentInput describes one manual payment.
type PaymentInput struct {
	InvoiceID       uint
	Amount          decimal.Decimal
	Method          models.PaymentMethod
	ReferenceNumber string
	PaymentDate     time.Time
	Notes           string
}

// Record appends a payment and recomputes totals and status in one
// transaction. Rejected on void or fully paid invoices and when the amount
// is non-positive or exceeds the current balance due.
func (s *PaymentService) Record(in PaymentInput) (*models.InvoicePayment, error) {
	v := validation.Violations{}
	validation.PositiveDecimal("amount", in.Amount, v)
	if !models.ValidPaymentMethod(in.Method) {
		v["payment_method"] = "unknown_method"
	}
	if !v.Empty() {
		return nil, newValidationError(v)
	}
	date := in.PaymentDate
	if date.IsZero() {
		date = time.Now().UTC().Truncate(24 * time.Hour)
	}

	var payment *models.InvoicePayment
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		inv, err := getInvoiceTx(tx, in.InvoiceID)
		if err != nil {
			return err
		}
		if inv.Status == models.InvoiceStatusVoid {
			return &StateConflictError{Reason: "cannot record a payment on a void invoice"}
		}
		if inv.Status == models.InvoiceStatusPaid {
			return &StateConflictError{Reason: "invoice is already fully paid"}
		}
		if in.Amount.GreaterThan(inv.BalanceDue()) {
			return newValidationError(validation.Violations{"amount": "exceeds_balance_due"})
		}
		p := models.InvoicePayment{
			InvoiceID:       inv.ID,
			Amount:          in.Amount,
			Method:          in.Method,
			ReferenceNumber: in.ReferenceNumber,
			PaymentDate:     date,
			Notes:           in.Notes,
		}
		if err := tx.Create(&p).Error; err != nil {
			return err
		}
		if err := recalculateTx(tx, inv); err != nil {
			return err
		}
		if next := paymentStatus(inv); next != inv.Status {
			if err := tx.Model(inv).Update("status", next).Error; err != nil {
				return err
			}
			inv.Status = next
		}
		payment = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// SoftDelete retires a payment without removing the row, then recomputes the
// invoice. Status reverts toward sent/partial, or draft for an invoice that
// was never sent; a void invoice stays void.
func (s *PaymentService) SoftDelete(invoiceID, paymentID uint, reason string, actorID uint) error {
	if strings.TrimSpace(reason) == "" {
		return newValidationError(validation.Violations{"reason": "required"})
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		inv, err := getInvoiceTx(tx, invoiceID)
		if err != nil {
			return err
		}
		var p models.InvoicePayment
		if err := tx.Where("id = ? AND invoice_id = ?", paymentID, invoiceID).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "payment"}
			}
			return err
		}
		if p.Deleted() {
			return &StateConflictError{Reason: "payment is already deleted"}
		}
		now := time.Now().UTC()
		updates := map[string]any{
			"deleted_at":     now,
			"deleted_reason": reason,
		}
		if actorID != 0 {
			updates["deleted_by_id"] = actorID
		}
		if err := tx.Model(&p).Updates(updates).Error; err != nil {
			return err
		}
		if err := recalculateTx(tx, inv); err != nil {
			return err
		}
		if next := paymentStatus(inv); next != inv.Status {
			if err := tx.Model(inv).Update("status", next).Error; err != nil {
				return err
			}
			inv.Status = next
		}
		return nil
	})
}

// List returns the full ledger for an invoice, soft-deleted rows included.
func (s *PaymentService) List(invoiceID uint) ([]models.InvoicePayment, error) {
	var payments []models.InvoicePayment
	err := s.DB.Where("invoice_id = ?", invoiceID).Order("id asc").Find(&payments).Error
	return payments, err
}
