package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/diewo77/helpdesk-billing/internal/models"
	"github.com/diewo77/helpdesk-billing/internal/validation"
)

// InvoiceService owns invoice creation, draft editing, totals recomputation
// and the lifecycle state machine. All writes that touch line items, time
// entry claims or monetary fields run in one transaction.
type InvoiceService struct {
	DB         *gorm.DB
	Sender     Sender
	Renderer   Renderer
	PublicBase string
}

func NewInvoiceService(db *gorm.DB, sender Sender, publicBase string) *InvoiceService {
	if sender == nil {
		sender = LogSender{}
	}
	return &InvoiceService{DB: db, Sender: sender, PublicBase: publicBase}
}

// DraftInput is everything a new draft can carry. TimeEntryIDs are claimed
// transactionally; stale ids shrink the result instead of failing it.
type DraftInput struct {
	ProjectID           uint
	TimeEntryIDs        []uint
	CatalogSelections   []CatalogSelection
	CustomItems         []CustomLineItem
	TaxRate             decimal.Decimal
	DiscountAmount      decimal.Decimal
	DiscountDescription string
	CreditAmount        decimal.Decimal
	CreditDescription   string
	IssueDate           time.Time
	Notes               string
}

// CatalogSelection references a billable item plus per-use overrides.
type CatalogSelection struct {
	BillableItemID      uint
	Quantity            decimal.Decimal
	RateOverride        *decimal.Decimal
	DescriptionOverride string
}

// DraftResult pairs the created invoice with the aggregation counts so the
// caller can surface "3 of 5 selected entries were included".
type DraftResult struct {
	Invoice *models.Invoice
	Collect *CollectResult
}

var oneHundred = decimal.NewFromInt(100)

// CreateDraft builds an invoice from the three line item sources. Line item
// writes, time entry claims, numbering and the totals recompute are atomic:
// a crash leaves either everything or nothing.
func (s *InvoiceService) CreateDraft(in DraftInput) (*DraftResult, error) {
	v := validation.Violations{}
	validation.NonNegativeDecimal("tax_rate", in.TaxRate, v)
	validation.NonNegativeDecimal("discount_amount", in.DiscountAmount, v)
	validation.NonNegativeDecimal("credit_amount", in.CreditAmount, v)
	if !v.Empty() {
		return nil, newValidationError(v)
	}

	var project models.Project
	if err := s.DB.First(&project, in.ProjectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "project"}
		}
		return nil, err
	}

	issue := in.IssueDate
	if issue.IsZero() {
		issue = time.Now().UTC().Truncate(24 * time.Hour)
	}

	res := &DraftResult{}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		settings, err := lockSettings(tx, in.ProjectID)
		if err != nil {
			return err
		}
		number := fmt.Sprintf("%s%04d", settings.InvoicePrefix, settings.NextInvoiceNumber)
		if err := tx.Model(settings).Update("next_invoice_number", settings.NextInvoiceNumber+1).Error; err != nil {
			return err
		}

		notes := in.Notes
		if notes == "" {
			notes = settings.DefaultNotes
		}
		inv := models.Invoice{
			UUID:                uuid.NewString(),
			ProjectID:           in.ProjectID,
			InvoiceNumber:       number,
			Status:              models.InvoiceStatusDraft,
			BillingName:         project.BillingName,
			BillingEmail:        project.BillingEmail,
			BillingAddress:      project.Address,
			TaxRate:             in.TaxRate,
			DiscountAmount:      in.DiscountAmount,
			DiscountDescription: in.DiscountDescription,
			CreditAmount:        in.CreditAmount,
			CreditDescription:   in.CreditDescription,
			IssueDate:           issue,
			Notes:               notes,
		}
		if err := tx.Create(&inv).Error; err != nil {
			return err
		}

		collect, err := CollectUnbilled(tx, in.ProjectID, in.TimeEntryIDs, issue)
		if err != nil {
			return err
		}
		res.Collect = collect
		for _, group := range collect.Groups {
			if err := createTimeLineItem(tx, inv.ID, group); err != nil {
				return err
			}
		}

		for _, sel := range in.CatalogSelections {
			var item models.BillableItem
			if err := tx.Where("id = ? AND project_id = ?", sel.BillableItemID, in.ProjectID).First(&item).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return &NotFoundError{Resource: "billable item"}
				}
				return err
			}
			li := CatalogLineItem{Item: item, Quantity: sel.Quantity, RateOverride: sel.RateOverride, DescriptionOverride: sel.DescriptionOverride}
			if err := li.Validate(); err != nil {
				return err
			}
			row := li.ToModel()
			row.InvoiceID = inv.ID
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}

		for _, ci := range in.CustomItems {
			if err := ci.Validate(); err != nil {
				return err
			}
			row := ci.ToModel()
			row.InvoiceID = inv.ID
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}

		if err := recalculateTx(tx, &inv); err != nil {
			return err
		}
		res.Invoice = &inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// createTimeLineItem persists one group and claims its entries. The claim
// update keeps the NULL filter so a row grabbed by a concurrent committer in
// the meantime fails the whole transaction instead of double-billing.
func createTimeLineItem(tx *gorm.DB, invoiceID uint, group TimeGroup) error {
	li := TimeLineItem{Group: group}
	if err := li.Validate(); err != nil {
		return err
	}
	row := li.ToModel()
	row.InvoiceID = invoiceID
	if err := tx.Create(&row).Error; err != nil {
		return err
	}
	claim := tx.Model(&models.TimeEntry{}).
		Where("id IN ? AND invoice_line_item_id IS NULL", group.EntryIDs).
		Update("invoice_line_item_id", row.ID)
	if claim.Error != nil {
		return claim.Error
	}
	if claim.RowsAffected != int64(len(group.EntryIDs)) {
		return &StateConflictError{Reason: "time entries were claimed by a concurrent invoice"}
	}
	return nil
}

// AddLineItems appends items to a draft. Time entries come in as ids and are
// re-aggregated and claimed; catalog/custom items as explicit specs.
func (s *InvoiceService) AddLineItems(invoiceID uint, entryIDs []uint, selections []CatalogSelection, custom []CustomLineItem) (*DraftResult, error) {
	res := &DraftResult{}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		inv, err := getInvoiceTx(tx, invoiceID)
		if err != nil {
			return err
		}
		if !inv.Editable() {
			return &StateConflictError{Reason: "invoice is not editable in status " + string(inv.Status)}
		}

		collect, err := CollectUnbilled(tx, inv.ProjectID, entryIDs, inv.IssueDate)
		if err != nil {
			return err
		}
		res.Collect = collect
		for _, group := range collect.Groups {
			if err := createTimeLineItem(tx, inv.ID, group); err != nil {
				return err
			}
		}
		for _, sel := range selections {
			var item models.BillableItem
			if err := tx.Where("id = ? AND project_id = ?", sel.BillableItemID, inv.ProjectID).First(&item).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return &NotFoundError{Resource: "billable item"}
				}
				return err
			}
			li := CatalogLineItem{Item: item, Quantity: sel.Quantity, RateOverride: sel.RateOverride, DescriptionOverride: sel.DescriptionOverride}
			if err := li.Validate(); err != nil {
				return err
			}
			row := li.ToModel()
			row.InvoiceID = inv.ID
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		for _, ci := range custom {
			if err := ci.Validate(); err != nil {
				return err
			}
			row := ci.ToModel()
			row.InvoiceID = inv.ID
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		if err := recalculateTx(tx, inv); err != nil {
			return err
		}
		res.Invoice = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RemoveLineItem deletes one line from a draft. For time lines the claimed
// entries are released back to available, never deleted.
func (s *InvoiceService) RemoveLineItem(invoiceID, lineItemID uint) (*models.Invoice, error) {
	var out *models.Invoice
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		inv, err := getInvoiceTx(tx, invoiceID)
		if err != nil {
			return err
		}
		if !inv.Editable() {
			return &StateConflictError{Reason: "invoice is not editable in status " + string(inv.Status)}
		}
		var li models.InvoiceLineItem
		if err := tx.Where("id = ? AND invoice_id = ?", lineItemID, invoiceID).First(&li).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "line item"}
			}
			return err
		}
		if li.Type == models.LineItemTypeTime {
			if err := releaseEntries(tx, []uint{li.ID}); err != nil {
				return err
			}
		}
		if err := tx.Delete(&li).Error; err != nil {
			return err
		}
		if err := recalculateTx(tx, inv); err != nil {
			return err
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DraftPatch carries the draft-only mutable fields. Nil means unchanged.
type DraftPatch struct {
	TaxRate             *decimal.Decimal
	DiscountAmount      *decimal.Decimal
	DiscountDescription *string
	CreditAmount        *decimal.Decimal
	CreditDescription   *string
	IssueDate           *time.Time
	DueDate             *time.Time
	Notes               *string
	BillingName         *string
	BillingEmail        *string
	BillingAddress      *string
}

// UpdateDraft edits discount/credit/tax/dates on a draft and recomputes.
func (s *InvoiceService) UpdateDraft(invoiceID uint, patch DraftPatch) (*models.Invoice, error) {
	v := validation.Violations{}
	if patch.TaxRate != nil {
		validation.NonNegativeDecimal("tax_rate", *patch.TaxRate, v)
	}
	if patch.DiscountAmount != nil {
		validation.NonNegativeDecimal("discount_amount", *patch.DiscountAmount, v)
	}
	if patch.CreditAmount != nil {
		validation.NonNegativeDecimal("credit_amount", *patch.CreditAmount, v)
	}
	if !v.Empty() {
		return nil, newValidationError(v)
	}
	var out *models.Invoice
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		inv, err := getInvoiceTx(tx, invoiceID)
		if err != nil {
			return err
		}
		if !inv.Editable() {
			return &StateConflictError{Reason: "invoice is not editable in status " + string(inv.Status)}
		}
		updates := map[string]any{}
		if patch.TaxRate != nil {
			updates["tax_rate"] = *patch.TaxRate
			inv.TaxRate = *patch.TaxRate
		}
		if patch.DiscountAmount != nil {
			updates["discount_amount"] = *patch.DiscountAmount
			inv.DiscountAmount = *patch.DiscountAmount
		}
		if patch.DiscountDescription != nil {
			updates["discount_description"] = *patch.DiscountDescription
		}
		if patch.CreditAmount != nil {
			updates["credit_amount"] = *patch.CreditAmount
			inv.CreditAmount = *patch.CreditAmount
		}
		if patch.CreditDescription != nil {
			updates["credit_description"] = *patch.CreditDescription
		}
		if patch.IssueDate != nil {
			updates["issue_date"] = *patch.IssueDate
		}
		if patch.DueDate != nil {
			updates["due_date"] = *patch.DueDate
		}
		if patch.Notes != nil {
			updates["notes"] = *patch.Notes
		}
		if patch.BillingName != nil {
			updates["billing_name"] = *patch.BillingName
		}
		if patch.BillingEmail != nil {
			updates["billing_email"] = *patch.BillingEmail
			inv.BillingEmail = *patch.BillingEmail
		}
		if patch.BillingAddress != nil {
			updates["billing_address"] = *patch.BillingAddress
		}
		if len(updates) > 0 {
			if err := tx.Model(inv).Updates(updates).Error; err != nil {
				return err
			}
		}
		if err := recalculateTx(tx, inv); err != nil {
			return err
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteDraft removes a draft entirely, releasing claimed entries first.
// Non-drafts are voided, never deleted. A draft carrying a live payment is
// partial/paid and therefore rejected here; ledger rows left behind by
// reversed payments are removed with the draft so nothing dangles.
func (s *InvoiceService) DeleteDraft(invoiceID uint) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		inv, err := getInvoiceTx(tx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != models.InvoiceStatusDraft {
			return &StateConflictError{Reason: "only draft invoices can be deleted"}
		}
		if err := releaseInvoiceEntries(tx, inv.ID); err != nil {
			return err
		}
		if err := tx.Where("invoice_id = ?", inv.ID).Delete(&models.InvoiceLineItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("invoice_id = ?", inv.ID).Delete(&models.InvoicePayment{}).Error; err != nil {
			return err
		}
		return tx.Delete(inv).Error
	})
}

// Send transitions draft to sent (or re-delivers for sent/partial/overdue).
// The billing email must resolve from the invoice snapshot or the project;
// due date falls out of the project payment terms when absent.
func (s *InvoiceService) Send(ctx context.Context, invoiceID uint) (*models.Invoice, error) {
	var out *models.Invoice
	var deliverable Deliverable
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		inv, err := getInvoiceTx(tx, invoiceID)
		if err != nil {
			return err
		}
		if !inv.Sendable() {
			return &StateConflictError{Reason: "invoice cannot be sent in status " + string(inv.Status)}
		}
		email := inv.BillingEmail
		if email == "" {
			var project models.Project
			if err := tx.First(&project, inv.ProjectID).Error; err != nil {
				return err
			}
			email = project.BillingEmail
		}
		if email == "" {
			return newValidationError(validation.Violations{"billing_email": "unresolvable"})
		}
		now := time.Now().UTC()
		updates := map[string]any{"billing_email": email, "sent_at": now}
		if inv.DueDate == nil {
			settings, err := lockSettings(tx, inv.ProjectID)
			if err != nil {
				return err
			}
			due := inv.IssueDate.AddDate(0, 0, settings.PaymentTermsDays)
			updates["due_date"] = due
			inv.DueDate = &due
		}
		if inv.Status == models.InvoiceStatusDraft {
			updates["status"] = models.InvoiceStatusSent
			inv.Status = models.InvoiceStatusSent
		}
		if err := tx.Model(inv).Updates(updates).Error; err != nil {
			return err
		}
		inv.BillingEmail = email
		inv.SentAt = &now
		deliverable = Deliverable{
			RecipientEmail: email,
			PublicURL:      fmt.Sprintf("%s/public/invoices?uuid=%s", s.PublicBase, inv.UUID),
			InvoiceNumber:  inv.InvoiceNumber,
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.Renderer != nil {
		if pdf, rerr := s.Renderer.Render(out.ID); rerr == nil {
			deliverable.PDFBytes = pdf
		}
	}
	if err := s.Sender.Send(ctx, deliverable); err != nil {
		return nil, fmt.Errorf("deliver invoice %s: %w", out.InvoiceNumber, err)
	}
	return out, nil
}

// Void retires a sent/partial/overdue invoice. Rejected while any non-deleted
// payment exists; claimed entries go back to available, exactly as on line
// item deletion. Void is terminal.
func (s *InvoiceService) Void(invoiceID uint) (*models.Invoice, error) {
	var out *models.Invoice
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		inv, err := getInvoiceTx(tx, invoiceID)
		if err != nil {
			return err
		}
		if !inv.Voidable() {
			return &StateConflictError{Reason: "invoice cannot be voided in status " + string(inv.Status)}
		}
		var livePayments int64
		if err := tx.Model(&models.InvoicePayment{}).
			Where("invoice_id = ? AND deleted_at IS NULL", inv.ID).
			Count(&livePayments).Error; err != nil {
			return err
		}
		if livePayments > 0 {
			return &StateConflictError{Reason: "invoice has recorded payments; delete them before voiding"}
		}
		if err := releaseInvoiceEntries(tx, inv.ID); err != nil {
			return err
		}
		if err := tx.Model(inv).Update("status", models.InvoiceStatusVoid).Error; err != nil {
			return err
		}
		inv.Status = models.InvoiceStatusVoid
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Recalculate rederives every monetary field from persisted line items and
// payments. Calling it twice in a row is a no-op; the invoice is always
// reproducible from its rows.
func (s *InvoiceService) Recalculate(invoiceID uint) (*models.Invoice, error) {
	var out *models.Invoice
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		inv, err := getInvoiceTx(tx, invoiceID)
		if err != nil {
			return err
		}
		if err := recalculateTx(tx, inv); err != nil {
			return err
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkOverdueSweep flags sent/partial invoices past their due date. Invoked
// by the surrounding application's scheduler; this core never runs timers.
func (s *InvoiceService) MarkOverdueSweep(now time.Time) (int64, error) {
	res := s.DB.Model(&models.Invoice{}).
		Where("status IN ?", []models.InvoiceStatus{models.InvoiceStatusSent, models.InvoiceStatusPartial}).
		Where("due_date IS NOT NULL AND due_date < ?", now).
		Update("status", models.InvoiceStatusOverdue)
	return res.RowsAffected, res.Error
}

// Get loads an invoice with line items and payments.
func (s *InvoiceService) Get(invoiceID uint) (*models.Invoice, error) {
	var inv models.Invoice
	err := s.DB.Preload("LineItems").Preload("Payments").First(&inv, invoiceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Resource: "invoice"}
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// GetByUUID serves the public, unguessable link.
func (s *InvoiceService) GetByUUID(publicID string) (*models.Invoice, error) {
	var inv models.Invoice
	err := s.DB.Preload("LineItems").Preload("Payments").Where("uuid = ?", publicID).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Resource: "invoice"}
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// List returns a project's invoices, newest first.
func (s *InvoiceService) List(projectID uint, status *models.InvoiceStatus, limit, offset int) ([]models.Invoice, int64, error) {
	q := s.DB.Model(&models.Invoice{}).Where("project_id = ?", projectID)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var invs []models.Invoice
	if err := q.Order("id desc").Limit(limit).Offset(offset).Find(&invs).Error; err != nil {
		return nil, 0, err
	}
	return invs, total, nil
}

// recalculateTx fully overwrites the invoice's stored monetary fields from
// its current line items and non-deleted payments. Formula order: subtotal,
// discount before tax, tax rounded to 2 places, credit after tax, total
// floored at zero, then the paid sum.
func recalculateTx(tx *gorm.DB, inv *models.Invoice) error {
	var items []models.InvoiceLineItem
	if err := tx.Where("invoice_id = ?", inv.ID).Find(&items).Error; err != nil {
		return err
	}
	subtotal := decimal.Zero
	for i := range items {
		subtotal = subtotal.Add(items[i].Amount())
	}
	taxableBase := subtotal.Sub(inv.DiscountAmount)
	if taxableBase.IsNegative() {
		taxableBase = decimal.Zero
	}
	taxAmount := taxableBase.Mul(inv.TaxRate).Div(oneHundred).Round(2)
	total := taxableBase.Add(taxAmount).Sub(inv.CreditAmount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	var payments []models.InvoicePayment
	if err := tx.Where("invoice_id = ? AND deleted_at IS NULL", inv.ID).Find(&payments).Error; err != nil {
		return err
	}
	paid := decimal.Zero
	for i := range payments {
		paid = paid.Add(payments[i].Amount)
	}

	inv.Subtotal = subtotal
	inv.TaxAmount = taxAmount
	inv.Total = total
	inv.PaidAmount = paid
	return tx.Model(inv).Updates(map[string]any{
		"subtotal":    subtotal,
		"tax_amount":  taxAmount,
		"total":       total,
		"paid_amount": paid,
	}).Error
}

// paymentStatus derives the post-payment-change status. The terminal void is
// never touched. A payment moves any other invoice to partial/paid, drafts
// included; a fully paid draft stops being editable or deletable through the
// usual status checks. Removing the last payment reverts toward sent when the
// invoice went out, or back to draft when it never did.
func paymentStatus(inv *models.Invoice) models.InvoiceStatus {
	if inv.Status == models.InvoiceStatusVoid {
		return inv.Status
	}
	switch {
	case inv.PaidAmount.IsZero():
		if inv.SentAt == nil {
			return models.InvoiceStatusDraft
		}
		return models.InvoiceStatusSent
	case inv.PaidAmount.GreaterThanOrEqual(inv.Total):
		return models.InvoiceStatusPaid
	default:
		return models.InvoiceStatusPartial
	}
}

func getInvoiceTx(tx *gorm.DB, invoiceID uint) (*models.Invoice, error) {
	var inv models.Invoice
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(&inv, invoiceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "invoice"}
		}
		return nil, err
	}
	return &inv, nil
}

// lockSettings loads (or creates) the per-project settings row under a row
// lock so the invoice number counter increments atomically.
func lockSettings(tx *gorm.DB, projectID uint) (*models.ProjectInvoiceSettings, error) {
	var settings models.ProjectInvoiceSettings
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where("project_id = ?", projectID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		settings = models.ProjectInvoiceSettings{ProjectID: projectID, InvoicePrefix: "INV-", NextInvoiceNumber: 1, PaymentTermsDays: 30}
		if cerr := tx.Create(&settings).Error; cerr != nil {
			return nil, cerr
		}
		return &settings, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// releaseEntries nulls the claims pointing at the given line items.
func releaseEntries(tx *gorm.DB, lineItemIDs []uint) error {
	return tx.Model(&models.TimeEntry{}).
		Where("invoice_line_item_id IN ?", lineItemIDs).
		Update("invoice_line_item_id", nil).Error
}

// releaseInvoiceEntries releases every entry claimed by any of the invoice's
// time line items.
func releaseInvoiceEntries(tx *gorm.DB, invoiceID uint) error {
	var ids []uint
	if err := tx.Model(&models.InvoiceLineItem{}).
		Where("invoice_id = ? AND type = ?", invoiceID, models.LineItemTypeTime).
		Pluck("id", &ids).Error; err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return releaseEntries(tx, ids)
}
