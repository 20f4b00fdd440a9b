package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/diewo77/helpdesk-billing/internal/httpx"
	"github.com/diewo77/helpdesk-billing/internal/models"
	"github.com/diewo77/helpdesk-billing/internal/services"
)

type InvoiceHandler struct {
	DB  *gorm.DB
	Svc *services.InvoiceService
}

func NewInvoiceHandler(db *gorm.DB, svc *services.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{DB: db, Svc: svc}
}

type catalogSelectionReq struct {
	BillableItemID uint             `json:"billable_item_id"`
	Quantity       decimal.Decimal  `json:"quantity"`
	Rate           *decimal.Decimal `json:"rate,omitempty"`
	Description    string           `json:"description,omitempty"`
}

type customItemReq struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
}

func toSelections(reqs []catalogSelectionReq) []services.CatalogSelection {
	out := make([]services.CatalogSelection, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, services.CatalogSelection{
			BillableItemID:      r.BillableItemID,
			Quantity:            r.Quantity,
			RateOverride:        r.Rate,
			DescriptionOverride: r.Description,
		})
	}
	return out
}

func toCustomItems(reqs []customItemReq) []services.CustomLineItem {
	out := make([]services.CustomLineItem, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, services.CustomLineItem{Description: r.Description, Quantity: r.Quantity, Rate: r.Rate})
	}
	return out
}

// invoiceJSON is the wire shape; balance_due and line amounts are derived.
func invoiceJSON(inv *models.Invoice) map[string]any {
	items := make([]map[string]any, 0, len(inv.LineItems))
	for i := range inv.LineItems {
		li := &inv.LineItems[i]
		items = append(items, map[string]any{
			"id":               li.ID,
			"type":             li.Type,
			"rate_category_id": li.RateCategoryID,
			"billable_item_id": li.BillableItemID,
			"description":      li.Description,
			"quantity":         li.Quantity,
			"rate":             li.Rate,
			"amount":           li.Amount(),
		})
	}
	payments := make([]map[string]any, 0, len(inv.Payments))
	for i := range inv.Payments {
		p := &inv.Payments[i]
		payments = append(payments, map[string]any{
			"id":               p.ID,
			"amount":           p.Amount,
			"method":           p.Method,
			"reference_number": p.ReferenceNumber,
			"payment_date":     p.PaymentDate,
			"deleted":          p.Deleted(),
			"deleted_reason":   p.DeletedReason,
		})
	}
	return map[string]any{
		"id":              inv.ID,
		"uuid":            inv.UUID,
		"project_id":      inv.ProjectID,
		"invoice_number":  inv.InvoiceNumber,
		"status":          inv.Status,
		"billing_name":    inv.BillingName,
		"billing_email":   inv.BillingEmail,
		"billing_address": inv.BillingAddress,
		"subtotal":        inv.Subtotal,
		"discount_amount": inv.DiscountAmount,
		"credit_amount":   inv.CreditAmount,
		"tax_rate":        inv.TaxRate,
		"tax_amount":      inv.TaxAmount,
		"total":           inv.Total,
		"paid_amount":     inv.PaidAmount,
		"balance_due":     inv.BalanceDue(),
		"issue_date":      inv.IssueDate,
		"due_date":        inv.DueDate,
		"sent_at":         inv.SentAt,
		"notes":           inv.Notes,
		"line_items":      items,
		"payments":        payments,
	}
}

// List: GET /invoices?project_id=...
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := queryID(r, "project_id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "missing_project_id", nil)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 1 {
			offset = (n - 1) * limit
		}
	}
	var status *models.InvoiceStatus
	if v := r.URL.Query().Get("status"); v != "" {
		st := models.InvoiceStatus(v)
		status = &st
	}
	invs, total, err := h.Svc.List(projectID, status, limit, offset)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_invoices", nil)
		return
	}
	items := make([]map[string]any, 0, len(invs))
	for i := range invs {
		items = append(items, invoiceJSON(&invs[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": total, "limit": limit, "offset": offset})
}

// Create: POST /invoices
func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID           uint                  `json:"project_id"`
		TimeEntryIDs        []uint                `json:"time_entry_ids"`
		CatalogItems        []catalogSelectionReq `json:"catalog_items"`
		CustomItems         []customItemReq       `json:"custom_items"`
		TaxRate             decimal.Decimal       `json:"tax_rate"`
		DiscountAmount      decimal.Decimal       `json:"discount_amount"`
		DiscountDescription string                `json:"discount_description"`
		CreditAmount        decimal.Decimal       `json:"credit_amount"`
		CreditDescription   string                `json:"credit_description"`
		IssueDate           string                `json:"issue_date"`
		Notes               string                `json:"notes"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if req.ProjectID == 0 {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"project_id": "required"})
		return
	}
	var issue time.Time
	if req.IssueDate != "" {
		d, err := time.Parse("2006-01-02", req.IssueDate)
		if err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"issue_date": "invalid_date"})
			return
		}
		issue = d
	}
	res, err := h.Svc.CreateDraft(services.DraftInput{
		ProjectID:           req.ProjectID,
		TimeEntryIDs:        req.TimeEntryIDs,
		CatalogSelections:   toSelections(req.CatalogItems),
		CustomItems:         toCustomItems(req.CustomItems),
		TaxRate:             req.TaxRate,
		DiscountAmount:      req.DiscountAmount,
		DiscountDescription: req.DiscountDescription,
		CreditAmount:        req.CreditAmount,
		CreditDescription:   req.CreditDescription,
		IssueDate:           issue,
		Notes:               req.Notes,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	inv, err := h.Svc.Get(res.Invoice.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	body := invoiceJSON(inv)
	body["entries_requested"] = res.Collect.Requested
	body["entries_included"] = res.Collect.Matched
	httpx.JSON(w, http.StatusCreated, body)
}

// Show: GET /invoices/show?id=...
func (h *InvoiceHandler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r, "id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	inv, err := h.Svc.Get(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceJSON(inv))
}

// PublicShow: GET /public/invoices?uuid=... (no session required)
func (h *InvoiceHandler) PublicShow(w http.ResponseWriter, r *http.Request) {
	publicID := r.URL.Query().Get("uuid")
	if publicID == "" {
		httpx.JSONError(w, http.StatusBadRequest, "missing_uuid", nil)
		return
	}
	inv, err := h.Svc.GetByUUID(publicID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceJSON(inv))
}

// Update: POST /invoices/update?id=... (draft only)
func (h *InvoiceHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r, "id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	var req struct {
		TaxRate             *decimal.Decimal `json:"tax_rate"`
		DiscountAmount      *decimal.Decimal `json:"discount_amount"`
		DiscountDescription *string          `json:"discount_description"`
		CreditAmount        *decimal.Decimal `json:"credit_amount"`
		CreditDescription   *string          `json:"credit_description"`
		IssueDate           *string          `json:"issue_date"`
		DueDate             *string          `json:"due_date"`
		Notes               *string          `json:"notes"`
		BillingName         *string          `json:"billing_name"`
		BillingEmail        *string          `json:"billing_email"`
		BillingAddress      *string          `json:"billing_address"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	patch := services.DraftPatch{
		TaxRate:             req.TaxRate,
		DiscountAmount:      req.DiscountAmount,
		DiscountDescription: req.DiscountDescription,
		CreditAmount:        req.CreditAmount,
		CreditDescription:   req.CreditDescription,
		Notes:               req.Notes,
		BillingName:         req.BillingName,
		BillingEmail:        req.BillingEmail,
		BillingAddress:      req.BillingAddress,
	}
	if req.IssueDate != nil {
		d, err := time.Parse("2006-01-02", *req.IssueDate)
		if err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"issue_date": "invalid_date"})
			return
		}
		patch.IssueDate = &d
	}
	if req.DueDate != nil {
		d, err := time.Parse("2006-01-02", *req.DueDate)
		if err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"due_date": "invalid_date"})
			return
		}
		patch.DueDate = &d
	}
	inv, err := h.Svc.UpdateDraft(id, patch)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceJSON(inv))
}

// AddItems: POST /invoices/items?id=... (draft only)
func (h *InvoiceHandler) AddItems(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r, "id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	var req struct {
		TimeEntryIDs []uint                `json:"time_entry_ids"`
		CatalogItems []catalogSelectionReq `json:"catalog_items"`
		CustomItems  []customItemReq       `json:"custom_items"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	res, err := h.Svc.AddLineItems(id, req.TimeEntryIDs, toSelections(req.CatalogItems), toCustomItems(req.CustomItems))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	inv, err := h.Svc.Get(res.Invoice.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	body := invoiceJSON(inv)
	body["entries_requested"] = res.Collect.Requested
	body["entries_included"] = res.Collect.Matched
	httpx.JSON(w, http.StatusOK, body)
}

// RemoveItem: POST /invoices/items/delete?id=...&line_item_id=...
func (h *InvoiceHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r, "id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	liID, ok := queryID(r, "line_item_id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_line_item_id", nil)
		return
	}
	if _, err := h.Svc.RemoveLineItem(id, liID); err != nil {
		writeServiceError(w, err)
		return
	}
	inv, err := h.Svc.Get(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceJSON(inv))
}

// Send: POST /invoices/send?id=...
func (h *InvoiceHandler) Send(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r, "id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	inv, err := h.Svc.Send(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceJSON(inv))
}

// Void: POST /invoices/void?id=...
func (h *InvoiceHandler) Void(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r, "id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	inv, err := h.Svc.Void(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceJSON(inv))
}

// Delete: POST /invoices/delete?id=... (draft only)
func (h *InvoiceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r, "id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	if err := h.Svc.DeleteDraft(id); err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// OverdueSweep: POST /invoices/overdue-sweep
// Called by the external scheduler; flags sent/partial invoices past due.
func (h *InvoiceHandler) OverdueSweep(w http.ResponseWriter, r *http.Request) {
	flagged, err := h.Svc.MarkOverdueSweep(time.Now().UTC())
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "sweep_failed", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"flagged": flagged})
}
