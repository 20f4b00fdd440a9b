package handlers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/diewo77/helpdesk-billing/internal/auth"
	"github.com/diewo77/helpdesk-billing/internal/httpx"
	"github.com/diewo77/helpdesk-billing/internal/models"
	"github.com/diewo77/helpdesk-billing/internal/services"
)

type PaymentHandler struct {
	Svc      *services.PaymentService
	Invoices *services.InvoiceService
}

func NewPaymentHandler(svc *services.PaymentService, invoices *services.InvoiceService) *PaymentHandler {
	return &PaymentHandler{Svc: svc, Invoices: invoices}
}

// List: GET /invoices/payments?id=... (ledger incl. soft-deleted rows)
func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r, "id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	if _, err := h.Invoices.Get(id); err != nil {
		writeServiceError(w, err)
		return
	}
	payments, err := h.Svc.List(id)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_payments", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": payments, "total": len(payments)})
}

// Record: POST /invoices/payments?id=...
func (h *PaymentHandler) Record(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r, "id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	var req struct {
		Amount          decimal.Decimal `json:"amount"`
		Method          string          `json:"method"`
		ReferenceNumber string          `json:"reference_number"`
		PaymentDate     string          `json:"payment_date"`
		Notes           string          `json:"notes"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	var date time.Time
	if req.PaymentDate != "" {
		d, err := time.Parse("2006-01-02", req.PaymentDate)
		if err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"payment_date": "invalid_date"})
			return
		}
		date = d
	}
	payment, err := h.Svc.Record(services.PaymentInput{
		InvoiceID:       id,
		Amount:          req.Amount,
		Method:          models.PaymentMethod(req.Method),
		ReferenceNumber: req.ReferenceNumber,
		PaymentDate:     date,
		Notes:           req.Notes,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	inv, err := h.Invoices.Get(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"payment": payment,
		"invoice": invoiceJSON(inv),
	})
}

// Delete: POST /invoices/payments/delete?id=...&payment_id=...
// Soft delete; the reason is mandatory and the actor comes from the session.
func (h *PaymentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r, "id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	paymentID, ok := queryID(r, "payment_id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_payment_id", nil)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	actorID, _ := auth.UserIDFromContext(r.Context())
	if err := h.Svc.SoftDelete(id, paymentID, req.Reason, actorID); err != nil {
		writeServiceError(w, err)
		return
	}
	inv, err := h.Invoices.Get(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceJSON(inv))
}
