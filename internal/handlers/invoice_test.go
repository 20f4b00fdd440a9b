package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/diewo77/helpdesk-billing/internal/db"
	"github.com/diewo77/helpdesk-billing/internal/models"
	"github.com/diewo77/helpdesk-billing/internal/services"
)

func setupHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	d, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrateAll(d); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return d
}

func seedHandlerFixtures(t *testing.T, d *gorm.DB) (models.Project, []uint) {
	t.Helper()
	project := models.Project{Name: "Acme Helpdesk", BillingName: "Acme Corp", BillingEmail: "billing@acme.test", Active: true}
	if err := d.Create(&project).Error; err != nil {
		t.Fatalf("project: %v", err)
	}
	ticket := models.Ticket{ProjectID: project.ID, Subject: "VPN down"}
	if err := d.Create(&ticket).Error; err != nil {
		t.Fatalf("ticket: %v", err)
	}
	cat := models.RateCategory{Name: "Development", Slug: "development", Active: true}
	if err := d.Create(&cat).Error; err != nil {
		t.Fatalf("category: %v", err)
	}
	rate := models.ProjectRate{
		ProjectID:      project.ID,
		RateCategoryID: cat.ID,
		Rate:           decimal.NewFromInt(40),
		EffectiveFrom:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := d.Create(&rate).Error; err != nil {
		t.Fatalf("rate: %v", err)
	}
	var ids []uint
	for _, minutes := range []int{60, 60, 30} {
		e := models.TimeEntry{
			TicketID:       ticket.ID,
			UserID:         1,
			Minutes:        minutes,
			Billable:       true,
			RateCategoryID: &cat.ID,
			DateWorked:     time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		}
		if err := d.Create(&e).Error; err != nil {
			t.Fatalf("entry: %v", err)
		}
		ids = append(ids, e.ID)
	}
	return project, ids
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v\n%s", err, rec.Body.String())
	}
	return body
}

func TestInvoiceCreateEndpoint(t *testing.T) {
	d := setupHandlerDB(t)
	project, entryIDs := seedHandlerFixtures(t, d)
	svc := services.NewInvoiceService(d, nil, "http://billing.test")
	h := NewInvoiceHandler(d, svc)

	payload := fmt.Sprintf(`{
		"project_id": %d,
		"time_entry_ids": [%d, %d, %d],
		"custom_items": [{"description": "On-site visit", "quantity": "2", "rate": "25"}],
		"tax_rate": "10",
		"discount_amount": "10",
		"issue_date": "2024-03-20"
	}`, project.ID, entryIDs[0], entryIDs[1], entryIDs[2])

	req := httptest.NewRequest(http.MethodPost, "/invoices", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["invoice_number"] != "INV-0001" {
		t.Fatalf("invoice_number = %v", body["invoice_number"])
	}
	if body["status"] != "draft" {
		t.Fatalf("status = %v", body["status"])
	}
	if body["subtotal"] != "150" {
		t.Fatalf("subtotal = %v", body["subtotal"])
	}
	if body["total"] != "154" {
		t.Fatalf("total = %v", body["total"])
	}
	if body["entries_requested"] != float64(3) || body["entries_included"] != float64(3) {
		t.Fatalf("entries = %v/%v", body["entries_included"], body["entries_requested"])
	}
	items, ok := body["line_items"].([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("line_items = %v", body["line_items"])
	}
}

func TestInvoiceCreateUnknownProject(t *testing.T) {
	d := setupHandlerDB(t)
	svc := services.NewInvoiceService(d, nil, "")
	h := NewInvoiceHandler(d, svc)

	req := httptest.NewRequest(http.MethodPost, "/invoices", strings.NewReader(`{"project_id": 42}`))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["error"] != "not_found" {
		t.Fatalf("error = %v", body["error"])
	}
}

func TestInvoiceSendAndVoidEndpoints(t *testing.T) {
	d := setupHandlerDB(t)
	project, entryIDs := seedHandlerFixtures(t, d)
	svc := services.NewInvoiceService(d, nil, "http://billing.test")
	h := NewInvoiceHandler(d, svc)

	res, err := svc.CreateDraft(services.DraftInput{ProjectID: project.ID, TimeEntryIDs: entryIDs})
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/invoices/send?id=%d", res.Invoice.ID), nil)
	rec := httptest.NewRecorder()
	h.Send(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("send status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "sent" {
		t.Fatalf("status after send = %v", body["status"])
	}
	if body["due_date"] == nil {
		t.Fatal("due_date not set on send")
	}

	req = httptest.NewRequest(http.MethodPost, fmt.Sprintf("/invoices/void?id=%d", res.Invoice.ID), nil)
	rec = httptest.NewRecorder()
	h.Void(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("void status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body = decodeBody(t, rec)
	if body["status"] != "void" {
		t.Fatalf("status after void = %v", body["status"])
	}

	// entries released by the void are claimable again
	var available int64
	if err := d.Model(&models.TimeEntry{}).Where("invoice_line_item_id IS NULL").Count(&available).Error; err != nil {
		t.Fatal(err)
	}
	if available != 3 {
		t.Fatalf("available entries = %d, want 3", available)
	}
}

func TestInvoicePublicShowEndpoint(t *testing.T) {
	d := setupHandlerDB(t)
	project, _ := seedHandlerFixtures(t, d)
	svc := services.NewInvoiceService(d, nil, "")
	h := NewInvoiceHandler(d, svc)

	res, err := svc.CreateDraft(services.DraftInput{
		ProjectID:   project.ID,
		CustomItems: []services.CustomLineItem{{Description: "Retainer", Quantity: decimal.NewFromInt(1), Rate: decimal.NewFromInt(500)}},
	})
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/public/invoices?uuid="+res.Invoice.UUID, nil)
	rec := httptest.NewRecorder()
	h.PublicShow(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["uuid"] != res.Invoice.UUID {
		t.Fatalf("uuid = %v", body["uuid"])
	}

	req = httptest.NewRequest(http.MethodGet, "/public/invoices?uuid=nope", nil)
	rec = httptest.NewRecorder()
	h.PublicShow(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown uuid status = %d", rec.Code)
	}
}

func TestInvoiceUpdateConflictEndpoint(t *testing.T) {
	d := setupHandlerDB(t)
	project, _ := seedHandlerFixtures(t, d)
	svc := services.NewInvoiceService(d, nil, "")
	h := NewInvoiceHandler(d, svc)

	res, err := svc.CreateDraft(services.DraftInput{
		ProjectID:   project.ID,
		CustomItems: []services.CustomLineItem{{Description: "Setup", Quantity: decimal.NewFromInt(1), Rate: decimal.NewFromInt(100)}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Send(context.Background(), res.Invoice.ID); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/invoices/update?id=%d", res.Invoice.ID), strings.NewReader(`{"tax_rate": "20"}`))
	rec := httptest.NewRecorder()
	h.Update(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["error"] != "state_conflict" {
		t.Fatalf("error = %v", body["error"])
	}
}
