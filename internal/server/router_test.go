package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/diewo77/helpdesk-billing/internal/config"
	"github.com/diewo77/helpdesk-billing/internal/db"
	"github.com/diewo77/helpdesk-billing/internal/models"
	"github.com/diewo77/helpdesk-billing/internal/services"
)

func setupServer(t *testing.T) (http.Handler, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	d, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrateAll(d); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	h := New(d, config.Config{Port: "0", Env: "test"}, services.LogSender{})
	return h, d
}

func TestHealthEndpoints(t *testing.T) {
	h, _ := setupServer(t)

	for _, path := range []string{"/health", "/healthz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s = %d, want 200", path, rec.Code)
		}
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	h, _ := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/invoices?project_id=1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated /invoices = %d, want 401", rec.Code)
	}
}

func TestLoginThenListInvoices(t *testing.T) {
	h, d := setupServer(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2!"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	user := models.User{Email: "ops@acme.test", Password: string(hash), Name: "Ops"}
	if err := d.Create(&user).Error; err != nil {
		t.Fatal(err)
	}
	project := models.Project{Name: "Acme", Active: true}
	if err := d.Create(&project).Error; err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"ops@acme.test","password":"hunter2!"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d, body = %s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("login set no session cookie")
	}

	req = httptest.NewRequest(http.MethodGet, fmt.Sprintf("/invoices?project_id=%d", project.ID), nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated /invoices = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestPublicInvoiceRouteIsOpen(t *testing.T) {
	h, d := setupServer(t)

	project := models.Project{Name: "Acme", BillingEmail: "b@acme.test", Active: true}
	if err := d.Create(&project).Error; err != nil {
		t.Fatal(err)
	}
	svc := services.NewInvoiceService(d, nil, "")
	res, err := svc.CreateDraft(services.DraftInput{ProjectID: project.ID})
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/public/invoices?uuid="+res.Invoice.UUID, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("public invoice = %d, want 200", rec.Code)
	}
}
