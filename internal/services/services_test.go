package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/diewo77/helpdesk-billing/internal/db"
	"github.com/diewo77/helpdesk-billing/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
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

// seedProject creates a project with a ticket, a Development category and an
// open-ended 40/h rate effective since 2024-01-01.
func seedProject(t *testing.T, d *gorm.DB) (models.Project, models.Ticket, models.RateCategory) {
	t.Helper()
	project := models.Project{Name: "Acme Helpdesk", BillingName: "Acme Corp", BillingEmail: "billing@acme.test", Active: true}
	if err := d.Create(&project).Error; err != nil {
		t.Fatalf("project: %v", err)
	}
	ticket := models.Ticket{ProjectID: project.ID, Subject: "Printer on fire"}
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
		EffectiveFrom:  date(2024, 1, 1),
	}
	if err := d.Create(&rate).Error; err != nil {
		t.Fatalf("rate: %v", err)
	}
	return project, ticket, cat
}

func seedEntry(t *testing.T, d *gorm.DB, ticketID uint, minutes int, billable bool, catID *uint) models.TimeEntry {
	t.Helper()
	e := models.TimeEntry{
		TicketID:       ticketID,
		UserID:         1,
		Minutes:        minutes,
		Billable:       billable,
		RateCategoryID: catID,
		DateWorked:     date(2024, 3, 15),
	}
	if err := d.Create(&e).Error; err != nil {
		t.Fatalf("entry: %v", err)
	}
	return e
}

func date(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func mustEqual(t *testing.T, field string, got, want decimal.Decimal) {
	t.Helper()
	if !got.Equal(want) {
		t.Fatalf("%s = %s, want %s", field, got, want)
	}
}
