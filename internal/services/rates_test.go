package services

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/diewo77/helpdesk-billing/internal/models"
)

func TestEffectiveRateBoundary(t *testing.T) {
	d := setupTestDB(t)
	project, _, cat := seedProject(t, d)
	svc := NewRateService(d)

	// Replace the seed rate with a bounded 50 followed by an open-ended 60.
	if err := d.Where("project_id = ?", project.ID).Delete(&models.ProjectRate{}).Error; err != nil {
		t.Fatalf("reset rates: %v", err)
	}
	until := date(2024, 6, 30)
	first := models.ProjectRate{ProjectID: project.ID, RateCategoryID: cat.ID, Rate: decimal.NewFromInt(50), EffectiveFrom: date(2024, 1, 1), EffectiveTo: &until}
	second := models.ProjectRate{ProjectID: project.ID, RateCategoryID: cat.ID, Rate: decimal.NewFromInt(60), EffectiveFrom: date(2024, 7, 1)}
	if err := d.Create(&first).Error; err != nil {
		t.Fatal(err)
	}
	if err := d.Create(&second).Error; err != nil {
		t.Fatal(err)
	}

	got, err := svc.EffectiveRate(project.ID, cat.ID, date(2024, 6, 30))
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !got.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("rate on 2024-06-30 = %v, want 50", got)
	}
	got, err = svc.EffectiveRate(project.ID, cat.ID, date(2024, 7, 1))
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !got.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("rate on 2024-07-01 = %v, want 60", got)
	}
	got, err = svc.EffectiveRate(project.ID, cat.ID, date(2023, 12, 31))
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("rate before any effective_from = %v, want nil", got)
	}
}

func TestEffectiveRateLatestWins(t *testing.T) {
	d := setupTestDB(t)
	project, _, cat := seedProject(t, d)
	svc := NewRateService(d)

	// A newer row with a later effective_from shadows the seed 40.
	newer := models.ProjectRate{ProjectID: project.ID, RateCategoryID: cat.ID, Rate: decimal.NewFromInt(75), EffectiveFrom: date(2024, 3, 1)}
	if err := d.Create(&newer).Error; err != nil {
		t.Fatal(err)
	}

	got, err := svc.EffectiveRate(project.ID, cat.ID, date(2024, 3, 15))
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !got.Equal(decimal.NewFromInt(75)) {
		t.Fatalf("rate = %v, want 75", got)
	}
	got, err = svc.EffectiveRate(project.ID, cat.ID, date(2024, 2, 1))
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !got.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("rate before newer row = %v, want 40", got)
	}
}

func TestSetProjectRateClosesOpenEnded(t *testing.T) {
	d := setupTestDB(t)
	project, _, cat := seedProject(t, d)
	svc := NewRateService(d)

	_, err := svc.SetProjectRate(project.ID, cat.ID, decimal.NewFromInt(55), date(2024, 5, 1), nil)
	if err != nil {
		t.Fatal(err)
	}

	var rates []models.ProjectRate
	if err := d.Where("project_id = ?", project.ID).Order("effective_from").Find(&rates).Error; err != nil {
		t.Fatal(err)
	}
	if len(rates) != 2 {
		t.Fatalf("rates = %d, want 2", len(rates))
	}
	if rates[0].EffectiveTo == nil {
		t.Fatal("prior open-ended rate was not closed")
	}
	wantTo := date(2024, 4, 30)
	if !rates[0].EffectiveTo.Equal(wantTo) {
		t.Fatalf("prior rate closed at %s, want %s", rates[0].EffectiveTo, wantTo)
	}

	got, err := svc.EffectiveRate(project.ID, cat.ID, date(2024, 4, 30))
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !got.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("rate on last day of old window = %v, want 40", got)
	}
	got, err = svc.EffectiveRate(project.ID, cat.ID, date(2024, 5, 1))
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !got.Equal(decimal.NewFromInt(55)) {
		t.Fatalf("rate on new window start = %v, want 55", got)
	}
}

func TestDeleteCategoryReferenced(t *testing.T) {
	d := setupTestDB(t)
	_, ticket, cat := seedProject(t, d)
	svc := NewRateService(d)

	seedEntry(t, d, ticket.ID, 60, true, &cat.ID)

	err := svc.DeleteCategory(cat.ID)
	if !IsReferentialIntegrity(err) {
		t.Fatalf("delete referenced category: %v, want referential integrity error", err)
	}

	fresh, err := svc.CreateCategory("Design", "design", nil, 5)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteCategory(fresh.ID); err != nil {
		t.Fatalf("delete unreferenced category: %v", err)
	}
}
