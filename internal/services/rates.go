package services

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/diewo77/helpdesk-billing/internal/models"
	"github.com/diewo77/helpdesk-billing/internal/validation"
)

// RateService resolves date-scoped hourly rates and manages rate categories.
type RateService struct {
	DB *gorm.DB
}

func NewRateService(db *gorm.DB) *RateService { return &RateService{DB: db} }

// EffectiveRate returns the hourly rate for (project, category) on the given
// day, or nil when none is configured. Callers must treat nil as "bill at 0"
// only as an explicit policy, never silently.
//
// Among covering rows the latest effective_from wins; id desc is the
// documented tie-break when manual edits leave overlapping rows.
func (s *RateService) EffectiveRate(projectID, categoryID uint, on time.Time) (*decimal.Decimal, error) {
	var pr models.ProjectRate
	err := s.DB.
		Where("project_id = ? AND rate_category_id = ?", projectID, categoryID).
		Where("effective_from <= ?", on).
		Where("effective_to IS NULL OR effective_to >= ?", on).
		Order("effective_from DESC, id DESC").
		First(&pr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rate := pr.Rate
	return &rate, nil
}

// SetProjectRate records a new rate. An existing open-ended row for the same
// (project, category) is closed at the day before the new effective_from, so
// at most one open-ended row survives. Explicit finite ranges are not checked
// against each other; that matches the application this engine came out of.
func (s *RateService) SetProjectRate(projectID, categoryID uint, rate decimal.Decimal, from time.Time, to *time.Time) (*models.ProjectRate, error) {
	v := validation.Violations{}
	validation.NonNegativeDecimal("rate", rate, v)
	if from.IsZero() {
		v["effective_from"] = "required"
	}
	if to != nil && to.Before(from) {
		v["effective_to"] = "before_effective_from"
	}
	if !v.Empty() {
		return nil, newValidationError(v)
	}

	var cat models.RateCategory
	if err := s.DB.First(&cat, categoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "rate category"}
		}
		return nil, err
	}

	pr := models.ProjectRate{
		ProjectID:      projectID,
		RateCategoryID: categoryID,
		Rate:           rate,
		EffectiveFrom:  from,
		EffectiveTo:    to,
	}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var open models.ProjectRate
		err := tx.
			Where("project_id = ? AND rate_category_id = ? AND effective_to IS NULL", projectID, categoryID).
			First(&open).Error
		switch {
		case err == nil:
			closeAt := from.AddDate(0, 0, -1)
			if updErr := tx.Model(&open).Update("effective_to", closeAt).Error; updErr != nil {
				return updErr
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// nothing to close
		default:
			return err
		}
		return tx.Create(&pr).Error
	})
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

// ListProjectRates returns all rate rows for a project, newest scope first.
func (s *RateService) ListProjectRates(projectID uint) ([]models.ProjectRate, error) {
	var rates []models.ProjectRate
	err := s.DB.
		Where("project_id = ?", projectID).
		Order("rate_category_id asc, effective_from desc").
		Find(&rates).Error
	return rates, err
}

// CreateCategory adds a rate category; slug must be unique.
func (s *RateService) CreateCategory(name, slug string, defaultRate *decimal.Decimal, displayOrder int) (*models.RateCategory, error) {
	v := validation.Violations{}
	validation.Required("name", name, v)
	validation.Required("slug", slug, v)
	if defaultRate != nil {
		validation.NonNegativeDecimal("default_rate", *defaultRate, v)
	}
	if !v.Empty() {
		return nil, newValidationError(v)
	}
	var count int64
	if err := s.DB.Model(&models.RateCategory{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, newValidationError(validation.Violations{"slug": "already_exists"})
	}
	rc := models.RateCategory{Name: name, Slug: slug, DefaultRate: defaultRate, Active: true, DisplayOrder: displayOrder}
	if err := s.DB.Create(&rc).Error; err != nil {
		return nil, err
	}
	return &rc, nil
}

// UpdateCategory patches mutable fields. The slug stays fixed once created.
func (s *RateService) UpdateCategory(id uint, name *string, defaultRate *decimal.Decimal, active *bool, displayOrder *int) (*models.RateCategory, error) {
	var rc models.RateCategory
	if err := s.DB.First(&rc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "rate category"}
		}
		return nil, err
	}
	updates := map[string]any{}
	if name != nil {
		if *name == "" {
			return nil, newValidationError(validation.Violations{"name": "required"})
		}
		updates["name"] = *name
	}
	if defaultRate != nil {
		if defaultRate.IsNegative() {
			return nil, newValidationError(validation.Violations{"default_rate": "must_not_be_negative"})
		}
		updates["default_rate"] = *defaultRate
	}
	if active != nil {
		updates["active"] = *active
	}
	if displayOrder != nil {
		updates["display_order"] = *displayOrder
	}
	if len(updates) == 0 {
		return &rc, nil
	}
	if err := s.DB.Model(&rc).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &rc, nil
}

// DeleteCategory refuses while any time entry or project rate references the
// category. Soft guard at the boundary, not a cascade.
func (s *RateService) DeleteCategory(id uint) error {
	var rc models.RateCategory
	if err := s.DB.First(&rc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Resource: "rate category"}
		}
		return err
	}
	var entryCount, rateCount int64
	if err := s.DB.Model(&models.TimeEntry{}).Where("rate_category_id = ?", id).Count(&entryCount).Error; err != nil {
		return err
	}
	if err := s.DB.Model(&models.ProjectRate{}).Where("rate_category_id = ?", id).Count(&rateCount).Error; err != nil {
		return err
	}
	if entryCount > 0 || rateCount > 0 {
		return &ReferentialIntegrityError{Reason: "rate category is still referenced"}
	}
	return s.DB.Delete(&rc).Error
}

// ListCategories returns categories in display order.
func (s *RateService) ListCategories(activeOnly bool) ([]models.RateCategory, error) {
	q := s.DB.Order("display_order asc, id asc")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var cats []models.RateCategory
	err := q.Find(&cats).Error
	return cats, err
}
