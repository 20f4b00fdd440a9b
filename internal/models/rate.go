package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rate categories & project rates
type RateCategory struct {
	ID           uint             `gorm:"primaryKey"`
	Name         string           `gorm:"not null"`
	Slug         string           `gorm:"not null;uniqueIndex"`
	DefaultRate  *decimal.Decimal `gorm:"type:numeric(12,2)"`
	Active       bool             `gorm:"not null;default:true"`
	DisplayOrder int              `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProjectRate is a date-scoped hourly rate for (project, category).
// EffectiveTo = nil means open-ended; at most one open-ended row may exist
// per (project, category); enforced when a new one is opened, see services.
type ProjectRate struct {
	ID             uint            `gorm:"primaryKey"`
	ProjectID      uint            `gorm:"not null;index:idx_project_rates_scope"`
	RateCategoryID uint            `gorm:"not null;index:idx_project_rates_scope"`
	Rate           decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	EffectiveFrom  time.Time       `gorm:"not null"`
	EffectiveTo    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Covers reports whether the rate range contains the given day.
// Dates are compared at day precision; callers pass midnight UTC.
func (pr *ProjectRate) Covers(on time.Time) bool {
	if pr.EffectiveFrom.After(on) {
		return false
	}
	return pr.EffectiveTo == nil || !pr.EffectiveTo.Before(on)
}
