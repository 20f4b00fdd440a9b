package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillableItem is a project-scoped catalog entry (e.g. "Server setup").
// Rate and description may be overridden per invoice line.
type BillableItem struct {
	ID          uint            `gorm:"primaryKey"`
	ProjectID   uint            `gorm:"not null;index"`
	Name        string          `gorm:"not null"`
	DefaultRate decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	UnitLabel   string          `gorm:"not null;default:'unit'"`
	Active      bool            `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
