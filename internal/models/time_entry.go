package models

import "time"

// TimeEntry is logged against a helpdesk ticket. InvoiceLineItemID is the
// claim: once set, the entry is billed and the aggregator must skip it.
type TimeEntry struct {
	ID                uint      `gorm:"primaryKey"`
	TicketID          uint      `gorm:"not null;index"`
	UserID            uint      `gorm:"not null;index"`
	Minutes           int       `gorm:"not null"` // >= 0
	Billable          bool      `gorm:"not null;default:false"`
	RateCategoryID    *uint     `gorm:"index"` // nil = miscellaneous/uncategorized
	DateWorked        time.Time `gorm:"not null"`
	InvoiceLineItemID *uint     `gorm:"index"`
	Notes             string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Available reports whether the entry can still be pulled onto an invoice.
func (e *TimeEntry) Available() bool {
	return e.Billable && e.InvoiceLineItemID == nil
}
