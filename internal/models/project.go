package models

import "time"

// Project is the billing scope. Ticket workflow lives in the helpdesk app;
// only the fields invoicing reads are modelled here.
type Project struct {
	ID           uint   `gorm:"primaryKey"`
	Name         string `gorm:"not null;index"`
	BillingName  string
	BillingEmail string
	Address      string
	Active       bool `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Ticket struct {
	ID        uint `gorm:"primaryKey"`
	ProjectID uint `gorm:"not null;index"`
	Subject   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProjectInvoiceSettings holds the per-project numbering counter and terms.
// NextInvoiceNumber only ever moves forward, even when invoices are voided.
type ProjectInvoiceSettings struct {
	ID                uint   `gorm:"primaryKey"`
	ProjectID         uint   `gorm:"not null;uniqueIndex"`
	InvoicePrefix     string `gorm:"not null;default:'INV-'"`
	NextInvoiceNumber int    `gorm:"not null;default:1"`
	PaymentTermsDays  int    `gorm:"not null;default:30"`
	DefaultNotes      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
