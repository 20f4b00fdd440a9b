package services

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Deliverable is the value object handed to the notification collaborator on
// send/resend. Email composition and PDF rendering live outside this core.
type Deliverable struct {
	RecipientEmail string
	PublicURL      string
	InvoiceNumber  string
	PDFBytes       []byte
}

// Sender delivers an invoice to its recipient. The production implementation
// is the mailer of the surrounding application.
type Sender interface {
	Send(ctx context.Context, d Deliverable) error
}

// Renderer produces the PDF for a deliverable. Optional; invoices go out
// without an attachment when no renderer is wired.
type Renderer interface {
	Render(invoiceID uint) ([]byte, error)
}

// LogSender is the default: it records the handoff and succeeds. Useful in
// development and tests.
type LogSender struct{}

func (LogSender) Send(_ context.Context, d Deliverable) error {
	log.Info().
		Str("recipient", d.RecipientEmail).
		Str("invoice_number", d.InvoiceNumber).
		Str("public_url", d.PublicURL).
		Msg("invoice deliverable handed off")
	return nil
}
