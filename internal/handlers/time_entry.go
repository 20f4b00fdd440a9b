package handlers

import (
	"net/http"

	"gorm.io/gorm"

	"github.com/diewo77/helpdesk-billing/internal/httpx"
	"github.com/diewo77/helpdesk-billing/internal/models"
)

// TimeEntryHandler exposes the read side the invoice editor needs. Entries
// themselves are written by the ticketing subsystem.
type TimeEntryHandler struct {
	DB *gorm.DB
}

func NewTimeEntryHandler(db *gorm.DB) *TimeEntryHandler { return &TimeEntryHandler{DB: db} }

// ListUnbilled: GET /time-entries/unbilled?project_id=...
// Billable entries not yet claimed by a line item, oldest first.
func (h *TimeEntryHandler) ListUnbilled(w http.ResponseWriter, r *http.Request) {
	projectID, ok := queryID(r, "project_id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "missing_project_id", nil)
		return
	}
	var entries []models.TimeEntry
	err := h.DB.
		Joins("JOIN tickets ON tickets.id = time_entries.ticket_id").
		Where("tickets.project_id = ?", projectID).
		Where("time_entries.billable = ?", true).
		Where("time_entries.invoice_line_item_id IS NULL").
		Order("time_entries.date_worked asc, time_entries.id asc").
		Find(&entries).Error
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_entries", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": entries, "total": len(entries)})
}
