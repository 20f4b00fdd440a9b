package handlers

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/diewo77/helpdesk-billing/internal/httpx"
	"github.com/diewo77/helpdesk-billing/internal/models"
)

// BillableItemHandler is plain catalog CRUD; the only rule with teeth is the
// referential delete guard.
type BillableItemHandler struct {
	DB *gorm.DB
}

func NewBillableItemHandler(db *gorm.DB) *BillableItemHandler { return &BillableItemHandler{DB: db} }

// List: GET /billable-items?project_id=...
func (h *BillableItemHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := queryID(r, "project_id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "missing_project_id", nil)
		return
	}
	q := h.DB.Where("project_id = ?", projectID)
	if r.URL.Query().Get("active") == "1" {
		q = q.Where("active = ?", true)
	}
	var items []models.BillableItem
	if err := q.Order("name asc").Find(&items).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_items", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

// Create: POST /billable-items
func (h *BillableItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID   uint            `json:"project_id"`
		Name        string          `json:"name"`
		DefaultRate decimal.Decimal `json:"default_rate"`
		UnitLabel   string          `json:"unit_label"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if req.ProjectID == 0 || req.Name == "" {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"project_id": "required", "name": "required"})
		return
	}
	if req.DefaultRate.IsNegative() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"default_rate": "must_not_be_negative"})
		return
	}
	unit := req.UnitLabel
	if unit == "" {
		unit = "unit"
	}
	item := models.BillableItem{ProjectID: req.ProjectID, Name: req.Name, DefaultRate: req.DefaultRate, UnitLabel: unit, Active: true}
	if err := h.DB.Create(&item).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_create_item", nil)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

// Update: POST /billable-items/update?id=...
func (h *BillableItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r, "id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	var item models.BillableItem
	if err := h.DB.First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
			return
		}
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_load_item", nil)
		return
	}
	var req struct {
		Name        *string          `json:"name"`
		DefaultRate *decimal.Decimal `json:"default_rate"`
		UnitLabel   *string          `json:"unit_label"`
		Active      *bool            `json:"active"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	updates := map[string]any{}
	if req.Name != nil {
		if *req.Name == "" {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"name": "required"})
			return
		}
		updates["name"] = *req.Name
	}
	if req.DefaultRate != nil {
		if req.DefaultRate.IsNegative() {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"default_rate": "must_not_be_negative"})
			return
		}
		updates["default_rate"] = *req.DefaultRate
	}
	if req.UnitLabel != nil {
		updates["unit_label"] = *req.UnitLabel
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if len(updates) > 0 {
		if err := h.DB.Model(&item).Updates(updates).Error; err != nil {
			httpx.JSONError(w, http.StatusInternalServerError, "failed_to_update_item", nil)
			return
		}
	}
	httpx.JSON(w, http.StatusOK, item)
}

// Delete: POST /billable-items/delete?id=...
// Blocked while any invoice line references the item; checked here at the
// boundary rather than left to a database constraint.
func (h *BillableItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r, "id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	var item models.BillableItem
	if err := h.DB.First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
			return
		}
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_load_item", nil)
		return
	}
	var refs int64
	if err := h.DB.Model(&models.InvoiceLineItem{}).Where("billable_item_id = ?", id).Count(&refs).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_check_references", nil)
		return
	}
	if refs > 0 {
		httpx.JSONError(w, http.StatusConflict, "still_referenced", map[string]int64{"invoice_line_items": refs})
		return
	}
	if err := h.DB.Delete(&item).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_delete_item", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
