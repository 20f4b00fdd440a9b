package handlers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/diewo77/helpdesk-billing/internal/httpx"
	"github.com/diewo77/helpdesk-billing/internal/services"
)

type RateHandler struct {
	Svc *services.RateService
}

func NewRateHandler(svc *services.RateService) *RateHandler { return &RateHandler{Svc: svc} }

// ListCategories: GET /rate-categories?active=1
func (h *RateHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "1"
	cats, err := h.Svc.ListCategories(activeOnly)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_categories", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": cats, "total": len(cats)})
}

// CreateCategory: POST /rate-categories
func (h *RateHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string           `json:"name"`
		Slug         string           `json:"slug"`
		DefaultRate  *decimal.Decimal `json:"default_rate"`
		DisplayOrder int              `json:"display_order"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	cat, err := h.Svc.CreateCategory(req.Name, req.Slug, req.DefaultRate, req.DisplayOrder)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, cat)
}

// UpdateCategory: POST /rate-categories/update?id=...
func (h *RateHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r, "id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	var req struct {
		Name         *string          `json:"name"`
		DefaultRate  *decimal.Decimal `json:"default_rate"`
		Active       *bool            `json:"active"`
		DisplayOrder *int             `json:"display_order"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	cat, err := h.Svc.UpdateCategory(id, req.Name, req.DefaultRate, req.Active, req.DisplayOrder)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cat)
}

// DeleteCategory: POST /rate-categories/delete?id=...
func (h *RateHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r, "id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	if err := h.Svc.DeleteCategory(id); err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ListProjectRates: GET /project-rates?project_id=...
func (h *RateHandler) ListProjectRates(w http.ResponseWriter, r *http.Request) {
	projectID, ok := queryID(r, "project_id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "missing_project_id", nil)
		return
	}
	rates, err := h.Svc.ListProjectRates(projectID)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_rates", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rates, "total": len(rates)})
}

// CreateProjectRate: POST /project-rates
func (h *RateHandler) CreateProjectRate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID      uint            `json:"project_id"`
		RateCategoryID uint            `json:"rate_category_id"`
		Rate           decimal.Decimal `json:"rate"`
		EffectiveFrom  string          `json:"effective_from"`
		EffectiveTo    *string         `json:"effective_to"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if req.ProjectID == 0 || req.RateCategoryID == 0 {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"project_id": "required", "rate_category_id": "required"})
		return
	}
	from, err := time.Parse("2006-01-02", req.EffectiveFrom)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"effective_from": "invalid_date"})
		return
	}
	var to *time.Time
	if req.EffectiveTo != nil {
		d, err := time.Parse("2006-01-02", *req.EffectiveTo)
		if err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"effective_to": "invalid_date"})
			return
		}
		to = &d
	}
	pr, err := h.Svc.SetProjectRate(req.ProjectID, req.RateCategoryID, req.Rate, from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, pr)
}

// EffectiveRate: GET /project-rates/effective?project_id=...&category_id=...&date=YYYY-MM-DD
// Exposes the resolver for the invoice editor preview. A null rate means
// "not configured", which the UI must surface rather than assume 0.
func (h *RateHandler) EffectiveRate(w http.ResponseWriter, r *http.Request) {
	projectID, ok := queryID(r, "project_id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "missing_project_id", nil)
		return
	}
	categoryID, ok := queryID(r, "category_id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "missing_category_id", nil)
		return
	}
	on := time.Now().UTC().Truncate(24 * time.Hour)
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"date": "invalid_date"})
			return
		}
		on = d
	}
	rate, err := h.Svc.EffectiveRate(projectID, categoryID, on)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_resolve_rate", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rate": rate, "date": on.Format("2006-01-02")})
}
