package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/diewo77/helpdesk-billing/internal/httpx"
	"github.com/diewo77/helpdesk-billing/internal/services"
)

// writeServiceError maps the service error taxonomy onto HTTP. Anything
// unrecognized is a 500 with a generic code; details never leak.
func writeServiceError(w http.ResponseWriter, err error) {
	var ve *services.ValidationError
	if errors.As(err, &ve) {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", ve.Violations)
		return
	}
	if services.IsStateConflict(err) {
		httpx.JSONError(w, http.StatusConflict, "state_conflict", err.Error())
		return
	}
	if services.IsNotFound(err) {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	if services.IsReferentialIntegrity(err) {
		httpx.JSONError(w, http.StatusConflict, "still_referenced", err.Error())
		return
	}
	httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
}

// queryID parses a required positive integer query parameter.
func queryID(r *http.Request, name string) (uint, bool) {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n <= 0 {
		return 0, false
	}
	return uint(n), true
}
