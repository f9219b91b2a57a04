package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/TannerHolle/budget/internal/api/middleware"
	"github.com/TannerHolle/budget/internal/bankfeed"
	"github.com/TannerHolle/budget/internal/domain"
)

// parseCalendarDate parses a YYYY-MM-DD string as a UTC calendar date.
func parseCalendarDate(s string) (time.Time, error) {
	return bankfeed.ParseCalendarDate(s)
}

// decode reads a JSON request body into dst. A malformed body writes a 400
// and reports false.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// parseID parses a uuid path segment. An unparseable id writes a 400 and
// reports false.
func parseID(w http.ResponseWriter, raw, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid "+what)
		return uuid.Nil, false
	}
	return id, true
}

// writeDomainError maps sentinel errors onto HTTP status codes. Anything
// unrecognized is a 500 with the given fallback message.
func writeDomainError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNoCategories):
		middleware.WriteError(w, http.StatusBadRequest, "Please create at least one category before syncing transactions")
	case errors.Is(err, domain.ErrAccessDenied):
		middleware.WriteError(w, http.StatusForbidden, "Access denied")
	case errors.Is(err, domain.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, domain.ErrDuplicate):
		middleware.WriteError(w, http.StatusConflict, "Already exists")
	default:
		middleware.WriteError(w, http.StatusInternalServerError, fallback)
	}
}
