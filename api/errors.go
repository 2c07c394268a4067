package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jmcleod/assettag/access"
	"github.com/jmcleod/assettag/label"
	"github.com/jmcleod/assettag/registry"
	"github.com/jmcleod/assettag/web"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, registry.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, label.ErrEncoding):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// mapError writes err as a JSON error response.
func mapError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	writeError(w, status, msg)
}

// render writes an HTML page. Template failures fall back to plain text.
func (a *API) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any, errMsg string) {
	p := web.Page{
		Title: title,
		Admin: a.classify(r, "").Kind == access.AdminAuthenticated,
		Error: errMsg,
		Data:  data,
	}
	if err := a.pages.Render(w, status, page, p); err != nil {
		a.logger.Error("render failed", slog.String("page", page), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// renderError writes the HTML error page.
func (a *API) renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	a.render(w, r, status, web.PageError, http.StatusText(status), errorView{Message: msg}, "")
}

// renderInternalError logs err and writes a generic failure page.
func (a *API) renderInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	a.logger.Error(msg, slog.Any("error", err))
	a.renderError(w, r, http.StatusInternalServerError, "Something went wrong. Please try again.")
}
