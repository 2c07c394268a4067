package api

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/jmcleod/assettag/access"
)

// requireAdmin gates the registry management routes. Callers without an
// administrator session are sent to the login page.
func (a *API) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch access.Decide(access.OpManage, a.classify(r, ""), false) {
		case access.Allow:
			next.ServeHTTP(w, r)
		default:
			http.Redirect(w, r, "/login", http.StatusSeeOther)
		}
	})
}

// resolveClientIP rewrites RemoteAddr from proxy headers, but only for
// peers inside the trusted proxy ranges.
func (a *API) resolveClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip := a.extractClientIP(r); ip != "" {
			r.RemoteAddr = ip
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger emits one structured line per request.
func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			a.logger.LogAttrs(r.Context(), level, "request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", chimw.GetReqID(r.Context())),
				slog.String("remote_addr", r.RemoteAddr),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
