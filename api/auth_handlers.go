package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jmcleod/assettag/access"
	"github.com/jmcleod/assettag/session"
	"github.com/jmcleod/assettag/web"
)

// maxFormBodySize bounds every form submission.
const maxFormBodySize = 64 << 10

// Home handles GET /. Administrators get the create form; everyone else
// gets the login page.
func (a *API) Home(w http.ResponseWriter, r *http.Request) {
	if a.classify(r, "").Kind != access.AdminAuthenticated {
		a.render(w, r, http.StatusOK, web.PageLogin, "Log in", loginView{}, "")
		return
	}
	a.renderHome(w, r, http.StatusOK, createForm{}, "")
}

func (a *API) renderHome(w http.ResponseWriter, r *http.Request, status int, form createForm, errMsg string) {
	a.render(w, r, status, web.PageHome, "Create asset", homeView{
		Count:   a.registry.Len(),
		BaseURL: a.baseURL,
		Form:    form,
	}, errMsg)
}

// LoginPage handles GET /login.
func (a *API) LoginPage(w http.ResponseWriter, r *http.Request) {
	if a.classify(r, "").Kind == access.AdminAuthenticated {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	a.render(w, r, http.StatusOK, web.PageLogin, "Log in", loginView{}, "")
}

// Login handles POST /login.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	clientIP := extractClientIP(r)
	if blocked, retryAfter := a.globalLimiter.check(); blocked {
		a.audit.logFailure(AuditLoginRateLimited, r, "global rate limited")
		a.renderRateLimited(w, r, retryAfter, web.PageLogin, "Log in", loginView{})
		return
	}
	if blocked, retryAfter := a.loginLimiter.check(clientIP); blocked {
		a.audit.logFailure(AuditLoginRateLimited, r, "ip rate limited",
			slog.String("client_ip", clientIP))
		a.renderRateLimited(w, r, retryAfter, web.PageLogin, "Log in", loginView{})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBodySize)
	if err := r.ParseForm(); err != nil {
		a.render(w, r, http.StatusBadRequest, web.PageLogin, "Log in", loginView{}, "Could not read the form.")
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		a.render(w, r, http.StatusBadRequest, web.PageLogin, "Log in", loginView{Username: username},
			"Username and password are required.")
		return
	}

	if !a.admin.Check(username, password) {
		a.loginLimiter.recordFailure(clientIP)
		a.globalLimiter.recordFailure()
		a.audit.logFailure(AuditLoginFailure, r, "invalid credentials",
			slog.String("client_ip", clientIP))
		a.render(w, r, http.StatusUnauthorized, web.PageLogin, "Log in", loginView{Username: username},
			"Invalid username or password.")
		return
	}

	token, err := a.sessions.CreateAdminSession()
	if err != nil {
		a.renderInternalError(w, r, "failed to create admin session", err)
		return
	}
	// Replace rather than accumulate sessions for this browser.
	if old, ok := cookieValue(r, adminCookieName); ok {
		a.destroySession(old, session.KindAdmin)
	}
	a.loginLimiter.recordSuccess(clientIP)
	a.writeSessionCookie(w, r, adminCookieName, token)
	a.audit.log(AuditLoginSuccess, r)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout handles GET /logout.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := cookieValue(r, adminCookieName); ok {
		if a.classify(r, "").Kind == access.AdminAuthenticated {
			a.audit.log(AuditLogout, r)
			a.sessions.Destroy(token)
		}
	}
	a.clearSessionCookie(w, r, adminCookieName)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// destroySession removes token only when it names a session of kind, so a
// token replayed in the other cookie slot is left alone.
func (a *API) destroySession(token string, kind session.Kind) {
	if p, ok := a.sessions.Lookup(token); ok && p.Kind == kind {
		a.sessions.Destroy(token)
	}
}

// renderRateLimited sends a 429 with Retry-After and re-renders page.
func (a *API) renderRateLimited(w http.ResponseWriter, r *http.Request, retryAfter time.Duration, page, title string, data any) {
	w.Header().Set("Retry-After", retryAfterString(retryAfter))
	a.render(w, r, http.StatusTooManyRequests, page, title, data, "Too many failed attempts. Try again later.")
}
