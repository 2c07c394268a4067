package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/jmcleod/assettag/access"
)

const (
	adminCookieName = "assettag_admin"
	assetCookieName = "assettag_asset"
)

// cookieCarrier reads the two session tokens from request cookies.
type cookieCarrier struct {
	r *http.Request
}

var _ access.Carrier = cookieCarrier{}

func (c cookieCarrier) AdminToken() (string, bool) { return cookieValue(c.r, adminCookieName) }
func (c cookieCarrier) AssetToken() (string, bool) { return cookieValue(c.r, assetCookieName) }

func cookieValue(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// classify resolves the caller state for a request about asset ("" for
// requests that target no asset).
func (a *API) classify(r *http.Request, asset string) access.State {
	return access.Classify(a.sessions, cookieCarrier{r}, asset)
}

func (a *API) writeSessionCookie(w http.ResponseWriter, r *http.Request, name, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secureCookies || requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearSessionCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secureCookies || requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
