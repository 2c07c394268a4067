package api

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/assettag/access"
	"github.com/jmcleod/assettag/label"
	"github.com/jmcleod/assettag/registry"
	"github.com/jmcleod/assettag/scan"
	"github.com/jmcleod/assettag/web"
)

// assetName returns the {name} route parameter, decoded. chi matches on
// RawPath when the client used a non-canonical escaping.
func assetName(r *http.Request) string {
	name := chi.URLParam(r, "name")
	if r.URL.RawPath != "" {
		if dec, err := url.PathUnescape(name); err == nil {
			return dec
		}
	}
	return name
}

// scanRequested reports whether the scan-origin flag is set.
func scanRequested(r *http.Request) bool {
	switch r.URL.Query().Get("scan") {
	case "true", "1":
		return true
	default:
		return false
	}
}

func assetPath(name string) string {
	return "/asset/" + url.PathEscape(name)
}

func notFoundMessage(name string) string {
	return fmt.Sprintf("Asset %q not found.", name)
}

// ListAssets handles GET /list.
func (a *API) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets := a.registry.List()
	rows := make([]assetRow, 0, len(assets))
	for _, asset := range assets {
		rows = append(rows, newAssetRow(asset))
	}
	a.render(w, r, http.StatusOK, web.PageList, "Assets", listView{Assets: rows}, "")
}

// CreateAsset handles POST /generate.
func (a *API) CreateAsset(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBodySize)
	if err := r.ParseForm(); err != nil {
		a.renderHome(w, r, http.StatusBadRequest, createForm{}, "Could not read the form.")
		return
	}
	form := createForm{
		ID:         r.PostForm.Get("id"),
		Name:       r.PostForm.Get("name"),
		Location:   r.PostForm.Get("location"),
		Department: r.PostForm.Get("department"),
		SetupDate:  r.PostForm.Get("setupDate"),
	}
	asset, err := a.registry.Create(r.Context(), form.Name, registry.Fields{
		ID:         form.ID,
		Location:   form.Location,
		Department: form.Department,
		SetupDate:  form.SetupDate,
	}, r.PostForm.Get("password"))
	switch {
	case errors.Is(err, registry.ErrConflict):
		a.renderHome(w, r, http.StatusConflict, form, fmt.Sprintf("An asset named %q already exists.", form.Name))
		return
	case errors.Is(err, registry.ErrInvalidInput):
		a.renderHome(w, r, http.StatusBadRequest, form, err.Error())
		return
	case err != nil:
		a.renderInternalError(w, r, "failed to create asset", err)
		return
	}

	a.audit.logAsset(AuditAssetCreated, r, asset.Name, slog.String("asset_id", asset.ID))
	a.render(w, r, http.StatusCreated, web.PageCreated, "Asset created", createdView{
		ID:     asset.ID,
		Name:   asset.Name,
		URL:    label.AssetURL(a.baseURL, asset.Name),
		QRPath: "/qr/" + url.PathEscape(asset.Name),
	}, "")
}

// DeleteAsset handles GET /delete/{name}.
func (a *API) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	name := assetName(r)
	if err := a.registry.Delete(r.Context(), name); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			a.renderError(w, r, http.StatusNotFound, notFoundMessage(name))
			return
		}
		a.renderInternalError(w, r, "failed to delete asset", err)
		return
	}
	revoked := a.sessions.RevokeAsset(name)
	a.audit.logAsset(AuditAssetDeleted, r, name, slog.Int("sessions_revoked", revoked))
	http.Redirect(w, r, "/list", http.StatusSeeOther)
}

// ChangeSecretForm handles GET /change-password/{name}.
func (a *API) ChangeSecretForm(w http.ResponseWriter, r *http.Request) {
	name := assetName(r)
	if _, ok := a.registry.Get(name); !ok {
		a.renderError(w, r, http.StatusNotFound, notFoundMessage(name))
		return
	}
	a.renderChangeSecret(w, r, http.StatusOK, name, "")
}

func (a *API) renderChangeSecret(w http.ResponseWriter, r *http.Request, status int, name, errMsg string) {
	a.render(w, r, status, web.PageChangeSecret, "Change password", changeSecretView{
		Name:   name,
		Action: "/change-password/" + url.PathEscape(name),
	}, errMsg)
}

// ChangeSecret handles POST /change-password/{name}.
func (a *API) ChangeSecret(w http.ResponseWriter, r *http.Request) {
	name := assetName(r)
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBodySize)
	if err := r.ParseForm(); err != nil {
		a.renderChangeSecret(w, r, http.StatusBadRequest, name, "Could not read the form.")
		return
	}
	err := a.registry.ChangeSecret(r.Context(), name, r.PostForm.Get("password"))
	switch {
	case errors.Is(err, registry.ErrNotFound):
		a.renderError(w, r, http.StatusNotFound, notFoundMessage(name))
		return
	case errors.Is(err, registry.ErrInvalidInput):
		a.renderChangeSecret(w, r, http.StatusBadRequest, name, "A new password is required.")
		return
	case err != nil:
		a.renderInternalError(w, r, "failed to change asset password", err)
		return
	}
	revoked := a.sessions.RevokeAsset(name)
	a.audit.logAsset(AuditSecretChanged, r, name, slog.Int("sessions_revoked", revoked))
	http.Redirect(w, r, "/list", http.StatusSeeOther)
}

// AssetCode handles GET /qr/{name}.
func (a *API) AssetCode(w http.ResponseWriter, r *http.Request) {
	a.serveCode(w, r, false)
}

// DownloadAssetCode handles GET /qr/{name}/download.
func (a *API) DownloadAssetCode(w http.ResponseWriter, r *http.Request) {
	a.serveCode(w, r, true)
}

func (a *API) serveCode(w http.ResponseWriter, r *http.Request, attachment bool) {
	name := assetName(r)
	if _, ok := a.registry.Get(name); !ok {
		a.renderError(w, r, http.StatusNotFound, notFoundMessage(name))
		return
	}
	png, err := a.encoder.Encode(r.Context(), label.AssetURL(a.baseURL, name))
	if err != nil {
		a.renderInternalError(w, r, "failed to encode asset code", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if attachment {
		w.Header().Set("Content-Disposition",
			mime.FormatMediaType("attachment", map[string]string{"filename": name + "-qr.png"}))
	}
	w.Write(png)
}

// LabelSheet handles GET /qr/all.
func (a *API) LabelSheet(w http.ResponseWriter, r *http.Request) {
	assets := a.registry.List()
	labels := make([]label.Label, 0, len(assets))
	for _, asset := range assets {
		labels = append(labels, label.Label{
			Content:    label.AssetURL(a.baseURL, asset.Name),
			Caption:    asset.Name,
			Subcaption: asset.ID,
		})
	}
	pdf, err := label.Sheet(r.Context(), a.encoder, labels, label.DefaultLayout)
	if err != nil {
		a.renderInternalError(w, r, "failed to render label sheet", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("inline", map[string]string{"filename": "asset-labels.pdf"}))
	w.Write(pdf)
}

// ScanPage handles GET /scan. A name query parameter jumps straight to the
// scanned view of that asset.
func (a *API) ScanPage(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("name"); name != "" {
		http.Redirect(w, r, assetPath(name)+"?scan=true", http.StatusSeeOther)
		return
	}
	a.render(w, r, http.StatusOK, web.PageScan, "Scan", nil, "")
}

// ViewAsset handles GET /asset/{name}[?scan=true].
func (a *API) ViewAsset(w http.ResponseWriter, r *http.Request) {
	name := assetName(r)
	asset, ok := a.registry.Get(name)
	if !ok {
		a.renderError(w, r, http.StatusNotFound, notFoundMessage(name))
		return
	}

	st := a.classify(r, name)
	recorded := false
	switch access.Decide(access.OpView, st, scanRequested(r)) {
	case access.Challenge:
		a.renderChallenge(w, r, http.StatusOK, name, "")
		return
	case access.AllowAndRecord:
		ev, err := a.recorder.Record(r.Context(), name, scan.DeviceFromRequest(r))
		switch {
		case errors.Is(err, scan.ErrAlreadyRecorded):
			// Recorded earlier in this request.
		case errors.Is(err, registry.ErrNotFound):
			a.renderError(w, r, http.StatusNotFound, notFoundMessage(name))
			return
		case err != nil:
			a.renderInternalError(w, r, "failed to record scan", err)
			return
		default:
			recorded = true
			a.audit.logAsset(AuditAssetScanned, r, name,
				slog.String("caller", st.Kind.String()),
				slog.String("device", ev.Device))
			if updated, ok := a.registry.Get(name); ok {
				asset = updated
			}
		}
	case access.Allow:
	default:
		a.renderError(w, r, http.StatusForbidden, "Access denied.")
		return
	}

	showHistory := st.Kind != access.Anonymous
	a.render(w, r, http.StatusOK, web.PageAsset, asset.Name, newAssetView(asset, showHistory, recorded), "")
}

func (a *API) renderChallenge(w http.ResponseWriter, r *http.Request, status int, name, errMsg string) {
	a.render(w, r, status, web.PageChallenge, "Verify access", challengeView{
		Name:   name,
		Action: "/asset/verify/" + url.PathEscape(name),
	}, errMsg)
}

// VerifyAsset handles POST /asset/verify/{name}.
func (a *API) VerifyAsset(w http.ResponseWriter, r *http.Request) {
	name := assetName(r)
	if _, ok := a.registry.Get(name); !ok {
		a.renderError(w, r, http.StatusNotFound, notFoundMessage(name))
		return
	}
	if access.Decide(access.OpVerify, a.classify(r, name), false) != access.VerifySecret {
		a.renderError(w, r, http.StatusForbidden, "Access denied.")
		return
	}

	clientIP := extractClientIP(r)
	key := verifyLimiterKey(clientIP, name)
	if blocked, retryAfter := a.verifyLimiter.check(key); blocked {
		a.audit.logFailure(AuditVerifyRateLimited, r, "ip rate limited",
			slog.String("asset", name), slog.String("client_ip", clientIP))
		w.Header().Set("Retry-After", retryAfterString(retryAfter))
		a.renderChallenge(w, r, http.StatusTooManyRequests, name, "Too many failed attempts. Try again later.")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBodySize)
	if err := r.ParseForm(); err != nil {
		a.renderChallenge(w, r, http.StatusBadRequest, name, "Could not read the form.")
		return
	}
	secret := r.PostForm.Get("password")
	if secret == "" {
		a.renderChallenge(w, r, http.StatusBadRequest, name, "Password is required.")
		return
	}

	ok, err := a.registry.VerifySecret(name, secret)
	if errors.Is(err, registry.ErrNotFound) {
		a.renderError(w, r, http.StatusNotFound, notFoundMessage(name))
		return
	}
	if err != nil {
		a.renderInternalError(w, r, "failed to verify asset password", err)
		return
	}
	if !ok {
		a.verifyLimiter.recordFailure(key)
		a.audit.logFailure(AuditAssetVerifyFailed, r, "wrong password", slog.String("asset", name))
		a.renderChallenge(w, r, http.StatusUnauthorized, name, "Incorrect password.")
		return
	}

	token, err := a.sessions.CreateAssetSession(name)
	if err != nil {
		a.renderInternalError(w, r, "failed to create asset session", err)
		return
	}
	if old, ok := cookieValue(r, assetCookieName); ok {
		a.destroySession(old, session.KindAsset)
	}
	a.verifyLimiter.recordSuccess(key)
	a.writeSessionCookie(w, r, assetCookieName, token)
	a.audit.logAsset(AuditAssetVerified, r, name)
	http.Redirect(w, r, assetPath(name)+"?scan=true", http.StatusSeeOther)
}

// GetAssetJSON handles GET /api/asset/{name}.
func (a *API) GetAssetJSON(w http.ResponseWriter, r *http.Request) {
	name := assetName(r)
	asset, ok := a.registry.Get(name)
	if !ok {
		mapError(w, fmt.Errorf("%w: %s", registry.ErrNotFound, name))
		return
	}
	withHistory := a.classify(r, name).Kind != access.Anonymous
	writeJSON(w, http.StatusOK, newAssetResponse(asset, withHistory))
}

// ListAssetsJSON handles GET /api/assets: one page of full records,
// history included, in creation order.
func (a *API) ListAssetsJSON(w http.ResponseWriter, r *http.Request) {
	assets := a.registry.List()
	limit, offset := pageParams(r)
	start, end, meta := pageBounds(len(assets), limit, offset)
	resp := AssetListResponse{
		Assets:   make([]AssetResponse, 0, end-start),
		PageMeta: meta,
	}
	for _, asset := range assets[start:end] {
		resp.Assets = append(resp.Assets, newAssetResponse(asset, true))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health handles GET /health. A degraded registry (last snapshot write
// failed) answers 503.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	h := a.registry.Health()
	resp := HealthResponse{
		Status:      "ok",
		Assets:      a.registry.Len(),
		Sessions:    a.sessions.Len(),
		LastError:   h.LastError,
		LastErrorAt: timePtr(h.LastErrorAt),
		LastSavedAt: timePtr(h.LastSavedAt),
	}
	status := http.StatusOK
	if h.Degraded {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
