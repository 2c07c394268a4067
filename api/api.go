package api

import (
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/assettag/credential"
	"github.com/jmcleod/assettag/label"
	"github.com/jmcleod/assettag/registry"
	"github.com/jmcleod/assettag/scan"
	"github.com/jmcleod/assettag/session"
	"github.com/jmcleod/assettag/web"
)

// DefaultBaseURL is used for asset codes when no base URL is configured.
const DefaultBaseURL = "http://localhost:3000"

// API holds the dependencies needed by the HTTP handlers.
type API struct {
	registry *registry.Registry
	sessions *session.Table
	admin    *credential.Admin
	recorder *scan.Recorder
	encoder  label.Encoder
	pages    *web.Renderer
	baseURL  string

	logger  *slog.Logger
	audit   *auditLogger
	alertFn AlertFunc

	loginLimiter   *attemptLimiter
	verifyLimiter  *attemptLimiter
	globalLimiter  *globalRateLimiter
	trustedProxies []netip.Prefix
	secureCookies  bool
}

//go:embed openapi.yaml
var openapiDocument []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for request and audit logs.
// If not set, a JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithBaseURL sets the externally reachable address encoded into codes.
func WithBaseURL(base string) Option {
	return func(a *API) {
		a.baseURL = strings.TrimRight(base, "/")
	}
}

// WithEncoder replaces the code image encoder.
func WithEncoder(enc label.Encoder) Option {
	return func(a *API) {
		a.encoder = enc
	}
}

// WithRecorder replaces the scan recorder, e.g. to attach notifiers.
func WithRecorder(rec *scan.Recorder) Option {
	return func(a *API) {
		a.recorder = rec
	}
}

// WithSecureCookies forces the Secure attribute on session cookies even
// when the request does not look like it arrived over TLS.
func WithSecureCookies(secure bool) Option {
	return func(a *API) {
		a.secureCookies = secure
	}
}

// WithAlertFunc registers a callback for login and verification failure
// spikes. The default logs a warning.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alertFn = fn
	}
}

// WithTrustedProxies configures the CIDR ranges whose proxy headers
// (X-Forwarded-For, Forwarded, X-Real-IP) are honored when resolving the
// client address. Bare IPs are treated as single-host prefixes.
func WithTrustedProxies(cidrs []string) (Option, error) {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, raw := range cidrs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
			}
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	return func(a *API) {
		a.trustedProxies = prefixes
	}, nil
}

// New creates a new API instance.
func New(reg *registry.Registry, sessions *session.Table, admin *credential.Admin, opts ...Option) (*API, error) {
	pages, err := web.NewRenderer()
	if err != nil {
		return nil, err
	}
	a := &API{
		registry:      reg,
		sessions:      sessions,
		admin:         admin,
		pages:         pages,
		baseURL:       DefaultBaseURL,
		loginLimiter:  newAttemptLimiter(loginMaxFailures, loginBaseLockout, loginMaxLockout),
		verifyLimiter: newAttemptLimiter(verifyMaxFailures, verifyBaseLockout, verifyMaxLockout),
		globalLimiter: newGlobalRateLimiter(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	if a.encoder == nil {
		a.encoder = label.NewPNGEncoder(label.DefaultSize)
	}
	if a.recorder == nil {
		a.recorder = scan.NewRecorder(reg, scan.WithLogger(a.logger))
	}
	if a.alertFn == nil {
		logger := a.logger
		a.alertFn = func(e AlertEvent) {
			logger.Warn("security alert", "type", string(e.Type), "count", e.Count, "threshold", e.Threshold)
		}
	}
	a.audit = newAuditLogger(a.logger)
	a.audit.metrics = newMetricsCollector(a.alertFn)
	return a, nil
}

// Router returns a chi.Router with every route and the middleware chain
// mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if len(a.trustedProxies) > 0 {
		r.Use(a.resolveClientIP)
	}
	r.Use(a.requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(SecurityHeaders)
	r.Use(a.CSRFMiddleware)
	r.Use(scan.Middleware)

	r.Handle("/static/*", http.StripPrefix("/static/", web.Static()))

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiDocument)
	})
	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/openapi.yaml",
		Path:    "docs",
	}, nil))

	r.Get("/health", a.Health)

	r.Get("/", a.Home)
	r.Get("/login", a.LoginPage)
	r.Post("/login", a.Login)
	r.Get("/logout", a.Logout)
	r.Get("/scan", a.ScanPage)

	r.Group(func(r chi.Router) {
		r.Use(a.requireAdmin)
		r.Get("/list", a.ListAssets)
		r.Post("/generate", a.CreateAsset)
		r.With(a.rejectCrossSite).Get("/delete/{name}", a.DeleteAsset)
		r.Get("/change-password/{name}", a.ChangeSecretForm)
		r.Post("/change-password/{name}", a.ChangeSecret)
		r.Get("/qr/all", a.LabelSheet)
		r.Get("/qr/{name}", a.AssetCode)
		r.Get("/qr/{name}/download", a.DownloadAssetCode)
		r.Get("/api/assets", a.ListAssetsJSON)
	})

	r.Get("/asset/{name}", a.ViewAsset)
	r.Post("/asset/verify/{name}", a.VerifyAsset)
	r.Get("/api/asset/{name}", a.GetAssetJSON)

	return r
}
