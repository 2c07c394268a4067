// Package web holds the embedded HTML templates and static assets served by
// the api package.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Page is the value every template executes against.
type Page struct {
	Title string
	// Admin reports whether the caller holds an administrator session.
	Admin bool
	// Error is an optional message shown above the page content.
	Error string
	Data  any
}

// Pages names the renderable templates.
const (
	PageHome         = "home"
	PageLogin        = "login"
	PageList         = "list"
	PageCreated      = "created"
	PageAsset        = "asset"
	PageChallenge    = "challenge"
	PageChangeSecret = "change_secret"
	PageScan         = "scan"
	PageError        = "error"
)

const (
	layoutTemplate  = "layout.html"
	timestampLayout = "2006-01-02 15:04:05 MST"
)

var allPages = []string{
	PageHome, PageLogin, PageList, PageCreated, PageAsset,
	PageChallenge, PageChangeSecret, PageScan, PageError,
}

var funcs = template.FuncMap{
	"timestamp": func(t time.Time) string { return t.Local().Format(timestampLayout) },
}

// Renderer executes the embedded page templates.
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer parses every page together with the shared layout.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template, len(allPages))}
	for _, name := range allPages {
		t, err := template.New(layoutTemplate).Funcs(funcs).ParseFS(templateFS,
			"templates/"+layoutTemplate, "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render writes page with the given status. The page is executed into a
// buffer first so a template error never produces a partial response.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, p Page) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, layoutTemplate, p); err != nil {
		return fmt.Errorf("rendering %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

// Static serves the embedded static assets. Mount it with the prefix
// stripped, e.g. http.StripPrefix("/static/", web.Static()).
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
