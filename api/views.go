package api

import (
	"net/url"
	"time"

	"github.com/jmcleod/assettag/registry"
)

// View models passed to the web templates.

type createForm struct {
	ID, Name, Location, Department, SetupDate string
}

type homeView struct {
	Count   int
	BaseURL string
	Form    createForm
}

type loginView struct {
	Username string
}

type assetRow struct {
	ID, Name, Location, Department, SetupDate string

	ScanCount int
	LastScan  time.Time
	// Escaped is the path-escaped name; Path and QRPath are built from it.
	Escaped string
	Path    string
	QRPath  string
}

type listView struct {
	Assets []assetRow
}

type createdView struct {
	ID, Name, URL, QRPath string
}

type assetView struct {
	Asset       registry.Asset
	ScanCount   int
	Recorded    bool
	ShowHistory bool
	History     []registry.ScanEvent
}

type challengeView struct {
	Name   string
	Action string
}

type changeSecretView struct {
	Name   string
	Action string
}

type errorView struct {
	Message string
}

func newAssetRow(a registry.Asset) assetRow {
	esc := url.PathEscape(a.Name)
	row := assetRow{
		ID:         a.ID,
		Name:       a.Name,
		Location:   a.Location,
		Department: a.Department,
		SetupDate:  a.SetupDate,
		ScanCount:  len(a.History),
		Escaped:    esc,
		Path:       "/asset/" + esc,
		QRPath:     "/qr/" + esc,
	}
	if last, ok := a.LastScan(); ok {
		row.LastScan = last.Timestamp
	}
	return row
}

func newAssetView(a registry.Asset, showHistory, recorded bool) assetView {
	v := assetView{
		Asset:       a,
		ScanCount:   len(a.History),
		Recorded:    recorded,
		ShowHistory: showHistory,
	}
	if showHistory {
		v.History = a.History
	}
	// Never hand the digest to a template.
	v.Asset.SecretHash = ""
	v.Asset.History = nil
	return v
}
