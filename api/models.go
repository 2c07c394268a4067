package api

import (
	"time"

	"github.com/jmcleod/assettag/registry"
)

// AssetResponse is returned from GET /api/asset/{name}. ScanHistory is only
// present for administrators and callers verified for this asset.
type AssetResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Location    string               `json:"location"`
	Department  string               `json:"department"`
	SetupDate   string               `json:"setupDate"`
	ScanCount   int                  `json:"scanCount"`
	ScanHistory *[]ScanEventResponse `json:"scanHistory,omitempty"`
}

// AssetListResponse is returned from GET /api/assets.
type AssetListResponse struct {
	Assets []AssetResponse `json:"assets"`
	PageMeta
}

// ScanEventResponse is one entry of an asset's scan history.
type ScanEventResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Device    string    `json:"device"`
}

// HealthResponse is returned from GET /health.
type HealthResponse struct {
	Status      string     `json:"status"`
	Assets      int        `json:"assets"`
	Sessions    int        `json:"sessions"`
	LastError   string     `json:"last_error,omitempty"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`
	LastSavedAt *time.Time `json:"last_saved_at,omitempty"`
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

func newAssetResponse(a registry.Asset, withHistory bool) AssetResponse {
	resp := AssetResponse{
		ID:         a.ID,
		Name:       a.Name,
		Location:   a.Location,
		Department: a.Department,
		SetupDate:  a.SetupDate,
		ScanCount:  len(a.History),
	}
	if withHistory {
		history := make([]ScanEventResponse, 0, len(a.History))
		for _, ev := range a.History {
			history = append(history, ScanEventResponse{Timestamp: ev.Timestamp, Device: ev.Device})
		}
		resp.ScanHistory = &history
	}
	return resp
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
