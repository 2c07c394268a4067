// Package registry is the in-memory asset registry. It is the sole writer
// of the durable snapshot: every mutation is applied in memory and then the
// full snapshot is handed to a storage.Snapshotter.
package registry

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the named asset does not exist.
	ErrNotFound = errors.New("asset not found")
	// ErrConflict indicates an asset with the same name already exists.
	ErrConflict = errors.New("asset already exists")
	// ErrInvalidInput indicates a required field is missing or malformed.
	ErrInvalidInput = errors.New("invalid input")
)

// SetupDateLayout is the accepted format for Asset.SetupDate.
const SetupDateLayout = "2006-01-02"

// ScanEvent records one authenticated view of an asset that arrived via a
// scanned code.
type ScanEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Device    string    `json:"device"`
}

// Asset is a tracked physical item. Name is the unique registry key; ID is
// the human-facing identifier printed on the label.
type Asset struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Location   string      `json:"location"`
	Department string      `json:"department,omitempty"`
	SetupDate  string      `json:"setupDate,omitempty"`
	SecretHash string      `json:"password"`
	History    []ScanEvent `json:"scanHistory"`
}

// Fields carries the descriptive attributes supplied when creating an asset.
type Fields struct {
	ID         string
	Location   string
	Department string
	SetupDate  string
}

// LastScan returns the most recent scan event, if any.
func (a Asset) LastScan() (ScanEvent, bool) {
	if len(a.History) == 0 {
		return ScanEvent{}, false
	}
	return a.History[len(a.History)-1], true
}

func (a *Asset) clone() Asset {
	c := *a
	c.History = append([]ScanEvent(nil), a.History...)
	if c.History == nil {
		c.History = []ScanEvent{}
	}
	return c
}
