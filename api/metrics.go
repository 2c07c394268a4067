package api

import (
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertLoginFailureSpike  AlertType = "login_failure_spike"
	AlertVerifyFailureSpike AlertType = "verify_failure_spike"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

// metricsCollector tracks sliding window counters for anomaly detection.
type metricsCollector struct {
	mu sync.Mutex

	loginFailures  []time.Time
	loginWindow    time.Duration
	loginThreshold int

	// Wrong asset passwords across all assets; a spike suggests someone
	// walking a building and guessing.
	verifyFailures  []time.Time
	verifyWindow    time.Duration
	verifyThreshold int

	alertFn AlertFunc
}

const (
	defaultLoginFailureWindow     = 1 * time.Minute
	defaultLoginFailureThreshold  = 50
	defaultVerifyFailureWindow    = 5 * time.Minute
	defaultVerifyFailureThreshold = 50
)

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		loginWindow:     defaultLoginFailureWindow,
		loginThreshold:  defaultLoginFailureThreshold,
		verifyWindow:    defaultVerifyFailureWindow,
		verifyThreshold: defaultVerifyFailureThreshold,
		alertFn:         alertFn,
	}
}

// recordEvent inspects an audit event and updates the relevant counters.
func (m *metricsCollector) recordEvent(event AuditEvent) {
	if m == nil || m.alertFn == nil {
		return
	}
	switch event {
	case AuditLoginFailure:
		m.record(&m.loginFailures, m.loginWindow, m.loginThreshold,
			AlertLoginFailureSpike, "login failure rate exceeds threshold")
	case AuditAssetVerifyFailed:
		m.record(&m.verifyFailures, m.verifyWindow, m.verifyThreshold,
			AlertVerifyFailureSpike, "asset password failure rate exceeds threshold")
	}
}

func (m *metricsCollector) record(times *[]time.Time, window time.Duration, threshold int, typ AlertType, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	*times = trimWindow(append(*times, now), now, window)
	if len(*times) >= threshold {
		m.alertFn(AlertEvent{
			Type:      typ,
			Message:   msg,
			Count:     len(*times),
			Threshold: threshold,
			Timestamp: now,
		})
		// Reset to avoid repeated alerts within the same spike.
		*times = (*times)[:0]
	}
}

// trimWindow removes entries older than (now - window) from the sorted slice.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	return times[start:]
}
