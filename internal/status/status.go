// internal/status/status.go
package status

import "time"

// Status is the classified operational state of a site.
type Status string

const (
	Online  Status = "ONLINE"
	Offline Status = "OFFLINE"
	Error   Status = "ERROR"
)

// Sample is the raw, possibly partial observation produced by one
// acquisition attempt. Strategies populate whatever they could observe:
// the API path fills power and last-update, the browser paths fill the
// status text read off the page.
type Sample struct {
	CurrentPowerKW *float64
	LastUpdateAt   *time.Time
	StatusText     string
}

// Empty reports whether the sample carries no signal at all.
func (s Sample) Empty() bool {
	return s.CurrentPowerKW == nil && s.LastUpdateAt == nil && s.StatusText == ""
}

// Thresholds holds the per-site classification tunables.
type Thresholds struct {
	OnlinePowerKW  float64       // power above this means the inverter is producing
	OfflineAfter   time.Duration // telemetry older than this is no longer ONLINE
	ErrorAfter     time.Duration // telemetry older than this means something is broken
	OnlineToken    string        // substring marking ONLINE in page text
	OfflineMarkers []string      // substrings marking OFFLINE in page text
}
