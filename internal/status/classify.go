// internal/status/classify.go
package status

import (
	"strings"
	"time"
)

// Classify turns one telemetry sample into exactly one of the three
// states. It is a total function: any combination of present and absent
// sample fields yields a status, never a panic and never "unknown".
//
// Numeric branch, in order:
//  1. telemetry fresher than OfflineAfter          -> ONLINE
//  2. current power above the production threshold -> ONLINE
//  3. telemetry age within (OfflineAfter, ErrorAfter] -> OFFLINE
//  4. telemetry older than ErrorAfter              -> ERROR
//  5. no reliable signal -> previous status when known, else ERROR
//
// When the sample carries only a page text, the text branch applies
// instead: expected online token -> ONLINE, offline marker -> OFFLINE,
// anything else -> ERROR.
func Classify(sample Sample, thr Thresholds, prev *Status, now time.Time) Status {
	if sample.CurrentPowerKW == nil && sample.LastUpdateAt == nil && sample.StatusText != "" {
		return classifyText(sample.StatusText, thr)
	}

	if sample.LastUpdateAt != nil {
		age := now.Sub(*sample.LastUpdateAt)
		if age <= thr.OfflineAfter {
			return Online
		}
		if sample.CurrentPowerKW != nil && *sample.CurrentPowerKW > thr.OnlinePowerKW {
			return Online
		}
		if age <= thr.ErrorAfter {
			return Offline
		}
		return Error
	}

	if sample.CurrentPowerKW != nil && *sample.CurrentPowerKW > thr.OnlinePowerKW {
		return Online
	}

	if prev != nil {
		return *prev
	}
	return Error
}

func classifyText(text string, thr Thresholds) Status {
	text = strings.ToLower(strings.TrimSpace(text))

	if thr.OnlineToken != "" && strings.Contains(text, strings.ToLower(thr.OnlineToken)) {
		return Online
	}

	markers := thr.OfflineMarkers
	if len(markers) == 0 {
		markers = []string{"offline"}
	}
	for _, m := range markers {
		if m != "" && strings.Contains(text, strings.ToLower(m)) {
			return Offline
		}
	}
	return Error
}
