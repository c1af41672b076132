package violation

import (
	"time"
)

// Detectors in the field report timestamps in several layouts; parse attempts
// run in this order.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02.01.2006 15:04:05",
}

// Normalize parses a detector-supplied timestamp into an instant. An empty or
// unparseable value degrades to the current wall clock instead of failing;
// ingestion must never block on a bad clock upstream. Layouts without a zone
// are interpreted in local time, matching the detectors' own clocks.
func Normalize(raw string) time.Time {
	ts, _ := normalize(raw)
	return ts
}

// normalize also reports whether the raw value actually parsed, so callers
// can log when an event silently falls back to "now".
func normalize(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Now(), false
	}

	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return ts, true
		}
	}

	return time.Now(), false
}
