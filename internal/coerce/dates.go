package coerce

import (
	"strings"
	"time"
)

// dateLayouts are tried in order. ERP exports mix ISO timestamps, bare dates,
// and US-style slash dates depending on which subsidiary produced the file.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"02-Jan-2006",
	"Jan 2, 2006",
	time.RFC1123,
	time.RFC1123Z,
}

// ParseDate parses a date or timestamp string against the known layouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
