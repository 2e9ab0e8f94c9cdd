// Package timefmt parses the timestamp shapes produced by note stores and
// renders them as human relative strings.
package timefmt

import (
	"fmt"
	"strings"
	"time"
)

// layouts covers RFC 3339, Python isoformat output (with and without zone or
// fractional seconds), and the looser forms found in note frontmatter.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
}

// Parse interprets s using the known layouts. Zone-less values are taken as UTC.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Format renders t in the canonical sortable form used on the wire
func Format(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
