package metadata

import (
	"strings"
	"time"
)

// dateLayouts are tried in order; the first parse wins. Output collapses to
// ISO year, year-month, or full date depending on input precision.
var dateLayouts = []struct {
	layout string
	out    string
}{
	{time.RFC3339, "2006-01-02"},
	{"2006-01-02T15:04:05", "2006-01-02"},
	{"2006-01-02", "2006-01-02"},
	{"2006/01/02", "2006-01-02"},
	{"January 2, 2006", "2006-01-02"},
	{"Jan 2, 2006", "2006-01-02"},
	{"2 January 2006", "2006-01-02"},
	{"2 Jan 2006", "2006-01-02"},
	{"2006-01", "2006-01"},
	{"January 2006", "2006-01"},
	{"Jan 2006", "2006-01"},
	{"2006", "2006"},
}

// NormalizeDate cleans an extracted date string to an ISO form. Values that
// cannot be parsed are returned verbatim rather than discarded.
func NormalizeDate(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return ""
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l.layout, v); err == nil {
			return t.Format(l.out)
		}
	}
	return v
}
