package normalize

import (
	"strings"
	"time"
)

// dateLayouts covers every format observed across the registries. Order
// matters only where layouts are ambiguous; US month-first wins over
// day-first.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"01-02-2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"02-Jan-2006",
	"2 January 2006",
	"20060102",
	"2006/01/02",
}

// ISODate converts a raw registry date to YYYY-MM-DD. It returns nil when the
// value is empty or cannot be parsed.
func ISODate(raw string) *string {
	s := collapseSpace(raw)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			out := t.Format("2006-01-02")
			return &out
		}
	}
	// Some sources append a time after a space ("03/14/2019 12:00:00 AM").
	if i := strings.IndexByte(s, ' '); i > 0 && strings.ContainsAny(s[:i], "/-") {
		return ISODate(s[:i])
	}
	return nil
}
