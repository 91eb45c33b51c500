// Package timeutil parses the human-entered time arguments accepted by
// the --since and --until flags.
package timeutil

import (
	"fmt"
	"time"
)

// whenLayouts are tried in order. Date-only and minute-precision forms
// are accepted alongside full RFC3339.
var whenLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseWhen parses a since/until argument. Layouts without a zone are
// interpreted in local time. A parse failure is fatal to the invocation
// and must surface before any network call.
func ParseWhen(s string) (time.Time, error) {
	for _, layout := range whenLayouts {
		if layout == time.RFC3339 {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time %q (want RFC3339 or YYYY-MM-DD[ HH:MM[:SS]])", s)
}
