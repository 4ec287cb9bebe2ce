package classify

import (
	"regexp"
	"time"
)

var (
	reEmbeddedTS  = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})[ T](\d{2}:\d{2}:\d{2})`)
	reClockPrefix = regexp.MustCompile(`^(\d{2}:\d{2}:\d{2})\s*\|`)
)

var dateClockLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// embeddedTimestamp extracts a full YYYY-MM-DD HH:MM:SS timestamp from a
// line, if present.
func embeddedTimestamp(line string) (time.Time, bool) {
	m := reEmbeddedTS.FindStringSubmatch(line)
	if m == nil {
		return time.Time{}, false
	}
	return parseDateClock(m[1], m[2])
}

// clockPrefix extracts the bare "HH:MM:SS |" prefix used by admin logs.
// The returned time carries only the clock components.
func clockPrefix(line string) (time.Time, bool) {
	m := reClockPrefix.FindStringSubmatch(line)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("15:04:05", m[1], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func parseDateClock(date, clock string) (time.Time, bool) {
	for _, layout := range dateClockLayouts {
		if t, err := time.ParseInLocation(layout, date+layout[10:11]+clock, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
