package database

import "time"

// A weekly period is the half-open interval [Monday 00:00 UTC, next Monday).
// It is closed once wall-clock time passes its end.

// WeekStart returns the Monday 00:00 UTC on or before t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := t.Truncate(24 * time.Hour)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	return day.AddDate(0, 0, -offset)
}

// PeriodEnd returns the exclusive end of the period starting at start.
func PeriodEnd(start time.Time) time.Time {
	return start.AddDate(0, 0, 7)
}

// ClosedPeriodsSince enumerates the starts of every weekly period, oldest
// first, from the period containing `from` through the last one fully
// closed by `now`. `from` is the aggregation marker (always a period end,
// so its own week is not revisited) or, on first aggregation, the epoch;
// an unaligned epoch is covered by its surrounding period so epoch-day
// posts land in a report.
func ClosedPeriodsSince(from, now time.Time) []time.Time {
	var starts []time.Time
	for s := WeekStart(from); !PeriodEnd(s).After(now); s = PeriodEnd(s) {
		starts = append(starts, s)
	}
	return starts
}

// PeriodID formats a period start for display and file names.
func PeriodID(start time.Time) string {
	return start.UTC().Format("2006-01-02")
}

// FormatPeriodDisplay formats a period for human-readable display,
// e.g. "Feb 02 - Feb 09, 2026".
func FormatPeriodDisplay(start time.Time) string {
	end := PeriodEnd(start).AddDate(0, 0, -1)
	return start.UTC().Format("Jan 02") + " - " + end.UTC().Format("Jan 02, 2006")
}
