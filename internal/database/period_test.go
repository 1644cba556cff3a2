package database

import (
	"testing"
	"time"
)

func TestWeekStartMidWeek(t *testing.T) {
	// Wednesday 2026-02-04 -> Monday 2026-02-02
	wed := time.Date(2026, 2, 4, 15, 30, 0, 0, time.UTC)
	got := WeekStart(wed)
	want := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestWeekStartOnMonday(t *testing.T) {
	mon := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	if got := WeekStart(mon); !got.Equal(mon) {
		t.Errorf("expected Monday midnight unchanged, got %v", got)
	}
}

func TestWeekStartSunday(t *testing.T) {
	// Sunday belongs to the week that started the previous Monday.
	sun := time.Date(2026, 2, 8, 23, 59, 0, 0, time.UTC)
	want := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	if got := WeekStart(sun); !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestClosedPeriodsNoneOpen(t *testing.T) {
	from := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC) // mid-week
	if periods := ClosedPeriodsSince(from, now); len(periods) != 0 {
		t.Errorf("expected no closed periods, got %v", periods)
	}
}

func TestClosedPeriodsExactBoundary(t *testing.T) {
	from := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC) // next Monday 00:00
	periods := ClosedPeriodsSince(from, now)
	if len(periods) != 1 {
		t.Fatalf("expected 1 closed period at exact boundary, got %d", len(periods))
	}
	if !periods[0].Equal(from) {
		t.Errorf("expected period start %v, got %v", from, periods[0])
	}
}

func TestClosedPeriodsMultiWeekCatchUp(t *testing.T) {
	// Scheduler down for three weeks: every closed period comes back,
	// oldest first, none skipped.
	from := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 25, 12, 0, 0, 0, time.UTC)
	periods := ClosedPeriodsSince(from, now)
	if len(periods) != 3 {
		t.Fatalf("expected 3 closed periods, got %d", len(periods))
	}
	for i := 1; i < len(periods); i++ {
		if !periods[i].Equal(PeriodEnd(periods[i-1])) {
			t.Errorf("periods not contiguous at %d: %v -> %v", i, periods[i-1], periods[i])
		}
	}
}

func TestClosedPeriodsUnalignedFrom(t *testing.T) {
	// A mid-week `from` (the epoch on first aggregation) yields the
	// period containing it, so posts created between the epoch and the
	// following Monday still land in a report.
	from := time.Date(2026, 2, 4, 12, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 17, 0, 0, 0, 0, time.UTC)
	periods := ClosedPeriodsSince(from, now)
	if len(periods) != 2 {
		t.Fatalf("expected 2 periods, got %d", len(periods))
	}
	first := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	if !periods[0].Equal(first) {
		t.Errorf("expected the period containing from, got %v", periods[0])
	}
	if !periods[1].Equal(time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected second period: %v", periods[1])
	}
}

func TestClosedPeriodsMarkerFrom(t *testing.T) {
	// Markers are period ends; the week ending at the marker is not
	// enumerated again.
	from := time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 17, 0, 0, 0, 0, time.UTC)
	periods := ClosedPeriodsSince(from, now)
	if len(periods) != 1 || !periods[0].Equal(from) {
		t.Fatalf("expected only the period starting at the marker, got %v", periods)
	}
}

func TestPeriodID(t *testing.T) {
	start := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	if got := PeriodID(start); got != "2026-02-02" {
		t.Errorf("expected '2026-02-02', got %q", got)
	}
}

func TestFormatPeriodDisplay(t *testing.T) {
	start := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	got := FormatPeriodDisplay(start)
	if got != "Feb 02 - Feb 08, 2026" {
		t.Errorf("unexpected display format: %q", got)
	}
}
