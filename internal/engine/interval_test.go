package engine

import (
	"reflect"
	"testing"

	"teamline/internal/domain"
)

func TestDayStepRollsOverBoundaries(t *testing.T) {
	cases := []struct {
		day  string
		next string
	}{
		{"2025-01-31", "2025-02-01"},
		{"2025-12-31", "2026-01-01"},
		{"2024-02-28", "2024-02-29"}, // leap year
		{"2025-02-28", "2025-03-01"},
		{"2025-06-15", "2025-06-16"},
	}
	for _, c := range cases {
		if got := NextDay(c.day); got != c.next {
			t.Errorf("NextDay(%s) = %s, want %s", c.day, got, c.next)
		}
		if got := PrevDay(c.next); got != c.day {
			t.Errorf("PrevDay(%s) = %s, want %s", c.next, got, c.day)
		}
		if !IsAdjacent(c.day, c.next) {
			t.Errorf("IsAdjacent(%s, %s) = false", c.day, c.next)
		}
	}
}

func TestDayCount(t *testing.T) {
	if got := DayCount("2025-03-01", "2025-03-01"); got != 1 {
		t.Errorf("single day count = %d", got)
	}
	if got := DayCount("2025-02-27", "2025-03-02"); got != 4 {
		t.Errorf("month-spanning count = %d", got)
	}
	if got := DayCount("2025-03-02", "2025-03-01"); got != 0 {
		t.Errorf("inverted range count = %d, want 0", got)
	}
}

func TestDaysBetweenSigned(t *testing.T) {
	if got := DaysBetween("2025-01-10", "2025-01-13"); got != 3 {
		t.Errorf("forward = %d", got)
	}
	if got := DaysBetween("2025-01-13", "2025-01-10"); got != -3 {
		t.Errorf("backward = %d", got)
	}
}

func TestRunsPartitionsDates(t *testing.T) {
	got := Runs([]string{"2025-05-03", "2025-05-01", "2025-05-02", "2025-05-02", "2025-05-06"})
	want := []Run{
		{Start: "2025-05-01", End: "2025-05-03"},
		{Start: "2025-05-06", End: "2025-05-06"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Runs = %v, want %v", got, want)
	}
	if Runs(nil) != nil {
		t.Errorf("Runs(nil) should be nil")
	}
}

func TestContiguousSpanWalksBothDirections(t *testing.T) {
	set := map[string]bool{
		"2025-04-28": true,
		"2025-04-29": true,
		"2025-04-30": true,
		"2025-05-01": true,
		"2025-05-03": true,
	}
	start, end := contiguousSpan(set, "2025-04-30")
	if start != "2025-04-28" || end != "2025-05-01" {
		t.Errorf("span = [%s, %s]", start, end)
	}
	start, end = contiguousSpan(set, "2025-05-03")
	if start != "2025-05-03" || end != "2025-05-03" {
		t.Errorf("isolated span = [%s, %s]", start, end)
	}
}

func TestIntervalsTouch(t *testing.T) {
	cases := []struct {
		s1, e1, s2, e2 string
		want           bool
	}{
		{"2025-01-01", "2025-01-05", "2025-01-03", "2025-01-08", true},  // overlap
		{"2025-01-01", "2025-01-05", "2025-01-06", "2025-01-08", true},  // adjacent
		{"2025-01-06", "2025-01-08", "2025-01-01", "2025-01-05", true},  // adjacent, reversed
		{"2025-01-01", "2025-01-05", "2025-01-07", "2025-01-08", false}, // one day gap
	}
	for _, c := range cases {
		if got := intervalsTouch(c.s1, c.e1, c.s2, c.e2); got != c.want {
			t.Errorf("intervalsTouch(%s-%s, %s-%s) = %v", c.s1, c.e1, c.s2, c.e2, got)
		}
	}
}

func TestPickSurvivorOrdering(t *testing.T) {
	big := domain.AssignmentGroup{ID: "z", StartDate: "2025-01-01", EndDate: "2025-01-05"}
	small := domain.AssignmentGroup{ID: "a", StartDate: "2025-01-07", EndDate: "2025-01-08"}
	if s, _ := pickSurvivor(small, big); s.ID != "z" {
		t.Errorf("larger group should survive, got %s", s.ID)
	}

	early := domain.AssignmentGroup{ID: "z", StartDate: "2025-01-01", EndDate: "2025-01-02"}
	late := domain.AssignmentGroup{ID: "a", StartDate: "2025-01-04", EndDate: "2025-01-05"}
	if s, _ := pickSurvivor(late, early); s.ID != "z" {
		t.Errorf("equal size: earlier group should survive, got %s", s.ID)
	}

	one := domain.AssignmentGroup{ID: "b", StartDate: "2025-01-01", EndDate: "2025-01-02"}
	two := domain.AssignmentGroup{ID: "c", StartDate: "2025-01-01", EndDate: "2025-01-02"}
	if s, _ := pickSurvivor(two, one); s.ID != "b" {
		t.Errorf("full tie: lower id should survive, got %s", s.ID)
	}
}
