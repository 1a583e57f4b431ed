package engine

import (
	"sort"
	"time"
)

// Dates are ISO YYYY-MM-DD strings throughout; lexicographic order on that
// form equals chronological order, so plain string comparison is used for
// ordering and real calendar math only for stepping across day boundaries.
const dayLayout = "2006-01-02"

// ParseDay parses an ISO calendar date.
func ParseDay(s string) (time.Time, error) {
	return time.Parse(dayLayout, s)
}

// FormatDay renders t as an ISO calendar date.
func FormatDay(t time.Time) string {
	return t.Format(dayLayout)
}

// ValidDay reports whether s is a well-formed ISO calendar date.
func ValidDay(s string) bool {
	_, err := ParseDay(s)
	return err == nil
}

func shiftDay(d string, days int) string {
	t, err := ParseDay(d)
	if err != nil {
		return d
	}
	return FormatDay(t.AddDate(0, 0, days))
}

// NextDay returns the calendar day after d, rolling over month and year
// boundaries.
func NextDay(d string) string {
	return shiftDay(d, 1)
}

// PrevDay returns the calendar day before d.
func PrevDay(d string) string {
	return shiftDay(d, -1)
}

// IsAdjacent reports whether b is the day immediately after a.
func IsAdjacent(a, b string) bool {
	return NextDay(a) == b
}

// DaysBetween returns the signed number of days from a to b.
func DaysBetween(a, b string) int {
	ta, errA := ParseDay(a)
	tb, errB := ParseDay(b)
	if errA != nil || errB != nil {
		return 0
	}
	return int(tb.Sub(ta) / (24 * time.Hour))
}

// DayCount returns the inclusive day span of [a,b], or 0 when a is after b.
func DayCount(a, b string) int {
	if a > b {
		return 0
	}
	return DaysBetween(a, b) + 1
}

// intervalContains reports whether d lies inside the inclusive [start,end].
func intervalContains(start, end, d string) bool {
	return start <= d && d <= end
}

// intervalsTouch reports whether [s1,e1] and [s2,e2] overlap or sit exactly
// one day apart.
func intervalsTouch(s1, e1, s2, e2 string) bool {
	if s1 <= e2 && s2 <= e1 {
		return true
	}
	return IsAdjacent(e1, s2) || IsAdjacent(e2, s1)
}

// Run is a maximal contiguous run of dates, inclusive on both ends.
type Run struct {
	Start string
	End   string
}

// Runs partitions dates into maximal contiguous runs. Input order does not
// matter and duplicates are ignored.
func Runs(dates []string) []Run {
	if len(dates) == 0 {
		return nil
	}
	uniq := make([]string, 0, len(dates))
	seen := make(map[string]bool, len(dates))
	for _, d := range dates {
		if !seen[d] {
			seen[d] = true
			uniq = append(uniq, d)
		}
	}
	sort.Strings(uniq)
	var runs []Run
	cur := Run{Start: uniq[0], End: uniq[0]}
	for _, d := range uniq[1:] {
		if IsAdjacent(cur.End, d) {
			cur.End = d
			continue
		}
		runs = append(runs, cur)
		cur = Run{Start: d, End: d}
	}
	runs = append(runs, cur)
	return runs
}

// contiguousSpan walks outward from seed through the live dates in set and
// returns the maximal contiguous run containing it.
func contiguousSpan(set map[string]bool, seed string) (string, string) {
	start, end := seed, seed
	for set[PrevDay(start)] {
		start = PrevDay(start)
	}
	for set[NextDay(end)] {
		end = NextDay(end)
	}
	return start, end
}
