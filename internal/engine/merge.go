package engine

import (
	"context"

	"teamline/internal/domain"
	"teamline/internal/repo"
)

// MergeOutcome reports what a merge pass did to the group structure.
type MergeOutcome struct {
	Merged          bool     `json:"merged"`
	GroupID         string   `json:"group_id,omitempty"`
	StartDate       string   `json:"start_date,omitempty"`
	EndDate         string   `json:"end_date,omitempty"`
	DeletedGroupIDs []string `json:"deleted_group_ids,omitempty"`
}

// pickSurvivor decides which of two groups keeps its identity and metadata
// in a merge: the one covering more days, ties going to the chronologically
// earlier group. Equal starts fall back to the lower id so the choice stays
// deterministic.
func pickSurvivor(a, b domain.AssignmentGroup) (survivor, loser domain.AssignmentGroup) {
	sizeA := DayCount(a.StartDate, a.EndDate)
	sizeB := DayCount(b.StartDate, b.EndDate)
	switch {
	case sizeA > sizeB:
		return a, b
	case sizeB > sizeA:
		return b, a
	case a.StartDate < b.StartDate:
		return a, b
	case b.StartDate < a.StartDate:
		return b, a
	case a.ID < b.ID:
		return a, b
	default:
		return b, a
	}
}

// mergeOnAdd folds a freshly live date into the group structure. The caller
// has already inserted the day row; this only maintains groups. When the date
// touches no group it is deliberately left ungrouped; the batch reconcile
// path is the one that creates groups for stray runs.
func (e Engine) mergeOnAdd(ctx context.Context, tx repo.Tx, assignmentID, date string) (MergeOutcome, error) {
	days, err := tx.ListDays(ctx, assignmentID)
	if err != nil {
		return MergeOutcome{}, err
	}
	set := dateSet(days)
	groups, err := tx.ListGroups(ctx, assignmentID)
	if err != nil {
		return MergeOutcome{}, err
	}

	// Already covered: only re-derive the true contiguous span, since dates
	// elsewhere in the interval may have been backfilled.
	for _, g := range groups {
		if intervalContains(g.StartDate, g.EndDate, date) {
			start, end := contiguousSpan(set, date)
			if start != g.StartDate || end != g.EndDate {
				if err := tx.UpdateGroup(ctx, g.ID, repo.GroupUpdate{StartDate: &start, EndDate: &end}); err != nil {
					return MergeOutcome{}, err
				}
			}
			return MergeOutcome{GroupID: g.ID, StartDate: start, EndDate: end}, nil
		}
	}

	var before, after *domain.AssignmentGroup
	for i := range groups {
		g := groups[i]
		if g.EndDate == PrevDay(date) {
			before = &groups[i]
		}
		if g.StartDate == NextDay(date) {
			after = &groups[i]
		}
	}

	switch {
	case before != nil && after != nil:
		// Bridge-merge: the new day joins two groups into one.
		survivor, loser := pickSurvivor(*before, *after)
		if err := tx.DeleteGroups(ctx, []string{loser.ID}); err != nil {
			return MergeOutcome{}, err
		}
		start, end := contiguousSpan(set, date)
		if before.StartDate < start {
			start = before.StartDate
		}
		if after.EndDate > end {
			end = after.EndDate
		}
		if err := tx.UpdateGroup(ctx, survivor.ID, repo.GroupUpdate{StartDate: &start, EndDate: &end}); err != nil {
			return MergeOutcome{}, err
		}
		return MergeOutcome{
			Merged:          true,
			GroupID:         survivor.ID,
			StartDate:       start,
			EndDate:         end,
			DeletedGroupIDs: []string{loser.ID},
		}, nil

	case before != nil, after != nil:
		g := before
		if g == nil {
			g = after
		}
		start, end := contiguousSpan(set, date)
		if g.StartDate < start {
			start = g.StartDate
		}
		if g.EndDate > end {
			end = g.EndDate
		}
		if err := tx.UpdateGroup(ctx, g.ID, repo.GroupUpdate{StartDate: &start, EndDate: &end}); err != nil {
			return MergeOutcome{}, err
		}
		// The extension may have brought this group next to another one
		// that was not adjacent to the added date itself.
		deleted, err := e.sweepAdjacent(ctx, tx, assignmentID)
		if err != nil {
			return MergeOutcome{}, err
		}
		out := MergeOutcome{GroupID: g.ID, StartDate: start, EndDate: end, DeletedGroupIDs: deleted}
		if len(deleted) > 0 {
			out.Merged = true
			// The sweep may have folded g into a larger survivor.
			regrouped, err := tx.ListGroups(ctx, assignmentID)
			if err != nil {
				return MergeOutcome{}, err
			}
			for _, rg := range regrouped {
				if intervalContains(rg.StartDate, rg.EndDate, date) {
					out.GroupID = rg.ID
					out.StartDate = rg.StartDate
					out.EndDate = rg.EndDate
					break
				}
			}
		}
		return out, nil

	default:
		// Stray day: no group change on this narrow path.
		return MergeOutcome{}, nil
	}
}

// sweepAdjacent repeatedly merges overlapping or adjacent group pairs until a
// full pass over the assignment's groups changes nothing. Safe to run at any
// time; it is the self-healing half of the merge engine.
func (e Engine) sweepAdjacent(ctx context.Context, tx repo.Tx, assignmentID string) ([]string, error) {
	var deleted []string
	for {
		groups, err := tx.ListGroups(ctx, assignmentID)
		if err != nil {
			return deleted, err
		}
		merged := false
		for i := 0; i+1 < len(groups); i++ {
			a, b := groups[i], groups[i+1]
			if !intervalsTouch(a.StartDate, a.EndDate, b.StartDate, b.EndDate) {
				continue
			}
			survivor, loser := pickSurvivor(a, b)
			start, end := a.StartDate, a.EndDate
			if b.StartDate < start {
				start = b.StartDate
			}
			if b.EndDate > end {
				end = b.EndDate
			}
			if err := tx.DeleteGroups(ctx, []string{loser.ID}); err != nil {
				return deleted, err
			}
			if err := tx.UpdateGroup(ctx, survivor.ID, repo.GroupUpdate{StartDate: &start, EndDate: &end}); err != nil {
				return deleted, err
			}
			deleted = append(deleted, loser.ID)
			merged = true
			break
		}
		if !merged {
			return deleted, nil
		}
	}
}

func dateSet(days []domain.DayAssignment) map[string]bool {
	set := make(map[string]bool, len(days))
	for _, d := range days {
		set[d.Date] = true
	}
	return set
}

func groupIDs(groups []domain.AssignmentGroup) []string {
	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	return ids
}

func dayIDs(days []domain.DayAssignment) []string {
	ids := make([]string, 0, len(days))
	for _, d := range days {
		ids = append(ids, d.ID)
	}
	return ids
}
