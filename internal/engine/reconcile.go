package engine

import (
	"context"
	"sort"

	"teamline/internal/domain"
	"teamline/internal/events"
	"teamline/internal/repo"
)

// ReconcileOptions control the cross-entity pass.
type ReconcileOptions struct {
	// ExpandAdjacent absorbs sibling assignments (same project and member)
	// whose days fall within one day of the touched span.
	ExpandAdjacent bool `json:"expand_adjacent"`
}

// ReconcileOutcome summarizes a reconciliation run.
type ReconcileOutcome struct {
	DuplicateDaysRemoved int      `json:"duplicate_days_removed"`
	AbsorbedAssignments  []string `json:"absorbed_assignments,omitempty"`
	CreatedGroupIDs      []string `json:"created_group_ids,omitempty"`
	MergedGroupIDs       []string `json:"merged_group_ids,omitempty"`
	OrphanedGroupIDs     []string `json:"orphaned_group_ids,omitempty"`
}

// reconcileTx runs the full consolidation pass: intra-assignment dedupe,
// optional cross-assignment absorption, segment re-merge, adjacent sweep to a
// fixed point, then orphan cleanup. Finding state that already violates an
// invariant is normal here; repairing it is the job, not an error.
func (e Engine) reconcileTx(ctx context.Context, tx repo.Tx, assignmentID string, touched []string, opts ReconcileOptions, actorID string) (ReconcileOutcome, error) {
	var out ReconcileOutcome

	removed, live, err := e.dedupeDays(ctx, tx, assignmentID)
	if err != nil {
		return out, err
	}
	out.DuplicateDaysRemoved = removed

	if opts.ExpandAdjacent && len(touched) > 0 {
		absorbed, added, err := e.absorbSiblings(ctx, tx, assignmentID, touched, live, actorID)
		if err != nil {
			return out, err
		}
		out.AbsorbedAssignments = absorbed
		touched = append(touched, added...)
	}

	// Partition only the touched dates that still have a live day row. A
	// touched date removed since the caller collected it must not drag the
	// rest of its run down with it.
	var liveTouched []string
	for _, date := range touched {
		if live[date] {
			liveTouched = append(liveTouched, date)
		}
	}
	for _, run := range Runs(liveTouched) {
		merge, err := e.mergeOnAdd(ctx, tx, assignmentID, run.Start)
		if err != nil {
			return out, err
		}
		out.MergedGroupIDs = append(out.MergedGroupIDs, merge.DeletedGroupIDs...)
		if merge.GroupID != "" {
			continue
		}
		// Uncovered run: unlike the narrow per-day path, the batch path
		// creates a default group for it.
		start, end := contiguousSpan(live, run.Start)
		g := e.newGroup(assignmentID, start, end, e.defaultPriority(), nil)
		if err := tx.InsertGroup(ctx, g); err != nil {
			return out, err
		}
		out.CreatedGroupIDs = append(out.CreatedGroupIDs, g.ID)
	}

	swept, err := e.sweepAdjacent(ctx, tx, assignmentID)
	if err != nil {
		return out, err
	}
	out.MergedGroupIDs = append(out.MergedGroupIDs, swept...)

	orphaned, err := e.cleanupOrphans(ctx, tx, assignmentID)
	if err != nil {
		return out, err
	}
	out.OrphanedGroupIDs = orphaned
	return out, nil
}

// dedupeDays keeps the lowest-id row per date and deletes the rest. Returns
// the number of rows removed and the surviving date set.
func (e Engine) dedupeDays(ctx context.Context, tx repo.Tx, assignmentID string) (int, map[string]bool, error) {
	days, err := tx.ListDays(ctx, assignmentID)
	if err != nil {
		return 0, nil, err
	}
	keeper := map[string]domain.DayAssignment{}
	var extra []string
	for _, d := range days {
		prev, ok := keeper[d.Date]
		if !ok {
			keeper[d.Date] = d
			continue
		}
		if d.ID < prev.ID {
			extra = append(extra, prev.ID)
			keeper[d.Date] = d
		} else {
			extra = append(extra, d.ID)
		}
	}
	if len(extra) > 0 {
		if err := tx.DeleteDays(ctx, extra); err != nil {
			return 0, nil, err
		}
	}
	live := make(map[string]bool, len(keeper))
	for date := range keeper {
		live[date] = true
	}
	return len(extra), live, nil
}

// absorbSiblings transfers every day of sibling assignments (same project and
// member) whose dates come within one day of the touched span, then deletes
// the siblings and their groups outright. Assignments for a different project
// are never touched, whatever their dates. Returns absorbed assignment ids
// and the dates newly transferred in.
func (e Engine) absorbSiblings(ctx context.Context, tx repo.Tx, assignmentID string, touched []string, live map[string]bool, actorID string) ([]string, []string, error) {
	a, err := tx.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, nil, err
	}
	siblings, err := tx.FindAssignments(ctx, a.ProjectID, a.MemberID)
	if err != nil {
		return nil, nil, err
	}

	span := append([]string(nil), touched...)
	sort.Strings(span)
	windowStart := PrevDay(span[0])
	windowEnd := NextDay(span[len(span)-1])

	var absorbed []string
	var added []string
	for _, sib := range siblings {
		if sib.ID == assignmentID {
			continue
		}
		sibDays, err := tx.ListDays(ctx, sib.ID)
		if err != nil {
			return nil, nil, err
		}
		inWindow := false
		for _, d := range sibDays {
			if intervalContains(windowStart, windowEnd, d.Date) {
				inWindow = true
				break
			}
		}
		if !inWindow {
			continue
		}
		for _, d := range sibDays {
			if !live[d.Date] {
				nd := e.newDay(assignmentID, d.Date, d.Comment)
				if err := tx.InsertDay(ctx, nd); err != nil {
					return nil, nil, err
				}
				live[d.Date] = true
				added = append(added, d.Date)
			}
		}
		if err := tx.DeleteDays(ctx, dayIDs(sibDays)); err != nil {
			return nil, nil, err
		}
		sibGroups, err := tx.ListGroups(ctx, sib.ID)
		if err != nil {
			return nil, nil, err
		}
		if len(sibGroups) > 0 {
			if err := tx.DeleteGroups(ctx, groupIDs(sibGroups)); err != nil {
				return nil, nil, err
			}
		}
		if err := tx.DeleteAssignment(ctx, sib.ID); err != nil {
			return nil, nil, err
		}
		absorbed = append(absorbed, sib.ID)
		if err := tx.AppendEvent(ctx, "assignment.absorbed", assignmentID, "assignment", sib.ID, actorID, events.EventPayload{
			"into": assignmentID, "days": len(sibDays),
		}); err != nil {
			return nil, nil, err
		}
	}
	return absorbed, added, nil
}

// RebuildOutcome summarizes a from-scratch rebuild.
type RebuildOutcome struct {
	CreatedGroupIDs []string `json:"created_group_ids,omitempty"`
	UpdatedGroupIDs []string `json:"updated_group_ids,omitempty"`
	DeletedGroupIDs []string `json:"deleted_group_ids,omitempty"`
}

// rebuildTx discards incremental reasoning and recomputes the minimal group
// cover directly from the live day rows: per contiguous run, the touching
// group with the most days survives and is resized to the run, other touching
// groups are deleted, and runs nothing touches get a fresh default group.
func (e Engine) rebuildTx(ctx context.Context, tx repo.Tx, assignmentID string) (RebuildOutcome, error) {
	var out RebuildOutcome
	if _, _, err := e.dedupeDays(ctx, tx, assignmentID); err != nil {
		return out, err
	}
	days, err := tx.ListDays(ctx, assignmentID)
	if err != nil {
		return out, err
	}
	groups, err := tx.ListGroups(ctx, assignmentID)
	if err != nil {
		return out, err
	}
	dates := make([]string, 0, len(days))
	for _, d := range days {
		dates = append(dates, d.Date)
	}

	claimed := map[string]bool{}
	for _, run := range Runs(dates) {
		var touching []domain.AssignmentGroup
		for _, g := range groups {
			if !claimed[g.ID] && intervalsTouch(g.StartDate, g.EndDate, run.Start, run.End) {
				touching = append(touching, g)
			}
		}
		if len(touching) == 0 {
			g := e.newGroup(assignmentID, run.Start, run.End, e.defaultPriority(), nil)
			if err := tx.InsertGroup(ctx, g); err != nil {
				return out, err
			}
			out.CreatedGroupIDs = append(out.CreatedGroupIDs, g.ID)
			continue
		}
		survivor := touching[0]
		for _, g := range touching[1:] {
			survivor, _ = pickSurvivor(survivor, g)
		}
		for _, g := range touching {
			claimed[g.ID] = true
			if g.ID == survivor.ID {
				continue
			}
			if err := tx.DeleteGroups(ctx, []string{g.ID}); err != nil {
				return out, err
			}
			out.DeletedGroupIDs = append(out.DeletedGroupIDs, g.ID)
		}
		if survivor.StartDate != run.Start || survivor.EndDate != run.End {
			start, end := run.Start, run.End
			if err := tx.UpdateGroup(ctx, survivor.ID, repo.GroupUpdate{StartDate: &start, EndDate: &end}); err != nil {
				return out, err
			}
			out.UpdatedGroupIDs = append(out.UpdatedGroupIDs, survivor.ID)
		}
	}

	// Groups no run claimed cover zero live days.
	for _, g := range groups {
		if !claimed[g.ID] {
			if err := tx.DeleteGroups(ctx, []string{g.ID}); err != nil {
				return out, err
			}
			out.DeletedGroupIDs = append(out.DeletedGroupIDs, g.ID)
		}
	}
	return out, nil
}
