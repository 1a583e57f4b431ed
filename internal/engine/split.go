package engine

import (
	"context"

	"teamline/internal/domain"
	"teamline/internal/repo"
)

// SplitOutcome reports how removing a day reshaped the group structure.
type SplitOutcome struct {
	Split          bool     `json:"split"`
	DeletedGroupID string   `json:"deleted_group_id,omitempty"`
	GroupIDs       []string `json:"group_ids,omitempty"`
}

// splitOnDelete shrinks, splits, or deletes the group covering a date whose
// day row has just been removed.
func (e Engine) splitOnDelete(ctx context.Context, tx repo.Tx, assignmentID, date string) (SplitOutcome, error) {
	groups, err := tx.ListGroups(ctx, assignmentID)
	if err != nil {
		return SplitOutcome{}, err
	}
	var containing *domain.AssignmentGroup
	for i := range groups {
		if intervalContains(groups[i].StartDate, groups[i].EndDate, date) {
			containing = &groups[i]
			break
		}
	}
	if containing == nil {
		return SplitOutcome{}, nil
	}
	g := *containing

	switch {
	case g.StartDate == date && g.EndDate == date:
		if err := tx.DeleteGroups(ctx, []string{g.ID}); err != nil {
			return SplitOutcome{}, err
		}
		return SplitOutcome{DeletedGroupID: g.ID}, nil

	case g.StartDate == date:
		start := NextDay(date)
		if err := tx.UpdateGroup(ctx, g.ID, repo.GroupUpdate{StartDate: &start}); err != nil {
			return SplitOutcome{}, err
		}
		return SplitOutcome{GroupIDs: []string{g.ID}}, nil

	case g.EndDate == date:
		end := PrevDay(date)
		if err := tx.UpdateGroup(ctx, g.ID, repo.GroupUpdate{EndDate: &end}); err != nil {
			return SplitOutcome{}, err
		}
		return SplitOutcome{GroupIDs: []string{g.ID}}, nil

	default:
		// Interior date: the left half keeps the original row, the right
		// half is a new independent group with the same priority/comment.
		leftEnd := PrevDay(date)
		if err := tx.UpdateGroup(ctx, g.ID, repo.GroupUpdate{EndDate: &leftEnd}); err != nil {
			return SplitOutcome{}, err
		}
		right := e.newGroup(assignmentID, NextDay(date), g.EndDate, g.Priority, g.Comment)
		if err := tx.InsertGroup(ctx, right); err != nil {
			return SplitOutcome{}, err
		}
		return SplitOutcome{Split: true, GroupIDs: []string{g.ID, right.ID}}, nil
	}
}
