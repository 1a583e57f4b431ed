package engine

import (
	"context"

	"teamline/internal/repo"
)

// cleanupOrphans deletes every group whose interval no longer covers any live
// day assignment. Idempotent: a second run with no intervening mutation
// deletes nothing.
func (e Engine) cleanupOrphans(ctx context.Context, tx repo.Tx, assignmentID string) ([]string, error) {
	days, err := tx.ListDays(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	groups, err := tx.ListGroups(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	var orphaned []string
	for _, g := range groups {
		covered := false
		for _, d := range days {
			if intervalContains(g.StartDate, g.EndDate, d.Date) {
				covered = true
				break
			}
		}
		if !covered {
			orphaned = append(orphaned, g.ID)
		}
	}
	if len(orphaned) > 0 {
		if err := tx.DeleteGroups(ctx, orphaned); err != nil {
			return nil, err
		}
	}
	return orphaned, nil
}
