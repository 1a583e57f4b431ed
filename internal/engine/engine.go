package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"teamline/internal/config"
	"teamline/internal/domain"
	"teamline/internal/events"
	"teamline/internal/repo"
)

// Engine maintains the derived assignment-group structure over the atomic
// day-assignment facts. It owns no storage; every operation runs inside a
// single transaction obtained from the store port.
type Engine struct {
	Store  repo.Store
	Config *config.Config
	Now    func() time.Time
}

func New(store repo.Store, cfg *config.Config) Engine {
	return Engine{
		Store:  store,
		Config: cfg,
		Now:    time.Now,
	}
}

// ErrInvalidRange rejects ranges whose start is after their end before
// anything is mutated.
var ErrInvalidRange = errors.New("invalid range: start date after end date")

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) defaultPriority() string {
	if e.Config != nil && domain.ValidPriority(e.Config.Schedule.DefaultPriority) {
		return e.Config.Schedule.DefaultPriority
	}
	return domain.PriorityNormal
}

func (e Engine) newDay(assignmentID, date string, comment *string) domain.DayAssignment {
	return domain.DayAssignment{
		ID:           uuid.New().String(),
		AssignmentID: assignmentID,
		Date:         date,
		Comment:      comment,
		CreatedAt:    e.now().UTC().Format(time.RFC3339),
	}
}

func (e Engine) newGroup(assignmentID, start, end, priority string, comment *string) domain.AssignmentGroup {
	now := e.now().UTC().Format(time.RFC3339)
	return domain.AssignmentGroup{
		ID:           uuid.New().String(),
		AssignmentID: assignmentID,
		StartDate:    start,
		EndDate:      end,
		Priority:     priority,
		Comment:      comment,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// AssignmentCreateOptions are parameters for registering an assignment.
type AssignmentCreateOptions struct {
	ID        string
	ProjectID string
	MemberID  string
	Label     string
	ActorID   string
}

func (e Engine) CreateAssignment(ctx context.Context, opts AssignmentCreateOptions) (domain.Assignment, error) {
	if opts.ProjectID == "" {
		return domain.Assignment{}, errors.New("project is required")
	}
	if opts.MemberID == "" {
		return domain.Assignment{}, errors.New("member is required")
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	a := domain.Assignment{
		ID:        id,
		ProjectID: opts.ProjectID,
		MemberID:  opts.MemberID,
		Label:     opts.Label,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.Store.Begin(ctx)
	if err != nil {
		return domain.Assignment{}, err
	}
	defer tx.Rollback()
	if err := tx.InsertAssignment(ctx, a); err != nil {
		return domain.Assignment{}, fmt.Errorf("insert assignment: %w", err)
	}
	if err := tx.AppendEvent(ctx, "assignment.created", a.ID, "assignment", a.ID, opts.ActorID, events.EventPayload{
		"project_id": a.ProjectID, "member_id": a.MemberID,
	}); err != nil {
		return domain.Assignment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Assignment{}, err
	}
	return a, nil
}

// DeleteAssignment removes an assignment with all its days and groups.
func (e Engine) DeleteAssignment(ctx context.Context, assignmentID, actorID string) error {
	tx, err := e.Store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.GetAssignment(ctx, assignmentID); err != nil {
		return err
	}
	days, err := tx.ListDays(ctx, assignmentID)
	if err != nil {
		return err
	}
	if err := tx.DeleteDays(ctx, dayIDs(days)); err != nil {
		return err
	}
	groups, err := tx.ListGroups(ctx, assignmentID)
	if err != nil {
		return err
	}
	if err := tx.DeleteGroups(ctx, groupIDs(groups)); err != nil {
		return err
	}
	if err := tx.DeleteAssignment(ctx, assignmentID); err != nil {
		return err
	}
	if err := tx.AppendEvent(ctx, "assignment.deleted", assignmentID, "assignment", assignmentID, actorID, events.EventPayload{
		"days": len(days), "groups": len(groups),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// AddDay records one scheduled day and folds it into the group structure.
// Adding a date that is already live just re-derives the covering group's
// contiguous span (backfill semantics).
func (e Engine) AddDay(ctx context.Context, assignmentID, date, comment, actorID string) (MergeOutcome, error) {
	tx, err := e.Store.Begin(ctx)
	if err != nil {
		return MergeOutcome{}, err
	}
	defer tx.Rollback()
	if _, err := tx.GetAssignment(ctx, assignmentID); err != nil {
		return MergeOutcome{}, err
	}
	days, err := tx.ListDays(ctx, assignmentID)
	if err != nil {
		return MergeOutcome{}, err
	}
	if !dateSet(days)[date] {
		var c *string
		if comment != "" {
			c = &comment
		}
		if err := tx.InsertDay(ctx, e.newDay(assignmentID, date, c)); err != nil {
			return MergeOutcome{}, err
		}
	}
	outcome, err := e.mergeOnAdd(ctx, tx, assignmentID, date)
	if err != nil {
		return MergeOutcome{}, err
	}
	if err := tx.AppendEvent(ctx, "day.added", assignmentID, "day", date, actorID, events.EventPayload{
		"date": date, "merged": outcome.Merged,
	}); err != nil {
		return MergeOutcome{}, err
	}
	if outcome.Merged {
		if err := tx.AppendEvent(ctx, "groups.merged", assignmentID, "group", outcome.GroupID, actorID, events.EventPayload{
			"start_date": outcome.StartDate, "end_date": outcome.EndDate, "deleted": outcome.DeletedGroupIDs,
		}); err != nil {
			return MergeOutcome{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return MergeOutcome{}, err
	}
	return outcome, nil
}

// RemoveDay deletes a scheduled day and shrinks, splits, or deletes the group
// that covered it. Removing a date with no live row is a no-op.
func (e Engine) RemoveDay(ctx context.Context, assignmentID, date, actorID string) (SplitOutcome, error) {
	tx, err := e.Store.Begin(ctx)
	if err != nil {
		return SplitOutcome{}, err
	}
	defer tx.Rollback()
	if _, err := tx.GetAssignment(ctx, assignmentID); err != nil {
		return SplitOutcome{}, err
	}
	days, err := tx.ListDays(ctx, assignmentID)
	if err != nil {
		return SplitOutcome{}, err
	}
	var doomed []string
	for _, d := range days {
		if d.Date == date {
			doomed = append(doomed, d.ID)
		}
	}
	if len(doomed) == 0 {
		return SplitOutcome{}, nil
	}
	if err := tx.DeleteDays(ctx, doomed); err != nil {
		return SplitOutcome{}, err
	}
	outcome, err := e.splitOnDelete(ctx, tx, assignmentID, date)
	if err != nil {
		return SplitOutcome{}, err
	}
	if _, err := e.cleanupOrphans(ctx, tx, assignmentID); err != nil {
		return SplitOutcome{}, err
	}
	if err := tx.AppendEvent(ctx, "day.removed", assignmentID, "day", date, actorID, events.EventPayload{
		"date": date, "split": outcome.Split,
	}); err != nil {
		return SplitOutcome{}, err
	}
	if outcome.Split {
		if err := tx.AppendEvent(ctx, "group.split", assignmentID, "group", outcome.GroupIDs[0], actorID, events.EventPayload{
			"groups": outcome.GroupIDs,
		}); err != nil {
			return SplitOutcome{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return SplitOutcome{}, err
	}
	return outcome, nil
}

// DaysCreateOptions are parameters for a batch day insert.
type DaysCreateOptions struct {
	AssignmentID   string
	Dates          []string
	Comment        string
	ExpandAdjacent bool
	ActorID        string
}

// AddDays inserts the missing dates in one shot and reconciles the touched
// range, creating default-priority groups for runs no group covers.
func (e Engine) AddDays(ctx context.Context, opts DaysCreateOptions) (ReconcileOutcome, error) {
	if len(opts.Dates) == 0 {
		return ReconcileOutcome{}, errors.New("dates are required")
	}
	tx, err := e.Store.Begin(ctx)
	if err != nil {
		return ReconcileOutcome{}, err
	}
	defer tx.Rollback()
	if _, err := tx.GetAssignment(ctx, opts.AssignmentID); err != nil {
		return ReconcileOutcome{}, err
	}
	days, err := tx.ListDays(ctx, opts.AssignmentID)
	if err != nil {
		return ReconcileOutcome{}, err
	}
	live := dateSet(days)
	var c *string
	if opts.Comment != "" {
		c = &opts.Comment
	}
	inserted := 0
	for _, date := range opts.Dates {
		if live[date] {
			continue
		}
		if err := tx.InsertDay(ctx, e.newDay(opts.AssignmentID, date, c)); err != nil {
			return ReconcileOutcome{}, err
		}
		live[date] = true
		inserted++
	}
	outcome, err := e.reconcileTx(ctx, tx, opts.AssignmentID, opts.Dates, ReconcileOptions{ExpandAdjacent: opts.ExpandAdjacent}, opts.ActorID)
	if err != nil {
		return ReconcileOutcome{}, err
	}
	if err := tx.AppendEvent(ctx, "days.created", opts.AssignmentID, "day", "", opts.ActorID, events.EventPayload{
		"count": inserted,
	}); err != nil {
		return ReconcileOutcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return ReconcileOutcome{}, err
	}
	return outcome, nil
}

// MoveOptions describe a contiguous range move.
type MoveOptions struct {
	AssignmentID string
	FromStart    string
	FromEnd      string
	ToStart      string
	ActorID      string
}

// MoveOutcome reports a range move.
type MoveOutcome struct {
	MovedDays int              `json:"moved_days"`
	Reconcile ReconcileOutcome `json:"reconcile"`
}

// MoveDays shifts every day in [FromStart,FromEnd] so the range begins at
// ToStart, maintaining groups while vacating and reconciling the landing
// range afterwards. Whether siblings are absorbed is controlled by
// schedule.expand_adjacent_on_move.
func (e Engine) MoveDays(ctx context.Context, opts MoveOptions) (MoveOutcome, error) {
	if opts.FromStart > opts.FromEnd {
		return MoveOutcome{}, ErrInvalidRange
	}
	tx, err := e.Store.Begin(ctx)
	if err != nil {
		return MoveOutcome{}, err
	}
	defer tx.Rollback()
	if _, err := tx.GetAssignment(ctx, opts.AssignmentID); err != nil {
		return MoveOutcome{}, err
	}
	days, err := tx.ListDays(ctx, opts.AssignmentID)
	if err != nil {
		return MoveOutcome{}, err
	}
	var moving []domain.DayAssignment
	live := dateSet(days)
	for _, d := range days {
		if intervalContains(opts.FromStart, opts.FromEnd, d.Date) {
			moving = append(moving, d)
			delete(live, d.Date)
		}
	}
	if len(moving) == 0 {
		return MoveOutcome{}, nil
	}
	for _, d := range moving {
		if err := tx.DeleteDays(ctx, []string{d.ID}); err != nil {
			return MoveOutcome{}, err
		}
		if _, err := e.splitOnDelete(ctx, tx, opts.AssignmentID, d.Date); err != nil {
			return MoveOutcome{}, err
		}
	}
	delta := DaysBetween(opts.FromStart, opts.ToStart)
	var landed []string
	for _, d := range moving {
		target := shiftDay(d.Date, delta)
		if live[target] {
			continue
		}
		if err := tx.InsertDay(ctx, e.newDay(opts.AssignmentID, target, d.Comment)); err != nil {
			return MoveOutcome{}, err
		}
		live[target] = true
		landed = append(landed, target)
	}
	expand := true
	if e.Config != nil {
		expand = e.Config.Schedule.ExpandAdjacentOnMove
	}
	rec, err := e.reconcileTx(ctx, tx, opts.AssignmentID, landed, ReconcileOptions{ExpandAdjacent: expand}, opts.ActorID)
	if err != nil {
		return MoveOutcome{}, err
	}
	if err := tx.AppendEvent(ctx, "days.moved", opts.AssignmentID, "day", "", opts.ActorID, events.EventPayload{
		"from_start": opts.FromStart, "from_end": opts.FromEnd, "to_start": opts.ToStart, "count": len(moving),
	}); err != nil {
		return MoveOutcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return MoveOutcome{}, err
	}
	return MoveOutcome{MovedDays: len(moving), Reconcile: rec}, nil
}

// Reconcile runs the cross-entity consolidation pass over the touched dates.
func (e Engine) Reconcile(ctx context.Context, assignmentID string, touched []string, opts ReconcileOptions, actorID string) (ReconcileOutcome, error) {
	tx, err := e.Store.Begin(ctx)
	if err != nil {
		return ReconcileOutcome{}, err
	}
	defer tx.Rollback()
	if _, err := tx.GetAssignment(ctx, assignmentID); err != nil {
		return ReconcileOutcome{}, err
	}
	outcome, err := e.reconcileTx(ctx, tx, assignmentID, touched, opts, actorID)
	if err != nil {
		return ReconcileOutcome{}, err
	}
	if err := tx.AppendEvent(ctx, "assignment.reconciled", assignmentID, "assignment", assignmentID, actorID, events.EventPayload{
		"duplicates_removed": outcome.DuplicateDaysRemoved,
		"absorbed":           outcome.AbsorbedAssignments,
	}); err != nil {
		return ReconcileOutcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return ReconcileOutcome{}, err
	}
	return outcome, nil
}

// RebuildGroups recomputes the minimal group cover from the live day rows.
// More work than the incremental paths, but immune to accumulated drift.
func (e Engine) RebuildGroups(ctx context.Context, assignmentID, actorID string) (RebuildOutcome, error) {
	tx, err := e.Store.Begin(ctx)
	if err != nil {
		return RebuildOutcome{}, err
	}
	defer tx.Rollback()
	if _, err := tx.GetAssignment(ctx, assignmentID); err != nil {
		return RebuildOutcome{}, err
	}
	outcome, err := e.rebuildTx(ctx, tx, assignmentID)
	if err != nil {
		return RebuildOutcome{}, err
	}
	if err := tx.AppendEvent(ctx, "groups.rebuilt", assignmentID, "assignment", assignmentID, actorID, events.EventPayload{
		"created": len(outcome.CreatedGroupIDs),
		"updated": len(outcome.UpdatedGroupIDs),
		"deleted": len(outcome.DeletedGroupIDs),
	}); err != nil {
		return RebuildOutcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return RebuildOutcome{}, err
	}
	return outcome, nil
}

// CleanupOrphans deletes groups covering zero live days and returns their ids.
func (e Engine) CleanupOrphans(ctx context.Context, assignmentID, actorID string) ([]string, error) {
	tx, err := e.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if _, err := tx.GetAssignment(ctx, assignmentID); err != nil {
		return nil, err
	}
	orphaned, err := e.cleanupOrphans(ctx, tx, assignmentID)
	if err != nil {
		return nil, err
	}
	if len(orphaned) > 0 {
		if err := tx.AppendEvent(ctx, "groups.orphaned", assignmentID, "group", "", actorID, events.EventPayload{
			"deleted": orphaned,
		}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return orphaned, nil
}

// GroupMetaOptions update a group's user-facing metadata.
type GroupMetaOptions struct {
	GroupID  string
	Priority *string
	Comment  *string
	ActorID  string
}

func (e Engine) SetGroupMeta(ctx context.Context, opts GroupMetaOptions) (domain.AssignmentGroup, error) {
	if opts.Priority != nil && !domain.ValidPriority(*opts.Priority) {
		return domain.AssignmentGroup{}, fmt.Errorf("invalid priority %q", *opts.Priority)
	}
	tx, err := e.Store.Begin(ctx)
	if err != nil {
		return domain.AssignmentGroup{}, err
	}
	defer tx.Rollback()
	g, err := tx.GetGroup(ctx, opts.GroupID)
	if err != nil {
		return domain.AssignmentGroup{}, err
	}
	if err := tx.UpdateGroup(ctx, g.ID, repo.GroupUpdate{Priority: opts.Priority, Comment: opts.Comment}); err != nil {
		return domain.AssignmentGroup{}, err
	}
	updated, err := tx.GetGroup(ctx, g.ID)
	if err != nil {
		return domain.AssignmentGroup{}, err
	}
	if err := tx.AppendEvent(ctx, "group.updated", g.AssignmentID, "group", g.ID, opts.ActorID, events.EventPayload{
		"priority": updated.Priority,
	}); err != nil {
		return domain.AssignmentGroup{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.AssignmentGroup{}, err
	}
	return updated, nil
}
