package engine_test

import (
	"errors"
	"testing"

	"teamline/internal/domain"
	"teamline/internal/engine"
	"teamline/internal/repo"
)

func (env testEnv) insertRawDay(t *testing.T, id, assignmentID, date string) {
	t.Helper()
	tx, err := env.Store.Begin(env.Ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	d := domain.DayAssignment{
		ID: id, AssignmentID: assignmentID, Date: date,
		CreatedAt: "2025-06-01T00:00:00Z",
	}
	if err := tx.InsertDay(env.Ctx, d); err != nil {
		t.Fatalf("insert day: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestReconcileRemovesDuplicateDays(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAssignment(t, "proj-1", "alice")
	// Duplicates are a known drift condition; the schema allows them on
	// purpose so reconciliation has something to repair.
	env.insertRawDay(t, "day-b", a.ID, "2025-06-02")
	env.insertRawDay(t, "day-a", a.ID, "2025-06-02")
	env.insertRawDay(t, "day-c", a.ID, "2025-06-03")

	outcome, err := env.Engine.Reconcile(env.Ctx, a.ID, []string{"2025-06-02", "2025-06-03"}, engine.ReconcileOptions{}, "tester")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if outcome.DuplicateDaysRemoved != 1 {
		t.Fatalf("duplicates removed = %d", outcome.DuplicateDaysRemoved)
	}
	days := env.days(t, a.ID)
	if len(days) != 2 {
		t.Fatalf("expected 2 days, got %d", len(days))
	}
	if days[0].ID != "day-a" {
		t.Fatalf("lowest-id duplicate should survive, got %s", days[0].ID)
	}
}

func TestReconcileCreatesGroupsForUncoveredRuns(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAssignment(t, "proj-1", "alice")
	env.insertRawDay(t, "d1", a.ID, "2025-06-02")
	env.insertRawDay(t, "d2", a.ID, "2025-06-03")
	env.insertRawDay(t, "d3", a.ID, "2025-06-06")

	outcome, err := env.Engine.Reconcile(env.Ctx, a.ID, []string{"2025-06-02", "2025-06-03", "2025-06-06"}, engine.ReconcileOptions{}, "tester")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(outcome.CreatedGroupIDs) != 2 {
		t.Fatalf("expected 2 created groups, got %v", outcome.CreatedGroupIDs)
	}
	groups := env.groups(t, a.ID)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].StartDate != "2025-06-02" || groups[0].EndDate != "2025-06-03" {
		t.Fatalf("run 1 bounds = [%s, %s]", groups[0].StartDate, groups[0].EndDate)
	}
	if groups[1].StartDate != "2025-06-06" || groups[1].EndDate != "2025-06-06" {
		t.Fatalf("run 2 bounds = [%s, %s]", groups[1].StartDate, groups[1].EndDate)
	}
	for _, g := range groups {
		if g.Priority != domain.PriorityNormal {
			t.Errorf("created group priority = %s", g.Priority)
		}
	}
}

func TestReconcileSkipsTouchedDatesThatAreNotLive(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAssignment(t, "proj-1", "alice")
	env.insertRawDay(t, "d1", a.ID, "2025-06-02")

	outcome, err := env.Engine.Reconcile(env.Ctx, a.ID, []string{"2025-06-02", "2025-06-10"}, engine.ReconcileOptions{}, "tester")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(outcome.CreatedGroupIDs) != 1 {
		t.Fatalf("only the live run should get a group, got %v", outcome.CreatedGroupIDs)
	}
	groups := env.groups(t, a.ID)
	if len(groups) != 1 || groups[0].StartDate != "2025-06-02" {
		t.Fatalf("unexpected groups %v", groups)
	}
}

func TestReconcileCoversRunWhoseFirstTouchedDateIsGone(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAssignment(t, "proj-1", "alice")
	env.insertRawDay(t, "d1", a.ID, "2025-06-03")

	// The caller touched 06-02 and 06-03, but 06-02 was removed before the
	// reconcile ran. The surviving 06-03 must still end up grouped.
	outcome, err := env.Engine.Reconcile(env.Ctx, a.ID, []string{"2025-06-02", "2025-06-03"}, engine.ReconcileOptions{}, "tester")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(outcome.CreatedGroupIDs) != 1 {
		t.Fatalf("expected 1 created group, got %v", outcome.CreatedGroupIDs)
	}
	groups := env.groups(t, a.ID)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].StartDate != "2025-06-03" || groups[0].EndDate != "2025-06-03" {
		t.Fatalf("group bounds = [%s, %s]", groups[0].StartDate, groups[0].EndDate)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAssignment(t, "proj-1", "alice")
	env.addDays(t, a.ID, "2025-06-02", "2025-06-03", "2025-06-04")

	touched := []string{"2025-06-02", "2025-06-03", "2025-06-04"}
	if _, err := env.Engine.Reconcile(env.Ctx, a.ID, touched, engine.ReconcileOptions{}, "tester"); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	before := env.groups(t, a.ID)

	outcome, err := env.Engine.Reconcile(env.Ctx, a.ID, touched, engine.ReconcileOptions{}, "tester")
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if outcome.DuplicateDaysRemoved != 0 || len(outcome.CreatedGroupIDs) != 0 ||
		len(outcome.MergedGroupIDs) != 0 || len(outcome.OrphanedGroupIDs) != 0 {
		t.Fatalf("second pass should change nothing: %+v", outcome)
	}
	after := env.groups(t, a.ID)
	if len(before) != len(after) || before[0].ID != after[0].ID {
		t.Fatalf("group structure changed across idempotent passes")
	}
}

func TestReconcileAbsorbsSiblingAssignments(t *testing.T) {
	env := newTestEnv(t)
	main := env.createAssignment(t, "proj-1", "alice")
	sibling := env.createAssignment(t, "proj-1", "alice")
	env.addDays(t, sibling.ID, "2025-06-05", "2025-06-06")

	outcome, err := env.Engine.AddDays(env.Ctx, engine.DaysCreateOptions{
		AssignmentID:   main.ID,
		Dates:          []string{"2025-06-02", "2025-06-03", "2025-06-04"},
		ExpandAdjacent: true,
		ActorID:        "tester",
	})
	if err != nil {
		t.Fatalf("add days: %v", err)
	}
	if len(outcome.AbsorbedAssignments) != 1 || outcome.AbsorbedAssignments[0] != sibling.ID {
		t.Fatalf("expected sibling absorbed, got %v", outcome.AbsorbedAssignments)
	}
	if _, err := env.Repo.GetAssignment(env.Ctx, sibling.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("sibling should be deleted, got %v", err)
	}
	days := env.days(t, main.ID)
	if len(days) != 5 {
		t.Fatalf("expected 5 days after absorption, got %d", len(days))
	}
	groups := env.groups(t, main.ID)
	if len(groups) != 1 {
		t.Fatalf("expected one merged group, got %d", len(groups))
	}
	if groups[0].StartDate != "2025-06-02" || groups[0].EndDate != "2025-06-06" {
		t.Fatalf("merged bounds = [%s, %s]", groups[0].StartDate, groups[0].EndDate)
	}
	if len(env.groups(t, sibling.ID)) != 0 {
		t.Fatalf("sibling groups should be deleted")
	}
}

func TestReconcileIgnoresUnrelatedAssignments(t *testing.T) {
	env := newTestEnv(t)
	main := env.createAssignment(t, "proj-1", "alice")
	otherProject := env.createAssignment(t, "proj-2", "alice")
	otherMember := env.createAssignment(t, "proj-1", "bob")
	env.addDays(t, otherProject.ID, "2025-06-05")
	env.addDays(t, otherMember.ID, "2025-06-05")

	outcome, err := env.Engine.AddDays(env.Ctx, engine.DaysCreateOptions{
		AssignmentID:   main.ID,
		Dates:          []string{"2025-06-04"},
		ExpandAdjacent: true,
		ActorID:        "tester",
	})
	if err != nil {
		t.Fatalf("add days: %v", err)
	}
	if len(outcome.AbsorbedAssignments) != 0 {
		t.Fatalf("unrelated assignments absorbed: %v", outcome.AbsorbedAssignments)
	}
	if _, err := env.Repo.GetAssignment(env.Ctx, otherProject.ID); err != nil {
		t.Fatalf("other-project assignment touched: %v", err)
	}
	if _, err := env.Repo.GetAssignment(env.Ctx, otherMember.ID); err != nil {
		t.Fatalf("other-member assignment touched: %v", err)
	}
}

func TestReconcileWithoutExpandLeavesSiblingsAlone(t *testing.T) {
	env := newTestEnv(t)
	main := env.createAssignment(t, "proj-1", "alice")
	sibling := env.createAssignment(t, "proj-1", "alice")
	env.addDays(t, sibling.ID, "2025-06-05")

	outcome, err := env.Engine.AddDays(env.Ctx, engine.DaysCreateOptions{
		AssignmentID: main.ID,
		Dates:        []string{"2025-06-04"},
		ActorID:      "tester",
	})
	if err != nil {
		t.Fatalf("add days: %v", err)
	}
	if len(outcome.AbsorbedAssignments) != 0 {
		t.Fatalf("absorption ran without expand_adjacent: %v", outcome.AbsorbedAssignments)
	}
	if _, err := env.Repo.GetAssignment(env.Ctx, sibling.ID); err != nil {
		t.Fatalf("sibling should be untouched: %v", err)
	}
}

func TestRebuildGroupsFromDrift(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAssignment(t, "proj-1", "alice")
	for i, date := range []string{"2025-06-02", "2025-06-03", "2025-06-04", "2025-06-08"} {
		env.insertRawDay(t, string(rune('a'+i)), a.ID, date)
	}
	// Drifted groups: one covering part of the first run, one orphan.
	tx, err := env.Store.Begin(env.Ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	high := "important"
	stale := domain.AssignmentGroup{
		ID: "g-stale", AssignmentID: a.ID,
		StartDate: "2025-06-03", EndDate: "2025-06-04",
		Priority: domain.PriorityHigh, Comment: &high,
		CreatedAt: "2025-06-01T00:00:00Z", UpdatedAt: "2025-06-01T00:00:00Z",
	}
	orphan := domain.AssignmentGroup{
		ID: "g-orphan", AssignmentID: a.ID,
		StartDate: "2025-07-01", EndDate: "2025-07-02",
		Priority:  domain.PriorityNormal,
		CreatedAt: "2025-06-01T00:00:00Z", UpdatedAt: "2025-06-01T00:00:00Z",
	}
	if err := tx.InsertGroup(env.Ctx, stale); err != nil {
		t.Fatalf("insert stale: %v", err)
	}
	if err := tx.InsertGroup(env.Ctx, orphan); err != nil {
		t.Fatalf("insert orphan: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	outcome, err := env.Engine.RebuildGroups(env.Ctx, a.ID, "tester")
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	groups := env.groups(t, a.ID)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups after rebuild, got %d", len(groups))
	}
	// The stale group is resized to its full run and keeps its metadata.
	if groups[0].ID != "g-stale" {
		t.Fatalf("touching group should survive, got %s", groups[0].ID)
	}
	if groups[0].StartDate != "2025-06-02" || groups[0].EndDate != "2025-06-04" {
		t.Fatalf("resized bounds = [%s, %s]", groups[0].StartDate, groups[0].EndDate)
	}
	if groups[0].Priority != domain.PriorityHigh || groups[0].Comment == nil {
		t.Fatalf("survivor lost metadata: %+v", groups[0])
	}
	// The isolated run gets a fresh default group.
	if groups[1].StartDate != "2025-06-08" || groups[1].EndDate != "2025-06-08" {
		t.Fatalf("fresh group bounds = [%s, %s]", groups[1].StartDate, groups[1].EndDate)
	}
	found := false
	for _, id := range outcome.DeletedGroupIDs {
		if id == "g-orphan" {
			found = true
		}
	}
	if !found {
		t.Fatalf("orphan should be deleted, outcome = %+v", outcome)
	}
}

func TestRebuildIsStable(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAssignment(t, "proj-1", "alice")
	env.addDays(t, a.ID, "2025-06-02", "2025-06-03", "2025-06-06")

	if _, err := env.Engine.RebuildGroups(env.Ctx, a.ID, "tester"); err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	before := env.groups(t, a.ID)
	outcome, err := env.Engine.RebuildGroups(env.Ctx, a.ID, "tester")
	if err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	if len(outcome.CreatedGroupIDs) != 0 || len(outcome.UpdatedGroupIDs) != 0 || len(outcome.DeletedGroupIDs) != 0 {
		t.Fatalf("second rebuild should be a no-op: %+v", outcome)
	}
	after := env.groups(t, a.ID)
	if len(before) != len(after) {
		t.Fatalf("rebuild changed group count")
	}
	for i := range before {
		if before[i].ID != after[i].ID {
			t.Fatalf("rebuild changed group identity")
		}
	}
}
