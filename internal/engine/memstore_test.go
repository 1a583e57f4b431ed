package engine_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"teamline/internal/config"
	"teamline/internal/domain"
	"teamline/internal/engine"
	"teamline/internal/events"
	"teamline/internal/repo"
)

// memStore is an in-memory repo.Store. The engine only ever sees the Tx
// port, so swapping sqlite for maps has to be invisible to it.
type memStore struct {
	assignments map[string]domain.Assignment
	days        map[string]domain.DayAssignment
	groups      map[string]domain.AssignmentGroup
	eventTypes  []string
}

func newMemStore() *memStore {
	return &memStore{
		assignments: map[string]domain.Assignment{},
		days:        map[string]domain.DayAssignment{},
		groups:      map[string]domain.AssignmentGroup{},
	}
}

func (s *memStore) Begin(ctx context.Context) (repo.Tx, error) {
	return &memTx{store: s}, nil
}

// memTx applies writes immediately; Commit and Rollback are no-ops, which is
// fine for single-goroutine happy-path tests.
type memTx struct {
	store *memStore
}

func (t *memTx) GetAssignment(ctx context.Context, id string) (domain.Assignment, error) {
	a, ok := t.store.assignments[id]
	if !ok {
		return domain.Assignment{}, repo.ErrNotFound
	}
	return a, nil
}

func (t *memTx) InsertAssignment(ctx context.Context, a domain.Assignment) error {
	t.store.assignments[a.ID] = a
	return nil
}

func (t *memTx) DeleteAssignment(ctx context.Context, id string) error {
	if _, ok := t.store.assignments[id]; !ok {
		return repo.ErrNotFound
	}
	delete(t.store.assignments, id)
	return nil
}

func (t *memTx) FindAssignments(ctx context.Context, projectID, memberID string) ([]domain.Assignment, error) {
	var out []domain.Assignment
	for _, a := range t.store.assignments {
		if a.ProjectID == projectID && a.MemberID == memberID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) ListDays(ctx context.Context, assignmentID string) ([]domain.DayAssignment, error) {
	var out []domain.DayAssignment
	for _, d := range t.store.days {
		if d.AssignmentID == assignmentID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) InsertDay(ctx context.Context, d domain.DayAssignment) error {
	t.store.days[d.ID] = d
	return nil
}

func (t *memTx) DeleteDays(ctx context.Context, ids []string) error {
	for _, id := range ids {
		delete(t.store.days, id)
	}
	return nil
}

func (t *memTx) ListGroups(ctx context.Context, assignmentID string) ([]domain.AssignmentGroup, error) {
	var out []domain.AssignmentGroup
	for _, g := range t.store.groups {
		if g.AssignmentID == assignmentID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartDate != out[j].StartDate {
			return out[i].StartDate < out[j].StartDate
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) GetGroup(ctx context.Context, id string) (domain.AssignmentGroup, error) {
	g, ok := t.store.groups[id]
	if !ok {
		return domain.AssignmentGroup{}, repo.ErrNotFound
	}
	return g, nil
}

func (t *memTx) InsertGroup(ctx context.Context, g domain.AssignmentGroup) error {
	t.store.groups[g.ID] = g
	return nil
}

func (t *memTx) UpdateGroup(ctx context.Context, id string, upd repo.GroupUpdate) error {
	g, ok := t.store.groups[id]
	if !ok {
		return repo.ErrNotFound
	}
	if upd.StartDate != nil {
		g.StartDate = *upd.StartDate
	}
	if upd.EndDate != nil {
		g.EndDate = *upd.EndDate
	}
	if upd.Priority != nil {
		g.Priority = *upd.Priority
	}
	if upd.Comment != nil {
		if *upd.Comment == "" {
			g.Comment = nil
		} else {
			c := *upd.Comment
			g.Comment = &c
		}
	}
	t.store.groups[id] = g
	return nil
}

func (t *memTx) DeleteGroups(ctx context.Context, ids []string) error {
	for _, id := range ids {
		delete(t.store.groups, id)
	}
	return nil
}

func (t *memTx) AppendEvent(ctx context.Context, evtType, assignmentID, entityKind, entityID, actorID string, payload events.EventPayload) error {
	t.store.eventTypes = append(t.store.eventTypes, evtType)
	return nil
}

func (t *memTx) Commit() error   { return nil }
func (t *memTx) Rollback() error { return nil }

func TestEngineRunsOnAlternateStore(t *testing.T) {
	store := newMemStore()
	eng := engine.New(store, config.Default())
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	a, err := eng.CreateAssignment(ctx, engine.AssignmentCreateOptions{
		ProjectID: "proj-1", MemberID: "alice", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}

	if _, err := eng.AddDays(ctx, engine.DaysCreateOptions{
		AssignmentID: a.ID,
		Dates:        []string{"2025-06-02", "2025-06-03", "2025-06-05", "2025-06-06"},
		ActorID:      "tester",
	}); err != nil {
		t.Fatalf("add days: %v", err)
	}
	if len(store.groups) != 2 {
		t.Fatalf("expected 2 groups in memory, got %d", len(store.groups))
	}

	outcome, err := eng.AddDay(ctx, a.ID, "2025-06-04", "", "tester")
	if err != nil {
		t.Fatalf("bridge add: %v", err)
	}
	if !outcome.Merged {
		t.Fatalf("expected bridge merge over the fake store")
	}
	if len(store.groups) != 1 {
		t.Fatalf("expected 1 group after bridge, got %d", len(store.groups))
	}
	for _, g := range store.groups {
		if g.StartDate != "2025-06-02" || g.EndDate != "2025-06-06" {
			t.Fatalf("bridged bounds = [%s, %s]", g.StartDate, g.EndDate)
		}
	}

	if _, err := eng.RemoveDay(ctx, a.ID, "2025-06-04", "tester"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(store.groups) != 2 {
		t.Fatalf("expected split back to 2 groups, got %d", len(store.groups))
	}

	seen := map[string]bool{}
	for _, evt := range store.eventTypes {
		seen[evt] = true
	}
	for _, want := range []string{"assignment.created", "days.created", "day.added", "groups.merged", "day.removed", "group.split"} {
		if !seen[want] {
			t.Errorf("missing event %s", want)
		}
	}
}
