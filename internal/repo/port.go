package repo

import (
	"context"

	"teamline/internal/domain"
	"teamline/internal/events"
)

// GroupUpdate is a partial update for an assignment group. Nil fields are
// left untouched; a Comment pointing at "" clears the stored comment.
type GroupUpdate struct {
	StartDate *string
	EndDate   *string
	Priority  *string
	Comment   *string
}

// Store hands out transactions for the scheduling engine. The engine never
// touches the database directly; everything it reads or writes goes through
// one Tx, so an in-memory implementation can stand in for sqlite in tests.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is the storage port consumed by the engine. Lookups return ErrNotFound
// when the referenced row does not exist.
type Tx interface {
	GetAssignment(ctx context.Context, id string) (domain.Assignment, error)
	InsertAssignment(ctx context.Context, a domain.Assignment) error
	DeleteAssignment(ctx context.Context, id string) error
	FindAssignments(ctx context.Context, projectID, memberID string) ([]domain.Assignment, error)

	ListDays(ctx context.Context, assignmentID string) ([]domain.DayAssignment, error)
	InsertDay(ctx context.Context, d domain.DayAssignment) error
	DeleteDays(ctx context.Context, ids []string) error

	ListGroups(ctx context.Context, assignmentID string) ([]domain.AssignmentGroup, error)
	GetGroup(ctx context.Context, id string) (domain.AssignmentGroup, error)
	InsertGroup(ctx context.Context, g domain.AssignmentGroup) error
	UpdateGroup(ctx context.Context, id string, upd GroupUpdate) error
	DeleteGroups(ctx context.Context, ids []string) error

	AppendEvent(ctx context.Context, evtType, assignmentID, entityKind, entityID, actorID string, payload events.EventPayload) error

	Commit() error
	Rollback() error
}
