package repo

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"teamline/internal/domain"
	"teamline/internal/events"
)

// SQLStore is the sqlite-backed Store.
type SQLStore struct {
	DB     *sql.DB
	Events events.Writer
	Now    func() time.Time
}

func NewStore(db *sql.DB) SQLStore {
	return SQLStore{
		DB:     db,
		Events: events.Writer{DB: db},
		Now:    time.Now,
	}
}

func (s SQLStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	now := s.Now
	if now == nil {
		now = time.Now
	}
	return &sqlTx{tx: tx, events: s.Events, now: now}, nil
}

type sqlTx struct {
	tx     *sql.Tx
	events events.Writer
	now    func() time.Time
}

func (t *sqlTx) Commit() error   { return t.tx.Commit() }
func (t *sqlTx) Rollback() error { return t.tx.Rollback() }

func (t *sqlTx) GetAssignment(ctx context.Context, id string) (domain.Assignment, error) {
	return scanAssignment(t.tx.QueryRowContext(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE id=?`, id))
}

func (t *sqlTx) InsertAssignment(ctx context.Context, a domain.Assignment) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO assignments(id,project_id,member_id,label,created_at) VALUES (?,?,?,?,?)`,
		a.ID, a.ProjectID, a.MemberID, nullable(a.Label), a.CreatedAt)
	return err
}

func (t *sqlTx) DeleteAssignment(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM assignments WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqlTx) FindAssignments(ctx context.Context, projectID, memberID string) ([]domain.Assignment, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE project_id=? AND member_id=? ORDER BY created_at ASC, id ASC`, projectID, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (t *sqlTx) ListDays(ctx context.Context, assignmentID string) ([]domain.DayAssignment, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+dayCols+` FROM day_assignments WHERE assignment_id=? ORDER BY date ASC, id ASC`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DayAssignment
	for rows.Next() {
		d, err := scanDay(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (t *sqlTx) InsertDay(ctx context.Context, d domain.DayAssignment) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO day_assignments(id,assignment_id,date,comment,created_at) VALUES (?,?,?,?,?)`,
		d.ID, d.AssignmentID, d.Date, nullableStringPtr(d.Comment), d.CreatedAt)
	return err
}

func (t *sqlTx) DeleteDays(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := t.tx.ExecContext(ctx, `DELETE FROM day_assignments WHERE id=?`, id); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqlTx) ListGroups(ctx context.Context, assignmentID string) ([]domain.AssignmentGroup, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+groupCols+` FROM assignment_groups WHERE assignment_id=? ORDER BY start_date ASC, id ASC`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AssignmentGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

func (t *sqlTx) GetGroup(ctx context.Context, id string) (domain.AssignmentGroup, error) {
	return scanGroup(t.tx.QueryRowContext(ctx, `SELECT `+groupCols+` FROM assignment_groups WHERE id=?`, id))
}

func (t *sqlTx) InsertGroup(ctx context.Context, g domain.AssignmentGroup) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO assignment_groups(id,assignment_id,start_date,end_date,priority,comment,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		g.ID, g.AssignmentID, g.StartDate, g.EndDate, g.Priority, nullableStringPtr(g.Comment), g.CreatedAt, g.UpdatedAt)
	return err
}

func (t *sqlTx) UpdateGroup(ctx context.Context, id string, upd GroupUpdate) error {
	fields := []string{"updated_at=?"}
	args := []any{t.now().UTC().Format(time.RFC3339)}
	if upd.StartDate != nil {
		fields = append(fields, "start_date=?")
		args = append(args, *upd.StartDate)
	}
	if upd.EndDate != nil {
		fields = append(fields, "end_date=?")
		args = append(args, *upd.EndDate)
	}
	if upd.Priority != nil {
		fields = append(fields, "priority=?")
		args = append(args, *upd.Priority)
	}
	if upd.Comment != nil {
		fields = append(fields, "comment=?")
		args = append(args, nullable(*upd.Comment))
	}
	args = append(args, id)
	res, err := t.tx.ExecContext(ctx, `UPDATE assignment_groups SET `+strings.Join(fields, ",")+` WHERE id=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqlTx) DeleteGroups(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := t.tx.ExecContext(ctx, `DELETE FROM assignment_groups WHERE id=?`, id); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqlTx) AppendEvent(ctx context.Context, evtType, assignmentID, entityKind, entityID, actorID string, payload events.EventPayload) error {
	return t.events.Append(ctx, t.tx, evtType, assignmentID, entityKind, entityID, actorID, payload)
}
