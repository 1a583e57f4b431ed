package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"teamline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (domain.Assignment, error) {
	var a domain.Assignment
	var label sql.NullString
	err := row.Scan(&a.ID, &a.ProjectID, &a.MemberID, &label, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if label.Valid {
		a.Label = label.String
	}
	return a, err
}

func scanDay(row rowScanner) (domain.DayAssignment, error) {
	var d domain.DayAssignment
	var comment sql.NullString
	err := row.Scan(&d.ID, &d.AssignmentID, &d.Date, &comment, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if comment.Valid {
		d.Comment = &comment.String
	}
	return d, err
}

func scanGroup(row rowScanner) (domain.AssignmentGroup, error) {
	var g domain.AssignmentGroup
	var comment sql.NullString
	err := row.Scan(&g.ID, &g.AssignmentID, &g.StartDate, &g.EndDate, &g.Priority, &comment, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return g, ErrNotFound
	}
	if comment.Valid {
		g.Comment = &comment.String
	}
	return g, err
}

const assignmentCols = `id,project_id,member_id,label,created_at`
const dayCols = `id,assignment_id,date,comment,created_at`
const groupCols = `id,assignment_id,start_date,end_date,priority,comment,created_at,updated_at`

func (r Repo) GetAssignment(ctx context.Context, id string) (domain.Assignment, error) {
	return scanAssignment(r.DB.QueryRowContext(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE id=?`, id))
}

type AssignmentFilters struct {
	ProjectID string
	MemberID  string
}

func (r Repo) ListAssignments(ctx context.Context, f AssignmentFilters) ([]domain.Assignment, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.MemberID != "" {
		clauses = append(clauses, "member_id=?")
		args = append(args, f.MemberID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+assignmentCols+` FROM assignments `+where+` ORDER BY created_at DESC, id DESC`, args...)
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

func (r Repo) ListDays(ctx context.Context, assignmentID string) ([]domain.DayAssignment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+dayCols+` FROM day_assignments WHERE assignment_id=? ORDER BY date ASC, id ASC`, assignmentID)
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

func (r Repo) ListGroups(ctx context.Context, assignmentID string) ([]domain.AssignmentGroup, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+groupCols+` FROM assignment_groups WHERE assignment_id=? ORDER BY start_date ASC, id ASC`, assignmentID)
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

func (r Repo) GetGroup(ctx context.Context, id string) (domain.AssignmentGroup, error) {
	return scanGroup(r.DB.QueryRowContext(ctx, `SELECT `+groupCols+` FROM assignment_groups WHERE id=?`, id))
}

// Counts returns row counts per table for the status surface.
func (r Repo) Counts(ctx context.Context) (map[string]int, error) {
	res := map[string]int{}
	for name, query := range map[string]string{
		"assignments": `SELECT count(*) FROM assignments`,
		"days":        `SELECT count(*) FROM day_assignments`,
		"groups":      `SELECT count(*) FROM assignment_groups`,
	} {
		var n int
		if err := r.DB.QueryRowContext(ctx, query).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		res[name] = n
	}
	return res, nil
}

func (r Repo) LatestEvents(ctx context.Context, limit int, assignmentID, evtType string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, assignmentID, evtType)
}

// LatestEventsFrom returns events newest-first, starting below the cursor id.
func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, assignmentID, evtType string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if assignmentID != "" {
		clauses = append(clauses, "assignment_id=?")
		args = append(args, assignmentID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,assignment_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var assignment, entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &assignment, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if assignment.Valid {
			e.AssignmentID = assignment.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
