package server

import (
	"encoding/json"

	"teamline/internal/domain"
)

// Request payloads

type CreateAssignmentRequest struct {
	ID        *string `json:"id,omitempty"`
	ProjectID string  `json:"project_id"`
	MemberID  string  `json:"member_id"`
	Label     *string `json:"label,omitempty"`
}

type CreateDayRequest struct {
	Date    string  `json:"date" format:"date"`
	Comment *string `json:"comment,omitempty"`
}

type BatchDaysRequest struct {
	Dates          []string `json:"dates" format:"date"`
	Comment        *string  `json:"comment,omitempty"`
	ExpandAdjacent bool     `json:"expand_adjacent,omitempty"`
}

type MoveDaysRequest struct {
	FromStart string `json:"from_start" format:"date"`
	FromEnd   string `json:"from_end" format:"date"`
	ToStart   string `json:"to_start" format:"date"`
}

type ReconcileRequest struct {
	TouchedDates   []string `json:"touched_dates" format:"date"`
	ExpandAdjacent bool     `json:"expand_adjacent,omitempty"`
}

type UpdateGroupRequest struct {
	Priority *string `json:"priority,omitempty" enum:"high,normal,low"`
	Comment  *string `json:"comment,omitempty"`
}

// Response payloads

type listAssignments struct {
	Items []domain.Assignment `json:"items"`
}

type listDays struct {
	Items []domain.DayAssignment `json:"items"`
}

type listGroups struct {
	Items []domain.AssignmentGroup `json:"items"`
}

type cleanupResponse struct {
	DeletedGroupIDs []string `json:"deleted_group_ids"`
}

type statusResponse struct {
	Counts map[string]int `json:"counts"`
}

type eventView struct {
	ID           int64          `json:"id"`
	TS           string         `json:"ts"`
	Type         string         `json:"type"`
	AssignmentID string         `json:"assignment_id,omitempty"`
	EntityKind   string         `json:"entity_kind"`
	EntityID     string         `json:"entity_id,omitempty"`
	ActorID      string         `json:"actor_id"`
	Payload      map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []eventView `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

func eventViews(events []domain.Event) []eventView {
	out := make([]eventView, 0, len(events))
	for _, e := range events {
		v := eventView{
			ID:           e.ID,
			TS:           e.TS,
			Type:         e.Type,
			AssignmentID: e.AssignmentID,
			EntityKind:   e.EntityKind,
			EntityID:     e.EntityID,
			ActorID:      e.ActorID,
		}
		if e.Payload != "" {
			_ = json.Unmarshal([]byte(e.Payload), &v.Payload)
		}
		out = append(out, v)
	}
	return out
}
