package teamlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Teamline HTTP API client.
type Client struct {
	BaseURL    string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Assignment represents the API assignment model.
type Assignment struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	MemberID  string `json:"member_id"`
	Label     string `json:"label,omitempty"`
	CreatedAt string `json:"created_at"`
}

// DayAssignment represents one scheduled day.
type DayAssignment struct {
	ID           string  `json:"id"`
	AssignmentID string  `json:"assignment_id"`
	Date         string  `json:"date"`
	Comment      *string `json:"comment,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

// Group represents a contiguous scheduled interval.
type Group struct {
	ID           string  `json:"id"`
	AssignmentID string  `json:"assignment_id"`
	StartDate    string  `json:"start_date"`
	EndDate      string  `json:"end_date"`
	Priority     string  `json:"priority"`
	Comment      *string `json:"comment,omitempty"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

// MergeOutcome reports what adding a day did to the groups.
type MergeOutcome struct {
	Merged          bool     `json:"merged"`
	GroupID         string   `json:"group_id,omitempty"`
	StartDate       string   `json:"start_date,omitempty"`
	EndDate         string   `json:"end_date,omitempty"`
	DeletedGroupIDs []string `json:"deleted_group_ids,omitempty"`
}

// SplitOutcome reports what removing a day did to the covering group.
type SplitOutcome struct {
	Split          bool     `json:"split"`
	DeletedGroupID string   `json:"deleted_group_id,omitempty"`
	GroupIDs       []string `json:"group_ids,omitempty"`
}

// ReconcileOutcome summarizes a reconciliation pass.
type ReconcileOutcome struct {
	DuplicateDaysRemoved int      `json:"duplicate_days_removed"`
	AbsorbedAssignments  []string `json:"absorbed_assignments,omitempty"`
	CreatedGroupIDs      []string `json:"created_group_ids,omitempty"`
	MergedGroupIDs       []string `json:"merged_group_ids,omitempty"`
	OrphanedGroupIDs     []string `json:"orphaned_group_ids,omitempty"`
}

// MoveOutcome summarizes a range move.
type MoveOutcome struct {
	MovedDays int              `json:"moved_days"`
	Reconcile ReconcileOutcome `json:"reconcile"`
}

// RebuildOutcome summarizes a full group rebuild.
type RebuildOutcome struct {
	CreatedGroupIDs []string `json:"created_group_ids,omitempty"`
	UpdatedGroupIDs []string `json:"updated_group_ids,omitempty"`
	DeletedGroupIDs []string `json:"deleted_group_ids,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID           int64          `json:"id"`
	TS           string         `json:"ts"`
	Type         string         `json:"type"`
	AssignmentID string         `json:"assignment_id"`
	EntityKind   string         `json:"entity_kind"`
	EntityID     string         `json:"entity_id"`
	ActorID      string         `json:"actor_id"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateAssignment registers a project-member assignment.
func (c *Client) CreateAssignment(ctx context.Context, projectID, memberID, label string) (Assignment, error) {
	body := map[string]any{
		"project_id": projectID,
		"member_id":  memberID,
	}
	if label != "" {
		body["label"] = label
	}
	var resp Assignment
	err := c.do(ctx, http.MethodPost, "v0/assignments", body, &resp)
	return resp, err
}

// GetAssignment fetches an assignment by id.
func (c *Client) GetAssignment(ctx context.Context, id string) (Assignment, error) {
	var resp Assignment
	err := c.do(ctx, http.MethodGet, c.assignmentPath(id, ""), nil, &resp)
	return resp, err
}

// DeleteAssignment removes an assignment with its days and groups.
func (c *Client) DeleteAssignment(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.assignmentPath(id, ""), nil, nil)
}

// ListDays returns the scheduled days of an assignment.
func (c *Client) ListDays(ctx context.Context, assignmentID string) ([]DayAssignment, error) {
	var resp struct {
		Items []DayAssignment `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, c.assignmentPath(assignmentID, "days"), nil, &resp)
	return resp.Items, err
}

// AddDay schedules one day and returns the merge outcome.
func (c *Client) AddDay(ctx context.Context, assignmentID, date, comment string) (MergeOutcome, error) {
	body := map[string]any{"date": date}
	if comment != "" {
		body["comment"] = comment
	}
	var resp MergeOutcome
	err := c.do(ctx, http.MethodPost, c.assignmentPath(assignmentID, "days"), body, &resp)
	return resp, err
}

// AddDays schedules many days in one shot and reconciles around them.
func (c *Client) AddDays(ctx context.Context, assignmentID string, dates []string, comment string, expandAdjacent bool) (ReconcileOutcome, error) {
	body := map[string]any{
		"dates":           dates,
		"expand_adjacent": expandAdjacent,
	}
	if comment != "" {
		body["comment"] = comment
	}
	var resp ReconcileOutcome
	err := c.do(ctx, http.MethodPost, c.assignmentPath(assignmentID, "days/batch"), body, &resp)
	return resp, err
}

// RemoveDay unschedules one day and returns the split outcome.
func (c *Client) RemoveDay(ctx context.Context, assignmentID, date string) (SplitOutcome, error) {
	var resp SplitOutcome
	err := c.do(ctx, http.MethodDelete, c.assignmentPath(assignmentID, "days/"+url.PathEscape(date)), nil, &resp)
	return resp, err
}

// MoveDays shifts a contiguous day range to a new start date.
func (c *Client) MoveDays(ctx context.Context, assignmentID, fromStart, fromEnd, toStart string) (MoveOutcome, error) {
	body := map[string]any{
		"from_start": fromStart,
		"from_end":   fromEnd,
		"to_start":   toStart,
	}
	var resp MoveOutcome
	err := c.do(ctx, http.MethodPost, c.assignmentPath(assignmentID, "days/move"), body, &resp)
	return resp, err
}

// ListGroups returns the derived groups of an assignment.
func (c *Client) ListGroups(ctx context.Context, assignmentID string) ([]Group, error) {
	var resp struct {
		Items []Group `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, c.assignmentPath(assignmentID, "groups"), nil, &resp)
	return resp.Items, err
}

// UpdateGroup sets a group's priority or comment.
func (c *Client) UpdateGroup(ctx context.Context, groupID string, priority, comment *string) (Group, error) {
	body := map[string]any{}
	if priority != nil {
		body["priority"] = *priority
	}
	if comment != nil {
		body["comment"] = *comment
	}
	var resp Group
	err := c.do(ctx, http.MethodPatch, "v0/groups/"+url.PathEscape(groupID), body, &resp)
	return resp, err
}

// Reconcile repairs groups around the touched dates.
func (c *Client) Reconcile(ctx context.Context, assignmentID string, touched []string, expandAdjacent bool) (ReconcileOutcome, error) {
	body := map[string]any{
		"touched_dates":   touched,
		"expand_adjacent": expandAdjacent,
	}
	var resp ReconcileOutcome
	err := c.do(ctx, http.MethodPost, c.assignmentPath(assignmentID, "reconcile"), body, &resp)
	return resp, err
}

// RebuildGroups rebuilds all groups of an assignment from its live days.
func (c *Client) RebuildGroups(ctx context.Context, assignmentID string) (RebuildOutcome, error) {
	var resp RebuildOutcome
	err := c.do(ctx, http.MethodPost, c.assignmentPath(assignmentID, "rebuild"), nil, &resp)
	return resp, err
}

// CleanupOrphans deletes groups covering no scheduled day.
func (c *Client) CleanupOrphans(ctx context.Context, assignmentID string) ([]string, error) {
	var resp struct {
		DeletedGroupIDs []string `json:"deleted_group_ids"`
	}
	err := c.do(ctx, http.MethodPost, c.assignmentPath(assignmentID, "cleanup"), nil, &resp)
	return resp.DeletedGroupIDs, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) assignmentPath(id, p string) string {
	base := "v0/assignments/" + url.PathEscape(id)
	if p == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
