package domain

// Priority levels an assignment group can carry.
const (
	PriorityHigh   = "high"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

// ValidPriority reports whether p is one of the known priority levels.
func ValidPriority(p string) bool {
	return p == PriorityHigh || p == PriorityNormal || p == PriorityLow
}

// Assignment links one project and one team member. The scheduling engine
// treats it as opaque beyond its identity and (project, member) pair.
type Assignment struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	MemberID  string `json:"member_id"`
	Label     string `json:"label,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// DayAssignment is the atomic fact: scheduled work on one calendar date.
// Date is ISO YYYY-MM-DD; its lexicographic order equals chronological order.
type DayAssignment struct {
	ID           string  `json:"id"`
	AssignmentID string  `json:"assignment_id"`
	Date         string  `json:"date" format:"date"`
	Comment      *string `json:"comment,omitempty"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
}

// AssignmentGroup is the derived summary over a contiguous run of day
// assignments, carrying priority/comment metadata. Bounds are inclusive.
type AssignmentGroup struct {
	ID           string  `json:"id"`
	AssignmentID string  `json:"assignment_id"`
	StartDate    string  `json:"start_date" format:"date"`
	EndDate      string  `json:"end_date" format:"date"`
	Priority     string  `json:"priority" enum:"high,normal,low"`
	Comment      *string `json:"comment,omitempty"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID           int64  `json:"id"`
	TS           string `json:"ts" format:"date-time"`
	Type         string `json:"type"`
	AssignmentID string `json:"assignment_id,omitempty"`
	EntityKind   string `json:"entity_kind"`
	EntityID     string `json:"entity_id,omitempty"`
	ActorID      string `json:"actor_id"`
	Payload      string `json:"payload_json"`
}
