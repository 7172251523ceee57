package domain

import "time"

// Priority ranks how urgently a task needs attention.
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

// TeamMember identifies a project member eligible for task assignment.
type TeamMember struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Initials   string `json:"initials,omitempty"`
	Role       string `json:"role,omitempty"`
	Department string `json:"department,omitempty"`
}

// Task is the atomic unit of work on a project board.
type Task struct {
	ID          string      `json:"id"`
	ProjectID   string      `json:"projectId"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Status      Status      `json:"status"`
	Priority    Priority    `json:"priority"`
	Assignee    *TeamMember `json:"assignee,omitempty"`
	DueDate     *time.Time  `json:"dueDate,omitempty"`
	Labels      []string    `json:"labels,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Assigned reports whether the task has an assignee.
func (t Task) Assigned() bool {
	return t.Assignee != nil && t.Assignee.ID != ""
}

// Overdue reports whether the task has a due date in the past and is not
// done yet.
func (t Task) Overdue(now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now) && t.Status != StatusDone
}

// Project is the owning entity of a board. It is consumed read-only; the
// board never writes back into project records.
type Project struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	ClientID    string       `json:"clientId,omitempty"`
	TeamMembers []TeamMember `json:"teamMembers"`
}

// Member looks up a team member by id.
func (p Project) Member(id string) (TeamMember, bool) {
	for _, m := range p.TeamMembers {
		if m.ID == id {
			return m, true
		}
	}
	return TeamMember{}, false
}

// Actor is the authenticated user performing an operation, carried
// explicitly so operations that record "who did this" stay testable.
type Actor struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
}
