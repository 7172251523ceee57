package domain

import "time"

// Activity action and record types consumed by the activity-log collaborator.
const (
	ActionTaskAssignment = "task_assignment"
	ActionTaskCreated    = "task_created"
	ActionStatusChanged  = "status_changed"
)

// ActivityRecord is an append-only activity-log entry. Delivery is
// best-effort; a failed append never invalidates the operation it records.
type ActivityRecord struct {
	ActionType   string    `json:"actionType"`
	Message      string    `json:"message"`
	ProjectID    string    `json:"projectId"`
	ProjectName  string    `json:"projectName,omitempty"`
	TaskID       string    `json:"taskId,omitempty"`
	AssigneeID   string    `json:"assigneeId,omitempty"`
	Type         string    `json:"type"`
	UserFullName string    `json:"userFullName"`
	UserID       string    `json:"userId"`
	Timestamp    time.Time `json:"timestamp"`
}

// NotificationRecord is an append-only notification targeted at one user.
type NotificationRecord struct {
	UserID    string    `json:"userId"`
	ProjectID string    `json:"projectId"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	Read      bool      `json:"read"`
	TaskID    string    `json:"taskId,omitempty"`
	TaskTitle string    `json:"taskTitle,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
