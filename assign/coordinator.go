// Package assign validates and executes task assignment changes along
// with their activity-log and notification side effects.
package assign

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/DXD-Magante/dxd-magnate-sub002/domain"
	"github.com/DXD-Magante/dxd-magnate-sub002/storage"
)

// Store is the persistence surface the coordinator needs.
type Store interface {
	FetchProject(ctx context.Context, projectID string) (domain.Project, error)
	FetchTask(ctx context.Context, projectID, taskID string) (domain.Task, error)
	UpdateTaskAssignee(ctx context.Context, projectID, taskID string, assignee *domain.TeamMember) error
	AppendActivity(ctx context.Context, rec domain.ActivityRecord) error
	AppendNotification(ctx context.Context, rec domain.NotificationRecord) error
}

// InvalidMemberError reports an assignment target outside the project's
// team roster. No write happens when it is returned.
type InvalidMemberError struct {
	MemberID  string
	ProjectID string
}

func (e *InvalidMemberError) Error() string {
	return fmt.Sprintf("assign: member %q is not on project %q", e.MemberID, e.ProjectID)
}

// TaskNotFoundError reports a task that vanished before the assignment
// landed, typically racing a concurrent delete.
type TaskNotFoundError struct {
	TaskID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("assign: task %q not found", e.TaskID)
}

// Coordinator validates assignee changes and performs the primary write
// plus its two best-effort side-effect writes.
type Coordinator struct {
	store  Store
	logger *log.Logger
	now    func() time.Time
}

// NewCoordinator creates an assignment coordinator.
func NewCoordinator(store Store, logger *log.Logger) *Coordinator {
	if store == nil {
		panic("assign.NewCoordinator: store is required")
	}
	if logger == nil {
		panic("assign.NewCoordinator: logger is required")
	}
	return &Coordinator{store: store, logger: logger, now: time.Now}
}

// Assign sets the task's assignee to the given team member on behalf of
// actor. Validation happens before any write: an invalid member or a
// vanished task aborts with zero state change.
//
// On success three writes are attempted in order: the assignee field
// merge (authoritative), an activity-log append, and a notification
// append. The last two are not transactional with the first; their
// failure is logged and swallowed because the assignment itself is
// already durable.
func (c *Coordinator) Assign(ctx context.Context, actor domain.Actor, projectID, taskID, memberID string) (domain.Task, error) {
	project, err := c.store.FetchProject(ctx, projectID)
	if err != nil {
		return domain.Task{}, err
	}
	member, ok := project.Member(memberID)
	if !ok {
		return domain.Task{}, &InvalidMemberError{MemberID: memberID, ProjectID: projectID}
	}

	task, err := c.store.FetchTask(ctx, projectID, taskID)
	if err != nil {
		if storage.IsNotFound(err) {
			return domain.Task{}, &TaskNotFoundError{TaskID: taskID}
		}
		return domain.Task{}, err
	}

	assignee := &domain.TeamMember{ID: member.ID, Name: member.Name, Initials: member.Initials}
	if err := c.store.UpdateTaskAssignee(ctx, projectID, taskID, assignee); err != nil {
		if storage.IsNotFound(err) {
			return domain.Task{}, &TaskNotFoundError{TaskID: taskID}
		}
		return domain.Task{}, err
	}
	task.Assignee = assignee
	now := c.now().UTC()
	task.UpdatedAt = now

	activity := domain.ActivityRecord{
		ActionType:   domain.ActionTaskAssignment,
		Message:      fmt.Sprintf("%s assigned %q to %s", actor.FullName, task.Title, member.Name),
		ProjectID:    projectID,
		ProjectName:  project.Title,
		TaskID:       taskID,
		AssigneeID:   member.ID,
		Type:         "task",
		UserFullName: actor.FullName,
		UserID:       actor.ID,
		Timestamp:    now,
	}
	if err := c.store.AppendActivity(ctx, activity); err != nil {
		c.logger.WithFields(log.Fields{
			"task_id": taskID,
			"project": projectID,
		}).WithError(err).Warn("activity append failed after assignment")
	}

	notification := domain.NotificationRecord{
		UserID:    member.ID,
		ProjectID: projectID,
		Message:   fmt.Sprintf("You were assigned %q on %s", task.Title, project.Title),
		Type:      "task_assignment",
		Read:      false,
		TaskID:    taskID,
		TaskTitle: task.Title,
		Timestamp: now,
	}
	if err := c.store.AppendNotification(ctx, notification); err != nil {
		c.logger.WithFields(log.Fields{
			"task_id":  taskID,
			"assignee": member.ID,
		}).WithError(err).Warn("notification append failed after assignment")
	}

	return task, nil
}
