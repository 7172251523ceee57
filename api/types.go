package api

import (
	"context"

	"github.com/DXD-Magante/dxd-magnate-sub002/domain"
)

// Store abstracts persistence for handlers.
type Store interface {
	FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error)
	FetchTask(ctx context.Context, projectID, taskID string) (domain.Task, error)
	FetchProject(ctx context.Context, projectID string) (domain.Project, error)
	CreateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	UpdateTaskStatus(ctx context.Context, projectID, taskID string, status domain.Status) error
	UpdateTaskAssignee(ctx context.Context, projectID, taskID string, assignee *domain.TeamMember) error
	AppendActivity(ctx context.Context, rec domain.ActivityRecord) error
	AppendNotification(ctx context.Context, rec domain.NotificationRecord) error
}

// Subscriber delivers live task snapshots for a project.
type Subscriber interface {
	Subscribe(projectID string, onSnapshot func([]domain.Task)) (func(), error)
}

// Authenticator resolves the acting user from request headers.
type Authenticator interface {
	ActorFromAuthHeader(string) (domain.Actor, error)
}

// Deduper prevents reprocessing of retried gesture submissions.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, scope, key string) (bool, error)
	// Remove deletes a previously added key, used when downstream processing fails.
	Remove(ctx context.Context, scope, key string) error
}

// Dispatcher hands writes to a background pool. It reports false when
// the pool is saturated and the write should run inline instead.
type Dispatcher interface {
	Dispatch(op string, fn func(ctx context.Context) error) bool
}
