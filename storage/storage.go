// Package storage bridges the board to the external document store: one
// table of task documents partitioned by project, a read-only projects
// table, append-only side-effect queues, and a redis-backed change
// stream that pushes task snapshots to live board views.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/google/uuid"

	"github.com/DXD-Magante/dxd-magnate-sub002/domain"
)

// queueClient is the slice of azqueue.QueueClient used for append-only
// side-effect records.
type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// Storage provides access to the underlying persistence mechanisms.
type Storage struct {
	taskTable         *aztables.Client
	projectTable      *aztables.Client
	activityQueue     queueClient
	notificationQueue queueClient

	now func() time.Time
}

// Config names the remote tables and queues Storage binds to.
type Config struct {
	TasksTable        string
	ProjectsTable     string
	ActivityQueue     string
	NotificationQueue string
}

// New creates a Storage instance from the given connection string.
func New(connStr string, cfg Config) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	aq, err := azqueue.NewQueueClientFromConnectionString(connStr, cfg.ActivityQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	nq, err := azqueue.NewQueueClientFromConnectionString(connStr, cfg.NotificationQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		taskTable:         svc.NewClient(cfg.TasksTable),
		projectTable:      svc.NewClient(cfg.ProjectsTable),
		activityQueue:     aq,
		notificationQueue: nq,
		now:               time.Now,
	}, nil
}

// NotFoundError reports a document that does not exist in the store.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("storage: %s %q not found", e.Kind, e.Key)
}

// IsNotFound reports whether err marks a missing document.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func mapNotFound(err error, kind, key string) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return &NotFoundError{Kind: kind, Key: key}
	}
	return err
}

// Tasks are partitioned by project: PartitionKey is the project id,
// RowKey the task id. Field updates always use merge mode so concurrent
// edits to unrelated fields never clobber each other.
type taskEntity struct {
	aztables.Entity
	Title            string `json:"Title"`
	Description      string `json:"Description"`
	Status           string `json:"Status"`
	Priority         string `json:"Priority"`
	AssigneeID       string `json:"AssigneeID"`
	AssigneeName     string `json:"AssigneeName"`
	AssigneeInitials string `json:"AssigneeInitials"`
	DueDate          string `json:"DueDate"`
	Labels           string `json:"Labels"`
	CreatedAt        string `json:"CreatedAt"`
	UpdatedAt        string `json:"UpdatedAt"`
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:          ent.RowKey,
		ProjectID:   ent.PartitionKey,
		Title:       ent.Title,
		Description: ent.Description,
		Status:      domain.Status(ent.Status),
		Priority:    domain.Priority(ent.Priority),
	}
	if ent.AssigneeID != "" {
		t.Assignee = &domain.TeamMember{ID: ent.AssigneeID, Name: ent.AssigneeName, Initials: ent.AssigneeInitials}
	}
	if ent.DueDate != "" {
		if due, err := time.Parse(time.RFC3339Nano, ent.DueDate); err == nil {
			t.DueDate = &due
		}
	}
	if ent.Labels != "" {
		// Labels are stored as a JSON array property; a malformed value
		// loses the labels, not the task.
		var labels []string
		if err := json.Unmarshal([]byte(ent.Labels), &labels); err == nil {
			t.Labels = labels
		}
	}
	if ts, err := time.Parse(time.RFC3339Nano, ent.CreatedAt); err == nil {
		t.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, ent.UpdatedAt); err == nil {
		t.UpdatedAt = ts
	}
	return t, nil
}

func encodeTaskEntity(t domain.Task) ([]byte, error) {
	ent := taskEntity{
		Entity:      aztables.Entity{PartitionKey: t.ProjectID, RowKey: t.ID},
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if t.Assignee != nil {
		ent.AssigneeID = t.Assignee.ID
		ent.AssigneeName = t.Assignee.Name
		ent.AssigneeInitials = t.Assignee.Initials
	}
	if t.DueDate != nil {
		ent.DueDate = t.DueDate.UTC().Format(time.RFC3339Nano)
	}
	if len(t.Labels) > 0 {
		labels, err := json.Marshal(t.Labels)
		if err != nil {
			return nil, err
		}
		ent.Labels = string(labels)
	}
	return json.Marshal(ent)
}

// FetchTasks retrieves every task in the project's partition.
func (s *Storage) FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + projectID + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			t, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// FetchTask retrieves a single task document.
func (s *Storage) FetchTask(ctx context.Context, projectID, taskID string) (domain.Task, error) {
	ent, err := s.taskTable.GetEntity(ctx, projectID, taskID, nil)
	if err != nil {
		return domain.Task{}, mapNotFound(err, "task", taskID)
	}
	return decodeTaskEntity(ent.Value)
}

// Projects live in their own table keyed by project id on both axes,
// with the team roster held as a JSON property.
type projectEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	ClientID    string `json:"ClientID"`
	TeamMembers string `json:"TeamMembers"`
}

// FetchProject retrieves the project document, including its team roster.
func (s *Storage) FetchProject(ctx context.Context, projectID string) (domain.Project, error) {
	ent, err := s.projectTable.GetEntity(ctx, projectID, projectID, nil)
	if err != nil {
		return domain.Project{}, mapNotFound(err, "project", projectID)
	}
	return decodeProjectEntity(ent.Value)
}

func decodeProjectEntity(data []byte) (domain.Project, error) {
	var ent projectEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Project{}, err
	}
	p := domain.Project{ID: ent.RowKey, Title: ent.Title, ClientID: ent.ClientID}
	if ent.TeamMembers != "" {
		if err := json.Unmarshal([]byte(ent.TeamMembers), &p.TeamMembers); err != nil {
			return domain.Project{}, fmt.Errorf("storage: project %q team roster: %w", ent.RowKey, err)
		}
	}
	return p, nil
}

// CreateTask writes a new task document. The store assigns the id; any
// caller-supplied id is ignored. Status defaults to Backlog when unset.
func (s *Storage) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	if t.ProjectID == "" {
		return domain.Task{}, errors.New("storage: task requires a project id")
	}
	t.ID = uuid.NewString()
	if t.Status == "" {
		t.Status = domain.StatusBacklog
	}
	now := s.now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	data, err := encodeTaskEntity(t)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.taskTable.AddEntity(ctx, data, nil); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// UpdateTaskStatus merges a status change into the task document without
// touching any other field.
func (s *Storage) UpdateTaskStatus(ctx context.Context, projectID, taskID string, status domain.Status) error {
	patch := map[string]any{
		"PartitionKey": projectID,
		"RowKey":       taskID,
		"Status":       string(status),
		"UpdatedAt":    s.now().UTC().Format(time.RFC3339Nano),
	}
	return s.mergeTask(ctx, taskID, patch)
}

// UpdateTaskAssignee merges an assignee change into the task document.
// A nil assignee clears the assignment.
func (s *Storage) UpdateTaskAssignee(ctx context.Context, projectID, taskID string, assignee *domain.TeamMember) error {
	patch := map[string]any{
		"PartitionKey":     projectID,
		"RowKey":           taskID,
		"AssigneeID":       "",
		"AssigneeName":     "",
		"AssigneeInitials": "",
		"UpdatedAt":        s.now().UTC().Format(time.RFC3339Nano),
	}
	if assignee != nil {
		patch["AssigneeID"] = assignee.ID
		patch["AssigneeName"] = assignee.Name
		patch["AssigneeInitials"] = assignee.Initials
	}
	return s.mergeTask(ctx, taskID, patch)
}

func (s *Storage) mergeTask(ctx context.Context, taskID string, patch map[string]any) error {
	data, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	_, err = s.taskTable.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{
		UpdateMode: aztables.UpdateModeMerge,
	})
	if err != nil {
		return mapNotFound(err, "task", taskID)
	}
	return nil
}

// AppendActivity enqueues an activity-log record for the activity
// collaborator. Delivery is at-least-once and unacknowledged.
func (s *Storage) AppendActivity(ctx context.Context, rec domain.ActivityRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.activityQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}

// AppendNotification enqueues a notification record targeted at one user.
func (s *Storage) AppendNotification(ctx context.Context, rec domain.NotificationRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.notificationQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}
