package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/DXD-Magante/dxd-magnate-sub002/domain"
)

type backend interface {
	FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error)
	FetchTask(ctx context.Context, projectID, taskID string) (domain.Task, error)
	FetchProject(ctx context.Context, projectID string) (domain.Project, error)
	CreateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	UpdateTaskStatus(ctx context.Context, projectID, taskID string, status domain.Status) error
	UpdateTaskAssignee(ctx context.Context, projectID, taskID string, assignee *domain.TeamMember) error
	AppendActivity(ctx context.Context, rec domain.ActivityRecord) error
	AppendNotification(ctx context.Context, rec domain.NotificationRecord) error
}

// Cache wraps a Storage instance with Redis-backed caching for board
// reads. Every successful task write evicts the project's cached board
// and publishes a change event on the updates channel, so subscribed
// board views refetch and fan out a fresh snapshot.
type Cache struct {
	base    backend
	redis   *redis.Client
	ttl     time.Duration
	channel string
	logger  *log.Logger
}

// NewCache creates a caching Storage wrapper using the provided Redis
// client, TTL and change channel.
func NewCache(base backend, client *redis.Client, ttl time.Duration, channel string, logger *log.Logger) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if logger == nil {
		panic("storage.NewCache: logger is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl, channel: channel, logger: logger}
}

func (c *Cache) FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	if tasks, ok := c.loadTasksFromCache(ctx, projectID); ok {
		return tasks, nil
	}

	tasks, err := c.base.FetchTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}

	c.storeTasks(ctx, projectID, tasks)
	return tasks, nil
}

// FetchTask always hits the backing store: single-document reads back
// assignment validation and must not serve stale deletes.
func (c *Cache) FetchTask(ctx context.Context, projectID, taskID string) (domain.Task, error) {
	return c.base.FetchTask(ctx, projectID, taskID)
}

func (c *Cache) FetchProject(ctx context.Context, projectID string) (domain.Project, error) {
	if p, ok := c.loadProjectFromCache(ctx, projectID); ok {
		return p, nil
	}

	p, err := c.base.FetchProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}

	c.storeProject(ctx, projectID, p)
	return p, nil
}

func (c *Cache) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	created, err := c.base.CreateTask(ctx, t)
	if err != nil {
		return domain.Task{}, err
	}
	c.evictAndNotify(ctx, created.ProjectID)
	return created, nil
}

func (c *Cache) UpdateTaskStatus(ctx context.Context, projectID, taskID string, status domain.Status) error {
	if err := c.base.UpdateTaskStatus(ctx, projectID, taskID, status); err != nil {
		return err
	}
	c.evictAndNotify(ctx, projectID)
	return nil
}

func (c *Cache) UpdateTaskAssignee(ctx context.Context, projectID, taskID string, assignee *domain.TeamMember) error {
	if err := c.base.UpdateTaskAssignee(ctx, projectID, taskID, assignee); err != nil {
		return err
	}
	c.evictAndNotify(ctx, projectID)
	return nil
}

func (c *Cache) AppendActivity(ctx context.Context, rec domain.ActivityRecord) error {
	return c.base.AppendActivity(ctx, rec)
}

func (c *Cache) AppendNotification(ctx context.Context, rec domain.NotificationRecord) error {
	return c.base.AppendNotification(ctx, rec)
}

func (c *Cache) loadTasksFromCache(ctx context.Context, projectID string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, boardCacheKey(projectID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, boardCacheKey(projectID)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, boardCacheKey(projectID)).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) loadProjectFromCache(ctx context.Context, projectID string) (domain.Project, bool) {
	if c.redis == nil {
		return domain.Project{}, false
	}
	data, err := c.redis.Get(ctx, projectCacheKey(projectID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, projectCacheKey(projectID)).Err()
		}
		return domain.Project{}, false
	}
	var p domain.Project
	if err := json.Unmarshal(data, &p); err != nil {
		_ = c.redis.Del(ctx, projectCacheKey(projectID)).Err()
		return domain.Project{}, false
	}
	return p, true
}

func (c *Cache) storeTasks(ctx context.Context, projectID string, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, boardCacheKey(projectID), data, c.ttl).Err()
}

func (c *Cache) storeProject(ctx context.Context, projectID string, p domain.Project) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, projectCacheKey(projectID), data, c.ttl).Err()
}

// evictAndNotify drops the stale board cache and then announces the
// change. Eviction must come first so subscribers refetching through
// this cache see the new state.
func (c *Cache) evictAndNotify(ctx context.Context, projectID string) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, boardCacheKey(projectID)).Err(); err != nil {
		c.logger.WithField("project", projectID).WithError(err).Warn("board cache eviction failed")
	}
	if c.channel == "" {
		return
	}
	payload, err := json.Marshal(changeEvent{ProjectID: projectID})
	if err != nil {
		return
	}
	if err := c.redis.Publish(ctx, c.channel, payload).Err(); err != nil {
		c.logger.WithField("project", projectID).WithError(err).Warn("change publish failed")
	}
}

func boardCacheKey(projectID string) string {
	return "board:" + projectID
}

func projectCacheKey(projectID string) string {
	return "project:" + projectID
}
