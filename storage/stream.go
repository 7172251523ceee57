package storage

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/DXD-Magante/dxd-magnate-sub002/domain"
)

// changeEvent is the message published on the updates channel after any
// task write. Subscribers refetch the whole project on receipt; the
// event carries no delta.
type changeEvent struct {
	ProjectID string `json:"projectId"`
}

// TaskFetcher loads the full task set for a project.
type TaskFetcher interface {
	FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error)
}

// Stream listens on the redis updates channel and pushes full task
// snapshots to per-project subscribers. Consistency is eventual: the
// snapshot delivered is whatever the store returns at fetch time, and
// the latest snapshot always wins.
type Stream struct {
	rc      *redis.Client
	channel string
	fetch   TaskFetcher
	logger  *log.Logger

	mu     sync.Mutex
	subs   map[string]map[uint64]func([]domain.Task)
	nextID uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewStream creates a change stream over the given redis channel.
func NewStream(rc *redis.Client, channel string, fetch TaskFetcher, logger *log.Logger) *Stream {
	if rc == nil {
		panic("storage.NewStream: redis client is nil")
	}
	if fetch == nil {
		panic("storage.NewStream: fetcher is nil")
	}
	if logger == nil {
		panic("storage.NewStream: logger is nil")
	}
	return &Stream{
		rc:      rc,
		channel: channel,
		fetch:   fetch,
		logger:  logger,
		subs:    make(map[string]map[uint64]func([]domain.Task)),
	}
}

// Start begins consuming change events until ctx is cancelled or Close
// is called.
func (s *Stream) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
}

func (s *Stream) run(ctx context.Context) {
	defer close(s.done)
	for {
		sub := s.rc.Subscribe(ctx, s.channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var ev changeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					s.logger.WithError(err).Error("unable to parse change event")
					continue
				}
				s.dispatch(ctx, ev.ProjectID)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}

// dispatch fetches the project's task set once and fans it out to every
// live subscriber for that project.
func (s *Stream) dispatch(ctx context.Context, projectID string) {
	s.mu.Lock()
	n := len(s.subs[projectID])
	s.mu.Unlock()
	if n == 0 {
		return
	}

	tasks, err := s.fetch.FetchTasks(ctx, projectID)
	if err != nil {
		s.logger.WithField("project", projectID).WithError(err).Error("fetch tasks for snapshot")
		return
	}

	s.mu.Lock()
	fns := make([]func([]domain.Task), 0, len(s.subs[projectID]))
	for _, fn := range s.subs[projectID] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(tasks)
	}
}

// Subscribe registers a snapshot callback for one project and delivers
// an initial snapshot asynchronously. The returned function releases the
// subscription; it is safe to call more than once.
func (s *Stream) Subscribe(projectID string, onSnapshot func([]domain.Task)) (func(), error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.subs[projectID] == nil {
		s.subs[projectID] = make(map[uint64]func([]domain.Task))
	}
	s.subs[projectID][id] = onSnapshot
	s.mu.Unlock()

	// Prime the new subscriber with the current state so it does not
	// wait for the first remote change.
	go func() {
		tasks, err := s.fetch.FetchTasks(context.Background(), projectID)
		if err != nil {
			s.logger.WithField("project", projectID).WithError(err).Error("initial snapshot fetch")
			return
		}
		s.mu.Lock()
		_, live := s.subs[projectID][id]
		s.mu.Unlock()
		if live {
			onSnapshot(tasks)
		}
	}()

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[projectID], id)
		if len(s.subs[projectID]) == 0 {
			delete(s.subs, projectID)
		}
	}
	return unsubscribe, nil
}

// Notify publishes a change event for the project. Writers that bypass
// the caching layer use it to wake subscribers.
func (s *Stream) Notify(ctx context.Context, projectID string) error {
	payload, err := json.Marshal(changeEvent{ProjectID: projectID})
	if err != nil {
		return err
	}
	return s.rc.Publish(ctx, s.channel, payload).Err()
}

// Close stops the consumer loop and waits for it to exit.
func (s *Stream) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}
