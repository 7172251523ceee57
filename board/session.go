package board

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/DXD-Magante/dxd-magnate-sub002/domain"
)

// Subscriber delivers live task snapshots for one project. The returned
// function releases the subscription; it must be safe to call once.
type Subscriber interface {
	Subscribe(projectID string, onSnapshot func([]domain.Task)) (func(), error)
}

// Session owns the live board view for a single project: it holds the
// subscription, mirrors the latest snapshot as columns, and applies
// optimistic drag mutations until the next snapshot supersedes them.
//
// The projection is guarded by a mutex because snapshots arrive on the
// subscriber's goroutine while gestures arrive on the caller's.
type Session struct {
	projectID string
	mgr       *Manager
	ctrl      *Controller
	logger    *log.Logger

	mu     sync.Mutex
	cols   Columns
	closed bool

	closeOnce   sync.Once
	unsubscribe func()
	updates     chan Columns
}

// NewSession subscribes to the project's change stream and returns a
// live session. Close must be called when the view goes away.
func NewSession(projectID string, mgr *Manager, ctrl *Controller, sub Subscriber, logger *log.Logger) (*Session, error) {
	s := &Session{
		projectID: projectID,
		mgr:       mgr,
		ctrl:      ctrl,
		logger:    logger,
		cols:      mgr.Rebuild(nil),
		updates:   make(chan Columns, 1),
	}
	unsub, err := sub.Subscribe(projectID, s.onSnapshot)
	if err != nil {
		return nil, err
	}
	s.unsubscribe = unsub
	return s, nil
}

// onSnapshot replaces the projection wholesale. The latest snapshot
// always wins over any local speculative state. Late deliveries after
// Close are discarded.
func (s *Session) onSnapshot(tasks []domain.Task) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.cols = s.mgr.Rebuild(tasks)
	cols := s.cols.clone()
	s.mu.Unlock()

	s.publish(cols)
}

// publish coalesces updates: only the freshest projection is kept when
// the consumer lags.
func (s *Session) publish(cols Columns) {
	for {
		select {
		case s.updates <- cols:
			return
		default:
		}
		select {
		case <-s.updates:
		default:
		}
	}
}

// Updates yields the latest projection after each snapshot or gesture.
// Intermediate states may be skipped when the consumer is slow.
func (s *Session) Updates() <-chan Columns {
	return s.updates
}

// Columns returns a copy of the current projection.
func (s *Session) Columns() Columns {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols.clone()
}

// Drag applies a gesture to the live projection, optimistically for
// cross-column moves.
func (s *Session) Drag(ctx context.Context, g Gesture) (Outcome, error) {
	g.ProjectID = s.projectID

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Outcome{}, context.Canceled
	}
	out, err := s.ctrl.Apply(ctx, s.cols, g)
	if err != nil {
		s.mu.Unlock()
		return Outcome{}, err
	}
	s.cols = out.Columns
	cols := s.cols.clone()
	s.mu.Unlock()

	if out.Moved {
		s.publish(cols)
	}
	return out, nil
}

// Close releases the subscription. It is idempotent and safe on every
// exit path; snapshots delivered after Close are no-ops.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
	})
}
