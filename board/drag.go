package board

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/DXD-Magante/dxd-magnate-sub002/domain"
)

// Gesture is the result of a pointer drag: where the task started and
// where it was dropped.
type Gesture struct {
	ProjectID    string          `json:"projectId"`
	TaskID       string          `json:"taskId"`
	SourceColumn domain.ColumnID `json:"sourceColumn"`
	SourceIndex  int             `json:"sourceIndex"`
	DestColumn   domain.ColumnID `json:"destColumn"`
	DestIndex    int             `json:"destIndex"`
}

// StatusWriter persists a task's status transition. Implementations are
// expected to return quickly; the wired implementation hands the write
// to a background pool and reports failures asynchronously.
type StatusWriter interface {
	WriteStatus(ctx context.Context, projectID, taskID string, status domain.Status) error
}

// Outcome describes what a gesture did to the board projection.
type Outcome struct {
	Columns   Columns
	Moved     bool
	Persisted bool
	NewStatus domain.Status
}

// Controller translates drag gestures into board mutations.
//
// Same-column moves are presentation-only and never touch the store.
// Cross-column moves update the projection optimistically and persist
// the status transition without blocking on write completion; the next
// snapshot corrects the view if the write fails.
type Controller struct {
	mgr    *Manager
	writer StatusWriter
	logger *log.Logger
}

// NewController creates a drag controller.
func NewController(mgr *Manager, writer StatusWriter, logger *log.Logger) *Controller {
	if mgr == nil {
		panic("board.NewController: manager is required")
	}
	if logger == nil {
		panic("board.NewController: logger is required")
	}
	return &Controller{mgr: mgr, writer: writer, logger: logger}
}

// Apply resolves a gesture against the given projection.
func (c *Controller) Apply(ctx context.Context, cols Columns, g Gesture) (Outcome, error) {
	if g.TaskID == "" {
		return Outcome{}, fmt.Errorf("board: gesture missing task id")
	}
	if g.DestColumn == g.SourceColumn && g.DestIndex == g.SourceIndex {
		return Outcome{Columns: cols}, nil
	}

	if g.DestColumn == g.SourceColumn {
		next, err := c.mgr.ApplyLocalReorder(cols, g.SourceColumn, g.SourceIndex, g.DestIndex)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Columns: next, Moved: true}, nil
	}

	next, moved, err := c.mgr.applyTransition(cols, g.TaskID, g.SourceColumn, g.SourceIndex, g.DestColumn, g.DestIndex)
	if err != nil {
		return Outcome{}, err
	}

	if c.writer != nil {
		if werr := c.writer.WriteStatus(ctx, g.ProjectID, g.TaskID, moved.Status); werr != nil {
			// The projection stays optimistic; the store snapshot wins later.
			c.logger.WithFields(log.Fields{
				"task_id": g.TaskID,
				"project": g.ProjectID,
				"status":  string(moved.Status),
			}).WithError(werr).Error("status write failed, awaiting snapshot correction")
		}
	}

	return Outcome{Columns: next, Moved: true, Persisted: true, NewStatus: moved.Status}, nil
}
