// Package board partitions a project's live task set into ordered
// status columns and applies reorder and cross-column move operations
// against that projection.
package board

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/DXD-Magante/dxd-magnate-sub002/domain"
)

// Column is a derived grouping of tasks sharing one status. Columns are
// never persisted; they are rebuilt wholesale from each snapshot.
type Column struct {
	ID     domain.ColumnID `json:"id"`
	Status domain.Status   `json:"status"`
	Tasks  []domain.Task   `json:"tasks"`
}

// Columns is the full board projection in display order.
type Columns []Column

// TaskCount sums the tasks across all columns.
func (c Columns) TaskCount() int {
	n := 0
	for i := range c {
		n += len(c[i].Tasks)
	}
	return n
}

// Column returns the column with the given id.
func (c Columns) Column(id domain.ColumnID) (Column, bool) {
	for i := range c {
		if c[i].ID == id {
			return c[i], true
		}
	}
	return Column{}, false
}

func (c Columns) index(id domain.ColumnID) int {
	for i := range c {
		if c[i].ID == id {
			return i
		}
	}
	return -1
}

// clone copies the column slice and each task list so callers can hand
// out projections without sharing backing arrays.
func (c Columns) clone() Columns {
	out := make(Columns, len(c))
	for i := range c {
		out[i] = Column{ID: c[i].ID, Status: c[i].Status}
		out[i].Tasks = append([]domain.Task(nil), c[i].Tasks...)
	}
	return out
}

// Manager builds and mutates the board projection.
type Manager struct {
	logger *log.Logger
}

// NewManager creates a board manager. logger may not be nil.
func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		panic("board.NewManager: logger is required")
	}
	return &Manager{logger: logger}
}

// Rebuild partitions tasks into status columns, preserving input order
// within each column. Tasks whose status has no column mapping land in
// the default column: the store is authoritative and a bad write must
// never make the board un-renderable. Such tasks are logged as a
// data-quality signal.
func (m *Manager) Rebuild(tasks []domain.Task) Columns {
	cols := emptyColumns()
	byStatus := make(map[domain.ColumnID]int, len(cols))
	for i := range cols {
		byStatus[cols[i].ID] = i
	}

	for _, t := range tasks {
		colID, ok := domain.ColumnFor(t.Status)
		if !ok {
			m.logger.WithFields(log.Fields{
				"task_id": t.ID,
				"project": t.ProjectID,
				"status":  string(t.Status),
			}).Warn("task has unmapped status, bucketing into default column")
			colID = domain.DefaultColumn
		}
		i := byStatus[colID]
		cols[i].Tasks = append(cols[i].Tasks, t)
	}
	return cols
}

// ApplyLocalReorder splices a task from one index to another inside a
// single column. It is a pure in-memory operation used for optimistic
// same-column drag feedback and is never persisted.
func (m *Manager) ApplyLocalReorder(cols Columns, columnID domain.ColumnID, from, to int) (Columns, error) {
	i := cols.index(columnID)
	if i < 0 {
		return nil, fmt.Errorf("board: unknown column %q", columnID)
	}
	n := len(cols[i].Tasks)
	if from < 0 || from >= n {
		return nil, fmt.Errorf("board: source index %d out of range for column %q (%d tasks)", from, columnID, n)
	}
	if to < 0 || to >= n {
		return nil, fmt.Errorf("board: destination index %d out of range for column %q (%d tasks)", to, columnID, n)
	}
	out := cols.clone()
	tasks := out[i].Tasks
	t := tasks[from]
	tasks = append(tasks[:from], tasks[from+1:]...)
	tasks = append(tasks[:to], append([]domain.Task{t}, tasks[to:]...)...)
	out[i].Tasks = tasks
	return out, nil
}

// applyTransition removes the task at (fromCol, fromIdx) and inserts it
// at (destCol, destIdx) with its status set to the destination column's
// status. The caller is responsible for persisting the status change.
func (m *Manager) applyTransition(cols Columns, taskID string, fromCol domain.ColumnID, fromIdx int, destCol domain.ColumnID, destIdx int) (Columns, domain.Task, error) {
	si := cols.index(fromCol)
	di := cols.index(destCol)
	if si < 0 {
		return nil, domain.Task{}, fmt.Errorf("board: unknown source column %q", fromCol)
	}
	if di < 0 {
		return nil, domain.Task{}, fmt.Errorf("board: unknown destination column %q", destCol)
	}
	if fromIdx < 0 || fromIdx >= len(cols[si].Tasks) {
		return nil, domain.Task{}, fmt.Errorf("board: source index %d out of range for column %q", fromIdx, fromCol)
	}
	moved := cols[si].Tasks[fromIdx]
	if moved.ID != taskID {
		return nil, domain.Task{}, fmt.Errorf("board: task %q not at %q[%d] (found %q)", taskID, fromCol, fromIdx, moved.ID)
	}

	out := cols.clone()
	out[si].Tasks = append(out[si].Tasks[:fromIdx], out[si].Tasks[fromIdx+1:]...)

	moved.Status = out[di].Status
	dest := out[di].Tasks
	if destIdx < 0 || destIdx > len(dest) {
		destIdx = len(dest)
	}
	dest = append(dest[:destIdx], append([]domain.Task{moved}, dest[destIdx:]...)...)
	out[di].Tasks = dest
	return out, moved, nil
}

func emptyColumns() Columns {
	statuses := domain.Statuses()
	cols := make(Columns, 0, len(statuses))
	for _, s := range statuses {
		id, _ := domain.ColumnFor(s)
		cols = append(cols, Column{ID: id, Status: s})
	}
	return cols
}
