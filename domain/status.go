package domain

import "fmt"

// Status is the workflow state a task occupies on the board.
type Status string

const (
	StatusBacklog    Status = "Backlog"
	StatusToDo       Status = "To Do"
	StatusInProgress Status = "In Progress"
	StatusReview     Status = "Review"
	StatusDone       Status = "Done"
	StatusBlocked    Status = "Blocked"
)

// ColumnID identifies a board column in the read model.
type ColumnID string

const (
	ColumnBacklog    ColumnID = "backlog"
	ColumnToDo       ColumnID = "todo"
	ColumnInProgress ColumnID = "in-progress"
	ColumnReview     ColumnID = "review"
	ColumnDone       ColumnID = "done"
	ColumnBlocked    ColumnID = "blocked"
)

// DefaultColumn receives tasks whose stored status has no column mapping.
// The store is the source of truth; a bad write must stay renderable.
const DefaultColumn = ColumnBacklog

// statusOrder fixes the column order on the board. Any status may move to
// any other status; the board imposes no forward-only progression.
var statusOrder = []Status{
	StatusBacklog,
	StatusToDo,
	StatusInProgress,
	StatusReview,
	StatusDone,
	StatusBlocked,
}

var statusColumns = map[Status]ColumnID{
	StatusBacklog:    ColumnBacklog,
	StatusToDo:       ColumnToDo,
	StatusInProgress: ColumnInProgress,
	StatusReview:     ColumnReview,
	StatusDone:       ColumnDone,
	StatusBlocked:    ColumnBlocked,
}

var columnStatuses map[ColumnID]Status

func init() {
	// The status/column table must stay bijective. A status without a
	// column (or the reverse) cannot be rendered and is a configuration
	// error, not a runtime condition.
	columnStatuses = make(map[ColumnID]Status, len(statusColumns))
	for s, c := range statusColumns {
		if prev, ok := columnStatuses[c]; ok {
			panic(fmt.Sprintf("domain: column %q mapped to both %q and %q", c, prev, s))
		}
		columnStatuses[c] = s
	}
	if len(statusOrder) != len(statusColumns) {
		panic("domain: statusOrder and statusColumns disagree")
	}
	for _, s := range statusOrder {
		if _, ok := statusColumns[s]; !ok {
			panic(fmt.Sprintf("domain: status %q has no column mapping", s))
		}
	}
}

// Statuses returns every workflow status in board order.
func Statuses() []Status {
	out := make([]Status, len(statusOrder))
	copy(out, statusOrder)
	return out
}

// ColumnFor maps a status to its board column. ok is false for statuses
// outside the workflow table.
func ColumnFor(s Status) (ColumnID, bool) {
	c, ok := statusColumns[s]
	return c, ok
}

// StatusFor maps a board column back to its status.
func StatusFor(c ColumnID) (Status, bool) {
	s, ok := columnStatuses[c]
	return s, ok
}

// Valid reports whether s is one of the six workflow statuses.
func (s Status) Valid() bool {
	_, ok := statusColumns[s]
	return ok
}
