package board

import (
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/DXD-Magante/dxd-magnate-sub002/domain"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	logger, _ := test.NewNullLogger()
	return NewManager(logger)
}

func sampleTasks() []domain.Task {
	return []domain.Task{
		{ID: "t1", Status: domain.StatusToDo, Title: "Draft proposal"},
		{ID: "t2", Status: domain.StatusToDo, Title: "Review contract"},
		{ID: "t3", Status: domain.StatusInProgress, Title: "Build landing page"},
		{ID: "t4", Status: domain.StatusDone, Title: "Kickoff call"},
	}
}

func TestRebuildPartitionsByStatus(t *testing.T) {
	m := testManager(t)
	cols := m.Rebuild(sampleTasks())

	if got := cols.TaskCount(); got != 4 {
		t.Fatalf("task count not conserved: got %d, want 4", got)
	}
	todo, ok := cols.Column(domain.ColumnToDo)
	if !ok {
		t.Fatal("missing todo column")
	}
	if len(todo.Tasks) != 2 || todo.Tasks[0].ID != "t1" || todo.Tasks[1].ID != "t2" {
		t.Fatalf("todo column lost input order: %#v", todo.Tasks)
	}
	done, _ := cols.Column(domain.ColumnDone)
	if len(done.Tasks) != 1 || done.Tasks[0].ID != "t4" {
		t.Fatalf("unexpected done column: %#v", done.Tasks)
	}
}

func TestRebuildBucketsUnmappedStatusIntoDefault(t *testing.T) {
	logger, hook := test.NewNullLogger()
	m := NewManager(logger)

	tasks := append(sampleTasks(), domain.Task{ID: "t5", Status: domain.Status("Archived")})
	cols := m.Rebuild(tasks)

	if got := cols.TaskCount(); got != len(tasks) {
		t.Fatalf("task count not conserved: got %d, want %d", got, len(tasks))
	}
	def, _ := cols.Column(domain.DefaultColumn)
	found := false
	for _, task := range def.Tasks {
		if task.ID == "t5" {
			found = true
		}
	}
	if !found {
		t.Fatalf("task with unmapped status missing from default column: %#v", def.Tasks)
	}
	if len(hook.Entries) == 0 {
		t.Fatal("expected a data-quality log entry for the unmapped status")
	}
}

func TestRebuildEmptyInputYieldsAllColumns(t *testing.T) {
	m := testManager(t)
	cols := m.Rebuild(nil)
	if len(cols) != len(domain.Statuses()) {
		t.Fatalf("expected %d columns, got %d", len(domain.Statuses()), len(cols))
	}
	if cols.TaskCount() != 0 {
		t.Fatalf("expected empty board, got %d tasks", cols.TaskCount())
	}
}

func TestApplyLocalReorder(t *testing.T) {
	m := testManager(t)
	cols := m.Rebuild(sampleTasks())

	next, err := m.ApplyLocalReorder(cols, domain.ColumnToDo, 0, 1)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	todo, _ := next.Column(domain.ColumnToDo)
	if todo.Tasks[0].ID != "t2" || todo.Tasks[1].ID != "t1" {
		t.Fatalf("unexpected order after reorder: %#v", todo.Tasks)
	}

	// The input projection must stay untouched.
	orig, _ := cols.Column(domain.ColumnToDo)
	if orig.Tasks[0].ID != "t1" {
		t.Fatalf("reorder mutated the input projection: %#v", orig.Tasks)
	}
}

func TestApplyLocalReorderRejectsBadIndexes(t *testing.T) {
	m := testManager(t)
	cols := m.Rebuild(sampleTasks())

	if _, err := m.ApplyLocalReorder(cols, domain.ColumnToDo, 5, 0); err == nil {
		t.Fatal("expected error for out-of-range source index")
	}
	if _, err := m.ApplyLocalReorder(cols, domain.ColumnToDo, 0, -1); err == nil {
		t.Fatal("expected error for negative destination index")
	}
	if _, err := m.ApplyLocalReorder(cols, domain.ColumnID("mystery"), 0, 0); err == nil {
		t.Fatal("expected error for unknown column")
	}
}

func BenchmarkRebuild(b *testing.B) {
	logger, _ := test.NewNullLogger()
	m := NewManager(logger)
	tasks := make([]domain.Task, 0, 200)
	statuses := domain.Statuses()
	for i := 0; i < 200; i++ {
		tasks = append(tasks, domain.Task{ID: string(rune('a' + i%26)), Status: statuses[i%len(statuses)]})
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Rebuild(tasks)
	}
}
