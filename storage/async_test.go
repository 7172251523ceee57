package storage

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
)

func TestAsyncWriterRunsDispatchedWrites(t *testing.T) {
	logger, _ := test.NewNullLogger()
	w := NewAsyncWriter(2, 8, time.Second, 0, logger)

	var ran atomic.Int32
	done := make(chan struct{})
	ok := w.Dispatch("status", func(ctx context.Context) error {
		ran.Add(1)
		close(done)
		return nil
	})
	if !ok {
		t.Fatal("dispatch should succeed with free buffer")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write never ran")
	}
	if ran.Load() != 1 {
		t.Fatalf("expected 1 run, got %d", ran.Load())
	}
	w.Close()
}

func TestAsyncWriterLogsFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	w := NewAsyncWriter(1, 1, time.Second, 0, logger)

	done := make(chan struct{})
	w.Dispatch("assign", func(ctx context.Context) error {
		close(done)
		return errors.New("store unavailable")
	})
	<-done
	w.Close()

	found := false
	for _, e := range hook.AllEntries() {
		if e.Message != "" && e.Level.String() == "error" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected failed write to be logged at error level")
	}
}

func TestAsyncWriterSaturationReturnsFalse(t *testing.T) {
	logger, _ := test.NewNullLogger()
	w := NewAsyncWriter(1, 1, time.Second, time.Millisecond, logger)
	defer w.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	// Occupy the single worker.
	w.Dispatch("slow", func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	})
	<-started
	// Fill the single buffer slot.
	w.Dispatch("queued", func(ctx context.Context) error { return nil })

	if ok := w.Dispatch("overflow", func(ctx context.Context) error { return nil }); ok {
		t.Fatal("expected dispatch to report saturation")
	}
	close(block)
}

func TestAsyncWriterCloseDrains(t *testing.T) {
	logger, _ := test.NewNullLogger()
	w := NewAsyncWriter(2, 16, time.Second, 0, logger)

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		w.Dispatch("n", func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
	}
	w.Close()
	if ran.Load() != 10 {
		t.Fatalf("Close must drain pending writes, ran %d of 10", ran.Load())
	}
	w.Close() // idempotent
}
