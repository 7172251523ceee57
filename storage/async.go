package storage

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// WriteFunc is a single store write executed off the caller's goroutine.
type WriteFunc func(ctx context.Context) error

type writeJob struct {
	op string
	fn WriteFunc
}

// AsyncWriter runs store writes on a bounded worker pool so gesture
// handlers never block on network completion. Failures are logged, not
// propagated: the caller's optimistic state is corrected by the next
// snapshot.
type AsyncWriter struct {
	jobs    chan writeJob
	timeout time.Duration
	handoff time.Duration
	logger  *log.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewAsyncWriter starts the pool. Zero or negative arguments fall back
// to defaults.
func NewAsyncWriter(workers, buffer int, timeout, handoff time.Duration, logger *log.Logger) *AsyncWriter {
	if logger == nil {
		panic("storage.NewAsyncWriter: logger is nil")
	}
	if workers <= 0 {
		workers = 8
	}
	if buffer <= 0 {
		buffer = 256
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	w := &AsyncWriter{
		jobs:    make(chan writeJob, buffer),
		timeout: timeout,
		handoff: handoff,
		logger:  logger,
	}
	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go w.worker(i)
	}
	logger.Infof("async writer started, workers: %d, buffer: %d, timeout: %v", workers, buffer, timeout)
	return w
}

func (w *AsyncWriter) worker(id int) {
	defer w.wg.Done()
	for j := range w.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		err := j.fn(ctx)
		cancel()
		if err != nil {
			w.logger.Errorf("background write failed, op: %s, err: %v, worker: %d", j.op, err, id)
		}
	}
}

// Dispatch hands a write to the pool. It returns false when the buffer
// is saturated and the handoff window elapsed; the caller then decides
// whether to run the write inline.
func (w *AsyncWriter) Dispatch(op string, fn func(ctx context.Context) error) bool {
	j := writeJob{op: op, fn: fn}
	select {
	case w.jobs <- j:
		return true
	default:
	}
	if w.handoff <= 0 {
		return false
	}

	timer := time.NewTimer(w.handoff)
	defer timer.Stop()
	select {
	case w.jobs <- j:
		return true
	case <-timer.C:
		return false
	}
}

// Close drains outstanding writes and stops the workers. Dispatch must
// not be called after Close.
func (w *AsyncWriter) Close() {
	w.closeOnce.Do(func() {
		close(w.jobs)
		w.wg.Wait()
	})
}
