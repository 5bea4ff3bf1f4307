package task

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	logx "alertd/pkg/logx"
)

// ErrStopped is returned when posting to a queue whose loop has exited.
var ErrStopped = errors.New("task queue stopped")

// Queue is a serialized work queue: closures posted to it run one at a time,
// in FIFO order, on the goroutine executing Run.
//
// State owned by a component is only ever touched by closures running on that
// component's queue, so no further locking is needed inside the component.
// The mailbox is unbounded; Post never blocks.
type Queue struct {
	name string
	log  logx.Logger

	mu      sync.Mutex
	pending []func()
	stopped bool
	wake    chan struct{}

	posted   uint64
	executed uint64
	panics   uint64
}

// Stats is a point-in-time view of a queue.
type Stats struct {
	Name     string
	Pending  int
	Posted   uint64
	Executed uint64
	Panics   uint64
	Stopped  bool
}

func New(name string, log logx.Logger) *Queue {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Queue{
		name: name,
		log:  log,
		wake: make(chan struct{}, 1),
	}
}

func (q *Queue) Name() string { return q.name }

// Post enqueues fn and returns immediately. It reports false if the queue has
// stopped; the closure is then dropped.
func (q *Queue) Post(fn func()) bool {
	if fn == nil {
		return true
	}
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, fn)
	q.posted++
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Call posts fn and waits for it to run. It must not be used from a closure
// already running on q.
func (q *Queue) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !q.Post(func() {
		defer close(done)
		fn()
	}) {
		return fmt.Errorf("%s: %w", q.name, ErrStopped)
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue until ctx is canceled. Closures still pending at that
// point are discarded and later posts are rejected.
func (q *Queue) Run(ctx context.Context) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return ErrStopped
	}
	q.mu.Unlock()

	q.log.Debug("task loop started", logx.String("task", q.name))
	defer func() {
		q.mu.Lock()
		dropped := len(q.pending)
		q.pending = nil
		q.stopped = true
		q.mu.Unlock()
		q.log.Debug("task loop stopped", logx.String("task", q.name), logx.Int("dropped", dropped))
	}()

	for {
		batch := q.take()
		for _, fn := range batch {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.exec(fn)
		}
		if len(batch) > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.wake:
		}
	}
}

func (q *Queue) take() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	batch := q.pending
	q.pending = nil
	return batch
}

func (q *Queue) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.mu.Lock()
			q.panics++
			q.mu.Unlock()
			q.log.Error("task closure panicked",
				logx.String("task", q.name),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
		}
		q.mu.Lock()
		q.executed++
		q.mu.Unlock()
	}()
	fn()
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Name:     q.name,
		Pending:  len(q.pending),
		Posted:   q.posted,
		Executed: q.executed,
		Panics:   q.panics,
		Stopped:  q.stopped,
	}
}
