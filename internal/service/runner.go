package service

import (
	"context"
	"errors"
	"sync"

	"github.com/wjiang/picktrace/internal/logger"
)

// ErrRunnerStopped is returned by Submit after Stop.
var ErrRunnerStopped = errors.New("runner stopped")

// Task is one unit of background work.
type Task struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Runner executes submitted tasks one at a time on a single background
// goroutine. Serial execution is deliberate: concurrent pipeline runs would
// contend for the same provider rate ceilings.
type Runner struct {
	tasks  chan Task
	logger *logger.Logger

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewRunner creates a runner with the given queue depth.
func NewRunner(queueSize int, log *logger.Logger) *Runner {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Runner{
		tasks:  make(chan Task, queueSize),
		logger: log,
		done:   make(chan struct{}),
	}
}

// Start launches the consumer goroutine.
func (r *Runner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	go func() {
		defer close(r.done)
		for task := range r.tasks {
			log := r.logger.WithField("task", task.Name)
			log.Info("Task started")
			if err := task.Fn(ctx); err != nil {
				log.WithError(err).Error("Task failed")
				continue
			}
			log.Info("Task finished")
		}
	}()
}

// Submit enqueues a task. It never blocks the caller; a full queue or a
// stopped runner returns an error instead.
func (r *Runner) Submit(task Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrRunnerStopped
	}
	select {
	case r.tasks <- task:
		return nil
	default:
		return errors.New("task queue full")
	}
}

// Stop rejects further submissions, cancels the running task's context and
// waits for the consumer to drain.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	started := r.cancel != nil
	if started {
		r.cancel()
	}
	close(r.tasks)
	r.mu.Unlock()
	if started {
		<-r.done
	}
}
