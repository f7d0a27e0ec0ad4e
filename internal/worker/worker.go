// Package worker polls the task table and feeds claimed tasks to the
// executor. Multiple workers may run against the same database; the
// claim query keeps them from stepping on each other.
package worker

import (
	"context"
	"sync"
	"time"

	"advisorhub/pkg/logger"
	"advisorhub/pkg/store/mysql/model"

	"github.com/google/uuid"
)

// TaskClaimer is the queue side of task persistence.
type TaskClaimer interface {
	Claim(ctx context.Context, workerID string) (*model.Task, error)
	ReclaimOrphans(ctx context.Context, olderThan time.Time) (int64, error)
}

// TaskRunner executes one claimed task.
type TaskRunner interface {
	Execute(ctx context.Context, task *model.Task)
}

// Worker is a polling task consumer. It satisfies the background job
// interface so the job manager owns its cadence.
type Worker struct {
	id           string
	claimer      TaskClaimer
	runner       TaskRunner
	pollInterval time.Duration
	lockTimeout  time.Duration

	slots     chan struct{}
	wg        sync.WaitGroup
	reclaimed sync.Once
}

// New creates a worker with a fresh identity. maxConcurrent bounds how
// many tasks this process executes at once.
func New(claimer TaskClaimer, runner TaskRunner, pollInterval, lockTimeout time.Duration, maxConcurrent int) *Worker {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Worker{
		id:           uuid.NewString(),
		claimer:      claimer,
		runner:       runner,
		pollInterval: pollInterval,
		lockTimeout:  lockTimeout,
		slots:        make(chan struct{}, maxConcurrent),
	}
}

// ID returns the worker's lock identity.
func (w *Worker) ID() string { return w.id }

// Name implements the job interface.
func (w *Worker) Name() string { return "task-worker" }

// Interval implements the job interface.
func (w *Worker) Interval() time.Duration { return w.pollInterval }

// Run is one poll tick. The first tick reclaims orphaned locks left by
// crashed workers; every tick then claims at most one eligible task,
// provided an execution slot is free.
func (w *Worker) Run(ctx context.Context) error {
	w.reclaimed.Do(func() {
		cutoff := time.Now().UTC().Add(-w.lockTimeout)
		n, err := w.claimer.ReclaimOrphans(ctx, cutoff)
		if err != nil {
			logger.ErrorCtx(ctx, "worker %s failed to reclaim orphans: %v", w.id, err)
			return
		}
		if n > 0 {
			logger.InfoCtx(ctx, "worker %s reclaimed %d orphaned tasks", w.id, n)
		}
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case w.slots <- struct{}{}:
	default:
		// All slots busy; try again next tick.
		return nil
	}

	task, err := w.claimer.Claim(ctx, w.id)
	if err != nil {
		<-w.slots
		logger.ErrorCtx(ctx, "worker %s claim failed: %v", w.id, err)
		return err
	}
	if task == nil {
		<-w.slots
		return nil
	}

	w.wg.Add(1)
	go func(task *model.Task) {
		defer func() {
			<-w.slots
			w.wg.Done()
		}()
		w.runner.Execute(ctx, task)
	}(task)
	return nil
}

// Drain waits for in-flight tasks to finish. Called on shutdown after
// the job manager stopped ticking.
func (w *Worker) Drain() {
	w.wg.Wait()
}
