package main

import (
	"context"
	"fmt"
	"time"

	"advisorhub/internal/jobs"
	"advisorhub/pkg/logger"
	mysqlstore "advisorhub/pkg/store/mysql"
)

func (app *Application) initJobs() error {
	if app.exec == nil {
		return fmt.Errorf("executor not initialized")
	}

	manager := jobs.NewManager(app.ctx)

	// The polling worker is the queue's consumer.
	app.taskWork = app.newTaskWorker()
	manager.Register(app.taskWork)

	// Periodic orphan reclamation backs up the worker's startup pass so a
	// fleet-wide crash cannot strand locked tasks until the next deploy.
	// The bulk update is idempotent, so replicas may all run it.
	lockTimeout := time.Duration(app.config.Worker.LockTimeout) * time.Second
	manager.Register(newOrphanReclaimJob(5*time.Minute, lockTimeout, app.taskRepo))

	app.jobsManager = manager
	return nil
}

// orphanReclaimJob periodically returns expired in-progress locks to
// pending.
type orphanReclaimJob struct {
	interval    time.Duration
	lockTimeout time.Duration
	tasks       *mysqlstore.TaskRepository
}

func newOrphanReclaimJob(interval, lockTimeout time.Duration, tasks *mysqlstore.TaskRepository) jobs.Job {
	return &orphanReclaimJob{
		interval:    interval,
		lockTimeout: lockTimeout,
		tasks:       tasks,
	}
}

func (j *orphanReclaimJob) Name() string {
	return "orphan-reclaim"
}

func (j *orphanReclaimJob) Interval() time.Duration {
	return j.interval
}

func (j *orphanReclaimJob) Run(ctx context.Context) error {
	if j.tasks == nil {
		return fmt.Errorf("task repository not configured")
	}

	cutoff := time.Now().UTC().Add(-j.lockTimeout)
	n, err := j.tasks.ReclaimOrphans(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.WarnCtx(ctx, "reclaimed %d orphaned tasks", n)
	}
	return nil
}
