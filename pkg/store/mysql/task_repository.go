package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"advisorhub/pkg/store/mysql/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TaskRepository handles task persistence in MySQL
type TaskRepository struct {
	ds *Datastore
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(ds *Datastore) *TaskRepository {
	return &TaskRepository{ds: ds}
}

// Create creates a new task
func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	if task.State == "" {
		task.State = model.TaskStatePending
	}
	if task.Payload == nil {
		task.Payload = model.JSONMap{}
	}
	if err := r.ds.DB(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// Get retrieves a task by ID
func (r *TaskRepository) Get(ctx context.Context, taskID int64) (*model.Task, error) {
	var task model.Task
	err := r.ds.DB(ctx).Where("id = ?", taskID).First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// Claim atomically selects and locks the next eligible task for the given
// worker. Eligibility: pending, due, attempts below the ceiling. Order:
// priority descending, then scheduled_for ascending, then created_at
// ascending. The SELECT runs with FOR UPDATE SKIP LOCKED so contending
// workers neither block nor double-claim; the state transition happens in
// the same transaction. Returns (nil, nil) when no eligible row exists.
func (r *TaskRepository) Claim(ctx context.Context, workerID string) (*model.Task, error) {
	var claimed *model.Task

	err := r.ds.ExecTx(ctx, func(txCtx context.Context) error {
		now := time.Now().UTC()

		var task model.Task
		err := r.ds.DB(txCtx).
			Where("state = ?", model.TaskStatePending).
			Where("scheduled_for IS NULL OR scheduled_for <= ?", now).
			Where("attempts < max_attempts").
			Order("priority DESC, scheduled_for ASC, created_at ASC").
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			First(&task).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("failed to select pending task: %w", err)
		}

		task.State = model.TaskStateInProgress
		task.LockedAt = &now
		task.LockedBy = workerID
		task.Attempts++
		task.LastAttemptAt = &now
		task.UpdatedAt = now

		if err := r.ds.DB(txCtx).Save(&task).Error; err != nil {
			return fmt.Errorf("failed to lock task %d: %w", task.ID, err)
		}

		claimed = &task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// ClaimByID claims one specific pending task for synchronous execution.
// Same transition as Claim, but keyed by task ID; used by the execute-now
// path so it competes with poller workers through the identical CAS.
// Returns (nil, nil) if the task is not currently claimable.
func (r *TaskRepository) ClaimByID(ctx context.Context, taskID int64, workerID string) (*model.Task, error) {
	now := time.Now().UTC()

	result := r.ds.DB(ctx).Model(&model.Task{}).
		Where("id = ? AND state = ? AND attempts < max_attempts", taskID, model.TaskStatePending).
		Updates(map[string]interface{}{
			"state":           model.TaskStateInProgress,
			"locked_at":       now,
			"locked_by":       workerID,
			"attempts":        gorm.Expr("attempts + 1"),
			"last_attempt_at": now,
			"updated_at":      now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to claim task %d: %w", taskID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return r.Get(ctx, taskID)
}

// Complete transitions an in-progress task to completed and records its
// result. The update is CAS'd on state and locked_by so a worker whose
// lock was reclaimed cannot clobber a re-execution.
func (r *TaskRepository) Complete(ctx context.Context, task *model.Task, result model.JSONMap) error {
	now := time.Now().UTC()

	res := r.ds.DB(ctx).Model(&model.Task{}).
		Where("id = ? AND state = ? AND locked_by = ?", task.ID, model.TaskStateInProgress, task.LockedBy).
		Updates(map[string]interface{}{
			"state":        model.TaskStateCompleted,
			"result":       result,
			"completed_at": now,
			"locked_at":    nil,
			"locked_by":    "",
			"updated_at":   now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to complete task %d: %w", task.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("task %d not in progress or lock lost", task.ID)
	}

	task.State = model.TaskStateCompleted
	task.Result = result
	task.CompletedAt = &now
	task.LockedAt = nil
	task.LockedBy = ""
	return nil
}

// Reschedule returns a failed attempt to pending with a future
// scheduled_for, recording the error and clearing the lock.
func (r *TaskRepository) Reschedule(ctx context.Context, task *model.Task, errMsg string, at time.Time) error {
	now := time.Now().UTC()

	res := r.ds.DB(ctx).Model(&model.Task{}).
		Where("id = ? AND state = ? AND locked_by = ?", task.ID, model.TaskStateInProgress, task.LockedBy).
		Updates(map[string]interface{}{
			"state":         model.TaskStatePending,
			"last_error":    errMsg,
			"scheduled_for": at,
			"locked_at":     nil,
			"locked_by":     "",
			"updated_at":    now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to reschedule task %d: %w", task.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("task %d not in progress or lock lost", task.ID)
	}

	task.State = model.TaskStatePending
	task.LastError = errMsg
	task.ScheduledFor = &at
	task.LockedAt = nil
	task.LockedBy = ""
	return nil
}

// Fail marks a task terminally failed. Failed tasks stay in the table
// with last_error populated for operator inspection; there is no separate
// dead-letter queue.
func (r *TaskRepository) Fail(ctx context.Context, task *model.Task, errMsg string) error {
	now := time.Now().UTC()

	res := r.ds.DB(ctx).Model(&model.Task{}).
		Where("id = ? AND state = ? AND locked_by = ?", task.ID, model.TaskStateInProgress, task.LockedBy).
		Updates(map[string]interface{}{
			"state":        model.TaskStateFailed,
			"last_error":   errMsg,
			"completed_at": now,
			"locked_at":    nil,
			"locked_by":    "",
			"updated_at":   now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark task %d failed: %w", task.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("task %d not in progress or lock lost", task.ID)
	}

	task.State = model.TaskStateFailed
	task.LastError = errMsg
	task.CompletedAt = &now
	task.LockedAt = nil
	task.LockedBy = ""
	return nil
}

// ReclaimOrphans resets in-progress tasks whose lock is older than the
// given threshold back to pending. A slow-but-alive worker's task can be
// reclaimed and executed twice; execution is at-least-once, and the
// locked_by CAS on terminal updates keeps the stale worker from
// overwriting the re-execution.
func (r *TaskRepository) ReclaimOrphans(ctx context.Context, olderThan time.Time) (int64, error) {
	now := time.Now().UTC()

	res := r.ds.DB(ctx).Model(&model.Task{}).
		Where("state = ? AND locked_at IS NOT NULL AND locked_at < ?", model.TaskStateInProgress, olderThan).
		Updates(map[string]interface{}{
			"state":      model.TaskStatePending,
			"locked_at":  nil,
			"locked_by":  "",
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to reclaim orphaned tasks: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ListByUser retrieves tasks for a user, newest first.
func (r *TaskRepository) ListByUser(ctx context.Context, userID int64, state string, limit, offset int) ([]*model.Task, error) {
	if limit <= 0 {
		limit = 100
	}

	query := r.ds.DB(ctx).Model(&model.Task{}).Where("user_id = ?", userID)
	if state != "" {
		query = query.Where("state = ?", state)
	}

	var tasks []*model.Task
	err := query.
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// CountByState counts tasks by state globally
func (r *TaskRepository) CountByState(ctx context.Context, state string) (int64, error) {
	var count int64
	err := r.ds.DB(ctx).Model(&model.Task{}).Where("state = ?", state).Count(&count).Error
	return count, err
}
