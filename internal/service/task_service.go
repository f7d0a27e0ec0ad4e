// Package service sits between the HTTP handlers and the repositories:
// request validation, defaults and the execute-now bridge into the
// executor.
package service

import (
	"context"
	"fmt"
	"time"

	"advisorhub/internal/executor"
	"advisorhub/pkg/store/mysql"
	"advisorhub/pkg/store/mysql/model"

	"github.com/google/uuid"
)

// EnqueueRequest carries the fields a caller may set on a new task.
type EnqueueRequest struct {
	UserID       *int64         `json:"user_id"`
	TaskType     string         `json:"task_type" binding:"required"`
	Priority     int            `json:"priority"`
	MaxAttempts  int            `json:"max_attempts"`
	Payload      map[string]any `json:"payload"`
	ScheduledFor *time.Time     `json:"scheduled_for"`
}

// QueueStats is a per-state task census.
type QueueStats struct {
	Pending         int64 `json:"pending"`
	InProgress      int64 `json:"in_progress"`
	WaitingForReply int64 `json:"waiting_for_reply"`
	Completed       int64 `json:"completed"`
	Failed          int64 `json:"failed"`
}

// TaskService exposes task queue operations to the API surface.
type TaskService struct {
	tasks *mysql.TaskRepository
	exec  *executor.Executor
}

// NewTaskService creates a task service.
func NewTaskService(tasks *mysql.TaskRepository, exec *executor.Executor) *TaskService {
	return &TaskService{tasks: tasks, exec: exec}
}

// Enqueue validates and persists a new pending task.
func (s *TaskService) Enqueue(ctx context.Context, req *EnqueueRequest) (*model.Task, error) {
	if req.TaskType == "" {
		return nil, fmt.Errorf("task_type is required")
	}
	if req.MaxAttempts <= 0 {
		req.MaxAttempts = 3
	}

	task := &model.Task{
		UserID:       req.UserID,
		TaskType:     req.TaskType,
		State:        model.TaskStatePending,
		Priority:     req.Priority,
		MaxAttempts:  req.MaxAttempts,
		Payload:      model.JSONMap(req.Payload),
		ScheduledFor: req.ScheduledFor,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Get returns one task, or nil when it does not exist.
func (s *TaskService) Get(ctx context.Context, taskID int64) (*model.Task, error) {
	return s.tasks.Get(ctx, taskID)
}

// List returns a user's tasks, optionally filtered by state.
func (s *TaskService) List(ctx context.Context, userID int64, state string, limit, offset int) ([]*model.Task, error) {
	return s.tasks.ListByUser(ctx, userID, state, limit, offset)
}

// ExecuteNow runs one pending task synchronously under an ad-hoc worker
// identity and returns the task in its final state.
func (s *TaskService) ExecuteNow(ctx context.Context, taskID int64) (*model.Task, error) {
	workerID := "api-" + uuid.NewString()
	return s.exec.ExecuteNow(ctx, taskID, workerID)
}

// Stats counts tasks per state across all users.
func (s *TaskService) Stats(ctx context.Context) (*QueueStats, error) {
	stats := &QueueStats{}
	for _, entry := range []struct {
		state string
		dst   *int64
	}{
		{model.TaskStatePending, &stats.Pending},
		{model.TaskStateInProgress, &stats.InProgress},
		{model.TaskStateWaitingForReply, &stats.WaitingForReply},
		{model.TaskStateCompleted, &stats.Completed},
		{model.TaskStateFailed, &stats.Failed},
	} {
		n, err := s.tasks.CountByState(ctx, entry.state)
		if err != nil {
			return nil, err
		}
		*entry.dst = n
	}
	return stats, nil
}
