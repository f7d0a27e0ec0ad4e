// Package executor runs claimed tasks. One dispatch table serves both
// the polling worker and the synchronous execute-now path, so a task
// behaves identically however it is picked up.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"advisorhub/internal/llm"
	"advisorhub/internal/rules"
	"advisorhub/internal/syncer"
	"advisorhub/internal/tools"
	"advisorhub/pkg/config"
	"advisorhub/pkg/logger"
	"advisorhub/pkg/store/mysql/model"
)

// embedBatchSize caps how many emails get embedded after one sync.
const embedBatchSize = 50

// permanentError marks a failure that retrying cannot fix. The task is
// failed terminally without burning the remaining attempts.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the failure policy fails the task immediately.
func Permanent(err error) error {
	return &permanentError{err: err}
}

// Executor dispatches tasks by type and applies the completion and
// retry policy to the outcome.
type Executor struct {
	tasks      TaskStore
	users      UserStore
	rules      RuleEngine
	ruleTexts  RuleLister
	runner     ToolRunner
	gmail      MailSyncer
	calendar   EventSyncer
	embeddings Embedder
	chat       ChatClient
	limiter    BudgetLimiter
}

// New creates an executor.
func New(tasks TaskStore, users UserStore, engine RuleEngine, ruleTexts RuleLister, runner ToolRunner, gmail MailSyncer, calendar EventSyncer, embeddings Embedder, chat ChatClient, limiter BudgetLimiter) *Executor {
	return &Executor{
		tasks:      tasks,
		users:      users,
		rules:      engine,
		ruleTexts:  ruleTexts,
		runner:     runner,
		gmail:      gmail,
		calendar:   calendar,
		embeddings: embeddings,
		chat:       chat,
		limiter:    limiter,
	}
}

// Execute runs one claimed in-progress task and transitions it to its
// next state. It never returns an error; failures are absorbed into the
// task row.
func (e *Executor) Execute(ctx context.Context, task *model.Task) {
	logger.InfoCtx(ctx, "executing task %d (type: %s, attempt %d/%d)",
		task.ID, task.TaskType, task.Attempts, task.MaxAttempts)

	result, err := e.run(ctx, task)
	if err != nil {
		e.handleFailure(ctx, task, err)
		return
	}

	if err := e.tasks.Complete(ctx, task, result); err != nil {
		logger.ErrorCtx(ctx, "failed to complete task %d: %v", task.ID, err)
		return
	}
	logger.InfoCtx(ctx, "task %d completed", task.ID)
}

// ExecuteNow claims one specific pending task and runs it synchronously.
// The claim goes through the same CAS as the poller, so a concurrent
// worker can win the race; that is reported as not claimable.
func (e *Executor) ExecuteNow(ctx context.Context, taskID int64, workerID string) (*model.Task, error) {
	task, err := e.tasks.ClaimByID(ctx, taskID, workerID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task %d is not claimable", taskID)
	}

	e.Execute(ctx, task)
	return e.tasks.Get(ctx, taskID)
}

// handleFailure applies the retry policy: permanent errors fail the task
// outright, exhausted tasks fail terminally, everything else goes back
// to pending with exponential backoff.
func (e *Executor) handleFailure(ctx context.Context, task *model.Task, taskErr error) {
	var perm *permanentError
	if errors.As(taskErr, &perm) {
		logger.WarnCtx(ctx, "task %d failed permanently: %v", task.ID, taskErr)
		if err := e.tasks.Fail(ctx, task, taskErr.Error()); err != nil {
			logger.ErrorCtx(ctx, "failed to mark task %d failed: %v", task.ID, err)
		}
		return
	}

	if task.Attempts >= task.MaxAttempts {
		logger.WarnCtx(ctx, "task %d failed after %d attempts: %v", task.ID, task.Attempts, taskErr)
		if err := e.tasks.Fail(ctx, task, taskErr.Error()); err != nil {
			logger.ErrorCtx(ctx, "failed to mark task %d failed: %v", task.ID, err)
		}
		return
	}

	retryAt := time.Now().UTC().Add(task.RetryBackoff())
	logger.WarnCtx(ctx, "task %d attempt %d failed, retrying at %s: %v",
		task.ID, task.Attempts, retryAt.Format(time.RFC3339), taskErr)
	if err := e.tasks.Reschedule(ctx, task, taskErr.Error(), retryAt); err != nil {
		logger.ErrorCtx(ctx, "failed to reschedule task %d: %v", task.ID, err)
	}
}

func (e *Executor) run(ctx context.Context, task *model.Task) (model.JSONMap, error) {
	switch task.TaskType {
	case model.TaskTypeGmailSync:
		return e.runGmailSync(ctx, task)
	case model.TaskTypeCalendarSync:
		return e.runCalendarSync(ctx, task)
	case model.TaskTypeSendEmail, model.TaskTypeScheduleEvent, model.TaskTypeUpdateEvent,
		model.TaskTypeCancelEvent, model.TaskTypeFindContact, model.TaskTypeCreateContact,
		model.TaskTypeUpdateContact, model.TaskTypeCreateNote:
		return e.runTool(ctx, task)
	case model.TaskTypeLLMProcessEvent, model.TaskTypeGeneric, model.TaskTypeProcessEmail:
		return e.runLLMProcessEvent(ctx, task)
	default:
		return nil, Permanent(fmt.Errorf("unknown task type %q", task.TaskType))
	}
}

func (e *Executor) owner(ctx context.Context, task *model.Task) (*model.User, error) {
	if task.UserID == nil {
		return nil, Permanent(fmt.Errorf("task %d has no user", task.ID))
	}
	user, err := e.users.Get(ctx, *task.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, Permanent(fmt.Errorf("user %d not found", *task.UserID))
	}
	return user, nil
}

func (e *Executor) runGmailSync(ctx context.Context, task *model.Task) (model.JSONMap, error) {
	user, err := e.owner(ctx, task)
	if err != nil {
		return nil, err
	}

	stats, err := e.gmail.Sync(ctx, user)
	if err != nil {
		return nil, err
	}

	// One derived event per sync pass, carrying the pass statistics.
	// The fallback mints at most one speculative task per sync, never
	// one per message.
	embedded := 0
	triggered := 0
	if stats.New > 0 {
		if e.embeddings != nil {
			embedded, err = e.embeddings.Run(ctx, user.ID, embedBatchSize)
			if err != nil {
				logger.WarnCtx(ctx, "embedding pass failed for user %d: %v", user.ID, err)
			}
		}

		eventData := map[string]interface{}{
			"history_id":    task.PayloadString("history_id", ""),
			"new_count":     stats.New,
			"sync_result":   statsMap(stats),
			"cascade_depth": rules.CascadeDepth(task.PayloadMap("event_data")) + 1,
		}
		triggered, err = e.rules.EvaluateRulesForEvent(ctx, user, "gmail.message.received", eventData, true)
		if err != nil {
			logger.WarnCtx(ctx, "rule evaluation failed for gmail sync of user %d: %v", user.ID, err)
			triggered = 0
		}
	}

	result := statsMap(stats)
	result["rules_triggered"] = triggered
	result["embedded"] = embedded
	return result, nil
}

func (e *Executor) runCalendarSync(ctx context.Context, task *model.Task) (model.JSONMap, error) {
	user, err := e.owner(ctx, task)
	if err != nil {
		return nil, err
	}

	stats, err := e.calendar.Sync(ctx, user)
	if err != nil {
		return nil, err
	}

	// New events take precedence over updates when both happened in the
	// same pass; either way the sync derives exactly one event.
	triggered := 0
	if stats.New > 0 || stats.Updated > 0 {
		eventType := "calendar.event.created"
		if stats.New == 0 {
			eventType = "calendar.event.updated"
		}
		eventData := map[string]interface{}{
			"resource_state": task.PayloadString("resource_state", ""),
			"new_count":      stats.New,
			"updated_count":  stats.Updated,
			"sync_result":    statsMap(stats),
			"cascade_depth":  rules.CascadeDepth(task.PayloadMap("event_data")) + 1,
		}
		triggered, err = e.rules.EvaluateRulesForEvent(ctx, user, eventType, eventData, true)
		if err != nil {
			logger.WarnCtx(ctx, "rule evaluation failed for calendar sync of user %d: %v", user.ID, err)
			triggered = 0
		}
	}

	result := statsMap(stats)
	result["rules_triggered"] = triggered
	return result, nil
}

// statsMap flattens sync statistics for task results and event payloads.
func statsMap(stats *syncer.Stats) model.JSONMap {
	return model.JSONMap{
		"total_fetched": stats.TotalFetched,
		"new":           stats.New,
		"updated":       stats.Updated,
		"errors":        stats.Errors,
	}
}

// runTool executes a single-action task. Arguments live under the
// payload's "args" key; payloads written before that convention are
// accepted whole.
func (e *Executor) runTool(ctx context.Context, task *model.Task) (model.JSONMap, error) {
	user, err := e.owner(ctx, task)
	if err != nil {
		return nil, err
	}

	args := task.PayloadMap("args")
	if args == nil {
		args = map[string]interface{}(task.Payload)
	}

	result, err := e.runner.Execute(ctx, user, task.TaskType, args)
	if err != nil {
		return nil, err
	}
	return model.JSONMap(result), nil
}

// runLLMProcessEvent hands an event to the model with the tool schema
// and executes whatever tool calls come back. One tool call failing is
// recorded in the result and does not fail the task; the model's other
// actions still count.
func (e *Executor) runLLMProcessEvent(ctx context.Context, task *model.Task) (model.JSONMap, error) {
	user, err := e.owner(ctx, task)
	if err != nil {
		return nil, err
	}

	limits := config.GlobalConfig.Limits
	requestKey := fmt.Sprintf("ratelimit:llm:requests:user:%d", user.ID)
	ok, err := e.limiter.Allow(ctx, requestKey, limits.MaxLLMRequestsPerHour, time.Hour)
	if err != nil {
		return nil, fmt.Errorf("failed to check llm request budget: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("llm request budget exhausted for user %d", user.ID)
	}

	eventType := task.PayloadString("event_type", "unknown")
	eventData := task.PayloadMap("event_data")
	instruction := task.PayloadString("instruction", rules.DefaultInstruction)

	var ruleTexts []string
	if active, err := e.ruleTexts.ListActive(ctx, user.ID); err == nil {
		for _, rule := range active {
			ruleTexts = append(ruleTexts, rule.RuleText)
		}
	} else {
		logger.WarnCtx(ctx, "failed to load rules for prompt context: %v", err)
	}

	var parentPayload map[string]interface{}
	if task.ParentTaskID != nil {
		if parent, err := e.tasks.Get(ctx, *task.ParentTaskID); err == nil && parent != nil {
			parentPayload = parent.Payload
		}
	}

	systemPrompt := llm.BuildProactivePrompt(eventType, eventData, ruleTexts)
	userMessage := llm.BuildUserMessage(instruction, parentPayload)

	reply, err := e.chat.ChatWithTools(ctx, systemPrompt, userMessage, tools.Schemas())
	if err != nil {
		return nil, err
	}

	if reply.TotalTokens > 0 {
		tokens := int(reply.TotalTokens)
		userKey := fmt.Sprintf("ratelimit:llm:tokens:user:%d", user.ID)
		ok, err := e.limiter.Consume(ctx, userKey, tokens, limits.MaxLLMTokensPerDay, 24*time.Hour)
		if err != nil {
			logger.WarnCtx(ctx, "failed to record llm token usage: %v", err)
		} else if !ok {
			logger.WarnCtx(ctx, "llm token budget exhausted for user %d today", user.ID)
		}
		ok, err = e.limiter.Consume(ctx, "ratelimit:llm:tokens:global", tokens, limits.MaxLLMTokensGlobalPerDay, 24*time.Hour)
		if err != nil {
			logger.WarnCtx(ctx, "failed to record global llm token usage: %v", err)
		} else if !ok {
			logger.WarnCtx(ctx, "global llm token budget exhausted for the day")
		}
	}

	actions := make([]interface{}, 0, len(reply.ToolCalls))
	for _, call := range reply.ToolCalls {
		action := map[string]interface{}{"tool": call.Name}

		var args map[string]interface{}
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			action["error"] = fmt.Sprintf("invalid arguments: %v", err)
			actions = append(actions, action)
			continue
		}

		result, err := e.runner.Execute(ctx, user, call.Name, args)
		if err != nil {
			logger.WarnCtx(ctx, "tool %s failed during task %d: %v", call.Name, task.ID, err)
			action["error"] = err.Error()
		} else {
			action["result"] = result
		}
		actions = append(actions, action)
	}

	return model.JSONMap{
		"llm_response":     reply.Content,
		"actions_taken":    actions,
		"tool_calls_count": len(reply.ToolCalls),
	}, nil
}
