// Package tools executes the concrete actions a task or an LLM tool call
// can request: sending email, managing calendar events and maintaining
// HubSpot contacts and notes. Every entry point validates its arguments
// before touching an external API.
package tools

import (
	"context"
	"fmt"
	"time"

	"advisorhub/pkg/config"
	"advisorhub/pkg/logger"
	"advisorhub/pkg/ratelimit"
	"advisorhub/pkg/store/mysql/model"
)

// Tool names as they appear in task types and LLM function schemas.
const (
	ToolSendEmail     = "send_email"
	ToolScheduleEvent = "schedule_event"
	ToolUpdateEvent   = "update_event"
	ToolCancelEvent   = "cancel_event"
	ToolFindContact   = "find_contact"
	ToolCreateContact = "create_contact"
	ToolUpdateContact = "update_contact"
	ToolCreateNote    = "create_note"
)

// ExecutionError wraps a tool failure with the tool that produced it.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// ErrRateLimited is returned when an email send would exceed the
// per-user or global hourly budget.
var ErrRateLimited = fmt.Errorf("email rate limit exceeded")

// Runner dispatches tool invocations by name.
type Runner struct {
	limiter *ratelimit.Limiter
	hubspot *HubspotClient
}

// NewRunner creates a tool runner.
func NewRunner(limiter *ratelimit.Limiter, hubspot *HubspotClient) *Runner {
	return &Runner{limiter: limiter, hubspot: hubspot}
}

// Execute runs one tool for the user and returns its result map. Unknown
// tool names and invalid arguments fail without calling any external API.
func (r *Runner) Execute(ctx context.Context, user *model.User, name string, args map[string]interface{}) (map[string]interface{}, error) {
	if err := ValidateArgs(name, args); err != nil {
		return nil, &ExecutionError{Tool: name, Err: err}
	}

	var (
		result map[string]interface{}
		err    error
	)
	switch name {
	case ToolSendEmail:
		result, err = r.sendEmail(ctx, user, args)
	case ToolScheduleEvent:
		result, err = ScheduleEvent(ctx, user, args)
	case ToolUpdateEvent:
		result, err = UpdateEvent(ctx, user, args)
	case ToolCancelEvent:
		result, err = CancelEvent(ctx, user, args)
	case ToolFindContact:
		result, err = r.hubspot.FindContact(ctx, user, stringArg(args, "email"))
	case ToolCreateContact:
		result, err = r.hubspot.CreateContact(ctx, user, args)
	case ToolUpdateContact:
		result, err = r.hubspot.UpdateContact(ctx, user, stringArg(args, "contact_id"), args)
	case ToolCreateNote:
		result, err = r.hubspot.CreateNote(ctx, user, stringArg(args, "contact_id"), stringArg(args, "body"))
	default:
		return nil, &ExecutionError{Tool: name, Err: fmt.Errorf("unknown tool")}
	}

	if err != nil {
		return nil, &ExecutionError{Tool: name, Err: err}
	}
	return result, nil
}

// sendEmail enforces the per-user and global hourly send budgets before
// handing off to Gmail. The global budget is checked first so a single
// user cannot consume a per-user slot when the system is saturated.
func (r *Runner) sendEmail(ctx context.Context, user *model.User, args map[string]interface{}) (map[string]interface{}, error) {
	limits := config.GlobalConfig.Limits

	ok, err := r.limiter.Allow(ctx, "ratelimit:emails:global", limits.MaxEmailsGlobalPerHour, time.Hour)
	if err != nil {
		return nil, fmt.Errorf("failed to check global email budget: %w", err)
	}
	if !ok {
		logger.WarnCtx(ctx, "global email budget exhausted, refusing send for user %d", user.ID)
		return nil, ErrRateLimited
	}

	key := fmt.Sprintf("ratelimit:emails:user:%d", user.ID)
	ok, err = r.limiter.Allow(ctx, key, limits.MaxEmailsPerUserPerHour, time.Hour)
	if err != nil {
		return nil, fmt.Errorf("failed to check user email budget: %w", err)
	}
	if !ok {
		logger.WarnCtx(ctx, "email budget exhausted for user %d", user.ID)
		return nil, ErrRateLimited
	}

	return SendEmail(ctx, user, stringArg(args, "to"), stringArg(args, "subject"), stringArg(args, "body"))
}

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}
