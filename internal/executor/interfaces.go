package executor

import (
	"context"
	"time"

	"advisorhub/internal/llm"
	"advisorhub/internal/syncer"
	"advisorhub/pkg/store/mysql/model"
)

// TaskStore is the slice of task persistence the executor drives.
type TaskStore interface {
	Get(ctx context.Context, taskID int64) (*model.Task, error)
	ClaimByID(ctx context.Context, taskID int64, workerID string) (*model.Task, error)
	Complete(ctx context.Context, task *model.Task, result model.JSONMap) error
	Reschedule(ctx context.Context, task *model.Task, errMsg string, at time.Time) error
	Fail(ctx context.Context, task *model.Task, errMsg string) error
}

// UserStore resolves task owners.
type UserStore interface {
	Get(ctx context.Context, userID int64) (*model.User, error)
}

// RuleEngine evaluates a user's rules against an event.
type RuleEngine interface {
	EvaluateRulesForEvent(ctx context.Context, user *model.User, eventType string, eventData map[string]interface{}, createFallbackTask bool) (int, error)
}

// RuleLister exposes the active rule texts for prompt context.
type RuleLister interface {
	ListActive(ctx context.Context, userID int64) ([]*model.MemoryRule, error)
}

// ToolRunner executes a named tool for a user.
type ToolRunner interface {
	Execute(ctx context.Context, user *model.User, name string, args map[string]interface{}) (map[string]interface{}, error)
}

// MailSyncer pulls recent mail for a user.
type MailSyncer interface {
	Sync(ctx context.Context, user *model.User) (*syncer.Stats, error)
}

// EventSyncer pulls upcoming calendar events for a user.
type EventSyncer interface {
	Sync(ctx context.Context, user *model.User) (*syncer.Stats, error)
}

// Embedder backfills email embeddings.
type Embedder interface {
	Run(ctx context.Context, userID int64, limit int) (int, error)
}

// ChatClient runs one tool-calling completion.
type ChatClient interface {
	ChatWithTools(ctx context.Context, systemPrompt, userMessage string, tools []llm.ToolDef) (*llm.ChatResult, error)
}

// BudgetLimiter guards the LLM request and token budgets.
type BudgetLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Consume(ctx context.Context, key string, n, limit int, window time.Duration) (bool, error)
}
