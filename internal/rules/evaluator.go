// Package rules implements the memory-rule engine: parsing user-authored
// rule text, matching triggers against event types, and executing matched
// actions. Rules let users wire external events to tasks:
//
//	when gmail.message.received then create_task type=process_email priority=high
//	when hubspot.contact.* then log
//	When someone emails me that is not in HubSpot, create a contact
//
// The last form is not parseable; it degrades to a catch-all rule whose
// action hands the original instruction to the LLM.
package rules

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"advisorhub/pkg/logger"
	"advisorhub/pkg/store/mysql/model"
)

// Rule actions.
const (
	ActionCreateTask = "create_task"
	ActionCallLLM    = "call_llm"
	ActionLog        = "log"
)

// TriggerAny matches every event type.
const TriggerAny = "*"

// RuleTypeNaturalLanguage tags rules that fell through the structured
// grammar.
const RuleTypeNaturalLanguage = "natural_language"

// DefaultInstruction is the review prompt used when a call_llm action
// carries no instruction of its own.
const DefaultInstruction = "Review this event and take appropriate action."

// maxCascadeDepth bounds rule-triggered task chains. Each hop through the
// queue increments cascade_depth in the event data; past the bound the
// evaluator stops enqueuing.
const maxCascadeDepth = 8

// proactiveEventPrefixes is the allow-list of event categories that earn
// a fallback LLM-review task when no explicit rule matched. Matching is
// prefix-or-exact; anything else must not spawn fallback work, or every
// stray webhook would mint tasks.
var proactiveEventPrefixes = []string{
	"gmail.message.received",
	"hubspot.contact.creation",
	"calendar.event.created",
}

var structuredRulePattern = regexp.MustCompile(`(?i)^when\s+(\S+)\s+then\s+(\S+)(?:\s+(.+))?$`)

// ParsedRule is a trigger/action/params tuple decoded from rule text.
type ParsedRule struct {
	Trigger string
	Action  string
	Params  map[string]string
}

// ParseRule decodes rule text. Structured rules follow
// "when <trigger> then <action> [key=value ...]" (case-insensitive,
// trigger and action are single whitespace-free tokens, params split on
// the first '='). Any other non-empty text is wrapped as a catch-all
// natural-language rule, so parsing only fails for blank text.
func ParseRule(ruleText string) *ParsedRule {
	text := strings.TrimSpace(ruleText)
	if text == "" {
		return nil
	}

	m := structuredRulePattern.FindStringSubmatch(text)
	if m == nil {
		return &ParsedRule{
			Trigger: TriggerAny,
			Action:  ActionCallLLM,
			Params: map[string]string{
				"instruction": text,
				"rule_type":   RuleTypeNaturalLanguage,
			},
		}
	}

	params := make(map[string]string)
	for _, token := range strings.Fields(m[3]) {
		if idx := strings.Index(token, "="); idx > 0 {
			params[token[:idx]] = token[idx+1:]
		}
	}

	return &ParsedRule{
		Trigger: m[1],
		Action:  m[2],
		Params:  params,
	}
}

// MatchesEvent reports whether a rule trigger matches an event type.
// "*" matches everything; otherwise the trigger is a dotted wildcard
// pattern ("hubspot.contact.*" matches "hubspot.contact.creation"),
// anchored and case-insensitive.
func MatchesEvent(ruleTrigger, eventType string) bool {
	if ruleTrigger == TriggerAny {
		return true
	}
	pattern := strings.ReplaceAll(regexp.QuoteMeta(ruleTrigger), `\*`, ".*")
	matched, err := regexp.MatchString("(?i)^"+pattern+"$", eventType)
	if err != nil {
		return false
	}
	return matched
}

// RuleSource provides the active rules to evaluate.
type RuleSource interface {
	ListActive(ctx context.Context, userID int64) ([]*model.MemoryRule, error)
	MarkTriggered(ctx context.Context, ruleID int64) error
}

// TaskCreator enqueues the tasks that rule actions produce.
type TaskCreator interface {
	Create(ctx context.Context, task *model.Task) error
}

// Evaluator matches events against a user's active rules and executes
// the resulting actions.
type Evaluator struct {
	rules RuleSource
	tasks TaskCreator
}

// NewEvaluator creates a rule evaluator.
func NewEvaluator(rules RuleSource, tasks TaskCreator) *Evaluator {
	return &Evaluator{rules: rules, tasks: tasks}
}

// ExecuteAction performs one rule action. create_task and call_llm
// enqueue task rows; log only writes an audit line; unknown actions are
// logged and ignored.
func (e *Evaluator) ExecuteAction(ctx context.Context, user *model.User, action string, params map[string]string, eventData map[string]interface{}) error {
	switch action {
	case ActionCreateTask:
		return e.createRuleTask(ctx, user, params, eventData)
	case ActionCallLLM:
		return e.createLLMTask(ctx, user, params, eventData)
	case ActionLog:
		logger.InfoCtx(ctx, "rule triggered for user %d: %s with params %v", user.ID, action, params)
		return nil
	default:
		logger.WarnCtx(ctx, "unknown rule action: %s", action)
		return nil
	}
}

func (e *Evaluator) createRuleTask(ctx context.Context, user *model.User, params map[string]string, eventData map[string]interface{}) error {
	if depth := CascadeDepth(eventData); depth >= maxCascadeDepth {
		logger.WarnCtx(ctx, "cascade depth %d reached for user %d, not enqueuing rule task", depth, user.ID)
		return nil
	}

	priorityMap := map[string]int{"high": 3, "medium": 2, "low": 1}
	priority, ok := priorityMap[params["priority"]]
	if !ok {
		priority = 2
	}

	taskType := params["type"]
	if taskType == "" {
		taskType = model.TaskTypeGeneric
	}

	userID := user.ID
	task := &model.Task{
		UserID:      &userID,
		TaskType:    taskType,
		State:       model.TaskStatePending,
		Priority:    priority,
		MaxAttempts: 3,
		Payload: model.JSONMap{
			"rule_triggered": true,
			"event_data":     eventData,
			"params":         paramsToMap(params),
		},
	}
	if err := e.tasks.Create(ctx, task); err != nil {
		return fmt.Errorf("failed to create rule task: %w", err)
	}

	logger.InfoCtx(ctx, "created task %d (type: %s) for user %d from rule action", task.ID, taskType, user.ID)
	return nil
}

func (e *Evaluator) createLLMTask(ctx context.Context, user *model.User, params map[string]string, eventData map[string]interface{}) error {
	if depth := CascadeDepth(eventData); depth >= maxCascadeDepth {
		logger.WarnCtx(ctx, "cascade depth %d reached for user %d, not enqueuing llm task", depth, user.ID)
		return nil
	}

	instruction := params["instruction"]
	if instruction == "" {
		instruction = DefaultInstruction
	}

	userID := user.ID
	task := &model.Task{
		UserID:      &userID,
		TaskType:    model.TaskTypeLLMProcessEvent,
		State:       model.TaskStatePending,
		Priority:    2,
		MaxAttempts: 3,
		Payload: model.JSONMap{
			"rule_triggered": true,
			"instruction":    instruction,
			"event_data":     eventData,
			"params":         paramsToMap(params),
		},
	}

	// parent_task_id chains an LLM task onto an earlier task's context.
	if raw := params["parent_task_id"]; raw != "" {
		if parentID, err := strconv.ParseInt(raw, 10, 64); err == nil {
			task.ParentTaskID = &parentID
		}
	}

	if err := e.tasks.Create(ctx, task); err != nil {
		return fmt.Errorf("failed to create llm task: %w", err)
	}

	logger.InfoCtx(ctx, "created llm task %d for user %d from rule action", task.ID, user.ID)
	return nil
}

// EvaluateRules evaluates all of the user's active rules against the
// event and returns how many actions succeeded. One rule's failure is
// logged and skipped; it never aborts the remaining rules.
func (e *Evaluator) EvaluateRules(ctx context.Context, user *model.User, eventType string, eventData map[string]interface{}) (int, error) {
	activeRules, err := e.rules.ListActive(ctx, user.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load rules for user %d: %w", user.ID, err)
	}

	triggered := 0
	for _, rule := range activeRules {
		parsed := ParseRule(rule.RuleText)
		if parsed == nil {
			continue
		}
		if !MatchesEvent(parsed.Trigger, eventType) {
			continue
		}

		logger.InfoCtx(ctx, "rule %d triggered for user %d: %s", rule.ID, user.ID, rule.RuleText)

		if err := e.ExecuteAction(ctx, user, parsed.Action, parsed.Params, eventData); err != nil {
			logger.ErrorCtx(ctx, "failed to execute rule %d action: %v", rule.ID, err)
			continue
		}
		triggered++

		if err := e.rules.MarkTriggered(ctx, rule.ID); err != nil {
			logger.WarnCtx(ctx, "failed to stamp rule %d: %v", rule.ID, err)
		}
	}

	return triggered, nil
}

// EvaluateRulesForEvent is the engine's public entry point. It evaluates
// the user's rules and, when nothing matched an event from one of the
// proactive categories, enqueues a single low-priority LLM-review task so
// the agent still reacts without any rules configured.
func (e *Evaluator) EvaluateRulesForEvent(ctx context.Context, user *model.User, eventType string, eventData map[string]interface{}, createFallbackTask bool) (int, error) {
	triggered, err := e.EvaluateRules(ctx, user, eventType, eventData)
	if err != nil {
		return 0, err
	}
	if triggered > 0 || !createFallbackTask {
		return triggered, nil
	}
	if !isProactiveEvent(eventType) {
		return 0, nil
	}
	if depth := CascadeDepth(eventData); depth >= maxCascadeDepth {
		logger.WarnCtx(ctx, "cascade depth %d reached for user %d, not enqueuing fallback task", depth, user.ID)
		return 0, nil
	}

	userID := user.ID
	task := &model.Task{
		UserID:      &userID,
		TaskType:    model.TaskTypeLLMProcessEvent,
		State:       model.TaskStatePending,
		Priority:    1,
		MaxAttempts: 2,
		Payload: model.JSONMap{
			"fallback_task": true,
			"event_type":    eventType,
			"event_data":    eventData,
			"instruction":   DefaultInstruction,
		},
	}
	if err := e.tasks.Create(ctx, task); err != nil {
		return 0, fmt.Errorf("failed to create fallback task: %w", err)
	}

	logger.InfoCtx(ctx, "no rules matched %s for user %d, created fallback llm task %d", eventType, user.ID, task.ID)
	return 1, nil
}

func isProactiveEvent(eventType string) bool {
	for _, prefix := range proactiveEventPrefixes {
		if strings.HasPrefix(eventType, prefix) {
			return true
		}
	}
	return false
}

// CascadeDepth reads the cascade_depth counter out of event data. Events
// that never passed through a rule-created task report zero.
func CascadeDepth(eventData map[string]interface{}) int {
	if eventData == nil {
		return 0
	}
	switch v := eventData["cascade_depth"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func paramsToMap(params map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
