package rules

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"advisorhub/pkg/store/mysql/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRuleSource is a mock implementation of RuleSource for testing.
type mockRuleSource struct {
	rules     []*model.MemoryRule
	triggered []int64
	mu        sync.Mutex
}

func (m *mockRuleSource) ListActive(ctx context.Context, userID int64) ([]*model.MemoryRule, error) {
	return m.rules, nil
}

func (m *mockRuleSource) MarkTriggered(ctx context.Context, ruleID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggered = append(m.triggered, ruleID)
	return nil
}

// mockTaskCreator records created tasks and can fail on demand.
type mockTaskCreator struct {
	tasks   []*model.Task
	failing bool
	nextID  int64
	mu      sync.Mutex
}

func (m *mockTaskCreator) Create(ctx context.Context, task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return fmt.Errorf("datastore down")
	}
	m.nextID++
	task.ID = m.nextID
	m.tasks = append(m.tasks, task)
	return nil
}

func testUser() *model.User {
	return &model.User{ID: 7, Email: "advisor@example.com"}
}

func TestParseRule_Structured(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		trigger string
		action  string
		params  map[string]string
	}{
		{
			name:    "basic rule",
			text:    "when gmail.message.received then create_task",
			trigger: "gmail.message.received",
			action:  "create_task",
			params:  map[string]string{},
		},
		{
			name:    "rule with params",
			text:    "when gmail.message.received then create_task type=process_email priority=high",
			trigger: "gmail.message.received",
			action:  "create_task",
			params:  map[string]string{"type": "process_email", "priority": "high"},
		},
		{
			name:    "case insensitive keywords",
			text:    "WHEN hubspot.contact.* THEN log",
			trigger: "hubspot.contact.*",
			action:  "log",
			params:  map[string]string{},
		},
		{
			name:    "param value containing equals",
			text:    "when a.b then create_task note=x=y",
			trigger: "a.b",
			action:  "create_task",
			params:  map[string]string{"note": "x=y"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed := ParseRule(tt.text)
			require.NotNil(t, parsed)
			assert.Equal(t, tt.trigger, parsed.Trigger)
			assert.Equal(t, tt.action, parsed.Action)
			assert.Equal(t, tt.params, parsed.Params)
		})
	}
}

func TestParseRule_NaturalLanguageFallback(t *testing.T) {
	text := "When someone emails me that is not in HubSpot, create a contact"
	parsed := ParseRule(text)
	require.NotNil(t, parsed)

	assert.Equal(t, TriggerAny, parsed.Trigger)
	assert.Equal(t, ActionCallLLM, parsed.Action)
	assert.Equal(t, text, parsed.Params["instruction"])
	assert.Equal(t, RuleTypeNaturalLanguage, parsed.Params["rule_type"])
}

func TestParseRule_Blank(t *testing.T) {
	assert.Nil(t, ParseRule(""))
	assert.Nil(t, ParseRule("   \t "))
}

func TestMatchesEvent(t *testing.T) {
	tests := []struct {
		trigger string
		event   string
		want    bool
	}{
		{"*", "anything.at.all", true},
		{"gmail.message.received", "gmail.message.received", true},
		{"gmail.message.received", "gmail.message.sent", false},
		{"hubspot.contact.*", "hubspot.contact.creation", true},
		{"hubspot.contact.*", "hubspot.deal.creation", false},
		{"GMAIL.MESSAGE.RECEIVED", "gmail.message.received", true},
		{"gmail.*.received", "gmail.message.received", true},
		// Dots in triggers are literal, not regex wildcards.
		{"gmailXmessage.received", "gmail.message.received", false},
	}

	for _, tt := range tests {
		t.Run(tt.trigger+"/"+tt.event, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesEvent(tt.trigger, tt.event))
		})
	}
}

func TestEvaluateRules_CreatesTask(t *testing.T) {
	source := &mockRuleSource{rules: []*model.MemoryRule{
		{ID: 1, UserID: 7, RuleText: "when gmail.message.received then create_task type=process_email priority=high", IsActive: true},
	}}
	creator := &mockTaskCreator{}
	ev := NewEvaluator(source, creator)

	triggered, err := ev.EvaluateRules(context.Background(), testUser(), "gmail.message.received", map[string]interface{}{"message_id": "m1"})
	require.NoError(t, err)
	assert.Equal(t, 1, triggered)
	assert.Equal(t, []int64{1}, source.triggered)

	require.Len(t, creator.tasks, 1)
	task := creator.tasks[0]
	assert.Equal(t, model.TaskTypeProcessEmail, task.TaskType)
	assert.Equal(t, 3, task.Priority)
	assert.Equal(t, model.TaskStatePending, task.State)
	assert.Equal(t, true, task.Payload["rule_triggered"])
}

func TestEvaluateRules_PartialFailureIsolation(t *testing.T) {
	// Three matching rules; the middle one's action fails. The other two
	// must still execute.
	source := &mockRuleSource{rules: []*model.MemoryRule{
		{ID: 1, UserID: 7, RuleText: "when x.y then log", IsActive: true},
		{ID: 2, UserID: 7, RuleText: "when x.y then create_task", IsActive: true},
		{ID: 3, UserID: 7, RuleText: "when x.y then log", IsActive: true},
	}}
	creator := &mockTaskCreator{failing: true}
	ev := NewEvaluator(source, creator)

	triggered, err := ev.EvaluateRules(context.Background(), testUser(), "x.y", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, triggered)
	assert.Equal(t, []int64{1, 3}, source.triggered)
}

func TestEvaluateRules_NonMatchingSkipped(t *testing.T) {
	source := &mockRuleSource{rules: []*model.MemoryRule{
		{ID: 1, UserID: 7, RuleText: "when calendar.event.created then log", IsActive: true},
	}}
	ev := NewEvaluator(source, &mockTaskCreator{})

	triggered, err := ev.EvaluateRules(context.Background(), testUser(), "gmail.message.received", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, triggered)
	assert.Empty(t, source.triggered)
}

func TestEvaluateRulesForEvent_FallbackTask(t *testing.T) {
	source := &mockRuleSource{}
	creator := &mockTaskCreator{}
	ev := NewEvaluator(source, creator)

	triggered, err := ev.EvaluateRulesForEvent(context.Background(), testUser(), "gmail.message.received", map[string]interface{}{"message_id": "m1"}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, triggered)

	require.Len(t, creator.tasks, 1)
	task := creator.tasks[0]
	assert.Equal(t, model.TaskTypeLLMProcessEvent, task.TaskType)
	assert.Equal(t, 1, task.Priority)
	assert.Equal(t, 2, task.MaxAttempts)
	assert.Equal(t, true, task.Payload["fallback_task"])
	assert.Equal(t, "gmail.message.received", task.Payload["event_type"])
}

func TestEvaluateRulesForEvent_FallbackGating(t *testing.T) {
	t.Run("disabled flag", func(t *testing.T) {
		creator := &mockTaskCreator{}
		ev := NewEvaluator(&mockRuleSource{}, creator)

		triggered, err := ev.EvaluateRulesForEvent(context.Background(), testUser(), "gmail.message.received", nil, false)
		require.NoError(t, err)
		assert.Equal(t, 0, triggered)
		assert.Empty(t, creator.tasks)
	})

	t.Run("event outside allow-list", func(t *testing.T) {
		creator := &mockTaskCreator{}
		ev := NewEvaluator(&mockRuleSource{}, creator)

		triggered, err := ev.EvaluateRulesForEvent(context.Background(), testUser(), "hubspot.deal.creation", nil, true)
		require.NoError(t, err)
		assert.Equal(t, 0, triggered)
		assert.Empty(t, creator.tasks)
	})

	t.Run("no fallback when a rule matched", func(t *testing.T) {
		source := &mockRuleSource{rules: []*model.MemoryRule{
			{ID: 1, UserID: 7, RuleText: "when gmail.message.received then log", IsActive: true},
		}}
		creator := &mockTaskCreator{}
		ev := NewEvaluator(source, creator)

		triggered, err := ev.EvaluateRulesForEvent(context.Background(), testUser(), "gmail.message.received", nil, true)
		require.NoError(t, err)
		assert.Equal(t, 1, triggered)
		assert.Empty(t, creator.tasks, "log action creates no task, and no fallback should fire")
	})
}

func TestCascadeDepthGuard(t *testing.T) {
	creator := &mockTaskCreator{}
	ev := NewEvaluator(&mockRuleSource{}, creator)
	user := testUser()

	deep := map[string]interface{}{"cascade_depth": maxCascadeDepth}

	err := ev.ExecuteAction(context.Background(), user, ActionCreateTask, nil, deep)
	require.NoError(t, err)
	err = ev.ExecuteAction(context.Background(), user, ActionCallLLM, nil, deep)
	require.NoError(t, err)
	assert.Empty(t, creator.tasks, "actions at the depth bound must not enqueue")

	triggered, err := ev.EvaluateRulesForEvent(context.Background(), user, "gmail.message.received", deep, true)
	require.NoError(t, err)
	assert.Equal(t, 0, triggered)
	assert.Empty(t, creator.tasks)
}

func TestCascadeDepth(t *testing.T) {
	assert.Equal(t, 0, CascadeDepth(nil))
	assert.Equal(t, 0, CascadeDepth(map[string]interface{}{}))
	assert.Equal(t, 3, CascadeDepth(map[string]interface{}{"cascade_depth": 3}))
	// JSON round-trips land as float64.
	assert.Equal(t, 5, CascadeDepth(map[string]interface{}{"cascade_depth": float64(5)}))
}

func TestExecuteAction_UnknownActionIgnored(t *testing.T) {
	creator := &mockTaskCreator{}
	ev := NewEvaluator(&mockRuleSource{}, creator)

	err := ev.ExecuteAction(context.Background(), testUser(), "teleport", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, creator.tasks)
}

func TestExecuteAction_LLMTaskParentChain(t *testing.T) {
	creator := &mockTaskCreator{}
	ev := NewEvaluator(&mockRuleSource{}, creator)

	err := ev.ExecuteAction(context.Background(), testUser(), ActionCallLLM,
		map[string]string{"instruction": "follow up", "parent_task_id": "42"}, nil)
	require.NoError(t, err)

	require.Len(t, creator.tasks, 1)
	task := creator.tasks[0]
	require.NotNil(t, task.ParentTaskID)
	assert.Equal(t, int64(42), *task.ParentTaskID)
	assert.Equal(t, "follow up", task.Payload["instruction"])
}
