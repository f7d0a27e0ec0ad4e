package executor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"advisorhub/internal/llm"
	"advisorhub/internal/syncer"
	"advisorhub/pkg/config"
	"advisorhub/pkg/store/mysql/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTaskStore records the terminal transition applied to each task.
type mockTaskStore struct {
	tasks     map[int64]*model.Task
	completed map[int64]model.JSONMap
	failed    map[int64]string
	retried   map[int64]time.Time
	retryErrs map[int64]string
	mu        sync.Mutex
}

func newMockTaskStore(tasks ...*model.Task) *mockTaskStore {
	m := &mockTaskStore{
		tasks:     make(map[int64]*model.Task),
		completed: make(map[int64]model.JSONMap),
		failed:    make(map[int64]string),
		retried:   make(map[int64]time.Time),
		retryErrs: make(map[int64]string),
	}
	for _, task := range tasks {
		m.tasks[task.ID] = task
	}
	return m
}

func (m *mockTaskStore) Get(ctx context.Context, taskID int64) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[taskID], nil
}

func (m *mockTaskStore) ClaimByID(ctx context.Context, taskID int64, workerID string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok || task.State != model.TaskStatePending || task.Attempts >= task.MaxAttempts {
		return nil, nil
	}
	task.State = model.TaskStateInProgress
	task.Attempts++
	task.LockedBy = workerID
	return task, nil
}

func (m *mockTaskStore) Complete(ctx context.Context, task *model.Task, result model.JSONMap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task.State = model.TaskStateCompleted
	task.Result = result
	m.completed[task.ID] = result
	return nil
}

func (m *mockTaskStore) Reschedule(ctx context.Context, task *model.Task, errMsg string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task.State = model.TaskStatePending
	m.retried[task.ID] = at
	m.retryErrs[task.ID] = errMsg
	return nil
}

func (m *mockTaskStore) Fail(ctx context.Context, task *model.Task, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task.State = model.TaskStateFailed
	m.failed[task.ID] = errMsg
	return nil
}

type mockUserStore struct {
	users map[int64]*model.User
}

func (m *mockUserStore) Get(ctx context.Context, userID int64) (*model.User, error) {
	return m.users[userID], nil
}

type mockRuleEngine struct {
	events    []string
	data      []map[string]interface{}
	fallbacks []bool
	triggered int
	mu        sync.Mutex
}

func (m *mockRuleEngine) EvaluateRulesForEvent(ctx context.Context, user *model.User, eventType string, eventData map[string]interface{}, createFallbackTask bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, eventType)
	m.data = append(m.data, eventData)
	m.fallbacks = append(m.fallbacks, createFallbackTask)
	return m.triggered, nil
}

type mockRuleLister struct {
	rules []*model.MemoryRule
}

func (m *mockRuleLister) ListActive(ctx context.Context, userID int64) ([]*model.MemoryRule, error) {
	return m.rules, nil
}

type mockToolRunner struct {
	calls   []string
	failOn  string
	results map[string]map[string]interface{}
	mu      sync.Mutex
}

func (m *mockToolRunner) Execute(ctx context.Context, user *model.User, name string, args map[string]interface{}) (map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
	if name == m.failOn {
		return nil, fmt.Errorf("tool %s unavailable", name)
	}
	if r, ok := m.results[name]; ok {
		return r, nil
	}
	return map[string]interface{}{"ok": true}, nil
}

type mockMailSyncer struct {
	stats *syncer.Stats
	err   error
}

func (m *mockMailSyncer) Sync(ctx context.Context, user *model.User) (*syncer.Stats, error) {
	return m.stats, m.err
}

type mockEventSyncer struct {
	stats *syncer.Stats
	err   error
}

func (m *mockEventSyncer) Sync(ctx context.Context, user *model.User) (*syncer.Stats, error) {
	return m.stats, m.err
}

type mockEmbedder struct {
	embedded int
	runs     int
}

func (m *mockEmbedder) Run(ctx context.Context, userID int64, limit int) (int, error) {
	m.runs++
	return m.embedded, nil
}

type mockChatClient struct {
	result *llm.ChatResult
	err    error
	calls  int
}

func (m *mockChatClient) ChatWithTools(ctx context.Context, systemPrompt, userMessage string, tools []llm.ToolDef) (*llm.ChatResult, error) {
	m.calls++
	return m.result, m.err
}

type mockLimiter struct {
	allow       bool
	allowKeys   []string
	consumeKeys []string
	mu          sync.Mutex
}

func (m *mockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowKeys = append(m.allowKeys, key)
	return m.allow, nil
}

func (m *mockLimiter) Consume(ctx context.Context, key string, n, limit int, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumeKeys = append(m.consumeKeys, key)
	return true, nil
}

type fixture struct {
	store    *mockTaskStore
	users    *mockUserStore
	engine   *mockRuleEngine
	runner   *mockToolRunner
	mail     *mockMailSyncer
	calendar *mockEventSyncer
	embedder *mockEmbedder
	chat     *mockChatClient
	limiter  *mockLimiter
	exec     *Executor
}

func newFixture(tasks ...*model.Task) *fixture {
	f := &fixture{
		store:    newMockTaskStore(tasks...),
		users:    &mockUserStore{users: map[int64]*model.User{7: {ID: 7, Email: "advisor@example.com"}}},
		engine:   &mockRuleEngine{},
		runner:   &mockToolRunner{},
		mail:     &mockMailSyncer{stats: &syncer.Stats{}},
		calendar: &mockEventSyncer{stats: &syncer.Stats{}},
		embedder: &mockEmbedder{},
		chat:     &mockChatClient{result: &llm.ChatResult{Content: "done"}},
		limiter:  &mockLimiter{allow: true},
	}
	f.exec = New(f.store, f.users, f.engine, &mockRuleLister{}, f.runner, f.mail, f.calendar, f.embedder, f.chat, f.limiter)
	return f
}

func initTestConfig() {
	config.GlobalConfig = &config.Config{
		Limits: config.LimitsConfig{
			MaxEmailsPerUserPerHour:  50,
			MaxEmailsGlobalPerHour:   500,
			MaxLLMRequestsPerHour:    100,
			MaxLLMTokensPerDay:       100000,
			MaxLLMTokensGlobalPerDay: 1000000,
		},
	}
}

func userID(id int64) *int64 { return &id }

func inProgressTask(id int64, taskType string, attempts, maxAttempts int) *model.Task {
	return &model.Task{
		ID:          id,
		UserID:      userID(7),
		TaskType:    taskType,
		State:       model.TaskStateInProgress,
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		Payload:     model.JSONMap{},
		LockedBy:    "worker-1",
	}
}

func TestRetryBackoff_GrowsExponentially(t *testing.T) {
	task := &model.Task{}

	var last time.Duration
	for attempts := 1; attempts <= 5; attempts++ {
		task.Attempts = attempts
		backoff := task.RetryBackoff()
		assert.Greater(t, backoff, last, "backoff must grow with each attempt")
		last = backoff
	}
	task.Attempts = 1
	assert.Equal(t, 2*time.Minute, task.RetryBackoff())
	task.Attempts = 3
	assert.Equal(t, 8*time.Minute, task.RetryBackoff())
}

func TestExecute_UnknownTypeFailsImmediately(t *testing.T) {
	task := inProgressTask(1, "warp_drive", 1, 3)
	f := newFixture(task)

	f.exec.Execute(context.Background(), task)

	assert.Equal(t, model.TaskStateFailed, task.State)
	assert.Contains(t, f.store.failed[1], "unknown task type")
	assert.Empty(t, f.store.retried, "unknown types must not burn retries")
}

func TestExecute_ToolTaskCompletes(t *testing.T) {
	task := inProgressTask(1, model.TaskTypeSendEmail, 1, 3)
	task.Payload = model.JSONMap{"args": map[string]interface{}{
		"to": "client@example.com", "subject": "hi", "body": "hello",
	}}
	f := newFixture(task)

	f.exec.Execute(context.Background(), task)

	assert.Equal(t, model.TaskStateCompleted, task.State)
	assert.Equal(t, []string{model.TaskTypeSendEmail}, f.runner.calls)
}

func TestExecute_FailureReschedulesWithBackoff(t *testing.T) {
	task := inProgressTask(1, model.TaskTypeSendEmail, 1, 3)
	f := newFixture(task)
	f.runner.failOn = model.TaskTypeSendEmail

	before := time.Now().UTC()
	f.exec.Execute(context.Background(), task)

	assert.Equal(t, model.TaskStatePending, task.State)
	retryAt, ok := f.store.retried[1]
	require.True(t, ok)
	// attempts=1 means a 2 minute backoff.
	assert.WithinDuration(t, before.Add(2*time.Minute), retryAt, 5*time.Second)
	assert.Contains(t, f.store.retryErrs[1], "unavailable")
}

func TestExecute_ExhaustedAttemptsFailTerminally(t *testing.T) {
	task := inProgressTask(1, model.TaskTypeSendEmail, 3, 3)
	f := newFixture(task)
	f.runner.failOn = model.TaskTypeSendEmail

	f.exec.Execute(context.Background(), task)

	assert.Equal(t, model.TaskStateFailed, task.State)
	assert.Empty(t, f.store.retried)
}

func TestExecute_MissingUserFailsPermanently(t *testing.T) {
	task := inProgressTask(1, model.TaskTypeSendEmail, 1, 3)
	task.UserID = userID(99)
	f := newFixture(task)

	f.exec.Execute(context.Background(), task)

	assert.Equal(t, model.TaskStateFailed, task.State)
	assert.Empty(t, f.store.retried, "missing user is not retryable")
}

func TestExecute_GmailSyncDerivesOneEvent(t *testing.T) {
	task := inProgressTask(1, model.TaskTypeGmailSync, 1, 3)
	task.Payload = model.JSONMap{"history_id": "h-42"}
	f := newFixture(task)
	f.mail.stats = &syncer.Stats{TotalFetched: 3, New: 2, Updated: 1}
	f.engine.triggered = 1

	f.exec.Execute(context.Background(), task)

	assert.Equal(t, model.TaskStateCompleted, task.State)
	// However many messages arrived, the sync derives exactly one event,
	// so the fallback can mint at most one speculative task.
	assert.Equal(t, []string{"gmail.message.received"}, f.engine.events)
	assert.Equal(t, []bool{true}, f.engine.fallbacks)
	assert.Equal(t, "h-42", f.engine.data[0]["history_id"])
	assert.Equal(t, 2, f.engine.data[0]["new_count"])
	assert.Equal(t, 1, f.embedder.runs)

	result := f.store.completed[1]
	assert.Equal(t, 2, result["new"])
	assert.Equal(t, 1, result["rules_triggered"])
}

func TestExecute_GmailSyncNothingNewSkipsEvaluation(t *testing.T) {
	task := inProgressTask(1, model.TaskTypeGmailSync, 1, 3)
	f := newFixture(task)
	f.mail.stats = &syncer.Stats{TotalFetched: 3, Updated: 3}

	f.exec.Execute(context.Background(), task)

	assert.Equal(t, model.TaskStateCompleted, task.State)
	assert.Empty(t, f.engine.events)
	assert.Equal(t, 0, f.embedder.runs, "no new mail, nothing to embed")
}

func TestExecute_CalendarSyncDerivesCreatedEvent(t *testing.T) {
	task := inProgressTask(1, model.TaskTypeCalendarSync, 1, 3)
	f := newFixture(task)
	f.calendar.stats = &syncer.Stats{TotalFetched: 2, New: 1, Updated: 1}

	f.exec.Execute(context.Background(), task)

	assert.Equal(t, model.TaskStateCompleted, task.State)
	assert.Equal(t, []string{"calendar.event.created"}, f.engine.events)
	assert.Equal(t, 1, f.engine.data[0]["new_count"])
	assert.Equal(t, 1, f.engine.data[0]["updated_count"])
}

func TestExecute_CalendarSyncDerivesUpdatedEvent(t *testing.T) {
	task := inProgressTask(1, model.TaskTypeCalendarSync, 1, 3)
	f := newFixture(task)
	f.calendar.stats = &syncer.Stats{TotalFetched: 2, Updated: 2}

	f.exec.Execute(context.Background(), task)

	assert.Equal(t, model.TaskStateCompleted, task.State)
	assert.Equal(t, []string{"calendar.event.updated"}, f.engine.events)
}

func TestExecute_CalendarSyncNoChangesSkipsEvaluation(t *testing.T) {
	task := inProgressTask(1, model.TaskTypeCalendarSync, 1, 3)
	f := newFixture(task)
	f.calendar.stats = &syncer.Stats{TotalFetched: 5}

	f.exec.Execute(context.Background(), task)

	assert.Equal(t, model.TaskStateCompleted, task.State)
	assert.Empty(t, f.engine.events)
}

func TestExecute_SyncFailureRetries(t *testing.T) {
	task := inProgressTask(1, model.TaskTypeGmailSync, 1, 3)
	f := newFixture(task)
	f.mail.err = fmt.Errorf("gmail list failed: 503")

	f.exec.Execute(context.Background(), task)

	assert.Equal(t, model.TaskStatePending, task.State)
	assert.NotEmpty(t, f.store.retried)
}

func TestExecute_LLMProcessEventRunsToolCalls(t *testing.T) {
	initTestConfig()

	task := inProgressTask(1, model.TaskTypeLLMProcessEvent, 1, 2)
	task.Payload = model.JSONMap{
		"event_type":  "gmail.message.received",
		"event_data":  map[string]interface{}{"message_id": "m1"},
		"instruction": "create a contact for the sender",
	}
	f := newFixture(task)
	f.chat.result = &llm.ChatResult{
		Content:     "Creating the contact now.",
		TotalTokens: 200,
		ToolCalls: []llm.ToolCall{
			{ID: "c1", Name: "create_contact", Arguments: `{"email":"a@example.com"}`},
			{ID: "c2", Name: "create_note", Arguments: `{"contact_id":"1","body":"note"}`},
		},
	}
	f.runner.failOn = "create_note"

	f.exec.Execute(context.Background(), task)

	assert.Equal(t, model.TaskStateCompleted, task.State, "one failing tool call must not fail the task")
	assert.Equal(t, []string{"create_contact", "create_note"}, f.runner.calls)

	result := f.store.completed[1]
	assert.Equal(t, "Creating the contact now.", result["llm_response"])
	assert.Equal(t, 2, result["tool_calls_count"])

	actions := result["actions_taken"].([]interface{})
	require.Len(t, actions, 2)
	first := actions[0].(map[string]interface{})
	second := actions[1].(map[string]interface{})
	assert.NotContains(t, first, "error")
	assert.Contains(t, second, "error")
}

func TestExecute_GenericTaskRoutesToLLM(t *testing.T) {
	initTestConfig()

	task := inProgressTask(1, model.TaskTypeGeneric, 1, 3)
	task.Payload = model.JSONMap{
		"event_type": "hubspot.contact.creation",
		"event_data": map[string]interface{}{"object_id": "311"},
	}
	f := newFixture(task)

	f.exec.Execute(context.Background(), task)

	assert.Equal(t, model.TaskStateCompleted, task.State)
	assert.Equal(t, 1, f.chat.calls, "generic tasks go through the proactive handler")
	assert.Equal(t, "done", f.store.completed[1]["llm_response"])
}

func TestExecute_LLMBudgetsAreScopedPerUser(t *testing.T) {
	initTestConfig()

	task := inProgressTask(1, model.TaskTypeLLMProcessEvent, 1, 2)
	f := newFixture(task)
	f.chat.result = &llm.ChatResult{Content: "noted", TotalTokens: 321}

	f.exec.Execute(context.Background(), task)

	require.Equal(t, model.TaskStateCompleted, task.State)
	assert.Equal(t, []string{"ratelimit:llm:requests:user:7"}, f.limiter.allowKeys)
	assert.Equal(t, []string{"ratelimit:llm:tokens:user:7", "ratelimit:llm:tokens:global"}, f.limiter.consumeKeys)
}

func TestExecute_LLMBudgetExhaustedRetries(t *testing.T) {
	initTestConfig()

	task := inProgressTask(1, model.TaskTypeLLMProcessEvent, 1, 2)
	f := newFixture(task)
	f.exec = New(f.store, f.users, f.engine, &mockRuleLister{}, f.runner, f.mail, f.calendar, &mockEmbedder{}, f.chat, &mockLimiter{allow: false})

	f.exec.Execute(context.Background(), task)

	assert.Equal(t, model.TaskStatePending, task.State, "budget exhaustion retries later")
	assert.Contains(t, f.store.retryErrs[1], "budget")
}

func TestExecuteNow(t *testing.T) {
	initTestConfig()

	t.Run("pending task runs to completion", func(t *testing.T) {
		task := &model.Task{
			ID:          1,
			UserID:      userID(7),
			TaskType:    model.TaskTypeGeneric,
			State:       model.TaskStatePending,
			MaxAttempts: 3,
			Payload:     model.JSONMap{},
		}
		f := newFixture(task)

		got, err := f.exec.ExecuteNow(context.Background(), 1, "api-worker")
		require.NoError(t, err)
		assert.Equal(t, model.TaskStateCompleted, got.State)
		assert.Equal(t, 1, got.Attempts)
	})

	t.Run("non-pending task is not claimable", func(t *testing.T) {
		task := inProgressTask(1, model.TaskTypeGeneric, 1, 3)
		f := newFixture(task)

		_, err := f.exec.ExecuteNow(context.Background(), 1, "api-worker")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not claimable")
	})

	t.Run("missing task is not claimable", func(t *testing.T) {
		f := newFixture()

		_, err := f.exec.ExecuteNow(context.Background(), 404, "api-worker")
		require.Error(t, err)
	})
}
