package worker

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"advisorhub/pkg/store/mysql/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClaimer serves tasks in eligibility order and tracks reclaim calls.
type mockClaimer struct {
	pending      []*model.Task
	claimed      []int64
	reclaimCalls int
	orphans      int64
	mu           sync.Mutex
}

func (m *mockClaimer) Claim(ctx context.Context, workerID string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	// Same ordering the SQL claim uses: priority desc, scheduled_for asc,
	// created_at asc, skipping ineligible rows.
	sort.SliceStable(m.pending, func(i, j int) bool {
		a, b := m.pending[i], m.pending[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		at, bt := scheduledOrZero(a), scheduledOrZero(b)
		if !at.Equal(bt) {
			return at.Before(bt)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	for i, task := range m.pending {
		if task.ScheduledFor != nil && task.ScheduledFor.After(now) {
			continue
		}
		if task.Attempts >= task.MaxAttempts {
			continue
		}
		task.State = model.TaskStateInProgress
		task.LockedBy = workerID
		task.Attempts++
		m.claimed = append(m.claimed, task.ID)
		m.pending = append(m.pending[:i], m.pending[i+1:]...)
		return task, nil
	}
	return nil, nil
}

func scheduledOrZero(t *model.Task) time.Time {
	if t.ScheduledFor == nil {
		return time.Time{}
	}
	return *t.ScheduledFor
}

func (m *mockClaimer) ReclaimOrphans(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reclaimCalls++
	return m.orphans, nil
}

// mockRunner records executed tasks.
type mockRunner struct {
	executed []int64
	block    chan struct{}
	mu       sync.Mutex
}

func (m *mockRunner) Execute(ctx context.Context, task *model.Task) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executed = append(m.executed, task.ID)
}

func pendingTask(id int64, priority int, createdAt time.Time) *model.Task {
	return &model.Task{
		ID:          id,
		TaskType:    model.TaskTypeGeneric,
		State:       model.TaskStatePending,
		Priority:    priority,
		MaxAttempts: 3,
		CreatedAt:   createdAt,
	}
}

func TestWorker_DrainsQueueInOrder(t *testing.T) {
	base := time.Now().UTC().Add(-time.Hour)
	claimer := &mockClaimer{pending: []*model.Task{
		pendingTask(1, 1, base),
		pendingTask(2, 3, base.Add(2*time.Minute)),
		pendingTask(3, 3, base.Add(time.Minute)),
		pendingTask(4, 2, base),
	}}
	runner := &mockRunner{}
	w := New(claimer, runner, time.Second, 5*time.Minute, 4)

	// One claim per tick; four ticks drain the queue.
	for i := 0; i < 4; i++ {
		require.NoError(t, w.Run(context.Background()))
	}
	w.Drain()

	// Higher priority first; equal priority by creation time.
	assert.Equal(t, []int64{3, 2, 4, 1}, claimer.claimed)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.ElementsMatch(t, []int64{1, 2, 3, 4}, runner.executed)
}

func TestWorker_SkipsFutureScheduledTasks(t *testing.T) {
	future := time.Now().UTC().Add(time.Hour)
	past := time.Now().UTC().Add(-time.Hour)
	claimer := &mockClaimer{pending: []*model.Task{
		{ID: 1, State: model.TaskStatePending, Priority: 5, MaxAttempts: 3, ScheduledFor: &future},
		{ID: 2, State: model.TaskStatePending, Priority: 1, MaxAttempts: 3, ScheduledFor: &past},
	}}
	runner := &mockRunner{}
	w := New(claimer, runner, time.Second, 5*time.Minute, 2)

	require.NoError(t, w.Run(context.Background()))
	w.Drain()

	assert.Equal(t, []int64{2}, claimer.claimed, "the future task must wait even at higher priority")
	assert.Len(t, claimer.pending, 1)
}

func TestWorker_SkipsExhaustedTasks(t *testing.T) {
	claimer := &mockClaimer{pending: []*model.Task{
		{ID: 1, State: model.TaskStatePending, Attempts: 3, MaxAttempts: 3},
	}}
	runner := &mockRunner{}
	w := New(claimer, runner, time.Second, 5*time.Minute, 2)

	require.NoError(t, w.Run(context.Background()))
	w.Drain()

	assert.Empty(t, claimer.claimed)
}

func TestWorker_ReclaimsOrphansOnceAtStartup(t *testing.T) {
	claimer := &mockClaimer{orphans: 2}
	runner := &mockRunner{}
	w := New(claimer, runner, time.Second, 5*time.Minute, 2)

	require.NoError(t, w.Run(context.Background()))
	require.NoError(t, w.Run(context.Background()))
	require.NoError(t, w.Run(context.Background()))
	w.Drain()

	assert.Equal(t, 1, claimer.reclaimCalls, "orphan reclamation runs on the first tick only")
}

func TestWorker_ClaimsOneTaskPerTick(t *testing.T) {
	base := time.Now().UTC()
	claimer := &mockClaimer{pending: []*model.Task{
		pendingTask(1, 0, base),
		pendingTask(2, 0, base),
		pendingTask(3, 0, base),
	}}
	runner := &mockRunner{}
	w := New(claimer, runner, time.Second, 5*time.Minute, 4)

	require.NoError(t, w.Run(context.Background()))
	w.Drain()

	assert.Len(t, claimer.claimed, 1, "a tick claims at most one task even with free slots")
	assert.Len(t, claimer.pending, 2)
}

func TestWorker_RespectsConcurrencyCeiling(t *testing.T) {
	base := time.Now().UTC()
	claimer := &mockClaimer{pending: []*model.Task{
		pendingTask(1, 0, base),
		pendingTask(2, 0, base),
		pendingTask(3, 0, base),
	}}
	runner := &mockRunner{block: make(chan struct{})}
	w := New(claimer, runner, time.Second, 5*time.Minute, 2)

	require.NoError(t, w.Run(context.Background()))
	require.NoError(t, w.Run(context.Background()))
	require.NoError(t, w.Run(context.Background()))
	assert.Len(t, claimer.claimed, 2, "only as many claims as free slots")

	// Slots free up once tasks finish; the next tick picks up the rest.
	close(runner.block)
	w.Drain()
	require.NoError(t, w.Run(context.Background()))
	w.Drain()
	assert.Len(t, claimer.claimed, 3)
}

func TestWorker_DistinctIdentities(t *testing.T) {
	claimer := &mockClaimer{}
	w1 := New(claimer, &mockRunner{}, time.Second, 5*time.Minute, 1)
	w2 := New(claimer, &mockRunner{}, time.Second, 5*time.Minute, 1)

	assert.NotEmpty(t, w1.ID())
	assert.NotEqual(t, w1.ID(), w2.ID())
}
