package model

import (
	"time"
)

// Task states. Only pending tasks are eligible for acquisition; only a
// task currently in_progress may transition to completed, failed or back
// to pending.
const (
	TaskStatePending         = "pending"
	TaskStateInProgress      = "in_progress"
	TaskStateWaitingForReply = "waiting_for_reply"
	TaskStateCompleted       = "completed"
	TaskStateFailed          = "failed"
)

// Task types understood by the executor dispatch table.
const (
	TaskTypeGmailSync       = "gmail_sync"
	TaskTypeCalendarSync    = "calendar_sync"
	TaskTypeSendEmail       = "send_email"
	TaskTypeScheduleEvent   = "schedule_event"
	TaskTypeUpdateEvent     = "update_event"
	TaskTypeCancelEvent     = "cancel_event"
	TaskTypeFindContact     = "find_contact"
	TaskTypeCreateContact   = "create_contact"
	TaskTypeUpdateContact   = "update_contact"
	TaskTypeCreateNote      = "create_note"
	TaskTypeLLMProcessEvent = "llm_process_event"
	TaskTypeGeneric         = "generic"
	TaskTypeProcessEmail    = "process_email"
)

// Task is the unit of deferred work. Rows are never deleted in normal
// operation; completed and failed tasks remain as an audit trail.
type Task struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        *int64     `gorm:"column:user_id;index:idx_task_user_id" json:"user_id"`
	ParentTaskID  *int64     `gorm:"column:parent_task_id" json:"parent_task_id,omitempty"`
	TaskType      string     `gorm:"column:task_type;type:varchar(100);not null;index:idx_task_type" json:"task_type"`
	State         string     `gorm:"column:state;type:varchar(50);not null;default:pending;index:idx_task_state" json:"state"`
	Priority      int        `gorm:"column:priority;not null;default:0" json:"priority"`
	Attempts      int        `gorm:"column:attempts;not null;default:0" json:"attempts"`
	MaxAttempts   int        `gorm:"column:max_attempts;not null;default:3" json:"max_attempts"`
	Payload       JSONMap    `gorm:"column:payload;type:json;not null" json:"payload"`
	Result        JSONMap    `gorm:"column:result;type:json" json:"result,omitempty"`
	ScheduledFor  *time.Time `gorm:"column:scheduled_for;type:datetime(3);index:idx_task_scheduled_for" json:"scheduled_for,omitempty"`
	LockedAt      *time.Time `gorm:"column:locked_at;type:datetime(3);index:idx_task_locked_at" json:"locked_at,omitempty"`
	LockedBy      string     `gorm:"column:locked_by;type:varchar(255)" json:"locked_by,omitempty"`
	LastAttemptAt *time.Time `gorm:"column:last_attempt_at;type:datetime(3)" json:"last_attempt_at,omitempty"`
	CompletedAt   *time.Time `gorm:"column:completed_at;type:datetime(3);index:idx_task_completed_at" json:"completed_at,omitempty"`
	LastError     string     `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	CreatedAt     time.Time  `gorm:"column:created_at;type:datetime(3);not null;index:idx_task_created_at" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;type:datetime(3);not null" json:"updated_at"`
}

// TableName specifies the table name for Task
func (Task) TableName() string {
	return "tasks"
}

// Terminal reports whether the task reached a final state.
func (t *Task) Terminal() bool {
	return t.State == TaskStateCompleted || t.State == TaskStateFailed
}

// RetryBackoff returns the delay before the next attempt: 2^attempts
// minutes, keyed off the attempt counter. Not jittered.
func (t *Task) RetryBackoff() time.Duration {
	return time.Duration(1<<uint(t.Attempts)) * time.Minute
}

// PayloadString returns a string payload field, or the fallback when the
// field is absent or not a string.
func (t *Task) PayloadString(key, fallback string) string {
	if t.Payload == nil {
		return fallback
	}
	if v, ok := t.Payload[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// PayloadMap returns a nested map payload field, or nil.
func (t *Task) PayloadMap(key string) map[string]interface{} {
	if t.Payload == nil {
		return nil
	}
	if v, ok := t.Payload[key].(map[string]interface{}); ok {
		return v
	}
	return nil
}
