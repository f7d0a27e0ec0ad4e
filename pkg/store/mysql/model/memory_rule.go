package model

import "time"

// MemoryRule is a user-owned trigger/action definition. The rule text is
// either a structured "when X then Y k=v" statement or an arbitrary
// natural-language instruction; parsing happens at evaluation time, so
// malformed text is stored as-is. Only active rules are evaluated.
type MemoryRule struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64      `gorm:"column:user_id;not null;index:idx_rule_user_id" json:"user_id"`
	RuleText        string     `gorm:"column:rule_text;type:text;not null" json:"rule_text"`
	IsActive        bool       `gorm:"column:is_active;not null;default:true;index:idx_rule_is_active" json:"is_active"`
	Priority        int        `gorm:"column:priority;not null;default:0" json:"priority"`
	LastTriggeredAt *time.Time `gorm:"column:last_triggered_at;type:datetime(3);index:idx_rule_last_triggered_at" json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time  `gorm:"column:created_at;type:datetime(3);not null" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;type:datetime(3);not null" json:"updated_at"`
}

// TableName specifies the table name for MemoryRule
func (MemoryRule) TableName() string {
	return "memory_rules"
}
