package model

import "time"

// Email is a synced Gmail message. The sync collaborator upserts rows by
// (user_id, message_id); the embedding pipeline fills the embedding column
// for rows where embedded_at is null.
type Email struct {
	ID         int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64           `gorm:"column:user_id;not null;index:idx_email_user_id;uniqueIndex:idx_email_user_message,priority:1" json:"user_id"`
	MessageID  string          `gorm:"column:message_id;type:varchar(255);not null;uniqueIndex:idx_email_user_message,priority:2" json:"message_id"`
	ThreadID   string          `gorm:"column:thread_id;type:varchar(255);index:idx_email_thread_id" json:"thread_id"`
	Sender     string          `gorm:"column:sender;type:varchar(500)" json:"sender"`
	Recipient  string          `gorm:"column:recipient;type:varchar(500)" json:"recipient"`
	Subject    string          `gorm:"column:subject;type:text" json:"subject"`
	Snippet    string          `gorm:"column:snippet;type:text" json:"snippet"`
	Labels     JSONStringArray `gorm:"column:labels;type:json" json:"labels,omitempty"`
	ReceivedAt *time.Time      `gorm:"column:received_at;type:datetime(3);index:idx_email_received_at" json:"received_at,omitempty"`
	Embedding  JSONMap         `gorm:"column:embedding;type:json" json:"-"`
	EmbeddedAt *time.Time      `gorm:"column:embedded_at;type:datetime(3);index:idx_email_embedded_at" json:"-"`
	CreatedAt  time.Time       `gorm:"column:created_at;type:datetime(3);not null" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;type:datetime(3);not null" json:"updated_at"`
}

// TableName specifies the table name for Email
func (Email) TableName() string {
	return "emails"
}

// CalendarEvent is a synced Google Calendar event, upserted by
// (user_id, event_id).
type CalendarEvent struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64      `gorm:"column:user_id;not null;index:idx_cal_user_id;uniqueIndex:idx_cal_user_event,priority:1" json:"user_id"`
	EventID   string     `gorm:"column:event_id;type:varchar(255);not null;uniqueIndex:idx_cal_user_event,priority:2" json:"event_id"`
	Summary   string     `gorm:"column:summary;type:text" json:"summary"`
	Location  string     `gorm:"column:location;type:text" json:"location"`
	Status    string     `gorm:"column:status;type:varchar(50)" json:"status"`
	StartsAt  *time.Time `gorm:"column:starts_at;type:datetime(3);index:idx_cal_starts_at" json:"starts_at,omitempty"`
	EndsAt    *time.Time `gorm:"column:ends_at;type:datetime(3)" json:"ends_at,omitempty"`
	Etag      string     `gorm:"column:etag;type:varchar(255)" json:"-"`
	CreatedAt time.Time  `gorm:"column:created_at;type:datetime(3);not null" json:"created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at;type:datetime(3);not null" json:"updated_at"`
}

// TableName specifies the table name for CalendarEvent
func (CalendarEvent) TableName() string {
	return "calendar_events"
}
